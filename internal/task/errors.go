package task

import "errors"

var (
	// ErrNotFound is returned for an unknown task or execution id.
	ErrNotFound = errors.New("not found")
	// ErrInvalidSchedule is returned when a schedule cannot be parsed or armed.
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrStorage wraps I/O failures other than a missing file.
	ErrStorage = errors.New("storage error")
	// ErrDispatch wraps failures of the external work hook.
	ErrDispatch = errors.New("dispatch failed")
	// ErrUninitialized is returned by commands issued before initialization
	// or after shutdown.
	ErrUninitialized = errors.New("scheduler not initialized")
	// ErrValidation is returned for malformed task input.
	ErrValidation = errors.New("validation failed")
)
