// Package executor turns a fired task into a persisted Execution record by
// handing the task's work payload to a Hook.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/watzon/cadence/internal/events"
	"github.com/watzon/cadence/internal/keyed"
	"github.com/watzon/cadence/internal/metrics"
	"github.com/watzon/cadence/internal/task"
)

// Hook hands a task's work payload to whatever performs it. Returning nil
// means the work was accepted, not that it finished.
type Hook interface {
	Dispatch(ctx context.Context, t *task.ScheduledTask, e *task.Execution) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, t *task.ScheduledTask, e *task.Execution) error

func (f HookFunc) Dispatch(ctx context.Context, t *task.ScheduledTask, e *task.Execution) error {
	return f(ctx, t, e)
}

// Store is the subset of store.Store used for execution records.
type Store interface {
	SaveExecution(ctx context.Context, e *task.Execution) error
	LoadExecution(ctx context.Context, id string) (*task.Execution, error)
}

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(topic events.Topic, payload any) *events.Event
}

// Options configures an Executor.
type Options struct {
	Store  Store
	Hook   Hook
	Events Publisher
	Clock  func() time.Time
	NewID  func() string
}

type running struct {
	exec   *task.Execution
	cancel context.CancelFunc
}

// Executor runs tasks and tracks in-flight executions.
type Executor struct {
	store  Store
	hook   Hook
	events Publisher
	now    func() time.Time
	newID  func() string

	// writes orders the record writes of each execution so a finished or
	// cancelled record is never overwritten by an older snapshot.
	writes keyed.Mutex

	mu       sync.Mutex
	inflight map[string]*running
	closed   bool
}

// New creates an Executor.
func New(opts Options) *Executor {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Executor{
		store:    opts.Store,
		hook:     opts.Hook,
		events:   opts.Events,
		now:      opts.Clock,
		newID:    opts.NewID,
		inflight: make(map[string]*running),
	}
}

// Execute runs t once and returns the final execution record. Failures are
// captured in the record, never returned.
func (x *Executor) Execute(ctx context.Context, t *task.ScheduledTask) *task.Execution {
	exec := &task.Execution{
		ID:        x.newID(),
		TaskID:    t.ID,
		StartTime: task.Timestamp(x.now()),
		Status:    task.StatusRunning,
	}
	logger := log.With().
		Str("task_id", t.ID).
		Str("execution_id", exec.ID).
		Logger()

	dispatchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r := &running{exec: exec, cancel: cancel}

	unlock := x.writes.Lock(exec.ID)
	x.mu.Lock()
	if x.closed {
		exec.Finish(task.StatusCancelled, x.now())
		exec.Error = "executor shut down"
		final := exec.Clone()
		x.mu.Unlock()
		unlock()
		logger.Warn().Msg("Execution rejected after shutdown")
		return final
	}
	x.inflight[exec.ID] = r
	started := exec.Clone()
	x.mu.Unlock()
	x.persist(ctx, started)
	unlock()

	metrics.ExecutionStarted()
	x.publish(events.TopicTaskStarted, started)
	logger.Info().Str("task_name", t.Name).Msg("Execution started")

	err := x.dispatch(dispatchCtx, t.Clone(), started.Clone())

	unlock = x.writes.Lock(exec.ID)
	defer unlock()

	x.mu.Lock()
	if exec.Status.Terminal() {
		// Shutdown finalized this record and persists it.
		final := exec.Clone()
		x.mu.Unlock()
		logger.Debug().Msg("Dispatch returned after cancellation")
		return final
	}
	delete(x.inflight, exec.ID)
	if err != nil {
		exec.Error = err.Error()
		exec.Finish(task.StatusFailed, x.now())
	} else {
		exec.Finish(task.StatusCompleted, x.now())
	}
	final := exec.Clone()
	x.mu.Unlock()

	x.persist(ctx, final)
	x.finished(final)

	if err != nil {
		logger.Error().Err(err).Int64("duration_ms", *final.Duration).Msg("Execution failed")
	} else {
		logger.Info().Int64("duration_ms", *final.Duration).Msg("Execution completed")
	}
	return final
}

func (x *Executor) dispatch(ctx context.Context, t *task.ScheduledTask, e *task.Execution) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: hook panicked: %v", task.ErrDispatch, r)
		}
	}()
	if x.hook == nil {
		return fmt.Errorf("%w: no hook configured", task.ErrDispatch)
	}
	return x.hook.Dispatch(ctx, t, e)
}

// ReportOutcome attaches outcome to an execution without touching its
// status or timing.
func (x *Executor) ReportOutcome(ctx context.Context, id string, outcome json.RawMessage) (*task.Execution, error) {
	if !json.Valid(outcome) {
		return nil, fmt.Errorf("%w: outcome is not valid JSON", task.ErrValidation)
	}

	unlock := x.writes.Lock(id)
	defer unlock()

	x.mu.Lock()
	if r, ok := x.inflight[id]; ok {
		r.exec.Outcome = append(json.RawMessage(nil), outcome...)
		snapshot := r.exec.Clone()
		x.mu.Unlock()
		if err := x.store.SaveExecution(ctx, snapshot); err != nil {
			return nil, err
		}
		return snapshot, nil
	}
	x.mu.Unlock()

	exec, err := x.store.LoadExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, fmt.Errorf("execution %s: %w", id, task.ErrNotFound)
	}
	exec.Outcome = append(json.RawMessage(nil), outcome...)
	if err := x.store.SaveExecution(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// Shutdown cancels every in-flight execution. Hooks observe cancellation
// through their context; their eventual return does not alter the record.
func (x *Executor) Shutdown(ctx context.Context) error {
	x.mu.Lock()
	x.closed = true
	ids := make([]string, 0, len(x.inflight))
	for id, r := range x.inflight {
		r.exec.Finish(task.StatusCancelled, x.now())
		r.cancel()
		ids = append(ids, id)
	}
	x.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := x.persistCancelled(context.WithoutCancel(ctx), id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// persistCancelled writes a record finalized by Shutdown and stops tracking
// it. The record stays in flight until written so outcomes reported in the
// meantime land on it.
func (x *Executor) persistCancelled(ctx context.Context, id string) error {
	unlock := x.writes.Lock(id)
	defer unlock()

	x.mu.Lock()
	r, ok := x.inflight[id]
	if !ok {
		x.mu.Unlock()
		return nil
	}
	e := r.exec.Clone()
	delete(x.inflight, id)
	x.mu.Unlock()

	var err error
	if serr := x.store.SaveExecution(ctx, e); serr != nil {
		err = fmt.Errorf("persisting cancelled execution %s: %w", e.ID, serr)
	}
	x.finished(e)
	log.Warn().
		Str("task_id", e.TaskID).
		Str("execution_id", e.ID).
		Msg("Execution cancelled by shutdown")
	return err
}

// InFlight returns the number of running executions.
func (x *Executor) InFlight() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.inflight)
}

func (x *Executor) persist(ctx context.Context, e *task.Execution) {
	if err := x.store.SaveExecution(context.WithoutCancel(ctx), e); err != nil {
		log.Error().
			Err(err).
			Str("task_id", e.TaskID).
			Str("execution_id", e.ID).
			Str("status", string(e.Status)).
			Msg("Failed to persist execution")
	}
}

func (x *Executor) finished(e *task.Execution) {
	var d time.Duration
	if e.Duration != nil {
		d = time.Duration(*e.Duration) * time.Millisecond
	}
	metrics.ExecutionFinished(string(e.Status), d)

	switch e.Status {
	case task.StatusCompleted:
		x.publish(events.TopicTaskCompleted, e)
	case task.StatusFailed:
		x.publish(events.TopicTaskFailed, e)
	case task.StatusCancelled:
		x.publish(events.TopicTaskCancelled, e)
	}
}

func (x *Executor) publish(topic events.Topic, e *task.Execution) {
	if x.events != nil {
		x.events.Publish(topic, e.Clone())
	}
}
