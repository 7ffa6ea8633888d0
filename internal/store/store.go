// Package store persists tasks and executions as one JSON file per entity.
//
// Layout:
//
//	<dir>/scheduled-tasks/<id>.json
//	<dir>/task-executions/<id>.json
package store

import (
	"context"
	"time"

	"github.com/watzon/cadence/internal/task"
)

const (
	tasksDirName      = "scheduled-tasks"
	executionsDirName = "task-executions"

	// DefaultRetention is the execution age removed by CleanupOldExecutions
	// when no explicit age is given.
	DefaultRetention = 30 * 24 * time.Hour
)

// Store is the persistence API used by the scheduler and executor.
type Store interface {
	SaveTask(ctx context.Context, t *task.ScheduledTask) error
	LoadTask(ctx context.Context, id string) (*task.ScheduledTask, error)
	LoadTasks(ctx context.Context) ([]*task.ScheduledTask, error)
	DeleteTask(ctx context.Context, id string) error

	SaveExecution(ctx context.Context, e *task.Execution) error
	LoadExecution(ctx context.Context, id string) (*task.Execution, error)
	LoadExecutions(ctx context.Context, taskID string) ([]*task.Execution, error)
	DeleteExecution(ctx context.Context, id string) error

	CleanupOldExecutions(ctx context.Context, maxAge time.Duration) (int, error)
}

// Archiver receives executions before retention cleanup deletes them.
type Archiver interface {
	Archive(ctx context.Context, executions []*task.Execution) error
}
