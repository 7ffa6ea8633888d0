// Package handlers implements the HTTP endpoints of the task API.
package handlers

import (
	"context"
	"encoding/json"

	"github.com/watzon/cadence/internal/task"
)

// TaskService is the command surface the API exposes.
type TaskService interface {
	CreateTask(ctx context.Context, d task.Draft) (*task.ScheduledTask, error)
	UpdateTask(ctx context.Context, id string, u task.Update) (*task.ScheduledTask, error)
	ToggleTask(ctx context.Context, id string) (*task.ScheduledTask, error)
	DeleteTask(ctx context.Context, id string) error
	Tasks() ([]*task.ScheduledTask, error)
	Task(id string) (*task.ScheduledTask, error)
	Armed(id string) bool
	Executions(ctx context.Context, taskID string) ([]*task.Execution, error)
	Stats(ctx context.Context) (task.Stats, error)
	ReportOutcome(ctx context.Context, executionID string, outcome json.RawMessage) (*task.Execution, error)
}
