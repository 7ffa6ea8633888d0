// Package dispatch provides the executor hooks that hand a fired task's
// work payload to the component that performs it.
package dispatch

import (
	"time"

	"github.com/watzon/cadence/internal/task"
)

// Request is the work payload sent for every execution.
type Request struct {
	TaskID        string    `json:"taskId"`
	TaskName      string    `json:"taskName"`
	ExecutionID   string    `json:"executionId"`
	Prompt        string    `json:"prompt"`
	Settings      Settings  `json:"settings"`
	ExecutionTime time.Time `json:"executionTime"`
}

// Settings carries the work parameters opaque to the scheduler.
type Settings struct {
	Provider   string   `json:"provider"`
	ModelID    string   `json:"modelId"`
	MCPServers []string `json:"mcpServers"`
}

// NewRequest builds the payload for execution e of task t.
func NewRequest(t *task.ScheduledTask, e *task.Execution, now time.Time) Request {
	servers := t.MCPServers
	if servers == nil {
		servers = []string{}
	}
	return Request{
		TaskID:      t.ID,
		TaskName:    t.Name,
		ExecutionID: e.ID,
		Prompt:      t.Prompt,
		Settings: Settings{
			Provider:   t.AIProvider,
			ModelID:    t.Model,
			MCPServers: append([]string(nil), servers...),
		},
		ExecutionTime: task.Timestamp(now),
	}
}
