package events

import "time"

// Topic names an event stream.
type Topic string

const (
	// TopicTaskCreated carries the new *task.ScheduledTask.
	TopicTaskCreated Topic = "task-created"
	// TopicTaskUpdated carries the updated *task.ScheduledTask.
	TopicTaskUpdated Topic = "task-updated"
	// TopicTaskDeleted carries a TaskRef.
	TopicTaskDeleted Topic = "task-deleted"
	// TopicTaskStarted carries the running *task.Execution.
	TopicTaskStarted Topic = "task-started"
	// TopicTaskCompleted carries the completed *task.Execution.
	TopicTaskCompleted Topic = "task-completed"
	// TopicTaskFailed carries the failed *task.Execution.
	TopicTaskFailed Topic = "task-failed"
	// TopicTaskCancelled carries an execution cancelled by shutdown.
	TopicTaskCancelled Topic = "task-cancelled"
	// TopicTaskDispatch carries the work request sent by the broadcast hook.
	TopicTaskDispatch Topic = "task-dispatch"
)

// Event is a single published message.
type Event struct {
	ID      string    `json:"id"`
	Topic   Topic     `json:"topic"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// TaskRef identifies a task that no longer exists.
type TaskRef struct {
	TaskID string `json:"taskId"`
}
