// Package task defines the scheduled task and execution records shared by the
// scheduler, executor, store and transport layers.
package task

import (
	"encoding/json"
	"math"
	"time"
)

// ScheduleType is the discriminant of a Schedule.
type ScheduleType string

const (
	// ScheduleTypeInterval fires on a fixed period.
	ScheduleTypeInterval ScheduleType = "interval"
	// ScheduleTypeCron fires on a cron expression.
	ScheduleTypeCron ScheduleType = "cron"
	// ScheduleTypeOnce fires a single time at ExecuteAt.
	ScheduleTypeOnce ScheduleType = "once"
)

// IntervalUnit is the unit of an interval schedule.
type IntervalUnit string

const (
	UnitMinutes IntervalUnit = "minutes"
	UnitHours   IntervalUnit = "hours"
	UnitDays    IntervalUnit = "days"
	UnitWeeks   IntervalUnit = "weeks"
)

// Duration returns the length of one unit, or zero for an unknown unit.
func (u IntervalUnit) Duration() time.Duration {
	switch u {
	case UnitMinutes:
		return time.Minute
	case UnitHours:
		return time.Hour
	case UnitDays:
		return 24 * time.Hour
	case UnitWeeks:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// Interval is the payload of an interval schedule.
type Interval struct {
	Value int          `json:"value" yaml:"value" validate:"gt=0"`
	Unit  IntervalUnit `json:"unit" yaml:"unit" validate:"oneof=minutes hours days weeks"`
}

// Period returns Value * Unit, or zero when the value is not positive, the
// unit is unknown or the product does not fit in a time.Duration.
func (i Interval) Period() time.Duration {
	unit := i.Unit.Duration()
	if unit <= 0 || i.Value <= 0 || int64(i.Value) > math.MaxInt64/int64(unit) {
		return 0
	}
	return time.Duration(i.Value) * unit
}

// Schedule describes when a task fires. Only the payload matching Type is
// meaningful.
type Schedule struct {
	Type      ScheduleType `json:"type" yaml:"type" validate:"required,oneof=interval cron once"`
	Interval  *Interval    `json:"interval,omitempty" yaml:"interval,omitempty"`
	Cron      string       `json:"cron,omitempty" yaml:"cron,omitempty"`
	ExecuteAt *time.Time   `json:"executeAt,omitempty" yaml:"executeAt,omitempty"`
	Timezone  string       `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// ScheduledTask is a task definition together with its run statistics.
type ScheduledTask struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Work payload, forwarded verbatim to the dispatch hook.
	Prompt     string   `json:"prompt" yaml:"prompt"`
	AIProvider string   `json:"aiProvider" yaml:"aiProvider"`
	Model      string   `json:"model" yaml:"model"`
	MCPServers []string `json:"mcpServers" yaml:"mcpServers"`

	Schedule Schedule `json:"schedule" yaml:"schedule"`
	Enabled  bool     `json:"enabled" yaml:"enabled"`

	LastRun      *time.Time `json:"lastRun,omitempty" yaml:"lastRun,omitempty"`
	NextRun      *time.Time `json:"nextRun,omitempty" yaml:"nextRun,omitempty"`
	RunCount     uint64     `json:"runCount" yaml:"runCount"`
	SuccessCount uint64     `json:"successCount" yaml:"successCount"`

	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// Clone returns a deep copy of t.
func (t *ScheduledTask) Clone() *ScheduledTask {
	if t == nil {
		return nil
	}
	c := *t
	if t.MCPServers != nil {
		c.MCPServers = append([]string(nil), t.MCPServers...)
	}
	c.Schedule = t.Schedule.clone()
	c.LastRun = cloneTime(t.LastRun)
	c.NextRun = cloneTime(t.NextRun)
	return &c
}

func (s Schedule) clone() Schedule {
	c := s
	if s.Interval != nil {
		iv := *s.Interval
		c.Interval = &iv
	}
	c.ExecuteAt = cloneTime(s.ExecuteAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Status is the state of an execution.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Execution records a single firing of a task.
type Execution struct {
	ID        string          `json:"id"`
	TaskID    string          `json:"taskId"`
	StartTime time.Time       `json:"startTime"`
	EndTime   *time.Time      `json:"endTime,omitempty"`
	Status    Status          `json:"status"`
	Duration  *int64          `json:"duration,omitempty"` // milliseconds
	Error     string          `json:"error,omitempty"`
	Outcome   json.RawMessage `json:"outcome,omitempty"`
}

// Finish moves e into a terminal state at end.
func (e *Execution) Finish(status Status, end time.Time) {
	end = Timestamp(end)
	ms := end.Sub(e.StartTime).Milliseconds()
	e.Status = status
	e.EndTime = &end
	e.Duration = &ms
}

// Clone returns a deep copy of e.
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}
	c := *e
	c.EndTime = cloneTime(e.EndTime)
	if e.Duration != nil {
		d := *e.Duration
		c.Duration = &d
	}
	if e.Outcome != nil {
		c.Outcome = append(json.RawMessage(nil), e.Outcome...)
	}
	return &c
}

// Stats aggregates over all tasks and executions.
type Stats struct {
	TotalTasks      int     `json:"totalTasks"`
	ActiveTasks     int     `json:"activeTasks"`
	TotalExecutions int     `json:"totalExecutions"`
	SuccessRate     float64 `json:"successRate"`
	AvgDuration     float64 `json:"avgDuration"`
}

// ComputeStats builds Stats from the given tasks and executions.
func ComputeStats(tasks []*ScheduledTask, executions []*Execution) Stats {
	stats := Stats{
		TotalTasks:      len(tasks),
		TotalExecutions: len(executions),
	}
	for _, t := range tasks {
		if t.Enabled {
			stats.ActiveTasks++
		}
	}

	var completed, timed int
	var total int64
	for _, e := range executions {
		if e.Status == StatusCompleted {
			completed++
		}
		if e.Duration != nil {
			timed++
			total += *e.Duration
		}
	}
	if len(executions) > 0 {
		stats.SuccessRate = float64(completed) / float64(len(executions))
	}
	if timed > 0 {
		stats.AvgDuration = float64(total) / float64(timed)
	}
	return stats
}

// Timestamp normalizes t to UTC at millisecond precision, the resolution at
// which all task and execution times are stored.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
