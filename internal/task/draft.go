package task

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

var (
	validate = validator.New(validator.WithRequiredStructEnabled())
	sanitize = bluemonday.StrictPolicy()
)

// Draft is the caller-supplied portion of a new task. Identity, timestamps
// and counters are assigned by the scheduler.
type Draft struct {
	Name        string   `json:"name" yaml:"name" validate:"required,max=200"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty" validate:"max=2000"`
	Prompt      string   `json:"prompt" yaml:"prompt" validate:"required"`
	AIProvider  string   `json:"aiProvider" yaml:"aiProvider"`
	Model       string   `json:"model" yaml:"model"`
	MCPServers  []string `json:"mcpServers" yaml:"mcpServers" validate:"dive,required"`
	Schedule    Schedule `json:"schedule" yaml:"schedule"`
	Enabled     bool     `json:"enabled" yaml:"enabled"`
}

// Normalize sanitizes display fields and validates the draft.
func (d *Draft) Normalize() error {
	d.Name = cleanText(d.Name)
	d.Description = cleanText(d.Description)
	d.Schedule = d.Schedule.normalized()

	if err := validate.Struct(d); err != nil {
		return validationError(err)
	}
	return d.Schedule.Validate()
}

// Update is a partial modification of a task. Nil fields are left unchanged.
// The run statistics fields are set only by the scheduler.
type Update struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Prompt      *string   `json:"prompt,omitempty"`
	AIProvider  *string   `json:"aiProvider,omitempty"`
	Model       *string   `json:"model,omitempty"`
	MCPServers  *[]string `json:"mcpServers,omitempty"`
	Schedule    *Schedule `json:"schedule,omitempty"`
	Enabled     *bool     `json:"enabled,omitempty"`

	RunCount     *uint64    `json:"-"`
	SuccessCount *uint64    `json:"-"`
	LastRun      *time.Time `json:"-"`
}

// Apply merges u into a copy of t and validates the result.
func (u Update) Apply(t *ScheduledTask) (*ScheduledTask, error) {
	next := t.Clone()
	if u.Name != nil {
		next.Name = cleanText(*u.Name)
	}
	if u.Description != nil {
		next.Description = cleanText(*u.Description)
	}
	if u.Prompt != nil {
		next.Prompt = *u.Prompt
	}
	if u.AIProvider != nil {
		next.AIProvider = *u.AIProvider
	}
	if u.Model != nil {
		next.Model = *u.Model
	}
	if u.MCPServers != nil {
		next.MCPServers = append([]string(nil), (*u.MCPServers)...)
	}
	if u.Schedule != nil {
		next.Schedule = u.Schedule.clone().normalized()
	}
	if u.Enabled != nil {
		next.Enabled = *u.Enabled
	}
	if u.RunCount != nil {
		next.RunCount = *u.RunCount
	}
	if u.SuccessCount != nil {
		next.SuccessCount = *u.SuccessCount
	}
	if u.LastRun != nil {
		lr := Timestamp(*u.LastRun)
		next.LastRun = &lr
	}

	d := next.Draft()
	if err := validate.Struct(&d); err != nil {
		return nil, validationError(err)
	}
	if err := next.Schedule.Validate(); err != nil {
		return nil, err
	}
	return next, nil
}

// Draft returns the caller-editable fields of t.
func (t *ScheduledTask) Draft() Draft {
	return Draft{
		Name:        t.Name,
		Description: t.Description,
		Prompt:      t.Prompt,
		AIProvider:  t.AIProvider,
		Model:       t.Model,
		MCPServers:  t.MCPServers,
		Schedule:    t.Schedule,
		Enabled:     t.Enabled,
	}
}

// Validate checks that the payload for the schedule's type is present.
// Cron syntax is not checked here; a malformed expression is accepted
// and left unarmed by the scheduler.
func (s Schedule) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchedule, validationError(err))
	}

	switch s.Type {
	case ScheduleTypeInterval:
		if s.Interval == nil {
			return fmt.Errorf("%w: interval schedule requires interval", ErrInvalidSchedule)
		}
		if s.Interval.Period() <= 0 {
			return fmt.Errorf("%w: interval of %d %s is too long", ErrInvalidSchedule, s.Interval.Value, s.Interval.Unit)
		}
	case ScheduleTypeCron:
		if strings.TrimSpace(s.Cron) == "" {
			return fmt.Errorf("%w: cron schedule requires cron expression", ErrInvalidSchedule)
		}
		if s.Timezone != "" {
			if _, err := time.LoadLocation(s.Timezone); err != nil {
				return fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, s.Timezone)
			}
		}
	case ScheduleTypeOnce:
		if s.ExecuteAt == nil {
			return fmt.Errorf("%w: once schedule requires executeAt", ErrInvalidSchedule)
		}
	}
	return nil
}

// normalized drops payload fields that do not belong to the schedule's type
// and normalizes ExecuteAt.
func (s Schedule) normalized() Schedule {
	out := Schedule{Type: s.Type}
	switch s.Type {
	case ScheduleTypeInterval:
		out.Interval = s.Interval
	case ScheduleTypeCron:
		out.Cron = strings.TrimSpace(s.Cron)
		out.Timezone = s.Timezone
	case ScheduleTypeOnce:
		if s.ExecuteAt != nil {
			at := Timestamp(*s.ExecuteAt)
			out.ExecuteAt = &at
		}
	}
	return out
}

func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(sanitize.Sanitize(s)))
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}
