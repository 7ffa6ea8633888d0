// Package schedule turns task schedules into fire times and live timers.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/watzon/cadence/internal/task"
)

// DefaultTimezone is used for cron schedules that do not declare a timezone.
// Persisted tasks rely on it, so it must not change.
const DefaultTimezone = "Asia/Shanghai"

// ErrStale is returned when arming a one-time schedule whose time has passed.
var ErrStale = errors.New("one-time schedule is in the past")

// Strategy computes next-run times for task schedules.
type Strategy struct {
	parser      cron.Parser
	defaultZone string
}

// NewStrategy creates a strategy that evaluates zone-less cron expressions in
// defaultZone. An empty defaultZone selects DefaultTimezone.
func NewStrategy(defaultZone string) (*Strategy, error) {
	if defaultZone == "" {
		defaultZone = DefaultTimezone
	}
	if _, err := time.LoadLocation(defaultZone); err != nil {
		return nil, fmt.Errorf("loading default timezone: %w", err)
	}

	return &Strategy{
		parser: cron.NewParser(
			cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		),
		defaultZone: defaultZone,
	}, nil
}

// NormalizeCron anchors five-field expressions to second zero so they can be
// evaluated by the six-field parser. Other inputs are returned trimmed.
func NormalizeCron(expr string) string {
	expr = strings.TrimSpace(expr)
	if len(strings.Fields(expr)) == 5 {
		return "0 " + expr
	}
	return expr
}

// ParseCron parses a cron expression in the given timezone.
func (s *Strategy) ParseCron(expr, timezone string) (cron.Schedule, error) {
	if timezone == "" {
		timezone = s.defaultZone
	}
	spec := fmt.Sprintf("CRON_TZ=%s %s", timezone, NormalizeCron(expr))

	sched, err := s.parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing cron expression %q: %w", task.ErrInvalidSchedule, expr, err)
	}
	return sched, nil
}

// NextRun returns the next fire time of sched after now, or nil when the
// schedule will not fire again.
func (s *Strategy) NextRun(sched task.Schedule, now time.Time) (*time.Time, error) {
	switch sched.Type {
	case task.ScheduleTypeInterval:
		period, err := intervalPeriod(sched)
		if err != nil {
			return nil, err
		}
		next := task.Timestamp(now.Add(period))
		return &next, nil

	case task.ScheduleTypeCron:
		cs, err := s.ParseCron(sched.Cron, sched.Timezone)
		if err != nil {
			return nil, err
		}
		next := cs.Next(now)
		if next.IsZero() {
			return nil, nil
		}
		next = task.Timestamp(next)
		return &next, nil

	case task.ScheduleTypeOnce:
		if sched.ExecuteAt == nil || !sched.ExecuteAt.After(now) {
			return nil, nil
		}
		next := task.Timestamp(*sched.ExecuteAt)
		return &next, nil

	default:
		return nil, fmt.Errorf("%w: unknown schedule type %q", task.ErrInvalidSchedule, sched.Type)
	}
}

func intervalPeriod(sched task.Schedule) (time.Duration, error) {
	if sched.Interval == nil {
		return 0, fmt.Errorf("%w: interval schedule requires interval", task.ErrInvalidSchedule)
	}
	period := sched.Interval.Period()
	if period <= 0 {
		return 0, fmt.Errorf("%w: interval must be positive, got %d %s",
			task.ErrInvalidSchedule, sched.Interval.Value, sched.Interval.Unit)
	}
	return period, nil
}
