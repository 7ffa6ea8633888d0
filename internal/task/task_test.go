package task

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func validDraft() Draft {
	return Draft{
		Name:   "daily digest",
		Prompt: "summarize yesterday",
		Schedule: Schedule{
			Type:     ScheduleTypeInterval,
			Interval: &Interval{Value: 1, Unit: UnitHours},
		},
		Enabled: true,
	}
}

func TestDraft_Normalize(t *testing.T) {
	t.Run("sanitizes display fields", func(t *testing.T) {
		d := validDraft()
		d.Name = `<script>alert(1)</script>Tom & Jerry`
		d.Description = `<b>bold</b> text`

		require.NoError(t, d.Normalize())
		assert.Equal(t, "Tom & Jerry", d.Name)
		assert.Equal(t, "bold text", d.Description)
	})

	t.Run("drops payload of other schedule types", func(t *testing.T) {
		d := validDraft()
		d.Schedule.Cron = "* * * * *"
		d.Schedule.Timezone = "UTC"

		require.NoError(t, d.Normalize())
		assert.Empty(t, d.Schedule.Cron)
		assert.Empty(t, d.Schedule.Timezone)
		assert.NotNil(t, d.Schedule.Interval)
	})

	t.Run("truncates executeAt to milliseconds", func(t *testing.T) {
		d := validDraft()
		at := time.Date(2030, 1, 2, 3, 4, 5, 123456789, time.FixedZone("x", 3600))
		d.Schedule = Schedule{Type: ScheduleTypeOnce, ExecuteAt: &at}

		require.NoError(t, d.Normalize())
		assert.Equal(t, time.Date(2030, 1, 2, 2, 4, 5, 123000000, time.UTC), *d.Schedule.ExecuteAt)
	})

	tests := []struct {
		name    string
		mutate  func(d *Draft)
		wantErr error
	}{
		{"missing name", func(d *Draft) { d.Name = "" }, ErrValidation},
		{"name only markup", func(d *Draft) { d.Name = "<i></i>" }, ErrValidation},
		{"missing prompt", func(d *Draft) { d.Prompt = "" }, ErrValidation},
		{"unknown type", func(d *Draft) { d.Schedule.Type = "weekly" }, ErrValidation},
		{"zero interval", func(d *Draft) { d.Schedule.Interval.Value = 0 }, ErrValidation},
		{"bad unit", func(d *Draft) { d.Schedule.Interval.Unit = "seconds" }, ErrValidation},
		{"interval without payload", func(d *Draft) { d.Schedule.Interval = nil }, ErrInvalidSchedule},
		{"cron without expression", func(d *Draft) { d.Schedule = Schedule{Type: ScheduleTypeCron} }, ErrInvalidSchedule},
		{"cron with bad timezone", func(d *Draft) {
			d.Schedule = Schedule{Type: ScheduleTypeCron, Cron: "* * * * *", Timezone: "Mars/Olympus"}
		}, ErrInvalidSchedule},
		{"once without executeAt", func(d *Draft) { d.Schedule = Schedule{Type: ScheduleTypeOnce} }, ErrInvalidSchedule},
		{"interval overflows duration", func(d *Draft) {
			d.Schedule.Interval = &Interval{Value: 20000000, Unit: UnitWeeks}
		}, ErrInvalidSchedule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDraft()
			tt.mutate(&d)
			err := d.Normalize()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}

	t.Run("malformed cron syntax is accepted", func(t *testing.T) {
		d := validDraft()
		d.Schedule = Schedule{Type: ScheduleTypeCron, Cron: "not a cron"}
		require.NoError(t, d.Normalize())
	})
}

func TestUpdate_Apply(t *testing.T) {
	base := &ScheduledTask{
		ID:         "t1",
		Name:       "original",
		Prompt:     "hello",
		MCPServers: []string{"fs"},
		Schedule:   Schedule{Type: ScheduleTypeInterval, Interval: &Interval{Value: 5, Unit: UnitMinutes}},
		Enabled:    true,
	}

	t.Run("merges set fields only", func(t *testing.T) {
		got, err := Update{Name: ptr("renamed"), Enabled: ptr(false)}.Apply(base)
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Name)
		assert.False(t, got.Enabled)
		assert.Equal(t, "hello", got.Prompt)
		assert.Equal(t, []string{"fs"}, got.MCPServers)

		assert.Equal(t, "original", base.Name, "base must not be mutated")
		assert.True(t, base.Enabled)
	})

	t.Run("replaces schedule", func(t *testing.T) {
		got, err := Update{Schedule: &Schedule{Type: ScheduleTypeCron, Cron: " 0 9 * * * ", Timezone: "UTC"}}.Apply(base)
		require.NoError(t, err)
		assert.Equal(t, ScheduleTypeCron, got.Schedule.Type)
		assert.Equal(t, "0 9 * * *", got.Schedule.Cron)
		assert.Nil(t, got.Schedule.Interval)
	})

	t.Run("rejects invalid result", func(t *testing.T) {
		_, err := Update{Prompt: ptr("")}.Apply(base)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("stats fields", func(t *testing.T) {
		now := time.Date(2025, 5, 1, 12, 0, 0, 999999, time.UTC)
		got, err := Update{RunCount: ptr(uint64(3)), SuccessCount: ptr(uint64(2)), LastRun: &now}.Apply(base)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), got.RunCount)
		assert.Equal(t, uint64(2), got.SuccessCount)
		assert.Equal(t, Timestamp(now), *got.LastRun)
	})
}

func TestComputeStats(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, Stats{}, ComputeStats(nil, nil))
	})

	t.Run("aggregates", func(t *testing.T) {
		tasks := []*ScheduledTask{{Enabled: true}, {Enabled: false}, {Enabled: true}}
		execs := []*Execution{
			{Status: StatusCompleted, Duration: ptr(int64(100))},
			{Status: StatusFailed, Duration: ptr(int64(300))},
			{Status: StatusRunning},
			{Status: StatusCompleted, Duration: ptr(int64(200))},
		}

		got := ComputeStats(tasks, execs)
		assert.Equal(t, 3, got.TotalTasks)
		assert.Equal(t, 2, got.ActiveTasks)
		assert.Equal(t, 4, got.TotalExecutions)
		assert.InDelta(t, 0.5, got.SuccessRate, 1e-9)
		assert.InDelta(t, 200.0, got.AvgDuration, 1e-9)
	})
}

func TestExecution_Finish(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	e := &Execution{ID: "e1", StartTime: start, Status: StatusRunning}

	e.Finish(StatusCompleted, start.Add(1500*time.Millisecond+300*time.Microsecond))

	assert.Equal(t, StatusCompleted, e.Status)
	require.NotNil(t, e.EndTime)
	require.NotNil(t, e.Duration)
	assert.Equal(t, int64(1500), *e.Duration)
	assert.True(t, e.Status.Terminal())
}

func TestIntervalUnit_Duration(t *testing.T) {
	assert.Equal(t, 60*time.Second, UnitMinutes.Duration())
	assert.Equal(t, time.Hour, UnitHours.Duration())
	assert.Equal(t, 24*time.Hour, UnitDays.Duration())
	assert.Equal(t, 7*24*time.Hour, UnitWeeks.Duration())
	assert.Zero(t, IntervalUnit("fortnights").Duration())
}

func TestInterval_Period(t *testing.T) {
	week := 7 * 24 * time.Hour

	assert.Equal(t, 90*time.Minute, Interval{Value: 90, Unit: UnitMinutes}.Period())
	assert.Equal(t, 15000*week, Interval{Value: 15000, Unit: UnitWeeks}.Period())

	assert.Zero(t, Interval{Value: 20000000, Unit: UnitWeeks}.Period())
	assert.Zero(t, Interval{Value: math.MaxInt, Unit: UnitMinutes}.Period())
	assert.Zero(t, Interval{Value: -1, Unit: UnitHours}.Period())
	assert.Zero(t, Interval{Value: 1, Unit: "fortnights"}.Period())
}
