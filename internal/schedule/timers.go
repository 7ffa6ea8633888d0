package schedule

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/watzon/cadence/internal/task"
)

// Handle is a live timer created by Timers.Arm.
type Handle interface {
	// Disarm stops the timer. It is safe to call more than once.
	Disarm()
}

// Timers arms recurring and one-shot timers for task schedules.
type Timers interface {
	Arm(sched task.Schedule, fire func()) (Handle, error)
	Stop()
}

// Runner implements Timers with tickers for intervals, a shared cron runner
// for cron expressions and one-shot timers for once schedules.
type Runner struct {
	strategy *Strategy
	now      func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

// NewRunner creates a Runner using strategy for cron parsing.
func NewRunner(strategy *Strategy) *Runner {
	return &Runner{
		strategy: strategy,
		now:      time.Now,
		cron:     cron.New(cron.WithLocation(time.UTC)),
	}
}

// Arm starts a timer that calls fire according to sched.
func (r *Runner) Arm(sched task.Schedule, fire func()) (Handle, error) {
	switch sched.Type {
	case task.ScheduleTypeInterval:
		period, err := intervalPeriod(sched)
		if err != nil {
			return nil, err
		}
		return newTicker(period, fire), nil

	case task.ScheduleTypeCron:
		cs, err := r.strategy.ParseCron(sched.Cron, sched.Timezone)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		id := r.cron.Schedule(cs, cron.FuncJob(fire))
		if !r.started {
			r.cron.Start()
			r.started = true
		}
		return &cronHandle{cron: r.cron, id: id}, nil

	case task.ScheduleTypeOnce:
		if sched.ExecuteAt == nil {
			return nil, fmt.Errorf("%w: once schedule requires executeAt", task.ErrInvalidSchedule)
		}
		delay := sched.ExecuteAt.Sub(r.now())
		if delay <= 0 {
			return nil, ErrStale
		}
		return &onceHandle{timer: time.AfterFunc(delay, fire)}, nil

	default:
		return nil, fmt.Errorf("%w: unknown schedule type %q", task.ErrInvalidSchedule, sched.Type)
	}
}

// Stop halts the cron runner. Jobs already running are not waited for.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		r.cron.Stop()
		r.started = false
	}
}

type tickerHandle struct {
	stop chan struct{}
	once sync.Once
}

func newTicker(period time.Duration, fire func()) *tickerHandle {
	h := &tickerHandle{stop: make(chan struct{})}
	ticker := time.NewTicker(period)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				fire()
			}
		}
	}()

	return h
}

func (h *tickerHandle) Disarm() {
	h.once.Do(func() { close(h.stop) })
}

type cronHandle struct {
	cron *cron.Cron
	id   cron.EntryID
	once sync.Once
}

func (h *cronHandle) Disarm() {
	h.once.Do(func() { h.cron.Remove(h.id) })
}

type onceHandle struct {
	timer *time.Timer
}

func (h *onceHandle) Disarm() {
	h.timer.Stop()
}
