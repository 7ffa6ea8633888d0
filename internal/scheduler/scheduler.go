// Package scheduler is the authoritative registry of scheduled tasks. It arms
// timers for enabled tasks, runs them through the executor when they fire and
// keeps each task's run statistics current.
package scheduler

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/watzon/cadence/internal/events"
	"github.com/watzon/cadence/internal/keyed"
	"github.com/watzon/cadence/internal/metrics"
	"github.com/watzon/cadence/internal/schedule"
	"github.com/watzon/cadence/internal/store"
	"github.com/watzon/cadence/internal/task"
)

// Executor runs a single execution of a task.
type Executor interface {
	Execute(ctx context.Context, t *task.ScheduledTask) *task.Execution
	ReportOutcome(ctx context.Context, executionID string, outcome json.RawMessage) (*task.Execution, error)
	Shutdown(ctx context.Context) error
	InFlight() int
}

// Publisher receives task lifecycle events.
type Publisher interface {
	Publish(topic events.Topic, payload any) *events.Event
}

// RetentionConfig controls periodic removal of old executions.
type RetentionConfig struct {
	Enabled bool
	// MaxAge is the execution age to remove (default: store.DefaultRetention).
	MaxAge time.Duration
	// Interval is how often cleanup runs (default: 1 hour).
	Interval time.Duration
}

// Options holds the collaborators of a Scheduler.
type Options struct {
	Store     store.Store
	Executor  Executor
	Events    Publisher
	Strategy  *schedule.Strategy
	Timers    schedule.Timers
	Clock     func() time.Time
	NewID     func() string
	Retention RetentionConfig
}

type state int

const (
	stateNew state = iota
	stateRunning
	stateStopped
)

// Scheduler owns the task registry and the live timers.
type Scheduler struct {
	store     store.Store
	exec      Executor
	events    Publisher
	strategy  *schedule.Strategy
	timers    schedule.Timers
	now       func() time.Time
	newID     func() string
	retention RetentionConfig

	mu      sync.RWMutex
	state   state
	tasks   map[string]*task.ScheduledTask
	handles map[string]schedule.Handle

	// locks serializes mutations of a single task.
	locks keyed.Mutex

	ctx           context.Context
	cancel        context.CancelFunc
	stopRetention context.CancelFunc
	wg            sync.WaitGroup
	retentionWG   sync.WaitGroup
}

// New creates a Scheduler. Initialize must be called before any command.
func New(opts Options) (*Scheduler, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("scheduler: store is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("scheduler: executor is required")
	}
	if opts.Strategy == nil {
		strategy, err := schedule.NewStrategy("")
		if err != nil {
			return nil, err
		}
		opts.Strategy = strategy
	}
	if opts.Timers == nil {
		opts.Timers = schedule.NewRunner(opts.Strategy)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Retention.MaxAge <= 0 {
		opts.Retention.MaxAge = store.DefaultRetention
	}
	if opts.Retention.Interval <= 0 {
		opts.Retention.Interval = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:     opts.Store,
		exec:      opts.Executor,
		events:    opts.Events,
		strategy:  opts.Strategy,
		timers:    opts.Timers,
		now:       opts.Clock,
		newID:     opts.NewID,
		retention: opts.Retention,
		tasks:     make(map[string]*task.ScheduledTask),
		handles:   make(map[string]schedule.Handle),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Shutdown stops accepting fires, disarms every timer, stops the retention
// loop and cancels in-flight executions. It waits for fire handlers to
// return until ctx is done.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateRunning {
		s.state = stateStopped
		s.mu.Unlock()
		return nil
	}
	s.state = stateStopped
	handles := s.handles
	s.handles = make(map[string]schedule.Handle)
	stopRetention := s.stopRetention
	s.mu.Unlock()

	for _, h := range handles {
		h.Disarm()
	}
	s.timers.Stop()

	if stopRetention != nil {
		stopRetention()
		s.retentionWG.Wait()
	}

	err := s.exec.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("Shutdown deadline reached with task handlers still running")
	}
	s.cancel()
	s.updateMetrics()

	log.Info().Int("timers", len(handles)).Msg("Scheduler stopped")
	return err
}

// Tasks returns every registered task, newest first.
func (s *Scheduler) Tasks() ([]*task.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != stateRunning {
		return nil, task.ErrUninitialized
	}

	out := make([]*task.ScheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	slices.SortStableFunc(out, func(a, b *task.ScheduledTask) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Task returns a single task.
func (s *Scheduler) Task(id string) (*task.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != stateRunning {
		return nil, task.ErrUninitialized
	}
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, task.ErrNotFound)
	}
	return t.Clone(), nil
}

// Armed reports whether id currently has a live timer. An enabled task that
// is not armed has a schedule that could not be scheduled.
func (s *Scheduler) Armed(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.handles[id]
	return ok
}

// Executions returns stored executions, newest first, optionally filtered
// by task.
func (s *Scheduler) Executions(ctx context.Context, taskID string) ([]*task.Execution, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.LoadExecutions(ctx, taskID)
}

// Stats aggregates over all registered tasks and stored executions.
func (s *Scheduler) Stats(ctx context.Context) (task.Stats, error) {
	tasks, err := s.Tasks()
	if err != nil {
		return task.Stats{}, err
	}
	executions, err := s.store.LoadExecutions(ctx, "")
	if err != nil {
		return task.Stats{}, err
	}
	return task.ComputeStats(tasks, executions), nil
}

// ReportOutcome attaches the asynchronous result of the work layer to an
// execution. Status and timing are left unchanged.
func (s *Scheduler) ReportOutcome(ctx context.Context, executionID string, outcome json.RawMessage) (*task.Execution, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.exec.ReportOutcome(ctx, executionID, outcome)
}

func (s *Scheduler) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != stateRunning {
		return task.ErrUninitialized
	}
	return nil
}

func (s *Scheduler) publish(topic events.Topic, payload any) {
	if s.events != nil {
		s.events.Publish(topic, payload)
	}
}

func (s *Scheduler) updateMetrics() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	enabled := 0
	for _, t := range s.tasks {
		if t.Enabled {
			enabled++
		}
	}
	metrics.UpdateSchedulerStats(len(s.tasks), enabled, len(s.handles))
}
