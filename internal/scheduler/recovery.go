package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/cadence/internal/task"
)

// Initialize loads every stored task and arms the enabled ones. A task that
// cannot be armed or saved is logged and skipped; it does not stop the
// others from loading. Calling Initialize again is a no-op.
func (s *Scheduler) Initialize(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case stateRunning:
		s.mu.Unlock()
		return nil
	case stateStopped:
		s.mu.Unlock()
		return fmt.Errorf("scheduler already shut down: %w", task.ErrUninitialized)
	}
	s.mu.Unlock()

	tasks, err := s.store.LoadTasks(ctx)
	if err != nil {
		return fmt.Errorf("loading tasks: %w", err)
	}

	s.mu.Lock()
	s.state = stateRunning
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	s.mu.Unlock()

	armed := 0
	for _, t := range tasks {
		if !t.Enabled {
			continue
		}
		if s.recoverTask(ctx, t) {
			armed++
		}
	}

	if s.retention.Enabled {
		s.startRetention()
	}
	s.updateMetrics()

	log.Info().
		Int("tasks", len(tasks)).
		Int("armed", armed).
		Bool("retention", s.retention.Enabled).
		Msg("Scheduler initialized")

	return nil
}

func (s *Scheduler) recoverTask(ctx context.Context, stored *task.ScheduledTask) bool {
	unlock := s.locks.Lock(stored.ID)
	defer unlock()

	// A command that reached the task first replaced or removed the loaded
	// copy and already armed whatever it left behind.
	s.mu.RLock()
	cur, ok := s.tasks[stored.ID]
	s.mu.RUnlock()
	if !ok || cur != stored {
		return ok && s.Armed(stored.ID)
	}

	t := stored.Clone()
	previous := t.NextRun
	h := s.arm(t)

	if !sameTime(previous, t.NextRun) {
		if err := s.store.SaveTask(ctx, t); err != nil {
			log.Error().
				Err(err).
				Str("task_id", t.ID).
				Msg("Failed to persist recovered task")
		}
	}

	if !s.install(t, h) {
		return false
	}
	return h != nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
