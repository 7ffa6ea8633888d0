package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/watzon/cadence/internal/events"
	"github.com/watzon/cadence/internal/schedule"
	"github.com/watzon/cadence/internal/task"
)

// CreateTask validates d, registers the new task and arms it when enabled.
func (s *Scheduler) CreateTask(ctx context.Context, d task.Draft) (*task.ScheduledTask, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := d.Normalize(); err != nil {
		return nil, err
	}

	now := task.Timestamp(s.now())
	t := &task.ScheduledTask{
		ID:          s.newID(),
		Name:        d.Name,
		Description: d.Description,
		Prompt:      d.Prompt,
		AIProvider:  d.AIProvider,
		Model:       d.Model,
		MCPServers:  d.MCPServers,
		Schedule:    d.Schedule,
		Enabled:     d.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.MCPServers == nil {
		t.MCPServers = []string{}
	}

	unlock := s.locks.Lock(t.ID)
	defer unlock()

	h := s.arm(t)
	if err := s.store.SaveTask(ctx, t); err != nil {
		disarm(h)
		return nil, fmt.Errorf("saving task: %w", err)
	}
	if !s.install(t, h) {
		return nil, task.ErrUninitialized
	}

	log.Info().
		Str("task_id", t.ID).
		Str("task_name", t.Name).
		Str("schedule_type", string(t.Schedule.Type)).
		Bool("enabled", t.Enabled).
		Msg("Task created")

	s.publish(events.TopicTaskCreated, t.Clone())
	return t.Clone(), nil
}

// UpdateTask merges u into the task, then disarms and re-arms it from the
// merged state regardless of which fields changed.
func (s *Scheduler) UpdateTask(ctx context.Context, id string, u task.Update) (*task.ScheduledTask, error) {
	return s.update(ctx, id, func(*task.ScheduledTask) task.Update { return u })
}

// ToggleTask flips the enabled flag of a task.
func (s *Scheduler) ToggleTask(ctx context.Context, id string) (*task.ScheduledTask, error) {
	return s.update(ctx, id, func(cur *task.ScheduledTask) task.Update {
		enabled := !cur.Enabled
		return task.Update{Enabled: &enabled}
	})
}

// DeleteTask disarms and removes a task together with its executions. When
// storage fails the task is restored and re-armed.
func (s *Scheduler) DeleteTask(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("task %s: %w", id, task.ErrNotFound)
	}
	disarm(s.handles[id])
	delete(s.handles, id)
	delete(s.tasks, id)
	s.mu.Unlock()
	s.updateMetrics()

	if err := s.store.DeleteTask(ctx, id); err != nil {
		s.restore(ctx, t)
		return fmt.Errorf("deleting task: %w", err)
	}

	log.Info().
		Str("task_id", id).
		Str("task_name", t.Name).
		Msg("Task deleted")

	s.publish(events.TopicTaskDeleted, events.TaskRef{TaskID: id})
	return nil
}

// restore puts back a task whose deletion failed. The task file may already
// be gone when only its executions failed to delete, so it is written again.
func (s *Scheduler) restore(ctx context.Context, t *task.ScheduledTask) {
	t = t.Clone()
	h := s.arm(t)
	if err := s.store.SaveTask(ctx, t); err != nil {
		log.Error().
			Err(err).
			Str("task_id", t.ID).
			Msg("Failed to rewrite task after failed delete")
	}
	s.install(t, h)
}

// update applies the change computed by build from the current task while
// holding the task's lock, so concurrent writers never lose each other's
// changes.
func (s *Scheduler) update(ctx context.Context, id string, build func(cur *task.ScheduledTask) task.Update) (*task.ScheduledTask, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.RLock()
	cur, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, task.ErrNotFound)
	}

	next, err := build(cur).Apply(cur)
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = task.Timestamp(s.now())

	h := s.arm(next)
	if err := s.store.SaveTask(ctx, next); err != nil {
		disarm(h)
		return nil, fmt.Errorf("saving task: %w", err)
	}
	if !s.install(next, h) {
		return nil, task.ErrUninitialized
	}

	log.Debug().
		Str("task_id", id).
		Bool("enabled", next.Enabled).
		Bool("armed", h != nil).
		Msg("Task updated")

	s.publish(events.TopicTaskUpdated, next.Clone())
	return next.Clone(), nil
}

// arm starts a timer for t when it is enabled and sets t.NextRun to match.
// Scheduling failures are logged and leave t unarmed with no NextRun; the
// enabled flag is never changed here.
func (s *Scheduler) arm(t *task.ScheduledTask) schedule.Handle {
	t.NextRun = nil
	if !t.Enabled {
		return nil
	}

	logger := log.With().
		Str("task_id", t.ID).
		Str("task_name", t.Name).
		Str("schedule_type", string(t.Schedule.Type)).
		Logger()

	h, err := s.timers.Arm(t.Schedule, s.fireFunc(t.ID))
	if err != nil {
		if errors.Is(err, schedule.ErrStale) {
			logger.Warn().Msg("One-time task is in the past, not scheduling")
		} else {
			logger.Error().Err(err).Msg("Failed to schedule task")
		}
		return nil
	}

	next, err := s.strategy.NextRun(t.Schedule, s.now())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to compute next run")
	}
	t.NextRun = next
	return h
}

// install publishes t to the registry and swaps in its timer. It returns
// false, disarming h, when the scheduler has been shut down meanwhile.
func (s *Scheduler) install(t *task.ScheduledTask, h schedule.Handle) bool {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		disarm(h)
		return false
	}
	disarm(s.handles[t.ID])
	delete(s.handles, t.ID)
	if h != nil {
		s.handles[t.ID] = h
	}
	s.tasks[t.ID] = t
	s.mu.Unlock()

	s.updateMetrics()
	return true
}

func disarm(h schedule.Handle) {
	if h != nil {
		h.Disarm()
	}
}
