package scheduler

import (
	"github.com/rs/zerolog/log"

	"github.com/watzon/cadence/internal/task"
)

// fireFunc returns the timer callback for a task. Each fire runs on its own
// goroutine, so executions of the same task may overlap.
func (s *Scheduler) fireFunc(id string) func() {
	return func() {
		s.mu.RLock()
		if s.state != stateRunning {
			s.mu.RUnlock()
			return
		}
		s.wg.Add(1)
		s.mu.RUnlock()

		go func() {
			defer s.wg.Done()
			s.fire(id)
		}()
	}
}

func (s *Scheduler) fire(id string) {
	s.mu.RLock()
	t, ok := s.tasks[id]
	if ok {
		t = t.Clone()
	}
	s.mu.RUnlock()

	// A timer may fire once more after racing a delete or disable.
	if !ok || !t.Enabled {
		log.Debug().Str("task_id", id).Msg("Ignoring fire for missing or disabled task")
		return
	}

	exec := s.exec.Execute(s.ctx, t)
	if exec.Status == task.StatusCancelled {
		return
	}

	once := t.Schedule.Type == task.ScheduleTypeOnce
	_, err := s.update(s.ctx, id, func(cur *task.ScheduledTask) task.Update {
		runs := cur.RunCount + 1
		successes := cur.SuccessCount
		if exec.Status == task.StatusCompleted {
			successes++
		}
		lastRun := s.now()

		u := task.Update{
			RunCount:     &runs,
			SuccessCount: &successes,
			LastRun:      &lastRun,
		}
		if once {
			disabled := false
			u.Enabled = &disabled
		}
		return u
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("task_id", id).
			Str("execution_id", exec.ID).
			Msg("Failed to record task run")
	}
}
