package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/cadence/internal/metrics"
)

func (s *Scheduler) startRetention() {
	ctx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	s.stopRetention = cancel
	s.mu.Unlock()

	s.retentionWG.Add(1)
	go func() {
		defer s.retentionWG.Done()
		s.retentionLoop(ctx)
	}()
}

func (s *Scheduler) retentionLoop(ctx context.Context) {
	ticker := time.NewTicker(s.retention.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup(ctx)
		}
	}
}

func (s *Scheduler) cleanup(ctx context.Context) {
	deleted, err := s.store.CleanupOldExecutions(ctx, s.retention.MaxAge)
	if deleted > 0 {
		metrics.RecordCleanup(deleted)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to clean up old executions")
		return
	}
	log.Debug().
		Int("deleted", deleted).
		Dur("max_age", s.retention.MaxAge).
		Msg("Retention cleanup finished")
}
