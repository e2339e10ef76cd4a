package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Prune deletes audit entries older than retention.
func (s *AuditService) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if s == nil || s.store == nil || retention <= 0 {
		return 0, nil
	}
	return s.store.Purge(ctx, s.now().UTC().Add(-retention))
}

// RunRetention prunes on every tick of schedule until ctx is cancelled.
func (s *AuditService) RunRetention(ctx context.Context, schedule cron.Schedule, retention time.Duration) {
	if s == nil || schedule == nil || retention <= 0 {
		return
	}

	for {
		now := s.now()
		timer := time.NewTimer(schedule.Next(now).Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}

		removed, err := s.Prune(ctx, retention)
		if err != nil {
			slog.Warn("audit retention failed", "error", err.Error())
			continue
		}
		if removed > 0 {
			slog.Info("audit entries pruned", "removed", removed, "retention", retention.String())
		}
	}
}
