package service

import (
	"context"
	"log/slog"
	"time"

	"go-admin-auth/internal/model"
	"go-admin-auth/pkg/apierror"
)

const auditWriteTimeout = 3 * time.Second

type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, int, error)
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditService records security events. A nil *AuditService records nothing.
type AuditService struct {
	store AuditStore
	now   func() time.Time
}

func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store, now: time.Now}
}

// Record writes entry best effort. The write outlives a cancelled request but
// is bounded by its own timeout; failures are only logged.
func (s *AuditService) Record(ctx context.Context, entry model.AuditEntry) {
	if s == nil || s.store == nil {
		return
	}

	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = s.now().UTC()
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	if err := s.store.Log(writeCtx, entry); err != nil {
		slog.Warn("audit write failed", "action", entry.Action, "status", entry.Status, "error", err.Error())
	}
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 200 {
		query.Limit = 200
	}

	if !query.From.IsZero() && !query.To.IsZero() && query.From.After(query.To) {
		return nil, model.Meta{}, apierror.Validation("'from' must not be after 'to'", "from")
	}

	meta := model.Meta{Page: query.Page, Limit: query.Limit}
	if s == nil || s.store == nil {
		return []model.AuditEntry{}, meta, nil
	}

	items, total, err := s.store.Query(ctx, query)
	if err != nil {
		return nil, model.Meta{}, err
	}

	meta.Total = total
	if total > 0 {
		meta.TotalPages = (total + query.Limit - 1) / query.Limit
	}

	return items, meta, nil
}
