package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"go-admin-auth/internal/model"
)

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Log(ctx context.Context, entry model.AuditEntry) error {
	var detailsJSON []byte
	if len(entry.Details) > 0 {
		var err error
		detailsJSON, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_entries
		 (action, occurred_at, actor_user_id, actor_email, actor_ip, status, resource, details, error_text)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.Action, entry.OccurredAt,
		entry.Actor.UserID, entry.Actor.Email, entry.Actor.IP,
		entry.Status, entry.Resource, detailsJSON, entry.Error)
	if err != nil {
		return fmt.Errorf("log audit entry: %w", err)
	}
	return nil
}

// Query expects a normalised query (page and limit already clamped).
func (r *AuditRepository) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, int, error) {
	where := make([]string, 0)
	args := make([]any, 0)
	argIdx := 1

	if action := strings.TrimSpace(query.Action); action != "" {
		where = append(where, fmt.Sprintf("lower(action) = lower($%d)", argIdx))
		args = append(args, action)
		argIdx++
	}
	if actorID := strings.TrimSpace(query.ActorID); actorID != "" {
		where = append(where, fmt.Sprintf("actor_user_id = $%d", argIdx))
		args = append(args, actorID)
		argIdx++
	}
	if status := strings.TrimSpace(query.Status); status != "" {
		where = append(where, fmt.Sprintf("lower(status) = lower($%d)", argIdx))
		args = append(args, status)
		argIdx++
	}
	if !query.From.IsZero() {
		where = append(where, fmt.Sprintf("occurred_at >= $%d", argIdx))
		args = append(args, query.From)
		argIdx++
	}
	if !query.To.IsZero() {
		where = append(where, fmt.Sprintf("occurred_at <= $%d", argIdx))
		args = append(args, query.To)
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_entries %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	offset := (query.Page - 1) * query.Limit
	dataQuery := fmt.Sprintf(
		`SELECT action, occurred_at, actor_user_id, actor_email, actor_ip,
		        status, resource, details, error_text
		 FROM audit_entries %s
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT $%d OFFSET $%d`, whereClause, argIdx, argIdx+1)
	args = append(args, query.Limit, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]model.AuditEntry, 0)
	for rows.Next() {
		var (
			e           model.AuditEntry
			detailsJSON []byte
		)
		if err := rows.Scan(
			&e.Action, &e.OccurredAt,
			&e.Actor.UserID, &e.Actor.Email, &e.Actor.IP,
			&e.Status, &e.Resource, &detailsJSON, &e.Error,
		); err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}

		e.OccurredAt = e.OccurredAt.UTC()
		if len(detailsJSON) > 0 {
			if jsonErr := json.Unmarshal(detailsJSON, &e.Details); jsonErr != nil {
				e.Details = nil
			}
		}

		entries = append(entries, e)
	}

	return entries, total, rows.Err()
}

// Purge deletes entries that occurred before cutoff and reports how many were
// removed.
func (r *AuditRepository) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_entries WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
