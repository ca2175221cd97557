package repos

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/esheo1787/qc-management-system/api/internal/models"
)

const insertAuditLogSQL = `
	INSERT INTO audit_logs (
		occurred_at, actor_user_id, subject, action,
		resource_type, resource_id, request_id, method, path,
		status_code, duration_ms, client_ip, user_agent, details
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7, $8, $9,
		$10, $11, $12, $13, $14
	)
`

// AuditRepo appends to the audit_logs table. Writes happen after the
// response, so callers log failures instead of surfacing them.
type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// WriteAuditLog inserts entries in a single round trip. A zero OccurredAt is
// stamped with the current time.
func (r *AuditRepo) WriteAuditLog(ctx context.Context, entries []models.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, entry := range entries {
		batch.Queue(insertAuditLogSQL, auditLogArgs(entry)...)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range entries {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func auditLogArgs(entry models.AuditLog) []any {
	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	return []any{
		occurredAt,
		entry.ActorUserID,
		nullIfEmpty(entry.Subject),
		entry.Action,
		entry.ResourceType,
		entry.ResourceID,
		nullIfEmpty(entry.RequestID),
		nullIfEmpty(entry.Method),
		nullIfEmpty(entry.Path),
		entry.StatusCode,
		entry.DurationMS,
		nullIfEmpty(entry.ClientIP),
		nullIfEmpty(entry.UserAgent),
		entry.Details,
	}
}
