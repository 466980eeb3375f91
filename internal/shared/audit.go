// Package shared holds cross-cutting persistence helpers used by the
// procurement workflow and the background jobs.
package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog is one row in audit_logs. Meta carries action-specific context
// such as the approval actor or the overdue cutoff.
type AuditLog struct {
	ActorID  string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger appends workflow actions to the audit trail. Failures here are
// surfaced to the caller, which decides whether the action itself fails.
type AuditLogger struct {
	pool *pgxpool.Pool
}

func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

const insertAuditSQL = `
INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`

// Record persists one audit entry. Action, entity and entity id identify the
// event; an empty At defers the timestamp to the database.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if l == nil {
		return errors.New("shared: audit logger not initialised")
	}
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return errors.New("shared: audit entry requires action, entity and entity id")
	}
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return fmt.Errorf("shared: encode audit meta: %w", err)
	}
	if _, err := l.pool.Exec(ctx, insertAuditSQL,
		entry.ActorID, entry.Action, entry.Entity, entry.EntityID, meta, entry.At); err != nil {
		return fmt.Errorf("shared: insert audit entry: %w", err)
	}
	return nil
}
