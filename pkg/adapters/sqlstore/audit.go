package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/turnstile/pkg/domain"
)

// AuditLog is an append-only ports.AuditLog table.
type AuditLog struct {
	db      *sql.DB
	dialect Dialect
}

// NewAuditLog wraps a migrated database.
func NewAuditLog(db *sql.DB, d Dialect) *AuditLog {
	return &AuditLog{db: db, dialect: d}
}

// Append inserts a record. Records are never updated or deleted.
func (l *AuditLog) Append(ctx context.Context, r domain.AuditRecord) error {
	meta, err := encodePayload(r.Metadata)
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx, l.dialect.Rebind(`
		INSERT INTO audit_records (id, entity_id, kind, actor_id, from_state, to_state, occurred_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.EntityID, string(r.Kind), r.ActorID, string(r.From), string(r.To), r.OccurredAt.UnixNano(), meta,
	)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// List returns an entity's records in append order.
func (l *AuditLog) List(ctx context.Context, entityID string) ([]domain.AuditRecord, error) {
	rows, err := l.db.QueryContext(ctx, l.dialect.Rebind(`
		SELECT id, entity_id, kind, actor_id, from_state, to_state, occurred_at, metadata
		FROM audit_records WHERE entity_id = ? ORDER BY seq`), entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.AuditRecord, 0)
	for rows.Next() {
		var (
			r              domain.AuditRecord
			kind, from, to string
			occurredAt     int64
			meta           string
		)
		if err := rows.Scan(&r.ID, &r.EntityID, &kind, &r.ActorID, &from, &to, &occurredAt, &meta); err != nil {
			return nil, err
		}
		r.Kind = domain.Kind(kind)
		r.From = domain.State(from)
		r.To = domain.State(to)
		r.OccurredAt = time.Unix(0, occurredAt).UTC()
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
