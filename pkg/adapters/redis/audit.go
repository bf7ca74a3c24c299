package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/turnstile/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// AuditLog implements ports.AuditLog as one append-only Redis list per entity.
type AuditLog struct {
	client *backend.Client
	prefix string
}

// NewAuditLog creates an audit log sharing the client (and prefix options) of a Store.
func NewAuditLog(client *backend.Client, opts ...Option) *AuditLog {
	cfg := NewFromClient(client, opts...)
	return &AuditLog{client: client, prefix: cfg.prefix}
}

func (l *AuditLog) key(entityID string) string {
	return l.prefix + "audit:" + entityID
}

// Append pushes the record to the tail of the entity's list.
func (l *AuditLog) Append(ctx context.Context, record domain.AuditRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	if err := l.client.RPush(ctx, l.key(record.EntityID), data).Err(); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// List returns the records of an entity in append order.
func (l *AuditLog) List(ctx context.Context, entityID string) ([]domain.AuditRecord, error) {
	raw, err := l.client.LRange(ctx, l.key(entityID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}

	records := make([]domain.AuditRecord, 0, len(raw))
	for _, item := range raw {
		var r domain.AuditRecord
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit record: %w", err)
		}
		records = append(records, r)
	}
	return records, nil
}
