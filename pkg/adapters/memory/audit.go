package memory

import (
	"context"
	"sync"

	"github.com/aretw0/turnstile/pkg/domain"
)

// AuditLog implements ports.AuditLog in memory.
type AuditLog struct {
	mu      sync.RWMutex
	records map[string][]domain.AuditRecord
}

// NewAuditLog creates an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{records: make(map[string][]domain.AuditRecord)}
}

// Append adds a copy of the record.
func (l *AuditLog) Append(ctx context.Context, record domain.AuditRecord) error {
	record.Metadata = domain.CloneMap(record.Metadata)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[record.EntityID] = append(l.records[record.EntityID], record)
	return nil
}

// List returns the records of an entity in append order.
func (l *AuditLog) List(ctx context.Context, entityID string) ([]domain.AuditRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	src := l.records[entityID]
	out := make([]domain.AuditRecord, len(src))
	for i, r := range src {
		r.Metadata = domain.CloneMap(r.Metadata)
		out[i] = r
	}
	return out, nil
}
