package loam

import (
	"context"
	"sync"

	"github.com/aretw0/turnstile/pkg/domain"
)

// AuditLog keeps one document per entity holding its whole trail.
type AuditLog struct {
	mu   sync.Mutex
	docs *documents[[]domain.AuditRecord]
}

// Append rewrites the entity's trail with record at the end.
func (l *AuditLog) Append(ctx context.Context, record domain.AuditRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	record.Metadata = domain.CloneMap(record.Metadata)
	trail := append(append([]domain.AuditRecord(nil), l.docs.records[record.EntityID]...), record)
	return l.docs.save(ctx, record.EntityID, Header{Kind: string(record.Kind), Count: len(trail)}, trail)
}

// List returns the records of an entity in append order.
func (l *AuditLog) List(ctx context.Context, entityID string) ([]domain.AuditRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.docs.records[entityID]
	out := make([]domain.AuditRecord, len(src))
	for i, r := range src {
		r.Metadata = domain.CloneMap(r.Metadata)
		out[i] = r
	}
	return out, nil
}
