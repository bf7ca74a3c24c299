package ports

import (
	"context"

	"github.com/aretw0/turnstile/pkg/domain"
)

// EntityStore defines the storage collaborator of the engine.
// The single-row CompareAndSwap is the serialization point for transitions.
type EntityStore interface {
	// Create persists a new entity.
	// Returns domain.ErrAlreadyExists if the ID is taken.
	Create(ctx context.Context, entity *domain.Entity) error

	// Load retrieves an entity by ID.
	// Returns domain.ErrNotFound if the entity does not exist.
	Load(ctx context.Context, id string) (*domain.Entity, error)

	// CompareAndSwap applies m only if the stored status still equals m.From.
	// Returns domain.ErrConcurrencyConflict when it does not, and
	// domain.ErrNotFound when the entity is gone.
	CompareAndSwap(ctx context.Context, m domain.Mutation) (*domain.Entity, error)

	// Patch merges fields into the payload without touching the status.
	Patch(ctx context.Context, id string, fields map[string]any) (*domain.Entity, error)

	// ListChildren returns entities of the given kind whose ParentID is parentID.
	ListChildren(ctx context.Context, parentID string, kind domain.Kind) ([]*domain.Entity, error)
}

// AuditLog is append-only: records are never mutated or deleted.
type AuditLog interface {
	Append(ctx context.Context, record domain.AuditRecord) error

	// List returns the records of an entity in append order.
	List(ctx context.Context, entityID string) ([]domain.AuditRecord, error)
}

// Inbox stores in-app notification rows.
type Inbox interface {
	// Put stores item unless one with the same recipient and dedupe key
	// exists, in which case the existing row is returned.
	Put(ctx context.Context, item domain.InboxItem) (domain.InboxItem, error)

	// List returns the recipient's items, newest first.
	List(ctx context.Context, recipientID string) ([]domain.InboxItem, error)
}

// Sender delivers a notification job through one channel provider.
type Sender interface {
	Send(ctx context.Context, job domain.NotificationJob) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, job domain.NotificationJob) error

// Send calls f(ctx, job).
func (f SenderFunc) Send(ctx context.Context, job domain.NotificationJob) error {
	return f(ctx, job)
}
