package loam

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/aretw0/turnstile/pkg/domain"
)

// Store implements ports.EntityStore as one document per entity.
// It assumes a single process owns the directory; the mutex makes
// CompareAndSwap atomic within that process.
type Store struct {
	mu   sync.Mutex
	docs *documents[*domain.Entity]
}

// Backend bundles the three document repositories kept under one directory.
type Backend struct {
	Store *Store
	Audit *AuditLog
	Inbox *Inbox
}

// Open loads (or initializes) entities/, audit/ and inbox/ under dir.
func Open(ctx context.Context, dir string) (*Backend, error) {
	entities, err := openDocuments[*domain.Entity](ctx, filepath.Join(dir, "entities"))
	if err != nil {
		return nil, err
	}
	audit, err := openDocuments[[]domain.AuditRecord](ctx, filepath.Join(dir, "audit"))
	if err != nil {
		return nil, err
	}
	inbox, err := openDocuments[[]domain.InboxItem](ctx, filepath.Join(dir, "inbox"))
	if err != nil {
		return nil, err
	}
	return &Backend{
		Store: &Store{docs: entities},
		Audit: &AuditLog{docs: audit},
		Inbox: &Inbox{docs: inbox},
	}, nil
}

func entityHeader(e *domain.Entity) Header {
	return Header{Kind: string(e.Kind), Status: string(e.Status), Version: e.Version}
}

// Create writes a new entity document.
func (s *Store) Create(ctx context.Context, entity *domain.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs.records[entity.ID]; exists {
		return domain.ErrAlreadyExists
	}
	e := entity.Clone()
	return s.docs.save(ctx, e.ID, entityHeader(e), e)
}

// Load returns a copy of the cached entity.
func (s *Store) Load(ctx context.Context, id string) (*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e.Clone(), nil
}

// CompareAndSwap rewrites the document if the stored status equals m.From.
func (s *Store) CompareAndSwap(ctx context.Context, m domain.Mutation) (*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.docs.records[m.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if current.Status != m.From {
		return nil, domain.ErrConcurrencyConflict
	}

	next := m.Apply(current)
	if err := s.docs.save(ctx, next.ID, entityHeader(next), next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// Patch merges fields into the payload.
func (s *Store) Patch(ctx context.Context, id string, fields map[string]any) (*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.docs.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	next := current.Clone()
	for k, v := range domain.CloneMap(fields) {
		next.Payload[k] = v
	}
	next.Version++
	if err := s.docs.save(ctx, id, entityHeader(next), next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// ListChildren returns children sorted by ID.
func (s *Store) ListChildren(ctx context.Context, parentID string, kind domain.Kind) ([]*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	children := make([]*domain.Entity, 0)
	for _, e := range s.docs.records {
		if e.ParentID == parentID && e.Kind == kind {
			children = append(children, e.Clone())
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].ID < children[j].ID })
	return children, nil
}
