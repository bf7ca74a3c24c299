package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/turnstile/pkg/domain"
)

// Store implements ports.EntityStore in memory.
// Safe for concurrent use; the write lock makes CompareAndSwap atomic.
type Store struct {
	data map[string]*domain.Entity
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Entity),
	}
}

// Create persists a copy of the entity.
func (s *Store) Create(ctx context.Context, entity *domain.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[entity.ID]; exists {
		return domain.ErrAlreadyExists
	}
	s.data[entity.ID] = entity.Clone()
	return nil
}

// Load returns a copy so callers can't mutate store state directly by pointer.
func (s *Store) Load(ctx context.Context, id string) (*domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e.Clone(), nil
}

// CompareAndSwap applies the mutation if the stored status equals m.From.
func (s *Store) CompareAndSwap(ctx context.Context, m domain.Mutation) (*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.data[m.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if current.Status != m.From {
		return nil, domain.ErrConcurrencyConflict
	}

	next := m.Apply(current)
	s.data[m.ID] = next
	return next.Clone(), nil
}

// Patch merges fields into the payload.
func (s *Store) Patch(ctx context.Context, id string, fields map[string]any) (*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	next := current.Clone()
	for k, v := range domain.CloneMap(fields) {
		next.Payload[k] = v
	}
	next.Version++
	s.data[id] = next
	return next.Clone(), nil
}

// ListChildren returns children sorted by ID for deterministic iteration.
func (s *Store) ListChildren(ctx context.Context, parentID string, kind domain.Kind) ([]*domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	children := make([]*domain.Entity, 0)
	for _, e := range s.data {
		if e.ParentID == parentID && e.Kind == kind {
			children = append(children, e.Clone())
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].ID < children[j].ID })
	return children, nil
}
