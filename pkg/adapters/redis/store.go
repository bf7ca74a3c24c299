package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/aretw0/turnstile/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// maxSwapAttempts bounds retries when only the version moved (a concurrent Patch).
const maxSwapAttempts = 5

// Each entity is a hash {status, version, data}. Status and version are kept
// outside the JSON document so the scripts can compare them atomically.
var (
	createScript = backend.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], "status", ARGV[1], "version", ARGV[2], "data", ARGV[3])
if ARGV[4] ~= "" then
	redis.call("SADD", KEYS[2], ARGV[4])
end
return 1
`)

	swapScript = backend.NewScript(`
local cur = redis.call("HMGET", KEYS[1], "status", "version")
if not cur[1] then
	return -1
end
if cur[1] ~= ARGV[1] or cur[2] ~= ARGV[2] then
	return 0
end
redis.call("HSET", KEYS[1], "status", ARGV[3], "version", ARGV[4], "data", ARGV[5])
return 1
`)
)

// Store implements ports.EntityStore using Redis.
type Store struct {
	client *backend.Client
	prefix string
}

// Option configures the Store.
type Option func(*Store)

// WithPrefix sets the key prefix for entities.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "turnstile:",
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Client exposes the underlying client so sibling adapters can share it.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(id string) string {
	return s.prefix + "entity:" + id
}

func (s *Store) childrenKey(parentID string, kind domain.Kind) string {
	return s.prefix + "children:" + parentID + ":" + string(kind)
}

// Create persists a new entity.
func (s *Store) Create(ctx context.Context, entity *domain.Entity) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	childKey := s.childrenKey(entity.ParentID, entity.Kind)
	member := ""
	if entity.ParentID != "" {
		member = entity.ID
	}

	created, err := createScript.Run(ctx, s.client,
		[]string{s.key(entity.ID), childKey},
		string(entity.Status), strconv.FormatInt(entity.Version, 10), string(data), member,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to create entity in redis: %w", err)
	}
	if created == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// Load retrieves the entity from Redis.
func (s *Store) Load(ctx context.Context, id string) (*domain.Entity, error) {
	val, err := s.client.HGet(ctx, s.key(id), "data").Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var entity domain.Entity
	if err := json.Unmarshal([]byte(val), &entity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	if entity.Payload == nil {
		entity.Payload = make(map[string]any)
	}
	return &entity, nil
}

// CompareAndSwap applies m if the stored status still equals m.From.
// The swap script additionally pins the version that was read, so a
// concurrent Patch is retried rather than overwritten.
func (s *Store) CompareAndSwap(ctx context.Context, m domain.Mutation) (*domain.Entity, error) {
	return s.swap(ctx, m.ID, func(current *domain.Entity) (*domain.Entity, error) {
		if current.Status != m.From {
			return nil, domain.ErrConcurrencyConflict
		}
		return m.Apply(current), nil
	})
}

// Patch merges fields into the payload without touching the status.
func (s *Store) Patch(ctx context.Context, id string, fields map[string]any) (*domain.Entity, error) {
	return s.swap(ctx, id, func(current *domain.Entity) (*domain.Entity, error) {
		next := current.Clone()
		for k, v := range domain.CloneMap(fields) {
			next.Payload[k] = v
		}
		next.Version++
		return next, nil
	})
}

func (s *Store) swap(ctx context.Context, id string, mutate func(*domain.Entity) (*domain.Entity, error)) (*domain.Entity, error) {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		current, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}

		next, err := mutate(current)
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(next)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal entity: %w", err)
		}

		res, err := swapScript.Run(ctx, s.client,
			[]string{s.key(id)},
			string(current.Status), strconv.FormatInt(current.Version, 10),
			string(next.Status), strconv.FormatInt(next.Version, 10), string(data),
		).Int()
		if err != nil {
			return nil, fmt.Errorf("failed to swap entity in redis: %w", err)
		}

		switch res {
		case 1:
			return next, nil
		case -1:
			return nil, domain.ErrNotFound
		}
		// Lost the race: re-read and let mutate decide again.
	}
	return nil, domain.ErrConcurrencyConflict
}

// ListChildren returns children sorted by ID.
func (s *Store) ListChildren(ctx context.Context, parentID string, kind domain.Kind) ([]*domain.Entity, error) {
	ids, err := s.client.SMembers(ctx, s.childrenKey(parentID, kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	sort.Strings(ids)

	children := make([]*domain.Entity, 0, len(ids))
	for _, id := range ids {
		child, err := s.Load(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
