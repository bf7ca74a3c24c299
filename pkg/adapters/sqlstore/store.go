package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/turnstile/pkg/domain"
)

const maxSwapAttempts = 5

// Store is an EntityStore backed by database/sql.
//
// The conditional write is a single UPDATE guarded by the status and version
// that were read; zero affected rows means another writer won.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// NewStore wraps a migrated database.
func NewStore(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d}
}

const entityColumns = `id, kind, org_id, parent_id, status, payload, version, transitioned_by, transitioned_at, created_at`

// Create inserts the entity, returning domain.ErrAlreadyExists on ID collision.
func (s *Store) Create(ctx context.Context, e *domain.Entity) error {
	payload, err := encodePayload(e.Payload)
	if err != nil {
		return err
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		e.ID, string(e.Kind), e.OrgID, e.ParentID, string(e.Status), payload, e.Version,
		e.TransitionedBy, nullableTime(e.TransitionedAt), createdAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// Load retrieves an entity by ID.
func (s *Store) Load(ctx context.Context, id string) (*domain.Entity, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(`SELECT `+entityColumns+` FROM entities WHERE id = ?`), id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return e, err
}

// CompareAndSwap applies m if the stored status still equals m.From.
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
		payload, err := encodePayload(next.Payload)
		if err != nil {
			return nil, err
		}

		res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
			UPDATE entities
			SET status = ?, payload = ?, version = ?, transitioned_by = ?, transitioned_at = ?
			WHERE id = ? AND status = ? AND version = ?`),
			string(next.Status), payload, next.Version, next.TransitionedBy, nullableTime(next.TransitionedAt),
			id, string(current.Status), current.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("update entity: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 1 {
			return next, nil
		}
		// Another writer moved the row: re-read and let mutate decide again.
	}
	return nil, domain.ErrConcurrencyConflict
}

// ListChildren returns children ordered by ID.
func (s *Store) ListChildren(ctx context.Context, parentID string, kind domain.Kind) ([]*domain.Entity, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`
		SELECT `+entityColumns+` FROM entities
		WHERE parent_id = ? AND kind = ?
		ORDER BY id`), parentID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	children := make([]*domain.Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		children = append(children, e)
	}
	return children, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (*domain.Entity, error) {
	var (
		e              domain.Entity
		kind, status   string
		payload        string
		transitionedAt sql.NullInt64
		createdAt      int64
	)
	if err := row.Scan(&e.ID, &kind, &e.OrgID, &e.ParentID, &status, &payload, &e.Version,
		&e.TransitionedBy, &transitionedAt, &createdAt); err != nil {
		return nil, err
	}
	e.Kind = domain.Kind(kind)
	e.Status = domain.State(status)
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	if transitionedAt.Valid {
		at := time.Unix(0, transitionedAt.Int64).UTC()
		e.TransitionedAt = &at
	}
	e.Payload = make(map[string]any)
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

func encodePayload(p map[string]any) (string, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(b), nil
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
