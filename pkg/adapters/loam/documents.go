package loam

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/aretw0/loam"
)

// Header is the frontmatter of every document written by this package.
// The body holds the JSON record; the header only makes files greppable.
type Header struct {
	ID      string `json:"id" mapstructure:"id"`
	Kind    string `json:"kind,omitempty" mapstructure:"kind"`
	Status  string `json:"status,omitempty" mapstructure:"status"`
	Version int64  `json:"version,omitempty" mapstructure:"version"`
	Count   int    `json:"count,omitempty" mapstructure:"count"`
}

var safeID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// docID maps a record key onto a file name loam can round-trip. Keys with
// dots or separators would be read as extensions or paths, so they are hex
// encoded behind a '~'.
func docID(key string) string {
	if safeID.MatchString(key) {
		return key
	}
	return "~" + hex.EncodeToString([]byte(key))
}

// documents is a write-through cache over one loam repository.
// Records are read once at open; every write saves the full record.
type documents[T any] struct {
	repo    *loam.TypedRepository[Header]
	records map[string]T
}

func openDocuments[T any](ctx context.Context, dir string) (*documents[T], error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	repo, err := loam.Init(dir, loam.WithVersioning(false))
	if err != nil {
		return nil, fmt.Errorf("loam init %s: %w", dir, err)
	}

	d := &documents[T]{
		repo:    loam.NewTypedRepository[Header](repo),
		records: make(map[string]T),
	}

	docs, err := d.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}
	for _, doc := range docs {
		key := doc.Data.ID
		if key == "" {
			return nil, fmt.Errorf("%s: document %s has no id", dir, doc.ID)
		}
		var rec T
		if err := json.Unmarshal([]byte(doc.Content), &rec); err != nil {
			return nil, fmt.Errorf("%s: decode %s: %w", dir, key, err)
		}
		d.records[key] = rec
	}
	return d, nil
}

func (d *documents[T]) save(ctx context.Context, key string, header Header, rec T) error {
	body, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	header.ID = key
	err = d.repo.Save(ctx, &loam.DocumentModel[Header]{
		ID:      docID(key),
		Content: string(body),
		Data:    header,
	})
	if err != nil {
		return fmt.Errorf("loam save failed for %s: %w", key, err)
	}
	d.records[key] = rec
	return nil
}
