package loam

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/turnstile/pkg/domain"
)

// Inbox keeps one document per recipient.
type Inbox struct {
	mu   sync.Mutex
	docs *documents[[]domain.InboxItem]
}

// Put stores item unless the recipient already has its dedupe key.
func (b *Inbox) Put(ctx context.Context, item domain.InboxItem) (domain.InboxItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing := b.docs.records[item.RecipientID]
	if item.DedupeKey != "" {
		for _, e := range existing {
			if e.DedupeKey == item.DedupeKey {
				return e, nil
			}
		}
	}
	items := append(append([]domain.InboxItem(nil), existing...), item)
	if err := b.docs.save(ctx, item.RecipientID, Header{Count: len(items)}, items); err != nil {
		return domain.InboxItem{}, err
	}
	return item, nil
}

// List returns the recipient's items, newest first.
func (b *Inbox) List(ctx context.Context, recipientID string) ([]domain.InboxItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := append([]domain.InboxItem(nil), b.docs.records[recipientID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
