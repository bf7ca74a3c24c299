package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/turnstile/pkg/domain"
)

// Inbox implements ports.Inbox in memory.
type Inbox struct {
	mu    sync.RWMutex
	items map[string][]domain.InboxItem
}

// NewInbox creates an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{items: make(map[string][]domain.InboxItem)}
}

// Put stores item unless the recipient already has its dedupe key.
func (b *Inbox) Put(ctx context.Context, item domain.InboxItem) (domain.InboxItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if item.DedupeKey != "" {
		for _, existing := range b.items[item.RecipientID] {
			if existing.DedupeKey == item.DedupeKey {
				return existing, nil
			}
		}
	}
	b.items[item.RecipientID] = append(b.items[item.RecipientID], item)
	return item, nil
}

// List returns the recipient's items, newest first.
func (b *Inbox) List(ctx context.Context, recipientID string) ([]domain.InboxItem, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := append([]domain.InboxItem(nil), b.items[recipientID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
