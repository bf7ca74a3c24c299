package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/turnstile/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// putScript claims the dedupe slot and indexes the item by creation time.
// It returns the stored JSON, which is the existing row on a duplicate.
var putScript = backend.NewScript(`
local existing = redis.call("HGET", KEYS[1], ARGV[1])
if existing then
	return existing
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
redis.call("ZADD", KEYS[2], ARGV[3], ARGV[2])
return ARGV[2]
`)

// Inbox implements ports.Inbox with a dedupe hash and a sorted set per recipient.
type Inbox struct {
	client *backend.Client
	prefix string
}

// NewInbox creates an inbox sharing the client (and prefix options) of a Store.
func NewInbox(client *backend.Client, opts ...Option) *Inbox {
	cfg := NewFromClient(client, opts...)
	return &Inbox{client: client, prefix: cfg.prefix}
}

func (b *Inbox) dedupeKey(recipientID string) string {
	return b.prefix + "inbox:dedupe:" + recipientID
}

func (b *Inbox) listKey(recipientID string) string {
	return b.prefix + "inbox:" + recipientID
}

// Put stores item unless the recipient already has its dedupe key.
func (b *Inbox) Put(ctx context.Context, item domain.InboxItem) (domain.InboxItem, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return domain.InboxItem{}, fmt.Errorf("failed to marshal inbox item: %w", err)
	}
	slot := item.DedupeKey
	if slot == "" {
		slot = "id:" + item.ID
	}

	keys := []string{b.dedupeKey(item.RecipientID), b.listKey(item.RecipientID)}
	raw, err := putScript.Run(ctx, b.client, keys, slot, data, item.CreatedAt.UnixNano()).Text()
	if err != nil {
		return domain.InboxItem{}, fmt.Errorf("failed to put inbox item: %w", err)
	}

	var stored domain.InboxItem
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return domain.InboxItem{}, fmt.Errorf("failed to unmarshal inbox item: %w", err)
	}
	return stored, nil
}

// List returns the recipient's items, newest first.
func (b *Inbox) List(ctx context.Context, recipientID string) ([]domain.InboxItem, error) {
	raw, err := b.client.ZRevRange(ctx, b.listKey(recipientID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox items: %w", err)
	}

	items := make([]domain.InboxItem, 0, len(raw))
	for _, s := range raw {
		var item domain.InboxItem
		if err := json.Unmarshal([]byte(s), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal inbox item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}
