package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aretw0/turnstile/pkg/domain"
)

// Inbox is a ports.Inbox with a unique (recipient_id, dedupe_key) constraint.
type Inbox struct {
	db      *sql.DB
	dialect Dialect
}

// NewInbox wraps a migrated database.
func NewInbox(db *sql.DB, d Dialect) *Inbox {
	return &Inbox{db: db, dialect: d}
}

const inboxColumns = `id, recipient_id, dedupe_key, title, body, priority, source, created_at`

// Put inserts item, or returns the row already holding its dedupe key.
func (b *Inbox) Put(ctx context.Context, item domain.InboxItem) (domain.InboxItem, error) {
	key := item.DedupeKey
	if key == "" {
		// Without a key every item is distinct.
		key = "id:" + item.ID
	}
	res, err := b.db.ExecContext(ctx, b.dialect.Rebind(`
		INSERT INTO inbox_items (`+inboxColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (recipient_id, dedupe_key) DO NOTHING`),
		item.ID, item.RecipientID, key, item.Title, item.Body, string(item.Priority), item.Source, item.CreatedAt.UnixNano(),
	)
	if err != nil {
		return domain.InboxItem{}, fmt.Errorf("insert inbox item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.InboxItem{}, err
	}
	if affected == 1 {
		return item, nil
	}

	row := b.db.QueryRowContext(ctx, b.dialect.Rebind(`
		SELECT `+inboxColumns+` FROM inbox_items WHERE recipient_id = ? AND dedupe_key = ?`),
		item.RecipientID, key)
	return scanInboxItem(row)
}

// List returns the recipient's items, newest first.
func (b *Inbox) List(ctx context.Context, recipientID string) ([]domain.InboxItem, error) {
	rows, err := b.db.QueryContext(ctx, b.dialect.Rebind(`
		SELECT `+inboxColumns+` FROM inbox_items WHERE recipient_id = ? ORDER BY created_at DESC, id`), recipientID)
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	defer rows.Close()

	items := make([]domain.InboxItem, 0)
	for rows.Next() {
		item, err := scanInboxItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanInboxItem(row scanner) (domain.InboxItem, error) {
	var (
		item             domain.InboxItem
		priority, source string
		createdAt        int64
	)
	if err := row.Scan(&item.ID, &item.RecipientID, &item.DedupeKey, &item.Title, &item.Body, &priority, &source, &createdAt); err != nil {
		return domain.InboxItem{}, err
	}
	item.Priority = domain.Priority(priority)
	item.Source = source
	item.CreatedAt = time.Unix(0, createdAt).UTC()
	if item.DedupeKey == "id:"+item.ID {
		item.DedupeKey = ""
	}
	return item, nil
}
