package ports

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunEntityStoreContract runs a suite of tests to verify that an EntityStore implementation
// adheres to the defined interface contract.
func RunEntityStoreContract(t *testing.T, store EntityStore) {
	ctx := context.Background()
	prefix := "contract-" + time.Now().Format("20060102150405.000000")

	t.Run("Create and Load", func(t *testing.T) {
		e := domain.NewEntity(prefix+"-load", "widget", "draft")
		e.OrgID = "org-1"
		e.Payload["count"] = 2
		e.Payload["tags"] = []any{"a", "b"}

		require.NoError(t, store.Create(ctx, e))

		loaded, err := store.Load(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.State("draft"), loaded.Status)
		assert.Equal(t, domain.Kind("widget"), loaded.Kind)
		assert.Equal(t, "org-1", loaded.OrgID)
		assert.NotNil(t, loaded.Payload["count"])
		assert.Len(t, loaded.Payload["tags"], 2)
	})

	t.Run("Create Duplicate", func(t *testing.T) {
		e := domain.NewEntity(prefix+"-dup", "widget", "draft")
		require.NoError(t, store.Create(ctx, e))
		assert.ErrorIs(t, store.Create(ctx, e), domain.ErrAlreadyExists)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, prefix+"-missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("CompareAndSwap", func(t *testing.T) {
		e := domain.NewEntity(prefix+"-cas", "widget", "draft")
		require.NoError(t, store.Create(ctx, e))

		at := time.Now().UTC().Truncate(time.Millisecond)
		updated, err := store.CompareAndSwap(ctx, domain.Mutation{
			ID: e.ID, From: "draft", To: "submitted", ActorID: "alice", At: at,
			Fields: map[string]any{"note": "first"},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.State("submitted"), updated.Status)
		assert.Equal(t, "alice", updated.TransitionedBy)
		require.NotNil(t, updated.TransitionedAt)
		assert.True(t, at.Equal(*updated.TransitionedAt))
		assert.Equal(t, "first", updated.Payload["note"])

		// Stale From loses.
		_, err = store.CompareAndSwap(ctx, domain.Mutation{ID: e.ID, From: "draft", To: "submitted", ActorID: "bob", At: at})
		assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

		loaded, err := store.Load(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", loaded.TransitionedBy)
		assert.Greater(t, loaded.Version, e.Version)

		_, err = store.CompareAndSwap(ctx, domain.Mutation{ID: prefix + "-nope", From: "draft", To: "submitted"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("CompareAndSwap Race", func(t *testing.T) {
		e := domain.NewEntity(prefix+"-race", "widget", "pending")
		require.NoError(t, store.Create(ctx, e))

		var wins, conflicts atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.CompareAndSwap(ctx, domain.Mutation{ID: e.ID, From: "pending", To: "approved", At: time.Now()})
				switch {
				case err == nil:
					wins.Add(1)
				case assert.ErrorIs(t, err, domain.ErrConcurrencyConflict):
					conflicts.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load(), "exactly one writer must win")
		assert.Equal(t, int32(7), conflicts.Load())
	})

	t.Run("Patch", func(t *testing.T) {
		e := domain.NewEntity(prefix+"-patch", "widget", "active")
		e.Payload["keep"] = "yes"
		require.NoError(t, store.Create(ctx, e))

		patched, err := store.Patch(ctx, e.ID, map[string]any{"reason": "moved"})
		require.NoError(t, err)
		assert.Equal(t, domain.State("active"), patched.Status)
		assert.Equal(t, "yes", patched.Payload["keep"])
		assert.Equal(t, "moved", patched.Payload["reason"])

		_, err = store.Patch(ctx, prefix+"-nope", map[string]any{"a": 1})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("ListChildren", func(t *testing.T) {
		parent := domain.NewEntity(prefix+"-parent", "run", "open")
		require.NoError(t, store.Create(ctx, parent))
		for _, id := range []string{"-c1", "-c2"} {
			child := domain.NewEntity(prefix+id, "item", "pending")
			child.ParentID = parent.ID
			require.NoError(t, store.Create(ctx, child))
		}
		other := domain.NewEntity(prefix+"-other", "note", "posted")
		other.ParentID = parent.ID
		require.NoError(t, store.Create(ctx, other))

		children, err := store.ListChildren(ctx, parent.ID, "item")
		require.NoError(t, err)
		assert.Len(t, children, 2)

		none, err := store.ListChildren(ctx, prefix+"-orphan", "item")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

// RunAuditLogContract verifies append-only semantics of an AuditLog.
func RunAuditLogContract(t *testing.T, log AuditLog) {
	ctx := context.Background()
	entityID := "audit-contract-" + time.Now().Format("20060102150405.000000")

	t.Run("Append and List", func(t *testing.T) {
		at := time.Now().UTC().Truncate(time.Millisecond)
		first := domain.AuditRecord{ID: entityID + "-1", EntityID: entityID, Kind: "widget", ActorID: "alice", From: "draft", To: "submitted", OccurredAt: at, Metadata: map[string]any{"k": "v"}}
		second := domain.AuditRecord{ID: entityID + "-2", EntityID: entityID, Kind: "widget", ActorID: "bob", From: "submitted", To: "approved", OccurredAt: at.Add(time.Second)}

		require.NoError(t, log.Append(ctx, first))
		require.NoError(t, log.Append(ctx, second))

		records, err := log.List(ctx, entityID)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, first.ID, records[0].ID)
		assert.Equal(t, domain.State("draft"), records[0].From)
		assert.Equal(t, "v", records[0].Metadata["k"])
		assert.True(t, at.Equal(records[0].OccurredAt))
		assert.Equal(t, second.ID, records[1].ID)
	})

	t.Run("List Unknown", func(t *testing.T) {
		records, err := log.List(ctx, entityID+"-unknown")
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

// RunInboxContract verifies dedupe and ordering of an Inbox.
func RunInboxContract(t *testing.T, inbox Inbox) {
	ctx := context.Background()
	recipient := "inbox-contract-" + time.Now().Format("20060102150405.000000")
	now := time.Now().UTC().Truncate(time.Millisecond)

	first, err := inbox.Put(ctx, domain.InboxItem{ID: recipient + "-1", RecipientID: recipient, DedupeKey: "k1", Title: "one", CreatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, recipient+"-1", first.ID)

	dup, err := inbox.Put(ctx, domain.InboxItem{ID: recipient + "-dup", RecipientID: recipient, DedupeKey: "k1", Title: "again", CreatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, first.ID, dup.ID, "duplicate dedupe key must return the existing row")

	_, err = inbox.Put(ctx, domain.InboxItem{ID: recipient + "-2", RecipientID: recipient, DedupeKey: "k2", Title: "two", CreatedAt: now.Add(time.Second)})
	require.NoError(t, err)

	items, err := inbox.List(ctx, recipient)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "two", items[0].Title)
	assert.Equal(t, "one", items[1].Title)
}
