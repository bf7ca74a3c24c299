package loam_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/turnstile/pkg/adapters/loam"
	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T, dir string) *loam.Backend {
	t.Helper()
	b, err := loam.Open(context.Background(), dir)
	require.NoError(t, err)
	return b
}

func TestLoamStore_Contract(t *testing.T) {
	ports.RunEntityStoreContract(t, open(t, t.TempDir()).Store)
}

func TestLoamAuditLog_Contract(t *testing.T) {
	ports.RunAuditLogContract(t, open(t, t.TempDir()).Audit)
}

func TestLoamInbox_Contract(t *testing.T) {
	ports.RunInboxContract(t, open(t, t.TempDir()).Inbox)
}

func TestLoam_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b := open(t, dir)

	po := domain.NewEntity("po-1", "purchase_order", "draft")
	po.Payload["requested_by"] = "alice"
	require.NoError(t, b.Store.Create(ctx, po))

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	_, err := b.Store.CompareAndSwap(ctx, domain.Mutation{
		ID: "po-1", From: "draft", To: "pending_approval", ActorID: "alice", At: at,
	})
	require.NoError(t, err)
	require.NoError(t, b.Audit.Append(ctx, domain.AuditRecord{
		ID: "a-1", EntityID: "po-1", Kind: "purchase_order", From: "draft", To: "pending_approval", OccurredAt: at,
	}))
	_, err = b.Inbox.Put(ctx, domain.InboxItem{ID: "n-1", RecipientID: "bob@example.com", DedupeKey: "k", Title: "Review", CreatedAt: at})
	require.NoError(t, err)

	reopened := open(t, dir)

	loaded, err := reopened.Store.Load(ctx, "po-1")
	require.NoError(t, err)
	assert.Equal(t, domain.State("pending_approval"), loaded.Status)
	assert.Equal(t, int64(1), loaded.Version)
	assert.Equal(t, "alice", loaded.Payload["requested_by"])
	require.NotNil(t, loaded.TransitionedAt)
	assert.True(t, at.Equal(*loaded.TransitionedAt))

	trail, err := reopened.Audit.List(ctx, "po-1")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, domain.State("pending_approval"), trail[0].To)

	items, err := reopened.Inbox.List(ctx, "bob@example.com")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Review", items[0].Title)
}

func TestLoam_WritesOneFilePerEntity(t *testing.T) {
	dir := t.TempDir()
	b := open(t, dir)
	require.NoError(t, b.Store.Create(context.Background(), domain.NewEntity("te-1", "time_entry", "submitted")))

	entries, err := os.ReadDir(filepath.Join(dir, "entities"))
	require.NoError(t, err)

	found := false
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "te-1") {
			found = true
		}
	}
	assert.True(t, found, "expected a te-1 document in %v", entries)
}
