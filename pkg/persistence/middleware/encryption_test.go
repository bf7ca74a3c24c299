package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/turnstile/pkg/adapters/memory"
	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/persistence/middleware"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func record(id string, meta map[string]any) domain.AuditRecord {
	return domain.AuditRecord{
		ID: id, EntityID: "po-1", Kind: "purchase_order", ActorID: "u1",
		From: "draft", To: "pending_approval", Metadata: meta,
	}
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewAuditLog()
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	if err != nil {
		t.Fatal(err)
	}
	secure := mw(underlying)
	ctx := context.Background()

	if err := secure.Append(ctx, record("a1", map[string]any{"secret": "my-secret-sauce"})); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	stored, err := underlying.List(ctx, "po-1")
	if err != nil {
		t.Fatalf("Underlying list failed: %v", err)
	}
	if val, ok := stored[0].Metadata["secret"]; ok {
		t.Fatalf("Expected secret to be hidden, found: %v", val)
	}
	if _, ok := stored[0].Metadata[middleware.EnvelopeKey]; !ok {
		t.Fatal("Expected envelope in metadata")
	}
	if stored[0].To != "pending_approval" {
		t.Errorf("Routing columns should stay readable, got to=%q", stored[0].To)
	}

	loaded, err := secure.List(ctx, "po-1")
	if err != nil {
		t.Fatalf("List via middleware failed: %v", err)
	}
	if loaded[0].Metadata["secret"] != "my-secret-sauce" {
		t.Errorf("Expected 'my-secret-sauce', got %v", loaded[0].Metadata["secret"])
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewAuditLog()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	oldMW, _ := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})
	if err := oldMW(underlying).Append(ctx, record("a1", map[string]any{"v": "old"})); err != nil {
		t.Fatal(err)
	}

	rotated, _ := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})
	secure := rotated(underlying)
	if err := secure.Append(ctx, record("a2", map[string]any{"v": "new"})); err != nil {
		t.Fatal(err)
	}

	loaded, err := secure.List(ctx, "po-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if loaded[0].Metadata["v"] != "old" || loaded[1].Metadata["v"] != "new" {
		t.Errorf("Unexpected metadata after rotation: %v, %v", loaded[0].Metadata, loaded[1].Metadata)
	}

	withoutOld, _ := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: newKey})
	if _, err := withoutOld(underlying).List(ctx, "po-1"); err == nil {
		t.Error("Expected failure without the old key")
	}
}

func TestEncryptionMiddleware_RejectsPlainMetadata(t *testing.T) {
	underlying := memory.NewAuditLog()
	ctx := context.Background()
	if err := underlying.Append(ctx, record("a1", map[string]any{"plain": true})); err != nil {
		t.Fatal(err)
	}

	mw, _ := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	if _, err := mw(underlying).List(ctx, "po-1"); err == nil {
		t.Error("Expected plain metadata to be rejected")
	}
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	if _, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")}); err == nil {
		t.Error("Expected error for a short key")
	}
}
