package turnstile_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/turnstile"
	"github.com/aretw0/turnstile/pkg/adapters/memory"
	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/kinds"
	"github.com/aretw0/turnstile/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPO(id string) *domain.Entity {
	e := domain.NewEntity(id, kinds.KindPurchaseOrder, "")
	e.Payload["requested_by"] = "req-1"
	e.Payload["approver_id"] = "appr-1"
	e.Payload["line_items"] = []any{map[string]any{"description": "desk", "quantity": 2, "unit_price": 150.0}}
	return e
}

func TestEngine_DefaultsRoundTrip(t *testing.T) {
	eng, err := turnstile.New()
	require.NoError(t, err)
	defer eng.Close()
	ctx := context.Background()

	created, err := eng.Create(ctx, newPO("po-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.State(kinds.PODraft), created.Status)
	assert.False(t, created.CreatedAt.IsZero())

	_, err = eng.Act(ctx, "purchase-orders", "po-1", "submit", domain.TransitionRequest{ActorID: "req-1"})
	require.NoError(t, err)

	res, err := eng.Act(ctx, "purchase-orders", "po-1", "approve", domain.TransitionRequest{
		ActorID: "appr-1", ActorRole: kinds.RoleApprover,
	})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, domain.State(kinds.POApproved), res.Entity.Status)
	assert.Equal(t, "appr-1", res.Entity.TransitionedBy)

	trail, err := eng.AuditTrail(ctx, "po-1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, domain.State(kinds.PODraft), trail[0].From)
	assert.Equal(t, domain.State(kinds.POApproved), trail[1].To)

	eng.Wait()
	items, err := eng.Inbox(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, string(kinds.KindPurchaseOrder), items[0].Source)
	assert.Equal(t, "purchase_order:po-1:req-1", items[0].DedupeKey)
}

func TestEngine_Create(t *testing.T) {
	eng, err := turnstile.New()
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("Unknown kind", func(t *testing.T) {
		_, err := eng.Create(ctx, domain.NewEntity("x", "nope", ""))
		assert.Error(t, err)
	})

	t.Run("Non-initial status", func(t *testing.T) {
		_, err := eng.Create(ctx, domain.NewEntity("x", kinds.KindPurchaseOrder, domain.State(kinds.POApproved)))
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("Duplicate ID", func(t *testing.T) {
		_, err := eng.Create(ctx, newPO("dup"))
		require.NoError(t, err)
		_, err = eng.Create(ctx, newPO("dup"))
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	})
}

func TestEngine_ActUnknownRoute(t *testing.T) {
	eng, err := turnstile.New()
	require.NoError(t, err)

	_, err = eng.Act(context.Background(), "purchase-orders", "po-1", "teleport", domain.TransitionRequest{ActorID: "a"})
	assert.Error(t, err)
	_, err = eng.Act(context.Background(), "spaceships", "s-1", "approve", domain.TransitionRequest{ActorID: "a"})
	assert.Error(t, err)
}

func TestEngine_CustomCollaborators(t *testing.T) {
	store := memory.NewStore()
	audit := memory.NewAuditLog()
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	var transitions int
	eng, err := turnstile.New(
		turnstile.WithStore(store),
		turnstile.WithAuditLog(audit),
		turnstile.WithClock(func() time.Time { return fixed }),
		turnstile.WithName("test"),
		turnstile.WithLifecycleHooks(domain.LifecycleHooks{
			OnTransition: func(context.Context, *domain.TransitionEvent) { transitions++ },
		}),
	)
	require.NoError(t, err)
	ctx := context.Background()

	te := domain.NewEntity("te-1", kinds.KindTimeEntry, "")
	te.Payload["employee_id"] = "emp-1"
	_, err = eng.Create(ctx, te)
	require.NoError(t, err)

	res, err := eng.Act(ctx, "time-entries", "te-1", "approve", domain.TransitionRequest{
		ActorID: "mgr", ActorRole: kinds.RoleManager,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Entity.TransitionedAt)
	assert.Equal(t, fixed, *res.Entity.TransitionedAt)
	assert.Equal(t, 1, transitions)

	stored, err := store.Load(ctx, "te-1")
	require.NoError(t, err)
	assert.Equal(t, domain.State(kinds.TimeEntryApproved), stored.Status)

	records, err := audit.List(ctx, "te-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

type timeoutChildrenStore struct {
	ports.EntityStore
	down atomic.Bool
}

func (s *timeoutChildrenStore) ListChildren(ctx context.Context, parentID string, kind domain.Kind) ([]*domain.Entity, error) {
	if s.down.Load() {
		return nil, errors.New("db timeout")
	}
	return s.EntityStore.ListChildren(ctx, parentID, kind)
}

func TestEngine_RetryCascade(t *testing.T) {
	store := &timeoutChildrenStore{EntityStore: memory.NewStore()}
	eng, err := turnstile.New(turnstile.WithStore(store))
	require.NoError(t, err)
	defer eng.Close()
	ctx := context.Background()

	run := domain.NewEntity("run-1", kinds.KindPayrollRun, "")
	run.Payload["period"] = "2026-03"
	run.Payload["employee_ids"] = []any{"emp-1"}
	_, err = eng.Create(ctx, run)
	require.NoError(t, err)
	item := domain.NewEntity("item-1", kinds.KindPayrollItem, "")
	item.ParentID = "run-1"
	_, err = eng.Create(ctx, item)
	require.NoError(t, err)

	admin := domain.TransitionRequest{ActorID: "fin-1", ActorRole: kinds.RolePayrollAdmin}
	_, err = eng.Act(ctx, "payroll-runs", "run-1", "approve", admin)
	require.NoError(t, err)

	store.down.Store(true)
	res, err := eng.Act(ctx, "payroll-runs", "run-1", "process", admin)
	require.NoError(t, err)
	require.ErrorContains(t, res.CascadeErr, "db timeout")

	trail, err := eng.AuditTrail(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Contains(t, trail[1].Metadata[domain.MetaCascadeError], "db timeout")

	store.down.Store(false)
	require.NoError(t, eng.RetryCascade(ctx, "run-1"))
	paid, err := eng.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, domain.State(kinds.PayrollItemPaid), paid.Status)
}
