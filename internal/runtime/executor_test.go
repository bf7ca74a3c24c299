package runtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/turnstile/internal/runtime"
	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestExecutor_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.executor().Execute(context.Background(), domain.TransitionRequest{EntityID: "ghost", To: "pending"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecutor_KindMismatchIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "o-1", "order", "draft", nil)

	_, err := f.executor().Execute(context.Background(), domain.TransitionRequest{EntityID: "o-1", Kind: "pass", To: "used"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.State("draft"), f.status(t, "o-1"))
}

func TestExecutor_InvalidTransition(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "o-1", "order", "draft", nil)
	f.seed(t, "o-2", "order", "approved", nil)
	x := f.executor()
	ctx := context.Background()

	// No edge draft -> approved.
	_, err := x.Execute(ctx, domain.TransitionRequest{EntityID: "o-1", To: "approved", ActorRole: "approver"})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.Reason(""), domain.ReasonOf(err))

	// Out of a terminal state.
	_, err = x.Execute(ctx, domain.TransitionRequest{EntityID: "o-2", To: "rejected", ActorRole: "approver"})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.ReasonTerminalState, domain.ReasonOf(err))

	// Into the state it already holds, on a non-idempotent edge.
	f.seed(t, "o-3", "order", "pending", map[string]any{"items": []any{"x"}})
	_, err = x.Execute(ctx, domain.TransitionRequest{EntityID: "o-3", To: "pending"})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.ReasonAlreadyInTargetState, domain.ReasonOf(err))

	assert.Equal(t, domain.State("draft"), f.status(t, "o-1"))
	assert.Equal(t, domain.State("approved"), f.status(t, "o-2"))
	assert.Zero(t, f.auditCount(t, "o-1")+f.auditCount(t, "o-2")+f.auditCount(t, "o-3"))
}

func TestExecutor_GuardFailureLeavesEntityUntouched(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "o-1", "order", "draft", map[string]any{"items": []any{}})

	_, err := f.executor().Execute(context.Background(), domain.TransitionRequest{EntityID: "o-1", To: "pending", ActorID: "alice"})
	require.ErrorIs(t, err, domain.ErrGuardFailed)
	assert.Equal(t, domain.ReasonMissingPrecondition, domain.ReasonOf(err))
	assert.Equal(t, domain.State("draft"), f.status(t, "o-1"))
	assert.Zero(t, f.auditCount(t, "o-1"))
}

func TestExecutor_WrongRole(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "o-1", "order", "pending", nil)

	var rejected []*domain.TransitionEvent
	x := f.executor(runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnRejected: func(_ context.Context, e *domain.TransitionEvent) { rejected = append(rejected, e) },
	}))

	_, err := x.Execute(context.Background(), domain.TransitionRequest{EntityID: "o-1", To: "approved", ActorID: "bob", ActorRole: "clerk"})
	require.ErrorIs(t, err, domain.ErrGuardFailed)
	assert.Equal(t, domain.ReasonWrongActorRole, domain.ReasonOf(err))
	require.Len(t, rejected, 1)
	assert.Equal(t, domain.EventRejected, rejected[0].Type)
	assert.Equal(t, domain.State("pending"), rejected[0].From)
}

func TestExecutor_ExpectedCurrentMismatch(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "o-1", "order", "pending", nil)

	conflicts := 0
	x := f.executor(runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnConflict: func(context.Context, *domain.TransitionEvent) { conflicts++ },
	}))

	_, err := x.Execute(context.Background(), domain.TransitionRequest{
		EntityID: "o-1", To: "approved", ActorRole: "approver", ExpectedCurrent: "draft",
	})
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, domain.State("pending"), f.status(t, "o-1"))
}

func TestExecutor_AppliedTransition(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "o-1", "order", "pending", nil)

	var applied []*domain.TransitionEvent
	x := f.executor(
		runtime.WithIDGenerator(func() string { return "audit-1" }),
		runtime.WithLifecycleHooks(domain.LifecycleHooks{
			OnTransition: func(_ context.Context, e *domain.TransitionEvent) { applied = append(applied, e) },
		}),
	)

	res, err := x.Execute(context.Background(), domain.TransitionRequest{
		EntityID: "o-1", To: "rejected", ActorID: "carol", ActorRole: "approver",
		Payload: map[string]any{"reason": "over budget"},
	})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, domain.State("pending"), res.From)
	assert.Equal(t, domain.State("rejected"), res.Entity.Status)
	assert.Equal(t, "carol", res.Entity.TransitionedBy)
	require.NotNil(t, res.Entity.TransitionedAt)
	assert.True(t, fixedNow.Equal(*res.Entity.TransitionedAt))
	assert.Equal(t, "over budget", res.Entity.Payload["rejection_reason"])
	assert.NoError(t, res.CascadeErr)
	assert.NoError(t, res.AuditErr)

	records, err := f.audit.List(context.Background(), "o-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "audit-1", records[0].ID)
	assert.Equal(t, domain.State("pending"), records[0].From)
	assert.Equal(t, domain.State("rejected"), records[0].To)
	assert.Equal(t, "carol", records[0].ActorID)
	assert.Equal(t, "over budget", records[0].Metadata["reason"])
	assert.Equal(t, int64(1), records[0].Metadata[domain.MetaVersion])
	assert.NotContains(t, records[0].Metadata, domain.MetaCascadeError)
	require.Len(t, applied, 1)
	assert.Equal(t, domain.EventTransition, applied[0].Type)
}

func TestExecutor_NotifiesAfterApply(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "o-1", "order", "pending", nil)

	_, err := f.executor().Execute(context.Background(), domain.TransitionRequest{EntityID: "o-1", To: "approved", ActorRole: "approver"})
	require.NoError(t, err)
	require.Equal(t, 1, f.notifier.calls())
	assert.Equal(t, "requester", f.notifier.jobs[0][0].RecipientID)
	assert.Equal(t, "o-1", f.notifier.jobs[0][0].SourceID)
}

func TestExecutor_ConcurrentApprove(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "o-1", "order", "pending", nil)
	x := f.executorOn(newBarrierStore(f.store, 2))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = x.Execute(context.Background(), domain.TransitionRequest{EntityID: "o-1", To: "approved", ActorRole: "approver"})
		}(i)
	}
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrConcurrencyConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, domain.State("approved"), f.status(t, "o-1"))
	assert.Equal(t, 1, f.auditCount(t, "o-1"))
	assert.Equal(t, 1, f.notifier.calls())
}

func TestExecutor_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "p-1", "pass", "issued", nil)
	x := f.executor()
	ctx := context.Background()
	req := domain.TransitionRequest{EntityID: "p-1", To: "used", ActorID: "gate"}

	first, err := x.Execute(ctx, req)
	require.NoError(t, err)
	assert.True(t, first.Applied)

	second, err := x.Execute(ctx, req)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Nil(t, second.Record)
	assert.Equal(t, domain.State("used"), second.Entity.Status)
	assert.Equal(t, first.Entity.Version, second.Entity.Version)
	assert.Equal(t, first.Entity.TransitionedAt, second.Entity.TransitionedAt)

	assert.Equal(t, 1, f.auditCount(t, "p-1"))
	assert.Equal(t, int32(1), f.cascades.Load())
	assert.Equal(t, 1, f.notifier.calls())
}

func TestExecutor_IdempotentLostRaceIsReplay(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "p-1", "pass", "issued", nil)
	x := f.executorOn(newBarrierStore(f.store, 2))

	var wg sync.WaitGroup
	results := make([]*domain.Result, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = x.Execute(context.Background(), domain.TransitionRequest{EntityID: "p-1", To: "used"})
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, domain.State("used"), results[i].Entity.Status)
		if results[i].Applied {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, f.auditCount(t, "p-1"))
	assert.Equal(t, int32(1), f.cascades.Load())
}

func TestExecutor_CascadeAdvancesChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "b-1", "batch", "open", nil)
	for _, id := range []string{"l-1", "l-2", "l-3"} {
		child := domain.NewEntity(id, "line", "pending")
		child.ParentID = "b-1"
		require.NoError(t, f.store.Create(ctx, child))
	}
	done := domain.NewEntity("l-4", "line", "done")
	done.ParentID = "b-1"
	require.NoError(t, f.store.Create(ctx, done))

	res, err := f.executor().Execute(ctx, domain.TransitionRequest{EntityID: "b-1", To: "closed", ActorID: "ops"})
	require.NoError(t, err)
	require.NoError(t, res.CascadeErr)

	children, err := f.store.ListChildren(ctx, "b-1", "line")
	require.NoError(t, err)
	require.Len(t, children, 4)
	for _, c := range children {
		assert.Equal(t, domain.State("done"), c.Status, c.ID)
	}
	l4, err := f.store.Load(ctx, "l-4")
	require.NoError(t, err)
	assert.Equal(t, int64(0), l4.Version, "already-done children are not rewritten")
}

func TestExecutor_CascadeFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	f.registry.MustRegister(domain.StateDefinition{
		Kind: "flaky", Collection: "flakies",
		States: []domain.State{"a", "b", "c"}, Initial: "a", Terminal: []domain.State{"c"},
	},
		domain.TransitionRule{Kind: "flaky", From: "a", To: "b", Action: "fail",
			Cascade: func(context.Context, domain.CascadeContext) error { return errors.New("child store down") }},
		domain.TransitionRule{Kind: "flaky", From: "b", To: "c", Action: "panic",
			Cascade: func(context.Context, domain.CascadeContext) error { panic("boom") }},
	)
	f.seed(t, "f-1", "flaky", "a", nil)

	var failures []*domain.TransitionEvent
	x := f.executor(runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnCascadeFailure: func(_ context.Context, e *domain.TransitionEvent) { failures = append(failures, e) },
	}))
	ctx := context.Background()

	res, err := x.Execute(ctx, domain.TransitionRequest{EntityID: "f-1", To: "b"})
	require.NoError(t, err)
	var ce *domain.CascadeError
	require.ErrorAs(t, res.CascadeErr, &ce)
	assert.Equal(t, "f-1", ce.EntityID)
	assert.Equal(t, domain.State("b"), f.status(t, "f-1"))

	res, err = x.Execute(ctx, domain.TransitionRequest{EntityID: "f-1", To: "c"})
	require.NoError(t, err)
	require.ErrorAs(t, res.CascadeErr, &ce)
	assert.Contains(t, ce.Error(), "panic: boom")

	assert.Len(t, failures, 2)
	records, err := f.audit.List(ctx, "f-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Contains(t, records[0].Metadata[domain.MetaCascadeError], "child store down")
	assert.Contains(t, records[1].Metadata[domain.MetaCascadeError], "panic: boom")
}

func TestExecutor_AuditKeepsPayloadVersion(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "o-1", "order", "pending", nil)

	_, err := f.executor().Execute(context.Background(), domain.TransitionRequest{
		EntityID: "o-1", To: "rejected", ActorRole: "approver",
		Payload: map[string]any{"reason": "dup", "version": "v2-draft"},
	})
	require.NoError(t, err)

	records, err := f.audit.List(context.Background(), "o-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "v2-draft", records[0].Metadata["version"])
	assert.Equal(t, int64(1), records[0].Metadata[domain.MetaVersion])
}

func TestExecutor_RetryCascade(t *testing.T) {
	ctx := context.Background()

	t.Run("Failed child listing is recorded and can be retried", func(t *testing.T) {
		f := newFixture(t)
		store := &flakyChildrenStore{EntityStore: f.store}
		f.seed(t, "b-1", "batch", "open", nil)
		for _, id := range []string{"l-1", "l-2"} {
			child := domain.NewEntity(id, "line", "pending")
			child.ParentID = "b-1"
			require.NoError(t, f.store.Create(ctx, child))
		}
		var failures int
		x := f.executorOn(store, runtime.WithLifecycleHooks(domain.LifecycleHooks{
			OnCascadeFailure: func(context.Context, *domain.TransitionEvent) { failures++ },
		}))

		store.down.Store(true)
		res, err := x.Execute(ctx, domain.TransitionRequest{EntityID: "b-1", To: "closed", ActorID: "ops"})
		require.NoError(t, err)
		require.ErrorContains(t, res.CascadeErr, "db timeout")
		assert.Equal(t, domain.State("closed"), f.status(t, "b-1"))
		assert.Equal(t, domain.State("pending"), f.status(t, "l-1"))
		require.NotNil(t, res.Record)
		assert.Contains(t, res.Record.Metadata[domain.MetaCascadeError], "db timeout")

		err = x.RetryCascade(ctx, "b-1")
		require.ErrorContains(t, err, "db timeout")
		var ce *domain.CascadeError
		assert.ErrorAs(t, err, &ce)
		assert.Equal(t, 2, failures)

		store.down.Store(false)
		require.NoError(t, x.RetryCascade(ctx, "b-1"))
		assert.Equal(t, domain.State("done"), f.status(t, "l-1"))
		assert.Equal(t, domain.State("done"), f.status(t, "l-2"))
		assert.Equal(t, 1, f.auditCount(t, "b-1"), "a retry is not a transition")

		l1, err := f.store.Load(ctx, "l-1")
		require.NoError(t, err)
		assert.Equal(t, "ops", l1.TransitionedBy)
		require.NotNil(t, l1.TransitionedAt)
		assert.True(t, fixedNow.Equal(*l1.TransitionedAt))
	})

	t.Run("Rule without a cascade is a no-op", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, "o-1", "order", "pending", nil)
		x := f.executor()
		_, err := x.Execute(ctx, domain.TransitionRequest{EntityID: "o-1", To: "approved", ActorRole: "approver"})
		require.NoError(t, err)
		assert.NoError(t, x.RetryCascade(ctx, "o-1"))
	})

	t.Run("Missing entity or history is not found", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, "b-2", "batch", "open", nil)
		x := f.executor()
		assert.ErrorIs(t, x.RetryCascade(ctx, "ghost"), domain.ErrNotFound)
		assert.ErrorIs(t, x.RetryCascade(ctx, "b-2"), domain.ErrNotFound)
	})
}

func TestExecutor_AuditFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "o-1", "order", "pending", nil)
	x := runtime.NewExecutor(f.registry, f.store, failingAuditLog{})

	res, err := x.Execute(context.Background(), domain.TransitionRequest{EntityID: "o-1", To: "approved", ActorRole: "approver"})
	require.NoError(t, err)
	assert.Error(t, res.AuditErr)
	require.NotNil(t, res.Record)
	assert.Equal(t, domain.State("approved"), f.status(t, "o-1"))
}

func TestExecutor_GuardSeesCopy(t *testing.T) {
	f := newFixture(t)
	f.registry.MustRegister(domain.StateDefinition{
		Kind: "meddler", Collection: "meddlers",
		States: []domain.State{"a", "b"}, Initial: "a", Terminal: []domain.State{"b"},
	}, domain.TransitionRule{Kind: "meddler", From: "a", To: "b", Action: "go",
		Guard: func(e *domain.Entity, _ domain.TransitionRequest) error {
			e.Payload["tampered"] = true
			e.Status = "b"
			return domain.Deny(domain.ReasonMissingPrecondition, "nope")
		}})
	f.seed(t, "m-1", "meddler", "a", nil)

	_, err := f.executor().Execute(context.Background(), domain.TransitionRequest{EntityID: "m-1", To: "b"})
	require.ErrorIs(t, err, domain.ErrGuardFailed)

	e, err := f.store.Load(context.Background(), "m-1")
	require.NoError(t, err)
	assert.Equal(t, domain.State("a"), e.Status)
	assert.NotContains(t, e.Payload, "tampered")
}

func TestExecutor_Tracing(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "o-1", "order", "pending", nil)

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	x := f.executor(runtime.WithTracerProvider(tp))

	_, err := x.Execute(context.Background(), domain.TransitionRequest{EntityID: "o-1", To: "approved", ActorRole: "approver"})
	require.NoError(t, err)
	_, err = x.Execute(context.Background(), domain.TransitionRequest{EntityID: "o-1", To: "rejected", ActorRole: "approver"})
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "turnstile.execute", spans[0].Name())

	outcome := func(attrs []attribute.KeyValue) string {
		for _, a := range attrs {
			if a.Key == "turnstile.outcome" {
				return a.Value.AsString()
			}
		}
		return ""
	}
	assert.Equal(t, "applied", outcome(spans[0].Attributes()))
	assert.Equal(t, "rejected", outcome(spans[1].Attributes()))
}
