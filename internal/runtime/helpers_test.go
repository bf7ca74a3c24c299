package runtime_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/turnstile/internal/runtime"
	"github.com/aretw0/turnstile/pkg/adapters/memory"
	"github.com/aretw0/turnstile/pkg/cascade"
	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/ports"
	"github.com/aretw0/turnstile/pkg/registry"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

// recordingNotifier captures jobs synchronously.
type recordingNotifier struct {
	mu   sync.Mutex
	jobs [][]domain.NotificationJob
}

func (n *recordingNotifier) Go(_ context.Context, jobs []domain.NotificationJob) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, jobs)
}

func (n *recordingNotifier) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.jobs)
}

// barrierStore holds the first `parties` loads until all of them have read,
// so concurrent callers are guaranteed to observe the same snapshot.
type barrierStore struct {
	ports.EntityStore
	parties int32
	loads   atomic.Int32
	arrived sync.WaitGroup
}

func newBarrierStore(inner ports.EntityStore, parties int) *barrierStore {
	b := &barrierStore{EntityStore: inner, parties: int32(parties)}
	b.arrived.Add(parties)
	return b
}

func (b *barrierStore) Load(ctx context.Context, id string) (*domain.Entity, error) {
	e, err := b.EntityStore.Load(ctx, id)
	if b.loads.Add(1) <= b.parties {
		b.arrived.Done()
		b.arrived.Wait()
	}
	return e, err
}

// flakyChildrenStore fails ListChildren while down is set.
type flakyChildrenStore struct {
	ports.EntityStore
	down atomic.Bool
}

func (s *flakyChildrenStore) ListChildren(ctx context.Context, parentID string, kind domain.Kind) ([]*domain.Entity, error) {
	if s.down.Load() {
		return nil, errors.New("db timeout")
	}
	return s.EntityStore.ListChildren(ctx, parentID, kind)
}

type failingAuditLog struct{}

func (failingAuditLog) Append(context.Context, domain.AuditRecord) error {
	return errors.New("audit backend down")
}

func (failingAuditLog) List(context.Context, string) ([]domain.AuditRecord, error) {
	return nil, nil
}

type fixture struct {
	registry *registry.Registry
	store    *memory.Store
	audit    *memory.AuditLog
	notifier *recordingNotifier
	cascades atomic.Int32
}

// newFixture registers three small machines:
//
//	order: draft -> pending -> approved|rejected
//	pass:  issued -> used (idempotent)
//	batch: open -> closed, advancing its "line" children pending -> done
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		registry: registry.NewRegistry(),
		store:    memory.NewStore(),
		audit:    memory.NewAuditLog(),
		notifier: &recordingNotifier{},
	}

	require.NoError(t, f.registry.Register(domain.StateDefinition{
		Kind: "order", Collection: "orders",
		States:   []domain.State{"draft", "pending", "approved", "rejected"},
		Initial:  "draft",
		Terminal: []domain.State{"approved", "rejected"},
	},
		domain.TransitionRule{
			Kind: "order", From: "draft", To: "pending", Action: "submit",
			Guard: func(e *domain.Entity, _ domain.TransitionRequest) error {
				items, _ := e.Payload["items"].([]any)
				if len(items) == 0 {
					return domain.Deny(domain.ReasonMissingPrecondition, "order has no items")
				}
				return nil
			},
		},
		domain.TransitionRule{
			Kind: "order", From: "pending", To: "approved", Action: "approve", RequiresRole: "approver",
			Notify: func(e *domain.Entity, req domain.TransitionRequest) []domain.NotificationJob {
				return []domain.NotificationJob{{RecipientID: "requester", Channel: domain.ChannelInApp, SourceEntity: e.Kind, SourceID: e.ID}}
			},
		},
		domain.TransitionRule{
			Kind: "order", From: "pending", To: "rejected", Action: "reject", RequiresRole: "approver",
			Stamp: func(_ *domain.Entity, req domain.TransitionRequest, _ time.Time) map[string]any {
				return map[string]any{"rejection_reason": req.Payload["reason"]}
			},
		},
	))

	require.NoError(t, f.registry.Register(domain.StateDefinition{
		Kind: "pass", Collection: "passes",
		States:   []domain.State{"issued", "used"},
		Initial:  "issued",
		Terminal: []domain.State{"used"},
	},
		domain.TransitionRule{
			Kind: "pass", From: "issued", To: "used", Action: "use", Idempotent: true,
			Cascade: func(context.Context, domain.CascadeContext) error {
				f.cascades.Add(1)
				return nil
			},
			Notify: func(e *domain.Entity, _ domain.TransitionRequest) []domain.NotificationJob {
				return []domain.NotificationJob{{RecipientID: "holder", Channel: domain.ChannelPush, SourceEntity: e.Kind, SourceID: e.ID}}
			},
		},
	))

	require.NoError(t, f.registry.Register(domain.StateDefinition{
		Kind: "batch", Collection: "batches",
		States:   []domain.State{"open", "closed"},
		Initial:  "open",
		Terminal: []domain.State{"closed"},
	},
		domain.TransitionRule{
			Kind: "batch", From: "open", To: "closed", Action: "close",
			Cascade: cascade.AdvanceChildren("line", "pending", "done"),
		},
	))

	require.NoError(t, f.registry.Register(domain.StateDefinition{
		Kind: "line", Collection: "lines",
		States:   []domain.State{"pending", "done"},
		Initial:  "pending",
		Terminal: []domain.State{"done"},
	},
		domain.TransitionRule{Kind: "line", From: "pending", To: "done", Action: "finish"},
	))

	return f
}

func (f *fixture) executor(opts ...runtime.Option) *runtime.Executor {
	return f.executorOn(f.store, opts...)
}

func (f *fixture) executorOn(store ports.EntityStore, opts ...runtime.Option) *runtime.Executor {
	base := []runtime.Option{
		runtime.WithNotifier(f.notifier),
		runtime.WithClock(func() time.Time { return fixedNow }),
	}
	return runtime.NewExecutor(f.registry, store, f.audit, append(base, opts...)...)
}

func (f *fixture) seed(t *testing.T, id string, kind domain.Kind, status domain.State, payload map[string]any) {
	t.Helper()
	e := domain.NewEntity(id, kind, status)
	for k, v := range payload {
		e.Payload[k] = v
	}
	require.NoError(t, f.store.Create(context.Background(), e))
}

func (f *fixture) status(t *testing.T, id string) domain.State {
	t.Helper()
	e, err := f.store.Load(context.Background(), id)
	require.NoError(t, err)
	return e.Status
}

func (f *fixture) auditCount(t *testing.T, id string) int {
	t.Helper()
	records, err := f.audit.List(context.Background(), id)
	require.NoError(t, err)
	return len(records)
}
