package turnstile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/turnstile/internal/runtime"
	"github.com/aretw0/turnstile/pkg/adapters/memory"
	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/kinds"
	"github.com/aretw0/turnstile/pkg/notify"
	"github.com/aretw0/turnstile/pkg/ports"
	"github.com/aretw0/turnstile/pkg/registry"
	"go.opentelemetry.io/otel/trace"
)

// Engine is the high-level entry point for the Turnstile library.
// It wires the registry, storage, audit log and notification dispatcher
// around the internal executor.
type Engine struct {
	executor   *runtime.Executor
	registry   *registry.Registry
	store      ports.EntityStore
	audit      ports.AuditLog
	inbox      ports.Inbox
	dispatcher *notify.Dispatcher
	hooks      domain.LifecycleHooks
	tracer     trace.TracerProvider
	logger     *slog.Logger
	now        func() time.Time
	Name       string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithRegistry replaces the built-in machines.
func WithRegistry(r *registry.Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithStore sets the entity storage collaborator.
func WithStore(s ports.EntityStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithAuditLog sets where audit records are appended.
func WithAuditLog(a ports.AuditLog) Option {
	return func(e *Engine) {
		e.audit = a
	}
}

// WithInbox sets the in-app inbox used by the default dispatcher.
func WithInbox(i ports.Inbox) Option {
	return func(e *Engine) {
		e.inbox = i
	}
}

// WithDispatcher replaces the default notification dispatcher.
func WithDispatcher(d *notify.Dispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls compose.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithTracerProvider sets the OpenTelemetry provider for transition spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		e.tracer = tp
	}
}

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithName labels the engine's log lines.
func WithName(name string) Option {
	return func(e *Engine) {
		e.Name = name
	}
}

// New initializes a new Turnstile Engine.
// Without options it registers the built-in machines and keeps everything in memory.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(eng)
	}

	// Ensure logger is initialized (so we don't pass nil to runtime, which would overwrite its default)
	if eng.logger == nil {
		eng.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("engine", eng.Name)
	}

	if eng.registry == nil {
		reg := registry.NewRegistry()
		if err := kinds.RegisterAll(reg); err != nil {
			return nil, fmt.Errorf("failed to register built-in machines: %w", err)
		}
		eng.registry = reg
	}
	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	if eng.audit == nil {
		eng.audit = memory.NewAuditLog()
	}
	if eng.inbox == nil {
		eng.inbox = memory.NewInbox()
	}
	if eng.dispatcher == nil {
		logSender := notify.NewLogSender(eng.logger)
		eng.dispatcher = notify.New(
			notify.WithLogger(eng.logger),
			notify.WithLifecycleHooks(eng.hooks),
			notify.WithSender(domain.ChannelInApp, notify.NewInboxSender(eng.inbox)),
			notify.WithSender(domain.ChannelEmail, logSender),
			notify.WithSender(domain.ChannelSMS, logSender),
			notify.WithSender(domain.ChannelPush, logSender),
		)
	}

	runtimeOpts := []runtime.Option{
		runtime.WithLogger(eng.logger),
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithNotifier(eng.dispatcher),
		runtime.WithClock(eng.now),
	}
	if eng.tracer != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithTracerProvider(eng.tracer))
	}
	eng.executor = runtime.NewExecutor(eng.registry, eng.store, eng.audit, runtimeOpts...)

	return eng, nil
}

// Execute performs one transition request. See domain errors for the failure taxonomy.
func (e *Engine) Execute(ctx context.Context, req domain.TransitionRequest) (*domain.Result, error) {
	return e.executor.Execute(ctx, req)
}

// Act resolves a transport action (e.g. "purchase-orders", "approve") and executes it.
// Kind, To and EntityID of req are filled in from the route.
func (e *Engine) Act(ctx context.Context, collection, id, action string, req domain.TransitionRequest) (*domain.Result, error) {
	kind, to, err := e.registry.ResolveAction(collection, action)
	if err != nil {
		return nil, err
	}
	req.EntityID, req.Kind, req.To = id, kind, to
	return e.executor.Execute(ctx, req)
}

// RetryCascade re-runs the cascade of the transition that brought id into its
// current state. Use it after a Result carried a CascadeErr.
func (e *Engine) RetryCascade(ctx context.Context, id string) error {
	return e.executor.RetryCascade(ctx, id)
}

// Create stores a new entity. An empty status means the kind's initial state.
// Entities only ever start in the initial state.
func (e *Engine) Create(ctx context.Context, entity *domain.Entity) (*domain.Entity, error) {
	def, ok := e.registry.Lookup(entity.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrUnknownKind, entity.Kind)
	}
	next := entity.Clone()
	if next.Status == "" {
		next.Status = def.Initial
	}
	if next.Status != def.Initial {
		return nil, &domain.InvalidTransitionError{Kind: entity.Kind, To: next.Status}
	}
	next.Version = 0
	next.TransitionedBy, next.TransitionedAt = "", nil
	if next.CreatedAt.IsZero() {
		next.CreatedAt = e.now().UTC()
	}
	if err := e.store.Create(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Get loads an entity.
func (e *Engine) Get(ctx context.Context, id string) (*domain.Entity, error) {
	return e.store.Load(ctx, id)
}

// AuditTrail returns the entity's audit records in append order.
func (e *Engine) AuditTrail(ctx context.Context, id string) ([]domain.AuditRecord, error) {
	return e.audit.List(ctx, id)
}

// Inbox returns a recipient's in-app notifications, newest first.
func (e *Engine) Inbox(ctx context.Context, recipientID string) ([]domain.InboxItem, error) {
	return e.inbox.List(ctx, recipientID)
}

// ResolveAction maps a transport route to a kind and target state.
func (e *Engine) ResolveAction(collection, action string) (domain.Kind, domain.State, error) {
	return e.registry.ResolveAction(collection, action)
}

// KindOf maps a collection to its kind.
func (e *Engine) KindOf(collection string) (domain.Kind, bool) {
	return e.registry.KindOf(collection)
}

// Machines returns every registered machine.
func (e *Engine) Machines() []registry.Machine {
	return e.registry.Machines()
}

// Registry returns the underlying registry.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Wait blocks until in-flight notification dispatches have finished.
func (e *Engine) Wait() {
	e.dispatcher.Wait()
}

// Close drains in-flight notifications.
func (e *Engine) Close() error {
	e.dispatcher.Wait()
	return nil
}
