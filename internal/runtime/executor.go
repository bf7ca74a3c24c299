package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/ports"
	"github.com/aretw0/turnstile/pkg/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/aretw0/turnstile/internal/runtime"

// Notifier receives the jobs derived from an applied transition.
// Implementations must not block the caller on delivery.
type Notifier interface {
	Go(ctx context.Context, jobs []domain.NotificationJob)
}

// Executor performs transitions: load, resolve, guard, conditional write,
// then cascade, notification and audit.
type Executor struct {
	registry *registry.Registry
	store    ports.EntityStore
	recorder *Recorder
	notifier Notifier
	logger   *slog.Logger
	hooks    domain.LifecycleHooks
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(x *Executor) {
		x.logger = logger
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(x *Executor) {
		x.hooks = x.hooks.Merge(hooks)
	}
}

// WithNotifier sets where derived notification jobs go.
func WithNotifier(n Notifier) Option {
	return func(x *Executor) {
		x.notifier = n
	}
}

// WithTracerProvider overrides the global OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(x *Executor) {
		x.tracer = tp.Tracer(tracerName)
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(x *Executor) {
		x.now = now
	}
}

// WithIDGenerator overrides the audit record ID generator.
func WithIDGenerator(newID func() string) Option {
	return func(x *Executor) {
		x.recorder.newID = newID
	}
}

// NewExecutor creates an executor over the given registry, store and audit log.
func NewExecutor(reg *registry.Registry, store ports.EntityStore, audit ports.AuditLog, opts ...Option) *Executor {
	x := &Executor{
		registry: reg,
		store:    store,
		recorder: NewRecorder(audit),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.logger == nil {
		x.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return x
}

// Execute moves req.EntityID to req.To.
//
// It returns domain.ErrNotFound, *domain.InvalidTransitionError,
// *domain.GuardError or domain.ErrConcurrencyConflict (all matchable with
// errors.Is). Cascade and audit failures never fail the call; they are
// reported on the Result.
func (x *Executor) Execute(ctx context.Context, req domain.TransitionRequest) (*domain.Result, error) {
	start := x.now()
	ctx, span := x.tracer.Start(ctx, "turnstile.execute", trace.WithAttributes(
		attribute.String("turnstile.entity_id", req.EntityID),
		attribute.String("turnstile.to", string(req.To)),
	))
	defer span.End()

	// 1. Load
	entity, err := x.store.Load(ctx, req.EntityID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, x.reject(ctx, span, req, "", err)
		}
		return nil, x.fail(span, fmt.Errorf("load %s: %w", req.EntityID, err))
	}
	if req.Kind != "" && entity.Kind != req.Kind {
		return nil, x.reject(ctx, span, req, entity.Status, fmt.Errorf("%w: %s is not a %s", domain.ErrNotFound, req.EntityID, req.Kind))
	}
	req.Kind = entity.Kind
	from := entity.Status
	span.SetAttributes(
		attribute.String("turnstile.kind", string(entity.Kind)),
		attribute.String("turnstile.from", string(from)),
	)

	// 2. Resolve
	def, ok := x.registry.Lookup(entity.Kind)
	if !ok {
		return nil, x.reject(ctx, span, req, from, &domain.InvalidTransitionError{Kind: entity.Kind, From: from, To: req.To})
	}
	rule, ok := x.registry.Rule(entity.Kind, from, req.To)
	if !ok {
		if from == req.To && x.registry.IsIdempotentTarget(entity.Kind, req.To) {
			return x.replay(span, entity), nil
		}
		ite := &domain.InvalidTransitionError{Kind: entity.Kind, From: from, To: req.To}
		switch {
		case def.IsTerminal(from):
			ite.Reason = domain.ReasonTerminalState
		case from == req.To:
			ite.Reason = domain.ReasonAlreadyInTargetState
		}
		return nil, x.reject(ctx, span, req, from, ite)
	}

	// 3. Optimistic expectation
	if req.ExpectedCurrent != "" && req.ExpectedCurrent != from {
		err := fmt.Errorf("%w: expected '%s', found '%s'", domain.ErrConcurrencyConflict, req.ExpectedCurrent, from)
		return nil, x.conflict(ctx, span, req, from, err)
	}

	// 4. Guard
	if err := Evaluate(def, rule, entity, req); err != nil {
		return nil, x.reject(ctx, span, req, from, err)
	}

	// 5. Conditional write
	at := x.now().UTC()
	var fields map[string]any
	if rule.Stamp != nil {
		fields = rule.Stamp(entity.Clone(), req, at)
	}
	updated, err := x.store.CompareAndSwap(ctx, domain.Mutation{
		ID: entity.ID, From: from, To: req.To, ActorID: req.ActorID, At: at, Fields: fields,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrConcurrencyConflict):
			if rule.Idempotent {
				// The winner may have reached the same target; that is a replay.
				if current, lerr := x.store.Load(ctx, entity.ID); lerr == nil && current.Status == req.To {
					return x.replay(span, current), nil
				}
			}
			return nil, x.conflict(ctx, span, req, from, err)
		case errors.Is(err, domain.ErrNotFound):
			return nil, x.reject(ctx, span, req, from, err)
		}
		return nil, x.fail(span, fmt.Errorf("write %s: %w", entity.ID, err))
	}

	result := &domain.Result{Entity: updated, From: from, To: req.To, Applied: true}
	logger := x.logger.With("kind", updated.Kind, "id", updated.ID, "from", from, "to", req.To, "actor", req.ActorID)

	// 6. Cascade
	cc := domain.CascadeContext{Store: x.store, Entity: updated.Clone(), Request: req, At: at}
	if err := runCascade(ctx, rule, cc); err != nil {
		result.CascadeErr = err
		logger.Warn("cascade failed", "err", err)
		span.RecordError(err)
		if x.hooks.OnCascadeFailure != nil {
			x.hooks.OnCascadeFailure(ctx, x.event(domain.EventCascadeFailure, req, from, start, err))
		}
	}

	// 7. Notifications
	if rule.Notify != nil && x.notifier != nil {
		if jobs := rule.Notify(updated.Clone(), req); len(jobs) > 0 {
			x.notifier.Go(ctx, jobs)
		}
	}

	// 8. Audit
	record, err := x.recorder.Record(ctx, updated, from, req, at, result.CascadeErr)
	result.Record = record
	if err != nil {
		result.AuditErr = err
		logger.Error("audit append failed", "err", err)
		span.RecordError(err)
	}

	logger.Info("transition applied", "version", updated.Version)
	span.SetAttributes(attribute.String("turnstile.outcome", "applied"))
	if x.hooks.OnTransition != nil {
		x.hooks.OnTransition(ctx, x.event(domain.EventTransition, req, from, start, nil))
	}
	return result, nil
}

func (x *Executor) replay(span trace.Span, entity *domain.Entity) *domain.Result {
	x.logger.Debug("idempotent replay", "kind", entity.Kind, "id", entity.ID, "status", entity.Status)
	span.SetAttributes(attribute.String("turnstile.outcome", "replayed"))
	return &domain.Result{Entity: entity, From: entity.Status, To: entity.Status, Applied: false}
}

func (x *Executor) reject(ctx context.Context, span trace.Span, req domain.TransitionRequest, from domain.State, err error) error {
	x.logger.Debug("transition rejected", "kind", req.Kind, "id", req.EntityID, "from", from, "to", req.To, "err", err)
	span.SetAttributes(attribute.String("turnstile.outcome", "rejected"))
	if reason := domain.ReasonOf(err); reason != "" {
		span.SetAttributes(attribute.String("turnstile.reason", string(reason)))
	}
	if x.hooks.OnRejected != nil {
		x.hooks.OnRejected(ctx, x.event(domain.EventRejected, req, from, x.now(), err))
	}
	return err
}

func (x *Executor) conflict(ctx context.Context, span trace.Span, req domain.TransitionRequest, from domain.State, err error) error {
	x.logger.Info("transition conflict", "kind", req.Kind, "id", req.EntityID, "from", from, "to", req.To)
	span.SetAttributes(attribute.String("turnstile.outcome", "conflict"))
	if x.hooks.OnConflict != nil {
		x.hooks.OnConflict(ctx, x.event(domain.EventConflict, req, from, x.now(), err))
	}
	return err
}

func (x *Executor) fail(span trace.Span, err error) error {
	x.logger.Error("transition failed", "err", err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("turnstile.outcome", "error"))
	return err
}

func (x *Executor) event(t domain.EventType, req domain.TransitionRequest, from domain.State, start time.Time, err error) *domain.TransitionEvent {
	now := x.now()
	return &domain.TransitionEvent{
		Timestamp: now,
		Type:      t,
		Kind:      req.Kind,
		EntityID:  req.EntityID,
		ActorID:   req.ActorID,
		From:      from,
		To:        req.To,
		Duration:  now.Sub(start),
		Err:       err,
	}
}
