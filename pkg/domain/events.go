package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTransition      EventType = "transition"
	EventRejected        EventType = "rejected"
	EventConflict        EventType = "conflict"
	EventCascadeFailure  EventType = "cascade_failure"
	EventDispatchFailure EventType = "dispatch_failure"
)

// TransitionEvent describes one attempt handled by the executor.
type TransitionEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Type      EventType     `json:"type"`
	Kind      Kind          `json:"kind"`
	EntityID  string        `json:"entity_id"`
	ActorID   string        `json:"actor_id"`
	From      State         `json:"from"`
	To        State         `json:"to"`
	Duration  time.Duration `json:"duration,omitempty"`
	Err       error         `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
// Every hook is optional.
type LifecycleHooks struct {
	OnTransition      func(context.Context, *TransitionEvent)
	OnRejected        func(context.Context, *TransitionEvent)
	OnConflict        func(context.Context, *TransitionEvent)
	OnCascadeFailure  func(context.Context, *TransitionEvent)
	OnDispatchFailure func(context.Context, *DispatchError)
}

// Merge returns hooks that call h first and then other for every event.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnTransition:      chain(h.OnTransition, other.OnTransition),
		OnRejected:        chain(h.OnRejected, other.OnRejected),
		OnConflict:        chain(h.OnConflict, other.OnConflict),
		OnCascadeFailure:  chain(h.OnCascadeFailure, other.OnCascadeFailure),
		OnDispatchFailure: chain(h.OnDispatchFailure, other.OnDispatchFailure),
	}
}

func chain[T any](a, b func(context.Context, T)) func(context.Context, T) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, v T) {
		a(ctx, v)
		b(ctx, v)
	}
}
