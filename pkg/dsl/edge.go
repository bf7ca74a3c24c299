package dsl

import (
	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/schema"
)

// EdgeBuilder provides a fluent API for configuring a transition rule.
type EdgeBuilder[S ~string] struct {
	rule    domain.TransitionRule
	builder *Builder[S]
}

// Requires restricts the edge to actors holding role.
func (e *EdgeBuilder[S]) Requires(role domain.Role) *EdgeBuilder[S] {
	e.rule.RequiresRole = role
	return e
}

// Idempotent makes re-invocation on an entity already in the target state
// return it unchanged instead of failing.
func (e *EdgeBuilder[S]) Idempotent() *EdgeBuilder[S] {
	e.rule.Idempotent = true
	return e
}

// Input declares the payload fields a request must carry. Fields accumulate
// across calls.
func (e *EdgeBuilder[S]) Input(s schema.Schema) *EdgeBuilder[S] {
	if e.rule.Input == nil {
		e.rule.Input = schema.Schema{}
	}
	for name, typ := range s {
		e.rule.Input[name] = typ
	}
	return e
}

// Guard sets the precondition. Multiple calls compose; the first denial wins.
func (e *EdgeBuilder[S]) Guard(g domain.Guard) *EdgeBuilder[S] {
	prev := e.rule.Guard
	if prev == nil {
		e.rule.Guard = g
		return e
	}
	e.rule.Guard = func(entity *domain.Entity, req domain.TransitionRequest) error {
		if err := prev(entity, req); err != nil {
			return err
		}
		return g(entity, req)
	}
	return e
}

// Stamp sets the fields written together with the status change.
func (e *EdgeBuilder[S]) Stamp(fn domain.StampFunc) *EdgeBuilder[S] {
	e.rule.Stamp = fn
	return e
}

// Cascade sets the follow-up write run after the transition is durable.
func (e *EdgeBuilder[S]) Cascade(fn domain.CascadeFunc) *EdgeBuilder[S] {
	e.rule.Cascade = fn
	return e
}

// Notify sets the derivation of notification jobs.
func (e *EdgeBuilder[S]) Notify(fn domain.NotifyFunc) *EdgeBuilder[S] {
	e.rule.Notify = fn
	return e
}

// Edge starts the next transition of the same machine.
func (e *EdgeBuilder[S]) Edge(action string, from, to S) *EdgeBuilder[S] {
	return e.builder.Edge(action, from, to)
}

// Build returns the underlying rule.
func (e *EdgeBuilder[S]) Build() domain.TransitionRule {
	return e.rule
}
