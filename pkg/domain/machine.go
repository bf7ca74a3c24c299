package domain

import (
	"context"
	"time"

	"github.com/aretw0/turnstile/pkg/schema"
)

// Role is the authorization role an actor holds, as supplied by the auth collaborator.
type Role string

// StateDefinition declares the finite state set of a Kind.
type StateDefinition struct {
	Kind Kind `json:"kind" yaml:"kind"`

	// Collection is the URL segment used by transports (e.g. "purchase-orders").
	Collection string `json:"collection" yaml:"collection"`

	States   []State `json:"states" yaml:"states"`
	Initial  State   `json:"initial" yaml:"initial"`
	Terminal []State `json:"terminal,omitempty" yaml:"terminal,omitempty"`
}

// Has reports whether s belongs to the definition.
func (d StateDefinition) Has(s State) bool {
	for _, st := range d.States {
		if st == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends the entity's participation in the lifecycle.
func (d StateDefinition) IsTerminal(s State) bool {
	for _, st := range d.Terminal {
		if st == s {
			return true
		}
	}
	return false
}

// Guard is a pure precondition over the entity snapshot and the request.
// It returns nil to allow or a *GuardError to deny. It must not write.
type Guard func(entity *Entity, req TransitionRequest) error

// StampFunc returns payload fields written atomically with the status change.
type StampFunc func(entity *Entity, req TransitionRequest, at time.Time) map[string]any

// CascadeFunc performs follow-up writes on dependent records after the
// transition is durable. It must be idempotent.
type CascadeFunc func(ctx context.Context, cc CascadeContext) error

// NotifyFunc derives notification jobs from an applied transition.
type NotifyFunc func(entity *Entity, req TransitionRequest) []NotificationJob

// TransitionRule is a directed edge of a Kind's machine.
type TransitionRule struct {
	Kind Kind  `json:"kind"`
	From State `json:"from"`
	To   State `json:"to"`

	// Action is the verb transports expose for this edge (e.g. "approve").
	Action string `json:"action"`

	// RequiresRole, when set, must match the request's actor role.
	RequiresRole Role `json:"requires_role,omitempty"`

	// Idempotent edges tolerate re-invocation once the target is reached:
	// the existing entity is returned and no side effect is re-applied.
	Idempotent bool `json:"idempotent,omitempty"`

	// Input, when set, is checked against the request payload before Guard.
	Input schema.Schema `json:"input,omitempty"`

	Guard   Guard       `json:"-"`
	Stamp   StampFunc   `json:"-"`
	Cascade CascadeFunc `json:"-"`
	Notify  NotifyFunc  `json:"-"`
}

// CascadeContext is handed to a rule's cascade once the transition is durable.
type CascadeContext struct {
	Store   CascadeStore
	Entity  *Entity
	Request TransitionRequest
	At      time.Time
}

// CascadeStore is the subset of storage a cascade may use for dependent writes.
// It is declared here (rather than in ports) to keep rule declarations free of
// adapter imports.
type CascadeStore interface {
	Load(ctx context.Context, id string) (*Entity, error)
	Create(ctx context.Context, entity *Entity) error
	CompareAndSwap(ctx context.Context, m Mutation) (*Entity, error)
	Patch(ctx context.Context, id string, fields map[string]any) (*Entity, error)
	ListChildren(ctx context.Context, parentID string, kind Kind) ([]*Entity, error)
}
