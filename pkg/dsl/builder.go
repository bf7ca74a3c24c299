package dsl

import (
	"fmt"

	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/registry"
)

// Builder manages the construction of one state machine.
// S is the kind's own state enumeration, so states of another kind cannot be
// mixed in by accident.
type Builder[S ~string] struct {
	def   domain.StateDefinition
	edges []*EdgeBuilder[S]
}

// New creates a builder for kind, exposed by transports under collection.
func New[S ~string](kind domain.Kind, collection string) *Builder[S] {
	return &Builder[S]{
		def: domain.StateDefinition{Kind: kind, Collection: collection},
	}
}

// States declares the closed set of states. The first one is the initial
// state unless Initial says otherwise.
func (b *Builder[S]) States(states ...S) *Builder[S] {
	for _, s := range states {
		b.def.States = append(b.def.States, domain.State(s))
	}
	if b.def.Initial == "" && len(states) > 0 {
		b.def.Initial = domain.State(states[0])
	}
	return b
}

// Initial sets the state entities are created in.
func (b *Builder[S]) Initial(s S) *Builder[S] {
	b.def.Initial = domain.State(s)
	return b
}

// Terminal marks states that end the lifecycle.
func (b *Builder[S]) Terminal(states ...S) *Builder[S] {
	for _, s := range states {
		b.def.Terminal = append(b.def.Terminal, domain.State(s))
	}
	return b
}

// Edge adds a transition exposed as action.
func (b *Builder[S]) Edge(action string, from, to S) *EdgeBuilder[S] {
	eb := &EdgeBuilder[S]{
		rule: domain.TransitionRule{
			Kind:   b.def.Kind,
			From:   domain.State(from),
			To:     domain.State(to),
			Action: action,
		},
		builder: b,
	}
	b.edges = append(b.edges, eb)
	return eb
}

// Build returns the definition and its rules without validating them.
func (b *Builder[S]) Build() (domain.StateDefinition, []domain.TransitionRule) {
	rules := make([]domain.TransitionRule, 0, len(b.edges))
	for _, eb := range b.edges {
		rules = append(rules, eb.rule)
	}
	return b.def, rules
}

// Register builds the machine into r.
func (b *Builder[S]) Register(r *registry.Registry) error {
	def, rules := b.Build()
	if err := r.Register(def, rules...); err != nil {
		return fmt.Errorf("failed to register machine: %w", err)
	}
	return nil
}
