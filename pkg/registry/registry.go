package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/turnstile/internal/validator"
	"github.com/aretw0/turnstile/pkg/domain"
)

var (
	// ErrUnknownKind is returned when a kind or collection was never registered.
	ErrUnknownKind = errors.New("unknown kind")

	// ErrUnknownAction is returned when a collection has no rule with the action.
	ErrUnknownAction = errors.New("unknown action")
)

// Machine is a registered state definition with its rules.
type Machine struct {
	Definition domain.StateDefinition  `json:"definition"`
	Rules      []domain.TransitionRule `json:"rules"`
}

type route struct {
	kind domain.Kind
	to   domain.State
}

type entry struct {
	machine Machine
	edges   map[[2]domain.State]domain.TransitionRule
}

// Registry manages the state machines known to the engine.
// Registration happens at startup; lookups are safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	kinds       map[domain.Kind]*entry
	collections map[string]map[string]route
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds:       make(map[domain.Kind]*entry),
		collections: make(map[string]map[string]route),
	}
}

// Register validates and adds a machine.
// Duplicate kinds, duplicate collections and any structural error in the
// definition fail here rather than at call time.
func (r *Registry) Register(def domain.StateDefinition, rules ...domain.TransitionRule) error {
	if err := validator.ValidateMachine(def, rules); err != nil {
		return fmt.Errorf("register %s: %w", def.Kind, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.kinds[def.Kind]; ok {
		return fmt.Errorf("register %s: kind already registered", def.Kind)
	}
	if _, ok := r.collections[def.Collection]; ok {
		return fmt.Errorf("register %s: collection '%s' already registered", def.Kind, def.Collection)
	}

	e := &entry{
		machine: Machine{Definition: def, Rules: append([]domain.TransitionRule(nil), rules...)},
		edges:   make(map[[2]domain.State]domain.TransitionRule, len(rules)),
	}
	routes := make(map[string]route)
	for _, rule := range rules {
		e.edges[[2]domain.State{rule.From, rule.To}] = rule
		routes[rule.Action] = route{kind: def.Kind, to: rule.To}
	}

	r.kinds[def.Kind] = e
	r.collections[def.Collection] = routes
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(def domain.StateDefinition, rules ...domain.TransitionRule) {
	if err := r.Register(def, rules...); err != nil {
		panic(err)
	}
}

// Lookup returns the state definition of kind.
func (r *Registry) Lookup(kind domain.Kind) (domain.StateDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.kinds[kind]
	if !ok {
		return domain.StateDefinition{}, false
	}
	return e.machine.Definition, true
}

// EdgesFrom returns the rules leaving state, in registration order.
func (r *Registry) EdgesFrom(kind domain.Kind, state domain.State) []domain.TransitionRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.kinds[kind]
	if !ok {
		return nil
	}
	var out []domain.TransitionRule
	for _, rule := range e.machine.Rules {
		if rule.From == state {
			out = append(out, rule)
		}
	}
	return out
}

// Rule resolves the edge (from, to) of kind.
func (r *Registry) Rule(kind domain.Kind, from, to domain.State) (domain.TransitionRule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.kinds[kind]
	if !ok {
		return domain.TransitionRule{}, false
	}
	rule, ok := e.edges[[2]domain.State{from, to}]
	return rule, ok
}

// ResolveAction maps a transport route (collection, action) to a kind and target state.
func (r *Registry) ResolveAction(collection, action string) (domain.Kind, domain.State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	routes, ok := r.collections[collection]
	if !ok {
		return "", "", fmt.Errorf("%w: collection '%s'", ErrUnknownKind, collection)
	}
	rt, ok := routes[action]
	if !ok {
		return "", "", fmt.Errorf("%w: '%s' on %s", ErrUnknownAction, action, collection)
	}
	return rt.kind, rt.to, nil
}

// KindOf maps a collection to its kind.
func (r *Registry) KindOf(collection string) (domain.Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for kind, e := range r.kinds {
		if e.machine.Definition.Collection == collection {
			return kind, true
		}
	}
	return "", false
}

// IsIdempotentTarget reports whether state is reached by an idempotent rule.
func (r *Registry) IsIdempotentTarget(kind domain.Kind, state domain.State) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.kinds[kind]
	if !ok {
		return false
	}
	for _, rule := range e.machine.Rules {
		if rule.To == state && rule.Idempotent {
			return true
		}
	}
	return false
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []domain.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Kind, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Machine returns the registered machine of kind.
func (r *Registry) Machine(kind domain.Kind) (Machine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.kinds[kind]
	if !ok {
		return Machine{}, false
	}
	return e.machine, true
}

// Machines returns every registered machine, sorted by kind.
func (r *Registry) Machines() []Machine {
	kinds := r.Kinds()
	out := make([]Machine, 0, len(kinds))
	for _, k := range kinds {
		if m, ok := r.Machine(k); ok {
			out = append(out, m)
		}
	}
	return out
}
