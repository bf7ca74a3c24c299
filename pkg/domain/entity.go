package domain

import (
	"time"
)

// Kind identifies a family of entities sharing one state machine (e.g. "purchase_order").
type Kind string

// State is a node of a Kind's state machine.
type State string

// Entity represents any record whose lifecycle is driven by the engine.
// The backing store owns storage; the engine owns the meaning of Status.
type Entity struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	OrgID    string `json:"org_id,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
	Status   State  `json:"status"`

	// Payload holds kind-specific fields (line items, clock times, reasons...).
	Payload map[string]any `json:"payload,omitempty"`

	// Version increments on every successful write.
	Version int64 `json:"version"`

	TransitionedBy string     `json:"transitioned_by,omitempty"`
	TransitionedAt *time.Time `json:"transitioned_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NewEntity creates an entity in the given state with an empty payload.
func NewEntity(id string, kind Kind, status State) *Entity {
	return &Entity{
		ID:      id,
		Kind:    kind,
		Status:  status,
		Payload: make(map[string]any),
	}
}

// Clone returns a copy of the entity whose payload can be mutated safely.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	next := *e
	next.Payload = CloneMap(e.Payload)
	if e.TransitionedAt != nil {
		at := *e.TransitionedAt
		next.TransitionedAt = &at
	}
	return &next
}

// CloneMap deep-copies nested maps and slices of a JSON-like value tree.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return make(map[string]any)
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		s := make([]any, len(t))
		for i, item := range t {
			s[i] = cloneValue(item)
		}
		return s
	default:
		return v
	}
}

// Mutation describes one conditional write: move ID from From to To, stamping
// the actor and timestamp and merging Fields into the payload.
// It must only apply if the stored status still equals From.
type Mutation struct {
	ID      string
	From    State
	To      State
	ActorID string
	At      time.Time
	Fields  map[string]any
}

// Apply returns a copy of e with the mutation applied. Stores use it to keep
// the write semantics identical across backends.
func (m Mutation) Apply(e *Entity) *Entity {
	next := e.Clone()
	next.Status = m.To
	next.Version++
	next.TransitionedBy = m.ActorID
	at := m.At
	next.TransitionedAt = &at
	for k, v := range m.Fields {
		next.Payload[k] = cloneValue(v)
	}
	return next
}
