package domain

import "time"

// Metadata keys the engine adds to every audit record. The leading underscore
// keeps them apart from request payload keys.
const (
	MetaVersion      = "_version"
	MetaCascadeError = "_cascade_error"
)

// AuditRecord is the immutable trace of one applied transition.
type AuditRecord struct {
	ID         string         `json:"id"`
	EntityID   string         `json:"entity_id"`
	Kind       Kind           `json:"kind"`
	ActorID    string         `json:"actor_id"`
	From       State          `json:"from_state"`
	To         State          `json:"to_state"`
	OccurredAt time.Time      `json:"occurred_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
