package domain

// TransitionRequest is a caller's intent to move an entity to a new state.
type TransitionRequest struct {
	EntityID string `json:"entity_id"`
	Kind     Kind   `json:"kind"`
	To       State  `json:"to"`

	ActorID   string `json:"actor_id"`
	ActorRole Role   `json:"actor_role,omitempty"`

	// ExpectedCurrent, when set, must equal the stored status (optimistic concurrency).
	ExpectedCurrent State `json:"expected_current,omitempty"`

	// Payload carries kind-specific input (e.g. {"reason": "..."} for reject).
	Payload map[string]any `json:"payload,omitempty"`
}

// Result is the outcome of a successful Execute call.
type Result struct {
	Entity *Entity `json:"entity"`
	From   State   `json:"from"`
	To     State   `json:"to"`

	// Applied is false when an idempotent edge was replayed: nothing was
	// written, audited, cascaded or notified.
	Applied bool `json:"applied"`

	Record *AuditRecord `json:"audit,omitempty"`

	// CascadeErr and AuditErr are operational failures recorded after the
	// transition became durable. They never turn the call into a failure.
	CascadeErr error `json:"-"`
	AuditErr   error `json:"-"`
}
