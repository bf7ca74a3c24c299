package kinds

import (
	"strings"
	"time"

	"github.com/aretw0/turnstile/pkg/cascade"
	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/dsl"
	"github.com/aretw0/turnstile/pkg/registry"
)

const KindEventRegistration domain.Kind = "event_registration"

// RegistrationStatus enumerates event registration states.
type RegistrationStatus string

const (
	RegistrationActive    RegistrationStatus = "active"
	RegistrationCancelled RegistrationStatus = "cancelled"
	RegistrationCheckedIn RegistrationStatus = "checked_in"
)

// EventRegistration is the payload of an event registration entity.
type EventRegistration struct {
	EventID    string `json:"event_id"`
	AttendeeID string `json:"attendee_id"`
}

func stampCancellation(cc domain.CascadeContext) map[string]any {
	d, _ := decode[decision](cc.Request.Payload)
	return map[string]any{
		"cancellation_reason": strings.TrimSpace(d.Reason),
		"cancelled_at":        cc.At.Format(time.RFC3339),
	}
}

func registerEventRegistration(r *registry.Registry) error {
	m := dsl.New[RegistrationStatus](KindEventRegistration, "event-registrations").
		States(RegistrationActive, RegistrationCancelled, RegistrationCheckedIn).
		Terminal(RegistrationCancelled, RegistrationCheckedIn)

	m.Edge("cancel", RegistrationActive, RegistrationCancelled).
		Idempotent().
		Cascade(cascade.PatchFields(stampCancellation))

	m.Edge("check-in", RegistrationActive, RegistrationCheckedIn).
		Idempotent().
		Notify(func(e *domain.Entity, _ domain.TransitionRequest) []domain.NotificationJob {
			reg, _ := decode[EventRegistration](e.Payload)
			return notice(reg.AttendeeID, domain.ChannelPush, e, domain.PriorityHigh,
				"Checked in", "Welcome! You are checked in.")
		})

	return m.Register(r)
}
