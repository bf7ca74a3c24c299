package kinds

import (
	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/dsl"
	"github.com/aretw0/turnstile/pkg/registry"
)

const KindTimeEntry domain.Kind = "time_entry"

// TimeEntryStatus enumerates time entry states.
type TimeEntryStatus string

const (
	TimeEntrySubmitted TimeEntryStatus = "submitted"
	TimeEntryApproved  TimeEntryStatus = "approved"
)

// TimeEntry is the payload of a time entry entity.
type TimeEntry struct {
	EmployeeID string `json:"employee_id"`
	ClockIn    string `json:"clock_in"`
	ClockOut   string `json:"clock_out"`
}

func registerTimeEntry(r *registry.Registry) error {
	m := dsl.New[TimeEntryStatus](KindTimeEntry, "time-entries").
		States(TimeEntrySubmitted, TimeEntryApproved).
		Terminal(TimeEntryApproved)

	m.Edge("approve", TimeEntrySubmitted, TimeEntryApproved).
		Requires(RoleManager).
		Notify(func(e *domain.Entity, _ domain.TransitionRequest) []domain.NotificationJob {
			te, _ := decode[TimeEntry](e.Payload)
			return notice(te.EmployeeID, domain.ChannelInApp, e, domain.PriorityLow,
				"Time entry approved", "Your time entry "+e.ID+" was approved.")
		})

	return m.Register(r)
}
