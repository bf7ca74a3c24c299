package kinds

import (
	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/dsl"
	"github.com/aretw0/turnstile/pkg/registry"
)

const KindLeaveRequest domain.Kind = "leave_request"

// LeaveStatus enumerates leave request states.
type LeaveStatus string

const (
	LeavePending  LeaveStatus = "pending"
	LeaveApproved LeaveStatus = "approved"
	LeaveRejected LeaveStatus = "rejected"
)

// LeaveRequest is the payload of a leave request entity.
type LeaveRequest struct {
	EmployeeID string `json:"employee_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
}

func notifyEmployeeLeave(verb string) domain.NotifyFunc {
	return func(e *domain.Entity, _ domain.TransitionRequest) []domain.NotificationJob {
		lr, _ := decode[LeaveRequest](e.Payload)
		return notice(lr.EmployeeID, domain.ChannelEmail, e, domain.PriorityNormal,
			"Leave request "+verb,
			"Your leave from "+lr.StartDate+" to "+lr.EndDate+" was "+verb+".")
	}
}

func registerLeaveRequest(r *registry.Registry) error {
	m := dsl.New[LeaveStatus](KindLeaveRequest, "leave-requests").
		States(LeavePending, LeaveApproved, LeaveRejected).
		Terminal(LeaveApproved, LeaveRejected)

	m.Edge("approve", LeavePending, LeaveApproved).
		Requires(RoleManager).
		Notify(notifyEmployeeLeave("approved"))

	m.Edge("reject", LeavePending, LeaveRejected).
		Requires(RoleManager).
		Input(reasonInput).
		Stamp(stampRejectionReason).
		Notify(notifyEmployeeLeave("rejected"))

	return m.Register(r)
}
