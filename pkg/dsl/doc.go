/*
Package dsl provides a fluent, type-safe builder for Turnstile state machines.

Each kind declares its own string enumeration of states; the builder is
parameterized by it so an edge can only name states of its own machine.

Example usage:

	type LeaveStatus string

	const (
		LeavePending  LeaveStatus = "pending"
		LeaveApproved LeaveStatus = "approved"
		LeaveRejected LeaveStatus = "rejected"
	)

	m := dsl.New[LeaveStatus]("leave_request", "leave-requests").
		States(LeavePending, LeaveApproved, LeaveRejected).
		Terminal(LeaveApproved, LeaveRejected)

	m.Edge("approve", LeavePending, LeaveApproved).Requires("manager")
	m.Edge("reject", LeavePending, LeaveRejected).Requires("manager").
		Input(schema.Schema{"reason": schema.NonBlank()})

	if err := m.Register(reg); err != nil {
		// structural errors surface at registration time
	}
*/
package dsl
