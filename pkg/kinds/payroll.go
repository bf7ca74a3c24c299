package kinds

import (
	"github.com/aretw0/turnstile/pkg/cascade"
	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/dsl"
	"github.com/aretw0/turnstile/pkg/registry"
	"github.com/aretw0/turnstile/pkg/schema"
)

const (
	KindPayrollRun  domain.Kind = "payroll_run"
	KindPayrollItem domain.Kind = "payroll_item"
)

// PayrollRunStatus enumerates payroll run states.
type PayrollRunStatus string

const (
	PayrollPendingApproval PayrollRunStatus = "pending_approval"
	PayrollApproved        PayrollRunStatus = "approved"
	PayrollPaid            PayrollRunStatus = "paid"
)

// PayrollItemStatus enumerates the states of one employee's payroll line.
type PayrollItemStatus string

const (
	PayrollItemPending PayrollItemStatus = "pending"
	PayrollItemPaid    PayrollItemStatus = "paid"
)

// PayrollRun is the payload of a payroll run entity.
type PayrollRun struct {
	Period      string   `json:"period"`
	EmployeeIDs []string `json:"employee_ids"`
}

// approvable is the payload a run needs before it can be approved.
var approvable = schema.Schema{
	"period":       schema.NonBlank(),
	"employee_ids": schema.Slice(schema.NonBlank()),
}

func requirePayees(e *domain.Entity, _ domain.TransitionRequest) error {
	if err := schema.Validate(approvable, e.Payload); err != nil {
		return domain.Deny(domain.ReasonMissingPrecondition, "payroll run %s: %v", e.ID, err)
	}
	return nil
}

func notifyEmployeesPaid(e *domain.Entity, _ domain.TransitionRequest) []domain.NotificationJob {
	run, _ := decode[PayrollRun](e.Payload)
	var jobs []domain.NotificationJob
	for _, id := range run.EmployeeIDs {
		jobs = append(jobs, notice(id, domain.ChannelInApp, e, domain.PriorityNormal,
			"Payroll paid", "Your pay for "+run.Period+" has been processed.")...)
	}
	// Repeated employee IDs are collapsed by the dispatcher.
	return jobs
}

func registerPayrollRun(r *registry.Registry) error {
	m := dsl.New[PayrollRunStatus](KindPayrollRun, "payroll-runs").
		States(PayrollPendingApproval, PayrollApproved, PayrollPaid).
		Terminal(PayrollPaid)

	m.Edge("approve", PayrollPendingApproval, PayrollApproved).
		Requires(RolePayrollAdmin).
		Guard(requirePayees)

	m.Edge("process", PayrollApproved, PayrollPaid).
		Requires(RolePayrollAdmin).
		Cascade(cascade.AdvanceChildren(KindPayrollItem, domain.State(PayrollItemPending), domain.State(PayrollItemPaid))).
		Notify(notifyEmployeesPaid)

	return m.Register(r)
}

func registerPayrollItem(r *registry.Registry) error {
	m := dsl.New[PayrollItemStatus](KindPayrollItem, "payroll-items").
		States(PayrollItemPending, PayrollItemPaid).
		Terminal(PayrollItemPaid)

	m.Edge("pay", PayrollItemPending, PayrollItemPaid)

	return m.Register(r)
}
