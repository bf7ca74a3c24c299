package kinds

import (
	"fmt"

	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/dsl"
	"github.com/aretw0/turnstile/pkg/registry"
	"github.com/aretw0/turnstile/pkg/schema"
)

const KindPurchaseOrder domain.Kind = "purchase_order"

// POStatus enumerates purchase order states.
type POStatus string

const (
	PODraft           POStatus = "draft"
	POPendingApproval POStatus = "pending_approval"
	POApproved        POStatus = "approved"
	PORejected        POStatus = "rejected"
)

// LineItem is one row of a purchase order.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// PurchaseOrder is the payload of a purchase order entity.
type PurchaseOrder struct {
	RequestedBy string     `json:"requested_by"`
	ApproverID  string     `json:"approver_id"`
	LineItems   []LineItem `json:"line_items"`
}

// Total sums quantity times unit price over the line items.
func (p PurchaseOrder) Total() float64 {
	var total float64
	for _, li := range p.LineItems {
		total += li.Quantity * li.UnitPrice
	}
	return total
}

// submittable is the payload a draft needs before it can be submitted.
var submittable = schema.Schema{
	"line_items": schema.NonEmptySlice(schema.Object(schema.Schema{
		"description": schema.String(),
		"quantity":    schema.Custom("positive_number", positiveNumber),
		"unit_price":  schema.Float(),
	})),
}

func positiveNumber(v any) error {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	default:
		return fmt.Errorf("expected number, got %T", v)
	}
	if n <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func requireLineItems(e *domain.Entity, _ domain.TransitionRequest) error {
	if err := schema.Validate(submittable, e.Payload); err != nil {
		return domain.Deny(domain.ReasonMissingPrecondition, "purchase order %s: %v", e.ID, err)
	}
	return nil
}

func notifyApprover(e *domain.Entity, _ domain.TransitionRequest) []domain.NotificationJob {
	po, _ := decode[PurchaseOrder](e.Payload)
	return notice(po.ApproverID, domain.ChannelEmail, e, domain.PriorityNormal,
		"Purchase order awaiting approval",
		fmt.Sprintf("Purchase order %s (%.2f) needs your approval.", e.ID, po.Total()))
}

func notifyRequester(verb string) domain.NotifyFunc {
	return func(e *domain.Entity, _ domain.TransitionRequest) []domain.NotificationJob {
		po, _ := decode[PurchaseOrder](e.Payload)
		return notice(po.RequestedBy, domain.ChannelInApp, e, domain.PriorityNormal,
			"Purchase order "+verb,
			fmt.Sprintf("Purchase order %s was %s.", e.ID, verb))
	}
}

func registerPurchaseOrder(r *registry.Registry) error {
	m := dsl.New[POStatus](KindPurchaseOrder, "purchase-orders").
		States(PODraft, POPendingApproval, POApproved, PORejected).
		Terminal(POApproved, PORejected)

	m.Edge("submit", PODraft, POPendingApproval).
		Guard(requireLineItems).
		Notify(notifyApprover)

	m.Edge("approve", POPendingApproval, POApproved).
		Requires(RoleApprover).
		Notify(notifyRequester("approved"))

	m.Edge("reject", POPendingApproval, PORejected).
		Requires(RoleApprover).
		Input(reasonInput).
		Stamp(stampRejectionReason).
		Notify(notifyRequester("rejected"))

	return m.Register(r)
}
