package kinds

import (
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/registry"
	"github.com/aretw0/turnstile/pkg/schema"
	"github.com/mitchellh/mapstructure"
)

// Roles required by the built-in machines.
const (
	RoleApprover     domain.Role = "approver"
	RolePayrollAdmin domain.Role = "payroll_admin"
	RoleManager      domain.Role = "manager"
)

// RegisterAll registers every built-in machine.
func RegisterAll(r *registry.Registry) error {
	for _, register := range []func(*registry.Registry) error{
		registerPurchaseOrder,
		registerPayrollRun,
		registerPayrollItem,
		registerTimeEntry,
		registerLeaveRequest,
		registerEventRegistration,
		registerSupportTicket,
		registerTicketComment,
	} {
		if err := register(r); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding every built-in machine.
// It panics if a machine is malformed.
func NewRegistry() *registry.Registry {
	r := registry.NewRegistry()
	if err := RegisterAll(r); err != nil {
		panic(err)
	}
	return r
}

// decode maps a JSON-like payload onto T using its json tags.
func decode[T any](payload map[string]any) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(payload); err != nil {
		return out, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}

// reasonInput is the input required by reject-style actions.
var reasonInput = schema.Schema{"reason": schema.NonBlank()}

// decision is the request payload of reject-style actions.
type decision struct {
	Reason string `json:"reason"`
}

func stampRejectionReason(_ *domain.Entity, req domain.TransitionRequest, _ time.Time) map[string]any {
	d, _ := decode[decision](req.Payload)
	return map[string]any{"rejection_reason": strings.TrimSpace(d.Reason)}
}

// notice builds a single job, or none when the recipient is unknown.
func notice(recipient string, channel domain.Channel, e *domain.Entity, priority domain.Priority, title, body string) []domain.NotificationJob {
	if recipient == "" {
		return nil
	}
	return []domain.NotificationJob{{
		RecipientID:  recipient,
		Channel:      channel,
		SourceEntity: e.Kind,
		SourceID:     e.ID,
		Title:        title,
		Body:         body,
		Priority:     priority,
	}}
}
