package kinds

import (
	"strings"
	"time"

	"github.com/aretw0/turnstile/pkg/cascade"
	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/dsl"
	"github.com/aretw0/turnstile/pkg/registry"
)

const (
	KindSupportTicket domain.Kind = "support_ticket"
	KindTicketComment domain.Kind = "ticket_comment"
)

// TicketStatus enumerates support ticket states.
type TicketStatus string

const (
	TicketNew      TicketStatus = "new"
	TicketOpen     TicketStatus = "open"
	TicketResolved TicketStatus = "resolved"
	TicketClosed   TicketStatus = "closed"
)

// CommentStatus enumerates ticket comment states. Comments never move.
type CommentStatus string

const CommentPosted CommentStatus = "posted"

// SupportTicket is the payload of a support ticket entity.
type SupportTicket struct {
	Subject    string `json:"subject"`
	ReporterID string `json:"reporter_id"`
	AssignedTo string `json:"assigned_to"`
}

// assignment accepts both the snake_case and camelCase spelling of the assignee.
type assignment struct {
	AssignedToUserID string `json:"assigned_to_user_id"`
	AssignedToCamel  string `json:"assignedToUserId"`
}

func (a assignment) assignee() string {
	if a.AssignedToUserID != "" {
		return strings.TrimSpace(a.AssignedToUserID)
	}
	return strings.TrimSpace(a.AssignedToCamel)
}

type resolution struct {
	Note string `json:"note"`
}

// ResolutionCommentID is the deterministic ID of a ticket's resolution note.
func ResolutionCommentID(ticketID string) string {
	return ticketID + ":resolution"
}

func requireAssignee(_ *domain.Entity, req domain.TransitionRequest) error {
	a, err := decode[assignment](req.Payload)
	if err != nil {
		return domain.Deny(domain.ReasonMissingPrecondition, "%v", err)
	}
	if a.assignee() == "" {
		return domain.Deny(domain.ReasonMissingPrecondition, "assigned_to_user_id is required")
	}
	return nil
}

func resolutionComment(cc domain.CascadeContext) *domain.Entity {
	res, _ := decode[resolution](cc.Request.Payload)
	note := strings.TrimSpace(res.Note)
	if note == "" {
		return nil
	}
	c := domain.NewEntity(ResolutionCommentID(cc.Entity.ID), KindTicketComment, domain.State(CommentPosted))
	c.Payload["body"] = note
	c.Payload["author_id"] = cc.Request.ActorID
	return c
}

func registerSupportTicket(r *registry.Registry) error {
	m := dsl.New[TicketStatus](KindSupportTicket, "tickets").
		States(TicketNew, TicketOpen, TicketResolved, TicketClosed).
		Terminal(TicketClosed)

	m.Edge("assign", TicketNew, TicketOpen).
		Guard(requireAssignee).
		Stamp(func(_ *domain.Entity, req domain.TransitionRequest, _ time.Time) map[string]any {
			a, _ := decode[assignment](req.Payload)
			return map[string]any{"assigned_to": a.assignee()}
		}).
		Notify(func(e *domain.Entity, _ domain.TransitionRequest) []domain.NotificationJob {
			t, _ := decode[SupportTicket](e.Payload)
			return notice(t.AssignedTo, domain.ChannelInApp, e, domain.PriorityNormal,
				"Ticket assigned", "You were assigned ticket "+e.ID+": "+t.Subject)
		})

	m.Edge("resolve", TicketOpen, TicketResolved).
		Cascade(cascade.CreateChild(resolutionComment)).
		Notify(func(e *domain.Entity, _ domain.TransitionRequest) []domain.NotificationJob {
			t, _ := decode[SupportTicket](e.Payload)
			return notice(t.ReporterID, domain.ChannelEmail, e, domain.PriorityNormal,
				"Ticket resolved", "Your ticket "+e.ID+" was resolved.")
		})

	m.Edge("close", TicketResolved, TicketClosed)

	return m.Register(r)
}

func registerTicketComment(r *registry.Registry) error {
	return dsl.New[CommentStatus](KindTicketComment, "ticket-comments").
		States(CommentPosted).
		Register(r)
}
