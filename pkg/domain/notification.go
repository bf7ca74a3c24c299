package domain

import "time"

// Channel is the delivery medium of a notification.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// Priority orders notifications for providers that support it.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// NotificationJob is one unit of best-effort outbound communication.
type NotificationJob struct {
	RecipientID  string   `json:"recipient_id"`
	Channel      Channel  `json:"channel"`
	SourceEntity Kind     `json:"source_entity"`
	SourceID     string   `json:"source_id"`
	Title        string   `json:"title"`
	Body         string   `json:"body"`
	Priority     Priority `json:"priority"`
}

// JobKey is the comparable identity of a job for deduplication.
type JobKey struct {
	RecipientID  string
	SourceEntity Kind
	SourceID     string
}

// DedupeKey identifies duplicate jobs within one dispatch call.
func (j NotificationJob) DedupeKey() JobKey {
	return JobKey{RecipientID: j.RecipientID, SourceEntity: j.SourceEntity, SourceID: j.SourceID}
}

// InboxItem is an in-app notification row as persisted by an Inbox.
type InboxItem struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	DedupeKey   string    `json:"dedupe_key"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Priority    Priority  `json:"priority"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}
