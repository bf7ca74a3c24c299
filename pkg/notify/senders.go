package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/ports"
	"github.com/google/uuid"
)

// InboxSender writes in-app notifications as inbox rows.
type InboxSender struct {
	inbox ports.Inbox
	now   func() time.Time
	newID func() string
}

// NewInboxSender creates a sender over inbox.
func NewInboxSender(inbox ports.Inbox) *InboxSender {
	return &InboxSender{inbox: inbox, now: time.Now, newID: uuid.NewString}
}

var keyEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// InboxDedupeKey identifies a notification row per source and recipient.
// Separators inside the parts are percent-escaped.
func InboxDedupeKey(job domain.NotificationJob) string {
	return fmt.Sprintf("%s:%s:%s",
		keyEscaper.Replace(string(job.SourceEntity)),
		keyEscaper.Replace(job.SourceID),
		keyEscaper.Replace(job.RecipientID))
}

// Send stores the job. A row with the same dedupe key is left as is.
func (s *InboxSender) Send(ctx context.Context, job domain.NotificationJob) error {
	priority := job.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	_, err := s.inbox.Put(ctx, domain.InboxItem{
		ID:          s.newID(),
		RecipientID: job.RecipientID,
		DedupeKey:   InboxDedupeKey(job),
		Title:       job.Title,
		Body:        job.Body,
		Priority:    priority,
		Source:      string(job.SourceEntity),
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("inbox put: %w", err)
	}
	return nil
}

// LogSender writes one structured log line per job. It stands in for
// email, SMS and push providers that are not configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a sender logging to logger.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the job.
func (s *LogSender) Send(ctx context.Context, job domain.NotificationJob) error {
	s.logger.InfoContext(ctx, "notification",
		"channel", job.Channel,
		"recipient", job.RecipientID,
		"source", job.SourceEntity,
		"source_id", job.SourceID,
		"priority", job.Priority,
		"title", job.Title,
	)
	return nil
}
