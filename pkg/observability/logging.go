package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/turnstile/pkg/domain"
)

// LogHooks writes one structured line per engine event.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	attrs := func(e *domain.TransitionEvent) []any {
		return []any{
			"kind", e.Kind,
			"entity_id", e.EntityID,
			"actor_id", e.ActorID,
			"from", e.From,
			"to", e.To,
		}
	}
	return domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.InfoContext(ctx, "transition applied", append(attrs(e), "duration", e.Duration)...)
		},
		OnRejected: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.InfoContext(ctx, "transition rejected", append(attrs(e), "reason", domain.ReasonOf(e.Err), "err", e.Err)...)
		},
		OnConflict: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.WarnContext(ctx, "transition conflict", attrs(e)...)
		},
		OnCascadeFailure: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.ErrorContext(ctx, "cascade failed", append(attrs(e), "err", e.Err)...)
		},
		OnDispatchFailure: func(ctx context.Context, e *domain.DispatchError) {
			logger.WarnContext(ctx, "notification dispatch failed",
				"recipient_id", e.Job.RecipientID,
				"channel", e.Job.Channel,
				"source_id", e.Job.SourceID,
				"err", e.Cause,
			)
		},
	}
}
