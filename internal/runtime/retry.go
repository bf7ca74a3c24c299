package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/turnstile/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RetryCascade re-runs the cascade of the transition that brought id into its
// current state, rebuilt from that transition's audit record. It returns
// domain.ErrNotFound when the entity or the record is missing, and the
// *domain.CascadeError when the cascade fails again.
//
// Redacted payload values reach the cascade masked.
func (x *Executor) RetryCascade(ctx context.Context, id string) error {
	start := x.now()
	ctx, span := x.tracer.Start(ctx, "turnstile.retry_cascade", trace.WithAttributes(
		attribute.String("turnstile.entity_id", id),
	))
	defer span.End()

	entity, err := x.store.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("load %s: %w", id, err)
	}
	records, err := x.recorder.log.List(ctx, id)
	if err != nil {
		return fmt.Errorf("audit trail %s: %w", id, err)
	}
	var last *domain.AuditRecord
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].To == entity.Status {
			last = &records[i]
			break
		}
	}
	if last == nil {
		return fmt.Errorf("%w: no audit record reaching %s for %s", domain.ErrNotFound, entity.Status, id)
	}

	rule, ok := x.registry.Rule(entity.Kind, last.From, last.To)
	if !ok || rule.Cascade == nil {
		return nil
	}

	req := domain.TransitionRequest{
		EntityID: id, Kind: entity.Kind, To: last.To,
		ActorID: last.ActorID, Payload: requestPayload(last.Metadata),
	}
	logger := x.logger.With("kind", entity.Kind, "id", id, "from", last.From, "to", last.To)
	cc := domain.CascadeContext{Store: x.store, Entity: entity.Clone(), Request: req, At: last.OccurredAt}
	if err := runCascade(ctx, rule, cc); err != nil {
		logger.Warn("cascade retry failed", "err", err)
		span.RecordError(err)
		if x.hooks.OnCascadeFailure != nil {
			x.hooks.OnCascadeFailure(ctx, x.event(domain.EventCascadeFailure, req, last.From, start, err))
		}
		return err
	}
	logger.Info("cascade retried")
	return nil
}

// requestPayload strips the keys the recorder added.
func requestPayload(meta map[string]any) map[string]any {
	out := domain.CloneMap(meta)
	delete(out, domain.MetaVersion)
	delete(out, domain.MetaCascadeError)
	return out
}
