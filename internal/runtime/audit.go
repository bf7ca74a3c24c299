package runtime

import (
	"context"
	"time"

	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/ports"
	"github.com/google/uuid"
)

// Recorder appends one audit record per applied transition.
type Recorder struct {
	log   ports.AuditLog
	newID func() string
}

// NewRecorder creates a recorder writing to log.
func NewRecorder(log ports.AuditLog) *Recorder {
	return &Recorder{log: log, newID: uuid.NewString}
}

// Record builds the record for the move of entity from `from` and appends it.
// A non-nil cascadeErr is kept in the metadata for follow-up.
// The record is returned even if the append fails.
func (r *Recorder) Record(ctx context.Context, entity *domain.Entity, from domain.State, req domain.TransitionRequest, at time.Time, cascadeErr error) (*domain.AuditRecord, error) {
	meta := domain.CloneMap(req.Payload)
	meta[domain.MetaVersion] = entity.Version
	if cascadeErr != nil {
		meta[domain.MetaCascadeError] = cascadeErr.Error()
	}

	record := domain.AuditRecord{
		ID:         r.newID(),
		EntityID:   entity.ID,
		Kind:       entity.Kind,
		ActorID:    req.ActorID,
		From:       from,
		To:         entity.Status,
		OccurredAt: at,
		Metadata:   meta,
	}
	if err := r.log.Append(ctx, record); err != nil {
		return &record, err
	}
	return &record, nil
}
