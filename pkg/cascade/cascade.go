// Package cascade holds reusable side effects for transition rules.
//
// Every cascade here is safe to re-run after a partial failure.
package cascade

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/turnstile/pkg/domain"
)

// AdvanceChildren returns a cascade that moves every child of kind from one
// state to another. Children already in the target state are skipped, and a
// child moved by a concurrent writer to the target counts as done, so the
// cascade can be re-run safely.
func AdvanceChildren(kind domain.Kind, from, to domain.State) domain.CascadeFunc {
	return func(ctx context.Context, cc domain.CascadeContext) error {
		children, err := cc.Store.ListChildren(ctx, cc.Entity.ID, kind)
		if err != nil {
			return fmt.Errorf("list %s children: %w", kind, err)
		}

		var errs []error
		for _, child := range children {
			if child.Status == to {
				continue
			}
			_, err := cc.Store.CompareAndSwap(ctx, domain.Mutation{
				ID: child.ID, From: from, To: to, ActorID: cc.Request.ActorID, At: cc.At,
			})
			if err == nil {
				continue
			}
			if errors.Is(err, domain.ErrConcurrencyConflict) {
				if cur, lerr := cc.Store.Load(ctx, child.ID); lerr == nil && cur.Status == to {
					continue
				}
			}
			errs = append(errs, fmt.Errorf("%s %s: %w", kind, child.ID, err))
		}
		return errors.Join(errs...)
	}
}

// PatchFields returns a cascade that merges the fields computed by fn into
// the transitioned entity's payload.
func PatchFields(fn func(cc domain.CascadeContext) map[string]any) domain.CascadeFunc {
	return func(ctx context.Context, cc domain.CascadeContext) error {
		fields := fn(cc)
		if len(fields) == 0 {
			return nil
		}
		if _, err := cc.Store.Patch(ctx, cc.Entity.ID, fields); err != nil {
			return fmt.Errorf("patch %s: %w", cc.Entity.ID, err)
		}
		return nil
	}
}

// CreateChild returns a cascade that creates the child built by fn, if any.
// The child ID should be deterministic: an existing child counts as success.
func CreateChild(fn func(cc domain.CascadeContext) *domain.Entity) domain.CascadeFunc {
	return func(ctx context.Context, cc domain.CascadeContext) error {
		child := fn(cc)
		if child == nil {
			return nil
		}
		child.ParentID = cc.Entity.ID
		if child.OrgID == "" {
			child.OrgID = cc.Entity.OrgID
		}
		if child.CreatedAt.IsZero() {
			child.CreatedAt = cc.At
		}
		err := cc.Store.Create(ctx, child)
		if err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			return fmt.Errorf("create %s %s: %w", child.Kind, child.ID, err)
		}
		return nil
	}
}

// All runs several cascades in order, collecting every failure.
func All(fns ...domain.CascadeFunc) domain.CascadeFunc {
	return func(ctx context.Context, cc domain.CascadeContext) error {
		var errs []error
		for _, fn := range fns {
			if err := fn(ctx, cc); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
