package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/turnstile/pkg/domain"
)

// runCascade invokes the rule's cascade and converts failures, including
// panics, into a *domain.CascadeError. The transition is already durable.
func runCascade(ctx context.Context, rule domain.TransitionRule, cc domain.CascadeContext) (err error) {
	if rule.Cascade == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &domain.CascadeError{
				Kind: rule.Kind, EntityID: cc.Entity.ID, From: rule.From, To: rule.To,
				Cause: fmt.Errorf("panic: %v", r),
			}
		}
	}()

	if cerr := rule.Cascade(ctx, cc); cerr != nil {
		return &domain.CascadeError{Kind: rule.Kind, EntityID: cc.Entity.ID, From: rule.From, To: rule.To, Cause: cerr}
	}
	return nil
}
