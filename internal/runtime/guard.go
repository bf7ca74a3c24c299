package runtime

import (
	"errors"

	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/schema"
)

// Evaluate decides whether rule may move entity for req.
// Checks run in order: terminal origin, already in target, actor role, the
// rule's input schema and finally the rule's own guard, which only ever sees
// a copy of the entity.
func Evaluate(def domain.StateDefinition, rule domain.TransitionRule, entity *domain.Entity, req domain.TransitionRequest) error {
	if def.IsTerminal(entity.Status) {
		return domain.Deny(domain.ReasonTerminalState, "%s is in terminal state '%s'", entity.ID, entity.Status)
	}
	if entity.Status == rule.To {
		return domain.Deny(domain.ReasonAlreadyInTargetState, "%s is already '%s'", entity.ID, rule.To)
	}
	if rule.RequiresRole != "" && req.ActorRole != rule.RequiresRole {
		return domain.Deny(domain.ReasonWrongActorRole, "%s requires role '%s'", rule.Action, rule.RequiresRole)
	}
	if err := schema.Validate(rule.Input, req.Payload); err != nil {
		return domain.Deny(domain.ReasonMissingPrecondition, "invalid input: %v", err)
	}
	if rule.Guard == nil {
		return nil
	}

	err := rule.Guard(entity.Clone(), req)
	if err == nil {
		return nil
	}
	var ge *domain.GuardError
	if errors.As(err, &ge) {
		return ge
	}
	return domain.Deny(domain.ReasonMissingPrecondition, "%v", err)
}
