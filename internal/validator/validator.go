package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/turnstile/pkg/domain"
)

// ValidateMachine checks a state definition and its rules for structural
// errors: unknown states, self-loops, duplicate edges, edges into the initial
// state or out of a terminal state, and states unreachable from the initial one.
func ValidateMachine(def domain.StateDefinition, rules []domain.TransitionRule) error {
	var errors []string
	fail := func(format string, args ...any) {
		errors = append(errors, fmt.Sprintf(format, args...))
	}

	if def.Kind == "" {
		fail("kind is empty")
	}
	if def.Collection == "" {
		fail("collection is empty")
	}

	states := make(map[domain.State]bool, len(def.States))
	for _, s := range def.States {
		if states[s] {
			fail("state '%s' declared twice", s)
		}
		states[s] = true
	}
	if !states[def.Initial] {
		fail("initial state '%s' is not declared", def.Initial)
	}
	for _, s := range def.Terminal {
		if !states[s] {
			fail("terminal state '%s' is not declared", s)
		}
	}

	edges := make(map[[2]domain.State]bool, len(rules))
	actions := make(map[string]domain.State)
	next := make(map[domain.State][]domain.State)

	for _, r := range rules {
		edge := fmt.Sprintf("%s -> %s", r.From, r.To)
		if r.Kind != def.Kind {
			fail("rule %s belongs to kind '%s'", edge, r.Kind)
		}
		if !states[r.From] || !states[r.To] {
			fail("rule %s references an undeclared state", edge)
		}
		if r.From == r.To {
			fail("rule %s is a self-loop", edge)
		}
		if r.To == def.Initial {
			fail("rule %s targets the initial state", edge)
		}
		if def.IsTerminal(r.From) {
			fail("rule %s leaves terminal state '%s'", edge, r.From)
		}
		key := [2]domain.State{r.From, r.To}
		if edges[key] {
			fail("duplicate rule %s", edge)
		}
		edges[key] = true

		if r.Action == "" {
			fail("rule %s has no action", edge)
		} else if to, ok := actions[r.Action]; ok && to != r.To {
			fail("action '%s' targets both '%s' and '%s'", r.Action, to, r.To)
		} else {
			actions[r.Action] = r.To
		}
		next[r.From] = append(next[r.From], r.To)
	}

	// Crawl from the initial state.
	visited := map[domain.State]bool{def.Initial: true}
	queue := []domain.State{def.Initial}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, target := range next[current] {
			if !visited[target] {
				visited[target] = true
				queue = append(queue, target)
			}
		}
	}
	for _, s := range def.States {
		if !visited[s] {
			fail("state '%s' is unreachable from '%s'", s, def.Initial)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s: found %d errors:\n- %s", def.Kind, len(errors), strings.Join(errors, "\n- "))
	}
	return nil
}
