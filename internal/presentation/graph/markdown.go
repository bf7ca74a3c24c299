package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/turnstile/pkg/registry"
)

// Describe renders a machine as a markdown document.
func Describe(m registry.Machine) string {
	def := m.Definition
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", def.Kind)
	fmt.Fprintf(&sb, "Collection: `%s`\n\n", def.Collection)

	sb.WriteString("## States\n\n")
	for _, s := range def.States {
		var tags []string
		if s == def.Initial {
			tags = append(tags, "initial")
		}
		if def.IsTerminal(s) {
			tags = append(tags, "terminal")
		}
		if len(tags) > 0 {
			fmt.Fprintf(&sb, "- `%s` _(%s)_\n", s, strings.Join(tags, ", "))
		} else {
			fmt.Fprintf(&sb, "- `%s`\n", s)
		}
	}

	if len(m.Rules) == 0 {
		sb.WriteString("\nNo transitions.\n")
		return sb.String()
	}

	sb.WriteString("\n## Actions\n\n")
	sb.WriteString("| Action | From | To | Role | Guard | Cascade | Notifies | Idempotent |\n")
	sb.WriteString("|---|---|---|---|---|---|---|---|\n")
	for _, r := range m.Rules {
		role := string(r.RequiresRole)
		if role == "" {
			role = "any"
		}
		fmt.Fprintf(&sb, "| `POST /%s/{id}/%s` | %s | %s | %s | %s | %s | %s | %s |\n",
			def.Collection, r.Action, r.From, r.To, role,
			yesNo(r.Guard != nil), yesNo(r.Cascade != nil), yesNo(r.Notify != nil), yesNo(r.Idempotent))
	}
	return sb.String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
