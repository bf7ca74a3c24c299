package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/registry"
)

// Overlay contains the history of one entity to visualize on its machine.
type Overlay struct {
	VisitedStates []domain.State
	CurrentState  domain.State
}

// OverlayFromAudit builds an overlay from an entity's audit trail.
func OverlayFromAudit(current domain.State, records []domain.AuditRecord) *Overlay {
	o := &Overlay{CurrentState: current}
	for _, r := range records {
		o.VisitedStates = append(o.VisitedStates, r.From)
	}
	return o
}

// GenerateMermaid produces a Mermaid stateDiagram-v2 for a machine.
// Edge labels carry the action name, the required role in parentheses and a
// trailing "↺" for idempotent edges. Terminal states get an exit arrow.
func GenerateMermaid(m registry.Machine, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("stateDiagram-v2\n")
	fmt.Fprintf(&sb, "    %%%% %s (%s)\n", m.Definition.Kind, m.Definition.Collection)

	for _, s := range m.Definition.States {
		safe := sanitizeMermaidID(string(s))
		if safe != string(s) {
			fmt.Fprintf(&sb, "    state \"%s\" as %s\n", s, safe)
		}
	}

	fmt.Fprintf(&sb, "    [*] --> %s\n", sanitizeMermaidID(string(m.Definition.Initial)))

	for _, r := range m.Rules {
		label := r.Action
		if r.RequiresRole != "" {
			label += " (" + string(r.RequiresRole) + ")"
		}
		if r.Idempotent {
			label += " ↺"
		}
		fmt.Fprintf(&sb, "    %s --> %s: %s\n",
			sanitizeMermaidID(string(r.From)), sanitizeMermaidID(string(r.To)), strings.ReplaceAll(label, ":", " "))
	}

	for _, s := range m.Definition.Terminal {
		fmt.Fprintf(&sb, "    %s --> [*]\n", sanitizeMermaidID(string(s)))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000\n")

		seen := make(map[string]bool)
		for _, s := range overlay.VisitedStates {
			safe := sanitizeMermaidID(string(s))
			if safe == "" || seen[safe] || s == overlay.CurrentState {
				continue
			}
			seen[safe] = true
			fmt.Fprintf(&sb, "    class %s visited\n", safe)
		}
		if overlay.CurrentState != "" {
			fmt.Fprintf(&sb, "    class %s current\n", sanitizeMermaidID(string(overlay.CurrentState)))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	return r.Replace(id)
}
