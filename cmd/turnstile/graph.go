package main

import (
	"fmt"

	"github.com/aretw0/turnstile/internal/cli"
	"github.com/aretw0/turnstile/internal/presentation/graph"
	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/kinds"
	"github.com/aretw0/turnstile/pkg/registry"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph [kind]",
	Short: "Export state machine diagrams",
	Long: `Outputs a Mermaid diagram (stateDiagram-v2) for one kind, or for every kind.
With --entity, the entity's history is loaded from the configured store and
highlighted on its machine.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := kinds.NewRegistry()
		entityID, _ := cmd.Flags().GetString("entity")

		if entityID != "" {
			return graphEntity(cmd, reg, entityID)
		}

		machines, err := selectMachines(reg, args)
		if err != nil {
			return err
		}
		for i, m := range machines {
			if i > 0 {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(m, nil))
		}
		return nil
	},
}

func graphEntity(cmd *cobra.Command, reg *registry.Registry, id string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	stack, err := cli.CreateEngine(cmd.Context(), cfg, newLogger(cfg), domain.LifecycleHooks{})
	if err != nil {
		return err
	}
	defer stack.Close()

	e, err := stack.Engine.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	records, err := stack.Engine.AuditTrail(cmd.Context(), id)
	if err != nil {
		return err
	}
	m, ok := reg.Machine(e.Kind)
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrUnknownKind, e.Kind)
	}
	fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(m, graph.OverlayFromAudit(e.Status, records)))
	return nil
}

// selectMachines returns the named kind, or every machine when args is empty.
func selectMachines(reg *registry.Registry, args []string) ([]registry.Machine, error) {
	if len(args) == 0 {
		return reg.Machines(), nil
	}
	m, ok := reg.Machine(domain.Kind(args[0]))
	if !ok {
		return nil, fmt.Errorf("%w: %s (known: %v)", registry.ErrUnknownKind, args[0], reg.Kinds())
	}
	return []registry.Machine{m}, nil
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("entity", "", "Highlight the history of this entity ID")
}
