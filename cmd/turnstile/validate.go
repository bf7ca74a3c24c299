package main

import (
	"fmt"

	"github.com/aretw0/turnstile/internal/validator"
	"github.com/aretw0/turnstile/pkg/kinds"
	"github.com/aretw0/turnstile/pkg/registry"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the built-in machines for consistency",
	Long: `Registers every built-in machine and re-checks each one: declared states,
reachability from the initial state, no edges out of terminal states, unique actions.
With --config, the configuration file and environment are validated too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			if _, err := loadConfig(cmd); err != nil {
				return fmt.Errorf("config: %w", err)
			}
		}

		reg := registry.NewRegistry()
		if err := kinds.RegisterAll(reg); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		for _, m := range reg.Machines() {
			if err := validator.ValidateMachine(m.Definition, m.Rules); err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-20s %d states, %d actions\n",
				m.Definition.Kind, len(m.Definition.States), len(m.Rules))
		}
		fmt.Fprintln(cmd.OutOrStdout(), "All machines are valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
