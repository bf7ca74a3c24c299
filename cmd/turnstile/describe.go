package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/turnstile/internal/presentation/graph"
	"github.com/aretw0/turnstile/internal/presentation/tui"
	"github.com/aretw0/turnstile/pkg/kinds"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var describeCmd = &cobra.Command{
	Use:   "describe [kind]",
	Short: "Describe states and actions of the registered machines",
	Long:  `Prints markdown for one kind or every kind. On a terminal the markdown is rendered.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		machines, err := selectMachines(kinds.NewRegistry(), args)
		if err != nil {
			return err
		}

		docs := make([]string, len(machines))
		for i, m := range machines {
			docs[i] = graph.Describe(m)
		}
		markdown := strings.Join(docs, "\n---\n\n")

		raw, _ := cmd.Flags().GetBool("raw")
		fd := int(os.Stdout.Fd())
		if raw || !term.IsTerminal(fd) {
			fmt.Fprint(cmd.OutOrStdout(), markdown)
			return nil
		}

		width, _, err := term.GetSize(fd)
		if err != nil {
			width = 0
		}
		render, err := tui.NewRenderer(width)
		if err != nil {
			return err
		}
		out, err := render(markdown)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().Bool("raw", false, "Print markdown even on a terminal")
}
