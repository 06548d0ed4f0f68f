package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errInvalidFlow = errors.New("validation failed")

var validateCmd = &cobra.Command{
	Use:   "validate [script]",
	Short: "Check the graph for consistency",
	Long: `Compiles the flow, then walks the graph from its main step and reports dangling
targets, unreachable steps and steps that would loop without waiting for input.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		flow, diags, err := compileFlow(cmd, args)
		printDiagnostics(out, diags)
		if err != nil {
			return err
		}

		found := flow.Validate()
		printDiagnostics(out, found)
		if diags.HasErrors() || found.HasErrors() {
			return errInvalidFlow
		}
		fmt.Fprintln(out, "Graph is valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
