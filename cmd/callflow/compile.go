package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/internal/cli"
	"github.com/aretw0/callflow/pkg/domain"
)

var compileCmd = &cobra.Command{
	Use:   "compile [script]",
	Short: "Compile a script and report diagnostics",
	Long: `Compiles the script and prints its diagnostics and a summary of the graph.
With --json the compiled graph is printed instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flow, diags, err := compileFlow(cmd, args)
		out := cmd.OutOrStdout()
		printDiagnostics(out, diags)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(flow.Graph().Snapshot())
		}

		g := flow.Graph()
		fmt.Fprintf(out, "Compiled %s: %d steps, main %q, %d branch keywords, variables %v\n",
			flow.Name, g.Len(), g.Main(), len(g.Branches()), g.DeclaredVariables())
		return nil
	},
}

// compileFlow loads the configured flow without building a runtime.
func compileFlow(cmd *cobra.Command, args []string) (*callflow.Flow, domain.Diagnostics, error) {
	opts := runOptions(cmd, args)
	cfg, logger, err := cli.Load(opts)
	if err != nil {
		return nil, nil, err
	}
	loader, err := cli.NewFlowLoader(cmd.Context(), cfg, logger, opts.Strict)
	if err != nil {
		return nil, nil, err
	}
	flow, diags, err := loader.Load(cmd.Context())
	if err == nil && flow.Name == "" {
		flow.Name = loader.Name()
	}
	return flow, diags, err
}

func printDiagnostics(w io.Writer, diags domain.Diagnostics) {
	for _, d := range diags {
		fmt.Fprintf(w, "%s [%s]\n", d, d.Code)
	}
}

func init() {
	rootCmd.AddCommand(compileCmd)
	compileCmd.Flags().Bool("json", false, "Print the compiled graph as JSON")
}
