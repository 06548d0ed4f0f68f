package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/callflow/internal/cli"
)

var rootCmd = &cobra.Command{
	Use:   "callflow",
	Short: "callflow compiles and runs call-flow scripts",
	Long: `callflow compiles line-oriented call-flow scripts into a step graph and runs
one conversation per caller over it, from the terminal, over HTTP or over MCP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default ./callflow.yaml if present)")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("script", "", "Script file to run")
	flags.String("library", "", "Directory of flow documents, used when no script is given")
	flags.String("flow", "", "Flow id inside the library")
	flags.Bool("strict", false, "Refuse scripts with error diagnostics")
}

// runOptions collects the persistent flags. A positional argument, when the
// command takes one, names the script.
func runOptions(cmd *cobra.Command, args []string) cli.RunOptions {
	flags := cmd.Flags()
	opts := cli.RunOptions{}
	opts.ConfigPath, _ = flags.GetString("config")
	opts.LogLevel, _ = flags.GetString("log-level")
	opts.Script, _ = flags.GetString("script")
	opts.LibraryDir, _ = flags.GetString("library")
	opts.FlowID, _ = flags.GetString("flow")
	opts.Strict, _ = flags.GetBool("strict")

	if !flags.Changed("script") && len(args) > 0 {
		opts.Script = args[0]
	}
	return opts
}
