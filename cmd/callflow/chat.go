package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/callflow/internal/cli"
	"github.com/aretw0/callflow/internal/presentation/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat [script]",
	Short: "Talk to a flow in the terminal",
	Long: `Starts one session and connects it to the terminal: every line typed is the
caller's answer and every message of the flow is printed. Type exit to hang up.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runOptions(cmd, args)
		cfg, logger, err := cli.Load(opts)
		if err != nil {
			return err
		}
		identity, _ := cmd.Flags().GetString("name")
		headless, _ := cmd.Flags().GetBool("headless")
		pairs, _ := cmd.Flags().GetStringArray("var")

		vars, err := parseVars(pairs)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := cli.NewApp(ctx, cfg, logger, opts.Strict)
		if err != nil {
			return err
		}
		defer app.Close(context.Background())

		chat := cli.ChatOptions{
			Identity:  identity,
			Variables: vars,
			Headless:  headless || !tui.IsTerminal(os.Stdout),
			Input:     os.Stdin,
			Output:    os.Stdout,
		}
		if !chat.Headless {
			chat.Renderer = tui.NewRenderer()
		}
		return cli.RunChat(ctx, app, chat)
	},
}

func parseVars(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --var %q, want name=value", p)
		}
		vars[strings.TrimSpace(name)] = value
	}
	return vars, nil
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("name", "", "Caller name, available to the script as $name")
	chatCmd.Flags().StringArray("var", nil, "Set a variable before the flow starts (name=value, repeatable)")
	chatCmd.Flags().Bool("headless", false, "Plain output without banner or markdown rendering")
}
