package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/callflow/internal/cli"
	mcpadapter "github.com/aretw0/callflow/pkg/adapters/mcp"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp [script]",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes flow sessions as MCP tools, so an agent can play the caller.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runOptions(cmd, args)
		cfg, logger, err := cli.Load(opts)
		if err != nil {
			return err
		}
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")
		baseURL, _ := cmd.Flags().GetString("base-url")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := cli.NewApp(ctx, cfg, logger, opts.Strict)
		if err != nil {
			return err
		}
		defer app.Close(context.Background())

		go func() {
			if err := app.Watch(ctx); err != nil {
				logger.Error("Watcher stopped", "err", err)
			}
		}()

		srv := mcpadapter.NewServer(app.Sessions, app.Flows,
			mcpadapter.WithLogger(logger),
			mcpadapter.WithSanitizer(app.Sanitizer),
		)

		switch transport {
		case "stdio":
			// Logs go to Stderr and never corrupt JSON-RPC on Stdout.
			logger.Info("Starting callflow MCP server (stdio)")
			return srv.ServeStdio()
		case "sse":
			if baseURL == "" {
				baseURL = "http://localhost" + addr
			}
			logger.Info("Starting callflow MCP server (SSE)", "address", addr)
			if err := srv.ServeSSE(ctx, addr, baseURL); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("MCP server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport %q (use stdio or sse)", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringP("transport", "t", "stdio", "Transport: stdio or sse")
	mcpCmd.Flags().String("addr", ":8081", "Address for the SSE transport")
	mcpCmd.Flags().String("base-url", "", "Public base URL for the SSE transport")
}
