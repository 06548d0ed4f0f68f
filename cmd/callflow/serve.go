package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/callflow/internal/cli"
	httpadapter "github.com/aretw0/callflow/pkg/adapters/http"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve [script]",
	Short: "Start the HTTP server",
	Long: `Compiles the flow and serves sessions over a JSON API, with lifecycle events
on /events (SSE) and, when enabled, Prometheus metrics on /metrics.
Edits to the script or library are picked up by new sessions.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runOptions(cmd, args)
		cfg, logger, err := cli.Load(opts)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}
		watch, _ := cmd.Flags().GetBool("watch")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := cli.NewApp(ctx, cfg, logger, opts.Strict)
		if err != nil {
			return err
		}

		serverOpts := []httpadapter.Option{
			httpadapter.WithLogger(logger),
			httpadapter.WithStreams(app.Streams),
			httpadapter.WithSanitizer(app.Sanitizer),
		}
		if h := app.MetricsHandler(); h != nil {
			serverOpts = append(serverOpts, httpadapter.WithMetricsHandler(h))
		}

		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           httpadapter.NewHandler(app.Sessions, app.Flows, serverOpts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		if watch {
			go func() {
				if err := app.Watch(ctx); err != nil {
					logger.Error("Watcher stopped", "err", err)
				}
			}()
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("Starting callflow server", "address", srv.Addr, "flow", app.Loader.Name())
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			app.Close(context.Background())
			return fmt.Errorf("server error: %w", err)

		case <-ctx.Done():
			logger.Info("Shutting down")

			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				srv.Close()
			}
			if err := app.Close(shutdownCtx); err != nil {
				logger.Warn("Sessions did not stop cleanly", "err", err)
			}
			logger.Info("callflow server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (overrides http.addr)")
	serveCmd.Flags().BoolP("watch", "w", true, "Reload the flow when its source changes")
}
