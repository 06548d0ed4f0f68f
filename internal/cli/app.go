package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/internal/config"
	httpadapter "github.com/aretw0/callflow/pkg/adapters/http"
	redisadapter "github.com/aretw0/callflow/pkg/adapters/redis"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/input"
	"github.com/aretw0/callflow/pkg/intent"
	"github.com/aretw0/callflow/pkg/observability"
	"github.com/aretw0/callflow/pkg/persistence/middleware"
	"github.com/aretw0/callflow/pkg/session"
)

// reloadSettle is how long a burst of file events is collapsed into one reload.
const reloadSettle = 100 * time.Millisecond

// App wires the compiled flow, the session registry and every configured
// collaborator. Commands build one App and hand its parts to an adapter.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Loader    *FlowLoader
	Flows     *session.Current
	Sessions  *session.Manager
	Streams   *httpadapter.StreamManager
	Sanitizer input.Sanitizer

	// Registry is nil unless metrics are enabled.
	Registry *prometheus.Registry
	// Recorder is nil unless redis.addr is set.
	Recorder *redisadapter.Recorder
}

// ReloadEvent is published on the event stream after a reload.
type ReloadEvent struct {
	Flow    string `json:"flow"`
	Changed string `json:"changed"`
	Steps   int    `json:"steps,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewApp compiles the configured flow and builds the runtime around it.
// Call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, strict bool) (*App, error) {
	a := &App{
		Config:    cfg,
		Logger:    logger,
		Streams:   httpadapter.NewStreamManager(logger),
		Sanitizer: input.NewSanitizer(cfg.Input.MaxSize),
	}

	hooks := []domain.LifecycleHooks{
		observability.LoggingHooks(logger),
		a.Streams.Hooks(),
	}

	if cfg.Metrics.Enabled {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics, err := observability.NewMetrics(a.Registry)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		hooks = append(hooks, metrics.Hooks())
	}

	if cfg.Redis.Addr != "" {
		rec, err := OpenRecorder(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Recording transcripts", "redis", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
		a.Recorder = rec
		hooks = append(hooks, rec.Hooks())
	}

	opts := []callflow.Option{
		callflow.WithNormalizer(intent.New(cfg.Intent, logger)),
		callflow.WithJoinTimeout(cfg.Dispatch.JoinTimeout),
	}
	for _, h := range hooks {
		opts = append(opts, callflow.WithLifecycleHooks(h))
	}

	loader, err := NewFlowLoader(ctx, cfg, logger, strict, opts...)
	if err != nil {
		a.closeRecorder(ctx)
		return nil, err
	}
	a.Loader = loader

	flow, diags, err := loader.Load(ctx)
	logDiagnostics(logger, diags)
	if err != nil {
		a.closeRecorder(ctx)
		return nil, fmt.Errorf("failed to compile %s: %w", loader.Name(), err)
	}
	logger.Info("Flow compiled", "flow", loader.Name(), "steps", flow.Graph().Len(), "main", flow.Graph().Main())

	a.Flows = session.NewCurrent(flow)
	a.Sessions = session.NewManager(a.Flows, session.WithLogger(logger))
	return a, nil
}

// OpenRecorder connects the transcript recorder described by cfg, with
// redaction and encryption when configured.
func OpenRecorder(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*redisadapter.Recorder, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis.addr is not configured")
	}
	mw, err := storeMiddleware(cfg)
	if err != nil {
		return nil, err
	}

	rec := redisadapter.New(cfg.Addr, cfg.Password, cfg.DB,
		redisadapter.WithPrefix(cfg.Prefix),
		redisadapter.WithTTL(cfg.TTL),
		redisadapter.WithLogger(logger),
		redisadapter.WithStoreMiddleware(middleware.Wrappers(mw...)...),
	)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rec.Ping(pingCtx); err != nil {
		rec.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	logger.Debug("Transcript recorder connected", "redis", cfg.Addr, "redact", len(cfg.Redact), "encrypted", cfg.EncryptionKey != "")
	return rec, nil
}

// storeMiddleware masks before it encrypts.
func storeMiddleware(cfg config.RedisConfig) ([]middleware.Middleware, error) {
	var out []middleware.Middleware
	if len(cfg.Redact) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.Redact)
		if err != nil {
			return nil, err
		}
		out = append(out, pii)
	}
	if cfg.EncryptionKey != "" {
		keys, err := middleware.ParseKeys(cfg.EncryptionKey, cfg.FallbackKeys...)
		if err != nil {
			return nil, err
		}
		enc, err := middleware.NewEncryptionMiddleware(keys)
		if err != nil {
			return nil, err
		}
		out = append(out, enc)
	}
	return out, nil
}

// MetricsHandler serves the registry, or returns nil when metrics are off.
func (a *App) MetricsHandler() http.Handler {
	if a.Registry == nil {
		return nil
	}
	return promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})
}

// Reload recompiles the flow. On success new sessions use it; sessions
// already running keep the graph they started with. On failure the previous
// flow stays current.
func (a *App) Reload(ctx context.Context, changed string) error {
	flow, diags, err := a.Loader.Load(ctx)
	logDiagnostics(a.Logger, diags)
	if err != nil {
		a.Logger.Error("Reload failed, keeping previous flow", "changed", changed, "err", err)
		a.Streams.Notify("reload_failed", ReloadEvent{Flow: a.Loader.Name(), Changed: changed, Error: err.Error()})
		return err
	}

	a.Flows.Store(flow)
	a.Logger.Info("Flow reloaded", "flow", a.Loader.Name(), "changed", changed, "steps", flow.Graph().Len())
	a.Streams.Notify("reload", ReloadEvent{Flow: a.Loader.Name(), Changed: changed, Steps: flow.Graph().Len()})
	return nil
}

// Watch reloads the flow on every change to its source until ctx is done.
func (a *App) Watch(ctx context.Context) error {
	changes, err := a.Loader.Watch(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case changed, ok := <-changes:
			if !ok {
				return nil
			}
			settle(ctx, changes)
			_ = a.Reload(ctx, changed)
		}
	}
}

// settle waits for the file system to calm down and drops the events that
// arrived meanwhile.
func settle(ctx context.Context, changes <-chan string) {
	timer := time.NewTimer(reloadSettle)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
		}
	}
}

// Close stops every session and flushes the transcript recorder.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Sessions != nil {
		if err := a.Sessions.StopAll(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop sessions: %w", err))
		}
	}
	if err := a.closeRecorder(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeRecorder(ctx context.Context) error {
	if a.Recorder == nil {
		return nil
	}
	if err := a.Recorder.Flush(ctx); err != nil {
		a.Logger.Warn("Transcript flush incomplete", "err", err)
	}
	err := a.Recorder.Close()
	a.Recorder = nil
	return err
}
