package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/internal/config"
	loamadapter "github.com/aretw0/callflow/pkg/adapters/loam"
	"github.com/aretw0/callflow/pkg/domain"
)

// ErrNoScript is returned when neither a script nor a library is configured.
var ErrNoScript = errors.New("no script configured: set script or library.dir")

// FlowLoader compiles the configured flow, either a single script file or a
// document of a Loam library. Load may be called again to pick up edits.
type FlowLoader struct {
	script  string
	library *loamadapter.Library
	flowID  string
	opts    []callflow.Option
	logger  *slog.Logger
}

// NewFlowLoader resolves the flow source described by cfg. When the library
// flow is not named, the entry point is guessed from the documents.
func NewFlowLoader(ctx context.Context, cfg *config.Config, logger *slog.Logger, strict bool, opts ...callflow.Option) (*FlowLoader, error) {
	l := &FlowLoader{logger: logger}
	l.opts = append(l.opts, callflow.WithLogger(logger))
	l.opts = append(l.opts, opts...)
	if strict {
		l.opts = append(l.opts, callflow.WithStrict())
	}

	switch {
	case cfg.Script != "":
		l.script = cfg.Script
	case cfg.Library.Dir != "":
		lib, err := loamadapter.Open(cfg.Library.Dir)
		if err != nil {
			return nil, err
		}
		l.library = lib
		l.flowID = cfg.Library.Flow
		if l.flowID == "" {
			flows, err := lib.List(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to list library: %w", err)
			}
			l.flowID = determineEntryPoint(cfg.Library.Dir, flows)
			logger.Debug("Library entry point selected", "flow", l.flowID)
		}
	default:
		return nil, ErrNoScript
	}
	return l, nil
}

// Name returns the script path or the library flow id.
func (l *FlowLoader) Name() string {
	if l.library != nil {
		return l.flowID
	}
	return l.script
}

// Load compiles the flow from its current source.
func (l *FlowLoader) Load(ctx context.Context) (*callflow.Flow, domain.Diagnostics, error) {
	if l.library != nil {
		return l.library.Load(ctx, l.flowID, l.opts...)
	}
	return callflow.CompileFile(l.script, l.opts...)
}

// Watch reports changes to the flow source until ctx is done. Library
// changes carry the document id; script changes carry the file path.
func (l *FlowLoader) Watch(ctx context.Context) (<-chan string, error) {
	if l.library != nil {
		return l.library.Watch(ctx)
	}
	return watchFile(ctx, l.script, l.logger)
}

func watchFile(ctx context.Context, path string, logger *slog.Logger) (<-chan string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	ch := make(chan string, 1)
	go func() {
		defer close(ch)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != abs || !evt.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				select {
				case ch <- path:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Script watcher error", "err", err)
			}
		}
	}()
	return ch, nil
}

// determineEntryPoint picks the library flow to run when none is named:
// main, then index, then a flow named after the directory, then the first.
func determineEntryPoint(dir string, flows []loamadapter.FlowMetadata) string {
	ids := make(map[string]bool, len(flows))
	for _, f := range flows {
		ids[f.ID] = true
	}

	candidates := []string{"main", "index"}
	if abs, err := filepath.Abs(dir); err == nil {
		candidates = append(candidates, filepath.Base(abs))
	}
	for _, c := range candidates {
		if ids[c] {
			return c
		}
	}
	if len(flows) > 0 {
		return flows[0].ID
	}
	return "main"
}

func logDiagnostics(logger *slog.Logger, diags domain.Diagnostics) {
	for _, d := range diags {
		level := slog.LevelWarn
		if d.Severity == domain.SeverityError {
			level = slog.LevelError
		}
		logger.Log(context.Background(), level, "Script diagnostic", "line", d.Line, "code", d.Code, "message", d.Message)
	}
}
