package callflow

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aretw0/callflow/internal/compiler"
	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/internal/runtime"
	"github.com/aretw0/callflow/internal/validator"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/intent"
)

// Session is a running conversation over a Flow.
type Session = runtime.Session

// Flow is a compiled script. It is immutable and may back any number of
// sessions at once.
type Flow struct {
	Name string

	graph       *domain.Graph
	diagnostics domain.Diagnostics
	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	normalizer  intent.Normalizer
	joinTimeout time.Duration
	strict      bool
}

// Option defines a functional option for configuring a Flow.
type Option func(*Flow)

// WithLogger sets the structured logger for compilation and sessions.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flow) {
		f.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks on every session. It may
// be given more than once.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(f *Flow) {
		f.hooks = domain.ChainHooks(f.hooks, hooks)
	}
}

// WithNormalizer sets the intent normalizer used by Branch.
func WithNormalizer(n intent.Normalizer) Option {
	return func(f *Flow) {
		f.normalizer = n
	}
}

// WithJoinTimeout bounds how long a restart waits for the old dispatch.
func WithJoinTimeout(d time.Duration) Option {
	return func(f *Flow) {
		f.joinTimeout = d
	}
}

// WithName labels the flow in logs.
func WithName(name string) Option {
	return func(f *Flow) {
		f.Name = name
	}
}

// WithStrict makes Compile fail when the script has error diagnostics.
// By default such scripts still compile, skipping the bad lines.
func WithStrict() Option {
	return func(f *Flow) {
		f.strict = true
	}
}

// Compile builds a Flow from script text.
func Compile(src string, opts ...Option) (*Flow, domain.Diagnostics, error) {
	return CompileReader(strings.NewReader(src), opts...)
}

// CompileFile builds a Flow from a script on disk, named after the file.
func CompileFile(path string, opts ...Option) (*Flow, domain.Diagnostics, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer file.Close()
	return CompileReader(file, append([]Option{WithName(path)}, opts...)...)
}

// CompileReader builds a Flow from a script stream.
func CompileReader(r io.Reader, opts ...Option) (*Flow, domain.Diagnostics, error) {
	f := &Flow{}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logging.NewNop()
	}
	if f.Name != "" {
		f.logger = f.logger.With("flow", f.Name)
	}

	graph, diags, err := compiler.Compile(r,
		compiler.WithLogger(f.logger),
		compiler.WithStrict(f.strict),
	)
	if err != nil {
		return nil, diags, err
	}
	f.graph = graph
	f.diagnostics = diags
	return f, diags, nil
}

// SessionOption configures a single session.
type SessionOption = runtime.Option

// WithSessionID sets the id a session reports in events and logs.
func WithSessionID(id string) SessionOption { return runtime.WithID(id) }

// WithSessionHooks adds hooks to one session, on top of the flow-wide ones.
func WithSessionHooks(hooks domain.LifecycleHooks) SessionOption {
	return runtime.WithLifecycleHooks(hooks)
}

// NewSession creates an idle session. Options given here are applied after
// the flow-wide ones.
func (f *Flow) NewSession(opts ...SessionOption) *Session {
	base := []SessionOption{
		runtime.WithLogger(f.logger),
		runtime.WithLifecycleHooks(f.hooks),
		runtime.WithNormalizer(f.normalizer),
		runtime.WithJoinTimeout(f.joinTimeout),
	}
	return runtime.NewSession(f.graph, append(base, opts...)...)
}

// Graph returns the compiled graph.
func (f *Flow) Graph() *domain.Graph { return f.graph }

// Diagnostics returns what the compiler reported.
func (f *Flow) Diagnostics() domain.Diagnostics { return f.diagnostics }

// DeclaredVariables lists the variables the script references.
func (f *Flow) DeclaredVariables() []string { return f.graph.DeclaredVariables() }

// Validate checks targets, reachability and stalls.
func (f *Flow) Validate() domain.Diagnostics { return validator.ValidateGraph(f.graph) }
