package runtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/intent"
)

// Option configures a Session.
type Option func(*Session)

// WithID sets the session id reported in events and logs.
func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks. Hooks given more than
// once all run, in registration order.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Session) {
		s.hooks = domain.ChainHooks(s.hooks, hooks)
	}
}

// WithNormalizer sets the intent normalizer applied before keyword matching.
func WithNormalizer(n intent.Normalizer) Option {
	return func(s *Session) {
		if n != nil {
			s.normalizer = n
		}
	}
}

// WithJoinTimeout bounds how long StartDispatch waits for the previous
// dispatch to stop.
func WithJoinTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.joinTimeout = d
		}
	}
}

// Session runs one caller's conversation over a shared graph. At most one
// control goroutine (a dispatch) is alive per session.
type Session struct {
	id          string
	graph       *domain.Graph
	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	normalizer  intent.Normalizer
	joinTimeout time.Duration

	vars      *Variables
	out       *Outbox
	input     *inputSlot
	listening atomic.Bool
	listenSeq atomic.Uint64

	mu      sync.Mutex
	active  *dispatch
	status  domain.ExecutionStatus
	current string
	err     error
}

type dispatch struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession creates an idle session over graph.
func NewSession(graph *domain.Graph, opts ...Option) *Session {
	s := &Session{
		graph:       graph,
		logger:      logging.NewNop(),
		normalizer:  intent.Passthrough{},
		joinTimeout: domain.DefaultJoinTimeout,
		vars:        NewVariables(graph.DeclaredVariables()),
		out:         NewOutbox(),
		input:       newInputSlot(),
		status:      domain.StatusIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id != "" {
		s.logger = s.logger.With("session_id", s.id)
	}
	return s
}

// ID returns the session id, empty if none was given.
func (s *Session) ID() string { return s.id }

// Graph returns the graph the session runs.
func (s *Session) Graph() *domain.Graph { return s.graph }

// StartDispatch launches a new control goroutine at the main step. A running
// dispatch is cancelled first; if it does not stop within the join timeout,
// ErrDispatchBusy is returned and nothing new is started.
//
// The dispatch outlives ctx: only its values are inherited. Use RequestStop
// to end it.
func (s *Session) StartDispatch(ctx context.Context) error {
	for {
		s.mu.Lock()
		prev := s.active
		if prev == nil {
			s.launch(ctx)
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()

		prev.cancel()
		timer := time.NewTimer(s.joinTimeout)
		select {
		case <-prev.done:
			timer.Stop()
		case <-timer.C:
			s.logger.Warn("Previous dispatch did not stop in time", "timeout", s.joinTimeout)
			return domain.ErrDispatchBusy
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// launch must be called with s.mu held.
func (s *Session) launch(parent context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	d := &dispatch{cancel: cancel, done: make(chan struct{})}
	s.active = d
	s.status = domain.StatusRunning
	s.err = nil
	s.current = s.graph.Main()

	go s.run(ctx, d)
}

func (s *Session) run(ctx context.Context, d *dispatch) {
	main := s.graph.Main()
	s.logger.Debug("Dispatch started", "step", main)
	s.fireDispatchStart(ctx, main)

	reason, err := s.loop(ctx)

	s.mu.Lock()
	step := s.current
	s.err = err
	s.status = statusFor(reason)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Dispatch failed", "step", step, "reason", reason, "error", err)
	} else {
		s.logger.Debug("Dispatch ended", "step", step, "reason", reason)
	}
	s.fireDispatchEnd(context.WithoutCancel(ctx), step, reason, err)

	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()
	d.cancel()
	close(d.done)
}

func statusFor(reason domain.EndReason) domain.ExecutionStatus {
	switch reason {
	case domain.EndExit:
		return domain.StatusExited
	case domain.EndCancelled:
		return domain.StatusCancelled
	default:
		return domain.StatusFailed
	}
}

// RequestStop cancels the running dispatch, waking it if it is blocked in
// Listen. It does not wait; see Wait.
func (s *Session) RequestStop() {
	s.mu.Lock()
	d := s.active
	s.mu.Unlock()
	if d != nil {
		d.cancel()
	}
}

// Wait blocks until the running dispatch, if any, has ended.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	d := s.active
	s.mu.Unlock()
	if d == nil {
		return nil
	}
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsDispatching reports whether a control goroutine is alive.
func (s *Session) IsDispatching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Status returns the dispatch status.
func (s *Session) Status() domain.ExecutionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// CurrentStep returns the step the session is in, or last ran.
func (s *Session) CurrentStep() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Err returns the fatal error of the last dispatch, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) setCurrent(step string) {
	s.mu.Lock()
	s.current = step
	s.mu.Unlock()
}

// SubmitInput hands text to the session. It only has an effect on a Listen
// that is waiting or starts later; unread text is overwritten.
func (s *Session) SubmitInput(text string) {
	s.input.submit(text)
}

// Listening reports whether the session is blocked in Listen. Input
// submitted while it is true is seen by that Listen.
func (s *Session) Listening() bool {
	return s.listening.Load()
}

// ListenSeq numbers the Listens of this session, starting at 1. It is
// incremented once a Listen has discarded stale input, so text submitted
// after observing a new value is seen by that Listen or a later one.
func (s *Session) ListenSeq() uint64 {
	return s.listenSeq.Load()
}

// Poll pops the oldest unread message without blocking.
func (s *Session) Poll() (domain.Message, bool) {
	return s.out.Poll()
}

// Drain pops every unread message.
func (s *Session) Drain() []domain.Message {
	return s.out.Drain()
}

// Pending returns the number of unread messages.
func (s *Session) Pending() int {
	return s.out.Len()
}

// SetIdentity sets the caller's name variable.
func (s *Session) SetIdentity(name string) {
	s.vars.Set(domain.IdentityVariable, name)
}

// Identity returns the caller's name, if set.
func (s *Session) Identity() string {
	v, _ := s.vars.Get(domain.IdentityVariable)
	return v
}

// SetVariable sets any variable, declared or not.
func (s *Session) SetVariable(name, value string) {
	s.vars.Set(name, value)
}

// Variables returns the declared variables in declaration order.
func (s *Session) Variables() []domain.Binding {
	return s.vars.Snapshot()
}

// DeclaredVariables returns the names the graph exposes.
func (s *Session) DeclaredVariables() []string {
	return s.vars.Declared()
}

// Info summarizes the session.
func (s *Session) Info() domain.SessionInfo {
	s.mu.Lock()
	status, step := s.status, s.current
	s.mu.Unlock()
	return domain.SessionInfo{
		ID:        s.id,
		Identity:  s.Identity(),
		Status:    status,
		Step:      step,
		Listening: s.Listening(),
		Pending:   s.out.Len(),
	}
}
