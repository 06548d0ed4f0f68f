package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
)

const shardCount = 16

// ErrNoFlow is returned by Create when the flow source has nothing loaded.
var ErrNoFlow = errors.New("no flow loaded")

// FlowSource supplies the flow new sessions run.
type FlowSource interface {
	Flow() *callflow.Flow
}

// Current is a FlowSource whose flow can be swapped while sessions run.
// Sessions keep the flow they were created with.
type Current struct {
	flow atomic.Pointer[callflow.Flow]
}

// NewCurrent creates a source holding flow.
func NewCurrent(flow *callflow.Flow) *Current {
	c := &Current{}
	c.flow.Store(flow)
	return c
}

// Flow returns the current flow.
func (c *Current) Flow() *callflow.Flow { return c.flow.Load() }

// Store replaces the current flow.
func (c *Current) Store(flow *callflow.Flow) { c.flow.Store(flow) }

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*callflow.Session
}

// Manager is the registry of live sessions. Sessions are spread over
// independently locked shards so lookups for different ids rarely contend.
type Manager struct {
	source FlowSource
	shards [shardCount]shard

	logger      *slog.Logger
	sessionOpts []callflow.SessionOption
	newID       func() string
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSessionOptions adds options applied to every created session.
func WithSessionOptions(opts ...callflow.SessionOption) Option {
	return func(m *Manager) {
		m.sessionOpts = append(m.sessionOpts, opts...)
	}
}

// WithIDGenerator replaces the uuid session id generator.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// NewManager creates an empty registry over source.
func NewManager(source FlowSource, opts ...Option) *Manager {
	m := &Manager{
		source: source,
		logger: logging.NewNop(),
		newID:  uuid.NewString,
	}
	for i := range m.shards {
		m.shards[i].sessions = make(map[string]*callflow.Session)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) shardFor(id string) *shard {
	return &m.shards[xxhash.Sum64String(id)%shardCount]
}

// Create registers a new idle session on the current flow. identity, if not
// empty, is stored as the caller's name.
func (m *Manager) Create(identity string) (*callflow.Session, error) {
	flow := m.source.Flow()
	if flow == nil {
		return nil, ErrNoFlow
	}

	id := m.newID()
	opts := append(append([]callflow.SessionOption(nil), m.sessionOpts...), callflow.WithSessionID(id))
	sess := flow.NewSession(opts...)
	if identity != "" {
		sess.SetIdentity(identity)
	}

	sh := m.shardFor(id)
	sh.mu.Lock()
	sh.sessions[id] = sess
	sh.mu.Unlock()

	m.logger.Debug("Session created", "session_id", id, "identity", identity)
	return sess, nil
}

// Get looks a session up by id.
func (m *Manager) Get(id string) (*callflow.Session, error) {
	sh := m.shardFor(id)
	sh.mu.RLock()
	sess, ok := sh.sessions[id]
	sh.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// Delete unregisters a session and stops its dispatch.
func (m *Manager) Delete(id string) error {
	sh := m.shardFor(id)
	sh.mu.Lock()
	sess, ok := sh.sessions[id]
	delete(sh.sessions, id)
	sh.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}

	sess.RequestStop()
	m.logger.Debug("Session deleted", "session_id", id)
	return nil
}

// List summarizes every session, ordered by id.
func (m *Manager) List() []domain.SessionInfo {
	var out []domain.SessionInfo
	for _, sess := range m.all() {
		out = append(out, sess.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	n := 0
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// StopAll stops every dispatch and waits for them to end. Sessions stay
// registered.
func (m *Manager) StopAll(ctx context.Context) error {
	sessions := m.all()
	for _, sess := range sessions {
		sess.RequestStop()
	}
	for _, sess := range sessions {
		if err := sess.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) all() []*callflow.Session {
	var out []*callflow.Session
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.RLock()
		for _, sess := range sh.sessions {
			out = append(out, sess)
		}
		sh.mu.RUnlock()
	}
	return out
}
