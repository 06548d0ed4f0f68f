package redis

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
)

// Role tells who produced a transcript entry.
type Role string

const (
	RoleFlow   Role = "flow"
	RoleCaller Role = "caller"
	RoleEnd    Role = "end"
)

// Entry is one line of a conversation transcript.
type Entry struct {
	At   time.Time `json:"at"`
	Role Role      `json:"role"`
	Kind string    `json:"kind,omitempty"`
	Step string    `json:"step,omitempty"`
	Text string    `json:"text"`

	// Encrypted marks Text as sealed by an encrypting middleware.
	Encrypted bool `json:"encrypted,omitempty"`
}

type record struct {
	sessionID string
	entry     Entry
}

// Recorder appends every conversation turn to a Redis list per session.
// Entries are written by a background goroutine so hooks never wait on
// the network; when the queue is full entries are dropped and logged.
type Recorder struct {
	client     *backend.Client
	prefix     string
	ttl        time.Duration
	logger     *slog.Logger
	middleware []func(Store) Store
	store      Store

	mu      sync.RWMutex
	closed  bool
	queue   chan record
	pending atomic.Int64
	done    chan struct{}
}

type Option func(*Recorder)

// WithTTL sets the expiration of a transcript, refreshed on every append.
func WithTTL(ttl time.Duration) Option {
	return func(r *Recorder) {
		r.ttl = ttl
	}
}

// WithPrefix sets the key prefix for transcripts.
func WithPrefix(prefix string) Option {
	return func(r *Recorder) {
		r.prefix = prefix
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithQueueSize sets how many entries may wait for the writer.
func WithQueueSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan record, n)
		}
	}
}

// New creates a Recorder connected to address.
func New(address, password string, db int, opts ...Option) *Recorder {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// WithStoreMiddleware wraps the Redis store. The first middleware sees
// entries first on write and last on read.
func WithStoreMiddleware(mw ...func(Store) Store) Option {
	return func(r *Recorder) {
		r.middleware = append(r.middleware, mw...)
	}
}

// NewFromClient creates a Recorder from an existing client and starts its
// writer. Call Close to flush and stop it.
func NewFromClient(client *backend.Client, opts ...Option) *Recorder {
	r := &Recorder{
		client: client,
		prefix: "callflow:transcript:",
		logger: logging.NewNop(),
		queue:  make(chan record, 256),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.store = &redisStore{client: r.client, prefix: r.prefix, ttl: r.ttl}
	for i := len(r.middleware) - 1; i >= 0; i-- {
		r.store = r.middleware[i](r.store)
	}

	go r.write()
	return r
}

// Ping checks the connection.
func (r *Recorder) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Hooks returns lifecycle hooks that record speech, caller input and the
// end of every dispatch.
func (r *Recorder) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSpeak: func(_ context.Context, e *domain.SpeakEvent) {
			r.enqueue(e.SessionID, Entry{
				At:   e.Message.At,
				Role: RoleFlow,
				Kind: string(e.Message.Kind),
				Step: e.Message.Step,
				Text: e.Message.Text,
			})
		},
		OnListen: func(_ context.Context, e *domain.ListenEvent) {
			if e.TimedOut {
				return
			}
			r.enqueue(e.SessionID, Entry{At: e.Timestamp, Role: RoleCaller, Step: e.StepID, Text: e.Input})
		},
		OnDispatchEnd: func(_ context.Context, e *domain.DispatchEvent) {
			r.enqueue(e.SessionID, Entry{At: e.Timestamp, Role: RoleEnd, Kind: string(e.Reason), Step: e.StepID, Text: e.Err})
		},
	}
}

func (r *Recorder) enqueue(sessionID string, entry Entry) {
	if sessionID == "" {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("Transcript entry after close dropped", "session_id", sessionID)
		return
	}

	r.pending.Add(1)
	select {
	case r.queue <- record{sessionID: sessionID, entry: entry}:
	default:
		r.pending.Add(-1)
		r.logger.Warn("Transcript queue full, dropping entry", "session_id", sessionID)
	}
}

func (r *Recorder) write() {
	defer close(r.done)
	for rec := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.Append(ctx, rec.sessionID, rec.entry); err != nil {
			r.logger.Error("Failed to record transcript entry", "session_id", rec.sessionID, "err", err)
		}
		cancel()
		r.pending.Add(-1)
	}
}

// Append writes one entry synchronously.
func (r *Recorder) Append(ctx context.Context, sessionID string, entry Entry) error {
	return r.store.Append(ctx, sessionID, entry)
}

// Transcript returns the recorded entries of a session in order.
func (r *Recorder) Transcript(ctx context.Context, sessionID string) ([]Entry, error) {
	return r.store.Transcript(ctx, sessionID)
}

// Sessions lists sessions with a transcript that has not expired.
func (r *Recorder) Sessions(ctx context.Context) ([]string, error) {
	return r.store.Sessions(ctx)
}

// Delete removes a transcript.
func (r *Recorder) Delete(ctx context.Context, sessionID string) error {
	return r.store.Delete(ctx, sessionID)
}

// Flush blocks until every queued entry has been written or ctx is done.
func (r *Recorder) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for r.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close writes the queued entries, stops the writer and closes the client.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
	return r.client.Close()
}
