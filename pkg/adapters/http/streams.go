package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
)

// allSessions is the subscription key that receives every session's events.
const allSessions = ""

// Frame is one server-sent event.
type Frame struct {
	Event string
	Data  string
}

// StreamManager fans lifecycle events out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- Frame]struct{} // SessionID -> Set of Channels
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- Frame]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a subscriber for sessionID, or for every session when
// sessionID is empty. The returned func unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(sessionID string) (<-chan Frame, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan Frame, 16)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan<- Frame]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[sessionID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, sessionID)
				}
			}
		})
	}
}

// Broadcast sends a frame to the subscribers of sessionID and to the
// subscribers of all sessions. Slow subscribers miss frames rather than
// blocking the session.
func (sm *StreamManager) Broadcast(sessionID string, frame Frame) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sm.send(sessionID, frame)
	if sessionID != allSessions {
		sm.send(allSessions, frame)
	}
}

func (sm *StreamManager) send(key string, frame Frame) {
	for ch := range sm.subscribers[key] {
		select {
		case ch <- frame:
		default:
			sm.logger.Warn("SSE: Client buffer full, dropping event", "session_id", key, "event", frame.Event)
		}
	}
}

// Subscribers returns the number of subscriptions for sessionID.
func (sm *StreamManager) Subscribers(sessionID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[sessionID])
}

// Hooks returns lifecycle hooks that publish every event as JSON.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepEnter: func(_ context.Context, e *domain.StepEvent) { sm.publish(e.EventBase, e) },
		OnSpeak:     func(_ context.Context, e *domain.SpeakEvent) { sm.publish(e.EventBase, e) },
		OnListen:    func(_ context.Context, e *domain.ListenEvent) { sm.publish(e.EventBase, e) },
		OnBranch:    func(_ context.Context, e *domain.BranchEvent) { sm.publish(e.EventBase, e) },
		OnDispatchStart: func(_ context.Context, e *domain.DispatchEvent) {
			sm.publish(e.EventBase, e)
		},
		OnDispatchEnd: func(_ context.Context, e *domain.DispatchEvent) {
			sm.publish(e.EventBase, e)
		},
	}
}

// Notify publishes an event that belongs to no session, such as a flow reload.
func (sm *StreamManager) Notify(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		sm.logger.Error("SSE: Failed to encode event", "event", event, "err", err)
		return
	}
	sm.Broadcast(allSessions, Frame{Event: event, Data: string(data)})
}

func (sm *StreamManager) publish(base domain.EventBase, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		sm.logger.Error("SSE: Failed to encode event", "event", base.Type, "err", err)
		return
	}
	sm.Broadcast(base.SessionID, Frame{Event: string(base.Type), Data: string(data)})
}
