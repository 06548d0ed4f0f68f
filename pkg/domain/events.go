package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStepEnter     EventType = "step_enter"
	EventSpeak         EventType = "speak"
	EventListen        EventType = "listen"
	EventBranch        EventType = "branch"
	EventDispatchStart EventType = "dispatch_start"
	EventDispatchEnd   EventType = "dispatch_end"
)

// EndReason explains why a dispatch stopped.
type EndReason string

const (
	EndExit      EndReason = "exit"
	EndFatal     EndReason = "fatal"
	EndCancelled EndReason = "cancelled"
	EndStalled   EndReason = "stalled"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// StepEvent is emitted each time the control loop enters a step.
type StepEvent struct {
	EventBase
	StepID string `json:"step_id"`
}

// SpeakEvent carries a message that was just queued.
type SpeakEvent struct {
	EventBase
	Message Message `json:"message"`
}

// ListenEvent reports the outcome of a Listen.
type ListenEvent struct {
	EventBase
	StepID   string        `json:"step_id"`
	Timeout  time.Duration `json:"timeout"`
	Input    string        `json:"input,omitempty"`
	TimedOut bool          `json:"timed_out"`
	Waited   time.Duration `json:"waited"`
}

// BranchEvent reports a Branch evaluation.
type BranchEvent struct {
	EventBase
	StepID     string  `json:"step_id"`
	Input      string  `json:"input"`
	Normalized string  `json:"normalized"`
	Confidence float64 `json:"confidence"`
	Keyword    string  `json:"keyword,omitempty"`
	Target     string  `json:"target,omitempty"`
	Matched    bool    `json:"matched"`
}

// DispatchEvent marks the start or end of a control goroutine.
type DispatchEvent struct {
	EventBase
	StepID string    `json:"step_id"`
	Reason EndReason `json:"reason,omitempty"`
	Err    string    `json:"err,omitempty"`
}

// LifecycleHooks defines callbacks for runtime observability.
// Hooks run on the session's control goroutine and must not block.
type LifecycleHooks struct {
	OnStepEnter     func(context.Context, *StepEvent)
	OnSpeak         func(context.Context, *SpeakEvent)
	OnListen        func(context.Context, *ListenEvent)
	OnBranch        func(context.Context, *BranchEvent)
	OnDispatchStart func(context.Context, *DispatchEvent)
	OnDispatchEnd   func(context.Context, *DispatchEvent)
}

// ChainHooks fans every callback out to each of the given hooks in order.
func ChainHooks(hooks ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStepEnter: func(ctx context.Context, e *StepEvent) {
			for _, h := range hooks {
				if h.OnStepEnter != nil {
					h.OnStepEnter(ctx, e)
				}
			}
		},
		OnSpeak: func(ctx context.Context, e *SpeakEvent) {
			for _, h := range hooks {
				if h.OnSpeak != nil {
					h.OnSpeak(ctx, e)
				}
			}
		},
		OnListen: func(ctx context.Context, e *ListenEvent) {
			for _, h := range hooks {
				if h.OnListen != nil {
					h.OnListen(ctx, e)
				}
			}
		},
		OnBranch: func(ctx context.Context, e *BranchEvent) {
			for _, h := range hooks {
				if h.OnBranch != nil {
					h.OnBranch(ctx, e)
				}
			}
		},
		OnDispatchStart: func(ctx context.Context, e *DispatchEvent) {
			for _, h := range hooks {
				if h.OnDispatchStart != nil {
					h.OnDispatchStart(ctx, e)
				}
			}
		},
		OnDispatchEnd: func(ctx context.Context, e *DispatchEvent) {
			for _, h := range hooks {
				if h.OnDispatchEnd != nil {
					h.OnDispatchEnd(ctx, e)
				}
			}
		},
	}
}
