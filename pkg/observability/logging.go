package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/callflow/pkg/domain"
)

// LoggingHooks logs every lifecycle event at debug level, and the end of a
// failed dispatch at error level.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepEnter: func(ctx context.Context, e *domain.StepEvent) {
			logger.DebugContext(ctx, "step_enter", "session_id", e.SessionID, "step", e.StepID)
		},
		OnSpeak: func(ctx context.Context, e *domain.SpeakEvent) {
			logger.DebugContext(ctx, "speak", "session_id", e.SessionID, "kind", e.Message.Kind, "text", e.Message.Text)
		},
		OnListen: func(ctx context.Context, e *domain.ListenEvent) {
			logger.DebugContext(ctx, "listen",
				"session_id", e.SessionID,
				"step", e.StepID,
				"timed_out", e.TimedOut,
				"waited", e.Waited,
			)
		},
		OnBranch: func(ctx context.Context, e *domain.BranchEvent) {
			logger.DebugContext(ctx, "branch",
				"session_id", e.SessionID,
				"step", e.StepID,
				"normalized", e.Normalized,
				"keyword", e.Keyword,
				"target", e.Target,
				"matched", e.Matched,
			)
		},
		OnDispatchStart: func(ctx context.Context, e *domain.DispatchEvent) {
			logger.DebugContext(ctx, "dispatch_start", "session_id", e.SessionID, "step", e.StepID)
		},
		OnDispatchEnd: func(ctx context.Context, e *domain.DispatchEvent) {
			if e.Err != "" {
				logger.ErrorContext(ctx, "dispatch_end", "session_id", e.SessionID, "step", e.StepID, "reason", e.Reason, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "dispatch_end", "session_id", e.SessionID, "step", e.StepID, "reason", e.Reason)
		},
	}
}
