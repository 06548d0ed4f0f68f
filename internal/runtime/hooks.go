package runtime

import (
	"context"
	"time"

	"github.com/aretw0/callflow/pkg/domain"
)

func (s *Session) base(t domain.EventType) domain.EventBase {
	return domain.EventBase{Timestamp: time.Now(), Type: t, SessionID: s.id}
}

func (s *Session) fireStepEnter(ctx context.Context, stepID string) {
	if s.hooks.OnStepEnter != nil {
		s.hooks.OnStepEnter(ctx, &domain.StepEvent{EventBase: s.base(domain.EventStepEnter), StepID: stepID})
	}
}

func (s *Session) fireSpeak(ctx context.Context, msg domain.Message) {
	if s.hooks.OnSpeak != nil {
		s.hooks.OnSpeak(ctx, &domain.SpeakEvent{EventBase: s.base(domain.EventSpeak), Message: msg})
	}
}

func (s *Session) fireListen(ctx context.Context, ev *domain.ListenEvent) {
	if s.hooks.OnListen != nil {
		ev.EventBase = s.base(domain.EventListen)
		s.hooks.OnListen(ctx, ev)
	}
}

func (s *Session) fireBranch(ctx context.Context, ev *domain.BranchEvent) {
	if s.hooks.OnBranch != nil {
		ev.EventBase = s.base(domain.EventBranch)
		s.hooks.OnBranch(ctx, ev)
	}
}

func (s *Session) fireDispatchStart(ctx context.Context, stepID string) {
	if s.hooks.OnDispatchStart != nil {
		s.hooks.OnDispatchStart(ctx, &domain.DispatchEvent{EventBase: s.base(domain.EventDispatchStart), StepID: stepID})
	}
}

func (s *Session) fireDispatchEnd(ctx context.Context, stepID string, reason domain.EndReason, err error) {
	if s.hooks.OnDispatchEnd == nil {
		return
	}
	ev := &domain.DispatchEvent{EventBase: s.base(domain.EventDispatchEnd), StepID: stepID, Reason: reason}
	if err != nil {
		ev.Err = err.Error()
	}
	s.hooks.OnDispatchEnd(ctx, ev)
}
