package runtime

import (
	"context"
	"time"

	"github.com/aretw0/callflow/pkg/domain"
)

// loop walks the graph from the main step until Exit, a fatal step error,
// a stall or cancellation.
func (s *Session) loop(ctx context.Context) (domain.EndReason, error) {
	stepID := s.graph.Main()

	// The outcome of the most recent Listen carries over into later steps.
	var (
		inTime bool
		input  string
	)
	// hops counts step entries since the last Listen. Past the number of
	// steps, some step repeated without waiting for input and will repeat
	// forever.
	hops := 0

	for {
		if ctx.Err() != nil {
			return domain.EndCancelled, nil
		}

		step, ok := s.graph.Step(stepID)
		if !ok {
			err := &domain.StepError{StepID: stepID}
			s.emit(ctx, domain.MessageSystem, stepID, err.Text())
			return domain.EndFatal, err
		}

		hops++
		if hops > s.graph.Len() {
			err := &domain.StepError{StepID: stepID, Stalled: true}
			s.emit(ctx, domain.MessageSystem, stepID, err.Text())
			return domain.EndStalled, err
		}

		s.setCurrent(stepID)
		s.fireStepEnter(ctx, stepID)

		next, exit, err := s.runStep(ctx, step, &inTime, &input, &hops)
		if err != nil {
			return domain.EndCancelled, nil
		}
		if exit {
			return domain.EndExit, nil
		}
		if next != "" {
			stepID = next
		}
	}
}

// runStep executes one pass over a step. It returns the step to jump to, or
// "" to run the same step again.
func (s *Session) runStep(ctx context.Context, step domain.Step, inTime *bool, input *string, hops *int) (next string, exit bool, err error) {
	suppressed := false
	hasSilence := step.HasKind(domain.KindSilence)

	for _, in := range step.Instructions {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}

		switch in.Kind {
		case domain.KindSpeak:
			s.emit(ctx, domain.MessageSpeech, step.ID, in.Expr.Resolve(s.vars.Get))

		case domain.KindListen:
			*input, *inTime = s.listen(ctx, step.ID, in.Timeout)
			*hops = 0
			if err := ctx.Err(); err != nil {
				return "", false, err
			}
			if !*inTime && !hasSilence {
				s.emit(ctx, domain.MessageNotice, step.ID, domain.NoInputText)
			}

		case domain.KindBranch:
			if !*inTime {
				continue
			}
			if target, ok := s.branch(ctx, step.ID, *input); ok {
				return target, false, nil
			}
			suppressed = true

		case domain.KindSilence:
			if suppressed {
				suppressed = false
				continue
			}
			return in.Target, false, nil

		case domain.KindDefault:
			return in.Target, false, nil

		case domain.KindExit:
			return "", true, nil
		}
	}
	return "", false, nil
}

// listen waits for fresh input for at most timeout. Input submitted before
// the wait began is discarded.
func (s *Session) listen(ctx context.Context, stepID string, timeout time.Duration) (string, bool) {
	s.input.clear()
	s.listenSeq.Add(1)
	s.listening.Store(true)
	defer s.listening.Store(false)

	start := time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var (
		text   string
		inTime bool
	)
wait:
	for {
		select {
		case <-ctx.Done():
			return "", false
		case <-timer.C:
			break wait
		case <-s.input.wake:
			if t, ok := s.input.take(); ok {
				text, inTime = t, true
				break wait
			}
		}
	}

	s.logger.Debug("Listen finished", "step", stepID, "in_time", inTime)
	s.fireListen(ctx, &domain.ListenEvent{
		StepID:   stepID,
		Timeout:  timeout,
		Input:    text,
		TimedOut: !inTime,
		Waited:   time.Since(start),
	})
	return text, inTime
}

// branch matches input against the graph-wide keyword table. The normalized
// intent is tried first, then the raw text.
func (s *Session) branch(ctx context.Context, stepID, input string) (string, bool) {
	res := s.normalizer.Normalize(ctx, input)

	ev := &domain.BranchEvent{
		StepID:     stepID,
		Input:      input,
		Normalized: res.Intent,
		Confidence: res.Confidence,
	}
	for _, candidate := range res.Candidates(input) {
		if rule, ok := s.graph.Match(candidate); ok {
			ev.Keyword, ev.Target, ev.Matched = rule.Keyword, rule.Target, true
			break
		}
	}

	s.logger.Debug("Branch evaluated", "step", stepID, "matched", ev.Matched, "keyword", ev.Keyword, "target", ev.Target)
	s.fireBranch(ctx, ev)
	return ev.Target, ev.Matched
}

func (s *Session) emit(ctx context.Context, kind domain.MessageKind, stepID, text string) {
	msg := s.out.Push(kind, stepID, text)
	s.fireSpeak(ctx, msg)
}
