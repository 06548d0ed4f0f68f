package callflow

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/input"
)

// Runner connects a session to a line-oriented terminal: input lines are
// submitted to the session one Listen at a time and every queued message is
// written out.
// This allows for easy testing and integration with different frontends.
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	Headless bool
	Renderer ContentRenderer
	// PollInterval is how often the output queue is checked. Defaults to 50ms.
	PollInterval time.Duration
	// Sanitizer cleans every line before submission. The zero value uses
	// the environment limit.
	Sanitizer *input.Sanitizer
}

// ContentRenderer transforms message text before it is written.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// NewRunner creates a Runner. Input and Output must be set before Run.
func NewRunner() *Runner {
	return &Runner{PollInterval: 50 * time.Millisecond}
}

// Run starts a dispatch on sess and pumps input and output until the dispatch
// ends, the flow waits for input after the input is exhausted, the user types
// exit or quit, or ctx is done. Each input line answers one Listen.
// Messages still queued when the dispatch ends are written before returning.
func (r *Runner) Run(ctx context.Context, sess *Session) error {
	if r.Input == nil {
		return errors.New("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return errors.New("output writer must be set (use os.Stdout)")
	}
	interval := r.PollInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}

	if !r.Headless {
		fmt.Fprintln(r.Output, "--- callflow chat (type exit to quit) ---")
	}

	if err := sess.StartDispatch(ctx); err != nil {
		return fmt.Errorf("failed to start dispatch: %w", err)
	}

	stop := make(chan struct{})
	defer close(stop)

	lines := make(chan string)
	readDone := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r.Input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		readDone <- scanner.Err()
	}()

	done := make(chan struct{})
	go func() {
		_ = sess.Wait(context.WithoutCancel(ctx))
		close(done)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Lines are queued and each one is handed to its own Listen, so input
	// that arrives early (a pipe) is not discarded as stale.
	var (
		pending []string
		lastSeq uint64
		eof     bool
	)
	hangUp := func() {
		sess.RequestStop()
		<-done
		r.flush(sess)
	}

	for {
		select {
		case <-ctx.Done():
			sess.RequestStop()
			r.flush(sess)
			return ctx.Err()

		case <-done:
			r.flush(sess)
			return nil

		case err := <-readDone:
			if err != nil {
				hangUp()
				return fmt.Errorf("input error: %w", err)
			}
			eof = true

		case line := <-lines:
			clean, err := r.sanitizer().Sanitize(strings.TrimSpace(line))
			if err != nil {
				r.write(domain.Message{Kind: domain.MessageSystem, Text: "input rejected: " + err.Error()})
				continue
			}
			pending = append(pending, clean)

		case <-ticker.C:
			r.flush(sess)
		}

		if len(pending) > 0 && (pending[0] == "exit" || pending[0] == "quit") {
			hangUp()
			if !r.Headless {
				fmt.Fprintln(r.Output, "Bye!")
			}
			return nil
		}

		// Listening is read before the sequence: a Listen publishes its
		// number only after dropping stale input.
		if !sess.Listening() {
			continue
		}
		seq := sess.ListenSeq()
		if seq == lastSeq {
			continue
		}
		switch {
		case len(pending) > 0:
			sess.SubmitInput(pending[0])
			pending = pending[1:]
			lastSeq = seq
		case eof:
			// Input ended and the flow asks for more: stop like a hang-up.
			hangUp()
			return nil
		}
	}
}

func (r *Runner) sanitizer() input.Sanitizer {
	if r.Sanitizer != nil {
		return *r.Sanitizer
	}
	return input.NewSanitizer(0)
}

func (r *Runner) flush(sess *Session) {
	for _, msg := range sess.Drain() {
		r.write(msg)
	}
}

func (r *Runner) write(msg domain.Message) {
	text := msg.Text
	if r.Renderer != nil && msg.Kind == domain.MessageSpeech {
		if rendered, err := r.Renderer(text); err == nil {
			text = rendered
		}
	}
	text = strings.TrimSpace(text)
	if msg.Kind == domain.MessageSystem && !r.Headless {
		text = "[!] " + text
	}
	fmt.Fprintln(r.Output, text)
}
