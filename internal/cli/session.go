package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/internal/presentation/tui"
)

// ChatOptions configures an interactive terminal conversation.
type ChatOptions struct {
	Identity  string
	Variables map[string]string
	Headless  bool
	Input     io.Reader
	Output    io.Writer
	Renderer  callflow.ContentRenderer
}

// RunChat holds one conversation on the terminal. It returns when the flow
// exits, the input ends or ctx is cancelled; a cancelled ctx is not an error.
func RunChat(ctx context.Context, app *App, opts ChatOptions) error {
	if !opts.Headless {
		tui.PrintBanner(opts.Output)
	}

	sess, err := app.Sessions.Create(opts.Identity)
	if err != nil {
		return err
	}
	defer app.Sessions.Delete(sess.ID())

	for name, value := range opts.Variables {
		sess.SetVariable(name, value)
	}
	app.Logger.Info("Session created", "session_id", sess.ID(), "identity", opts.Identity)

	r := callflow.NewRunner()
	r.Input = opts.Input
	r.Output = opts.Output
	r.Headless = opts.Headless
	r.Renderer = opts.Renderer
	r.Sanitizer = &app.Sanitizer

	runErr := r.Run(ctx, sess)
	logCompletion(opts.Output, sess, runErr, opts.Headless)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return sess.Err()
}

func logCompletion(w io.Writer, sess *callflow.Session, err error, quiet bool) {
	if quiet {
		return
	}
	step := sess.CurrentStep()
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(w, tui.System(fmt.Sprintf(">>> Interrupted at '%s' step.", step)))
	case sess.Err() != nil:
		fmt.Fprintln(w, tui.System(fmt.Sprintf(">>> Failed at '%s' step: %v", step, sess.Err())))
	default:
		fmt.Fprintln(w, tui.Faint(fmt.Sprintf(">>> Finished at '%s' step (%s).", step, sess.Status())))
	}
}
