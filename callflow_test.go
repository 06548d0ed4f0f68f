package callflow_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/pkg/domain"
)

const billingScript = `
# customer service line
Step welcome
  Speak "Hello " + $name + ", how can I help?"
  Listen 5
  Branch "bill" billing
  Branch "agent" agent
  Silence welcome
  Default welcome
Step billing
  Speak "Your balance is " + $amount
  Exit
Step agent
  Speak "Transferring you now."
  Exit
`

func TestCompile(t *testing.T) {
	flow, diags, err := callflow.Compile(billingScript)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, "welcome", flow.Graph().Main())
	assert.Equal(t, []string{"name", "amount"}, flow.DeclaredVariables())
	assert.Empty(t, flow.Validate())
}

func TestCompile_DiagnosticsDoNotFailByDefault(t *testing.T) {
	src := "Step a\nListen soon\nExit\n"

	flow, diags, err := callflow.Compile(src)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, domain.CodeBadTimeout, diags[0].Code)
	assert.Equal(t, diags, flow.Diagnostics())

	_, diags, err = callflow.Compile(src, callflow.WithStrict())
	require.Error(t, err)
	assert.True(t, domain.IsCompileError(err))
	assert.Len(t, diags, 1)
}

func TestCompileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "billing.flow")
	require.NoError(t, os.WriteFile(path, []byte(billingScript), 0o644))

	flow, _, err := callflow.CompileFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, flow.Name)

	_, _, err = callflow.CompileFile(filepath.Join(t.TempDir(), "missing.flow"))
	assert.Error(t, err)
}

func TestFlow_SessionsShareGraphButNotState(t *testing.T) {
	flow, _, err := callflow.Compile(billingScript)
	require.NoError(t, err)

	a := flow.NewSession(callflow.WithSessionID("a"))
	b := flow.NewSession(callflow.WithSessionID("b"))
	a.SetIdentity("Ada")
	a.SetVariable("amount", "12.50")
	b.SetIdentity("Bob")

	for _, s := range []*callflow.Session{a, b} {
		require.NoError(t, s.StartDispatch(context.Background()))
	}
	for _, s := range []*callflow.Session{a, b} {
		require.Eventually(t, func() bool {
			if s.Listening() {
				s.SubmitInput("my bill please")
			}
			return !s.IsDispatching()
		}, 3*time.Second, 5*time.Millisecond)
	}

	assert.Equal(t, []string{"Hello Ada, how can I help?", "Your balance is 12.50"}, texts(a.Drain()))
	assert.Equal(t, []string{"Hello Bob, how can I help?", "Your balance is [amount]"}, texts(b.Drain()))
	assert.Same(t, a.Graph(), b.Graph())
}

func TestFlow_HooksAndJoinTimeout(t *testing.T) {
	var (
		mu      sync.Mutex
		reasons []domain.EndReason
	)
	flow, _, err := callflow.Compile("Step main\nSpeak \"hi\"\nExit\n",
		callflow.WithLifecycleHooks(domain.LifecycleHooks{
			OnDispatchEnd: func(_ context.Context, e *domain.DispatchEvent) {
				mu.Lock()
				reasons = append(reasons, e.Reason)
				mu.Unlock()
			},
		}),
		callflow.WithJoinTimeout(200*time.Millisecond),
	)
	require.NoError(t, err)

	s := flow.NewSession()
	require.NoError(t, s.StartDispatch(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.EndReason{domain.EndExit}, reasons)
}

func texts(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

// syncBuffer is a bytes.Buffer safe for the runner goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunner_Conversation(t *testing.T) {
	flow, _, err := callflow.Compile(billingScript)
	require.NoError(t, err)
	sess := flow.NewSession()
	sess.SetIdentity("Ada")

	in, inWriter := io.Pipe()
	out := &syncBuffer{}
	runner := callflow.NewRunner()
	runner.Input = in
	runner.Output = out
	runner.Headless = true
	runner.PollInterval = 5 * time.Millisecond
	runner.Renderer = func(s string) (string, error) { return strings.ToUpper(s), nil }

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(context.Background(), sess) }()

	require.Eventually(t, sess.Listening, 2*time.Second, 5*time.Millisecond)
	_, err = io.WriteString(inWriter, "I need an agent\n")
	require.NoError(t, err)

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("runner did not finish")
	}
	_ = inWriter.Close()

	assert.Equal(t, "HELLO ADA, HOW CAN I HELP?\nTRANSFERRING YOU NOW.\n", out.String())
}

func TestRunner_PipedInput(t *testing.T) {
	flow, _, err := callflow.Compile(billingScript)
	require.NoError(t, err)
	sess := flow.NewSession()
	sess.SetIdentity("Ada")

	out := &syncBuffer{}
	runner := callflow.NewRunner()
	runner.Input = strings.NewReader("I need an agent\n")
	runner.Output = out
	runner.Headless = true
	runner.PollInterval = 5 * time.Millisecond

	require.NoError(t, runner.Run(context.Background(), sess))
	assert.Equal(t, "Hello Ada, how can I help?\nTransferring you now.\n", out.String())
	assert.Equal(t, domain.StatusExited, sess.Status())
}

func TestRunner_PipedLinesAnswerOneListenEach(t *testing.T) {
	flow, _, err := callflow.Compile(billingScript)
	require.NoError(t, err)
	sess := flow.NewSession()
	sess.SetIdentity("Ada")
	sess.SetVariable("amount", "$10")

	out := &syncBuffer{}
	runner := callflow.NewRunner()
	runner.Input = strings.NewReader("hello?\nmy bill please\n")
	runner.Output = out
	runner.Headless = true
	runner.PollInterval = 5 * time.Millisecond

	require.NoError(t, runner.Run(context.Background(), sess))
	assert.Equal(t, "Hello Ada, how can I help?\nHello Ada, how can I help?\nYour balance is $10\n", out.String())
	assert.Equal(t, domain.StatusExited, sess.Status())
}

func TestRunner_HangsUpWhenInputRunsOut(t *testing.T) {
	flow, _, err := callflow.Compile(billingScript)
	require.NoError(t, err)
	sess := flow.NewSession()
	sess.SetIdentity("Ada")

	out := &syncBuffer{}
	runner := callflow.NewRunner()
	runner.Input = strings.NewReader("hello?\n")
	runner.Output = out
	runner.Headless = true
	runner.PollInterval = 5 * time.Millisecond

	require.NoError(t, runner.Run(context.Background(), sess))
	assert.Equal(t, "Hello Ada, how can I help?\nHello Ada, how can I help?\n", out.String())
	assert.Equal(t, domain.StatusCancelled, sess.Status())
}

func TestRunner_ExitCommand(t *testing.T) {
	flow, _, err := callflow.Compile(billingScript)
	require.NoError(t, err)
	sess := flow.NewSession()

	out := &syncBuffer{}
	runner := callflow.NewRunner()
	runner.Input = strings.NewReader("quit\n")
	runner.Output = out

	require.NoError(t, runner.Run(context.Background(), sess))
	assert.Contains(t, out.String(), "Bye!")
	assert.False(t, sess.IsDispatching())
	assert.Equal(t, domain.StatusCancelled, sess.Status())
}

func TestRunner_RequiresIO(t *testing.T) {
	flow, _, err := callflow.Compile(billingScript)
	require.NoError(t, err)

	runner := callflow.NewRunner()
	assert.Error(t, runner.Run(context.Background(), flow.NewSession()))
	runner.Input = strings.NewReader("")
	assert.Error(t, runner.Run(context.Background(), flow.NewSession()))
}
