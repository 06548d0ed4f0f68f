package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChat struct {
	reply string
	err   error
	delay time.Duration
	last  openai.ChatCompletionNewParams
	calls int
}

func (m *mockChat) New(ctx context.Context, body openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.calls++
	m.last = body
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: m.reply}},
		},
	}, nil
}

func TestPassthrough(t *testing.T) {
	res := Passthrough{}.Normalize(context.Background(), "  pay my bill ")
	assert.Equal(t, Result{Intent: "pay my bill", NormalizedText: "pay my bill"}, res)
	assert.Equal(t, Result{}, Passthrough{}.Normalize(context.Background(), "   "))
}

func TestNew_FallsBackToPassthrough(t *testing.T) {
	assert.IsType(t, Passthrough{}, New(Config{}, nil))
	assert.IsType(t, Passthrough{}, New(Config{Provider: "none", APIKey: "k"}, nil))
	assert.IsType(t, Passthrough{}, New(Config{Provider: "openai"}, nil))
	assert.IsType(t, &LLM{}, New(Config{Provider: "DashScope", APIKey: "k"}, nil))
}

func TestLLM_Normalize(t *testing.T) {
	chat := &mockChat{reply: "Sure! ```json\n{\"intent\": \"bill\", \"normalized_text\": \"check bill\", \"confidence\": 0.92}\n```"}
	l := NewLLM(Config{Model: "qwen-turbo", Options: []string{"bill", "agent"}}, withChat(chat))

	res := l.Normalize(context.Background(), "how much do I owe")
	assert.Equal(t, "bill", res.Intent)
	assert.Equal(t, "check bill", res.NormalizedText)
	assert.InDelta(t, 0.92, res.Confidence, 1e-9)

	require.Equal(t, 1, chat.calls)
	assert.Equal(t, openai.ChatModel("qwen-turbo"), chat.last.Model)
	assert.Len(t, chat.last.Messages, 2)
}

func TestLLM_EmptyInputSkipsCall(t *testing.T) {
	chat := &mockChat{}
	l := NewLLM(Config{}, withChat(chat))

	assert.Equal(t, Result{}, l.Normalize(context.Background(), " "))
	assert.Zero(t, chat.calls)
}

func TestLLM_FallbackOnFailure(t *testing.T) {
	cases := map[string]*mockChat{
		"transport error": {err: errors.New("connection refused")},
		"not json":        {reply: "I think it is about billing"},
		"missing intent":  {reply: `{"normalized_text": "x", "confidence": 1}`},
	}
	for name, chat := range cases {
		t.Run(name, func(t *testing.T) {
			l := NewLLM(Config{}, withChat(chat))
			res := l.Normalize(context.Background(), "talk to a human")
			assert.Equal(t, Result{Intent: "talk to a human", NormalizedText: "talk to a human"}, res)
		})
	}
}

func TestLLM_Timeout(t *testing.T) {
	chat := &mockChat{reply: `{"intent": "bill"}`, delay: time.Second}
	l := NewLLM(Config{Timeout: 20 * time.Millisecond}, withChat(chat))

	start := time.Now()
	res := l.Normalize(context.Background(), "bill please")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, "bill please", res.Intent)
	assert.Zero(t, res.Confidence)
}

func TestParseReply_ClampsAndDefaults(t *testing.T) {
	res, err := parseReply(`{"intent": " agent ", "confidence": 3}`)
	require.NoError(t, err)
	assert.Equal(t, "agent", res.Intent)
	assert.Equal(t, 1.0, res.Confidence)

	l := NewLLM(Config{}, withChat(&mockChat{reply: `{"intent": "agent", "confidence": -1}`}))
	res = l.Normalize(context.Background(), "a person please")
	assert.Equal(t, "a person please", res.NormalizedText)
	assert.Zero(t, res.Confidence)
}

func TestResult_Candidates(t *testing.T) {
	r := Result{Intent: "bill", NormalizedText: "bill"}
	assert.Equal(t, []string{"bill", "what do I owe"}, r.Candidates("what do I owe"))
	assert.Equal(t, []string{"x"}, Result{}.Candidates("x"))
	assert.Equal(t, []string{""}, Result{}.Candidates(""))
}
