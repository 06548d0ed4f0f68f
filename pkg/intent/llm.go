package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/aretw0/callflow/internal/logging"
)

const (
	defaultModel   = "qwen-plus"
	defaultTimeout = 8 * time.Second
	maxReplyTokens = 200
)

// chatService is the subset of the chat completions API the classifier uses.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// LLM classifies input with a chat-completions model restricted to a list of
// candidate intents.
type LLM struct {
	chat    chatService
	model   string
	timeout time.Duration
	options []string
	logger  *slog.Logger
}

// LLMOption configures an LLM normalizer.
type LLMOption func(*LLM)

// WithLogger sets the logger used to report failed classifications.
func WithLogger(logger *slog.Logger) LLMOption {
	return func(l *LLM) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// withChat replaces the API client, for tests.
func withChat(chat chatService) LLMOption {
	return func(l *LLM) {
		l.chat = chat
	}
}

// NewLLM builds an LLM normalizer for an OpenAI-compatible endpoint.
func NewLLM(cfg Config, opts ...LLMOption) *LLM {
	l := &LLM{
		model:   cfg.Model,
		timeout: cfg.Timeout,
		options: cfg.Options,
		logger:  logging.NewNop(),
	}
	if l.model == "" {
		l.model = defaultModel
	}
	if l.timeout <= 0 {
		l.timeout = defaultTimeout
	}
	if len(l.options) == 0 {
		l.options = DefaultIntents
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.chat == nil {
		reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
		}
		client := openai.NewClient(reqOpts...)
		l.chat = &client.Chat.Completions
	}
	return l
}

// Normalize asks the model for the best matching intent. Empty input yields
// an empty result; any failure yields the raw text with zero confidence.
func (l *LLM) Normalize(ctx context.Context, text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}
	}

	res, err := l.classify(ctx, text)
	if err != nil {
		l.logger.Warn("Intent classification failed", "error", err, "model", l.model)
		return fallback(text)
	}
	l.logger.Debug("Intent classified", "intent", res.Intent, "confidence", res.Confidence)
	return res
}

func (l *LLM) classify(ctx context.Context, text string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	resp, err := l.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(l.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(l.systemPrompt()),
			openai.UserMessage(fmt.Sprintf("Caller said: %s\nReply with JSON only:", text)),
		},
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(maxReplyTokens),
	})
	if err != nil {
		return Result{}, fmt.Errorf("chat completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Result{}, errors.New("no choices returned")
	}

	res, err := parseReply(resp.Choices[0].Message.Content)
	if err != nil {
		return Result{}, err
	}
	if res.NormalizedText == "" {
		res.NormalizedText = text
	}
	return res, nil
}

func (l *LLM) systemPrompt() string {
	return "You are an intent classifier for a customer-service call. " +
		"Pick the single best intent from the candidate list and answer with JSON of the form " +
		`{"intent": "<one candidate>", "normalized_text": "<key information, rewritten>", "confidence": <0.0-1.0>}. ` +
		"If no candidate fits, set intent to the caller's original words. " +
		"Candidates: [" + strings.Join(l.options, ", ") + "]"
}

// parseReply decodes the JSON object embedded in a model reply. Text around
// the outermost braces is ignored.
func parseReply(content string) (Result, error) {
	snippet := strings.TrimSpace(content)
	start := strings.Index(snippet, "{")
	end := strings.LastIndex(snippet, "}")
	if start != -1 && end > start {
		snippet = snippet[start : end+1]
	}

	var res Result
	if err := sonic.UnmarshalString(snippet, &res); err != nil {
		return Result{}, fmt.Errorf("decode reply: %w", err)
	}
	res.Intent = strings.TrimSpace(res.Intent)
	res.NormalizedText = strings.TrimSpace(res.NormalizedText)
	if res.Intent == "" {
		return Result{}, errors.New("reply has no intent")
	}
	switch {
	case res.Confidence < 0:
		res.Confidence = 0
	case res.Confidence > 1:
		res.Confidence = 1
	}
	return res, nil
}
