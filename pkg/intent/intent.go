// Package intent maps raw user input to a canonical intent label before
// keyword branching.
package intent

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Result is the outcome of normalizing one input.
type Result struct {
	Intent         string  `json:"intent"`
	NormalizedText string  `json:"normalized_text"`
	Confidence     float64 `json:"confidence"`
}

// Candidates lists the texts branching should try, most specific first,
// without duplicates. raw is always last, even when empty.
func (r Result) Candidates(raw string) []string {
	out := make([]string, 0, 3)
	for _, c := range []string{r.Intent, r.NormalizedText} {
		if c != "" && c != raw && !contains(out, c) {
			out = append(out, c)
		}
	}
	return append(out, raw)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Normalizer maps input text to an intent. Implementations must never fail:
// on any problem they fall back to the raw text with zero confidence.
type Normalizer interface {
	Normalize(ctx context.Context, text string) Result
}

// Passthrough is the disabled normalizer. It echoes the trimmed input.
type Passthrough struct{}

func (Passthrough) Normalize(_ context.Context, text string) Result {
	return fallback(text)
}

func fallback(text string) Result {
	text = strings.TrimSpace(text)
	return Result{Intent: text, NormalizedText: text}
}

// DefaultIntents is the candidate list offered to the model when none is configured.
var DefaultIntents = []string{
	"bill", "plan", "agent", "complaint", "payment", "installment", "offer",
	"menu", "apply", "upgrade", "downgrade", "data", "continue", "back",
}

// Provider names accepted by New.
const (
	ProviderNone      = ""
	ProviderOpenAI    = "openai"
	ProviderDashScope = "dashscope"
)

// DashScopeBaseURL is the OpenAI-compatible endpoint of DashScope.
const DashScopeBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// Config selects and tunes a normalizer.
type Config struct {
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Options  []string      `mapstructure:"options"`
}

// New returns the normalizer described by cfg. Without a provider or an API
// key it returns Passthrough.
func New(cfg Config, logger *slog.Logger) Normalizer {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == ProviderNone || provider == "none" || cfg.APIKey == "" {
		return Passthrough{}
	}
	if cfg.BaseURL == "" && provider == ProviderDashScope {
		cfg.BaseURL = DashScopeBaseURL
	}
	return NewLLM(cfg, WithLogger(logger))
}
