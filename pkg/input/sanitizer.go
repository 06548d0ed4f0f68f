package input

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// DefaultMaxSize is the input size limit in bytes when nothing else is set.
	DefaultMaxSize = 4096
	// EnvMaxSize overrides DefaultMaxSize.
	EnvMaxSize = "CALLFLOW_MAX_INPUT_SIZE"
)

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// Sanitizer cleans caller text before it reaches a session.
type Sanitizer struct {
	MaxSize int
}

// NewSanitizer creates a Sanitizer. A non-positive maxSize falls back to
// EnvMaxSize, then DefaultMaxSize.
func NewSanitizer(maxSize int) Sanitizer {
	if maxSize <= 0 {
		maxSize = maxSizeFromEnv()
	}
	return Sanitizer{MaxSize: maxSize}
}

// SanitizeInput cleans text with the environment-configured limit.
func SanitizeInput(text string) (string, error) {
	return NewSanitizer(0).Sanitize(text)
}

// Sanitize enforces the size limit, validates UTF-8 and strips control
// characters other than newline, tab and carriage return.
func (s Sanitizer) Sanitize(text string) (string, error) {
	limit := s.MaxSize
	if limit <= 0 {
		limit = DefaultMaxSize
	}
	// Rejected rather than truncated: a cut keyword could match something else.
	if len(text) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(text), limit)
	}

	if !utf8.ValidString(text) {
		return "", ErrInvalidUTF8
	}

	clean := true
	for _, r := range text {
		if unicode.IsControl(r) && !isSafeControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return text, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if !unicode.IsControl(r) || isSafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}

func maxSizeFromEnv() int {
	if val := os.Getenv(EnvMaxSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxSize
}
