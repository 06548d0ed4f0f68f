package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/callflow/pkg/adapters/redis"
)

// Mask replaces every redacted match.
const Mask = "***"

type piiMiddleware struct {
	next     redis.Store
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks the parts of an entry's
// text matching any of the patterns before it is stored. Masked text cannot
// be recovered.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next redis.Store) redis.Store {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

// Entries are passed by value, so the caller's copy is never modified.
func (m *piiMiddleware) Append(ctx context.Context, sessionID string, entry redis.Entry) error {
	entry.Text = m.mask(entry.Text)
	return m.next.Append(ctx, sessionID, entry)
}

func (m *piiMiddleware) mask(text string) string {
	for _, p := range m.patterns {
		text = p.ReplaceAllString(text, Mask)
	}
	return text
}

func (m *piiMiddleware) Transcript(ctx context.Context, sessionID string) ([]redis.Entry, error) {
	return m.next.Transcript(ctx, sessionID)
}

func (m *piiMiddleware) Sessions(ctx context.Context) ([]string, error) {
	return m.next.Sessions(ctx)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}
