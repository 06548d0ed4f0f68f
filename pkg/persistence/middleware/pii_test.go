package middleware_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/callflow/pkg/adapters/redis"
	"github.com/aretw0/callflow/pkg/persistence/middleware"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlying := NewMockStore()
	// Card numbers and emails.
	mw, err := middleware.NewPIIMiddleware([]string{`\b\d{4}( ?\d{4}){3}\b`, `[\w.+-]+@[\w-]+\.[\w.]+`})
	require.NoError(t, err)
	store := mw(underlying)

	ctx := context.Background()
	entry := redis.Entry{Role: redis.RoleCaller, Text: "card 4111 1111 1111 1111, mail ana@example.com"}
	require.NoError(t, store.Append(ctx, "s1", entry))
	require.NoError(t, store.Append(ctx, "s1", redis.Entry{Role: redis.RoleFlow, Text: "Thanks"}))

	// The caller's entry is untouched.
	assert.Contains(t, entry.Text, "4111")

	stored, err := underlying.Transcript(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "card ***, mail ***", stored[0].Text)
	assert.Equal(t, "Thanks", stored[1].Text)

	ids, err := store.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Transcript(ctx, "s1")
	assert.Error(t, err)
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	_, err := middleware.NewPIIMiddleware([]string{"("})
	assert.ErrorContains(t, err, "invalid redaction pattern")
}
