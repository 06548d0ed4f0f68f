package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/pkg/adapters/redis"
	"github.com/aretw0/callflow/pkg/domain"
)

func newRecorder(t *testing.T, opts ...redis.Option) (*redis.Recorder, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	rec := redis.NewFromClient(client, opts...)
	t.Cleanup(func() { _ = rec.Close() })
	return rec, mr
}

func TestRecorder_AppendAndRead(t *testing.T) {
	rec, mr := newRecorder(t, redis.WithPrefix("test:"), redis.WithTTL(time.Hour))
	ctx := context.Background()

	require.NoError(t, rec.Ping(ctx))
	require.NoError(t, rec.Append(ctx, "s1", redis.Entry{Role: redis.RoleFlow, Kind: "speech", Text: "Hello"}))
	require.NoError(t, rec.Append(ctx, "s1", redis.Entry{Role: redis.RoleCaller, Text: "yes"}))

	entries, err := rec.Transcript(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Hello", entries[0].Text)
	assert.Equal(t, redis.RoleCaller, entries[1].Role)

	assert.True(t, mr.Exists("test:s1"))
	assert.Equal(t, time.Hour, mr.TTL("test:s1"))

	ids, err := rec.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)

	require.NoError(t, rec.Delete(ctx, "s1"))
	_, err = rec.Transcript(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRecorder_NoTTL(t *testing.T) {
	rec, mr := newRecorder(t)
	ctx := context.Background()

	require.NoError(t, rec.Append(ctx, "s1", redis.Entry{Text: "x"}))
	assert.Zero(t, mr.TTL("callflow:transcript:s1"))
}

func TestRecorder_Hooks(t *testing.T) {
	rec, _ := newRecorder(t)

	flow, _, err := callflow.Compile(`
Step main
  Speak "Hi"
  Listen 5
  Branch "yes" done
  Default main
Step done
  Speak "Bye"
  Exit
`, callflow.WithLifecycleHooks(rec.Hooks()))
	require.NoError(t, err)

	sess := flow.NewSession(callflow.WithSessionID("call-1"))
	require.NoError(t, sess.StartDispatch(context.Background()))
	require.Eventually(t, sess.Listening, time.Second, 5*time.Millisecond)
	sess.SubmitInput("yes")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sess.Wait(ctx))
	require.NoError(t, rec.Flush(ctx))

	entries, err := rec.Transcript(ctx, "call-1")
	require.NoError(t, err)

	var lines []string
	for _, e := range entries {
		lines = append(lines, string(e.Role)+":"+e.Text)
	}
	assert.Equal(t, []string{"flow:Hi", "caller:yes", "flow:Bye", "end:"}, lines)
	assert.Equal(t, string(domain.EndExit), entries[3].Kind)
}

func TestRecorder_AfterCloseDropsEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	rec := redis.NewFromClient(backend.NewClient(&backend.Options{Addr: mr.Addr()}))
	require.NoError(t, rec.Close())

	hooks := rec.Hooks()
	assert.NotPanics(t, func() {
		hooks.OnSpeak(context.Background(), &domain.SpeakEvent{
			EventBase: domain.EventBase{SessionID: "s1"},
			Message:   domain.Message{Text: "late"},
		})
	})
	assert.False(t, mr.Exists("callflow:transcript:s1"))
}
