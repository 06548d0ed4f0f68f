package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/session"
)

const script = `
Step main
  Speak "Hi " + $name + ", ready?"
  Listen 5
  Branch "yes" done
  Default main
Step done
  Speak "Great"
  Exit
`

func newServer(t *testing.T) (*Server, *session.Manager) {
	t.Helper()
	flow, _, err := callflow.Compile(script)
	require.NoError(t, err)
	source := session.NewCurrent(flow)
	sessions := session.NewManager(source)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sessions.StopAll(ctx)
	})
	return NewServer(sessions, source), sessions
}

func TestConversationThroughTools(t *testing.T) {
	s, sessions := newServer(t)
	ctx := context.Background()

	started, err := s.handleStart(ctx, mcp.CallToolRequest{}, StartArgs{Identity: "Ada"})
	require.NoError(t, err)
	id := started.Session.ID
	require.NotEmpty(t, id)

	sess, err := sessions.Get(id)
	require.NoError(t, err)
	require.Eventually(t, sess.Listening, time.Second, 5*time.Millisecond)

	polled, err := s.handlePoll(ctx, mcp.CallToolRequest{}, PollArgs{SessionID: id})
	require.NoError(t, err)
	require.Len(t, polled.Messages, 1)
	assert.Equal(t, "Hi Ada, ready?", polled.Messages[0].Text)

	replied, err := s.handleInput(ctx, mcp.CallToolRequest{}, InputArgs{SessionID: id, Text: "yes", WaitMS: 1000})
	require.NoError(t, err)
	require.Len(t, replied.Messages, 1)
	assert.Equal(t, "Great", replied.Messages[0].Text)

	vars, err := s.handleVariables(ctx, mcp.CallToolRequest{}, SessionArgs{SessionID: id})
	require.NoError(t, err)
	assert.Equal(t, []domain.Binding{{Name: "name", Value: "Ada", Set: true}}, vars.Variables)
}

func TestStartSession_Variables(t *testing.T) {
	s, _ := newServer(t)

	_, err := s.handleStart(context.Background(), mcp.CallToolRequest{}, StartArgs{Variables: "not json"})
	assert.Error(t, err)

	resp, err := s.handleStart(context.Background(), mcp.CallToolRequest{}, StartArgs{Variables: `{"name":"Bob"}`})
	require.NoError(t, err)
	assert.Equal(t, "Bob", resp.Session.Identity)
}

func TestStopSession(t *testing.T) {
	s, sessions := newServer(t)
	ctx := context.Background()

	started, err := s.handleStart(ctx, mcp.CallToolRequest{}, StartArgs{})
	require.NoError(t, err)

	stopped, err := s.handleStop(ctx, mcp.CallToolRequest{}, StopArgs{SessionID: started.Session.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stopped.Session.Status)
	assert.Equal(t, 1, sessions.Len())

	_, err = s.handleStop(ctx, mcp.CallToolRequest{}, StopArgs{SessionID: started.Session.ID, Delete: true})
	require.NoError(t, err)
	assert.Zero(t, sessions.Len())
}

func TestUnknownSession(t *testing.T) {
	s, _ := newServer(t)
	ctx := context.Background()

	_, err := s.handlePoll(ctx, mcp.CallToolRequest{}, PollArgs{SessionID: "nope"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = s.handleInput(ctx, mcp.CallToolRequest{}, InputArgs{SessionID: "nope", Text: "x"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = s.handleVariables(ctx, mcp.CallToolRequest{}, SessionArgs{SessionID: "nope"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestGraphResource(t *testing.T) {
	s, _ := newServer(t)

	contents, err := s.readGraph(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, GraphURI, text.URI)

	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal([]byte(text.Text), &snap))
	assert.Equal(t, "main", snap.Main)
}

func TestGraphResource_NoFlow(t *testing.T) {
	source := session.NewCurrent(nil)
	s := NewServer(session.NewManager(source), source)

	_, err := s.readGraph(context.Background(), mcp.ReadResourceRequest{})
	assert.ErrorIs(t, err, session.ErrNoFlow)
}
