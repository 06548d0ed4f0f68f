package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/input"
	"github.com/aretw0/callflow/pkg/session"
)

const greeterScript = `
Step main
  Speak "Hello " + $name
  Listen 5
  Branch "yes" done
  Silence main
  Default main
Step done
  Speak "Bye"
  Exit
`

type fixture struct {
	server   *httptest.Server
	sessions *session.Manager
	streams  *StreamManager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	flow, _, err := callflow.Compile(greeterScript)
	require.NoError(t, err)

	streams := NewStreamManager(nil)
	source := session.NewCurrent(flow)
	sessions := session.NewManager(source,
		session.WithSessionOptions(callflow.WithSessionHooks(streams.Hooks())),
	)
	opts = append([]Option{WithStreams(streams)}, opts...)
	ts := httptest.NewServer(NewHandler(sessions, source, opts...))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sessions.StopAll(ctx)
		ts.Close()
	})
	return &fixture{server: ts, sessions: sessions, streams: streams}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestGetSwagger_IsValid(t *testing.T) {
	doc, err := GetSwagger()
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", doc.Info.Version)
	assert.NotNil(t, doc.Paths.Find("/sessions/{id}/output"))
}

func TestHealthAndInfo(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/info", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info := decode[map[string]any](t, resp)
	assert.Equal(t, "callflow-http", info["app"])
	assert.Equal(t, "1.0.0", info["api_version"])
}

func TestGraph(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/graph", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[domain.Snapshot](t, resp)
	assert.Equal(t, "main", snap.Main)
	assert.Equal(t, []string{"name"}, snap.Variables)
	assert.Len(t, snap.Steps, 2)
}

func TestGraph_NoFlow(t *testing.T) {
	source := session.NewCurrent(nil)
	ts := httptest.NewServer(NewHandler(session.NewManager(source), source))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/graph")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp2, err := http.Post(ts.URL+"/sessions", "application/json", nil)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)
}

func TestConversation(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/sessions", CreateSessionRequest{Identity: "Ada"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	info := decode[domain.SessionInfo](t, resp)
	require.NotEmpty(t, info.ID)
	assert.Equal(t, domain.StatusIdle, info.Status)
	base := "/sessions/" + info.ID

	resp = f.do(t, http.MethodPost, base+"/dispatch", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	sess, err := f.sessions.Get(info.ID)
	require.NoError(t, err)
	require.Eventually(t, sess.Listening, time.Second, 5*time.Millisecond)

	resp = f.do(t, http.MethodGet, base+"/output", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[OutputResponse](t, resp)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, "Hello Ada", out.Messages[0].Text)

	resp = f.do(t, http.MethodPost, base+"/input", InputRequest{Text: "yes"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sess.Wait(ctx))

	resp = f.do(t, http.MethodGet, base+"/output?drain=true", nil)
	out = decode[OutputResponse](t, resp)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, "Bye", out.Messages[0].Text)

	resp = f.do(t, http.MethodGet, base, nil)
	info = decode[domain.SessionInfo](t, resp)
	assert.Equal(t, domain.StatusExited, info.Status)
	assert.Equal(t, "done", info.Step)
}

func TestVariables(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/sessions", CreateSessionRequest{Variables: map[string]string{"name": "Bob"}})
	info := decode[domain.SessionInfo](t, resp)
	base := "/sessions/" + info.ID

	resp = f.do(t, http.MethodGet, base+"/variables", nil)
	vars := decode[[]domain.Binding](t, resp)
	assert.Equal(t, []domain.Binding{{Name: "name", Value: "Bob", Set: true}}, vars)

	resp = f.do(t, http.MethodPut, base+"/variables", map[string]string{"name": "Eve", "extra": "x"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	vars = decode[[]domain.Binding](t, resp)
	assert.Equal(t, []domain.Binding{{Name: "name", Value: "Eve", Set: true}}, vars)
}

func TestSessionErrors(t *testing.T) {
	f := newFixture(t)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/sessions/nope"},
		{http.MethodDelete, "/sessions/nope"},
		{http.MethodGet, "/sessions/nope/output"},
		{http.MethodPost, "/sessions/nope/dispatch"},
		{http.MethodPost, "/sessions/nope/stop"},
		{http.MethodGet, "/events?session_id=nope"},
	} {
		resp := f.do(t, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, tc.method+" "+tc.path)
	}

	resp := f.do(t, http.MethodPost, "/sessions", nil)
	info := decode[domain.SessionInfo](t, resp)

	resp = f.do(t, http.MethodGet, "/sessions/"+info.ID+"/output?drain=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/sessions/"+info.ID+"/input", "not an object")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitInput_Sanitized(t *testing.T) {
	f := newFixture(t, WithSanitizer(input.NewSanitizer(4)))

	resp := f.do(t, http.MethodPost, "/sessions", nil)
	info := decode[domain.SessionInfo](t, resp)

	resp = f.do(t, http.MethodPost, "/sessions/"+info.ID+"/input", InputRequest{Text: "too long"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/sessions/"+info.ID+"/input", InputRequest{Text: "ok"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestDeleteStopsDispatch(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/sessions", CreateSessionRequest{Dispatch: true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	info := decode[domain.SessionInfo](t, resp)
	assert.Equal(t, domain.StatusRunning, info.Status)
	sess, err := f.sessions.Get(info.ID)
	require.NoError(t, err)

	resp = f.do(t, http.MethodGet, "/sessions", nil)
	assert.Len(t, decode[[]domain.SessionInfo](t, resp), 1)

	resp = f.do(t, http.MethodDelete, "/sessions/"+info.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sess.Wait(ctx))
	assert.Equal(t, domain.StatusCancelled, sess.Status())
	assert.Zero(t, f.sessions.Len())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(domain.ErrSessionNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(domain.ErrDispatchBusy))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(session.ErrNoFlow))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}

func TestSubscribeEvents_Session(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/sessions", nil)
	info := decode[domain.SessionInfo](t, resp)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+"/events?session_id="+info.ID, nil)
	require.NoError(t, err)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	reader := bufio.NewReader(stream.Body)
	readEvent := func() string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "event: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "event: "))
			}
		}
	}
	require.Equal(t, "ping", readEvent())
	require.Eventually(t, func() bool { return f.streams.Subscribers(info.ID) == 1 }, time.Second, 5*time.Millisecond)

	f.do(t, http.MethodPost, "/sessions/"+info.ID+"/dispatch", nil)

	assert.Equal(t, string(domain.EventDispatchStart), readEvent())
	assert.Equal(t, string(domain.EventStepEnter), readEvent())
	assert.Equal(t, string(domain.EventSpeak), readEvent())
}

func TestStreamManager_AllSessionsAndNotify(t *testing.T) {
	sm := NewStreamManager(nil)
	all, cancelAll := sm.Subscribe("")
	one, cancelOne := sm.Subscribe("s1")
	defer cancelAll()

	sm.Broadcast("s1", Frame{Event: "speak", Data: "{}"})
	assert.Equal(t, "speak", (<-one).Event)
	assert.Equal(t, "speak", (<-all).Event)

	sm.Notify("reload", map[string]string{"flow": "main"})
	frame := <-all
	assert.Equal(t, "reload", frame.Event)
	assert.JSONEq(t, `{"flow":"main"}`, frame.Data)

	cancelOne()
	cancelOne()
	_, open := <-one
	assert.False(t, open)
	assert.Zero(t, sm.Subscribers("s1"))
}
