package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/input"
	"github.com/aretw0/callflow/pkg/session"
)

//go:embed openapi.yaml
var rawSpec []byte

var (
	specOnce sync.Once
	specDoc  *openapi3.T
	specErr  error
)

// GetSwagger returns the parsed and validated API description.
func GetSwagger() (*openapi3.T, error) {
	specOnce.Do(func() {
		loader := openapi3.NewLoader()
		specDoc, specErr = loader.LoadFromData(rawSpec)
		if specErr == nil {
			specErr = specDoc.Validate(context.Background())
		}
	})
	return specDoc, specErr
}

// Server serves the session API.
type Server struct {
	Sessions  *session.Manager
	Flows     session.FlowSource
	Streams   *StreamManager
	Sanitizer input.Sanitizer

	logger  *slog.Logger
	metrics http.Handler
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStreams shares a StreamManager whose hooks were installed on the
// sessions. Without it /events never receives session events.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithSanitizer sets the input policy for submitted text.
func WithSanitizer(san input.Sanitizer) Option {
	return func(s *Server) {
		s.Sanitizer = san
	}
}

// NewServer creates a Server over a session registry.
func NewServer(sessions *session.Manager, flows session.FlowSource, opts ...Option) *Server {
	s := &Server{
		Sessions:  sessions,
		Flows:     flows,
		Sanitizer: input.NewSanitizer(0),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}
	return s
}

// NewHandler creates the HTTP handler for a session registry.
func NewHandler(sessions *session.Manager, flows session.FlowSource, opts ...Option) http.Handler {
	return NewServer(sessions, flows, opts...).Routes()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/graph", s.GetGraph)
	r.Get("/events", s.SubscribeEvents)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Post("/", s.CreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Delete("/", s.DeleteSession)
			r.Get("/variables", s.GetVariables)
			r.Put("/variables", s.SetVariables)
			r.Post("/dispatch", s.StartDispatch)
			r.Post("/input", s.SubmitInput)
			r.Get("/output", s.PollOutput)
			r.Post("/stop", s.StopSession)
		})
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>callflow API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// CreateSessionRequest is the body of POST /sessions.
type CreateSessionRequest struct {
	Identity  string            `json:"identity"`
	Variables map[string]string `json:"variables"`
	Dispatch  bool              `json:"dispatch"`
}

// InputRequest is the body of POST /sessions/{id}/input.
type InputRequest struct {
	Text string `json:"text"`
}

// OutputResponse is the body of GET /sessions/{id}/output.
type OutputResponse struct {
	Messages []domain.Message `json:"messages"`
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if doc, err := GetSwagger(); err == nil && doc.Info != nil {
		apiVersion = doc.Info.Version
	}

	resp := map[string]any{
		"app":         "callflow-http",
		"version":     strings.TrimSpace(callflow.Version),
		"api_version": apiVersion,
		"sessions":    s.Sessions.Len(),
	}
	if flow := s.Flows.Flow(); flow != nil {
		resp["flow"] = flow.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetGraph handles the GET /graph request.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	flow := s.Flows.Flow()
	if flow == nil {
		s.fail(w, r, session.ErrNoFlow)
		return
	}
	writeJSON(w, http.StatusOK, flow.Graph().Snapshot())
}

// ListSessions handles the GET /sessions request.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	list := s.Sessions.List()
	if list == nil {
		list = []domain.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateSession handles the POST /sessions request.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body CreateSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.badRequest(w, "Invalid request body", err)
			return
		}
	}

	sess, err := s.Sessions.Create(body.Identity)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	for name, value := range body.Variables {
		sess.SetVariable(name, value)
	}
	if body.Dispatch {
		if err := sess.StartDispatch(r.Context()); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	s.logger.Info("Session created", "session_id", sess.ID(), "dispatch", body.Dispatch)
	writeJSON(w, http.StatusCreated, sess.Info())
}

// GetSession handles the GET /sessions/{id} request.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

// DeleteSession handles the DELETE /sessions/{id} request.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Delete(chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetVariables handles the GET /sessions/{id}/variables request.
func (s *Server) GetVariables(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Variables())
}

// SetVariables handles the PUT /sessions/{id}/variables request.
func (s *Server) SetVariables(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "Invalid request body", err)
		return
	}
	for name, value := range body {
		sess.SetVariable(name, value)
	}
	writeJSON(w, http.StatusOK, sess.Variables())
}

// StartDispatch handles the POST /sessions/{id}/dispatch request.
func (s *Server) StartDispatch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := sess.StartDispatch(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess.Info())
}

// SubmitInput handles the POST /sessions/{id}/input request.
func (s *Server) SubmitInput(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var body InputRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "Invalid request body", err)
		return
	}
	clean, err := s.Sanitizer.Sanitize(body.Text)
	if err != nil {
		s.logger.Warn("SubmitInput: Input rejected", "session_id", sess.ID(), "err", err, "size", len(body.Text))
		s.badRequest(w, fmt.Sprintf("Invalid input: %v", err), nil)
		return
	}
	sess.SubmitInput(clean)
	writeJSON(w, http.StatusAccepted, map[string]bool{"listening": sess.Listening()})
}

// PollOutput handles the GET /sessions/{id}/output request.
func (s *Server) PollOutput(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var drain bool
	if err := runtime.BindQueryParameter("form", true, false, "drain", r.URL.Query(), &drain); err != nil {
		s.badRequest(w, fmt.Sprintf("Invalid format for parameter drain: %v", err), nil)
		return
	}

	resp := OutputResponse{Messages: []domain.Message{}}
	if drain {
		resp.Messages = append(resp.Messages, sess.Drain()...)
	} else if msg, ok := sess.Poll(); ok {
		resp.Messages = append(resp.Messages, msg)
	}
	writeJSON(w, http.StatusOK, resp)
}

// StopSession handles the POST /sessions/{id}/stop request.
func (s *Server) StopSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.RequestStop()
	w.WriteHeader(http.StatusAccepted)
}

// SubscribeEvents handles the GET /events request (SSE). Without session_id
// the stream carries every session's events and flow reloads.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var sessionID string
	if err := runtime.BindQueryParameter("form", true, false, "session_id", r.URL.Query(), &sessionID); err != nil {
		s.badRequest(w, fmt.Sprintf("Invalid format for parameter session_id: %v", err), nil)
		return
	}
	if sessionID != "" {
		if _, err := s.Sessions.Get(sessionID); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(sessionID)
	defer cancel()
	s.logger.Info("SSE: Client subscribed", "session_id", sessionID)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: Client disconnected", "session_id", sessionID)
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", frame.Event, frame.Data)
			flusher.Flush()
		}
	}
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*callflow.Session, bool) {
	sess, err := s.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) badRequest(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		s.logger.Warn(msg, "err", err)
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDispatchBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrNoFlow):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
