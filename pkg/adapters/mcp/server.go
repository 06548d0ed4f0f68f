package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/input"
	"github.com/aretw0/callflow/pkg/session"
)

// GraphURI is the resource holding the current compiled graph.
const GraphURI = "callflow://graph"

// SessionResponse is returned by the tools that act on a session.
type SessionResponse struct {
	Session  domain.SessionInfo `json:"session" jsonschema_description:"The session after the call"`
	Messages []domain.Message   `json:"messages" jsonschema_description:"Messages read from the session's output queue"`
}

// VariablesResponse is returned by get_variables.
type VariablesResponse struct {
	SessionID string           `json:"session_id"`
	Variables []domain.Binding `json:"variables" jsonschema_description:"Declared variables in declaration order"`
}

// StartArgs are the arguments of start_session.
type StartArgs struct {
	Identity  string `json:"identity"`
	Variables string `json:"variables"`
}

// InputArgs are the arguments of send_input.
type InputArgs struct {
	SessionID string  `json:"session_id"`
	Text      string  `json:"text"`
	WaitMS    float64 `json:"wait_ms"`
}

// PollArgs are the arguments of poll_output.
type PollArgs struct {
	SessionID string `json:"session_id"`
	Drain     bool   `json:"drain"`
}

// StopArgs are the arguments of stop_session.
type StopArgs struct {
	SessionID string `json:"session_id"`
	Delete    bool   `json:"delete"`
}

// SessionArgs identify a session.
type SessionArgs struct {
	SessionID string `json:"session_id"`
}

// Server exposes a session registry as an MCP server.
type Server struct {
	sessions  *session.Manager
	flows     session.FlowSource
	sanitizer input.Sanitizer
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithSanitizer(san input.Sanitizer) Option {
	return func(s *Server) {
		s.sanitizer = san
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(sessions *session.Manager, flows session.FlowSource, opts ...Option) *Server {
	s := &Server{
		sessions:  sessions,
		flows:     flows,
		sanitizer: input.NewSanitizer(0),
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("callflow-mcp", strings.TrimSpace(callflow.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("start_session",
		mcp.WithDescription("Create a session on the current flow and start its conversation at the main step."),
		mcp.WithString("identity", mcp.Description("Caller name, available to the script as $name")),
		mcp.WithString("variables", mcp.Description("JSON object of variable values to set before starting")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleStart))

	s.mcpServer.AddTool(mcp.NewTool("send_input",
		mcp.WithDescription("Submit caller text. Only a Listen that is waiting, or starts later, sees it."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Caller text")),
		mcp.WithNumber("wait_ms", mcp.Description("Wait up to this long for the session to reply (optional)")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleInput))

	s.mcpServer.AddTool(mcp.NewTool("poll_output",
		mcp.WithDescription("Read the oldest unread message, or every unread message with drain."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithBoolean("drain", mcp.Description("Read all unread messages")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handlePoll))

	s.mcpServer.AddTool(mcp.NewTool("stop_session",
		mcp.WithDescription("Stop the session's conversation, optionally removing the session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithBoolean("delete", mcp.Description("Also remove the session")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleStop))

	s.mcpServer.AddTool(mcp.NewTool("get_variables",
		mcp.WithDescription("List the script's variables and their values for a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithOutputSchema[VariablesResponse](),
	), mcp.NewStructuredToolHandler(s.handleVariables))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the compiled graph of the current flow for introspection."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := s.graphJSON()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func (s *Server) handleStart(ctx context.Context, _ mcp.CallToolRequest, args StartArgs) (SessionResponse, error) {
	var vars map[string]string
	if args.Variables != "" {
		if err := json.Unmarshal([]byte(args.Variables), &vars); err != nil {
			return SessionResponse{}, fmt.Errorf("variables must be a JSON object of strings: %w", err)
		}
	}

	sess, err := s.sessions.Create(args.Identity)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("create session: %w", err)
	}
	for name, value := range vars {
		sess.SetVariable(name, value)
	}
	if err := sess.StartDispatch(ctx); err != nil {
		return SessionResponse{}, fmt.Errorf("start dispatch: %w", err)
	}
	s.logger.Info("MCP: Session started", "session_id", sess.ID())
	return SessionResponse{Session: sess.Info(), Messages: []domain.Message{}}, nil
}

func (s *Server) handleInput(ctx context.Context, _ mcp.CallToolRequest, args InputArgs) (SessionResponse, error) {
	sess, err := s.sessions.Get(args.SessionID)
	if err != nil {
		return SessionResponse{}, err
	}
	clean, err := s.sanitizer.Sanitize(args.Text)
	if err != nil {
		s.logger.Warn("MCP SendInput: Input rejected", "err", err, "size", len(args.Text))
		return SessionResponse{}, fmt.Errorf("input rejected: %w", err)
	}
	sess.SubmitInput(clean)

	messages := []domain.Message{}
	if args.WaitMS > 0 {
		messages = append(messages, waitForOutput(ctx, sess, time.Duration(args.WaitMS)*time.Millisecond)...)
	}
	return SessionResponse{Session: sess.Info(), Messages: messages}, nil
}

// waitForOutput drains the session until it has replied or the wait is over.
func waitForOutput(ctx context.Context, sess *callflow.Session, wait time.Duration) []domain.Message {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	var out []domain.Message
	for {
		out = append(out, sess.Drain()...)
		if len(out) > 0 && (sess.Listening() || !sess.IsDispatching()) {
			return out
		}
		select {
		case <-ctx.Done():
			return out
		case <-deadline.C:
			return append(out, sess.Drain()...)
		case <-tick.C:
		}
	}
}

func (s *Server) handlePoll(_ context.Context, _ mcp.CallToolRequest, args PollArgs) (SessionResponse, error) {
	sess, err := s.sessions.Get(args.SessionID)
	if err != nil {
		return SessionResponse{}, err
	}
	messages := []domain.Message{}
	if args.Drain {
		messages = append(messages, sess.Drain()...)
	} else if msg, ok := sess.Poll(); ok {
		messages = append(messages, msg)
	}
	return SessionResponse{Session: sess.Info(), Messages: messages}, nil
}

func (s *Server) handleStop(ctx context.Context, _ mcp.CallToolRequest, args StopArgs) (SessionResponse, error) {
	sess, err := s.sessions.Get(args.SessionID)
	if err != nil {
		return SessionResponse{}, err
	}
	if args.Delete {
		_ = s.sessions.Delete(args.SessionID)
	} else {
		sess.RequestStop()
	}
	if err := sess.Wait(ctx); err != nil {
		return SessionResponse{}, err
	}
	return SessionResponse{Session: sess.Info(), Messages: sess.Drain()}, nil
}

func (s *Server) handleVariables(_ context.Context, _ mcp.CallToolRequest, args SessionArgs) (VariablesResponse, error) {
	sess, err := s.sessions.Get(args.SessionID)
	if err != nil {
		return VariablesResponse{}, err
	}
	return VariablesResponse{SessionID: sess.ID(), Variables: sess.Variables()}, nil
}

func (s *Server) graphJSON() ([]byte, error) {
	flow := s.flows.Flow()
	if flow == nil {
		return nil, session.ErrNoFlow
	}
	return json.Marshal(flow.Graph().Snapshot())
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphURI, "Current Flow Graph",
		mcp.WithMIMEType("application/json"),
	), s.readGraph)
}

func (s *Server) readGraph(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := s.graphJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to read graph: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      GraphURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
