// Package mcp exposes the engine as Model Context Protocol tools, so an
// agent can sit at the table as a participant.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/wren"
	"github.com/aretw0/wren/internal/logging"
	"github.com/aretw0/wren/pkg/command"
	"github.com/aretw0/wren/pkg/domain"
	"github.com/aretw0/wren/pkg/registry"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"
)

// SessionsURI is the resource listing every session.
const SessionsURI = "wren://sessions"

// Engine defines the engine operations the MCP server needs.
type Engine interface {
	CreateSession(ctx context.Context, req registry.CreateRequest) (domain.Session, error)
	Join(ctx context.Context, req registry.JoinRequest) (domain.Membership, error)
	Snapshot(ctx context.Context, sessionID string) (domain.Snapshot, error)
	ListSessions(ctx context.Context) ([]domain.Session, error)
	Execute(ctx context.Context, sessionID, participantID, text string) (command.Result, error)
	LogSince(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]domain.LogEntry, error)
}

var _ Engine = (*wren.Engine)(nil)

// CommandArgs are the arguments of run_command.
type CommandArgs struct {
	SessionID     string `mapstructure:"session_id"`
	ParticipantID string `mapstructure:"participant_id"`
	Text          string `mapstructure:"text"`
}

// LogArgs are the arguments of read_log_since.
type LogArgs struct {
	SessionID string `mapstructure:"session_id"`
	Since     int64  `mapstructure:"since"`
	Limit     int    `mapstructure:"limit"`
}

// LogResponse wraps log entries for structured output.
type LogResponse struct {
	Entries []domain.LogEntry `json:"entries" jsonschema_description:"Entries with seq greater than since, ascending"`
	Latest  int64             `json:"latest" jsonschema_description:"Seq of the last returned entry, or since when empty"`
}

// Server wraps the engine and exposes it as an MCP server.
type Server struct {
	engine    Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("wren-mcp", strings.TrimSpace(wren.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops it when
// ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

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

		s.logger.Info("Shutdown signal received, shutting down MCP server")
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
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	createTool := mcp.NewTool("create_session",
		mcp.WithDescription("Open a new scene session. The creator becomes its game-master."),
		mcp.WithString("creator", mcp.Required(), mcp.Description("Participant ID of the game-master")),
		mcp.WithString("name", mcp.Description("Session name")),
		mcp.WithString("theme", mcp.Description("Theme tag")),
		mcp.WithOutputSchema[domain.Session](),
	)
	s.mcpServer.AddTool(createTool, mcp.NewStructuredToolHandler(s.handleCreateSession))

	joinTool := mcp.NewTool("join_session",
		mcp.WithDescription("Join a session as player, observer or game-master."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to join")),
		mcp.WithString("participant_id", mcp.Required(), mcp.Description("Your participant ID")),
		mcp.WithString("role", mcp.Description("gm, player (default) or observer")),
		mcp.WithString("character_name", mcp.Description("Display name in the scene log")),
		mcp.WithOutputSchema[domain.Membership](),
	)
	s.mcpServer.AddTool(joinTool, mcp.NewStructuredToolHandler(s.handleJoinSession))

	snapshotTool := mcp.NewTool("get_snapshot",
		mcp.WithDescription("Read the session, its members, the scene, active entities and the recent log."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to read")),
		mcp.WithOutputSchema[domain.Snapshot](),
	)
	s.mcpServer.AddTool(snapshotTool, mcp.NewStructuredToolHandler(s.handleGetSnapshot))

	commandTool := mcp.NewTool("run_command",
		mcp.WithDescription("Send one line as a participant. Lines starting with / are commands (/scene, /roll, /summon, /echo, /dismiss); anything else goes to the narrator."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session")),
		mcp.WithString("participant_id", mcp.Required(), mcp.Description("Acting participant")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Command or prompt text")),
		mcp.WithOutputSchema[command.Result](),
	)
	s.mcpServer.AddTool(commandTool, mcp.NewStructuredToolHandler(s.handleRunCommand))

	logTool := mcp.NewTool("read_log_since",
		mcp.WithDescription("Read scene log entries newer than a sequence number."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to read")),
		mcp.WithNumber("since", mcp.Description("Last seq already seen (default 0)")),
		mcp.WithNumber("limit", mcp.Description("Maximum entries to return (default all)")),
		mcp.WithOutputSchema[LogResponse](),
	)
	s.mcpServer.AddTool(logTool, mcp.NewStructuredToolHandler(s.handleReadLogSince))
}

// decodeArgs maps loosely typed tool arguments onto a tagged struct.
// JSON numbers arrive as float64 and are converted.
func decodeArgs(args map[string]interface{}, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

func (s *Server) handleCreateSession(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (domain.Session, error) {
	var req registry.CreateRequest
	if err := decodeArgs(args, &req); err != nil {
		return domain.Session{}, err
	}
	return s.engine.CreateSession(ctx, req)
}

func (s *Server) handleJoinSession(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (domain.Membership, error) {
	var req registry.JoinRequest
	if err := decodeArgs(args, &req); err != nil {
		return domain.Membership{}, err
	}
	return s.engine.Join(ctx, req)
}

func (s *Server) handleGetSnapshot(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (domain.Snapshot, error) {
	sessionID, _ := args["session_id"].(string)
	return s.engine.Snapshot(ctx, sessionID)
}

func (s *Server) handleRunCommand(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (command.Result, error) {
	var req CommandArgs
	if err := decodeArgs(args, &req); err != nil {
		return command.Result{}, err
	}
	res, err := s.engine.Execute(ctx, req.SessionID, req.ParticipantID, req.Text)
	if err != nil {
		s.logger.Debug("MCP run_command rejected", "session_id", req.SessionID, "err", err)
		return command.Result{}, err
	}
	return res, nil
}

func (s *Server) handleReadLogSince(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (LogResponse, error) {
	var req LogArgs
	if err := decodeArgs(args, &req); err != nil {
		return LogResponse{}, err
	}
	if req.Since < 0 {
		return LogResponse{}, fmt.Errorf("%w: since must be non-negative", domain.ErrValidation)
	}
	entries, err := s.engine.LogSince(ctx, req.SessionID, req.Since, req.Limit)
	if err != nil {
		return LogResponse{}, err
	}
	resp := LogResponse{Entries: entries, Latest: req.Since}
	if resp.Entries == nil {
		resp.Entries = []domain.LogEntry{}
	}
	if n := len(entries); n > 0 {
		resp.Latest = entries[n-1].Seq
	}
	return resp, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(SessionsURI, "Sessions",
		mcp.WithMIMEType("application/json"),
	), s.readSessions)
}

func (s *Server) readSessions(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	list, err := s.engine.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	jsonBytes, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      SessionsURI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}
