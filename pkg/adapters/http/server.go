// Package http exposes the engine over a JSON API with a server-sent change feed.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/wren"
	"github.com/aretw0/wren/internal/logging"
	"github.com/aretw0/wren/pkg/command"
	"github.com/aretw0/wren/pkg/domain"
	"github.com/aretw0/wren/pkg/feed"
	"github.com/aretw0/wren/pkg/registry"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
)

//go:generate go tool oapi-codegen -package http -generate types,chi-server,spec -o api.gen.go openapi.yaml

// LoadSpec decodes and validates the OpenAPI document compiled into the package.
func LoadSpec(ctx context.Context) (*openapi3.T, error) {
	doc, err := GetSwagger()
	if err != nil {
		return nil, fmt.Errorf("load openapi: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi: %w", err)
	}
	return doc, nil
}

// Engine is the subset of the wren engine served over HTTP.
type Engine interface {
	CreateSession(ctx context.Context, req registry.CreateRequest) (domain.Session, error)
	Join(ctx context.Context, req registry.JoinRequest) (domain.Membership, error)
	Session(ctx context.Context, sessionID string) (domain.Session, error)
	Membership(ctx context.Context, sessionID, participantID string) (domain.Membership, error)
	Snapshot(ctx context.Context, sessionID string) (domain.Snapshot, error)
	ListSessions(ctx context.Context) ([]domain.Session, error)
	CloseSession(ctx context.Context, sessionID, participantID string) error
	Execute(ctx context.Context, sessionID, participantID, text string) (command.Result, error)
	ExecuteStream(ctx context.Context, sessionID, participantID, text string, onDelta command.DeltaFunc) (command.Result, error)
	LogSince(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]domain.LogEntry, error)
	Stream(ctx context.Context, sessionID string, cursor domain.Cursor, emit feed.EmitFunc) error
}

var (
	_ Engine          = (*wren.Engine)(nil)
	_ ServerInterface = (*Server)(nil)
)

// Server implements the generated ServerInterface.
type Server struct {
	Engine     Engine
	logger     *slog.Logger
	metrics    http.Handler
	apiVersion string
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics mounts a Prometheus handler at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// NewHandler creates the HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{
		Engine:     engine,
		logger:     logging.NewNop(),
		apiVersion: "unknown",
	}
	for _, opt := range opts {
		opt(s)
	}
	if doc, err := LoadSpec(context.Background()); err == nil && doc.Info != nil {
		s.apiVersion = doc.Info.Version
	} else if err != nil {
		s.logger.Error("Failed to load OpenAPI spec", "err", err)
	}

	r := chi.NewRouter()
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		spec, err := rawSpec()
		if err != nil {
			http.Error(w, "Failed to load spec", http.StatusInternalServerError)
			s.logger.Error("Failed to load OpenAPI spec", "err", err)
			return
		}
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(spec)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	handler := HandlerWithOptions(s, ChiServerOptions{
		BaseRouter:       r,
		ErrorHandlerFunc: s.paramError,
	})
	return enableCORS(handler)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CommandResponse is the body of a successful command.
type CommandResponse struct {
	Status string `json:"status"`
	command.Result
}

// StatusCode maps engine errors to HTTP status codes.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotAMember), errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAlreadyMember), errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, domain.ErrGeneration):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	} else {
		s.logger.Debug(op+" rejected", "err", err, "status", code)
	}
	writeJSON(w, code, ErrorResponse{Status: "error", Message: err.Error()})
}

// paramError answers parameters the generated wrapper could not bind.
func (s *Server) paramError(w http.ResponseWriter, r *http.Request, err error) {
	s.fail(w, "BindParams", fmt.Errorf("%w: %v", domain.ErrValidation, err))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err)
	}
	return nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "wren-http",
		"version":     strings.TrimSpace(wren.Version),
		"api_version": s.apiVersion,
	})
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.Engine.ListSessions(r.Context())
	if err != nil {
		s.fail(w, "ListSessions", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateSession handles POST /sessions.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body CreateSessionJSONRequestBody
	if err := decode(r, &body); err != nil {
		s.fail(w, "CreateSession", err)
		return
	}
	sess, err := s.Engine.CreateSession(r.Context(), registry.CreateRequest{
		Name:      deref(body.Name),
		CreatorID: deref(body.Creator),
		Theme:     deref(body.Theme),
		Meta:      deref(body.Meta),
	})
	if err != nil {
		s.fail(w, "CreateSession", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "success", "sessionId": sess.ID, "session": sess})
}

// GetSnapshot handles GET /sessions/{sessionId}.
func (s *Server) GetSnapshot(w http.ResponseWriter, r *http.Request, sessionID SessionId) {
	snap, err := s.Engine.Snapshot(r.Context(), sessionID)
	if err != nil {
		s.fail(w, "GetSnapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// JoinSession handles POST /sessions/{sessionId}/join.
func (s *Server) JoinSession(w http.ResponseWriter, r *http.Request, sessionID SessionId) {
	var body JoinSessionJSONRequestBody
	if err := decode(r, &body); err != nil {
		s.fail(w, "JoinSession", err)
		return
	}
	m, err := s.Engine.Join(r.Context(), registry.JoinRequest{
		SessionID:     sessionID,
		ParticipantID: body.ParticipantId,
		Role:          string(deref(body.Role)),
		CharacterName: deref(body.CharacterName),
	})
	if err != nil {
		s.fail(w, "JoinSession", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "role": m.Role, "membership": m})
}

// ReadLog handles GET /sessions/{sessionId}/log.
func (s *Server) ReadLog(w http.ResponseWriter, r *http.Request, sessionID SessionId, params ReadLogParams) {
	since, limit := deref(params.Since), deref(params.Limit)
	if since < 0 || limit < 0 {
		s.fail(w, "ReadLog", fmt.Errorf("%w: since and limit must be non-negative", domain.ErrValidation))
		return
	}
	entries, err := s.Engine.LogSince(r.Context(), sessionID, since, limit)
	if err != nil {
		s.fail(w, "ReadLog", err)
		return
	}
	if entries == nil {
		entries = []domain.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// RunCommand handles POST /sessions/{sessionId}/command.
func (s *Server) RunCommand(w http.ResponseWriter, r *http.Request, sessionID SessionId) {
	var body RunCommandJSONRequestBody
	if err := decode(r, &body); err != nil {
		s.fail(w, "RunCommand", err)
		return
	}
	res, err := s.Engine.Execute(r.Context(), sessionID, body.ParticipantId, body.CommandText)
	if err != nil {
		s.fail(w, "RunCommand", err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Status: "success", Result: res})
}

// DeltaEvent is the data of a delta event on the command stream.
type DeltaEvent struct {
	Content string `json:"content"`
}

// RunCommandStream handles POST /sessions/{sessionId}/command/stream.
// The SSE response starts with the first reply fragment, or with the result
// when there was none; earlier failures are answered as JSON.
func (s *Server) RunCommandStream(w http.ResponseWriter, r *http.Request, sessionID SessionId) {
	var body RunCommandStreamJSONRequestBody
	if err := decode(r, &body); err != nil {
		s.fail(w, "RunCommandStream", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("RunCommandStream: Streaming not supported")
		return
	}

	started := false
	send := func(event string, v any) error {
		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		payload, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	res, err := s.Engine.ExecuteStream(r.Context(), sessionID, body.ParticipantId, body.CommandText, func(delta string) error {
		return send("delta", DeltaEvent{Content: delta})
	})
	if err != nil {
		if !started {
			s.fail(w, "RunCommandStream", err)
			return
		}
		s.logger.Warn("Command stream failed", "session_id", sessionID, "err", err)
		send("error", ErrorResponse{Status: "error", Message: err.Error()})
		return
	}
	if err := send("result", CommandResponse{Status: "success", Result: res}); err != nil {
		s.logger.Warn("Command stream write failed", "session_id", sessionID, "err", err)
	}
}

// CloseSession handles POST /sessions/{sessionId}/close.
func (s *Server) CloseSession(w http.ResponseWriter, r *http.Request, sessionID SessionId) {
	var body CloseSessionJSONRequestBody
	if err := decode(r, &body); err != nil {
		s.fail(w, "CloseSession", err)
		return
	}
	if err := s.Engine.CloseSession(r.Context(), sessionID, body.ParticipantId); err != nil {
		s.fail(w, "CloseSession", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// SubscribeEvents handles GET /sessions/{sessionId}/events (SSE).
// The cursor comes from the cursor query parameter or the Last-Event-ID header.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request, sessionID SessionId, params SubscribeEventsParams) {
	participantID := params.ParticipantId

	if _, err := s.Engine.Session(r.Context(), sessionID); err != nil {
		s.fail(w, "SubscribeEvents", err)
		return
	}
	if _, err := s.Engine.Membership(r.Context(), sessionID, participantID); err != nil {
		s.fail(w, "SubscribeEvents", err)
		return
	}

	raw := deref(params.Cursor)
	if raw == "" {
		raw = deref(params.LastEventID)
	}
	cursor, err := domain.ParseCursor(raw)
	if err != nil {
		s.fail(w, "SubscribeEvents", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.logger.Info("SSE: Subscribing to session feed", "session_id", sessionID, "participant_id", participantID)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	err = s.Engine.Stream(r.Context(), sessionID, cursor, func(ev domain.FeedEvent, c domain.Cursor) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", c, ev.Type, payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		s.logger.Warn("SSE stream ended", "session_id", sessionID, "err", err)
		return
	}
	s.logger.Info("SSE Client Disconnected", "session_id", sessionID)
}
