// Package http serves chatflow sessions over HTTP: a JSON API, server-sent
// transcript diffs and a websocket channel for embedded widgets.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/internal/presentation/graph"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/runner"
	"github.com/aretw0/chatflow/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine is the part of chatflow.Engine the server drives.
type Engine interface {
	Start(ctx context.Context, sessionID, ownerID, flowID string) (*domain.State, error)
	Submit(ctx context.Context, sessionID string, resp domain.Response) (*domain.State, error)
	Restart(ctx context.Context, sessionID string) (*domain.State, error)
	Get(ctx context.Context, sessionID string) (*domain.State, error)
	Delete(ctx context.Context, sessionID string) error
	LoadFlow(ctx context.Context, ownerID, flowID string) (*domain.Flow, error)
	Watch(ctx context.Context) (<-chan string, error)
	OnChange(fn session.ChangeFunc)
}

var _ Engine = (*chatflow.Engine)(nil)

// Server holds the handlers of the API.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	logger   *slog.Logger
	metrics  http.Handler
	validate bool
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler serves h at /metrics instead of the default Prometheus registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithRequestValidation checks requests against the embedded OpenAPI document.
func WithRequestValidation() Option {
	return func(s *Server) {
		s.validate = true
	}
}

// NewHandler creates a new HTTP handler for the engine and subscribes the
// stream manager to its session changes.
func NewHandler(engine Engine, opts ...Option) (http.Handler, error) {
	server := &Server{
		Engine:  engine,
		logger:  logging.NewNop(),
		metrics: promhttp.Handler(),
	}
	for _, opt := range opts {
		opt(server)
	}
	server.Streams = NewStreamManager(server.logger)
	engine.OnChange(server.Streams.Publish)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)
	if server.validate {
		mw, err := validateRequests(server.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load API document: %w", err)
		}
		r.Use(mw)
	}

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec())
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerHTML))
	})
	r.Get("/health", server.GetHealth)
	r.Get("/info", server.GetInfo)
	r.Method(http.MethodGet, "/metrics", server.metrics)
	r.Get("/events", server.SubscribeFlowChanges)

	r.Post("/sessions", server.StartSession)
	r.Route("/sessions/{sessionId}", func(r chi.Router) {
		r.Get("/", server.GetSession)
		r.Delete("/", server.DeleteSession)
		r.Post("/responses", server.SubmitResponse)
		r.Post("/restart", server.RestartSession)
		r.Get("/events", server.SubscribeSession)
		r.Get("/ws", server.SessionSocket)
	})
	r.Get("/flows/{ownerId}/{flowId}/graph", server.GetFlowGraph)

	return r, nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
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
    <title>chatflow API Documentation</title>
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

// StartRequest is the body of POST /sessions.
type StartRequest struct {
	OwnerID   string `json:"ownerId"`
	FlowID    string `json:"flowId"`
	SessionID string `json:"sessionId,omitempty"`
}

// StartSession handles POST /sessions.
func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	var body StartRequest
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		s.logger.Warn("StartSession: invalid request body", "err", err)
		return
	}
	if body.OwnerID == "" || body.FlowID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "ownerId and flowId are required"})
		return
	}
	if body.SessionID == "" {
		body.SessionID = uuid.NewString()
	}

	state, err := s.Engine.Start(r.Context(), body.SessionID, body.OwnerID, body.FlowID)
	if err != nil {
		s.writeError(w, "StartSession", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// GetSession handles GET /sessions/{sessionId}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionParam(w, r)
	if !ok {
		return
	}
	state, err := s.Engine.Get(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, "GetSession", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// DeleteSession handles DELETE /sessions/{sessionId}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionParam(w, r)
	if !ok {
		return
	}
	if err := s.Engine.Delete(r.Context(), sessionID); err != nil {
		s.writeError(w, "DeleteSession", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitResponse handles POST /sessions/{sessionId}/responses.
func (s *Server) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionParam(w, r)
	if !ok {
		return
	}
	var resp domain.Response
	if err := decodeBody(r, &resp); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		s.logger.Warn("SubmitResponse: invalid request body", "err", err)
		return
	}
	resp, err := runner.SanitizeResponse(resp)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid input: %v", err)})
		s.logger.Warn("SubmitResponse: input rejected", "err", err, "session_id", sessionID)
		return
	}

	state, err := s.Engine.Submit(r.Context(), sessionID, resp)
	if err != nil {
		s.writeError(w, "SubmitResponse", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// RestartSession handles POST /sessions/{sessionId}/restart.
func (s *Server) RestartSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionParam(w, r)
	if !ok {
		return
	}
	state, err := s.Engine.Restart(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, "RestartSession", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// GetFlowGraph handles GET /flows/{ownerId}/{flowId}/graph.
func (s *Server) GetFlowGraph(w http.ResponseWriter, r *http.Request) {
	var ownerID, flowID string
	var sessionID *string
	if err := bindPath(r, "ownerId", &ownerID); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := bindPath(r, "flowId", &flowID); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "sessionId", r.URL.Query(), &sessionID); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	flow, err := s.Engine.LoadFlow(r.Context(), ownerID, flowID)
	if err != nil {
		s.writeError(w, "GetFlowGraph", err)
		return
	}

	var overlay *graph.GraphOverlay
	if sessionID != nil && *sessionID != "" {
		state, err := s.Engine.Get(r.Context(), *sessionID)
		if err != nil {
			s.writeError(w, "GetFlowGraph", err)
			return
		}
		overlay = graph.OverlayFromState(state)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(graph.GenerateMermaid(flow, overlay)))
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if swagger, err := GetSwagger(); err == nil && swagger.Info != nil {
		apiVersion = swagger.Info.Version
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "chatflow-http",
		"version":     strings.TrimSpace(chatflow.Version),
		"api_version": apiVersion,
	})
}

func (s *Server) sessionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	var sessionID string
	if err := bindPath(r, "sessionId", &sessionID); err != nil || sessionID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid sessionId"})
		return "", false
	}
	return sessionID, true
}

func bindPath(r *http.Request, name string, dest *string) error {
	return runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), dest,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrFlowNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStaleGeneration):
		return http.StatusGone
	case errors.Is(err, domain.ErrInvalidFlow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	} else {
		s.logger.Debug(op+" rejected", "err", err, "status", status)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// maxBodySize bounds request bodies; inputs are further limited by runner.SanitizeInput.
const maxBodySize = 1 << 20

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize)).Decode(v)
}
