// Package mcp exposes chatflow sessions as Model Context Protocol tools, so an
// agent can walk a flow the same way a widget user does.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/internal/presentation/graph"
	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/runner"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// FlowURIPrefix is the scheme of flow graph resources: chatflow://flows/{ownerId}/{flowId}.
const FlowURIPrefix = "chatflow://flows/"

// SessionResponse is the result of every session tool.
type SessionResponse struct {
	State    *domain.State  `json:"state" jsonschema_description:"The session snapshot"`
	Prompt   *domain.Prompt `json:"prompt,omitempty" jsonschema_description:"What the session is waiting for, absent once terminal"`
	Terminal bool           `json:"terminal" jsonschema_description:"Indicates the conversation has ended"`
}

// Engine is the part of chatflow.Engine the MCP server drives.
type Engine interface {
	Start(ctx context.Context, sessionID, ownerID, flowID string) (*domain.State, error)
	Submit(ctx context.Context, sessionID string, resp domain.Response) (*domain.State, error)
	Restart(ctx context.Context, sessionID string) (*domain.State, error)
	Get(ctx context.Context, sessionID string) (*domain.State, error)
	LoadFlow(ctx context.Context, ownerID, flowID string) (*domain.Flow, error)
}

var _ Engine = (*chatflow.Engine)(nil)

// Server wraps the chatflow Engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		engine:    engine,
		logger:    logger,
		mcpServer: server.NewMCPServer("chatflow-mcp", strings.TrimSpace(chatflow.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops it when ctx is done.
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

		s.logger.Info("MCP Server shutting down")
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
		mcp.WithDescription("Start a conversation on a flow, or resume it if the session already runs that flow."),
		mcp.WithString("owner_id", mcp.Required(), mcp.Description("Owner of the flow")),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow to run")),
		mcp.WithString("session_id", mcp.Description("Session to start (generated when omitted)")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleStart))

	s.mcpServer.AddTool(mcp.NewTool("submit_response",
		mcp.WithDescription("Answer the node the session is waiting on."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("text", mcp.Description("Free-text answer, or the text of the chosen option")),
		mcp.WithNumber("option_index", mcp.Description("Zero-based index of the chosen option")),
		mcp.WithString("fields", mcp.Description("JSON object of form field values")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleSubmit))

	s.mcpServer.AddTool(mcp.NewTool("restart_session",
		mcp.WithDescription("Discard the conversation and run the flow again from its start."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleRestart))

	s.mcpServer.AddTool(mcp.NewTool("get_transcript",
		mcp.WithDescription("Read the transcript and status of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleGet))

	s.mcpServer.AddTool(mcp.NewTool("get_flow_graph",
		mcp.WithDescription("Render a flow as a Mermaid diagram, optionally highlighting a session's path."),
		mcp.WithString("owner_id", mcp.Required(), mcp.Description("Owner of the flow")),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow ID")),
		mcp.WithString("session_id", mcp.Description("Session whose progress to overlay")),
	), s.handleGraph)
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	ownerID, _ := args["owner_id"].(string)
	flowID, _ := args["flow_id"].(string)
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	state, err := s.engine.Start(ctx, sessionID, ownerID, flowID)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("start failed: %w", err)
	}
	return s.respond(ctx, state), nil
}

func (s *Server) handleSubmit(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	sessionID, _ := args["session_id"].(string)
	text, _ := args["text"].(string)

	resp := domain.TextResponse(text)
	if idx, ok := args["option_index"].(float64); ok {
		i := int(idx)
		resp.OptionIndex = &i
	}
	if raw, ok := args["fields"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &resp.Fields); err != nil {
			return SessionResponse{}, fmt.Errorf("fields must be a JSON object of strings: %w", err)
		}
	}
	resp, err := runner.SanitizeResponse(resp)
	if err != nil {
		s.logger.Warn("MCP Submit: input rejected", "err", err, "size", len(text))
		return SessionResponse{}, fmt.Errorf("input rejected: %w", err)
	}

	state, err := s.engine.Submit(ctx, sessionID, resp)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("submit failed: %w", err)
	}
	return s.respond(ctx, state), nil
}

func (s *Server) handleRestart(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	sessionID, _ := args["session_id"].(string)
	state, err := s.engine.Restart(ctx, sessionID)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("restart failed: %w", err)
	}
	return s.respond(ctx, state), nil
}

func (s *Server) handleGet(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	sessionID, _ := args["session_id"].(string)
	state, err := s.engine.Get(ctx, sessionID)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("get failed: %w", err)
	}
	return s.respond(ctx, state), nil
}

func (s *Server) handleGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ownerID := request.GetString("owner_id", "")
	flowID := request.GetString("flow_id", "")
	sessionID := request.GetString("session_id", "")

	chart, err := s.mermaid(ctx, ownerID, flowID, sessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(chart), nil
}

// respond attaches the prompt of the node the session waits on.
func (s *Server) respond(ctx context.Context, state *domain.State) SessionResponse {
	out := SessionResponse{State: state, Terminal: state.Terminal()}
	if out.Terminal {
		return out
	}
	flow, err := s.engine.LoadFlow(ctx, state.OwnerID, state.FlowID)
	if err != nil {
		s.logger.Warn("MCP: could not load flow for prompt", "flow_id", state.FlowID, "err", err)
		return out
	}
	if node, ok := flow.Node(state.CurrentNodeID); ok {
		prompt := runtime.RenderNode(node)
		out.Prompt = &prompt
	}
	return out
}

func (s *Server) mermaid(ctx context.Context, ownerID, flowID, sessionID string) (string, error) {
	flow, err := s.engine.LoadFlow(ctx, ownerID, flowID)
	if err != nil {
		return "", fmt.Errorf("failed to load flow %s/%s: %w", ownerID, flowID, err)
	}
	var overlay *graph.GraphOverlay
	if sessionID != "" {
		state, err := s.engine.Get(ctx, sessionID)
		if err != nil {
			return "", fmt.Errorf("failed to load session %s: %w", sessionID, err)
		}
		overlay = graph.OverlayFromState(state)
	}
	return graph.GenerateMermaid(flow, overlay), nil
}

func (s *Server) registerResources() {
	// EXPOSE: chatflow://flows/{ownerId}/{flowId}
	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(FlowURIPrefix+"{ownerId}/{flowId}", "Flow Diagram",
		mcp.WithTemplateDescription("Mermaid flowchart of a flow"),
		mcp.WithTemplateMIMEType("text/vnd.mermaid"),
	), s.readFlowResource)
}

func (s *Server) readFlowResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	ownerID, flowID, ok := strings.Cut(strings.TrimPrefix(uri, FlowURIPrefix), "/")
	if !strings.HasPrefix(uri, FlowURIPrefix) || !ok || ownerID == "" || flowID == "" {
		return nil, fmt.Errorf("invalid flow resource URI: %s", uri)
	}

	chart, err := s.mermaid(ctx, ownerID, flowID, "")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/vnd.mermaid",
			Text:     chart,
		},
	}, nil
}
