package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func greetingFlow() *domain.Flow {
	return &domain.Flow{
		ID:      "greet",
		OwnerID: "owner-1",
		Name:    "Greeting",
		Nodes: []domain.Node{
			{ID: "welcome", Type: domain.NodeTypeText, Data: map[string]any{"label": "Welcome!"}},
			{ID: "ask", Type: domain.NodeTypeSingleInput, Data: map[string]any{"label": "Your name?", "variable": "name"}},
			{ID: "bye", Type: domain.NodeTypeText, Data: map[string]any{"label": "Bye {{ .name }}"}},
		},
		Edges: []domain.Edge{
			{ID: "e1", Source: "welcome", Target: "ask", Type: domain.DefaultEdgeType},
			{ID: "e2", Source: "ask", Target: "bye", Type: domain.DefaultEdgeType},
		},
	}
}

func aiFlow() *domain.Flow {
	return &domain.Flow{
		ID:      "ai",
		OwnerID: "owner-1",
		Nodes: []domain.Node{
			{ID: "ask", Type: domain.NodeTypeAIInput, Data: map[string]any{"label": "Ask me"}},
		},
	}
}

func newTestHandler(t *testing.T, opts []chatflow.Option, serverOpts ...Option) http.Handler {
	t.Helper()
	flows, err := memory.NewFlows(greetingFlow(), aiFlow())
	require.NoError(t, err)
	eng, err := chatflow.New("", append([]chatflow.Option{chatflow.WithFlowLoader(flows)}, opts...)...)
	require.NoError(t, err)
	handler, err := NewHandler(eng, serverOpts...)
	require.NoError(t, err)
	return handler
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) domain.State {
	t.Helper()
	var state domain.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state), w.Body.String())
	return state
}

func TestServer_SessionLifecycle(t *testing.T) {
	h := newTestHandler(t, nil)

	w := doJSON(t, h, http.MethodPost, "/sessions", StartRequest{OwnerID: "owner-1", FlowID: "greet", SessionID: "s1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	state := decodeState(t, w)
	assert.Equal(t, "ask", state.CurrentNodeID)
	assert.Equal(t, domain.StatusAwaitingInput, state.Status)

	w = doJSON(t, h, http.MethodPost, "/sessions/s1/responses", domain.TextResponse("Ada"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	state = decodeState(t, w)
	assert.Equal(t, domain.StatusCompleted, state.Status)
	assert.Equal(t, "Ada", state.Variables["name"])

	w = doJSON(t, h, http.MethodGet, "/sessions/s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StatusCompleted, decodeState(t, w).Status)

	w = doJSON(t, h, http.MethodPost, "/sessions/s1/restart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	restarted := decodeState(t, w)
	assert.Equal(t, uint64(1), restarted.Generation)
	assert.Equal(t, "ask", restarted.CurrentNodeID)

	w = doJSON(t, h, http.MethodDelete, "/sessions/s1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, h, http.MethodGet, "/sessions/s1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_StartErrors(t *testing.T) {
	h := newTestHandler(t, nil)

	w := doJSON(t, h, http.MethodPost, "/sessions", StartRequest{OwnerID: "owner-1", FlowID: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodPost, "/sessions", StartRequest{FlowID: "greet"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, "/sessions/nope/responses", domain.TextResponse("hi"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_GeneratesSessionID(t *testing.T) {
	h := newTestHandler(t, nil)

	w := doJSON(t, h, http.MethodPost, "/sessions", StartRequest{OwnerID: "owner-1", FlowID: "greet"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decodeState(t, w).SessionID)
}

type gate struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gate) Complete(ctx context.Context, cfg domain.ProviderConfig, prompt string) (string, error) {
	g.entered <- struct{}{}
	<-g.release
	return "reply", nil
}

func TestServer_BusyMapsToConflict(t *testing.T) {
	g := &gate{entered: make(chan struct{}, 1), release: make(chan struct{})}
	h := newTestHandler(t, []chatflow.Option{chatflow.WithResponder(g)})

	w := doJSON(t, h, http.MethodPost, "/sessions", StartRequest{OwnerID: "owner-1", FlowID: "ai", SessionID: "busy"})
	require.Equal(t, http.StatusOK, w.Code)

	first := make(chan int, 1)
	go func() {
		first <- doJSON(t, h, http.MethodPost, "/sessions/busy/responses", domain.TextResponse("one")).Code
	}()
	<-g.entered

	w = doJSON(t, h, http.MethodPost, "/sessions/busy/responses", domain.TextResponse("two"))
	assert.Equal(t, http.StatusConflict, w.Code)

	close(g.release)
	assert.Equal(t, http.StatusOK, <-first)
}

func TestServer_SanitizesInput(t *testing.T) {
	h := newTestHandler(t, nil)
	doJSON(t, h, http.MethodPost, "/sessions", StartRequest{OwnerID: "owner-1", FlowID: "greet", SessionID: "s1"})

	w := doJSON(t, h, http.MethodPost, "/sessions/s1/responses", domain.TextResponse("A\x1b[31mda"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "A[31mda", decodeState(t, w).Variables["name"])

	t.Setenv("CHATFLOW_MAX_INPUT_SIZE", "4")
	doJSON(t, h, http.MethodPost, "/sessions/s1/restart", nil)
	w = doJSON(t, h, http.MethodPost, "/sessions/s1/responses", domain.TextResponse("too long"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid input")
}

func TestServer_RequestValidation(t *testing.T) {
	h := newTestHandler(t, nil, WithRequestValidation())

	w := doJSON(t, h, http.MethodPost, "/sessions", map[string]any{"flowId": "greet"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	doJSON(t, h, http.MethodPost, "/sessions", StartRequest{OwnerID: "owner-1", FlowID: "greet", SessionID: "s1"})
	w = doJSON(t, h, http.MethodPost, "/sessions/s1/responses", map[string]any{"optionIndex": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, "/sessions/s1/responses", domain.TextResponse("Ada"))
	assert.Equal(t, http.StatusOK, w.Code, "valid requests reach the handler with their body intact")
}

func TestServer_FlowGraph(t *testing.T) {
	h := newTestHandler(t, nil)

	w := doJSON(t, h, http.MethodGet, "/flows/owner-1/greet/graph", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "graph TD")
	assert.Contains(t, w.Body.String(), "welcome --> ask")
	assert.NotContains(t, w.Body.String(), "class ")

	doJSON(t, h, http.MethodPost, "/sessions", StartRequest{OwnerID: "owner-1", FlowID: "greet", SessionID: "s1"})
	w = doJSON(t, h, http.MethodGet, "/flows/owner-1/greet/graph?sessionId=s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "class ask current;")

	w = doJSON(t, h, http.MethodGet, "/flows/owner-1/nope/graph", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_InfoAndHealth(t *testing.T) {
	h := newTestHandler(t, nil)

	w := doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "1.0.0", info["api_version"])
	assert.Equal(t, "chatflow-http", info["app"])

	w = doJSON(t, h, http.MethodGet, "/openapi.yaml", nil)
	assert.Contains(t, w.Body.String(), "openapi: 3.0.3")

	req := httptest.NewRequest(http.MethodOptions, "/sessions", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_GlobalEventsWithoutWatcher(t *testing.T) {
	h := newTestHandler(t, nil)

	w := doJSON(t, h, http.MethodGet, "/events", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestServer_SessionEvents(t *testing.T) {
	h := newTestHandler(t, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	doJSON(t, h, http.MethodPost, "/sessions", StartRequest{OwnerID: "owner-1", FlowID: "greet", SessionID: "s1"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sessions/s1/events?watch=transcript", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: ping\n", line)

	w := doJSON(t, h, http.MethodPost, "/sessions/s1/responses", domain.TextResponse("Ada"))
	require.Equal(t, http.StatusOK, w.Code)

	var frame string
	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: {") {
			frame = strings.TrimPrefix(strings.TrimSpace(line), "data: ")
			break
		}
	}

	var diff domain.TranscriptDiff
	require.NoError(t, json.Unmarshal([]byte(frame), &diff))
	assert.Equal(t, "s1", diff.SessionID)
	require.NotEmpty(t, diff.Appended, "the processing-only frame is filtered out by watch=transcript")
	assert.Equal(t, domain.RoleUser, diff.Appended[0].Role)
	assert.Equal(t, "Ada", diff.Appended[0].Text)
}

func TestServer_SessionSocket(t *testing.T) {
	h := newTestHandler(t, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	doJSON(t, h, http.MethodPost, "/sessions", StartRequest{OwnerID: "owner-1", FlowID: "greet", SessionID: "s1"})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/s1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var frame ServerFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, FrameState, frame.Type)
	require.NotNil(t, frame.State)
	assert.Equal(t, "ask", frame.State.CurrentNodeID)

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: "bogus"}))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, FrameError, frame.Type)
	assert.Contains(t, frame.Error, "unknown frame type")

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: FrameResponse, Text: "Ada"}))
	var completed bool
	for !completed {
		frame = ServerFrame{}
		require.NoError(t, conn.ReadJSON(&frame))
		require.Equal(t, FrameDiff, frame.Type)
		var diff domain.TranscriptDiff
		require.NoError(t, json.Unmarshal(frame.Diff, &diff))
		completed = diff.Status != nil && *diff.Status == domain.StatusCompleted
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrSessionNotFound, http.StatusNotFound},
		{domain.ErrFlowNotFound, http.StatusNotFound},
		{domain.ErrBusy, http.StatusConflict},
		{domain.ErrStaleGeneration, http.StatusGone},
		{domain.ErrInvalidFlow, http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestStreamManager_LaggedSubscriberResyncs(t *testing.T) {
	sm := NewStreamManager(logging.NewNop())
	ch, cancel := sm.Subscribe("s1")

	state := domain.NewState("s1")
	say := func(text string) {
		next := state.Clone()
		next.Transcript = append(next.Transcript, domain.Turn{Role: domain.RoleBot, Text: text})
		sm.Publish(context.Background(), state, next)
		state = next
	}

	// The client stops reading: the 11th delta does not fit.
	for i := 0; i <= streamBuffer; i++ {
		say(fmt.Sprintf("turn %d", i))
	}
	require.Len(t, ch, streamBuffer)
	for i := 0; i < streamBuffer; i++ {
		var diff domain.TranscriptDiff
		require.NoError(t, json.Unmarshal([]byte(<-ch), &diff))
		assert.False(t, diff.Reset)
		require.Len(t, diff.Appended, 1)
	}

	say("after the gap")
	var diff domain.TranscriptDiff
	require.NoError(t, json.Unmarshal([]byte(<-ch), &diff))
	assert.True(t, diff.Reset, "a lagged subscriber gets a full snapshot")
	require.Len(t, diff.Appended, streamBuffer+2)
	assert.Equal(t, fmt.Sprintf("turn %d", streamBuffer), diff.Appended[streamBuffer].Text, "the dropped turn is recovered")

	say("back in sync")
	require.NoError(t, json.Unmarshal([]byte(<-ch), &diff))
	assert.False(t, diff.Reset)
	require.Len(t, diff.Appended, 1)
	assert.Equal(t, "back in sync", diff.Appended[0].Text)

	assert.Equal(t, 1, sm.Subscribers("s1"))
	cancel()
	cancel()
	assert.Equal(t, 0, sm.Subscribers("s1"))
}

func TestMatchesWatch(t *testing.T) {
	processing := true
	onlyProcessing, _ := json.Marshal(domain.TranscriptDiff{SessionID: "s", Processing: &processing})
	appended, _ := json.Marshal(domain.TranscriptDiff{SessionID: "s", Appended: []domain.Turn{{Role: domain.RoleUser, Text: "hi"}}})

	assert.True(t, matchesWatch(string(onlyProcessing), nil))
	assert.True(t, matchesWatch(string(onlyProcessing), []string{"processing"}))
	assert.False(t, matchesWatch(string(onlyProcessing), []string{"transcript", "status"}))
	assert.True(t, matchesWatch(string(appended), []string{"transcript"}))
}

var _ ports.Responder = (*gate)(nil)
