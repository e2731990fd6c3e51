package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/runner"
	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Widgets are embedded on arbitrary sites.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Frame types exchanged on the session socket.
const (
	FrameState    = "state"
	FrameDiff     = "diff"
	FrameError    = "error"
	FrameResponse = "response"
	FrameRestart  = "restart"
)

// ClientFrame is a message sent by the widget.
type ClientFrame struct {
	Type        string            `json:"type"`
	Text        string            `json:"text,omitempty"`
	OptionIndex *int              `json:"optionIndex,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// ServerFrame is a message sent to the widget.
type ServerFrame struct {
	Type  string          `json:"type"`
	State *domain.State   `json:"state,omitempty"`
	Diff  json.RawMessage `json:"diff,omitempty"`
	Error string          `json:"error,omitempty"`
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(frame ServerFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(frame)
}

// SessionSocket handles GET /sessions/{sessionId}/ws. The socket first
// receives the current snapshot, then one diff frame per committed change.
// Client frames submit responses or restart the session.
func (s *Server) SessionSocket(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionParam(w, r)
	if !ok {
		return
	}
	state, err := s.Engine.Get(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, "SessionSocket", err)
		return
	}

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws: upgrade failed", "session_id", sessionID, "err", err)
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	diffs, cancel := s.Streams.Subscribe(sessionID)
	defer cancel()

	if err := conn.send(ServerFrame{Type: FrameState, State: state}); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.readFrames(r, conn, sessionID)
	}()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-diffs:
			if !ok {
				return
			}
			if err := conn.send(ServerFrame{Type: FrameDiff, Diff: json.RawMessage(msg)}); err != nil {
				s.logger.Debug("ws: write failed", "session_id", sessionID, "err", err)
				return
			}
		}
	}
}

func (s *Server) readFrames(r *http.Request, conn *wsConn, sessionID string) {
	ctx := r.Context()
	for {
		var frame ClientFrame
		if err := conn.conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("ws: read failed", "session_id", sessionID, "err", err)
			}
			return
		}

		var err error
		switch frame.Type {
		case FrameResponse:
			var resp domain.Response
			resp, err = runner.SanitizeResponse(domain.Response{Text: frame.Text, OptionIndex: frame.OptionIndex, Fields: frame.Fields})
			if err == nil {
				_, err = s.Engine.Submit(ctx, sessionID, resp)
			}
		case FrameRestart:
			_, err = s.Engine.Restart(ctx, sessionID)
		default:
			err = errUnknownFrame(frame.Type)
		}
		if err != nil {
			if sendErr := conn.send(ServerFrame{Type: FrameError, Error: err.Error()}); sendErr != nil {
				return
			}
		}
	}
}

type errUnknownFrame string

func (e errUnknownFrame) Error() string {
	return "unknown frame type: " + string(e)
}
