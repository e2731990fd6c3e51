package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/chatflow/pkg/domain"
)

// streamBuffer is how many frames a subscriber may lag before it needs a resync.
const streamBuffer = 10

// subscriber is one SSE or websocket client. Frames are transcript deltas, so
// a subscriber that missed one is lagged: its next frame is a full snapshot
// (Reset) instead of a delta.
type subscriber struct {
	ch     chan string
	lagged bool
}

// StreamManager fans session diffs out to SSE and websocket subscribers.
type StreamManager struct {
	mu          sync.Mutex
	subscribers map[string]map[*subscriber]struct{} // SessionID -> subscribers
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[*subscriber]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a subscriber for sessionID. The returned func
// unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(sessionID string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sub := &subscriber{ch: make(chan string, streamBuffer)}
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[*subscriber]struct{})
	}
	sm.subscribers[sessionID][sub] = struct{}{}

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[sessionID]; ok {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(sm.subscribers, sessionID)
				}
			}
			close(sub.ch)
		})
	}
}

// Publish is a session.ChangeFunc: it sends the diff between two snapshots to
// every subscriber of the session without blocking. Lagged subscribers get
// the whole of new instead.
func (sm *StreamManager) Publish(ctx context.Context, old, new *domain.State) {
	diff := domain.Diff(old, new)
	if diff == nil {
		return
	}
	delta, err := json.Marshal(diff)
	if err != nil {
		sm.logger.Error("stream: failed to encode diff", "session_id", new.SessionID, "err", err)
		return
	}

	var snapshot []byte
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for sub := range sm.subscribers[new.SessionID] {
		frame := delta
		if sub.lagged {
			if snapshot == nil {
				if snapshot, err = json.Marshal(domain.Diff(nil, new)); err != nil {
					sm.logger.Error("stream: failed to encode snapshot", "session_id", new.SessionID, "err", err)
					return
				}
			}
			frame = snapshot
		}
		select {
		case sub.ch <- string(frame):
			sub.lagged = false
		default:
			if !sub.lagged {
				sm.logger.Warn("stream: client buffer full, resyncing on next change", "session_id", new.SessionID)
			}
			sub.lagged = true
		}
	}
}

// Subscribers returns how many subscribers sessionID has.
func (sm *StreamManager) Subscribers(sessionID string) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.subscribers[sessionID])
}

// matchesWatch reports whether a diff frame touches one of the watched fields:
// transcript, status or processing. An empty list matches everything.
func matchesWatch(msg string, watch []string) bool {
	if len(watch) == 0 {
		return true
	}
	var diff domain.TranscriptDiff
	if err := json.Unmarshal([]byte(msg), &diff); err != nil {
		return true
	}
	for _, field := range watch {
		switch field {
		case "transcript":
			if len(diff.Appended) > 0 || diff.Reset {
				return true
			}
		case "status":
			if diff.Status != nil || diff.CurrentNodeID != nil {
				return true
			}
		case "processing":
			if diff.Processing != nil {
				return true
			}
		}
	}
	return false
}
