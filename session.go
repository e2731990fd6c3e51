package chatflow

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
)

// ErrNotStarted is returned when a Session is used before Start.
var ErrNotStarted = errors.New("session not started")

// Session is an embeddable conversation handle: the single surface shared by
// every renderer (editor preview, widget, hosted page, CLI).
//
// It is safe for concurrent use; overlapping submits fail with domain.ErrBusy.
type Session struct {
	engine *Engine
	id     string

	mu    sync.RWMutex
	flow  *domain.Flow
	state *domain.State
}

// NewSession creates a standalone session backed by its own in-memory engine.
// Options configure collaborators such as WithResponder or WithWebhookInvoker.
func NewSession(opts ...Option) (*Session, error) {
	flows, err := memory.NewFlows()
	if err != nil {
		return nil, err
	}
	eng, err := New("", append([]Option{WithFlowLoader(flows)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return eng.Session(""), nil
}

// Session returns a handle for sessionID on this engine. An empty id gets a random one.
func (e *Engine) Session(sessionID string) *Session {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &Session{engine: e, id: sessionID}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Start runs flow from its start node. Starting again with the same flow keeps
// the current conversation; a different flow restarts it.
func (s *Session) Start(ctx context.Context, flow *domain.Flow) error {
	state, err := s.engine.manager.Start(ctx, s.id, flow)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flow = flow
	s.state = state
	return nil
}

// SubmitResponse answers the node awaiting input. optionIndex selects an option
// of an options node; otherwise input is used as free text.
func (s *Session) SubmitResponse(ctx context.Context, input string, optionIndex *int) error {
	resp := domain.Response{Text: input}
	if optionIndex != nil {
		idx := *optionIndex
		resp.OptionIndex = &idx
	}
	return s.Submit(ctx, resp)
}

// SubmitForm answers a form node.
func (s *Session) SubmitForm(ctx context.Context, fields map[string]string) error {
	return s.Submit(ctx, domain.FormResponse(fields))
}

// Submit applies a response of any kind to the node awaiting input.
func (s *Session) Submit(ctx context.Context, resp domain.Response) error {
	flow, err := s.currentFlow()
	if err != nil {
		return err
	}
	state, err := s.engine.manager.Submit(ctx, s.id, flow, resp)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

// Restart discards the conversation and runs the flow again.
func (s *Session) Restart(ctx context.Context) error {
	flow, err := s.currentFlow()
	if err != nil {
		return err
	}
	state, err := s.engine.manager.Restart(ctx, s.id, flow)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

func (s *Session) currentFlow() (*domain.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.flow == nil {
		return nil, ErrNotStarted
	}
	return s.flow, nil
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []domain.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil
	}
	return append([]domain.Turn{}, s.state.Transcript...)
}

// CurrentNode returns the node awaiting input. ok is false once the conversation has ended.
func (s *Session) CurrentNode() (node domain.Node, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil || s.state.Terminal() {
		return domain.Node{}, false
	}
	return s.flow.Node(s.state.CurrentNodeID)
}

// Prompt returns the presentation model of the node awaiting input.
func (s *Session) Prompt() (domain.Prompt, bool) {
	node, ok := s.CurrentNode()
	if !ok {
		return domain.Prompt{}, false
	}
	return runtime.RenderNode(node), true
}

// State returns a copy of the full session snapshot, or nil before Start.
func (s *Session) State() *domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}
