package domain

import "time"

// Role identifies the speaker of a transcript turn.
type Role string

const (
	RoleBot    Role = "bot"
	RoleUser   Role = "user"
	RoleAI     Role = "ai"
	RoleSystem Role = "system"
)

// PromptKind tells a surface how to draw a bot turn.
type PromptKind string

const (
	PromptMessage PromptKind = "message"
	PromptChoice  PromptKind = "choice"
	PromptForm    PromptKind = "form"
	PromptInput   PromptKind = "input"
)

// Prompt is the presentation model of a node.
type Prompt struct {
	Kind        PromptKind  `json:"kind"`
	Text        string      `json:"text"`
	Options     []string    `json:"options,omitempty"`
	Fields      []FormField `json:"fields,omitempty"`
	Placeholder string      `json:"placeholder,omitempty"`
	ButtonText  string      `json:"buttonText,omitempty"`
}

// Turn is one transcript entry.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	NodeID    string    `json:"nodeId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Prompt    *Prompt   `json:"prompt,omitempty"`
}

// SessionStatus describes where a session stands.
type SessionStatus string

const (
	StatusAwaitingInput SessionStatus = "awaiting_input"
	StatusCompleted     SessionStatus = "completed"
	StatusPaused        SessionStatus = "paused"
	StatusFailed        SessionStatus = "failed"
)

// State is the mutable snapshot of one conversation.
type State struct {
	SessionID       string `json:"sessionId"`
	OwnerID         string `json:"ownerId,omitempty"`
	FlowID          string `json:"flowId,omitempty"`
	FlowFingerprint string `json:"flowFingerprint,omitempty"`

	// CurrentNodeID is the node awaiting a response. Empty once the session is terminal.
	CurrentNodeID string        `json:"currentNodeId"`
	Status        SessionStatus `json:"status"`

	Visited    []string       `json:"visited"`
	Transcript []Turn         `json:"transcript"`
	Variables  map[string]any `json:"variables,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`

	// Generation increases on every restart; results computed for an older generation are stale.
	Generation uint64 `json:"generation"`
	Processing bool   `json:"processing,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// NewState creates an empty session snapshot.
func NewState(sessionID string) *State {
	return &State{
		SessionID:  sessionID,
		Visited:    []string{},
		Transcript: []Turn{},
		Variables:  make(map[string]any),
	}
}

// IsVisited reports whether the node has already been entered in this generation.
func (s *State) IsVisited(nodeID string) bool {
	for _, id := range s.Visited {
		if id == nodeID {
			return true
		}
	}
	return false
}

// Terminal reports whether the conversation has ended.
func (s *State) Terminal() bool {
	return s.CurrentNodeID == ""
}

// LastTurn returns the most recent turn, if any.
func (s *State) LastTurn() (Turn, bool) {
	if len(s.Transcript) == 0 {
		return Turn{}, false
	}
	return s.Transcript[len(s.Transcript)-1], true
}

// Clone returns a copy that shares nothing mutable with s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	next := *s
	next.Visited = append([]string{}, s.Visited...)
	next.Transcript = append([]Turn{}, s.Transcript...)
	next.Warnings = append([]string(nil), s.Warnings...)
	next.Variables = make(map[string]any, len(s.Variables))
	for k, v := range s.Variables {
		next.Variables[k] = v
	}
	return &next
}

// Response is the caller-supplied answer to an input node.
type Response struct {
	Text        string            `json:"text,omitempty"`
	OptionIndex *int              `json:"optionIndex,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// TextResponse answers singleInput and aiInput nodes.
func TextResponse(text string) Response {
	return Response{Text: text}
}

// OptionResponse selects the i-th (zero-based) option.
func OptionResponse(i int) Response {
	return Response{OptionIndex: &i}
}

// FormResponse submits form values keyed by field key.
func FormResponse(fields map[string]string) Response {
	return Response{Fields: fields}
}
