package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter    EventType = "node_enter"
	EventTurn         EventType = "turn"
	EventProviderCall EventType = "provider_call"
	EventWebhookCall  EventType = "webhook_call"
	EventTerminal     EventType = "terminal"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// NodeEvent reports entry into a node, or the node at which a session ended.
type NodeEvent struct {
	EventBase
	NodeID   string        `json:"node_id"`
	NodeType NodeType      `json:"node_type"`
	Status   SessionStatus `json:"status,omitempty"`
}

// TurnEvent reports an appended transcript turn.
type TurnEvent struct {
	EventBase
	Turn Turn `json:"turn"`
}

// CallEvent reports a completed provider or webhook call.
type CallEvent struct {
	EventBase
	NodeID   string        `json:"node_id"`
	Target   string        `json:"target"`
	Duration time.Duration `json:"duration"`
	IsError  bool          `json:"is_error,omitempty"`
}

// LifecycleHooks defines callbacks for interpreter observability.
type LifecycleHooks struct {
	OnNodeEnter    func(context.Context, *NodeEvent)
	OnTurn         func(context.Context, *TurnEvent)
	OnProviderCall func(context.Context, *CallEvent)
	OnWebhookCall  func(context.Context, *CallEvent)
	OnTerminal     func(context.Context, *NodeEvent)
}

// Merge combines two hook sets; both callbacks run when both are set.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeEnter:    chain(h.OnNodeEnter, other.OnNodeEnter),
		OnTurn:         chain(h.OnTurn, other.OnTurn),
		OnProviderCall: chain(h.OnProviderCall, other.OnProviderCall),
		OnWebhookCall:  chain(h.OnWebhookCall, other.OnWebhookCall),
		OnTerminal:     chain(h.OnTerminal, other.OnTerminal),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
