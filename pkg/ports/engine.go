package ports

import (
	"context"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Interpreter is the stateless flow interpreter.
// It never mutates the state it is given; it returns a new snapshot.
// This is the interface used by the session manager and the adapters.
type Interpreter interface {
	// Start creates the initial snapshot of a conversation and runs it up to the first input node.
	Start(ctx context.Context, flow *domain.Flow, sessionID string) (*domain.State, error)

	// Submit applies a response to the node awaiting input.
	Submit(ctx context.Context, flow *domain.Flow, state *domain.State, resp domain.Response) (*domain.State, error)

	// Restart discards the transcript and starts over, bumping the generation.
	Restart(ctx context.Context, flow *domain.Flow, state *domain.State) (*domain.State, error)
}
