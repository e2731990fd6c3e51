package ports

import (
	"context"

	"github.com/aretw0/chatflow/pkg/domain"
)

// FlowLoader retrieves flow definitions.
// This allows the storage layer (HTTP document store, files, memory) to be decoupled.
type FlowLoader interface {
	// LoadFlow returns the flow or domain.ErrFlowNotFound.
	LoadFlow(ctx context.Context, ownerID, flowID string) (*domain.Flow, error)
}

// FlowStore is a FlowLoader that can also persist and enumerate flows.
type FlowStore interface {
	FlowLoader

	// SaveFlow creates or replaces the flow identified by flow.OwnerID and flow.ID.
	// Stores that allocate ids set flow.ID.
	SaveFlow(ctx context.Context, flow *domain.Flow) error

	// ListFlows returns the flows owned by ownerID.
	ListFlows(ctx context.Context, ownerID string) ([]domain.FlowSummary, error)

	// DeleteFlow removes a flow. Deleting a missing flow is not an error.
	DeleteFlow(ctx context.Context, ownerID, flowID string) error
}

// Watchable defines an interface for loaders that can notify about backend changes.
// This is typically used for hot-reload or dev-mode functionality.
type Watchable interface {
	// Watch returns a channel that receives the id of each changed flow document.
	Watch(ctx context.Context) (<-chan string, error)
}
