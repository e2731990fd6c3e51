package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Flows implements ports.FlowStore over an in-memory map keyed by owner and flow id.
type Flows struct {
	mu    sync.RWMutex
	flows map[string]map[string][]byte
}

// NewFlows creates a flow store seeded with the given flows.
func NewFlows(seed ...*domain.Flow) (*Flows, error) {
	f := &Flows{flows: make(map[string]map[string][]byte)}
	for _, flow := range seed {
		if err := f.SaveFlow(context.Background(), flow); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// NewFlowsFromJSON seeds a store from raw flow documents, as the editor produces them.
func NewFlowsFromJSON(ownerID string, docs map[string]string) (*Flows, error) {
	f := &Flows{flows: make(map[string]map[string][]byte)}
	for id, raw := range docs {
		var flow domain.Flow
		if err := json.Unmarshal([]byte(raw), &flow); err != nil {
			return nil, fmt.Errorf("%w: flow %s: %v", domain.ErrInvalidFlow, id, err)
		}
		flow.ID = id
		flow.OwnerID = ownerID
		if err := f.SaveFlow(context.Background(), &flow); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// LoadFlow returns a private copy of the stored flow.
func (f *Flows) LoadFlow(ctx context.Context, ownerID, flowID string) (*domain.Flow, error) {
	f.mu.RLock()
	raw, ok := f.flows[ownerID][flowID]
	f.mu.RUnlock()
	if !ok {
		return nil, domain.ErrFlowNotFound
	}

	var flow domain.Flow
	if err := json.Unmarshal(raw, &flow); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFlow, err)
	}
	return &flow, nil
}

// SaveFlow stores a snapshot of flow. Flows are serialized so later edits by
// the caller never leak into running sessions.
func (f *Flows) SaveFlow(ctx context.Context, flow *domain.Flow) error {
	if flow.ID == "" {
		return fmt.Errorf("%w: flow missing ID", domain.ErrInvalidFlow)
	}
	raw, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to marshal flow %s: %w", flow.ID, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	owned, ok := f.flows[flow.OwnerID]
	if !ok {
		owned = make(map[string][]byte)
		f.flows[flow.OwnerID] = owned
	}
	owned[flow.ID] = raw
	return nil
}

// ListFlows returns the flows of an owner sorted by id.
func (f *Flows) ListFlows(ctx context.Context, ownerID string) ([]domain.FlowSummary, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ids := make([]string, 0, len(f.flows[ownerID]))
	for id := range f.flows[ownerID] {
		ids = append(ids, id)
	}
	sort.Strings(ids) // Deterministic order

	out := make([]domain.FlowSummary, 0, len(ids))
	for _, id := range ids {
		var meta struct {
			Name string `json:"flowName"`
		}
		_ = json.Unmarshal(f.flows[ownerID][id], &meta)
		out = append(out, domain.FlowSummary{ID: id, OwnerID: ownerID, Name: meta.Name})
	}
	return out, nil
}

// DeleteFlow removes a flow. Deleting a missing flow is not an error.
func (f *Flows) DeleteFlow(ctx context.Context, ownerID, flowID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.flows[ownerID], flowID)
	return nil
}
