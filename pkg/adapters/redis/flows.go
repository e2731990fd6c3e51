package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/aretw0/chatflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Flows implements ports.FlowStore using Redis.
//
// A flow document lives at <prefix><owner>:<id>; a hash at <prefix><owner>:index
// maps flow ids to display names.
type Flows struct {
	client *backend.Client
	prefix string
}

// NewFlows creates a flow store sharing client. An empty prefix uses "chatflow:flow:".
func NewFlows(client *backend.Client, prefix string) *Flows {
	if prefix == "" {
		prefix = DefaultPrefix + "flow:"
	}
	return &Flows{client: client, prefix: prefix}
}

func (f *Flows) key(ownerID, flowID string) string {
	return f.prefix + ownerID + ":" + flowID
}

func (f *Flows) indexKey(ownerID string) string {
	return f.prefix + ownerID + ":index"
}

// LoadFlow returns the stored flow or domain.ErrFlowNotFound.
func (f *Flows) LoadFlow(ctx context.Context, ownerID, flowID string) (*domain.Flow, error) {
	raw, err := f.client.Get(ctx, f.key(ownerID, flowID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrFlowNotFound
		}
		return nil, fmt.Errorf("failed to get flow from redis: %w", err)
	}

	var flow domain.Flow
	if err := json.Unmarshal(raw, &flow); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFlow, err)
	}
	flow.ID = flowID
	flow.OwnerID = ownerID
	return &flow, nil
}

// SaveFlow creates or replaces a flow.
func (f *Flows) SaveFlow(ctx context.Context, flow *domain.Flow) error {
	if flow.ID == "" {
		return fmt.Errorf("%w: flow missing ID", domain.ErrInvalidFlow)
	}
	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to marshal flow %s: %w", flow.ID, err)
	}

	pipe := f.client.TxPipeline()
	pipe.Set(ctx, f.key(flow.OwnerID, flow.ID), data, 0)
	pipe.HSet(ctx, f.indexKey(flow.OwnerID), flow.ID, flow.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save flow to redis: %w", err)
	}
	return nil
}

// ListFlows returns the flows of an owner sorted by id.
func (f *Flows) ListFlows(ctx context.Context, ownerID string) ([]domain.FlowSummary, error) {
	names, err := f.client.HGetAll(ctx, f.indexKey(ownerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	out := make([]domain.FlowSummary, 0, len(names))
	for id, name := range names {
		out = append(out, domain.FlowSummary{ID: id, OwnerID: ownerID, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteFlow removes a flow. Deleting a missing flow is not an error.
func (f *Flows) DeleteFlow(ctx context.Context, ownerID, flowID string) error {
	pipe := f.client.TxPipeline()
	pipe.Del(ctx, f.key(ownerID, flowID))
	pipe.HDel(ctx, f.indexKey(ownerID), flowID)
	_, err := pipe.Exec(ctx)
	return err
}
