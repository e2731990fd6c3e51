package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/chatflow/pkg/domain"
)

// LoadFlow returns the stored flow or domain.ErrFlowNotFound.
func (s *Store) LoadFlow(ctx context.Context, ownerID, flowID string) (*domain.Flow, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		s.bind(`SELECT definition FROM chatflow_flows WHERE owner_id = ? AND id = ?`), ownerID, flowID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load flow %s: %w", flowID, err)
	}

	var flow domain.Flow
	if err := json.Unmarshal([]byte(data), &flow); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFlow, err)
	}
	flow.ID = flowID
	flow.OwnerID = ownerID
	return &flow, nil
}

// SaveFlow upserts a flow.
func (s *Store) SaveFlow(ctx context.Context, flow *domain.Flow) error {
	if flow.ID == "" {
		return fmt.Errorf("%w: flow missing ID", domain.ErrInvalidFlow)
	}
	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to marshal flow %s: %w", flow.ID, err)
	}
	query := s.bind(`INSERT INTO chatflow_flows (owner_id, id, name, definition, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, id) DO UPDATE SET name = excluded.name, definition = excluded.definition, updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, query, flow.OwnerID, flow.ID, flow.Name, string(data), s.now().UTC()); err != nil {
		s.logger.Error("failed to save flow", "flow_id", flow.ID, "err", err)
		return fmt.Errorf("failed to save flow %s: %w", flow.ID, err)
	}
	return nil
}

// ListFlows returns the flows of an owner sorted by id.
func (s *Store) ListFlows(ctx context.Context, ownerID string) ([]domain.FlowSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		s.bind(`SELECT id, name FROM chatflow_flows WHERE owner_id = ? ORDER BY id`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}
	defer rows.Close()

	out := []domain.FlowSummary{}
	for rows.Next() {
		f := domain.FlowSummary{OwnerID: ownerID}
		if err := rows.Scan(&f.ID, &f.Name); err != nil {
			return nil, fmt.Errorf("failed to scan flow row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// DeleteFlow removes a flow. Deleting a missing flow is not an error.
func (s *Store) DeleteFlow(ctx context.Context, ownerID, flowID string) error {
	_, err := s.db.ExecContext(ctx,
		s.bind(`DELETE FROM chatflow_flows WHERE owner_id = ? AND id = ?`), ownerID, flowID)
	if err != nil {
		return fmt.Errorf("failed to delete flow %s: %w", flowID, err)
	}
	return nil
}
