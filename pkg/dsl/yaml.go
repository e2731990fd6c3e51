package dsl

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/chatflow/pkg/domain"
	"gopkg.in/yaml.v3"
)

// ParseYAML decodes a flow written in YAML. The document has the shape of the
// editor's JSON: flowName, nodes and edges, with node aliases accepted.
func ParseYAML(data []byte) (*domain.Flow, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFlow, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: empty document", domain.ErrInvalidFlow)
	}
	if _, ok := doc["nodes"]; !ok {
		return nil, fmt.Errorf("%w: missing nodes", domain.ErrInvalidFlow)
	}

	// Through JSON so node aliases are applied by the domain decoder.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFlow, err)
	}
	var flow domain.Flow
	if err := json.Unmarshal(raw, &flow); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFlow, err)
	}
	for i := range flow.Edges {
		if flow.Edges[i].Type == "" {
			flow.Edges[i].Type = domain.DefaultEdgeType
		}
		if flow.Edges[i].ID == "" {
			flow.Edges[i].ID = fmt.Sprintf("e-%s-%s-%d", flow.Edges[i].Source, flow.Edges[i].Target, i)
		}
	}
	return &flow, nil
}

// MarshalYAML encodes a flow in the format ParseYAML reads.
func MarshalYAML(flow *domain.Flow) ([]byte, error) {
	return yaml.Marshal(flow)
}
