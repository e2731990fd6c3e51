package dsl_test

import (
	"errors"
	"testing"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/dsl"
)

const feedbackYAML = `
flowName: Feedback
nodes:
  - id: hello
    type: text
    data:
      label: Hello!
  - id: rate
    type: option
    data:
      label: How did we do?
      options: [Great, Bad]
  - id: why
    type: singleinput
    config:
      label: What went wrong?
edges:
  - source: hello
    target: rate
  - source: rate
    target: why
    sourceHandle: option-1
`

func TestParseYAML(t *testing.T) {
	flow, err := dsl.ParseYAML([]byte(feedbackYAML))
	if err != nil {
		t.Fatalf("ParseYAML failed: %v", err)
	}

	if flow.Name != "Feedback" {
		t.Errorf("Expected flowName Feedback, got %q", flow.Name)
	}
	wantTypes := []domain.NodeType{domain.NodeTypeText, domain.NodeTypeOptions, domain.NodeTypeSingleInput}
	for i, want := range wantTypes {
		if flow.Nodes[i].Type != want {
			t.Errorf("Node %s: expected type %s, got %s", flow.Nodes[i].ID, want, flow.Nodes[i].Type)
		}
	}
	if flow.Nodes[2].Label() != "What went wrong?" {
		t.Errorf("Expected config to be read as data, got %q", flow.Nodes[2].Label())
	}

	if len(flow.Edges) != 2 {
		t.Fatalf("Expected 2 edges, got %d", len(flow.Edges))
	}
	for _, e := range flow.Edges {
		if e.ID == "" || e.Type != domain.DefaultEdgeType {
			t.Errorf("Expected edge defaults, got %+v", e)
		}
	}
	if flow.Edges[0].SourceHandle != nil {
		t.Errorf("Expected a null handle, got %v", *flow.Edges[0].SourceHandle)
	}
	if flow.Edges[1].Handle() != "option-1" {
		t.Errorf("Expected option-1, got %q", flow.Edges[1].Handle())
	}
}

func TestParseYAML_Errors(t *testing.T) {
	for name, doc := range map[string]string{
		"empty":         "",
		"no nodes":      "flowName: x\n",
		"not yaml":      "nodes: [\n",
		"bad node list": "nodes: 3\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := dsl.ParseYAML([]byte(doc)); !errors.Is(err, domain.ErrInvalidFlow) {
				t.Errorf("Expected ErrInvalidFlow, got %v", err)
			}
		})
	}
}

func TestMarshalYAML_ReadsBack(t *testing.T) {
	flow, err := supportFlow().Build()
	if err != nil {
		t.Fatal(err)
	}
	out, err := dsl.MarshalYAML(flow)
	if err != nil {
		t.Fatalf("MarshalYAML failed: %v", err)
	}

	back, err := dsl.ParseYAML(out)
	if err != nil {
		t.Fatalf("ParseYAML failed: %v\n%s", err, out)
	}
	if back.Fingerprint() != flow.Fingerprint() {
		t.Errorf("Expected the same flow back, got:\n%s", out)
	}
}
