package runtime

import (
	"context"
	"testing"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprEvaluator(t *testing.T) {
	yes, no := true, false
	vars := map[string]any{"plan": "Pro", "age": 42, "subscribed": "false"}

	tests := []struct {
		name     string
		cfg      domain.ConditionConfig
		expected bool
	}{
		{"Expression True", domain.ConditionConfig{Expression: `plan == "Pro" && age > 18`}, true},
		{"Expression False", domain.ConditionConfig{Expression: `age < 18`}, false},
		{"Undefined Variable", domain.ConditionConfig{Expression: `missing == nil`}, true},
		{"Variable Equals Ignores Case", domain.ConditionConfig{Variable: "plan", Equals: "pro"}, true},
		{"Variable Equals Mismatch", domain.ConditionConfig{Variable: "plan", Equals: "free"}, false},
		{"Variable Truthy", domain.ConditionConfig{Variable: "age"}, true},
		{"Variable Falsy String", domain.ConditionConfig{Variable: "subscribed"}, false},
		{"Variable Absent", domain.ConditionConfig{Variable: "nope"}, false},
		{"Literal Yes", domain.ConditionConfig{Value: &yes}, true},
		{"Literal No", domain.ConditionConfig{Value: &no}, false},
		{"Default Yes", domain.ConditionConfig{Default: "YES"}, true},
		{"Unconfigured", domain.ConditionConfig{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExprEvaluator{}.Evaluate(context.Background(), tt.cfg, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	t.Run("Compile Error", func(t *testing.T) {
		_, err := ExprEvaluator{}.Evaluate(context.Background(), domain.ConditionConfig{Expression: "plan =="}, vars)
		assert.Error(t, err)
	})
}

func TestEngine_ConditionErrorTakesNoBranch(t *testing.T) {
	flow := &domain.Flow{
		Nodes: []domain.Node{
			{ID: "check", Type: domain.NodeTypeCondition, Data: map[string]any{"expression": "1 +"}},
			{ID: "no", Type: domain.NodeTypeText, Data: map[string]any{"label": "took no"}},
		},
		Edges: []domain.Edge{{ID: "e", Source: "check", Target: "no", SourceHandle: strPtr(domain.HandleNo)}},
	}

	state, err := NewEngine().Start(context.Background(), flow, "s1")
	require.NoError(t, err)

	var systemTurns []string
	for _, turn := range state.Transcript {
		if turn.Role == domain.RoleSystem {
			systemTurns = append(systemTurns, turn.Text)
		}
	}
	require.Len(t, systemTurns, 3)
	assert.Contains(t, systemTurns[0], "Condition could not be evaluated")
	assert.Equal(t, "Condition evaluated to: NO", systemTurns[1])
	assert.Equal(t, MsgCompleted, systemTurns[2])
}

func TestResolveEdge(t *testing.T) {
	flow := &domain.Flow{
		Edges: []domain.Edge{
			{ID: "h", Source: "a", Target: "x", SourceHandle: strPtr("option-0")},
			{ID: "plain", Source: "a", Target: "y"},
			{ID: "other", Source: "b", Target: "z", SourceHandle: strPtr("option-1")},
		},
	}

	e, ok := ResolveEdge(flow, "a", "", false)
	require.True(t, ok)
	assert.Equal(t, "plain", e.ID, "edges without a handle are preferred")

	e, ok = ResolveEdge(flow, "b", "", false)
	require.True(t, ok)
	assert.Equal(t, "other", e.ID, "falls back to the first edge from the source")

	e, ok = ResolveEdge(flow, "a", "option-0", true)
	require.True(t, ok)
	assert.Equal(t, "h", e.ID)

	_, ok = ResolveEdge(flow, "a", "option-9", true)
	assert.False(t, ok)

	_, ok = ResolveEdge(flow, "z", "", false)
	assert.False(t, ok)
}

func strPtr(s string) *string {
	return &s
}
