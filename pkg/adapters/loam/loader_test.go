package loam

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const welcomeJSON = `{
  "flowName": "Welcome",
  "nodes": [
    {"id": "1", "type": "text", "data": {"label": "Hi"}},
    {"id": "2", "type": "custom", "data": {"label": "Pick", "options": ["A", "B"]}}
  ],
  "edges": [
    {"source": "1", "target": "2"}
  ]
}`

const supportYAML = `---
flowName: Support
nodes:
  - id: ask
    type: singleinput
    data:
      label: What is wrong?
edges: []
---
`

func seed(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return dir
}

func TestLoader_LoadFlow(t *testing.T) {
	dir := seed(t, map[string]string{
		"acme/welcome.json": welcomeJSON,
		"acme/support.md":   supportYAML,
	})
	loader, err := Open(dir)
	require.NoError(t, err)
	ctx := context.Background()

	flow, err := loader.LoadFlow(ctx, "acme", "welcome")
	require.NoError(t, err)
	assert.Equal(t, "welcome", flow.ID)
	assert.Equal(t, "acme", flow.OwnerID)
	assert.Equal(t, "Welcome", flow.Name)
	require.Len(t, flow.Nodes, 2)
	assert.Equal(t, domain.NodeTypeOptions, flow.Nodes[1].Type)
	require.Len(t, flow.Edges, 1)
	assert.Equal(t, domain.DefaultEdgeType, flow.Edges[0].Type)
	assert.Nil(t, flow.Edges[0].SourceHandle)

	support, err := loader.LoadFlow(ctx, "acme", "support")
	require.NoError(t, err)
	assert.Equal(t, domain.NodeTypeSingleInput, support.Nodes[0].Type)
	assert.Equal(t, "What is wrong?", support.Nodes[0].Label())

	_, err = loader.LoadFlow(ctx, "acme", "missing")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
}

func TestLoader_ListFlows(t *testing.T) {
	dir := seed(t, map[string]string{
		"acme/welcome.json": welcomeJSON,
		"acme/support.md":   supportYAML,
		"other/welcome.json": welcomeJSON,
	})
	loader, err := Open(dir)
	require.NoError(t, err)

	flows, err := loader.ListFlows(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, []domain.FlowSummary{
		{ID: "support", OwnerID: "acme", Name: "Support"},
		{ID: "welcome", OwnerID: "acme", Name: "Welcome"},
	}, flows)
}

func TestLoader_ListFlows_DetectsCollisions(t *testing.T) {
	dir := seed(t, map[string]string{
		"acme/welcome.json": welcomeJSON,
		"acme/welcome.md":   supportYAML,
	})
	loader, err := Open(dir)
	require.NoError(t, err)

	_, err = loader.ListFlows(context.Background(), "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collision detected")
}

func TestSplitDocumentID(t *testing.T) {
	owner, flow := splitDocumentID("acme/welcome.json")
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "welcome", flow)

	owner, flow = splitDocumentID("root.md")
	assert.Equal(t, "", owner)
	assert.Equal(t, "root", flow)

	assert.Equal(t, "acme/welcome", documentID("acme", "welcome"))
	assert.Equal(t, "welcome", documentID("", "welcome"))
}
