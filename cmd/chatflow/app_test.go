package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chatflow/internal/config"
	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/internal/validator"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/adapters/provider"
	"github.com/aretw0/chatflow/pkg/domain"
)

const pizzaJSON = `{
  "flowName": "Pizza",
  "nodes": [
    {"id": "hi", "type": "text", "data": {"label": "Hi!"}},
    {"id": "size", "type": "custom", "data": {"label": "Size?", "options": ["Small", "Large"], "variable": "size"}},
    {"id": "done", "type": "text", "data": {"label": "One {{ .size }} pizza coming up."}}
  ],
  "edges": [
    {"source": "hi", "target": "size"},
    {"source": "size", "target": "done"}
  ]
}`

const brokenYAML = `
nodes:
  - id: a
    type: text
edges:
  - source: a
    target: ghost
`

func testConfig(t *testing.T, files map[string]string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	c, err := config.Default()
	require.NoError(t, err)
	c.FlowsDir = dir
	c.SessionsDir = t.TempDir()
	c.DefaultProvider = "echo"
	return c
}

func TestBuildApp_DirSource(t *testing.T) {
	ctx := context.Background()
	c := testConfig(t, map[string]string{"acme/pizza.json": pizzaJSON})

	a, err := buildApp(ctx, c, logging.NewNop())
	require.NoError(t, err)
	defer a.Close()

	state, err := a.Engine.Start(ctx, "s1", "acme", "pizza")
	require.NoError(t, err)
	assert.Equal(t, "size", state.CurrentNodeID)

	state, err = a.Engine.Submit(ctx, "s1", domain.OptionResponse(1))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, state.Status)
	assert.Equal(t, "One Large pizza coming up.", state.Transcript[len(state.Transcript)-1].Text)
}

func TestBuildApp_FileStoreWithMiddleware(t *testing.T) {
	ctx := context.Background()
	c := testConfig(t, map[string]string{"acme/pizza.json": pizzaJSON})
	c.Store = config.StoreFile
	c.EncryptionKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	c.PIIPatterns = []string{"^size$"}

	a, err := buildApp(ctx, c, logging.NewNop())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Engine.Start(ctx, "s1", "acme", "pizza")
	require.NoError(t, err)
	_, err = a.Engine.Submit(ctx, "s1", domain.OptionResponse(0))
	require.NoError(t, err)

	raw, err := a.Store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, raw.Transcript, "the store only sees the encrypted envelope")

	state, err := a.Engine.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "***", state.Variables["size"])
}

func TestBuildApp_Errors(t *testing.T) {
	ctx := context.Background()

	c := testConfig(t, nil)
	c.EncryptionKey = base64.StdEncoding.EncodeToString([]byte("short"))
	_, err := buildApp(ctx, c, logging.NewNop())
	assert.Error(t, err)

	c = testConfig(t, nil)
	c.PIIPatterns = []string{"("}
	_, err = buildApp(ctx, c, logging.NewNop())
	assert.Error(t, err)
}

func TestNewResponder(t *testing.T) {
	c := testConfig(t, nil)
	assert.IsType(t, provider.Echo{}, newResponder(c, logging.NewNop()))

	c.DefaultProvider = provider.DeepSeek
	c.DeepSeekKey = "sk"
	assert.IsType(t, &provider.Responder{}, newResponder(c, logging.NewNop()))
}

func TestWithMiddleware_None(t *testing.T) {
	c := testConfig(t, nil)
	store := memory.NewStore()
	wrapped, err := withMiddleware(store, c)
	require.NoError(t, err)
	assert.Same(t, store, wrapped)
}

func TestCollectFlows(t *testing.T) {
	c := testConfig(t, map[string]string{"acme/pizza.json": pizzaJSON})
	cfg, logger = c, logging.NewNop()
	ctx := context.Background()

	flows, err := collectFlows(ctx, "", []string{writeTemp(t, "broken.yaml", brokenYAML)}, nil)
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, "broken", flows[0].ID)

	flows, err = collectFlows(ctx, "acme", nil, nil)
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, "pizza", flows[0].ID)

	_, err = collectFlows(ctx, "acme", nil, []string{"missing"})
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
}

func TestPrintReports(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	good, err := readFlowFile(writeTemp(t, "pizza.json", pizzaJSON))
	require.NoError(t, err)
	bad, err := readFlowFile(writeTemp(t, "broken.yml", brokenYAML))
	require.NoError(t, err)

	var buf bytes.Buffer
	printReports(&buf, []*validator.Report{validator.ValidateFlow(good), validator.ValidateFlow(bad)})

	out := buf.String()
	assert.Contains(t, out, "✔ pizza (0 errors, 0 warnings)")
	assert.Contains(t, out, "✘ broken (1 errors")
	assert.True(t, strings.Contains(out, validator.CodeDanglingEdge))
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
