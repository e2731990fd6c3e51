package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const editorFlow = `{
  "nodes": [
    {"id": "1", "type": "text", "data": {"label": "Hi"}, "position": {"x": 10, "y": 20}},
    {"id": "2", "type": "custom", "data": {"label": "Pick", "options": ["A", "B"]}},
    {"id": "3", "type": "aiinput", "config": {"label": "Ask", "providerConfig": {"provider": "openai", "model": "gpt-4o"}}},
    {"id": "4", "type": "mystery"}
  ],
  "edges": [
    {"id": "e1", "source": "1", "target": "2"},
    {"id": "e2", "source": "2", "target": "3", "sourceHandle": "option-0"}
  ]
}`

func TestNode_UnmarshalNormalizesAliases(t *testing.T) {
	var f Flow
	require.NoError(t, json.Unmarshal([]byte(editorFlow), &f))

	assert.Equal(t, NodeTypeText, f.Nodes[0].Type)
	assert.Equal(t, NodeTypeOptions, f.Nodes[1].Type)
	assert.Equal(t, NodeTypeAIInput, f.Nodes[2].Type)
	assert.Equal(t, NodeTypeDefault, f.Nodes[3].Type)

	assert.Equal(t, "Ask", f.Nodes[2].Label(), "config is accepted as an alias of data")
	require.NotNil(t, f.Nodes[0].Position)
	assert.Equal(t, 20.0, f.Nodes[0].Position.Y)
}

func TestFlow_Lookups(t *testing.T) {
	var f Flow
	require.NoError(t, json.Unmarshal([]byte(editorFlow), &f))

	n, ok := f.Node("2")
	require.True(t, ok)
	assert.Equal(t, "Pick", n.Label())

	_, ok = f.Node("missing")
	assert.False(t, ok)

	out := f.Outgoing("2")
	require.Len(t, out, 1)
	assert.Equal(t, "option-0", out[0].Handle())
	assert.Equal(t, "", f.Edges[0].Handle())

	assert.True(t, f.HasIncoming("3"))
	assert.False(t, f.HasIncoming("1"))
	assert.Equal(t, []string{"1", "4"}, f.StartCandidates())
}

func TestFlow_Fingerprint(t *testing.T) {
	var a, b Flow
	require.NoError(t, json.Unmarshal([]byte(editorFlow), &a))
	require.NoError(t, json.Unmarshal([]byte(editorFlow), &b))

	b.Name = "renamed"
	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "metadata does not change identity")

	for i := range b.Edges {
		b.Edges[i].ID = "regenerated-" + b.Edges[i].ID
		b.Edges[i].Type = "smoothstep"
		b.Edges[i].Animated = !b.Edges[i].Animated
	}
	b.Nodes[0].Position = &Position{X: 99, Y: 99}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "edge ids and layout do not change identity")

	handle := "option-9"
	b.Edges[0].SourceHandle = &handle
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint(), "handles do")
	b.Edges[0].SourceHandle = a.Edges[0].SourceHandle

	b.Edges = b.Edges[:1]
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestNode_Configs(t *testing.T) {
	form := Node{ID: "f", Type: NodeTypeForm, Data: map[string]any{
		"label": "Contact",
		"fields": []any{
			map[string]any{"key": "email", "label": "Email", "type": "email", "required": true},
			map[string]any{"key": "size", "label": "Size", "type": "select", "options": []any{"S", "M"}},
		},
	}}
	var fc FormConfig
	require.NoError(t, form.DecodeConfig(&fc))
	require.Len(t, fc.Fields, 2)
	assert.True(t, fc.Fields[0].Required)
	assert.Equal(t, "email", fc.Fields[0].FieldType)
	assert.Equal(t, []string{"S", "M"}, fc.Fields[1].Options)

	hook := Node{ID: "w", Type: NodeTypeWebhook, Data: map[string]any{"url": "http://x"}}
	wc, err := hook.WebhookConfig()
	require.NoError(t, err)
	assert.Equal(t, "POST", wc.Method)

	flat := Node{ID: "ai", Type: NodeTypeAIInput, Data: map[string]any{"provider": "gemini", "apiKey": "k"}}
	ic, err := flat.InputConfig()
	require.NoError(t, err)
	assert.Equal(t, "gemini", ic.Provider.Name)
	assert.Equal(t, "k", ic.Provider.APIKey)

	cond := Node{ID: "c", Type: NodeTypeCondition, Data: map[string]any{"value": "true"}}
	var cc ConditionConfig
	require.NoError(t, cond.DecodeConfig(&cc))
	require.NotNil(t, cc.Value)
	assert.True(t, *cc.Value)
}
