package runner_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/runner"
)

func menuFlow() *domain.Flow {
	optionHandle := func(i string) *string { h := "option-" + i; return &h }
	return &domain.Flow{
		ID: "menu",
		Nodes: []domain.Node{
			{ID: "welcome", Type: domain.NodeTypeText, Data: map[string]any{"label": "Welcome!"}},
			{ID: "menu", Type: domain.NodeTypeOptions, Data: map[string]any{"label": "Pick one", "options": []any{"Tea", "Coffee"}}},
			{ID: "tea", Type: domain.NodeTypeText, Data: map[string]any{"label": "Tea it is"}},
			{ID: "order", Type: domain.NodeTypeForm, Data: map[string]any{
				"label": "Order",
				"fields": []any{
					map[string]any{"key": "size", "label": "Size", "required": true},
					map[string]any{"key": "milk", "label": "Milk"},
				},
			}},
			{ID: "thanks", Type: domain.NodeTypeText, Data: map[string]any{"label": "Thanks"}},
		},
		Edges: []domain.Edge{
			{ID: "e1", Source: "welcome", Target: "menu"},
			{ID: "e2", Source: "menu", Target: "tea", SourceHandle: optionHandle("0")},
			{ID: "e3", Source: "menu", Target: "order", SourceHandle: optionHandle("1")},
			{ID: "e4", Source: "order", Target: "thanks"},
		},
	}
}

func startSession(t *testing.T) *chatflow.Session {
	t.Helper()
	session, err := chatflow.NewSession()
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	if err := session.Start(context.Background(), menuFlow()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return session
}

func runText(t *testing.T, session *chatflow.Session, input string) string {
	t.Helper()
	out := &bytes.Buffer{}
	r := runner.NewRunner(runner.WithInputHandler(runner.NewTextHandler(strings.NewReader(input), out)))
	if err := r.Run(context.Background(), session); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return out.String()
}

func TestRunner_ChoiceByNumber(t *testing.T) {
	session := startSession(t)
	output := runText(t, session, "1\n")

	for _, want := range []string{"Welcome!", "Pick one", "  1) Tea", "  2) Coffee", "Tea it is", runner.MsgEnded} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, output)
		}
	}
	if session.State().Status != domain.StatusCompleted {
		t.Errorf("Expected completed session, got %s", session.State().Status)
	}
}

func TestRunner_FormFields(t *testing.T) {
	session := startSession(t)
	output := runText(t, session, "Coffee\nlarge\n\n")

	if !strings.Contains(output, "Size*: ") || !strings.Contains(output, "Milk: ") {
		t.Errorf("Expected a label per field, got:\n%s", output)
	}
	if !strings.Contains(output, "Thanks") {
		t.Errorf("Expected the flow to finish, got:\n%s", output)
	}
	if got := session.State().Variables["size"]; got != "large" {
		t.Errorf("Expected size=large, got %v", got)
	}
}

func TestRunner_QuitAndEOF(t *testing.T) {
	session := startSession(t)
	runText(t, session, "quit\n")
	if session.State().Terminal() {
		t.Error("quit must leave the session waiting")
	}

	runText(t, session, "")
	if session.State().CurrentNodeID != "menu" {
		t.Errorf("Expected the session to still wait on menu, got %q", session.State().CurrentNodeID)
	}
}

func TestRunner_Restart(t *testing.T) {
	session := startSession(t)
	output := runText(t, session, "/restart\n1\n")

	if n := strings.Count(output, "Welcome!"); n != 2 {
		t.Errorf("Expected the transcript to be shown again after restart, saw Welcome! %d times", n)
	}
	if session.State().Generation != 1 {
		t.Errorf("Expected generation 1, got %d", session.State().Generation)
	}
}

func TestRunner_JSONHandler(t *testing.T) {
	session := startSession(t)
	out := &bytes.Buffer{}
	handler := runner.NewJSONHandler(strings.NewReader(`{"optionIndex":0}`+"\n"), out)

	if err := runner.NewRunner(runner.WithInputHandler(handler)).Run(context.Background(), session); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 JSON lines, got %d:\n%s", len(lines), out.String())
	}

	var first runner.JSONOutput
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if first.Prompt == nil || first.Prompt.Kind != domain.PromptChoice {
		t.Errorf("Expected a choice prompt, got %+v", first.Prompt)
	}
	if len(first.Turns) == 0 || first.Turns[0].Text != "Welcome!" {
		t.Errorf("Expected the welcome turn first, got %+v", first.Turns)
	}

	var second runner.JSONOutput
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if !second.Ended {
		t.Error("Expected the second line to mark the end")
	}

	var last runner.JSONOutput
	if err := json.Unmarshal([]byte(lines[2]), &last); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if last.System != runner.MsgEnded {
		t.Errorf("Expected %q, got %q", runner.MsgEnded, last.System)
	}
}
