package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
)

func TestTextHandler_Output(t *testing.T) {
	outBuf := &bytes.Buffer{}
	handler := NewTextHandler(strings.NewReader(""), outBuf)
	handler.Renderer = func(s string) (string, error) {
		return "Rendered: " + s, nil
	}

	turns := []domain.Turn{
		{Role: domain.RoleBot, Text: "Hello World"},
		{Role: domain.RoleUser, Text: "typed by the user"},
		{Role: domain.RoleSystem, Text: "Input cannot be empty"},
	}
	if err := handler.Output(context.Background(), turns, &domain.Prompt{Kind: domain.PromptChoice, Options: []string{"A", "B"}}); err != nil {
		t.Fatalf("Output failed: %v", err)
	}

	output := outBuf.String()
	for _, want := range []string{"Rendered: Hello World", "[System] Input cannot be empty", "  2) B"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain '%s', got '%s'", want, output)
		}
	}
	if strings.Contains(output, "typed by the user") {
		t.Error("User turns must not be echoed")
	}
}

func TestTextHandler_Input(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		prompt domain.Prompt
		want   Command
	}{
		{"free text", "my user input\n", domain.Prompt{Kind: domain.PromptInput}, Respond(domain.TextResponse("my user input"))},
		{"option number", "2\n", domain.Prompt{Kind: domain.PromptChoice, Options: []string{"A", "B"}}, Respond(domain.OptionResponse(1))},
		{"out of range number is text", "3\n", domain.Prompt{Kind: domain.PromptChoice, Options: []string{"A", "B"}}, Respond(domain.TextResponse("3"))},
		{"option text", "B\n", domain.Prompt{Kind: domain.PromptChoice, Options: []string{"A", "B"}}, Respond(domain.TextResponse("B"))},
		{"quit", "QUIT\n", domain.Prompt{Kind: domain.PromptInput}, Command{Kind: CommandQuit}},
		{"restart", "/restart\n", domain.Prompt{Kind: domain.PromptInput}, Command{Kind: CommandRestart}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewTextHandler(strings.NewReader(tt.input), &bytes.Buffer{})
			got, err := handler.Input(context.Background(), tt.prompt)
			if err != nil {
				t.Fatalf("Input failed: %v", err)
			}
			if got.Kind != tt.want.Kind || got.Response.Text != tt.want.Response.Text {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
			if (got.Response.OptionIndex == nil) != (tt.want.Response.OptionIndex == nil) ||
				(got.Response.OptionIndex != nil && *got.Response.OptionIndex != *tt.want.Response.OptionIndex) {
				t.Errorf("Expected option %v, got %v", tt.want.Response.OptionIndex, got.Response.OptionIndex)
			}
		})
	}
}

func TestTextHandler_InputRetriesRejectedLines(t *testing.T) {
	t.Setenv(EnvMaxInputSize, "5")
	outBuf := &bytes.Buffer{}
	handler := NewTextHandler(strings.NewReader("far too long\nok\n"), outBuf)

	got, err := handler.Input(context.Background(), domain.Prompt{Kind: domain.PromptInput})
	if err != nil {
		t.Fatalf("Input failed: %v", err)
	}
	if got.Response.Text != "ok" {
		t.Errorf("Expected 'ok', got '%s'", got.Response.Text)
	}
	if !strings.Contains(outBuf.String(), "Please try again") {
		t.Errorf("Expected a retry hint, got '%s'", outBuf.String())
	}
}

func TestTextHandler_InputCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	handler := NewTextHandler(pr, &bytes.Buffer{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := handler.Input(ctx, domain.Prompt{Kind: domain.PromptInput})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestJSONHandler_Input(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		check func(t *testing.T, cmd Command)
	}{
		{"json string", `"Hello World"`, func(t *testing.T, cmd Command) {
			if cmd.Response.Text != "Hello World" {
				t.Errorf("Expected 'Hello World', got '%s'", cmd.Response.Text)
			}
		}},
		{"plain text", `Hello World`, func(t *testing.T, cmd Command) {
			if cmd.Response.Text != "Hello World" {
				t.Errorf("Expected 'Hello World', got '%s'", cmd.Response.Text)
			}
		}},
		{"option", `{"optionIndex":1}`, func(t *testing.T, cmd Command) {
			if cmd.Response.OptionIndex == nil || *cmd.Response.OptionIndex != 1 {
				t.Errorf("Expected option 1, got %v", cmd.Response.OptionIndex)
			}
		}},
		{"fields", `{"fields":{"size":"la\u0007rge"}}`, func(t *testing.T, cmd Command) {
			if cmd.Response.Fields["size"] != "large" {
				t.Errorf("Expected sanitized field, got %q", cmd.Response.Fields["size"])
			}
		}},
		{"restart", `{"command":"restart"}`, func(t *testing.T, cmd Command) {
			if cmd.Kind != CommandRestart {
				t.Errorf("Expected restart, got %v", cmd.Kind)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewJSONHandler(strings.NewReader("\n"+tt.line+"\n"), &bytes.Buffer{})
			cmd, err := handler.Input(context.Background(), domain.Prompt{})
			if err != nil {
				t.Fatalf("Input failed: %v", err)
			}
			tt.check(t, cmd)
		})
	}
}

func TestJSONHandler_InputErrors(t *testing.T) {
	handler := NewJSONHandler(strings.NewReader(`{"command":"dance"}`+"\n"+`{broken`+"\n"), &bytes.Buffer{})

	if _, err := handler.Input(context.Background(), domain.Prompt{}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("Expected unknown command error, got %v", err)
	}
	if _, err := handler.Input(context.Background(), domain.Prompt{}); err == nil {
		t.Error("Expected an error for malformed JSON")
	}
	if _, err := handler.Input(context.Background(), domain.Prompt{}); !errors.Is(err, io.EOF) {
		t.Errorf("Expected EOF, got %v", err)
	}
}

// busyConversation rejects the first submit.
type busyConversation struct {
	submits int
	done    bool
}

func (c *busyConversation) Transcript() []domain.Turn { return nil }
func (c *busyConversation) Prompt() (domain.Prompt, bool) {
	return domain.Prompt{Kind: domain.PromptInput}, !c.done
}
func (c *busyConversation) Submit(ctx context.Context, resp domain.Response) error {
	c.submits++
	if c.submits == 1 {
		return domain.ErrBusy
	}
	c.done = true
	return nil
}
func (c *busyConversation) Restart(ctx context.Context) error { return nil }

func TestRunner_BusyIsReportedNotFatal(t *testing.T) {
	out := &bytes.Buffer{}
	conv := &busyConversation{}
	r := NewRunner(WithInputHandler(NewTextHandler(strings.NewReader("one\ntwo\n"), out)))

	if err := r.Run(context.Background(), conv); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if conv.submits != 2 {
		t.Errorf("Expected 2 submits, got %d", conv.submits)
	}
	if !strings.Contains(out.String(), domain.ErrBusy.Error()) {
		t.Errorf("Expected the busy error to be shown, got '%s'", out.String())
	}
}
