package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// JSONOutput is one line written by the JSONHandler.
type JSONOutput struct {
	Turns  []domain.Turn  `json:"turns,omitempty"`
	Prompt *domain.Prompt `json:"prompt,omitempty"`
	Ended  bool           `json:"ended,omitempty"`
	System string         `json:"system,omitempty"`
}

// JSONInput is one line read by the JSONHandler. A bare JSON string or plain
// text is accepted as a text response.
type JSONInput struct {
	Text        string            `json:"text,omitempty"`
	OptionIndex *int              `json:"optionIndex,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	Command     string            `json:"command,omitempty"`
}

// JSONHandler implements the IOHandler interface for structured JSON-Lines communication.
type JSONHandler struct {
	Reader  *bufio.Reader
	Encoder *json.Encoder
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Encoder: json.NewEncoder(w),
	}
}

// Output emits the new turns and the prompt as a single JSON line.
func (h *JSONHandler) Output(ctx context.Context, turns []domain.Turn, prompt *domain.Prompt) error {
	return h.Encoder.Encode(JSONOutput{Turns: turns, Prompt: prompt, Ended: prompt == nil})
}

// Input reads one line: a JSONInput object, a JSON string or raw text.
func (h *JSONHandler) Input(ctx context.Context, prompt domain.Prompt) (Command, error) {
	for {
		line, err := h.Reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" {
			if err != nil {
				return Command{}, err
			}
			continue
		}
		return h.parse(line)
	}
}

func (h *JSONHandler) parse(line string) (Command, error) {
	var in JSONInput
	if strings.HasPrefix(line, "{") {
		if err := json.Unmarshal([]byte(line), &in); err != nil {
			return Command{}, fmt.Errorf("invalid input line: %w", err)
		}
	} else if err := json.Unmarshal([]byte(line), &in.Text); err != nil {
		// Fallback: plain text.
		in.Text = line
	}

	switch in.Command {
	case "":
	case "quit", "exit":
		return Command{Kind: CommandQuit}, nil
	case "restart":
		return Command{Kind: CommandRestart}, nil
	default:
		return Command{}, fmt.Errorf("unknown command %q", in.Command)
	}

	resp, err := SanitizeResponse(domain.Response{Text: in.Text, OptionIndex: in.OptionIndex, Fields: in.Fields})
	if err != nil {
		return Command{}, err
	}
	return Respond(resp), nil
}

// SystemOutput emits msg as its own line.
func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.Encoder.Encode(JSONOutput{System: msg})
}
