package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/muesli/termenv"
)

// Words the text handler treats as commands rather than answers.
const (
	cmdExit    = "exit"
	cmdQuit    = "quit"
	cmdRestart = "/restart"
)

// ContentRenderer is a function that transforms the content before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// TextHandler implements the standard text-based interface.
type TextHandler struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer

	out       *termenv.Output
	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Reader: bufio.NewReader(r),
		Writer: w,
		out:    termenv.NewOutput(w),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
}

// pump reads lines in the background so Input can give up on ctx.
func (h *TextHandler) pump() {
	for {
		text, err := h.Reader.ReadString('\n')
		if text != "" {
			h.inputChan <- inputResult{text: text}
		}
		if err != nil {
			if err == io.EOF {
				close(h.inputChan)
				return
			}
			h.inputChan <- inputResult{err: err}
			// Backoff for non-fatal errors to prevent CPU spikes on persistent failure
			time.Sleep(50 * time.Millisecond)
		}
	}
}

// Output prints bot, ai and system turns. User turns are not echoed: the
// user just typed them.
func (h *TextHandler) Output(ctx context.Context, turns []domain.Turn, prompt *domain.Prompt) error {
	for _, turn := range turns {
		switch turn.Role {
		case domain.RoleUser:
			continue
		case domain.RoleSystem:
			fmt.Fprintln(h.Writer, h.out.String("[System] "+turn.Text).Faint())
		case domain.RoleAI:
			fmt.Fprintf(h.Writer, "%s %s\n", h.out.String("AI:").Bold(), h.render(turn.Text))
		default:
			fmt.Fprintln(h.Writer, h.render(turn.Text))
		}
	}
	if prompt != nil && prompt.Kind == domain.PromptChoice {
		for i, opt := range prompt.Options {
			fmt.Fprintf(h.Writer, "  %d) %s\n", i+1, opt)
		}
	}
	return nil
}

func (h *TextHandler) render(msg string) string {
	output := msg
	if h.Renderer != nil {
		if rendered, err := h.Renderer(msg); err == nil {
			output = rendered
		}
	}
	return strings.TrimSpace(output)
}

// Input reads the answer to prompt. Choices accept the option number or its
// text; forms ask for each field in turn.
func (h *TextHandler) Input(ctx context.Context, prompt domain.Prompt) (Command, error) {
	if prompt.Kind == domain.PromptForm {
		return h.inputForm(ctx, prompt)
	}

	text, err := h.readLine(ctx, "> ")
	if err != nil {
		return Command{}, err
	}
	if cmd, ok := parseCommand(text); ok {
		return cmd, nil
	}

	if prompt.Kind == domain.PromptChoice {
		if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(prompt.Options) {
			return Respond(domain.OptionResponse(n - 1)), nil
		}
	}
	return Respond(domain.TextResponse(text)), nil
}

func (h *TextHandler) inputForm(ctx context.Context, prompt domain.Prompt) (Command, error) {
	fields := make(map[string]string, len(prompt.Fields))
	for _, f := range prompt.Fields {
		label := f.Label
		if label == "" {
			label = f.Key
		}
		if f.Required {
			label += "*"
		}
		if len(f.Options) > 0 {
			label += " (" + strings.Join(f.Options, "/") + ")"
		}

		text, err := h.readLine(ctx, label+": ")
		if err != nil {
			return Command{}, err
		}
		if cmd, ok := parseCommand(text); ok {
			return cmd, nil
		}
		fields[f.Key] = text
	}
	return Respond(domain.FormResponse(fields)), nil
}

// readLine shows label and returns the next sanitized line, asking again on rejected input.
func (h *TextHandler) readLine(ctx context.Context, label string) (string, error) {
	h.initPump()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
			fmt.Fprint(h.Writer, label)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res, ok := <-h.inputChan:
			if !ok {
				return "", io.EOF
			}
			if res.err != nil {
				return "", res.err
			}
			clean, err := SanitizeInput(strings.TrimSpace(res.text))
			if err != nil {
				fmt.Fprintf(h.Writer, "Error: %v. Please try again.\n", err)
				continue
			}
			return clean, nil
		}
	}
}

// SystemOutput prints a meta-message with a "[System]" prefix.
func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	fmt.Fprintf(h.Writer, "\n%s\n", h.out.String("[System] "+msg).Faint())
	return nil
}

func parseCommand(text string) (Command, bool) {
	switch strings.ToLower(text) {
	case cmdExit, cmdQuit:
		return Command{Kind: CommandQuit}, true
	case cmdRestart:
		return Command{Kind: CommandRestart}, true
	}
	return Command{}, false
}
