package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/aretw0/chatflow/pkg/runner"
)

// NewRenderer returns a renderer turning bot messages written in markdown into
// ANSI text. The style follows the terminal background.
// wordWrap <= 0 disables wrapping.
func NewRenderer(wordWrap int) (runner.ContentRenderer, error) {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if wordWrap > 0 {
		opts = append(opts, glamour.WithWordWrap(wordWrap))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, err
	}

	return func(markdown string) (string, error) {
		out, err := r.Render(markdown)
		if err != nil {
			return "", err
		}
		// glamour pads documents with blank lines; a chat bubble should not.
		return strings.Trim(out, "\n"), nil
	}, nil
}
