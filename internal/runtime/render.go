package runtime

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Interpolator renders variables into node labels.
type Interpolator func(ctx context.Context, text string, data map[string]any) (string, error)

// TemplateInterpolator renders labels as Go templates over the session variables.
// Missing keys render empty.
func TemplateInterpolator(ctx context.Context, text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New("label").Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse label: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render label: %w", err)
	}
	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

// RenderNode returns the presentation model of a node.
// It depends only on the node configuration.
func RenderNode(node domain.Node) domain.Prompt {
	label := node.Label()
	or := func(fallback string) string {
		if label != "" {
			return label
		}
		return fallback
	}

	switch node.Type {
	case domain.NodeTypeText:
		return domain.Prompt{Kind: domain.PromptMessage, Text: or(defaultTextLabel)}

	case domain.NodeTypeOptions:
		var cfg domain.OptionsConfig
		_ = node.DecodeConfig(&cfg)
		return domain.Prompt{Kind: domain.PromptChoice, Text: or(defaultOptionsLabel), Options: cfg.Options}

	case domain.NodeTypeForm:
		var cfg domain.FormConfig
		_ = node.DecodeConfig(&cfg)
		return domain.Prompt{Kind: domain.PromptForm, Text: or(defaultFormLabel), Fields: cfg.Fields}

	case domain.NodeTypeSingleInput, domain.NodeTypeAIInput:
		cfg, _ := node.InputConfig()
		p := domain.Prompt{
			Kind:        domain.PromptInput,
			Text:        or(defaultInputLabel),
			Placeholder: cfg.Placeholder,
			ButtonText:  cfg.ButtonText,
		}
		if p.Placeholder == "" {
			p.Placeholder = defaultPlaceholder
		}
		if p.ButtonText == "" {
			p.ButtonText = defaultButtonText
		}
		return p

	case domain.NodeTypeCondition:
		return domain.Prompt{Kind: domain.PromptMessage, Text: or(defaultCondLabel)}

	case domain.NodeTypeWebhook:
		return domain.Prompt{Kind: domain.PromptMessage, Text: or(defaultWebhookLabel)}
	}

	return domain.Prompt{Kind: domain.PromptMessage, Text: or(defaultNodeLabel)}
}

// render applies the interpolator to the prompt text. Interpolation failures
// leave the raw label in place.
func (r *run) render(node domain.Node) domain.Prompt {
	p := RenderNode(node)
	if r.e.interpolator == nil {
		return p
	}
	text, err := r.e.interpolator(r.ctx, p.Text, r.state.Variables)
	if err != nil {
		r.logger.Warn("label interpolation failed", "node_id", node.ID, "err", err)
		return p
	}
	p.Text = text
	return p
}
