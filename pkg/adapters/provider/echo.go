package provider

import (
	"context"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Echo is an offline Responder that answers with the prompt itself.
type Echo struct {
	// Prefix is prepended to every reply.
	Prefix string
}

// Complete implements ports.Responder.
func (e Echo) Complete(ctx context.Context, cfg domain.ProviderConfig, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.Prefix + strings.TrimSpace(prompt), nil
}
