package ports

import (
	"context"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Responder resolves the reply of an aiInput node.
// Implementations return *domain.ProviderError for upstream failures.
type Responder interface {
	Complete(ctx context.Context, cfg domain.ProviderConfig, prompt string) (string, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, cfg domain.ProviderConfig, prompt string) (string, error)

func (f ResponderFunc) Complete(ctx context.Context, cfg domain.ProviderConfig, prompt string) (string, error) {
	return f(ctx, cfg, prompt)
}

// WebhookResult is the outcome of a webhook call.
type WebhookResult struct {
	OK         bool   `json:"ok"`
	StatusCode int    `json:"statusCode,omitempty"`
	Error      string `json:"error,omitempty"`
}

// WebhookInvoker performs the HTTP call described by a webhook node.
// It never fails: transport errors are reported through WebhookResult.
type WebhookInvoker interface {
	Invoke(ctx context.Context, cfg domain.WebhookConfig) WebhookResult
}

// WebhookFunc adapts a function to the WebhookInvoker interface.
type WebhookFunc func(ctx context.Context, cfg domain.WebhookConfig) WebhookResult

func (f WebhookFunc) Invoke(ctx context.Context, cfg domain.WebhookConfig) WebhookResult {
	return f(ctx, cfg)
}

// ConditionEvaluator decides the branch of a condition node.
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, cfg domain.ConditionConfig, vars map[string]any) (bool, error)
}

// ProviderConfigSource supplies account-level provider settings for nodes that carry none.
type ProviderConfigSource interface {
	ProviderConfig(ctx context.Context, ownerID string) (domain.ProviderConfig, error)
}
