// Package webhook performs the outbound HTTP calls of webhook nodes.
package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/go-resty/resty/v2"
)

// DefaultTimeout bounds a single webhook call.
const DefaultTimeout = 10 * time.Second

// Invoker implements ports.WebhookInvoker with resty.
type Invoker struct {
	client *resty.Client
	logger *slog.Logger
}

// Option configures the Invoker.
type Option func(*Invoker)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(i *Invoker) {
		i.client.SetTimeout(d)
	}
}

// WithRetryCount retries failed calls n times. Webhooks are not idempotent in
// general, so the default is 0.
func WithRetryCount(n int) Option {
	return func(i *Invoker) {
		i.client.SetRetryCount(n)
	}
}

// WithHeader adds a header sent with every call, such as a shared secret.
func WithHeader(key, value string) Option {
	return func(i *Invoker) {
		i.client.SetHeader(key, value)
	}
}

// WithLogger sets the invoker logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Invoker) {
		i.logger = logger
	}
}

// New creates an Invoker.
func New(opts ...Option) *Invoker {
	i := &Invoker{
		client: resty.New().SetTimeout(DefaultTimeout),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke implements ports.WebhookInvoker. It never returns an error: failures
// are reported in the result.
func (i *Invoker) Invoke(ctx context.Context, cfg domain.WebhookConfig) ports.WebhookResult {
	if cfg.URL == "" {
		return ports.WebhookResult{Error: "missing URL"}
	}
	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	req := i.client.R().SetContext(ctx).SetHeaders(cfg.Headers)
	if cfg.Body != nil && method != http.MethodGet && method != http.MethodHead {
		req.SetBody(cfg.Body)
	}

	start := time.Now()
	resp, err := req.Execute(method, cfg.URL)
	if err != nil {
		i.logger.Warn("webhook call failed", "method", method, "url", cfg.URL, "err", err)
		return ports.WebhookResult{Error: err.Error()}
	}

	i.logger.Debug("webhook called", "method", method, "url", cfg.URL,
		"status", resp.StatusCode(), "duration", time.Since(start))
	if resp.IsError() {
		return ports.WebhookResult{StatusCode: resp.StatusCode(), Error: fmt.Sprintf("status %d", resp.StatusCode())}
	}
	return ports.WebhookResult{OK: true, StatusCode: resp.StatusCode()}
}
