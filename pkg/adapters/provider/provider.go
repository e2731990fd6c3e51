// Package provider implements ports.Responder for OpenAI-compatible chat
// completion APIs (OpenAI, DeepSeek, Gemini).
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Provider names accepted in ProviderConfig.Name.
const (
	OpenAI   = "openai"
	DeepSeek = "deepseek"
	Gemini   = "gemini"
)

// DefaultTemperature is used when a node does not set one.
const DefaultTemperature = 0.7

// Endpoint describes how to reach one provider.
// APIKey is used when the node config carries none.
type Endpoint struct {
	BaseURL string
	Model   string
	APIKey  string
}

// DefaultEndpoints are the built-in providers.
var DefaultEndpoints = map[string]Endpoint{
	OpenAI:   {BaseURL: "https://api.openai.com/v1/", Model: "gpt-3.5-turbo"},
	DeepSeek: {BaseURL: "https://api.deepseek.com/v1/", Model: "deepseek-chat"},
	Gemini:   {BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai/", Model: "gemini-pro"},
}

// Responder sends aiInput prompts to the provider named in the node config.
type Responder struct {
	endpoints   map[string]Endpoint
	defaultName string
	timeout     time.Duration
	maxRetries  int
	logger      *slog.Logger
}

// Option configures the Responder.
type Option func(*Responder)

// WithEndpoint registers or overrides a provider endpoint.
func WithEndpoint(name string, ep Endpoint) Option {
	return func(r *Responder) {
		r.endpoints[strings.ToLower(name)] = ep
	}
}

// WithAPIKey sets the key used for provider name when a node carries none.
func WithAPIKey(name, key string) Option {
	return func(r *Responder) {
		name = strings.ToLower(name)
		ep := r.endpoints[name]
		ep.APIKey = key
		r.endpoints[name] = ep
	}
}

// WithDefaultProvider names the provider used when the config names none.
func WithDefaultProvider(name string) Option {
	return func(r *Responder) {
		r.defaultName = strings.ToLower(name)
	}
}

// WithTimeout bounds each completion request.
func WithTimeout(d time.Duration) Option {
	return func(r *Responder) {
		r.timeout = d
	}
}

// WithMaxRetries sets how many times the SDK retries transient failures.
func WithMaxRetries(n int) Option {
	return func(r *Responder) {
		r.maxRetries = n
	}
}

// WithLogger sets the responder logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Responder) {
		r.logger = logger
	}
}

// New creates a Responder with the default endpoints.
func New(opts ...Option) *Responder {
	r := &Responder{
		endpoints:   make(map[string]Endpoint, len(DefaultEndpoints)),
		defaultName: OpenAI,
		maxRetries:  1,
		logger:      logging.NewNop(),
	}
	for name, ep := range DefaultEndpoints {
		r.endpoints[name] = ep
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Complete implements ports.Responder.
// Every failure is a *domain.ProviderError.
func (r *Responder) Complete(ctx context.Context, cfg domain.ProviderConfig, prompt string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if name == "" {
		name = r.defaultName
	}
	ep, ok := r.endpoints[name]
	if !ok {
		return "", &domain.ProviderError{Provider: name, Message: "unknown provider"}
	}
	if cfg.APIKey == "" {
		cfg.APIKey = ep.APIKey
	}
	if cfg.APIKey == "" {
		return "", &domain.ProviderError{Provider: name, Message: "missing API key"}
	}
	if cfg.BaseURL != "" {
		ep.BaseURL = cfg.BaseURL
	}
	if cfg.Model != "" {
		ep.Model = cfg.Model
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(ep.BaseURL),
		option.WithMaxRetries(r.maxRetries),
	}
	if r.timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(r.timeout))
	}
	client := openai.NewClient(reqOpts...)

	var messages []openai.ChatCompletionMessageParamUnion
	if cfg.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(cfg.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	start := time.Now()
	completion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(ep.Model),
		Messages:    messages,
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		r.logger.Warn("completion failed", "provider", name, "model", ep.Model, "err", err)
		return "", providerError(name, err)
	}
	r.logger.Debug("completion done", "provider", name, "model", ep.Model, "duration", time.Since(start))

	if len(completion.Choices) == 0 {
		return "", &domain.ProviderError{Provider: name, Message: "no choices returned"}
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

func providerError(name string, err error) *domain.ProviderError {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = fmt.Sprintf("request failed with status %d", apiErr.StatusCode)
		}
		return &domain.ProviderError{Provider: name, StatusCode: apiErr.StatusCode, Message: msg, Err: err}
	}
	return &domain.ProviderError{Provider: name, Err: err}
}
