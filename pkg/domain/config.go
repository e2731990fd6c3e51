package domain

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// TextConfig is the payload of a text node.
type TextConfig struct {
	Label string `mapstructure:"label"`
}

// OptionsConfig is the payload of an options node.
type OptionsConfig struct {
	Label    string   `mapstructure:"label"`
	Options  []string `mapstructure:"options"`
	Variable string   `mapstructure:"variable"`
}

// FormField describes one input of a form node.
type FormField struct {
	Key       string   `json:"key" mapstructure:"key"`
	Label     string   `json:"label" mapstructure:"label"`
	FieldType string   `json:"type,omitempty" mapstructure:"type"`
	Required  bool     `json:"required,omitempty" mapstructure:"required"`
	Options   []string `json:"options,omitempty" mapstructure:"options"`
}

// FormConfig is the payload of a form node.
type FormConfig struct {
	Label  string      `mapstructure:"label"`
	Fields []FormField `mapstructure:"fields"`
}

// ProviderConfig selects and configures the completion API used by an aiInput node.
type ProviderConfig struct {
	Name         string  `json:"provider,omitempty" mapstructure:"provider"`
	APIKey       string  `json:"apiKey,omitempty" mapstructure:"apiKey"`
	Model        string  `json:"model,omitempty" mapstructure:"model"`
	BaseURL      string  `json:"baseUrl,omitempty" mapstructure:"baseUrl"`
	SystemPrompt string  `json:"systemPrompt,omitempty" mapstructure:"systemPrompt"`
	Temperature  float64 `json:"temperature,omitempty" mapstructure:"temperature"`
}

// IsZero reports whether no provider field has been set.
func (p ProviderConfig) IsZero() bool {
	return p == ProviderConfig{}
}

// InputConfig is the payload of singleInput and aiInput nodes.
type InputConfig struct {
	Label       string         `mapstructure:"label"`
	Placeholder string         `mapstructure:"placeholder"`
	ButtonText  string         `mapstructure:"buttonText"`
	Variable    string         `mapstructure:"variable"`
	Provider    ProviderConfig `mapstructure:"providerConfig"`
}

// ConditionConfig is the payload of a condition node.
type ConditionConfig struct {
	Label      string `mapstructure:"label"`
	Expression string `mapstructure:"expression"`
	Variable   string `mapstructure:"variable"`
	Equals     string `mapstructure:"equals"`
	Value      *bool  `mapstructure:"value"`
	Default    string `mapstructure:"default"`
}

// WebhookConfig is the payload of a webhook node.
type WebhookConfig struct {
	Label   string            `mapstructure:"label"`
	Method  string            `mapstructure:"method"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Body    map[string]any    `mapstructure:"body"`
}

// DecodeConfig decodes the node's data payload into out.
// Scalars are weakly typed so "true" and true both decode into a bool.
func (n Node) DecodeConfig(out any) error {
	if len(n.Data) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(n.Data); err != nil {
		return fmt.Errorf("node %q: invalid %s config: %w", n.ID, n.Type, err)
	}
	return nil
}

// Label returns the node's display label, if any.
func (n Node) Label() string {
	if s, ok := n.Data["label"].(string); ok {
		return s
	}
	return ""
}

// InputConfig decodes the node as a singleInput/aiInput payload.
// Flat provider keys (provider, apiKey, model) are accepted when providerConfig is absent.
func (n Node) InputConfig() (InputConfig, error) {
	var cfg InputConfig
	if err := n.DecodeConfig(&cfg); err != nil {
		return cfg, err
	}
	if cfg.Provider.IsZero() {
		var flat ProviderConfig
		if err := n.DecodeConfig(&flat); err != nil {
			return cfg, err
		}
		cfg.Provider = flat
	}
	return cfg, nil
}

// WebhookConfig decodes the node as a webhook payload, defaulting the method to POST.
func (n Node) WebhookConfig() (WebhookConfig, error) {
	var cfg WebhookConfig
	if err := n.DecodeConfig(&cfg); err != nil {
		return cfg, err
	}
	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	return cfg, nil
}
