// Package config loads the process configuration of the chatflow binaries.
//
// Values are resolved in order: struct defaults, an optional YAML file, .env
// files, the process environment (CHATFLOW_*), and finally whatever the caller
// overrides (cobra flags) before calling Validate.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CHATFLOW_"

// Flow sources.
const (
	FlowSourceDir = "dir"
	FlowSourceAPI = "api"
	FlowSourceSQL = "sql"
)

// Session store drivers.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite3"
	StorePostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	// Flows
	FlowSource   string `yaml:"flowSource" env:"FLOW_SOURCE" default:"dir" validate:"oneof=dir api sql"`
	FlowsDir     string `yaml:"flowsDir" env:"FLOWS_DIR" default:"."`
	FlowAPIURL   string `yaml:"flowApiUrl" env:"FLOW_API_URL" validate:"omitempty,url"`
	FlowAPIToken string `yaml:"flowApiToken" env:"FLOW_API_TOKEN"`

	// Sessions
	Store       string        `yaml:"store" env:"STORE" default:"memory" validate:"oneof=memory file redis sqlite3 postgres"`
	StoreDSN    string        `yaml:"storeDsn" env:"STORE_DSN" validate:"required_if=Store postgres"`
	SessionsDir string        `yaml:"sessionsDir" env:"SESSIONS_DIR" default:".chatflow/sessions"`
	RedisAddr   string        `yaml:"redisAddr" env:"REDIS_ADDR" default:"localhost:6379" validate:"host_port"`
	RedisPass   string        `yaml:"redisPassword" env:"REDIS_PASSWORD"`
	RedisDB     int           `yaml:"redisDb" env:"REDIS_DB" default:"0" validate:"min=0"`
	SessionTTL  time.Duration `yaml:"sessionTtl" env:"SESSION_TTL" default:"24h" validate:"min=0"`

	// Persistence middleware
	EncryptionKey string        `yaml:"encryptionKey" env:"ENCRYPTION_KEY" validate:"omitempty,base64|base64url"`
	FallbackKeys  []string      `yaml:"fallbackKeys" env:"FALLBACK_KEYS" validate:"dive,base64|base64url"`
	PIIPatterns   []string      `yaml:"piiPatterns" env:"PII_PATTERNS"`
	LockSessions  bool          `yaml:"lockSessions" env:"LOCK_SESSIONS"`
	LockTTL       time.Duration `yaml:"lockTtl" env:"LOCK_TTL" default:"30s" validate:"min=0"`

	// Serving
	Port             int    `yaml:"port" env:"PORT" default:"8080" validate:"min=1,max=65535"`
	ValidateRequests bool   `yaml:"validateRequests" env:"VALIDATE_REQUESTS"`
	MCPTransport     string `yaml:"mcpTransport" env:"MCP_TRANSPORT" default:"stdio" validate:"oneof=stdio sse"`

	// AI and webhooks
	DefaultProvider string        `yaml:"defaultProvider" env:"DEFAULT_PROVIDER" default:"openai" validate:"oneof=openai deepseek gemini echo"`
	OpenAIKey       string        `yaml:"openaiApiKey" env:"OPENAI_API_KEY"`
	DeepSeekKey     string        `yaml:"deepseekApiKey" env:"DEEPSEEK_API_KEY"`
	GeminiKey       string        `yaml:"geminiApiKey" env:"GEMINI_API_KEY"`
	CallTimeout     time.Duration `yaml:"callTimeout" env:"CALL_TIMEOUT" default:"30s" validate:"min=0"`
	WebhookRetries  int           `yaml:"webhookRetries" env:"WEBHOOK_RETRIES" default:"0" validate:"min=0,max=10"`

	// Logging
	LogLevel  string `yaml:"logLevel" env:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"logFormat" env:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("host_port", func(fl validator.FieldLevel) bool {
		host, port, err := net.SplitHostPort(fl.Field().String())
		if err != nil || host == "" {
			return false
		}
		_, err = net.LookupPort("tcp", port)
		return err == nil
	})
	return v
}

// Default returns a Config holding only the struct defaults.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply default values: %w", err)
	}
	return cfg, nil
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when empty), the .env files (".env" when none given, missing files ignored)
// and the environment. The result is validated.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables already set in the environment.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", f, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag())
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.FlowSource == FlowSourceAPI && c.FlowAPIURL == "" {
		return fmt.Errorf("invalid configuration: %sFLOW_API_URL is required when flows come from the API", EnvPrefix)
	}
	if c.FlowSource == FlowSourceSQL && c.Store != StoreSQLite && c.Store != StorePostgres {
		return fmt.Errorf("invalid configuration: flow source %q needs a SQL store, got %q", c.FlowSource, c.Store)
	}
	return nil
}

// DefaultSQLiteDSN is used by the sqlite3 store when StoreDSN is empty.
const DefaultSQLiteDSN = ".chatflow/chatflow.db"

// DSN returns the store DSN, defaulting the SQLite database file.
func (c *Config) DSN() string {
	if c.StoreDSN == "" && c.Store == StoreSQLite {
		return DefaultSQLiteDSN
	}
	return c.StoreDSN
}

// SlogLevel maps LogLevel onto slog.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ProviderKeys returns the configured API keys by provider name.
func (c *Config) ProviderKeys() map[string]string {
	keys := make(map[string]string)
	for name, key := range map[string]string{
		"openai":   c.OpenAIKey,
		"deepseek": c.DeepSeekKey,
		"gemini":   c.GeminiKey,
	} {
		if key != "" {
			keys[name] = key
		}
	}
	return keys
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv sets every field whose CHATFLOW_<env> variable is present.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	v := reflect.ValueOf(c).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, ok := field.Tag.Lookup("env")
		if !ok {
			continue
		}
		raw, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		if err := setField(v.Field(i), strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
	}
	return nil
}

func setField(f reflect.Value, raw string) error {
	switch f.Interface().(type) {
	case string:
		f.SetString(raw)
	case int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		f.SetInt(int64(n))
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		f.SetBool(b)
	case time.Duration:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		f.SetInt(int64(d))
	case []string:
		var items []string
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		f.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field type %s", f.Type())
	}
	return nil
}
