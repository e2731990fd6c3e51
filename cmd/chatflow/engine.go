package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/config"
	"github.com/aretw0/chatflow/pkg/adapters/file"
	"github.com/aretw0/chatflow/pkg/adapters/flowapi"
	loamAdapter "github.com/aretw0/chatflow/pkg/adapters/loam"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/adapters/provider"
	redisAdapter "github.com/aretw0/chatflow/pkg/adapters/redis"
	"github.com/aretw0/chatflow/pkg/adapters/sqlstore"
	"github.com/aretw0/chatflow/pkg/adapters/webhook"
	"github.com/aretw0/chatflow/pkg/observability"
	"github.com/aretw0/chatflow/pkg/persistence/middleware"
	"github.com/aretw0/chatflow/pkg/ports"
)

// app is an engine together with the resources it owns.
type app struct {
	Engine *chatflow.Engine
	Flows  ports.FlowLoader
	Store  ports.StateStore

	closers []func() error
}

// Close releases every backend connection opened by buildApp.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// buildApp wires the configured flow source, session store and collaborators
// into an engine. extra options are applied last.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, extra ...chatflow.Option) (*app, error) {
	a := &app{}
	opts := []chatflow.Option{chatflow.WithLogger(logger)}

	store, locker, err := a.openStore(ctx, cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Store = store

	repoPath := ""
	switch cfg.FlowSource {
	case config.FlowSourceDir:
		loader, err := loamAdapter.Open(cfg.FlowsDir)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Flows = loader
		repoPath = cfg.FlowsDir
	case config.FlowSourceAPI:
		client := flowapi.New(cfg.FlowAPIURL,
			flowapi.WithToken(cfg.FlowAPIToken),
			flowapi.WithTimeout(cfg.CallTimeout),
			flowapi.WithLogger(logger),
		)
		a.Flows = client
		opts = append(opts, chatflow.WithProviderConfigSource(client))
	case config.FlowSourceSQL:
		flows, ok := store.(ports.FlowLoader)
		if !ok {
			_ = a.Close()
			return nil, fmt.Errorf("flow source %q needs a SQL session store", cfg.FlowSource)
		}
		a.Flows = flows
	}

	wrapped, err := withMiddleware(store, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	opts = append(opts,
		chatflow.WithFlowLoader(a.Flows),
		chatflow.WithStateStore(wrapped),
		chatflow.WithResponder(newResponder(cfg, logger)),
		chatflow.WithWebhookInvoker(webhook.New(
			webhook.WithTimeout(cfg.CallTimeout),
			webhook.WithRetryCount(cfg.WebhookRetries),
			webhook.WithLogger(logger),
		)),
		chatflow.WithCallTimeout(cfg.CallTimeout),
		chatflow.WithLifecycleHooks(observability.LogHooks(logger)),
	)
	if locker != nil {
		opts = append(opts, chatflow.WithLocker(locker))
	}

	eng, err := chatflow.New(repoPath, append(opts, extra...)...)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	a.Engine = eng
	return a, nil
}

// openStore opens the raw session store. The redis store also yields a locker
// when session locking is enabled.
func (a *app) openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ports.StateStore, ports.DistributedLocker, error) {
	switch cfg.Store {
	case config.StoreFile:
		return file.New(cfg.SessionsDir), nil, nil

	case config.StoreRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		store := redisAdapter.NewFromClient(client, redisAdapter.WithTTL(cfg.SessionTTL))
		if !cfg.LockSessions {
			return store, nil, nil
		}
		return store, redisAdapter.NewLocker(client, redisAdapter.DefaultPrefix+"lock:"), nil

	case config.StoreSQLite, config.StorePostgres:
		store, err := sqlstore.Open(ctx, cfg.Store, cfg.DSN(), sqlstore.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil, nil

	default:
		return memory.NewStore(memory.WithTTL(cfg.SessionTTL)), nil, nil
	}
}

// withMiddleware wraps store with PII masking and encryption, in that order:
// values are masked before they are encrypted.
func withMiddleware(store ports.StateStore, cfg *config.Config) (ports.StateStore, error) {
	var mws []middleware.Middleware
	if len(cfg.PIIPatterns) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.PIIPatterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, pii)
	}
	if cfg.EncryptionKey != "" {
		active, err := middleware.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		encCfg := middleware.EncryptionConfig{ActiveKey: active}
		for _, raw := range cfg.FallbackKeys {
			key, err := middleware.ParseKey(raw)
			if err != nil {
				return nil, err
			}
			encCfg.FallbackKeys = append(encCfg.FallbackKeys, key)
		}
		enc, err := middleware.NewEncryptionMiddleware(encCfg)
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	return middleware.Chain(store, mws...), nil
}

func newResponder(cfg *config.Config, logger *slog.Logger) ports.Responder {
	if cfg.DefaultProvider == "echo" {
		return provider.Echo{}
	}
	opts := []provider.Option{
		provider.WithDefaultProvider(cfg.DefaultProvider),
		provider.WithTimeout(cfg.CallTimeout),
		provider.WithLogger(logger),
	}
	for name, key := range cfg.ProviderKeys() {
		opts = append(opts, provider.WithAPIKey(name, key))
	}
	return provider.New(opts...)
}
