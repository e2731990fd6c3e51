package chatflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aretw0/chatflow/internal/runtime"
	loamAdapter "github.com/aretw0/chatflow/pkg/adapters/loam"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/aretw0/chatflow/pkg/session"
)

// Engine is the high-level entry point for the chatflow library.
// It wires a flow source, the interpreter and a session manager together.
type Engine struct {
	runtime *runtime.Engine
	flows   ports.FlowLoader
	store   ports.StateStore
	manager *session.Manager

	runtimeOpts []runtime.Option
	sessionOpts []session.Option
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	Name        string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithFlowLoader injects a custom flow source, bypassing the default Loam repository.
func WithFlowLoader(l ports.FlowLoader) Option {
	return func(e *Engine) {
		e.flows = l
	}
}

// WithStateStore sets where session snapshots are persisted (default: in memory).
func WithStateStore(s ports.StateStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithLocker coordinates sessions across replicas.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, session.WithLocker(l))
	}
}

// WithOnChange registers a callback run after every committed session snapshot.
func WithOnChange(fn session.ChangeFunc) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, session.WithOnChange(fn))
	}
}

// WithResponder sets the backend used by aiInput nodes.
func WithResponder(r ports.Responder) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithResponder(r))
	}
}

// WithWebhookInvoker sets the backend used by webhook nodes.
func WithWebhookInvoker(w ports.WebhookInvoker) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithWebhookInvoker(w))
	}
}

// WithConditionEvaluator replaces the expression evaluator of condition nodes.
func WithConditionEvaluator(ev ports.ConditionEvaluator) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithConditionEvaluator(ev))
	}
}

// WithProviderConfigSource supplies owner-level AI settings for nodes that carry none.
func WithProviderConfigSource(src ports.ProviderConfigSource) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithProviderConfigSource(src))
	}
}

// WithInterpolator sets a custom label interpolator.
func WithInterpolator(interp runtime.Interpolator) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithInterpolator(interp))
	}
}

// WithClock overrides the time source used for transcript timestamps.
func WithClock(c func() time.Time) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithClock(c))
	}
}

// WithCallTimeout bounds provider and webhook calls (default 30s).
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithCallTimeout(d))
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New initializes a new chatflow Engine.
// By default, flows are read from a Loam repository at repoPath.
// If WithFlowLoader is provided, repoPath can be empty and Loam is skipped.
func New(repoPath string, opts ...Option) (*Engine, error) {
	eng := &Engine{}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.flows == nil {
		if repoPath == "" {
			return nil, fmt.Errorf("repoPath is required when no custom flow loader is provided")
		}
		absPath, err := filepath.Abs(repoPath)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		eng.Name = filepath.Base(absPath)

		loader, err := loamAdapter.Open(absPath)
		if err != nil {
			return nil, err
		}
		eng.flows = loader
	} else if repoPath != "" {
		eng.Name = filepath.Base(repoPath)
	}

	if eng.logger == nil {
		eng.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("repo", eng.Name)
	}
	if eng.store == nil {
		eng.store = memory.NewStore()
	}

	runtimeOpts := []runtime.Option{
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
	}
	eng.runtime = runtime.NewEngine(append(runtimeOpts, eng.runtimeOpts...)...)

	sessionOpts := []session.Option{session.WithLogger(eng.logger)}
	eng.manager = session.NewManager(eng.store, eng.runtime, append(sessionOpts, eng.sessionOpts...)...)

	return eng, nil
}

// LoadFlow fetches a flow definition from the configured source.
func (e *Engine) LoadFlow(ctx context.Context, ownerID, flowID string) (*domain.Flow, error) {
	return e.flows.LoadFlow(ctx, ownerID, flowID)
}

// Start begins (or resumes) a session running the given flow.
func (e *Engine) Start(ctx context.Context, sessionID, ownerID, flowID string) (*domain.State, error) {
	flow, err := e.flows.LoadFlow(ctx, ownerID, flowID)
	if err != nil {
		return nil, err
	}
	return e.manager.Start(ctx, sessionID, flow)
}

// Submit applies a response to a session. The flow is reloaded on every call:
// if it was edited since the session started, the session restarts instead.
func (e *Engine) Submit(ctx context.Context, sessionID string, resp domain.Response) (*domain.State, error) {
	flow, err := e.sessionFlow(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return e.manager.Submit(ctx, sessionID, flow, resp)
}

// Restart starts a session over on the current version of its flow.
func (e *Engine) Restart(ctx context.Context, sessionID string) (*domain.State, error) {
	flow, err := e.sessionFlow(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return e.manager.Restart(ctx, sessionID, flow)
}

// Get returns the current snapshot of a session.
func (e *Engine) Get(ctx context.Context, sessionID string) (*domain.State, error) {
	return e.manager.Get(ctx, sessionID)
}

// Delete drops a session.
func (e *Engine) Delete(ctx context.Context, sessionID string) error {
	return e.manager.Delete(ctx, sessionID)
}

// List returns the ids of stored sessions.
func (e *Engine) List(ctx context.Context) ([]string, error) {
	return e.manager.List(ctx)
}

func (e *Engine) sessionFlow(ctx context.Context, sessionID string) (*domain.Flow, error) {
	state, err := e.manager.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return e.flows.LoadFlow(ctx, state.OwnerID, state.FlowID)
}

// Watch returns a channel that signals when a flow changes.
// Returns error if the loader does not support watching.
func (e *Engine) Watch(ctx context.Context) (<-chan string, error) {
	if w, ok := e.flows.(ports.Watchable); ok {
		return w.Watch(ctx)
	}
	return nil, fmt.Errorf("current flow loader does not support watching")
}

// Loader returns the underlying flow source.
func (e *Engine) Loader() ports.FlowLoader {
	return e.flows
}

// OnChange registers a callback run after every committed session snapshot.
// Register callbacks before the engine starts serving sessions.
func (e *Engine) OnChange(fn session.ChangeFunc) {
	e.manager.OnChange(fn)
}

// Manager returns the session manager, for adapters that need OnChange or locking.
func (e *Engine) Manager() *session.Manager {
	return e.manager
}

// Interpreter returns the stateless interpreter.
func (e *Engine) Interpreter() ports.Interpreter {
	return e.runtime
}

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// RenderNode returns the presentation model of a node: what a surface should
// draw for it. It has no side effects.
func RenderNode(node domain.Node) domain.Prompt {
	return runtime.RenderNode(node)
}
