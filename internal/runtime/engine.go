package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// DefaultCallTimeout bounds provider and webhook calls made while interpreting a node.
const DefaultCallTimeout = 30 * time.Second

var errNoFlow = errors.New("flow is required")

// Clock returns the time stamped on transcript turns.
type Clock func() time.Time

// Engine is the flow interpreter. It holds no session data: every call takes
// a snapshot and returns a new one.
type Engine struct {
	responder    ports.Responder
	webhooks     ports.WebhookInvoker
	evaluator    ports.ConditionEvaluator
	providers    ports.ProviderConfigSource
	interpolator Interpolator
	hooks        domain.LifecycleHooks
	logger       *slog.Logger
	clock        Clock
	callTimeout  time.Duration
}

// Option configures the Engine.
type Option func(*Engine)

// WithResponder sets the backend used by aiInput nodes.
func WithResponder(r ports.Responder) Option {
	return func(e *Engine) {
		e.responder = r
	}
}

// WithWebhookInvoker sets the backend used by webhook nodes.
func WithWebhookInvoker(w ports.WebhookInvoker) Option {
	return func(e *Engine) {
		e.webhooks = w
	}
}

// WithConditionEvaluator replaces the expression evaluator of condition nodes.
func WithConditionEvaluator(ev ports.ConditionEvaluator) Option {
	return func(e *Engine) {
		e.evaluator = ev
	}
}

// WithProviderConfigSource supplies owner-level provider settings for aiInput
// nodes that carry no provider configuration.
func WithProviderConfigSource(src ports.ProviderConfigSource) Option {
	return func(e *Engine) {
		e.providers = src
	}
}

// WithInterpolator sets the label interpolator. Nil disables interpolation.
func WithInterpolator(i Interpolator) Option {
	return func(e *Engine) {
		e.interpolator = i
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the time source used for turn timestamps.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithCallTimeout bounds each provider and webhook call.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.callTimeout = d
	}
}

// NewEngine creates an interpreter. Without a responder, aiInput nodes report
// an error turn; without a webhook invoker, webhook nodes report a failed call.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		evaluator:    ExprEvaluator{},
		interpolator: TemplateInterpolator,
		logger:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
		clock:        func() time.Time { return time.Now().UTC() },
		callTimeout:  DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ ports.Interpreter = (*Engine)(nil)

// Start creates the first snapshot of a conversation: it enters the start node
// and follows automatic transitions until a node awaits input or the
// conversation ends.
func (e *Engine) Start(ctx context.Context, flow *domain.Flow, sessionID string) (*domain.State, error) {
	if flow == nil {
		return nil, errNoFlow
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	state := e.fresh(flow, sessionID)
	e.newRun(ctx, flow, state).begin()
	return state, nil
}

// Restart discards the transcript, variables and visited set of the session and
// starts over with a new generation.
func (e *Engine) Restart(ctx context.Context, flow *domain.Flow, state *domain.State) (*domain.State, error) {
	if flow == nil {
		return nil, errNoFlow
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	next := e.fresh(flow, state.SessionID)
	next.Generation = state.Generation + 1
	if next.OwnerID == "" {
		next.OwnerID = state.OwnerID
	}
	e.newRun(ctx, flow, next).begin()
	return next, nil
}

// Submit applies a response to the node currently awaiting input.
// Responses to a terminal session, or to a node that no longer awaits input,
// leave the snapshot unchanged.
func (e *Engine) Submit(ctx context.Context, flow *domain.Flow, state *domain.State, resp domain.Response) (*domain.State, error) {
	if flow == nil {
		return nil, errNoFlow
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	next := state.Clone()
	if next.Terminal() {
		return next, nil
	}
	node, ok := flow.Node(next.CurrentNodeID)
	if !ok || !node.Type.AwaitsInput() {
		e.logger.Warn("response ignored: current node does not await input",
			"session_id", next.SessionID, "node_id", next.CurrentNodeID)
		return next, nil
	}

	r := e.newRun(ctx, flow, next)
	switch node.Type {
	case domain.NodeTypeOptions:
		r.submitOption(node, resp)
	case domain.NodeTypeForm:
		r.submitForm(node, resp)
	case domain.NodeTypeSingleInput:
		r.submitInput(node, resp)
	case domain.NodeTypeAIInput:
		r.submitAI(node, resp)
	}
	next.UpdatedAt = e.clock()
	return next, nil
}

func (e *Engine) fresh(flow *domain.Flow, sessionID string) *domain.State {
	state := domain.NewState(sessionID)
	state.OwnerID = flow.OwnerID
	state.FlowID = flow.ID
	state.FlowFingerprint = flow.Fingerprint()
	state.UpdatedAt = e.clock()
	return state
}

// run carries one interpreter invocation over a single snapshot.
type run struct {
	e      *Engine
	ctx    context.Context
	flow   *domain.Flow
	state  *domain.State
	logger *slog.Logger
}

func (e *Engine) newRun(ctx context.Context, flow *domain.Flow, state *domain.State) *run {
	return &run{
		e:      e,
		ctx:    ctx,
		flow:   flow,
		state:  state,
		logger: e.logger.With("session_id", state.SessionID, "flow_id", flow.ID),
	}
}

func (r *run) begin() {
	candidates := r.flow.StartCandidates()
	if len(candidates) == 0 {
		r.terminate(domain.StatusFailed, "", MsgNoStart)
		return
	}
	if len(candidates) > 1 {
		warning := fmt.Sprintf(MsgMultipleStarts, strings.Join(candidates, ", "), candidates[0])
		r.state.Warnings = append(r.state.Warnings, warning)
		r.logger.Warn(warning)
	}
	r.advance(candidates[0])
}

func (r *run) say(role domain.Role, text, nodeID string, prompt *domain.Prompt) {
	turn := domain.Turn{
		Role:      role,
		Text:      text,
		NodeID:    nodeID,
		Timestamp: r.e.clock(),
		Prompt:    prompt,
	}
	r.state.Transcript = append(r.state.Transcript, turn)

	if r.e.hooks.OnTurn != nil {
		r.e.hooks.OnTurn(r.ctx, &domain.TurnEvent{
			EventBase: r.event(domain.EventTurn),
			Turn:      turn,
		})
	}
}

func (r *run) terminate(status domain.SessionStatus, nodeID, text string) {
	r.say(domain.RoleSystem, text, nodeID, nil)
	r.state.CurrentNodeID = ""
	r.state.Status = status
	r.logger.Debug("conversation ended", "status", status, "node_id", nodeID)

	if r.e.hooks.OnTerminal != nil {
		r.e.hooks.OnTerminal(r.ctx, &domain.NodeEvent{
			EventBase: r.event(domain.EventTerminal),
			NodeID:    nodeID,
			Status:    status,
		})
	}
}

func (r *run) event(t domain.EventType) domain.EventBase {
	return domain.EventBase{Timestamp: r.e.clock(), Type: t, SessionID: r.state.SessionID}
}

func (r *run) capture(key string, value any) {
	if r.state.Variables == nil {
		r.state.Variables = make(map[string]any)
	}
	r.state.Variables[key] = value
}

func variableName(configured, nodeID string) string {
	if configured != "" {
		return configured
	}
	return nodeID
}
