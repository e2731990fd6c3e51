package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
)

var (
	errNoResponder = errors.New("no AI provider configured")
	errNoInvoker   = errors.New("no webhook client configured")
	errNoURL       = errors.New("webhook url is empty")
)

// evaluate decides the branch of a condition node and records it in the transcript.
func (r *run) evaluate(node domain.Node) string {
	var cfg domain.ConditionConfig
	err := node.DecodeConfig(&cfg)

	result := false
	if err == nil {
		result, err = r.e.evaluator.Evaluate(r.ctx, cfg, r.state.Variables)
	}
	if err != nil {
		r.logger.Warn("condition evaluation failed", "node_id", node.ID, "err", err)
		r.say(domain.RoleSystem, fmt.Sprintf(MsgConditionFailed, err), node.ID, nil)
		result = false
	}

	branch, label := domain.HandleNo, "NO"
	if result {
		branch, label = domain.HandleYes, "YES"
	}
	r.say(domain.RoleSystem, fmt.Sprintf(MsgCondition, label), node.ID, nil)
	return branch
}

// callWebhook performs the node's HTTP call. The outcome never blocks the
// conversation: failures only add a system turn.
func (r *run) callWebhook(node domain.Node) {
	cfg, err := node.WebhookConfig()
	r.say(domain.RoleSystem, fmt.Sprintf(MsgCallingWebhook, cfg.Method, cfg.URL), node.ID, nil)

	switch {
	case err != nil:
	case r.e.webhooks == nil:
		err = errNoInvoker
	case cfg.URL == "":
		err = errNoURL
	}
	if err != nil {
		r.say(domain.RoleSystem, fmt.Sprintf(MsgWebhookFailed, err), node.ID, nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.e.callTimeout)
	defer cancel()

	start := time.Now()
	res := r.e.webhooks.Invoke(ctx, cfg)
	elapsed := time.Since(start)

	if r.e.hooks.OnWebhookCall != nil {
		r.e.hooks.OnWebhookCall(r.ctx, &domain.CallEvent{
			EventBase: r.event(domain.EventWebhookCall),
			NodeID:    node.ID,
			Target:    cfg.Method + " " + cfg.URL,
			Duration:  elapsed,
			IsError:   !res.OK,
		})
	}

	if !res.OK {
		reason := res.Error
		if reason == "" {
			reason = fmt.Sprintf("status %d", res.StatusCode)
		}
		r.logger.Warn("webhook call failed", "node_id", node.ID, "url", cfg.URL, "reason", reason)
		r.say(domain.RoleSystem, fmt.Sprintf(MsgWebhookFailed, reason), node.ID, nil)
		return
	}
	r.logger.Debug("webhook call succeeded", "node_id", node.ID, "status", res.StatusCode, "duration", elapsed)
}

// complete asks the responder for the reply of an aiInput node.
func (r *run) complete(node domain.Node, provider domain.ProviderConfig, prompt string) (string, error) {
	if r.e.responder == nil {
		return "", errNoResponder
	}
	if provider.IsZero() && r.e.providers != nil {
		fallback, err := r.e.providers.ProviderConfig(r.ctx, r.state.OwnerID)
		if err != nil {
			r.logger.Warn("owner provider settings unavailable", "owner_id", r.state.OwnerID, "err", err)
		} else {
			provider = fallback
		}
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.e.callTimeout)
	defer cancel()

	start := time.Now()
	reply, err := r.e.responder.Complete(ctx, provider, prompt)
	elapsed := time.Since(start)

	if r.e.hooks.OnProviderCall != nil {
		r.e.hooks.OnProviderCall(r.ctx, &domain.CallEvent{
			EventBase: r.event(domain.EventProviderCall),
			NodeID:    node.ID,
			Target:    provider.Name,
			Duration:  elapsed,
			IsError:   err != nil,
		})
	}
	if err != nil {
		r.logger.Warn("provider call failed", "node_id", node.ID, "provider", provider.Name, "err", err)
		return "", err
	}
	return reply, nil
}
