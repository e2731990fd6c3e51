package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/chatflow/pkg/domain"
)

// LogHooks writes one structured record per lifecycle event.
// Turn text is not logged; it may contain personal data.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter",
				"session_id", e.SessionID,
				"node_id", e.NodeID,
				"type", e.NodeType,
			)
		},
		OnProviderCall: func(ctx context.Context, e *domain.CallEvent) {
			logger.InfoContext(ctx, "provider_call",
				"session_id", e.SessionID,
				"node_id", e.NodeID,
				"provider", e.Target,
				"duration", e.Duration,
				"is_error", e.IsError,
			)
		},
		OnWebhookCall: func(ctx context.Context, e *domain.CallEvent) {
			logger.InfoContext(ctx, "webhook_call",
				"session_id", e.SessionID,
				"node_id", e.NodeID,
				"url", e.Target,
				"duration", e.Duration,
				"is_error", e.IsError,
			)
		},
		OnTerminal: func(ctx context.Context, e *domain.NodeEvent) {
			logger.InfoContext(ctx, "session_ended",
				"session_id", e.SessionID,
				"node_id", e.NodeID,
				"status", e.Status,
			)
		},
	}
}
