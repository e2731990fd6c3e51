package runtime

import (
	"fmt"

	"github.com/aretw0/chatflow/pkg/domain"
)

// advance enters nodeID and keeps following automatic transitions until a node
// awaits input or the conversation ends.
func (r *run) advance(nodeID string) {
	for nodeID != "" {
		nodeID = r.enter(nodeID)
	}
}

// follow resolves the edge leaving source and advances along it.
func (r *run) follow(source, handle string, discriminated bool) {
	r.advance(r.next(source, handle, discriminated))
}

// enter processes a single node and returns the node to enter next, or ""
// when the run stops here.
func (r *run) enter(nodeID string) string {
	node, ok := r.flow.Node(nodeID)
	if !ok {
		r.terminate(domain.StatusFailed, "", fmt.Sprintf(MsgMissingNode, nodeID))
		return ""
	}
	if r.state.IsVisited(nodeID) {
		r.terminate(domain.StatusPaused, nodeID, MsgLoopPaused)
		return ""
	}
	r.state.Visited = append(r.state.Visited, nodeID)

	if r.e.hooks.OnNodeEnter != nil {
		r.e.hooks.OnNodeEnter(r.ctx, &domain.NodeEvent{
			EventBase: r.event(domain.EventNodeEnter),
			NodeID:    node.ID,
			NodeType:  node.Type,
		})
	}

	prompt := r.render(node)
	r.say(domain.RoleBot, prompt.Text, node.ID, &prompt)

	switch {
	case node.Type.AwaitsInput():
		r.state.CurrentNodeID = node.ID
		r.state.Status = domain.StatusAwaitingInput
		return ""

	case node.Type == domain.NodeTypeCondition:
		return r.next(node.ID, r.evaluate(node), true)

	case node.Type == domain.NodeTypeWebhook:
		r.callWebhook(node)
	}
	return r.next(node.ID, "", false)
}

// next picks the edge leaving source and returns its target. When no edge
// matches, the conversation ends.
func (r *run) next(source, handle string, discriminated bool) string {
	edge, ok := ResolveEdge(r.flow, source, handle, discriminated)
	if !ok {
		msg := MsgCompleted
		if discriminated {
			msg = MsgNoOptions
		}
		r.terminate(domain.StatusCompleted, source, msg)
		return ""
	}
	if edge.Target == "" {
		r.terminate(domain.StatusFailed, source, fmt.Sprintf(MsgMissingNode, edge.Target))
		return ""
	}
	return edge.Target
}

// ResolveEdge selects the transition leaving source.
//
// Discriminated lookups (option index, condition branch) match the edge whose
// source handle equals handle. Otherwise the first edge without a handle wins,
// falling back to the first edge leaving source. Edges are scanned in flow order.
func ResolveEdge(flow *domain.Flow, source, handle string, discriminated bool) (domain.Edge, bool) {
	fallback := -1
	for i, e := range flow.Edges {
		if e.Source != source {
			continue
		}
		if discriminated {
			if e.Handle() == handle {
				return e, true
			}
			continue
		}
		if e.Handle() == "" {
			return e, true
		}
		if fallback < 0 {
			fallback = i
		}
	}
	if fallback >= 0 {
		return flow.Edges[fallback], true
	}
	return domain.Edge{}, false
}
