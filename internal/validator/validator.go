package validator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Severity of an Issue. Errors make a flow misbehave at runtime; warnings are
// tolerated by the interpreter but usually point at an editing mistake.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes.
const (
	CodeEmptyFlow      = "empty-flow"
	CodeDuplicateNode  = "duplicate-node"
	CodeDanglingEdge   = "dangling-edge"
	CodeNoStart        = "no-start"
	CodeMultipleStarts = "multiple-starts"
	CodeUnreachable    = "unreachable-node"
	CodeBadHandle      = "bad-handle"
	CodeMissingBranch  = "missing-branch"
	CodeBadConfig      = "bad-config"
)

// Issue is one finding about a flow.
type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	NodeID   string   `json:"nodeId,omitempty"`
	EdgeID   string   `json:"edgeId,omitempty"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	where := i.NodeID
	if i.EdgeID != "" {
		where = "edge " + i.EdgeID
	}
	if where == "" {
		return fmt.Sprintf("[%s] %s", i.Code, i.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Code, where, i.Message)
}

// Report collects the issues found in a flow.
type Report struct {
	FlowID string  `json:"flowId"`
	Issues []Issue `json:"issues"`
}

// Errors returns the issues of error severity.
func (r *Report) Errors() []Issue {
	return r.filter(SeverityError)
}

// Warnings returns the issues of warning severity.
func (r *Report) Warnings() []Issue {
	return r.filter(SeverityWarning)
}

// Valid reports whether the flow has no errors. Warnings do not count.
func (r *Report) Valid() bool {
	return len(r.Errors()) == 0
}

// Err folds the errors of the report into a single error wrapping
// domain.ErrInvalidFlow, or nil when the flow is valid.
func (r *Report) Err() error {
	errs := r.Errors()
	if len(errs) == 0 {
		return nil
	}
	lines := make([]string, len(errs))
	for i, issue := range errs {
		lines[i] = issue.String()
	}
	return fmt.Errorf("%w: found %d errors:\n- %s", domain.ErrInvalidFlow, len(errs), strings.Join(lines, "\n- "))
}

func (r *Report) filter(s Severity) []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == s {
			out = append(out, issue)
		}
	}
	return out
}

func (r *Report) add(s Severity, code, nodeID, edgeID, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{
		Severity: s,
		Code:     code,
		NodeID:   nodeID,
		EdgeID:   edgeID,
		Message:  fmt.Sprintf(format, args...),
	})
}

// ValidateFlow checks a flow for broken links, unreachable nodes and branch
// handles that can never be taken.
func ValidateFlow(flow *domain.Flow) *Report {
	report := &Report{}
	if flow == nil || len(flow.Nodes) == 0 {
		report.add(SeverityError, CodeEmptyFlow, "", "", "flow has no nodes")
		return report
	}
	report.FlowID = flow.ID

	nodes := make(map[string]domain.Node, len(flow.Nodes))
	for _, n := range flow.Nodes {
		if _, dup := nodes[n.ID]; dup {
			report.add(SeverityError, CodeDuplicateNode, n.ID, "", "node id is used more than once")
			continue
		}
		nodes[n.ID] = n
	}

	for _, e := range flow.Edges {
		if _, ok := nodes[e.Source]; !ok {
			report.add(SeverityError, CodeDanglingEdge, "", e.ID, "source %q does not exist", e.Source)
		}
		if _, ok := nodes[e.Target]; !ok {
			report.add(SeverityError, CodeDanglingEdge, "", e.ID, "target %q does not exist", e.Target)
		}
	}

	checkStarts(report, flow)

	for _, n := range flow.Nodes {
		checkNode(report, flow, n)
	}
	return report
}

func checkStarts(report *Report, flow *domain.Flow) {
	starts := flow.StartCandidates()
	if len(starts) == 0 {
		report.add(SeverityError, CodeNoStart, "", "", "every node has an incoming edge, there is no start node")
		return
	}
	if len(starts) > 1 {
		report.add(SeverityWarning, CodeMultipleStarts, starts[0], "",
			"multiple start nodes (%s); conversations start at %q", strings.Join(starts, ", "), starts[0])
	}

	reached := map[string]bool{starts[0]: true}
	queue := []string{starts[0]}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range flow.Outgoing(id) {
			if !reached[e.Target] {
				reached[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	for _, n := range flow.Nodes {
		if !reached[n.ID] {
			report.add(SeverityWarning, CodeUnreachable, n.ID, "", "node is not reachable from %q", starts[0])
		}
	}
}

func checkNode(report *Report, flow *domain.Flow, n domain.Node) {
	out := flow.Outgoing(n.ID)
	switch n.Type {
	case domain.NodeTypeOptions:
		var cfg domain.OptionsConfig
		if err := n.DecodeConfig(&cfg); err != nil {
			report.add(SeverityError, CodeBadConfig, n.ID, "", "%v", err)
			return
		}
		if len(cfg.Options) == 0 {
			report.add(SeverityWarning, CodeBadConfig, n.ID, "", "options node has no options")
		}
		for _, e := range out {
			h := e.Handle()
			if h == "" {
				continue
			}
			idx, ok := optionIndex(h)
			if !ok || idx >= len(cfg.Options) {
				report.add(SeverityError, CodeBadHandle, n.ID, e.ID, "handle %q matches no option", h)
			}
		}

	case domain.NodeTypeCondition:
		var cfg domain.ConditionConfig
		if err := n.DecodeConfig(&cfg); err != nil {
			report.add(SeverityError, CodeBadConfig, n.ID, "", "%v", err)
			return
		}
		if cfg.Expression == "" && cfg.Variable == "" && cfg.Value == nil {
			report.add(SeverityWarning, CodeBadConfig, n.ID, "", "condition has no expression, variable or value")
		}
		branches := map[string]bool{}
		for _, e := range out {
			h := e.Handle()
			switch h {
			case domain.HandleYes, domain.HandleNo:
				branches[h] = true
			case "":
			default:
				report.add(SeverityError, CodeBadHandle, n.ID, e.ID, "condition handle must be %q or %q, got %q",
					domain.HandleYes, domain.HandleNo, h)
			}
		}
		for _, h := range []string{domain.HandleYes, domain.HandleNo} {
			if len(out) > 0 && !branches[h] {
				report.add(SeverityWarning, CodeMissingBranch, n.ID, "", "no %q branch", h)
			}
		}

	case domain.NodeTypeForm:
		var cfg domain.FormConfig
		if err := n.DecodeConfig(&cfg); err != nil {
			report.add(SeverityError, CodeBadConfig, n.ID, "", "%v", err)
			return
		}
		seen := map[string]bool{}
		for _, f := range cfg.Fields {
			if f.Key == "" {
				report.add(SeverityError, CodeBadConfig, n.ID, "", "form field %q has no key", f.Label)
				continue
			}
			if seen[f.Key] {
				report.add(SeverityError, CodeBadConfig, n.ID, "", "form field key %q is used more than once", f.Key)
			}
			seen[f.Key] = true
		}
		checkUnbranched(report, n, out)

	case domain.NodeTypeWebhook:
		cfg, err := n.WebhookConfig()
		if err != nil {
			report.add(SeverityError, CodeBadConfig, n.ID, "", "%v", err)
		} else if cfg.URL == "" {
			report.add(SeverityWarning, CodeBadConfig, n.ID, "", "webhook has no url")
		}
		checkUnbranched(report, n, out)

	default:
		checkUnbranched(report, n, out)
	}
}

// checkUnbranched flags handles on nodes that follow their first edge.
func checkUnbranched(report *Report, n domain.Node, out []domain.Edge) {
	for _, e := range out {
		if h := e.Handle(); h != "" {
			report.add(SeverityWarning, CodeBadHandle, n.ID, e.ID, "handle %q is ignored on %s nodes", h, n.Type)
		}
	}
	if len(out) > 1 {
		report.add(SeverityWarning, CodeMissingBranch, n.ID, "", "%d outgoing edges; only the first is followed", len(out))
	}
}

func optionIndex(handle string) (int, bool) {
	if !strings.HasPrefix(handle, domain.OptionHandlePrefix) {
		return 0, false
	}
	idx, err := strconv.Atoi(strings.TrimPrefix(handle, domain.OptionHandlePrefix))
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}
