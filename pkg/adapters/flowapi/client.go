// Package flowapi talks to the remote flow store: the HTTP document API the
// flow editor saves to, plus the account-level AI configuration endpoint.
package flowapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/go-resty/resty/v2"
)

// Defaults for the underlying HTTP client.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultRetryCount = 2
)

// Client implements ports.FlowStore and ports.ProviderConfigSource over HTTP.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Client.
type Option func(*Client)

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.http.SetAuthToken(token)
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// WithRetryCount overrides how many times failed requests are retried.
func WithRetryCount(n int) Option {
	return func(c *Client) {
		c.http.SetRetryCount(n)
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClock overrides the time source used to name edges that arrive without an id.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a client for the flow API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(DefaultTimeout).
			SetRetryCount(DefaultRetryCount).
			SetRetryWaitTime(100*time.Millisecond).
			SetHeader("Accept", "application/json"),
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func flowPath(ownerID string, flowID ...string) string {
	p := "/api/flow/" + url.PathEscape(ownerID)
	for _, id := range flowID {
		p += "/" + url.PathEscape(id)
	}
	return p
}

// LoadFlow fetches and normalizes a flow document.
func (c *Client) LoadFlow(ctx context.Context, ownerID, flowID string) (*domain.Flow, error) {
	resp, err := c.http.R().SetContext(ctx).Get(flowPath(ownerID, flowID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch flow %s: %w", flowID, err)
	}
	if err := statusError(resp, domain.ErrFlowNotFound); err != nil {
		return nil, fmt.Errorf("failed to fetch flow %s: %w", flowID, err)
	}

	flow, err := DecodeFlow(resp.Body(), c.now())
	if err != nil {
		return nil, err
	}
	flow.ID = flowID
	flow.OwnerID = ownerID
	c.logger.Debug("flow loaded", "owner_id", ownerID, "flow_id", flowID,
		"nodes", len(flow.Nodes), "edges", len(flow.Edges))
	return flow, nil
}

// SaveFlow creates the flow when it has no id, otherwise replaces it.
// On create, the id allocated by the server is written back to flow.ID.
func (c *Client) SaveFlow(ctx context.Context, flow *domain.Flow) error {
	body := map[string]any{
		"flowName":      flow.Name,
		"websiteDomain": flow.WebsiteDomain,
		"nodes":         flow.Nodes,
		"edges":         flow.Edges,
	}

	req := c.http.R().SetContext(ctx).SetBody(body)
	var (
		resp *resty.Response
		err  error
	)
	if flow.ID == "" {
		resp, err = req.Post(flowPath(flow.OwnerID))
	} else {
		resp, err = req.Put(flowPath(flow.OwnerID, flow.ID))
	}
	if err != nil {
		return fmt.Errorf("failed to save flow: %w", err)
	}
	if err := statusError(resp, domain.ErrFlowNotFound); err != nil {
		return fmt.Errorf("failed to save flow: %w", err)
	}

	if flow.ID == "" {
		parsed, err := gabs.ParseJSON(resp.Body())
		if err != nil {
			return fmt.Errorf("failed to decode created flow: %w", err)
		}
		for _, key := range []string{"id", "flowId", "_id"} {
			if id, ok := parsed.Path(key).Data().(string); ok && id != "" {
				flow.ID = id
				break
			}
		}
		if flow.ID == "" {
			return fmt.Errorf("flow store returned no id for the created flow")
		}
	}
	return nil
}

// ListFlows returns the flows of an owner sorted by id.
func (c *Client) ListFlows(ctx context.Context, ownerID string) ([]domain.FlowSummary, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/api/flow/user/" + url.PathEscape(ownerID))
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	if err := statusError(resp, nil); err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	parsed, err := gabs.ParseJSON(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("failed to decode flow list: %w", err)
	}
	items := parsed.Children()
	if parsed.Exists("flows") {
		items = parsed.Path("flows").Children()
	}

	out := make([]domain.FlowSummary, 0, len(items))
	for _, item := range items {
		id, _ := item.Path("id").Data().(string)
		if id == "" {
			id, _ = item.Path("_id").Data().(string)
		}
		if id == "" {
			continue
		}
		name, _ := item.Path("flowName").Data().(string)
		out = append(out, domain.FlowSummary{ID: id, OwnerID: ownerID, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteFlow removes a flow. Deleting a missing flow is not an error.
func (c *Client) DeleteFlow(ctx context.Context, ownerID, flowID string) error {
	resp, err := c.http.R().SetContext(ctx).Delete(flowPath(ownerID, flowID))
	if err != nil {
		return fmt.Errorf("failed to delete flow %s: %w", flowID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	if err := statusError(resp, nil); err != nil {
		return fmt.Errorf("failed to delete flow %s: %w", flowID, err)
	}
	return nil
}

// ProviderConfig reads the owner's AI settings: {provider, config:{apiKey, model}}.
func (c *Client) ProviderConfig(ctx context.Context, ownerID string) (domain.ProviderConfig, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/api/openai/" + url.PathEscape(ownerID))
	if err != nil {
		return domain.ProviderConfig{}, fmt.Errorf("failed to fetch provider config: %w", err)
	}
	if err := statusError(resp, nil); err != nil {
		return domain.ProviderConfig{}, fmt.Errorf("failed to fetch provider config: %w", err)
	}

	parsed, err := gabs.ParseJSON(resp.Body())
	if err != nil {
		return domain.ProviderConfig{}, fmt.Errorf("failed to decode provider config: %w", err)
	}
	str := func(path string) string {
		s, _ := parsed.Path(path).Data().(string)
		return s
	}
	cfg := domain.ProviderConfig{
		Name:   str("provider"),
		APIKey: str("config.apiKey"),
		Model:  str("config.model"),
	}
	if cfg.APIKey == "" {
		cfg.APIKey = str("apiKey")
	}
	if cfg.Model == "" {
		cfg.Model = str("model")
	}
	return cfg, nil
}

// statusError maps a non-2xx response to an error. notFound, when set, is
// returned for 404.
func statusError(resp *resty.Response, notFound error) error {
	if !resp.IsError() {
		return nil
	}
	if resp.StatusCode() == http.StatusNotFound && notFound != nil {
		return notFound
	}
	msg := strings.TrimSpace(string(resp.Body()))
	if parsed, err := gabs.ParseJSON(resp.Body()); err == nil {
		for _, key := range []string{"error", "message"} {
			if s, ok := parsed.Path(key).Data().(string); ok {
				msg = s
				break
			}
		}
	}
	if msg == "" {
		return fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode(), msg)
}

// DecodeFlow parses a flow document as the editor stores it and normalizes it:
// node types are mapped to known types, and edges get an id, null handles
// and the default type when missing.
func DecodeFlow(raw []byte, now time.Time) (*domain.Flow, error) {
	parsed, err := gabs.ParseJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFlow, err)
	}
	// Some deployments wrap the document: {"flow": {...}}.
	if parsed.Exists("flow", "nodes") {
		parsed = parsed.Path("flow")
	}
	if !parsed.Exists("nodes") {
		return nil, fmt.Errorf("%w: document has no nodes", domain.ErrInvalidFlow)
	}

	for _, edge := range parsed.Path("edges").Children() {
		source, _ := edge.Path("source").Data().(string)
		target, _ := edge.Path("target").Data().(string)
		if id, _ := edge.Path("id").Data().(string); id == "" {
			if _, err := edge.Set(fmt.Sprintf("edge-%s-%s-%d", source, target, now.UnixMilli()), "id"); err != nil {
				return nil, err
			}
		}
		for _, handle := range []string{"sourceHandle", "targetHandle"} {
			if !edge.Exists(handle) {
				if _, err := edge.Set(nil, handle); err != nil {
					return nil, err
				}
			}
		}
		if t, _ := edge.Path("type").Data().(string); t == "" {
			if _, err := edge.Set(domain.DefaultEdgeType, "type"); err != nil {
				return nil, err
			}
		}
	}

	var flow domain.Flow
	if err := json.Unmarshal(parsed.Bytes(), &flow); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFlow, err)
	}
	return &flow, nil
}
