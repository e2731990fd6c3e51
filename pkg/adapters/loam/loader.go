package loam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// Loader serves flows stored as documents in a Loam repository.
//
// Flows live at "<ownerId>/<flowId>.<ext>"; documents at the repository root
// belong to the empty owner. The repository is opened read-only, so Loader
// only implements the read side of ports.FlowStore.
type Loader struct {
	Repo *loam.TypedRepository[FlowDocument]
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[FlowDocument]) *Loader {
	return &Loader{
		Repo: repo,
	}
}

// Open initializes a strict, read-only Loam repository at dir and wraps it.
func Open(dir string) (*Loader, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	// Strict mode gives consistent numeric types (json.Number) across JSON and
	// YAML documents; read-only mode keeps Loam from creating a sandbox copy.
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[FlowDocument](repo)), nil
}

var _ ports.FlowLoader = (*Loader)(nil)
var _ ports.Watchable = (*Loader)(nil)

// LoadFlow reads and decodes one flow document.
func (l *Loader) LoadFlow(ctx context.Context, ownerID, flowID string) (*domain.Flow, error) {
	id := documentID(ownerID, flowID)
	doc, err := l.Repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || strings.Contains(strings.ToLower(err.Error()), "not found") {
			return nil, fmt.Errorf("%w: %s", domain.ErrFlowNotFound, id)
		}
		return nil, fmt.Errorf("loam get failed for %s: %w", id, err)
	}

	flow, err := decodeFlow(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidFlow, id, err)
	}
	flow.ID = flowID
	flow.OwnerID = ownerID
	return flow, nil
}

// decodeFlow re-encodes the loosely typed document through JSON so that node
// aliases and edge defaults are applied by the domain decoders.
func decodeFlow(doc FlowDocument) (*domain.Flow, error) {
	raw, err := json.Marshal(map[string]any{
		"flowName":      doc.Name,
		"websiteDomain": doc.WebsiteDomain,
		"nodes":         nonNil(doc.Nodes),
		"edges":         nonNil(doc.Edges),
	})
	if err != nil {
		return nil, err
	}
	var flow domain.Flow
	if err := json.Unmarshal(raw, &flow); err != nil {
		return nil, err
	}
	for i := range flow.Edges {
		if flow.Edges[i].Type == "" {
			flow.Edges[i].Type = domain.DefaultEdgeType
		}
	}
	return &flow, nil
}

func nonNil(v []map[string]any) []map[string]any {
	if v == nil {
		return []map[string]any{}
	}
	return v
}

// ListFlows lists the flows of an owner.
func (l *Loader) ListFlows(ctx context.Context, ownerID string) ([]domain.FlowSummary, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	out := make([]domain.FlowSummary, 0, len(docs))
	for _, doc := range docs {
		owner, flowID := splitDocumentID(doc.ID)
		if owner != ownerID {
			continue
		}
		// Collision Detection
		if existing, ok := seen[flowID]; ok {
			return nil, fmt.Errorf("collision detected: flow '%s' is defined in both '%s' and '%s'", flowID, existing, doc.ID)
		}
		seen[flowID] = doc.ID
		out = append(out, domain.FlowSummary{ID: flowID, OwnerID: owner, Name: doc.Data.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Watch implements ports.Watchable. It emits "<ownerId>/<flowId>" for every
// changed flow document.
func (l *Loader) Watch(ctx context.Context) (<-chan string, error) {
	events, err := l.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				select {
				case ch <- trimExtension(evt.ID):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

func documentID(ownerID, flowID string) string {
	if ownerID == "" {
		return flowID
	}
	return path.Join(ownerID, flowID)
}

func splitDocumentID(id string) (owner, flow string) {
	id = trimExtension(id)
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[:i], id[i+1:]
	}
	return "", id
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}
