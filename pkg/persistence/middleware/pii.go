package middleware

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// Mask replaces masked values.
const Mask = "***"

type piiMiddleware struct {
	next     ports.StateStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks variables whose name matches
// one of the patterns. The answers those variables were captured from are
// masked in the transcript too. The caller's state is never modified.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PII pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.StateStore) ports.StateStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, sessionID string, state *domain.State) error {
	cloned := state.Clone()
	cloned.Variables = deepCopyMap(state.Variables)

	secrets := maskMap(cloned.Variables, m.patterns)
	if len(secrets) > 0 {
		for i, turn := range cloned.Transcript {
			if turn.Role != domain.RoleUser {
				continue
			}
			for _, secret := range secrets {
				if secret != "" && strings.Contains(turn.Text, secret) {
					cloned.Transcript[i].Text = strings.ReplaceAll(cloned.Transcript[i].Text, secret, Mask)
				}
			}
		}
	}

	return m.next.Save(ctx, sessionID, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.State, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}

// maskMap masks matching keys in place and returns the string values it hid.
func maskMap(m map[string]any, patterns []*regexp.Regexp) []string {
	var hidden []string
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			hidden = append(hidden, maskMap(subMap, patterns)...)
			continue
		}
		for _, p := range patterns {
			if p.MatchString(k) {
				if s, ok := v.(string); ok {
					hidden = append(hidden, s)
				}
				m[k] = Mask
				break
			}
		}
	}
	return hidden
}
