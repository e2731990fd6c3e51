package runtime

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/aretw0/chatflow/pkg/domain"
)

// ExprEvaluator decides condition nodes.
//
// The first configured source wins: an expr-lang expression over the session
// variables, a variable comparison, a literal value, then the default branch.
type ExprEvaluator struct{}

func (ExprEvaluator) Evaluate(ctx context.Context, cfg domain.ConditionConfig, vars map[string]any) (bool, error) {
	switch {
	case strings.TrimSpace(cfg.Expression) != "":
		env := make(map[string]any, len(vars))
		for k, v := range vars {
			env[k] = v
		}
		program, err := expr.Compile(cfg.Expression, expr.Env(env), expr.AllowUndefinedVariables(), expr.AsBool())
		if err != nil {
			return false, fmt.Errorf("compile %q: %w", cfg.Expression, err)
		}
		out, err := expr.Run(program, env)
		if err != nil {
			return false, fmt.Errorf("run %q: %w", cfg.Expression, err)
		}
		b, _ := out.(bool)
		return b, nil

	case cfg.Variable != "":
		v, ok := vars[cfg.Variable]
		if cfg.Equals != "" {
			return ok && strings.EqualFold(fmt.Sprint(v), cfg.Equals), nil
		}
		return truthy(v), nil

	case cfg.Value != nil:
		return *cfg.Value, nil
	}
	return strings.EqualFold(cfg.Default, domain.HandleYes), nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return false
		}
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		return !strings.EqualFold(s, "no")
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	}
	return true
}
