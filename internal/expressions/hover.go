package expressions

import (
	"context"

	"github.com/google/cel-go/cel"

	"github.com/rendis/bpmnlens/pkg/schema"
)

// HoverFilter decides with a CEL predicate whether hovering an element shows
// its statistics tooltip. The predicate sees three maps:
//   - element: id, name, kind and tracked
//   - stats:   the element's aggregated statistics
//   - summary: the whole latest summary snapshot
//
// Missing maps are bound as empty. Safe for concurrent use.
type HoverFilter struct {
	program    cel.Program
	expression string
}

// NewHoverFilter compiles expression against the element/stats/summary
// environment.
func NewHoverFilter(expression string) (*HoverFilter, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty hover filter")
	}
	mapType := cel.MapType(cel.StringType, cel.DynType)
	env, err := cel.NewEnv(
		cel.Variable("element", mapType),
		cel.Variable("stats", mapType),
		cel.Variable("summary", mapType),
	)
	if err != nil {
		return nil, compileError("CEL", expression, err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, compileError("CEL", expression, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, compileError("CEL", expression, err)
	}
	return &HoverFilter{program: prg, expression: expression}, nil
}

// Expression returns the CEL source.
func (f *HoverFilter) Expression() string { return f.expression }

// Allow evaluates the filter.
func (f *HoverFilter) Allow(ctx context.Context, element, stats, summary map[string]any) (bool, error) {
	out, _, err := f.program.ContextEval(ctx, map[string]any{
		"element": orEmpty(element),
		"stats":   orEmpty(stats),
		"summary": orEmpty(summary),
	})
	if err != nil {
		return false, evalError("CEL", f.expression, err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, schema.NewErrorf(schema.ErrCodeExpression,
			"hover filter %q returned %T, want bool", f.expression, out.Value())
	}
	return ok, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
