// Package expressions compiles the deployment-configurable expressions of the
// overlay engine: a jq query locating element statistics in the aggregation
// summary, expr predicates bucketing deviation rates into legend bands, and a
// CEL filter deciding which elements show a tooltip.
package expressions

import "github.com/rendis/bpmnlens/pkg/schema"

func compileError(lang, expression string, err error) error {
	return schema.NewErrorf(schema.ErrCodeValidation,
		"%s compile error in %q: %s", lang, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

func evalError(lang, expression string, err error) error {
	return schema.NewErrorf(schema.ErrCodeExpression,
		"%s evaluation failed for %q: %s", lang, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}
