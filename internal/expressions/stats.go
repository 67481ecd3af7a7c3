package expressions

import (
	"context"

	"github.com/itchyny/gojq"

	"github.com/rendis/bpmnlens/pkg/schema"
)

// DefaultStatsQuery selects an element's entry from the aggregation summary.
// The query input is {"summary": <snapshot>, "id": <element id>}.
const DefaultStatsQuery = `.summary.stageDetails[.id] // empty`

// StatsQuery extracts per-element statistics from a summary snapshot with a
// jq program, so deployments can follow whatever shape the aggregator sends.
// Safe for concurrent use.
type StatsQuery struct {
	code  *gojq.Code
	query string
}

// NewStatsQuery compiles query. An empty query selects DefaultStatsQuery.
func NewStatsQuery(query string) (*StatsQuery, error) {
	if query == "" {
		query = DefaultStatsQuery
	}
	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, compileError("jq", query, err)
	}
	code, err := gojq.Compile(parsed,
		// $ENV stays empty.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, compileError("jq", query, err)
	}
	return &StatsQuery{code: code, query: query}, nil
}

// Query returns the jq program in use.
func (q *StatsQuery) Query() string { return q.query }

// ElementStats returns the statistics object for elementID: the first output
// of the query. No output or a null output reports false without error.
func (q *StatsQuery) ElementStats(ctx context.Context, summary map[string]any, elementID string) (map[string]any, bool, error) {
	if summary == nil {
		return nil, false, nil
	}

	iter := q.code.RunWithContext(ctx, map[string]any{
		"summary": normalize(summary),
		"id":      elementID,
	})
	out, ok := iter.Next()
	if !ok {
		return nil, false, nil
	}

	switch v := out.(type) {
	case error:
		return nil, false, evalError("jq", q.query, v)
	case map[string]any:
		return v, true, nil
	case nil:
		return nil, false, nil
	default:
		return nil, false, schema.NewErrorf(schema.ErrCodeExpression,
			"stats query %q returned %T, want object", q.query, out).
			WithElement(elementID)
	}
}

// normalize converts Go numbers to the float64 jq works with. Summaries
// decoded from JSON already comply; hand-built ones may not.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = normalize(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = normalize(v)
		}
		return out
	case int, int32, int64, float32:
		return toFloat(val)
	default:
		return v
	}
}

// DeviationRate reads the deviationRate field of a statistics object.
func DeviationRate(stats map[string]any) float64 {
	return toFloat(stats["deviationRate"])
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	default:
		return 0
	}
}
