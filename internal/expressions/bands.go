package expressions

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rendis/bpmnlens/pkg/schema"
)

// Band is one severity bucket of the legend. When is an expr predicate over
// the variable rate (a percentage in [0, 100]).
type Band struct {
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	When        string `json:"when" yaml:"when"`
}

// DefaultBands buckets deviation rates, most severe first.
var DefaultBands = []Band{
	{Label: "Critical", Description: "Deviation rate of 75% or more", When: "rate >= 75"},
	{Label: "High", Description: "Deviation rate from 50% to 75%", When: "rate >= 50"},
	{Label: "Medium", Description: "Deviation rate from 25% to 50%", When: "rate >= 25"},
	{Label: "Low", Description: "Deviation rate below 25%", When: "rate > 0"},
	{Label: "None", Description: "No deviations", When: "rate == 0"},
}

// rateEnv is the environment band predicates run against.
type rateEnv struct {
	Rate float64 `expr:"rate"`
}

// BandClassifier maps a deviation rate to the first band whose predicate holds.
// Bands are ordered most severe first. Safe for concurrent use.
type BandClassifier struct {
	bands    []Band
	programs []*vm.Program
}

// NewBandClassifier compiles every band predicate. Nil or empty bands select
// DefaultBands.
func NewBandClassifier(bands []Band) (*BandClassifier, error) {
	if len(bands) == 0 {
		bands = DefaultBands
	}
	c := &BandClassifier{bands: append([]Band(nil), bands...)}
	for _, b := range c.bands {
		if b.Label == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "legend band without label")
		}
		prg, err := expr.Compile(b.When, expr.Env(rateEnv{}))
		if err != nil {
			return nil, compileError("expr", b.When, err)
		}
		c.programs = append(c.programs, prg)
	}
	return c, nil
}

// Bands returns the configured bands, most severe first.
func (c *BandClassifier) Bands() []Band {
	return append([]Band(nil), c.bands...)
}

// Classify returns the matching band and its severity, where the first band
// has the highest severity. No match yields a zero Band and severity 0.
func (c *BandClassifier) Classify(ctx context.Context, rate float64) (Band, int, error) {
	env := rateEnv{Rate: rate}
	for i, prg := range c.programs {
		if err := ctx.Err(); err != nil {
			return Band{}, 0, err
		}
		b := c.bands[i]
		out, err := expr.Run(prg, env)
		if err != nil {
			return Band{}, 0, evalError("expr", b.When, err)
		}
		ok, isBool := out.(bool)
		if !isBool {
			return Band{}, 0, schema.NewErrorf(schema.ErrCodeExpression,
				"legend band %q predicate %q returned %T, want bool", b.Label, b.When, out)
		}
		if ok {
			return b, len(c.bands) - i, nil
		}
	}
	return Band{}, 0, nil
}
