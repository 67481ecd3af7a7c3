package overlay

import (
	"strings"

	"github.com/rendis/bpmnlens/internal/canvas"
	"github.com/rendis/bpmnlens/pkg/schema"
)

// Mode names a reconciliation policy.
type Mode string

const (
	ModeInstance    Mode = "instance"
	ModeAggregation Mode = "aggregation"
)

// Policy is what differs between the instance and aggregation views; the
// reconciliation algorithm itself is shared.
type Policy struct {
	Mode Mode
	// ColorGateways applies report colors to gateway glyphs too.
	ColorGateways bool
	// GatewayRegions draws a region shape for flagged gateways and anchors
	// their icons to it.
	GatewayRegions bool
	// Palette resolves named colors ("RED") to stroke/fill pairs.
	Palette map[string]schema.Color
	Markup  func(flag schema.DeviationFlag, name NameFunc) string
}

// InstancePolicy colors tasks and events directly and highlights flagged
// gateways with a region shape.
func InstancePolicy() Policy {
	return Policy{
		Mode:           ModeInstance,
		GatewayRegions: true,
		Markup:         IconMarkup,
	}
}

// AggregationPalette is the named severity palette of the aggregation view.
var AggregationPalette = map[string]schema.Color{
	"GREEN":    {Stroke: "#90EE90", Fill: "#90EE90"},
	"YELLOW":   {Stroke: "#FFFF99", Fill: "#FFFF99"},
	"ORANGE":   {Stroke: "#FFA500", Fill: "#FFA500"},
	"RED":      {Stroke: "#FF6B6B", Fill: "#FF6B6B"},
	"DARK_RED": {Stroke: "#CC0000", Fill: "#CC0000"},
}

// Defaults for a named color missing from the palette.
const (
	defaultStroke = "#000000"
	defaultFill   = "#FFFFFF"
)

// AggregationPolicy colors every element, gateways included, from the named
// palette and renders severity badges on the element itself.
func AggregationPolicy() Policy {
	return Policy{
		Mode:          ModeAggregation,
		ColorGateways: true,
		Palette:       AggregationPalette,
		Markup:        BadgeMarkup,
	}
}

// resolve turns a report color into the stroke/fill pair sent to the canvas.
func (p Policy) resolve(c *schema.Color) *schema.Color {
	if c == nil {
		return nil
	}
	if c.Name == "" {
		return c
	}
	if pc, ok := p.Palette[strings.ToUpper(c.Name)]; ok {
		return &schema.Color{Stroke: pc.Stroke, Fill: pc.Fill, Name: c.Name}
	}
	return &schema.Color{Stroke: defaultStroke, Fill: defaultFill, Name: c.Name}
}

// Region shape style.
const (
	regionStroke      = "red"
	regionStrokeWidth = 2
	regionDasharray   = "4,2"
	regionFillOpacity = 0.12
	regionNeutralFill = "#E0E0E0"
)

var severityFill = map[schema.DeviationKind]string{
	schema.DeviationIncorrectExecution: "#FF6B6B",
	schema.DeviationIncorrectBranch:    "#FF6B6B",
	schema.DeviationSkipped:            "#FFA500",
	schema.DeviationIncomplete:         "#FFFF99",
	schema.DeviationOverlap:            "#ADD8E6",
	schema.DeviationMultiExecution:     "#D8BFD8",
}

// RegionStyle is the dashed red region style, filled by the most severe
// pending flag or neutral when there is none.
func RegionStyle(mostSevere schema.DeviationKind) canvas.ShapeStyle {
	fill, ok := severityFill[mostSevere]
	if !ok {
		fill = regionNeutralFill
	}
	return canvas.ShapeStyle{
		Stroke:          regionStroke,
		StrokeWidth:     regionStrokeWidth,
		StrokeDasharray: regionDasharray,
		Fill:            fill,
		FillOpacity:     regionFillOpacity,
	}
}
