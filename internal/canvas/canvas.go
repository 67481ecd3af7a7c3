// Package canvas describes the capability surface of the diagram rendering
// widget. The widget owns rendering and layout; the overlay engine only asks it
// to look up elements, draw group shapes, color targets and attach overlays.
package canvas

import (
	"github.com/rendis/bpmnlens/internal/graph"
	"github.com/rendis/bpmnlens/pkg/schema"
)

// ShapeHandle identifies a shape created by the widget.
type ShapeHandle string

// OverlayHandle identifies an overlay attached by the widget.
type OverlayHandle string

// Target is either a diagram element or a shape created through the canvas.
// Exactly one field is set.
type Target struct {
	ElementID string      `json:"element_id,omitempty"`
	Shape     ShapeHandle `json:"shape,omitempty"`
}

// ElementTarget targets a diagram element.
func ElementTarget(id string) Target { return Target{ElementID: id} }

// ShapeTarget targets a created shape.
func ShapeTarget(h ShapeHandle) Target { return Target{Shape: h} }

func (t Target) String() string {
	if t.Shape != "" {
		return "shape:" + string(t.Shape)
	}
	return t.ElementID
}

// Position anchors an overlay relative to its target. At most one of Left
// and Right is set.
type Position struct {
	Top   float64  `json:"top"`
	Left  *float64 `json:"left,omitempty"`
	Right *float64 `json:"right,omitempty"`
}

// AtLeft builds a top/left anchored position.
func AtLeft(top, left float64) Position { return Position{Top: top, Left: &left} }

// AtRight builds a top/right anchored position.
func AtRight(top, right float64) Position { return Position{Top: top, Right: &right} }

// ShapeStyle is the visual style of a group shape.
type ShapeStyle struct {
	Stroke          string  `json:"stroke"`
	StrokeWidth     float64 `json:"stroke_width"`
	StrokeDasharray string  `json:"stroke_dasharray,omitempty"`
	Fill            string  `json:"fill"`
	FillOpacity     float64 `json:"fill_opacity"`
}

// HoverEvent is a pointer enter or leave on an element or a created shape.
type HoverEvent struct {
	ElementID string      `json:"element_id,omitempty"`
	Shape     ShapeHandle `json:"shape,omitempty"`
	Out       bool        `json:"out,omitempty"`
}

// HoverHandler receives hover events.
type HoverHandler func(HoverEvent)

// Subscription is returned by OnHover and released with Dispose.
type Subscription interface {
	Dispose()
}

// Canvas is the rendering collaborator used by the overlay engine.
type Canvas interface {
	graph.Lookup

	CreateGroupShape(bounds graph.Rect, style ShapeStyle) (ShapeHandle, error)
	// SetColor applies color to target; nil resets it to the widget default.
	SetColor(target Target, color *schema.Color) error
	AddOverlay(target Target, pos Position, html string) (OverlayHandle, error)
	RemoveOverlay(h OverlayHandle) error
	RemoveShape(h ShapeHandle) error
	OnHover(fn HoverHandler) Subscription
}
