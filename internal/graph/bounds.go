package graph

import "math"

const (
	// RegionPadding is added on every side of a gateway region.
	RegionPadding = 10
	// RegionHeaderPadding is added above RegionPadding; flag icons render there.
	RegionHeaderPadding = 25
)

// Rect is an axis-aligned rectangle in diagram coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsZero reports whether r is the zero rectangle.
func (r Rect) IsZero() bool {
	return r == Rect{}
}

// ComputeBounds returns the padded rectangle covering every element that has
// geometry. Elements without geometry are ignored; with none left the zero
// Rect is returned.
func ComputeBounds(elements []*Element) Rect {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	found := false

	for _, e := range elements {
		if e == nil || e.Geometry == nil {
			continue
		}
		found = true
		g := e.Geometry
		minX = math.Min(minX, g.X)
		minY = math.Min(minY, g.Y)
		maxX = math.Max(maxX, g.X+g.Width)
		maxY = math.Max(maxY, g.Y+g.Height)
	}

	if !found {
		return Rect{}
	}

	return Rect{
		X:      minX - RegionPadding,
		Y:      minY - RegionPadding - RegionHeaderPadding,
		Width:  maxX - minX + 2*RegionPadding,
		Height: maxY - minY + 2*RegionPadding + RegionHeaderPadding,
	}
}
