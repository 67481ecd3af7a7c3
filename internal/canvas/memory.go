package canvas

import (
	"sync"

	"github.com/google/uuid"

	"github.com/rendis/bpmnlens/internal/graph"
	"github.com/rendis/bpmnlens/pkg/schema"
)

// OpKind names a canvas operation in the journal.
type OpKind string

const (
	OpCreateShape   OpKind = "create_shape"
	OpRemoveShape   OpKind = "remove_shape"
	OpSetColor      OpKind = "set_color"
	OpAddOverlay    OpKind = "add_overlay"
	OpRemoveOverlay OpKind = "remove_overlay"
	OpReset         OpKind = "reset"
)

// Op is one journaled canvas mutation. The browser widget replays these.
type Op struct {
	Kind     OpKind        `json:"op"`
	Shape    ShapeHandle   `json:"shape,omitempty"`
	Overlay  OverlayHandle `json:"overlay,omitempty"`
	Target   *Target       `json:"target,omitempty"`
	Bounds   *graph.Rect   `json:"bounds,omitempty"`
	Style    *ShapeStyle   `json:"style,omitempty"`
	Color    *schema.Color `json:"color,omitempty"`
	Position *Position     `json:"position,omitempty"`
	HTML     string        `json:"html,omitempty"`
}

// OverlayRecord is a live overlay held by a MemoryCanvas.
type OverlayRecord struct {
	Target   Target
	Position Position
	HTML     string
}

// ShapeRecord is a live group shape held by a MemoryCanvas.
type ShapeRecord struct {
	Bounds graph.Rect
	Style  ShapeStyle
}

// MemoryCanvas is a headless Canvas. It keeps the live shape, overlay and
// color state in memory and forwards every mutation to an optional sink, which
// the panel streams to the browser. Safe for concurrent use.
type MemoryCanvas struct {
	mu       sync.RWMutex
	lookup   graph.Lookup
	shapes   map[ShapeHandle]ShapeRecord
	overlays map[OverlayHandle]OverlayRecord
	colors   map[Target]*schema.Color
	hover    map[uint64]HoverHandler
	nextSub  uint64
	sink     func(Op)
}

// NewMemoryCanvas creates a canvas over the given element graph. sink may be nil.
func NewMemoryCanvas(lookup graph.Lookup, sink func(Op)) *MemoryCanvas {
	if lookup == nil {
		lookup = graph.New()
	}
	return &MemoryCanvas{
		lookup:   lookup,
		shapes:   make(map[ShapeHandle]ShapeRecord),
		overlays: make(map[OverlayHandle]OverlayRecord),
		colors:   make(map[Target]*schema.Color),
		hover:    make(map[uint64]HoverHandler),
		sink:     sink,
	}
}

// Load replaces the element graph and drops every shape, overlay and color,
// as importing a new model into the widget does.
func (c *MemoryCanvas) Load(lookup graph.Lookup) {
	c.mu.Lock()
	if lookup == nil {
		lookup = graph.New()
	}
	c.lookup = lookup
	c.shapes = make(map[ShapeHandle]ShapeRecord)
	c.overlays = make(map[OverlayHandle]OverlayRecord)
	c.colors = make(map[Target]*schema.Color)
	c.mu.Unlock()

	c.emit(Op{Kind: OpReset})
}

// Element implements graph.Lookup.
func (c *MemoryCanvas) Element(id string) (*graph.Element, bool) {
	c.mu.RLock()
	lookup := c.lookup
	c.mu.RUnlock()
	return lookup.Element(id)
}

// CreateGroupShape implements Canvas.
func (c *MemoryCanvas) CreateGroupShape(bounds graph.Rect, style ShapeStyle) (ShapeHandle, error) {
	h := ShapeHandle("shape_" + uuid.NewString())

	c.mu.Lock()
	c.shapes[h] = ShapeRecord{Bounds: bounds, Style: style}
	c.mu.Unlock()

	c.emit(Op{Kind: OpCreateShape, Shape: h, Bounds: &bounds, Style: &style})
	return h, nil
}

// SetColor implements Canvas.
func (c *MemoryCanvas) SetColor(target Target, color *schema.Color) error {
	c.mu.Lock()
	if err := c.checkTarget(target); err != nil {
		c.mu.Unlock()
		return err
	}
	if color == nil {
		delete(c.colors, target)
	} else {
		cp := *color
		c.colors[target] = &cp
	}
	c.mu.Unlock()

	c.emit(Op{Kind: OpSetColor, Target: &target, Color: color})
	return nil
}

// AddOverlay implements Canvas.
func (c *MemoryCanvas) AddOverlay(target Target, pos Position, html string) (OverlayHandle, error) {
	h := OverlayHandle("overlay_" + uuid.NewString())

	c.mu.Lock()
	if err := c.checkTarget(target); err != nil {
		c.mu.Unlock()
		return "", err
	}
	c.overlays[h] = OverlayRecord{Target: target, Position: pos, HTML: html}
	c.mu.Unlock()

	c.emit(Op{Kind: OpAddOverlay, Overlay: h, Target: &target, Position: &pos, HTML: html})
	return h, nil
}

// RemoveOverlay implements Canvas.
func (c *MemoryCanvas) RemoveOverlay(h OverlayHandle) error {
	c.mu.Lock()
	if _, ok := c.overlays[h]; !ok {
		c.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeNotFound, "overlay %s not found", h)
	}
	delete(c.overlays, h)
	c.mu.Unlock()

	c.emit(Op{Kind: OpRemoveOverlay, Overlay: h})
	return nil
}

// RemoveShape implements Canvas. Overlays attached to the shape go with it.
func (c *MemoryCanvas) RemoveShape(h ShapeHandle) error {
	c.mu.Lock()
	if _, ok := c.shapes[h]; !ok {
		c.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeNotFound, "shape %s not found", h)
	}
	delete(c.shapes, h)
	for oh, rec := range c.overlays {
		if rec.Target.Shape == h {
			delete(c.overlays, oh)
		}
	}
	delete(c.colors, ShapeTarget(h))
	c.mu.Unlock()

	c.emit(Op{Kind: OpRemoveShape, Shape: h})
	return nil
}

// OnHover implements Canvas.
func (c *MemoryCanvas) OnHover(fn HoverHandler) Subscription {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.hover[id] = fn
	c.mu.Unlock()

	return &hoverSub{canvas: c, id: id}
}

// Emit delivers a hover event to every registered handler. The panel calls it
// when the browser reports pointer movement.
func (c *MemoryCanvas) Emit(ev HoverEvent) {
	c.mu.RLock()
	handlers := make([]HoverHandler, 0, len(c.hover))
	for _, fn := range c.hover {
		handlers = append(handlers, fn)
	}
	c.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// Overlays returns a snapshot of the live overlays.
func (c *MemoryCanvas) Overlays() map[OverlayHandle]OverlayRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[OverlayHandle]OverlayRecord, len(c.overlays))
	for k, v := range c.overlays {
		out[k] = v
	}
	return out
}

// Shapes returns a snapshot of the live group shapes.
func (c *MemoryCanvas) Shapes() map[ShapeHandle]ShapeRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[ShapeHandle]ShapeRecord, len(c.shapes))
	for k, v := range c.shapes {
		out[k] = v
	}
	return out
}

// ColorOf returns the color applied to target, or nil.
func (c *MemoryCanvas) ColorOf(target Target) *schema.Color {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.colors[target]
}

// HoverSubscribers returns the number of live hover subscriptions.
func (c *MemoryCanvas) HoverSubscribers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hover)
}

// checkTarget must be called with mu held.
func (c *MemoryCanvas) checkTarget(t Target) error {
	if t.Shape != "" {
		if _, ok := c.shapes[t.Shape]; !ok {
			return schema.NewErrorf(schema.ErrCodeNotFound, "shape %s not found", t.Shape)
		}
		return nil
	}
	if _, ok := c.lookup.Element(t.ElementID); !ok {
		return schema.NewError(schema.ErrCodeNotFound, "element not found").WithElement(t.ElementID)
	}
	return nil
}

func (c *MemoryCanvas) emit(op Op) {
	if c.sink != nil {
		c.sink(op)
	}
}

type hoverSub struct {
	canvas *MemoryCanvas
	id     uint64
	once   sync.Once
}

func (s *hoverSub) Dispose() {
	s.once.Do(func() {
		s.canvas.mu.Lock()
		delete(s.canvas.hover, s.id)
		s.canvas.mu.Unlock()
	})
}
