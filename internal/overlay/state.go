package overlay

import (
	"github.com/rendis/bpmnlens/internal/canvas"
	"github.com/rendis/bpmnlens/pkg/schema"
)

// TooltipKey is the registry key of the single hover tooltip overlay.
const TooltipKey = "aggregation-overlay"

// FlagKey is the registry key of a flag icon attached to an element.
func FlagKey(elementID string, kind schema.DeviationKind) string {
	return elementID + "_" + string(kind)
}

// IconKey is the registry key of a flag icon attached to a gateway region.
func IconKey(gatewayID string, kind schema.DeviationKind) string {
	return gatewayID + "_" + string(kind) + "_icon"
}

// BlockKey is the registry key of a gateway region shape.
func BlockKey(gatewayID string) string {
	return gatewayID + "_gateway_block"
}

// Handle references what a registry key draws: an overlay or a shape.
type Handle struct {
	Overlay canvas.OverlayHandle `json:"overlay,omitempty"`
	Shape   canvas.ShapeHandle   `json:"shape,omitempty"`
}

// BlockProperties is the cached state of one tracked element.
type BlockProperties struct {
	Color *schema.Color          `json:"color,omitempty"`
	Flags []schema.DeviationKind `json:"flags"`
}

// Has reports whether kind is in the cached flag set.
func (p *BlockProperties) Has(kind schema.DeviationKind) bool {
	for _, k := range p.Flags {
		if k == kind {
			return true
		}
	}
	return false
}

func (p *BlockProperties) add(kind schema.DeviationKind) {
	if !p.Has(kind) {
		p.Flags = append(p.Flags, kind)
	}
}

func (p *BlockProperties) remove(kind schema.DeviationKind) {
	out := p.Flags[:0]
	for _, k := range p.Flags {
		if k != kind {
			out = append(out, k)
		}
	}
	p.Flags = out
}

// State holds the four per-diagram registries. One State belongs to exactly
// one loaded diagram; replacing the diagram clears it.
type State struct {
	Blocks        map[string]*BlockProperties
	IconPositions map[string]map[schema.DeviationKind]int
	GatewayBlocks map[string]canvas.ShapeHandle
	Visible       map[string]Handle
}

// NewState creates empty registries.
func NewState() *State {
	s := &State{}
	s.Clear()
	return s
}

// Clear drops every registry entry.
func (s *State) Clear() {
	s.Blocks = make(map[string]*BlockProperties)
	s.IconPositions = make(map[string]map[schema.DeviationKind]int)
	s.GatewayBlocks = make(map[string]canvas.ShapeHandle)
	s.Visible = make(map[string]Handle)
}

// Empty reports whether all four registries are empty.
func (s *State) Empty() bool {
	return len(s.Blocks) == 0 && len(s.IconPositions) == 0 &&
		len(s.GatewayBlocks) == 0 && len(s.Visible) == 0
}

// Snapshot is a copy of the registries safe to hand out.
type Snapshot struct {
	Blocks        map[string]BlockProperties              `json:"blocks"`
	IconPositions map[string]map[schema.DeviationKind]int `json:"icon_positions"`
	GatewayBlocks map[string]canvas.ShapeHandle           `json:"gateway_blocks"`
	Visible       map[string]Handle                       `json:"visible"`
}

// Empty reports whether the copied registries are all empty.
func (s Snapshot) Empty() bool {
	return len(s.Blocks) == 0 && len(s.IconPositions) == 0 &&
		len(s.GatewayBlocks) == 0 && len(s.Visible) == 0
}

// Snapshot copies the registries.
func (s *State) Snapshot() Snapshot {
	out := Snapshot{
		Blocks:        make(map[string]BlockProperties, len(s.Blocks)),
		IconPositions: make(map[string]map[schema.DeviationKind]int, len(s.IconPositions)),
		GatewayBlocks: make(map[string]canvas.ShapeHandle, len(s.GatewayBlocks)),
		Visible:       make(map[string]Handle, len(s.Visible)),
	}
	for id, p := range s.Blocks {
		cp := BlockProperties{Flags: append([]schema.DeviationKind{}, p.Flags...)}
		if p.Color != nil {
			c := *p.Color
			cp.Color = &c
		}
		out.Blocks[id] = cp
	}
	for id, positions := range s.IconPositions {
		m := make(map[schema.DeviationKind]int, len(positions))
		for k, v := range positions {
			m[k] = v
		}
		out.IconPositions[id] = m
	}
	for k, v := range s.GatewayBlocks {
		out.GatewayBlocks[k] = v
	}
	for k, v := range s.Visible {
		out.Visible[k] = v
	}
	return out
}

// stableOffset returns the pixel offset of kind on elementID, assigning
// count*IconSpacing on first use. Offsets are never recomputed.
func (s *State) stableOffset(elementID string, kind schema.DeviationKind) int {
	positions, ok := s.IconPositions[elementID]
	if !ok {
		positions = make(map[schema.DeviationKind]int)
		s.IconPositions[elementID] = positions
	}
	if off, ok := positions[kind]; ok {
		return off
	}
	off := nextOffset(positions)
	positions[kind] = off
	return off
}

// nextOffset is one slot past the highest assigned offset. With no removals
// this equals count*IconSpacing; after a removal it keeps new kinds strictly
// to the right of every surviving icon.
func nextOffset(positions map[schema.DeviationKind]int) int {
	next := len(positions) * IconSpacing
	for _, off := range positions {
		if off+IconSpacing > next {
			next = off + IconSpacing
		}
	}
	return next
}

func (s *State) dropPosition(elementID string, kind schema.DeviationKind) {
	positions, ok := s.IconPositions[elementID]
	if !ok {
		return
	}
	delete(positions, kind)
	if len(positions) == 0 {
		delete(s.IconPositions, elementID)
	}
}
