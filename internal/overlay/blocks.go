package overlay

import (
	"log/slog"
	"strings"

	"github.com/rendis/bpmnlens/internal/canvas"
	"github.com/rendis/bpmnlens/internal/graph"
	"github.com/rendis/bpmnlens/internal/metrics"
	"github.com/rendis/bpmnlens/pkg/schema"
)

// BlockManager owns the region shape of each flagged gateway. A gateway gets
// at most one shape, created on first need and reused until released.
type BlockManager struct {
	canvas canvas.Canvas
	state  *State
	logger *slog.Logger

	// owners maps a region shape to its split gateway; joins maps the
	// matched join gateway to it. Both serve hover resolution.
	owners map[canvas.ShapeHandle]string
	joins  map[string]string
}

func newBlockManager(c canvas.Canvas, state *State, logger *slog.Logger) *BlockManager {
	return &BlockManager{
		canvas: c,
		state:  state,
		logger: logger,
		owners: make(map[canvas.ShapeHandle]string),
		joins:  make(map[string]string),
	}
}

// EnsureBlock returns the region shape of gw, creating it if needed. It
// reports false when gw encloses no region or the canvas refused the shape.
func (m *BlockManager) EnsureBlock(gw *graph.Element, mostSevere schema.DeviationKind) (canvas.ShapeHandle, bool) {
	if gw == nil {
		return "", false
	}
	if h, ok := m.state.GatewayBlocks[gw.ID]; ok {
		return h, true
	}

	end := graph.FindNearestDownstreamGateway(m.canvas, gw)
	if end == nil {
		return "", false
	}
	region := graph.CollectElementsBetween(m.canvas, gw, end)
	if len(region) == 0 {
		return "", false
	}

	bounds := graph.ComputeBounds(region)
	h, err := m.canvas.CreateGroupShape(bounds, RegionStyle(mostSevere))
	if err != nil {
		m.logger.Warn("create gateway region failed", "gateway", gw.ID, "error", err)
		return "", false
	}

	m.state.GatewayBlocks[gw.ID] = h
	m.state.Visible[BlockKey(gw.ID)] = Handle{Shape: h}
	m.owners[h] = gw.ID
	if end.ID != gw.ID {
		if _, taken := m.joins[end.ID]; !taken {
			m.joins[end.ID] = gw.ID
		}
	}
	metrics.RecordGatewayBlock("create")
	m.logger.Debug("gateway region created", "gateway", gw.ID, "join", end.ID, "elements", len(region))
	return h, true
}

// ReleaseBlock removes the region shape of gatewayID together with every
// icon anchored to it and the gateway's icon positions.
func (m *BlockManager) ReleaseBlock(gatewayID string) {
	h, ok := m.state.GatewayBlocks[gatewayID]
	if ok {
		if err := m.canvas.RemoveShape(h); err != nil && !schema.IsCode(err, schema.ErrCodeNotFound) {
			m.logger.Warn("remove gateway region failed", "gateway", gatewayID, "error", err)
		}
		delete(m.owners, h)
		metrics.RecordGatewayBlock("release")
	}
	delete(m.state.GatewayBlocks, gatewayID)
	delete(m.state.Visible, BlockKey(gatewayID))

	prefix := gatewayID + "_"
	for key, handle := range m.state.Visible {
		if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, "_icon") {
			continue
		}
		// Removing the shape may already have taken its overlays along.
		if handle.Overlay != "" {
			if err := m.canvas.RemoveOverlay(handle.Overlay); err != nil && !schema.IsCode(err, schema.ErrCodeNotFound) {
				m.logger.Warn("remove gateway icon failed", "key", key, "error", err)
			}
		}
		delete(m.state.Visible, key)
	}
	delete(m.state.IconPositions, gatewayID)

	for join, split := range m.joins {
		if split == gatewayID {
			delete(m.joins, join)
		}
	}
}

// Resolve maps a hover target to the element that owns it: a region shape
// or the join gateway of a matched pair resolve to the split gateway.
func (m *BlockManager) Resolve(ev canvas.HoverEvent) string {
	if ev.Shape != "" {
		return m.owners[ev.Shape]
	}
	if split, ok := m.joins[ev.ElementID]; ok {
		return split
	}
	return ev.ElementID
}

func (m *BlockManager) reset() {
	m.owners = make(map[canvas.ShapeHandle]string)
	m.joins = make(map[string]string)
}
