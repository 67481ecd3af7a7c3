package diagram

import (
	"sort"
	"strings"

	"github.com/rendis/bpmnlens/internal/graph"
	"github.com/rendis/bpmnlens/internal/overlay"
)

// Input selects what Build draws.
type Input struct {
	Title string
	Graph *graph.Graph
	Names map[string]string
	// State, when set, colors nodes and marks the gateways holding a region shape.
	State *overlay.Snapshot
	// AllRegions draws the region of every gateway, not only flagged ones.
	AllRegions bool
}

// Build constructs a DiagramModel from an element graph and optional overlay
// state. Sequence flows and groups are not drawn as nodes.
func Build(in Input) *DiagramModel {
	model := &DiagramModel{Title: in.Title}
	if model.Title == "" {
		model.Title = "Process"
	}
	if in.Graph == nil {
		return model
	}

	for _, e := range in.Graph.Elements() {
		if e.Kind == graph.KindSequenceFlow || e.Kind == graph.KindGroup {
			continue
		}
		node := &Node{ID: e.ID, Label: label(e, in.Names), Kind: kindOf(e.Kind)}
		if in.State != nil {
			node.Overlay = nodeOverlay(in.State.Blocks[e.ID])
		}
		model.Nodes = append(model.Nodes, node)

		for _, f := range e.Outgoing {
			if _, ok := in.Graph.Element(f.TargetID); ok {
				model.Edges = append(model.Edges, Edge{From: e.ID, To: f.TargetID})
			}
		}
	}

	model.Regions = buildRegions(in)
	return model
}

func label(e *graph.Element, names map[string]string) string {
	if n, ok := names[e.ID]; ok && n != "" {
		return n
	}
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}

func kindOf(k graph.Kind) NodeKind {
	switch k {
	case graph.KindTask:
		return NodeKindTask
	case graph.KindEvent:
		return NodeKindEvent
	case graph.KindExclusiveGateway:
		return NodeKindExclusive
	case graph.KindInclusiveGateway:
		return NodeKindInclusive
	case graph.KindParallelGateway:
		return NodeKindParallel
	default:
		return NodeKindOther
	}
}

func nodeOverlay(props overlay.BlockProperties) *NodeOverlay {
	if props.Color == nil && len(props.Flags) == 0 {
		return nil
	}
	ov := &NodeOverlay{}
	if c := props.Color; c != nil {
		ov.Stroke, ov.Fill = c.Stroke, c.Fill
		if c.Name != "" {
			if pc, ok := overlay.AggregationPalette[strings.ToUpper(c.Name)]; ok {
				ov.Stroke, ov.Fill = pc.Stroke, pc.Fill
			}
		}
	}
	for _, k := range props.Flags {
		ov.Flags = append(ov.Flags, string(k))
	}
	return ov
}

// buildRegions computes regions in gateway ID order. Nodes already claimed by
// an earlier region are left out of later ones.
func buildRegions(in Input) []*Region {
	var gateways []string
	flagged := make(map[string]bool)
	if in.State != nil {
		for id := range in.State.GatewayBlocks {
			flagged[id] = true
		}
	}
	for _, e := range in.Graph.Elements() {
		if e.IsGateway() && (in.AllRegions || flagged[e.ID]) {
			gateways = append(gateways, e.ID)
		}
	}
	sort.Strings(gateways)

	claimed := make(map[string]bool)
	var regions []*Region
	for _, id := range gateways {
		gw, _ := in.Graph.Element(id)
		end := graph.FindNearestDownstreamGateway(in.Graph, gw)
		if end == nil {
			continue
		}
		r := &Region{GatewayID: id, EndID: end.ID, Flagged: flagged[id]}
		for _, e := range graph.CollectElementsBetween(in.Graph, gw, end) {
			if claimed[e.ID] {
				continue
			}
			claimed[e.ID] = true
			r.NodeIDs = append(r.NodeIDs, e.ID)
		}
		if len(r.NodeIDs) > 0 {
			regions = append(regions, r)
		}
	}
	return regions
}

// regionOf indexes node IDs by the region that holds them.
func regionOf(model *DiagramModel) map[string]*Region {
	out := make(map[string]*Region)
	for _, r := range model.Regions {
		for _, id := range r.NodeIDs {
			out[id] = r
		}
	}
	return out
}

// flagLabel appends the flag kinds to a label, one per line.
func flagLabel(label string, ov *NodeOverlay, sep string) string {
	if ov == nil || len(ov.Flags) == 0 {
		return label
	}
	return label + sep + strings.Join(ov.Flags, sep)
}

