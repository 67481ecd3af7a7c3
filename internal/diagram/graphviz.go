package diagram

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// Format is an image format supported by RenderImage.
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
	FormatDOT Format = "dot"
)

// RenderImage renders a DiagramModel with graphviz. Regions become dashed
// clusters, red when their gateway is flagged.
func RenderImage(ctx context.Context, model *DiagramModel, format Format) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	g, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer g.Close()

	g.SetRankDir(cgraph.LRRank)
	if model.Title != "" {
		g.SetLabel(model.Title)
	}

	// Clusters first so region nodes are created inside them.
	parent := make(map[string]*cgraph.Graph)
	for _, r := range model.Regions {
		sub, subErr := g.CreateSubGraphByName("cluster_" + r.GatewayID)
		if subErr != nil {
			return nil, fmt.Errorf("diagram: create cluster %s: %w", r.GatewayID, subErr)
		}
		sub.SetLabel(r.GatewayID + " .. " + r.EndID)
		sub.SetStyle(cgraph.DashedGraphStyle)
		if r.Flagged {
			if err := sub.SafeSet("pencolor", "red", "black"); err != nil {
				return nil, fmt.Errorf("diagram: style cluster %s: %w", r.GatewayID, err)
			}
			if err := sub.SafeSet("penwidth", "2", "1"); err != nil {
				return nil, fmt.Errorf("diagram: style cluster %s: %w", r.GatewayID, err)
			}
		}
		for _, id := range r.NodeIDs {
			parent[id] = sub
		}
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		owner := g
		if sub, ok := parent[node.ID]; ok {
			owner = sub
		}
		gvNode, nErr := owner.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		gvNode.SetLabel(flagLabel(node.Label, node.Overlay, "\n"))
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV == nil || toGV == nil {
			continue
		}
		e, eErr := g.CreateEdgeByName("", fromGV, toGV)
		if eErr == nil && edge.Label != "" {
			e.SetLabel(edge.Label)
		}
	}

	var gvFormat graphviz.Format
	switch format {
	case FormatPNG, "":
		gvFormat = graphviz.PNG
	case FormatSVG:
		gvFormat = graphviz.SVG
	case FormatDOT:
		gvFormat = graphviz.XDOT
	default:
		return nil, fmt.Errorf("diagram: unsupported format %q", format)
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, gvFormat, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", strings.ToUpper(string(format)), err)
	}
	return buf.Bytes(), nil
}

// applyNodeStyle sets graphviz attributes based on node kind and overlay.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case NodeKindTask:
		gvNode.SetShape(cgraph.BoxShape)
		gvNode.SetStyle(cgraph.RoundedNodeStyle)
	case NodeKindExclusive, NodeKindInclusive, NodeKindParallel:
		gvNode.SetShape(cgraph.DiamondShape)
	case NodeKindEvent:
		gvNode.SetShape(cgraph.CircleShape)
		gvNode.SetWidth(0.5)
		gvNode.SetHeight(0.5)
	default:
		gvNode.SetShape(cgraph.NoteShape)
	}

	if ov := node.Overlay; ov != nil {
		if ov.Fill != "" {
			gvNode.SetStyle(cgraph.FilledNodeStyle)
			gvNode.SetFillColor(ov.Fill)
		}
		if ov.Stroke != "" {
			gvNode.SetColor(ov.Stroke)
		}
	}
}
