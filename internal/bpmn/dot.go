package bpmn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"

	"github.com/rendis/bpmnlens/internal/graph"
	"github.com/rendis/bpmnlens/pkg/schema"
)

// ParseDOT imports a directed DOT graph. Node attributes:
//
//	comment  BPMN type ("bpmn:ExclusiveGateway"); wins over shape
//	shape    diamond = exclusive gateway, box = task, circle = event
//	label    display name
//	pos      "x,y" of the top-left corner in diagram units
//	width    shape width in diagram units (default 100)
//	height   shape height in diagram units (default 80)
//
// Edge attribute id names the sequence flow; unnamed flows get "Flow_<n>".
func ParseDOT(dot string) (*Document, error) {
	ast, err := gographviz.ParseString(dot)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "failed to parse DOT").WithCause(err)
	}
	dg := gographviz.NewGraph()
	if err := gographviz.Analyse(ast, dg); err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "failed to analyze DOT").WithCause(err)
	}

	g := graph.New()
	names := make(map[string]string, len(dg.Nodes.Nodes))
	for _, n := range dg.Nodes.Nodes {
		id := unquote(n.Name)
		typ := getAttr(n.Attrs, "comment")
		kind := graph.ClassifyKind(typ)
		if typ == "" {
			kind = kindOfShape(getAttr(n.Attrs, "shape"))
		}

		geo, err := dotGeometry(n.Attrs)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeDecode, "node %s: %s", id, err.Error()).
				WithElement(id).WithCause(err)
		}

		name := getAttr(n.Attrs, "label")
		g.Add(&graph.Element{ID: id, Name: name, Type: typ, Kind: kind, Geometry: geo})
		if name == "" {
			name = id
		}
		names[id] = name
	}

	for i, e := range dg.Edges.Edges {
		id := getAttr(e.Attrs, "id")
		if id == "" {
			id = fmt.Sprintf("Flow_%d", i+1)
		}
		g.Connect(id, unquote(e.Src), unquote(e.Dst))
	}

	return finish(g, names)
}

func kindOfShape(shape string) graph.Kind {
	switch strings.ToLower(shape) {
	case "diamond", "mdiamond":
		return graph.KindExclusiveGateway
	case "box", "rect", "rectangle", "square":
		return graph.KindTask
	case "circle", "doublecircle", "ellipse", "oval":
		return graph.KindEvent
	default:
		return graph.KindOther
	}
}

const (
	defaultDOTWidth  = 100
	defaultDOTHeight = 80
)

// dotGeometry returns nil when the node has no pos attribute.
func dotGeometry(attrs gographviz.Attrs) (*graph.Geometry, error) {
	pos := getAttr(attrs, "pos")
	if pos == "" {
		return nil, nil
	}
	xs, ys, ok := strings.Cut(strings.TrimSuffix(pos, "!"), ",")
	if !ok {
		return nil, fmt.Errorf("pos %q is not \"x,y\"", pos)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return nil, fmt.Errorf("pos x: %w", err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return nil, fmt.Errorf("pos y: %w", err)
	}

	geo := &graph.Geometry{X: x, Y: y, Width: defaultDOTWidth, Height: defaultDOTHeight}
	for key, dst := range map[string]*float64{"width": &geo.Width, "height": &geo.Height} {
		raw := getAttr(attrs, key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		*dst = v
	}
	return geo, nil
}

// getAttr reads a Graphviz attribute without its surrounding quotes.
func getAttr(attrs gographviz.Attrs, key string) string {
	val, ok := attrs[gographviz.Attr(key)]
	if !ok {
		return ""
	}
	return unquote(strings.TrimSpace(val))
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
