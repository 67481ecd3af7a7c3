package bpmn

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/rendis/bpmnlens/internal/graph"
	"github.com/rendis/bpmnlens/pkg/schema"
)

// xmlNode is a generic element tree. BPMN files mix several namespaces and
// vendor extensions, so the importer walks local names instead of binding a
// fixed struct layout.
type xmlNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Nodes   []xmlNode  `xml:",any"`
}

func (n *xmlNode) attr(local string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// Process children that carry an id but are not diagram elements.
var skippedChildren = map[string]bool{
	"laneSet":               true,
	"association":           true,
	"dataInputAssociation":  true,
	"dataOutputAssociation": true,
	"ioSpecification":       true,
	"property":              true,
	"extensionElements":     true,
}

type flowRef struct {
	id, source, target string
}

type xmlBuilder struct {
	g      *graph.Graph
	names  map[string]string
	flows  []flowRef
	bounds map[string]*graph.Geometry
}

// ParseXML imports a BPMN 2.0 document: flow nodes of every process and
// sub-process, sequence flows, and shape bounds from the diagram interchange
// section.
func ParseXML(r io.Reader) (*Document, error) {
	var root xmlNode
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "malformed BPMN XML").WithCause(err)
	}
	if root.XMLName.Local != "definitions" {
		return nil, schema.NewErrorf(schema.ErrCodeDecode,
			"not a BPMN document: root element is %q", root.XMLName.Local)
	}

	b := &xmlBuilder{
		g:      graph.New(),
		names:  make(map[string]string),
		bounds: make(map[string]*graph.Geometry),
	}
	for i := range root.Nodes {
		child := &root.Nodes[i]
		switch child.XMLName.Local {
		case "process":
			b.process(child)
		case "BPMNDiagram":
			b.diagram(child)
		}
	}

	for id, geo := range b.bounds {
		if e, ok := b.g.Element(id); ok {
			e.Geometry = geo
		}
	}
	for _, f := range b.flows {
		b.g.Connect(f.id, f.source, f.target)
	}
	return finish(b.g, b.names)
}

func (b *xmlBuilder) process(n *xmlNode) {
	for i := range n.Nodes {
		child := &n.Nodes[i]
		local := child.XMLName.Local
		id := child.attr("id")
		if id == "" || skippedChildren[local] {
			continue
		}

		if local == "sequenceFlow" {
			b.flows = append(b.flows, flowRef{id: id, source: child.attr("sourceRef"), target: child.attr("targetRef")})
			continue
		}

		typ := "bpmn:" + upperFirst(local)
		name := strings.TrimSpace(child.attr("name"))
		b.g.Add(&graph.Element{ID: id, Name: name, Type: typ, Kind: graph.ClassifyKind(typ)})
		if name == "" {
			name = id
		}
		b.names[id] = name

		if local == "subProcess" || local == "transaction" || local == "adHocSubProcess" {
			b.process(child)
		}
	}
}

// diagram collects BPMNShape bounds at any depth below the diagram node.
func (b *xmlBuilder) diagram(n *xmlNode) {
	for i := range n.Nodes {
		child := &n.Nodes[i]
		if child.XMLName.Local != "BPMNShape" {
			b.diagram(child)
			continue
		}
		ref := child.attr("bpmnElement")
		for j := range child.Nodes {
			bn := &child.Nodes[j]
			if bn.XMLName.Local != "Bounds" {
				continue
			}
			geo, ok := parseBounds(bn)
			if ok && ref != "" {
				b.bounds[ref] = geo
			}
		}
	}
}

func parseBounds(n *xmlNode) (*graph.Geometry, bool) {
	var vals [4]float64
	for i, key := range []string{"x", "y", "width", "height"} {
		v, err := strconv.ParseFloat(n.attr(key), 64)
		if err != nil {
			return nil, false
		}
		vals[i] = v
	}
	return &graph.Geometry{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}, true
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
