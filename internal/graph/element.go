package graph

import "strings"

// Kind classifies a diagram element. It is derived once from the BPMN type
// name by ClassifyKind; nothing downstream inspects the raw type string.
type Kind string

const (
	KindTask             Kind = "task"
	KindEvent            Kind = "event"
	KindExclusiveGateway Kind = "exclusive_gateway"
	KindInclusiveGateway Kind = "inclusive_gateway"
	KindParallelGateway  Kind = "parallel_gateway"
	KindSequenceFlow     Kind = "sequence_flow"
	KindGroup            Kind = "group"
	KindOther            Kind = "other"
)

// IsGateway reports whether k is one of the gateway kinds.
func (k Kind) IsGateway() bool {
	switch k {
	case KindExclusiveGateway, KindInclusiveGateway, KindParallelGateway:
		return true
	default:
		return false
	}
}

// ClassifyKind maps a BPMN type name ("bpmn:UserTask", "ExclusiveGateway",
// "bpmn:IntermediateThrowEvent", ...) to a Kind.
func ClassifyKind(bpmnType string) Kind {
	t := bpmnType
	if i := strings.LastIndexByte(t, ':'); i >= 0 {
		t = t[i+1:]
	}
	switch {
	case t == "ExclusiveGateway":
		return KindExclusiveGateway
	case t == "InclusiveGateway":
		return KindInclusiveGateway
	case t == "ParallelGateway":
		return KindParallelGateway
	case t == "SequenceFlow":
		return KindSequenceFlow
	case t == "Group":
		return KindGroup
	case strings.HasSuffix(t, "Task"), t == "SubProcess", t == "CallActivity", t == "Transaction":
		return KindTask
	case strings.HasSuffix(t, "Event"):
		return KindEvent
	default:
		return KindOther
	}
}

// Geometry is the diagram-space bounds of a shape. Flows have none.
type Geometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Flow is a sequence flow between two elements. SourceID and TargetID may
// reference elements that do not exist in the graph.
type Flow struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

// Element is a node of the diagram graph.
type Element struct {
	ID       string    `json:"id"`
	Name     string    `json:"name,omitempty"`
	Type     string    `json:"type,omitempty"` // raw BPMN type, informational only
	Kind     Kind      `json:"kind"`
	Geometry *Geometry `json:"geometry,omitempty"`
	Outgoing []*Flow   `json:"-"`
	Incoming []*Flow   `json:"-"`
}

// IsGateway reports whether the element is a gateway.
func (e *Element) IsGateway() bool {
	return e != nil && e.Kind.IsGateway()
}

// Lookup resolves element IDs. The diagram widget owns the elements; the
// traversal code only reads through this accessor.
type Lookup interface {
	Element(id string) (*Element, bool)
}

// Graph is an in-memory element graph. It implements Lookup.
type Graph struct {
	elements map[string]*Element
	order    []string
	flows    map[string]*Flow
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		elements: make(map[string]*Element),
		flows:    make(map[string]*Flow),
	}
}

// Element returns the element with the given ID.
func (g *Graph) Element(id string) (*Element, bool) {
	e, ok := g.elements[id]
	return e, ok
}

// Add registers an element. A later element with the same ID replaces the
// earlier one but keeps its position in Elements().
func (g *Graph) Add(e *Element) *Element {
	if _, exists := g.elements[e.ID]; !exists {
		g.order = append(g.order, e.ID)
	}
	g.elements[e.ID] = e
	return e
}

// Connect adds a sequence flow from sourceID to targetID. Either end may be
// missing; the flow is then only attached to the end that exists.
func (g *Graph) Connect(flowID, sourceID, targetID string) *Flow {
	f := &Flow{ID: flowID, SourceID: sourceID, TargetID: targetID}
	g.flows[flowID] = f
	if src, ok := g.elements[sourceID]; ok {
		src.Outgoing = append(src.Outgoing, f)
	}
	if dst, ok := g.elements[targetID]; ok {
		dst.Incoming = append(dst.Incoming, f)
	}
	return f
}

// Elements returns all elements in insertion order.
func (g *Graph) Elements() []*Element {
	out := make([]*Element, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.elements[id])
	}
	return out
}

// Flows returns the number of sequence flows.
func (g *Graph) Flows() int { return len(g.flows) }

// Len returns the number of elements.
func (g *Graph) Len() int { return len(g.elements) }

// targets resolves the outgoing flow targets of e, skipping dangling ones.
func targets(g Lookup, e *Element) []*Element {
	if e == nil {
		return nil
	}
	out := make([]*Element, 0, len(e.Outgoing))
	for _, f := range e.Outgoing {
		if f == nil {
			continue
		}
		if t, ok := g.Element(f.TargetID); ok && t != nil {
			out = append(out, t)
		}
	}
	return out
}
