package diagram

// NodeKind classifies a diagram node for rendering.
type NodeKind string

const (
	NodeKindTask      NodeKind = "task"
	NodeKindEvent     NodeKind = "event"
	NodeKindExclusive NodeKind = "exclusive"
	NodeKindInclusive NodeKind = "inclusive"
	NodeKindParallel  NodeKind = "parallel"
	NodeKindOther     NodeKind = "other"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title   string
	Nodes   []*Node
	Edges   []Edge
	Regions []*Region
}

// Node is one BPMN element.
type Node struct {
	ID      string
	Label   string
	Kind    NodeKind
	Overlay *NodeOverlay
}

// NodeOverlay carries the deviation state drawn on a node.
type NodeOverlay struct {
	Fill   string
	Stroke string
	Flags  []string
}

// Region is a gateway block: the split gateway, its matched downstream
// gateway and every node between them. A node belongs to at most one region.
type Region struct {
	GatewayID string
	EndID     string
	NodeIDs   []string
	Flagged   bool
}

// Edge is a sequence flow.
type Edge struct {
	From  string
	To    string
	Label string
}
