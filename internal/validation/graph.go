package validation

import (
	"sort"

	"github.com/rendis/bpmnlens/internal/graph"
	"github.com/rendis/bpmnlens/pkg/schema"
)

// Import issue codes.
const (
	IssueEmptyGraph      = "EMPTY_GRAPH"
	IssueDanglingFlow    = "DANGLING_FLOW"
	IssueMissingGeometry = "MISSING_GEOMETRY"
	IssueUnreachable     = "UNREACHABLE"
	IssueNoStartEvent    = "NO_START_EVENT"
)

// CheckGraph inspects an imported element graph. Only an empty graph is an
// error; everything else the traversal code tolerates and is reported as a
// warning.
func CheckGraph(g *graph.Graph) *schema.ImportReport {
	report := &schema.ImportReport{}
	if g == nil || g.Len() == 0 {
		report.AddError("", IssueEmptyGraph, "diagram has no elements")
		return report
	}

	elements := g.Elements()
	for _, e := range elements {
		if e.Geometry == nil && e.Kind != graph.KindSequenceFlow {
			report.AddWarningf(e.ID, IssueMissingGeometry, "element %s has no diagram bounds", e.ID)
		}
		for _, f := range e.Outgoing {
			if _, ok := g.Element(f.TargetID); !ok {
				report.AddWarningf(f.ID, IssueDanglingFlow,
					"sequence flow %s targets unknown element %s", f.ID, f.TargetID)
			}
		}
		for _, f := range e.Incoming {
			if _, ok := g.Element(f.SourceID); !ok {
				report.AddWarningf(f.ID, IssueDanglingFlow,
					"sequence flow %s starts at unknown element %s", f.ID, f.SourceID)
			}
		}
	}

	report.Merge(checkReachability(g, elements))
	return report
}

// checkReachability runs a BFS from every flow root (elements without
// incoming flows) and warns about flow nodes that no root reaches.
func checkReachability(g *graph.Graph, elements []*graph.Element) *schema.ImportReport {
	report := &schema.ImportReport{}

	var roots []string
	for _, e := range elements {
		if !inFlow(e) {
			continue
		}
		if len(e.Incoming) == 0 {
			roots = append(roots, e.ID)
		}
	}
	if len(roots) == 0 {
		report.AddWarningf("", IssueNoStartEvent, "no element without incoming flows; the process has no entry point")
		return report
	}
	sort.Strings(roots)

	reached := make(map[string]bool, len(elements))
	queue := append([]string(nil), roots...)
	for _, id := range roots {
		reached[id] = true
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		e, _ := g.Element(id)
		for _, f := range e.Outgoing {
			if reached[f.TargetID] {
				continue
			}
			if _, ok := g.Element(f.TargetID); !ok {
				continue
			}
			reached[f.TargetID] = true
			queue = append(queue, f.TargetID)
		}
	}

	var unreached []string
	for _, e := range elements {
		if inFlow(e) && !reached[e.ID] {
			unreached = append(unreached, e.ID)
		}
	}
	sort.Strings(unreached)
	for _, id := range unreached {
		report.AddWarningf(id, IssueUnreachable, "element %s is not reachable from any entry point", id)
	}
	return report
}

// inFlow reports whether e takes part in sequence flow.
func inFlow(e *graph.Element) bool {
	switch e.Kind {
	case graph.KindSequenceFlow, graph.KindGroup, graph.KindOther:
		return false
	default:
		return true
	}
}
