package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/bpmnlens/internal/graph"
	"github.com/rendis/bpmnlens/pkg/schema"
)

func box() *graph.Geometry { return &graph.Geometry{Width: 100, Height: 80} }

func issueCodes(issues []schema.ImportIssue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}

func TestCheckGraph_Empty(t *testing.T) {
	for _, g := range []*graph.Graph{nil, graph.New()} {
		r := CheckGraph(g)
		assert.False(t, r.Valid())
		assert.Equal(t, []string{IssueEmptyGraph}, issueCodes(r.Errors))
	}
}

func TestCheckGraph_Clean(t *testing.T) {
	g := graph.New()
	g.Add(&graph.Element{ID: "Start", Kind: graph.KindEvent, Geometry: box()})
	g.Add(&graph.Element{ID: "Task", Kind: graph.KindTask, Geometry: box()})
	g.Add(&graph.Element{ID: "End", Kind: graph.KindEvent, Geometry: box()})
	g.Add(&graph.Element{ID: "Lane", Kind: graph.KindOther, Geometry: box()})
	g.Connect("f1", "Start", "Task")
	g.Connect("f2", "Task", "End")

	r := CheckGraph(g)
	assert.True(t, r.Valid())
	assert.Empty(t, r.Warnings)
	assert.NoError(t, r.ToError())
}

func TestCheckGraph_Warnings(t *testing.T) {
	g := graph.New()
	g.Add(&graph.Element{ID: "Start", Kind: graph.KindEvent, Geometry: box()})
	g.Add(&graph.Element{ID: "Task", Kind: graph.KindTask})
	g.Add(&graph.Element{ID: "Island", Kind: graph.KindTask, Geometry: box()})
	g.Connect("f1", "Start", "Task")
	g.Connect("f2", "Task", "Nowhere")
	g.Connect("f3", "Island", "Island")

	r := CheckGraph(g)
	require.True(t, r.Valid())
	assert.ElementsMatch(t,
		[]string{IssueMissingGeometry, IssueDanglingFlow, IssueUnreachable},
		issueCodes(r.Warnings))

	for _, w := range r.Warnings {
		if w.Code == IssueUnreachable {
			assert.Equal(t, "Island", w.Ref)
		}
	}
}

func TestCheckGraph_NoEntryPoint(t *testing.T) {
	g := graph.New()
	g.Add(&graph.Element{ID: "A", Kind: graph.KindTask, Geometry: box()})
	g.Add(&graph.Element{ID: "B", Kind: graph.KindTask, Geometry: box()})
	g.Connect("f1", "A", "B")
	g.Connect("f2", "B", "A")

	r := CheckGraph(g)
	assert.True(t, r.Valid())
	assert.Equal(t, []string{IssueNoStartEvent}, issueCodes(r.Warnings))
}
