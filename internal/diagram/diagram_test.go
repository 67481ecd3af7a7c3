package diagram

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/bpmnlens/internal/canvas"
	"github.com/rendis/bpmnlens/internal/graph"
	"github.com/rendis/bpmnlens/internal/overlay"
	"github.com/rendis/bpmnlens/pkg/schema"
)

// --- Test graph builders ---

// reviewLoop is Start -> G1 -> Review -> G2 -> End with G2 -> Rework -> G1.
func reviewLoop() *graph.Graph {
	g := graph.New()
	add := func(id string, k graph.Kind) {
		g.Add(&graph.Element{ID: id, Kind: k, Geometry: &graph.Geometry{Width: 100, Height: 80}})
	}
	add("Start", graph.KindEvent)
	add("G1", graph.KindExclusiveGateway)
	add("Review", graph.KindTask)
	add("G2", graph.KindExclusiveGateway)
	add("Rework", graph.KindTask)
	add("End", graph.KindEvent)
	add("Flow_x", graph.KindSequenceFlow)
	g.Connect("f1", "Start", "G1")
	g.Connect("f2", "G1", "Review")
	g.Connect("f3", "Review", "G2")
	g.Connect("f4", "G2", "End")
	g.Connect("f5", "G2", "Rework")
	g.Connect("f6", "Rework", "G1")
	g.Connect("f7", "End", "Missing")
	return g
}

func flaggedState() *overlay.Snapshot {
	return &overlay.Snapshot{
		Blocks: map[string]overlay.BlockProperties{
			"Review": {
				Color: &schema.Color{Name: "RED"},
				Flags: []schema.DeviationKind{schema.DeviationSkipped},
			},
			"G1": {Flags: []schema.DeviationKind{schema.DeviationIncorrectBranch}},
		},
		GatewayBlocks: map[string]canvas.ShapeHandle{"G1": "shape_1"},
	}
}

func findNode(model *DiagramModel, id string) *Node {
	for _, n := range model.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// --- Build ---

func TestBuild_Plain(t *testing.T) {
	model := Build(Input{Graph: reviewLoop(), Names: map[string]string{"Review": "Review request"}})

	assert.Equal(t, "Process", model.Title)
	assert.Len(t, model.Nodes, 6, "sequence flow elements are not nodes")
	assert.Len(t, model.Edges, 6, "dangling flows are dropped")
	assert.Empty(t, model.Regions)

	review := findNode(model, "Review")
	require.NotNil(t, review)
	assert.Equal(t, "Review request", review.Label)
	assert.Equal(t, NodeKindTask, review.Kind)
	assert.Nil(t, review.Overlay)
	assert.Equal(t, NodeKindExclusive, findNode(model, "G1").Kind)
	assert.Equal(t, NodeKindEvent, findNode(model, "End").Kind)
}

func TestBuild_WithState(t *testing.T) {
	model := Build(Input{Title: "Review", Graph: reviewLoop(), State: flaggedState()})

	review := findNode(model, "Review")
	require.NotNil(t, review.Overlay)
	assert.Equal(t, "#FF6B6B", review.Overlay.Fill)
	assert.Equal(t, []string{"SKIPPED"}, review.Overlay.Flags)

	require.Len(t, model.Regions, 1)
	r := model.Regions[0]
	assert.Equal(t, "G1", r.GatewayID)
	assert.Equal(t, "G2", r.EndID)
	assert.True(t, r.Flagged)
	assert.ElementsMatch(t, []string{"G1", "Review", "G2", "Rework"}, r.NodeIDs)
}

func TestBuild_AllRegionsClaimsEachNodeOnce(t *testing.T) {
	model := Build(Input{Graph: reviewLoop(), AllRegions: true})

	seen := make(map[string]string)
	for _, r := range model.Regions {
		for _, id := range r.NodeIDs {
			prev, dup := seen[id]
			assert.False(t, dup, "%s in regions %s and %s", id, prev, r.GatewayID)
			seen[id] = r.GatewayID
		}
	}
	assert.Equal(t, "G1", seen["Review"])
}

func TestBuild_NilGraph(t *testing.T) {
	model := Build(Input{Title: "Empty"})
	assert.Equal(t, "Empty", model.Title)
	assert.Empty(t, model.Nodes)
}

// --- RenderMermaid ---

func TestRenderMermaid(t *testing.T) {
	model := Build(Input{Graph: reviewLoop(), State: flaggedState(), Names: map[string]string{"End": `Say "done"`}})

	output := RenderMermaid(model)

	assert.True(t, strings.HasPrefix(output, "graph LR\n"))
	assert.Contains(t, output, `subgraph region_G1["G1 .. G2"]`)
	assert.Contains(t, output, `G1{"G1<br/>INCORRECT_BRANCH"}`)
	assert.Contains(t, output, `Review["Review<br/>SKIPPED"]`)
	assert.Contains(t, output, `Start(("Start"))`)
	assert.Contains(t, output, `End(("Say #quot;done#quot;"))`)
	assert.Contains(t, output, "Review --> G2")
	assert.Contains(t, output, "style region_G1 stroke:red,stroke-width:2px,stroke-dasharray:4 2")
	assert.Contains(t, output, "style Review fill:#FF6B6B,stroke:#FF6B6B")
	assert.Equal(t, 1, strings.Count(output, "Review[\""), "region members are declared once")
}

// --- RenderText ---

func TestRenderText(t *testing.T) {
	model := Build(Input{Title: "Review loop", Graph: reviewLoop(), State: flaggedState()})

	output := RenderText(model)

	assert.Contains(t, output, "=== Review loop ===")
	assert.Contains(t, output, "fill=#FF6B6B  [SKIPPED]")
	assert.Contains(t, output, "--- region G1 .. G2 * ---")
}

// --- RenderImage ---

func TestRenderImage(t *testing.T) {
	model := Build(Input{Graph: reviewLoop(), State: flaggedState()})

	png, err := RenderImage(context.Background(), model, FormatPNG)
	require.NoError(t, err)
	require.True(t, len(png) > 8, "PNG should be larger than header")
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])

	svg, err := RenderImage(context.Background(), model, FormatSVG)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
	assert.Contains(t, string(svg), "cluster_G1")
}

func TestRenderImage_FlaggedClusterStyle(t *testing.T) {
	out, err := RenderImage(context.Background(), Build(Input{Graph: reviewLoop(), State: flaggedState()}), FormatDOT)
	require.NoError(t, err)

	dot := string(out)
	require.Contains(t, dot, "cluster_G1")
	cluster := dot[strings.Index(dot, "cluster_G1"):]
	assert.Contains(t, cluster, "pencolor=red")
	assert.Contains(t, cluster, "penwidth=2")
	assert.Contains(t, cluster, "style=dashed")
}

func TestRenderImage_UnsupportedFormat(t *testing.T) {
	_, err := RenderImage(context.Background(), Build(Input{Graph: reviewLoop()}), "gif")
	assert.Error(t, err)
}
