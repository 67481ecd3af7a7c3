package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeBounds(t *testing.T) {
	elements := []*Element{
		{ID: "a", Geometry: &Geometry{X: 100, Y: 200, Width: 100, Height: 80}},
		{ID: "b", Geometry: &Geometry{X: 300, Y: 150, Width: 50, Height: 50}},
		{ID: "flow"},
		nil,
	}

	got := ComputeBounds(elements)
	assert.Equal(t, Rect{X: 90, Y: 115, Width: 270, Height: 175}, got)
}

func TestComputeBounds_NoGeometry(t *testing.T) {
	assert.True(t, ComputeBounds(nil).IsZero())
	assert.True(t, ComputeBounds([]*Element{{ID: "flow"}}).IsZero())
}

func TestComputeBounds_RegionFromQuery(t *testing.T) {
	g := diamond(t)
	region := FindGatewayRegion(g, mustElement(t, g, "S"))
	r := ComputeBounds(region)
	// Columns follow sorted ids: End=0, J=1, S=2, X=3, Y=4.
	assert.Equal(t, float64(150-RegionPadding), r.X)
	assert.Equal(t, float64(100-RegionPadding-RegionHeaderPadding), r.Y)
	assert.Equal(t, float64(3*150+100+2*RegionPadding), r.Width)
	assert.Equal(t, float64(80+2*RegionPadding+RegionHeaderPadding), r.Height)
}

func TestClassifyKind(t *testing.T) {
	tests := map[string]Kind{
		"bpmn:UserTask":               KindTask,
		"bpmn:SubProcess":             KindTask,
		"bpmn:StartEvent":             KindEvent,
		"bpmn:IntermediateThrowEvent": KindEvent,
		"bpmn:ExclusiveGateway":       KindExclusiveGateway,
		"InclusiveGateway":            KindInclusiveGateway,
		"bpmn:ParallelGateway":        KindParallelGateway,
		"bpmn:SequenceFlow":           KindSequenceFlow,
		"bpmn:Group":                  KindGroup,
		"bpmn:EventBasedGateway":      KindOther,
		"bpmn:DataObjectReference":    KindOther,
	}
	for in, want := range tests {
		assert.Equal(t, want, ClassifyKind(in), in)
	}
}
