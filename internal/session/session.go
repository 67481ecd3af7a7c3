package session

import (
	"context"
	"log/slog"

	"github.com/rendis/bpmnlens/internal/bpmn"
	"github.com/rendis/bpmnlens/internal/canvas"
	"github.com/rendis/bpmnlens/internal/graph"
	"github.com/rendis/bpmnlens/internal/overlay"
	"github.com/rendis/bpmnlens/internal/streaming"
	"github.com/rendis/bpmnlens/pkg/schema"
)

// DiagramSession is one loaded perspective: its element graph, the headless
// canvas mirroring the browser widget and the overlay reconciler drawing on it.
type DiagramSession struct {
	Perspective string
	Name        string
	Canvas      *canvas.MemoryCanvas
	Reconciler  *overlay.Reconciler

	graph    *graph.Graph
	names    map[string]string
	modelXML string
	status   schema.SessionStatus
}

// Info is the externally visible summary of a session.
type Info struct {
	Perspective string               `json:"perspective"`
	Name        string               `json:"name,omitempty"`
	Status      schema.SessionStatus `json:"status"`
	Elements    int                  `json:"elements"`
	Tracked     int                  `json:"tracked"`
	Overlays    int                  `json:"overlays"`
}

func (c *Controller) newDiagramSession(p schema.ProcessPerspective, doc *bpmn.Document) (*DiagramSession, error) {
	s := &DiagramSession{
		Perspective: p.ID,
		Name:        p.Name,
		status:      schema.SessionIdle,
	}
	s.Canvas = canvas.NewMemoryCanvas(doc.Graph, c.canvasSink(p.ID))

	opts := c.overlayOpts
	opts.Logger = c.logger.With(slog.String("perspective", p.ID))
	r, err := overlay.New(s.Canvas, opts)
	if err != nil {
		return nil, err
	}
	s.Reconciler = r
	s.Reconciler.Attach()
	s.setModel(p, doc)
	return s, nil
}

// setModel records the imported document. The canvas is reloaded only when
// the graph itself changed.
func (s *DiagramSession) setModel(p schema.ProcessPerspective, doc *bpmn.Document) {
	if s.graph != doc.Graph {
		s.Canvas.Load(doc.Graph)
	}
	s.graph = doc.Graph
	s.names = doc.Names
	s.modelXML = p.ModelXML
	if p.Name != "" {
		s.Name = p.Name
	}
	s.Reconciler.SetNames(doc.Names)
	s.Reconciler.SetStatistics(p.Statistics)
}

// Graph returns the session's element graph.
func (s *DiagramSession) Graph() *graph.Graph { return s.graph }

// Names returns the element display names.
func (s *DiagramSession) Names() map[string]string { return s.names }

// Status returns the lifecycle status.
func (s *DiagramSession) Status() schema.SessionStatus { return s.status }

func (s *DiagramSession) info() Info {
	state := s.Reconciler.State()
	return Info{
		Perspective: s.Perspective,
		Name:        s.Name,
		Status:      s.status,
		Elements:    s.graph.Len(),
		Tracked:     len(state.Blocks),
		Overlays:    len(state.Visible),
	}
}

// canvasSink streams every canvas mutation of a perspective to the hub so the
// panel can replay it in the browser.
func (c *Controller) canvasSink(perspective string) func(canvas.Op) {
	if c.hub == nil {
		return nil
	}
	return func(op canvas.Op) {
		_ = c.hub.Publish(context.Background(), streaming.StreamEvent{
			SessionID:   c.id,
			Perspective: perspective,
			EventType:   schema.EventCanvasOp,
			Payload:     op,
		})
	}
}
