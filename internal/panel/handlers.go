package panel

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rendis/bpmnlens/internal/diagram"
	"github.com/rendis/bpmnlens/internal/graph"
	"github.com/rendis/bpmnlens/internal/overlay"
	"github.com/rendis/bpmnlens/internal/session"
	"github.com/rendis/bpmnlens/internal/store"
	"github.com/rendis/bpmnlens/pkg/schema"
)

// --- Page data types ---

type overviewData struct {
	Title     string
	SessionID string
	Mode      schema.ViewMode
	Job       *schema.Job
	Sessions  []session.Info
	Legend    []overlay.LegendItem
	Snapshots []*store.Snapshot
	NextSweep time.Time
}

type sessionsResponse struct {
	SessionID string          `json:"session_id"`
	Mode      schema.ViewMode `json:"mode"`
	Job       *schema.Job     `json:"job,omitempty"`
	Sessions  []session.Info  `json:"sessions"`
}

type regionResponse struct {
	Gateway  string     `json:"gateway"`
	Elements []string   `json:"elements"`
	Bounds   graph.Rect `json:"bounds"`
	Loop     bool       `json:"loop"`
}

// --- Page handlers ---

func (s *PanelServer) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c := s.deps.Controller

	data := overviewData{
		Title:     "bpmnlens",
		SessionID: c.ID(),
		Mode:      c.Mode(),
		Job:       c.Job(),
		Sessions:  c.Sessions(),
	}
	data.Legend, _ = c.Legend(ctx, "")

	if s.deps.Store != nil && data.Job != nil {
		snaps, err := s.deps.Store.ListSnapshots(ctx, store.SnapshotFilter{JobID: data.Job.JobID, Limit: 10})
		if err != nil {
			s.deps.Logger.Error("list snapshots", "error", err)
		}
		data.Snapshots = snaps
	}
	if s.deps.Scheduler != nil {
		data.NextSweep = s.deps.Scheduler.NextRun()
	}

	s.renderPage(w, "overview.html", data)
}

// --- JSON queries ---

func (s *PanelServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	c := s.deps.Controller
	writeJSON(w, http.StatusOK, sessionsResponse{
		SessionID: c.ID(),
		Mode:      c.Mode(),
		Job:       c.Job(),
		Sessions:  c.Sessions(),
	})
}

// handleState returns the overlay registries of a perspective.
func (s *PanelServer) handleState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.deps.Controller.Session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "perspective not loaded")
		return
	}
	writeJSON(w, http.StatusOK, sess.Reconciler.State())
}

// handleRegion returns the elements and padded bounds of a gateway region.
func (s *PanelServer) handleRegion(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.deps.Controller.Session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "perspective not loaded")
		return
	}
	g := sess.Graph()
	gw, ok := g.Element(r.PathValue("gateway"))
	if !ok {
		writeError(w, http.StatusNotFound, "element not found")
		return
	}
	if !gw.IsGateway() {
		writeError(w, http.StatusBadRequest, "element is not a gateway")
		return
	}

	region := graph.FindGatewayRegion(g, gw)
	ids := graph.IDs(region)
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, regionResponse{
		Gateway:  gw.ID,
		Elements: ids,
		Bounds:   graph.ComputeBounds(region),
		Loop:     graph.IsLoopGateway(g, gw),
	})
}

// handleDiagram exports a perspective with its current overlay state.
// ?format=mermaid|text|png|svg|dot, ?regions=all draws every gateway region.
func (s *PanelServer) handleDiagram(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.deps.Controller.Session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "perspective not loaded")
		return
	}
	state := sess.Reconciler.State()
	model := diagram.Build(diagram.Input{
		Title:      sess.Name,
		Graph:      sess.Graph(),
		Names:      sess.Names(),
		State:      &state,
		AllRegions: r.URL.Query().Get("regions") == "all",
	})

	format := r.URL.Query().Get("format")
	switch format {
	case "", "mermaid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(diagram.RenderMermaid(model)))
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(diagram.RenderText(model)))
	case string(diagram.FormatPNG), string(diagram.FormatSVG), string(diagram.FormatDOT):
		out, err := diagram.RenderImage(r.Context(), model, diagram.Format(format))
		if err != nil {
			s.deps.Logger.Error("render diagram", "perspective", sess.Perspective, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", contentType(diagram.Format(format)))
		w.Write(out)
	default:
		writeError(w, http.StatusBadRequest, "unsupported format "+strconv.Quote(format))
	}
}

func contentType(f diagram.Format) string {
	switch f {
	case diagram.FormatPNG:
		return "image/png"
	case diagram.FormatSVG:
		return "image/svg+xml"
	default:
		return "text/vnd.graphviz"
	}
}

// handleLegend returns the legend of ?perspective=, or the last published one.
func (s *PanelServer) handleLegend(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Controller.Legend(r.Context(), r.URL.Query().Get("perspective"))
	if err != nil {
		writeLensError(w, err)
		return
	}
	if items == nil {
		items = []overlay.LegendItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *PanelServer) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusNotImplemented, "no store configured")
		return
	}
	q := r.URL.Query()
	filter := store.SnapshotFilter{
		JobID:       q.Get("job_id"),
		Perspective: q.Get("perspective"),
		Limit:       queryInt(r, "limit", 50),
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		filter.Since = &t
	}

	snaps, err := s.deps.Store.ListSnapshots(r.Context(), filter)
	if err != nil {
		writeLensError(w, err)
		return
	}
	if snaps == nil {
		snaps = []*store.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *PanelServer) handleUpdates(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusNotImplemented, "no store configured")
		return
	}
	recs, err := s.deps.Store.GetUpdates(r.Context(), r.PathValue("id"), int64(queryInt(r, "since", 0)))
	if err != nil {
		writeLensError(w, err)
		return
	}
	if recs == nil {
		recs = []*store.UpdateRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleJobState folds a job's recorded updates into its latest overlay batch
// and summary.
func (s *PanelServer) handleJobState(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusNotImplemented, "no store configured")
		return
	}
	state, err := store.NewUpdateLog(s.deps.Store).Replay(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLensError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
