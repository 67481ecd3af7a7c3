package panel

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rendis/bpmnlens/internal/bpmn"
	"github.com/rendis/bpmnlens/internal/canvas"
	"github.com/rendis/bpmnlens/pkg/schema"
)

const maxModelBody = 32 * 1024 * 1024 // 32MB

// handleLoadPerspectives replaces the loaded perspectives with the request
// body, as a job update carrying perspectives would.
func (s *PanelServer) handleLoadPerspectives(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Perspectives []schema.ProcessPerspective `json:"perspectives"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if err := s.deps.Controller.LoadPerspectives(r.Context(), body.Perspectives); err != nil {
		writeLensError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Controller.Sessions())
}

// handleLoadModel imports a raw model file into one perspective.
// ?format=bpmn|dot (default bpmn), ?name= sets the display name.
func (s *PanelServer) handleLoadModel(w http.ResponseWriter, r *http.Request) {
	perspective := r.PathValue("id")
	format := bpmn.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = bpmn.FormatXML
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxModelBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read model: %v", err))
		return
	}
	if err := s.deps.Controller.LoadModel(r.Context(), perspective, r.URL.Query().Get("name"), format, data); err != nil {
		writeLensError(w, err)
		return
	}

	sess, _ := s.deps.Controller.Session(perspective)
	writeJSON(w, http.StatusOK, map[string]any{
		"perspective": perspective,
		"elements":    sess.Graph().Len(),
		"flows":       sess.Graph().Flows(),
		"status":      sess.Status(),
	})
}

// handleImportDone is called by the browser widget once it has rendered the
// model; the deferred overlay batch is applied now.
func (s *PanelServer) handleImportDone(w http.ResponseWriter, r *http.Request) {
	perspective := r.PathValue("id")
	if err := s.deps.Controller.ImportDone(r.Context(), perspective); err != nil {
		writeLensError(w, err)
		return
	}
	sess, _ := s.deps.Controller.Session(perspective)
	writeJSON(w, http.StatusOK, map[string]any{
		"perspective": perspective,
		"status":      sess.Status(),
	})
}

// handleHover forwards a pointer event from the widget. The tooltip change
// comes back on the perspective's SSE stream.
func (s *PanelServer) handleHover(w http.ResponseWriter, r *http.Request) {
	var ev canvas.HoverEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if err := s.deps.Controller.Hover(r.PathValue("id"), ev); err != nil {
		writeLensError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleApplyOverlays applies a bare overlay batch, validated like one
// arriving from the aggregator.
func (s *PanelServer) handleApplyOverlays(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxModelBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
		return
	}
	reports, err := s.deps.Validator.DecodeOverlays(data)
	if err != nil {
		writeLensError(w, err)
		return
	}

	ran := s.deps.Controller.ApplyOverlays(r.Context(), reports)
	status := http.StatusOK
	if !ran {
		// Cached; the next pass picks it up.
		status = http.StatusAccepted
	}
	writeJSON(w, status, map[string]any{
		"reports": len(reports),
		"applied": ran,
	})
}

// handleSwitchView clears all overlay state and disconnects from the job.
func (s *PanelServer) handleSwitchView(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode schema.ViewMode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if err := s.deps.Controller.SwitchView(r.Context(), body.Mode); err != nil {
		writeLensError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(body.Mode)})
}

// handleConnectJob follows a real-time job.
func (s *PanelServer) handleConnectJob(w http.ResponseWriter, r *http.Request) {
	var job schema.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if err := s.deps.Controller.ConnectJob(r.Context(), job); err != nil {
		writeLensError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleDisconnectJob stops following the current job.
func (s *PanelServer) handleDisconnectJob(w http.ResponseWriter, r *http.Request) {
	s.deps.Controller.Disconnect(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// handleSweep runs the retention sweep now.
func (s *PanelServer) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeError(w, http.StatusNotImplemented, "retention scheduler not configured")
		return
	}
	res, err := s.deps.Scheduler.Sweep(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
