// Package panel serves the dashboard's HTTP surface: a JSON API driven by
// the browser widget (model loads, import-done and hover callbacks), SSE
// streams of canvas operations, an overview page and Prometheus metrics.
package panel

import (
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/bpmnlens/internal/scheduler"
	"github.com/rendis/bpmnlens/internal/session"
	"github.com/rendis/bpmnlens/internal/store"
	"github.com/rendis/bpmnlens/internal/streaming"
	"github.com/rendis/bpmnlens/internal/validation"
)

//go:embed templates
var content embed.FS

// PanelDeps holds the dependencies for the panel server. Store and Scheduler
// are optional.
type PanelDeps struct {
	Controller *session.Controller
	Hub        streaming.EventHub
	Validator  validation.MessageValidator
	Store      store.Store
	Scheduler  *scheduler.Scheduler
	Logger     *slog.Logger
}

// PanelServer serves the dashboard panel.
type PanelServer struct {
	deps PanelDeps
	page *template.Template
}

// NewPanelServer creates a PanelServer with its overview template parsed.
func NewPanelServer(deps PanelDeps) (*PanelServer, error) {
	if deps.Controller == nil || deps.Hub == nil {
		return nil, fmt.Errorf("panel: controller and hub are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Validator == nil {
		v, err := validation.NewJSONSchemaValidator()
		if err != nil {
			return nil, err
		}
		deps.Validator = v
	}

	funcMap := template.FuncMap{
		"json":        toJSON,
		"timeAgo":     timeAgo,
		"statusBadge": statusBadge,
		"truncate":    truncate,
	}
	page, err := template.New("").Funcs(funcMap).ParseFS(content, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("panel: parse templates: %w", err)
	}

	return &PanelServer{deps: deps, page: page}, nil
}

// Handler returns the HTTP handler for the panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Pages.
	mux.HandleFunc("GET /{$}", s.handleOverview)
	mux.Handle("GET /metrics", promhttp.Handler())

	// SSE streams.
	mux.HandleFunc("GET /sse/events", s.handleSSESession)
	mux.HandleFunc("GET /sse/perspectives/{id}", s.handleSSEPerspective)

	// Queries.
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/perspectives/{id}/state", s.handleState)
	mux.HandleFunc("GET /api/perspectives/{id}/regions/{gateway}", s.handleRegion)
	mux.HandleFunc("GET /api/perspectives/{id}/diagram", s.handleDiagram)
	mux.HandleFunc("GET /api/legend", s.handleLegend)
	mux.HandleFunc("GET /api/snapshots", s.handleSnapshots)
	mux.HandleFunc("GET /api/jobs/{id}/updates", s.handleUpdates)
	mux.HandleFunc("GET /api/jobs/{id}/state", s.handleJobState)

	// Widget callbacks and mutations.
	mux.HandleFunc("PUT /api/perspectives", s.handleLoadPerspectives)
	mux.HandleFunc("PUT /api/perspectives/{id}/model", s.handleLoadModel)
	mux.HandleFunc("POST /api/perspectives/{id}/import-done", s.handleImportDone)
	mux.HandleFunc("POST /api/perspectives/{id}/hover", s.handleHover)
	mux.HandleFunc("POST /api/overlays", s.handleApplyOverlays)
	mux.HandleFunc("POST /api/view", s.handleSwitchView)
	mux.HandleFunc("POST /api/job", s.handleConnectJob)
	mux.HandleFunc("DELETE /api/job", s.handleDisconnectJob)
	mux.HandleFunc("POST /api/retention/sweep", s.handleSweep)

	return mux
}

// renderPage executes a page template by name.
func (s *PanelServer) renderPage(w http.ResponseWriter, page string, data any) {
	if s.page.Lookup(page) == nil {
		s.deps.Logger.Error("template not found", "page", page)
		http.Error(w, fmt.Sprintf("template %q not found", page), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.ExecuteTemplate(w, page, data); err != nil {
		s.deps.Logger.Error("template render error", "page", page, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
