// Package session drives the overlay engine for one dashboard: it owns a
// diagram session per loaded perspective, follows a real-time job, defers
// overlay batches until the widget has finished importing, and clears
// everything when the diagram or view mode changes.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/rendis/bpmnlens/internal/bpmn"
	"github.com/rendis/bpmnlens/internal/canvas"
	"github.com/rendis/bpmnlens/internal/logging"
	"github.com/rendis/bpmnlens/internal/metrics"
	"github.com/rendis/bpmnlens/internal/overlay"
	"github.com/rendis/bpmnlens/internal/store"
	"github.com/rendis/bpmnlens/internal/streaming"
	"github.com/rendis/bpmnlens/pkg/schema"
)

// UpdateSource is the aggregator connection a Controller follows. Updates
// themselves are delivered on the hub as job_update events carrying a
// *schema.JobUpdate payload.
type UpdateSource interface {
	Connect(ctx context.Context, host string, port int) error
	SubscribeJob(ctx context.Context, jobID string) error
	UnsubscribeJob(ctx context.Context, jobID string) error
	Disconnect() error
	IsConnected() bool
}

// Options configures a Controller. Only Hub is needed for real-time jobs;
// Source and Store are optional.
type Options struct {
	SessionID string
	Logger    *slog.Logger
	Hub       streaming.EventHub
	Source    UpdateSource
	Store     store.Store
	Overlay   overlay.Options
	Mode      schema.ViewMode
}

// Controller is the dashboard-level coordinator.
type Controller struct {
	id          string
	logger      *slog.Logger
	hub         streaming.EventHub
	source      UpdateSource
	store       store.Store
	updates     *store.UpdateLog
	fsm         *FSM
	overlayOpts overlay.Options

	// drawMu serializes reconciliation passes against model reloads and
	// clears. Acquired before mu.
	drawMu sync.Mutex

	mu        sync.Mutex
	mode      schema.ViewMode
	sessions  map[string]*DiagramSession
	order     []string
	job       *schema.Job
	overlays  []schema.BlockOverlayReport
	summary   map[string]any
	legend    []overlay.LegendItem
	applying  bool
	cancelSub func()
	closed    bool
	// gen counts disconnects and clears. Work started under an older
	// generation must not touch the caches or the canvas.
	gen uint64
}

// NewController creates a Controller in instance view unless opts.Mode says otherwise.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	id := opts.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	mode := opts.Mode
	if mode == "" {
		mode = schema.ViewInstance
	}

	c := &Controller{
		id:          id,
		logger:      logger.With(slog.String("component", "session"), slog.String("session_id", id)),
		hub:         opts.Hub,
		source:      opts.Source,
		store:       opts.Store,
		fsm:         NewFSM(opts.Hub),
		overlayOpts: opts.Overlay,
		mode:        mode,
		sessions:    make(map[string]*DiagramSession),
	}
	if opts.Store != nil {
		c.updates = store.NewUpdateLog(opts.Store)
	}
	return c
}

// ID returns the dashboard session ID.
func (c *Controller) ID() string { return c.id }

// Mode returns the current view mode.
func (c *Controller) Mode() schema.ViewMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Job returns the followed job, or nil.
func (c *Controller) Job() *schema.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job == nil {
		return nil
	}
	j := *c.job
	return &j
}

// Session returns the diagram session of a perspective.
func (c *Controller) Session(perspective string) (*DiagramSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[perspective]
	return s, ok
}

// Sessions describes every loaded perspective in load order.
func (c *Controller) Sessions() []Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Info, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.sessions[id].info())
	}
	return out
}

// LoadPerspectives imports the BPMN XML of each perspective. Perspectives
// whose model is unchanged only get their name and statistics refreshed;
// changed ones are re-imported with their overlay state cleared. Sessions
// missing from the list are closed. Every (re)imported session waits in
// importing status until ImportDone.
func (c *Controller) LoadPerspectives(ctx context.Context, perspectives []schema.ProcessPerspective) error {
	c.drawMu.Lock()
	defer c.drawMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return schema.NewError(schema.ErrCodeConflict, "session closed")
	}

	seen := make(map[string]bool, len(perspectives))
	for _, p := range perspectives {
		if p.ID == "" {
			return schema.NewError(schema.ErrCodeValidation, "perspective without id")
		}
		seen[p.ID] = true

		if s, ok := c.sessions[p.ID]; ok && (p.ModelXML == "" || p.ModelXML == s.modelXML) {
			if p.Name != "" {
				s.Name = p.Name
			}
			if p.Statistics != nil {
				s.Reconciler.SetStatistics(p.Statistics)
			}
			continue
		}
		if p.ModelXML == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "perspective %q has no model", p.ID)
		}

		doc, err := bpmn.Parse(bpmn.FormatXML, []byte(p.ModelXML))
		if err != nil {
			return fmt.Errorf("import perspective %s: %w", p.ID, err)
		}
		if err := c.loadLocked(ctx, p, doc); err != nil {
			return err
		}
	}

	for _, id := range append([]string(nil), c.order...) {
		if !seen[id] {
			c.closeSessionLocked(ctx, id)
		}
	}
	return nil
}

// LoadModel imports a single model in any supported format and leaves the
// other perspectives alone.
func (c *Controller) LoadModel(ctx context.Context, perspective, name string, format bpmn.Format, data []byte) error {
	if perspective == "" {
		return schema.NewError(schema.ErrCodeValidation, "perspective id is required")
	}
	doc, err := bpmn.Parse(format, data)
	if err != nil {
		return fmt.Errorf("import perspective %s: %w", perspective, err)
	}

	c.drawMu.Lock()
	defer c.drawMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return schema.NewError(schema.ErrCodeConflict, "session closed")
	}
	p := schema.ProcessPerspective{ID: perspective, Name: name}
	if format == bpmn.FormatXML {
		p.ModelXML = string(data)
	}
	return c.loadLocked(ctx, p, doc)
}

// loadLocked replaces or creates the session of p. Requires drawMu and mu.
func (c *Controller) loadLocked(ctx context.Context, p schema.ProcessPerspective, doc *bpmn.Document) error {
	s, ok := c.sessions[p.ID]
	if ok {
		s.Reconciler.ClearDiagramState()
		s.setModel(p, doc)
	} else {
		var err error
		s, err = c.newDiagramSession(p, doc)
		if err != nil {
			return fmt.Errorf("create session %s: %w", p.ID, err)
		}
		s.Reconciler.SetSummary(c.summary)
		c.sessions[p.ID] = s
		c.order = append(c.order, p.ID)
	}
	c.logger.Info("perspective imported",
		slog.String("perspective", p.ID),
		slog.Int("elements", doc.Graph.Len()),
		slog.Int("warnings", len(doc.Report.Warnings)),
	)
	return c.transitionLocked(ctx, s, schema.SessionImporting)
}

func (c *Controller) closeSessionLocked(ctx context.Context, id string) {
	s, ok := c.sessions[id]
	if !ok {
		return
	}
	s.Reconciler.Close()
	if err := c.transitionLocked(ctx, s, schema.SessionClosed); err != nil {
		c.logger.Warn("close session", slog.String("perspective", id), slog.String("error", err.Error()))
	}
	delete(c.sessions, id)
	for i, o := range c.order {
		if o == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Controller) transitionLocked(ctx context.Context, s *DiagramSession, to schema.SessionStatus) error {
	ids := streaming.StreamEvent{SessionID: c.id, Perspective: s.Perspective}
	if c.job != nil {
		ids.JobID = c.job.JobID
	}
	if err := c.fsm.Transition(ctx, ids, s.status, to); err != nil {
		return err
	}
	s.status = to
	return nil
}

// ImportDone marks the widget of perspective as ready and applies the cached
// overlay batch to it. With nothing cached, the latest stored snapshot for the
// followed job is restored instead. Repeated calls are no-ops.
func (c *Controller) ImportDone(ctx context.Context, perspective string) error {
	c.mu.Lock()
	s, ok := c.sessions[perspective]
	if !ok {
		c.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeNotFound, "perspective %q not loaded", perspective)
	}
	if s.status == schema.SessionReady {
		c.mu.Unlock()
		return nil
	}
	if err := c.transitionLocked(ctx, s, schema.SessionReady); err != nil {
		c.mu.Unlock()
		return err
	}
	cached := len(reportsFor(c.overlays, perspective)) > 0
	job, mode, gen := c.job, c.mode, c.gen
	c.mu.Unlock()

	if !cached && job != nil && c.store != nil {
		c.restoreSnapshot(ctx, s, job.JobID, mode, gen)
	}
	c.applyPending(ctx, gen, perspective)
	c.publish(ctx, streaming.StreamEvent{Perspective: perspective, EventType: schema.EventImportDone})
	return nil
}

func (c *Controller) restoreSnapshot(ctx context.Context, s *DiagramSession, jobID string, mode schema.ViewMode, gen uint64) {
	snap, err := c.store.LatestSnapshot(ctx, jobID, s.Perspective)
	if err != nil {
		if !schema.IsCode(err, schema.ErrCodeNotFound) {
			c.logger.Warn("load snapshot", slog.String("perspective", s.Perspective), slog.String("error", err.Error()))
		}
		return
	}
	if snap.ViewMode != mode {
		return
	}

	c.drawMu.Lock()
	defer c.drawMu.Unlock()
	if !c.current(gen) {
		return
	}
	if mode == schema.ViewAggregation {
		if snap.Summary != nil {
			s.Reconciler.SetSummary(snap.Summary)
		}
		s.Reconciler.ApplyAggregatedOverlayReport(ctx, snap.Overlays)
	} else {
		s.Reconciler.ApplyOverlayReport(ctx, snap.Overlays)
	}
	c.logger.Info("snapshot restored",
		slog.String("perspective", s.Perspective),
		slog.Int64("snapshot_id", snap.ID),
		slog.Int("reports", len(snap.Overlays)),
	)
}

// HandleUpdate processes one job update. Updates for any job other than the
// followed one are ignored. Perspectives are (re)loaded, the summary is
// replaced in aggregation view, and a non-empty overlay batch replaces the
// cached one and is applied to every ready session.
func (c *Controller) HandleUpdate(ctx context.Context, u *schema.JobUpdate) error {
	if u == nil {
		return nil
	}
	jobID := u.ResolvedJobID()

	c.mu.Lock()
	following := c.job != nil && c.job.JobID == jobID
	mode, gen := c.mode, c.gen
	c.mu.Unlock()

	if !following {
		metrics.RecordUpdate("filtered")
		c.logger.Debug("update for other job ignored", slog.String("job_id", jobID))
		return nil
	}

	ctx = logging.WithIDs(ctx, c.id, jobID, "")
	log := logging.LogWith(ctx, c.logger)

	if c.updates != nil {
		if _, err := c.updates.Record(ctx, u); err != nil {
			log.Warn("record update", slog.String("error", err.Error()))
		}
	}

	body := u.Update
	if body == nil {
		return nil
	}
	if !c.current(gen) {
		return c.stale(log)
	}
	if body.Perspectives != nil {
		if err := c.LoadPerspectives(ctx, body.Perspectives); err != nil {
			metrics.RecordUpdate("invalid")
			return err
		}
	}

	summaryChanged := mode == schema.ViewAggregation && body.Summary != nil
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return c.stale(log)
	}
	if summaryChanged {
		c.summary = body.Summary
		for _, s := range c.sessions {
			s.Reconciler.SetSummary(body.Summary)
		}
	}
	if body.Overlays != nil {
		c.overlays = body.Overlays
	}
	c.mu.Unlock()

	if len(body.Overlays) == 0 {
		if summaryChanged {
			c.refreshLegend(ctx)
		}
		return nil
	}

	applied, ran := c.applyPending(ctx, gen)
	switch {
	case ran && !c.current(gen):
		return c.stale(log)
	case !ran:
		metrics.RecordUpdate("dropped")
	case applied == 0:
		metrics.RecordUpdate("deferred")
	default:
		metrics.RecordUpdate("applied")
	}
	c.saveSnapshots(ctx, jobID, mode, body.Overlays, body.Summary)
	return nil
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Controller) stale(log *slog.Logger) error {
	metrics.RecordUpdate("stale")
	log.Debug("update outlived its view, dropped")
	return nil
}

// ApplyOverlays replaces the cached batch with reports and applies it, as a
// job update would. It reports whether a pass ran.
func (c *Controller) ApplyOverlays(ctx context.Context, reports []schema.BlockOverlayReport) bool {
	c.mu.Lock()
	c.overlays = reports
	gen := c.gen
	c.mu.Unlock()
	_, ran := c.applyPending(ctx, gen)
	return ran
}

// applyPending applies the cached batch to ready sessions, optionally only
// to the named perspectives. A call while another pass is in flight is
// dropped; the cache keeps the batch for the next trigger. A pass whose
// generation is no longer current draws nothing.
func (c *Controller) applyPending(ctx context.Context, gen uint64, only ...string) (applied int, ran bool) {
	c.mu.Lock()
	if c.applying {
		c.mu.Unlock()
		metrics.RecordPassDropped()
		c.logger.Debug("overlay pass already in flight, dropped")
		return 0, false
	}
	c.applying = true
	c.mu.Unlock()

	c.drawMu.Lock()
	defer c.drawMu.Unlock()

	c.mu.Lock()
	mode := c.mode
	batch := c.overlays
	var targets []*DiagramSession
	for _, id := range c.order {
		if c.gen != gen {
			break
		}
		if len(only) > 0 && !slices.Contains(only, id) {
			continue
		}
		if s := c.sessions[id]; s.status == schema.SessionReady {
			targets = append(targets, s)
		}
	}
	c.mu.Unlock()

	var updated []*DiagramSession
	for _, s := range targets {
		reports := reportsFor(batch, s.Perspective)
		if len(reports) == 0 {
			continue
		}
		if mode == schema.ViewAggregation {
			s.Reconciler.ApplyAggregatedOverlayReport(ctx, reports)
		} else {
			s.Reconciler.ApplyOverlayReport(ctx, reports)
		}
		updated = append(updated, s)
	}

	var legend []overlay.LegendItem
	if mode == schema.ViewAggregation && len(updated) > 0 {
		items, err := updated[0].Reconciler.GenerateLegendData(ctx)
		if err != nil {
			c.logger.Warn("legend generation failed", slog.String("error", err.Error()))
		} else {
			legend = items
		}
	}

	c.mu.Lock()
	c.applying = false
	if legend != nil {
		c.legend = legend
	}
	c.mu.Unlock()

	if legend != nil {
		c.publish(ctx, streaming.StreamEvent{
			Perspective: updated[0].Perspective,
			EventType:   schema.EventLegendChanged,
			Payload:     legend,
		})
	}
	return len(updated), true
}

func (c *Controller) refreshLegend(ctx context.Context) {
	c.mu.Lock()
	var first *DiagramSession
	for _, id := range c.order {
		if s := c.sessions[id]; s.status == schema.SessionReady && !s.Reconciler.State().Empty() {
			first = s
			break
		}
	}
	c.mu.Unlock()
	if first == nil {
		return
	}

	items, err := first.Reconciler.GenerateLegendData(ctx)
	if err != nil {
		c.logger.Warn("legend generation failed", slog.String("error", err.Error()))
		return
	}
	c.mu.Lock()
	c.legend = items
	c.mu.Unlock()
	c.publish(ctx, streaming.StreamEvent{Perspective: first.Perspective, EventType: schema.EventLegendChanged, Payload: items})
}

// Legend returns the legend of perspective, or the last published legend
// when perspective is empty.
func (c *Controller) Legend(ctx context.Context, perspective string) ([]overlay.LegendItem, error) {
	if perspective == "" {
		c.mu.Lock()
		defer c.mu.Unlock()
		return append([]overlay.LegendItem(nil), c.legend...), nil
	}
	s, ok := c.Session(perspective)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "perspective %q not loaded", perspective)
	}
	return s.Reconciler.GenerateLegendData(ctx)
}

// Hover forwards a pointer event from the browser widget to a perspective.
func (c *Controller) Hover(perspective string, ev canvas.HoverEvent) error {
	s, ok := c.Session(perspective)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "perspective %q not loaded", perspective)
	}
	s.Canvas.Emit(ev)
	return nil
}

func (c *Controller) saveSnapshots(ctx context.Context, jobID string, mode schema.ViewMode, batch []schema.BlockOverlayReport, summary map[string]any) {
	if c.store == nil {
		return
	}
	c.mu.Lock()
	perspectives := append([]string(nil), c.order...)
	c.mu.Unlock()

	for _, p := range perspectives {
		reports := reportsFor(batch, p)
		if len(reports) == 0 {
			continue
		}
		snap := &store.Snapshot{JobID: jobID, Perspective: p, ViewMode: mode, Overlays: reports}
		if mode == schema.ViewAggregation {
			snap.Summary = summary
		}
		if err := c.store.SaveSnapshot(ctx, snap); err != nil {
			c.logger.Warn("save snapshot", slog.String("perspective", p), slog.String("error", err.Error()))
		}
	}
}

// SwitchView disconnects from the followed job and clears every session's
// overlay state and cached batch before entering mode.
func (c *Controller) SwitchView(ctx context.Context, mode schema.ViewMode) error {
	if mode != schema.ViewInstance && mode != schema.ViewAggregation {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown view mode %q", mode)
	}
	c.Disconnect(ctx)
	c.clear(ctx, mode)
	return nil
}

func (c *Controller) clear(ctx context.Context, mode schema.ViewMode) {
	c.drawMu.Lock()
	c.mu.Lock()
	c.gen++
	c.mode = mode
	c.overlays = nil
	c.summary = nil
	c.legend = nil
	for _, s := range c.sessions {
		s.Reconciler.ClearDiagramState()
		s.Reconciler.SetSummary(nil)
	}
	c.mu.Unlock()
	c.drawMu.Unlock()

	c.publish(ctx, streaming.StreamEvent{
		EventType: schema.EventStateCleared,
		Payload:   map[string]any{"mode": string(mode)},
	})
}

// ConnectJob follows job: any previous job is disconnected first, then the
// hub subscription is established before the aggregator subscription so the
// immediate first update is not missed.
func (c *Controller) ConnectJob(ctx context.Context, job schema.Job) error {
	if c.source == nil || c.hub == nil {
		return schema.NewError(schema.ErrCodeValidation, "no real-time source configured")
	}
	if job.JobID == "" {
		return schema.NewError(schema.ErrCodeValidation, "job_id is required")
	}
	c.Disconnect(ctx)

	ch, cancel, err := c.hub.Subscribe(context.Background(), streaming.EventFilter{
		EventTypes: []string{schema.EventJobUpdate},
	})
	if err != nil {
		return fmt.Errorf("subscribe hub: %w", err)
	}

	c.mu.Lock()
	c.job = &job
	c.cancelSub = cancel
	c.mu.Unlock()
	go c.consume(ch)

	if err := c.source.Connect(ctx, job.Host, job.Port); err != nil {
		c.Disconnect(ctx)
		return err
	}
	if err := c.source.SubscribeJob(ctx, job.JobID); err != nil {
		c.Disconnect(ctx)
		return err
	}
	c.logger.Info("following job", slog.String("job_id", job.JobID), slog.String("host", job.Host), slog.Int("port", job.Port))
	return nil
}

func (c *Controller) consume(ch <-chan streaming.StreamEvent) {
	for ev := range ch {
		u, ok := ev.Payload.(*schema.JobUpdate)
		if !ok {
			continue
		}
		if err := c.HandleUpdate(context.Background(), u); err != nil {
			c.logger.Warn("job update failed", slog.String("job_id", ev.JobID), slog.String("error", err.Error()))
		}
	}
}

// Disconnect stops following the current job. The drawn overlays stay.
func (c *Controller) Disconnect(ctx context.Context) {
	c.mu.Lock()
	job, cancel := c.job, c.cancelSub
	c.job, c.cancelSub = nil, nil
	c.gen++
	if job != nil {
		// The pending batch belongs to the job being dropped.
		c.overlays = nil
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c.source == nil || !c.source.IsConnected() {
		return
	}
	if job != nil {
		if err := c.source.UnsubscribeJob(ctx, job.JobID); err != nil {
			c.logger.Warn("unsubscribe job", slog.String("job_id", job.JobID), slog.String("error", err.Error()))
		}
	}
	if err := c.source.Disconnect(); err != nil {
		c.logger.Warn("disconnect", slog.String("error", err.Error()))
	}
}

// Close disconnects and closes every session.
func (c *Controller) Close(ctx context.Context) {
	c.Disconnect(ctx)

	c.drawMu.Lock()
	defer c.drawMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range append([]string(nil), c.order...) {
		c.closeSessionLocked(ctx, id)
	}
	c.closed = true
}

func (c *Controller) publish(ctx context.Context, ev streaming.StreamEvent) {
	if c.hub == nil {
		return
	}
	ev.SessionID = c.id
	if job := c.Job(); job != nil {
		ev.JobID = job.JobID
	}
	if err := c.hub.Publish(ctx, ev); err != nil {
		c.logger.Debug("publish failed", slog.String("event", ev.EventType), slog.String("error", err.Error()))
	}
}

// reportsFor selects the reports of a perspective. Reports without a
// perspective apply to every perspective.
func reportsFor(batch []schema.BlockOverlayReport, perspective string) []schema.BlockOverlayReport {
	var out []schema.BlockOverlayReport
	for _, r := range batch {
		if r.Perspective == "" || r.Perspective == perspective {
			out = append(out, r)
		}
	}
	return out
}
