// Package overlay reconciles streamed deviation reports against what is drawn
// on a diagram. It keeps per-element state so repeated reports only add,
// update or remove what changed, and places icons at stable offsets.
package overlay

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/rendis/bpmnlens/internal/canvas"
	"github.com/rendis/bpmnlens/internal/expressions"
	"github.com/rendis/bpmnlens/internal/graph"
	"github.com/rendis/bpmnlens/internal/metrics"
	"github.com/rendis/bpmnlens/pkg/schema"
)

// Options configures a Reconciler. Zero values select the defaults.
type Options struct {
	Logger      *slog.Logger
	Instance    *Policy
	Aggregation *Policy
	Stats       *expressions.StatsQuery
	Bands       *expressions.BandClassifier
	HoverFilter *expressions.HoverFilter
}

// Reconciler applies overlay report batches to one loaded diagram.
// All methods are safe for concurrent use; work is serialized internally.
type Reconciler struct {
	mu sync.Mutex

	canvas      canvas.Canvas
	instance    Policy
	aggregation Policy
	state       *State
	blocks      *BlockManager
	logger      *slog.Logger

	stats       *expressions.StatsQuery
	bands       *expressions.BandClassifier
	hoverFilter *expressions.HoverFilter

	names      map[string]string
	summary    map[string]any
	statistics map[string]map[string]any
	hoverSub   canvas.Subscription
}

// New creates a Reconciler drawing on c.
func New(c canvas.Canvas, opts Options) (*Reconciler, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	r := &Reconciler{
		canvas:      c,
		instance:    InstancePolicy(),
		aggregation: AggregationPolicy(),
		state:       NewState(),
		logger:      logger.With("component", "overlay"),
		stats:       opts.Stats,
		bands:       opts.Bands,
		hoverFilter: opts.HoverFilter,
		names:       make(map[string]string),
		statistics:  make(map[string]map[string]any),
	}
	if opts.Instance != nil {
		r.instance = *opts.Instance
	}
	if opts.Aggregation != nil {
		r.aggregation = *opts.Aggregation
	}
	if r.stats == nil {
		q, err := expressions.NewStatsQuery("")
		if err != nil {
			return nil, err
		}
		r.stats = q
	}
	if r.bands == nil {
		b, err := expressions.NewBandClassifier(nil)
		if err != nil {
			return nil, err
		}
		r.bands = b
	}
	r.blocks = newBlockManager(c, r.state, r.logger)
	return r, nil
}

// ApplyOverlayReport applies an instance-view batch.
func (r *Reconciler) ApplyOverlayReport(ctx context.Context, reports []schema.BlockOverlayReport) {
	r.apply(ctx, r.instance, reports)
}

// ApplyAggregatedOverlayReport applies an aggregation-view batch.
func (r *Reconciler) ApplyAggregatedOverlayReport(ctx context.Context, reports []schema.BlockOverlayReport) {
	r.apply(ctx, r.aggregation, reports)
}

func (r *Reconciler) apply(ctx context.Context, policy Policy, reports []schema.BlockOverlayReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	for _, rep := range reports {
		r.applyReport(ctx, policy, rep)
	}
	metrics.ObserveReconcile(string(policy.Mode), time.Since(start).Seconds())
	r.logger.DebugContext(ctx, "overlay batch applied",
		"mode", policy.Mode, "reports", len(reports), "visible", len(r.state.Visible))
}

func (r *Reconciler) applyReport(ctx context.Context, policy Policy, rep schema.BlockOverlayReport) {
	el, ok := r.canvas.Element(rep.BlockID)
	if !ok {
		metrics.RecordSkipped("missing_element")
		r.logger.DebugContext(ctx, "report for unknown element skipped", "element", rep.BlockID)
		return
	}
	colorable := !el.IsGateway() || policy.ColorGateways

	props, tracked := r.state.Blocks[el.ID]
	if !tracked {
		r.state.Blocks[el.ID] = &BlockProperties{Color: rep.Color, Flags: rep.FlagKinds()}
		if colorable {
			r.setBlockColor(policy, el.ID, rep.Color)
		}
		for _, f := range rep.Flags {
			r.applyFlagOverlay(ctx, policy, el, f, rep.Flags)
		}
		return
	}

	if !props.Color.Equal(rep.Color) {
		if colorable {
			r.setBlockColor(policy, el.ID, rep.Color)
		}
		props.Color = rep.Color
	}

	incoming := make(map[schema.DeviationKind]bool, len(rep.Flags))
	for _, f := range rep.Flags {
		incoming[f.Deviation] = true
	}
	for _, kind := range append([]schema.DeviationKind(nil), props.Flags...) {
		if incoming[kind] {
			continue
		}
		r.removeKey(policy, FlagKey(el.ID, kind))
		r.removeKey(policy, IconKey(el.ID, kind))
		props.remove(kind)
		r.state.dropPosition(el.ID, kind)
	}

	for _, f := range rep.Flags {
		r.applyFlagOverlay(ctx, policy, el, f, rep.Flags)
		props.add(f.Deviation)
	}
}

// applyFlagOverlay draws one flag. Gateways get their icon on the region
// shape when one can be computed; everything else gets it on the element.
func (r *Reconciler) applyFlagOverlay(ctx context.Context, policy Policy, el *graph.Element, flag schema.DeviationFlag, all []schema.DeviationFlag) {
	markup := policy.Markup(flag, r.nameOf)
	if markup == "" {
		metrics.RecordSkipped("unknown_kind")
		r.logger.DebugContext(ctx, "no markup for deviation", "element", el.ID, "deviation", flag.Deviation)
		return
	}

	if el.IsGateway() && policy.GatewayRegions {
		if shape, ok := r.blocks.EnsureBlock(el, schema.MostSevere(all)); ok {
			key := IconKey(el.ID, flag.Deviation)
			r.removeKey(policy, key)
			off := r.state.stableOffset(el.ID, flag.Deviation)
			r.addOverlay(ctx, policy, key, canvas.ShapeTarget(shape),
				canvas.AtLeft(GatewayIconTop, float64(off)), wrapGatewayIcon(markup))
			return
		}
	}

	key := FlagKey(el.ID, flag.Deviation)
	r.removeKey(policy, key)
	off := r.state.stableOffset(el.ID, flag.Deviation)
	r.addOverlay(ctx, policy, key, canvas.ElementTarget(el.ID),
		canvas.AtRight(ElementIconTop, float64(off)), markup)
}

func (r *Reconciler) addOverlay(ctx context.Context, policy Policy, key string, target canvas.Target, pos canvas.Position, html string) {
	h, err := r.canvas.AddOverlay(target, pos, html)
	if err != nil {
		r.logger.WarnContext(ctx, "add overlay failed", "key", key, "target", target.String(), "error", err)
		return
	}
	r.state.Visible[key] = Handle{Overlay: h}
	metrics.RecordOverlayOp(string(policy.Mode), "add")
}

// removeKey removes whatever is registered under key. Missing keys are a no-op.
func (r *Reconciler) removeKey(policy Policy, key string) {
	h, ok := r.state.Visible[key]
	if !ok {
		return
	}
	var err error
	switch {
	case h.Shape != "":
		err = r.canvas.RemoveShape(h.Shape)
	case h.Overlay != "":
		err = r.canvas.RemoveOverlay(h.Overlay)
	}
	if err != nil && !schema.IsCode(err, schema.ErrCodeNotFound) {
		r.logger.Warn("remove overlay failed", "key", key, "error", err)
	}
	delete(r.state.Visible, key)
	metrics.RecordOverlayOp(string(policy.Mode), "remove")
}

// SetBlockColor colors an element; nil resets it to the neutral default.
func (r *Reconciler) SetBlockColor(elementID string, color *schema.Color) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setBlockColor(r.instance, elementID, color)
}

func (r *Reconciler) setBlockColor(policy Policy, elementID string, color *schema.Color) {
	if err := r.canvas.SetColor(canvas.ElementTarget(elementID), policy.resolve(color)); err != nil {
		r.logger.Warn("set color failed", "element", elementID, "error", err)
	}
}

// ReleaseBlock removes a gateway's region shape and the icons on it.
func (r *Reconciler) ReleaseBlock(gatewayID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks.ReleaseBlock(gatewayID)
}

// ClearDiagramState removes everything drawn and empties the four
// registries. The next report for any element takes the first-report path.
func (r *Reconciler) ClearDiagramState() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, h := range r.state.Visible {
		var err error
		if h.Shape != "" {
			err = r.canvas.RemoveShape(h.Shape)
		} else if h.Overlay != "" {
			err = r.canvas.RemoveOverlay(h.Overlay)
		}
		if err != nil && !schema.IsCode(err, schema.ErrCodeNotFound) {
			r.logger.Warn("clear overlay failed", "key", key, "error", err)
		}
	}
	r.state.Clear()
	r.blocks.reset()
	r.statistics = make(map[string]map[string]any)
}

// SetNames replaces the element display names used in markup.
func (r *Reconciler) SetNames(names map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = make(map[string]string, len(names))
	for k, v := range names {
		r.names[k] = v
	}
}

func (r *Reconciler) nameOf(id string) string {
	if n, ok := r.names[id]; ok && n != "" {
		return n
	}
	return id
}

// SetSummary replaces the aggregation summary snapshot.
func (r *Reconciler) SetSummary(summary map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary = summary
}

// SetStatistics replaces the per-element instance statistics.
func (r *Reconciler) SetStatistics(stats []schema.ElementStatistic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statistics = make(map[string]map[string]any, len(stats))
	for _, s := range stats {
		r.statistics[s.ID] = s.Values
	}
}

// State returns a copy of the registries.
func (r *Reconciler) State() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Snapshot()
}

// Tracked reports whether elementID has received a report since the last clear.
func (r *Reconciler) Tracked(elementID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.state.Blocks[elementID]
	return ok
}
