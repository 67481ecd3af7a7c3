package overlay

import (
	"context"

	"github.com/rendis/bpmnlens/internal/canvas"
	"github.com/rendis/bpmnlens/internal/graph"
)

// Attach subscribes the reconciler to hover events of its canvas. Calling it
// again replaces the previous subscription.
func (r *Reconciler) Attach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hoverSub != nil {
		r.hoverSub.Dispose()
	}
	r.hoverSub = r.canvas.OnHover(r.handleHover)
}

// Close disposes the hover subscription. The reconciler stays usable for
// report batches.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hoverSub != nil {
		r.hoverSub.Dispose()
		r.hoverSub = nil
	}
}

func (r *Reconciler) handleHover(ev canvas.HoverEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := context.Background()
	if ev.Out {
		r.hideTooltip()
		return
	}

	id := r.blocks.Resolve(ev)
	if id == "" {
		return
	}
	el, ok := r.canvas.Element(id)
	if !ok {
		return
	}

	html, ok := r.tooltipFor(ctx, el)
	if !ok {
		return
	}
	r.hideTooltip()
	h, err := r.canvas.AddOverlay(canvas.ElementTarget(el.ID), canvas.AtRight(TooltipTop, TooltipRight), html)
	if err != nil {
		r.logger.Warn("show tooltip failed", "element", el.ID, "error", err)
		return
	}
	r.state.Visible[TooltipKey] = Handle{Overlay: h}
}

// tooltipFor renders the tooltip of el, or reports false when the element is
// not eligible or has no statistics.
func (r *Reconciler) tooltipFor(ctx context.Context, el *graph.Element) (string, bool) {
	_, tracked := r.state.Blocks[el.ID]
	eligible := el.Kind == graph.KindTask || el.Kind == graph.KindEvent || el.IsGateway()
	if !eligible && !tracked {
		return "", false
	}

	aggStats, found, err := r.stats.ElementStats(ctx, r.summary, el.ID)
	if err != nil {
		r.logger.Warn("stats query failed", "element", el.ID, "error", err)
		found = false
	}
	instStats, hasInstance := r.statistics[el.ID]
	if !found && !hasInstance {
		return "", false
	}

	if r.hoverFilter != nil {
		stats := aggStats
		if !found {
			stats = instStats
		}
		allow, err := r.hoverFilter.Allow(ctx, map[string]any{
			"id":      el.ID,
			"name":    r.nameOf(el.ID),
			"kind":    string(el.Kind),
			"tracked": tracked,
		}, stats, r.summary)
		if err != nil {
			r.logger.Warn("hover filter failed", "element", el.ID, "error", err)
			return "", false
		}
		if !allow {
			return "", false
		}
	}

	if found {
		return AggregationTooltip(r.nameOf(el.ID), aggStats), true
	}
	return InstanceTooltip(el.ID, instStats), true
}

func (r *Reconciler) hideTooltip() {
	h, ok := r.state.Visible[TooltipKey]
	if !ok {
		return
	}
	if err := r.canvas.RemoveOverlay(h.Overlay); err != nil {
		r.logger.Debug("remove tooltip", "error", err)
	}
	delete(r.state.Visible, TooltipKey)
}
