package overlay

import (
	"context"
	"sort"

	"github.com/rendis/bpmnlens/internal/expressions"
	"github.com/rendis/bpmnlens/pkg/schema"
)

// LegendItem describes one color currently applied to the diagram.
type LegendItem struct {
	Color       *schema.Color `json:"color"`
	Label       string        `json:"label"`
	Description string        `json:"description,omitempty"`
	Rate        float64       `json:"rate"`
	Severity    int           `json:"severity"`
	Elements    []string      `json:"elements"`
}

// GenerateLegendData returns one item per distinct applied color, ordered by
// severity and then by rate, both descending. Each item is classified by the
// highest deviation rate among the elements carrying its color.
func (r *Reconciler) GenerateLegendData(ctx context.Context) ([]LegendItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	type group struct {
		color    *schema.Color
		rate     float64
		elements []string
	}
	groups := make(map[string]*group)

	ids := make([]string, 0, len(r.state.Blocks))
	for id := range r.state.Blocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		props := r.state.Blocks[id]
		if props.Color == nil {
			continue
		}
		resolved := r.aggregation.resolve(props.Color)
		key := resolved.Key()
		g, ok := groups[key]
		if !ok {
			g = &group{color: resolved}
			groups[key] = g
		}
		g.elements = append(g.elements, id)

		stats, found, err := r.stats.ElementStats(ctx, r.summary, id)
		if err != nil {
			return nil, err
		}
		if found {
			if rate := expressions.DeviationRate(stats); rate > g.rate {
				g.rate = rate
			}
		}
	}

	items := make([]LegendItem, 0, len(groups))
	for _, g := range groups {
		band, severity, err := r.bands.Classify(ctx, g.rate)
		if err != nil {
			return nil, err
		}
		label := band.Label
		if label == "" {
			label = g.color.Key()
		}
		items = append(items, LegendItem{
			Color:       g.color,
			Label:       label,
			Description: band.Description,
			Rate:        g.rate,
			Severity:    severity,
			Elements:    g.elements,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Severity != items[j].Severity {
			return items[i].Severity > items[j].Severity
		}
		if items[i].Rate != items[j].Rate {
			return items[i].Rate > items[j].Rate
		}
		return items[i].Color.Key() < items[j].Color.Key()
	})
	return items, nil
}
