package overlay

import (
	"fmt"
	"html"
	"sort"
	"strings"
)

// TooltipTop and TooltipRight anchor the hover tooltip on its element.
const (
	TooltipTop   = -25
	TooltipRight = 0
)

type statLine struct {
	label string
	key   string
}

var historicalStats = []statLine{
	{"Regular", "regular"},
	{"Faulty", "faulty"},
	{"Unopened", "unopened"},
	{"Opened", "opened"},
	{"Skipped", "skipped"},
	{"OnTime", "onTime"},
	{"OutOfOrder", "outOfOrder"},
	{"SkipDeviation Skipped", "skipdeviation_skipped"},
	{"SkipDeviation OoO", "skipdeviation_outoforder"},
	{"Flow Violation", "flow_violation"},
	{"Incomplete Execution", "incomplete_execution"},
	{"Multi Execution Deviation", "multi_execution"},
}

var realTimeStats = []statLine{
	{"Regular", "real_time_regular"},
	{"Faulty", "real_time_faulty"},
	{"Unopened", "real_time_unopened"},
	{"Opened", "real_time_opened"},
	{"Skipped", "real_time_skipped"},
	{"Ontime", "real_time_ontime"},
	{"OutOfOrder", "real_time_outoforder"},
}

// InstanceTooltip renders the per-element statistics of a single process
// instance. Missing counters render as "undefined".
func InstanceTooltip(elementID string, values map[string]any) string {
	var b strings.Builder
	b.WriteString(`<div style="width: 300px; background-color:#ffcc66;">`)
	fmt.Fprintf(&b, "<h1>%s - Historical</h1>", html.EscapeString(elementID))
	writeStatLines(&b, historicalStats, values)
	b.WriteString("<h1>Real Time</h1>")
	writeStatLines(&b, realTimeStats, values)
	b.WriteString("</div>")
	return b.String()
}

func writeStatLines(b *strings.Builder, lines []statLine, values map[string]any) {
	b.WriteString("<p>")
	for i, l := range lines {
		if i > 0 {
			b.WriteString("<br>")
		}
		fmt.Fprintf(b, "%s: %s", l.label, formatValue(values[l.key]))
	}
	b.WriteString("</p>")
}

// AggregationTooltip renders aggregated statistics for an element.
func AggregationTooltip(name string, stats map[string]any) string {
	var b strings.Builder
	b.WriteString(`<div style="width: 350px; background-color: #f8f9fa; border: 1px solid #dee2e6; `)
	b.WriteString(`border-radius: 5px; padding: 10px; box-shadow: 0 2px 4px rgba(0,0,0,0.1);">`)
	fmt.Fprintf(&b, `<h3 style="margin: 0 0 10px 0; color: #495057;">%s</h3>`, html.EscapeString(name))
	b.WriteString(`<div style="display: grid; grid-template-columns: 1fr 1fr; gap: 10px;"><div>`)
	fmt.Fprintf(&b, "<strong>Total Instances:</strong> %s<br>", formatValue(stats["totalInstances"]))
	fmt.Fprintf(&b, "<strong>With Deviations:</strong> %s<br>", formatValue(stats["instancesWithDeviations"]))
	fmt.Fprintf(&b, "<strong>Deviation Rate:</strong> %s%%", formatRate(stats["deviationRate"]))
	b.WriteString("</div><div>")
	b.WriteString(formatDeviationCounts(stats["deviationCounts"]))
	b.WriteString("</div></div></div>")
	return b.String()
}

func formatDeviationCounts(v any) string {
	counts, _ := v.(map[string]any)
	if len(counts) == 0 {
		return "<em>No deviations</em>"
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	lines := make([]string, 0, len(kinds))
	for _, k := range kinds {
		lines = append(lines, fmt.Sprintf("<strong>%s:</strong> %s", html.EscapeString(k), formatValue(counts[k])))
	}
	return strings.Join(lines, "<br>")
}

func formatValue(v any) string {
	switch n := v.(type) {
	case nil:
		return "undefined"
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%g", n)
	default:
		return html.EscapeString(fmt.Sprint(v))
	}
}

func formatRate(v any) string {
	switch n := v.(type) {
	case float64:
		return fmt.Sprintf("%.1f", n)
	case int:
		return fmt.Sprintf("%.1f", float64(n))
	default:
		return "undefined"
	}
}
