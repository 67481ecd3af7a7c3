package overlay

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/rendis/bpmnlens/pkg/schema"
)

// Icon placement, in pixels.
const (
	IconSpacing    = 30
	ElementIconTop = -28
	GatewayIconTop = -30
)

// NameFunc resolves an element ID to its display name.
type NameFunc func(elementID string) string

// IconMarkup renders the instance-view icon for a flag. Unknown kinds render
// to "".
func IconMarkup(flag schema.DeviationFlag, name NameFunc) string {
	switch flag.Deviation {
	case schema.DeviationIncomplete:
		return `<img width="25" height="25" src="assets/hazard.png" title="Incomplete">`
	case schema.DeviationMultiExecution:
		count := "?"
		if n, ok := flag.Count(); ok {
			count = strconv.Itoa(n)
		}
		return fmt.Sprintf(`<img width="20" height="20" src="assets/repeat.png" title="Executions: %s">`, count)
	case schema.DeviationIncorrectExecution:
		return `<img width="25" height="25" src="assets/cross.png" title="Incorrect Execution">`
	case schema.DeviationIncorrectBranch:
		return `<img width="25" height="25" src="assets/cross.png" title="Incorrect Branch">`
	case schema.DeviationSkipped:
		return `<img width="25" height="25" src="assets/skip.webp" title="Skipped">`
	case schema.DeviationOverlap:
		return fmt.Sprintf(`<img src="assets/arrows.png" title="Overlaps:&#10;%s" style="transform: rotate(90deg); width:25px; height:25px;">`,
			overlapNames(flag, name))
	default:
		return ""
	}
}

func overlapNames(flag schema.DeviationFlag, name NameFunc) string {
	if flag.Details == nil || len(flag.Details.Over) == 0 {
		return "?"
	}
	names := make([]string, 0, len(flag.Details.Over))
	for _, id := range flag.Details.Over {
		n := id
		if name != nil {
			n = name(id)
		}
		names = append(names, html.EscapeString(n))
	}
	return strings.Join(names, "&#10;")
}

// badgeColors maps aggregation severities to badge backgrounds.
var badgeColors = map[string]string{
	"CRITICAL": "#CC0000",
	"HIGH":     "#FF6B6B",
	"MEDIUM":   "#FFA500",
	"LOW":      "#FFFF99",
}

const defaultBadgeColor = "#90EE90"

// BadgeMarkup renders the aggregation-view badge for a flag that carries a
// value or severity; other flags fall back to IconMarkup.
func BadgeMarkup(flag schema.DeviationFlag, name NameFunc) string {
	if flag.Value == nil && flag.Severity == "" {
		return IconMarkup(flag, name)
	}
	if !flag.Deviation.Known() {
		return ""
	}

	bg, ok := badgeColors[strings.ToUpper(flag.Severity)]
	if !ok {
		bg = defaultBadgeColor
	}
	value := "?"
	if flag.Value != nil {
		value = html.EscapeString(fmt.Sprint(flag.Value))
	}
	return fmt.Sprintf(`<div title="%s" style="background-color: %s; color: white; padding: 2px 4px; border-radius: 3px; `+
		`font-size: 10px; font-weight: bold; border: 1px solid #333; min-width: 20px; text-align: center;">%s</div>`,
		html.EscapeString(string(flag.Deviation)), bg, value)
}

// wrapGatewayIcon wraps icon markup attached to a gateway region shape.
func wrapGatewayIcon(markup string) string {
	return "<div>" + markup + "</div>"
}
