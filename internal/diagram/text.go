package diagram

import (
	"fmt"
	"strings"
)

// RenderText renders a DiagramModel as a plain-text outline: one line per
// node with its kind and flags, followed by the regions and their members.
func RenderText(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n\n", model.Title))
	}

	width := 0
	for _, n := range model.Nodes {
		if len(n.ID) > width {
			width = len(n.ID)
		}
	}

	for _, n := range model.Nodes {
		b.WriteString(fmt.Sprintf("%-*s  %-9s  %s", width, n.ID, n.Kind, n.Label))
		if ov := n.Overlay; ov != nil {
			if ov.Fill != "" {
				b.WriteString("  fill=" + ov.Fill)
			}
			if len(ov.Flags) > 0 {
				b.WriteString("  [" + strings.Join(ov.Flags, ", ") + "]")
			}
		}
		b.WriteString("\n")
	}

	for _, r := range model.Regions {
		marker := ""
		if r.Flagged {
			marker = " *"
		}
		b.WriteString(fmt.Sprintf("\n--- region %s .. %s%s ---\n", r.GatewayID, r.EndID, marker))
		b.WriteString("    " + strings.Join(r.NodeIDs, ", ") + "\n")
	}

	return b.String()
}
