package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
// Regions become subgraphs; overlay colors become per-node styles.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph LR\n")
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	inRegion := regionOf(model)
	for _, node := range model.Nodes {
		if inRegion[node.ID] == nil {
			b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
		}
	}

	byID := make(map[string]*Node, len(model.Nodes))
	for _, n := range model.Nodes {
		byID[n.ID] = n
	}
	for _, r := range model.Regions {
		b.WriteString(fmt.Sprintf("    subgraph %s[\"%s .. %s\"]\n",
			mermaidSafeID("region_"+r.GatewayID), r.GatewayID, r.EndID))
		for _, id := range r.NodeIDs {
			if n := byID[id]; n != nil {
				b.WriteString(fmt.Sprintf("        %s\n", mermaidNodeDef(n)))
			}
		}
		b.WriteString("    end\n")
	}

	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", edge.Label)
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n",
			mermaidSafeID(edge.From), label, mermaidSafeID(edge.To)))
	}

	for _, r := range model.Regions {
		if r.Flagged {
			b.WriteString(fmt.Sprintf("    style %s stroke:red,stroke-width:2px,stroke-dasharray:4 2\n",
				mermaidSafeID("region_"+r.GatewayID)))
		}
	}
	for _, node := range model.Nodes {
		if ov := node.Overlay; ov != nil && (ov.Fill != "" || ov.Stroke != "") {
			var parts []string
			if ov.Fill != "" {
				parts = append(parts, "fill:"+ov.Fill)
			}
			if ov.Stroke != "" {
				parts = append(parts, "stroke:"+ov.Stroke)
			}
			b.WriteString(fmt.Sprintf("    style %s %s\n", mermaidSafeID(node.ID), strings.Join(parts, ",")))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(flagLabel(node.Label, node.Overlay, "<br/>"))

	switch node.Kind {
	case NodeKindExclusive, NodeKindInclusive, NodeKindParallel:
		return fmt.Sprintf("%s{\"%s\"}", id, label)
	case NodeKindEvent:
		return fmt.Sprintf("%s((\"%s\"))", id, label)
	case NodeKindOther:
		return fmt.Sprintf("%s[/\"%s\"/]", id, label)
	default:
		return fmt.Sprintf("%s[\"%s\"]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_", ":", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel escapes double quotes, which would end the label.
func mermaidEscapeLabel(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}
