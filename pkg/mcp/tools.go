package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/bpmnlens/internal/diagram"
	"github.com/rendis/bpmnlens/internal/graph"
	"github.com/rendis/bpmnlens/internal/overlay"
	"github.com/rendis/bpmnlens/internal/session"
)

type perspectiveState struct {
	Perspective string           `json:"perspective"`
	Status      string           `json:"status"`
	State       overlay.Snapshot `json:"state"`
}

// handleOverlays returns the overlay registries of one or every perspective.
func (s *LensServer) handleOverlays(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	perspective := req.GetString("perspective", "")
	if req.GetBool("watch", false) {
		s.captureSession(ctx, perspective)
	}

	var out []perspectiveState
	if perspective != "" {
		sess, ok := s.controller.Session(perspective)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("perspective %q not loaded", perspective)), nil
		}
		out = append(out, stateOf(sess))
	} else {
		for _, info := range s.controller.Sessions() {
			if sess, ok := s.controller.Session(info.Perspective); ok {
				out = append(out, stateOf(sess))
			}
		}
	}

	return marshalResult(map[string]any{
		"mode":         s.controller.Mode(),
		"perspectives": out,
	})
}

func stateOf(sess *session.DiagramSession) perspectiveState {
	return perspectiveState{
		Perspective: sess.Perspective,
		Status:      string(sess.Status()),
		State:       sess.Reconciler.State(),
	}
}

// handleRegion returns what a gateway region covers.
func (s *LensServer) handleRegion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	perspective, err := req.RequireString("perspective")
	if err != nil {
		return mcp.NewToolResultError("perspective is required"), nil
	}
	gatewayID, err := req.RequireString("gateway")
	if err != nil {
		return mcp.NewToolResultError("gateway is required"), nil
	}

	sess, ok := s.controller.Session(perspective)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("perspective %q not loaded", perspective)), nil
	}
	g := sess.Graph()
	gw, ok := g.Element(gatewayID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("element %q not found", gatewayID)), nil
	}
	if !gw.IsGateway() {
		return mcp.NewToolResultError(fmt.Sprintf("element %q is not a gateway", gatewayID)), nil
	}

	region := graph.FindGatewayRegion(g, gw)
	result := map[string]any{
		"gateway":  gw.ID,
		"elements": graph.IDs(region),
		"bounds":   graph.ComputeBounds(region),
		"loop":     graph.IsLoopGateway(g, gw),
	}
	if end := graph.FindNearestDownstreamGateway(g, gw); end != nil {
		result["closing_gateway"] = end.ID
	}
	if join := graph.FindJoiningGateway(g, gw); join != nil {
		result["joining_gateway"] = join.ID
	}
	return marshalResult(result)
}

// handleLegend returns the legend items.
func (s *LensServer) handleLegend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.controller.Legend(ctx, req.GetString("perspective", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("legend failed: %v", err)), nil
	}
	if items == nil {
		items = []overlay.LegendItem{}
	}
	return marshalResult(map[string]any{"items": items})
}

// handleApply validates and draws an overlay batch.
func (s *LensServer) handleApply(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, ok := req.GetArguments()["reports"]
	if !ok {
		return mcp.NewToolResultError("reports is required"), nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid reports: %v", err)), nil
	}
	reports, err := s.validator.DecodeOverlays(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid reports: %v", err)), nil
	}

	applied := s.controller.ApplyOverlays(ctx, reports)
	return marshalResult(map[string]any{
		"reports":  len(reports),
		"applied":  applied,
		"sessions": s.controller.Sessions(),
	})
}

// handleDiagram exports a perspective in the requested format.
func (s *LensServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	perspective, err := req.RequireString("perspective")
	if err != nil {
		return mcp.NewToolResultError("perspective is required"), nil
	}
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "mermaid" && format != "text" && format != "image" {
		return mcp.NewToolResultError("format must be mermaid, text, or image"), nil
	}

	sess, ok := s.controller.Session(perspective)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("perspective %q not loaded", perspective)), nil
	}
	state := sess.Reconciler.State()
	model := diagram.Build(diagram.Input{
		Title:      sess.Name,
		Graph:      sess.Graph(),
		Names:      sess.Names(),
		State:      &state,
		AllRegions: req.GetBool("all_regions", false),
	})

	switch format {
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	case "text":
		return mcp.NewToolResultText(diagram.RenderText(model)), nil
	default:
		png, imgErr := diagram.RenderImage(ctx, model, diagram.FormatPNG)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(png)), nil
	}
}

// captureSession registers the caller's MCP session as a watcher of perspective.
func (s *LensServer) captureSession(ctx context.Context, perspective string) {
	if cs := server.ClientSessionFromContext(ctx); cs != nil {
		s.sessions.Register(perspective, cs.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
