package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/bpmnlens/internal/session"
	"github.com/rendis/bpmnlens/internal/streaming"
	"github.com/rendis/bpmnlens/internal/validation"
	"github.com/rendis/bpmnlens/pkg/schema"
)

// LensServerDeps holds the dependencies for creating a LensServer.
type LensServerDeps struct {
	Controller *session.Controller
	Hub        streaming.EventHub
	Validator  validation.MessageValidator
	Logger     *slog.Logger
}

// LensServer exposes a dashboard's diagrams and overlay state to agents.
type LensServer struct {
	controller *session.Controller
	hub        streaming.EventHub
	validator  validation.MessageValidator
	logger     *slog.Logger
	sessions   *SessionRegistry
	notifier   Notifier
	mcpServer  *server.MCPServer
}

// NewLensServer creates a LensServer with all tools registered.
func NewLensServer(deps LensServerDeps) (*LensServer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	v := deps.Validator
	if v == nil {
		jv, err := validation.NewJSONSchemaValidator()
		if err != nil {
			return nil, err
		}
		v = jv
	}

	s := &LensServer{
		controller: deps.Controller,
		hub:        deps.Hub,
		validator:  v,
		logger:     logger.With("component", "mcp"),
		sessions:   NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"bpmnlens",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("bpmnlens shows process deviations on BPMN diagrams. Use bpmn.overlays to read what is drawn on a perspective, bpmn.region to inspect the region a gateway encloses, bpmn.legend for the color legend, bpmn.apply to draw an overlay batch and bpmn.diagram to export a perspective with its overlays."),
	)
	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin
// closes. Dashboard events are forwarded to watching clients meanwhile.
func (s *LensServer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.hub != nil {
		go s.Forward(ctx)
	}
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// Forward relays legend changes, clears and import completions of the
// dashboard to the clients watching the affected perspective. It returns when
// ctx is done.
func (s *LensServer) Forward(ctx context.Context) {
	ch, cancel, err := s.hub.Subscribe(ctx, streaming.EventFilter{
		SessionID: s.controller.ID(),
		EventTypes: []string{
			schema.EventLegendChanged,
			schema.EventStateCleared,
			schema.EventImportDone,
		},
	})
	if err != nil {
		s.logger.Warn("forward subscribe failed", "error", err)
		return
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			payload := map[string]any{
				"event":       ev.EventType,
				"perspective": ev.Perspective,
				"data":        ev.Payload,
			}
			if err := s.notifier.Notify(ctx, ev.Perspective, payload); err != nil {
				s.logger.Debug("notify failed", "event", ev.EventType, "error", err)
			}
		}
	}
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *LensServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *LensServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: overlaysTool(), Handler: s.handleOverlays},
		{Tool: regionTool(), Handler: s.handleRegion},
		{Tool: legendTool(), Handler: s.handleLegend},
		{Tool: applyTool(), Handler: s.handleApply},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func overlaysTool() mcp.Tool {
	return mcp.NewTool("bpmn.overlays",
		mcp.WithDescription("Get the overlay state drawn on a perspective"),
		mcp.WithString("perspective", mcp.Description("Perspective ID (default: every loaded perspective)")),
		mcp.WithBoolean("watch", mcp.Description("Receive notifications when the perspective's legend or state changes")),
	)
}

func regionTool() mcp.Tool {
	return mcp.NewTool("bpmn.region",
		mcp.WithDescription("Get the elements and bounds of the region a gateway encloses"),
		mcp.WithString("perspective", mcp.Required(), mcp.Description("Perspective ID")),
		mcp.WithString("gateway", mcp.Required(), mcp.Description("Gateway element ID")),
	)
}

func legendTool() mcp.Tool {
	return mcp.NewTool("bpmn.legend",
		mcp.WithDescription("Get the color legend of the aggregation view"),
		mcp.WithString("perspective", mcp.Description("Perspective ID (default: the last published legend)")),
	)
}

func applyTool() mcp.Tool {
	return mcp.NewTool("bpmn.apply",
		mcp.WithDescription("Draw an overlay batch on the loaded perspectives"),
		mcp.WithArray("reports", mcp.Required(),
			mcp.Description("Block overlay reports: {block_id, perspective?, color?, flags: [{deviation, details?}]}"),
		),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("bpmn.diagram",
		mcp.WithDescription("Export a perspective with its overlays. Returns Mermaid flowchart syntax, a text outline, or a base64-encoded PNG image"),
		mcp.WithString("perspective", mcp.Required(), mcp.Description("Perspective ID")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("mermaid", "text", "image"),
			mcp.Description("Output format: mermaid (flowchart syntax), text (outline), or image (base64 PNG)"),
		),
		mcp.WithBoolean("all_regions", mcp.Description("Draw every gateway region, not only flagged ones")),
	)
}
