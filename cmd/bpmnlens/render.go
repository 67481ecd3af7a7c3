package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rendis/bpmnlens/internal/bpmn"
	"github.com/rendis/bpmnlens/internal/canvas"
	"github.com/rendis/bpmnlens/internal/diagram"
	"github.com/rendis/bpmnlens/internal/overlay"
	"github.com/rendis/bpmnlens/internal/validation"
)

type renderFlags struct {
	file        string
	format      string
	out         string
	overlays    string
	aggregation bool
	allRegions  bool
}

func newRenderCmd() *cobra.Command {
	var f renderFlags
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Export a model, optionally with an overlay batch drawn on it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := render(cmd.Context(), f)
			if err != nil {
				return err
			}
			if f.out == "" {
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}
			return os.WriteFile(f.out, out, 0o644)
		},
	}
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "model file (.bpmn, .xml, .dot)")
	cmd.Flags().StringVar(&f.format, "format", "mermaid", "mermaid, text, png, svg or dot")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVar(&f.overlays, "overlays", "", "JSON file with an overlay report batch to draw")
	cmd.Flags().BoolVar(&f.aggregation, "aggregation", false, "draw the batch with the aggregation view policy")
	cmd.Flags().BoolVar(&f.allRegions, "all-regions", false, "draw every gateway region, not only flagged ones")
	cmd.MarkFlagRequired("file")
	return cmd
}

func render(ctx context.Context, f renderFlags) ([]byte, error) {
	doc, err := bpmn.Load(f.file)
	if err != nil {
		return nil, err
	}

	in := diagram.Input{
		Title:      filepath.Base(f.file),
		Graph:      doc.Graph,
		Names:      doc.Names,
		AllRegions: f.allRegions,
	}
	if f.overlays != "" {
		state, err := drawOverlays(ctx, doc, f.overlays, f.aggregation)
		if err != nil {
			return nil, err
		}
		in.State = &state
	}
	model := diagram.Build(in)

	switch f.format {
	case "mermaid":
		return []byte(diagram.RenderMermaid(model) + "\n"), nil
	case "text":
		return []byte(diagram.RenderText(model)), nil
	case string(diagram.FormatPNG), string(diagram.FormatSVG), string(diagram.FormatDOT):
		return diagram.RenderImage(ctx, model, diagram.Format(f.format))
	default:
		return nil, fmt.Errorf("unsupported format %q", f.format)
	}
}

// drawOverlays applies the batch in path on a headless canvas and returns
// the resulting overlay state.
func drawOverlays(ctx context.Context, doc *bpmn.Document, path string, aggregation bool) (overlay.Snapshot, error) {
	data, err := readFileOrStdin(path)
	if err != nil {
		return overlay.Snapshot{}, err
	}
	v, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return overlay.Snapshot{}, err
	}
	reports, err := v.DecodeOverlays(data)
	if err != nil {
		return overlay.Snapshot{}, err
	}

	r, err := overlay.New(canvas.NewMemoryCanvas(doc.Graph, nil), overlay.Options{Logger: quietLogger()})
	if err != nil {
		return overlay.Snapshot{}, err
	}
	defer r.Close()
	r.SetNames(doc.Names)
	if aggregation {
		r.ApplyAggregatedOverlayReport(ctx, reports)
	} else {
		r.ApplyOverlayReport(ctx, reports)
	}
	return r.State(), nil
}

func readFileOrStdin(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// quietLogger keeps offline renders to warnings on stderr.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
