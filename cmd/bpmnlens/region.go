package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/bpmnlens/internal/bpmn"
	"github.com/rendis/bpmnlens/internal/graph"
)

type regionInfo struct {
	Gateway        string     `json:"gateway"`
	Name           string     `json:"name"`
	Elements       []string   `json:"elements"`
	Bounds         graph.Rect `json:"bounds"`
	Loop           bool       `json:"loop"`
	ClosingGateway string     `json:"closing_gateway,omitempty"`
	JoiningGateway string     `json:"joining_gateway,omitempty"`
}

func newRegionCmd() *cobra.Command {
	var (
		file    string
		gateway string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "region",
		Short: "Print the region each gateway of a model encloses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := bpmn.Load(file)
			if err != nil {
				return err
			}
			regions, err := gatewayRegions(doc, gateway)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(regions)
			}
			printRegions(cmd.OutOrStdout(), regions)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "model file (.bpmn, .xml, .dot)")
	cmd.Flags().StringVarP(&gateway, "gateway", "g", "", "gateway element ID (default: every gateway)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.MarkFlagRequired("file")
	return cmd
}

// gatewayRegions computes the region of one gateway, or of every gateway in
// document order when id is empty.
func gatewayRegions(doc *bpmn.Document, id string) ([]regionInfo, error) {
	g := doc.Graph
	var gateways []*graph.Element
	if id != "" {
		gw, ok := g.Element(id)
		if !ok {
			return nil, fmt.Errorf("element %q not found", id)
		}
		if !gw.IsGateway() {
			return nil, fmt.Errorf("element %q is not a gateway", id)
		}
		gateways = append(gateways, gw)
	} else {
		for _, e := range g.Elements() {
			if e.IsGateway() {
				gateways = append(gateways, e)
			}
		}
	}

	out := make([]regionInfo, 0, len(gateways))
	for _, gw := range gateways {
		region := graph.FindGatewayRegion(g, gw)
		info := regionInfo{
			Gateway:  gw.ID,
			Name:     doc.Name(gw.ID),
			Elements: graph.IDs(region),
			Bounds:   graph.ComputeBounds(region),
			Loop:     graph.IsLoopGateway(g, gw),
		}
		if info.Elements == nil {
			info.Elements = []string{}
		}
		if end := graph.FindNearestDownstreamGateway(g, gw); end != nil {
			info.ClosingGateway = end.ID
		}
		if join := graph.FindJoiningGateway(g, gw); join != nil {
			info.JoiningGateway = join.ID
		}
		out = append(out, info)
	}
	return out, nil
}

func printRegions(w io.Writer, regions []regionInfo) {
	for _, r := range regions {
		kind := "split"
		if r.Loop {
			kind = "loop"
		}
		fmt.Fprintf(w, "%s (%s, %s)\n", r.Gateway, r.Name, kind)
		if r.ClosingGateway != "" {
			fmt.Fprintf(w, "  closes at: %s\n", r.ClosingGateway)
		}
		if r.JoiningGateway != "" {
			fmt.Fprintf(w, "  joins at:  %s\n", r.JoiningGateway)
		}
		if len(r.Elements) == 0 {
			fmt.Fprintln(w, "  no region")
			continue
		}
		fmt.Fprintf(w, "  elements:  %s\n", strings.Join(r.Elements, ", "))
		b := r.Bounds
		fmt.Fprintf(w, "  bounds:    x=%.0f y=%.0f w=%.0f h=%.0f\n", b.X, b.Y, b.Width, b.Height)
	}
}
