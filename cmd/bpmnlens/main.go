// Command bpmnlens serves the deviation overlay dashboard and inspects BPMN
// models from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bpmnlens",
		Short:         "Deviation overlays for BPMN process diagrams",
		Long:          `bpmnlens follows a real-time deviation aggregator and draws its overlay reports, gateway regions and legend on BPMN diagrams.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default: ~/.bpmnlens/settings.yaml or settings.json)")

	root.AddCommand(
		newServeCmd(),
		newInitCmd(),
		newRegionCmd(),
		newRenderCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
