// Package bpmn imports diagram models into an element graph. BPMN 2.0 XML is
// the native format; DOT is accepted for hand-written and generated graphs.
package bpmn

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/bpmnlens/internal/graph"
	"github.com/rendis/bpmnlens/internal/validation"
	"github.com/rendis/bpmnlens/pkg/schema"
)

// Document is an imported diagram.
type Document struct {
	Graph *graph.Graph
	// Names maps every element ID to its display name, falling back to the ID.
	Names  map[string]string
	Report *schema.ImportReport
}

// Name returns the display name of id.
func (d *Document) Name(id string) string {
	if n, ok := d.Names[id]; ok {
		return n
	}
	return id
}

// Format is a supported model format.
type Format string

const (
	FormatXML Format = "bpmn"
	FormatDOT Format = "dot"
)

// FormatOf guesses the format from a file name.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bpmn", ".xml":
		return FormatXML, nil
	case ".dot", ".gv":
		return FormatDOT, nil
	default:
		return "", schema.NewErrorf(schema.ErrCodeValidation, "unsupported model file %q", path)
	}
}

// Parse imports data in the given format.
func Parse(format Format, data []byte) (*Document, error) {
	switch format {
	case FormatXML:
		return ParseXML(strings.NewReader(string(data)))
	case FormatDOT:
		return ParseDOT(string(data))
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unsupported model format %q", format)
	}
}

// Load reads and imports a model file.
func Load(path string) (*Document, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	return Parse(format, data)
}

// finish runs the graph checks and rejects graphs with errors.
func finish(g *graph.Graph, names map[string]string) (*Document, error) {
	report := validation.CheckGraph(g)
	if err := report.ToError(); err != nil {
		return nil, err
	}
	return &Document{Graph: g, Names: names, Report: report}, nil
}
