package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reviewDOT = `digraph review {
  Start  [comment="bpmn:StartEvent", pos="100,200", width="36", height="36"];
  G1     [comment="bpmn:ExclusiveGateway", pos="200,193", width="50", height="50"];
  Review [comment="bpmn:UserTask", label="Review request", pos="300,178", width="100", height="80"];
  G2     [comment="bpmn:ExclusiveGateway", label="Approved?", pos="450,193", width="50", height="50"];
  Rework [comment="bpmn:Task", pos="300,300", width="100", height="80"];
  End    [comment="bpmn:EndEvent", pos="550,200", width="36", height="36"];
  Start -> G1 [id="f1"];
  G1 -> Review [id="f2"];
  Review -> G2 [id="f3"];
  G2 -> End [id="f4"];
  G2 -> Rework [id="f5"];
  Rework -> G1 [id="f6"];
}`

func writeModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "review.dot")
	require.NoError(t, os.WriteFile(path, []byte(reviewDOT), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	withHome(t)
	configPath = ""
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestRegionCmd(t *testing.T) {
	model := writeModel(t)

	out, err := execute(t, "region", "--file", model, "--gateway", "G1", "--json")
	require.NoError(t, err)
	var regions []regionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &regions))
	require.Len(t, regions, 1)
	assert.Equal(t, "G1", regions[0].Gateway)
	assert.Equal(t, "G2", regions[0].ClosingGateway)
	assert.Contains(t, regions[0].Elements, "Review")
	assert.False(t, regions[0].Bounds.IsZero())

	out, err = execute(t, "region", "-f", model)
	require.NoError(t, err)
	assert.Contains(t, out, "G1 (G1, ")
	assert.Contains(t, out, "G2 (Approved?, ")

	_, err = execute(t, "region", "-f", model, "-g", "Review")
	assert.ErrorContains(t, err, "not a gateway")

	_, err = execute(t, "region")
	assert.Error(t, err, "--file is required")
}

func TestRenderCmd(t *testing.T) {
	model := writeModel(t)

	out, err := execute(t, "render", "-f", model)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "flowchart") || strings.HasPrefix(out, "graph"), out)
	assert.Contains(t, out, "Review request")

	batch := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(batch, []byte(`[{"block_id":"Review","color":"RED","flags":[{"deviation":"SKIPPED"}]}]`), 0o644))
	out, err = execute(t, "render", "-f", model, "--format", "text", "--overlays", batch)
	require.NoError(t, err)
	assert.Contains(t, out, "Review")

	dest := filepath.Join(t.TempDir(), "review.mmd")
	_, err = execute(t, "render", "-f", model, "-o", dest)
	require.NoError(t, err)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Review request")

	_, err = execute(t, "render", "-f", model, "--format", "gif")
	assert.ErrorContains(t, err, "unsupported format")
}

func TestInitCmd(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "settings.yaml")
	out, err := execute(t, "--config", dest, "init", "--listen-addr", ":5555", "--mode", "aggregation")
	require.NoError(t, err)
	assert.Contains(t, out, "Config written to "+dest)

	cfg, err := loadConfig(dest)
	require.NoError(t, err)
	assert.Equal(t, ":5555", cfg.ListenAddr)
	assert.Equal(t, "aggregation", cfg.Mode)

	_, err = execute(t, "--config", dest, "init", "--mode", "replay")
	assert.Error(t, err)
}
