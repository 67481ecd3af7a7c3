package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/bpmnlens/internal/expressions"
)

func withHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := withHome(t)

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":4200", cfg.ListenAddr)
	assert.Equal(t, filepath.Join(home, ".bpmnlens", "bpmnlens.db"), cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "instance", cfg.Mode)
	assert.Equal(t, 10, cfg.SnapshotRetention)
	assert.Equal(t, "0 * * * *", cfg.PruneSchedule)
}

func TestLoadConfig_YAMLSettings(t *testing.T) {
	home := withHome(t)
	dir := filepath.Join(home, ".bpmnlens")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte(`
listen_addr: ":9000"
mode: aggregation
aggregator_host: agg.local
aggregator_port: 8443
snapshot_max_age: 48h
bands:
  - label: Bad
    when: rate >= 50
  - label: Fine
    when: rate < 50
`), 0o644))
	// A JSON file next to it is ignored while settings.yaml exists.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{"listen_addr":":1"}`), 0o644))

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "aggregation", cfg.Mode)
	assert.Equal(t, "agg.local", cfg.AggregatorHost)
	assert.Equal(t, 8443, cfg.AggregatorPort)
	assert.Equal(t, []expressions.Band{{Label: "Bad", When: "rate >= 50"}, {Label: "Fine", When: "rate < 50"}}, cfg.Bands)
	assert.Equal(t, 48*time.Hour, cfg.retention().MaxAge)
	assert.Equal(t, "info", cfg.LogLevel, "unset fields keep defaults")
}

func TestLoadConfig_JSONSettingsAndEnv(t *testing.T) {
	withHome(t)
	path := filepath.Join(t.TempDir(), "lens.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level":"debug","snapshot_retention":3}`), 0o644))

	t.Setenv("BPMNLENS_LISTEN_ADDR", ":7000")
	t.Setenv("BPMNLENS_SNAPSHOT_RETENTION", "5")
	t.Setenv("BPMNLENS_AGGREGATOR_SECURE", "1")
	t.Setenv("BPMNLENS_AGGREGATOR_PORT", "not-a-number")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.SnapshotRetention, "env beats the settings file")
	assert.True(t, cfg.AggregatorSecure)
	assert.Zero(t, cfg.AggregatorPort)
}

func TestLoadConfig_Errors(t *testing.T) {
	withHome(t)
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"malformed json", "bad.json", `{"listen_addr":`},
		{"malformed yaml", "bad.yaml", "mode: [unterminated"},
		{"unknown mode", "mode.json", `{"mode":"replay"}`},
		{"port out of range", "port.json", `{"aggregator_port":70000}`},
		{"bad max age", "age.yaml", "snapshot_max_age: soon"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.file)
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o644))
			_, err := loadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestWriteSettings_RoundTrip(t *testing.T) {
	withHome(t)
	cfg := defaultConfig()
	cfg.AggregatorHost = "agg.local"
	cfg.HoverFilter = `element.tracked`
	cfg.Bands = expressions.DefaultBands

	for _, name := range []string{"settings.yaml", "settings.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			require.NoError(t, writeSettings(path, cfg))
			got, err := loadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, got)
		})
	}
}

func TestDiffConfigs(t *testing.T) {
	base := defaultConfig()

	d := diffConfigs(base, base)
	assert.False(t, d.LogLevelChanged)
	assert.False(t, d.RetentionChanged)
	assert.Empty(t, d.RestartNeeded)

	next := base
	next.LogLevel = "debug"
	next.PruneSchedule = "*/5 * * * *"
	next.ListenAddr = ":1"
	next.Bands = []expressions.Band{{Label: "Any", When: "rate > 0"}}
	d = diffConfigs(base, next)
	assert.True(t, d.LogLevelChanged)
	assert.True(t, d.RetentionChanged)
	assert.Equal(t, []string{"listen_addr", "expressions"}, d.RestartNeeded)
}
