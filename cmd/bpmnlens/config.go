package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rendis/bpmnlens/internal/expressions"
	"github.com/rendis/bpmnlens/internal/scheduler"
	"github.com/rendis/bpmnlens/pkg/schema"
)

// Config holds all bpmnlens server configuration.
// Priority: env vars > settings file > defaults.
type Config struct {
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
	DBPath     string `json:"db_path" yaml:"db_path"`
	LogLevel   string `json:"log_level" yaml:"log_level"`
	SessionID  string `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Mode       string `json:"mode" yaml:"mode"`

	AggregatorHost   string `json:"aggregator_host,omitempty" yaml:"aggregator_host,omitempty"`
	AggregatorPort   int    `json:"aggregator_port,omitempty" yaml:"aggregator_port,omitempty"`
	AggregatorSecure bool   `json:"aggregator_secure,omitempty" yaml:"aggregator_secure,omitempty"`

	// SnapshotRetention is the number of snapshots kept per job/perspective.
	SnapshotRetention int    `json:"snapshot_retention" yaml:"snapshot_retention"`
	SnapshotMaxAge    string `json:"snapshot_max_age,omitempty" yaml:"snapshot_max_age,omitempty"`
	PruneSchedule     string `json:"prune_schedule" yaml:"prune_schedule"`

	HoverFilter string             `json:"hover_filter,omitempty" yaml:"hover_filter,omitempty"`
	StatsQuery  string             `json:"stats_query,omitempty" yaml:"stats_query,omitempty"`
	Bands       []expressions.Band `json:"bands,omitempty" yaml:"bands,omitempty"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:        ":4200",
		DBPath:            filepath.Join(lensDir(), "bpmnlens.db"),
		LogLevel:          "info",
		Mode:              string(schema.ViewInstance),
		SnapshotRetention: 10,
		PruneSchedule:     "0 * * * *",
	}
}

func lensDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bpmnlens"
	}
	return filepath.Join(home, ".bpmnlens")
}

// settingsPath returns the settings file in use: settings.yaml when present,
// settings.json otherwise.
func settingsPath() string {
	yml := filepath.Join(lensDir(), "settings.yaml")
	if _, err := os.Stat(yml); err == nil {
		return yml
	}
	return filepath.Join(lensDir(), "settings.json")
}

// loadConfig layers the settings file at path (settingsPath() when empty)
// and BPMNLENS_* env vars over the defaults. A missing file is not an error.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = settingsPath()
	}

	// Layer 2: settings file.
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decodeSettings(path, data, &cfg); err != nil {
			return cfg, fmt.Errorf("read %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("BPMNLENS_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("BPMNLENS_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("BPMNLENS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BPMNLENS_SESSION_ID"); v != "" {
		cfg.SessionID = v
	}
	if v := os.Getenv("BPMNLENS_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("BPMNLENS_AGGREGATOR_HOST"); v != "" {
		cfg.AggregatorHost = v
	}
	if v := os.Getenv("BPMNLENS_AGGREGATOR_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AggregatorPort = n
		}
	}
	if v := os.Getenv("BPMNLENS_AGGREGATOR_SECURE"); v != "" {
		cfg.AggregatorSecure = v == "true" || v == "1"
	}
	if v := os.Getenv("BPMNLENS_SNAPSHOT_RETENTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SnapshotRetention = n
		}
	}
	if v := os.Getenv("BPMNLENS_SNAPSHOT_MAX_AGE"); v != "" {
		cfg.SnapshotMaxAge = v
	}
	if v := os.Getenv("BPMNLENS_PRUNE_SCHEDULE"); v != "" {
		cfg.PruneSchedule = v
	}
	if v := os.Getenv("BPMNLENS_HOVER_FILTER"); v != "" {
		cfg.HoverFilter = v
	}
	if v := os.Getenv("BPMNLENS_STATS_QUERY"); v != "" {
		cfg.StatsQuery = v
	}

	return cfg, cfg.validate()
}

func decodeSettings(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// encodeSettings is the inverse of decodeSettings.
func encodeSettings(path string, cfg Config) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Marshal(cfg)
	default:
		return json.MarshalIndent(cfg, "", "  ")
	}
}

func (c Config) validate() error {
	switch schema.ViewMode(c.Mode) {
	case schema.ViewInstance, schema.ViewAggregation:
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", schema.ViewInstance, schema.ViewAggregation, c.Mode)
	}
	if c.AggregatorPort < 0 || c.AggregatorPort > 65535 {
		return fmt.Errorf("aggregator_port out of range: %d", c.AggregatorPort)
	}
	if _, err := c.maxAge(); err != nil {
		return err
	}
	return nil
}

func (c Config) maxAge() (time.Duration, error) {
	if c.SnapshotMaxAge == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.SnapshotMaxAge)
	if err != nil {
		return 0, fmt.Errorf("snapshot_max_age: %w", err)
	}
	return d, nil
}

func (c Config) retention() scheduler.Config {
	age, _ := c.maxAge()
	return scheduler.Config{
		Schedule: c.PruneSchedule,
		Keep:     c.SnapshotRetention,
		MaxAge:   age,
	}
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged  bool
	RetentionChanged bool
	RestartNeeded    []string // fields that require a server restart
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if old.PruneSchedule != new.PruneSchedule ||
		old.SnapshotRetention != new.SnapshotRetention ||
		old.SnapshotMaxAge != new.SnapshotMaxAge {
		d.RetentionChanged = true
	}
	if old.ListenAddr != new.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "listen_addr")
	}
	if old.DBPath != new.DBPath {
		d.RestartNeeded = append(d.RestartNeeded, "db_path")
	}
	if old.SessionID != new.SessionID {
		d.RestartNeeded = append(d.RestartNeeded, "session_id")
	}
	if old.AggregatorSecure != new.AggregatorSecure {
		d.RestartNeeded = append(d.RestartNeeded, "aggregator_secure")
	}
	if old.HoverFilter != new.HoverFilter || old.StatsQuery != new.StatsQuery || !slices.Equal(old.Bands, new.Bands) {
		d.RestartNeeded = append(d.RestartNeeded, "expressions")
	}
	return d
}
