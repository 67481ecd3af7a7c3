package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var (
		format string
		cfg    = defaultConfig()
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a settings file and reload a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			path := configPath
			if path == "" {
				path = filepath.Join(lensDir(), "settings."+format)
			}
			if err := writeSettings(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)
			if pid, ok := signalRunningServer(); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "Signaled running server (PID %d) to reload configuration\n", pid)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&format, "format", "yaml", "settings file format: yaml or json")
	fl.StringVar(&cfg.ListenAddr, "listen-addr", cfg.ListenAddr, "panel listen address")
	fl.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "snapshot database path")
	fl.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fl.StringVar(&cfg.Mode, "mode", cfg.Mode, "initial view mode: instance or aggregation")
	fl.StringVar(&cfg.AggregatorHost, "aggregator-host", "", "real-time aggregator host")
	fl.IntVar(&cfg.AggregatorPort, "aggregator-port", 0, "real-time aggregator port")
	fl.BoolVar(&cfg.AggregatorSecure, "aggregator-secure", false, "dial the aggregator with wss://")
	fl.IntVar(&cfg.SnapshotRetention, "snapshot-retention", cfg.SnapshotRetention, "snapshots kept per job and perspective")
	fl.StringVar(&cfg.SnapshotMaxAge, "snapshot-max-age", "", "prune older snapshots, e.g. 720h")
	fl.StringVar(&cfg.PruneSchedule, "prune-schedule", cfg.PruneSchedule, "cron schedule of the retention sweep")
	fl.StringVar(&cfg.HoverFilter, "hover-filter", "", "CEL predicate selecting elements that show tooltips")
	fl.StringVar(&cfg.StatsQuery, "stats-query", "", "jq query extracting element statistics from the summary")
	return cmd
}

func writeSettings(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	data, err := encodeSettings(path, cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func pidPath() string {
	return filepath.Join(lensDir(), "bpmnlens.pid")
}

func writePIDFile() error {
	if err := os.MkdirAll(lensDir(), 0o700); err != nil {
		return err
	}
	return os.WriteFile(pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// signalRunningServer sends SIGHUP to a running server found via its pidfile.
func signalRunningServer() (int, bool) {
	data, err := os.ReadFile(pidPath())
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	// Check if process is alive.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return 0, false
	}
	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return 0, false
	}
	return pid, true
}
