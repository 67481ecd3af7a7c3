package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/bpmnlens/internal/bpmn"
	"github.com/rendis/bpmnlens/internal/connector"
	"github.com/rendis/bpmnlens/internal/expressions"
	"github.com/rendis/bpmnlens/internal/logging"
	"github.com/rendis/bpmnlens/internal/overlay"
	"github.com/rendis/bpmnlens/internal/panel"
	"github.com/rendis/bpmnlens/internal/scheduler"
	"github.com/rendis/bpmnlens/internal/session"
	"github.com/rendis/bpmnlens/internal/store"
	"github.com/rendis/bpmnlens/internal/streaming"
	"github.com/rendis/bpmnlens/internal/validation"
	"github.com/rendis/bpmnlens/pkg/mcp"
	"github.com/rendis/bpmnlens/pkg/schema"
)

const shutdownTimeout = 5 * time.Second

type serveFlags struct {
	mcp   bool
	job   string
	model string
}

func newServeCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard panel (and optionally the MCP stdio server)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, f)
		},
	}
	cmd.Flags().BoolVar(&f.mcp, "mcp", false, "also serve MCP tools over stdio")
	cmd.Flags().StringVar(&f.job, "job", "", "follow this job on the configured aggregator at startup")
	cmd.Flags().StringVar(&f.model, "model", "", "import a .bpmn or .dot model as perspective \"default\" at startup")
	return cmd
}

// swapHandler serves whichever handler was stored last.
type swapHandler struct {
	current atomic.Pointer[http.Handler]
}

func (s *swapHandler) store(h http.Handler) { s.current.Store(&h) }

func (s *swapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*s.current.Load()).ServeHTTP(w, r)
}

// newLogger writes to stderr so the MCP stdio transport keeps stdout.
func newLogger(level *slog.LevelVar) *slog.Logger {
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func overlayOptions(cfg Config, logger *slog.Logger) (overlay.Options, error) {
	opts := overlay.Options{Logger: logger}
	stats, err := expressions.NewStatsQuery(cfg.StatsQuery)
	if err != nil {
		return opts, fmt.Errorf("stats_query: %w", err)
	}
	bands, err := expressions.NewBandClassifier(cfg.Bands)
	if err != nil {
		return opts, fmt.Errorf("bands: %w", err)
	}
	opts.Stats, opts.Bands = stats, bands
	if cfg.HoverFilter != "" {
		hf, err := expressions.NewHoverFilter(cfg.HoverFilter)
		if err != nil {
			return opts, fmt.Errorf("hover_filter: %w", err)
		}
		opts.HoverFilter = hf
	}
	return opts, nil
}

func serve(ctx context.Context, cfg Config, f serveFlags) error {
	level := new(slog.LevelVar)
	level.Set(logging.ParseLevel(cfg.LogLevel))
	logger := newLogger(level)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	sched, err := startScheduler(ctx, st, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { sched.Stop() }()

	hub := streaming.NewMemoryHub()
	defer hub.Close()
	validator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return err
	}
	client, err := connector.New(connector.Options{
		Hub:       hub,
		Validator: validator,
		Logger:    logger,
		Secure:    cfg.AggregatorSecure,
	})
	if err != nil {
		return err
	}
	ovOpts, err := overlayOptions(cfg, logger)
	if err != nil {
		return err
	}

	controller := session.NewController(session.Options{
		SessionID: cfg.SessionID,
		Logger:    logger,
		Hub:       hub,
		Source:    client,
		Store:     st,
		Overlay:   ovOpts,
		Mode:      schema.ViewMode(cfg.Mode),
	})
	defer controller.Close(context.Background())

	buildPanel := func(s *scheduler.Scheduler) (http.Handler, error) {
		p, err := panel.NewPanelServer(panel.PanelDeps{
			Controller: controller,
			Hub:        hub,
			Validator:  validator,
			Store:      st,
			Scheduler:  s,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return p.Handler(), nil
	}
	h, err := buildPanel(sched)
	if err != nil {
		return err
	}
	handler := &swapHandler{}
	handler.store(h)

	if f.model != "" {
		if err := importModel(ctx, controller, f.model); err != nil {
			return err
		}
	}
	if f.job != "" {
		job := schema.Job{JobID: f.job, Host: cfg.AggregatorHost, Port: cfg.AggregatorPort}
		if err := controller.ConnectJob(ctx, job); err != nil {
			return fmt.Errorf("follow job %s: %w", f.job, err)
		}
	}

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	errCh := make(chan error, 2)
	go func() {
		logger.Info("panel listening", "addr", cfg.ListenAddr, "session_id", controller.ID())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if f.mcp {
		lens, err := mcp.NewLensServer(mcp.LensServerDeps{
			Controller: controller,
			Hub:        hub,
			Validator:  validator,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		go func() { errCh <- lens.Serve(ctx) }()
	}

	if err := writePIDFile(); err != nil {
		logger.Warn("write pidfile", "error", err)
	}
	defer os.Remove(pidPath())

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return shutdown(srv, logger)
		case err := <-errCh:
			shutdown(srv, logger)
			return err
		case <-hup:
			next, err := loadConfig(configPath)
			if err != nil {
				logger.Error("reload config", "error", err)
				continue
			}
			d := diffConfigs(cfg, next)
			if d.LogLevelChanged {
				level.Set(logging.ParseLevel(next.LogLevel))
				logger.Info("log level changed", "level", next.LogLevel)
			}
			if d.RetentionChanged {
				replaced, err := startScheduler(ctx, st, next, logger)
				if err != nil {
					logger.Error("reload retention", "error", err)
					continue
				}
				h, err := buildPanel(replaced)
				if err != nil {
					replaced.Stop()
					logger.Error("rebuild panel", "error", err)
					continue
				}
				sched.Stop()
				sched = replaced
				handler.store(h)
				logger.Info("retention schedule changed", "schedule", next.PruneSchedule, "keep", next.SnapshotRetention)
			}
			if len(d.RestartNeeded) > 0 {
				logger.Warn("config changes need a restart", "fields", d.RestartNeeded)
			}
			cfg = next
		}
	}
}

func startScheduler(ctx context.Context, st store.Store, cfg Config, logger *slog.Logger) (*scheduler.Scheduler, error) {
	sched, err := scheduler.NewScheduler(st, cfg.retention(), logger)
	if err != nil {
		return nil, err
	}
	if err := sched.Start(ctx); err != nil {
		return nil, err
	}
	return sched, nil
}

func shutdown(srv *http.Server, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("panel shutdown", "error", err)
		return err
	}
	return nil
}

// importModel loads a model file and marks it imported, as the browser widget
// would after rendering it.
func importModel(ctx context.Context, c *session.Controller, path string) error {
	const perspective = "default"
	format, err := bpmn.FormatOf(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := c.LoadModel(ctx, perspective, filepath.Base(path), format, data); err != nil {
		return err
	}
	return c.ImportDone(ctx, perspective)
}
