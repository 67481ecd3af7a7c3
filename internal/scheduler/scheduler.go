// Package scheduler runs the snapshot retention sweep on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/bpmnlens/internal/metrics"
	"github.com/rendis/bpmnlens/internal/store"
)

// Config controls what the retention sweep removes and when.
type Config struct {
	// Schedule is a five-field cron expression, e.g. "0 * * * *".
	Schedule string
	// Keep is the number of snapshots retained per job/perspective pair.
	Keep int
	// MaxAge removes non-latest snapshots and logged updates older than it.
	// Zero disables age-based pruning.
	MaxAge time.Duration
	// TickInterval is how often the loop checks whether a sweep is due.
	TickInterval time.Duration
}

const (
	defaultSchedule     = "0 * * * *"
	defaultKeep         = 10
	defaultTickInterval = 60 * time.Second
)

// SweepResult reports what one sweep removed.
type SweepResult struct {
	Snapshots int64 `json:"snapshots"`
	Updates   int64 `json:"updates"`
}

// Scheduler prunes old snapshots and update log entries when the cron
// schedule comes due.
type Scheduler struct {
	store    store.Store
	cfg      Config
	parser   cron.Parser
	schedule cron.Schedule
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	nextRun time.Time

	sweeping atomic.Bool
}

// NewScheduler validates cfg and returns a stopped scheduler.
func NewScheduler(s store.Store, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = defaultSchedule
	}
	if cfg.Keep < 1 {
		cfg.Keep = defaultKeep
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	sch := &Scheduler{
		store:  s,
		cfg:    cfg,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger: logger.With("component", "scheduler"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	schedule, err := sch.parser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", cfg.Schedule, err)
	}
	sch.schedule = schedule
	return sch, nil
}

// Start launches the background loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.nextRun = s.schedule.Next(s.now())
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started",
		slog.String("schedule", s.cfg.Schedule),
		slog.Time("next_run", s.NextRun()),
	)
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs a sweep when the next scheduled time has passed.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	due := !s.nextRun.IsZero() && !s.nextRun.After(now)
	if due {
		s.nextRun = s.schedule.Next(now)
	}
	s.mu.Unlock()

	if !due {
		return
	}
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("retention sweep failed", slog.String("error", err.Error()))
	}
}

// Sweep prunes the store once. Concurrent calls while a sweep is running
// return immediately with an empty result.
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	if !s.sweeping.CompareAndSwap(false, true) {
		s.logger.Debug("sweep already running")
		return res, nil
	}
	defer s.sweeping.Store(false)

	policy := store.Retention{Keep: s.cfg.Keep}
	if s.cfg.MaxAge > 0 {
		policy.OlderThan = s.now().Add(-s.cfg.MaxAge)
	}

	n, err := s.store.PruneSnapshots(ctx, policy)
	if err != nil {
		return res, fmt.Errorf("prune snapshots: %w", err)
	}
	res.Snapshots = n
	metrics.RecordPruned(n)

	if !policy.OlderThan.IsZero() {
		n, err = s.store.PruneUpdates(ctx, policy.OlderThan)
		if err != nil {
			return res, fmt.Errorf("prune updates: %w", err)
		}
		res.Updates = n
	}

	s.logger.Info("retention sweep finished",
		slog.Int64("snapshots", res.Snapshots),
		slog.Int64("updates", res.Updates),
	)
	return res, nil
}

// NextRun returns when the next sweep is due, or zero when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	s.done = nil
	s.nextRun = time.Time{}
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
	return nil
}
