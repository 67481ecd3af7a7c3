package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/bpmnlens/internal/store"
)

// mockSchedulerStore satisfies store.Store for scheduler tests.
type mockSchedulerStore struct {
	store.Store
	mu         sync.Mutex
	retentions []store.Retention
	updateCuts []time.Time
	pruned     int64
	pruneErr   error
	block      chan struct{}
}

func (m *mockSchedulerStore) PruneSnapshots(_ context.Context, policy store.Retention) (int64, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retentions = append(m.retentions, policy)
	return m.pruned, m.pruneErr
}

func (m *mockSchedulerStore) PruneUpdates(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCuts = append(m.updateCuts, olderThan)
	return 1, nil
}

func (m *mockSchedulerStore) sweeps() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.retentions)
}

func newTestScheduler(t *testing.T, s store.Store, cfg Config) *Scheduler {
	t.Helper()
	sch, err := NewScheduler(s, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return sch
}

func TestNewScheduler_Defaults(t *testing.T) {
	sch := newTestScheduler(t, &mockSchedulerStore{}, Config{})
	assert.Equal(t, defaultSchedule, sch.cfg.Schedule)
	assert.Equal(t, defaultKeep, sch.cfg.Keep)
	assert.Equal(t, defaultTickInterval, sch.cfg.TickInterval)
}

func TestNewScheduler_InvalidSchedule(t *testing.T) {
	_, err := NewScheduler(&mockSchedulerStore{}, Config{Schedule: "not a cron"}, nil)
	assert.Error(t, err)
}

func TestCalculateNextRun(t *testing.T) {
	sch := newTestScheduler(t, &mockSchedulerStore{}, Config{})
	from := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"0 * * * *", time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)},
		{"*/5 * * * *", time.Date(2026, 3, 1, 10, 20, 0, 0, time.UTC)},
		{"30 2 * * *", time.Date(2026, 3, 2, 2, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := sch.CalculateNextRun(tt.expr, from)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := sch.CalculateNextRun("bad", from)
	assert.Error(t, err)
}

func TestSweep_KeepOnly(t *testing.T) {
	m := &mockSchedulerStore{pruned: 3}
	sch := newTestScheduler(t, m, Config{Keep: 5})

	res, err := sch.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Snapshots)
	assert.Zero(t, res.Updates)

	require.Len(t, m.retentions, 1)
	assert.Equal(t, 5, m.retentions[0].Keep)
	assert.True(t, m.retentions[0].OlderThan.IsZero())
	assert.Empty(t, m.updateCuts, "no age limit, update log untouched")
}

func TestSweep_MaxAge(t *testing.T) {
	m := &mockSchedulerStore{}
	sch := newTestScheduler(t, m, Config{MaxAge: 24 * time.Hour})
	fixed := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	sch.now = func() time.Time { return fixed }

	res, err := sch.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Updates)

	cut := fixed.Add(-24 * time.Hour)
	assert.Equal(t, cut, m.retentions[0].OlderThan)
	assert.Equal(t, []time.Time{cut}, m.updateCuts)
}

func TestSweep_StoreError(t *testing.T) {
	m := &mockSchedulerStore{pruneErr: errors.New("disk full")}
	sch := newTestScheduler(t, m, Config{})

	_, err := sch.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestSweep_ConcurrentCallSkipped(t *testing.T) {
	m := &mockSchedulerStore{block: make(chan struct{})}
	sch := newTestScheduler(t, m, Config{})

	done := make(chan struct{})
	go func() {
		_, _ = sch.Sweep(context.Background())
		close(done)
	}()

	require.Eventually(t, sch.sweeping.Load, time.Second, time.Millisecond)
	res, err := sch.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res)

	close(m.block)
	<-done
	assert.Equal(t, 1, m.sweeps())
}

func TestTick_RunsWhenDue(t *testing.T) {
	m := &mockSchedulerStore{}
	sch := newTestScheduler(t, m, Config{Schedule: "0 * * * *"})
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sch.now = func() time.Time { return now }

	sch.nextRun = now.Add(time.Minute)
	sch.tick(context.Background())
	assert.Equal(t, 0, m.sweeps(), "not due yet")

	sch.nextRun = now.Add(-time.Second)
	sch.tick(context.Background())
	assert.Equal(t, 1, m.sweeps())
	assert.Equal(t, time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC), sch.NextRun())
}

func TestStartStop(t *testing.T) {
	m := &mockSchedulerStore{}
	sch := newTestScheduler(t, m, Config{Schedule: "* * * * *", TickInterval: 5 * time.Millisecond})

	require.NoError(t, sch.Start(context.Background()))
	assert.False(t, sch.NextRun().IsZero())
	assert.Error(t, sch.Start(context.Background()), "double start")

	require.NoError(t, sch.Stop())
	assert.True(t, sch.NextRun().IsZero())
	require.NoError(t, sch.Stop(), "second stop is a no-op")
}
