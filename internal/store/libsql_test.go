package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/bpmnlens/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleSnapshot(jobID, perspective string) *Snapshot {
	return &Snapshot{
		JobID:       jobID,
		Perspective: perspective,
		ViewMode:    schema.ViewInstance,
		Overlays: []schema.BlockOverlayReport{{
			BlockID: "Review",
			Color:   &schema.Color{Stroke: "#d32f2f", Fill: "#ffcdd2"},
			Flags:   []schema.DeviationFlag{{Deviation: schema.DeviationSkipped}},
		}},
		Summary: map[string]any{"totalInstances": float64(12)},
	}
}

func TestSaveAndLatestSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := sampleSnapshot("job-1", "control-flow")
	require.NoError(t, s.SaveSnapshot(ctx, first))
	assert.NotZero(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	second := sampleSnapshot("job-1", "control-flow")
	second.Overlays[0].Flags = []schema.DeviationFlag{{Deviation: schema.DeviationIncomplete}}
	second.Summary = nil
	require.NoError(t, s.SaveSnapshot(ctx, second))

	got, err := s.LatestSnapshot(ctx, "job-1", "control-flow")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, schema.ViewInstance, got.ViewMode)
	require.Len(t, got.Overlays, 1)
	assert.Equal(t, "Review", got.Overlays[0].BlockID)
	assert.Equal(t, schema.DeviationIncomplete, got.Overlays[0].Flags[0].Deviation)
	assert.Equal(t, "#d32f2f", got.Overlays[0].Color.Stroke)
	assert.Nil(t, got.Summary)
}

func TestSaveSnapshot_NilOverlaysStoredEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, &Snapshot{JobID: "job-1", Perspective: "p", ViewMode: schema.ViewAggregation}))

	got, err := s.LatestSnapshot(ctx, "job-1", "p")
	require.NoError(t, err)
	assert.NotNil(t, got.Overlays)
	assert.Empty(t, got.Overlays)
}

func TestSaveSnapshot_Validation(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveSnapshot(context.Background(), &Snapshot{JobID: "job-1"})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestLatestSnapshot_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LatestSnapshot(context.Background(), "missing", "p")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestListSnapshots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, sampleSnapshot("job-1", "a")))
	require.NoError(t, s.SaveSnapshot(ctx, sampleSnapshot("job-1", "b")))
	require.NoError(t, s.SaveSnapshot(ctx, sampleSnapshot("job-2", "a")))
	require.NoError(t, s.SaveSnapshot(ctx, sampleSnapshot("job-1", "a")))

	all, err := s.ListSnapshots(ctx, SnapshotFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Greater(t, all[0].ID, all[1].ID, "newest first")

	job1, err := s.ListSnapshots(ctx, SnapshotFilter{JobID: "job-1"})
	require.NoError(t, err)
	assert.Len(t, job1, 3)

	pair, err := s.ListSnapshots(ctx, SnapshotFilter{JobID: "job-1", Perspective: "a"})
	require.NoError(t, err)
	assert.Len(t, pair, 2)

	limited, err := s.ListSnapshots(ctx, SnapshotFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestPruneSnapshots_KeepsNewestPerPair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, s.SaveSnapshot(ctx, sampleSnapshot("job-1", "a")))
	}
	require.NoError(t, s.SaveSnapshot(ctx, sampleSnapshot("job-1", "b")))

	n, err := s.PruneSnapshots(ctx, Retention{Keep: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	a, err := s.ListSnapshots(ctx, SnapshotFilter{JobID: "job-1", Perspective: "a"})
	require.NoError(t, err)
	assert.Len(t, a, 2)

	b, err := s.ListSnapshots(ctx, SnapshotFilter{Perspective: "b"})
	require.NoError(t, err)
	assert.Len(t, b, 1)
}

func TestPruneSnapshots_OlderThan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	old := time.Now().UTC().Add(-48 * time.Hour)

	for i := 0; i < 3; i++ {
		snap := sampleSnapshot("job-1", "a")
		snap.CreatedAt = old.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.SaveSnapshot(ctx, snap))
	}

	n, err := s.PruneSnapshots(ctx, Retention{Keep: 10, OlderThan: time.Now().UTC().Add(-24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = s.LatestSnapshot(ctx, "job-1", "a")
	assert.NoError(t, err, "newest snapshot always survives")
}

func TestAppendAndGetUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := &UpdateRecord{JobID: "job-1", Payload: []byte(`{"job_id":"job-1"}`)}
		require.NoError(t, s.AppendUpdate(ctx, rec))
		assert.Equal(t, int64(i+1), rec.Sequence)
	}
	require.NoError(t, s.AppendUpdate(ctx, &UpdateRecord{JobID: "job-2", Payload: []byte(`{}`)}))

	all, err := s.GetUpdates(ctx, "job-1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.JSONEq(t, `{"job_id":"job-1"}`, string(all[0].Payload))

	since, err := s.GetUpdates(ctx, "job-1", 2)
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, int64(3), since[0].Sequence)

	other, err := s.GetUpdates(ctx, "job-2", 0)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, int64(1), other[0].Sequence, "sequences are per job")
}

func TestAppendUpdate_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.AppendUpdate(ctx, &UpdateRecord{Payload: []byte(`{}`)})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	err = s.AppendUpdate(ctx, &UpdateRecord{JobID: "job-1"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestPruneUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendUpdate(ctx, &UpdateRecord{
		JobID: "job-1", Payload: []byte(`{}`), ReceivedAt: time.Now().UTC().Add(-72 * time.Hour),
	}))
	require.NoError(t, s.AppendUpdate(ctx, &UpdateRecord{JobID: "job-1", Payload: []byte(`{}`)}))

	n, err := s.PruneUpdates(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestVacuum(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Vacuum(context.Background()))
}

func TestSplitStatements(t *testing.T) {
	script := `-- header comment
CREATE TABLE a (id INTEGER);
-- only a comment;
CREATE INDEX i ON a (id);
`
	stmts := splitStatements(script)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Equal(t, "CREATE INDEX i ON a (id)", stmts[1])
}
