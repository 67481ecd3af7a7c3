package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/bpmnlens/pkg/schema"
)

func newTestUpdateLog(t *testing.T) (*UpdateLog, *LibSQLStore) {
	t.Helper()
	s := newTestStore(t)
	return NewUpdateLog(s), s
}

func overlayUpdate(jobID string, blockIDs ...string) *schema.JobUpdate {
	reports := make([]schema.BlockOverlayReport, 0, len(blockIDs))
	for _, id := range blockIDs {
		reports = append(reports, schema.BlockOverlayReport{
			BlockID: id,
			Flags:   []schema.DeviationFlag{{Deviation: schema.DeviationSkipped}},
		})
	}
	return &schema.JobUpdate{Update: &schema.UpdateBody{JobID: jobID, Overlays: reports}}
}

func TestUpdateLog_RecordUsesResolvedJobID(t *testing.T) {
	l, s := newTestUpdateLog(t)
	ctx := context.Background()

	rec, err := l.Record(ctx, &schema.JobUpdate{JobID: "outer", Update: &schema.UpdateBody{JobID: "inner"}})
	require.NoError(t, err)
	assert.Equal(t, "inner", rec.JobID)
	assert.Equal(t, int64(1), rec.Sequence)

	recs, err := s.GetUpdates(ctx, "inner", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestUpdateLog_ReplayLatestWins(t *testing.T) {
	l, _ := newTestUpdateLog(t)
	ctx := context.Background()

	_, err := l.Record(ctx, overlayUpdate("job-1", "A", "B"))
	require.NoError(t, err)

	withSummary := overlayUpdate("job-1", "C")
	withSummary.Update.Summary = map[string]any{"totalInstances": float64(3)}
	_, err = l.Record(ctx, withSummary)
	require.NoError(t, err)

	// Perspective-only update leaves overlays and summary alone.
	_, err = l.Record(ctx, &schema.JobUpdate{Update: &schema.UpdateBody{
		JobID:        "job-1",
		Perspectives: []schema.ProcessPerspective{{ID: "p1"}},
	}})
	require.NoError(t, err)

	state, err := l.Replay(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), state.LastSequence)
	require.Len(t, state.Overlays, 1)
	assert.Equal(t, "C", state.Overlays[0].BlockID)
	assert.Equal(t, float64(3), state.Summary["totalInstances"])
}

func TestUpdateLog_ReplayEmptyBatchClears(t *testing.T) {
	l, _ := newTestUpdateLog(t)
	ctx := context.Background()

	_, err := l.Record(ctx, overlayUpdate("job-1", "A"))
	require.NoError(t, err)
	_, err = l.Record(ctx, overlayUpdate("job-1"))
	require.NoError(t, err)

	state, err := l.Replay(ctx, "job-1")
	require.NoError(t, err)
	assert.NotNil(t, state.Overlays)
	assert.Empty(t, state.Overlays)
}

func TestUpdateLog_ReplayUnknownJob(t *testing.T) {
	l, _ := newTestUpdateLog(t)

	state, err := l.Replay(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, state.LastSequence)
	assert.Nil(t, state.Overlays)
}

func TestUpdateLog_ReplaySequenceGap(t *testing.T) {
	l, s := newTestUpdateLog(t)
	ctx := context.Background()

	_, err := l.Record(ctx, overlayUpdate("job-1", "A"))
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx,
		`INSERT INTO job_updates (job_id, sequence, payload, received_at) VALUES ('job-1', 5, '{}', ?)`,
		time.Now().UTC())
	require.NoError(t, err)

	_, err = l.Replay(ctx, "job-1")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeStore))
	assert.Contains(t, err.Error(), "sequence gap")
}
