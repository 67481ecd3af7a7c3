package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rendis/bpmnlens/pkg/schema"
)

// UpdateLog records raw job updates and folds them back into overlay state.
type UpdateLog struct {
	store Store
}

// NewUpdateLog wraps a Store to provide update log operations.
func NewUpdateLog(s Store) *UpdateLog {
	return &UpdateLog{store: s}
}

// Record appends a decoded update under its resolved job ID.
func (l *UpdateLog) Record(ctx context.Context, update *schema.JobUpdate) (*UpdateRecord, error) {
	payload, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("marshal update: %w", err)
	}
	rec := &UpdateRecord{JobID: update.ResolvedJobID(), Payload: payload}
	if err := l.store.AppendUpdate(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Replay folds every recorded update of jobID into the latest overlay batch
// and summary. Overlays and summary each replace the previous value when
// present; perspective-only updates leave both untouched. Returns an error if
// sequence gaps are detected.
func (l *UpdateLog) Replay(ctx context.Context, jobID string) (*JobState, error) {
	records, err := l.store.GetUpdates(ctx, jobID, 0)
	if err != nil {
		return nil, fmt.Errorf("get updates for replay: %w", err)
	}

	state := &JobState{JobID: jobID}
	for i, rec := range records {
		if expected := int64(i + 1); rec.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in job %s: expected %d, got %d", jobID, expected, rec.Sequence)
		}

		var update schema.JobUpdate
		if err := json.Unmarshal(rec.Payload, &update); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeDecode,
				"update %d of job %s: %s", rec.Sequence, jobID, err.Error()).WithCause(err)
		}
		state.LastSequence = rec.Sequence

		if update.Update == nil {
			continue
		}
		if update.Update.Overlays != nil {
			state.Overlays = update.Update.Overlays
		}
		if update.Update.Summary != nil {
			state.Summary = update.Update.Summary
		}
	}
	return state, nil
}
