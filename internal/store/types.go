package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/bpmnlens/pkg/schema"
)

// Snapshot is the overlay state last applied for one job and perspective.
type Snapshot struct {
	ID          int64                       `json:"id"`
	JobID       string                      `json:"job_id"`
	Perspective string                      `json:"perspective"`
	ViewMode    schema.ViewMode             `json:"view_mode"`
	Overlays    []schema.BlockOverlayReport `json:"overlays"`
	Summary     map[string]any              `json:"summary,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
}

// SnapshotFilter narrows ListSnapshots. Results are newest first.
type SnapshotFilter struct {
	JobID       string
	Perspective string
	Since       *time.Time
	Limit       int
}

// Retention controls PruneSnapshots. The newest snapshot of every
// job/perspective pair always survives.
type Retention struct {
	// Keep is how many snapshots per pair are retained; values below 1 mean 1.
	Keep int
	// OlderThan additionally removes non-latest snapshots created before it.
	OlderThan time.Time
}

// UpdateRecord is one job update as received from the aggregator.
type UpdateRecord struct {
	ID         int64           `json:"id"`
	JobID      string          `json:"job_id"`
	Sequence   int64           `json:"sequence"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// JobState is the overlay state obtained by replaying a job's update log.
type JobState struct {
	JobID        string                      `json:"job_id"`
	Overlays     []schema.BlockOverlayReport `json:"overlays"`
	Summary      map[string]any              `json:"summary,omitempty"`
	LastSequence int64                       `json:"last_sequence"`
}
