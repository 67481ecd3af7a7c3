// Package store persists the overlay state of followed jobs: the last applied
// batch and summary per job and perspective, plus the raw update log they were
// derived from. Snapshots let a dashboard repaint immediately after a restart
// instead of waiting for the next aggregator push.
package store

import (
	"context"
	"time"
)

// Store is the persistence surface used by the session controller, the
// retention scheduler and the panel.
type Store interface {
	// Snapshots
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	LatestSnapshot(ctx context.Context, jobID, perspective string) (*Snapshot, error)
	ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]*Snapshot, error)
	PruneSnapshots(ctx context.Context, policy Retention) (int64, error)

	// Update log
	AppendUpdate(ctx context.Context, rec *UpdateRecord) error
	GetUpdates(ctx context.Context, jobID string, since int64) ([]*UpdateRecord, error)
	PruneUpdates(ctx context.Context, olderThan time.Time) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error
	Close() error
}
