package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/bpmnlens/pkg/schema"
)

// LibSQLStore implements Store on libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

var _ Store = (*LibSQLStore)(nil)

// NewLibSQLStore opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/bpmnlens.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Snapshots ---

func (s *LibSQLStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.JobID == "" || snap.Perspective == "" {
		return schema.NewError(schema.ErrCodeValidation, "snapshot requires job_id and perspective")
	}
	overlays := snap.Overlays
	if overlays == nil {
		overlays = []schema.BlockOverlayReport{}
	}
	overlaysJSON, err := json.Marshal(overlays)
	if err != nil {
		return fmt.Errorf("marshal snapshot overlays: %w", err)
	}
	summary, err := nullableMap(snap.Summary)
	if err != nil {
		return fmt.Errorf("marshal snapshot summary: %w", err)
	}
	snap.CreatedAt = timeOrNow(snap.CreatedAt)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (job_id, perspective, view_mode, overlays, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.JobID, snap.Perspective, string(snap.ViewMode), string(overlaysJSON), summary, snap.CreatedAt,
	)
	if err != nil {
		return storeError("insert snapshot", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storeError("snapshot id", err)
	}
	snap.ID = id
	return nil
}

func (s *LibSQLStore) LatestSnapshot(ctx context.Context, jobID, perspective string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, job_id, perspective, view_mode, overlays, summary, created_at
		 FROM snapshots WHERE job_id = ? AND perspective = ? ORDER BY id DESC LIMIT 1`,
		jobID, perspective,
	)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("snapshot", jobID+"/"+perspective)
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *LibSQLStore) ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]*Snapshot, error) {
	var where []string
	var args []any

	if filter.JobID != "" {
		where = append(where, "job_id = ?")
		args = append(args, filter.JobID)
	}
	if filter.Perspective != "" {
		where = append(where, "perspective = ?")
		args = append(args, filter.Perspective)
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, job_id, perspective, view_mode, overlays, summary, created_at FROM snapshots`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) PruneSnapshots(ctx context.Context, policy Retention) (int64, error) {
	keep := policy.Keep
	if keep < 1 {
		keep = 1
	}

	cond := "rn > ?"
	args := []any{keep}
	if !policy.OlderThan.IsZero() {
		cond += " OR (rn > 1 AND created_at < ?)"
		args = append(args, policy.OlderThan)
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE id IN (
			SELECT id FROM (
				SELECT id, created_at,
				       ROW_NUMBER() OVER (PARTITION BY job_id, perspective ORDER BY id DESC) AS rn
				FROM snapshots
			) WHERE `+cond+`
		)`, args...,
	)
	if err != nil {
		return 0, storeError("prune snapshots", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	snap := &Snapshot{}
	var viewMode, overlays string
	var summary sql.NullString
	if err := row.Scan(&snap.ID, &snap.JobID, &snap.Perspective, &viewMode, &overlays, &summary, &snap.CreatedAt); err != nil {
		return nil, err
	}
	snap.ViewMode = schema.ViewMode(viewMode)
	if err := json.Unmarshal([]byte(overlays), &snap.Overlays); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "snapshot %d: corrupt overlays", snap.ID).WithCause(err)
	}
	if summary.Valid && summary.String != "" {
		if err := json.Unmarshal([]byte(summary.String), &snap.Summary); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "snapshot %d: corrupt summary", snap.ID).WithCause(err)
		}
	}
	return snap, nil
}

// --- Update log ---

// AppendUpdate stores rec with the next per-job sequence number.
func (s *LibSQLStore) AppendUpdate(ctx context.Context, rec *UpdateRecord) error {
	if rec.JobID == "" {
		return schema.NewError(schema.ErrCodeValidation, "update record requires job_id")
	}
	if len(rec.Payload) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "update record requires a payload")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM job_updates WHERE job_id = ?`, rec.JobID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	rec.Sequence = seq
	rec.ReceivedAt = timeOrNow(rec.ReceivedAt)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO job_updates (job_id, sequence, payload, received_at) VALUES (?, ?, ?, ?)`,
		rec.JobID, seq, string(rec.Payload), rec.ReceivedAt,
	)
	if err != nil {
		return storeError("insert update", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

// GetUpdates returns the updates of jobID with sequence > since, oldest first.
func (s *LibSQLStore) GetUpdates(ctx context.Context, jobID string, since int64) ([]*UpdateRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, sequence, payload, received_at
		 FROM job_updates WHERE job_id = ? AND sequence > ? ORDER BY sequence ASC`,
		jobID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*UpdateRecord
	for rows.Next() {
		rec := &UpdateRecord{}
		var payload string
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.Sequence, &payload, &rec.ReceivedAt); err != nil {
			return nil, err
		}
		rec.Payload = json.RawMessage(payload)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneUpdates deletes updates received before olderThan.
func (s *LibSQLStore) PruneUpdates(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM job_updates WHERE received_at < ?`, olderThan)
	if err != nil {
		return 0, storeError("prune updates", err)
	}
	return res.RowsAffected()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.LensError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeError(op string, err error) *schema.LensError {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %s", op, err.Error()).WithCause(err)
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullableMap(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
