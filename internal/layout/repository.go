package layout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultSnapshotLimit = 20
	maxSnapshotLimit     = 200

	// timestampLayout has a fixed width so exported_at sorts lexically.
	timestampLayout = "2006-01-02T15:04:05.000000000Z"
)

// StoredSnapshot is a persisted Snapshot with its bookkeeping columns.
type StoredSnapshot struct {
	ID          string
	Reason      string
	ExportedAt  time.Time
	EntityCount int
	Snapshot    Snapshot
}

// SnapshotRepository persists exported layout state.
type SnapshotRepository interface {
	Save(ctx context.Context, reason string, snap Snapshot) (string, error)
	Latest(ctx context.Context) (*StoredSnapshot, error)
	List(ctx context.Context, limit int) ([]StoredSnapshot, error)
	Prune(ctx context.Context, keep int) (int64, error)
}

// SQLiteSnapshotRepository implements SnapshotRepository using SQLite.
//
// Snapshots are stored as JSON in the state_snapshots table.
type SQLiteSnapshotRepository struct {
	db *sql.DB
}

// NewSQLiteSnapshotRepository creates a repository over an open connection.
func NewSQLiteSnapshotRepository(db *sql.DB) *SQLiteSnapshotRepository {
	return &SQLiteSnapshotRepository{db: db}
}

// Save stores a snapshot and returns its generated id.
func (r *SQLiteSnapshotRepository) Save(ctx context.Context, reason string, snap Snapshot) (string, error) {
	if reason == "" {
		return "", fmt.Errorf("snapshot reason is required")
	}
	if snap.ExportedAt.IsZero() {
		snap.ExportedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshalling snapshot: %w", err)
	}

	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO state_snapshots (id, reason, exported_at, entity_count, payload)
		 VALUES (?, ?, ?, ?, ?)`,
		id,
		reason,
		snap.ExportedAt.UTC().Format(timestampLayout),
		snap.EntityCount(),
		string(payload),
	)
	if err != nil {
		return "", fmt.Errorf("inserting snapshot: %w", err)
	}

	return id, nil
}

// Latest returns the most recently exported snapshot.
// Returns ErrSnapshotNotFound when the table is empty.
func (r *SQLiteSnapshotRepository) Latest(ctx context.Context) (*StoredSnapshot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, reason, exported_at, entity_count, payload
		 FROM state_snapshots
		 ORDER BY exported_at DESC
		 LIMIT 1`)

	stored, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// List returns stored snapshots newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum entries to return (default 20, max 200)
func (r *SQLiteSnapshotRepository) List(ctx context.Context, limit int) ([]StoredSnapshot, error) {
	if limit <= 0 {
		limit = defaultSnapshotLimit
	}
	if limit > maxSnapshotLimit {
		limit = maxSnapshotLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, reason, exported_at, entity_count, payload
		 FROM state_snapshots
		 ORDER BY exported_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]StoredSnapshot, 0, limit)
	for rows.Next() {
		stored, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *stored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}

	return out, nil
}

// Prune deletes all but the newest keep snapshots. A keep of zero disables pruning.
//
// Returns:
//   - int64: Number of rows deleted
func (r *SQLiteSnapshotRepository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep cannot be negative")
	}
	if keep == 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM state_snapshots
		 WHERE id NOT IN (
		     SELECT id FROM state_snapshots ORDER BY exported_at DESC LIMIT ?
		 )`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*StoredSnapshot, error) {
	var stored StoredSnapshot
	var exportedAt, payload string

	if err := row.Scan(&stored.ID, &stored.Reason, &exportedAt, &stored.EntityCount, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning snapshot: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &stored.Snapshot); err != nil {
		return nil, fmt.Errorf("unmarshalling snapshot: %w", err)
	}

	ts, err := parseTimestamp(exportedAt)
	if err != nil {
		return nil, err
	}
	stored.ExportedAt = ts

	return &stored, nil
}

// parseTimestamp parses a timestamp stored in SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("exported_at is empty")
	}

	ts, err := time.Parse(time.RFC3339Nano, value)
	if err == nil {
		return ts, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02 15:04:05", value)
	if fallbackErr == nil {
		return fallback.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("parsing exported_at: %w", err)
}
