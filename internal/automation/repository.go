package automation

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500

	// runTimestampLayout has a fixed width so started_at sorts lexically.
	runTimestampLayout = "2006-01-02T15:04:05.000000000Z"
)

// RunRepository persists run history.
type RunRepository interface {
	RunRecorder
	ListRuns(ctx context.Context, handle Handle, limit int) ([]RunRecord, error)
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// runColumns is the SELECT column list for run queries.
const runColumns = `id, registration_id, name, trigger_type, trigger_detail,
			status, error, late, started_at, elapsed_ms`

// SQLiteRunRepository implements RunRepository using SQLite.
type SQLiteRunRepository struct {
	db *sql.DB
}

// NewSQLiteRunRepository creates a new SQLite-backed run history.
func NewSQLiteRunRepository(db *sql.DB) *SQLiteRunRepository {
	return &SQLiteRunRepository{db: db}
}

// RecordRun inserts a run outcome. A record with an existing ID (a late
// completion following its timeout) replaces the outcome columns.
func (r *SQLiteRunRepository) RecordRun(ctx context.Context, run RunRecord) error {
	query := `
		INSERT INTO automation_runs (
			id, registration_id, name, trigger_type, trigger_detail,
			status, error, late, started_at, elapsed_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			late = excluded.late,
			elapsed_ms = excluded.elapsed_ms`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.RegistrationID,
		run.Name,
		string(run.TriggerType),
		run.TriggerDetail,
		string(run.Status),
		run.Error,
		boolToInt(run.Late),
		run.StartedAt.UTC().Format(runTimestampLayout),
		run.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting automation run: %w", err)
	}
	return nil
}

// ListRuns returns the runs of one registration, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - handle: Registration handle
//   - limit: Maximum entries to return (default 50, max 500)
func (r *SQLiteRunRepository) ListRuns(ctx context.Context, handle Handle, limit int) ([]RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM automation_runs
		WHERE registration_id = ?
		ORDER BY started_at DESC
		LIMIT ?`
	return r.queryRuns(ctx, query, string(handle), clampRunLimit(limit))
}

// RecentRuns returns the latest runs across all registrations, newest first.
func (r *SQLiteRunRepository) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM automation_runs
		ORDER BY started_at DESC
		LIMIT ?`
	return r.queryRuns(ctx, query, clampRunLimit(limit))
}

// Prune deletes runs that started before the cutoff and returns how many went.
func (r *SQLiteRunRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM automation_runs WHERE started_at < ?",
		before.UTC().Format(runTimestampLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning automation runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRunRepository) queryRuns(ctx context.Context, query string, args ...any) ([]RunRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying automation runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating automation runs: %w", err)
	}
	return runs, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (RunRecord, error) {
	var (
		run         RunRecord
		triggerType string
		status      string
		late        int
		startedAt   string
		elapsedMS   int64
	)

	err := scanner.Scan(
		&run.ID,
		&run.RegistrationID,
		&run.Name,
		&triggerType,
		&run.TriggerDetail,
		&status,
		&run.Error,
		&late,
		&startedAt,
		&elapsedMS,
	)
	if err != nil {
		return RunRecord{}, fmt.Errorf("scanning automation run: %w", err)
	}

	run.TriggerType = TriggerType(triggerType)
	run.Status = RunStatus(status)
	run.Late = late != 0
	run.Elapsed = time.Duration(elapsedMS) * time.Millisecond

	t, err := time.Parse(runTimestampLayout, startedAt)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return RunRecord{}, fmt.Errorf("parsing started_at %q: %w", startedAt, err)
		}
	}
	run.StartedAt = t

	return run, nil
}

func clampRunLimit(limit int) int {
	if limit <= 0 {
		return defaultRunLimit
	}
	if limit > maxRunLimit {
		return maxRunLimit
	}
	return limit
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
