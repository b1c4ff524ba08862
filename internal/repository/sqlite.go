package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ChuLiYu/taskscheduler/pkg/scheduler"
)

const schema = `
CREATE TABLE IF NOT EXISTS scheduled_tasks (
	task_name      TEXT NOT NULL,
	task_instance  TEXT NOT NULL,
	execution_time INTEGER NOT NULL,
	picked         INTEGER NOT NULL DEFAULT 0,
	picked_by      TEXT,
	last_heartbeat INTEGER,
	last_success   INTEGER,
	last_failure   INTEGER,
	version        INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (task_name, task_instance)
);
CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_due ON scheduled_tasks (picked, execution_time);
CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_heartbeat ON scheduled_tasks (picked, last_heartbeat);
`

// SQLiteRepository is the durable Execution Repository (C4), backed by
// modernc.org/sqlite (pure Go, no cgo). Every mutating operation is a
// single statement: an UPDATE or DELETE guarded by the version column,
// or an INSERT ... ON CONFLICT DO NOTHING for CreateIfNotExists — no
// multi-statement transactions, matching §4.4's "single atomic store
// operation" requirement.
type SQLiteRepository struct {
	db *sql.DB
}

// Open opens (creating if necessary) a sqlite database at dsn and
// ensures the scheduled_tasks schema exists.
func Open(ctx context.Context, dsn string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open sqlite: %w", err)
	}
	// One connection: every statement runs on it in turn, so readers and
	// writers never wait on each other's sqlite file lock, and a
	// ":memory:" database is one database shared by all callers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: create schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// NewSQLiteRepository wraps an already-open *sql.DB, for callers that
// manage the connection pool themselves (e.g. to share it with other
// tables). The caller is responsible for schema migration in that case.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Close closes the underlying connection pool, including one passed in
// through NewSQLiteRepository.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v)
}

func (r *SQLiteRepository) CreateIfNotExists(ctx context.Context, exec scheduler.Execution) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (task_name, task_instance, execution_time, version)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (task_name, task_instance) DO NOTHING`,
		exec.TaskInstance.TaskName, exec.TaskInstance.ID, toUnix(exec.ExecutionTime))
	if err != nil {
		return false, fmt.Errorf("repository: create_if_not_exists: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("repository: create_if_not_exists: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) GetDue(ctx context.Context, now time.Time) ([]scheduler.Execution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT task_name, task_instance, execution_time, picked, picked_by,
		       last_heartbeat, last_success, last_failure, version
		FROM scheduled_tasks
		WHERE picked = 0 AND execution_time <= ?
		ORDER BY execution_time ASC, task_name ASC, task_instance ASC`,
		toUnix(now))
	if err != nil {
		return nil, fmt.Errorf("repository: get_due: %w", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

func (r *SQLiteRepository) Pick(ctx context.Context, exec scheduler.Execution, schedulerName string, timePicked time.Time) (scheduler.Execution, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET picked = 1, picked_by = ?, last_heartbeat = ?, version = version + 1
		WHERE task_name = ? AND task_instance = ? AND picked = 0 AND version = ?`,
		schedulerName, toUnix(timePicked),
		exec.TaskInstance.TaskName, exec.TaskInstance.ID, exec.Version)
	if err != nil {
		return scheduler.Execution{}, false, fmt.Errorf("repository: pick: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return scheduler.Execution{}, false, fmt.Errorf("repository: pick: %w", err)
	}
	if n == 0 {
		return scheduler.Execution{}, false, nil
	}

	updated := exec
	updated.Picked = true
	updated.PickedBy = schedulerName
	updated.LastHeartbeat = timePicked
	updated.Version++
	return updated, true, nil
}

func (r *SQLiteRepository) UpdateHeartbeat(ctx context.Context, exec scheduler.Execution, t time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET last_heartbeat = ?
		WHERE task_name = ? AND task_instance = ? AND picked = 1 AND version = ?`,
		toUnix(t), exec.TaskInstance.TaskName, exec.TaskInstance.ID, exec.Version)
	if err != nil {
		return fmt.Errorf("repository: update_heartbeat: %w", err)
	}
	// A version mismatch affects zero rows and is a silent no-op, per
	// §4.4 — the row simply isn't ours anymore.
	return nil
}

func (r *SQLiteRepository) Reschedule(ctx context.Context, exec scheduler.Execution, nextExecutionTime time.Time, lastSuccess, lastFailure time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET picked = 0, picked_by = NULL, last_heartbeat = NULL,
		    execution_time = ?, last_success = ?, last_failure = ?, version = version + 1
		WHERE task_name = ? AND task_instance = ? AND version = ?`,
		toUnix(nextExecutionTime), toUnix(lastSuccess), toUnix(lastFailure),
		exec.TaskInstance.TaskName, exec.TaskInstance.ID, exec.Version)
	if err != nil {
		return fmt.Errorf("repository: reschedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: reschedule: %w", err)
	}
	if n == 0 {
		return scheduler.ErrVersionMismatch
	}
	return nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, exec scheduler.Execution) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM scheduled_tasks
		WHERE task_name = ? AND task_instance = ? AND version = ?`,
		exec.TaskInstance.TaskName, exec.TaskInstance.ID, exec.Version)
	if err != nil {
		return fmt.Errorf("repository: remove: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: remove: %w", err)
	}
	if n == 0 {
		return scheduler.ErrVersionMismatch
	}
	return nil
}

func (r *SQLiteRepository) GetOldExecutions(ctx context.Context, olderThan time.Time) ([]scheduler.Execution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT task_name, task_instance, execution_time, picked, picked_by,
		       last_heartbeat, last_success, last_failure, version
		FROM scheduled_tasks
		WHERE picked = 1 AND last_heartbeat <= ?
		ORDER BY execution_time ASC`,
		toUnix(olderThan))
	if err != nil {
		return nil, fmt.Errorf("repository: get_old_executions: %w", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

func (r *SQLiteRepository) GetExecutionsFailingLongerThan(ctx context.Context, duration time.Duration) ([]scheduler.Execution, error) {
	cutoff := toUnix(time.Now().Add(-duration))
	rows, err := r.db.QueryContext(ctx, `
		SELECT task_name, task_instance, execution_time, picked, picked_by,
		       last_heartbeat, last_success, last_failure, version
		FROM scheduled_tasks
		WHERE last_failure IS NOT NULL AND last_failure > 0 AND last_failure < ?
		  AND (last_success IS NULL OR last_success < last_failure)
		ORDER BY last_failure ASC`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("repository: get_executions_failing_longer_than: %w", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

func scanExecutions(rows *sql.Rows) ([]scheduler.Execution, error) {
	var out []scheduler.Execution
	for rows.Next() {
		var (
			taskName, taskInstance            string
			executionTime                      int64
			picked                             bool
			pickedBy                           sql.NullString
			lastHeartbeat, lastSuccess, lastFailure sql.NullInt64
			version                            int64
		)
		if err := rows.Scan(&taskName, &taskInstance, &executionTime, &picked, &pickedBy,
			&lastHeartbeat, &lastSuccess, &lastFailure, &version); err != nil {
			return nil, fmt.Errorf("repository: scan row: %w", err)
		}
		out = append(out, scheduler.Execution{
			TaskInstance:  scheduler.TaskInstance{TaskName: taskName, ID: taskInstance},
			ExecutionTime: fromUnix(executionTime),
			Picked:        picked,
			PickedBy:      pickedBy.String,
			LastHeartbeat: fromUnix(lastHeartbeat.Int64),
			LastSuccess:   fromUnix(lastSuccess.Int64),
			LastFailure:   fromUnix(lastFailure.Int64),
			Version:       version,
		})
	}
	return out, rows.Err()
}
