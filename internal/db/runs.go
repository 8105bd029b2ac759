package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// StartRun records the beginning of a pipeline invocation.
func (d *DB) StartRun(ctx context.Context, id string, startedAt time.Time) error {
	_, err := d.conn.ExecContext(ctx,
		"INSERT INTO pipeline_runs (id, started_at, status) VALUES (?, ?, ?)",
		id, unixMillis(startedAt), RunRunning)
	if err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	return nil
}

// FinishRun stamps the final status and JSON summary of a run.
func (d *DB) FinishRun(ctx context.Context, id, status, summary string) error {
	res, err := d.conn.ExecContext(ctx,
		"UPDATE pipeline_runs SET finished_at = ?, status = ?, summary = ? WHERE id = ?",
		unixMillis(time.Now()), status, summary, id)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (d *DB) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, summary
		FROM pipeline_runs ORDER BY started_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&r.ID, &started, &finished, &r.Status, &r.Summary); err != nil {
			return nil, err
		}
		r.StartedAt = fromMillis(started)
		if finished.Valid {
			f := fromMillis(finished.Int64)
			r.FinishedAt = &f
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
