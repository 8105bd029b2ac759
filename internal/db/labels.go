package db

import (
	"context"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// UpsertLabels stores survey publications keyed by report date. A re-published
// week replaces the earlier values for that date.
func (d *DB) UpsertLabels(ctx context.Context, labels []Label) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning label upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO labels (report_date, approval, disapproval) VALUES (?, ?, ?)
		ON CONFLICT(report_date) DO UPDATE SET approval = excluded.approval, disapproval = excluded.disapproval
	`)
	if err != nil {
		return fmt.Errorf("preparing label upsert: %w", err)
	}
	defer stmt.Close()

	for _, l := range labels {
		if l.Approval < 0 || l.Approval > 1 || l.Disapproval < 0 || l.Disapproval > 1 {
			return fmt.Errorf("label %s: values must be in [0,1], got approval=%v disapproval=%v",
				l.ReportDate.Format(dateLayout), l.Approval, l.Disapproval)
		}
		if _, err := stmt.ExecContext(ctx, l.ReportDate.UTC().Format(dateLayout), l.Approval, l.Disapproval); err != nil {
			return fmt.Errorf("upserting label %s: %w", l.ReportDate.Format(dateLayout), err)
		}
	}
	return tx.Commit()
}

// Labels returns every label ordered by report date.
func (d *DB) Labels(ctx context.Context) ([]Label, error) {
	rows, err := d.conn.QueryContext(ctx,
		"SELECT report_date, approval, disapproval FROM labels ORDER BY report_date")
	if err != nil {
		return nil, fmt.Errorf("querying labels: %w", err)
	}
	defer rows.Close()

	var labels []Label
	for rows.Next() {
		var l Label
		var date string
		if err := rows.Scan(&date, &l.Approval, &l.Disapproval); err != nil {
			return nil, err
		}
		l.ReportDate, err = time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("label with malformed date %q: %w", date, err)
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}
