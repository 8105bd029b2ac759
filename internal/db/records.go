package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const rawColumns = `id, author_id, created_at, text, retweet_count, reply_count,
	like_count, quote_count, processed, outcome`

// scanRaw scans a row into a RawRecord. The row must have rawColumns in order.
func scanRaw(scanner interface{ Scan(dest ...any) error }) (RawRecord, error) {
	var r RawRecord
	var createdAt int64
	err := scanner.Scan(
		&r.ID, &r.AuthorID, &createdAt, &r.Text,
		&r.Engagement.Retweets, &r.Engagement.Replies, &r.Engagement.Likes, &r.Engagement.Quotes,
		&r.Processed, &r.Outcome,
	)
	r.CreatedAt = fromMillis(createdAt)
	return r, err
}

// InsertRawRecords appends records, skipping any whose id is already stored.
// Existing rows are never modified, so re-delivered records cannot reset the
// processed flag.
func (d *DB) InsertRawRecords(ctx context.Context, records []RawRecord) (inserted, duplicates int, err error) {
	for _, r := range records {
		if r.ID == "" {
			return 0, 0, fmt.Errorf("raw record without id (created_at %s)", r.CreatedAt.Format(time.RFC3339))
		}
		e := r.Engagement
		if e.Retweets < 0 || e.Replies < 0 || e.Likes < 0 || e.Quotes < 0 {
			return 0, 0, fmt.Errorf("raw record %s: negative engagement counter", r.ID)
		}
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw_records (id, author_id, created_at, text, retweet_count,
		                         reply_count, like_count, quote_count, processed, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := unixMillis(time.Now())
	for _, r := range records {
		res, err := stmt.ExecContext(ctx, r.ID, r.AuthorID, unixMillis(r.CreatedAt), r.Text,
			r.Engagement.Retweets, r.Engagement.Replies, r.Engagement.Likes, r.Engagement.Quotes, now)
		if err != nil {
			return 0, 0, fmt.Errorf("inserting raw record %s: %w", r.ID, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			duplicates++
		} else {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("committing insert: %w", err)
	}
	return inserted, duplicates, nil
}

// GetRawRecord returns a single record by ID, or nil if not found
func (d *DB) GetRawRecord(ctx context.Context, id string) (*RawRecord, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT `+rawColumns+` FROM raw_records WHERE id = ?`, id)
	r, err := scanRaw(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CountPending returns the number of records still waiting for enrichment.
func (d *DB) CountPending(ctx context.Context) (int, error) {
	var count int
	err := d.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM raw_records WHERE processed = 0").Scan(&count)
	return count, err
}

// PendingRecords returns up to limit unprocessed records in a stable order
// (created_at, id), so chunk boundaries are reproducible.
func (d *DB) PendingRecords(ctx context.Context, limit int) ([]RawRecord, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT `+rawColumns+`
		FROM raw_records WHERE processed = 0
		ORDER BY created_at, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RawRecord
	for rows.Next() {
		r, err := scanRaw(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// HasRecordsOn reports whether any raw record was created on the given UTC day.
func (d *DB) HasRecordsOn(ctx context.Context, day time.Time) (bool, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	var count int
	err := d.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM raw_records WHERE created_at >= ? AND created_at < ?",
		unixMillis(start), unixMillis(end)).Scan(&count)
	return count > 0, err
}

// CommitChunk durably records the outcome of one enrichment chunk in a single
// transaction: enriched rows first, then outcomes, then the processed flag.
// A crash before commit leaves every record pending; re-running recomputes
// them and the enriched insert ignores ids that already exist.
func (d *DB) CommitChunk(ctx context.Context, chunk ChunkResult) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning chunk commit: %w", err)
	}
	defer tx.Rollback()

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO enriched_records (id, created_at, cleaned_text, sentiment_label,
		                              score_negative, score_neutral, score_positive, embedding,
		                              retweet_count, reply_count, like_count, quote_count, enriched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("preparing enriched insert: %w", err)
	}
	defer insert.Close()

	now := unixMillis(time.Now())
	for _, e := range chunk.Enriched {
		if e.CleanedText == "" {
			return fmt.Errorf("enriched record %s has empty cleaned text", e.ID)
		}
		_, err := insert.ExecContext(ctx, e.ID, unixMillis(e.CreatedAt), e.CleanedText, string(e.Sentiment.Label),
			e.Sentiment.Negative, e.Sentiment.Neutral, e.Sentiment.Positive, embeddingToBytes(e.Embedding),
			e.Engagement.Retweets, e.Engagement.Replies, e.Engagement.Likes, e.Engagement.Quotes, now)
		if err != nil {
			return fmt.Errorf("inserting enriched record %s: %w", e.ID, err)
		}
	}

	// One-way transition; the processed = 0 guard keeps an earlier outcome intact.
	mark, err := tx.PrepareContext(ctx,
		"UPDATE raw_records SET outcome = ?, processed = 1 WHERE id = ? AND processed = 0")
	if err != nil {
		return fmt.Errorf("preparing processed update: %w", err)
	}
	defer mark.Close()

	for _, e := range chunk.Enriched {
		if _, err := mark.ExecContext(ctx, OutcomeEnriched, e.ID); err != nil {
			return fmt.Errorf("marking %s processed: %w", e.ID, err)
		}
	}
	for _, id := range chunk.Rejected {
		if _, err := mark.ExecContext(ctx, OutcomeRejected, id); err != nil {
			return fmt.Errorf("marking %s processed: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chunk: %w", err)
	}
	return nil
}

// Stats returns record and label counts plus the covered day range.
func (d *DB) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := d.conn.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN processed = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN processed = 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0)
		FROM raw_records
	`, OutcomeRejected).Scan(&s.Raw, &s.Pending, &s.Processed, &s.Rejected)
	if err != nil {
		return nil, fmt.Errorf("counting raw records: %w", err)
	}

	var first, last sql.NullInt64
	err = d.conn.QueryRowContext(ctx,
		"SELECT COUNT(*), MIN(created_at), MAX(created_at) FROM enriched_records").
		Scan(&s.Enriched, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("counting enriched records: %w", err)
	}
	if first.Valid {
		f, l := fromMillis(first.Int64).Truncate(24*time.Hour), fromMillis(last.Int64).Truncate(24*time.Hour)
		s.FirstDay, s.LastDay = &f, &l
	}

	if err := d.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM labels").Scan(&s.Labels); err != nil {
		return nil, fmt.Errorf("counting labels: %w", err)
	}
	return &s, nil
}
