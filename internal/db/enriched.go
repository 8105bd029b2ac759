package db

import (
	"context"
	"fmt"
)

// ForEachEnriched streams enriched records ordered by (created_at, id) so the
// caller never holds every embedding in memory. When withEmbedding is false
// the embedding column is not read and Embedding is nil.
func (d *DB) ForEachEnriched(ctx context.Context, withEmbedding bool, fn func(EnrichedRecord) error) error {
	embeddingCol := "NULL"
	if withEmbedding {
		embeddingCol = "embedding"
	}
	rows, err := d.conn.QueryContext(ctx, `
		SELECT id, created_at, cleaned_text, sentiment_label,
		       score_negative, score_neutral, score_positive, `+embeddingCol+`,
		       retweet_count, reply_count, like_count, quote_count
		FROM enriched_records
		ORDER BY created_at, id
	`)
	if err != nil {
		return fmt.Errorf("querying enriched records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e EnrichedRecord
		var createdAt int64
		var label string
		var blob []byte
		err := rows.Scan(&e.ID, &createdAt, &e.CleanedText, &label,
			&e.Sentiment.Negative, &e.Sentiment.Neutral, &e.Sentiment.Positive, &blob,
			&e.Engagement.Retweets, &e.Engagement.Replies, &e.Engagement.Likes, &e.Engagement.Quotes)
		if err != nil {
			return fmt.Errorf("scanning enriched record: %w", err)
		}
		e.CreatedAt = fromMillis(createdAt)
		e.Sentiment.Label = SentimentLabel(label)
		if blob != nil {
			e.Embedding = bytesToEmbedding(blob)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// EnrichedRecords loads every enriched record. Intended for tests and small stores.
func (d *DB) EnrichedRecords(ctx context.Context) ([]EnrichedRecord, error) {
	var out []EnrichedRecord
	err := d.ForEachEnriched(ctx, true, func(e EnrichedRecord) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

// EngagementColumns returns every enriched record's counters, used to fit the
// engagement scaler.
func (d *DB) EngagementColumns(ctx context.Context) ([]Engagement, error) {
	rows, err := d.conn.QueryContext(ctx,
		"SELECT retweet_count, reply_count, like_count, quote_count FROM enriched_records ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying engagement: %w", err)
	}
	defer rows.Close()

	var out []Engagement
	for rows.Next() {
		var e Engagement
		if err := rows.Scan(&e.Retweets, &e.Replies, &e.Likes, &e.Quotes); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
