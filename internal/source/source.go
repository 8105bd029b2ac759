// Package source brings raw posts and survey labels into the record store.
package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PolloDK/FK01-Encuestas/internal/db"
)

// Provider returns posts created in [from, to).
type Provider interface {
	Fetch(ctx context.Context, from, to time.Time) ([]db.RawRecord, error)
}

// Store is the slice of the record store ingestion needs.
type Store interface {
	InsertRawRecords(ctx context.Context, records []db.RawRecord) (inserted, duplicates int, err error)
	HasRecordsOn(ctx context.Context, day time.Time) (bool, error)
}

// item is one post in the provider's export shape.
type item struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	CreatedAt    string `json:"createdAt"`
	RetweetCount int64  `json:"retweetCount"`
	ReplyCount   int64  `json:"replyCount"`
	LikeCount    int64  `json:"likeCount"`
	QuoteCount   int64  `json:"quoteCount"`
	Author       struct {
		ID string `json:"id"`
	} `json:"author"`
}

// Twitter's native timestamp layout, followed by the ISO forms exports use.
var createdAtLayouts = []string{time.RubyDate, time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02 15:04:05-07:00"}

func parseCreatedAt(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized createdAt %q", s)
}

func (it item) record() (db.RawRecord, error) {
	if it.ID == "" {
		return db.RawRecord{}, fmt.Errorf("item without id")
	}
	created, err := parseCreatedAt(it.CreatedAt)
	if err != nil {
		return db.RawRecord{}, fmt.Errorf("item %s: %w", it.ID, err)
	}
	return db.RawRecord{
		ID:        it.ID,
		AuthorID:  it.Author.ID,
		CreatedAt: created,
		Text:      it.Text,
		Engagement: db.Engagement{
			Retweets: max(it.RetweetCount, 0),
			Replies:  max(it.ReplyCount, 0),
			Likes:    max(it.LikeCount, 0),
			Quotes:   max(it.QuoteCount, 0),
		},
	}, nil
}

// inRange keeps records created in [from, to). A zero bound is open.
func inRange(records []db.RawRecord, from, to time.Time) []db.RawRecord {
	out := records[:0]
	for _, r := range records {
		if !from.IsZero() && r.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !r.CreatedAt.Before(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// IngestReport summarizes one ingestion.
type IngestReport struct {
	Fetched    int  `json:"fetched"`
	Inserted   int  `json:"inserted"`
	Duplicates int  `json:"duplicates"`
	Skipped    bool `json:"skipped"`
}

// Ingest fetches [from, to) and appends it to the store.
func Ingest(ctx context.Context, p Provider, store Store, from, to time.Time) (IngestReport, error) {
	records, err := p.Fetch(ctx, from, to)
	if err != nil {
		return IngestReport{}, fmt.Errorf("fetching posts: %w", err)
	}
	rep := IngestReport{Fetched: len(records)}
	if len(records) == 0 {
		return rep, nil
	}
	rep.Inserted, rep.Duplicates, err = store.InsertRawRecords(ctx, records)
	if err != nil {
		return IngestReport{}, err
	}
	return rep, nil
}

// IngestDay collects one UTC day, doing nothing when the store already has
// posts from that day.
func IngestDay(ctx context.Context, p Provider, store Store, day time.Time) (IngestReport, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	has, err := store.HasRecordsOn(ctx, start)
	if err != nil {
		return IngestReport{}, err
	}
	if has {
		return IngestReport{Skipped: true}, nil
	}
	return Ingest(ctx, p, store, start, start.AddDate(0, 0, 1))
}
