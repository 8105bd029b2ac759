package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := OpenDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, d.Migrate(context.Background()))
	t.Cleanup(func() { d.Close() })
	return d
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func raw(id string, at time.Time, text string) RawRecord {
	return RawRecord{ID: id, AuthorID: "a-" + id, CreatedAt: at, Text: text,
		Engagement: Engagement{Retweets: 1, Replies: 2, Likes: 3, Quotes: 4}}
}

func enriched(r RawRecord) EnrichedRecord {
	return EnrichedRecord{
		ID: r.ID, CreatedAt: r.CreatedAt, CleanedText: "texto limpio",
		Sentiment:  Sentiment{Label: LabelNegative, Negative: 0.7, Neutral: 0.2, Positive: 0.1},
		Embedding:  make([]float32, 768),
		Engagement: r.Engagement,
	}
}

func TestInsertRawRecords_Idempotent(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	recs := []RawRecord{
		raw("1", day("2025-04-01").Add(time.Hour), "hola mundo"),
		raw("2", day("2025-04-01").Add(2*time.Hour), "otro texto"),
	}

	ins, dup, err := d.InsertRawRecords(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 2, ins)
	assert.Equal(t, 0, dup)

	ins, dup, err = d.InsertRawRecords(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 0, ins)
	assert.Equal(t, 2, dup)

	n, err := d.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestInsertRawRecords_RejectsInvalid(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	_, _, err := d.InsertRawRecords(ctx, []RawRecord{{Text: "sin id", CreatedAt: day("2025-04-01")}})
	assert.Error(t, err)

	bad := raw("x", day("2025-04-01"), "t")
	bad.Engagement.Likes = -1
	_, _, err = d.InsertRawRecords(ctx, []RawRecord{bad})
	assert.Error(t, err)
}

func TestPendingRecords_StableOrder(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	base := day("2025-04-02")
	_, _, err := d.InsertRawRecords(ctx, []RawRecord{
		raw("c", base.Add(time.Hour), "t"),
		raw("b", base, "t"),
		raw("a", base, "t"),
	})
	require.NoError(t, err)

	got, err := d.PendingRecords(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.False(t, got[0].Processed)
	assert.Nil(t, got[0].Outcome)

	limited, err := d.PendingRecords(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestCommitChunk_FlipsProcessedOnce(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	r1 := raw("1", day("2025-04-03"), "texto uno")
	r2 := raw("2", day("2025-04-03"), "rt")
	_, _, err := d.InsertRawRecords(ctx, []RawRecord{r1, r2})
	require.NoError(t, err)

	chunk := ChunkResult{Enriched: []EnrichedRecord{enriched(r1)}, Rejected: []string{"2"}}
	require.NoError(t, d.CommitChunk(ctx, chunk))

	pending, err := d.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	got, err := d.GetRawRecord(ctx, "2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Processed)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, OutcomeRejected, *got.Outcome)

	// Committing again changes nothing: no duplicate enriched row, outcome kept.
	require.NoError(t, d.CommitChunk(ctx, ChunkResult{Enriched: []EnrichedRecord{enriched(r1)}}))
	all, err := d.EnrichedRecords(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, LabelNegative, all[0].Sentiment.Label)
	assert.Len(t, all[0].Embedding, 768)

	// Re-ingesting a processed id must not reset its flag.
	_, dup, err := d.InsertRawRecords(ctx, []RawRecord{r1})
	require.NoError(t, err)
	assert.Equal(t, 1, dup)
	pending, err = d.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestGetRawRecord_Missing(t *testing.T) {
	d := setupTestDB(t)
	got, err := d.GetRawRecord(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHasRecordsOn(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	_, _, err := d.InsertRawRecords(ctx, []RawRecord{raw("1", day("2025-04-05").Add(23*time.Hour), "t")})
	require.NoError(t, err)

	ok, err := d.HasRecordsOn(ctx, day("2025-04-05"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.HasRecordsOn(ctx, day("2025-04-06"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	r1 := raw("1", day("2025-04-01").Add(5*time.Hour), "t")
	r2 := raw("2", day("2025-04-03").Add(5*time.Hour), "t")
	r3 := raw("3", day("2025-04-04"), "t")
	_, _, err := d.InsertRawRecords(ctx, []RawRecord{r1, r2, r3})
	require.NoError(t, err)
	require.NoError(t, d.CommitChunk(ctx, ChunkResult{
		Enriched: []EnrichedRecord{enriched(r1), enriched(r2)},
	}))
	require.NoError(t, d.UpsertLabels(ctx, []Label{{ReportDate: day("2025-04-07"), Approval: 0.3, Disapproval: 0.6}}))

	s, err := d.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Raw)
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 2, s.Processed)
	assert.Equal(t, 2, s.Enriched)
	assert.Equal(t, 1, s.Labels)
	require.NotNil(t, s.FirstDay)
	assert.True(t, s.FirstDay.Equal(day("2025-04-01")))
	assert.True(t, s.LastDay.Equal(day("2025-04-03")))
}
