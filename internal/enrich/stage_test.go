package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PolloDK/FK01-Encuestas/internal/db"
	"github.com/PolloDK/FK01-Encuestas/internal/logger"
	"github.com/PolloDK/FK01-Encuestas/internal/textclean"
)

// stubBackend scores by keyword and embeds deterministically from the text.
type stubBackend struct {
	failClassify func(text string) bool
	failEmbed    func(text string) bool
	calls        atomic.Int64
	onCall       func()
}

func (b *stubBackend) Classify(ctx context.Context, text string) (db.Sentiment, error) {
	b.calls.Add(1)
	if b.onCall != nil {
		b.onCall()
	}
	if b.failClassify != nil && b.failClassify(text) {
		return db.Sentiment{}, errors.New("model exploded")
	}
	if strings.Contains(text, "malo") {
		return normalizeSentiment(0.8, 0.15, 0.05)
	}
	return normalizeSentiment(0.1, 0.3, 0.6)
}

func (b *stubBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	if b.failEmbed != nil && b.failEmbed(text) {
		return nil, errors.New("embedding service down")
	}
	v := make([]float32, DefaultDimensions)
	v[0] = float32(len(text))
	return v, nil
}

func (b *stubBackend) Close() error { return nil }

func openStore(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.OpenDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, d.Migrate(context.Background()))
	t.Cleanup(func() { d.Close() })
	return d
}

func seed(t *testing.T, d *db.DB, n int, text func(i int) string) {
	t.Helper()
	base := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	recs := make([]db.RawRecord, n)
	for i := range recs {
		recs[i] = db.RawRecord{
			ID:         fmt.Sprintf("%04d", i),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
			Text:       text(i),
			Engagement: db.Engagement{Likes: int64(i)},
		}
	}
	_, _, err := d.InsertRawRecords(context.Background(), recs)
	require.NoError(t, err)
}

func goodText(i int) string {
	if i%2 == 0 {
		return "gobierno malo reforma pensiones fracasa"
	}
	return "excelente anuncio ministra educación pública"
}

func newTestStage(d *db.DB, b Backend, opts Options) *Stage {
	return NewStage(d, textclean.New(textclean.Options{}), b, opts, logger.Nop(), nil)
}

func TestRun_NoopAndSkipped(t *testing.T) {
	d := openStore(t)
	st := newTestStage(d, &stubBackend{}, Options{MinPending: 5})

	rep, err := st.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusNoop, rep.Status)

	seed(t, d, 3, goodText)
	rep, err = st.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, rep.Status)
	assert.Equal(t, 3, rep.Pending)

	pending, err := d.CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, pending, "skipped run must not flip any flag")
}

func TestRun_ChunksAndRejects(t *testing.T) {
	d := openStore(t)
	seed(t, d, 25, func(i int) string {
		if i%5 == 0 {
			return "rt @alguien"
		}
		return goodText(i)
	})
	st := newTestStage(d, &stubBackend{}, Options{ChunkSize: 10, Workers: 3})

	rep, err := st.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusOK, rep.Status)
	assert.Equal(t, 3, rep.Chunks)
	assert.Equal(t, 20, rep.Enriched)
	assert.Equal(t, 5, rep.Rejected)

	stats, err := d.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 20, stats.Enriched)
	assert.Equal(t, 5, stats.Rejected)

	recs, err := d.EnrichedRecords(context.Background())
	require.NoError(t, err)
	for _, r := range recs {
		assert.Len(t, r.Embedding, DefaultDimensions)
		assert.NotEmpty(t, r.CleanedText)
		assert.InDelta(t, 1.0, r.Sentiment.Negative+r.Sentiment.Neutral+r.Sentiment.Positive, 1e-9)
	}
}

func TestRun_AllRejectedChunkStillCommits(t *testing.T) {
	d := openStore(t)
	seed(t, d, 4, func(int) string { return "ok" })
	b := &stubBackend{}
	st := newTestStage(d, b, Options{MinPending: 1})

	rep, err := st.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Chunks)
	assert.Equal(t, 4, rep.Rejected)
	assert.Zero(t, b.calls.Load())

	pending, err := d.CountPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestRun_SubstitutesFailures(t *testing.T) {
	d := openStore(t)
	seed(t, d, 6, goodText)
	b := &stubBackend{
		failClassify: func(text string) bool { return strings.Contains(text, "malo") },
		failEmbed:    func(text string) bool { return strings.Contains(text, "excelente") },
	}
	st := newTestStage(d, b, Options{MinPending: 1})

	rep, err := st.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, rep.Enriched)
	assert.Equal(t, 3, rep.SubstitutedSentiment)
	assert.Equal(t, 3, rep.SubstitutedEmbedding)

	recs, err := d.EnrichedRecords(context.Background())
	require.NoError(t, err)
	for _, r := range recs {
		if strings.Contains(r.CleanedText, "malo") {
			assert.Equal(t, db.NeutralSentiment(), r.Sentiment)
		} else {
			assert.Equal(t, make([]float32, DefaultDimensions), r.Embedding)
		}
	}
}

func TestRun_Idempotent(t *testing.T) {
	d := openStore(t)
	seed(t, d, 8, goodText)
	b := &stubBackend{}
	st := newTestStage(d, b, Options{MinPending: 1})

	_, err := st.Run(context.Background())
	require.NoError(t, err)
	first, err := d.EnrichedRecords(context.Background())
	require.NoError(t, err)
	calls := b.calls.Load()

	rep, err := st.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusNoop, rep.Status)
	assert.Equal(t, calls, b.calls.Load(), "processed records must not reach the backend again")

	second, err := d.EnrichedRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRun_CancelDiscardsChunkInFlight(t *testing.T) {
	d := openStore(t)
	seed(t, d, 20, goodText)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var n atomic.Int64
	b := &stubBackend{onCall: func() {
		// Cancel while the second chunk is being classified.
		if n.Add(1) == 15 {
			cancel()
		}
	}}
	st := newTestStage(d, b, Options{ChunkSize: 10, Workers: 1, MinPending: 1})

	rep, err := st.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusCancelled, rep.Status)
	assert.Equal(t, 1, rep.Chunks)

	pending, err := d.CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, pending, "first chunk persists, second is discarded whole")
}

func TestNormalizeSentiment(t *testing.T) {
	s, err := normalizeSentiment(2, 1, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, s.Negative, 1e-12)
	assert.Equal(t, db.LabelNegative, s.Label)

	_, err = normalizeSentiment(0, 0, 0)
	assert.Error(t, err)
	_, err = normalizeSentiment(-1, 1, 1)
	assert.Error(t, err)
}
