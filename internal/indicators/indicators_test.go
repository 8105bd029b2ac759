package indicators

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PolloDK/FK01-Encuestas/internal/db"
	"github.com/PolloDK/FK01-Encuestas/internal/frame"
)

type sliceStore []db.EnrichedRecord

func (s sliceStore) ForEachEnriched(_ context.Context, _ bool, fn func(db.EnrichedRecord) error) error {
	for _, e := range s {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func at(date string, hour int) time.Time {
	d, _ := time.Parse(frame.DateLayout, date)
	return d.Add(time.Duration(hour) * time.Hour)
}

func rec(t time.Time, neg, neu, pos float64) db.EnrichedRecord {
	return db.EnrichedRecord{CreatedAt: t, Sentiment: db.Sentiment{Negative: neg, Neutral: neu, Positive: pos}}
}

func TestDaily_CountsByArgmax(t *testing.T) {
	store := sliceStore{
		rec(at("2025-04-14", 8), 0.7, 0.2, 0.1),
		rec(at("2025-04-14", 9), 0.1, 0.2, 0.7),
		rec(at("2025-04-14", 10), 0.4, 0.4, 0.2), // tie resolves to neutral
		rec(at("2025-04-14", 11), 0.8, 0.1, 0.1),
		rec(at("2025-04-16", 9), 0.2, 0.6, 0.2),
	}
	f, err := Daily(context.Background(), store)
	require.NoError(t, err)
	require.Equal(t, 2, f.Len())

	assert.Equal(t, 2.0, f.Get(ColNegativePosts, 0))
	assert.Equal(t, 1.0, f.Get(ColPositivePosts, 0))
	assert.Equal(t, 1.0, f.Get(ColNeutralPosts, 0))
	assert.Equal(t, 4.0, f.Get(ColTotalPosts, 0))
	assert.InDelta(t, 0.5, f.Get(ColPctNegativePosts, 0), 1e-12)
	assert.InDelta(t, 0.5, f.Get(ColNegativityIndex, 0), 1e-12)

	assert.Equal(t, 0.0, f.Get(ColNegativePosts, 1))
	assert.InDelta(t, 0.2, f.Get(ColNegativityIndex, 1), 1e-12)
}

func TestDaily_EmptyStore(t *testing.T) {
	f, err := Daily(context.Background(), sliceStore{})
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())
	assert.Equal(t, Columns, f.Columns())
}

func TestAttach_LeftJoinsOnDate(t *testing.T) {
	daily, err := Daily(context.Background(), sliceStore{rec(at("2025-04-15", 9), 0.9, 0.05, 0.05)})
	require.NoError(t, err)

	pred := frame.New([]time.Time{at("2025-04-14", 0), at("2025-04-15", 0)})
	pred.MustSet("predicted_approval", []float64{0.3, 0.31})

	out := Attach(pred, daily)
	assert.True(t, math.IsNaN(out.Get(ColTotalPosts, 0)))
	assert.Equal(t, 1.0, out.Get(ColNegativePosts, 1))
	assert.Equal(t, 0.31, out.Get("predicted_approval", 1))
	assert.False(t, pred.Has(ColTotalPosts))
}
