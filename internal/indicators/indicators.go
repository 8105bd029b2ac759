// Package indicators computes per-day sentiment counts from enriched records.
package indicators

import (
	"context"
	"math"
	"time"

	"github.com/PolloDK/FK01-Encuestas/internal/db"
	"github.com/PolloDK/FK01-Encuestas/internal/frame"
)

// Indicator columns.
const (
	ColPositivePosts    = "positive_posts"
	ColNegativePosts    = "negative_posts"
	ColNeutralPosts     = "neutral_posts"
	ColTotalPosts       = "total_posts"
	ColPctNegativePosts = "pct_negative_posts"
	ColNegativityIndex  = "negativity_index"
)

// Columns lists the indicator columns in artifact order.
var Columns = []string{
	ColPositivePosts, ColNegativePosts, ColNeutralPosts,
	ColTotalPosts, ColPctNegativePosts, ColNegativityIndex,
}

// Store streams enriched records.
type Store interface {
	ForEachEnriched(ctx context.Context, withEmbedding bool, fn func(db.EnrichedRecord) error) error
}

type dayCounts struct {
	pos, neg, neu int
	negSum        float64
}

// Daily counts each day's records by the argmax of their three scores and
// returns one row per day that has records.
func Daily(ctx context.Context, store Store) (*frame.Frame, error) {
	byDay := map[time.Time]*dayCounts{}
	var order []time.Time

	err := store.ForEachEnriched(ctx, false, func(e db.EnrichedRecord) error {
		d := frame.Day(e.CreatedAt)
		c, ok := byDay[d]
		if !ok {
			c = &dayCounts{}
			byDay[d] = c
			order = append(order, d)
		}
		switch db.ArgmaxLabel(e.Sentiment.Negative, e.Sentiment.Neutral, e.Sentiment.Positive) {
		case db.LabelNegative:
			c.neg++
		case db.LabelPositive:
			c.pos++
		default:
			c.neu++
		}
		c.negSum += e.Sentiment.Negative
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(order) == 0 {
		return frame.Empty(Columns...), nil
	}

	n := len(order)
	cols := map[string][]float64{}
	for _, name := range Columns {
		cols[name] = make([]float64, n)
	}
	for i, d := range order {
		c := byDay[d]
		total := float64(c.pos + c.neg + c.neu)
		cols[ColPositivePosts][i] = float64(c.pos)
		cols[ColNegativePosts][i] = float64(c.neg)
		cols[ColNeutralPosts][i] = float64(c.neu)
		cols[ColTotalPosts][i] = total
		cols[ColPctNegativePosts][i] = float64(c.neg) / total
		cols[ColNegativityIndex][i] = c.negSum / total
	}

	f := frame.New(order)
	for _, name := range Columns {
		f.MustSet(name, cols[name])
	}
	return f, nil
}

// Attach left-joins indicators onto predictions by date. Prediction days
// without records get NaN indicators.
func Attach(predictions, daily *frame.Frame) *frame.Frame {
	out := predictions.Clone()
	n := out.Len()
	for _, name := range Columns {
		v := make([]float64, n)
		for i := 0; i < n; i++ {
			v[i] = math.NaN()
			if j, ok := daily.Index(out.Date(i)); ok {
				v[i] = daily.Get(name, j)
			}
		}
		out.MustSet(name, v)
	}
	return out
}
