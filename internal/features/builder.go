package features

import (
	"fmt"
	"math"

	"github.com/PolloDK/FK01-Encuestas/internal/frame"
)

// ErrDateIndex is returned when the builder input is not a strictly
// increasing, gap-free daily index.
var ErrDateIndex = frame.ErrDateIndex

// Derived column names.
const (
	ColSentimentNet        = "sentiment_net"
	ColEmbeddingSimilarity = "embedding_similarity_lag_1"
)

// RollingColumn names the trailing 7-day label mean for target t.
func RollingColumn(t string) string { return t + "_rolling_7d" }

// BuildFeatures derives lag, rolling and difference columns from a
// label-joined daily frame. Every offset is a calendar offset, so the input
// must be contiguous. Insufficient history yields NaN, never 0.
func BuildFeatures(joined *frame.Frame) (*frame.Frame, error) {
	if err := joined.CheckIndex(); err != nil {
		return nil, err
	}
	if !joined.IsContiguous() {
		return nil, fmt.Errorf("%w: daily index has gaps, resample first", ErrDateIndex)
	}

	out := joined.Clone()
	n := out.Len()
	col := func(name string) []float64 {
		if v, ok := out.Column(name); ok {
			return v
		}
		return frame.NaNs(n)
	}

	for _, t := range Targets {
		y := col(t)
		// shift(1) then a full 7-day window: days D-7..D-1.
		out.MustSet(RollingColumn(t), rollingMean(shift(y, 1), 7))
		out.MustSet(t+"_lag_7d", shift(y, 7))
		out.MustSet(t+"_lag_14d", shift(y, 14))
		out.MustSet(t+"_diff", diff(y))
		out.MustSet(t+"_pct_change", pctChange(y))
	}

	for lag := 1; lag <= 7; lag++ {
		for _, s := range []string{ColScorePositive, ColScoreNegative, ColScoreNeutral} {
			out.MustSet(fmt.Sprintf("%s_lag_%d", s, lag), shift(col(s), lag))
		}
	}

	neg := col(ColScoreNegative)
	out.MustSet("score_negative_rolling7", rollingMean(neg, 7))
	out.MustSet("score_negative_rolling3", rollingMean(neg, 3))

	pos := col(ColScorePositive)
	net := make([]float64, n)
	for i := range net {
		net[i] = pos[i] - neg[i]
	}
	out.MustSet(ColSentimentNet, net)
	out.MustSet(ColSentimentNet+"_rolling3", rollingMean(net, 3))
	out.MustSet(ColSentimentNet+"_rolling7", rollingMean(net, 7))
	out.MustSet(ColSentimentNet+"_rolling14", rollingMean(net, 14))
	out.MustSet(ColSentimentNet+"_change", diff(net))

	out.MustSet(ColEmbeddingSimilarity, embeddingSimilarity(out))
	return out, nil
}

// shift moves values k rows later; the first k rows become NaN.
func shift(v []float64, k int) []float64 {
	out := frame.NaNs(len(v))
	for i := k; i < len(v); i++ {
		out[i] = v[i-k]
	}
	return out
}

// rollingMean is the mean of the window ending at each row (inclusive). The
// result is NaN until the window is full or while it holds a NaN.
func rollingMean(v []float64, window int) []float64 {
	out := frame.NaNs(len(v))
	for i := window - 1; i < len(v); i++ {
		var sum float64
		ok := true
		for _, x := range v[i-window+1 : i+1] {
			if math.IsNaN(x) {
				ok = false
				break
			}
			sum += x
		}
		if ok {
			out[i] = sum / float64(window)
		}
	}
	return out
}

func diff(v []float64) []float64 {
	out := frame.NaNs(len(v))
	for i := 1; i < len(v); i++ {
		out[i] = v[i] - v[i-1]
	}
	return out
}

// pctChange is NaN when the previous value is 0 or missing.
func pctChange(v []float64) []float64 {
	out := frame.NaNs(len(v))
	for i := 1; i < len(v); i++ {
		prev := v[i-1]
		if prev == 0 || math.IsNaN(prev) {
			continue
		}
		out[i] = (v[i] - prev) / prev
	}
	return out
}

// embeddingSimilarity is the cosine similarity between each day's mean
// embedding and the previous day's.
func embeddingSimilarity(f *frame.Frame) []float64 {
	n := f.Len()
	out := frame.NaNs(n)
	var dims [][]float64
	for i := 0; ; i++ {
		v, ok := f.Column(EmbeddingColumn(i))
		if !ok {
			break
		}
		dims = append(dims, v)
	}
	if len(dims) == 0 {
		return out
	}

	prev := make([]float64, len(dims))
	cur := make([]float64, len(dims))
	for i := 0; i < n; i++ {
		for d := range dims {
			cur[d] = dims[d][i]
		}
		if i > 0 {
			out[i] = CosineSimilarity(prev, cur)
		}
		prev, cur = cur, prev
	}
	return out
}
