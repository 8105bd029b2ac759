package features

import (
	"errors"
	"math"
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PolloDK/FK01-Encuestas/internal/db"
	"github.com/PolloDK/FK01-Encuestas/internal/frame"
)

func day(s string) time.Time {
	t, err := time.Parse(frame.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func identityScaler() *RobustScaler {
	return &RobustScaler{Scale: [4]float64{1, 1, 1, 1}}
}

func TestWeightedAvg(t *testing.T) {
	v := []float64{0.2, 0.5, 0.8}
	assert.InDelta(t, 0.5, WeightedAvg(v, []float64{0, 0, 0}), 1e-12)
	assert.InDelta(t, (0.2*1+0.5*2+0.8*3)/6, WeightedAvg(v, []float64{1, 2, 3}), 1e-12)
	assert.InDelta(t, 0.5333333333, WeightedAvg(v, []float64{1, 2, 3}), 1e-9)
	assert.True(t, math.IsNaN(WeightedAvg(nil, nil)))
}

func TestFitRobustScaler(t *testing.T) {
	obs := []db.Engagement{{Likes: 1}, {Likes: 2}, {Likes: 3}, {Likes: 4}, {Likes: 100}}
	s, err := FitRobustScaler(obs)
	require.NoError(t, err)

	// likes: median 3, q1 2, q3 4
	assert.Equal(t, 3.0, s.Center[2])
	assert.Equal(t, 2.0, s.Scale[2])
	// retweets all zero: IQR 0 scales by 1
	assert.Equal(t, 0.0, s.Center[0])
	assert.Equal(t, 1.0, s.Scale[0])

	v := s.Transform(db.Engagement{Likes: 7})
	assert.Equal(t, 2.0, v[2])

	_, err = FitRobustScaler(nil)
	assert.Error(t, err)
}

func TestQuantile_LinearInterpolation(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.Equal(t, 2.5, quantile(sorted, 0.5))
	assert.Equal(t, 1.75, quantile(sorted, 0.25))
	assert.Equal(t, 3.25, quantile(sorted, 0.75))
}

func TestScalerParamsRoundTrip(t *testing.T) {
	s := &RobustScaler{Center: [4]float64{1, 2, 3, 4}, Scale: [4]float64{5, 6, 7, 8}}
	byName := map[string]db.ScalerParam{}
	for _, p := range s.Params(time.Now()) {
		byName[p.Counter] = p
	}
	back, ok := ScalerFromParams(byName)
	require.True(t, ok)
	assert.Equal(t, s, back)

	delete(byName, "like_count")
	_, ok = ScalerFromParams(byName)
	assert.False(t, ok)
}

func rec(id string, at time.Time, neg, neu, pos float64, likes int64, emb ...float32) db.EnrichedRecord {
	return db.EnrichedRecord{
		ID: id, CreatedAt: at, CleanedText: "x",
		Sentiment:  db.Sentiment{Label: db.LabelNeutral, Negative: neg, Neutral: neu, Positive: pos},
		Embedding:  emb,
		Engagement: db.Engagement{Likes: likes},
	}
}

func TestAggregateDaily_HandComputed(t *testing.T) {
	d1, d2, d3 := day("2025-04-01"), day("2025-04-02"), day("2025-04-03")
	records := []db.EnrichedRecord{
		rec("a", d1.Add(time.Hour), 0.2, 0.3, 0.5, 1, 1, 0),
		rec("b", d1.Add(20*time.Hour), 0.6, 0.3, 0.1, 3, 0, 1),
		rec("c", d2.Add(time.Hour), 0.5, 0.5, 0.0, 0, 2, 2),
		rec("d", d3.Add(time.Hour), 0.1, 0.1, 0.8, 0, 4, 0),
		rec("e", d3.Add(2*time.Hour), 0.3, 0.3, 0.4, 0, 0, 4),
	}

	f, err := AggregateDaily(records, identityScaler(), 2)
	require.NoError(t, err)
	require.Equal(t, 3, f.Len())

	assert.Equal(t, []float64{2, 1, 2}, mustCol(t, f, ColRecords))
	assert.InDelta(t, 0.4, f.Get(ColScoreNegative, 0), 1e-12)
	assert.InDelta(t, 0.6, f.Get(ColScorePositive, 2), 1e-12)
	assert.InDelta(t, 2.0, f.Get("like_count", 0), 1e-12)

	// day 1 weighted by likes (1, 3): (0.5*1 + 0.1*3)/4
	assert.InDelta(t, 0.2, f.Get(WeightedColumn("positive", "like_count"), 0), 1e-12)
	// day 3 has zero like weight: falls back to the plain mean
	assert.InDelta(t, 0.6, f.Get(WeightedColumn("positive", "like_count"), 2), 1e-12)

	assert.InDelta(t, 0.5, f.Get(EmbeddingColumn(0), 0), 1e-12)
	assert.InDelta(t, 2.0, f.Get(EmbeddingColumn(1), 2), 1e-12)
}

func TestAggregateDaily_PermutationInvariant(t *testing.T) {
	base := day("2025-04-01")
	rng := rand.New(rand.NewSource(7))
	var records []db.EnrichedRecord
	for i := 0; i < 60; i++ {
		neg := rng.Float64() / 2
		pos := rng.Float64() / 2
		records = append(records, rec(
			strconv.Itoa(1000+i), base.Add(time.Duration(rng.Intn(72))*time.Hour),
			neg, 1-neg-pos, pos, int64(rng.Intn(50)),
			rng.Float32(), rng.Float32(), rng.Float32(),
		))
	}
	scaler, err := FitRobustScaler(engagements(records))
	require.NoError(t, err)

	want, err := AggregateDaily(records, scaler, 3)
	require.NoError(t, err)

	for trial := 0; trial < 5; trial++ {
		shuffled := append([]db.EnrichedRecord(nil), records...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got, err := AggregateDaily(shuffled, scaler, 3)
		require.NoError(t, err)
		for _, c := range want.Columns() {
			assert.Equal(t, mustCol(t, want, c), mustCol(t, got, c), "column %s", c)
		}
	}
}

func TestAggregateDaily_EmbeddingLengthChecked(t *testing.T) {
	_, err := AggregateDaily([]db.EnrichedRecord{rec("a", day("2025-04-01"), 0, 1, 0, 0, 1)}, identityScaler(), 2)
	assert.Error(t, err)
}

func engagements(rs []db.EnrichedRecord) []db.Engagement {
	out := make([]db.Engagement, len(rs))
	for i, r := range rs {
		out[i] = r.Engagement
	}
	return out
}

func mustCol(t *testing.T, f *frame.Frame, name string) []float64 {
	t.Helper()
	v, ok := f.Column(name)
	require.True(t, ok, "missing column %s", name)
	return v
}

func TestResample_ForwardFillsGaps(t *testing.T) {
	f := frame.New([]time.Time{day("2025-04-01"), day("2025-04-04")})
	f.MustSet(ColRecords, []float64{3, 5})
	f.MustSet(ColScoreNegative, []float64{0.2, 0.6})

	r, err := Resample(f)
	require.NoError(t, err)
	require.Equal(t, 4, r.Len())
	assert.True(t, r.IsContiguous())
	assert.Equal(t, []float64{3, 0, 0, 5}, mustCol(t, r, ColRecords))
	assert.Equal(t, []float64{0.2, 0.2, 0.2, 0.6}, mustCol(t, r, ColScoreNegative))
	assert.Equal(t, 3.0, f.Get(ColRecords, 0), "input untouched")
}

func TestResample_RejectsDuplicateDates(t *testing.T) {
	f := frame.New([]time.Time{day("2025-04-01"), day("2025-04-01")})
	_, err := Resample(f)
	assert.True(t, errors.Is(err, ErrDateIndex))
}

func dailyRange(from string, n int) *frame.Frame {
	start := day(from)
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	return frame.New(dates)
}

func TestJoinLabels_ForwardAlignment(t *testing.T) {
	daily := dailyRange("2025-04-05", 15) // 04-05 .. 04-19
	labels := []db.Label{
		{ReportDate: day("2025-04-08"), Approval: 0.30, Disapproval: 0.60},
		{ReportDate: day("2025-04-15"), Approval: 0.31, Disapproval: 0.58},
	}

	j, err := JoinLabels(daily, labels, 7)
	require.NoError(t, err)

	for i, d := range j.Dates() {
		got := j.Get(ColApproval, i)
		switch {
		case !d.After(day("2025-04-08")):
			assert.Equal(t, 0.30, got, d.Format(frame.DateLayout))
		case !d.After(day("2025-04-15")):
			assert.Equal(t, 0.31, got, d.Format(frame.DateLayout))
			assert.Equal(t, 0.58, j.Get(ColDisapproval, i))
		default:
			assert.True(t, math.IsNaN(got), "%s after last report must be null", d.Format(frame.DateLayout))
		}
	}
}

func TestJoinLabels_CoverageWindowBound(t *testing.T) {
	daily := dailyRange("2025-04-01", 15) // 04-01 .. 04-15
	j, err := JoinLabels(daily, []db.Label{{ReportDate: day("2025-04-15"), Approval: 0.31, Disapproval: 0.6}}, 7)
	require.NoError(t, err)

	idx, _ := j.Index(day("2025-04-08"))
	assert.True(t, math.IsNaN(j.Get(ColApproval, idx)), "8 days before the report is outside the window")
	idx, _ = j.Index(day("2025-04-09"))
	assert.Equal(t, 0.31, j.Get(ColApproval, idx))
	assert.False(t, daily.Has(ColApproval), "input untouched")
}

func TestJoinLabels_Duplicate(t *testing.T) {
	_, err := JoinLabels(dailyRange("2025-04-01", 3), []db.Label{
		{ReportDate: day("2025-04-02")}, {ReportDate: day("2025-04-02").Add(3 * time.Hour)},
	}, 7)
	assert.True(t, errors.Is(err, ErrDuplicateLabel))
}

func TestBuildFeatures_RollingUsesPriorSevenDays(t *testing.T) {
	f := dailyRange("2025-03-01", 20)
	y := make([]float64, 20)
	for i := range y {
		y[i] = float64(i + 1) // day k (1-based) has value k
	}
	f.MustSet(ColApproval, y)
	f.MustSet(ColDisapproval, y)

	out, err := BuildFeatures(f)
	require.NoError(t, err)

	roll := mustCol(t, out, RollingColumn(ColApproval))
	for i := 0; i < 7; i++ {
		assert.True(t, math.IsNaN(roll[i]), "day %d lacks a full window", i+1)
	}
	// day 15 (index 14): mean of days 8..14
	assert.InDelta(t, (8.0+9+10+11+12+13+14)/7, roll[14], 1e-12)
	assert.InDelta(t, 4.0, roll[7], 1e-12)

	lag7 := mustCol(t, out, "approval_lag_7d")
	assert.Equal(t, 8.0, lag7[14])
	assert.True(t, math.IsNaN(mustCol(t, out, "approval_lag_14d")[13]))
	assert.Equal(t, 1.0, mustCol(t, out, "approval_lag_14d")[14])
	assert.Equal(t, 1.0, mustCol(t, out, "approval_diff")[5])
	assert.InDelta(t, 1.0, mustCol(t, out, "approval_pct_change")[1], 1e-12)
	assert.InDelta(t, 1.0/3, mustCol(t, out, "approval_pct_change")[3], 1e-12)
}

func TestBuildFeatures_NaNPropagatesNotZero(t *testing.T) {
	f := dailyRange("2025-03-01", 10)
	neg := []float64{0.1, 0.2, 0.3, math.NaN(), 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}
	f.MustSet(ColScoreNegative, neg)
	f.MustSet(ColScorePositive, make([]float64, 10))
	f.MustSet(ColApproval, []float64{0, 0.5, math.NaN(), 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5})

	out, err := BuildFeatures(f)
	require.NoError(t, err)

	r3 := mustCol(t, out, "score_negative_rolling3")
	assert.True(t, math.IsNaN(r3[1]))
	assert.InDelta(t, 0.2, r3[2], 1e-12)
	assert.True(t, math.IsNaN(r3[5]), "window containing a missing day is missing")
	assert.InDelta(t, 0.6, r3[6], 1e-12)

	lag1 := mustCol(t, out, "score_negative_lag_1")
	assert.True(t, math.IsNaN(lag1[0]))
	assert.True(t, math.IsNaN(lag1[4]))

	pct := mustCol(t, out, "approval_pct_change")
	assert.True(t, math.IsNaN(pct[1]), "previous value 0")
	assert.True(t, math.IsNaN(pct[3]), "previous value missing")

	net := mustCol(t, out, ColSentimentNet)
	assert.InDelta(t, -0.1, net[0], 1e-12)
	assert.True(t, math.IsNaN(mustCol(t, out, "sentiment_net_rolling14")[9]))
	assert.True(t, math.IsNaN(mustCol(t, out, "disapproval_rolling_7d")[9]), "absent target is all NaN")
}

func TestBuildFeatures_LagIsCalendarOffset(t *testing.T) {
	// 04-03 has no records; after resampling the lag must still point at
	// exactly seven calendar days earlier.
	var dates []time.Time
	var vals []float64
	for i := 0; i < 12; i++ {
		if i == 2 {
			continue
		}
		dates = append(dates, day("2025-04-01").AddDate(0, 0, i))
		vals = append(vals, float64(i))
	}
	agg := frame.New(dates)
	agg.MustSet(ColRecords, make([]float64, len(dates)))
	agg.MustSet(ColScorePositive, vals)

	_, err := BuildFeatures(agg)
	require.True(t, errors.Is(err, ErrDateIndex), "gapped input is rejected")

	full, err := Resample(agg)
	require.NoError(t, err)
	out, err := BuildFeatures(full)
	require.NoError(t, err)

	idx, _ := out.Index(day("2025-04-10")) // D-7 = 04-03, forward-filled from 04-02
	assert.Equal(t, 1.0, out.Get("score_positive_lag_7", idx))
	idx, _ = out.Index(day("2025-04-11")) // D-7 = 04-04
	assert.Equal(t, 3.0, out.Get("score_positive_lag_7", idx))
}

func TestBuildFeatures_EmbeddingSimilarity(t *testing.T) {
	f := dailyRange("2025-04-01", 3)
	f.MustSet(EmbeddingColumn(0), []float64{1, 1, 0})
	f.MustSet(EmbeddingColumn(1), []float64{0, 0, 1})

	out, err := BuildFeatures(f)
	require.NoError(t, err)
	sim := mustCol(t, out, ColEmbeddingSimilarity)
	assert.True(t, math.IsNaN(sim[0]))
	assert.InDelta(t, 1.0, sim[1], 1e-12)
	assert.InDelta(t, 0.0, sim[2], 1e-12)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 2, 3}, []float64{1, 2, 3}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.True(t, math.IsNaN(CosineSimilarity([]float64{0, 0}, []float64{1, 0})))
	assert.True(t, math.IsNaN(CosineSimilarity([]float64{1}, []float64{1, 0})))
}
