package features

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/PolloDK/FK01-Encuestas/internal/db"
	"github.com/PolloDK/FK01-Encuestas/internal/frame"
)

// Base column names of the daily aggregate.
const (
	ColRecords       = "n_records"
	ColScoreNegative = "score_negative"
	ColScoreNeutral  = "score_neutral"
	ColScorePositive = "score_positive"
)

var scoreCols = [3]string{ColScoreNegative, ColScoreNeutral, ColScorePositive}

// weighted column class order: positive, negative, neutral.
var weightedClasses = [3]struct {
	name  string
	score int
}{{"positive", 2}, {"negative", 0}, {"neutral", 1}}

// EmbeddingColumn names dimension i of the mean embedding.
func EmbeddingColumn(i int) string { return "embedding_" + strconv.Itoa(i) }

// WeightedColumn names the engagement-weighted mean of class by counter.
func WeightedColumn(class, counter string) string { return "weighted_" + class + "_" + counter }

type dayAcc struct {
	n      int
	scores [3]float64
	eng    [4]float64
	wnum   [4][3]float64
	wden   [4]float64
	emb    []float64
}

// Aggregator accumulates enriched records into per-day sums. Feed records
// in a deterministic order; AggregateDaily does this by sorting on id.
type Aggregator struct {
	scaler *RobustScaler
	dims   int
	days   map[time.Time]*dayAcc
}

// NewAggregator builds an aggregator. dims is the embedding length; 0
// disables the embedding columns.
func NewAggregator(scaler *RobustScaler, dims int) *Aggregator {
	return &Aggregator{scaler: scaler, dims: dims, days: make(map[time.Time]*dayAcc)}
}

// Add folds one record into its UTC day.
func (a *Aggregator) Add(r db.EnrichedRecord) error {
	if a.dims > 0 && len(r.Embedding) != a.dims {
		return fmt.Errorf("record %s: embedding has %d dimensions, want %d", r.ID, len(r.Embedding), a.dims)
	}
	day := frame.Day(r.CreatedAt)
	acc, ok := a.days[day]
	if !ok {
		acc = &dayAcc{}
		if a.dims > 0 {
			acc.emb = make([]float64, a.dims)
		}
		a.days[day] = acc
	}

	scores := [3]float64{r.Sentiment.Negative, r.Sentiment.Neutral, r.Sentiment.Positive}
	eng := a.scaler.Transform(r.Engagement)

	acc.n++
	for k, s := range scores {
		acc.scores[k] += s
	}
	for c, w := range eng {
		acc.eng[c] += w
		acc.wden[c] += w
		for k, s := range scores {
			acc.wnum[c][k] += s * w
		}
	}
	for i := range acc.emb {
		acc.emb[i] += float64(r.Embedding[i])
	}
	return nil
}

// Columns returns the aggregate's column names in output order.
func (a *Aggregator) Columns() []string {
	cols := []string{ColRecords}
	cols = append(cols, scoreCols[:]...)
	cols = append(cols, Counters...)
	for _, counter := range Counters {
		for _, wc := range weightedClasses {
			cols = append(cols, WeightedColumn(wc.name, counter))
		}
	}
	for i := 0; i < a.dims; i++ {
		cols = append(cols, EmbeddingColumn(i))
	}
	return cols
}

// Frame returns one row per observed day, sorted by date. Days with no
// records are absent; see Resample.
func (a *Aggregator) Frame() *frame.Frame {
	dates := make([]time.Time, 0, len(a.days))
	for d := range a.days {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	cols := a.Columns()
	values := make([][]float64, len(cols))
	for j := range values {
		values[j] = make([]float64, len(dates))
	}

	for i, d := range dates {
		acc := a.days[d]
		n := float64(acc.n)
		j := 0
		put := func(v float64) {
			values[j][i] = v
			j++
		}
		put(n)
		for k := range scoreCols {
			put(acc.scores[k] / n)
		}
		for c := range Counters {
			put(acc.eng[c] / n)
		}
		for c := range Counters {
			for _, wc := range weightedClasses {
				put(ratioOrMean(acc.wnum[c][wc.score], acc.wden[c], acc.scores[wc.score], n))
			}
		}
		for _, s := range acc.emb {
			put(s / n)
		}
	}

	f := frame.New(dates)
	for j, c := range cols {
		f.MustSet(c, values[j])
	}
	return f
}

// ratioOrMean is WeightedAvg over pre-summed terms.
func ratioOrMean(num, den, sum, n float64) float64 {
	if den == 0 {
		return sum / n
	}
	return num / den
}

// AggregateDaily groups records by UTC day. Records are summed in id order
// so the result does not depend on input order.
func AggregateDaily(records []db.EnrichedRecord, scaler *RobustScaler, dims int) (*frame.Frame, error) {
	sorted := make([]db.EnrichedRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	agg := NewAggregator(scaler, dims)
	for _, r := range sorted {
		if err := agg.Add(r); err != nil {
			return nil, err
		}
	}
	return agg.Frame(), nil
}

// Resample expands f to a contiguous daily index between its first and last
// date. Missing days copy the last known row, with n_records set to 0.
func Resample(f *frame.Frame) (*frame.Frame, error) {
	if err := f.CheckIndex(); err != nil {
		return nil, err
	}
	if f.Len() == 0 {
		return f.Clone(), nil
	}

	first, last := f.Date(0), f.Date(f.Len()-1)
	var dates []time.Time
	var src []int
	row := 0
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		if row+1 < f.Len() && !f.Date(row+1).After(d) {
			row++
		}
		dates = append(dates, d)
		src = append(src, row)
	}

	out := f.Select(src)
	out = relabel(out, dates)
	if counts, ok := out.Column(ColRecords); ok {
		for i, d := range dates {
			if !f.Date(src[i]).Equal(d) {
				counts[i] = 0
			}
		}
	}
	return out, nil
}

// relabel returns a copy of f indexed by dates (same length).
func relabel(f *frame.Frame, dates []time.Time) *frame.Frame {
	out := frame.New(dates)
	for _, c := range f.Columns() {
		v, _ := f.Column(c)
		out.MustSet(c, v)
	}
	return out
}
