// Package frame is a minimal date-indexed table of float64 columns. Missing
// values are NaN.
package frame

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// DateLayout is the on-disk date format.
const DateLayout = "2006-01-02"

// ErrDateIndex reports a date index that is not strictly increasing.
var ErrDateIndex = errors.New("date index is not strictly increasing")

// Frame holds one row per date. Column order is insertion order.
type Frame struct {
	dates []time.Time
	order []string
	cols  map[string][]float64
}

// New creates a frame over dates with no columns. Dates are truncated to UTC days.
func New(dates []time.Time) *Frame {
	ds := make([]time.Time, len(dates))
	for i, d := range dates {
		ds[i] = Day(d)
	}
	return &Frame{dates: ds, cols: make(map[string][]float64)}
}

// Empty creates a zero-row frame with the given columns.
func Empty(columns ...string) *Frame {
	f := New(nil)
	for _, c := range columns {
		f.cols[c] = []float64{}
		f.order = append(f.order, c)
	}
	return f
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NaNs returns a slice of n NaN values.
func NaNs(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = math.NaN()
	}
	return v
}

func (f *Frame) Len() int { return len(f.dates) }

func (f *Frame) Dates() []time.Time { return f.dates }

func (f *Frame) Date(i int) time.Time { return f.dates[i] }

// Columns returns column names in insertion order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

func (f *Frame) Has(name string) bool {
	_, ok := f.cols[name]
	return ok
}

// Column returns the backing slice for name; callers must not resize it.
func (f *Frame) Column(name string) ([]float64, bool) {
	v, ok := f.cols[name]
	return v, ok
}

// Get returns the value at row i, NaN when the column is absent.
func (f *Frame) Get(name string, i int) float64 {
	v, ok := f.cols[name]
	if !ok {
		return math.NaN()
	}
	return v[i]
}

// Set adds or replaces a column. values must have one entry per row.
func (f *Frame) Set(name string, values []float64) error {
	if len(values) != len(f.dates) {
		return fmt.Errorf("column %s: %d values for %d rows", name, len(values), len(f.dates))
	}
	if _, ok := f.cols[name]; !ok {
		f.order = append(f.order, name)
	}
	f.cols[name] = values
	return nil
}

// MustSet is Set for callers that construct values from Len().
func (f *Frame) MustSet(name string, values []float64) {
	if err := f.Set(name, values); err != nil {
		panic(err)
	}
}

// Index returns the row of date, if present.
func (f *Frame) Index(date time.Time) (int, bool) {
	d := Day(date)
	i := sort.Search(len(f.dates), func(i int) bool { return !f.dates[i].Before(d) })
	if i < len(f.dates) && f.dates[i].Equal(d) {
		return i, true
	}
	return 0, false
}

// CheckIndex verifies the dates are strictly increasing.
func (f *Frame) CheckIndex() error {
	for i := 1; i < len(f.dates); i++ {
		if !f.dates[i].After(f.dates[i-1]) {
			return fmt.Errorf("%w: %s follows %s", ErrDateIndex,
				f.dates[i].Format(DateLayout), f.dates[i-1].Format(DateLayout))
		}
	}
	return nil
}

// IsContiguous reports whether consecutive rows are exactly one day apart.
func (f *Frame) IsContiguous() bool {
	for i := 1; i < len(f.dates); i++ {
		if !f.dates[i].Equal(f.dates[i-1].AddDate(0, 0, 1)) {
			return false
		}
	}
	return true
}

// Clone deep-copies the frame.
func (f *Frame) Clone() *Frame {
	out := New(f.dates)
	for _, name := range f.order {
		v := make([]float64, len(f.cols[name]))
		copy(v, f.cols[name])
		out.MustSet(name, v)
	}
	return out
}

// Select returns a new frame with the given rows, in the given order.
func (f *Frame) Select(rows []int) *Frame {
	dates := make([]time.Time, len(rows))
	for j, i := range rows {
		dates[j] = f.dates[i]
	}
	out := New(dates)
	for _, name := range f.order {
		src := f.cols[name]
		v := make([]float64, len(rows))
		for j, i := range rows {
			v[j] = src[i]
		}
		out.MustSet(name, v)
	}
	return out
}

// Last returns the index of the last row where name is not NaN, or -1.
func (f *Frame) Last(name string) int {
	v, ok := f.cols[name]
	if !ok {
		return -1
	}
	for i := len(v) - 1; i >= 0; i-- {
		if !math.IsNaN(v[i]) {
			return i
		}
	}
	return -1
}

// MergeByDate combines two frames keyed by date. Rows of fresh replace rows
// of existing with the same date; other rows of existing are kept. The
// result is sorted by date and carries the union of columns, NaN where a
// side lacks a column.
func MergeByDate(existing, fresh *Frame) *Frame {
	if existing == nil || existing.Len() == 0 && len(existing.order) == 0 {
		return fresh.Clone()
	}

	type src struct {
		f   *Frame
		row int
	}
	byDate := make(map[time.Time]src, existing.Len()+fresh.Len())
	for i, d := range existing.dates {
		byDate[d] = src{existing, i}
	}
	for i, d := range fresh.dates {
		byDate[d] = src{fresh, i}
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	columns := existing.Columns()
	for _, c := range fresh.order {
		if !existing.Has(c) {
			columns = append(columns, c)
		}
	}

	out := New(dates)
	for _, c := range columns {
		v := make([]float64, len(dates))
		for j, d := range dates {
			s := byDate[d]
			v[j] = s.f.Get(c, s.row)
		}
		out.MustSet(c, v)
	}
	return out
}
