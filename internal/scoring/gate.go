// Package scoring decides which feature rows may be scored and runs the
// per-target models over them.
package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/PolloDK/FK01-Encuestas/internal/frame"
)

// MissingColumnsError lists required columns absent from the feature frame.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required feature columns: %s", strings.Join(e.Columns, ", "))
}

// Row is one eligible feature vector, in Gate.Required order.
type Row struct {
	Date   time.Time
	Values []float64
}

// Gate admits only rows where every required column is present. When
// HorizonColumn is set, rows dated after its last non-missing value are
// withheld as well.
type Gate struct {
	Required      []string
	HorizonColumn string
}

// Filter returns the eligible rows. No eligible rows is an empty, non-nil
// slice and a nil error.
func (g Gate) Filter(f *frame.Frame) ([]Row, error) {
	var missing []string
	cols := make([][]float64, len(g.Required))
	for j, name := range g.Required {
		v, ok := f.Column(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		cols[j] = v
	}
	if g.HorizonColumn != "" && !f.Has(g.HorizonColumn) {
		missing = append(missing, g.HorizonColumn)
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	limit := f.Len() - 1
	if g.HorizonColumn != "" {
		limit = f.Last(g.HorizonColumn)
	}

	rows := []Row{}
	for i := 0; i <= limit; i++ {
		values := make([]float64, len(cols))
		complete := true
		for j, c := range cols {
			if math.IsNaN(c[i]) {
				complete = false
				break
			}
			values[j] = c[i]
		}
		if complete {
			rows = append(rows, Row{Date: f.Date(i), Values: values})
		}
	}
	return rows, nil
}
