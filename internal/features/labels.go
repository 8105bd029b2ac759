package features

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/PolloDK/FK01-Encuestas/internal/db"
	"github.com/PolloDK/FK01-Encuestas/internal/frame"
)

// Target columns joined from the weekly survey.
const (
	ColApproval    = "approval"
	ColDisapproval = "disapproval"
)

// Targets are the prediction targets in output order.
var Targets = []string{ColApproval, ColDisapproval}

// DefaultCoverageDays is the span a weekly report describes, ending on the
// report date inclusive.
const DefaultCoverageDays = 7

// ErrDuplicateLabel reports two labels with the same report date.
var ErrDuplicateLabel = errors.New("duplicate label report date")

// JoinLabels assigns each day of daily the label of the earliest report R
// with R >= day and R - day < coverageDays. Days no report covers, and days
// after the last report, get NaN. The input frame is not modified.
func JoinLabels(daily *frame.Frame, labels []db.Label, coverageDays int) (*frame.Frame, error) {
	if coverageDays <= 0 {
		coverageDays = DefaultCoverageDays
	}

	sorted := make([]db.Label, len(labels))
	copy(sorted, labels)
	for i := range sorted {
		sorted[i].ReportDate = frame.Day(sorted[i].ReportDate)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ReportDate.Before(sorted[j].ReportDate) })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].ReportDate.Equal(sorted[i-1].ReportDate) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLabel, sorted[i].ReportDate.Format(frame.DateLayout))
		}
	}

	n := daily.Len()
	approval, disapproval := frame.NaNs(n), frame.NaNs(n)
	for i, d := range daily.Dates() {
		j := sort.Search(len(sorted), func(j int) bool { return !sorted[j].ReportDate.Before(d) })
		if j == len(sorted) {
			continue
		}
		if daysBetween(d, sorted[j].ReportDate) >= coverageDays {
			continue
		}
		approval[i] = sorted[j].Approval
		disapproval[i] = sorted[j].Disapproval
	}

	out := daily.Clone()
	out.MustSet(ColApproval, approval)
	out.MustSet(ColDisapproval, disapproval)
	return out, nil
}

func daysBetween(from, to time.Time) int {
	return int(math.Round(to.Sub(from).Hours() / 24))
}
