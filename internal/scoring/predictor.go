package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/PolloDK/FK01-Encuestas/internal/frame"
	"github.com/PolloDK/FK01-Encuestas/internal/logger"
)

// Prediction columns in the predictions artifact.
const (
	ColPredictedApproval    = "predicted_approval"
	ColPredictedDisapproval = "predicted_disapproval"
)

// PredictionRow is one day's outputs; a nil field means that target's path
// produced nothing for the day.
type PredictionRow struct {
	Date        time.Time `json:"date"`
	Approval    *float64  `json:"approval"`
	Disapproval *float64  `json:"disapproval"`
}

// TargetModel binds a scorer to its gate.
type TargetModel struct {
	Target string // approval | disapproval
	Scorer Scorer
	Gate   Gate
}

// PathReport records how one target path went.
type PathReport struct {
	Target   string `json:"target"`
	Eligible int    `json:"eligible"`
	Scored   int    `json:"scored"`
	Error    string `json:"error,omitempty"`
}

type Predictor struct {
	models []TargetModel
	log    *logger.Logger
}

func NewPredictor(models []TargetModel, log *logger.Logger) *Predictor {
	if log == nil {
		log = logger.Nop()
	}
	return &Predictor{models: models, log: log.With("stage", "predict")}
}

// Predict scores every target independently. A failing path is logged and
// contributes nothing; results are outer-merged by date and sorted. Only
// cancellation is returned as an error.
func (p *Predictor) Predict(ctx context.Context, features *frame.Frame) ([]PredictionRow, []PathReport, error) {
	byDate := map[time.Time]*PredictionRow{}
	reports := make([]PathReport, 0, len(p.models))

	for _, m := range p.models {
		rep := PathReport{Target: m.Target}
		values, dates, err := p.runPath(ctx, m, features, &rep)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, reports, ctxErr
			}
			rep.Error = err.Error()
			var mc *MissingColumnsError
			if errors.As(err, &mc) {
				p.log.Error("Prediction path aborted", "target", m.Target, "missing_columns", mc.Columns)
			} else {
				p.log.Error("Prediction path failed", "target", m.Target, "error", err.Error())
			}
			reports = append(reports, rep)
			continue
		}
		if len(values) == 0 {
			p.log.Warn("No eligible rows", "target", m.Target)
		}

		for i, d := range dates {
			row, ok := byDate[d]
			if !ok {
				row = &PredictionRow{Date: d}
				byDate[d] = row
			}
			v := values[i]
			switch m.Target {
			case "approval":
				row.Approval = &v
			case "disapproval":
				row.Disapproval = &v
			}
		}
		rep.Scored = len(values)
		reports = append(reports, rep)
		p.log.Info("Predictions generated", "target", m.Target, "eligible", rep.Eligible, "scored", rep.Scored)
	}

	rows := make([]PredictionRow, 0, len(byDate))
	for _, r := range byDate {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows, reports, nil
}

func (p *Predictor) runPath(ctx context.Context, m TargetModel, features *frame.Frame, rep *PathReport) ([]float64, []time.Time, error) {
	if m.Target != "approval" && m.Target != "disapproval" {
		return nil, nil, fmt.Errorf("unknown target %q", m.Target)
	}
	rows, err := m.Gate.Filter(features)
	if err != nil {
		return nil, nil, err
	}
	rep.Eligible = len(rows)
	if len(rows) == 0 {
		return nil, nil, nil
	}

	x := make([][]float64, len(rows))
	dates := make([]time.Time, len(rows))
	for i, r := range rows {
		x[i], dates[i] = r.Values, r.Date
	}
	y, err := m.Scorer.Predict(ctx, x)
	if err != nil {
		return nil, nil, err
	}
	if len(y) != len(x) {
		return nil, nil, fmt.Errorf("scorer returned %d values for %d rows", len(y), len(x))
	}
	return y, dates, nil
}

// PredictionsFrame converts rows to the artifact layout. Empty input gives a
// zero-row frame that still carries both prediction columns.
func PredictionsFrame(rows []PredictionRow) *frame.Frame {
	dates := make([]time.Time, len(rows))
	approval := make([]float64, len(rows))
	disapproval := make([]float64, len(rows))
	for i, r := range rows {
		dates[i] = r.Date
		approval[i], disapproval[i] = math.NaN(), math.NaN()
		if r.Approval != nil {
			approval[i] = *r.Approval
		}
		if r.Disapproval != nil {
			disapproval[i] = *r.Disapproval
		}
	}
	f := frame.New(dates)
	f.MustSet(ColPredictedApproval, approval)
	f.MustSet(ColPredictedDisapproval, disapproval)
	return f
}
