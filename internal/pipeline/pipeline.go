// Package pipeline runs the daily stages in order and records the outcome.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/PolloDK/FK01-Encuestas/internal/artifact"
	"github.com/PolloDK/FK01-Encuestas/internal/db"
	"github.com/PolloDK/FK01-Encuestas/internal/enrich"
	"github.com/PolloDK/FK01-Encuestas/internal/features"
	"github.com/PolloDK/FK01-Encuestas/internal/frame"
	"github.com/PolloDK/FK01-Encuestas/internal/indicators"
	"github.com/PolloDK/FK01-Encuestas/internal/logger"
	"github.com/PolloDK/FK01-Encuestas/internal/scoring"
	"github.com/PolloDK/FK01-Encuestas/internal/telemetry"
)

// Stage names, in execution order.
const (
	StageEnrich     = "enrich"
	StageFeatures   = "features"
	StagePredict    = "predict"
	StageIndicators = "indicators"
	StageSummary    = "summary"
)

type Status string

const (
	StatusOK        Status = "ok"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// StageReport is one stage's outcome. Detail holds the stage's own report.
type StageReport struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Detail   any           `json:"detail,omitempty"`
}

// FatalError aborts a run. Everything else is contained in a stage report.
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal error in %s stage: %v", e.Stage, e.Err)
}
func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err aborted a run.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Store is the record-store access the whole run needs.
type Store interface {
	enrich.Store
	features.Store
	StartRun(ctx context.Context, id string, startedAt time.Time) error
	FinishRun(ctx context.Context, id, status, summary string) error
}

// Enricher runs the enrichment stage.
type Enricher interface {
	Run(ctx context.Context) (enrich.Report, error)
}

// FeatureBuilder runs the feature stage.
type FeatureBuilder interface {
	Run(ctx context.Context) (*frame.Frame, features.StageReport, error)
}

type Pipeline struct {
	store     Store
	artifacts artifact.Store
	enricher  Enricher
	features  FeatureBuilder
	predictor *scoring.Predictor
	log       *logger.Logger
	metrics   *telemetry.Metrics
	now       func() time.Time
}

func New(store Store, artifacts artifact.Store, enricher Enricher, fb FeatureBuilder, predictor *scoring.Predictor, log *logger.Logger, metrics *telemetry.Metrics) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		store:     store,
		artifacts: artifacts,
		enricher:  enricher,
		features:  fb,
		predictor: predictor,
		log:       log,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Run executes enrich, features, predict, indicators and summary. Stage
// failures are recorded and later stages skip what they cannot do; only a
// FatalError or cancellation is returned. The report is returned either way.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	rep := &Report{RunID: uuid.NewString(), StartedAt: p.now().UTC()}
	log := p.log.With("run_id", rep.RunID)
	if err := p.store.StartRun(ctx, rep.RunID, rep.StartedAt); err != nil {
		return rep, &FatalError{Stage: "start", Err: err}
	}
	log.Info("Pipeline run started")

	runErr := p.run(ctx, rep, log)
	rep.Duration = p.now().Sub(rep.StartedAt)

	status := db.RunSucceeded
	if runErr != nil {
		status = db.RunFailed
	}
	rep.Status = status
	summary, _ := json.Marshal(rep)
	// The run context may already be cancelled; the history row must still close.
	finishCtx := context.WithoutCancel(ctx)
	if err := p.store.FinishRun(finishCtx, rep.RunID, status, string(summary)); err != nil {
		log.Error("Recording run finish failed", "error", err.Error())
	}
	log.Info("Pipeline run finished", "status", status, "duration", FormatDurationShort(rep.Duration.Milliseconds()))
	return rep, runErr
}

func (p *Pipeline) run(ctx context.Context, rep *Report, log *logger.Logger) error {
	var enriched enrich.Report
	err := p.stage(rep, StageEnrich, func(sr *StageReport) error {
		r, err := p.enricher.Run(ctx)
		enriched, sr.Detail = r, r
		if r.Status == enrich.StatusNoop || r.Status == enrich.StatusSkipped {
			sr.Status, sr.Reason = StatusSkipped, string(r.Status)
		}
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Records are known to exist but the store could not be read or written.
		if enriched.Pending > 0 {
			return &FatalError{Stage: StageEnrich, Err: err}
		}
		log.Error("Enrichment failed, continuing with stored records", "error", err.Error())
	}

	var feats *frame.Frame
	err = p.stage(rep, StageFeatures, func(sr *StageReport) error {
		f, r, err := p.features.Run(ctx)
		feats, sr.Detail = f, r
		if err == nil && r.Skipped {
			sr.Status, sr.Reason = StatusSkipped, "no enriched records"
		}
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if features.IsFatal(err) {
			return &FatalError{Stage: StageFeatures, Err: err}
		}
		log.Error("Feature build failed", "error", err.Error())
	}

	var predictions []scoring.PredictionRow
	err = p.stage(rep, StagePredict, func(sr *StageReport) error {
		if feats == nil {
			sr.Status, sr.Reason = StatusSkipped, "no feature table"
			return nil
		}
		rows, paths, err := p.PredictFrame(ctx, feats)
		predictions, sr.Detail = rows, paths
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("Prediction failed", "error", err.Error())
	}
	rep.Predictions = len(predictions)
	rep.Latest, rep.Change = latestWithChange(predictions)

	err = p.stage(rep, StageIndicators, func(sr *StageReport) error {
		daily, err := p.WriteIndicators(ctx, predictions)
		if daily != nil {
			sr.Detail = map[string]int{"days": daily.Len()}
		}
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("Indicators failed", "error", err.Error())
	}

	rep.Duration = p.now().Sub(rep.StartedAt)
	err = p.stage(rep, StageSummary, func(*StageReport) error {
		return p.artifacts.Put(ctx, artifact.RunSummary, []byte(RenderMarkdown(rep)))
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("Writing run summary failed", "error", err.Error())
	}
	return nil
}

// stage runs fn as the named stage and appends its report. A non-nil error
// marks the stage failed, or cancelled when the context ended.
func (p *Pipeline) stage(rep *Report, name string, fn func(*StageReport) error) error {
	sr := StageReport{Name: name, Status: StatusOK}
	start := time.Now()
	err := fn(&sr)
	sr.Duration = time.Since(start)
	if err != nil {
		sr.Status = StatusFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			sr.Status = StatusCancelled
		}
		sr.Error = err.Error()
	}
	rep.Stages = append(rep.Stages, sr)
	p.metrics.StageFinished(name, string(sr.Status), sr.Duration)
	return err
}

// PredictFrame scores features and writes the predictions artifact.
func (p *Pipeline) PredictFrame(ctx context.Context, feats *frame.Frame) ([]scoring.PredictionRow, []scoring.PathReport, error) {
	if p.predictor == nil {
		return nil, nil, fmt.Errorf("no prediction models loaded")
	}
	rows, paths, err := p.predictor.Predict(ctx, feats)
	if err != nil {
		return nil, paths, err
	}
	for _, pr := range paths {
		p.metrics.PredictionsWritten(pr.Target, pr.Scored)
	}
	if err := artifact.WriteFrame(ctx, p.artifacts, artifact.Predictions, scoring.PredictionsFrame(rows)); err != nil {
		return rows, paths, fmt.Errorf("writing predictions: %w", err)
	}
	return rows, paths, nil
}

// Predict scores the stored feature artifact. A missing artifact yields no
// rows and no error.
func (p *Pipeline) Predict(ctx context.Context) ([]scoring.PredictionRow, []scoring.PathReport, error) {
	feats, err := artifact.ReadFrame(ctx, p.artifacts, artifact.Features)
	if errors.Is(err, artifact.ErrNotFound) {
		p.log.Warn("No feature table yet, nothing to score")
		return []scoring.PredictionRow{}, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return p.PredictFrame(ctx, feats)
}

// WriteIndicators stores the daily indicators and, when there are
// predictions, rewrites the predictions artifact with indicators attached.
func (p *Pipeline) WriteIndicators(ctx context.Context, predictions []scoring.PredictionRow) (*frame.Frame, error) {
	daily, err := indicators.Daily(ctx, p.store)
	if err != nil {
		return nil, fmt.Errorf("computing indicators: %w", err)
	}
	if err := artifact.WriteFrame(ctx, p.artifacts, artifact.Indicators, daily); err != nil {
		return daily, err
	}
	if len(predictions) == 0 {
		return daily, nil
	}
	joined := indicators.Attach(scoring.PredictionsFrame(predictions), daily)
	return daily, artifact.WriteFrame(ctx, p.artifacts, artifact.Predictions, joined)
}

// latestWithChange returns the newest prediction and its change from the
// previous row, per target.
func latestWithChange(rows []scoring.PredictionRow) (*scoring.PredictionRow, *scoring.PredictionRow) {
	if len(rows) == 0 {
		return nil, nil
	}
	last := rows[len(rows)-1]
	if len(rows) == 1 {
		return &last, nil
	}
	prev := rows[len(rows)-2]
	change := &scoring.PredictionRow{Date: last.Date}
	if last.Approval != nil && prev.Approval != nil {
		d := *last.Approval - *prev.Approval
		change.Approval = &d
	}
	if last.Disapproval != nil && prev.Disapproval != nil {
		d := *last.Disapproval - *prev.Disapproval
		change.Disapproval = &d
	}
	return &last, change
}
