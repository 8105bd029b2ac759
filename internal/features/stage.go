package features

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/PolloDK/FK01-Encuestas/internal/artifact"
	"github.com/PolloDK/FK01-Encuestas/internal/db"
	"github.com/PolloDK/FK01-Encuestas/internal/frame"
	"github.com/PolloDK/FK01-Encuestas/internal/logger"
)

// Store is the record-store access the feature stage needs.
type Store interface {
	ForEachEnriched(ctx context.Context, withEmbedding bool, fn func(db.EnrichedRecord) error) error
	EngagementColumns(ctx context.Context) ([]db.Engagement, error)
	ScalerParams(ctx context.Context) (map[string]db.ScalerParam, error)
	SaveScalerParams(ctx context.Context, params []db.ScalerParam) error
	Labels(ctx context.Context) ([]db.Label, error)
}

type StageOptions struct {
	CoverageDays int
	Dimensions   int
	RefitScaler  bool
}

// StageReport summarizes one feature build.
type StageReport struct {
	Skipped     bool      `json:"skipped"`
	Records     int       `json:"records"`
	Days        int       `json:"days"`
	FilledDays  int       `json:"filled_days"`
	LabeledDays int       `json:"labeled_days"`
	FirstDay    time.Time `json:"first_day"`
	LastDay     time.Time `json:"last_day"`
	ScalerFit   bool      `json:"scaler_fit"`
}

// Stage rebuilds the daily aggregate and feature artifacts from the store.
type Stage struct {
	store     Store
	artifacts artifact.Store
	opts      StageOptions
	log       *logger.Logger
}

func NewStage(store Store, artifacts artifact.Store, opts StageOptions, log *logger.Logger) *Stage {
	if opts.CoverageDays <= 0 {
		opts.CoverageDays = DefaultCoverageDays
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Stage{store: store, artifacts: artifacts, opts: opts, log: log.With("stage", "features")}
}

// Run aggregates every enriched record, resamples, joins labels and builds
// features, then merges both artifacts by date. It returns the full feature
// frame. With no enriched records the report is Skipped and the frame nil.
func (s *Stage) Run(ctx context.Context) (*frame.Frame, StageReport, error) {
	var rep StageReport

	scaler, fitted, err := s.scaler(ctx)
	if err != nil {
		return nil, rep, err
	}
	if scaler == nil {
		rep.Skipped = true
		s.log.Info("No enriched records, skipping feature build")
		return nil, rep, nil
	}
	rep.ScalerFit = fitted

	agg := NewAggregator(scaler, s.opts.Dimensions)
	err = s.store.ForEachEnriched(ctx, s.opts.Dimensions > 0, func(r db.EnrichedRecord) error {
		rep.Records++
		return agg.Add(r)
	})
	if err != nil {
		return nil, rep, fmt.Errorf("aggregating enriched records: %w", err)
	}

	daily, err := Resample(agg.Frame())
	if err != nil {
		return nil, rep, err
	}
	rep.Days = daily.Len()
	if counts, ok := daily.Column(ColRecords); ok {
		for _, c := range counts {
			if c == 0 {
				rep.FilledDays++
			}
		}
	}
	if daily.Len() > 0 {
		rep.FirstDay, rep.LastDay = daily.Date(0), daily.Date(daily.Len()-1)
	}

	labels, err := s.store.Labels(ctx)
	if err != nil {
		return nil, rep, fmt.Errorf("loading labels: %w", err)
	}
	joined, err := JoinLabels(daily, labels, s.opts.CoverageDays)
	if err != nil {
		return nil, rep, err
	}
	approval, _ := joined.Column(ColApproval)
	for _, v := range approval {
		if !math.IsNaN(v) {
			rep.LabeledDays++
		}
	}

	built, err := BuildFeatures(joined)
	if err != nil {
		return nil, rep, err
	}

	if _, err := artifact.MergeFrame(ctx, s.artifacts, artifact.DailyAggregates, daily); err != nil {
		return nil, rep, fmt.Errorf("writing daily aggregates: %w", err)
	}
	merged, err := artifact.MergeFrame(ctx, s.artifacts, artifact.Features, built)
	if err != nil {
		return nil, rep, fmt.Errorf("writing features: %w", err)
	}

	s.log.Info("Features built",
		"records", rep.Records,
		"days", rep.Days,
		"filled_days", rep.FilledDays,
		"labeled_days", rep.LabeledDays,
		"scaler_fit", rep.ScalerFit,
	)
	return merged, rep, nil
}

// scaler loads the persisted scaler or fits and persists a new one. It
// returns nil when there is nothing to fit on.
func (s *Stage) scaler(ctx context.Context) (*RobustScaler, bool, error) {
	if !s.opts.RefitScaler {
		params, err := s.store.ScalerParams(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("loading scaler: %w", err)
		}
		if sc, ok := ScalerFromParams(params); ok {
			return sc, false, nil
		}
	}

	obs, err := s.store.EngagementColumns(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("loading engagement: %w", err)
	}
	if len(obs) == 0 {
		return nil, false, nil
	}
	sc, err := FitRobustScaler(obs)
	if err != nil {
		return nil, false, err
	}
	if err := s.store.SaveScalerParams(ctx, sc.Params(time.Now())); err != nil {
		return nil, false, fmt.Errorf("saving scaler: %w", err)
	}
	s.log.Info("Engagement scaler fitted", "observations", len(obs), "refit", s.opts.RefitScaler)
	return sc, true, nil
}

// IsFatal reports whether a feature-stage error must abort the run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDateIndex) || errors.Is(err, ErrDuplicateLabel)
}
