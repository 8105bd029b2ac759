package features

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PolloDK/FK01-Encuestas/internal/artifact"
	"github.com/PolloDK/FK01-Encuestas/internal/db"
	"github.com/PolloDK/FK01-Encuestas/internal/logger"
)

func openStore(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.OpenDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, d.Migrate(context.Background()))
	t.Cleanup(func() { d.Close() })
	return d
}

// seedEnriched stores records as raw, then commits them as enriched.
func seedEnriched(t *testing.T, d *db.DB, recs []db.EnrichedRecord) {
	t.Helper()
	ctx := context.Background()
	raws := make([]db.RawRecord, len(recs))
	for i, r := range recs {
		raws[i] = db.RawRecord{ID: r.ID, CreatedAt: r.CreatedAt, Text: "t", Engagement: r.Engagement}
	}
	_, _, err := d.InsertRawRecords(ctx, raws)
	require.NoError(t, err)
	require.NoError(t, d.CommitChunk(ctx, db.ChunkResult{Enriched: recs}))
}

func TestStage_EndToEndThreeDays(t *testing.T) {
	d := openStore(t)
	ctx := context.Background()
	d1, d2, d3 := day("2025-04-14"), day("2025-04-15"), day("2025-04-16")
	seedEnriched(t, d, []db.EnrichedRecord{
		rec("1", d1.Add(9*time.Hour), 0.2, 0.2, 0.6, 2, 1, 0),
		rec("2", d1.Add(10*time.Hour), 0.4, 0.4, 0.2, 4, 1, 0),
		rec("3", d2.Add(9*time.Hour), 0.7, 0.2, 0.1, 6, 0, 1),
		rec("4", d3.Add(9*time.Hour), 0.1, 0.8, 0.1, 8, 1, 1),
	})
	// A single report on day 2 with a one-day coverage window.
	require.NoError(t, d.UpsertLabels(ctx, []db.Label{{ReportDate: d2, Approval: 0.31, Disapproval: 0.6}}))

	store, err := artifact.NewLocal(t.TempDir())
	require.NoError(t, err)
	st := NewStage(d, store, StageOptions{CoverageDays: 1, Dimensions: 2}, logger.Nop())

	f, rep, err := st.Run(ctx)
	require.NoError(t, err)
	assert.True(t, rep.ScalerFit)
	assert.Equal(t, 4, rep.Records)
	assert.Equal(t, 3, rep.Days)
	assert.Equal(t, 0, rep.FilledDays)
	assert.Equal(t, 1, rep.LabeledDays)

	require.Equal(t, 3, f.Len())
	assert.Equal(t, []float64{2, 1, 1}, mustCol(t, f, ColRecords))
	assert.InDelta(t, 0.3, f.Get(ColScoreNegative, 0), 1e-12)
	assert.InDelta(t, 0.4, f.Get(ColScorePositive, 0), 1e-12)
	assert.InDelta(t, 0.7, f.Get(ColScoreNegative, 1), 1e-12)

	approval := mustCol(t, f, ColApproval)
	assert.True(t, math.IsNaN(approval[0]))
	assert.Equal(t, 0.31, approval[1])
	assert.True(t, math.IsNaN(approval[2]))

	// Scaler persisted: likes 2,4,6,8 -> median 5, IQR 3.
	params, err := d.ScalerParams(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5.0, params["like_count"].Center)
	assert.Equal(t, 3.0, params["like_count"].Scale)

	daily, err := artifact.ReadFrame(ctx, store, artifact.DailyAggregates)
	require.NoError(t, err)
	assert.Equal(t, 3, daily.Len())
	assert.False(t, daily.Has(ColApproval))
}

func TestStage_ReusesPersistedScaler(t *testing.T) {
	d := openStore(t)
	ctx := context.Background()
	seedEnriched(t, d, []db.EnrichedRecord{rec("1", day("2025-04-14"), 0.2, 0.2, 0.6, 2, 1, 0)})
	require.NoError(t, d.SaveScalerParams(ctx, (&RobustScaler{Center: [4]float64{0, 0, 10, 0}, Scale: [4]float64{1, 1, 4, 1}}).Params(time.Now())))

	store, err := artifact.NewLocal(t.TempDir())
	require.NoError(t, err)

	f, rep, err := NewStage(d, store, StageOptions{}, nil).Run(ctx)
	require.NoError(t, err)
	assert.False(t, rep.ScalerFit)
	assert.InDelta(t, (2.0-10)/4, f.Get("like_count", 0), 1e-12)

	_, rep, err = NewStage(d, store, StageOptions{RefitScaler: true}, nil).Run(ctx)
	require.NoError(t, err)
	assert.True(t, rep.ScalerFit)
	params, err := d.ScalerParams(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2.0, params["like_count"].Center)
}

func TestStage_SkipsWithoutRecords(t *testing.T) {
	d := openStore(t)
	store, err := artifact.NewLocal(t.TempDir())
	require.NoError(t, err)

	f, rep, err := NewStage(d, store, StageOptions{}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Skipped)
	assert.Nil(t, f)
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrDateIndex))
	assert.True(t, IsFatal(ErrDuplicateLabel))
	assert.False(t, IsFatal(context.Canceled))
}
