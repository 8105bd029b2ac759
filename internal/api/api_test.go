package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PolloDK/FK01-Encuestas/internal/artifact"
	"github.com/PolloDK/FK01-Encuestas/internal/db"
	"github.com/PolloDK/FK01-Encuestas/internal/frame"
	"github.com/PolloDK/FK01-Encuestas/internal/logger"
	"github.com/PolloDK/FK01-Encuestas/internal/telemetry"
)

func init() { gin.SetMode(gin.TestMode) }

func setup(t *testing.T) (*gin.Engine, *db.DB, artifact.Store) {
	t.Helper()
	d, err := db.OpenDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, d.Migrate(context.Background()))
	t.Cleanup(func() { d.Close() })

	store, err := artifact.NewLocal(t.TempDir())
	require.NoError(t, err)
	router := NewRouter(RouterConfig{
		Handler: NewHandler(d, store),
		Metrics: telemetry.New(),
		Log:     logger.Nop(),
	})
	return router, d, store
}

func get(t *testing.T, r http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func writePredictions(t *testing.T, store artifact.Store) {
	t.Helper()
	start := time.Date(2025, 4, 14, 0, 0, 0, 0, time.UTC)
	f := frame.New([]time.Time{start, start.AddDate(0, 0, 1), start.AddDate(0, 0, 2)})
	f.MustSet("predicted_approval", []float64{0.3, 0.31, 0.32})
	f.MustSet("predicted_disapproval", []float64{0.6, math.NaN(), 0.58})
	require.NoError(t, artifact.WriteFrame(context.Background(), store, artifact.Predictions, f))
}

func TestPredictions(t *testing.T) {
	r, _, store := setup(t)

	w := get(t, r, "/api/predictions")
	assert.Equal(t, http.StatusNotFound, w.Code)

	writePredictions(t, store)
	w = get(t, r, "/api/predictions?from=2025-04-15")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Predictions []map[string]any `json:"predictions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Predictions, 2)
	assert.Equal(t, "2025-04-15", body.Predictions[0]["date"])
	assert.Nil(t, body.Predictions[0]["predicted_disapproval"])
	assert.Equal(t, 0.32, body.Predictions[1]["predicted_approval"])

	w = get(t, r, "/api/predictions?to=yesterday")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLatestFeatures(t *testing.T) {
	r, _, store := setup(t)
	f := frame.New([]time.Time{time.Date(2025, 4, 14, 0, 0, 0, 0, time.UTC), time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)})
	f.MustSet("sentiment_net", []float64{0.1, -0.2})
	require.NoError(t, artifact.WriteFrame(context.Background(), store, artifact.Features, f))

	w := get(t, r, "/api/features/latest")
	require.Equal(t, http.StatusOK, w.Code)
	var row map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &row))
	assert.Equal(t, "2025-04-15", row["date"])
	assert.Equal(t, -0.2, row["sentiment_net"])
}

func TestStatusAndRuns(t *testing.T) {
	r, d, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, d.StartRun(ctx, "run-1", time.Now()))

	w := get(t, r, "/api/status")
	require.Equal(t, http.StatusOK, w.Code)
	var stats db.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Zero(t, stats.Raw)

	w = get(t, r, "/api/runs?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "run-1")

	w = get(t, r, "/api/runs?limit=0")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsAndHealth(t *testing.T) {
	r, _, _ := setup(t)
	assert.Equal(t, "ok", get(t, r, "/healthcheck").Body.String())

	w := get(t, r, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
