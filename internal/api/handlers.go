package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PolloDK/FK01-Encuestas/internal/artifact"
	"github.com/PolloDK/FK01-Encuestas/internal/db"
	"github.com/PolloDK/FK01-Encuestas/internal/frame"
)

// Store is the read-only record-store access the API needs.
type Store interface {
	Stats(ctx context.Context) (*db.Stats, error)
	RecentRuns(ctx context.Context, limit int) ([]db.Run, error)
}

type Handler struct {
	store     Store
	artifacts artifact.Store
}

func NewHandler(store Store, artifacts artifact.Store) *Handler {
	return &Handler{store: store, artifacts: artifacts}
}

func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Predictions returns prediction rows, optionally bounded by from/to dates.
func (h *Handler) Predictions(c *gin.Context) {
	from, err := dateParam(c, "from")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	to, err := dateParam(c, "to")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	f, ok := h.readFrame(c, artifact.Predictions)
	if !ok {
		return
	}
	var rows []int
	for i := 0; i < f.Len(); i++ {
		d := f.Date(i)
		if (!from.IsZero() && d.Before(from)) || (!to.IsZero() && d.After(to)) {
			continue
		}
		rows = append(rows, i)
	}
	RespondOK(c, gin.H{"predictions": frameRows(f, rows)})
}

// LatestFeatures returns the newest feature row.
func (h *Handler) LatestFeatures(c *gin.Context) {
	f, ok := h.readFrame(c, artifact.Features)
	if !ok {
		return
	}
	if f.Len() == 0 {
		RespondError(c, http.StatusNotFound, "not_found", errors.New("feature table is empty"))
		return
	}
	RespondOK(c, frameRows(f, []int{f.Len() - 1})[0])
}

func (h *Handler) Status(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "store_error", err)
		return
	}
	RespondOK(c, stats)
}

func (h *Handler) Runs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 500 {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("limit must be between 1 and 500"))
		return
	}
	runs, err := h.store.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "store_error", err)
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	RespondOK(c, gin.H{"runs": runs})
}

func (h *Handler) readFrame(c *gin.Context, name string) (*frame.Frame, bool) {
	f, err := artifact.ReadFrame(c.Request.Context(), h.artifacts, name)
	if errors.Is(err, artifact.ErrNotFound) {
		RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("%s has not been produced yet", name))
		return nil, false
	}
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "artifact_error", err)
		return nil, false
	}
	return f, true
}

func dateParam(c *gin.Context, key string) (time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(frame.DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD", key)
	}
	return t, nil
}
