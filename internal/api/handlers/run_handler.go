// internal/api/handlers/run_handler.go
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/manifest-ingest/internal/pipeline"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

type RunStore interface {
	GetRun(ctx context.Context, runID string) (*pipeline.ManifestRun, error)
	ListRuns(ctx context.Context, statuses []pipeline.RunStatus, limit int) ([]pipeline.ManifestRun, error)
	ListEntries(ctx context.Context, runID int64) ([]pipeline.EntryJob, error)
}

type RunHandler struct {
	runs RunStore
}

func NewRunHandler(runs RunStore) *RunHandler {
	return &RunHandler{runs: runs}
}

var allStatuses = []pipeline.RunStatus{
	pipeline.StatusPending,
	pipeline.StatusProcessing,
	pipeline.StatusCompleted,
	pipeline.StatusFailed,
}

// ListRuns returns recent runs, optionally filtered by ?status=a,b
func (h *RunHandler) ListRuns(c *gin.Context) {
	statuses, ok := parseStatuses(c.Query("status"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}

	limit := defaultRunLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(parsed, maxRunLimit)
	}

	runs, err := h.runs.ListRuns(c.Request.Context(), statuses, limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	if runs == nil {
		runs = []pipeline.ManifestRun{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GetRun returns a run and its entries
func (h *RunHandler) GetRun(c *gin.Context) {
	runID := c.Param("id")
	run, err := h.runs.GetRun(c.Request.Context(), runID)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("failed to get run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get run"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	entries, err := h.runs.ListEntries(c.Request.Context(), run.ID)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("failed to list run entries")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list run entries"})
		return
	}
	if entries == nil {
		entries = []pipeline.EntryJob{}
	}
	c.JSON(http.StatusOK, gin.H{"run": run, "entries": entries})
}

func parseStatuses(raw string) ([]pipeline.RunStatus, bool) {
	if strings.TrimSpace(raw) == "" {
		return allStatuses, true
	}
	var statuses []pipeline.RunStatus
	for _, part := range strings.Split(raw, ",") {
		status := pipeline.RunStatus(strings.TrimSpace(part))
		switch status {
		case pipeline.StatusPending, pipeline.StatusProcessing, pipeline.StatusCompleted, pipeline.StatusFailed:
			statuses = append(statuses, status)
		default:
			return nil, false
		}
	}
	return statuses, true
}
