package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/classroom-sync/internal/aggregator"
	"github.com/kurihiro0119/classroom-sync/internal/domain"
	apperrors "github.com/kurihiro0119/classroom-sync/internal/errors"
)

// Handler handles API requests
type Handler struct {
	aggregator aggregator.Aggregator
}

// NewHandler creates a new API handler
func NewHandler(agg aggregator.Aggregator) *Handler {
	return &Handler{
		aggregator: agg,
	}
}

// ListRuns returns recent runs of an organization without their results
// GET /api/v1/orgs/:org/runs
func (h *Handler) ListRuns(c *gin.Context) {
	org := c.Param("org")
	limit := parseIntQuery(c, "limit", 20)

	runs, err := h.aggregator.ListRuns(c.Request.Context(), org, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if runs == nil {
		runs = []*domain.Run{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": runs,
	})
}

// GetLatestRun returns the most recent run of a batch
// GET /api/v1/orgs/:org/runs/latest?prefix=
func (h *Handler) GetLatestRun(c *gin.Context) {
	org := c.Param("org")
	prefix, ok := c.GetQuery("prefix")
	if !ok {
		respondError(c, apperrors.NewBadRequestError("prefix query parameter is required"))
		return
	}

	run, err := h.aggregator.GetLatestRun(c.Request.Context(), org, prefix)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": run,
	})
}

// GetRun returns a run with its records and invalid submissions
// GET /api/v1/runs/:id
func (h *Handler) GetRun(c *gin.Context) {
	run, err := h.aggregator.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": run,
	})
}

// GetRunSubmissions returns the validated records of a run, optionally
// filtered by status
// GET /api/v1/runs/:id/submissions?status=LATE
func (h *Handler) GetRunSubmissions(c *gin.Context) {
	run, err := h.aggregator.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	status := domain.Status(c.Query("status"))
	switch status {
	case "", domain.StatusOnTime, domain.StatusLate:
	default:
		respondError(c, apperrors.NewBadRequestError("status must be one of: ON_TIME, LATE"))
		return
	}

	records := []domain.SubmissionRecord{}
	if run.Result != nil {
		for _, rec := range run.Result.Records {
			if status == "" || rec.Status == status {
				records = append(records, rec)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": records,
	})
}

// GetRunInvalid returns the invalid submissions of a run
// GET /api/v1/runs/:id/invalid
func (h *Handler) GetRunInvalid(c *gin.Context) {
	run, err := h.aggregator.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	invalid := []domain.InvalidSubmission{}
	if run.Result != nil {
		invalid = append(invalid, run.Result.Invalid...)
	}

	c.JSON(http.StatusOK, gin.H{
		"data": invalid,
	})
}

// GetRunStats returns the totals of a run
// GET /api/v1/runs/:id/stats
func (h *Handler) GetRunStats(c *gin.Context) {
	stats, err := h.aggregator.GetRunStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": stats,
	})
}

// CompareRuns returns the repositories whose outcome changed between runs
// GET /api/v1/runs/:id/compare/:base
func (h *Handler) CompareRuns(c *gin.Context) {
	diff, err := h.aggregator.CompareRuns(c.Request.Context(), c.Param("base"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": diff,
	})
}

// HealthCheck returns the health status of the API
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// parseIntQuery parses an integer query parameter with a default value
func parseIntQuery(c *gin.Context, key string, defaultValue int) int {
	valueStr := c.Query(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	code, ok := apperrors.CodeOf(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    apperrors.ErrCodeInternal,
				"message": err.Error(),
			},
		})
		return
	}

	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeUnauthorized:
		status = http.StatusUnauthorized
	case apperrors.ErrCodeBadRequest:
		status = http.StatusBadRequest
	case apperrors.ErrCodeRateLimited:
		status = http.StatusTooManyRequests
	}

	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
