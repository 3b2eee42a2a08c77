package http

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"go.ngs.io/forecast-prep/internal/adapter/ledger"
	"go.ngs.io/forecast-prep/internal/adapter/store/catalog"
	"go.ngs.io/forecast-prep/internal/domain"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500
)

// RunLister returns the most recent stage runs. *ledger.Ledger implements it.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]ledger.Run, error)
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Handler handles the status API.
type Handler struct {
	countsDir string
	runs      RunLister
	ready     ReadinessChecker
}

// NewHandler creates a new HTTP handler. runs and ready may be nil.
func NewHandler(countsDir string, runs RunLister, ready ReadinessChecker) *Handler {
	return &Handler{
		countsDir: countsDir,
		runs:      runs,
		ready:     ready,
	}
}

// FieldInfo describes one forecast field.
type FieldInfo struct {
	Name        string `json:"name"`
	SourceVar   string `json:"source_var"`
	MeanVar     string `json:"mean_var"`
	StdVar      string `json:"std_var"`
	Group       string `json:"group"`
	LongName    string `json:"long_name"`
	Units       string `json:"units"`
	Accumulated bool   `json:"accumulated"`
	Policy      string `json:"normalization"`
	Warning     string `json:"warning,omitempty"`
}

// GetFields handles GET /v1/fields.
func (h *Handler) GetFields(c *gin.Context) {
	response := make([]FieldInfo, len(domain.Fields))
	for i, f := range domain.Fields {
		response[i] = FieldInfo{
			Name:        f.Name,
			SourceVar:   f.SourceVar,
			MeanVar:     f.MeanVar(),
			StdVar:      f.StdVar(),
			Group:       f.Group.String(),
			LongName:    f.LongName,
			Units:       f.Units,
			Accumulated: f.IsAccumulated(),
			Policy:      f.Policy.String(),
			Warning:     f.Warning,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"fields":   response,
		"count":    len(response),
		"channels": domain.ChannelCount(len(response)),
	})
}

// GetAvailableDates handles GET /v1/available-dates.
func (h *Handler) GetAvailableDates(c *gin.Context) {
	dates, err := catalog.Load(h.countsDir)
	if errors.Is(err, fs.ErrNotExist) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no forecast dates have been indexed yet"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dates)
}

// GetRuns handles GET /v1/runs.
func (h *Handler) GetRuns(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run ledger is not configured"})
		return
	}

	// Parse limit (default: 20).
	limit := defaultRunsLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 || n > maxRunsLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("limit must be an integer between 1 and %d", maxRunsLimit)})
			return
		}
		limit = n
	}

	runs, err := h.runs.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// HealthCheck handles GET /healthz.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadyCheck handles GET /readyz.
func (h *Handler) ReadyCheck(c *gin.Context) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready.CheckReadiness(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
