package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Waryjustice/azure-incident-resolver/internal/comms"
	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
	"github.com/Waryjustice/azure-incident-resolver/internal/orchestrator"
)

// Pipeline accepts detected incidents for processing. Both the direct
// orchestrator and the queue-backed pipeline satisfy it.
type Pipeline interface {
	Submit(ctx context.Context, incident *domain.Incident) error
}

// PostMortemReader loads generated post-mortem documents. Nil disables
// the post-mortem endpoint.
type PostMortemReader interface {
	GetPostMortem(ctx context.Context, incidentID string) (*comms.PostMortem, error)
}

// IncidentHandler handles incident pipeline endpoints
type IncidentHandler struct {
	pipeline  Pipeline
	tracker   *orchestrator.Orchestrator
	knowledge PostMortemReader
}

// NewIncidentHandler creates a new IncidentHandler
func NewIncidentHandler(pipeline Pipeline, tracker *orchestrator.Orchestrator, knowledge PostMortemReader) *IncidentHandler {
	return &IncidentHandler{
		pipeline:  pipeline,
		tracker:   tracker,
		knowledge: knowledge,
	}
}

// submitRequest is the external trigger payload for a detected incident
type submitRequest struct {
	Resource  domain.Resource  `json:"resource" binding:"required"`
	Anomalies []domain.Anomaly `json:"anomalies" binding:"required"`
}

// SubmitIncident accepts an externally detected incident and starts the
// pipeline. Processing is asynchronous; the response carries the
// assigned incident ID for later polling.
func (h *IncidentHandler) SubmitIncident(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	incident := domain.NewIncident(req.Resource, req.Anomalies)
	// snapshot before Submit hands the incident to the pipeline goroutine
	id, severity, phase := incident.ID, incident.Severity, incident.Phase
	if err := h.pipeline.Submit(c.Request.Context(), incident); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"incident_id": id,
		"severity":    severity,
		"phase":       phase,
	})
}

// ListActive returns the incidents currently moving through the pipeline
func (h *IncidentHandler) ListActive(c *gin.Context) {
	c.JSON(http.StatusOK, h.tracker.Active())
}

// ListHistory returns terminal incidents, oldest first. The optional
// limit query parameter bounds the result.
func (h *IncidentHandler) ListHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}
	c.JSON(http.StatusOK, h.tracker.History(limit))
}

// GetIncident returns a single incident by ID, active or historical
func (h *IncidentHandler) GetIncident(c *gin.Context) {
	incident, err := h.tracker.Get(c.Param("incident_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Incident not found"})
		return
	}
	c.JSON(http.StatusOK, incident)
}

// GetPostMortem returns the generated post-mortem for an incident
func (h *IncidentHandler) GetPostMortem(c *gin.Context) {
	if h.knowledge == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Knowledge store not available"})
		return
	}
	pm, err := h.knowledge.GetPostMortem(c.Request.Context(), c.Param("incident_id"))
	if err != nil {
		if errors.Is(err, domain.ErrIncidentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Post-mortem not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, pm)
}

// GetStats returns pipeline throughput counters
func (h *IncidentHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.tracker.Stats())
}
