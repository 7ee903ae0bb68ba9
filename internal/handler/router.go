package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Waryjustice/azure-incident-resolver/internal/observability"
)

// SetupRouter configures all API routes
func SetupRouter(
	incidents *IncidentHandler,
	metrics *observability.Metrics,
	corsOrigin string,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware(corsOrigin))
	r.Use(PrometheusMiddleware(metrics))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Incident endpoints
	api := r.Group("/api")
	{
		api.POST("/incidents", incidents.SubmitIncident)
		api.GET("/incidents", incidents.ListActive)
		api.GET("/incidents/active", incidents.ListActive)
		api.GET("/incidents/history", incidents.ListHistory)
		api.GET("/incidents/:incident_id", incidents.GetIncident)
		api.GET("/incidents/:incident_id/postmortem", incidents.GetPostMortem)
		api.GET("/stats", incidents.GetStats)
	}

	return r
}
