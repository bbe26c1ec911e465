package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSnapshot is the JSON view of service metrics.
type MetricsSnapshot struct {
	Timestamp time.Time      `json:"timestamp"`
	Backend   map[string]any `json:"backend"`
	Sessions  map[string]any `json:"sessions"`
	Breaker   any            `json:"spawn_breaker"`
}

// Prometheus serves the metrics registry in exposition format.
func (h *Handlers) Prometheus() gin.HandlerFunc {
	if h.metrics == nil {
		return func(c *gin.Context) { c.Status(http.StatusNotFound) }
	}
	handler := promhttp.HandlerFor(h.metrics.Registry(), promhttp.HandlerOpts{})
	return gin.WrapH(handler)
}

// MetricsJSON reports a metrics snapshot as JSON.
func (h *Handlers) MetricsJSON(c *gin.Context) {
	snapshot := MetricsSnapshot{
		Timestamp: time.Now(),
		Backend:   map[string]any{},
		Sessions: map[string]any{
			"registered":   h.registry.Len(),
			"alive":        len(h.registry.Active()),
			"with_history": len(h.history.Sessions()),
		},
		Breaker: h.registry.Breaker().Status(),
	}

	if h.metrics != nil {
		s := h.metrics.Snapshot()
		snapshot.Backend = map[string]any{
			"uptime_seconds":        h.metrics.UptimeDuration().Seconds(),
			"total_requests":        s.TotalRequests,
			"total_errors":          s.TotalErrors,
			"avg_request_ms":        float64(h.metrics.AverageRequestDuration().Microseconds()) / 1000,
			"commands_run":          s.CommandsRun,
			"commands_timed_out":    s.CommandsTimedOut,
			"active_ws_connections": s.ActiveConnections,
		}
	}

	c.JSON(http.StatusOK, snapshot)
}
