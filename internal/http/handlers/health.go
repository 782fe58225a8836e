package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tbourn/dmbo/internal/metrics"
)

// Healthz handles GET /healthz (spec §6): 200 when the coordinator answers
// PING, or when redis_required_for_health is false; 503 otherwise.
func (h *Handlers) Healthz(c *gin.Context) {
	redisUp := h.Coordinator.Ping(c.Request.Context()) == nil

	status := http.StatusOK
	if !redisUp && h.RedisRequiredForHealth {
		status = http.StatusServiceUnavailable
	}

	redisState := "down"
	if redisUp {
		redisState = "up"
	}

	c.JSON(status, gin.H{
		"ok":    status == http.StatusOK,
		"redis": redisState,
	})
}

// MetricsHandler returns a Gin handler serving the registry's Prometheus
// exposition (spec §6: text/plain; version=0.0.4).
func MetricsHandler(reg *metrics.Registry) gin.HandlerFunc {
	h := promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
