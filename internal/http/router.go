// Package httpapi wires the HTTP transport (Gin) to the orchestrator's
// decision kernel, wait loop, result reporter, and metrics registry. It
// centralizes cross-cutting concerns: correlation IDs, structured logging,
// panic recovery, security headers, and inflight-request accounting.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/dmbo/internal/http/handlers"
	"github.com/tbourn/dmbo/internal/http/middleware"
	"github.com/tbourn/dmbo/internal/metrics"
)

// Inflight returns a Gin middleware that increments the inflight-requests
// gauge on entry and decrements it on every exit path, including panics and
// client cancellation (spec §5: "scoped acquisition of a guard resource
// whose release is guaranteed on all exit paths").
func Inflight(reg *metrics.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		reg.Inflight.Inc()
		defer reg.Inflight.Dec()
		c.Next()
	}
}

// RegisterRoutes attaches middleware and the four HTTP endpoints to the
// given Gin engine.
//
// Middleware order matters:
//  1. RequestID: generate/propagate correlation id
//  2. Logger: structured access logs
//  3. Recovery: capture panics after logger
//  4. CORS: permissive defaults (operator dashboards poll /healthz, /metrics)
//  5. SecurityHeaders: safe response header posture
//  6. gzip: compress responses, chiefly the /metrics Prometheus text body
//  7. Inflight: gauge acquisition/release around every handler
func RegisterRoutes(r *gin.Engine, h *handlers.Handlers, reg *metrics.Registry) {
	r.HandleMethodNotAllowed = true

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:   []string{"X-Request-ID"},
		MaxAge:          12 * time.Hour,
	}))
	r.Use(middleware.SecurityHeaders(true))
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(Inflight(reg))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, "not_found", "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", handlers.MetricsHandler(reg))
	r.POST("/request_token", h.RequestToken)
	r.POST("/report_result", h.ReportResult)
}
