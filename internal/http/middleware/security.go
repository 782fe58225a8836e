// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, a hardening middleware for the
// orchestrator's four HTTP endpoints. The orchestrator has no HTML surface,
// no authenticated sessions, and (per its config) no TLS termination of its
// own — it sits behind a private network, fronted by nothing more than the
// worker fleet and an occasional operator dashboard — so this is trimmed to
// the headers that posture actually calls for: no HSTS (there is no TLS to
// upgrade), no Cache-Control:no-store (nothing here is a session or secret,
// just rate-limit decisions the caller already knows it asked for).
package middleware

import (
	"github.com/gin-gonic/gin"
)

// SecurityHeaders returns a Gin middleware that adds a conservative set of
// response headers.
//
// Always sets:
//
//	X-Content-Type-Options: nosniff
//	X-Frame-Options: DENY
//	Referrer-Policy: no-referrer
//
// When enablePolicy is true, also sets Permissions-Policy and
// X-Permitted-Cross-Domain-Policies, which are harmless no-ops for the
// fleet's non-browser callers and only matter to the operator dashboard
// that may poll /healthz and /metrics from a browser.
//
// If X-Request-ID is present on the response, it is exposed via
// Access-Control-Expose-Headers so the dashboard can read it.
func SecurityHeaders(enablePolicy bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if enablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}

		if rid := h.Get("X-Request-ID"); rid != "" {
			const hdr = "Access-Control-Expose-Headers"
			if cur := h.Get(hdr); cur == "" {
				h.Set(hdr, "X-Request-ID")
			} else {
				h.Set(hdr, cur+", X-Request-ID")
			}
		}

		c.Next()
	}
}
