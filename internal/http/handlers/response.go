package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/dmbo/internal/http/middleware"
)

// ErrorResponse is the envelope for framework-level errors the core
// algorithms never produce themselves — malformed JSON, unknown routes,
// wrong methods. Every endpoint's happy-path and coordinator-resolved
// responses use the domain-specific shapes named in spec §6 instead.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// fail writes a structured error envelope and logs 5xx-class responses
// through the request-scoped logger, mirroring the teacher's handlers.fail.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := c.Writer.Header().Get("X-Request-ID")
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{RequestID: reqID, Code: code, Message: msg})
}

// Fail is the exported variant used by the router's NoRoute/NoMethod
// fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }
