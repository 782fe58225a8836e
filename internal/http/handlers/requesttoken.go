// Package handlers implements the orchestrator's four HTTP endpoints
// (spec §6). Handlers are transport-thin: they decode the request, delegate
// to the decision kernel / wait loop / result reporter, and translate the
// outcome into the exact JSON envelope the contract names.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/dmbo/internal/coordinator"
	"github.com/tbourn/dmbo/internal/guardrail"
	"github.com/tbourn/dmbo/internal/ratelimit"
)

// defaultGroupID is substituted whenever a caller omits group_id (spec §6).
const defaultGroupID = "homelab-ip"

// Handlers groups the orchestrator's HTTP endpoints and the components they
// delegate to.
type Handlers struct {
	Loop        *ratelimit.Loop
	Reporter    *guardrail.Reporter
	Coordinator *coordinator.Coordinator

	RedisRequiredForHealth bool
}

// requestTokenBody is the decoded /request_token payload (spec §6).
type requestTokenBody struct {
	ClientID        string `json:"client_id"`
	GroupID         string `json:"group_id"`
	DiscordIdentity string `json:"discord_identity" binding:"required"`
	Method          string `json:"method" binding:"required"`
	Route           string `json:"route" binding:"required"`
	MajorParameter  string `json:"major_parameter"`
	Priority        string `json:"priority"`
	MaxWaitMS       int64  `json:"max_wait_ms"`
	RequestID       string `json:"request_id" binding:"required"`
}

// requestTokenResponse is the /request_token response envelope (spec §6).
type requestTokenResponse struct {
	Granted         bool   `json:"granted"`
	NotBeforeUnixMS int64  `json:"not_before_unix_ms"`
	LeaseID         string `json:"lease_id,omitempty"`
	RetryAfterMS    *int64 `json:"retry_after_ms,omitempty"`
	Reason          string `json:"reason"`
}

// RequestToken handles POST /request_token: it runs the wait-and-retry loop
// (C3) to completion and reports the resolved decision.
func (h *Handlers) RequestToken(c *gin.Context) {
	var body requestTokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "bad_request", "malformed request_token body")
		return
	}
	if body.GroupID == "" {
		body.GroupID = defaultGroupID
	}
	if body.Priority == "" {
		body.Priority = "normal"
	}

	res := h.Loop.Run(c.Request.Context(), ratelimit.PermitRequest{
		DiscordIdentity: body.DiscordIdentity,
		Method:          body.Method,
		Route:           body.Route,
		MajorParameter:  body.MajorParameter,
		GroupID:         body.GroupID,
		RequestID:       body.RequestID,
		MaxWaitMS:       body.MaxWaitMS,
	})

	resp := requestTokenResponse{
		Granted:         res.Decision.Granted,
		NotBeforeUnixMS: res.NotBeforeUnixMS,
		Reason:          res.Decision.Reason,
	}
	if res.Decision.Granted {
		resp.LeaseID = res.LeaseID
	} else {
		retry := res.Decision.RetryAfterMS
		resp.RetryAfterMS = &retry
	}
	c.JSON(http.StatusOK, resp)
}

// reportResultBody is the decoded /report_result payload (spec §6).
type reportResultBody struct {
	RequestID       string `json:"request_id" binding:"required"`
	LeaseID         string `json:"lease_id"`
	DiscordIdentity string `json:"discord_identity" binding:"required"`
	GroupID         string `json:"group_id"`
	Method          string `json:"method" binding:"required"`
	Route           string `json:"route" binding:"required"`
	MajorParameter  string `json:"major_parameter"`
	StatusCode      int    `json:"status_code" binding:"required"`
	Scope           string `json:"x_ratelimit_scope"`
}

// ReportResult handles POST /report_result: it feeds the result reporter
// (C4) and always answers 200, even when a coordinator step fails (spec
// §4.3: "do not fail the HTTP call").
func (h *Handlers) ReportResult(c *gin.Context) {
	var body reportResultBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "bad_request", "malformed report_result body")
		return
	}
	if body.GroupID == "" {
		body.GroupID = defaultGroupID
	}

	ok := h.Reporter.Apply(c.Request.Context(), guardrail.Report{
		RequestID:       body.RequestID,
		LeaseID:         body.LeaseID,
		DiscordIdentity: body.DiscordIdentity,
		GroupID:         body.GroupID,
		Method:          body.Method,
		Route:           body.Route,
		MajorParameter:  body.MajorParameter,
		StatusCode:      body.StatusCode,
		Scope:           body.Scope,
	})
	c.JSON(http.StatusOK, gin.H{"ok": ok})
}
