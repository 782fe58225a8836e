// Package guardrail implements the result reporter (C4): it consumes one
// upstream-call outcome per permit, feeds the invalid-request accounting and
// the 429-observation metrics, and arms the guardrail gate the decision
// kernel reads (spec §4.3).
package guardrail

import (
	"context"

	"github.com/tbourn/dmbo/internal/coordinator"
	"github.com/tbourn/dmbo/internal/metrics"
)

// Report is the transient input to Reporter.Apply (spec §6 /report_result).
type Report struct {
	RequestID       string
	LeaseID         string
	DiscordIdentity string
	GroupID         string
	Method          string
	Route           string
	MajorParameter  string
	StatusCode      int
	Scope           string // x_ratelimit_scope, optional
}

// Reporter wraps the coordinator's invalid-counter/guardrail script with the
// per-status and per-scope metrics accounting spec §4.3 requires.
type Reporter struct {
	Coordinator *coordinator.Coordinator
	Metrics     *metrics.Registry

	InvalidThreshold    int
	GuardrailCooldownMS int64
}

// knownScopes is the enumerated label set for orchestrator_429_observed_total
// (spec §6); anything else collapses to "unknown".
var knownScopes = map[string]bool{
	"global": true,
	"user":   true,
	"shared": true,
}

func normalizeScope(scope string) string {
	if knownScopes[scope] {
		return scope
	}
	return "unknown"
}

// countsTowardLimit implements the membership test in spec §4.3 step 4:
// 401 or 403 unconditionally, or 429 with a non-"shared" scope. Shared 429s
// are the upstream asking the fleet to back off, not a credential-misuse
// signal, so they are deliberately excluded.
func countsTowardLimit(status int, scope string) bool {
	switch status {
	case 401, 403:
		return true
	case 429:
		return scope != "shared"
	default:
		return false
	}
}

// Apply runs the full result-reporter algorithm and returns whether every
// coordinator step succeeded. A false return still yields HTTP 200
// {"ok": false} at the handler layer (spec §4.3: "do not fail the HTTP
// call").
func (r *Reporter) Apply(ctx context.Context, rep Report) bool {
	scope := normalizeScope(rep.Scope)

	if rep.StatusCode == 429 {
		r.Metrics.Observed429.WithLabelValues(scope).Inc()
	}

	switch {
	case rep.StatusCode == 401:
		r.Metrics.InvalidRequests.WithLabelValues("401").Inc()
	case rep.StatusCode == 403:
		r.Metrics.InvalidRequests.WithLabelValues("403").Inc()
	case rep.StatusCode == 429 && scope != "shared":
		r.Metrics.InvalidRequests.WithLabelValues("429").Inc()
	}

	_, err := r.Coordinator.ApplyReport(ctx, coordinator.ReportParams{
		Status:              rep.StatusCode,
		RequestID:           rep.RequestID,
		Group:               rep.GroupID,
		CountsTowardLimit:   countsTowardLimit(rep.StatusCode, scope),
		InvalidThreshold:    r.InvalidThreshold,
		GuardrailCooldownMS: r.GuardrailCooldownMS,
	})
	if err != nil {
		r.Metrics.RedisErrors.Inc()
		return false
	}
	return true
}
