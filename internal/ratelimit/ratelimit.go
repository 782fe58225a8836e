// Package ratelimit implements the permit decision kernel (C2) and the
// wait-and-retry loop (C3) described in spec §4.1-4.2. The kernel wraps a
// single atomic coordinator round-trip; the loop turns an instantaneous
// denial into a bounded cooperative wait, re-invoking the kernel until grant
// or deadline.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/tbourn/dmbo/internal/coordinator"
	"github.com/tbourn/dmbo/internal/metrics"
)

// PermitRequest is the transient, request-scoped input to a permit decision
// (spec §3).
type PermitRequest struct {
	DiscordIdentity string
	Method          string
	Route           string
	MajorParameter  string
	GroupID         string
	RequestID       string
	MaxWaitMS       int64
}

// PermitDecision is the transient output of a permit decision (spec §3).
type PermitDecision struct {
	Granted      bool
	RetryAfterMS int64
	Reason       string
	Errored      bool
}

// Reason tags, emitted verbatim (spec §6).
const (
	ReasonOK                    = "ok"
	ReasonGuardrailActive       = "invalid_guardrail_active"
	ReasonGlobalBucketExhausted = "global_bucket_exhausted"
	ReasonRouteBucketExhausted  = "route_bucket_exhausted"
	ReasonRedisUnavailable      = "redis_unavailable"
	ReasonRedisError            = "redis_error"
)

// Kernel is the permit decision kernel (C2): given a permit request and the
// current wall clock, it returns a decision backed by one atomic coordinator
// script invocation.
type Kernel struct {
	Coordinator *coordinator.Coordinator
	Metrics     *metrics.Registry

	GlobalRPS  int
	RouteRPS   int
	MinRetryMS int
}

// Decide performs the atomic guardrail -> global -> route evaluation. All
// four checks happen inside a single coordinator round-trip (spec §4.1);
// Go-side code never reimplements that sequence as separate commands.
func (k *Kernel) Decide(ctx context.Context, req PermitRequest) PermitDecision {
	start := time.Now()
	outcome, err := k.Coordinator.DecidePermit(ctx, req.DiscordIdentity, req.Method, req.Route, req.MajorParameter, req.GroupID, start,
		coordinator.PermitParams{
			GlobalLimit: k.GlobalRPS,
			RouteLimit:  k.RouteRPS,
			MinRetryMS:  k.MinRetryMS,
		})
	k.Metrics.ObserveRedisLatency(float64(time.Since(start).Milliseconds()))

	if err != nil {
		reason := ReasonRedisError
		if ctx.Err() != nil {
			reason = ReasonRedisUnavailable
		} else if isConnError(err) {
			reason = ReasonRedisUnavailable
		}
		return PermitDecision{
			Granted:      false,
			Errored:      true,
			RetryAfterMS: int64(k.MinRetryMS),
			Reason:       reason,
		}
	}

	return PermitDecision{
		Granted:      outcome.Granted,
		RetryAfterMS: outcome.RetryAfterMS,
		Reason:       outcome.Reason,
	}
}

// isConnError is a best-effort heuristic distinguishing "coordinator
// unreachable" from "coordinator returned a script error" for the reason
// tag; both are coordinator failures and both increment the same counters,
// the distinction is diagnostic only (spec §4.1).
func isConnError(err error) bool {
	_, isServerErr := err.(interface{ RedisError() string })
	return !isServerErr
}

// WaitResult is the outcome of a full /request_token handler invocation,
// including the absolute/relative timing hints the HTTP layer returns.
type WaitResult struct {
	Decision        PermitDecision
	WaitedMS        int64
	NotBeforeUnixMS int64
	LeaseID         string
}

// sleeper abstracts the cooperative sleep point so tests can inject a fast
// clock without real time passing.
type sleeper func(ctx context.Context, d time.Duration)

func defaultSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Loop is the wait-and-retry loop (C3). max_wait_ms bounds total time spent
// inside the handler, not any single attempt (spec §4.2).
type Loop struct {
	Kernel     *Kernel
	Metrics    *metrics.Registry
	MinRetryMS int64

	sleep sleeper // nil -> defaultSleep
}

func (l *Loop) sleepFn() sleeper {
	if l.sleep != nil {
		return l.sleep
	}
	return defaultSleep
}

// nowMS is overridable in tests; production code always uses time.Now.
var nowMS = func() int64 { return time.Now().UnixMilli() }

// Run executes the wait-and-retry loop for one /request_token call.
func (l *Loop) Run(ctx context.Context, req PermitRequest) WaitResult {
	started := nowMS()
	deadline := started + req.MaxWaitMS
	var waited int64

	for {
		decision := l.Kernel.Decide(ctx, req)
		if decision.Granted {
			now := nowMS()
			l.Metrics.RecordGrant()
			l.Metrics.RequestTokenWaitMs.Observe(float64(waited))
			return WaitResult{
				Decision:        decision,
				WaitedMS:        waited,
				NotBeforeUnixMS: now,
				LeaseID:         fmt.Sprintf("lease-%s-%d", req.RequestID, now),
			}
		}

		retry := decision.RetryAfterMS
		if retry < l.MinRetryMS {
			retry = l.MinRetryMS
		}

		now := nowMS()
		canWait := req.MaxWaitMS > 0 &&
			now < deadline &&
			now+retry <= deadline &&
			waited+retry <= req.MaxWaitMS

		if canWait && ctx.Err() == nil {
			if decision.Errored {
				// The final attempt is counted by RecordError; count each
				// coordinator failure that is followed by a retry here.
				l.Metrics.RedisErrors.Inc()
			}
			l.Metrics.QueueDepth.Inc()
			l.sleepFn()(ctx, time.Duration(retry)*time.Millisecond)
			l.Metrics.QueueDepth.Dec()
			waited += retry
			continue
		}

		finalNow := nowMS()
		if decision.Errored {
			l.Metrics.RecordError()
		} else {
			l.Metrics.RecordDenied()
		}
		l.Metrics.RequestTokenWaitMs.Observe(float64(waited))
		return WaitResult{
			Decision:        decision,
			WaitedMS:        waited,
			NotBeforeUnixMS: finalNow + retry,
		}
	}
}
