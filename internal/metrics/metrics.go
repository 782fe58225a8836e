// Package metrics defines the process-wide Prometheus registry for the
// orchestrator. Unlike the teacher's HTTP instrumentation (a package-level
// registry wired via init() against prometheus.DefaultRegisterer), every
// metric here is held on a constructor-built Registry so that multiple
// orchestrator instances — one per test case — never collide on the default
// global registerer.
//
// Metric names and label sets are a public contract (spec §6): they must not
// drift without a corresponding change to every operator dashboard that reads
// them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every counter, gauge, and summary the orchestrator exposes.
// All fields are safe for concurrent use; Prometheus client types use
// lock-free atomics internally.
type Registry struct {
	reg *prometheus.Registry

	// RequestTokenTotal counts resolved /request_token calls by outcome
	// (granted, denied, error).
	RequestTokenTotal *prometheus.CounterVec

	// TokensGranted and TokensDenied are the flat (label-free) counters
	// whose sum must equal every resolved permit request (spec §4.4).
	TokensGranted prometheus.Counter
	TokensDenied  prometheus.Counter

	// QueueDepth gauges the number of handlers currently in a cooperative
	// sleep inside the wait-and-retry loop (C3). Observational only — it is
	// not a scheduling queue.
	QueueDepth prometheus.Gauge

	// Inflight gauges the number of handler invocations currently in
	// flight, incremented/decremented via defer around every handler.
	Inflight prometheus.Gauge

	// Observed429 counts upstream 429 responses reported via
	// /report_result, partitioned by x_ratelimit_scope.
	Observed429 *prometheus.CounterVec

	// InvalidRequests counts reports that count toward the guardrail's
	// invalid-request accounting, partitioned by status code.
	InvalidRequests *prometheus.CounterVec

	// RedisErrors counts every coordinator failure observed by either the
	// decision kernel or the result reporter.
	RedisErrors prometheus.Counter

	// RequestTokenWaitMs is a sum+count-only summary (no quantile
	// objectives) of the time spent inside the wait-and-retry loop per
	// resolved /request_token call.
	RequestTokenWaitMs prometheus.Summary

	// RedisLatencyMs and RedisRoundtripMs are deliberate aliases: the
	// reference system exports the same round-trip measurement under two
	// metric names (spec §9), so both are observed with the same value on
	// every coordinator call.
	RedisLatencyMs   prometheus.Summary
	RedisRoundtripMs prometheus.Summary
}

// summaryOpts returns SummaryOpts with no quantile objectives, which turns a
// prometheus.Summary into a plain _sum/_count exporter — exactly what spec
// §4.4 asks for ("no quantiles").
func summaryOpts(name, help string) prometheus.SummaryOpts {
	return prometheus.SummaryOpts{
		Name: name,
		Help: help,
	}
}

// New builds a Registry backed by a fresh, private prometheus.Registry and
// registers every metric on it. Callers build the exposition handler from
// Gatherer().
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		reg: reg,

		RequestTokenTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_request_token_total",
			Help: "Resolved /request_token calls by outcome.",
		}, []string{"outcome"}),

		TokensGranted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokens_granted_total",
			Help: "Total permits granted.",
		}),
		TokensDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokens_denied_total",
			Help: "Total permits denied (including coordinator errors).",
		}),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orchestrator_queue_depth",
			Help: "Handlers currently cooperatively sleeping in the wait-and-retry loop.",
		}),
		Inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inflight_requests",
			Help: "Handler invocations currently in flight.",
		}),

		Observed429: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_429_observed_total",
			Help: "Upstream 429 responses observed via /report_result, by scope.",
		}, []string{"scope"}),

		InvalidRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_invalid_requests_total",
			Help: "Reports that count toward the guardrail's invalid-request threshold, by status.",
		}, []string{"status"}),

		RedisErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redis_errors_total",
			Help: "Coordinator failures observed by the decision kernel or the result reporter.",
		}),

		RequestTokenWaitMs: prometheus.NewSummary(summaryOpts(
			"orchestrator_request_token_wait_ms",
			"Time spent inside the wait-and-retry loop per resolved /request_token call.",
		)),
		RedisLatencyMs: prometheus.NewSummary(summaryOpts(
			"redis_latency_ms",
			"Coordinator round-trip latency.",
		)),
		RedisRoundtripMs: prometheus.NewSummary(summaryOpts(
			"redis_roundtrip_ms",
			"Alias of redis_latency_ms, preserved for compatibility (spec §9).",
		)),
	}

	reg.MustRegister(
		m.RequestTokenTotal,
		m.TokensGranted,
		m.TokensDenied,
		m.QueueDepth,
		m.Inflight,
		m.Observed429,
		m.InvalidRequests,
		m.RedisErrors,
		m.RequestTokenWaitMs,
		m.RedisLatencyMs,
		m.RedisRoundtripMs,
	)

	return m
}

// Gatherer exposes the underlying prometheus.Gatherer for the /metrics
// handler without leaking the concrete *prometheus.Registry type.
func (m *Registry) Gatherer() prometheus.Gatherer { return m.reg }

// ObserveRedisLatency records a single coordinator round-trip under both
// redis_latency_ms and redis_roundtrip_ms, preserving the intentional alias
// noted in spec §9.
func (m *Registry) ObserveRedisLatency(ms float64) {
	m.RedisLatencyMs.Observe(ms)
	m.RedisRoundtripMs.Observe(ms)
}

// RecordGrant increments the flat and outcome-labeled grant counters.
func (m *Registry) RecordGrant() {
	m.TokensGranted.Inc()
	m.RequestTokenTotal.WithLabelValues("granted").Inc()
}

// RecordDenied increments the flat and outcome-labeled denial counters for a
// routine (non-errored) denial.
func (m *Registry) RecordDenied() {
	m.TokensDenied.Inc()
	m.RequestTokenTotal.WithLabelValues("denied").Inc()
}

// RecordError increments the flat denial counter (errored denials count
// toward tokens_denied_total per spec §7) plus the "error" outcome and the
// coordinator-error counter.
func (m *Registry) RecordError() {
	m.TokensDenied.Inc()
	m.RequestTokenTotal.WithLabelValues("error").Inc()
	m.RedisErrors.Inc()
}
