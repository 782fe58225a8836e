package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersDistinctInstances(t *testing.T) {
	a := New()
	b := New()

	a.RecordGrant()
	if got := testutil.ToFloat64(a.TokensGranted); got != 1 {
		t.Fatalf("a.TokensGranted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(b.TokensGranted); got != 0 {
		t.Fatalf("b.TokensGranted = %v, want 0 (independent registries)", got)
	}
}

func TestRecordGrant_DeniedAndError_UpdateInvariants(t *testing.T) {
	m := New()

	m.RecordGrant()
	m.RecordDenied()
	m.RecordError()

	granted := testutil.ToFloat64(m.TokensGranted)
	denied := testutil.ToFloat64(m.TokensDenied)
	if granted != 1 {
		t.Fatalf("TokensGranted = %v, want 1", granted)
	}
	// RecordDenied + RecordError both increment TokensDenied.
	if denied != 2 {
		t.Fatalf("TokensDenied = %v, want 2", denied)
	}
	if got := testutil.ToFloat64(m.RedisErrors); got != 1 {
		t.Fatalf("RedisErrors = %v, want 1", got)
	}

	outcomeGranted := testutil.ToFloat64(m.RequestTokenTotal.WithLabelValues("granted"))
	outcomeDenied := testutil.ToFloat64(m.RequestTokenTotal.WithLabelValues("denied"))
	outcomeError := testutil.ToFloat64(m.RequestTokenTotal.WithLabelValues("error"))
	if outcomeGranted != 1 || outcomeDenied != 1 || outcomeError != 1 {
		t.Fatalf("outcome totals unexpected: granted=%v denied=%v error=%v", outcomeGranted, outcomeDenied, outcomeError)
	}

	// tokens_granted_total + tokens_denied_total == sum of outcome totals.
	if granted+denied != outcomeGranted+outcomeDenied+outcomeError {
		t.Fatalf("invariant violated: granted+denied=%v outcomes_sum=%v", granted+denied, outcomeGranted+outcomeDenied+outcomeError)
	}
}

func TestObserveRedisLatency_AliasesMatch(t *testing.T) {
	m := New()
	m.ObserveRedisLatency(12.5)
	m.ObserveRedisLatency(7.5)

	latSum := summarySum(t, m, "redis_latency_ms")
	rtSum := summarySum(t, m, "redis_roundtrip_ms")
	if latSum != rtSum {
		t.Fatalf("redis_latency_ms (%v) and redis_roundtrip_ms (%v) must stay aliased", latSum, rtSum)
	}
	if latSum != 20 {
		t.Fatalf("expected summed observations of 20, got %v", latSum)
	}
}

// summarySum returns the _sum of the named summary family. testutil.ToFloat64
// only reads gauges, counters and untyped metrics, so summaries are read
// through the gatherer.
func summarySum(t *testing.T, m *Registry, name string) float64 {
	t.Helper()
	families, err := m.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0].GetSummary().GetSampleSum()
		}
	}
	t.Fatalf("summary %s not gathered", name)
	return 0
}

func TestGatherer_ExposesRegisteredMetrics(t *testing.T) {
	m := New()
	m.RecordGrant()

	families, err := m.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "tokens_granted_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected tokens_granted_total to be exposed")
	}
}
