package guardrail

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/tbourn/dmbo/internal/coordinator"
	"github.com/tbourn/dmbo/internal/metrics"
)

func newTestReporter(t *testing.T) (*Reporter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &Reporter{
		Coordinator:         coordinator.NewWithClient(client),
		Metrics:             metrics.New(),
		InvalidThreshold:    3,
		GuardrailCooldownMS: 1000,
	}, mr
}

func TestApply_401_CountsTowardLimitAndIncrementsInvalidMetric(t *testing.T) {
	r, mr := newTestReporter(t)
	ok := r.Apply(context.Background(), Report{RequestID: "1", GroupID: "g1", StatusCode: 401})
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if v, _ := mr.Get("rl:invalid:g1"); v != "1" {
		t.Fatalf("expected invalid counter=1, got %q", v)
	}
	if got := testutil.ToFloat64(r.Metrics.InvalidRequests.WithLabelValues("401")); got != 1 {
		t.Fatalf("expected invalid_401=1, got %v", got)
	}
}

func TestApply_429SharedScope_ExcludedFromInvalidAccounting(t *testing.T) {
	r, _ := newTestReporter(t)
	r.Apply(context.Background(), Report{RequestID: "1", GroupID: "g1", StatusCode: 429, Scope: "shared"})

	if got := testutil.ToFloat64(r.Metrics.InvalidRequests.WithLabelValues("429")); got != 0 {
		t.Fatalf("shared 429 must not count toward invalid_429, got %v", got)
	}
	if got := testutil.ToFloat64(r.Metrics.Observed429.WithLabelValues("shared")); got != 1 {
		t.Fatalf("expected observed 429 scope=shared=1, got %v", got)
	}
}

func TestApply_429UserScope_CountsTowardInvalidAndGuardrail(t *testing.T) {
	r, mr := newTestReporter(t)
	for i := 0; i < 3; i++ {
		r.Apply(context.Background(), Report{RequestID: string(rune('a' + i)), GroupID: "g1", StatusCode: 429, Scope: "user"})
	}
	if got := testutil.ToFloat64(r.Metrics.InvalidRequests.WithLabelValues("429")); got != 3 {
		t.Fatalf("expected invalid_429=3, got %v", got)
	}
	if !mr.Exists("rl:guard:g1") {
		t.Fatalf("expected guardrail armed at threshold")
	}
}

func TestApply_UnknownScope_MapsToUnknownBucket(t *testing.T) {
	r, _ := newTestReporter(t)
	r.Apply(context.Background(), Report{RequestID: "1", GroupID: "g1", StatusCode: 429, Scope: "bogus"})
	if got := testutil.ToFloat64(r.Metrics.Observed429.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("expected unknown scope bucket=1, got %v", got)
	}
}

func TestApply_200Status_DoesNotCountTowardInvalid(t *testing.T) {
	r, mr := newTestReporter(t)
	r.Apply(context.Background(), Report{RequestID: "1", GroupID: "g1", StatusCode: 200})
	if mr.Exists("rl:invalid:g1") {
		t.Fatalf("2xx report must not touch the invalid counter")
	}
}

func TestApply_CoordinatorDown_ReturnsFalseWithoutPanicking(t *testing.T) {
	r, mr := newTestReporter(t)
	mr.Close()

	ok := r.Apply(context.Background(), Report{RequestID: "1", GroupID: "g1", StatusCode: 401})
	if ok {
		t.Fatalf("expected ok=false once coordinator is unreachable")
	}
	if got := testutil.ToFloat64(r.Metrics.RedisErrors); got != 1 {
		t.Fatalf("expected redis_errors_total=1, got %v", got)
	}
}

func TestNormalizeScope(t *testing.T) {
	cases := map[string]string{
		"global": "global",
		"user":   "user",
		"shared": "shared",
		"":       "unknown",
		"weird":  "unknown",
	}
	for in, want := range cases {
		if got := normalizeScope(in); got != want {
			t.Fatalf("normalizeScope(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCountsTowardLimit(t *testing.T) {
	cases := []struct {
		status int
		scope  string
		want   bool
	}{
		{401, "", true},
		{403, "", true},
		{429, "shared", false},
		{429, "user", true},
		{429, "global", true},
		{429, "unknown", true},
		{200, "", false},
		{500, "", false},
	}
	for _, c := range cases {
		if got := countsTowardLimit(c.status, c.scope); got != c.want {
			t.Fatalf("countsTowardLimit(%d, %q) = %v, want %v", c.status, c.scope, got, c.want)
		}
	}
}
