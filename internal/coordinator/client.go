package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BucketTTLMS is the TTL set on both the global and route buckets on their
// first increment (spec §4.1). The window itself is one Unix second; the
// key outlives it by half a second.
const BucketTTLMS = 1500

// ReportTTLSeconds is the TTL on a report dedup receipt (spec §3).
const ReportTTLSeconds = 300

// InvalidTTLSeconds is the TTL on the group's rolling invalid counter,
// reborn on the next guardrail-eligible event after expiry (spec §3).
const InvalidTTLSeconds = 600

// Coordinator is the orchestrator's handle on the shared Redis instance. All
// permit decisions and report mutations funnel through its two atomic Lua
// scripts so that concurrent callers never observe a bucket mid-update.
type Coordinator struct {
	client *redis.Client
}

// New builds a Coordinator from a redis:// connection string.
func New(redisURL string) (*Coordinator, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("coordinator: parse redis url: %w", err)
	}
	return &Coordinator{client: redis.NewClient(opts)}, nil
}

// NewWithClient wraps an already-constructed *redis.Client. Used by tests to
// point the coordinator at an in-memory miniredis instance.
func NewWithClient(client *redis.Client) *Coordinator {
	return &Coordinator{client: client}
}

// Close releases the underlying connection pool.
func (c *Coordinator) Close() error { return c.client.Close() }

// Ping reports whether the coordinator is reachable.
func (c *Coordinator) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// PermitParams is the set of tunables the decision kernel script needs on
// every invocation. It is immutable for the lifetime of the process (spec
// §5: "the configuration snapshot is immutable after startup").
type PermitParams struct {
	GlobalLimit int
	RouteLimit  int
	MinRetryMS  int
}

// PermitOutcome mirrors the first three fields of the 4-tuple the Lua script
// returns; the fourth (errored) is always 0 from the script.
type PermitOutcome struct {
	Granted      bool
	RetryAfterMS int64
	Reason       string
}

// DecidePermit runs the permit decision kernel (C2) as a single atomic
// script invocation against the guardrail gate and the two buckets named by
// identity/method/route/major/group. now is the caller's wall clock; its
// Unix second selects the bucket window.
func (c *Coordinator) DecidePermit(ctx context.Context, identity, method, route, major, group string, now time.Time, p PermitParams) (PermitOutcome, error) {
	sec := now.Unix()
	guardKey := "rl:guard:" + NormalizeKeyPart(group)
	globalKey := fmt.Sprintf("rl:global:%s:%d", NormalizeKeyPart(identity), sec)
	routeKey := fmt.Sprintf("rl:route:%s:%s:%s:%s:%d",
		NormalizeKeyPart(identity), NormalizeKeyPart(method), NormalizeKeyPart(route), NormalizeKeyPart(major), sec)

	res, err := permitScript.Run(ctx, c.client,
		[]string{guardKey, globalKey, routeKey},
		p.GlobalLimit, p.RouteLimit, BucketTTLMS, p.MinRetryMS,
	).Slice()
	if err != nil {
		return PermitOutcome{}, err
	}
	if len(res) != 4 {
		return PermitOutcome{}, errors.New("coordinator: unexpected permit script result shape")
	}

	granted, ok := res[0].(int64)
	if !ok {
		return PermitOutcome{}, errors.New("coordinator: unexpected permit script granted type")
	}
	retry, ok := res[1].(int64)
	if !ok {
		return PermitOutcome{}, errors.New("coordinator: unexpected permit script retry type")
	}
	reason, ok := res[2].(string)
	if !ok {
		return PermitOutcome{}, errors.New("coordinator: unexpected permit script reason type")
	}

	return PermitOutcome{
		Granted:      granted == 1,
		RetryAfterMS: retry,
		Reason:       reason,
	}, nil
}

// ReportParams configures the invalid-counter/guardrail mutation.
type ReportParams struct {
	Status              int
	RequestID           string
	Group               string
	CountsTowardLimit   bool
	InvalidThreshold    int
	GuardrailCooldownMS int64
}

// ApplyReport runs the invalid-counter/guardrail script (C4 steps 3-5) and
// returns the post-increment invalid count (0 when the report does not
// count toward the guardrail).
func (c *Coordinator) ApplyReport(ctx context.Context, p ReportParams) (int64, error) {
	reportKey := fmt.Sprintf("rl:report:%d:%s", p.Status, NormalizeKeyPart(p.RequestID))
	invalidKey := "rl:invalid:" + NormalizeKeyPart(p.Group)
	guardKey := "rl:guard:" + NormalizeKeyPart(p.Group)

	countsArg := "0"
	if p.CountsTowardLimit {
		countsArg = "1"
	}

	res, err := invalidCounterScript.Run(ctx, c.client,
		[]string{reportKey, invalidKey, guardKey},
		ReportTTLSeconds, countsArg, InvalidTTLSeconds, p.InvalidThreshold, p.GuardrailCooldownMS,
	).Int64()
	if err != nil {
		return 0, err
	}
	return res, nil
}
