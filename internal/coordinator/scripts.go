package coordinator

import "github.com/redis/go-redis/v9"

// permitScript is the single atomic evaluation backing the decision kernel
// (C2, spec §4.1). Its SHA is computed once when the package initializes and
// every call is issued as EVALSHA (go-redis transparently falls back to EVAL
// on NOSCRIPT, which also caches the script server-side), so the
// guardrail-then-global-then-route sequence never splits into separate
// client-issued commands — the TOCTOU race that would reintroduce is exactly
// what this script exists to eliminate (spec §9).
//
// KEYS[1] = guardrail gate key      rl:guard:{group}
// KEYS[2] = global bucket key       rl:global:{identity}:{second}
// KEYS[3] = route bucket key        rl:route:{identity}:{method}:{route}:{major}:{second}
// ARGV[1] = global_limit
// ARGV[2] = route_limit
// ARGV[3] = bucket_ttl_ms
// ARGV[4] = min_retry_ms
//
// Returns a 4-tuple: {granted(0/1), retry_after_ms, reason, errored(0/1)}.
// The script itself never fails the decision (a Lua runtime error aborts the
// call entirely, which go-redis surfaces as a Go error) — errored is always
// 0 here; the Go caller sets PermitDecision.Errored on transport failure,
// where this tuple never arrives at all.
var permitScript = redis.NewScript(`
local guard_key   = KEYS[1]
local global_key  = KEYS[2]
local route_key   = KEYS[3]

local global_limit = tonumber(ARGV[1])
local route_limit   = tonumber(ARGV[2])
local bucket_ttl_ms  = tonumber(ARGV[3])
local min_retry_ms   = tonumber(ARGV[4])

-- 1. Guardrail check. Do not touch the buckets if the gate is armed.
local guard_ttl = redis.call('PTTL', guard_key)
if guard_ttl and guard_ttl > 0 then
    local retry = guard_ttl
    if retry < min_retry_ms then retry = min_retry_ms end
    return {0, retry, "invalid_guardrail_active", 0}
end

-- 2. Global bucket.
local global_count = redis.call('INCR', global_key)
if global_count == 1 then
    redis.call('PEXPIRE', global_key, bucket_ttl_ms)
end
if global_count > global_limit then
    local retry = bucket_ttl_ms
    if retry < min_retry_ms then retry = min_retry_ms end
    return {0, retry, "global_bucket_exhausted", 0}
end

-- 3. Route bucket.
local route_count = redis.call('INCR', route_key)
if route_count == 1 then
    redis.call('PEXPIRE', route_key, bucket_ttl_ms)
end
if route_count > route_limit then
    local retry = bucket_ttl_ms
    if retry < min_retry_ms then retry = min_retry_ms end
    return {0, retry, "route_bucket_exhausted", 0}
end

-- 4. Grant.
return {1, 0, "ok", 0}
`)

// invalidCounterScript performs steps 3-5 of the result reporter (C4, spec
// §4.3) atomically: write the dedup receipt, conditionally bump the group's
// invalid counter, and conditionally arm (or refresh) the guardrail gate.
//
// KEYS[1] = report receipt key      rl:report:{status}:{request_id}
// KEYS[2] = invalid counter key     rl:invalid:{group}
// KEYS[3] = guardrail gate key      rl:guard:{group}
// ARGV[1] = report_ttl_s            (300)
// ARGV[2] = counts_toward_limit     ("1" or "0")
// ARGV[3] = invalid_ttl_s           (600)
// ARGV[4] = invalid_threshold
// ARGV[5] = guardrail_cooldown_ms
//
// Returns the post-increment invalid count (0 if the report does not count
// toward the limit).
var invalidCounterScript = redis.NewScript(`
local report_key  = KEYS[1]
local invalid_key = KEYS[2]
local guard_key   = KEYS[3]

local report_ttl_s       = tonumber(ARGV[1])
local counts_toward_limit = ARGV[2] == "1"
local invalid_ttl_s       = tonumber(ARGV[3])
local invalid_threshold   = tonumber(ARGV[4])
local guardrail_cooldown_ms = tonumber(ARGV[5])

redis.call('SETEX', report_key, report_ttl_s, "1")

if not counts_toward_limit then
    return 0
end

local count = redis.call('INCR', invalid_key)
if count == 1 then
    redis.call('EXPIRE', invalid_key, invalid_ttl_s)
end

if count >= invalid_threshold then
    redis.call('PSETEX', guard_key, guardrail_cooldown_ms, count)
end

return count
`)
