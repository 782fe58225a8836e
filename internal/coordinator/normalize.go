// Package coordinator wraps the Redis connection used as the orchestrator's
// shared key-value coordinator (C1): it builds bucket/guardrail/report keys,
// loads the two atomic Lua scripts the decision kernel and result reporter
// depend on, and executes them with EVALSHA/EVAL handled by go-redis.
package coordinator

import "strings"

// replacer performs the uniqueness-preserving sanitization spec §3 requires:
// every user-supplied key fragment has space, colon, forward-slash,
// backslash, tab, and newline replaced with underscore. It is not a security
// boundary — collisions between "a b" and "a_b" are acceptable by design.
var replacer = strings.NewReplacer(
	" ", "_",
	":", "_",
	"/", "_",
	"\\", "_",
	"\t", "_",
	"\n", "_",
)

// NormalizeKeyPart trims a key fragment and replaces the reserved characters
// with underscores. It is idempotent: NormalizeKeyPart(NormalizeKeyPart(x))
// == NormalizeKeyPart(x) for all x, since the output never contains any of
// the trimmed or replaced characters.
func NormalizeKeyPart(s string) string {
	return replacer.Replace(strings.TrimSpace(s))
}
