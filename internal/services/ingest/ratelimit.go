package ingest

import "time"

// RateLimitFloor is the minimum spacing between accepted pings for one
// check, independent of the check's configured interval. It throttles
// runaway callers before any state-mutating I/O happens.
const RateLimitFloor = 30 * time.Second

// RetryAfter returns 0 when the ping is admitted, otherwise the number
// of whole seconds the caller must wait (rounded up, clamped to the
// floor). A check that has never pinged is always admitted.
func RetryAfter(lastPingedAt *time.Time, now time.Time) int64 {
	if lastPingedAt == nil {
		return 0
	}
	elapsed := now.Sub(*lastPingedAt)
	if elapsed >= RateLimitFloor {
		return 0
	}
	remaining := RateLimitFloor - elapsed
	secs := int64((remaining + time.Second - 1) / time.Second)
	if secs > int64(RateLimitFloor/time.Second) {
		secs = int64(RateLimitFloor / time.Second)
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}
