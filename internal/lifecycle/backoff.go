package lifecycle

import "time"

const (
	// BackoffBase is the delay after the first failure.
	BackoffBase = 60 * time.Second
	// BackoffCap is the upper bound on the delay between attempts.
	BackoffCap = 600 * time.Second
)

// Delay returns how long a document must wait before its next processing
// attempt: base * 2^retryCount capped at BackoffCap. retryCount is the value
// recorded before the current failure increments it, so the first failure
// yields 60s, the second 120s, then 240s, capping at 600s. Deterministic,
// no jitter.
func Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	// 2^4 already exceeds the cap; avoid shifting into overflow territory.
	if retryCount > 10 {
		return BackoffCap
	}
	d := BackoffBase << uint(retryCount)
	if d > BackoffCap {
		return BackoffCap
	}
	return d
}
