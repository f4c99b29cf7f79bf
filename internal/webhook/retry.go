package webhook

import (
	"math/rand"
	"time"
)

// retryDelays are the waits before the second, third and fourth attempt.
var retryDelays = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	30 * time.Second,
}

const (
	// MaxAttempts bounds deliveries of one notification: the first attempt
	// plus one per entry in retryDelays.
	MaxAttempts = 4

	// JitterFactor is the ±fraction of jitter applied to delays.
	JitterFactor = 0.2
)

// NextRetryDelay returns the wait after failed attempt number attempt
// (1-based), with ±20% jitter.
func NextRetryDelay(attempt int) time.Duration {
	i := min(max(attempt-1, 0), len(retryDelays)-1)
	base := retryDelays[i]
	jitter := (rand.Float64()*2 - 1) * float64(base) * JitterFactor
	return time.Duration(float64(base) + jitter)
}

// IsExhausted reports whether no attempt is left.
func IsExhausted(attempt int) bool {
	return attempt >= MaxAttempts
}

// statusNotSent marks a local failure before any request left the process.
const statusNotSent = -1

// retryable reports whether a response status is worth another attempt.
func retryable(status int) bool {
	return status == 0 || status == 408 || status == 429 || status >= 500
}
