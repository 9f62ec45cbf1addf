package pipeline

import "time"

const (
	// MaxAttempts is the number of claims an event gets before it is dead.
	MaxAttempts = 5

	baseBackoff = 30 * time.Second
	maxBackoff  = time.Hour
)

// Backoff returns the delay before retrying an event that has been claimed
// attempts times: min(30s * 2^(attempts-1), 1h).
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := baseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
