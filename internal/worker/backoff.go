package worker

import "time"

const backoffCap = 5 * time.Minute

// RetryBackoff returns the delay before the next attempt.
// attempts=0 => 1s
// attempts=1 => 2s
// attempts=2 => 4s
func RetryBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 20 {
		return backoffCap
	}

	delay := time.Duration(1<<uint(attempts)) * time.Second

	if delay > backoffCap {
		delay = backoffCap
	}

	return delay
}
