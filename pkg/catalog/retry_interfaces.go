package catalog

import "time"

// ErrorClassifier decides whether a failed store operation may be retried.
type ErrorClassifier interface {
	// IsTransient returns true if retrying the same operation can succeed.
	IsTransient(err error) bool
}

// BackoffStrategy spaces out retries of store operations.
type BackoffStrategy interface {
	// NextDelay returns the wait before retry number attempt (zero-indexed).
	NextDelay(attempt int) time.Duration

	// MaxAttempts returns the retry budget (0 = none, -1 = unlimited).
	MaxAttempts() int
}
