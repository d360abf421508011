package types

import "time"

// ResultStatus classifies the outcome of a task attempt.
type ResultStatus string

const (
	// StatusSuccess means the handler returned normally.
	StatusSuccess ResultStatus = "success"
	// StatusFailure means the handler returned an error.
	StatusFailure ResultStatus = "failure"
	// StatusTimedOut means the handler exceeded the per-task timeout.
	StatusTimedOut ResultStatus = "timed_out"
	// StatusFailedFinal means the task kept failing after exhausting its
	// retry budget. It is counted exactly once in the aggregate.
	StatusFailedFinal ResultStatus = "failed_final"
)

// Terminal reports whether the status ends the task's lifecycle. A
// non-terminal outcome is retried by the dispatcher when retries remain.
func (s ResultStatus) Terminal(retriesConfigured bool) bool {
	if s == StatusSuccess || s == StatusFailedFinal {
		return true
	}
	return !retriesConfigured
}

// ExecutionResult records the outcome of one task attempt. A retried task
// produces a new ExecutionResult per attempt; only the final attempt is
// handed to the aggregator.
type ExecutionResult struct {
	TaskID   string
	Category string
	Status   ResultStatus

	// Err holds the handler error message. Empty iff Status is success.
	Err string

	// Attempt is the 1-based attempt number that produced this result.
	Attempt int

	Duration    time.Duration
	CompletedAt time.Time
}
