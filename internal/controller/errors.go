package controller

import "errors"

var (
	// ErrNilHandler is returned when no task handler is configured.
	ErrNilHandler = errors.New("task handler is nil")

	// ErrNilBatch is returned when no batch function is configured.
	ErrNilBatch = errors.New("batch function is nil")

	// ErrInvalidConcurrency is returned when the concurrency cap is not
	// positive.
	ErrInvalidConcurrency = errors.New("concurrency must be positive")

	// ErrInvalidShardSize is returned when the shard size is not positive.
	ErrInvalidShardSize = errors.New("shard size must be positive")

	// ErrInvalidIterations is returned when the iteration count is not
	// positive.
	ErrInvalidIterations = errors.New("iterations must be positive")

	// ErrAlreadyStarted is returned when Run is called more than once.
	ErrAlreadyStarted = errors.New("run already started")

	// ErrAborted reports that the failure-rate threshold stopped the run
	// before all iterations completed.
	ErrAborted = errors.New("run aborted: failure-rate threshold exceeded")
)
