package types

import "context"

// Task is a single unit of agent work submitted to the orchestrator.
// Tasks are immutable once submitted; the dispatcher never mutates them.
type Task struct {
	// ID uniquely identifies the task within a run. IDs are assigned by
	// the caller at batch-build time and never reused.
	ID string

	// Category groups tasks for reporting (a "division" label). It carries
	// no scheduling weight.
	Category string

	// Payload is opaque data passed through to the handler.
	Payload any

	// Priority is an optional ordering hint. Within a shard, higher
	// priority tasks are dispatched first.
	Priority int
}

// Handler executes the business side of a task. Implementations must be
// safe for concurrent invocation from multiple dispatch sites. A nil
// return means the task succeeded.
type Handler func(ctx context.Context, task Task) error
