package types

import "time"

// RunState describes where the iteration controller is in its lifecycle.
type RunState string

const (
	// StateIdle means the controller has not started yet.
	StateIdle RunState = "idle"
	// StateRunning means a pass over the batch is in progress.
	StateRunning RunState = "running"
	// StateCheckpointing means a progress snapshot is being persisted.
	StateCheckpointing RunState = "checkpointing"
	// StateCompleted means all configured iterations ran to completion.
	StateCompleted RunState = "completed"
	// StateAborted means the failure-rate threshold was exceeded and the
	// run stopped early.
	StateAborted RunState = "aborted"
	// StateCancelled means an external cancellation signal stopped the run.
	StateCancelled RunState = "cancelled"
)

// Terminal reports whether the state ends the run.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateCancelled
}

// IterationRecord summarizes a single full pass over the task batch.
// It is created when the pass starts and immutable once finalized.
type IterationRecord struct {
	Number         int           `json:"iteration_number"`
	TasksTotal     int           `json:"tasks_total"`
	TasksCompleted int           `json:"tasks_completed"`
	TasksFailed    int           `json:"tasks_failed"`
	TasksTimedOut  int           `json:"tasks_timed_out"`
	Throughput     float64       `json:"throughput"` // tasks per second
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    time.Time     `json:"completed_at"`
	Elapsed        time.Duration `json:"elapsed_ns"`
}

// CategoryTotals holds per-category terminal counts for reporting.
type CategoryTotals struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	TimedOut  int `json:"timed_out"`
}

// DurationStats summarizes observed handler latency across the run.
type DurationStats struct {
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P90Ms float64 `json:"p90_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// StatusReport is the cumulative progress snapshot persisted at each
// checkpoint and at completion. Invariant: TasksCompleted + TasksFailed +
// TasksTimedOut == TasksProcessed for every completed iteration and for
// the report as a whole.
type StatusReport struct {
	RunID string   `json:"run_id"`
	State RunState `json:"state"`

	// TotalAgents is the configured concurrency cap.
	TotalAgents       int `json:"total_agents"`
	Iterations        int `json:"iterations"`
	TasksPerIteration int `json:"tasks_per_iteration"`

	TasksProcessed    int     `json:"tasks_processed"`
	TasksCompleted    int     `json:"tasks_completed"`
	TasksFailed       int     `json:"tasks_failed"`
	TasksTimedOut     int     `json:"tasks_timed_out"`
	CompletionPercent float64 `json:"completion_percentage"`

	PeakConcurrency int     `json:"peak_concurrency"`
	Throughput      float64 `json:"throughput"` // tasks per second, run average

	Durations  *DurationStats            `json:"durations,omitempty"`
	Categories map[string]CategoryTotals `json:"categories,omitempty"`

	IterationRecords []IterationRecord `json:"iteration_records"`

	StartedAt   time.Time `json:"started_at"`
	GeneratedAt time.Time `json:"generated_at"`
}
