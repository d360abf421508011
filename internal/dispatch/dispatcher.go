// Package dispatch pulls tasks from a shard, runs them through the
// concurrency gate and records one terminal outcome per task.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"agentorch/internal/gate"
	"agentorch/internal/telemetry"
	"agentorch/pkg/types"
)

var (
	// ErrNilHandler is returned when no task handler is supplied.
	ErrNilHandler = errors.New("task handler is nil")

	// ErrNilGate is returned when no concurrency gate is supplied.
	ErrNilGate = errors.New("concurrency gate is nil")
)

// DefaultRetryBackoff is the base delay before the first retry. The delay
// doubles per attempt.
const DefaultRetryBackoff = 200 * time.Millisecond

// ResultFunc receives the terminal ExecutionResult of each task. It must
// be safe for concurrent calls from multiple dispatchers.
type ResultFunc func(types.ExecutionResult)

// AttemptFunc optionally observes every attempt, including the
// non-terminal ones that are about to be retried.
type AttemptFunc func(types.ExecutionResult)

// Config holds dispatcher tuning knobs.
type Config struct {
	// TaskTimeout bounds a single handler invocation. Zero disables the
	// per-task timeout.
	TaskTimeout time.Duration

	// MaxRetries is how many extra attempts a failed or timed-out task
	// gets before being recorded as failed_final.
	MaxRetries int

	// RetryBackoff is the base delay before the first retry; it doubles
	// per attempt. Defaults to DefaultRetryBackoff.
	RetryBackoff time.Duration

	// OnResult receives the single terminal result per task.
	OnResult ResultFunc

	// OnAttempt, when set, receives every attempt's result.
	OnAttempt AttemptFunc

	// Metrics, when set, counts task outcomes and in-flight executions.
	Metrics *telemetry.Metrics
}

// Dispatcher executes the tasks of one shard serially: acquire a gate
// slot, invoke the handler under the per-task timeout, record the
// outcome, release the slot, move on. Concurrency comes from running one
// dispatcher per shard against a shared gate.
type Dispatcher struct {
	gate *gate.Gate
	cfg  Config
}

// New creates a dispatcher bound to the shared gate.
func New(g *gate.Gate, cfg Config) (*Dispatcher, error) {
	if g == nil {
		return nil, ErrNilGate
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	return &Dispatcher{gate: g, cfg: cfg}, nil
}

// Run dispatches every task in the shard. Higher-priority tasks go first.
// When ctx is cancelled, no further tasks are admitted to the gate and
// the error is reported; tasks already dispatched have completed by then.
func (d *Dispatcher) Run(ctx context.Context, tasks []types.Task, handler types.Handler) error {
	if handler == nil {
		return ErrNilHandler
	}

	for _, task := range byPriority(tasks) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.gate.Acquire(ctx); err != nil {
			return fmt.Errorf("acquire gate slot: %w", err)
		}
		d.dispatchOne(ctx, task, handler)
	}
	return nil
}

// dispatchOne runs one task to a terminal outcome while holding a gate
// slot. The slot is released on every exit path before the next task of
// this dispatcher starts.
func (d *Dispatcher) dispatchOne(ctx context.Context, task types.Task, handler types.Handler) {
	defer d.gate.Release()

	if d.cfg.Metrics != nil {
		d.cfg.Metrics.TaskStarted(ctx)
		defer d.cfg.Metrics.TaskDone(ctx)
	}

	res := d.execute(ctx, task, handler)

	if d.cfg.Metrics != nil {
		d.cfg.Metrics.TaskFinished(ctx, res.Status)
	}
	if d.cfg.OnResult != nil {
		d.cfg.OnResult(res)
	}
}

// execute drives the attempt/retry loop until a terminal result.
func (d *Dispatcher) execute(ctx context.Context, task types.Task, handler types.Handler) types.ExecutionResult {
	attempts := d.cfg.MaxRetries + 1

	var res types.ExecutionResult
	for attempt := 1; attempt <= attempts; attempt++ {
		res = d.attempt(ctx, task, handler, attempt)
		if d.cfg.OnAttempt != nil {
			d.cfg.OnAttempt(res)
		}
		if res.Status == types.StatusSuccess || ctx.Err() != nil {
			return res
		}
		if attempt == attempts {
			break
		}

		// Exponential backoff before the next attempt.
		delay := d.cfg.RetryBackoff << (attempt - 1)
		select {
		case <-ctx.Done():
			return res
		case <-time.After(delay):
		}
	}

	if d.cfg.MaxRetries > 0 {
		res.Status = types.StatusFailedFinal
	}
	return res
}

// attempt invokes the handler once under the per-task timeout. A handler
// that outlives the timeout is abandoned: it finishes in the background
// and its result is discarded.
func (d *Dispatcher) attempt(ctx context.Context, task types.Task, handler types.Handler, attempt int) types.ExecutionResult {
	attemptCtx := ctx
	if d.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, d.cfg.TaskTimeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- invoke(attemptCtx, task, handler)
	}()

	res := types.ExecutionResult{
		TaskID:   task.ID,
		Category: task.Category,
		Attempt:  attempt,
	}

	select {
	case err := <-done:
		res.Duration = time.Since(start)
		res.CompletedAt = time.Now()
		switch {
		case err == nil:
			res.Status = types.StatusSuccess
		case d.cfg.TaskTimeout > 0 && errors.Is(err, context.DeadlineExceeded):
			// The handler observed the expiring attempt context before we
			// did; classify it as a timeout, not a plain failure.
			res.Status = types.StatusTimedOut
			res.Err = fmt.Sprintf("task exceeded %s timeout", d.cfg.TaskTimeout)
		default:
			res.Status = types.StatusFailure
			res.Err = err.Error()
		}
	case <-attemptCtx.Done():
		res.Duration = time.Since(start)
		res.CompletedAt = time.Now()
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			res.Status = types.StatusTimedOut
			res.Err = fmt.Sprintf("task exceeded %s timeout", d.cfg.TaskTimeout)
		} else {
			res.Status = types.StatusFailure
			res.Err = attemptCtx.Err().Error()
		}
	}
	return res
}

// invoke calls the handler, converting a panic into an error so a
// misbehaving handler never crashes the orchestrator.
func invoke(ctx context.Context, task types.Task, handler types.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, task)
}

// byPriority returns the tasks ordered highest priority first. The sort
// is stable so equal-priority tasks keep their submission order. The
// input slice is not modified.
func byPriority(tasks []types.Task) []types.Task {
	ordered := make([]types.Task, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
	return ordered
}
