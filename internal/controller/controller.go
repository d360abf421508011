// Package controller drives repeated passes of a task batch through the
// gate-bounded dispatchers, checkpoints progress at the configured
// interval and produces the final status report.
package controller

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentorch/internal/aggregate"
	"agentorch/internal/dispatch"
	"agentorch/internal/gate"
	"agentorch/internal/report"
	"agentorch/internal/shard"
	"agentorch/internal/telemetry"
	"agentorch/pkg/logger"
	"agentorch/pkg/types"
)

// BatchFunc builds the task batch for a given pass. The same logical
// batch may be regenerated per pass or reused; the controller treats the
// returned slice as immutable.
type BatchFunc func(iteration int) []types.Task

// StaticBatch returns a BatchFunc that reuses the same tasks every pass.
func StaticBatch(tasks []types.Task) BatchFunc {
	return func(int) []types.Task { return tasks }
}

// Options configure a Controller.
type Options struct {
	// RunID identifies the run in reports. Defaults to a random UUID.
	RunID string

	// Concurrency is the gate capacity: the maximum number of task
	// executions in flight at once.
	Concurrency int

	// ShardSize bounds how many tasks one dispatcher processes serially.
	// It also bounds reachable concurrency: with S shards, at most
	// min(S, Concurrency) tasks run at once.
	ShardSize int

	// Iterations is the number of full passes over the batch.
	Iterations int

	// CheckpointInterval persists a snapshot every N completed
	// iterations. Defaults to 1.
	CheckpointInterval int

	// TaskTimeout bounds a single handler invocation. Zero disables it.
	TaskTimeout time.Duration

	// MaxRetries is the retry budget per task for transient failures.
	MaxRetries int

	// RetryBackoff is the base retry delay, doubling per attempt.
	RetryBackoff time.Duration

	// AbortThreshold stops the run early when an iteration's failure
	// rate (failed plus timed out over total) exceeds this fraction.
	// Zero or negative disables early abort.
	AbortThreshold float64

	// Handler executes each task.
	Handler types.Handler

	// Batch supplies the tasks for each pass.
	Batch BatchFunc

	// Reports receives checkpoint and final snapshots. Optional.
	Reports *report.Manager

	// Metrics counts task outcomes and in-flight executions. Optional.
	Metrics *telemetry.Metrics
}

// Controller runs the iteration state machine:
//
//	Idle -> Running -> Checkpointing -> Running -> ... -> Completed
//
// with Aborted and Cancelled as the early terminal states.
type Controller struct {
	opts Options
	gate *gate.Gate

	mu    sync.Mutex
	state types.RunState
	agg   *aggregate.Aggregator
}

// New validates opts and creates a controller in the Idle state.
func New(opts Options) (*Controller, error) {
	if opts.Handler == nil {
		return nil, ErrNilHandler
	}
	if opts.Batch == nil {
		return nil, ErrNilBatch
	}
	if opts.Concurrency < 1 {
		return nil, ErrInvalidConcurrency
	}
	if opts.ShardSize < 1 {
		return nil, ErrInvalidShardSize
	}
	if opts.Iterations < 1 {
		return nil, ErrInvalidIterations
	}
	if opts.CheckpointInterval < 1 {
		opts.CheckpointInterval = 1
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	g, err := gate.New(opts.Concurrency)
	if err != nil {
		return nil, err
	}
	return &Controller{
		opts:  opts,
		gate:  g,
		state: types.StateIdle,
	}, nil
}

// State returns the controller's current run state.
func (c *Controller) State() types.RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(state types.RunState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// Snapshot returns the current cumulative report. Valid once Run has
// started an iteration.
func (c *Controller) Snapshot() types.StatusReport {
	c.mu.Lock()
	agg, state := c.agg, c.state
	c.mu.Unlock()
	if agg == nil {
		return types.StatusReport{RunID: c.opts.RunID, State: state}
	}
	return agg.Snapshot(state)
}

// Run executes all configured iterations and returns the terminal
// report. It returns ErrAborted when the failure-rate threshold stopped
// the run and the context error when the run was cancelled; in both
// cases the returned report reflects everything that completed.
//
// Run may be called once per controller.
func (c *Controller) Run(ctx context.Context) (types.StatusReport, error) {
	c.mu.Lock()
	if c.state != types.StateIdle {
		c.mu.Unlock()
		return types.StatusReport{}, ErrAlreadyStarted
	}
	c.state = types.StateRunning
	c.mu.Unlock()

	state := types.StateRunning
	var runErr error

	for iter := 1; iter <= c.opts.Iterations; iter++ {
		if ctx.Err() != nil {
			state = types.StateCancelled
			runErr = ctx.Err()
			break
		}

		rec, err := c.runIteration(ctx, iter)
		if err != nil {
			state = types.StateCancelled
			runErr = err
			break
		}

		if ctx.Err() != nil {
			state = types.StateCancelled
			runErr = ctx.Err()
			break
		}

		if rate, exceeded := c.failureRateExceeded(rec); exceeded {
			logger.Warn("iteration %d failure rate %.1f%% exceeds threshold %.1f%%, aborting run",
				iter, 100*rate, 100*c.opts.AbortThreshold)
			state = types.StateAborted
			runErr = ErrAborted
			break
		}

		// Checkpoint on interval; the final iteration's snapshot is the
		// terminal report written below, not a duplicate checkpoint.
		if iter < c.opts.Iterations && iter%c.opts.CheckpointInterval == 0 {
			c.checkpoint(ctx)
		}
	}

	if !state.Terminal() {
		state = types.StateCompleted
	}
	c.setState(state)

	final := c.finalReport(state)
	c.persist(ctx, &final)
	return final, runErr
}

// runIteration executes one full pass: shard the batch, run one
// dispatcher per shard against the shared gate, drain, finalize the
// iteration record.
func (c *Controller) runIteration(ctx context.Context, iter int) (types.IterationRecord, error) {
	tasks := c.opts.Batch(iter)

	c.mu.Lock()
	if c.agg == nil {
		c.agg = aggregate.New(aggregate.Options{
			RunID:             c.opts.RunID,
			ConcurrencyCap:    c.opts.Concurrency,
			Iterations:        c.opts.Iterations,
			TasksPerIteration: len(tasks),
		})
	}
	agg := c.agg
	c.mu.Unlock()

	shards, err := shard.Split(tasks, c.opts.ShardSize)
	if err != nil {
		return types.IterationRecord{}, err
	}
	if err := agg.StartIteration(iter, len(tasks)); err != nil {
		return types.IterationRecord{}, err
	}

	logger.Debug("iteration %d: %d tasks in %d shards", iter, len(tasks), len(shards))

	cfg := dispatch.Config{
		TaskTimeout:  c.opts.TaskTimeout,
		MaxRetries:   c.opts.MaxRetries,
		RetryBackoff: c.opts.RetryBackoff,
		Metrics:      c.opts.Metrics,
		OnResult: func(res types.ExecutionResult) {
			if res.Status != types.StatusSuccess {
				logger.Debug("task %s finished %s after attempt %d: %s",
					res.TaskID, res.Status, res.Attempt, res.Err)
			}
			agg.Record(res)
		},
	}

	var wg sync.WaitGroup
	for _, tasks := range shards {
		d, err := dispatch.New(c.gate, cfg)
		if err != nil {
			return types.IterationRecord{}, err
		}
		wg.Add(1)
		go func(tasks []types.Task) {
			defer wg.Done()
			// A cancelled dispatcher stops admitting tasks; the pass
			// drains whatever was already in flight.
			if err := d.Run(ctx, tasks, c.opts.Handler); err != nil {
				logger.Debug("dispatcher stopped: %v", err)
			}
		}(tasks)
	}
	wg.Wait()

	agg.SetPeakConcurrency(c.gate.Peak())

	rec, err := agg.FinishIteration()
	if err != nil {
		return types.IterationRecord{}, err
	}
	logger.Info("iteration %d done: completed=%d failed=%d timed_out=%d (%.2f tasks/s)",
		rec.Number, rec.TasksCompleted, rec.TasksFailed, rec.TasksTimedOut, rec.Throughput)
	return rec, nil
}

// failureRateExceeded applies the early-stop rule to a finished pass.
func (c *Controller) failureRateExceeded(rec types.IterationRecord) (float64, bool) {
	if c.opts.AbortThreshold <= 0 || rec.TasksTotal == 0 {
		return 0, false
	}
	rate := float64(rec.TasksFailed+rec.TasksTimedOut) / float64(rec.TasksTotal)
	return rate, rate > c.opts.AbortThreshold
}

// checkpoint persists a mid-run snapshot. Persistence failures are
// logged and counted; the in-memory aggregate stays authoritative and
// the next write supersedes the miss.
func (c *Controller) checkpoint(ctx context.Context) {
	if c.opts.Reports == nil {
		return
	}
	c.setState(types.StateCheckpointing)
	snapshot := c.agg.Snapshot(types.StateRunning)
	if err := c.opts.Reports.Write(ctx, &snapshot); err != nil {
		if c.opts.Metrics != nil {
			c.opts.Metrics.CheckpointFailed(ctx)
		}
	}
	c.setState(types.StateRunning)
}

func (c *Controller) finalReport(state types.RunState) types.StatusReport {
	c.mu.Lock()
	agg := c.agg
	c.mu.Unlock()
	if agg == nil {
		// Cancelled before the first iteration opened.
		return types.StatusReport{RunID: c.opts.RunID, State: state, GeneratedAt: time.Now()}
	}
	return agg.Finalize(state)
}

// persist writes the terminal report, best effort even on cancellation.
func (c *Controller) persist(ctx context.Context, final *types.StatusReport) {
	if c.opts.Reports == nil {
		return
	}
	// Use a fresh context so a cancelled run can still flush its report.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := c.opts.Reports.Write(writeCtx, final); err != nil {
		if c.opts.Metrics != nil {
			c.opts.Metrics.CheckpointFailed(writeCtx)
		}
	}
}
