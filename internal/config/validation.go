package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for contradictions the orchestrator
// cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Run.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("run.concurrency must be positive, got %d", c.Run.Concurrency))
	}
	if c.Run.ShardSize < 1 {
		errs = append(errs, fmt.Errorf("run.shard_size must be positive, got %d", c.Run.ShardSize))
	}
	if c.Run.Iterations < 1 {
		errs = append(errs, fmt.Errorf("run.iterations must be positive, got %d", c.Run.Iterations))
	}
	if c.Run.CheckpointInterval < 1 {
		errs = append(errs, fmt.Errorf("run.checkpoint_interval must be positive, got %d", c.Run.CheckpointInterval))
	}
	if c.Run.TaskTimeout < 0 {
		errs = append(errs, errors.New("run.task_timeout must not be negative"))
	}
	if c.Run.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("run.max_retries must not be negative, got %d", c.Run.MaxRetries))
	}
	if c.Run.AbortThreshold < 0 || c.Run.AbortThreshold > 1 {
		errs = append(errs, fmt.Errorf("run.abort_threshold must be in [0,1], got %g", c.Run.AbortThreshold))
	}

	if c.Workload.Tasks < 0 {
		errs = append(errs, fmt.Errorf("workload.tasks must not be negative, got %d", c.Workload.Tasks))
	}
	if c.Workload.FailureRate < 0 || c.Workload.FailureRate > 1 {
		errs = append(errs, fmt.Errorf("workload.failure_rate must be in [0,1], got %g", c.Workload.FailureRate))
	}
	if c.Workload.Latency < 0 || c.Workload.Jitter < 0 {
		errs = append(errs, errors.New("workload latency and jitter must not be negative"))
	}

	for i, sink := range c.Sinks {
		if sink.Type == "" {
			errs = append(errs, fmt.Errorf("sinks[%d]: type is required", i))
		}
	}

	return errors.Join(errs...)
}
