// Package config loads and validates orchestrator configuration from a
// YAML file with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"agentorch/internal/report"
)

// Duration wraps time.Duration with YAML support for strings like "30s".
type Duration time.Duration

// UnmarshalYAML parses either a duration string or a bare integer
// (interpreted as nanoseconds, matching time.Duration's native form).
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var ns int64
	if err := value.Decode(&ns); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	*d = Duration(ns)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete orchestrator configuration.
type Config struct {
	Run       RunConfig           `yaml:"run"`
	Workload  WorkloadConfig      `yaml:"workload"`
	Sinks     []report.SinkConfig `yaml:"sinks"`
	Logging   LoggingConfig       `yaml:"logging"`
	Telemetry TelemetryConfig     `yaml:"telemetry"`
}

// RunConfig holds the orchestrator core's tuning knobs.
type RunConfig struct {
	// Concurrency is the maximum number of task executions in flight.
	Concurrency int `yaml:"concurrency"`
	// ShardSize bounds how many tasks one dispatcher handles serially.
	ShardSize int `yaml:"shard_size"`
	// Iterations is the number of full passes over the batch.
	Iterations int `yaml:"iterations"`
	// CheckpointInterval persists a snapshot every N iterations.
	CheckpointInterval int `yaml:"checkpoint_interval"`
	// TaskTimeout bounds one handler invocation; zero disables it.
	TaskTimeout Duration `yaml:"task_timeout"`
	// MaxRetries is the per-task retry budget for transient failures.
	MaxRetries int `yaml:"max_retries"`
	// RetryBackoff is the base retry delay, doubling per attempt.
	RetryBackoff Duration `yaml:"retry_backoff"`
	// AbortThreshold stops the run when an iteration's failure rate
	// exceeds this fraction. Zero disables early abort.
	AbortThreshold float64 `yaml:"abort_threshold"`
}

// WorkloadConfig describes the synthetic batch the CLI builds for
// rehearsal runs. Handler latency is treated as an untrusted external
// variable; these knobs only shape the simulation.
type WorkloadConfig struct {
	// Tasks is the batch size per iteration.
	Tasks int `yaml:"tasks"`
	// Categories labels tasks round-robin for reporting.
	Categories []string `yaml:"categories"`
	// Latency is the simulated handler latency per task.
	Latency Duration `yaml:"latency"`
	// Jitter adds up to this much random extra latency.
	Jitter Duration `yaml:"jitter"`
	// FailureRate is the fraction of tasks that fail, in [0,1].
	FailureRate float64 `yaml:"failure_rate"`
	// Seed makes the simulated failures reproducible. Zero picks a
	// random seed.
	Seed int64 `yaml:"seed"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// TelemetryConfig holds OpenTelemetry exporter configuration.
type TelemetryConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			Concurrency:        10,
			ShardSize:          25,
			Iterations:         1,
			CheckpointInterval: 1,
			TaskTimeout:        Duration(30 * time.Second),
			MaxRetries:         2,
			RetryBackoff:       Duration(200 * time.Millisecond),
			AbortThreshold:     0.5,
		},
		Workload: WorkloadConfig{
			Tasks:      100,
			Categories: []string{"default"},
			Latency:    Duration(10 * time.Millisecond),
		},
		Sinks: []report.SinkConfig{
			{Type: report.SinkTypeConsole, Enabled: true},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Enabled:  false,
			Interval: Duration(10 * time.Second),
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path loads defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides configuration from AGENTORCH_* environment
// variables.
func (c *Config) applyEnv() {
	envInt("AGENTORCH_CONCURRENCY", &c.Run.Concurrency)
	envInt("AGENTORCH_SHARD_SIZE", &c.Run.ShardSize)
	envInt("AGENTORCH_ITERATIONS", &c.Run.Iterations)
	envInt("AGENTORCH_CHECKPOINT_INTERVAL", &c.Run.CheckpointInterval)
	envInt("AGENTORCH_MAX_RETRIES", &c.Run.MaxRetries)
	envDuration("AGENTORCH_TASK_TIMEOUT", &c.Run.TaskTimeout)
	envDuration("AGENTORCH_RETRY_BACKOFF", &c.Run.RetryBackoff)
	envFloat("AGENTORCH_ABORT_THRESHOLD", &c.Run.AbortThreshold)
	envInt("AGENTORCH_WORKLOAD_TASKS", &c.Workload.Tasks)
	envString("AGENTORCH_LOG_LEVEL", &c.Logging.Level)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
