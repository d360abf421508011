// Package console provides a console sink for orchestrator status
// reports.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"agentorch/pkg/types"
)

// Config holds configuration for the console sink.
type Config struct {
	// ShowIterations prints the per-iteration table.
	ShowIterations bool `yaml:"show_iterations"`
	// ShowCategories prints per-category totals.
	ShowCategories bool `yaml:"show_categories"`
	// Writer is the output writer (defaults to os.Stdout).
	Writer io.Writer `yaml:"-"`
}

// DefaultConfig returns the default console sink configuration.
func DefaultConfig() *Config {
	return &Config{
		ShowIterations: true,
		ShowCategories: true,
		Writer:         os.Stdout,
	}
}

// Sink prints report snapshots in a human-readable form.
type Sink struct {
	config *Config
	writer io.Writer
	mu     sync.Mutex
}

// New creates a console sink.
func New(config *Config) *Sink {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	return &Sink{config: config, writer: config.Writer}
}

// NewFactory returns a factory for creating console sinks from raw
// configuration.
func NewFactory() func(config map[string]any) (*Sink, error) {
	return func(config map[string]any) (*Sink, error) {
		cfg := DefaultConfig()
		if config != nil {
			if v, ok := config["show_iterations"].(bool); ok {
				cfg.ShowIterations = v
			}
			if v, ok := config["show_categories"].(bool); ok {
				cfg.ShowCategories = v
			}
		}
		return New(cfg), nil
	}
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "console"
}

// Open prepares the sink.
func (s *Sink) Open(ctx context.Context) error {
	return nil
}

// Write prints one report snapshot.
func (s *Sink) Write(ctx context.Context, report *types.StatusReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder

	fmt.Fprintf(&b, "\n=== run %s [%s] ===\n", report.RunID, report.State)
	fmt.Fprintf(&b, "agents: %d  iterations: %d  tasks/iteration: %d\n",
		report.TotalAgents, report.Iterations, report.TasksPerIteration)
	fmt.Fprintf(&b, "processed: %d  completed: %d  failed: %d  timed out: %d  (%.1f%%)\n",
		report.TasksProcessed, report.TasksCompleted, report.TasksFailed,
		report.TasksTimedOut, report.CompletionPercent)
	fmt.Fprintf(&b, "peak concurrency: %d  throughput: %.2f tasks/s\n",
		report.PeakConcurrency, report.Throughput)

	if d := report.Durations; d != nil {
		fmt.Fprintf(&b, "duration ms: avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
			d.AvgMs, d.P50Ms, d.P95Ms, d.P99Ms, d.MaxMs)
	}

	if s.config.ShowIterations && len(report.IterationRecords) > 0 {
		b.WriteString("iterations:\n")
		for _, rec := range report.IterationRecords {
			fmt.Fprintf(&b, "  #%d total=%d completed=%d failed=%d timed_out=%d %.2f tasks/s\n",
				rec.Number, rec.TasksTotal, rec.TasksCompleted,
				rec.TasksFailed, rec.TasksTimedOut, rec.Throughput)
		}
	}

	if s.config.ShowCategories && len(report.Categories) > 0 {
		names := make([]string, 0, len(report.Categories))
		for name := range report.Categories {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("categories:\n")
		for _, name := range names {
			totals := report.Categories[name]
			fmt.Fprintf(&b, "  %-20s completed=%d failed=%d timed_out=%d\n",
				name, totals.Completed, totals.Failed, totals.TimedOut)
		}
	}

	_, err := io.WriteString(s.writer, b.String())
	return err
}

// Close releases the sink.
func (s *Sink) Close(ctx context.Context) error {
	return nil
}
