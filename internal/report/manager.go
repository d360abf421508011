package report

import (
	"context"
	"errors"
	"fmt"

	"agentorch/pkg/logger"
	"agentorch/pkg/types"
)

// Manager fans report snapshots out to a set of sinks. A failing sink is
// logged and skipped; the in-memory aggregate stays authoritative and the
// next checkpoint supersedes the missed write, so task execution is never
// aborted on reporter I/O failure.
type Manager struct {
	sinks []Sink
}

// NewManager builds a manager from enabled sink configurations.
func NewManager(registry *Registry, configs []SinkConfig) (*Manager, error) {
	m := &Manager{}
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		sink, err := registry.Create(cfg.Type, cfg.Config)
		if err != nil {
			return nil, fmt.Errorf("create %s sink: %w", cfg.Type, err)
		}
		m.sinks = append(m.sinks, sink)
	}
	return m, nil
}

// NewManagerWithSinks wraps already-built sinks, mainly for tests.
func NewManagerWithSinks(sinks ...Sink) *Manager {
	return &Manager{sinks: sinks}
}

// Open opens every sink. Failing sinks are dropped with a warning so a
// single bad endpoint does not block the run.
func (m *Manager) Open(ctx context.Context) error {
	opened := m.sinks[:0]
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Open(ctx); err != nil {
			logger.Warn("sink %s failed to open, dropping it: %v", sink.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		opened = append(opened, sink)
	}
	m.sinks = opened
	return errors.Join(errs...)
}

// Write sends the report to every sink. Per-sink errors are logged and
// joined into the return value for the caller's bookkeeping; the caller
// is expected to carry on regardless.
func (m *Manager) Write(ctx context.Context, report *types.StatusReport) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Write(ctx, report); err != nil {
			logger.Error("sink %s write failed: %v", sink.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// SinkCount returns the number of active sinks.
func (m *Manager) SinkCount() int {
	return len(m.sinks)
}
