// Package report provides the status-reporting framework: a sink
// interface, a factory registry and a manager that fans checkpoint
// snapshots out to the configured sinks.
package report

import (
	"context"
	"fmt"
	"sync"

	"agentorch/pkg/types"
)

// Sink receives status report snapshots at each checkpoint and at run
// completion.
type Sink interface {
	// Name returns the sink name.
	Name() string

	// Open prepares the sink for writes.
	Open(ctx context.Context) error

	// Write persists one report snapshot. A failed write must leave no
	// partially written report observable as a complete one.
	Write(ctx context.Context, report *types.StatusReport) error

	// Close flushes and releases the sink's resources.
	Close(ctx context.Context) error
}

// SinkType identifies a sink implementation.
type SinkType string

const (
	// SinkTypeConsole prints summaries to the console.
	SinkTypeConsole SinkType = "console"
	// SinkTypeFile writes a JSON checkpoint file, atomically replaced.
	SinkTypeFile SinkType = "file"
	// SinkTypeWebhook POSTs reports to a webhook URL.
	SinkTypeWebhook SinkType = "webhook"
	// SinkTypePostgres inserts reports into a Postgres table.
	SinkTypePostgres SinkType = "postgres"
)

// SinkConfig declares one configured sink.
type SinkConfig struct {
	Type    SinkType       `yaml:"type"`
	Enabled bool           `yaml:"enabled"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// Factory creates a sink from its raw configuration map.
type Factory func(config map[string]any) (Sink, error)

// Registry manages sink registration and creation.
type Registry struct {
	mu        sync.RWMutex
	factories map[SinkType]Factory
}

// NewRegistry creates an empty sink registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[SinkType]Factory)}
}

// Register adds a factory for the given sink type.
func (r *Registry) Register(sinkType SinkType, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[sinkType]; exists {
		return fmt.Errorf("sink type already registered: %s", sinkType)
	}
	r.factories[sinkType] = factory
	return nil
}

// Unregister removes a sink factory.
func (r *Registry) Unregister(sinkType SinkType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, sinkType)
}

// Create builds a sink of the given type.
func (r *Registry) Create(sinkType SinkType, config map[string]any) (Sink, error) {
	r.mu.RLock()
	factory, exists := r.factories[sinkType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown sink type: %s", sinkType)
	}
	return factory(config)
}

// ListTypes returns all registered sink types.
func (r *Registry) ListTypes() []SinkType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SinkType, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	return out
}

// HasType checks whether a sink type is registered.
func (r *Registry) HasType(sinkType SinkType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[sinkType]
	return exists
}
