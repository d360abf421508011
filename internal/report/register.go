package report

import (
	"agentorch/internal/report/console"
	"agentorch/internal/report/file"
	"agentorch/internal/report/postgres"
	"agentorch/internal/report/webhook"
)

// RegisterBuiltinSinks registers all built-in sinks with the registry.
func RegisterBuiltinSinks(registry *Registry) error {
	if err := registry.Register(SinkTypeConsole, func(config map[string]any) (Sink, error) {
		return console.NewFactory()(config)
	}); err != nil {
		return err
	}
	if err := registry.Register(SinkTypeFile, func(config map[string]any) (Sink, error) {
		return file.NewFactory()(config)
	}); err != nil {
		return err
	}
	if err := registry.Register(SinkTypeWebhook, func(config map[string]any) (Sink, error) {
		return webhook.NewFactory()(config)
	}); err != nil {
		return err
	}
	if err := registry.Register(SinkTypePostgres, func(config map[string]any) (Sink, error) {
		return postgres.NewFactory()(config)
	}); err != nil {
		return err
	}
	return nil
}

// NewDefaultRegistry creates a registry with all built-in sinks
// registered.
func NewDefaultRegistry() (*Registry, error) {
	registry := NewRegistry()
	if err := RegisterBuiltinSinks(registry); err != nil {
		return nil, err
	}
	return registry, nil
}
