// Package file provides a JSON file sink for orchestrator status
// reports. Each checkpoint atomically replaces the previous snapshot, so
// a partially written report is never observable as a complete one.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ohler55/ojg/oj"

	"agentorch/pkg/types"
)

// Config holds configuration for the file sink.
type Config struct {
	// Path is the checkpoint file path.
	Path string `yaml:"path"`
	// Indent is the JSON indent width; zero emits compact JSON.
	Indent int `yaml:"indent"`
}

// DefaultConfig returns the default file sink configuration.
func DefaultConfig() *Config {
	return &Config{
		Path:   "status-report.json",
		Indent: 2,
	}
}

// Sink writes report snapshots to a single JSON file using a
// write-to-temp-then-rename discipline.
type Sink struct {
	config *Config
	mu     sync.Mutex
}

// New creates a file sink.
func New(config *Config) *Sink {
	if config == nil {
		config = DefaultConfig()
	}
	return &Sink{config: config}
}

// NewFactory returns a factory for creating file sinks from raw
// configuration.
func NewFactory() func(config map[string]any) (*Sink, error) {
	return func(config map[string]any) (*Sink, error) {
		cfg := DefaultConfig()
		if config != nil {
			if v, ok := config["path"].(string); ok {
				cfg.Path = v
			}
			if v, ok := config["indent"].(int); ok {
				cfg.Indent = v
			}
		}
		return New(cfg), nil
	}
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "file"
}

// Open ensures the target directory exists.
func (s *Sink) Open(ctx context.Context) error {
	dir := filepath.Dir(s.config.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	return nil
}

// Write atomically replaces the checkpoint file with the new snapshot.
func (s *Sink) Write(ctx context.Context, report *types.StatusReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := oj.Marshal(report, s.config.Indent)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	dir := filepath.Dir(s.config.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.config.Path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp report file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp report file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp report file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp report file: %w", err)
	}

	if err := os.Rename(tmpName, s.config.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace report file: %w", err)
	}
	return nil
}

// Close releases the sink.
func (s *Sink) Close(ctx context.Context) error {
	return nil
}

// Path returns the checkpoint file path.
func (s *Sink) Path() string {
	return s.config.Path
}
