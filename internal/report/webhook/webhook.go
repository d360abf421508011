// Package webhook provides a webhook sink for orchestrator status
// reports.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"agentorch/pkg/types"
)

// Config holds configuration for the webhook sink.
type Config struct {
	// URL is the webhook endpoint URL.
	URL string `yaml:"url"`
	// Method is the HTTP method (default POST).
	Method string `yaml:"method"`
	// Headers are additional HTTP headers.
	Headers map[string]string `yaml:"headers,omitempty"`
	// RetryAttempts is the number of retry attempts on failure.
	RetryAttempts int `yaml:"retry_attempts"`
	// RetryDelay is the delay between retry attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the default webhook sink configuration.
func DefaultConfig() *Config {
	return &Config{
		Method:        http.MethodPost,
		Headers:       make(map[string]string),
		RetryAttempts: 3,
		RetryDelay:    time.Second,
		Timeout:       10 * time.Second,
	}
}

// Sink POSTs report snapshots to a webhook endpoint.
type Sink struct {
	config *Config
	client *http.Client
}

// New creates a webhook sink.
func New(config *Config) (*Sink, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if config.Method == "" {
		config.Method = http.MethodPost
	}
	return &Sink{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

// NewFactory returns a factory for creating webhook sinks from raw
// configuration.
func NewFactory() func(config map[string]any) (*Sink, error) {
	return func(config map[string]any) (*Sink, error) {
		cfg := DefaultConfig()
		if config != nil {
			if v, ok := config["url"].(string); ok {
				cfg.URL = v
			}
			if v, ok := config["method"].(string); ok {
				cfg.Method = v
			}
			if v, ok := config["retry_attempts"].(int); ok {
				cfg.RetryAttempts = v
			}
			if v, ok := config["retry_delay"].(string); ok {
				if d, err := time.ParseDuration(v); err == nil {
					cfg.RetryDelay = d
				}
			}
			if v, ok := config["timeout"].(string); ok {
				if d, err := time.ParseDuration(v); err == nil {
					cfg.Timeout = d
				}
			}
			if v, ok := config["headers"].(map[string]any); ok {
				for key, val := range v {
					if str, ok := val.(string); ok {
						cfg.Headers[key] = str
					}
				}
			}
		}
		return New(cfg)
	}
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "webhook"
}

// Open prepares the sink.
func (s *Sink) Open(ctx context.Context) error {
	return nil
}

// Write sends one report snapshot, retrying transient delivery failures.
func (s *Sink) Write(ctx context.Context, report *types.StatusReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	attempts := s.config.RetryAttempts + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = s.send(ctx, payload); lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.config.RetryDelay):
		}
	}
	return fmt.Errorf("webhook delivery failed after %d attempts: %w", attempts, lastErr)
}

func (s *Sink) send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, s.config.Method, s.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, val := range s.config.Headers {
		req.Header.Set(key, val)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Close releases the sink.
func (s *Sink) Close(ctx context.Context) error {
	s.client.CloseIdleConnections()
	return nil
}
