package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"agentorch/internal/report"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10, cfg.Run.Concurrency)
	assert.Equal(t, 25, cfg.Run.ShardSize)
	assert.Equal(t, 30*time.Second, cfg.Run.TaskTimeout.Std())
	assert.Equal(t, 0.5, cfg.Run.AbortThreshold)
	require.Len(t, cfg.Sinks, 1)
	assert.Equal(t, report.SinkTypeConsole, cfg.Sinks[0].Type)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Run, cfg.Run)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
run:
  concurrency: 4
  shard_size: 8
  iterations: 3
  checkpoint_interval: 2
  task_timeout: 5s
  max_retries: 1
  retry_backoff: 50ms
  abort_threshold: 0.25
workload:
  tasks: 40
  categories: [crawl, index]
  latency: 5ms
  failure_rate: 0.1
  seed: 42
sinks:
  - type: console
    enabled: true
  - type: file
    enabled: true
    config:
      path: /tmp/report.json
logging:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Run.Concurrency)
	assert.Equal(t, 8, cfg.Run.ShardSize)
	assert.Equal(t, 3, cfg.Run.Iterations)
	assert.Equal(t, 2, cfg.Run.CheckpointInterval)
	assert.Equal(t, 5*time.Second, cfg.Run.TaskTimeout.Std())
	assert.Equal(t, 1, cfg.Run.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.Run.RetryBackoff.Std())
	assert.Equal(t, 0.25, cfg.Run.AbortThreshold)

	assert.Equal(t, 40, cfg.Workload.Tasks)
	assert.Equal(t, []string{"crawl", "index"}, cfg.Workload.Categories)
	assert.Equal(t, 0.1, cfg.Workload.FailureRate)
	assert.Equal(t, int64(42), cfg.Workload.Seed)

	require.Len(t, cfg.Sinks, 2)
	assert.Equal(t, report.SinkTypeFile, cfg.Sinks[1].Type)
	assert.Equal(t, "/tmp/report.json", cfg.Sinks[1].Config["path"])

	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "run: [not a map")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AGENTORCH_CONCURRENCY", "7")
	t.Setenv("AGENTORCH_TASK_TIMEOUT", "2s")
	t.Setenv("AGENTORCH_ABORT_THRESHOLD", "0.9")
	t.Setenv("AGENTORCH_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Run.Concurrency)
	assert.Equal(t, 2*time.Second, cfg.Run.TaskTimeout.Std())
	assert.Equal(t, 0.9, cfg.Run.AbortThreshold)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero concurrency", func(c *Config) { c.Run.Concurrency = 0 }, "run.concurrency"},
		{"zero shard size", func(c *Config) { c.Run.ShardSize = 0 }, "run.shard_size"},
		{"zero iterations", func(c *Config) { c.Run.Iterations = 0 }, "run.iterations"},
		{"zero checkpoint interval", func(c *Config) { c.Run.CheckpointInterval = 0 }, "run.checkpoint_interval"},
		{"negative timeout", func(c *Config) { c.Run.TaskTimeout = Duration(-time.Second) }, "run.task_timeout"},
		{"negative retries", func(c *Config) { c.Run.MaxRetries = -1 }, "run.max_retries"},
		{"threshold above one", func(c *Config) { c.Run.AbortThreshold = 1.5 }, "run.abort_threshold"},
		{"negative tasks", func(c *Config) { c.Workload.Tasks = -1 }, "workload.tasks"},
		{"failure rate above one", func(c *Config) { c.Workload.FailureRate = 2 }, "workload.failure_rate"},
		{"missing sink type", func(c *Config) { c.Sinks = []report.SinkConfig{{Enabled: true}} }, "type is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDuration_Unmarshal(t *testing.T) {
	var d Duration
	require.NoError(t, yaml.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, d.Std())

	require.NoError(t, yaml.Unmarshal([]byte(`1000000000`), &d))
	assert.Equal(t, time.Second, d.Std())

	err := yaml.Unmarshal([]byte(`"not a duration"`), &d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestDuration_MarshalRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, "1m30s\n", string(out))
}
