// Package postgres provides a Postgres sink for orchestrator status
// reports. Each checkpoint inserts one row, so the table keeps the full
// snapshot history of a run.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/lib/pq"

	"agentorch/pkg/types"
)

// Config holds configuration for the Postgres sink.
type Config struct {
	// DSN is the Postgres connection string.
	DSN string `yaml:"dsn"`
	// Table is the target table name (default status_reports).
	Table string `yaml:"table"`
}

// DefaultConfig returns the default Postgres sink configuration.
func DefaultConfig() *Config {
	return &Config{
		Table: "status_reports",
	}
}

// Sink inserts report snapshots into a Postgres table.
type Sink struct {
	config *Config
	db     *sql.DB
	mu     sync.Mutex
}

// New creates a Postgres sink.
func New(config *Config) (*Sink, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	if config.Table == "" {
		config.Table = "status_reports"
	}
	return &Sink{config: config}, nil
}

// NewFactory returns a factory for creating Postgres sinks from raw
// configuration.
func NewFactory() func(config map[string]any) (*Sink, error) {
	return func(config map[string]any) (*Sink, error) {
		cfg := DefaultConfig()
		if config != nil {
			if v, ok := config["dsn"].(string); ok {
				cfg.DSN = v
			}
			if v, ok := config["table"].(string); ok {
				cfg.Table = v
			}
		}
		return New(cfg)
	}
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "postgres"
}

// Open connects to the database and ensures the report table exists.
func (s *Sink) Open(ctx context.Context) error {
	db, err := sql.Open("postgres", s.config.DSN)
	if err != nil {
		return fmt.Errorf("open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id              BIGSERIAL PRIMARY KEY,
			run_id          TEXT        NOT NULL,
			state           TEXT        NOT NULL,
			tasks_processed BIGINT      NOT NULL,
			tasks_completed BIGINT      NOT NULL,
			tasks_failed    BIGINT      NOT NULL,
			report          JSONB       NOT NULL,
			generated_at    TIMESTAMPTZ NOT NULL
		)`, s.config.Table)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return fmt.Errorf("create report table: %w", err)
	}

	s.db = db
	return nil
}

// Write inserts one report snapshot.
func (s *Sink) Write(ctx context.Context, report *types.StatusReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return fmt.Errorf("sink is not open")
	}

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, state, tasks_processed, tasks_completed, tasks_failed, report, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, s.config.Table)
	if _, err := s.db.ExecContext(ctx, query,
		report.RunID, string(report.State),
		report.TasksProcessed, report.TasksCompleted, report.TasksFailed,
		body, report.GeneratedAt,
	); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Sink) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
