package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"agentorch/internal/config"
	"agentorch/internal/controller"
	"agentorch/internal/report"
	"agentorch/internal/telemetry"
	"agentorch/pkg/logger"
)

var (
	flagConcurrency int
	flagIterations  int
	flagTasks       int
	flagOutFile     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a configured batch through the orchestrator",
	Long: `run builds the configured synthetic workload and drives it through
the gate-bounded dispatchers for the configured number of iterations.
Progress is checkpointed to the configured sinks; the terminal report is
written when the run completes, aborts or is cancelled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd.Context())
	},
}

func init() {
	runCmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "concurrency cap (overrides config)")
	runCmd.Flags().IntVar(&flagIterations, "iterations", 0, "number of passes (overrides config)")
	runCmd.Flags().IntVar(&flagTasks, "tasks", 0, "tasks per pass (overrides config)")
	runCmd.Flags().StringVar(&flagOutFile, "out", "", "also write checkpoints to this JSON file")
	rootCmd.AddCommand(runCmd)
}

func runBatch(parent context.Context) error {
	// Optional .env file, mirroring the AGENTORCH_* overrides.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg)
	if !debug && !quiet && logLevel == "" {
		logger.SetLevelFromString(cfg.Logging.Level)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InstallStdoutProvider(cfg.Telemetry.Interval.Std())
		if err != nil {
			return fmt.Errorf("install telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("telemetry shutdown: %v", err)
			}
		}()
		if metrics, err = telemetry.NewMetrics(); err != nil {
			return fmt.Errorf("create metrics: %w", err)
		}
	}

	registry, err := report.NewDefaultRegistry()
	if err != nil {
		return err
	}
	sinks := cfg.Sinks
	if flagOutFile != "" {
		sinks = append(sinks, report.SinkConfig{
			Type:    report.SinkTypeFile,
			Enabled: true,
			Config:  map[string]any{"path": flagOutFile},
		})
	}
	reports, err := report.NewManager(registry, sinks)
	if err != nil {
		return err
	}
	if err := reports.Open(ctx); err != nil {
		logger.Warn("some sinks unavailable: %v", err)
	}
	defer func() {
		if err := reports.Close(context.Background()); err != nil {
			logger.Warn("closing sinks: %v", err)
		}
	}()

	workload := buildWorkload(cfg.Workload)
	logger.Info("starting run: %d agents, %d iterations, %d tasks/iteration",
		cfg.Run.Concurrency, cfg.Run.Iterations, len(workload.tasks))

	ctl, err := controller.New(controller.Options{
		Concurrency:        cfg.Run.Concurrency,
		ShardSize:          cfg.Run.ShardSize,
		Iterations:         cfg.Run.Iterations,
		CheckpointInterval: cfg.Run.CheckpointInterval,
		TaskTimeout:        cfg.Run.TaskTimeout.Std(),
		MaxRetries:         cfg.Run.MaxRetries,
		RetryBackoff:       cfg.Run.RetryBackoff.Std(),
		AbortThreshold:     cfg.Run.AbortThreshold,
		Handler:            workload.handler,
		Batch:              controller.StaticBatch(workload.tasks),
		Reports:            reports,
		Metrics:            metrics,
	})
	if err != nil {
		return err
	}

	final, runErr := ctl.Run(ctx)
	logger.Info("run %s finished in state %s: %d/%d tasks completed",
		final.RunID, final.State, final.TasksCompleted, final.TasksProcessed)

	switch {
	case errors.Is(runErr, controller.ErrAborted):
		return fmt.Errorf("run %s aborted after %d of %d iterations",
			final.RunID, len(final.IterationRecords), final.Iterations)
	case runErr != nil:
		return fmt.Errorf("run %s cancelled: %w", final.RunID, runErr)
	}
	return nil
}

func applyFlagOverrides(cfg *config.Config) {
	if flagConcurrency > 0 {
		cfg.Run.Concurrency = flagConcurrency
	}
	if flagIterations > 0 {
		cfg.Run.Iterations = flagIterations
	}
	if flagTasks > 0 {
		cfg.Workload.Tasks = flagTasks
	}
}
