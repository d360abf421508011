// Package telemetry wires OpenTelemetry metric instruments for the
// orchestrator: task outcome counters and the in-flight gauge used to
// observe concurrency against the configured cap.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"agentorch/pkg/types"
)

const instrumentationName = "agentorch/orchestrator"

// Metrics bundles the orchestrator's metric instruments. A nil *Metrics
// is never dereferenced by callers; components treat it as optional.
type Metrics struct {
	tasksTotal         metric.Int64Counter
	tasksSucceeded     metric.Int64Counter
	tasksFailed        metric.Int64Counter
	tasksTimedOut      metric.Int64Counter
	tasksInFlight      metric.Int64UpDownCounter
	checkpointFailures metric.Int64Counter
}

// NewMetrics creates the orchestrator instruments on the globally
// registered meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	m := &Metrics{}
	var err error

	if m.tasksTotal, err = meter.Int64Counter("orchestrator_tasks_total",
		metric.WithDescription("Total number of tasks reaching a terminal state"),
		metric.WithUnit("{task}")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	if m.tasksSucceeded, err = meter.Int64Counter("orchestrator_tasks_succeeded",
		metric.WithDescription("Number of tasks that completed successfully"),
		metric.WithUnit("{task}")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	if m.tasksFailed, err = meter.Int64Counter("orchestrator_tasks_failed",
		metric.WithDescription("Number of tasks that failed"),
		metric.WithUnit("{task}")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	if m.tasksTimedOut, err = meter.Int64Counter("orchestrator_tasks_timed_out",
		metric.WithDescription("Number of tasks that exceeded their timeout"),
		metric.WithUnit("{task}")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	if m.tasksInFlight, err = meter.Int64UpDownCounter("orchestrator_tasks_in_flight",
		metric.WithDescription("Tasks currently holding a gate slot"),
		metric.WithUnit("{task}")); err != nil {
		return nil, fmt.Errorf("create gauge: %w", err)
	}
	if m.checkpointFailures, err = meter.Int64Counter("orchestrator_checkpoint_failures",
		metric.WithDescription("Checkpoint persistence failures"),
		metric.WithUnit("{write}")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	return m, nil
}

// TaskStarted marks one task entering execution.
func (m *Metrics) TaskStarted(ctx context.Context) {
	m.tasksInFlight.Add(ctx, 1)
}

// TaskDone marks one task leaving execution.
func (m *Metrics) TaskDone(ctx context.Context) {
	m.tasksInFlight.Add(ctx, -1)
}

// TaskFinished counts one terminal task outcome.
func (m *Metrics) TaskFinished(ctx context.Context, status types.ResultStatus) {
	m.tasksTotal.Add(ctx, 1)
	switch status {
	case types.StatusSuccess:
		m.tasksSucceeded.Add(ctx, 1)
	case types.StatusTimedOut:
		m.tasksTimedOut.Add(ctx, 1)
	default:
		m.tasksFailed.Add(ctx, 1)
	}
}

// CheckpointFailed counts one failed checkpoint write.
func (m *Metrics) CheckpointFailed(ctx context.Context) {
	m.checkpointFailures.Add(ctx, 1)
}

// InstallStdoutProvider registers a periodic stdout metric exporter as
// the global meter provider and returns its shutdown function.
func InstallStdoutProvider(interval time.Duration) (func(context.Context) error, error) {
	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("create stdout metric exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)),
		),
	)
	otel.SetMeterProvider(provider)
	return provider.Shutdown, nil
}
