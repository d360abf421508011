// Package aggregate accumulates per-task outcomes into iteration records
// and cumulative status reports.
package aggregate

import (
	"errors"
	"sync"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"

	"agentorch/pkg/types"
)

var (
	// ErrIterationOpen is returned when an iteration is started while the
	// previous one has not been finished.
	ErrIterationOpen = errors.New("previous iteration is still open")

	// ErrNoIteration is returned when finishing without an open iteration.
	ErrNoIteration = errors.New("no open iteration")
)

// Durations are tracked in microseconds, up to one hour per task.
const maxTrackableMicros = int64(time.Hour / time.Microsecond)

// Options configure an Aggregator for one orchestrator run.
type Options struct {
	RunID             string
	ConcurrencyCap    int
	Iterations        int
	TasksPerIteration int
}

// Aggregator maintains running totals across iterations. All mutating
// methods are safe for concurrent use by dispatch goroutines; Snapshot
// returns an immutable report computed from current totals.
//
// Recording after Finalize is a programming-contract violation and
// panics: the terminal report must never drift from frozen totals.
type Aggregator struct {
	mu   sync.Mutex
	opts Options

	records []types.IterationRecord
	current *types.IterationRecord

	completed int
	failed    int
	timedOut  int

	categories map[string]types.CategoryTotals
	hist       *hdrhistogram.Histogram

	peakConcurrency int
	startedAt       time.Time
	finalized       bool
}

// New creates an aggregator for a run described by opts.
func New(opts Options) *Aggregator {
	return &Aggregator{
		opts:       opts,
		categories: make(map[string]types.CategoryTotals),
		hist:       hdrhistogram.New(1, maxTrackableMicros, 3),
	}
}

// StartIteration opens the record for pass number with total tasks.
func (a *Aggregator) StartIteration(number, total int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		panic("aggregate: start iteration after finalize")
	}
	if a.current != nil {
		return ErrIterationOpen
	}
	now := time.Now()
	if a.startedAt.IsZero() {
		a.startedAt = now
	}
	a.current = &types.IterationRecord{
		Number:     number,
		TasksTotal: total,
		StartedAt:  now,
	}
	return nil
}

// Record adds one terminal task outcome to the running totals. Exactly
// one terminal result per task reaches this method; retried attempts are
// resolved by the dispatcher beforehand.
func (a *Aggregator) Record(res types.ExecutionResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		panic("aggregate: record after finalize")
	}
	if a.current == nil {
		panic("aggregate: record without an open iteration")
	}

	cat := a.categories[res.Category]
	switch res.Status {
	case types.StatusSuccess:
		a.completed++
		a.current.TasksCompleted++
		cat.Completed++
	case types.StatusTimedOut:
		a.timedOut++
		a.current.TasksTimedOut++
		cat.TimedOut++
	default: // StatusFailure, StatusFailedFinal
		a.failed++
		a.current.TasksFailed++
		cat.Failed++
	}
	a.categories[res.Category] = cat

	micros := res.Duration.Microseconds()
	if micros < 1 {
		micros = 1
	} else if micros > maxTrackableMicros {
		micros = maxTrackableMicros
	}
	// RecordValue only fails for values outside the clamped range.
	_ = a.hist.RecordValue(micros)
}

// FinishIteration closes the open record, computes its throughput and
// returns the immutable result.
func (a *Aggregator) FinishIteration() (types.IterationRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil {
		return types.IterationRecord{}, ErrNoIteration
	}
	rec := *a.current
	rec.CompletedAt = time.Now()
	rec.Elapsed = rec.CompletedAt.Sub(rec.StartedAt)
	if secs := rec.Elapsed.Seconds(); secs > 0 {
		rec.Throughput = float64(rec.TasksCompleted+rec.TasksFailed+rec.TasksTimedOut) / secs
	}
	a.records = append(a.records, rec)
	a.current = nil
	return rec, nil
}

// SetPeakConcurrency records the highest observed in-flight count.
func (a *Aggregator) SetPeakConcurrency(peak int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if peak > a.peakConcurrency {
		a.peakConcurrency = peak
	}
}

// Snapshot returns an immutable report of the current totals, stamped
// with the given run state.
func (a *Aggregator) Snapshot(state types.RunState) types.StatusReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reportLocked(state)
}

// Finalize produces the terminal report and freezes further mutation.
func (a *Aggregator) Finalize(state types.RunState) types.StatusReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalized = true
	return a.reportLocked(state)
}

// Finalized reports whether Finalize has been called.
func (a *Aggregator) Finalized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finalized
}

func (a *Aggregator) reportLocked(state types.RunState) types.StatusReport {
	now := time.Now()
	processed := a.completed + a.failed + a.timedOut

	report := types.StatusReport{
		RunID:             a.opts.RunID,
		State:             state,
		TotalAgents:       a.opts.ConcurrencyCap,
		Iterations:        a.opts.Iterations,
		TasksPerIteration: a.opts.TasksPerIteration,
		TasksProcessed:    processed,
		TasksCompleted:    a.completed,
		TasksFailed:       a.failed,
		TasksTimedOut:     a.timedOut,
		PeakConcurrency:   a.peakConcurrency,
		StartedAt:         a.startedAt,
		GeneratedAt:       now,
	}

	if expected := a.opts.Iterations * a.opts.TasksPerIteration; expected > 0 {
		report.CompletionPercent = 100 * float64(processed) / float64(expected)
	}
	if !a.startedAt.IsZero() {
		if secs := now.Sub(a.startedAt).Seconds(); secs > 0 {
			report.Throughput = float64(processed) / secs
		}
	}

	if a.hist.TotalCount() > 0 {
		report.Durations = &types.DurationStats{
			MinMs: float64(a.hist.Min()) / 1000,
			MaxMs: float64(a.hist.Max()) / 1000,
			AvgMs: a.hist.Mean() / 1000,
			P50Ms: float64(a.hist.ValueAtQuantile(50)) / 1000,
			P90Ms: float64(a.hist.ValueAtQuantile(90)) / 1000,
			P95Ms: float64(a.hist.ValueAtQuantile(95)) / 1000,
			P99Ms: float64(a.hist.ValueAtQuantile(99)) / 1000,
		}
	}

	if len(a.categories) > 0 {
		report.Categories = make(map[string]types.CategoryTotals, len(a.categories))
		for name, totals := range a.categories {
			report.Categories[name] = totals
		}
	}

	report.IterationRecords = make([]types.IterationRecord, len(a.records))
	copy(report.IterationRecords, a.records)

	return report
}
