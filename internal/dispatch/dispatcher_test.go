package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentorch/internal/gate"
	"agentorch/pkg/types"
)

func newGate(t *testing.T, capacity int) *gate.Gate {
	t.Helper()
	g, err := gate.New(capacity)
	require.NoError(t, err)
	return g
}

func makeTasks(n int) []types.Task {
	tasks := make([]types.Task, n)
	for i := range tasks {
		tasks[i] = types.Task{ID: fmt.Sprintf("task-%d", i)}
	}
	return tasks
}

// resultCollector gathers terminal results from concurrent dispatchers.
type resultCollector struct {
	mu      sync.Mutex
	results []types.ExecutionResult
}

func (c *resultCollector) record(res types.ExecutionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, res)
}

func (c *resultCollector) byStatus() map[types.ResultStatus]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make(map[types.ResultStatus]int)
	for _, res := range c.results {
		counts[res.Status]++
	}
	return counts
}

func TestNew_NilGate(t *testing.T) {
	_, err := New(nil, Config{})
	assert.ErrorIs(t, err, ErrNilGate)
}

func TestDispatcher_NilHandler(t *testing.T) {
	d, err := New(newGate(t, 1), Config{})
	require.NoError(t, err)
	assert.ErrorIs(t, d.Run(context.Background(), makeTasks(1), nil), ErrNilHandler)
}

func TestDispatcher_AllSucceed(t *testing.T) {
	var collector resultCollector
	d, err := New(newGate(t, 2), Config{OnResult: collector.record})
	require.NoError(t, err)

	handler := func(ctx context.Context, task types.Task) error { return nil }
	require.NoError(t, d.Run(context.Background(), makeTasks(5), handler))

	require.Len(t, collector.results, 5)
	for _, res := range collector.results {
		assert.Equal(t, types.StatusSuccess, res.Status)
		assert.Equal(t, 1, res.Attempt)
		assert.Empty(t, res.Err)
	}
}

func TestDispatcher_FailureCaptured(t *testing.T) {
	var collector resultCollector
	d, err := New(newGate(t, 1), Config{OnResult: collector.record})
	require.NoError(t, err)

	handler := func(ctx context.Context, task types.Task) error {
		return errors.New("boom")
	}
	require.NoError(t, d.Run(context.Background(), makeTasks(1), handler))

	require.Len(t, collector.results, 1)
	res := collector.results[0]
	assert.Equal(t, types.StatusFailure, res.Status)
	assert.Equal(t, "boom", res.Err)
}

func TestDispatcher_Timeout(t *testing.T) {
	var collector resultCollector
	d, err := New(newGate(t, 1), Config{
		TaskTimeout: 20 * time.Millisecond,
		OnResult:    collector.record,
	})
	require.NoError(t, err)

	handler := func(ctx context.Context, task types.Task) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	}
	require.NoError(t, d.Run(context.Background(), makeTasks(1), handler))

	require.Len(t, collector.results, 1)
	res := collector.results[0]
	assert.Equal(t, types.StatusTimedOut, res.Status)
	assert.Contains(t, res.Err, "timeout")
}

func TestDispatcher_RetryThenSuccess(t *testing.T) {
	var (
		collector resultCollector
		attempts  atomic.Int32
	)
	d, err := New(newGate(t, 1), Config{
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		OnResult:     collector.record,
	})
	require.NoError(t, err)

	handler := func(ctx context.Context, task types.Task) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}
	require.NoError(t, d.Run(context.Background(), makeTasks(1), handler))

	require.Len(t, collector.results, 1)
	res := collector.results[0]
	assert.Equal(t, types.StatusSuccess, res.Status)
	assert.Equal(t, 2, res.Attempt)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestDispatcher_RetriesExhausted(t *testing.T) {
	var (
		collector resultCollector
		attempts  []types.ExecutionResult
	)
	d, err := New(newGate(t, 1), Config{
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		OnResult:     collector.record,
		OnAttempt: func(res types.ExecutionResult) {
			attempts = append(attempts, res)
		},
	})
	require.NoError(t, err)

	handler := func(ctx context.Context, task types.Task) error {
		return errors.New("still broken")
	}
	require.NoError(t, d.Run(context.Background(), makeTasks(1), handler))

	// Three attempts, exactly one terminal result.
	assert.Len(t, attempts, 3)
	require.Len(t, collector.results, 1)
	res := collector.results[0]
	assert.Equal(t, types.StatusFailedFinal, res.Status)
	assert.Equal(t, 3, res.Attempt)
}

func TestDispatcher_NoRetriesKeepsPlainFailure(t *testing.T) {
	// With retries disabled, a failed task stays "failure" and is never
	// promoted to the exhausted-retries status.
	var collector resultCollector
	d, err := New(newGate(t, 1), Config{OnResult: collector.record})
	require.NoError(t, err)

	handler := func(ctx context.Context, task types.Task) error {
		return errors.New("broken")
	}
	require.NoError(t, d.Run(context.Background(), makeTasks(1), handler))

	require.Len(t, collector.results, 1)
	assert.Equal(t, types.StatusFailure, collector.results[0].Status)
}

func TestDispatcher_PanicBecomesFailure(t *testing.T) {
	var collector resultCollector
	d, err := New(newGate(t, 1), Config{OnResult: collector.record})
	require.NoError(t, err)

	handler := func(ctx context.Context, task types.Task) error {
		panic("handler exploded")
	}
	require.NoError(t, d.Run(context.Background(), makeTasks(1), handler))

	require.Len(t, collector.results, 1)
	res := collector.results[0]
	assert.Equal(t, types.StatusFailure, res.Status)
	assert.Contains(t, res.Err, "handler panic")
}

func TestDispatcher_PriorityOrder(t *testing.T) {
	var order []string
	d, err := New(newGate(t, 1), Config{})
	require.NoError(t, err)

	tasks := []types.Task{
		{ID: "low-a", Priority: 1},
		{ID: "high", Priority: 10},
		{ID: "low-b", Priority: 1},
		{ID: "mid", Priority: 5},
	}
	handler := func(ctx context.Context, task types.Task) error {
		order = append(order, task.ID)
		return nil
	}
	require.NoError(t, d.Run(context.Background(), tasks, handler))

	// Stable sort: equal priorities keep submission order.
	assert.Equal(t, []string{"high", "mid", "low-a", "low-b"}, order)
	// The caller's slice is untouched.
	assert.Equal(t, "low-a", tasks[0].ID)
}

func TestDispatcher_ReleasesSlotAfterFailure(t *testing.T) {
	g := newGate(t, 1)
	d, err := New(g, Config{})
	require.NoError(t, err)

	handler := func(ctx context.Context, task types.Task) error {
		return errors.New("boom")
	}
	require.NoError(t, d.Run(context.Background(), makeTasks(3), handler))
	assert.Equal(t, 0, g.InFlight())
}

func TestDispatcher_CancelledBeforeRun(t *testing.T) {
	var collector resultCollector
	d, err := New(newGate(t, 1), Config{OnResult: collector.record})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	handler := func(ctx context.Context, task types.Task) error { return nil }
	err = d.Run(ctx, makeTasks(3), handler)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, collector.results)
}

func TestDispatchers_SharedGateBoundsConcurrency(t *testing.T) {
	const (
		capacity    = 3
		dispatchers = 4
		perShard    = 5
	)
	g := newGate(t, capacity)

	var (
		collector resultCollector
		current   atomic.Int32
		observed  atomic.Int32
		wg        sync.WaitGroup
	)
	handler := func(ctx context.Context, task types.Task) error {
		n := current.Add(1)
		for {
			p := observed.Load()
			if n <= p || observed.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		current.Add(-1)
		return nil
	}

	for i := 0; i < dispatchers; i++ {
		d, err := New(g, Config{OnResult: collector.record})
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.Run(context.Background(), makeTasks(perShard), handler))
		}()
	}
	wg.Wait()

	assert.Len(t, collector.results, dispatchers*perShard)
	assert.LessOrEqual(t, int(observed.Load()), capacity)
	assert.LessOrEqual(t, g.Peak(), capacity)
	assert.Equal(t, 0, g.InFlight())
	counts := collector.byStatus()
	assert.Equal(t, dispatchers*perShard, counts[types.StatusSuccess])
}
