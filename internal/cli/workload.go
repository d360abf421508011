package cli

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"agentorch/internal/config"
	"agentorch/pkg/types"
)

// workload is the synthetic batch the run command drives through the
// orchestrator. The handler only simulates latency and failures; real
// deployments supply their own handler through the controller API.
type workload struct {
	tasks   []types.Task
	handler types.Handler
}

// buildWorkload creates cfg.Tasks tasks labelled round-robin with the
// configured categories. A seeded RNG decides up front which tasks fail,
// so a given seed and failure rate reproduce the same outcome mix and
// retries of a failing task keep failing, the way a genuinely broken
// task would.
func buildWorkload(cfg config.WorkloadConfig) workload {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	categories := cfg.Categories
	if len(categories) == 0 {
		categories = []string{"default"}
	}

	tasks := make([]types.Task, cfg.Tasks)
	failing := make(map[string]bool, cfg.Tasks)
	for i := range tasks {
		id := uuid.NewString()
		tasks[i] = types.Task{
			ID:       id,
			Category: categories[i%len(categories)],
			Payload:  i,
		}
		if rng.Float64() < cfg.FailureRate {
			failing[id] = true
		}
	}

	latency := cfg.Latency.Std()
	jitter := cfg.Jitter.Std()

	handler := func(ctx context.Context, task types.Task) error {
		delay := latency
		if jitter > 0 {
			delay += time.Duration(rand.Int63n(int64(jitter)))
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if failing[task.ID] {
			return fmt.Errorf("simulated failure for task %s", task.ID)
		}
		return nil
	}

	return workload{tasks: tasks, handler: handler}
}
