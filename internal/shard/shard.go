// Package shard splits large task batches into bounded-size shards to
// control memory and dispatch granularity.
package shard

import (
	"errors"

	"agentorch/pkg/types"
)

// ErrInvalidSize is returned when the shard size is not positive.
var ErrInvalidSize = errors.New("shard size must be positive")

// Split divides tasks into ordered shards of at most size tasks each,
// preserving the relative order of the input. It is deterministic and
// side-effect free: shards alias the input slice and are never mutated.
//
// An empty input yields zero shards rather than an error; callers that
// require a non-empty batch must check before calling.
func Split(tasks []types.Task, size int) ([][]types.Task, error) {
	if size < 1 {
		return nil, ErrInvalidSize
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	shards := make([][]types.Task, 0, (len(tasks)+size-1)/size)
	for start := 0; start < len(tasks); start += size {
		end := start + size
		if end > len(tasks) {
			end = len(tasks)
		}
		shards = append(shards, tasks[start:end])
	}
	return shards, nil
}

// Count returns the number of shards Split would produce without
// building them.
func Count(total, size int) int {
	if size < 1 || total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}
