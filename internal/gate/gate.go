// Package gate implements the bounded admission primitive that caps how
// many task executions may be in flight at once.
package gate

import (
	"context"
	"errors"
	"sync"
)

// ErrInvalidCapacity is returned when the gate capacity is not positive.
var ErrInvalidCapacity = errors.New("gate capacity must be positive")

// Gate is a counting admission gate with capacity N. Acquire blocks until
// a slot is free; Release frees one. The number of holders never exceeds
// N, and admission is FIFO relative to arrival so no waiter starves.
//
// Releasing more times than acquired is a programming-contract violation
// and panics rather than silently corrupting the count.
type Gate struct {
	mu       sync.Mutex
	capacity int
	inFlight int
	peak     int
	waiters  []chan struct{}
}

// New creates a gate admitting at most capacity concurrent holders.
func New(capacity int) (*Gate, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &Gate{capacity: capacity}, nil
}

// Acquire blocks until a slot is free or ctx is done. On success the
// caller holds one slot and must call Release exactly once.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if g.inFlight < g.capacity && len(g.waiters) == 0 {
		g.grantLocked()
		g.mu.Unlock()
		return nil
	}

	// Queue behind earlier arrivals. The slot is handed over by Release
	// closing our channel.
	ready := make(chan struct{})
	g.waiters = append(g.waiters, ready)
	g.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, w := range g.waiters {
			if w == ready {
				g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
				g.mu.Unlock()
				return ctx.Err()
			}
		}
		// A slot was granted concurrently with cancellation; hand it back.
		g.releaseLocked()
		g.mu.Unlock()
		return ctx.Err()
	}
}

// TryAcquire acquires a slot without blocking. It fails if the gate is
// full or if earlier arrivals are still waiting.
func (g *Gate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight < g.capacity && len(g.waiters) == 0 {
		g.grantLocked()
		return true
	}
	return false
}

// Release frees one slot, waking the longest-waiting acquirer if any.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.releaseLocked()
}

// grantLocked admits the caller. Must be called with mu held.
func (g *Gate) grantLocked() {
	g.inFlight++
	if g.inFlight > g.peak {
		g.peak = g.inFlight
	}
}

// releaseLocked frees a slot or transfers it to the head waiter.
// Must be called with mu held.
func (g *Gate) releaseLocked() {
	if g.inFlight <= 0 {
		panic("gate: release without matching acquire")
	}
	if len(g.waiters) > 0 {
		// Transfer the slot directly; inFlight stays constant so the
		// holder count never exceeds capacity during handover.
		ready := g.waiters[0]
		g.waiters = g.waiters[1:]
		close(ready)
		return
	}
	g.inFlight--
}

// Capacity returns the configured concurrency cap.
func (g *Gate) Capacity() int {
	return g.capacity
}

// InFlight returns the current number of slot holders.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Peak returns the highest holder count observed so far.
func (g *Gate) Peak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

// Waiting returns the number of queued acquirers.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}
