// Package types defines the core data structures for the agent-task
// orchestrator.
//
// This package contains all the fundamental types shared across the
// orchestrator, including:
//   - Task and handler definitions
//   - Per-attempt execution results
//   - Iteration records and cumulative status reports
//
// All types here are plain data with no behavior; the orchestrator run
// owns every instance exclusively.
package types
