// Package queue is the execution scheduler. A single actor goroutine owns
// the worker pool and the per-priority backlog: it accepts enqueue
// requests, matches jobs to long-lived worker processes, decides when to
// spawn or kill workers, applies a fairness policy across priority classes
// and converts worker outcomes into validation results.
//
// All mutable scheduling state is touched only from the actor goroutine.
// Spawns and executions run in their own goroutines and report back through
// a single event channel, one event at a time.
package queue
