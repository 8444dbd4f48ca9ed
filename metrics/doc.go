// Package metrics keeps aggregated counters for an execution queue: jobs
// enqueued and finished, worker spawns and retirements, executions per
// priority and cumulative queueing and execution time. Counters are updated
// by the queue actor and may be read concurrently.
package metrics
