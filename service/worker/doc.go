// Package worker defines the contract between the execution queue and the
// processes that run validation jobs. The queue never talks to a process
// directly: it spawns workers and starts work through an Interface
// implementation and tracks liveness through the returned Handle.
package worker
