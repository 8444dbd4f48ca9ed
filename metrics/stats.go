package metrics

import (
	"sync"
	"time"

	"github.com/viant/exq/model/priority"
)

// Delta represents an incremental counter change emitted by the queue.
type Delta struct {
	Enqueued      int
	Finished      int
	Failed        int
	SpawnsBegun   int
	Spawned       int
	SpawnFailures int
	Retired       int
}

// Stats keeps aggregated queue counters. It is safe for concurrent use and
// every method is a no-op on a nil receiver.
type Stats struct {
	StartedAt time.Time

	Enqueued      int
	Finished      int
	Failed        int
	SpawnsBegun   int
	Spawned       int
	SpawnFailures int
	Retired       int

	// Executions counts dispatched jobs per priority class.
	Executions [priority.Count]int

	QueuedTime    time.Duration
	ExecutionTime time.Duration
	MaxQueuedTime time.Duration

	// Pending and Running are gauges refreshed by the queue after every event.
	Pending [priority.Count]int
	Running int
	Idle    int

	mu       sync.Mutex
	onChange func(Snapshot)
}

// Snapshot is a read-only copy of Stats.
type Snapshot struct {
	StartedAt     time.Time
	Enqueued      int
	Finished      int
	Failed        int
	SpawnsBegun   int
	Spawned       int
	SpawnFailures int
	Retired       int
	Executions    [priority.Count]int
	QueuedTime    time.Duration
	ExecutionTime time.Duration
	MaxQueuedTime time.Duration
	Pending       [priority.Count]int
	Running       int
	Idle          int
}

// New creates stats with the supplied change callback (may be nil).
func New(onChange func(Snapshot)) *Stats {
	return &Stats{StartedAt: time.Now(), onChange: onChange}
}

// Update applies the supplied delta.
func (s *Stats) Update(d Delta) {
	s.apply(func() {
		s.Enqueued += d.Enqueued
		s.Finished += d.Finished
		s.Failed += d.Failed
		s.SpawnsBegun += d.SpawnsBegun
		s.Spawned += d.Spawned
		s.SpawnFailures += d.SpawnFailures
		s.Retired += d.Retired
	})
}

// OnExecutePriority records a job of class p leaving the unscheduled queue.
func (s *Stats) OnExecutePriority(p priority.Priority) {
	if !p.IsValid() {
		return
	}
	s.apply(func() { s.Executions[p]++ })
}

// ObserveQueuedTime records how long a job waited before assignment.
func (s *Stats) ObserveQueuedTime(d time.Duration) {
	s.apply(func() {
		s.QueuedTime += d
		if d > s.MaxQueuedTime {
			s.MaxQueuedTime = d
		}
	})
}

// ObserveExecutionTime records how long a job was executing.
func (s *Stats) ObserveExecutionTime(d time.Duration) {
	s.apply(func() { s.ExecutionTime += d })
}

// SetGauges refreshes the pool and backlog gauges.
func (s *Stats) SetGauges(pending [priority.Count]int, running, idle int) {
	s.apply(func() {
		s.Pending = pending
		s.Running = running
		s.Idle = idle
	})
}

func (s *Stats) apply(fn func()) {
	if s == nil {
		return
	}
	s.mu.Lock()
	fn()
	snapshot := s.snapshot()
	cb := s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy suitable for read-only inspection.
func (s *Stats) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Stats) snapshot() Snapshot {
	return Snapshot{
		StartedAt:     s.StartedAt,
		Enqueued:      s.Enqueued,
		Finished:      s.Finished,
		Failed:        s.Failed,
		SpawnsBegun:   s.SpawnsBegun,
		Spawned:       s.Spawned,
		SpawnFailures: s.SpawnFailures,
		Retired:       s.Retired,
		Executions:    s.Executions,
		QueuedTime:    s.QueuedTime,
		ExecutionTime: s.ExecutionTime,
		MaxQueuedTime: s.MaxQueuedTime,
		Pending:       s.Pending,
		Running:       s.Running,
		Idle:          s.Idle,
	}
}

// OnChange registers a callback invoked outside the lock after every
// update. Passing nil disables the callback.
func (s *Stats) OnChange(cb func(Snapshot)) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.onChange = cb
	s.mu.Unlock()
}

// AvgQueuedTime returns the mean wait before assignment.
func (s Snapshot) AvgQueuedTime() time.Duration {
	total := 0
	for _, n := range s.Executions {
		total += n
	}
	if total == 0 {
		return 0
	}
	return s.QueuedTime / time.Duration(total)
}

// InFlightSpawns returns spawns begun but not yet completed or abandoned.
func (s Snapshot) InFlightSpawns() int {
	return s.SpawnsBegun - s.Spawned - s.SpawnFailures
}
