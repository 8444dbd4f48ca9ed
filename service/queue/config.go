package queue

import (
	"fmt"
	"time"

	"github.com/viant/exq/model/priority"
	"github.com/viant/exq/service/worker"
)

// Fairness configures how the backlog shares workers between priorities.
type Fairness struct {
	// Window is the number of dispatched jobs after which usage counters reset.
	Window int
	// Thresholds maps a priority to the percentage of dispatches it may take
	// among itself and all less urgent priorities. Missing priorities are
	// never considered fulfilled.
	Thresholds map[priority.Priority]int
}

// DefaultFairness returns the stock policy: disputes take up to 70%,
// approvals 80% of the remainder, backing is unconstrained. The window is
// roughly one block of throughput (6s block, 2 cores, 2s per job).
func DefaultFairness() Fairness {
	return Fairness{
		Window: 12,
		Thresholds: map[priority.Priority]int{
			priority.Dispute:            70,
			priority.Approval:           80,
			priority.BackingSystemParas: 100,
			priority.Backing:            100,
		},
	}
}

// Config represents execution queue configuration
type Config struct {
	// ProgramPath is the worker executable.
	ProgramPath string
	// CachePath is the artifact cache location passed to workers.
	CachePath string
	// Capacity is the maximum number of running plus spawning workers.
	Capacity int
	// SpawnTimeout bounds a single spawn attempt.
	SpawnTimeout time.Duration
	// NodeVersion, when set, must match the version reported by workers.
	NodeVersion string
	// Security is passed through to spawned workers.
	Security worker.SecurityStatus

	// MaxKeepWaiting is how long the eldest job of the selected priority may
	// wait for a compatible worker before the queue prefers kill-and-respawn
	// over holding out for a match. It should be greater than the minimal
	// execution timeout in use and less than the block time.
	MaxKeepWaiting time.Duration
	// SpawnRetryDelay is the pause between failed spawn attempts.
	SpawnRetryDelay time.Duration
	// MaxSpawnAttempts bounds spawn retries for one job; 0 retries forever.
	MaxSpawnAttempts int
	// InboxSize is the capacity of the enqueue channel.
	InboxSize int

	Fairness Fairness
}

// DefaultConfig returns the default execution queue configuration
func DefaultConfig() Config {
	return Config{
		Capacity:         2,
		SpawnTimeout:     3 * time.Second,
		MaxKeepWaiting:   4 * time.Second,
		SpawnRetryDelay:  3 * time.Second,
		MaxSpawnAttempts: 0,
		InboxSize:        20,
		Fairness:         DefaultFairness(),
	}
}

// Validate returns an error describing the first invalid setting.
func (c *Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be > 0, got %d", c.Capacity)
	}
	if c.SpawnTimeout <= 0 {
		return fmt.Errorf("spawnTimeout must be > 0")
	}
	if c.MaxKeepWaiting <= 0 {
		return fmt.Errorf("maxKeepWaiting must be > 0")
	}
	if c.SpawnRetryDelay < 0 {
		return fmt.Errorf("spawnRetryDelay must be >= 0")
	}
	if c.MaxSpawnAttempts < 0 {
		return fmt.Errorf("maxSpawnAttempts must be >= 0")
	}
	if c.InboxSize <= 0 {
		return fmt.Errorf("inboxSize must be > 0")
	}
	if c.Fairness.Window <= 0 {
		return fmt.Errorf("fairness.window must be > 0")
	}
	for p, threshold := range c.Fairness.Thresholds {
		if !p.IsValid() {
			return fmt.Errorf("fairness threshold for unknown %v", p)
		}
		if threshold <= 0 || threshold > 100 {
			return fmt.Errorf("fairness threshold for %v must be in (0, 100], got %d", p, threshold)
		}
	}
	return nil
}
