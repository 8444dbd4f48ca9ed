package exq

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/exq/model/priority"
	"github.com/viant/exq/service/messaging/memory"
	"github.com/viant/exq/service/queue"
	"github.com/viant/exq/service/worker"
	"gopkg.in/yaml.v3"
)

// Config is a serialisable representation of the execution queue
// configuration. It can be populated from YAML; durations use Go duration
// strings such as "4s".
type Config struct {
	// CacheURL is the artifact cache location, any afs supported URL. The
	// shell worker backend requires a local path or a file:// URL.
	CacheURL string       `json:"cacheURL" yaml:"cacheURL"`
	Worker   WorkerConfig `json:"worker" yaml:"worker"`
	Queue    QueueConfig  `json:"queue" yaml:"queue"`
}

// WorkerConfig configures worker processes
type WorkerConfig struct {
	ProgramPath  string                `json:"programPath" yaml:"programPath"`
	Capacity     int                   `json:"capacity" yaml:"capacity"`
	SpawnTimeout time.Duration         `json:"spawnTimeout" yaml:"spawnTimeout"`
	NodeVersion  string                `json:"nodeVersion,omitempty" yaml:"nodeVersion,omitempty"`
	Security     worker.SecurityStatus `json:"security" yaml:"security"`
	PollInterval time.Duration         `json:"pollInterval" yaml:"pollInterval"`
}

// QueueConfig configures scheduling
type QueueConfig struct {
	MaxKeepWaiting   time.Duration  `json:"maxKeepWaiting" yaml:"maxKeepWaiting"`
	SpawnRetryDelay  time.Duration  `json:"spawnRetryDelay" yaml:"spawnRetryDelay"`
	MaxSpawnAttempts int            `json:"maxSpawnAttempts" yaml:"maxSpawnAttempts"`
	InboxSize        int            `json:"inboxSize" yaml:"inboxSize"`
	Fairness         FairnessConfig `json:"fairness" yaml:"fairness"`
	Removal          RemovalConfig  `json:"removal" yaml:"removal"`
}

// RemovalConfig configures how failed artifact removals are retried
type RemovalConfig struct {
	MaxRetries int           `json:"maxRetries" yaml:"maxRetries"`
	RetryDelay time.Duration `json:"retryDelay" yaml:"retryDelay"`
}

// FairnessConfig configures priority sharing; thresholds are keyed by priority name
type FairnessConfig struct {
	Window     int            `json:"window" yaml:"window"`
	Thresholds map[string]int `json:"thresholds" yaml:"thresholds"`
}

// DefaultConfig returns a Config populated with the queue package defaults.
// Callers may modify the returned struct before passing it to WithConfig.
func DefaultConfig() *Config {
	defaults := queue.DefaultConfig()
	removals := memory.DefaultConfig()
	thresholds := make(map[string]int, len(defaults.Fairness.Thresholds))
	for p, threshold := range defaults.Fairness.Thresholds {
		thresholds[p.String()] = threshold
	}
	return &Config{
		CacheURL: "/tmp/exq/cache",
		Worker: WorkerConfig{
			Capacity:     defaults.Capacity,
			SpawnTimeout: defaults.SpawnTimeout,
			PollInterval: 200 * time.Millisecond,
		},
		Queue: QueueConfig{
			MaxKeepWaiting:   defaults.MaxKeepWaiting,
			SpawnRetryDelay:  defaults.SpawnRetryDelay,
			MaxSpawnAttempts: defaults.MaxSpawnAttempts,
			InboxSize:        defaults.InboxSize,
			Fairness: FairnessConfig{
				Window:     defaults.Fairness.Window,
				Thresholds: thresholds,
			},
			Removal: RemovalConfig{
				MaxRetries: removals.MaxRetries,
				RetryDelay: removals.RetryDelay,
			},
		},
	}
}

// Validate returns an error describing the first invalid setting or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.CacheURL == "" {
		return fmt.Errorf("cacheURL was empty")
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker.pollInterval must be > 0")
	}
	if c.Queue.Removal.MaxRetries < 0 {
		return fmt.Errorf("queue.removal.maxRetries must be >= 0")
	}
	if c.Queue.Removal.RetryDelay < 0 {
		return fmt.Errorf("queue.removal.retryDelay must be >= 0")
	}
	config, err := c.QueueConfig()
	if err != nil {
		return err
	}
	return config.Validate()
}

// QueueConfig converts the file representation into queue.Config
func (c *Config) QueueConfig() (queue.Config, error) {
	thresholds := make(map[priority.Priority]int, len(c.Queue.Fairness.Thresholds))
	for name, threshold := range c.Queue.Fairness.Thresholds {
		p, err := priority.Parse(name)
		if err != nil {
			return queue.Config{}, fmt.Errorf("invalid fairness threshold: %w", err)
		}
		thresholds[p] = threshold
	}
	return queue.Config{
		ProgramPath:      c.Worker.ProgramPath,
		CachePath:        c.cachePath(),
		Capacity:         c.Worker.Capacity,
		SpawnTimeout:     c.Worker.SpawnTimeout,
		NodeVersion:      c.Worker.NodeVersion,
		Security:         c.Worker.Security,
		MaxKeepWaiting:   c.Queue.MaxKeepWaiting,
		SpawnRetryDelay:  c.Queue.SpawnRetryDelay,
		MaxSpawnAttempts: c.Queue.MaxSpawnAttempts,
		InboxSize:        c.Queue.InboxSize,
		Fairness: queue.Fairness{
			Window:     c.Queue.Fairness.Window,
			Thresholds: thresholds,
		},
	}, nil
}

// IsLocalCache reports whether CacheURL is on the local file system
func (c *Config) IsLocalCache() bool {
	return url.Scheme(c.CacheURL, file.Scheme) == file.Scheme
}

// cachePath returns the cache location handed to workers: a plain path for
// a local cache, CacheURL otherwise.
func (c *Config) cachePath() string {
	if c.IsLocalCache() {
		return url.Path(c.CacheURL)
	}
	return c.CacheURL
}

// RemovalQueueConfig returns the config of the artifact removal queue
func (c *Config) RemovalQueueConfig() memory.Config {
	return memory.Config{
		MaxRetries: c.Queue.Removal.MaxRetries,
		RetryDelay: c.Queue.Removal.RetryDelay,
		DeadLetter: true,
	}
}

// LoadConfig loads a YAML config from URL on top of DefaultConfig
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	data, err := afs.New().DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %v: %w", URL, err)
	}
	ret := DefaultConfig()
	if err = yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to decode config %v: %w", URL, err)
	}
	if err = ret.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %v: %w", URL, err)
	}
	return ret, nil
}
