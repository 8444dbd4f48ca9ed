package exq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/viant/afs"
	"github.com/viant/exq/metrics"
	"github.com/viant/exq/model/artifact"
	"github.com/viant/exq/model/params"
	"github.com/viant/exq/model/priority"
	"github.com/viant/exq/model/validation"
	cache "github.com/viant/exq/service/artifact"
	"github.com/viant/exq/service/messaging"
	"github.com/viant/exq/service/messaging/memory"
	"github.com/viant/exq/service/queue"
	"github.com/viant/exq/service/worker"
	"github.com/viant/exq/service/worker/shell"
)

// ErrNotStarted is returned by Shutdown when Start was not called
var ErrNotStarted = errors.New("service not started")

// Service represents the execution queue facade
type Service struct {
	config        *Config
	logger        zerolog.Logger
	backend       worker.Interface
	fs            afs.Service
	statsListener func(metrics.Snapshot)

	cache *cache.Cache
	stats *metrics.Stats
	queue *queue.Service

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// ExecuteRequest describes a job for Execute
type ExecuteRequest struct {
	Artifact       artifact.ID
	ExecTimeout    time.Duration
	Params         []byte
	ExecutorParams params.ExecutorParams
	Priority       priority.Priority
}

// New creates a service
func New(options ...Option) (*Service, error) {
	ret := &Service{
		logger: zlog.Logger.With().Str("component", "exq").Logger(),
	}
	for _, option := range options {
		option(ret)
	}
	if err := ret.init(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Service) init() error {
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if s.fs == nil {
		s.fs = afs.New()
	}
	var err error
	if s.cache, err = cache.New(context.Background(), s.config.CacheURL, s.fs); err != nil {
		return err
	}
	if s.backend == nil {
		if !s.config.IsLocalCache() {
			return fmt.Errorf("shell workers require a local cache, but cacheURL was %v", s.config.CacheURL)
		}
		s.backend = shell.New(
			shell.WithLogger(s.logger.With().Str("component", "shell-worker").Logger()),
			shell.WithPollInterval(s.config.Worker.PollInterval))
	}
	s.stats = metrics.New(s.statsListener)
	queueConfig, err := s.config.QueueConfig()
	if err != nil {
		return err
	}
	s.queue, err = queue.New(s.backend, queueConfig,
		queue.WithLogger(s.logger.With().Str("component", "execute-queue").Logger()),
		queue.WithStats(s.stats),
		queue.WithRemovals(memory.NewQueue[queue.RemoveArtifact](s.config.RemovalQueueConfig())))
	return err
}

// Start runs the queue and the artifact removal loop in the background
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return queue.ErrStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.queue.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("execute queue terminated")
		}
	}()
	go func() {
		defer wg.Done()
		s.serveRemovals(runCtx)
	}()
	go func() {
		wg.Wait()
		close(s.done)
	}()
	return nil
}

// Shutdown stops the queue and waits until it terminates or ctx is done
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return ErrNotStarted
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// serveRemovals removes artifacts the workers could not instantiate. A
// removal is confirmed to the queue only once the artifact is gone; failed
// removals are retried until the removal queue gives up on them.
func (s *Service) serveRemovals(ctx context.Context) {
	removals := s.queue.Removals()
	for {
		msg, err := removals.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn().Err(err).Msg("failed to consume artifact removal")
			continue
		}
		removal := msg.T()
		if err = s.cache.Remove(ctx, removal.Artifact); err != nil {
			if nackErr := msg.Nack(err); errors.Is(nackErr, messaging.ErrRetriesExhausted) {
				s.logger.Error().Err(err).Str("artifact", removal.Artifact.String()).Msg("giving up artifact removal")
				close(removal.Reply)
				continue
			}
			s.logger.Warn().Err(err).Str("artifact", removal.Artifact.String()).Msg("failed to remove artifact, retrying")
			continue
		}
		s.logger.Info().Str("artifact", removal.Artifact.String()).Msg("removed artifact")
		close(removal.Reply)
		_ = msg.Ack()
	}
}

// StoreArtifact stores prepared artifact code in the cache
func (s *Service) StoreArtifact(ctx context.Context, codeHash string, executorParams params.ExecutorParams, code []byte) (artifact.PathID, error) {
	return s.cache.Store(ctx, artifact.NewID(codeHash, executorParams), code)
}

// Cache returns the artifact cache
func (s *Service) Cache() *cache.Cache {
	return s.cache
}

// Enqueue submits a job for an artifact at a resolved location
func (s *Service) Enqueue(ctx context.Context, pathID artifact.PathID, request *queue.Request) error {
	return s.queue.Enqueue(ctx, pathID, request)
}

// Execute enqueues a job for a cached artifact and waits for its result
func (s *Service) Execute(ctx context.Context, request *ExecuteRequest) (*validation.Outcome, error) {
	pathID, err := s.cache.Resolve(ctx, request.Artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact %v: %w", request.Artifact, err)
	}
	result := make(chan validation.Result, 1)
	err = s.queue.Enqueue(ctx, pathID, &queue.Request{
		ExecTimeout:    request.ExecTimeout,
		Params:         request.Params,
		ExecutorParams: request.ExecutorParams,
		ResultTx:       result,
		Priority:       request.Priority,
	})
	if err != nil {
		return nil, err
	}
	select {
	case r := <-result:
		return r.Outcome, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats returns a snapshot of the queue counters
func (s *Service) Stats() metrics.Snapshot {
	return s.stats.Snapshot()
}

// PrintTop writes a status table of the queue
func (s *Service) PrintTop(w io.Writer, colored bool) {
	metrics.PrintTop(w, s.stats.Snapshot(), colored)
}
