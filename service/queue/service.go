package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/viant/exq/internal/clock"
	"github.com/viant/exq/internal/idgen"
	"github.com/viant/exq/metrics"
	"github.com/viant/exq/model/artifact"
	"github.com/viant/exq/service/messaging"
	"github.com/viant/exq/service/messaging/memory"
	"github.com/viant/exq/service/worker"
	"github.com/viant/exq/tracing"
)

// Service is the execution queue actor
type Service struct {
	config   Config
	backend  worker.Interface
	logger   zerolog.Logger
	stats    *metrics.Stats
	removals messaging.Queue[RemoveArtifact]

	inbox   chan *enqueueRequest
	events  chan event
	stopped chan struct{}
	started atomic.Bool

	// closing guards the inbox against sends racing with shutdown.
	closing sync.RWMutex
	closed  bool

	// owned by the actor goroutine
	ctx         context.Context
	unscheduled *unscheduled
	workers     *workers
}

// New creates an execution queue that spawns workers through backend.
func New(backend worker.Interface, config Config, options ...Option) (*Service, error) {
	if backend == nil {
		return nil, fmt.Errorf("worker backend was nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid execute queue config: %w", err)
	}
	ret := &Service{
		config:      config,
		backend:     backend,
		logger:      zlog.Logger.With().Str("component", "execute-queue").Logger(),
		inbox:       make(chan *enqueueRequest, config.InboxSize),
		events:      make(chan event),
		stopped:     make(chan struct{}),
		unscheduled: newUnscheduled(config.Fairness),
		workers:     newWorkers(config.Capacity),
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.removals == nil {
		ret.removals = memory.NewQueue[RemoveArtifact](memory.DefaultConfig())
	}
	return ret, nil
}

// Removals returns the queue of artifact removal requests the host must serve.
func (s *Service) Removals() messaging.Queue[RemoveArtifact] {
	return s.removals
}

// Enqueue submits a job. The result is delivered on request.ResultTx.
func (s *Service) Enqueue(ctx context.Context, pathID artifact.PathID, request *Request) error {
	if request == nil {
		return fmt.Errorf("request was nil")
	}
	if request.ResultTx == nil {
		return fmt.Errorf("request result channel was nil")
	}
	if !request.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %v", request.Priority)
	}
	s.closing.RLock()
	defer s.closing.RUnlock()
	if s.closed {
		return ErrStopped
	}
	select {
	case s.inbox <- &enqueueRequest{artifact: pathID, request: request}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
}

// Start runs the actor loop until ctx is done. Pending and queued jobs then
// receive an internal error and all workers are killed.
func (s *Service) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	s.ctx = ctx
	s.logger.Info().Int("capacity", s.config.Capacity).Msg("execute queue started")
	defer s.shutdown()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-s.inbox:
			s.handleEnqueue(req)
		case ev := <-s.events:
			s.handleEvent(ev)
		}
		s.purgeDead()
		s.refreshGauges()
	}
}

// post hands an event to the actor, or abandons it once the queue stopped.
func (s *Service) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.stopped:
		ev.abandon(s)
	}
}

func (s *Service) handleEvent(ev event) {
	switch actual := ev.(type) {
	case *spawnedEvent:
		s.handleWorkerSpawned(actual)
	case *spawnFailedEvent:
		s.handleSpawnFailed(actual)
	case *workDoneEvent:
		s.handleJobFinish(actual)
	default:
		panic(fmt.Sprintf("unsupported event type: %T", ev))
	}
}

func (s *Service) handleEnqueue(req *enqueueRequest) {
	request := req.request
	j := &job{
		id:             idgen.Short(),
		artifact:       req.artifact,
		execTimeout:    request.ExecTimeout,
		params:         request.Params,
		executorParams: request.ExecutorParams,
		paramsHash:     request.ExecutorParams.Hash(),
		resultTx:       request.ResultTx,
		waitingSince:   clock.Now(),
		priority:       request.Priority,
	}
	s.logger.Debug().
		Str("job", j.id).
		Str("artifact", j.artifact.ID.String()).
		Stringer("priority", j.priority).
		Msg("enqueueing an artifact for execution")
	s.stats.Update(metrics.Delta{Enqueued: 1})
	s.unscheduled.add(j, j.priority)
	s.tryAssignNextJob(nil)
}

// tryAssignNextJob offers the head of the selected priority to a worker.
// finished is the worker that just completed a job, if any.
func (s *Service) tryAssignNextJob(finished *workerID) {
	p := s.unscheduled.selectNextPriority()
	queue := s.unscheduled.pending(p)
	if len(queue) == 0 {
		return
	}
	eldest := queue[0]
	jobIndex := 0
	var id workerID
	found := false

	// A just freed worker keeps its hash as long as the eldest job can wait;
	// any queued job of the class that matches it takes it out of order.
	if finished != nil && clock.Since(eldest.waitingSince) < s.config.MaxKeepWaiting {
		if data, ok := s.workers.get(*finished); ok {
			for i, candidate := range queue {
				if candidate.paramsHash == data.paramsHash {
					jobIndex = i
					id = *finished
					found = true
					break
				}
			}
		}
	}
	if !found {
		id, found = s.workers.findAvailable(queue[jobIndex].paramsHash)
	}
	if !found {
		if idle, ok := s.workers.findIdle(); ok {
			s.retire(idle, "evicting an idle worker with incompatible executor params")
		}
	}
	if !found && !s.workers.canAffordOneMore() {
		return
	}

	j := s.unscheduled.take(p, jobIndex)
	if found {
		s.assign(id, j)
	} else {
		s.spawnExtraWorker(j)
	}
	s.stats.OnExecutePriority(p)
	s.unscheduled.log(p)
}

func (s *Service) assign(id workerID, j *job) {
	data, ok := s.workers.get(id)
	if !ok {
		panic(fmt.Sprintf("assign: unknown worker %v", id))
	}
	if data.paramsHash != j.paramsHash {
		panic(fmt.Sprintf("assign: worker %v executor params %v do not match job %v", id, data.paramsHash.Short(), j.paramsHash.Short()))
	}
	idle, ok := s.workers.claimIdle(id)
	if !ok {
		panic(fmt.Sprintf("assign: worker %v is not idle", id))
	}
	queued := clock.Since(j.waitingSince)
	s.stats.ObserveQueuedTime(queued)
	s.logger.Debug().
		Str("job", j.id).
		Stringer("worker", id).
		Str("artifact", j.artifact.ID.String()).
		Dur("queued", queued).
		Msg("assigning the execute worker")
	go s.execute(id, idle, j)
}

func (s *Service) execute(id workerID, idle *worker.Idle, j *job) {
	ctx, span := tracing.StartSpan(s.ctx, "queue.execute", tracing.KindClient)
	span.WithAttributes(map[string]string{
		"job.id":      j.id,
		"artifact.id": j.artifact.ID.String(),
		"priority":    j.priority.String(),
		"worker.id":   idle.WorkerID,
	})
	started := time.Now()
	response, err := s.backend.StartWork(ctx, idle, &worker.Work{
		Artifact: j.artifact,
		Timeout:  j.execTimeout,
		Params:   j.params,
	})
	s.stats.ObserveExecutionTime(time.Since(started))
	tracing.EndSpan(span, err)
	s.post(&workDoneEvent{worker: id, job: j, response: response, err: err})
}

func (s *Service) spawnExtraWorker(j *job) {
	s.workers.spawnInFlight++
	s.stats.Update(metrics.Delta{SpawnsBegun: 1})
	s.logger.Debug().
		Str("job", j.id).
		Str("params", j.paramsHash.Short()).
		Int("spawnInFlight", s.workers.spawnInFlight).
		Msg("spawning an extra execute worker")
	go s.spawnWorker(j)
}

// spawnWorker retries until a worker is up, the attempts are exhausted or
// the queue stops.
func (s *Service) spawnWorker(j *job) {
	ctx, span := tracing.StartSpan(s.ctx, "queue.spawn", tracing.KindInternal)
	span.WithAttributes(map[string]string{
		"job.id":      j.id,
		"params.hash": j.paramsHash.String(),
	})
	request := &worker.SpawnRequest{
		ProgramPath:    s.config.ProgramPath,
		CachePath:      s.config.CachePath,
		ExecutorParams: j.executorParams,
		SpawnTimeout:   s.config.SpawnTimeout,
		NodeVersion:    s.config.NodeVersion,
		Security:       s.config.Security,
	}
	for attempt := 1; ; attempt++ {
		idle, handle, err := s.backend.Spawn(ctx, request)
		if err == nil {
			tracing.EndSpan(span, nil)
			s.post(&spawnedEvent{idle: idle, handle: handle, job: j})
			return
		}
		if ctx.Err() != nil {
			tracing.EndSpan(span, ErrStopped)
			j.deliver(stoppedResult())
			return
		}
		s.stats.Update(metrics.Delta{SpawnFailures: 1})
		s.logger.Warn().Err(err).Str("job", j.id).Int("attempt", attempt).Msg("failed to spawn an execute worker")
		span.AddEvent("spawn.failed", map[string]string{"error": err.Error()})
		if s.config.MaxSpawnAttempts > 0 && attempt >= s.config.MaxSpawnAttempts {
			tracing.EndSpan(span, err)
			s.post(&spawnFailedEvent{job: j, err: err})
			return
		}
		select {
		case <-time.After(s.config.SpawnRetryDelay):
		case <-ctx.Done():
			tracing.EndSpan(span, ErrStopped)
			j.deliver(stoppedResult())
			return
		case <-s.stopped:
			tracing.EndSpan(span, ErrStopped)
			j.deliver(stoppedResult())
			return
		}
	}
}

func (s *Service) handleWorkerSpawned(ev *spawnedEvent) {
	s.workers.spawnInFlight--
	id := s.workers.insert(workerData{
		idle:       ev.idle,
		handle:     ev.handle,
		paramsHash: ev.job.paramsHash,
	})
	s.stats.Update(metrics.Delta{Spawned: 1})
	s.logger.Debug().
		Stringer("worker", id).
		Int("pid", ev.handle.PID()).
		Str("params", ev.job.paramsHash.Short()).
		Msg("execute worker spawned")
	s.assign(id, ev.job)
}

func (s *Service) handleSpawnFailed(ev *spawnFailedEvent) {
	s.workers.spawnInFlight--
	s.logger.Error().Err(ev.err).Str("job", ev.job.id).Msg("giving up spawning an execute worker")
	s.stats.Update(metrics.Delta{Failed: 1})
	ev.job.deliver(spawnFailedResult(ev.err))
	s.tryAssignNextJob(nil)
}

func (s *Service) handleJobFinish(ev *workDoneEvent) {
	outcome := conclude(ev.response, ev.err)
	delta := metrics.Delta{Finished: 1}
	if outcome.result.Err != nil {
		delta.Failed = 1
		s.logger.Warn().Err(outcome.result.Err).Str("job", ev.job.id).Stringer("worker", ev.worker).Msg("execution failed")
	} else {
		s.logger.Trace().Str("job", ev.job.id).Stringer("worker", ev.worker).Dur("duration", outcome.result.Outcome.Duration).Msg("execution succeeded")
	}
	s.stats.Update(delta)

	if outcome.removeArtifact {
		reply := make(chan struct{})
		removal := &RemoveArtifact{Artifact: ev.job.artifact.ID, Reply: reply}
		if err := s.removals.Publish(s.ctx, removal); err != nil {
			s.logger.Error().Err(err).Str("artifact", ev.job.artifact.ID.String()).Msg("failed to request artifact removal")
			ev.job.deliver(outcome.result)
		} else {
			go s.deliverAfter(reply, ev.job, outcome)
		}
	} else {
		ev.job.deliver(outcome.result)
	}

	if outcome.idle != nil {
		if data, ok := s.workers.get(ev.worker); ok {
			data.idle = outcome.idle
			s.tryAssignNextJob(&ev.worker)
			return
		}
	} else {
		s.retire(ev.worker, "execute worker is not reusable")
	}
	s.tryAssignNextJob(nil)
}

// deliverAfter holds a result back until the host confirmed the artifact removal.
func (s *Service) deliverAfter(reply <-chan struct{}, j *job, outcome conclusion) {
	select {
	case <-reply:
	case <-s.stopped:
		s.logger.Warn().Str("artifact", j.artifact.ID.String()).Msg("artifact removal not confirmed before stop")
	}
	j.deliver(outcome.result)
}

// retire removes the worker from the pool and kills its process without
// blocking the actor.
func (s *Service) retire(id workerID, reason string) {
	data, ok := s.workers.remove(id)
	if !ok {
		return
	}
	s.stats.Update(metrics.Delta{Retired: 1})
	s.logger.Debug().Stringer("worker", id).Int("pid", data.handle.PID()).Str("reason", reason).Msg("retiring execute worker")
	go killWorker(s, data.handle)
}

func killWorker(s *Service, handle worker.Handle) {
	if err := handle.Kill(); err != nil {
		s.logger.Warn().Err(err).Int("pid", handle.PID()).Msg("failed to kill execute worker")
	}
}

// purgeDead removes workers whose process has terminated.
func (s *Service) purgeDead() {
	var dead []workerID
	s.workers.each(func(id workerID, data *workerData) {
		select {
		case <-data.handle.Done():
			dead = append(dead, id)
		default:
		}
	})
	for _, id := range dead {
		s.retire(id, "execute worker process terminated")
	}
	if len(dead) > 0 {
		s.tryAssignNextJob(nil)
	}
}

func (s *Service) refreshGauges() {
	s.stats.SetGauges(s.unscheduled.sizes(), s.workers.running, s.workers.idleCount())
}

func (s *Service) shutdown() {
	close(s.stopped)
	s.closing.Lock()
	s.closed = true
drain:
	for {
		select {
		case req := <-s.inbox:
			select {
			case req.request.ResultTx <- stoppedResult():
			default:
			}
		default:
			break drain
		}
	}
	s.closing.Unlock()

	pending := s.unscheduled.drain()
	for _, j := range pending {
		j.deliver(stoppedResult())
	}
	var ids []workerID
	s.workers.each(func(id workerID, _ *workerData) {
		ids = append(ids, id)
	})
	for _, id := range ids {
		s.retire(id, "execute queue stopped")
	}
	s.refreshGauges()
	s.logger.Info().Int("abandoned", len(pending)).Msg("execute queue stopped")
}
