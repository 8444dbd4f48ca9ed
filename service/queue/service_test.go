package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/exq/internal/clock"
	"github.com/viant/exq/metrics"
	"github.com/viant/exq/model/artifact"
	"github.com/viant/exq/model/params"
	"github.com/viant/exq/model/priority"
	"github.com/viant/exq/model/validation"
	"github.com/viant/exq/service/worker"
)

type fakeHandle struct {
	pid    int
	done   chan struct{}
	once   sync.Once
	killed atomic.Bool
}

func newFakeHandle(pid int) *fakeHandle {
	return &fakeHandle{pid: pid, done: make(chan struct{})}
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) Kill() error {
	h.killed.Store(true)
	h.exit()
	return nil
}

func (h *fakeHandle) exit() { h.once.Do(func() { close(h.done) }) }

func (h *fakeHandle) PID() int { return h.pid }

type fakeBackend struct {
	mu            sync.Mutex
	spawnFailures int
	spawnCalls    int
	spawned       []params.Hash
	handles       []*fakeHandle
	// reply overrides the default successful job response.
	reply func(idle *worker.Idle, work *worker.Work) (*worker.Response, error)
	// gate, when set, holds StartWork until closed or ctx is done.
	gate chan struct{}
	// blockSpawn holds Spawn until ctx is done.
	blockSpawn bool
}

func (b *fakeBackend) Spawn(ctx context.Context, request *worker.SpawnRequest) (*worker.Idle, worker.Handle, error) {
	if b.blockSpawn {
		b.mu.Lock()
		b.spawnCalls++
		b.mu.Unlock()
		<-ctx.Done()
		return nil, nil, &worker.SpawnError{Reason: ctx.Err().Error()}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spawnCalls++
	if b.spawnFailures > 0 {
		b.spawnFailures--
		return nil, nil, &worker.SpawnError{Reason: "resource shortage"}
	}
	handle := newFakeHandle(1000 + len(b.handles))
	b.handles = append(b.handles, handle)
	b.spawned = append(b.spawned, request.ExecutorParams.Hash())
	return &worker.Idle{WorkerID: fmt.Sprintf("w%d", handle.pid)}, handle, nil
}

func (b *fakeBackend) StartWork(ctx context.Context, idle *worker.Idle, work *worker.Work) (*worker.Response, error) {
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
			return nil, worker.Wrap(worker.InternalError, ctx.Err())
		}
	}
	if b.reply != nil {
		return b.reply(idle, work)
	}
	return &worker.Response{
		JobResponse: worker.JobResponse{Kind: worker.JobOK, ResultDescriptor: []byte(work.Artifact.ID.CodeHash)},
		Duration:    time.Millisecond,
		Idle:        idle,
	}, nil
}

func (b *fakeBackend) spawnCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spawnCalls
}

func (b *fakeBackend) handle(i int) *fakeHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handles[i]
}

func testConfig(capacity int) Config {
	config := DefaultConfig()
	config.Capacity = capacity
	config.SpawnRetryDelay = time.Millisecond
	return config
}

// newTestService returns a queue driven by the test goroutine instead of Start.
func newTestService(t *testing.T, backend worker.Interface, config Config) *Service {
	srv, err := New(backend, config, WithLogger(zerolog.Nop()), WithStats(metrics.New(nil)))
	require.NoError(t, err)
	srv.ctx = context.Background()
	return srv
}

func executorParams(pages uint64) params.ExecutorParams {
	return params.ExecutorParams{{Name: params.MaxMemoryPages, Value: pages}}
}

func testRequest(code string, p priority.Priority, execParams params.ExecutorParams) (*enqueueRequest, chan validation.Result) {
	result := make(chan validation.Result, 1)
	id := artifact.NewID(code, execParams)
	return &enqueueRequest{
		artifact: artifact.PathID{ID: id, Path: "/cache/" + id.FileName()},
		request: &Request{
			ExecTimeout:    time.Second,
			Params:         []byte(code),
			ExecutorParams: execParams,
			ResultTx:       result,
			Priority:       p,
		},
	}, result
}

// step handles the next event the way the actor loop does.
func step(t *testing.T, srv *Service) event {
	select {
	case ev := <-srv.events:
		srv.handleEvent(ev)
		srv.purgeDead()
		assertCapacity(t, srv)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
	return nil
}

func assertCapacity(t *testing.T, srv *Service) {
	assert.LessOrEqual(t, srv.workers.spawnInFlight+srv.workers.running, srv.config.Capacity)
}

func noResult(t *testing.T, result chan validation.Result) {
	select {
	case r := <-result:
		t.Fatalf("unexpected result: %+v", r)
	case <-time.After(20 * time.Millisecond):
	}
}

func awaitResult(t *testing.T, result chan validation.Result) validation.Result {
	select {
	case r := <-result:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
	}
	return validation.Result{}
}

func setClock(t *testing.T, now *time.Time) {
	prev := clock.NowFunc
	clock.NowFunc = func() time.Time { return *now }
	t.Cleanup(func() { clock.NowFunc = prev })
}

func TestService_SpawnAndExecute(t *testing.T) {
	backend := &fakeBackend{}
	srv := newTestService(t, backend, testConfig(1))

	req, result := testRequest("code", priority.Backing, executorParams(1))
	srv.handleEnqueue(req)
	assert.Equal(t, 1, srv.workers.spawnInFlight)
	assert.Equal(t, 0, srv.unscheduled.size())

	assert.IsType(t, &spawnedEvent{}, step(t, srv))
	assert.Equal(t, 0, srv.workers.spawnInFlight)
	assert.Equal(t, 1, srv.workers.running)
	assert.Equal(t, 0, srv.workers.idleCount(), "spawned worker is bound to its job")

	assert.IsType(t, &workDoneEvent{}, step(t, srv))
	r := awaitResult(t, result)
	require.NoError(t, r.Err)
	assert.Equal(t, []byte("code"), r.Outcome.ResultDescriptor)
	assert.Equal(t, 1, srv.workers.running)
	assert.Equal(t, 1, srv.workers.idleCount())
	assert.Equal(t, 1, backend.spawnCount())

	// an idle compatible worker is reused
	req, result = testRequest("code2", priority.Backing, executorParams(1))
	srv.handleEnqueue(req)
	assert.Equal(t, 0, srv.workers.spawnInFlight)
	step(t, srv)
	assert.NoError(t, awaitResult(t, result).Err)
	assert.Equal(t, 1, backend.spawnCount())

	snapshot := srv.stats.Snapshot()
	assert.Equal(t, 2, snapshot.Enqueued)
	assert.Equal(t, 2, snapshot.Finished)
	assert.Equal(t, 2, snapshot.Executions[priority.Backing])
}

func TestService_IncompatibleJobWaitsForCapacity(t *testing.T) {
	now := time.Now()
	setClock(t, &now)
	backend := &fakeBackend{}
	srv := newTestService(t, backend, testConfig(1))

	first, firstResult := testRequest("a", priority.Backing, executorParams(1))
	second, secondResult := testRequest("b", priority.Backing, executorParams(2))
	srv.handleEnqueue(first)
	srv.handleEnqueue(second)
	assert.Equal(t, 1, srv.unscheduled.size(), "second job has no capacity")
	assertCapacity(t, srv)

	step(t, srv) // spawned
	noResult(t, secondResult)
	step(t, srv) // first done, incompatible idle worker is evicted
	assert.NoError(t, awaitResult(t, firstResult).Err)
	assert.Equal(t, 0, srv.unscheduled.size())
	assert.Equal(t, 0, srv.workers.running)
	assert.Equal(t, 1, srv.workers.spawnInFlight)
	assert.Eventually(t, func() bool { return backend.handle(0).killed.Load() }, time.Second, 5*time.Millisecond)

	step(t, srv) // spawned for second
	step(t, srv) // second done
	assert.NoError(t, awaitResult(t, secondResult).Err)
	assert.Equal(t, []params.Hash{executorParams(1).Hash(), executorParams(2).Hash()}, backend.spawned)
}

func TestService_Patience(t *testing.T) {
	testCases := []struct {
		name        string
		elapsed     time.Duration
		expectOrder []string
		expectSpawn int
	}{
		{
			name:        "freed worker takes a matching job out of order",
			elapsed:     time.Second,
			expectOrder: []string{"a1", "a2", "b"},
			expectSpawn: 2,
		},
		{
			name:        "eldest job past patience forces kill and respawn",
			elapsed:     5 * time.Second,
			expectOrder: []string{"a1", "b", "a2"},
			expectSpawn: 3,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			now := time.Now()
			setClock(t, &now)
			backend := &fakeBackend{}
			srv := newTestService(t, backend, testConfig(1))

			var order []string
			for _, code := range []string{"a1", "b", "a2"} {
				pages := uint64(1)
				if code == "b" {
					pages = 2
				}
				req, _ := testRequest(code, priority.Approval, executorParams(pages))
				srv.handleEnqueue(req)
			}
			for len(order) < 3 {
				now = now.Add(tc.elapsed)
				if done, ok := step(t, srv).(*workDoneEvent); ok {
					order = append(order, done.job.artifact.ID.CodeHash)
				}
			}
			assert.Equal(t, tc.expectOrder, order)
			assert.Equal(t, tc.expectSpawn, backend.spawnCount())
		})
	}
}

func TestService_Fairness(t *testing.T) {
	backend := &fakeBackend{}
	srv := newTestService(t, backend, testConfig(1))

	for i := 0; i < 20; i++ {
		req, _ := testRequest(fmt.Sprintf("d%d", i), priority.Dispute, executorParams(1))
		srv.handleEnqueue(req)
	}
	for i := 0; i < 5; i++ {
		req, _ := testRequest(fmt.Sprintf("a%d", i), priority.Approval, executorParams(1))
		srv.handleEnqueue(req)
	}

	var order []priority.Priority
	for len(order) < 25 {
		if done, ok := step(t, srv).(*workDoneEvent); ok {
			order = append(order, done.job.priority)
		}
	}

	d, a := priority.Dispute, priority.Approval
	expected := []priority.Priority{
		d, a, a, d, a, d, d, a, d, d, a, d,
		d, d, d, d, d, d, d, d, d, d, d, d,
		d,
	}
	assert.Equal(t, expected, order)

	served := map[priority.Priority]int{}
	for _, p := range order[:srv.config.Fairness.Window] {
		served[p]++
	}
	assert.LessOrEqual(t, served[d], 9)
	assert.GreaterOrEqual(t, served[a], 3)
}

func TestService_RuntimeConstructionRemovesArtifact(t *testing.T) {
	backend := &fakeBackend{
		reply: func(idle *worker.Idle, work *worker.Work) (*worker.Response, error) {
			return &worker.Response{
				JobResponse: worker.JobResponse{Kind: worker.JobRuntimeConstruction, Reason: "instantiation failed"},
				Idle:        idle,
			}, nil
		},
	}
	srv := newTestService(t, backend, testConfig(1))
	req, result := testRequest("broken", priority.Backing, executorParams(1))
	srv.handleEnqueue(req)
	step(t, srv)
	step(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := srv.Removals().Consume(ctx)
	require.NoError(t, err)
	removal := msg.T()
	assert.Equal(t, req.artifact.ID, removal.Artifact)
	noResult(t, result)

	close(removal.Reply)
	require.NoError(t, msg.Ack())
	r := awaitResult(t, result)
	assert.ErrorIs(t, r.Err, validation.ErrRuntimeConstruction)
	assert.Equal(t, 1, srv.workers.idleCount(), "worker stays reusable")
}

func TestService_SpawnRetries(t *testing.T) {
	backend := &fakeBackend{spawnFailures: 3}
	srv := newTestService(t, backend, testConfig(1))
	req, result := testRequest("code", priority.Backing, executorParams(1))
	srv.handleEnqueue(req)

	assert.IsType(t, &spawnedEvent{}, step(t, srv))
	assert.Equal(t, 4, backend.spawnCount())
	noResult(t, result)
	step(t, srv)
	assert.NoError(t, awaitResult(t, result).Err)
	assert.Equal(t, 3, srv.stats.Snapshot().SpawnFailures)
}

func TestService_SpawnAttemptsExhausted(t *testing.T) {
	backend := &fakeBackend{spawnFailures: 10}
	config := testConfig(1)
	config.MaxSpawnAttempts = 2
	srv := newTestService(t, backend, config)

	req, result := testRequest("code", priority.Backing, executorParams(1))
	srv.handleEnqueue(req)
	queued, queuedResult := testRequest("next", priority.Backing, executorParams(1))
	srv.handleEnqueue(queued)

	assert.IsType(t, &spawnFailedEvent{}, step(t, srv))
	r := awaitResult(t, result)
	assert.ErrorIs(t, r.Err, validation.ErrInternal)
	assert.Equal(t, 1, srv.workers.spawnInFlight, "queued job gets the released spawn slot")
	assert.Equal(t, 0, srv.unscheduled.size())
	assert.IsType(t, &spawnFailedEvent{}, step(t, srv))
	assert.ErrorIs(t, awaitResult(t, queuedResult).Err, validation.ErrInternal)
	assert.Equal(t, 4, backend.spawnCount())
}

func TestService_WorkerFailure(t *testing.T) {
	testCases := []struct {
		name      string
		err       error
		expectErr error
	}{
		{name: "hard timeout", err: worker.NewError(worker.HardTimeout, ""), expectErr: validation.ErrHardTimeout},
		{name: "worker died", err: worker.NewError(worker.CommunicationError, "eof"), expectErr: validation.ErrAmbiguousWorkerDeath},
		{name: "job died", err: worker.NewError(worker.JobDied, "signal 9"), expectErr: validation.ErrAmbiguousJobDeath},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			backend := &fakeBackend{
				reply: func(*worker.Idle, *worker.Work) (*worker.Response, error) { return nil, tc.err },
			}
			srv := newTestService(t, backend, testConfig(1))
			req, result := testRequest("code", priority.Backing, executorParams(1))
			srv.handleEnqueue(req)
			step(t, srv)
			step(t, srv)
			assert.ErrorIs(t, awaitResult(t, result).Err, tc.expectErr)
			assert.Equal(t, 0, srv.workers.running, "failed worker is removed")
			assert.Eventually(t, func() bool { return backend.handle(0).killed.Load() }, time.Second, 5*time.Millisecond)
		})
	}
}

func TestService_PurgeDead(t *testing.T) {
	backend := &fakeBackend{}
	srv := newTestService(t, backend, testConfig(1))
	req, result := testRequest("code", priority.Backing, executorParams(1))
	srv.handleEnqueue(req)
	step(t, srv)
	step(t, srv)
	require.NoError(t, awaitResult(t, result).Err)
	assert.Equal(t, 1, srv.workers.running)

	backend.handle(0).exit()
	srv.purgeDead()
	assert.Equal(t, 0, srv.workers.running)
	assert.Equal(t, 1, srv.stats.Snapshot().Retired)
}

func TestService_CapacityBound(t *testing.T) {
	backend := &fakeBackend{}
	srv := newTestService(t, backend, testConfig(2))
	var results []chan validation.Result
	for i := 0; i < 9; i++ {
		req, result := testRequest(fmt.Sprintf("job%d", i), priority.All[i%priority.Count], executorParams(uint64(i%3)))
		srv.handleEnqueue(req)
		assertCapacity(t, srv)
		results = append(results, result)
	}
	finished := 0
	for finished < len(results) {
		if _, ok := step(t, srv).(*workDoneEvent); ok {
			finished++
		}
	}
	for _, result := range results {
		assert.NoError(t, awaitResult(t, result).Err)
	}
	assert.Equal(t, 0, srv.unscheduled.size())
}

func TestService_Start(t *testing.T) {
	backend := &fakeBackend{}
	srv, err := New(backend, testConfig(2), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	req, result := testRequest("code", priority.Approval, executorParams(1))
	require.NoError(t, srv.Enqueue(ctx, req.artifact, req.request))
	r := awaitResult(t, result)
	require.NoError(t, r.Err)
	assert.Equal(t, []byte("code"), r.Outcome.ResultDescriptor)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.ErrorIs(t, srv.Start(context.Background()), ErrStarted)
	assert.ErrorIs(t, srv.Enqueue(context.Background(), req.artifact, req.request), ErrStopped)
	assert.Eventually(t, func() bool { return backend.handle(0).killed.Load() }, time.Second, 5*time.Millisecond)
}

func TestService_Shutdown(t *testing.T) {
	backend := &fakeBackend{gate: make(chan struct{})}
	srv, err := New(backend, testConfig(1), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	running, runningResult := testRequest("running", priority.Backing, executorParams(1))
	queued, queuedResult := testRequest("queued", priority.Backing, executorParams(1))
	require.NoError(t, srv.Enqueue(ctx, running.artifact, running.request))
	require.NoError(t, srv.Enqueue(ctx, queued.artifact, queued.request))
	assert.Eventually(t, func() bool { return backend.spawnCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	for _, result := range []chan validation.Result{runningResult, queuedResult} {
		r := awaitResult(t, result)
		assert.True(t, errors.Is(r.Err, validation.ErrInternal), "%v", r.Err)
	}
}

func TestService_ShutdownDuringSpawn(t *testing.T) {
	backend := &fakeBackend{blockSpawn: true}
	stats := metrics.New(nil)
	srv, err := New(backend, testConfig(1), WithLogger(zerolog.Nop()), WithStats(stats))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	req, result := testRequest("code", priority.Dispute, executorParams(1))
	require.NoError(t, srv.Enqueue(ctx, req.artifact, req.request))
	assert.Eventually(t, func() bool { return backend.spawnCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	r := awaitResult(t, result)
	assert.ErrorIs(t, r.Err, validation.ErrInternal)
	assert.Contains(t, r.Err.Error(), ErrStopped.Error())
	assert.Equal(t, 0, stats.Snapshot().SpawnFailures)
	assert.Equal(t, 1, backend.spawnCount(), "no retry after the stop")
}

func TestService_Enqueue(t *testing.T) {
	srv, err := New(&fakeBackend{}, testConfig(1))
	require.NoError(t, err)
	req, _ := testRequest("code", priority.Backing, executorParams(1))

	assert.Error(t, srv.Enqueue(context.Background(), req.artifact, nil))
	assert.Error(t, srv.Enqueue(context.Background(), req.artifact, &Request{Priority: priority.Backing}))
	invalid := *req.request
	invalid.Priority = priority.Priority(9)
	assert.Error(t, srv.Enqueue(context.Background(), req.artifact, &invalid))

	_, err = New(nil, testConfig(1))
	assert.Error(t, err)
	_, err = New(&fakeBackend{}, testConfig(0))
	assert.Error(t, err)
}
