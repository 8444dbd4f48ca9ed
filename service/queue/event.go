package queue

import (
	"github.com/viant/exq/service/worker"
)

// event is reported to the actor by spawn and execute goroutines.
type event interface {
	// abandon disposes of the event when the queue stopped before handling it.
	abandon(s *Service)
}

// spawnedEvent carries a freshly spawned worker reserved for job.
type spawnedEvent struct {
	idle   *worker.Idle
	handle worker.Handle
	job    *job
}

func (e *spawnedEvent) abandon(s *Service) {
	go killWorker(s, e.handle)
	e.job.deliver(stoppedResult())
}

// spawnFailedEvent reports that the spawn attempts for job were exhausted.
type spawnFailedEvent struct {
	job *job
	err error
}

func (e *spawnFailedEvent) abandon(*Service) {
	e.job.deliver(spawnFailedResult(e.err))
}

// workDoneEvent carries the outcome of running job on worker.
type workDoneEvent struct {
	worker   workerID
	job      *job
	response *worker.Response
	err      error
}

// abandon keeps a verdict the worker reached before the stop. Errors, which
// the cancelled run context usually causes, and outcomes that need an
// artifact removal nobody can acknowledge anymore report the stop instead.
func (e *workDoneEvent) abandon(*Service) {
	outcome := conclude(e.response, e.err)
	if e.err != nil || outcome.removeArtifact {
		e.job.deliver(stoppedResult())
		return
	}
	e.job.deliver(outcome.result)
}
