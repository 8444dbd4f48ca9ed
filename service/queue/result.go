package queue

import (
	"errors"

	"github.com/viant/exq/model/validation"
	"github.com/viant/exq/service/worker"
)

var (
	// ErrStopped is reported for jobs that were pending or running when the queue stopped.
	ErrStopped = errors.New("execute queue stopped")
	// ErrStarted is returned when Start is called more than once.
	ErrStarted = errors.New("execute queue already started")
)

// conclusion is what the queue does with a finished job.
type conclusion struct {
	// idle is set when the worker can be reused.
	idle           *worker.Idle
	result         validation.Result
	removeArtifact bool
}

// conclude maps a worker reply to the validation taxonomy.
func conclude(response *worker.Response, err error) conclusion {
	if err == nil && response == nil {
		err = errors.New("worker returned neither response nor error")
	}
	if err != nil {
		return conclusion{result: validation.Failed(workerError(err))}
	}
	reply := response.JobResponse
	switch reply.Kind {
	case worker.JobOK:
		return conclusion{
			idle: response.Idle,
			result: validation.OK(&validation.Outcome{
				ResultDescriptor: reply.ResultDescriptor,
				Duration:         response.Duration,
			}),
		}
	case worker.JobInvalidCandidate:
		return conclusion{
			idle:   response.Idle,
			result: validation.Failed(validation.NewInvalid(validation.ReasonWorkerReportedInvalid, reply.Reason)),
		}
	case worker.JobRuntimeConstruction:
		return conclusion{
			idle:           response.Idle,
			result:         validation.Failed(validation.NewPossiblyInvalid(validation.ReasonRuntimeConstruction, reply.Reason)),
			removeArtifact: true,
		}
	}
	return conclusion{result: validation.Failed(validation.NewInternal("unknown job response kind"))}
}

func workerError(err error) *validation.Error {
	switch worker.KindOf(err) {
	case worker.HardTimeout, worker.JobTimedOut:
		return validation.NewInvalid(validation.ReasonHardTimeout, "")
	case worker.CommunicationError:
		return validation.NewPossiblyInvalid(validation.ReasonAmbiguousWorkerDeath, "")
	case worker.JobDied:
		return validation.NewPossiblyInvalid(validation.ReasonAmbiguousJobDeath, reasonOf(err))
	case worker.JobError:
		return validation.NewPossiblyInvalid(validation.ReasonJobError, reasonOf(err))
	}
	return validation.NewInternal(err.Error())
}

func reasonOf(err error) string {
	var e *worker.Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return err.Error()
}

func stoppedResult() validation.Result {
	return validation.Failed(validation.NewInternal(ErrStopped.Error()))
}

func spawnFailedResult(err error) validation.Result {
	return validation.Failed(validation.NewInternal("failed to spawn worker: " + err.Error()))
}
