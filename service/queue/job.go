package queue

import (
	"time"

	"github.com/viant/exq/model/artifact"
	"github.com/viant/exq/model/params"
	"github.com/viant/exq/model/priority"
	"github.com/viant/exq/model/validation"
)

// Request is an execution request for an artifact known to the host. The
// result is sent exactly once on ResultTx, which must be buffered (capacity
// of at least one); if nobody can receive it the result is dropped.
type Request struct {
	ExecTimeout    time.Duration
	Params         []byte
	ExecutorParams params.ExecutorParams
	ResultTx       chan<- validation.Result
	Priority       priority.Priority
}

// RemoveArtifact asks the host to remove an artifact that a worker could not
// instantiate. The host closes Reply once the removal is durable; the
// job's result is held back until then.
type RemoveArtifact struct {
	Artifact artifact.ID
	Reply    chan struct{}
}

type enqueueRequest struct {
	artifact artifact.PathID
	request  *Request
}

type job struct {
	id             string
	artifact       artifact.PathID
	execTimeout    time.Duration
	params         []byte
	executorParams params.ExecutorParams
	paramsHash     params.Hash
	resultTx       chan<- validation.Result
	waitingSince   time.Time
	priority       priority.Priority
}

// deliver sends the result without blocking; a missing receiver is not an error.
func (j *job) deliver(result validation.Result) bool {
	select {
	case j.resultTx <- result:
		return true
	default:
		return false
	}
}
