package worker

import (
	"context"
	"time"

	"github.com/viant/exq/model/artifact"
	"github.com/viant/exq/model/params"
)

// SecurityStatus describes sandboxing features available on the host. It is
// passed to spawned workers untouched.
type SecurityStatus struct {
	SecureValidatorMode bool `json:"secureValidatorMode" yaml:"secureValidatorMode"`
	CanEnableLandlock   bool `json:"canEnableLandlock" yaml:"canEnableLandlock"`
	CanEnableSeccomp    bool `json:"canEnableSeccomp" yaml:"canEnableSeccomp"`
	CanUnshareUserNS    bool `json:"canUnshareUserNamespaceAndChangeRoot" yaml:"canUnshareUserNamespaceAndChangeRoot"`
	CanDoSecureClone    bool `json:"canDoSecureClone" yaml:"canDoSecureClone"`
}

// Idle proves that a worker is ready to accept exactly one job. It is
// consumed by StartWork and handed back inside a Response when the worker
// remains usable.
type Idle struct {
	// WorkerID identifies the worker process across jobs.
	WorkerID string
	// Session is backend specific connection state.
	Session interface{}
}

// Handle observes and controls a worker process.
type Handle interface {
	// Done is closed once the process has terminated.
	Done() <-chan struct{}
	// Kill terminates the process. It is safe to call more than once.
	Kill() error
	// PID returns the OS process id, or 0 when unknown.
	PID() int
}

// SpawnRequest describes a worker to start.
type SpawnRequest struct {
	ProgramPath    string
	CachePath      string
	ExecutorParams params.ExecutorParams
	SpawnTimeout   time.Duration
	NodeVersion    string
	Security       SecurityStatus
}

// Work describes a single job for a spawned worker.
type Work struct {
	Artifact artifact.PathID
	Timeout  time.Duration
	Params   []byte
}

// JobResponseKind classifies a job that ran to completion.
type JobResponseKind int

const (
	// JobOK means the candidate was executed successfully.
	JobOK JobResponseKind = iota
	// JobInvalidCandidate means the worker judged the candidate invalid.
	JobInvalidCandidate
	// JobRuntimeConstruction means the artifact could not be instantiated.
	JobRuntimeConstruction
)

// JobResponse is what the worker reported for a completed job.
type JobResponse struct {
	Kind             JobResponseKind
	ResultDescriptor []byte
	Reason           string
}

// Response is a clean worker reply. Idle is always set: a worker that
// replied cleanly can take another job.
type Response struct {
	JobResponse JobResponse
	Duration    time.Duration
	Idle        *Idle
}

// Interface spawns workers and runs jobs on them.
type Interface interface {
	// Spawn starts a worker process configured for the request's execution
	// environment.
	Spawn(ctx context.Context, request *SpawnRequest) (*Idle, Handle, error)
	// StartWork runs one job on an idle worker. A nil error means the worker
	// replied and the returned Response carries the idle token back. Errors
	// should be *Error; the worker is then considered unusable.
	StartWork(ctx context.Context, idle *Idle, work *Work) (*Response, error)
}
