package worker

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed job run.
type ErrorKind int

const (
	// InternalError is an infrastructure failure on the host side.
	InternalError ErrorKind = iota
	// HardTimeout means the worker did not reply within the job timeout.
	HardTimeout
	// CommunicationError means the channel to the worker broke for an unknown reason.
	CommunicationError
	// WorkerInternalError is an infrastructure failure reported by the worker.
	WorkerInternalError
	// JobTimedOut is a timeout reported by the worker itself.
	JobTimedOut
	// JobDied means the job process died for an unclear reason.
	JobDied
	// JobError is an internal job-level error reported by the worker.
	JobError
)

var errorKindNames = map[ErrorKind]string{
	InternalError:       "internal error",
	HardTimeout:         "hard timeout",
	CommunicationError:  "communication error",
	WorkerInternalError: "worker internal error",
	JobTimedOut:         "job timed out",
	JobDied:             "job died",
	JobError:            "job error",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("errorKind(%d)", int(k))
}

// Error is returned by Interface.StartWork when the worker cannot be reused.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

// NewError creates a worker error
func NewError(kind ErrorKind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap creates a worker error with an underlying cause
func Wrap(kind ErrorKind, err error) *Error {
	ret := &Error{Kind: kind, Err: err}
	if err != nil {
		ret.Reason = err.Error()
	}
	return ret
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the worker error kind; errors that are not *Error are
// reported as InternalError.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}

// SpawnError is returned by Interface.Spawn.
type SpawnError struct {
	Reason string
	Err    error
}

func (e *SpawnError) Error() string {
	if e.Err != nil {
		return "failed to spawn worker: " + e.Reason + ": " + e.Err.Error()
	}
	return "failed to spawn worker: " + e.Reason
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
