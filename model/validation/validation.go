// Package validation defines the outcome taxonomy delivered to the caller of
// an execution job.
package validation

import (
	"errors"
	"fmt"
	"time"
)

// Outcome is a successful execution result.
type Outcome struct {
	// ResultDescriptor is the opaque, worker-produced result.
	ResultDescriptor []byte
	// Duration is the execution time reported by the worker.
	Duration time.Duration
}

// Kind classifies an execution error.
type Kind int

const (
	// Invalid means the candidate is definitely invalid.
	Invalid Kind = iota
	// PossiblyInvalid means the outcome is ambiguous; the caller decides whether to resubmit.
	PossiblyInvalid
	// Internal is an infrastructure failure unrelated to the candidate.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case PossiblyInvalid:
		return "possibly invalid"
	case Internal:
		return "internal"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Reason refines Kind.
type Reason int

const (
	ReasonWorkerReportedInvalid Reason = iota
	ReasonHardTimeout
	ReasonAmbiguousWorkerDeath
	ReasonAmbiguousJobDeath
	ReasonJobError
	ReasonRuntimeConstruction
	ReasonInternal
)

var reasonNames = map[Reason]string{
	ReasonWorkerReportedInvalid: "worker reported invalid",
	ReasonHardTimeout:           "hard timeout",
	ReasonAmbiguousWorkerDeath:  "ambiguous worker death",
	ReasonAmbiguousJobDeath:     "ambiguous job death",
	ReasonJobError:              "job error",
	ReasonRuntimeConstruction:   "runtime construction",
	ReasonInternal:              "internal error",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Error is an execution error delivered to the caller.
type Error struct {
	Kind   Kind
	Reason Reason
	Detail string
}

// Error implements error
func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%v: %v: %v", e.Kind, e.Reason, e.Detail)
}

// Is matches errors of the same kind and reason regardless of detail.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind && e.Reason == other.Reason
}

// Sentinels usable with errors.Is.
var (
	ErrWorkerReportedInvalid = &Error{Kind: Invalid, Reason: ReasonWorkerReportedInvalid}
	ErrHardTimeout           = &Error{Kind: Invalid, Reason: ReasonHardTimeout}
	ErrAmbiguousWorkerDeath  = &Error{Kind: PossiblyInvalid, Reason: ReasonAmbiguousWorkerDeath}
	ErrAmbiguousJobDeath     = &Error{Kind: PossiblyInvalid, Reason: ReasonAmbiguousJobDeath}
	ErrJobError              = &Error{Kind: PossiblyInvalid, Reason: ReasonJobError}
	ErrRuntimeConstruction   = &Error{Kind: PossiblyInvalid, Reason: ReasonRuntimeConstruction}
	ErrInternal              = &Error{Kind: Internal, Reason: ReasonInternal}
)

// NewInvalid returns a definitive invalid-candidate error.
func NewInvalid(reason Reason, detail string) *Error {
	return &Error{Kind: Invalid, Reason: reason, Detail: detail}
}

// NewPossiblyInvalid returns an ambiguous error.
func NewPossiblyInvalid(reason Reason, detail string) *Error {
	return &Error{Kind: PossiblyInvalid, Reason: reason, Detail: detail}
}

// NewInternal returns an infrastructure error.
func NewInternal(detail string) *Error {
	return &Error{Kind: Internal, Reason: ReasonInternal, Detail: detail}
}

// KindOf returns the kind of err, and false when err is not an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return 0, false
	}
	return e.Kind, true
}

// Result is delivered exactly once per job: either Outcome or Err is set.
type Result struct {
	Outcome *Outcome
	Err     error
}

// OK creates a successful result
func OK(outcome *Outcome) Result {
	return Result{Outcome: outcome}
}

// Failed creates an error result
func Failed(err error) Result {
	return Result{Err: err}
}
