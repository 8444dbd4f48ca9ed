package shell

import (
	"encoding/base64"
	"time"

	"github.com/tidwall/gjson"
	"github.com/viant/exq/service/worker"
)

// Reply statuses written by the worker program.
const (
	StatusOK                  = "ok"
	StatusInvalid             = "invalid"
	StatusRuntimeConstruction = "runtimeConstruction"
	StatusJobTimedOut         = "jobTimedOut"
	StatusJobDied             = "jobDied"
	StatusJobError            = "jobError"
	StatusInternal            = "internal"
)

// parseReply decodes a reply line such as
// {"status":"ok","result":"<base64>","durationMs":12}.
func parseReply(line string, idle *worker.Idle) (*worker.Response, error) {
	if !gjson.Valid(line) {
		return nil, worker.NewError(worker.CommunicationError, "malformed worker reply")
	}
	reply := gjson.Parse(line)
	reason := reply.Get("reason").String()
	duration := time.Duration(reply.Get("durationMs").Int()) * time.Millisecond
	response := &worker.Response{Duration: duration, Idle: idle}
	switch status := reply.Get("status").String(); status {
	case StatusOK:
		descriptor, err := base64.StdEncoding.DecodeString(reply.Get("result").String())
		if err != nil {
			return nil, worker.Wrap(worker.CommunicationError, err)
		}
		response.JobResponse = worker.JobResponse{Kind: worker.JobOK, ResultDescriptor: descriptor}
	case StatusInvalid:
		response.JobResponse = worker.JobResponse{Kind: worker.JobInvalidCandidate, Reason: reason}
	case StatusRuntimeConstruction:
		response.JobResponse = worker.JobResponse{Kind: worker.JobRuntimeConstruction, Reason: reason}
	case StatusJobTimedOut:
		return nil, worker.NewError(worker.JobTimedOut, reason)
	case StatusJobDied:
		return nil, worker.NewError(worker.JobDied, reason)
	case StatusJobError:
		return nil, worker.NewError(worker.JobError, reason)
	case StatusInternal:
		return nil, worker.NewError(worker.WorkerInternalError, reason)
	default:
		return nil, worker.NewError(worker.CommunicationError, "unknown worker reply status: "+status)
	}
	return response, nil
}
