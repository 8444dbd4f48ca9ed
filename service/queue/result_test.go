package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/exq/model/validation"
	"github.com/viant/exq/service/worker"
)

func TestConclude(t *testing.T) {
	idle := &worker.Idle{WorkerID: "w"}
	testCases := []struct {
		name         string
		response     *worker.Response
		err          error
		expectErr    error
		expectIdle   bool
		expectRemove bool
	}{
		{
			name:       "ok",
			response:   &worker.Response{JobResponse: worker.JobResponse{Kind: worker.JobOK, ResultDescriptor: []byte("r")}, Duration: time.Second, Idle: idle},
			expectIdle: true,
		},
		{
			name:       "invalid candidate",
			response:   &worker.Response{JobResponse: worker.JobResponse{Kind: worker.JobInvalidCandidate, Reason: "trap"}, Idle: idle},
			expectErr:  validation.ErrWorkerReportedInvalid,
			expectIdle: true,
		},
		{
			name:         "runtime construction",
			response:     &worker.Response{JobResponse: worker.JobResponse{Kind: worker.JobRuntimeConstruction, Reason: "bad module"}, Idle: idle},
			expectErr:    validation.ErrRuntimeConstruction,
			expectIdle:   true,
			expectRemove: true,
		},
		{name: "hard timeout", err: worker.NewError(worker.HardTimeout, ""), expectErr: validation.ErrHardTimeout},
		{name: "job timed out", err: worker.NewError(worker.JobTimedOut, ""), expectErr: validation.ErrHardTimeout},
		{name: "communication error", err: worker.NewError(worker.CommunicationError, "eof"), expectErr: validation.ErrAmbiguousWorkerDeath},
		{name: "job died", err: worker.NewError(worker.JobDied, "killed"), expectErr: validation.ErrAmbiguousJobDeath},
		{name: "job error", err: worker.NewError(worker.JobError, "oom"), expectErr: validation.ErrJobError},
		{name: "worker internal", err: worker.NewError(worker.WorkerInternalError, "disk"), expectErr: validation.ErrInternal},
		{name: "plain error", err: errors.New("boom"), expectErr: validation.ErrInternal},
		{name: "no response", expectErr: validation.ErrInternal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual := conclude(tc.response, tc.err)
			assert.Equal(t, tc.expectIdle, actual.idle != nil)
			assert.Equal(t, tc.expectRemove, actual.removeArtifact)
			if tc.expectErr == nil {
				assert.NoError(t, actual.result.Err)
				assert.Equal(t, []byte("r"), actual.result.Outcome.ResultDescriptor)
				assert.Equal(t, time.Second, actual.result.Outcome.Duration)
				return
			}
			assert.Nil(t, actual.result.Outcome)
			assert.ErrorIs(t, actual.result.Err, tc.expectErr)
		})
	}
}
