package shell

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/exq/service/worker"
	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
)

// Environment variables passed to every worker session.
const (
	EnvCachePath      = "EXQ_CACHE_PATH"
	EnvExecutorParams = "EXQ_EXECUTOR_PARAMS"
	EnvNodeVersion    = "EXQ_NODE_VERSION"
	EnvSecurity       = "EXQ_SECURITY"
)

// Service implements worker.Interface on top of local gosh sessions
type Service struct {
	logger       zerolog.Logger
	pollInterval time.Duration
}

type session struct {
	program string
	service *gosh.Service
	handle  *handle
}

// New creates a shell worker backend
func New(options ...Option) *Service {
	ret := &Service{
		logger:       zlog.Logger.With().Str("component", "shell-worker").Logger(),
		pollInterval: 200 * time.Millisecond,
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Spawn starts a shell session configured for the request executor params
func (s *Service) Spawn(ctx context.Context, request *worker.SpawnRequest) (*worker.Idle, worker.Handle, error) {
	if request.SpawnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, request.SpawnTimeout)
		defer cancel()
	}
	security, err := json.Marshal(request.Security)
	if err != nil {
		return nil, nil, &worker.SpawnError{Reason: "invalid security status", Err: err}
	}
	env := map[string]string{
		EnvCachePath:      localPath(request.CachePath),
		EnvExecutorParams: request.ExecutorParams.Encode(),
		EnvNodeVersion:    request.NodeVersion,
		EnvSecurity:       string(security),
	}
	service, err := gosh.New(ctx, local.New(runner.WithEnvironment(env)))
	if err != nil {
		return nil, nil, &worker.SpawnError{Reason: "failed to start session", Err: err}
	}
	if request.NodeVersion != "" {
		if err = s.checkVersion(ctx, service, request); err != nil {
			_ = service.Close()
			return nil, nil, err
		}
	}
	output, _, err := service.Run(ctx, "echo $$")
	if err != nil {
		_ = service.Close()
		return nil, nil, &worker.SpawnError{Reason: "failed to read session pid", Err: err}
	}
	pid, err := strconv.Atoi(lastLine(output))
	if err != nil {
		_ = service.Close()
		return nil, nil, &worker.SpawnError{Reason: "invalid session pid " + output, Err: err}
	}
	h := newHandle(pid, service, s.pollInterval)
	s.logger.Debug().Int("pid", pid).Str("params", request.ExecutorParams.Encode()).Msg("worker session started")
	idle := &worker.Idle{
		WorkerID: strconv.Itoa(pid),
		Session:  &session{program: request.ProgramPath, service: service, handle: h},
	}
	return idle, h, nil
}

func (s *Service) checkVersion(ctx context.Context, service *gosh.Service, request *worker.SpawnRequest) error {
	output, code, err := service.Run(ctx, request.ProgramPath+" --version")
	if err != nil {
		return &worker.SpawnError{Reason: "failed to check worker version", Err: err}
	}
	if code != 0 {
		return &worker.SpawnError{Reason: fmt.Sprintf("worker version check exited with %d", code)}
	}
	if version := lastLine(output); version != request.NodeVersion {
		return &worker.SpawnError{Reason: fmt.Sprintf("worker version %q does not match node version %q", version, request.NodeVersion)}
	}
	return nil
}

// StartWork runs one job on the worker session
func (s *Service) StartWork(ctx context.Context, idle *worker.Idle, work *worker.Work) (*worker.Response, error) {
	sess, ok := idle.Session.(*session)
	if !ok {
		return nil, worker.NewError(worker.InternalError, fmt.Sprintf("unsupported session type: %T", idle.Session))
	}
	command := fmt.Sprintf("%s execute --artifact %s --params %s",
		sess.program,
		strconv.Quote(localPath(work.Artifact.Path)),
		base64.StdEncoding.EncodeToString(work.Params))
	var options []runner.Option
	if work.Timeout > 0 {
		options = append(options, runner.WithTimeout(int(work.Timeout.Milliseconds())))
	}
	started := time.Now()
	output, code, err := sess.service.Run(ctx, command, options...)
	elapsed := time.Since(started)
	if work.Timeout > 0 && elapsed >= work.Timeout {
		return nil, worker.NewError(worker.HardTimeout, fmt.Sprintf("no reply after %s", elapsed))
	}
	if ctx.Err() != nil {
		return nil, worker.Wrap(worker.InternalError, ctx.Err())
	}
	select {
	case <-sess.handle.Done():
		return nil, worker.NewError(worker.CommunicationError, "worker process exited")
	default:
	}
	if err != nil {
		return nil, worker.Wrap(worker.CommunicationError, err)
	}
	response, err := parseReply(lastLine(output), idle)
	if err != nil {
		if code != 0 {
			return nil, worker.NewError(worker.CommunicationError, fmt.Sprintf("worker exited with %d: %v", code, err))
		}
		return nil, err
	}
	if response.Duration == 0 {
		response.Duration = elapsed
	}
	return response, nil
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// localPath strips the file scheme from location; workers read the cache
// directly from the local file system.
func localPath(location string) string {
	if url.Scheme(location, file.Scheme) != file.Scheme {
		return location
	}
	return url.Path(location)
}
