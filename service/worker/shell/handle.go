package shell

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shirou/gopsutil/process"
	"github.com/viant/gosh"
)

// handle watches a worker shell process
type handle struct {
	pid     int
	session *gosh.Service
	done    chan struct{}
	once    sync.Once
	cancel  context.CancelFunc
}

func newHandle(pid int, session *gosh.Service, pollInterval time.Duration) *handle {
	ctx, cancel := context.WithCancel(context.Background())
	ret := &handle{pid: pid, session: session, done: make(chan struct{}), cancel: cancel}
	go ret.watch(ctx, pollInterval)
	return ret
}

func (h *handle) watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		exists, err := process.PidExistsWithContext(ctx, int32(h.pid))
		if err == nil && !exists {
			h.exited()
			return
		}
	}
}

func (h *handle) exited() {
	h.once.Do(func() {
		h.cancel()
		close(h.done)
	})
}

// Done implements worker.Handle
func (h *handle) Done() <-chan struct{} {
	return h.done
}

// PID implements worker.Handle
func (h *handle) PID() int {
	return h.pid
}

// Kill implements worker.Handle
func (h *handle) Kill() error {
	select {
	case <-h.done:
		return nil
	default:
	}
	defer h.exited()
	var err error
	if h.pid > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var proc *process.Process
		if proc, err = process.NewProcessWithContext(ctx, int32(h.pid)); err == nil {
			err = proc.KillWithContext(ctx)
		}
		if errors.Is(err, process.ErrorProcessNotRunning) {
			err = nil
		}
	}
	if h.session != nil {
		if closeErr := h.session.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}
