// internal/async/runner.go
package async

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"glider-device-service/internal/operation"
)

// ErrBusy is returned when a job is started while another one runs
var ErrBusy = errors.New("another job is running")

// State is the lifecycle of a job
type State int32

const (
	StateRunning State = iota
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Job is the work executed on the runner's goroutine
type Job func(env operation.Env) error

// Handle tracks one started job
type Handle struct {
	id     uuid.UUID
	name   string
	env    *operation.ContextEnv
	cancel context.CancelFunc
	done   chan struct{}

	state atomic.Int32
	err   error
}

func (h *Handle) ID() uuid.UUID {
	return h.id
}

func (h *Handle) Name() string {
	return h.name
}

func (h *Handle) State() State {
	return State(h.state.Load())
}

// Cancel asks the job to stop; it does not wait
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed when the job finished
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the job finished and returns its error
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Err returns the job's error once it finished
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Progress returns what the job reported so far
func (h *Handle) Progress() operation.Progress {
	return h.env.Progress()
}

// Runner executes at most one job at a time in the background
type Runner struct {
	mu      sync.Mutex
	current *Handle
	busy    atomic.Bool
	logger  *zap.Logger
}

// NewRunner creates an idle runner
func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{logger: logger}
}

// IsBusy reports whether a job is running
func (r *Runner) IsBusy() bool {
	return r.busy.Load()
}

// Start runs job on a new goroutine. The job's environment is cancelled
// with ctx or through the returned handle.
func (r *Runner) Start(ctx context.Context, name string, job Job, listener operation.ProgressListener) (*Handle, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: cannot start %s", ErrBusy, name)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		id:     uuid.New(),
		name:   name,
		env:    operation.NewContextEnv(jobCtx, r.logger, listener),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	r.current = h
	r.mu.Unlock()

	go r.run(h, job)
	return h, nil
}

func (r *Runner) run(h *Handle, job Job) {
	logger := r.logger.With(zap.String("job", h.name), zap.String("job_id", h.id.String()))
	logger.Debug("Job started")

	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("job panicked: %v", rec)
			}
		}()
		return job(h.env)
	}()

	state := StateSucceeded
	switch {
	case err == nil:
	case errors.Is(err, operation.ErrCancelled) || h.env.IsCancelled():
		state = StateCancelled
		logger.Info("Job cancelled")
	default:
		state = StateFailed
		logger.Warn("Job failed", zap.Error(err))
	}

	h.err = err
	h.state.Store(int32(state))
	h.cancel()

	r.busy.Store(false)
	close(h.done)
}

// Current returns the most recent job, running or not
func (r *Runner) Current() *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Cancel asks the running job to stop
func (r *Runner) Cancel() {
	if h := r.Current(); h != nil {
		h.Cancel()
	}
}

// CancelAndWait stops the running job and waits for it
func (r *Runner) CancelAndWait() {
	if h := r.Current(); h != nil {
		h.Cancel()
		<-h.Done()
	}
}

// Wait blocks until the running job finished
func (r *Runner) Wait() {
	if h := r.Current(); h != nil {
		<-h.Done()
	}
}
