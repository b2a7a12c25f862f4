// internal/operation/env.go
package operation

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCancelled is returned when an operation stops because it was cancelled
var ErrCancelled = errors.New("operation cancelled")

// Env is handed to every blocking device operation. It carries
// cancellation and receives progress reports.
type Env interface {
	Context() context.Context
	IsCancelled() bool

	// Sleep waits for d and returns false if cancelled meanwhile
	Sleep(d time.Duration) bool

	SetText(text string)
	SetError(text string)
	SetProgressRange(n uint)
	SetProgressPosition(n uint)
}

// Progress is a snapshot of an operation's reported progress
type Progress struct {
	Range    uint
	Position uint
	Text     string
	Error    string
}

// ProgressListener is notified whenever progress changes
type ProgressListener func(p Progress)

// ContextEnv implements Env on top of a context.Context
type ContextEnv struct {
	ctx      context.Context
	logger   *zap.Logger
	listener ProgressListener

	mu       sync.Mutex
	progress Progress
}

// NewContextEnv creates an environment cancelled together with ctx
func NewContextEnv(ctx context.Context, logger *zap.Logger, listener ProgressListener) *ContextEnv {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextEnv{
		ctx:      ctx,
		logger:   logger,
		listener: listener,
	}
}

// NewNullEnv creates an environment that is never cancelled and discards progress
func NewNullEnv() *ContextEnv {
	return NewContextEnv(context.Background(), nil, nil)
}

func (e *ContextEnv) Context() context.Context {
	return e.ctx
}

func (e *ContextEnv) IsCancelled() bool {
	return e.ctx.Err() != nil
}

func (e *ContextEnv) Sleep(d time.Duration) bool {
	return sleepContext(e.ctx, d)
}

func (e *ContextEnv) SetText(text string) {
	e.update(func(p *Progress) { p.Text = text })
	e.logger.Debug("Operation text", zap.String("text", text))
}

func (e *ContextEnv) SetError(text string) {
	e.update(func(p *Progress) { p.Error = text })
	e.logger.Warn("Operation error", zap.String("error", text))
}

func (e *ContextEnv) SetProgressRange(n uint) {
	e.update(func(p *Progress) {
		p.Range = n
		p.Position = 0
	})
}

func (e *ContextEnv) SetProgressPosition(n uint) {
	e.update(func(p *Progress) { p.Position = n })
}

// Progress returns the current progress snapshot
func (e *ContextEnv) Progress() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

func (e *ContextEnv) update(fn func(p *Progress)) {
	e.mu.Lock()
	fn(&e.progress)
	snapshot := e.progress
	e.mu.Unlock()

	if e.listener != nil {
		e.listener(snapshot)
	}
}

// childEnv is cancelled by its own context or by the parent and forwards
// progress reports to the parent.
type childEnv struct {
	ctx    context.Context
	parent Env
}

// WithContext derives an environment that is cancelled when either ctx or
// parent is cancelled.
func WithContext(ctx context.Context, parent Env) Env {
	return &childEnv{ctx: ctx, parent: parent}
}

func (e *childEnv) Context() context.Context {
	return e.ctx
}

func (e *childEnv) IsCancelled() bool {
	return e.ctx.Err() != nil || e.parent.IsCancelled()
}

func (e *childEnv) Sleep(d time.Duration) bool {
	if e.parent.IsCancelled() {
		return false
	}
	ctx, cancel := context.WithCancel(e.ctx)
	defer cancel()
	stop := context.AfterFunc(e.parent.Context(), cancel)
	defer stop()
	return sleepContext(ctx, d)
}

func (e *childEnv) SetText(text string)        { e.parent.SetText(text) }
func (e *childEnv) SetError(text string)       { e.parent.SetError(text) }
func (e *childEnv) SetProgressRange(n uint)    { e.parent.SetProgressRange(n) }
func (e *childEnv) SetProgressPosition(n uint) { e.parent.SetProgressPosition(n) }

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
