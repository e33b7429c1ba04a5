// Package loader implements the single-active-task load scheduler described
// in spec.md section 4.6, grounded on original_source's Loader/Loadable
// pair (RtspSampleStreamWrapper's MediaStreamLoadable runs under a Loader):
// one task runs at a time, retried in place on error until the callback
// says to give up, and cancellation distinguishes an ordinary stop from a
// release so the callback can decide whether to discard buffered state.
package loader

import (
	"context"
	"errors"
	"sync"

	"github.com/bluenviron/mediatrack/pkg/mediaerrors"
)

// Loadable is one unit of retryable work, e.g. "read this RTP/RTCP
// transport until stopped or it fails".
type Loadable interface {
	// Load runs until ctx is cancelled, the source is exhausted, or an
	// error occurs.
	Load(ctx context.Context) error
	// Cancel requests that an in-progress Load return promptly. It may be
	// called concurrently with Load.
	Cancel()
}

// RetryAction is returned from Callback.OnLoadError to decide whether the
// Loadable should be retried.
type RetryAction int

// Retry actions.
const (
	DontRetry RetryAction = iota
	RetryNow
)

// Callback receives the outcome of a load task.
type Callback interface {
	OnLoadCompleted(loadable Loadable)
	OnLoadCanceled(loadable Loadable, released bool)
	OnLoadError(loadable Loadable, err error, retryCount int) RetryAction
}

// Loader runs at most one Loadable at a time.
type Loader struct {
	mu         sync.Mutex
	task       *loadTask
	fatalError error
}

type loadTask struct {
	loadable Loadable
	callback Callback

	ctx      context.Context
	cancelFn context.CancelFunc

	mu       sync.Mutex
	canceled bool
	released bool

	done chan struct{}
}

// New allocates an idle Loader.
func New() *Loader {
	return &Loader{}
}

// StartLoading begins running loadable in a new goroutine. It is the
// caller's responsibility not to call StartLoading again before the
// previous task has completed, been canceled, or the Loader released.
func (l *Loader) StartLoading(loadable Loadable, callback Callback) {
	ctx, cancel := context.WithCancel(context.Background())
	t := &loadTask{
		loadable: loadable,
		callback: callback,
		ctx:      ctx,
		cancelFn: cancel,
		done:     make(chan struct{}),
	}

	l.mu.Lock()
	l.task = t
	l.mu.Unlock()

	go l.run(t)
}

func (l *Loader) run(t *loadTask) {
	defer close(t.done)
	defer func() {
		l.mu.Lock()
		if l.task == t {
			l.task = nil
		}
		l.mu.Unlock()
	}()

	retryCount := 0

	for {
		err := t.loadable.Load(t.ctx)

		t.mu.Lock()
		canceled := t.canceled
		released := t.released
		t.mu.Unlock()

		if canceled || (err != nil && errIsCancellation(err)) {
			t.callback.OnLoadCanceled(t.loadable, released)
			return
		}

		if err == nil {
			t.callback.OnLoadCompleted(t.loadable)
			return
		}

		retryCount++
		action := t.callback.OnLoadError(t.loadable, err, retryCount)
		if action == DontRetry {
			l.mu.Lock()
			l.fatalError = err
			l.mu.Unlock()
			return
		}
	}
}

func errIsCancellation(err error) bool {
	return errors.Is(err, mediaerrors.ErrCancellation)
}

// IsLoading reports whether a task is currently running.
func (l *Loader) IsLoading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.task != nil
}

// CancelLoading requests that the current task stop, if any. It does not
// wait for the task to finish.
func (l *Loader) CancelLoading() {
	l.mu.Lock()
	t := l.task
	l.mu.Unlock()
	if t == nil {
		return
	}

	t.mu.Lock()
	t.canceled = true
	t.mu.Unlock()

	t.loadable.Cancel()
	t.cancelFn()
}

// MaybeThrowError returns the most recent fatal (non-retried) load error,
// if one has not been cleared.
func (l *Loader) MaybeThrowError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fatalError
}

// ClearFatalError drops any stored fatal error, e.g. after the caller has
// handled it by starting a fresh load.
func (l *Loader) ClearFatalError() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fatalError = nil
}

// Release cancels any running task (marking it released rather than merely
// canceled) and invokes onReleased exactly once, after the task's Load call
// has returned. If no task is running, onReleased runs synchronously.
func (l *Loader) Release(onReleased func()) {
	l.mu.Lock()
	t := l.task
	l.mu.Unlock()

	if t == nil {
		if onReleased != nil {
			onReleased()
		}
		return
	}

	t.mu.Lock()
	t.canceled = true
	t.released = true
	t.mu.Unlock()

	t.loadable.Cancel()
	t.cancelFn()

	go func() {
		<-t.done
		if onReleased != nil {
			onReleased()
		}
	}()
}
