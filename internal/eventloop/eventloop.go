// Package eventloop implements the single-threaded, FIFO posted-callback
// actor that backs the root Wrapper (WrapperCoordinator): Prepare's loader
// start-up and the loader callbacks (load completed/canceled/failed,
// prepare completion) are posted here and run one at a time in posting
// order. The Wrapper's other public methods (SelectTracks, Playback,
// SeekToUs, DiscardBuffer, Release, ...) do not go through the loop: they
// run on the caller's goroutine and guard shared state with the Wrapper's
// mutex.
//
// It is adapted from gortsplib's internal/asyncprocessor.Processor: same
// single-worker ring-buffer handoff and terminal OnError callback, renamed
// to fit a coordinator that posts prepare and load-callback work instead
// of outgoing RTP/RTCP frames. A returned error stops the loop for
// good, so posted closures return one only for a fault the coordinator
// cannot recover from; OnError is the Wrapper's last chance to tell its
// listener about it.
package eventloop

import (
	"context"

	"github.com/bluenviron/mediatrack/pkg/ringbuffer"
)

const defaultBufferSize = 256

// Loop runs posted closures one at a time, in the order they were posted.
type Loop struct {
	// OnError is invoked from the loop goroutine if a posted closure
	// returns an error; the loop then stops accepting further work.
	OnError func(ctx context.Context, err error)

	bufferSize int

	running   bool
	buffer    *ringbuffer.RingBuffer
	ctx       context.Context
	ctxCancel func()

	done chan struct{}
}

// New allocates a Loop with the given buffer size (rounded up to a power of
// two, as the ring buffer requires; 0 selects a default of 256).
func New(bufferSize int) *Loop {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	size := 1
	for size < bufferSize {
		size <<= 1
	}
	return &Loop{bufferSize: size}
}

// Start begins processing posted closures in a background goroutine.
func (l *Loop) Start() {
	l.buffer, _ = ringbuffer.New(uint64(l.bufferSize))
	l.ctx, l.ctxCancel = context.WithCancel(context.Background())
	l.done = make(chan struct{})
	l.running = true
	go l.run()
}

// Close stops the loop. Closures already posted but not yet run are
// dropped; Close blocks until the loop goroutine has exited.
func (l *Loop) Close() {
	l.ctxCancel()
	l.buffer.Close()
	if l.running {
		<-l.done
		l.running = false
	}
}

// Post enqueues cb to run on the loop goroutine. It returns false if the
// loop has been closed or its buffer is full.
func (l *Loop) Post(cb func() error) bool {
	return l.buffer.Push(cb)
}

func (l *Loop) run() {
	defer close(l.done)

	err := l.runInner()
	if err != nil && l.OnError != nil {
		l.OnError(l.ctx, err)
	}
}

func (l *Loop) runInner() error {
	for {
		tmp, ok := l.buffer.Pull()
		if !ok {
			return nil
		}

		if err := tmp.(func() error)(); err != nil {
			return err
		}
	}
}
