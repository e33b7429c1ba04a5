// Package ringbuffer contains a ring buffer used by internal/eventloop to
// hand posted closures from any caller goroutine to the single loop
// goroutine that runs them.
package ringbuffer

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// RingBuffer is a ring buffer.
type RingBuffer struct {
	size       uint64
	readIndex  uint64
	writeIndex uint64
	closed     int64
	buffer     []unsafe.Pointer
	event      *event
}

// New allocates a RingBuffer.
func New(size uint64) (*RingBuffer, error) {
	// when writeIndex overflows, if size is not a power of
	// two, only a portion of the buffer is used.
	if (size & (size - 1)) != 0 {
		return nil, fmt.Errorf("size must be a power of two")
	}

	return &RingBuffer{
		size:       size,
		readIndex:  1,
		writeIndex: 0,
		buffer:     make([]unsafe.Pointer, size),
		event:      newEvent(),
	}, nil
}

// Close makes Pull() return false.
func (r *RingBuffer) Close() {
	atomic.StoreInt64(&r.closed, 1)
	r.event.signal()
}

// Reset restores Pull() behavior after a Close().
func (r *RingBuffer) Reset() {
	for i := uint64(0); i < r.size; i++ {
		atomic.SwapPointer(&r.buffer[i], nil)
	}
	atomic.SwapUint64(&r.writeIndex, 0)
	r.readIndex = 1
	atomic.StoreInt64(&r.closed, 0)
}

// Push pushes data at the end of the buffer. It returns false without
// enqueuing anything if the buffer has already been Close()d, or if it is
// full (existing items are kept), so a caller posting work into a buffer
// that backs a stopped consumer (e.g. eventloop.Loop after Close) can tell
// apart from a successful post rather than silently losing it.
func (r *RingBuffer) Push(data interface{}) bool {
	if atomic.LoadInt64(&r.closed) == 1 {
		return false
	}
	writeIndex := atomic.AddUint64(&r.writeIndex, 1)
	i := writeIndex % r.size
	if !atomic.CompareAndSwapPointer(&r.buffer[i], nil, unsafe.Pointer(&data)) {
		atomic.AddUint64(&r.writeIndex, ^uint64(0))
		return false
	}
	r.event.signal()
	return true
}

// Pull pulls data from the beginning of the buffer. Once the buffer has
// been Close()d it returns false, even if items are still pending.
func (r *RingBuffer) Pull() (interface{}, bool) {
	for {
		if atomic.LoadInt64(&r.closed) == 1 {
			return nil, false
		}
		i := r.readIndex % r.size
		res := (*interface{})(atomic.SwapPointer(&r.buffer[i], nil))
		if res == nil {
			r.event.wait()
			continue
		}

		r.readIndex++
		return *res, true
	}
}
