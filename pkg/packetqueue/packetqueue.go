// Package packetqueue implements the per-track RTP jitter/reorder buffer
// described in spec.md section 4.2: incoming packets are reordered and
// de-duplicated, then handed to a bounded FIFO that a single reader drains.
//
// Reordering and large-gap discontinuity handling are delegated to
// gortsplib's pkg/rtpreorderer unchanged (its relPos >= bufferSize branch
// already implements "reset on large sequence-number discontinuity": it
// clears the reorder window and resumes from the packet that triggered the
// jump). This package adds the two things rtpreorderer does not do on its
// own: a bounded, drop-oldest-when-full FIFO in front of a blocking reader,
// grounded on pkg/ringbuffer's producer/consumer handoff style but using a
// plain mutex+cond instead of the lock-free ring, since drop-oldest
// requires inspecting and mutating the middle of the buffer rather than a
// single atomic slot swap.
package packetqueue

import (
	"sync"

	"github.com/pion/rtp"

	"github.com/bluenviron/mediatrack/pkg/rtpreorderer"
)

// Queue is a bounded, reordering RTP packet buffer for one transport
// channel (e.g. one RTP stream within a track).
type Queue struct {
	capacity  int
	reorderer *rtpreorderer.Reorderer

	mu      sync.Mutex
	cond    *sync.Cond
	items   []*rtp.Packet
	closed  bool
	dropped int
}

// New allocates a Queue holding up to capacity packets.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 512
	}
	q := &Queue{
		capacity:  capacity,
		reorderer: rtpreorderer.New(),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push reorders pkt against previously pushed packets and enqueues any
// packets that become ready for delivery, in order. When the queue is at
// capacity, the oldest buffered packet is dropped to make room, per
// spec.md's "newest packet wins" overflow policy.
func (q *Queue) Push(pkt *rtp.Packet) {
	ready := q.reorderer.Process(pkt)
	if len(ready) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	for _, p := range ready {
		if len(q.items) >= q.capacity {
			q.items = q.items[1:]
			q.dropped++
		}
		q.items = append(q.items, p)
	}
	q.cond.Signal()
}

// Pop blocks until a packet is available or the queue is closed. The
// second return value is false only once the queue is closed and drained.
func (q *Queue) Pop() (*rtp.Packet, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}

	if len(q.items) == 0 {
		return nil, false
	}

	p := q.items[0]
	q.items = q.items[1:]
	return p, true
}

// Close unblocks any pending or future Pop call once the queue drains.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of packets currently buffered.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns the number of packets discarded due to the queue being
// at capacity, for diagnostics.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
