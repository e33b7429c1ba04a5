package samplequeue

import "sync"

const defaultBlockSize = 64 * 1024

// Allocator hands out byte blocks that samples copy their payload into, so
// that steady-state playback reuses a small, bounded set of buffers instead
// of allocating one slice per sample. It is grounded on gortsplib's
// pkg/multibuffer.MultiBuffer (plain round-robin reuse of a fixed buffer
// set), extended with a free-list and a mutex because, unlike MultiBuffer,
// an Allocator here is genuinely shared between the loader goroutine that
// writes samples and reader goroutines that release them back (spec.md
// section 5: "Allocator is assumed externally thread-safe").
type Allocator struct {
	blockSize int

	mu    sync.Mutex
	free  [][]byte
	total int
}

// NewAllocator allocates an Allocator whose blocks are blockSize bytes.
// If blockSize is 0, defaultBlockSize is used.
func NewAllocator(blockSize int) *Allocator {
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	return &Allocator{blockSize: blockSize}
}

// Allocate returns a buffer able to hold n bytes. Payloads larger than one
// block are allocated directly (not pooled); this is the common case only
// for unusually large samples, and mirrors the fallback gortsplib itself
// takes when a single RTP/RTCP datagram exceeds its buffer pool sizing
// (see client_udp_listener.go's maxPacketSize check).
func (a *Allocator) Allocate(n int) []byte {
	if n > a.blockSize {
		return make([]byte, n)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if l := len(a.free); l > 0 {
		buf := a.free[l-1]
		a.free = a.free[:l-1]
		return buf[:n]
	}

	a.total++
	return make([]byte, n, a.blockSize)
}

// Release returns a block to the pool for reuse. Blocks larger than
// blockSize (the large-payload fallback) are dropped rather than pooled.
func (a *Allocator) Release(buf []byte) {
	if cap(buf) != a.blockSize {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.free = append(a.free, buf[:0:a.blockSize])
}

// BlocksAllocated returns the number of blocks ever created, for tests and
// diagnostics.
func (a *Allocator) BlocksAllocated() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}
