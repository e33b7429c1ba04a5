// Package samplequeue implements the per-track ring buffer of decoded-ready
// samples described in spec.md section 4.5: a single writer (the loader's
// extractor driver) appends samples in arrival order, while the event loop
// and consumer-facing read API read, seek and discard concurrently.
//
// It is grounded on gortsplib's pkg/ringbuffer (bounded producer/consumer
// handoff) and pkg/multibuffer (buffer reuse, see allocator.go), generalized
// here from a fixed-capacity ring to a growable, seekable buffer because the
// spec requires in-place seek and discard-to-keyframe, which a strict ring
// of fixed slots cannot express without also tracking per-slot validity.
package samplequeue

import (
	"math"
	"sync"

	"github.com/bluenviron/mediatrack/pkg/mediaformat"
)

// Flags describes properties of a single Sample.
type Flags uint32

// FlagKeyframe marks a sample as a random-access point.
const FlagKeyframe Flags = 1 << 0

// TimeUnset is the sentinel for an absent/unknown timestamp, mirroring
// mediaformat.NoValue's role for integer fields.
const TimeUnset = int64(math.MinInt64)

// Sample is one elementary-stream access unit.
type Sample struct {
	TimestampUs int64
	Flags       Flags
	Data        []byte
}

// IsKeyframe reports whether the sample is a random-access point.
func (s Sample) IsKeyframe() bool {
	return s.Flags&FlagKeyframe != 0
}

// Result is the outcome of a Read call.
type Result int

// Read results.
const (
	NothingRead Result = iota
	FormatRead
	BufferRead
	EndOfStream
)

// UpstreamFormatChangeListener is notified the first time an appended
// sample's format differs from the previously appended one.
type UpstreamFormatChangeListener interface {
	OnUpstreamFormatChanged(format mediaformat.Format)
}

type entry struct {
	timestampUs int64
	flags       Flags
	data        []byte
	format      mediaformat.Format
}

// SampleQueue is a seekable, appendable buffer of samples for one
// elementary track. The zero value is not usable; construct with New.
type SampleQueue struct {
	allocator *Allocator

	mu sync.Mutex

	entries   []entry
	readIndex int

	largestQueuedTimestampUs int64
	upstreamFormat           *mediaformat.Format
	readFormat               *mediaformat.Format

	listener UpstreamFormatChangeListener

	released bool
}

// New allocates a SampleQueue backed by allocator (which may be shared
// across tracks; Allocator is internally thread-safe).
func New(allocator *Allocator) *SampleQueue {
	return &SampleQueue{
		allocator:                allocator,
		largestQueuedTimestampUs: TimeUnset,
	}
}

// SetUpstreamFormatChangeListener installs l, replacing any previous
// listener.
func (q *SampleQueue) SetUpstreamFormatChangeListener(l UpstreamFormatChangeListener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listener = l
}

// Append adds a sample produced with the given format to the queue. Samples
// are appended in arrival order, which need not match timestamp order.
func (q *SampleQueue) Append(format mediaformat.Format, timestampUs int64, flags Flags, data []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.released {
		return
	}

	if q.largestQueuedTimestampUs == TimeUnset || timestampUs > q.largestQueuedTimestampUs {
		q.largestQueuedTimestampUs = timestampUs
	}

	if q.upstreamFormat == nil || !q.upstreamFormat.Equal(format) {
		f := format
		q.upstreamFormat = &f
		if q.listener != nil {
			q.listener.OnUpstreamFormatChanged(format)
		}
	}

	q.entries = append(q.entries, entry{
		timestampUs: timestampUs,
		flags:       flags,
		data:        data,
		format:      *q.upstreamFormat,
	})
}

// UpstreamFormat returns the most recently appended format, or nil if no
// sample has been appended since construction or the last Reset.
func (q *SampleQueue) UpstreamFormat() *mediaformat.Format {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.upstreamFormat
}

// LargestQueuedTimestampUs returns the largest timestamp appended since
// construction or the last Reset, or TimeUnset if nothing has been
// appended yet.
func (q *SampleQueue) LargestQueuedTimestampUs() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.largestQueuedTimestampUs
}

// IsReady reports whether a sample is immediately readable, or, when
// loadingFinished is true, whether end-of-stream can be reported.
func (q *SampleQueue) IsReady(loadingFinished bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.readIndex < len(q.entries) || loadingFinished
}

// Read advances the read cursor and reports what became available.
// requireFormat forces a FormatRead even if the format at the read cursor
// matches the last format delivered to this reader.
func (q *SampleQueue) Read(requireFormat bool, loadingFinished bool) (Result, mediaformat.Format, Sample) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.readIndex >= len(q.entries) {
		if loadingFinished {
			return EndOfStream, mediaformat.Format{}, Sample{}
		}
		return NothingRead, mediaformat.Format{}, Sample{}
	}

	e := q.entries[q.readIndex]

	if requireFormat || q.readFormat == nil || !q.readFormat.Equal(e.format) {
		f := e.format
		q.readFormat = &f
		return FormatRead, f, Sample{}
	}

	q.readIndex++
	return BufferRead, mediaformat.Format{}, Sample{TimestampUs: e.timestampUs, Flags: e.flags, Data: e.data}
}

// AdvanceTo skips unread samples with timestamp < positionUs and returns
// how many were skipped. It never advances past the last appended sample.
func (q *SampleQueue) AdvanceTo(positionUs int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	for q.readIndex < len(q.entries) && q.entries[q.readIndex].timestampUs < positionUs {
		q.readIndex++
		count++
	}
	return count
}

// AdvanceToEnd skips all remaining unread samples and returns how many were
// skipped.
func (q *SampleQueue) AdvanceToEnd() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := len(q.entries) - q.readIndex
	q.readIndex = len(q.entries)
	return count
}

// CanSeekTo reports whether SeekTo(positionUs, allowBeyondBuffer) would
// succeed, without moving the read cursor. Callers that must seek several
// queues atomically (all-or-nothing) should check every queue with
// CanSeekTo before committing any of them with SeekTo.
func (q *SampleQueue) CanSeekTo(positionUs int64, allowBeyondBuffer bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.findSeekIndex(positionUs, allowBeyondBuffer)
	return ok
}

// SeekTo repositions the read cursor at the latest keyframe with timestamp
// <= positionUs. It returns whether the seek succeeded. When
// allowBeyondBuffer is false, a positionUs past the largest queued
// timestamp fails. When it is true, such a positionUs is accepted: the
// cursor still lands on the latest keyframe <= positionUs, or, if the
// buffer holds no such keyframe and positionUs is at or beyond the largest
// queued timestamp, at the end of the buffer.
func (q *SampleQueue) SeekTo(positionUs int64, allowBeyondBuffer bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx, ok := q.findSeekIndex(positionUs, allowBeyondBuffer)
	if !ok {
		return false
	}
	q.readIndex = idx
	return true
}

func (q *SampleQueue) findSeekIndex(positionUs int64, allowBeyondBuffer bool) (int, bool) {
	if len(q.entries) == 0 {
		return 0, false
	}

	if !allowBeyondBuffer && positionUs > q.largestQueuedTimestampUs {
		return 0, false
	}

	for i := len(q.entries) - 1; i >= 0; i-- {
		e := q.entries[i]
		if e.flags&FlagKeyframe != 0 && e.timestampUs <= positionUs {
			return i, true
		}
	}

	if allowBeyondBuffer && positionUs >= q.largestQueuedTimestampUs {
		return len(q.entries), true
	}

	return 0, false
}

// DiscardTo discards samples from the front of the buffer. When toKeyframe
// is true, only non-keyframe samples with timestamp <= positionUs that
// precede the latest such keyframe are discarded (the keyframe itself, and
// anything after it, is retained). When stopAtReadPosition is true,
// discarding never goes past the current read cursor, so unread samples
// are never lost.
func (q *SampleQueue) DiscardTo(positionUs int64, toKeyframe bool, stopAtReadPosition bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	limit := len(q.entries)
	if stopAtReadPosition && q.readIndex < limit {
		limit = q.readIndex
	}

	discardCount := 0
	if toKeyframe {
		lastKeyframe := -1
		for i := 0; i < limit; i++ {
			e := q.entries[i]
			if e.timestampUs <= positionUs && e.flags&FlagKeyframe != 0 {
				lastKeyframe = i
			}
		}
		if lastKeyframe > 0 {
			discardCount = lastKeyframe
		}
	} else {
		for i := 0; i < limit; i++ {
			if q.entries[i].timestampUs <= positionUs {
				discardCount = i + 1
			}
		}
	}

	q.discardFront(discardCount)
}

// DiscardToEnd discards every readable sample, but — unlike Reset — leaves
// the queue able to accept further Append calls without requiring a new
// format announcement.
func (q *SampleQueue) DiscardToEnd() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.discardFront(len(q.entries))
}

func (q *SampleQueue) discardFront(n int) {
	if n <= 0 {
		return
	}
	if q.allocator != nil {
		for i := 0; i < n; i++ {
			q.allocator.Release(q.entries[i].data)
		}
	}
	q.entries = append([]entry{}, q.entries[n:]...)
	q.readIndex -= n
	if q.readIndex < 0 {
		q.readIndex = 0
	}
}

// Reset empties the queue entirely and starts a new epoch: the next Append
// requires a fresh format announcement before any sample can be read with
// requireFormat=false semantics, since UpstreamFormat is cleared.
func (q *SampleQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.allocator != nil {
		for _, e := range q.entries {
			q.allocator.Release(e.data)
		}
	}
	q.entries = nil
	q.readIndex = 0
	q.largestQueuedTimestampUs = TimeUnset
	q.upstreamFormat = nil
	q.readFormat = nil
}

// Release permanently disables the queue; subsequent Append calls are
// no-ops.
func (q *SampleQueue) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.released = true
	q.entries = nil
}
