package samplequeue

import (
	"testing"

	"github.com/bluenviron/mediatrack/pkg/mediaformat"
	"github.com/stretchr/testify/require"
)

func newTestFormat(id string) mediaformat.Format {
	f := mediaformat.New()
	f.ID = id
	return f
}

type recordingListener struct {
	calls []mediaformat.Format
}

func (r *recordingListener) OnUpstreamFormatChanged(format mediaformat.Format) {
	r.calls = append(r.calls, format)
}

func TestReadDeliversFormatBeforeFirstSample(t *testing.T) {
	q := New(nil)
	f := newTestFormat("a")
	q.Append(f, 0, FlagKeyframe, []byte{1})

	result, gotFormat, _ := q.Read(false, false)
	require.Equal(t, FormatRead, result)
	require.True(t, gotFormat.Equal(f))

	result, _, sample := q.Read(false, false)
	require.Equal(t, BufferRead, result)
	require.Equal(t, int64(0), sample.TimestampUs)
}

func TestReadNothingWhenEmptyAndNotFinished(t *testing.T) {
	q := New(nil)
	result, _, _ := q.Read(false, false)
	require.Equal(t, NothingRead, result)
}

func TestReadEndOfStreamWhenLoadingFinished(t *testing.T) {
	q := New(nil)
	result, _, _ := q.Read(false, true)
	require.Equal(t, EndOfStream, result)
}

func TestUpstreamFormatChangeListenerFiresOnce(t *testing.T) {
	q := New(nil)
	l := &recordingListener{}
	q.SetUpstreamFormatChangeListener(l)

	f1 := newTestFormat("a")
	q.Append(f1, 0, FlagKeyframe, nil)
	q.Append(f1, 1000, 0, nil)
	require.Len(t, l.calls, 1)

	f2 := newTestFormat("b")
	q.Append(f2, 2000, FlagKeyframe, nil)
	require.Len(t, l.calls, 2)
}

func TestSeekToFindsLatestKeyframeAtOrBeforePosition(t *testing.T) {
	q := New(nil)
	f := newTestFormat("a")
	q.Append(f, 0, FlagKeyframe, nil)
	q.Append(f, 500_000, 0, nil)
	q.Append(f, 1_000_000, FlagKeyframe, nil)
	q.Append(f, 1_500_000, 0, nil)
	q.Append(f, 2_000_000, FlagKeyframe, nil)

	ok := q.SeekTo(1_500_000, false)
	require.True(t, ok)

	// require.Format first, then the sample at the 1s keyframe.
	_, _, _ = q.Read(true, false)
	_, _, sample := q.Read(false, false)
	require.Equal(t, int64(1_000_000), sample.TimestampUs)
}

func TestSeekToFailsWithNoQualifyingKeyframe(t *testing.T) {
	q := New(nil)
	f := newTestFormat("a")
	q.Append(f, 1_000_000, FlagKeyframe, nil)

	ok := q.SeekTo(500_000, false)
	require.False(t, ok)
}

// TestSeekToFailsPastLargestQueuedTimestampWithoutAllowBeyondBuffer covers
// the documented out-of-buffer scenario: keyframes at 0, 1s and 2s, seeking
// to 10s. The backward keyframe scan alone would land on the 2s keyframe
// and report success, so this requires a target bounds-check against
// largestQueuedTimestampUs ahead of that scan.
func TestSeekToFailsPastLargestQueuedTimestampWithoutAllowBeyondBuffer(t *testing.T) {
	q := New(nil)
	f := newTestFormat("a")
	q.Append(f, 0, FlagKeyframe, nil)
	q.Append(f, 1_000_000, 0, nil)
	q.Append(f, 2_000_000, FlagKeyframe, nil)

	require.False(t, q.CanSeekTo(10_000_000, false))
	ok := q.SeekTo(10_000_000, false)
	require.False(t, ok)

	// The read cursor must be untouched by the failed seek.
	_, _, _ = q.Read(true, false)
	_, _, sample := q.Read(false, false)
	require.Equal(t, int64(0), sample.TimestampUs)
}

func TestSeekToAllowBeyondBuffer(t *testing.T) {
	q := New(nil)
	f := newTestFormat("a")
	q.Append(f, 0, FlagKeyframe, nil)

	// The target is past the buffer, but the keyframe at 0 is still the
	// latest keyframe <= 10s, so the cursor lands on it.
	ok := q.SeekTo(10_000_000, true)
	require.True(t, ok)
	require.True(t, q.IsReady(false))
	require.True(t, q.IsReady(true))
}

func TestAdvanceToSkipsSamplesBeforePosition(t *testing.T) {
	q := New(nil)
	f := newTestFormat("a")
	q.Append(f, 0, FlagKeyframe, nil)
	q.Append(f, 1000, 0, nil)
	q.Append(f, 2000, 0, nil)

	skipped := q.AdvanceTo(1500)
	require.Equal(t, 2, skipped)

	_, _, _ = q.Read(true, false)
	_, _, sample := q.Read(false, false)
	require.Equal(t, int64(2000), sample.TimestampUs)
}

func TestAdvanceToEndSkipsEverything(t *testing.T) {
	q := New(nil)
	f := newTestFormat("a")
	q.Append(f, 0, FlagKeyframe, nil)
	q.Append(f, 1000, 0, nil)

	skipped := q.AdvanceToEnd()
	require.Equal(t, 2, skipped)
	require.False(t, q.IsReady(false))
}

func TestDiscardToKeyframeRetainsTheKeyframeItself(t *testing.T) {
	q := New(nil)
	f := newTestFormat("a")
	q.Append(f, 0, FlagKeyframe, nil)
	q.Append(f, 1000, 0, nil)
	q.Append(f, 2000, FlagKeyframe, nil)
	q.Append(f, 3000, 0, nil)

	q.DiscardTo(2500, true, false)

	_, _, _ = q.Read(true, false)
	_, _, sample := q.Read(false, false)
	require.Equal(t, int64(2000), sample.TimestampUs)
}

func TestDiscardToStopsAtReadPosition(t *testing.T) {
	q := New(nil)
	f := newTestFormat("a")
	q.Append(f, 0, FlagKeyframe, nil)
	q.Append(f, 1000, FlagKeyframe, nil)
	q.Append(f, 2000, FlagKeyframe, nil)

	// consume only the format + first sample.
	_, _, _ = q.Read(true, false)
	_, _, _ = q.Read(false, false)

	q.DiscardTo(2000, true, true)

	_, _, sample := q.Read(false, false)
	require.Equal(t, int64(1000), sample.TimestampUs, "unread sample must survive a stopAtReadPosition discard")
}

func TestDiscardToEndLeavesQueueAppendable(t *testing.T) {
	q := New(nil)
	f := newTestFormat("a")
	q.Append(f, 0, FlagKeyframe, nil)

	q.DiscardToEnd()
	require.False(t, q.IsReady(false))

	q.Append(f, 1000, FlagKeyframe, nil)
	require.True(t, q.IsReady(false))
	require.NotNil(t, q.UpstreamFormat(), "DiscardToEnd must not clear the upstream format")
}

func TestResetClearsUpstreamFormat(t *testing.T) {
	q := New(nil)
	f := newTestFormat("a")
	q.Append(f, 0, FlagKeyframe, nil)
	require.NotNil(t, q.UpstreamFormat())

	q.Reset()
	require.Nil(t, q.UpstreamFormat())
	require.Equal(t, TimeUnset, q.LargestQueuedTimestampUs())
}

func TestReleaseMakesAppendANoOp(t *testing.T) {
	q := New(nil)
	q.Release()
	q.Append(newTestFormat("a"), 0, FlagKeyframe, nil)
	require.False(t, q.IsReady(false))
}

func TestLargestQueuedTimestampIsMaxNotLastArrival(t *testing.T) {
	q := New(nil)
	f := newTestFormat("a")
	q.Append(f, 5000, FlagKeyframe, nil)
	q.Append(f, 1000, 0, nil)
	require.Equal(t, int64(5000), q.LargestQueuedTimestampUs())
}

func TestDiscardReleasesBuffersToAllocator(t *testing.T) {
	alloc := NewAllocator(1024)
	q := New(alloc)
	f := newTestFormat("a")

	buf := alloc.Allocate(10)
	q.Append(f, 0, FlagKeyframe, buf)
	require.Equal(t, 1, alloc.BlocksAllocated())

	q.DiscardToEnd()
	// the released block should be reusable without growing the pool.
	_ = alloc.Allocate(10)
	require.Equal(t, 1, alloc.BlocksAllocated())
}
