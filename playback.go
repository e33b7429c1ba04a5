package mediatrack

import (
	"math"

	"github.com/bluenviron/mediatrack/pkg/mediaerrors"
	"github.com/bluenviron/mediatrack/pkg/samplequeue"
)

// SelectTracks marks exactly the named tracks as enabled and asks the
// MediaSession to perform whatever RTSP signalling that implies (SETUP for
// newly enabled tracks). It requires Prepare to have already completed.
func (w *Wrapper) SelectTracks(trackIDs []string) error {
	w.mu.Lock()
	if !w.prepared {
		w.mu.Unlock()
		return mediaerrors.ErrPrepareNotComplete
	}

	selected := make(map[string]bool, len(trackIDs))
	tracks := make([]*MediaTrack, 0, len(trackIDs))
	for _, id := range trackIDs {
		selected[id] = true
		if t, ok := w.tracksByID[id]; ok {
			tracks = append(tracks, t)
		}
	}
	w.selected = selected
	w.mu.Unlock()

	return w.session.OnSelectTracks(tracks)
}

// Playback signals that the coordinator should transition from prepared to
// actively serving reads; after this call, maybeFinishPrepare no longer
// fires (matching original_source's guard that prepare can only complete
// once, before playback begins). This is also the point at which every
// track needing NAT traversal punches its hole: original_source punches on
// the transition to playing, not at SETUP/prepare time, since punching
// before the caller actually intends to read wastes the hole's short
// lifetime on a NAT that may have already forgotten it by the time reads
// begin. An interleaved session carries no UDP endpoints to punch.
func (w *Wrapper) Playback() error {
	w.mu.Lock()
	if !w.prepared {
		w.mu.Unlock()
		return mediaerrors.ErrPrepareNotComplete
	}
	firstTransition := !w.playbackStarted
	w.playbackStarted = true
	interleaved := w.interleaved
	w.mu.Unlock()

	if firstTransition && !interleaved {
		w.punchActiveLoadables()
	}

	if w.session.IsPaused() {
		return w.session.OnResume()
	}
	return nil
}

// punchActiveLoadables punches NAT on every currently active loadable that
// needs it. It is called exactly once, on the first transition into
// playback.
func (w *Wrapper) punchActiveLoadables() {
	w.mu.Lock()
	punchers := make([]natPuncher, 0, len(w.activeLoadables))
	for _, a := range w.activeLoadables {
		if p, ok := a.(natPuncher); ok {
			punchers = append(punchers, p)
		}
	}
	w.mu.Unlock()

	for _, p := range punchers {
		p.punchNAT()
	}
}

// SeekToUs seeks every selected track to positionUs. If every track can
// satisfy the seek from its already-buffered samples (landing on a
// keyframe at or before positionUs), it does so in place and returns
// wasReset=false. Otherwise every selected track's buffer is discarded and
// the MediaSession is asked to restart the source at positionUs, returning
// wasReset=true.
func (w *Wrapper) SeekToUs(positionUs int64) (wasReset bool, err error) {
	w.mu.Lock()
	if !w.prepared {
		w.mu.Unlock()
		return false, mediaerrors.ErrPrepareNotComplete
	}
	tracks := w.selectedTracksLocked()
	w.mu.Unlock()

	if w.seekInsideBuffer(tracks, positionUs) {
		w.mu.Lock()
		w.lastSeekPositionUs = positionUs
		w.mu.Unlock()
		return false, nil
	}

	for _, t := range tracks {
		t.queue.DiscardToEnd()
	}

	w.mu.Lock()
	w.lastSeekPositionUs = positionUs
	w.pendingResetPositionUs = positionUs
	actives := make([]seekable, 0, len(tracks))
	for _, t := range tracks {
		if a, ok := w.activeLoadables[t.ID]; ok {
			actives = append(actives, a)
		}
	}
	w.mu.Unlock()

	for _, a := range actives {
		a.SetPendingSeek(positionUs)
	}

	return true, w.session.OnSeek(positionUs)
}

// seekInsideBuffer seeks every track to positionUs only if every track can
// satisfy it from its own buffer: it checks all tracks with CanSeekTo
// before committing any of them with SeekTo, so a seek that cannot be
// fully satisfied leaves every track's read cursor unchanged.
func (w *Wrapper) seekInsideBuffer(tracks []*MediaTrack, positionUs int64) bool {
	for _, t := range tracks {
		if !t.queue.CanSeekTo(positionUs, false) {
			return false
		}
	}
	for _, t := range tracks {
		t.queue.SeekTo(positionUs, false)
	}
	return true
}

// DiscardBuffer discards buffered samples up to positionUs on every
// selected track. When toKeyframe is true, only samples preceding the
// latest keyframe at or before positionUs are discarded, so playback from
// that keyframe remains possible; unread samples are never discarded.
func (w *Wrapper) DiscardBuffer(positionUs int64, toKeyframe bool) {
	w.mu.Lock()
	tracks := w.selectedTracksLocked()
	w.mu.Unlock()

	for _, t := range tracks {
		t.queue.DiscardTo(positionUs, toKeyframe, true)
	}
}

// DiscardBufferToEnd discards every buffered sample on every selected
// track without restarting the source and without updating
// lastSeekPositionUs, matching original_source's discardBufferToEnd (it
// intentionally does not affect the last seek position bookkeeping).
func (w *Wrapper) DiscardBufferToEnd() {
	w.mu.Lock()
	tracks := w.selectedTracksLocked()
	w.mu.Unlock()

	for _, t := range tracks {
		t.queue.DiscardToEnd()
	}
}

func (w *Wrapper) selectedTracksLocked() []*MediaTrack {
	var tracks []*MediaTrack
	for id := range w.selected {
		if t, ok := w.tracksByID[id]; ok {
			tracks = append(tracks, t)
		}
	}
	return tracks
}

// IsReady reports whether track has a sample (or end-of-stream, once no
// track is loading any more) ready to read.
func (w *Wrapper) IsReady(track *MediaTrack) bool {
	return track.queue.IsReady(w.loadingFinished())
}

// ReadData advances track's read cursor and reports the outcome, exactly
// as samplequeue.SampleQueue.Read does. OnPlaybackComplete is fired from
// load-completion tracking (maybeFinishPlayback), not from here: a caller
// may call ReadData many times after every track has reached end-of-stream,
// and the listener must hear about completion exactly once.
func (w *Wrapper) ReadData(track *MediaTrack, requireFormat bool) (samplequeue.Result, samplequeue.Sample) {
	result, _, sample := track.queue.Read(requireFormat, w.loadingFinished())
	return result, sample
}

// SkipData advances track past every buffered sample earlier than
// positionUs and returns how many were skipped.
func (w *Wrapper) SkipData(track *MediaTrack, positionUs int64) int {
	return track.queue.AdvanceTo(positionUs)
}

func (w *Wrapper) loadingFinished() bool {
	return !w.IsLoading()
}

// GetLocalPort returns the bound local RTP port for track, or 0 for an
// interleaved track.
func (w *Wrapper) GetLocalPort(track *MediaTrack) int {
	return track.LocalRTPPort()
}

// GetBufferedPositionUs returns the smallest largest-queued timestamp
// across every selected track, i.e. the latest position from which every
// selected track can still serve data. It returns 0 if no track is
// selected or none has buffered anything yet.
func (w *Wrapper) GetBufferedPositionUs() int64 {
	w.mu.Lock()
	tracks := w.selectedTracksLocked()
	w.mu.Unlock()

	min := int64(math.MaxInt64)
	found := false
	for _, t := range tracks {
		ts := t.queue.LargestQueuedTimestampUs()
		if ts == samplequeue.TimeUnset {
			continue
		}
		found = true
		if ts < min {
			min = ts
		}
	}
	if !found {
		return 0
	}
	return min
}

// GetNextLoadPositionUs returns the position from which the next load
// should resume. Since every track loads continuously from the live
// source rather than seeking to discrete positions, this mirrors
// GetBufferedPositionUs.
func (w *Wrapper) GetNextLoadPositionUs() int64 {
	return w.GetBufferedPositionUs()
}
