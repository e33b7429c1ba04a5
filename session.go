// Package mediatrack implements the per-track RTSP media-stream pipeline
// described in SPEC_FULL.md: reading, depacketizing and buffering one
// RTSP session's tracks from SETUP through teardown, independent of RTSP
// signalling itself (which remains the caller's responsibility, exercised
// through the MediaSession collaborator below).
//
// The root Wrapper type is the module's WrapperCoordinator: a state
// machine whose prepare and load callbacks run on one event-loop goroutine
// and whose public methods run on the caller's goroutine under the
// Wrapper's mutex, grounded on original_source's
// RtspSampleStreamWrapper, built from the packages under pkg/ (transport,
// packetqueue, rtcpdispatch, extractor, samplequeue, loader) the way
// RtspSampleStreamWrapper is built from ExoPlayer's Loader, SampleQueue and
// RtspClient collaborators.
package mediatrack

import (
	"time"
)

// MediaSession is the RTSP-signalling collaborator a Wrapper depends on: it
// owns the RTSP connection, answers session-capability questions, and is
// called back into for playback-control side effects (PAUSE/PLAY/TEARDOWN)
// that belong to the RTSP protocol layer, not to this module.
type MediaSession interface {
	// IsInterleaved reports whether tracks are carried over the RTSP TCP
	// connection rather than dedicated UDP sockets.
	IsInterleaved() bool
	// IsNATRequired reports whether UDP endpoints must punch a NAT hole
	// before the source will send media.
	IsNATRequired() bool
	// IsRTCPSupported reports whether the source is expected to emit RTCP
	// at all (some sources/profiles omit it entirely).
	IsRTCPSupported() bool
	// IsRTCPMuxed reports whether RTP and RTCP share one transport
	// channel (RFC 5761) rather than a dedicated RTCP channel.
	IsRTCPMuxed() bool
	// IsPaused reports the session's current PLAY/PAUSE state.
	IsPaused() bool
	// GetDuration returns the announced media duration, or 0 for a live
	// (unbounded) session.
	GetDuration() time.Duration

	// OnPause asks the session to issue an RTSP PAUSE.
	OnPause() error
	// OnResume asks the session to issue an RTSP PLAY from the current
	// position.
	OnResume() error
	// OnSeek asks the session to issue an RTSP PLAY with a Range header
	// starting at positionUs.
	OnSeek(positionUs int64) error
	// OnStop asks the session to issue an RTSP TEARDOWN.
	OnStop() error
	// OnSelectTracks is called once track selection is known, so the
	// session can perform SETUP for the selected tracks only.
	OnSelectTracks(tracks []*MediaTrack) error
	// OnOutgoingInterleavedFrame sends a $-framed RTP/RTCP payload on the
	// RTSP TCP connection, for interleaved sessions.
	OnOutgoingInterleavedFrame(channel int, payload []byte) error
}

// EventListener receives lifecycle notifications from a Wrapper, mirroring
// RtspSampleStreamWrapper's EventListener-style callback fields.
type EventListener interface {
	// OnPrepareStarted is called once, when Prepare is first invoked.
	OnPrepareStarted()
	// OnPrepareFailure is called if preparation cannot complete.
	OnPrepareFailure(err error)
	// OnPrepareSuccess is called once every track group has its upstream
	// format and track selection can proceed.
	OnPrepareSuccess()
	// OnPlaybackCancel is called when a load the Wrapper cannot rebuild
	// (its Loadable is not one of the Wrapper's UDP or TCP track
	// loadables) is canceled without being released. Cancellations of the
	// Wrapper's own track loads restart them instead and do not fire it.
	OnPlaybackCancel()
	// OnPlaybackComplete is called once, when every track's load has
	// terminated, either because its source ended or because a load
	// failure was reinterpreted as the end of a finite-duration stream.
	OnPlaybackComplete()
	// OnPlaybackFailure is called when a load fails without being
	// retried further.
	OnPlaybackFailure(err error)
}
