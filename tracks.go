package mediatrack

import (
	"github.com/google/uuid"

	"github.com/bluenviron/mediatrack/pkg/mediaformat"
	"github.com/bluenviron/mediatrack/pkg/samplequeue"
)

// MediaTrack is one elementary track offered by a Wrapper: one RTSP media
// description's worth of samples, buffered in a SampleQueue.
type MediaTrack struct {
	// ID identifies the track within its TrackGroup (stable across the
	// life of the Wrapper).
	ID string

	queue *samplequeue.SampleQueue

	rtpPort  int
	rtcpPort int
}

// Queue returns the track's sample buffer.
func (t *MediaTrack) Queue() *samplequeue.SampleQueue {
	return t.queue
}

// LocalRTPPort returns the bound local RTP port for a UDP track, or 0 for
// an interleaved (TCP) track.
func (t *MediaTrack) LocalRTPPort() int {
	return t.rtpPort
}

// LocalRTCPPort returns the bound local RTCP port for a UDP track, or 0.
func (t *MediaTrack) LocalRTCPPort() int {
	return t.rtcpPort
}

// TrackGroup bundles the MediaTrack(s) produced from one underlying RTSP
// media description (normally one, but containers like MPEG-TS can expose
// several elementary streams behind a single transport).
type TrackGroup struct {
	// ID is a stable synthetic identifier for the group, generated once
	// when the group is built and unaffected by later format changes,
	// grounded on original_source's buildTrackGroups using a derived but
	// stable per-group id.
	ID uuid.UUID

	Tracks []*MediaTrack
}

// Format returns the most recently known upstream format for the group's
// first track, or the zero Format if none has arrived yet.
func (g *TrackGroup) Format() mediaformat.Format {
	if len(g.Tracks) == 0 {
		return mediaformat.Format{}
	}
	if f := g.Tracks[0].queue.UpstreamFormat(); f != nil {
		return *f
	}
	return mediaformat.Format{}
}

func newTrackGroup(tracks ...*MediaTrack) *TrackGroup {
	return &TrackGroup{ID: uuid.New(), Tracks: tracks}
}
