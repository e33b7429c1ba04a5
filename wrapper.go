package mediatrack

import (
	"context"
	"sync"

	"github.com/bluenviron/mediatrack/internal/eventloop"
	"github.com/bluenviron/mediatrack/pkg/extractor"
	"github.com/bluenviron/mediatrack/pkg/loader"
	"github.com/bluenviron/mediatrack/pkg/mediaerrors"
	"github.com/bluenviron/mediatrack/pkg/mediaformat"
	"github.com/bluenviron/mediatrack/pkg/samplequeue"
	"github.com/bluenviron/mediatrack/pkg/transport"
)

// Wrapper is the WrapperCoordinator for one RTSP session: it owns every
// track's SampleQueue and Loader. Prepare's loader start-up and every
// loader callback run on a single event loop goroutine; the public methods
// (SelectTracks, Playback, SeekToUs, Release, ...) run on the caller's
// goroutine and guard shared state with an internal mutex, so callers
// never need their own lock around it.
//
// The zero value is not usable; construct with New.
type Wrapper struct {
	session  MediaSession
	listener EventListener

	loop      *eventloop.Loop
	allocator *samplequeue.Allocator

	mu                    sync.Mutex
	groups                []*TrackGroup
	tracksByID            map[string]*MediaTrack
	loaders               map[string]*loader.Loader
	pendingLoadables      map[string]loader.Loadable
	trackConfigs          map[string]*trackLoadConfig
	activeLoadables       map[string]seekable
	selected              map[string]bool
	prepared              bool
	prepareStarted        bool
	released              bool
	playbackStarted       bool
	playbackCompleted     bool
	loadersStarted        bool
	interleaved           bool
	trackLoadDone         map[string]bool
	lastSeekPositionUs    int64
	pendingResetPositionUs int64
}

// seekable is implemented by every loadable type so the Wrapper can publish
// an out-of-buffer seek target into whichever one is currently running.
type seekable interface {
	SetPendingSeek(positionUs int64)
}

// natPuncher is implemented by loadables that own a UDP endpoint needing a
// NAT hole punched before the source will send media. Playback calls
// punchNAT on every active loadable implementing it at the moment playback
// actually begins, per MediaSession.IsNATRequired's contract.
type natPuncher interface {
	punchNAT()
}

// trackLoadConfig retains what AddUDPTrack/AddTCPTrack used to build a
// track's first loadable, so a fresh one of the same kind can be rebuilt
// against the same MediaTrack (and thus the same SampleQueue) when the
// running loadable is canceled without being released, per
// original_source's onLoadCanceled re-dispatch on transport.lowerTransport().
type trackLoadConfig struct {
	protocol  Protocol
	driver    *extractor.Driver
	clockRate int

	isTCP bool

	udpCfg      transport.UDPConfig
	natRequired bool
	rtcpEnabled bool

	tcpRTP  *transport.TCPEndpoint
	tcpRTCP *transport.TCPEndpoint
}

// New allocates a Wrapper bound to session for RTSP-level side effects and
// listener for lifecycle notifications.
func New(session MediaSession, listener EventListener) *Wrapper {
	w := &Wrapper{
		session:         session,
		listener:        listener,
		loop:            eventloop.New(0),
		allocator:       samplequeue.NewAllocator(0),
		tracksByID:      make(map[string]*MediaTrack),
		loaders:         make(map[string]*loader.Loader),
		trackConfigs:    make(map[string]*trackLoadConfig),
		activeLoadables: make(map[string]seekable),
		selected:        make(map[string]bool),
		trackLoadDone:   make(map[string]bool),
		pendingResetPositionUs: samplequeue.TimeUnset,
	}
	w.loop.OnError = func(_ context.Context, err error) {
		w.listener.OnPlaybackFailure(err)
	}
	return w
}

// NewGroup allocates an empty TrackGroup and registers it with the
// Wrapper. Tracks must be added to it (AddUDPTrack/AddTCPTrack) before
// Prepare is called.
func (w *Wrapper) NewGroup() *TrackGroup {
	w.mu.Lock()
	defer w.mu.Unlock()

	g := newTrackGroup()
	w.groups = append(w.groups, g)
	return g
}

// AddUDPTrack opens a UDP RTP/RTCP endpoint pair for id, wires it through
// driver, and adds the resulting MediaTrack to group. Whether NAT traversal
// is required and whether RTCP gets its own punched channel are both
// derived from the Wrapper's MediaSession rather than left to the caller,
// since the session is the collaborator that actually knows the session's
// transport and muxing (IsNATRequired, IsRTCPSupported, IsRTCPMuxed).
func (w *Wrapper) AddUDPTrack(
	group *TrackGroup,
	id string,
	cfg transport.UDPConfig,
	protocol Protocol,
	driver *extractor.Driver,
	clockRate int,
) (*MediaTrack, error) {
	natRequired := w.session.IsNATRequired()
	rtcpEnabled := w.session.IsRTCPSupported() && !w.session.IsRTCPMuxed()

	rtpEp, rtcpEp, err := transport.OpenUDPPair(cfg)
	if err != nil {
		return nil, err
	}

	track := w.newTrack(id)
	track.rtpPort = rtpEp.LocalPort()
	track.rtcpPort = rtcpEp.LocalPort()

	l := newUDPLoadable(track, protocol, rtpEp, rtcpEp, driver, clockRate, natRequired, rtcpEnabled)

	w.mu.Lock()
	group.Tracks = append(group.Tracks, track)
	w.loaders[id] = loader.New()
	w.trackConfigs[id] = &trackLoadConfig{
		protocol:    protocol,
		driver:      driver,
		clockRate:   clockRate,
		udpCfg:      cfg,
		natRequired: natRequired,
		rtcpEnabled: rtcpEnabled,
	}
	w.mu.Unlock()

	w.registerLoadable(id, l)
	return track, nil
}

// AddTCPTrack wires an already-demultiplexed pair of interleaved channel
// endpoints for id through driver, and adds the resulting MediaTrack to
// group.
func (w *Wrapper) AddTCPTrack(
	group *TrackGroup,
	id string,
	rtpEp, rtcpEp *transport.TCPEndpoint,
	protocol Protocol,
	driver *extractor.Driver,
	clockRate int,
) (*MediaTrack, error) {
	track := w.newTrack(id)

	l := newTCPLoadable(track, protocol, rtpEp, rtcpEp, driver, clockRate)

	w.mu.Lock()
	group.Tracks = append(group.Tracks, track)
	w.loaders[id] = loader.New()
	w.trackConfigs[id] = &trackLoadConfig{
		protocol:  protocol,
		driver:    driver,
		clockRate: clockRate,
		isTCP:     true,
		tcpRTP:    rtpEp,
		tcpRTCP:   rtcpEp,
	}
	w.mu.Unlock()

	w.registerLoadable(id, l)
	return track, nil
}

func (w *Wrapper) newTrack(id string) *MediaTrack {
	track := &MediaTrack{ID: id, queue: samplequeue.New(w.allocator)}
	track.queue.SetUpstreamFormatChangeListener(&upstreamFormatListener{w: w})

	w.mu.Lock()
	w.tracksByID[id] = track
	w.mu.Unlock()

	return track
}

func (w *Wrapper) registerLoadable(id string, l loader.Loadable) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pendingLoadables == nil {
		w.pendingLoadables = make(map[string]loader.Loadable)
	}
	w.pendingLoadables[id] = l
}

// Prepare starts loading every registered track and, once every track has
// announced its upstream format, reports success through the
// EventListener. A second call before the first has finished preparing
// does not start a second load: it cancels every loader still in flight,
// mirroring original_source's prepare() else-branch (loader.cancelLoading()
// when already started). The canceled loader restarts on its own once
// cancellation resolves, via wrapperLoadCallback.OnLoadCanceled.
func (w *Wrapper) Prepare() {
	w.mu.Lock()
	if w.released {
		w.mu.Unlock()
		return
	}

	if w.prepareStarted {
		loaders := make([]*loader.Loader, 0, len(w.loaders))
		for _, l := range w.loaders {
			loaders = append(loaders, l)
		}
		w.mu.Unlock()

		w.loop.Post(func() error {
			for _, l := range loaders {
				if l.IsLoading() {
					l.CancelLoading()
				}
			}
			return nil
		})
		return
	}

	interleaved := w.session.IsInterleaved()
	for _, cfg := range w.trackConfigs {
		if cfg.isTCP != interleaved {
			w.prepareStarted = true
			w.mu.Unlock()
			w.listener.OnPrepareFailure(mediaerrors.ErrUnsupportedProtocol)
			return
		}
	}

	w.prepareStarted = true
	w.interleaved = interleaved
	w.mu.Unlock()

	w.loop.Start()
	w.listener.OnPrepareStarted()

	w.loop.Post(func() error {
		w.mu.Lock()
		pending := w.pendingLoadables
		w.pendingLoadables = nil
		w.loadersStarted = true
		w.mu.Unlock()

		cb := &wrapperLoadCallback{w: w}
		for id, l := range pending {
			w.startLoadable(id, l, cb)
		}

		w.maybeFinishPrepare()
		return nil
	})
}

// startLoadable starts l on track id's loader and records it as the
// currently active loadable, so SeekToUs and any future failover can reach
// it.
func (w *Wrapper) startLoadable(id string, l loader.Loadable, cb loader.Callback) {
	w.mu.Lock()
	if s, ok := l.(seekable); ok {
		w.activeLoadables[id] = s
	}
	loaderForID := w.loaders[id]
	w.mu.Unlock()

	loaderForID.StartLoading(l, cb)
}

func (w *Wrapper) maybeFinishPrepare() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.released || w.prepared || w.playbackStarted || !w.loadersStarted {
		return
	}

	for _, g := range w.groups {
		for _, t := range g.Tracks {
			if t.queue.UpstreamFormat() == nil {
				return
			}
		}
	}

	w.prepared = true
	w.listener.OnPrepareSuccess()
}

type upstreamFormatListener struct {
	w *Wrapper
}

func (l *upstreamFormatListener) OnUpstreamFormatChanged(_ mediaformat.Format) {
	l.w.loop.Post(func() error {
		l.w.maybeFinishPrepare()
		return nil
	})
}

// wrapperLoadCallback adapts loader.Callback to the Wrapper's event loop,
// so every load outcome is handled on the single coordinator goroutine.
type wrapperLoadCallback struct {
	w *Wrapper
}

func (c *wrapperLoadCallback) OnLoadCompleted(l loader.Loadable) {
	id := trackIDOf(l)
	c.w.loop.Post(func() error {
		c.w.markLoadDone(id)
		c.w.maybeFinishPrepare()
		c.w.maybeFinishPlayback()
		return nil
	})
}

// markLoadDone records that track id's current load has terminated, for
// maybeFinishPlayback's single-fire completion check.
func (w *Wrapper) markLoadDone(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id != "" {
		w.trackLoadDone[id] = true
	}
}

// maybeFinishPlayback fires OnPlaybackComplete exactly once, the first time
// every registered track's load has terminated (by reaching the end of its
// source or by a duration-exceeded reinterpretation of a load error) while
// playback is underway.
func (w *Wrapper) maybeFinishPlayback() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fireCompleteIfDoneLocked()
}

func (w *Wrapper) fireCompleteIfDoneLocked() {
	if w.released || w.playbackCompleted || !w.playbackStarted {
		return
	}
	for id := range w.tracksByID {
		if !w.trackLoadDone[id] {
			return
		}
	}
	w.playbackCompleted = true
	w.listener.OnPlaybackComplete()
}

// durationExceeded reports whether a load failure should be reinterpreted
// as having reached the end of the stream rather than as a real failure:
// true once the session reports a finite duration and the buffered
// position of every selected track (GetBufferedPositionUs) has already
// reached it.
func (w *Wrapper) durationExceeded() bool {
	duration := w.session.GetDuration()
	if duration <= 0 {
		return false
	}
	return w.GetBufferedPositionUs() >= duration.Microseconds()
}

// OnLoadCanceled runs once a canceled (not released) load has actually
// stopped. A release always ends the track for good; any other
// cancellation (today, only Prepare's double-call guard) rebuilds the same
// kind of loadable the track was configured with and restarts it against
// the track's existing SampleQueue, per original_source's onLoadCanceled.
func (c *wrapperLoadCallback) OnLoadCanceled(l loader.Loadable, released bool) {
	if released {
		return
	}

	id := trackIDOf(l)
	if id == "" {
		c.w.loop.Post(func() error {
			c.w.listener.OnPlaybackCancel()
			return nil
		})
		return
	}

	c.w.loop.Post(func() error {
		return c.w.restartLoadable(id)
	})
}

// trackIDOf extracts the owning track's ID from a loadable, if it is one of
// the kinds this package produces.
func trackIDOf(l loader.Loadable) string {
	switch v := l.(type) {
	case *udpLoadable:
		return v.track.ID
	case *tcpLoadable:
		return v.track.ID
	default:
		return ""
	}
}

// restartLoadable rebuilds and restarts track id's loadable after a
// non-released cancellation, reusing the track's existing SampleQueue.
func (w *Wrapper) restartLoadable(id string) error {
	w.mu.Lock()
	cfg := w.trackConfigs[id]
	track := w.tracksByID[id]
	l := w.loaders[id]
	delete(w.trackLoadDone, id)
	w.mu.Unlock()

	if cfg == nil || track == nil || l == nil {
		return nil
	}

	var fresh loader.Loadable
	if cfg.isTCP {
		fresh = newTCPLoadable(track, cfg.protocol, cfg.tcpRTP, cfg.tcpRTCP, cfg.driver, cfg.clockRate)
	} else {
		rtpEp, rtcpEp, err := transport.OpenUDPPair(cfg.udpCfg)
		if err != nil {
			w.listener.OnPlaybackFailure(err)
			return nil
		}
		track.rtpPort = rtpEp.LocalPort()
		track.rtcpPort = rtcpEp.LocalPort()
		fresh = newUDPLoadable(track, cfg.protocol, rtpEp, rtcpEp, cfg.driver, cfg.clockRate, cfg.natRequired, cfg.rtcpEnabled)
	}

	w.startLoadable(id, fresh, &wrapperLoadCallback{w: w})
	return nil
}

func (c *wrapperLoadCallback) OnLoadError(l loader.Loadable, err error, retryCount int) loader.RetryAction {
	const maxRetries = 3
	exceeded := c.w.durationExceeded()
	if retryCount < maxRetries && !exceeded {
		return loader.RetryNow
	}

	id := trackIDOf(l)
	c.w.loop.Post(func() error {
		c.w.markLoadDone(id)
		if exceeded {
			c.w.maybeFinishPlayback()
		} else {
			c.w.listener.OnPlaybackFailure(err)
		}
		return nil
	})
	return loader.DontRetry
}

// Release stops the event loop and every track's loader, and releases
// every track's SampleQueue, dropping its buffered samples (they are not
// handed back to the allocator). It is idempotent.
func (w *Wrapper) Release() {
	w.mu.Lock()
	if w.released {
		w.mu.Unlock()
		return
	}
	w.released = true
	loaders := make([]*loader.Loader, 0, len(w.loaders))
	for _, l := range w.loaders {
		loaders = append(loaders, l)
	}
	tracks := make([]*MediaTrack, 0, len(w.tracksByID))
	for _, t := range w.tracksByID {
		tracks = append(tracks, t)
	}
	w.mu.Unlock()

	var wg sync.WaitGroup
	for _, l := range loaders {
		wg.Add(1)
		l.Release(func() { wg.Done() })
	}
	wg.Wait()

	for _, t := range tracks {
		t.queue.Release()
	}

	w.loop.Close()
}

// GetTrackGroups returns every track group registered with the Wrapper.
func (w *Wrapper) GetTrackGroups() []*TrackGroup {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*TrackGroup{}, w.groups...)
}

// GetMediaTrack looks up a track by ID.
func (w *Wrapper) GetMediaTrack(id string) (*MediaTrack, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tracksByID[id]
	return t, ok
}

// IsPrepared reports whether OnPrepareSuccess has fired.
func (w *Wrapper) IsPrepared() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.prepared
}

// MaybeThrowError returns the fatal, non-retried error for track id, if
// any.
func (w *Wrapper) MaybeThrowError(id string) error {
	w.mu.Lock()
	l := w.loaders[id]
	w.mu.Unlock()
	if l == nil {
		return mediaerrors.ErrUnsupportedFormat
	}
	return l.MaybeThrowError()
}

// IsLoading reports whether any track currently has an active load.
func (w *Wrapper) IsLoading() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, l := range w.loaders {
		if l.IsLoading() {
			return true
		}
	}
	return false
}
