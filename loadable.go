package mediatrack

import (
	"context"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/bluenviron/mediatrack/pkg/extractor"
	"github.com/bluenviron/mediatrack/pkg/mediaerrors"
	"github.com/bluenviron/mediatrack/pkg/packetqueue"
	"github.com/bluenviron/mediatrack/pkg/rtcpdispatch"
	"github.com/bluenviron/mediatrack/pkg/transport"
)

// Protocol identifies the framing of data a Loadable receives, so it can
// reject combinations that cannot be depacketized.
type Protocol int

// Supported protocols.
const (
	ProtocolRTP Protocol = iota
	ProtocolRawByteStream
)

// pendingSeek carries an out-of-buffer seek target from the Wrapper's event
// loop goroutine into a running loadable's Load loop, which polls it once
// per iteration and forwards it to the extractor driver. It is grounded on
// original_source's pendingResetPositionUs field on RtspSampleStreamWrapper,
// which the media loadable reads at the top of each read iteration.
type pendingSeek struct {
	mu         sync.Mutex
	positionUs int64
	pending    bool
}

func (p *pendingSeek) set(positionUs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positionUs = positionUs
	p.pending = true
}

func (p *pendingSeek) take() (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.pending {
		return 0, false
	}
	p.pending = false
	return p.positionUs, true
}

// udpLoadable is a loader.Loadable that owns a UDP RTP/RTCP endpoint pair
// for one track, grounded on original_source's UdpMediaStreamLoadable:
// open the sockets (and, if required, punch NAT), start receiving, and
// pump packets into the track's extractor driver until canceled or the
// source fails.
type udpLoadable struct {
	track    *MediaTrack
	protocol Protocol

	rtp  *transport.UDPEndpoint
	rtcp *transport.UDPEndpoint

	packets *packetqueue.Queue
	rtcpIn  *rtcpdispatch.InDispatcher
	rtcpOut *rtcpdispatch.OutDispatcher

	driver      *extractor.Driver
	natRequired bool
	rtcpEnabled bool

	seek pendingSeek
}

func newUDPLoadable(
	track *MediaTrack,
	protocol Protocol,
	rtpEp, rtcpEp *transport.UDPEndpoint,
	driver *extractor.Driver,
	clockRate int,
	natRequired bool,
	rtcpEnabled bool,
) *udpLoadable {
	l := &udpLoadable{
		track:       track,
		protocol:    protocol,
		rtp:         rtpEp,
		rtcp:        rtcpEp,
		packets:     packetqueue.New(0),
		driver:      driver,
		natRequired: natRequired,
		rtcpEnabled: rtcpEnabled,
	}
	l.rtcpIn = rtcpdispatch.NewInDispatcher(clockRate, uint32(time.Now().UnixNano()))
	if rtcpEp != nil {
		l.rtcpOut = rtcpdispatch.NewOutDispatcher(l.rtcpIn, 5*time.Second, func(pkt rtcp.Packet) error {
			raw, err := pkt.Marshal()
			if err != nil {
				return err
			}
			return rtcpEp.WriteTo(raw)
		})
	}
	return l
}

// Load implements loader.Loadable.
func (l *udpLoadable) Load(ctx context.Context) error {
	if l.protocol != ProtocolRTP {
		return mediaerrors.ErrUnsupportedProtocol
	}

	stop := context.AfterFunc(ctx, l.packets.Close)
	defer stop()

	if err := l.rtp.Start(func(payload []byte) bool {
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(payload); err != nil {
			return true
		}
		l.packets.Push(pkt)
		return true
	}); err != nil {
		return err
	}

	if l.rtcp != nil && l.rtcpEnabled {
		if err := l.rtcp.Start(func(payload []byte) bool {
			_ = l.rtcpIn.Dispatch(payload)
			return true
		}); err != nil {
			return err
		}
		l.rtcpOut.Start()
	}

	for {
		select {
		case <-ctx.Done():
			return mediaerrors.ErrCancellation
		default:
		}

		if positionUs, ok := l.seek.take(); ok {
			l.driver.Seek(positionUs)
		}

		pkt, ok := l.packets.Pop()
		if !ok {
			if ctx.Err() != nil {
				return mediaerrors.ErrCancellation
			}
			return nil
		}

		now := time.Now()
		l.rtcpIn.ProcessRTP(pkt, now, true)

		ts := now.UnixMicro()
		if absolute, ok := l.rtcpIn.PacketNTP(pkt.Timestamp); ok {
			ts = absolute.UnixMicro()
		}

		if err := l.driver.Read(pkt.Payload, ts); err != nil {
			return err
		}
	}
}

// SetPendingSeek publishes an out-of-buffer seek target for the Load loop
// to pick up on its next iteration.
func (l *udpLoadable) SetPendingSeek(positionUs int64) {
	l.seek.set(positionUs)
}

// punchNAT sends the NAT traversal datagram on the transition to playing,
// per Wrapper.Playback's natPuncher contract. A send failure is swallowed:
// a source that never receives the punch simply never sends media rather
// than the load failing outright. RTCP is punched only if it has its own
// channel (not multiplexed with RTP) and is actually enabled for this
// track.
func (l *udpLoadable) punchNAT() {
	if !l.natRequired {
		return
	}
	_ = l.rtp.Punch()
	if l.rtcp != nil && l.rtcpEnabled {
		_ = l.rtcp.Punch()
	}
}

// Cancel implements loader.Loadable.
func (l *udpLoadable) Cancel() {
	l.packets.Close()
	l.rtp.Close()
	if l.rtcp != nil {
		l.rtcp.Close()
	}
	if l.rtcpOut != nil {
		l.rtcpOut.Close()
	}
}

// tcpLoadable represents one track carried over the RTSP connection's
// shared interleaved channel. Its "load loop" does no socket reading of its
// own: frames arrive via Deliver, pushed in by the session's single TCP
// frame de-multiplexer; RTP frames are queued and Load pops them into the
// track's extractor driver until canceled, while RTCP frames go straight
// to the dispatcher from the Deliver callback.
type tcpLoadable struct {
	track    *MediaTrack
	protocol Protocol

	rtpEndpoint  *transport.TCPEndpoint
	rtcpEndpoint *transport.TCPEndpoint

	packets *packetqueue.Queue
	rtcpIn  *rtcpdispatch.InDispatcher
	driver  *extractor.Driver

	seek pendingSeek
}

func newTCPLoadable(
	track *MediaTrack,
	protocol Protocol,
	rtpEp, rtcpEp *transport.TCPEndpoint,
	driver *extractor.Driver,
	clockRate int,
) *tcpLoadable {
	l := &tcpLoadable{
		track:        track,
		protocol:     protocol,
		rtpEndpoint:  rtpEp,
		rtcpEndpoint: rtcpEp,
		packets:      packetqueue.New(0),
		driver:       driver,
	}
	l.rtcpIn = rtcpdispatch.NewInDispatcher(clockRate, uint32(time.Now().UnixNano()))

	rtpEp.Start(func(payload []byte) bool { //nolint:errcheck
		pkt := &rtp.Packet{}
		if protocol == ProtocolRTP {
			if err := pkt.Unmarshal(payload); err == nil {
				l.packets.Push(pkt)
			}
		}
		return true
	})

	if rtcpEp != nil {
		rtcpEp.Start(func(payload []byte) bool { //nolint:errcheck
			_ = l.rtcpIn.Dispatch(payload)
			return true
		})
	}

	return l
}

// Load implements loader.Loadable.
func (l *tcpLoadable) Load(ctx context.Context) error {
	if l.protocol != ProtocolRTP {
		return mediaerrors.ErrUnsupportedProtocol
	}

	stop := context.AfterFunc(ctx, l.packets.Close)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return mediaerrors.ErrCancellation
		default:
		}

		if positionUs, ok := l.seek.take(); ok {
			l.driver.Seek(positionUs)
		}

		pkt, ok := l.packets.Pop()
		if !ok {
			if ctx.Err() != nil {
				return mediaerrors.ErrCancellation
			}
			return nil
		}

		now := time.Now()
		l.rtcpIn.ProcessRTP(pkt, now, true)

		if err := l.driver.Read(pkt.Payload, now.UnixMicro()); err != nil {
			return err
		}
	}
}

// SetPendingSeek publishes an out-of-buffer seek target for the Load loop
// to pick up on its next iteration.
func (l *tcpLoadable) SetPendingSeek(positionUs int64) {
	l.seek.set(positionUs)
}

// Cancel implements loader.Loadable.
func (l *tcpLoadable) Cancel() {
	l.packets.Close()
}
