// Package rtcpdispatch implements the per-track RTCP fan-out and receiver
// report generation described in spec.md section 4.3.
//
// It is grounded on gortsplib's pkg/rtpreceiver.Receiver: the jitter/loss
// accounting and periodic ReceiverReport construction in report() and
// ProcessPacket() are carried over verbatim (the RFC 3550 arithmetic does
// not change), but packet reordering is dropped from this package, since
// that responsibility now belongs to pkg/packetqueue, which already runs
// every RTP packet through gortsplib's pkg/rtpreorderer before it reaches a
// track. Timestamp conversion reuses pkg/ntp unchanged.
package rtcpdispatch

import (
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/bluenviron/mediatrack/pkg/ntp"
)

// Listener receives every incoming RTCP packet synchronously, in the order
// dispatched. Implementations must not block.
type Listener interface {
	OnRTCP(pkt rtcp.Packet)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(pkt rtcp.Packet)

// OnRTCP implements Listener.
func (f ListenerFunc) OnRTCP(pkt rtcp.Packet) { f(pkt) }

// InDispatcher fans incoming RTCP packets out to registered listeners, and
// feeds sender reports and RTP arrivals into the statistics needed to
// build outgoing receiver reports.
type InDispatcher struct {
	ClockRate int
	LocalSSRC uint32
	TimeNow   func() time.Time

	mu        sync.Mutex
	listeners []Listener

	firstRTPReceived bool
	timeInitialized  bool
	remoteSSRC       uint32
	lastValidSeqNum  uint16
	seqNumCycles     uint16
	lastTimeRTP      uint32
	lastTimeSystem   time.Time
	totalLost        uint32
	lostSinceReport  uint32
	sinceReport      uint32
	jitter           float64

	firstSenderReport   bool
	lastSRTimeNTP       uint64
	lastSRTimeRTP       uint32
	lastSRTimeSystem    time.Time
}

// NewInDispatcher allocates an InDispatcher for one track's RTP clock rate.
func NewInDispatcher(clockRate int, localSSRC uint32) *InDispatcher {
	return &InDispatcher{
		ClockRate: clockRate,
		LocalSSRC: localSSRC,
		TimeNow:   time.Now,
	}
}

// AddListener registers l to receive every future dispatched RTCP packet.
func (d *InDispatcher) AddListener(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

// Dispatch decodes raw RTCP data and synchronously delivers each contained
// packet to every registered listener, updating sender-report bookkeeping
// along the way.
func (d *InDispatcher) Dispatch(raw []byte) error {
	packets, err := rtcp.Unmarshal(raw)
	if err != nil {
		return err
	}

	d.mu.Lock()
	for _, pkt := range packets {
		if sr, ok := pkt.(*rtcp.SenderReport); ok {
			d.processSenderReport(sr, d.now())
		}
	}
	listeners := append([]Listener{}, d.listeners...)
	d.mu.Unlock()

	for _, pkt := range packets {
		for _, l := range listeners {
			l.OnRTCP(pkt)
		}
	}
	return nil
}

func (d *InDispatcher) now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}

func (d *InDispatcher) processSenderReport(sr *rtcp.SenderReport, system time.Time) {
	d.firstSenderReport = true
	d.lastSRTimeNTP = sr.NTPTime
	d.lastSRTimeRTP = sr.RTPTime
	d.lastSRTimeSystem = system
}

// ProcessRTP folds an arriving RTP packet into the loss/jitter statistics
// used for the next receiver report. ptsEqualsDTS should be true for tracks
// whose RTP timestamp directly represents presentation time (audio, and
// video without B-frames), matching pkg/rtpreceiver's convention.
func (d *InDispatcher) ProcessRTP(pkt *rtp.Packet, system time.Time, ptsEqualsDTS bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.firstRTPReceived {
		d.firstRTPReceived = true
		d.sinceReport = 1
		d.lastValidSeqNum = pkt.SequenceNumber
		d.remoteSSRC = pkt.SSRC

		if ptsEqualsDTS {
			d.timeInitialized = true
			d.lastTimeRTP = pkt.Timestamp
			d.lastTimeSystem = system
		}
		return
	}

	if pkt.SSRC != d.remoteSSRC {
		return
	}

	diff := int32(pkt.SequenceNumber) - int32(d.lastValidSeqNum)
	lost := uint64(0)
	if diff > 1 {
		lost = uint64(diff - 1)
	}

	d.totalLost += uint32(lost)
	d.lostSinceReport += uint32(lost)
	if d.totalLost > 0xFFFFFF {
		d.totalLost = 0xFFFFFF
	}
	if d.lostSinceReport > 0xFFFFFF {
		d.lostSinceReport = 0xFFFFFF
	}

	if diff < -0x0FFF {
		d.seqNumCycles++
	}

	d.sinceReport += uint32(uint16(diff))
	d.lastValidSeqNum = pkt.SequenceNumber

	if ptsEqualsDTS {
		if d.timeInitialized && d.ClockRate != 0 {
			D := system.Sub(d.lastTimeSystem).Seconds()*float64(d.ClockRate) -
				(float64(pkt.Timestamp) - float64(d.lastTimeRTP))
			if D < 0 {
				D = -D
			}
			d.jitter += (D - d.jitter) / 16
		}
		d.timeInitialized = true
		d.lastTimeRTP = pkt.Timestamp
		d.lastTimeSystem = system
	}
}

// BuildReceiverReport constructs the next periodic receiver report, or nil
// if no RTP packet has been processed yet.
func (d *InDispatcher) BuildReceiverReport() rtcp.Packet {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.firstRTPReceived || d.ClockRate == 0 {
		return nil
	}

	system := d.now()

	fractionLost := uint8(0)
	if d.sinceReport > 0 {
		fractionLost = uint8(float64(d.lostSinceReport*256) / float64(d.sinceReport))
	}

	report := &rtcp.ReceiverReport{
		SSRC: d.LocalSSRC,
		Reports: []rtcp.ReceptionReport{
			{
				SSRC:               d.remoteSSRC,
				LastSequenceNumber: uint32(d.seqNumCycles)<<16 | uint32(d.lastValidSeqNum),
				FractionLost:       fractionLost,
				TotalLost:          d.totalLost,
				Jitter:             uint32(d.jitter),
			},
		},
	}

	if d.firstSenderReport {
		report.Reports[0].LastSenderReport = uint32(d.lastSRTimeNTP >> 16)
		report.Reports[0].Delay = uint32(system.Sub(d.lastSRTimeSystem).Seconds() * 65536)
	}

	d.lostSinceReport = 0
	d.sinceReport = 0

	return report
}

// PacketNTP converts an RTP timestamp to absolute (NTP-derived) time, using
// the most recently dispatched sender report as the reference point.
func (d *InDispatcher) PacketNTP(ts uint32) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.firstSenderReport || d.ClockRate == 0 {
		return time.Time{}, false
	}

	return ntp.Project(d.lastSRTimeNTP, d.lastSRTimeRTP, ts, d.ClockRate), true
}

// OutDispatcher periodically emits receiver reports (and, for an
// interleaved session, could emit other outgoing RTCP) through a transport
// write callback, mirroring pkg/rtpreceiver.Receiver's background ticker.
type OutDispatcher struct {
	in     *InDispatcher
	period time.Duration
	write  func(rtcp.Packet) error

	terminate chan struct{}
	done      chan struct{}
}

// NewOutDispatcher allocates an OutDispatcher that asks in for a receiver
// report every period and passes it to write.
func NewOutDispatcher(in *InDispatcher, period time.Duration, write func(rtcp.Packet) error) *OutDispatcher {
	return &OutDispatcher{
		in:     in,
		period: period,
		write:  write,
	}
}

// Start begins the periodic report loop.
func (d *OutDispatcher) Start() {
	d.terminate = make(chan struct{})
	d.done = make(chan struct{})
	go d.run()
}

func (d *OutDispatcher) run() {
	defer close(d.done)

	t := time.NewTicker(d.period)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if report := d.in.BuildReceiverReport(); report != nil {
				d.write(report) //nolint:errcheck
			}
		case <-d.terminate:
			return
		}
	}
}

// Close stops the periodic report loop and waits for it to exit. It is a
// no-op if Start was never called.
func (d *OutDispatcher) Close() {
	if d.terminate == nil {
		return
	}
	close(d.terminate)
	<-d.done
}
