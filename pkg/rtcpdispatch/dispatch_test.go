package rtcpdispatch

import (
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

type captureListener struct {
	got []rtcp.Packet
}

func (c *captureListener) OnRTCP(pkt rtcp.Packet) {
	c.got = append(c.got, pkt)
}

func TestDispatchFansOutToAllListeners(t *testing.T) {
	d := NewInDispatcher(90000, 1)
	l1 := &captureListener{}
	l2 := &captureListener{}
	d.AddListener(l1)
	d.AddListener(l2)

	sr := &rtcp.SenderReport{SSRC: 2, NTPTime: 1, RTPTime: 1}
	raw, err := sr.Marshal()
	require.NoError(t, err)

	err = d.Dispatch(raw)
	require.NoError(t, err)
	require.Len(t, l1.got, 1)
	require.Len(t, l2.got, 1)
}

func TestBuildReceiverReportNilBeforeFirstPacket(t *testing.T) {
	d := NewInDispatcher(90000, 1)
	require.Nil(t, d.BuildReceiverReport())
}

func TestBuildReceiverReportAfterPackets(t *testing.T) {
	d := NewInDispatcher(90000, 1)
	now := time.Unix(1000, 0)
	d.TimeNow = func() time.Time { return now }

	d.ProcessRTP(&rtp.Packet{Header: rtp.Header{SequenceNumber: 1, SSRC: 5, Timestamp: 0}}, now, true)
	d.ProcessRTP(&rtp.Packet{Header: rtp.Header{SequenceNumber: 2, SSRC: 5, Timestamp: 9000}}, now.Add(100*time.Millisecond), true)

	report := d.BuildReceiverReport()
	require.NotNil(t, report)
	rr, ok := report.(*rtcp.ReceiverReport)
	require.True(t, ok)
	require.Equal(t, uint32(5), rr.Reports[0].SSRC)
	require.Equal(t, uint32(0), rr.Reports[0].TotalLost)
}

func TestProcessRTPCountsLostPackets(t *testing.T) {
	d := NewInDispatcher(90000, 1)
	now := time.Unix(1000, 0)
	d.TimeNow = func() time.Time { return now }

	d.ProcessRTP(&rtp.Packet{Header: rtp.Header{SequenceNumber: 1, SSRC: 5}}, now, false)
	d.ProcessRTP(&rtp.Packet{Header: rtp.Header{SequenceNumber: 4, SSRC: 5}}, now, false)

	report := d.BuildReceiverReport().(*rtcp.ReceiverReport)
	require.Equal(t, uint32(2), report.Reports[0].TotalLost)
}

func TestOutDispatcherWritesPeriodically(t *testing.T) {
	d := NewInDispatcher(90000, 1)
	d.ProcessRTP(&rtp.Packet{Header: rtp.Header{SequenceNumber: 1, SSRC: 5}}, time.Now(), false)

	written := make(chan rtcp.Packet, 4)
	out := NewOutDispatcher(d, 10*time.Millisecond, func(pkt rtcp.Packet) error {
		written <- pkt
		return nil
	})
	out.Start()
	defer out.Close()

	select {
	case <-written:
	case <-time.After(time.Second):
		t.Fatal("expected at least one report to be written")
	}
}

func TestPacketNTPRequiresSenderReport(t *testing.T) {
	d := NewInDispatcher(90000, 1)
	_, ok := d.PacketNTP(0)
	require.False(t, ok)

	d.processSenderReport(&rtcp.SenderReport{NTPTime: 1 << 32, RTPTime: 0}, time.Now())
	_, ok = d.PacketNTP(90000)
	require.True(t, ok)
}
