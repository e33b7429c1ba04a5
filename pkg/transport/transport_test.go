package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpenUDPPairBindsConsecutiveEvenOddPorts(t *testing.T) {
	rtp, rtcp, err := OpenUDPPair(UDPConfig{Host: "127.0.0.1"})
	require.NoError(t, err)
	defer rtp.Close()
	defer rtcp.Close()

	require.Equal(t, 0, rtp.LocalPort()%2, "RTP port must be even")
	require.Equal(t, rtp.LocalPort()+1, rtcp.LocalPort())
	require.GreaterOrEqual(t, rtp.LocalPort(), udpPortMin)
	require.Less(t, rtp.LocalPort(), udpPortMax)
}

func TestUDPEndpointRoundTrip(t *testing.T) {
	a, aRTCP, err := OpenUDPPair(UDPConfig{Host: "127.0.0.1"})
	require.NoError(t, err)
	defer a.Close()
	defer aRTCP.Close()

	b, bRTCP, err := OpenUDPPair(UDPConfig{Host: "127.0.0.1"})
	require.NoError(t, err)
	defer b.Close()
	defer bRTCP.Close()

	a.SetRemote("127.0.0.1", b.LocalPort())
	b.SetRemote("127.0.0.1", a.LocalPort())

	received := make(chan []byte, 1)
	err = b.Start(func(payload []byte) bool {
		cp := append([]byte{}, payload...)
		received <- cp
		return true
	})
	require.NoError(t, err)

	err = a.WriteTo([]byte("hello"))
	require.NoError(t, err)

	select {
	case got := <-received:
		require.Equal(t, "hello", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for UDP datagram")
	}
}

func TestUDPEndpointWriteWithoutRemoteFails(t *testing.T) {
	a, aRTCP, err := OpenUDPPair(UDPConfig{Host: "127.0.0.1"})
	require.NoError(t, err)
	defer a.Close()
	defer aRTCP.Close()

	err = a.WriteTo([]byte("x"))
	require.Error(t, err)
}

func TestPunchSendsExactMagicBytesTwice(t *testing.T) {
	a, aRTCP, err := OpenUDPPair(UDPConfig{Host: "127.0.0.1"})
	require.NoError(t, err)
	defer a.Close()
	defer aRTCP.Close()

	b, bRTCP, err := OpenUDPPair(UDPConfig{Host: "127.0.0.1"})
	require.NoError(t, err)
	defer b.Close()
	defer bRTCP.Close()

	a.SetRemote("127.0.0.1", b.LocalPort())

	received := make(chan []byte, 2)
	err = b.Start(func(payload []byte) bool {
		cp := append([]byte{}, payload...)
		received <- cp
		return true
	})
	require.NoError(t, err)

	require.NoError(t, a.Punch())

	want := []byte{0xCE, 0xFA, 0xED, 0xFE}
	for i := 0; i < 2; i++ {
		select {
		case got := <-received:
			require.Equal(t, want, got, "punch datagram %d", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for punch datagram %d", i)
		}
	}
}

type recordingWriter struct {
	channel int
	payload []byte
}

func (w *recordingWriter) WriteInterleavedFrame(channel int, payload []byte) error {
	w.channel = channel
	w.payload = append([]byte{}, payload...)
	return nil
}

func TestTCPEndpointWriteToUsesInterleavedChannel(t *testing.T) {
	w := &recordingWriter{}
	ep := NewTCPEndpoint(4, w)

	err := ep.WriteTo([]byte("rtcp-data"))
	require.NoError(t, err)
	require.Equal(t, 4, w.channel)
	require.Equal(t, "rtcp-data", string(w.payload))
}

func TestTCPEndpointDeliverInvokesOnRead(t *testing.T) {
	ep := NewTCPEndpoint(2, &recordingWriter{})

	var got []byte
	err := ep.Start(func(payload []byte) bool {
		got = payload
		return true
	})
	require.NoError(t, err)

	ep.Deliver([]byte("frame"))
	require.Equal(t, "frame", string(got))
}

func TestTCPEndpointLocalPortIsZero(t *testing.T) {
	ep := NewTCPEndpoint(0, &recordingWriter{})
	require.Equal(t, 0, ep.LocalPort())
}
