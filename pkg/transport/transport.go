// Package transport implements the per-track TransportEndpoint described in
// spec.md section 4.1: a UDP socket pair (RTP + RTCP) with even/odd port
// binding and NAT traversal, or a TCP interleaved-frame adapter, behind one
// open/read/writeTo/close contract.
//
// The UDP listener loop is grounded on gortsplib's client_udp_listener.go
// (deadline-driven stop via SetReadDeadline, a single read goroutine per
// socket); the NAT punch and even-port allocation come from
// original_source's RtspSampleStreamWrapper (MAGIC_NUMBER, UDP_PORT_MIN/MAX)
// since gortsplib's own UDP listener binds any free port and has no punch
// logic of its own (it is typically run server-side, behind no NAT).
package transport

import (
	"net"
	"time"

	"github.com/bluenviron/mediatrack/pkg/mediaerrors"
)

// natMagic is sent twice to punch a hole in any NAT/firewall between the
// client and the media source, matching RtspSampleStreamWrapper's
// MAGIC_NUMBER constant.
var natMagic = [4]byte{0xCE, 0xFA, 0xED, 0xFE}

const (
	udpPortMin = 50000
	udpPortMax = 60000

	defaultPortBindAttempts = 20
)

// ReadFunc is invoked once per datagram/frame read from the endpoint. It
// returns true if the caller should keep reading with a fresh buffer.
type ReadFunc func(payload []byte) bool

// Endpoint is a bidirectional channel for one track's RTP (or RTCP) traffic.
type Endpoint interface {
	// LocalPort returns the bound local port, or 0 for a TCP endpoint.
	LocalPort() int
	// Start begins delivering reads to onRead until Close.
	Start(onRead ReadFunc) error
	// WriteTo sends payload to the peer.
	WriteTo(payload []byte) error
	// Close stops delivery and releases resources.
	Close() error
}

// UDPConfig configures a UDP Endpoint pair.
type UDPConfig struct {
	// Host to bind to, e.g. "0.0.0.0".
	Host string
	// Source and Destination are the transport header's source/destination
	// address candidates from the SETUP response (RFC 2326 section 12.39);
	// URLHost is the RTSP URL's host. ResolvePunchHost picks among them the
	// address to punch and write to. RemotePort is the peer's chosen port;
	// these may all be set after Open via SetRemote, once the SETUP
	// response is known.
	Source      string
	Destination string
	URLHost     string
	RemotePort  int
	// PortBindAttempts bounds how many even-port candidates are tried
	// before giving up. Defaults to 20.
	PortBindAttempts int
	// ReadTimeout is applied to every read; elapsing it yields
	// mediaerrors.ErrReadTimeout from the read loop's error channel.
	ReadTimeout time.Duration
}

// ResolvePunchHost picks the address to punch NAT and write media to,
// preferring the transport header's source address, then its destination,
// and falling back to the RTSP URL host whenever every preceding candidate
// is absent or is itself a private address: a server behind its own NAT
// commonly reports a private source/destination address that is not
// reachable from outside that network, so the URL host the client actually
// dialed is the better bet in that case.
func ResolvePunchHost(source, destination, urlHost string) string {
	for _, candidate := range []string{source, destination} {
		if candidate != "" && !isPrivateHost(candidate) {
			return candidate
		}
	}
	return urlHost
}

func isPrivateHost(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()
}

// UDPEndpoint is a single UDP socket bound to an even or odd port in
// [50000, 60000), per original_source's getNextLoadPositionUs port
// allocation scheme.
type UDPEndpoint struct {
	conn       *net.UDPConn
	remoteAddr *net.UDPAddr
	readTimeout time.Duration

	done chan struct{}
}

// OpenUDPPair binds two UDP sockets on consecutive ports (RTP on an even
// port, RTCP on port+1), as RTP requires. It retries with a new random even
// port up to cfg.PortBindAttempts times.
func OpenUDPPair(cfg UDPConfig) (rtp *UDPEndpoint, rtcp *UDPEndpoint, err error) {
	attempts := cfg.PortBindAttempts
	if attempts <= 0 {
		attempts = defaultPortBindAttempts
	}

	for i := 0; i < attempts; i++ {
		port, perr := randomEvenPort()
		if perr != nil {
			return nil, nil, perr
		}

		rtpConn, rerr := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(cfg.Host), Port: port})
		if rerr != nil {
			continue
		}

		rtcpConn, rerr := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(cfg.Host), Port: port + 1})
		if rerr != nil {
			rtpConn.Close()
			continue
		}

		rtpEp := &UDPEndpoint{conn: rtpConn, readTimeout: cfg.ReadTimeout}
		rtcpEp := &UDPEndpoint{conn: rtcpConn, readTimeout: cfg.ReadTimeout}

		if remoteHost := ResolvePunchHost(cfg.Source, cfg.Destination, cfg.URLHost); remoteHost != "" {
			rtpEp.SetRemote(remoteHost, cfg.RemotePort)
			rtcpEp.SetRemote(remoteHost, cfg.RemotePort+1)
		}

		return rtpEp, rtcpEp, nil
	}

	return nil, nil, mediaerrors.ErrPortExhausted
}

func randomEvenPort() (int, error) {
	span := (udpPortMax - udpPortMin) / 2
	n, err := cryptoRandInt(span)
	if err != nil {
		return 0, err
	}
	return udpPortMin + n*2, nil
}

// SetRemote records the peer address to punch and write to. It must be
// called before Start if the peer was not known at Open time.
func (e *UDPEndpoint) SetRemote(host string, port int) {
	e.remoteAddr = &net.UDPAddr{IP: net.ParseIP(host), Port: port}
}

// LocalPort implements Endpoint.
func (e *UDPEndpoint) LocalPort() int {
	return e.conn.LocalAddr().(*net.UDPAddr).Port
}

// Punch sends the NAT traversal magic datagram twice to the configured
// remote address, per original_source's double-send convention.
func (e *UDPEndpoint) Punch() error {
	if e.remoteAddr == nil {
		return nil
	}
	for i := 0; i < 2; i++ {
		if _, err := e.conn.WriteToUDP(natMagic[:], e.remoteAddr); err != nil {
			return err
		}
	}
	return nil
}

// Start begins a read loop, grounded on gortsplib's clientUDPListener.run:
// one read goroutine, stopped by forcing a read deadline in Close rather
// than by an explicit cancellation channel race.
func (e *UDPEndpoint) Start(onRead ReadFunc) error {
	e.done = make(chan struct{})
	e.conn.SetReadDeadline(time.Time{})

	go func() {
		defer close(e.done)

		buf := make([]byte, 64*1024)
		for {
			if e.readTimeout > 0 {
				e.conn.SetReadDeadline(time.Now().Add(e.readTimeout))
			}

			n, _, err := e.conn.ReadFromUDP(buf)
			if err != nil {
				return
			}

			if onRead(buf[:n]) {
				buf = make([]byte, 64*1024)
			}
		}
	}()

	return nil
}

// WriteTo sends payload to the configured remote address.
func (e *UDPEndpoint) WriteTo(payload []byte) error {
	if e.remoteAddr == nil {
		return mediaerrors.ErrUnsupportedProtocol
	}
	_, err := e.conn.WriteToUDP(payload, e.remoteAddr)
	return err
}

// Close stops the read loop and releases the socket.
func (e *UDPEndpoint) Close() error {
	e.conn.SetReadDeadline(time.Now())
	if e.done != nil {
		<-e.done
	}
	return e.conn.Close()
}

// InterleavedWriter sends one RTSP interleaved ($-prefixed) frame on a
// given channel number; it is provided by the RTSP session/connection that
// owns the TCP socket, since multiple tracks share one TCP connection.
type InterleavedWriter interface {
	WriteInterleavedFrame(channel int, payload []byte) error
}

// TCPEndpoint adapts one pair of interleaved channel numbers (RTP, RTCP) on
// a shared TCP connection to the Endpoint contract. Reads are pushed in by
// the owning session's frame de-multiplexer rather than pulled by this
// type, since TCP interleaving requires a single reader for the whole
// connection.
type TCPEndpoint struct {
	channel int
	writer  InterleavedWriter

	onRead ReadFunc
}

// NewTCPEndpoint wires one interleaved channel number to writer.
func NewTCPEndpoint(channel int, writer InterleavedWriter) *TCPEndpoint {
	return &TCPEndpoint{channel: channel, writer: writer}
}

// LocalPort implements Endpoint; TCP endpoints have no local port.
func (e *TCPEndpoint) LocalPort() int { return 0 }

// Start records onRead for later delivery via Deliver.
func (e *TCPEndpoint) Start(onRead ReadFunc) error {
	e.onRead = onRead
	return nil
}

// Deliver is called by the owning session's frame de-multiplexer whenever
// an interleaved frame arrives on this endpoint's channel.
func (e *TCPEndpoint) Deliver(payload []byte) {
	if e.onRead != nil {
		e.onRead(payload)
	}
}

// WriteTo sends payload as an interleaved frame on this endpoint's channel.
func (e *TCPEndpoint) WriteTo(payload []byte) error {
	return e.writer.WriteInterleavedFrame(e.channel, payload)
}

// Close is a no-op: the underlying TCP connection outlives any one
// endpoint and is owned by the session.
func (e *TCPEndpoint) Close() error { return nil }
