// Package ntp contains functions to encode and decode timestamps to/from
// NTP format, and to project an RTP media timestamp onto wall-clock time
// given an RTCP sender report's NTP/RTP timestamp pair, as
// pkg/rtcpdispatch.InDispatcher.PacketNTP does for every incoming packet.
package ntp

import (
	"math"
	"time"
)

// Encode encodes a timestamp in NTP format.
// Specification: RFC3550, section 4
func Encode(t time.Time) uint64 {
	ntp := uint64(t.UnixNano()) + 2208988800*1000000000
	secs := ntp / 1000000000
	fractional := uint64(math.Round(float64((ntp%1000000000)*(1<<32)) / 1000000000))
	return secs<<32 | fractional
}

// Decode decodes a timestamp from NTP format.
// Specification: RFC3550, section 4
func Decode(v uint64) time.Time {
	secs := int64((v >> 32) - 2208988800)
	nanos := int64(math.Round(float64(((v & 0xFFFFFFFF) * 1000000000) / (1 << 32))))
	return time.Unix(secs, nanos)
}

// Project maps an RTP timestamp to wall-clock time, given a reference
// sender report's RTP/NTP timestamp pair and the stream's clock rate.
// Overflow of the int32 RTP timestamp difference wraps correctly since RTP
// timestamps are themselves defined modulo 2^32.
func Project(referenceNTP uint64, referenceRTP, ts uint32, clockRate int) time.Time {
	diff := int32(ts - referenceRTP)
	diffGo := (time.Duration(diff) * time.Second) / time.Duration(clockRate)
	return Decode(referenceNTP).Add(diffGo)
}
