package extractor

import (
	"encoding/base64"
	"strings"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"

	"github.com/bluenviron/mediatrack/pkg/mediaformat"
	"github.com/bluenviron/mediatrack/pkg/samplequeue"
)

// naluTypeFUA and naluTypeFU are the fragmentation-unit NAL types for
// H264 (RFC 6184) and H265 (RFC 7798) respectively: the real NAL type of
// a fragmented access unit's first fragment lives one byte further in,
// after the FU indicator/header.
const (
	naluTypeFUA = 28
	naluTypeFU  = 49
)

// GenericRTP is a reference RTP depacketizer for payload formats this
// module has no dedicated extractor for: it reassembles one sample per
// marker-bit-delimited run of RTP payloads (RFC 3550's convention that the
// marker bit flags the last packet of a frame), converting the RTP
// timestamp to microseconds using the format's clock rate.
//
// This is deliberately not a full per-codec NAL/OBU reassembler: spec.md
// section 1 names byte-level codec depacketization as an external
// collaborator, so full frame reconstruction is out of scope here and
// left to a caller-supplied PayloadFormat-specific Extractor when one is
// registered. It does, however, peek at the first RTP packet of each
// access unit to classify H264/H265 samples as keyframes or not (via
// mediacommon's NAL unit type constants), since that much is cheap and
// the sample queue's seek/discard logic depends on an honest keyframe
// flag. Formats with no such concept (audio, and anything else) are
// always flagged as keyframes, matching the behavior of an elementary
// stream with no intra/inter distinction.
type GenericRTP struct {
	clockRate int
	codec     string
	fmtp      map[string]string
	out       TrackOutput
	format    mediaformat.Format

	pending      []byte
	haveFrame    bool
	frameTS      uint32
	frameIsKeyUs bool
}

// NewGenericRTP allocates a GenericRTP extractor for the given payload
// format's clock rate and codec.
func NewGenericRTP(pf PayloadFormat) *GenericRTP {
	cr := pf.ClockRate()
	if cr <= 0 {
		cr = 90000
	}
	return &GenericRTP{clockRate: cr, codec: pf.Codec(), fmtp: pf.FMTP()}
}

// Sniff always returns false: GenericRTP is only selected directly via
// SelectByPayloadFormat, never through sniffing.
func (g *GenericRTP) Sniff(data []byte) bool { return false }

// Init implements Extractor. It also derives width/height/frame-rate from
// an H264/H265 sprop-parameter-sets fmtp value, when present and the
// format doesn't already carry them, mirroring how gortsplib's
// pkg/format.H264/H265 validate the same attribute at SDP-unmarshal time
// (see pkg/mediaformat.WithParameterSetInfo).
func (g *GenericRTP) Init(out TrackOutput, format mediaformat.Format) {
	g.out = out
	g.format = format.WithParameterSetInfo(g.codec, decodeSpropParameterSets(g.fmtp["sprop-parameter-sets"]))
}

// decodeSpropParameterSets splits and base64-decodes an RFC 6184/7798
// sprop-parameter-sets fmtp value into its raw NAL units, skipping any
// entry that fails to decode.
func decodeSpropParameterSets(value string) [][]byte {
	if value == "" {
		return nil
	}
	var out [][]byte
	for _, part := range strings.Split(value, ",") {
		nalu, err := base64.StdEncoding.DecodeString(part)
		if err != nil {
			continue
		}
		out = append(out, nalu)
	}
	return out
}

// ReadRTPPacket feeds one RTP packet (payload, timestamp, marker bit) into
// the extractor. It is the form this extractor actually needs; Read exists
// to satisfy the Extractor interface for callers that only have the
// payload bytes, and calls ReadRTPPacket with the marker bit set and a
// timestamp derived from the arrival time.
func (g *GenericRTP) ReadRTPPacket(payload []byte, rtpTimestamp uint32, marker bool) error {
	if !g.haveFrame {
		g.frameTS = rtpTimestamp
		g.haveFrame = true
		g.frameIsKeyUs = classifyKeyframe(g.codec, payload)
	}
	g.pending = append(g.pending, payload...)

	if marker {
		timestampUs := int64(rtpTimestamp) * 1_000_000 / int64(g.clockRate)
		sample := g.pending
		g.pending = nil
		g.haveFrame = false

		var flags samplequeue.Flags
		if g.frameIsKeyUs {
			flags = samplequeue.FlagKeyframe
		}
		g.out.Append(g.format, timestampUs, flags, sample)
	}
	return nil
}

// classifyKeyframe reports whether the first RTP packet of an access unit
// indicates a random-access point, for codecs whose NAL unit type conveys
// that directly in the first byte(s) of the payload (or, for a
// fragmentation unit's first fragment, the byte immediately after the FU
// indicator/header). Codecs without that concept are always reported as
// keyframes.
func classifyKeyframe(codec string, payload []byte) bool {
	switch codec {
	case "H264":
		if len(payload) < 1 {
			return true
		}
		naluType := h264.NALUType(payload[0] & 0x1F)
		if naluType == naluTypeFUA {
			if len(payload) < 2 || payload[1]&0x80 == 0 {
				return false
			}
			naluType = h264.NALUType(payload[1] & 0x1F)
		}
		return naluType == h264.NALUTypeIDR

	case "H265":
		if len(payload) < 2 {
			return true
		}
		naluType := h265.NALUType((payload[0] >> 1) & 0x3F)
		if naluType == naluTypeFU {
			if len(payload) < 3 || payload[2]&0x80 == 0 {
				return false
			}
			naluType = h265.NALUType(payload[2] & 0x3F)
		}
		return naluType == h265.NALUType_IDR_W_RADL ||
			naluType == h265.NALUType_IDR_N_LP ||
			naluType == h265.NALUType_CRA_NUT

	default:
		return true
	}
}

// Read implements Extractor by treating data as one complete RTP payload
// with the marker bit always set (one packet, one sample). This is the
// path Driver.Read uses: the Driver hands over de-headered payloads, so
// every payload it reads becomes one sample.
func (g *GenericRTP) Read(data []byte, arrivalTimestampUs int64) error {
	return g.ReadRTPPacket(data, uint32(arrivalTimestampUs*int64(g.clockRate)/1_000_000), true)
}

// Seek drops any partially reassembled frame.
func (g *GenericRTP) Seek(positionUs int64) {
	g.pending = nil
	g.haveFrame = false
}

// Release drops any partially reassembled frame.
func (g *GenericRTP) Release() {
	g.pending = nil
}
