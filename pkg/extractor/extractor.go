// Package extractor implements the ExtractorDriver described in spec.md
// section 4.4: given a transport's raw RTP (or, for TCP sessions, raw
// byte) stream, select and run the Extractor able to turn it into samples
// on a per-track output.
//
// PayloadFormat is declared locally instead of importing gortsplib's
// pkg/format, because that package's concrete types (format.H264,
// format.MPEG4Audio, ...) only gain their Unmarshal/Marshal half by also
// importing github.com/pion/sdp/v3, and SDP parsing is explicitly out of
// scope for this module (see SPEC_FULL.md's Domain Stack ledger). Any
// gortsplib pkg/format value already satisfies this interface structurally
// through its ClockRate/PayloadType/Codec/FMTP methods, so callers that do
// depend on SDP elsewhere can still hand one in.
package extractor

import (
	"github.com/bluenviron/mediatrack/pkg/mediaformat"
	"github.com/bluenviron/mediatrack/pkg/samplequeue"
)

// PayloadFormat describes an RTP payload format enough for an Extractor to
// depacketize it, without requiring SDP support.
type PayloadFormat interface {
	ClockRate() int
	PayloadType() uint8
	Codec() string
	FMTP() map[string]string
}

// TrackOutput receives samples produced by an Extractor. *samplequeue.SampleQueue
// satisfies this interface.
type TrackOutput interface {
	Append(format mediaformat.Format, timestampUs int64, flags samplequeue.Flags, data []byte)
}

// Extractor turns a payload stream into samples delivered to a TrackOutput.
type Extractor interface {
	// Sniff reports whether this Extractor recognizes data as its format.
	// It must not retain data.
	Sniff(data []byte) bool
	// Init prepares the extractor to start producing samples into out,
	// tagged with the given base Format (container/codec hints already
	// merged in by the caller).
	Init(out TrackOutput, format mediaformat.Format)
	// Read feeds one unit of upstream data (one RTP packet's payload, or
	// one read's worth of raw bytes for a byte-stream extractor) into the
	// extractor, producing zero or more samples on the configured output.
	Read(data []byte, arrivalTimestampUs int64) error
	// Seek notifies the extractor that playback will resume from
	// positionUs, so that internal buffering state (partial frames,
	// timestamp bases) can be reset.
	Seek(positionUs int64)
	// Release frees any resources held by the extractor.
	Release()
}

// Factory constructs a fresh Extractor instance.
type Factory func() Extractor
