package extractor

import (
	"github.com/bluenviron/mediatrack/pkg/mediaformat"
	"github.com/bluenviron/mediatrack/pkg/samplequeue"
)

// Raw treats every Read call's data as one complete, independently
// decodable sample. It is the extractor of last resort: it never fails to
// "recognize" its input, since it makes no assumptions about framing.
type Raw struct {
	out    TrackOutput
	format mediaformat.Format
}

// NewRaw allocates a Raw extractor.
func NewRaw() *Raw {
	return &Raw{}
}

// Sniff always returns true; Raw is only ever selected as a fallback, never
// through sniffing competition, so this value is never consulted in a way
// that would starve a more specific extractor.
func (r *Raw) Sniff(data []byte) bool { return true }

// Init implements Extractor.
func (r *Raw) Init(out TrackOutput, format mediaformat.Format) {
	r.out = out
	r.format = format
}

// Read implements Extractor.
func (r *Raw) Read(data []byte, arrivalTimestampUs int64) error {
	if len(data) == 0 {
		return nil
	}
	cp := append([]byte{}, data...)
	r.out.Append(r.format, arrivalTimestampUs, samplequeue.FlagKeyframe, cp)
	return nil
}

// Seek is a no-op: Raw carries no cross-call buffering state.
func (r *Raw) Seek(positionUs int64) {}

// Release is a no-op.
func (r *Raw) Release() {}
