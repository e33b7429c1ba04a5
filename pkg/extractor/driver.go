package extractor

import (
	"github.com/bluenviron/mediatrack/pkg/mediaerrors"
	"github.com/bluenviron/mediatrack/pkg/mediaformat"
)

// Driver selects and runs one Extractor for a track, per spec.md section
// 4.4: a PayloadFormat-driven constructor is tried first (the common case,
// since RTSP SETUP already names the payload type/codec out of band); if
// none matches, each registered sniff-based Factory is tried in order
// against the first chunk of data; if none recognizes it, rawFactory is
// used unconditionally as a last resort so that playback can still start
// in some form rather than failing prepare entirely.
type Driver struct {
	out    TrackOutput
	format mediaformat.Format

	sniffFactories []Factory
	rawFactory     Factory

	active   Extractor
	selected bool
}

// NewDriver allocates a Driver that will deliver samples to out, tagged
// with format, once an Extractor has been selected.
func NewDriver(out TrackOutput, format mediaformat.Format) *Driver {
	return &Driver{
		out:        out,
		format:     format,
		rawFactory: func() Extractor { return NewRaw() },
	}
}

// RegisterSniffFactory adds f to the ordered list of sniff-based
// extractors tried when no PayloadFormat-driven constructor matches.
func (d *Driver) RegisterSniffFactory(f Factory) {
	d.sniffFactories = append(d.sniffFactories, f)
}

// SelectByPayloadFormat picks an Extractor directly from pf, bypassing
// sniffing, for the payload formats this driver knows how to depacketize
// generically (anything RTP-framed: MPEG-TS-over-RTP when pf.Codec() is
// "MP2T", everything else through the generic marker-bit extractor).
func (d *Driver) SelectByPayloadFormat(pf PayloadFormat) error {
	if d.selected {
		return nil
	}

	var e Extractor
	switch pf.Codec() {
	case "MP2T":
		e = NewRTPMPEGTS()
	default:
		e = NewGenericRTP(pf)
	}

	d.setActive(e)
	return nil
}

// SelectBySniffing feeds data through each registered sniff Factory in
// order, falling back to the raw extractor if none claims it.
func (d *Driver) SelectBySniffing(data []byte) error {
	if d.selected {
		return nil
	}

	for _, f := range d.sniffFactories {
		candidate := f()
		if candidate.Sniff(data) {
			d.setActive(candidate)
			return nil
		}
	}

	if d.rawFactory == nil {
		return mediaerrors.ErrUnsupportedFormat
	}

	d.setActive(d.rawFactory())
	return nil
}

func (d *Driver) setActive(e Extractor) {
	e.Init(d.out, d.format)
	d.active = e
	d.selected = true
}

// Read forwards data to the selected Extractor. The driver must already
// have a selection (via SelectByPayloadFormat or SelectBySniffing) before
// Read is called.
func (d *Driver) Read(data []byte, arrivalTimestampUs int64) error {
	if !d.selected {
		return mediaerrors.ErrUnsupportedFormat
	}
	return d.active.Read(data, arrivalTimestampUs)
}

// Seek forwards to the selected Extractor, if any.
func (d *Driver) Seek(positionUs int64) {
	if d.selected {
		d.active.Seek(positionUs)
	}
}

// Release forwards to the selected Extractor, if any.
func (d *Driver) Release() {
	if d.selected {
		d.active.Release()
	}
}
