package extractor

import (
	"testing"

	"github.com/bluenviron/mediatrack/pkg/mediaformat"
	"github.com/bluenviron/mediatrack/pkg/samplequeue"
	"github.com/stretchr/testify/require"
)

type fakeOutput struct {
	appended []appendCall
}

type appendCall struct {
	format      mediaformat.Format
	timestampUs int64
	flags       samplequeue.Flags
	data        []byte
}

func (f *fakeOutput) Append(format mediaformat.Format, timestampUs int64, flags samplequeue.Flags, data []byte) {
	f.appended = append(f.appended, appendCall{format, timestampUs, flags, data})
}

type fakePayloadFormat struct {
	clockRate   int
	payloadType uint8
	codec       string
	fmtp        map[string]string
}

func (f fakePayloadFormat) ClockRate() int            { return f.clockRate }
func (f fakePayloadFormat) PayloadType() uint8         { return f.payloadType }
func (f fakePayloadFormat) Codec() string              { return f.codec }
func (f fakePayloadFormat) FMTP() map[string]string    { return f.fmtp }

func TestRawAppendsEveryReadAsOneSample(t *testing.T) {
	out := &fakeOutput{}
	r := NewRaw()
	r.Init(out, mediaformat.New())

	require.NoError(t, r.Read([]byte{1, 2, 3}, 1000))
	require.NoError(t, r.Read([]byte{4, 5}, 2000))

	require.Len(t, out.appended, 2)
	require.Equal(t, []byte{1, 2, 3}, out.appended[0].data)
	require.Equal(t, int64(2000), out.appended[1].timestampUs)
}

func TestGenericRTPAccumulatesUntilMarker(t *testing.T) {
	out := &fakeOutput{}
	g := NewGenericRTP(fakePayloadFormat{clockRate: 90000, codec: "generic"})
	g.Init(out, mediaformat.New())

	require.NoError(t, g.ReadRTPPacket([]byte{0xAA}, 90000, false))
	require.Len(t, out.appended, 0, "no sample before the marker bit")

	require.NoError(t, g.ReadRTPPacket([]byte{0xBB}, 90000, true))
	require.Len(t, out.appended, 1)
	require.Equal(t, []byte{0xAA, 0xBB}, out.appended[0].data)
	require.Equal(t, int64(1_000_000), out.appended[0].timestampUs)
}

func TestGenericRTPSeekDropsPartialFrame(t *testing.T) {
	out := &fakeOutput{}
	g := NewGenericRTP(fakePayloadFormat{clockRate: 90000})
	g.Init(out, mediaformat.New())

	require.NoError(t, g.ReadRTPPacket([]byte{0xAA}, 90000, false))
	g.Seek(0)
	require.NoError(t, g.ReadRTPPacket([]byte{0xCC}, 180000, true))

	require.Len(t, out.appended, 1)
	require.Equal(t, []byte{0xCC}, out.appended[0].data, "partial frame before seek must not leak into the next sample")
}

func TestGenericRTPFlagsH264IDRAsKeyframe(t *testing.T) {
	out := &fakeOutput{}
	g := NewGenericRTP(fakePayloadFormat{clockRate: 90000, codec: "H264"})
	g.Init(out, mediaformat.New())

	idrNALHeader := byte(5) // h264.NALUTypeIDR
	require.NoError(t, g.ReadRTPPacket([]byte{idrNALHeader, 0x01, 0x02}, 90000, true))

	require.Len(t, out.appended, 1)
	require.Equal(t, samplequeue.FlagKeyframe, out.appended[0].flags)
}

func TestGenericRTPFlagsH264NonIDRAsNotKeyframe(t *testing.T) {
	out := &fakeOutput{}
	g := NewGenericRTP(fakePayloadFormat{clockRate: 90000, codec: "H264"})
	g.Init(out, mediaformat.New())

	nonIDRNALHeader := byte(1) // h264.NALUTypeNonIDR
	require.NoError(t, g.ReadRTPPacket([]byte{nonIDRNALHeader, 0x01, 0x02}, 90000, true))

	require.Len(t, out.appended, 1)
	require.Equal(t, samplequeue.Flags(0), out.appended[0].flags)
}

func TestGenericRTPFlagsH264FUAByInnerNALType(t *testing.T) {
	out := &fakeOutput{}
	g := NewGenericRTP(fakePayloadFormat{clockRate: 90000, codec: "H264"})
	g.Init(out, mediaformat.New())

	fuIndicator := byte(28) // naluTypeFUA
	fuHeader := byte(0x80 | 5) // start bit set, inner type IDR
	require.NoError(t, g.ReadRTPPacket([]byte{fuIndicator, fuHeader, 0xAB}, 90000, true))

	require.Len(t, out.appended, 1)
	require.Equal(t, samplequeue.FlagKeyframe, out.appended[0].flags)
}

func TestGenericRTPInitFillsDimensionsFromSpropParameterSets(t *testing.T) {
	out := &fakeOutput{}
	// base64 of the 352x288 H264 SPS fixture used in pkg/mediaformat's tests.
	sps := "Z2QADKw7ULBLQgAAAwACAAADAD0I"
	g := NewGenericRTP(fakePayloadFormat{
		clockRate: 90000,
		codec:     "H264",
		fmtp:      map[string]string{"sprop-parameter-sets": sps + ",aOvjyyLA"},
	})

	f := mediaformat.New()
	f.Type = mediaformat.TrackTypeVideo
	g.Init(out, f)

	require.Equal(t, 352, g.format.Video.Width)
	require.Equal(t, 288, g.format.Video.Height)
}

func TestPlainTSSniffRequiresSyncByteEveryPacket(t *testing.T) {
	e := NewPlainTS()

	good := make([]byte, tsPacketSize*2)
	good[0] = 0x47
	good[tsPacketSize] = 0x47
	require.True(t, e.Sniff(good))

	bad := make([]byte, tsPacketSize*2)
	bad[0] = 0x47
	bad[tsPacketSize] = 0x00
	require.False(t, e.Sniff(bad))

	require.False(t, e.Sniff([]byte{0x47}), "shorter than one packet never matches")
}

func TestDriverFallsBackToRawWhenNoSniffMatches(t *testing.T) {
	out := &fakeOutput{}
	d := NewDriver(out, mediaformat.New())

	err := d.SelectBySniffing([]byte{0x00, 0x01, 0x02})
	require.NoError(t, err)

	err = d.Read([]byte{9, 9}, 500)
	require.NoError(t, err)
	require.Len(t, out.appended, 1)
}

func TestDriverSelectsPlainTSWhenSniffed(t *testing.T) {
	out := &fakeOutput{}
	d := NewDriver(out, mediaformat.New())
	d.RegisterSniffFactory(func() Extractor { return NewPlainTS() })

	good := make([]byte, tsPacketSize)
	good[0] = 0x47
	err := d.SelectBySniffing(good)
	require.NoError(t, err)

	_, ok := d.active.(*PlainTS)
	require.True(t, ok)
	d.Release()
}

func TestDriverSelectByPayloadFormatPicksGenericForUnknownCodec(t *testing.T) {
	out := &fakeOutput{}
	d := NewDriver(out, mediaformat.New())

	err := d.SelectByPayloadFormat(fakePayloadFormat{clockRate: 8000, codec: "PCMU"})
	require.NoError(t, err)

	_, ok := d.active.(*GenericRTP)
	require.True(t, ok)
}

func TestDriverReadBeforeSelectionFails(t *testing.T) {
	out := &fakeOutput{}
	d := NewDriver(out, mediaformat.New())
	err := d.Read([]byte{1}, 0)
	require.Error(t, err)
}
