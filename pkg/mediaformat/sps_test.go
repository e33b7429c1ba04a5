package mediaformat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var testH264SPS352x288 = []byte{
	0x67, 0x64, 0x00, 0x0c, 0xac, 0x3b, 0x50, 0xb0,
	0x4b, 0x42, 0x00, 0x00, 0x03, 0x00, 0x02, 0x00,
	0x00, 0x03, 0x00, 0x3d, 0x08,
}

func TestWithParameterSetInfoFillsDimensionsFromH264SPS(t *testing.T) {
	f := New()
	f.Type = TrackTypeVideo

	out := f.WithParameterSetInfo("H264", [][]byte{testH264SPS352x288})

	require.Equal(t, 352, out.Video.Width)
	require.Equal(t, 288, out.Video.Height)
	require.Equal(t, float64(15), out.Video.FrameRate)
}

func TestWithParameterSetInfoLeavesExistingDimensionsAlone(t *testing.T) {
	f := New()
	f.Video.Width = 640
	f.Video.Height = 480

	out := f.WithParameterSetInfo("H264", [][]byte{testH264SPS352x288})

	require.Equal(t, 640, out.Video.Width)
	require.Equal(t, 480, out.Video.Height)
}

func TestWithParameterSetInfoIgnoresUnknownCodec(t *testing.T) {
	f := New()
	out := f.WithParameterSetInfo("VP8", [][]byte{testH264SPS352x288})
	require.Equal(t, 0, out.Video.Width)
}

func TestWithParameterSetInfoIgnoresUnparseableNALU(t *testing.T) {
	f := New()
	out := f.WithParameterSetInfo("H264", [][]byte{{0x67, 0x01}})
	require.Equal(t, 0, out.Video.Width)
}
