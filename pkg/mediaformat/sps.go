package mediaformat

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
)

// WithParameterSetInfo fills in Video.Width, Video.Height and
// Video.FrameRate from an H264 or H265 SPS found among parameterSets, when
// f doesn't already carry them and codec names one of those two. This
// mirrors gortsplib's pkg/format/h264.go and pkg/format/h265.go, which
// parse the same sprop-parameter-sets SPS with the same mediacommon SPS
// type at unmarshal time; here it runs over whatever parameter sets the
// extractor driver recovered (fmtp-derived or in-band), since this module
// does not depend on pkg/format/pkg/sdp itself.
//
// Unparseable or absent parameter sets leave f unchanged.
func (f Format) WithParameterSetInfo(codec string, parameterSets [][]byte) Format {
	if f.Video.Width != 0 && f.Video.Height != 0 {
		return f
	}

	switch codec {
	case "H264":
		for _, nalu := range parameterSets {
			if len(nalu) == 0 || nalu[0]&0x1F != 7 { // h264.NALUTypeSPS
				continue
			}
			var sps h264.SPS
			if err := sps.Unmarshal(nalu); err != nil {
				continue
			}
			return f.withSPSDimensions(sps.Width(), sps.Height(), sps.FPS())
		}

	case "H265":
		for _, nalu := range parameterSets {
			if len(nalu) < 2 || (nalu[0]>>1)&0x3F != 33 { // h265.NALUType_SPS_NUT
				continue
			}
			var sps h265.SPS
			if err := sps.Unmarshal(nalu); err != nil {
				continue
			}
			return f.withSPSDimensions(sps.Width(), sps.Height(), sps.FPS())
		}
	}

	return f
}

func (f Format) withSPSDimensions(width, height int, fps float64) Format {
	out := f
	out.hash = &hashCache{}
	out.Video.Width = width
	out.Video.Height = height
	if out.Video.FrameRate == 0 && fps > 0 {
		out.Video.FrameRate = fps
	}
	return out
}
