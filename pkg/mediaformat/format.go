// Package mediaformat describes the media elementary streams produced by
// the per-track RTSP pipeline. Format is a value record; it does not parse
// SDP or RTSP (that is an external collaborator's job, see pkg/extractor).
package mediaformat

import (
	"bytes"
	"sync"
)

// NoValue is the sentinel for an absent integer field.
const NoValue = -1

// SampleRelative is the sentinel meaning subsample timestamps are relative
// to the sample they belong to, rather than absolute.
const SampleRelative = int64(1<<63 - 1)

// TrackType classifies the elementary stream a Format describes.
type TrackType int

// Track types.
const (
	TrackTypeUnknown TrackType = iota
	TrackTypeVideo
	TrackTypeAudio
	TrackTypeText
)

// Selection flags, bitwise-OR'able.
const (
	SelectionFlagDefault uint32 = 1 << iota
	SelectionFlagForced
	SelectionFlagAutoselect
)

// Role flags, bitwise-OR'able.
const (
	RoleFlagMain uint32 = 1 << iota
	RoleFlagAlternate
	RoleFlagSupplementary
	RoleFlagCommentary
	RoleFlagDub
)

// VideoDetail carries the fields that only apply to video tracks.
type VideoDetail struct {
	Width                 int
	Height                int
	FrameRate             float64 // 0 when unknown (New's default)
	Rotation              int     // one of 0, 90, 180, 270
	PixelWidthHeightRatio float64
	Projection            []byte
	StereoMode            int
	ColorInfo             []byte
}

// AudioDetail carries the fields that only apply to audio tracks.
type AudioDetail struct {
	ChannelCount    int
	SampleRate      int
	PCMEncoding     int
	EncoderDelay    int
	EncoderPadding  int
}

// TextDetail carries the fields that only apply to text tracks.
type TextDetail struct {
	AccessibilityChannel int
}

// DRMSchemeData is a single scheme's session-creation data.
type DRMSchemeData struct {
	SchemeUUID [16]byte
	MimeType   string
	Data       []byte
}

// DRMInitData is the ordered set of per-scheme init data attached to a Format.
type DRMInitData struct {
	SchemeData []DRMSchemeData
}

// Format is an immutable description of a media elementary stream.
//
// It is a value type: two Formats built with equal fields compare equal
// with Equal, and Hash is stable across such Formats (excluding the fields
// documented below). A Format is constructed once by New and thereafter
// only ever copied, wrapped (WithContainerInfo, WithManifestFormatInfo), or
// compared — it is never mutated in place.
type Format struct {
	// identity
	ID             string
	Label          string
	Language       string // IETF BCP-47, normalized
	SelectionFlags uint32
	RoleFlags      uint32

	// bitrate
	AverageBitrate int
	PeakBitrate    int

	// codec identity
	Codecs          string
	ContainerMime   string
	SampleMime      string
	Metadata        [][]byte
	InitializationData [][]byte

	// DRM
	DRMInitData *DRMInitData
	CryptoType  int

	Type  TrackType
	Video VideoDetail
	Audio AudioDetail
	Text  TextDetail

	SubsampleOffsetUs int64

	hash *hashCache
}

type hashCache struct {
	once sync.Once
	val  uint64
}

// New builds a Format with every field at its default: NoValue bitrates
// and crypto type, a SampleRelative subsample offset, pixel aspect ratio 1,
// rotation 0 and frame rate 0.
func New() Format {
	f := Format{
		AverageBitrate:        NoValue,
		PeakBitrate:           NoValue,
		CryptoType:            NoValue,
		SubsampleOffsetUs:     SampleRelative,
		hash:                  &hashCache{},
	}
	f.Video.PixelWidthHeightRatio = 1
	f.Video.Rotation = 0
	f.Video.FrameRate = 0
	return f
}

// Bitrate returns PeakBitrate when known, else AverageBitrate.
func (f Format) Bitrate() int {
	if f.PeakBitrate != NoValue {
		return f.PeakBitrate
	}
	return f.AverageBitrate
}

// Equal reports whether f and g describe the same stream, including
// byte-for-byte comparison of initialization data, DRM data, projection and
// color info.
func (f Format) Equal(g Format) bool {
	if f.ID != g.ID || f.Label != g.Label || f.Language != g.Language ||
		f.SelectionFlags != g.SelectionFlags || f.RoleFlags != g.RoleFlags ||
		f.AverageBitrate != g.AverageBitrate || f.PeakBitrate != g.PeakBitrate ||
		f.Codecs != g.Codecs || f.ContainerMime != g.ContainerMime || f.SampleMime != g.SampleMime ||
		f.CryptoType != g.CryptoType || f.Type != g.Type || f.SubsampleOffsetUs != g.SubsampleOffsetUs {
		return false
	}

	if f.Video.Width != g.Video.Width || f.Video.Height != g.Video.Height ||
		f.Video.FrameRate != g.Video.FrameRate || f.Video.Rotation != g.Video.Rotation ||
		f.Video.PixelWidthHeightRatio != g.Video.PixelWidthHeightRatio ||
		f.Video.StereoMode != g.Video.StereoMode ||
		!bytesEqual(f.Video.Projection, g.Video.Projection) ||
		!bytesEqual(f.Video.ColorInfo, g.Video.ColorInfo) {
		return false
	}

	if f.Audio != g.Audio || f.Text != g.Text {
		return false
	}

	if !byteSlicesEqual(f.Metadata, g.Metadata) || !byteSlicesEqual(f.InitializationData, g.InitializationData) {
		return false
	}

	if !drmInitDataEqual(f.DRMInitData, g.DRMInitData) {
		return false
	}

	return true
}

func bytesEqual(a, b []byte) bool {
	return bytes.Equal(a, b)
}

func byteSlicesEqual(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func drmInitDataEqual(a, b *DRMInitData) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.SchemeData) != len(b.SchemeData) {
		return false
	}
	for i := range a.SchemeData {
		sa, sb := a.SchemeData[i], b.SchemeData[i]
		if sa.SchemeUUID != sb.SchemeUUID || sa.MimeType != sb.MimeType || !bytes.Equal(sa.Data, sb.Data) {
			return false
		}
	}
	return true
}

// Hash returns a stable hash of f, excluding InitializationData, DRMInitData,
// Video.Projection and Video.ColorInfo — fields that are expensive to hash
// and rarely discriminate between otherwise-identical formats — as well as
// Video.FrameRate, Video.PixelWidthHeightRatio, Video.StereoMode,
// Audio.EncoderDelay, Audio.EncoderPadding and SubsampleOffsetUs. The
// result is computed once and memoized.
func (f Format) Hash() uint64 {
	if f.hash == nil {
		return f.computeHash()
	}
	f.hash.once.Do(func() {
		f.hash.val = f.computeHash()
	})
	return f.hash.val
}

func (f Format) computeHash() uint64 {
	h := fnvOffset
	h = hashString(h, f.ID)
	h = hashString(h, f.Label)
	h = hashString(h, f.Language)
	h = hashUint32(h, f.SelectionFlags)
	h = hashUint32(h, f.RoleFlags)
	h = hashInt(h, f.AverageBitrate)
	h = hashInt(h, f.PeakBitrate)
	h = hashString(h, f.Codecs)
	h = hashString(h, f.ContainerMime)
	h = hashString(h, f.SampleMime)
	h = hashInt(h, f.CryptoType)
	h = hashInt(h, int(f.Type))
	h = hashInt(h, f.Video.Width)
	h = hashInt(h, f.Video.Height)
	h = hashInt(h, f.Video.Rotation)
	h = hashInt(h, f.Audio.ChannelCount)
	h = hashInt(h, f.Audio.SampleRate)
	h = hashInt(h, f.Audio.PCMEncoding)
	h = hashInt(h, f.Text.AccessibilityChannel)
	for _, m := range f.Metadata {
		h = hashBytes(h, m)
	}
	return h
}

// fnv-1a, 64-bit, hand-rolled to avoid importing hash/fnv for four calls.
const (
	fnvOffset = uint64(14695981039346656037)
	fnvPrime  = uint64(1099511628211)
)

func hashBytes(h uint64, b []byte) uint64 {
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime
	}
	return h
}

func hashString(h uint64, s string) uint64 {
	return hashBytes(h, []byte(s))
}

func hashInt(h uint64, v int) uint64 {
	return hashUint32(h, uint32(v))
}

func hashUint32(h uint64, v uint32) uint64 {
	return hashBytes(h, []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}
