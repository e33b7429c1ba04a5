package mediaformat

// ContainerInfo holds the container-level hints applied by WithContainerInfo.
// A zero value field means "no hint for this field", leaving the existing
// Format value untouched (except Metadata and Bitrate, see below).
type ContainerInfo struct {
	ID             string
	Label          string
	SampleMime     string
	Codecs         string
	Metadata       [][]byte
	Bitrate        int // NoValue means "no hint"; otherwise replaces both Average and Peak
	Width          int
	Height         int
	ChannelCount   int
	SelectionFlags uint32
	Language       string
}

// WithContainerInfo combines f (a sample-level Format, as produced by an
// extractor) with hints taken from the container/transport level (e.g. an
// SDP media description). Any non-empty passed metadata is appended to the
// existing metadata; a passed Bitrate (when not NoValue) replaces both
// AverageBitrate and PeakBitrate.
func (f Format) WithContainerInfo(info ContainerInfo) Format {
	out := f
	out.hash = &hashCache{}

	if info.ID != "" {
		out.ID = info.ID
	}
	if info.Label != "" {
		out.Label = info.Label
	}
	if info.SampleMime != "" {
		out.SampleMime = info.SampleMime
	}
	if info.Codecs != "" {
		out.Codecs = info.Codecs
	}
	if len(info.Metadata) > 0 {
		out.Metadata = append(append([][]byte{}, f.Metadata...), info.Metadata...)
	}
	if info.Bitrate != 0 && info.Bitrate != NoValue {
		out.AverageBitrate = info.Bitrate
		out.PeakBitrate = info.Bitrate
	}
	if info.Width != 0 {
		out.Video.Width = info.Width
	}
	if info.Height != 0 {
		out.Video.Height = info.Height
	}
	if info.ChannelCount != 0 {
		out.Audio.ChannelCount = info.ChannelCount
	}
	if info.SelectionFlags != 0 {
		out.SelectionFlags = info.SelectionFlags
	}
	if info.Language != "" {
		out.Language = info.Language
	}

	return out
}

// WithManifestFormatInfo combines f (a Format produced by the sample-level
// extractor) with a Format known from an out-of-band manifest. Precedence
// is field-specific, see spec.md section 3.
func (f Format) WithManifestFormatInfo(manifest Format) Format {
	out := f
	out.hash = &hashCache{}

	// id always comes from the manifest.
	out.ID = manifest.ID

	// label prefers manifest.
	if manifest.Label != "" {
		out.Label = manifest.Label
	}

	// language prefers sample, falls back to manifest for TEXT/AUDIO.
	if out.Language == "" && (f.Type == TrackTypeText || f.Type == TrackTypeAudio) {
		out.Language = manifest.Language
	}

	// bitrate prefers sample: only fall back to manifest when sample is unset.
	if out.AverageBitrate == NoValue {
		out.AverageBitrate = manifest.AverageBitrate
	}
	if out.PeakBitrate == NoValue {
		out.PeakBitrate = manifest.PeakBitrate
	}

	// codecs: prefer sample; if absent, filter manifest codecs by the
	// sample MIME's track type and adopt only when exactly one survives.
	if out.Codecs == "" {
		if candidate, ok := filterCodecsForType(manifest.Codecs, trackTypeForMime(f.SampleMime)); ok {
			out.Codecs = candidate
		}
	}

	// frameRate prefers sample unless this is a video track and the sample
	// value is absent.
	if f.Type == TrackTypeVideo && out.Video.FrameRate == 0 {
		out.Video.FrameRate = manifest.Video.FrameRate
	}

	// selection and role flags are OR'd.
	out.SelectionFlags = f.SelectionFlags | manifest.SelectionFlags
	out.RoleFlags = f.RoleFlags | manifest.RoleFlags

	// DRM init data: session-creation-data merge, manifest first then self.
	out.DRMInitData = mergeDRMInitData(manifest.DRMInitData, f.DRMInitData)

	return out
}

// trackTypeForMime maps a sample MIME's top-level type to a TrackType.
// Mirrors the type-prefix convention of RFC 6838 ("audio/...", "video/...",
// "text/...").
func trackTypeForMime(mime string) TrackType {
	switch {
	case len(mime) >= 6 && mime[:6] == "audio/":
		return TrackTypeAudio
	case len(mime) >= 6 && mime[:6] == "video/":
		return TrackTypeVideo
	case len(mime) >= 5 && mime[:5] == "text/":
		return TrackTypeText
	default:
		return TrackTypeUnknown
	}
}

// codecMimePrefix maps RFC 6381 codec string prefixes to a TrackType, for
// the small set of prefixes this pipeline cares about (avc/h264 -> video,
// mp4a/opus -> audio). Unknown prefixes are treated as TrackTypeUnknown and
// never match a filter.
func codecMimePrefix(codec string) TrackType {
	switch {
	case hasAnyPrefix(codec, "avc1", "avc3", "hvc1", "hev1", "vp8", "vp9", "av01"):
		return TrackTypeVideo
	case hasAnyPrefix(codec, "mp4a", "opus", "ac-3", "ec-3", "pcma", "pcmu"):
		return TrackTypeAudio
	default:
		return TrackTypeUnknown
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if len(s) >= len(p) && s[:len(p)] == p {
			return true
		}
	}
	return false
}

// filterCodecsForType splits a comma-separated RFC 6381 codecs string,
// keeps only the entries whose type matches wantType, and returns the
// single survivor, if and only if exactly one survives.
func filterCodecsForType(codecs string, wantType TrackType) (string, bool) {
	if codecs == "" || wantType == TrackTypeUnknown {
		return "", false
	}

	var survivors []string
	start := 0
	for i := 0; i <= len(codecs); i++ {
		if i == len(codecs) || codecs[i] == ',' {
			part := trimSpace(codecs[start:i])
			if part != "" && codecMimePrefix(part) == wantType {
				survivors = append(survivors, part)
			}
			start = i + 1
		}
	}

	if len(survivors) == 1 {
		return survivors[0], true
	}
	return "", false
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

// mergeDRMInitData implements the "session-creation-data" merge: entries
// from a are kept, then entries from b whose SchemeUUID is not already
// present are appended.
func mergeDRMInitData(a, b *DRMInitData) *DRMInitData {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}

	seen := make(map[[16]byte]bool, len(a.SchemeData))
	merged := append([]DRMSchemeData{}, a.SchemeData...)
	for _, s := range a.SchemeData {
		seen[s.SchemeUUID] = true
	}
	for _, s := range b.SchemeData {
		if !seen[s.SchemeUUID] {
			merged = append(merged, s)
			seen[s.SchemeUUID] = true
		}
	}

	return &DRMInitData{SchemeData: merged}
}
