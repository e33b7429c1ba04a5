// Package mediaerrors defines the sentinel error values shared across the
// loader, transport and extractor packages, grounded on gortsplib's
// pkg/liberrors convention of exporting one typed value per failure mode
// instead of formatting ad-hoc strings, so callers can branch with
// errors.Is instead of parsing messages.
package mediaerrors

import "errors"

// ErrUnsupportedProtocol is returned when a Loadable is asked to read a
// non-RTP payload over a transport that cannot carry it (see SPEC_FULL.md's
// decision to fail fast rather than silently fall back).
var ErrUnsupportedProtocol = errors.New("mediatrack: unsupported transport/payload combination")

// ErrUnsupportedFormat is returned by an extractor's sniff step when no
// registered extractor recognizes the payload.
var ErrUnsupportedFormat = errors.New("mediatrack: unsupported media format")

// ErrCancellation is returned from a Loadable's load loop when it was
// stopped by CancelLoading rather than failing or completing.
var ErrCancellation = errors.New("mediatrack: load cancelled")

// ErrReadTimeout is returned when a transport read deadline elapses with
// no data, analogous to ExoPlayer's SocketTimeoutException handling.
var ErrReadTimeout = errors.New("mediatrack: read timeout")

// ErrReadFailed wraps a lower-level transport error that is not a timeout.
var ErrReadFailed = errors.New("mediatrack: read failed")

// ErrPrepareNotComplete is returned by operations that require prepare() to
// have finished successfully (selectTracks, playback, seekToUs) when
// called too early.
var ErrPrepareNotComplete = errors.New("mediatrack: prepare not complete")

// ErrReleased is returned by operations invoked after Release.
var ErrReleased = errors.New("mediatrack: wrapper released")

// ErrPortExhausted is returned when no UDP port pair could be bound within
// the retry budget.
var ErrPortExhausted = errors.New("mediatrack: no UDP port available")
