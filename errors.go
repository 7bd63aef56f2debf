package bmff

import (
	"fmt"

	"github.com/pkg/errors"
)

// DecodeErrorKind classifies why a structured decoder failed.
type DecodeErrorKind int

const (
	// Short means the declared count would need more bytes than the payload carries.
	Short DecodeErrorKind = iota
	// InvalidField means a decoded value violates an invariant (e.g. non-increasing first_chunk).
	InvalidField
	// Unsupported means the box is recognized but this field layout isn't handled.
	Unsupported
)

func (k DecodeErrorKind) String() string {
	switch k {
	case Short:
		return "short"
	case InvalidField:
		return "invalid field"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// DecodeError reports a structured-decoder failure for a single box. It
// never aborts the tree walk; callers surface it as the box's decoded value.
type DecodeError struct {
	BoxType BoxType
	Kind    DecodeErrorKind
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s: %s", e.BoxType, e.Kind, e.Reason)
}

// MalformedHeaderError reports an impossible or truncated box header.
type MalformedHeaderError struct {
	Offset int64
	Reason string
}

func (e *MalformedHeaderError) Error() string {
	return fmt.Sprintf("malformed header at offset %d: %s", e.Offset, e.Reason)
}

// InvalidSampleTableError aborts extraction for a single track; other
// tracks in the same analysis are unaffected.
type InvalidSampleTableError struct {
	TrackID uint32
	Reason  string
}

func (e *InvalidSampleTableError) Error() string {
	return fmt.Sprintf("invalid sample table for track %d: %s", e.TrackID, e.Reason)
}

// ErrNoDecoder is returned by the registry for a key with no registered
// decoder. It is informational, never treated as a failure.
var ErrNoDecoder = errors.New("no decoder registered for box key")

// wrapf wraps err with call-site context, matching the taxonomy's
// "IO" category for a failed read against the seekable input.
func wrapf(err error, format string, args ...any) error {
	return errors.Wrapf(err, format, args...)
}
