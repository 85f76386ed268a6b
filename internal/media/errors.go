package media

import "errors"

// Pipeline error taxonomy. Components wrap these with context; callers
// inspect them with errors.Is.
var (
	// ErrOpen is returned when a container or output file cannot be opened.
	ErrOpen = errors.New("open failed")
	// ErrUnsupportedCodec is returned when no decoder or encoder exists for a codec.
	ErrUnsupportedCodec = errors.New("unsupported codec")
	// ErrAllocation is returned when a codec context or buffer cannot be built.
	ErrAllocation = errors.New("allocation failed")
	// ErrResample is returned when the destination format is unset or conversion fails.
	ErrResample = errors.New("resample failed")
	// ErrWrite is returned when a header, trailer, packet or frame write fails.
	ErrWrite = errors.New("write failed")
	// ErrDecode reports a hard decode failure for a single packet. It never
	// closes the decoder.
	ErrDecode = errors.New("decode failed")
)
