package media

import "time"

// CodecParameters describes the encoded data of one stream.
type CodecParameters struct {
	MediaType MediaType
	// CodecName is the engine-neutral codec name, e.g. "h264", "aac" or
	// "pcm_s16le".
	CodecName string
	CodecTag  uint32
	BitRate   int64

	SampleRate   int
	Layout       ChannelLayout
	SampleFormat SampleFormat
	// FrameSize is the number of samples per audio packet, 0 if variable.
	FrameSize int

	Width       int
	Height      int
	PixelFormat PixelFormat

	ExtraData []byte

	// Handle carries engine-private parameters, e.g. the source codec
	// parameters of a cgo engine. Copy keeps it.
	Handle any
}

// AudioFormat returns the audio format declared by the parameters.
func (p CodecParameters) AudioFormat() AudioFormat {
	return AudioFormat{SampleRate: p.SampleRate, Layout: p.Layout, Format: p.SampleFormat}
}

// Copy returns a copy with its own ExtraData slice.
func (p CodecParameters) Copy() CodecParameters {
	c := p
	if p.ExtraData != nil {
		c.ExtraData = append([]byte(nil), p.ExtraData...)
	}
	return c
}

// StreamInfo describes one stream of a container.
type StreamInfo struct {
	Index    int
	TimeBase Rational
	// StartTime is the first timestamp in TimeBase units, NoPTS if unknown.
	StartTime int64
	// Duration is in TimeBase units, 0 if unknown.
	Duration int64
	Params   CodecParameters
}

// MediaType returns the stream's media type.
func (s StreamInfo) MediaType() MediaType {
	return s.Params.MediaType
}

// DurationTime returns the duration as a time.Duration.
func (s StreamInfo) DurationTime() time.Duration {
	if s.Duration <= 0 || !s.TimeBase.Valid() {
		return 0
	}
	ns := Rescale(s.Duration, s.TimeBase, Rational{Num: 1, Den: int(time.Second)})
	return time.Duration(ns)
}

// SeekTarget converts a fractional position in [0,1] into a timestamp in
// the stream's time base. Positions outside the range are clamped.
func (s StreamInfo) SeekTarget(position float64) int64 {
	if position < 0 {
		position = 0
	}
	if position > 1 {
		position = 1
	}
	start := s.StartTime
	if start == NoPTS {
		start = 0
	}
	return start + int64(float64(s.Duration)*position)
}
