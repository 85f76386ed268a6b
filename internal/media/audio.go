package media

import (
	"fmt"
	"math/bits"
	"strings"
)

// SampleFormat is the storage format of one audio sample.
type SampleFormat int

// Sample formats. The P suffix marks planar layouts.
const (
	SampleFormatNone SampleFormat = iota
	SampleFormatU8
	SampleFormatS16
	SampleFormatS32
	SampleFormatFLT
	SampleFormatDBL
	SampleFormatU8P
	SampleFormatS16P
	SampleFormatS32P
	SampleFormatFLTP
	SampleFormatDBLP
)

var sampleFormatNames = map[SampleFormat]string{
	SampleFormatNone: "none",
	SampleFormatU8:   "u8",
	SampleFormatS16:  "s16",
	SampleFormatS32:  "s32",
	SampleFormatFLT:  "flt",
	SampleFormatDBL:  "dbl",
	SampleFormatU8P:  "u8p",
	SampleFormatS16P: "s16p",
	SampleFormatS32P: "s32p",
	SampleFormatFLTP: "fltp",
	SampleFormatDBLP: "dblp",
}

// ParseSampleFormat parses names such as "s16", "fltp" or "f32le".
func ParseSampleFormat(s string) (SampleFormat, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "s16le", "pcm_s16le":
		return SampleFormatS16, nil
	case "s32le", "pcm_s32le":
		return SampleFormatS32, nil
	case "f32le", "float", "pcm_f32le":
		return SampleFormatFLT, nil
	case "f64le", "double", "pcm_f64le":
		return SampleFormatDBL, nil
	case "pcm_u8":
		return SampleFormatU8, nil
	}
	for f, n := range sampleFormatNames {
		if n == name {
			return f, nil
		}
	}
	return SampleFormatNone, fmt.Errorf("unknown sample format %q", s)
}

// String returns the short name of the format.
func (f SampleFormat) String() string {
	if n, ok := sampleFormatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("SampleFormat(%d)", int(f))
}

// BytesPerSample returns the size of one sample of one channel, or 0 for
// SampleFormatNone.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatU8, SampleFormatU8P:
		return 1
	case SampleFormatS16, SampleFormatS16P:
		return 2
	case SampleFormatS32, SampleFormatS32P, SampleFormatFLT, SampleFormatFLTP:
		return 4
	case SampleFormatDBL, SampleFormatDBLP:
		return 8
	default:
		return 0
	}
}

// IsPlanar reports whether each channel is stored in its own plane.
func (f SampleFormat) IsPlanar() bool {
	return f >= SampleFormatU8P && f <= SampleFormatDBLP
}

// Packed returns the interleaved counterpart of a planar format.
func (f SampleFormat) Packed() SampleFormat {
	if f.IsPlanar() {
		return f - (SampleFormatU8P - SampleFormatU8)
	}
	return f
}

// Planar returns the planar counterpart of a packed format.
func (f SampleFormat) Planar() SampleFormat {
	if f != SampleFormatNone && !f.IsPlanar() {
		return f + (SampleFormatU8P - SampleFormatU8)
	}
	return f
}

// ChannelLayout is a bit mask of speaker positions.
type ChannelLayout uint64

// Speaker positions.
const (
	ChannelFrontLeft    ChannelLayout = 0x1
	ChannelFrontRight   ChannelLayout = 0x2
	ChannelFrontCenter  ChannelLayout = 0x4
	ChannelLowFrequency ChannelLayout = 0x8
	ChannelBackLeft     ChannelLayout = 0x10
	ChannelBackRight    ChannelLayout = 0x20
	ChannelSideLeft     ChannelLayout = 0x200
	ChannelSideRight    ChannelLayout = 0x400
)

// Common layouts.
const (
	ChannelLayoutNone    ChannelLayout = 0
	ChannelLayoutMono                  = ChannelFrontCenter
	ChannelLayoutStereo                = ChannelFrontLeft | ChannelFrontRight
	ChannelLayout2Point1               = ChannelLayoutStereo | ChannelLowFrequency
	ChannelLayoutQuad                  = ChannelLayoutStereo | ChannelBackLeft | ChannelBackRight
	ChannelLayout5Point0               = ChannelLayoutStereo | ChannelFrontCenter | ChannelSideLeft | ChannelSideRight
	ChannelLayout5Point1               = ChannelLayout5Point0 | ChannelLowFrequency
)

// Channels returns the number of channels in the layout.
func (l ChannelLayout) Channels() int {
	return bits.OnesCount64(uint64(l))
}

// String returns a readable layout name.
func (l ChannelLayout) String() string {
	switch l {
	case ChannelLayoutNone:
		return "none"
	case ChannelLayoutMono:
		return "mono"
	case ChannelLayoutStereo:
		return "stereo"
	case ChannelLayout2Point1:
		return "2.1"
	case ChannelLayoutQuad:
		return "quad"
	case ChannelLayout5Point0:
		return "5.0"
	case ChannelLayout5Point1:
		return "5.1"
	default:
		return fmt.Sprintf("%d channels (0x%x)", l.Channels(), uint64(l))
	}
}

// DefaultChannelLayout returns the conventional layout for a channel count.
func DefaultChannelLayout(channels int) ChannelLayout {
	switch channels {
	case 1:
		return ChannelLayoutMono
	case 2:
		return ChannelLayoutStereo
	case 3:
		return ChannelLayout2Point1
	case 4:
		return ChannelLayoutQuad
	case 5:
		return ChannelLayout5Point0
	case 6:
		return ChannelLayout5Point1
	default:
		if channels <= 0 {
			return ChannelLayoutNone
		}
		return ChannelLayout((uint64(1) << uint(channels)) - 1)
	}
}

// AudioFormat describes sample rate, layout and sample format.
type AudioFormat struct {
	SampleRate int
	Layout     ChannelLayout
	Format     SampleFormat
}

// Complete reports whether every field is set.
func (f AudioFormat) Complete() bool {
	return f.SampleRate > 0 && f.Layout != ChannelLayoutNone && f.Format != SampleFormatNone
}

// Channels returns the channel count of the layout.
func (f AudioFormat) Channels() int {
	return f.Layout.Channels()
}

// BytesPerFrame returns the size of one interleaved sample across all channels.
func (f AudioFormat) BytesPerFrame() int {
	return f.Format.BytesPerSample() * f.Channels()
}

// String returns e.g. "44100Hz mono s16".
func (f AudioFormat) String() string {
	return fmt.Sprintf("%dHz %s %s", f.SampleRate, f.Layout, f.Format)
}
