package media

import "fmt"

// PixelFormat is the layout of decoded video samples.
type PixelFormat int

// Pixel formats known to the sinks. Engines map anything else to
// PixelFormatOther.
const (
	PixelFormatNone PixelFormat = iota
	PixelFormatYUV420P
	PixelFormatYUVJ420P
	PixelFormatYUV422P
	PixelFormatYUV444P
	PixelFormatNV12
	PixelFormatRGB24
	PixelFormatOther
)

// String returns the conventional pixel format name.
func (p PixelFormat) String() string {
	switch p {
	case PixelFormatYUV420P:
		return "yuv420p"
	case PixelFormatYUVJ420P:
		return "yuvj420p"
	case PixelFormatYUV422P:
		return "yuv422p"
	case PixelFormatYUV444P:
		return "yuv444p"
	case PixelFormatNV12:
		return "nv12"
	case PixelFormatRGB24:
		return "rgb24"
	case PixelFormatNone:
		return "none"
	default:
		return "other"
	}
}

// Is420Planar reports whether the format stores Y, U and V in three planes
// with chroma subsampled by two in both directions.
func (p PixelFormat) Is420Planar() bool {
	return p == PixelFormatYUV420P || p == PixelFormatYUVJ420P
}

// AudioFrame holds decoded audio. Planes has one slice per channel for
// planar formats and a single interleaved slice otherwise.
type AudioFrame struct {
	SampleRate int
	Layout     ChannelLayout
	Format     SampleFormat
	NbSamples  int
	PTS        int64
	TimeBase   Rational
	Planes     [][]byte
}

// NewAudioFrame returns an empty frame.
func NewAudioFrame() *AudioFrame {
	return &AudioFrame{PTS: NoPTS}
}

// Channels returns the channel count.
func (f *AudioFrame) Channels() int {
	return f.Layout.Channels()
}

// AudioFormat returns the frame's format descriptor.
func (f *AudioFrame) AudioFormat() AudioFormat {
	return AudioFormat{SampleRate: f.SampleRate, Layout: f.Layout, Format: f.Format}
}

// Reset clears metadata and truncates the planes, keeping their capacity.
func (f *AudioFrame) Reset() {
	f.SampleRate = 0
	f.Layout = ChannelLayoutNone
	f.Format = SampleFormatNone
	f.NbSamples = 0
	f.PTS = NoPTS
	f.TimeBase = Rational{}
	for i := range f.Planes {
		f.Planes[i] = f.Planes[i][:0]
	}
}

// Plane returns plane i resized to size bytes, reusing its capacity.
func (f *AudioFrame) Plane(i, size int) []byte {
	for len(f.Planes) <= i {
		f.Planes = append(f.Planes, nil)
	}
	if cap(f.Planes[i]) < size {
		f.Planes[i] = make([]byte, size)
	}
	f.Planes[i] = f.Planes[i][:size]
	return f.Planes[i]
}

// View returns a borrowed view of the frame.
func (f *AudioFrame) View() AudioView {
	return AudioView{f: f}
}

// Clone returns an owned deep copy.
func (f *AudioFrame) Clone() *AudioFrame {
	c := *f
	c.Planes = make([][]byte, len(f.Planes))
	for i, p := range f.Planes {
		c.Planes[i] = append([]byte(nil), p...)
	}
	return &c
}

// AudioView is a borrowed, read-only view of a decoder's frame buffer. It
// is only valid during the sink call that received it.
type AudioView struct {
	f *AudioFrame
}

// Valid reports whether the view refers to a frame.
func (v AudioView) Valid() bool { return v.f != nil }

// SampleRate returns the sample rate.
func (v AudioView) SampleRate() int { return v.f.SampleRate }

// Layout returns the channel layout.
func (v AudioView) Layout() ChannelLayout { return v.f.Layout }

// Channels returns the channel count.
func (v AudioView) Channels() int { return v.f.Channels() }

// Format returns the sample format.
func (v AudioView) Format() SampleFormat { return v.f.Format }

// AudioFormat returns the frame's format descriptor.
func (v AudioView) AudioFormat() AudioFormat { return v.f.AudioFormat() }

// NbSamples returns the number of samples per channel.
func (v AudioView) NbSamples() int { return v.f.NbSamples }

// PTS returns the presentation timestamp.
func (v AudioView) PTS() int64 { return v.f.PTS }

// TimeBase returns the time base of PTS.
func (v AudioView) TimeBase() Rational { return v.f.TimeBase }

// NumPlanes returns the number of data planes.
func (v AudioView) NumPlanes() int { return len(v.f.Planes) }

// Plane returns plane i. The slice aliases decoder memory and must not be
// modified or retained.
func (v AudioView) Plane(i int) []byte { return v.f.Planes[i] }

// DataSize returns the number of payload bytes across all channels.
func (v AudioView) DataSize() int {
	return v.f.NbSamples * v.f.Channels() * v.f.Format.BytesPerSample()
}

// AppendInterleaved appends the samples to dst in packed form. Planar
// input is interleaved, packed input is copied as is.
func (v AudioView) AppendInterleaved(dst []byte) ([]byte, error) {
	f := v.f
	bps := f.Format.BytesPerSample()
	channels := f.Channels()
	if bps == 0 || channels == 0 {
		return dst, fmt.Errorf("invalid audio frame format %s/%s", f.Format, f.Layout)
	}

	size := f.NbSamples * channels * bps
	if !f.Format.IsPlanar() {
		if len(f.Planes) == 0 || len(f.Planes[0]) < size {
			return dst, fmt.Errorf("packed plane holds %d bytes, need %d", planeLen(f.Planes, 0), size)
		}
		return append(dst, f.Planes[0][:size]...), nil
	}

	if len(f.Planes) < channels {
		return dst, fmt.Errorf("planar frame has %d planes for %d channels", len(f.Planes), channels)
	}
	for ch := 0; ch < channels; ch++ {
		if len(f.Planes[ch]) < f.NbSamples*bps {
			return dst, fmt.Errorf("plane %d holds %d bytes, need %d", ch, len(f.Planes[ch]), f.NbSamples*bps)
		}
	}

	start := len(dst)
	dst = append(dst, make([]byte, size)...)
	out := dst[start:]
	stride := channels * bps
	for ch := 0; ch < channels; ch++ {
		plane := f.Planes[ch]
		for i := 0; i < f.NbSamples; i++ {
			copy(out[i*stride+ch*bps:i*stride+(ch+1)*bps], plane[i*bps:(i+1)*bps])
		}
	}
	return dst, nil
}

// Clone returns an owned deep copy of the viewed frame.
func (v AudioView) Clone() *AudioFrame { return v.f.Clone() }

func planeLen(planes [][]byte, i int) int {
	if i >= len(planes) {
		return 0
	}
	return len(planes[i])
}

// VideoFrame holds a decoded picture. Linesize[i] is the stride of
// Planes[i] and may exceed the visible width.
type VideoFrame struct {
	Width       int
	Height      int
	PixelFormat PixelFormat
	Keyframe    bool
	PTS         int64
	TimeBase    Rational
	Planes      [][]byte
	Linesize    []int
}

// NewVideoFrame returns an empty frame.
func NewVideoFrame() *VideoFrame {
	return &VideoFrame{PTS: NoPTS}
}

// Reset clears metadata and truncates the planes, keeping their capacity.
func (f *VideoFrame) Reset() {
	f.Width = 0
	f.Height = 0
	f.PixelFormat = PixelFormatNone
	f.Keyframe = false
	f.PTS = NoPTS
	f.TimeBase = Rational{}
	for i := range f.Planes {
		f.Planes[i] = f.Planes[i][:0]
	}
	f.Linesize = f.Linesize[:0]
}

// Plane returns plane i resized to size bytes with the given stride,
// reusing its capacity.
func (f *VideoFrame) Plane(i, size, linesize int) []byte {
	for len(f.Planes) <= i {
		f.Planes = append(f.Planes, nil)
	}
	for len(f.Linesize) <= i {
		f.Linesize = append(f.Linesize, 0)
	}
	if cap(f.Planes[i]) < size {
		f.Planes[i] = make([]byte, size)
	}
	f.Planes[i] = f.Planes[i][:size]
	f.Linesize[i] = linesize
	return f.Planes[i]
}

// View returns a borrowed view of the frame.
func (f *VideoFrame) View() VideoView {
	return VideoView{f: f}
}

// Clone returns an owned deep copy.
func (f *VideoFrame) Clone() *VideoFrame {
	c := *f
	c.Planes = make([][]byte, len(f.Planes))
	for i, p := range f.Planes {
		c.Planes[i] = append([]byte(nil), p...)
	}
	c.Linesize = append([]int(nil), f.Linesize...)
	return &c
}

// VideoView is a borrowed, read-only view of a decoder's frame buffer. It
// is only valid during the sink call that received it.
type VideoView struct {
	f *VideoFrame
}

// Valid reports whether the view refers to a frame.
func (v VideoView) Valid() bool { return v.f != nil }

// Width returns the visible width.
func (v VideoView) Width() int { return v.f.Width }

// Height returns the visible height.
func (v VideoView) Height() int { return v.f.Height }

// PixelFormat returns the pixel format.
func (v VideoView) PixelFormat() PixelFormat { return v.f.PixelFormat }

// Keyframe reports whether the picture is a key frame.
func (v VideoView) Keyframe() bool { return v.f.Keyframe }

// PTS returns the presentation timestamp.
func (v VideoView) PTS() int64 { return v.f.PTS }

// TimeBase returns the time base of PTS.
func (v VideoView) TimeBase() Rational { return v.f.TimeBase }

// NumPlanes returns the number of data planes.
func (v VideoView) NumPlanes() int { return len(v.f.Planes) }

// Plane returns plane i. The slice aliases decoder memory and must not be
// modified or retained.
func (v VideoView) Plane(i int) []byte { return v.f.Planes[i] }

// Linesize returns the stride of plane i.
func (v VideoView) Linesize(i int) int { return v.f.Linesize[i] }

// Clone returns an owned deep copy of the viewed frame.
func (v VideoView) Clone() *VideoFrame { return v.f.Clone() }
