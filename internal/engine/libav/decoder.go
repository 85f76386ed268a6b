//go:build libav

package libav

import (
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astiav"

	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

// codecSession wraps an opened libavcodec decoder. It owns one frame that
// every ReceiveFrame reuses.
type codecSession struct {
	params media.CodecParameters
	codec  *astiav.Codec
	cc     *astiav.CodecContext
	frame  *astiav.Frame
	pkt    *astiav.Packet
	closed bool
}

func openCodecSession(params media.CodecParameters) (*codecSession, error) {
	var codec *astiav.Codec
	if src, ok := params.Handle.(*astiav.CodecParameters); ok {
		codec = astiav.FindDecoder(src.CodecID())
	} else {
		codec = astiav.FindDecoderByName(params.CodecName)
	}
	if codec == nil {
		return nil, fmt.Errorf("%w: %w: %s", media.ErrUnsupportedCodec, engine.ErrDecoderNotFound, params.CodecName)
	}

	s := &codecSession{
		params: params,
		codec:  codec,
		frame:  astiav.AllocFrame(),
		pkt:    astiav.AllocPacket(),
	}
	if err := s.open(); err != nil {
		s.frame.Free()
		s.pkt.Free()
		return nil, err
	}
	return s, nil
}

func (s *codecSession) open() error {
	cc := astiav.AllocCodecContext(s.codec)
	if cc == nil {
		return fmt.Errorf("%w: codec context for %s", media.ErrAllocation, s.params.CodecName)
	}
	if src, ok := s.params.Handle.(*astiav.CodecParameters); ok {
		if err := src.ToCodecContext(cc); err != nil {
			cc.Free()
			return fmt.Errorf("%w: copying parameters of %s: %w", media.ErrAllocation, s.params.CodecName, err)
		}
	} else {
		cc.SetSampleRate(s.params.SampleRate)
		if layout, ok := toChannelLayout(s.params.Layout); ok {
			cc.SetChannelLayout(layout)
		}
		cc.SetWidth(s.params.Width)
		cc.SetHeight(s.params.Height)
	}
	if err := cc.Open(s.codec, nil); err != nil {
		cc.Free()
		return fmt.Errorf("%w: opening %s: %w", media.ErrUnsupportedCodec, s.params.CodecName, err)
	}
	s.cc = cc
	return nil
}

// SendPacket uses the demuxer's packet when the payload came from libav
// and copies the payload otherwise. A nil or empty packet starts draining.
func (s *codecSession) SendPacket(pkt *media.Packet) error {
	if s.closed {
		return engine.ErrClosed
	}
	var in *astiav.Packet
	if pkt != nil && len(pkt.Data) > 0 {
		if native, ok := pkt.Handle.(*astiav.Packet); ok {
			in = native
		} else {
			s.pkt.Unref()
			if err := s.pkt.FromData(pkt.Data); err != nil {
				return fmt.Errorf("%w: %w", media.ErrAllocation, err)
			}
			s.pkt.SetPts(toNoPTS(pkt.PTS))
			s.pkt.SetDts(toNoPTS(pkt.DTS))
			s.pkt.SetDuration(pkt.Duration)
			in = s.pkt
		}
	}
	return mapCodecError(s.cc.SendPacket(in))
}

func (s *codecSession) receive() error {
	if s.closed {
		return engine.ErrClosed
	}
	s.frame.Unref()
	return mapCodecError(s.cc.ReceiveFrame(s.frame))
}

// Flush reopens the codec context, which drops every buffered frame and
// leaves the session accepting packets again after a drain.
func (s *codecSession) Flush() {
	if s.closed {
		return
	}
	s.cc.Free()
	s.cc = nil
	if err := s.open(); err != nil {
		s.closed = true
	}
}

func (s *codecSession) Close() error {
	if s.closed && s.frame == nil {
		return nil
	}
	s.closed = true
	if s.cc != nil {
		s.cc.Free()
		s.cc = nil
	}
	if s.frame != nil {
		s.frame.Free()
		s.frame = nil
	}
	if s.pkt != nil {
		s.pkt.Free()
		s.pkt = nil
	}
	return nil
}

func mapCodecError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, astiav.ErrEagain):
		return engine.ErrAgain
	case errors.Is(err, astiav.ErrEof):
		return io.EOF
	}
	return fmt.Errorf("%w: %w", media.ErrDecode, err)
}

type audioDecoder struct {
	*codecSession
}

// ReceiveFrame copies the decoded samples into dst. Planar formats keep
// one plane per channel. Timestamps stay in the packet time base, which
// the caller attaches.
func (d *audioDecoder) ReceiveFrame(dst *media.AudioFrame) error {
	if err := d.receive(); err != nil {
		return err
	}
	data, err := d.frame.Data().Bytes(1)
	if err != nil {
		return fmt.Errorf("%w: reading audio frame: %w", media.ErrDecode, err)
	}

	dst.Reset()
	dst.SampleRate = d.frame.SampleRate()
	dst.Layout = fromChannelLayout(d.frame.ChannelLayout())
	dst.Format = fromSampleFormat(d.frame.SampleFormat())
	dst.NbSamples = d.frame.NbSamples()
	dst.PTS = fromNoPTS(d.frame.Pts())
	if dst.Format == media.SampleFormatNone {
		return fmt.Errorf("%w: unsupported sample format %s", media.ErrDecode, d.frame.SampleFormat())
	}

	planes := 1
	if dst.Format.IsPlanar() {
		planes = dst.Channels()
	}
	per := len(data) / planes
	for i := 0; i < planes; i++ {
		copy(dst.Plane(i, per), data[i*per:(i+1)*per])
	}
	dst.Planes = dst.Planes[:planes]
	return nil
}

type videoDecoder struct {
	*codecSession
}

// ReceiveFrame copies the decoded picture into dst with tight strides.
// 4:2:0 planar pictures keep three planes; other formats are stored as a
// single packed plane.
func (d *videoDecoder) ReceiveFrame(dst *media.VideoFrame) error {
	if err := d.receive(); err != nil {
		return err
	}
	data, err := d.frame.Data().Bytes(1)
	if err != nil {
		return fmt.Errorf("%w: reading video frame: %w", media.ErrDecode, err)
	}

	dst.Reset()
	dst.Width = d.frame.Width()
	dst.Height = d.frame.Height()
	dst.PixelFormat = fromPixelFormat(d.frame.PixelFormat())
	dst.Keyframe = d.frame.Flags().Has(astiav.FrameFlagKey)
	dst.PTS = fromNoPTS(d.frame.Pts())

	if dst.PixelFormat.Is420Planar() {
		w, h := dst.Width, dst.Height
		cw, ch := (w+1)/2, (h+1)/2
		sizes := []int{w * h, cw * ch, cw * ch}
		strides := []int{w, cw, cw}
		off := 0
		for i, size := range sizes {
			if off+size > len(data) {
				return fmt.Errorf("%w: short picture buffer", media.ErrDecode)
			}
			copy(dst.Plane(i, size, strides[i]), data[off:off+size])
			off += size
		}
		dst.Planes = dst.Planes[:3]
		dst.Linesize = dst.Linesize[:3]
		return nil
	}

	stride := 0
	if dst.Height > 0 {
		stride = len(data) / dst.Height
	}
	copy(dst.Plane(0, len(data), stride), data)
	dst.Planes = dst.Planes[:1]
	dst.Linesize = dst.Linesize[:1]
	return nil
}
