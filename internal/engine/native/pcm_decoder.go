package native

import (
	"fmt"
	"io"

	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

// pcmDecoder turns raw PCM packets into packed audio frames, one frame per
// packet. A trailing partial sample frame is dropped.
type pcmDecoder struct {
	format media.AudioFormat

	pending  []byte
	pts      int64
	hasFrame bool
	draining bool
	closed   bool
}

var _ engine.CodecSession[*media.AudioFrame] = (*pcmDecoder)(nil)

func newPCMDecoder(params media.CodecParameters, format media.SampleFormat) *pcmDecoder {
	layout := params.Layout
	if layout == media.ChannelLayoutNone {
		layout = media.ChannelLayoutMono
	}
	return &pcmDecoder{
		format: media.AudioFormat{
			SampleRate: params.SampleRate,
			Layout:     layout,
			Format:     format,
		},
	}
}

// SendPacket queues one packet. A packet without data starts draining.
func (d *pcmDecoder) SendPacket(pkt *media.Packet) error {
	if d.closed {
		return engine.ErrClosed
	}
	if d.hasFrame {
		return engine.ErrAgain
	}
	if pkt == nil || len(pkt.Data) == 0 {
		d.draining = true
		return nil
	}
	if d.draining {
		return io.EOF
	}
	if d.format.SampleRate <= 0 {
		return fmt.Errorf("pcm decoder: sample rate not set")
	}
	d.pending = append(d.pending[:0], pkt.Data...)
	d.pts = pkt.PTS
	d.hasFrame = true
	return nil
}

func (d *pcmDecoder) ReceiveFrame(dst *media.AudioFrame) error {
	if d.closed {
		return engine.ErrClosed
	}
	if !d.hasFrame {
		if d.draining {
			return io.EOF
		}
		return engine.ErrAgain
	}
	d.hasFrame = false

	frameBytes := d.format.BytesPerFrame()
	samples := len(d.pending) / frameBytes
	if samples == 0 {
		return engine.ErrAgain
	}

	dst.Reset()
	dst.SampleRate = d.format.SampleRate
	dst.Layout = d.format.Layout
	dst.Format = d.format.Format
	dst.NbSamples = samples
	dst.PTS = d.pts
	copy(dst.Plane(0, samples*frameBytes), d.pending)
	dst.Planes = dst.Planes[:1]
	return nil
}

func (d *pcmDecoder) Flush() {
	d.pending = d.pending[:0]
	d.hasFrame = false
	d.draining = false
}

func (d *pcmDecoder) Close() error {
	d.closed = true
	d.pending = nil
	return nil
}
