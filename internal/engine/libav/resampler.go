//go:build libav

package libav

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

// resampler converts packed audio through libswresample. Input and output
// frames are reused between calls.
type resampler struct {
	in, out media.AudioFormat

	ssc    *astiav.SoftwareResampleContext
	src    *astiav.Frame
	dst    *astiav.Frame
	closed bool
}

var _ engine.Resampler = (*resampler)(nil)

func newResampler(in, out media.AudioFormat) (*resampler, error) {
	if !in.Complete() || !out.Complete() {
		return nil, fmt.Errorf("%w: incomplete format %s -> %s", media.ErrResample, in, out)
	}
	in.Format = in.Format.Packed()
	out.Format = out.Format.Packed()
	for _, f := range []media.AudioFormat{in, out} {
		if _, ok := toSampleFormat(f.Format); !ok {
			return nil, fmt.Errorf("%w: unsupported sample format %s", media.ErrResample, f.Format)
		}
		if _, ok := toChannelLayout(f.Layout); !ok {
			return nil, fmt.Errorf("%w: unsupported channel layout %s", media.ErrResample, f.Layout)
		}
	}
	ssc := astiav.AllocSoftwareResampleContext()
	if ssc == nil {
		return nil, fmt.Errorf("%w: resample context", media.ErrAllocation)
	}
	return &resampler{
		in:  in,
		out: out,
		ssc: ssc,
		src: astiav.AllocFrame(),
		dst: astiav.AllocFrame(),
	}, nil
}

func setFrameFormat(f *astiav.Frame, format media.AudioFormat, samples int) error {
	sf, _ := toSampleFormat(format.Format)
	layout, _ := toChannelLayout(format.Layout)
	f.Unref()
	f.SetSampleFormat(sf)
	f.SetChannelLayout(layout)
	f.SetSampleRate(format.SampleRate)
	f.SetNbSamples(samples)
	return f.AllocBuffer(0)
}

// Convert writes at most outCapacity samples per channel into out.
// Samples that do not fit stay buffered in the context.
func (r *resampler) Convert(out []byte, outCapacity int, in []byte, inSamples int) (int, error) {
	if r.closed {
		return 0, engine.ErrClosed
	}
	outFrame := r.out.BytesPerFrame()
	if limit := len(out) / outFrame; outCapacity > limit {
		outCapacity = limit
	}
	if outCapacity <= 0 {
		return 0, nil
	}

	var src *astiav.Frame
	if inSamples > 0 {
		need := inSamples * r.in.BytesPerFrame()
		if len(in) < need {
			return 0, fmt.Errorf("%w: input holds %d bytes, need %d", media.ErrResample, len(in), need)
		}
		if err := setFrameFormat(r.src, r.in, inSamples); err != nil {
			return 0, fmt.Errorf("%w: %w", media.ErrAllocation, err)
		}
		if err := r.src.Data().SetBytes(in[:need], 1); err != nil {
			return 0, fmt.Errorf("%w: %w", media.ErrResample, err)
		}
		src = r.src
	}

	if err := setFrameFormat(r.dst, r.out, outCapacity); err != nil {
		return 0, fmt.Errorf("%w: %w", media.ErrAllocation, err)
	}
	if err := r.ssc.ConvertFrame(src, r.dst); err != nil {
		return 0, fmt.Errorf("%w: %w", media.ErrResample, err)
	}
	n := r.dst.NbSamples()
	if n == 0 {
		return 0, nil
	}
	data, err := r.dst.Data().Bytes(1)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", media.ErrResample, err)
	}
	copy(out, data[:n*outFrame])
	return n, nil
}

func (r *resampler) Delay(base int64) int64 {
	if r.closed {
		return 0
	}
	return r.ssc.Delay(base)
}

func (r *resampler) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.src.Free()
	r.dst.Free()
	r.ssc.Free()
	return nil
}
