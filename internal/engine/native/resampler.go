package native

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ik5/audpbx/audio"

	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

// cubicLookahead is the number of input frames the cubic interpolator reads
// past the position of an output sample.
const cubicLookahead = 3

// resampler remixes channels and converts sample formats locally and feeds
// the remixed float samples through an audpbx cubic resampler. When the
// rates match the feed is read directly.
type resampler struct {
	in  media.AudioFormat
	out media.AudioFormat

	inChannels  int
	outChannels int

	feed      *feedSource
	src       audio.Source
	lookahead int64

	// fed and produced count frames pushed into feed and read back out.
	fed      int64
	produced int64

	frame  []float64
	mixed  []float32
	pulled []float32
	closed bool
}

var _ engine.Resampler = (*resampler)(nil)

func newResampler(in, out media.AudioFormat) (*resampler, error) {
	if !in.Complete() {
		return nil, fmt.Errorf("%w: incomplete input format %s", media.ErrResample, in)
	}
	if !out.Complete() {
		return nil, fmt.Errorf("%w: incomplete output format %s", media.ErrResample, out)
	}
	if _, err := sampleReader(in.Format.Packed()); err != nil {
		return nil, err
	}
	if _, err := sampleWriter(out.Format.Packed()); err != nil {
		return nil, err
	}
	in.Format = in.Format.Packed()
	out.Format = out.Format.Packed()

	r := &resampler{
		in:          in,
		out:         out,
		inChannels:  in.Channels(),
		outChannels: out.Channels(),
		feed:        &feedSource{rate: in.SampleRate, channels: out.Channels()},
	}
	r.frame = make([]float64, r.inChannels)
	if in.SampleRate == out.SampleRate {
		r.src = r.feed
	} else {
		r.src = audio.NewResampler(r.feed, out.SampleRate)
		r.lookahead = cubicLookahead
	}
	return r, nil
}

func (r *resampler) Convert(out []byte, outCapacity int, in []byte, inSamples int) (int, error) {
	if r.closed {
		return 0, engine.ErrClosed
	}
	inFrame := r.in.BytesPerFrame()
	if len(in) < inSamples*inFrame {
		return 0, fmt.Errorf("%w: input holds %d bytes, need %d", media.ErrResample, len(in), inSamples*inFrame)
	}
	outFrame := r.out.BytesPerFrame()
	if limit := len(out) / outFrame; outCapacity > limit {
		outCapacity = limit
	}

	read, _ := sampleReader(r.in.Format)
	bps := r.in.Format.BytesPerSample()
	r.mixed = r.mixed[:0]
	for i := 0; i < inSamples; i++ {
		base := i * inFrame
		for c := 0; c < r.inChannels; c++ {
			r.frame[c] = read(in[base+c*bps:])
		}
		r.mixed = r.remix(r.mixed, r.frame)
	}
	r.feed.push(r.mixed)
	r.fed += int64(inSamples)

	want := r.ready() - r.produced
	if want > int64(outCapacity) {
		want = int64(outCapacity)
	}
	if want <= 0 {
		return 0, nil
	}

	total := int(want) * r.outChannels
	if cap(r.pulled) < total {
		r.pulled = make([]float32, total)
	}
	buf := r.pulled[:total]
	got := 0
	for got < total {
		n, err := r.src.ReadSamples(buf[got:])
		got += n
		if err != nil || n == 0 {
			break
		}
	}
	produced := got / r.outChannels

	write, _ := sampleWriter(r.out.Format)
	obps := r.out.Format.BytesPerSample()
	for i := 0; i < produced*r.outChannels; i++ {
		write(out[(i/r.outChannels)*outFrame+(i%r.outChannels)*obps:], float64(buf[i]))
	}
	r.produced += int64(produced)
	return produced, nil
}

// ready returns the number of output frames the fed input fully covers.
func (r *resampler) ready() int64 {
	avail := r.fed - r.lookahead
	if avail <= 0 {
		return 0
	}
	return avail * int64(r.out.SampleRate) / int64(r.in.SampleRate)
}

// remix appends one input frame to dst with the output channel count.
func (r *resampler) remix(dst []float32, frame []float64) []float32 {
	switch {
	case r.inChannels == r.outChannels:
		for _, v := range frame {
			dst = append(dst, float32(v))
		}
		return dst
	case r.outChannels == 1:
		var sum float64
		for _, v := range frame {
			sum += v
		}
		return append(dst, float32(sum/float64(len(frame))))
	default:
		for c := 0; c < r.outChannels; c++ {
			dst = append(dst, float32(frame[c%r.inChannels]))
		}
		return dst
	}
}

// Delay returns the input not yet covered by output in 1/base units,
// rounded up.
func (r *resampler) Delay(base int64) int64 {
	inRate := int64(r.in.SampleRate)
	outRate := int64(r.out.SampleRate)
	pending := r.fed*outRate - r.produced*inRate
	if pending <= 0 {
		return 0
	}
	return media.RescaleRnd(pending, base, inRate*outRate, media.RoundUp)
}

func (r *resampler) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.feed.buf = nil
	return r.src.Close()
}

// feedSource is an audio.Source over samples pushed by Convert. It reports
// no data rather than end of stream when drained.
type feedSource struct {
	rate     int
	channels int
	buf      []float32
}

var _ audio.Source = (*feedSource)(nil)

func (s *feedSource) push(samples []float32) {
	s.buf = append(s.buf, samples...)
}

func (s *feedSource) SampleRate() int { return s.rate }

func (s *feedSource) Channels() int { return s.channels }

func (s *feedSource) ReadSamples(dst []float32) (int, error) {
	limit := len(dst) - len(dst)%s.channels
	n := copy(dst[:limit], s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *feedSource) BufSize() int { return s.rate / 100 * s.channels }

func (s *feedSource) Close() error { return nil }

type readFunc func(b []byte) float64

type writeFunc func(b []byte, v float64)

// sampleReader returns a decoder of one packed little-endian sample into
// [-1, 1].
func sampleReader(f media.SampleFormat) (readFunc, error) {
	switch f {
	case media.SampleFormatU8:
		return func(b []byte) float64 { return (float64(b[0]) - 128) / 128 }, nil
	case media.SampleFormatS16:
		return func(b []byte) float64 {
			return float64(int16(binary.LittleEndian.Uint16(b))) / 32768
		}, nil
	case media.SampleFormatS32:
		return func(b []byte) float64 {
			return float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648
		}, nil
	case media.SampleFormatFLT:
		return func(b []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}, nil
	case media.SampleFormatDBL:
		return func(b []byte) float64 {
			return math.Float64frombits(binary.LittleEndian.Uint64(b))
		}, nil
	}
	return nil, fmt.Errorf("%w: unsupported sample format %s", media.ErrResample, f)
}

// sampleWriter returns an encoder of one sample in [-1, 1] into a packed
// little-endian sample, clipping out-of-range values.
func sampleWriter(f media.SampleFormat) (writeFunc, error) {
	switch f {
	case media.SampleFormatU8:
		return func(b []byte, v float64) {
			b[0] = byte(clip(math.Round(v*128)+128, 0, 255))
		}, nil
	case media.SampleFormatS16:
		return func(b []byte, v float64) {
			binary.LittleEndian.PutUint16(b, uint16(int16(clip(math.Round(v*32768), math.MinInt16, math.MaxInt16))))
		}, nil
	case media.SampleFormatS32:
		return func(b []byte, v float64) {
			binary.LittleEndian.PutUint32(b, uint32(int32(clip(math.Round(v*2147483648), math.MinInt32, math.MaxInt32))))
		}, nil
	case media.SampleFormatFLT:
		return func(b []byte, v float64) {
			binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		}, nil
	case media.SampleFormatDBL:
		return func(b []byte, v float64) {
			binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		}, nil
	}
	return nil, fmt.Errorf("%w: unsupported sample format %s", media.ErrResample, f)
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
