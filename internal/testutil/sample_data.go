// Package testutil provides test utilities including sample media
// generation and fake engine collaborators.
package testutil

import (
	"encoding/binary"
	"math"
	"math/rand"
	"time"

	"github.com/jmylchreest/avpump/internal/media"
)

// Common test stream parameters.
const (
	// CDSampleRate is the 44.1kHz rate used by most audio tests.
	CDSampleRate = 44100
	// WidebandSampleRate is the 16kHz destination rate used by speech
	// pipelines.
	WidebandSampleRate = 16000
	// AACFrameSamples is the number of samples per channel in one AAC frame.
	AACFrameSamples = 1024
	// TSClock is the MPEG-TS 90kHz clock rate.
	TSClock = 90000
)

// SampleDataGenerator generates media payloads for testing.
type SampleDataGenerator struct {
	rng *rand.Rand
}

// NewSampleDataGenerator creates a new sample data generator with a random seed.
func NewSampleDataGenerator() *SampleDataGenerator {
	return &SampleDataGenerator{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewSampleDataGeneratorWithSeed creates a new generator with a fixed seed for reproducibility.
func NewSampleDataGeneratorWithSeed(seed int64) *SampleDataGenerator {
	return &SampleDataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// RandomPayload returns n random bytes.
func (g *SampleDataGenerator) RandomPayload(n int) []byte {
	b := make([]byte, n)
	g.rng.Read(b)
	return b
}

// SineS16 returns samples samples per channel of a sine tone as packed
// little-endian S16, the same value on every channel.
func (g *SampleDataGenerator) SineS16(rate, channels, samples int, freq float64) []byte {
	out := make([]byte, samples*channels*2)
	for i := 0; i < samples; i++ {
		v := int16(math.Sin(2*math.Pi*freq*float64(i)/float64(rate)) * 16000)
		for c := 0; c < channels; c++ {
			binary.LittleEndian.PutUint16(out[(i*channels+c)*2:], uint16(v))
		}
	}
	return out
}

// NoiseFLTP returns one plane per channel of random float samples in
// [-0.5, 0.5).
func (g *SampleDataGenerator) NoiseFLTP(channels, samples int) [][]byte {
	planes := make([][]byte, channels)
	for c := range planes {
		planes[c] = make([]byte, samples*4)
		for i := 0; i < samples; i++ {
			v := float32(g.rng.Float64() - 0.5)
			binary.LittleEndian.PutUint32(planes[c][i*4:], math.Float32bits(v))
		}
	}
	return planes
}

// AudioFrame builds a decoded frame of the given format filled with
// generated samples: random floats for float formats, a sine otherwise.
func (g *SampleDataGenerator) AudioFrame(rate int, layout media.ChannelLayout, format media.SampleFormat, samples int) *media.AudioFrame {
	f := media.NewAudioFrame()
	f.SampleRate = rate
	f.Layout = layout
	f.Format = format
	f.NbSamples = samples
	f.TimeBase = media.NewRational(1, rate)

	channels := layout.Channels()
	bps := format.BytesPerSample()
	switch {
	case format.IsPlanar():
		for c := 0; c < channels; c++ {
			plane := f.Plane(c, samples*bps)
			g.fill(plane, format.Packed(), rate)
		}
	default:
		g.fill(f.Plane(0, samples*channels*bps), format, rate)
	}
	return f
}

func (g *SampleDataGenerator) fill(b []byte, format media.SampleFormat, rate int) {
	switch format {
	case media.SampleFormatS16:
		for i := 0; i+2 <= len(b); i += 2 {
			v := int16(math.Sin(2*math.Pi*440*float64(i/2)/float64(rate)) * 12000)
			binary.LittleEndian.PutUint16(b[i:], uint16(v))
		}
	case media.SampleFormatFLT:
		for i := 0; i+4 <= len(b); i += 4 {
			binary.LittleEndian.PutUint32(b[i:], math.Float32bits(float32(g.rng.Float64()-0.5)))
		}
	default:
		g.rng.Read(b)
	}
}

// VideoFrameYUV420P builds a YUV420P picture whose rows are padded to the
// given luma stride (chroma stride is half of it). Visible samples hold
// their row number, padding bytes hold 0xEE.
func (g *SampleDataGenerator) VideoFrameYUV420P(width, height, stride int) *media.VideoFrame {
	f := media.NewVideoFrame()
	f.Width = width
	f.Height = height
	f.PixelFormat = media.PixelFormatYUV420P

	fillPlane := func(plane []byte, w, h, s int, base byte) {
		for y := 0; y < h; y++ {
			for x := 0; x < s; x++ {
				if x < w {
					plane[y*s+x] = base + byte(y)
				} else {
					plane[y*s+x] = 0xEE
				}
			}
		}
	}

	cw, ch, cs := (width+1)/2, (height+1)/2, stride/2
	fillPlane(f.Plane(0, stride*height, stride), width, height, stride, 0x10)
	fillPlane(f.Plane(1, cs*ch, cs), cw, ch, cs, 0x80)
	fillPlane(f.Plane(2, cs*ch, cs), cw, ch, cs, 0xA0)
	return f
}

// AudioStream returns stream info for an audio stream.
func AudioStream(index int, codecName string, rate int, layout media.ChannelLayout) media.StreamInfo {
	return media.StreamInfo{
		Index:     index,
		TimeBase:  media.NewRational(1, rate),
		StartTime: 0,
		Duration:  int64(rate) * 10,
		Params: media.CodecParameters{
			MediaType:    media.MediaTypeAudio,
			CodecName:    codecName,
			SampleRate:   rate,
			Layout:       layout,
			SampleFormat: media.SampleFormatFLTP,
			FrameSize:    AACFrameSamples,
		},
	}
}

// VideoStream returns stream info for a 90kHz video stream.
func VideoStream(index int, codecName string, width, height int) media.StreamInfo {
	return media.StreamInfo{
		Index:     index,
		TimeBase:  media.NewRational(1, TSClock),
		StartTime: 0,
		Duration:  TSClock * 10,
		Params: media.CodecParameters{
			MediaType:   media.MediaTypeVideo,
			CodecName:   codecName,
			Width:       width,
			Height:      height,
			PixelFormat: media.PixelFormatYUV420P,
		},
	}
}

// InterleavedPackets returns count packets per stream alternating between
// the given streams, each stream's timestamps advancing by its step.
func (g *SampleDataGenerator) InterleavedPackets(count int, streams []media.StreamInfo, steps []int64) []*media.Packet {
	var out []*media.Packet
	for i := 0; i < count; i++ {
		for j, s := range streams {
			p := media.NewPacket()
			p.StreamIndex = s.Index
			p.PTS = s.StartTime + int64(i)*steps[j]
			p.DTS = p.PTS
			p.Duration = steps[j]
			p.Pos = int64(i*len(streams)+j) * 188
			p.Keyframe = i%10 == 0
			p.Data = g.RandomPayload(16 + g.rng.Intn(64))
			out = append(out, p)
		}
	}
	return out
}
