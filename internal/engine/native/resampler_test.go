package native

import (
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

func monoS16(rate int) media.AudioFormat {
	return media.AudioFormat{SampleRate: rate, Layout: media.ChannelLayoutMono, Format: media.SampleFormatS16}
}

// TestResampler_WindowCounts tests that 10ms windows at 44.1kHz convert to
// about 160 samples each at 16kHz and that nearly all input is covered.
func TestResampler_WindowCounts(t *testing.T) {
	r, err := newResampler(monoS16(44100), monoS16(16000))
	require.NoError(t, err)
	defer r.Close()

	in := make([]byte, 441*2)
	out := make([]byte, 200*2)
	total := 0
	for i := 0; i < 100; i++ {
		capacity := int(media.RescaleRnd(r.Delay(44100)+441, 16000, 44100, media.RoundUp))
		n, err := r.Convert(out, capacity, in, 441)
		require.NoError(t, err)
		require.LessOrEqual(t, n, capacity)
		if i > 0 {
			assert.InDelta(t, 160, n, 2, "window %d", i)
		}
		total += n
	}
	assert.InDelta(t, 16000, total, 4)
	assert.LessOrEqual(t, r.Delay(44100), int64(12))
}

// TestResampler_Identity tests that equal rates and formats pass
// samples through unchanged.
func TestResampler_Identity(t *testing.T) {
	r, err := newResampler(monoS16(16000), monoS16(16000))
	require.NoError(t, err)

	in := s16Ramp(-50, 100)
	out := make([]byte, len(in))
	n, err := r.Convert(out, 100, in, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, in, out)
}

// TestResampler_Upsample tests that a constant signal survives
// interpolation at double the rate.
func TestResampler_Upsample(t *testing.T) {
	r, err := newResampler(monoS16(8000), monoS16(16000))
	require.NoError(t, err)
	defer r.Close()

	in := make([]byte, 100*2)
	for i := 0; i < 100; i++ {
		binary.LittleEndian.PutUint16(in[i*2:], 1000)
	}
	out := make([]byte, 400*2)
	n, err := r.Convert(out, 400, in, 100)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, 194)
	assert.Greater(t, n, 150)
	for i := 0; i < n; i++ {
		assert.InDelta(t, 1000, int16(binary.LittleEndian.Uint16(out[i*2:])), 2, "sample %d", i)
	}
}

// TestResampler_CapacityCarriesOverResampled tests that input held back by
// a small capacity shows up in Delay and is drained by later calls.
func TestResampler_CapacityCarriesOverResampled(t *testing.T) {
	r, err := newResampler(monoS16(44100), monoS16(16000))
	require.NoError(t, err)
	defer r.Close()

	out := make([]byte, 400*2)
	n, err := r.Convert(out, 50, make([]byte, 441*2), 441)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, 50)
	assert.Greater(t, n, 0)
	held := r.Delay(44100)
	assert.Greater(t, held, int64(441-50*44100/16000-1))

	n, err = r.Convert(out, 400, nil, 0)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
	assert.Less(t, r.Delay(44100), held)
}

// TestResampler_CapacityCarriesOver tests that output held back by a
// small capacity is produced by the next call.
func TestResampler_CapacityCarriesOver(t *testing.T) {
	r, err := newResampler(monoS16(16000), monoS16(16000))
	require.NoError(t, err)

	out := make([]byte, 200)
	n, err := r.Convert(out, 40, s16Ramp(0, 100), 100)
	require.NoError(t, err)
	assert.Equal(t, 40, n)
	assert.Greater(t, r.Delay(16000), int64(1))

	n, err = r.Convert(out, 100, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 60, n)
	assert.Equal(t, s16Ramp(40, 60), out[:120])
}

// TestResampler_StereoToMonoFloat tests channel downmix and sample
// format conversion.
func TestResampler_StereoToMonoFloat(t *testing.T) {
	in := media.AudioFormat{SampleRate: 48000, Layout: media.ChannelLayoutStereo, Format: media.SampleFormatS16}
	out := media.AudioFormat{SampleRate: 48000, Layout: media.ChannelLayoutMono, Format: media.SampleFormatFLT}
	r, err := newResampler(in, out)
	require.NoError(t, err)

	data := make([]byte, 4)
	binary.LittleEndian.PutUint16(data[0:], uint16(int16(16384)))
	binary.LittleEndian.PutUint16(data[2:], 0)
	buf := make([]byte, 4)
	n, err := r.Convert(buf, 1, data, 1)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.InDelta(t, 0.25, math.Float32frombits(binary.LittleEndian.Uint32(buf)), 1e-6)
}

// TestResampler_Errors tests format validation, short input and use after
// Close.
func TestResampler_Errors(t *testing.T) {
	_, err := newResampler(monoS16(44100), media.AudioFormat{SampleRate: 16000})
	assert.ErrorIs(t, err, media.ErrResample)

	r, err := newResampler(monoS16(44100), monoS16(16000))
	require.NoError(t, err)
	_, err = r.Convert(make([]byte, 10), 5, make([]byte, 3), 2)
	assert.ErrorIs(t, err, media.ErrResample)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	_, err = r.Convert(nil, 0, nil, 0)
	assert.ErrorIs(t, err, engine.ErrClosed)
}

func TestPCMDecoder(t *testing.T) {
	d := newPCMDecoder(media.CodecParameters{SampleRate: 8000, Layout: media.ChannelLayoutStereo}, media.SampleFormatS16)
	frame := media.NewAudioFrame()

	assert.ErrorIs(t, d.ReceiveFrame(frame), engine.ErrAgain)

	pkt := media.NewPacket()
	pkt.PTS = 77
	pkt.Data = []byte{1, 0, 2, 0, 3, 0, 4, 0, 9}
	require.NoError(t, d.SendPacket(pkt))
	assert.ErrorIs(t, d.SendPacket(pkt), engine.ErrAgain)

	require.NoError(t, d.ReceiveFrame(frame))
	assert.Equal(t, 2, frame.NbSamples)
	assert.Equal(t, int64(77), frame.PTS)
	assert.Equal(t, media.SampleFormatS16, frame.Format)
	assert.Equal(t, []byte{1, 0, 2, 0, 3, 0, 4, 0}, frame.Planes[0])
	assert.ErrorIs(t, d.ReceiveFrame(frame), engine.ErrAgain)

	require.NoError(t, d.SendPacket(pkt))
	d.Flush()
	assert.ErrorIs(t, d.ReceiveFrame(frame), engine.ErrAgain)

	require.NoError(t, d.SendPacket(media.NewPacket()))
	assert.ErrorIs(t, d.ReceiveFrame(frame), io.EOF)

	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.SendPacket(pkt), engine.ErrClosed)
}
