package resample

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/engine/native"
	"github.com/jmylchreest/avpump/internal/media"
	"github.com/jmylchreest/avpump/internal/testutil"
)

var wideband = media.AudioFormat{
	SampleRate: testutil.WidebandSampleRate,
	Layout:     media.ChannelLayoutMono,
	Format:     media.SampleFormatS16,
}

func newNativeWriter(t *testing.T) *Writer {
	t.Helper()
	w := NewWriter(native.New(native.DefaultConfig()), Config{})
	w.SetDestFormat(wideband)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

type callbackRecord struct {
	calls    int
	samples  []int
	rates    []int
	channels []int
	total    int
}

func (r *callbackRecord) callback(pcm []int16, sampleRate, channels, samplesPerChannel int) error {
	r.calls++
	r.samples = append(r.samples, samplesPerChannel)
	r.rates = append(r.rates, sampleRate)
	r.channels = append(r.channels, channels)
	r.total += len(pcm)
	return nil
}

// TestWriterCDToWideband tests the 44.1kHz mono to 16kHz mono scenario:
// 50 frames of 1024 samples produce floor(51200/441) windows of 160
// samples and leave 44 samples buffered.
func TestWriterCDToWideband(t *testing.T) {
	w := newNativeWriter(t)
	rec := &callbackRecord{}
	w.SetCallback(rec.callback)

	gen := testutil.NewSampleDataGeneratorWithSeed(1)
	for i := 0; i < 50; i++ {
		frame := gen.AudioFrame(testutil.CDSampleRate, media.ChannelLayoutMono, media.SampleFormatS16, testutil.AACFrameSamples)
		require.NoError(t, w.ProcessAudioFrame(frame.View()))
		assert.Less(t, w.Stats().Leftover, testutil.CDSampleRate/100)
	}

	expected := 50 * testutil.AACFrameSamples / (testutil.CDSampleRate / 100)
	assert.Equal(t, 116, expected)
	assert.Equal(t, expected, rec.calls)
	for i, n := range rec.samples {
		assert.InDelta(t, 160, n, 2, "window %d", i)
		assert.Equal(t, testutil.WidebandSampleRate, rec.rates[i])
		assert.Equal(t, 1, rec.channels[i])
	}

	stats := w.Stats()
	assert.Equal(t, uint64(expected), stats.Windows)
	assert.Equal(t, 50*testutil.AACFrameSamples-expected*441, stats.Leftover)
	assert.Equal(t, uint64(rec.total), stats.OutputSamples)
	assert.Equal(t, uint64(50*testutil.AACFrameSamples), stats.InputSamples)
}

// TestWriterWindowCountProperty tests that the number of windows equals
// floor(consumed/window) for several frame sizes.
func TestWriterWindowCountProperty(t *testing.T) {
	gen := testutil.NewSampleDataGeneratorWithSeed(2)
	for _, size := range []int{1, 160, 441, 480, 1024, 2048, 4410} {
		w := newNativeWriter(t)
		total := 0
		for i := 0; i < 37; i++ {
			frame := gen.AudioFrame(testutil.CDSampleRate, media.ChannelLayoutMono, media.SampleFormatS16, size)
			require.NoError(t, w.ProcessAudioFrame(frame.View()))
			total += size

			stats := w.Stats()
			assert.Equal(t, uint64(total/441), stats.Windows, "frame size %d", size)
			assert.Equal(t, total%441, stats.Leftover, "frame size %d", size)
		}
	}
}

// TestWriterPlanarInput tests that planar float stereo input is
// interleaved and converted to mono S16.
func TestWriterPlanarInput(t *testing.T) {
	w := newNativeWriter(t)
	rec := &callbackRecord{}
	w.SetCallback(rec.callback)

	gen := testutil.NewSampleDataGeneratorWithSeed(3)
	for i := 0; i < 3; i++ {
		frame := gen.AudioFrame(48000, media.ChannelLayoutStereo, media.SampleFormatFLTP, 1024)
		require.NoError(t, w.ProcessAudioFrame(frame.View()))
	}

	assert.Equal(t, 3*1024/480, rec.calls)
	assert.Equal(t, 3*1024%480, w.Stats().Leftover)
	for _, n := range rec.samples {
		assert.InDelta(t, 160, n, 2)
	}
}

// TestWriterFileOutput tests that the converted byte stream is written to
// the output file.
func TestWriterFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pcm")
	w := newNativeWriter(t)
	require.NoError(t, w.Open(path))
	assert.Error(t, w.Open(path))

	gen := testutil.NewSampleDataGeneratorWithSeed(4)
	for i := 0; i < 10; i++ {
		frame := gen.AudioFrame(testutil.CDSampleRate, media.ChannelLayoutMono, media.SampleFormatS16, 1024)
		require.NoError(t, w.ProcessAudioFrame(frame.View()))
	}
	samples := w.Stats().OutputSamples
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(samples)*2, info.Size())
	assert.Positive(t, info.Size())
}

// TestWriterZeroFrames tests that a writer that never received a frame
// emits nothing.
func TestWriterZeroFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.pcm")
	w := newNativeWriter(t)
	rec := &callbackRecord{}
	w.SetCallback(rec.callback)
	require.NoError(t, w.Open(path))
	require.NoError(t, w.Close())

	assert.Zero(t, rec.calls)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

// TestWriterShortInputNoCallback tests that input below one window is
// buffered without output.
func TestWriterShortInputNoCallback(t *testing.T) {
	w := newNativeWriter(t)
	rec := &callbackRecord{}
	w.SetCallback(rec.callback)

	gen := testutil.NewSampleDataGeneratorWithSeed(5)
	frame := gen.AudioFrame(testutil.CDSampleRate, media.ChannelLayoutMono, media.SampleFormatS16, 440)
	require.NoError(t, w.ProcessAudioFrame(frame.View()))
	assert.Zero(t, rec.calls)
	assert.Equal(t, 440, w.Stats().Leftover)
}

// TestWriterDestinationUnset tests that every unset destination parameter
// fails with ErrResample and that the caller can fix the configuration.
func TestWriterDestinationUnset(t *testing.T) {
	gen := testutil.NewSampleDataGeneratorWithSeed(6)
	frame := gen.AudioFrame(testutil.CDSampleRate, media.ChannelLayoutMono, media.SampleFormatS16, 1024)

	tests := []struct {
		name  string
		apply func(w *Writer)
	}{
		{"rate", func(w *Writer) { w.SetDestSampleRate(0) }},
		{"layout", func(w *Writer) { w.SetDestChannelLayout(media.ChannelLayoutNone) }},
		{"format", func(w *Writer) { w.SetDestSampleFormat(media.SampleFormatNone) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newNativeWriter(t)
			tt.apply(w)
			err := w.ProcessAudioFrame(frame.View())
			assert.ErrorIs(t, err, media.ErrResample)

			w.SetDestFormat(wideband)
			assert.NoError(t, w.ProcessAudioFrame(frame.View()))
		})
	}
}

// TestWriterCallbackNeedsS16 tests that a callback cannot be combined
// with a non-S16 destination.
func TestWriterCallbackNeedsS16(t *testing.T) {
	w := newNativeWriter(t)
	w.SetDestSampleFormat(media.SampleFormatFLT)
	w.SetCallback(func([]int16, int, int, int) error { return nil })

	gen := testutil.NewSampleDataGeneratorWithSeed(7)
	frame := gen.AudioFrame(testutil.CDSampleRate, media.ChannelLayoutMono, media.SampleFormatS16, 1024)
	assert.ErrorIs(t, w.ProcessAudioFrame(frame.View()), media.ErrResample)

	w.SetCallback(nil)
	assert.NoError(t, w.ProcessAudioFrame(frame.View()))
}

// TestWriterNegativeCount tests that a negative conversion count is a
// resample error.
func TestWriterNegativeCount(t *testing.T) {
	rs := &testutil.FakeResampler{
		ConvertFunc: func([]byte, int, []byte, int) (int, error) { return -22, nil },
	}
	eng := &testutil.FakeEngine{
		ResamplerFunc: func(in, out media.AudioFormat) (engine.Resampler, error) { return rs, nil },
	}
	w := NewWriter(eng, Config{})
	w.SetDestFormat(wideband)

	gen := testutil.NewSampleDataGeneratorWithSeed(8)
	frame := gen.AudioFrame(testutil.CDSampleRate, media.ChannelLayoutMono, media.SampleFormatS16, 441)
	assert.ErrorIs(t, w.ProcessAudioFrame(frame.View()), media.ErrResample)
	require.NoError(t, w.Close())
	assert.Equal(t, 1, rs.Closed)
}

// TestWriterContextInitFailure tests that a resampler construction
// failure is a resample error and is retried on the next frame.
func TestWriterContextInitFailure(t *testing.T) {
	attempts := 0
	eng := &testutil.FakeEngine{
		ResamplerFunc: func(in, out media.AudioFormat) (engine.Resampler, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New("invalid channel layout")
			}
			return &testutil.FakeResampler{}, nil
		},
	}
	w := NewWriter(eng, Config{})
	w.SetDestFormat(wideband)

	gen := testutil.NewSampleDataGeneratorWithSeed(9)
	frame := gen.AudioFrame(testutil.CDSampleRate, media.ChannelLayoutMono, media.SampleFormatS16, 100)
	assert.ErrorIs(t, w.ProcessAudioFrame(frame.View()), media.ErrResample)
	assert.NoError(t, w.ProcessAudioFrame(frame.View()))
	assert.Equal(t, 2, attempts)
}

// TestWriterOutputBufferGrowsOnly tests that a growing resampler delay
// enlarges the output buffer and a shrinking one never shrinks it.
func TestWriterOutputBufferGrowsOnly(t *testing.T) {
	var capacities []int
	rs := &testutil.FakeResampler{
		ConvertFunc: func(out []byte, capacity int, in []byte, inSamples int) (int, error) {
			capacities = append(capacities, capacity)
			assert.GreaterOrEqual(t, len(out), capacity*2)
			return capacity, nil
		},
	}
	eng := &testutil.FakeEngine{
		ResamplerFunc: func(in, out media.AudioFormat) (engine.Resampler, error) { return rs, nil },
	}
	w := NewWriter(eng, Config{})
	w.SetDestFormat(wideband)

	gen := testutil.NewSampleDataGeneratorWithSeed(10)
	frame := gen.AudioFrame(testutil.CDSampleRate, media.ChannelLayoutMono, media.SampleFormatS16, 441)

	require.NoError(t, w.ProcessAudioFrame(frame.View()))
	first := w.Stats().OutputBufferSize
	assert.Equal(t, 160*2, first)

	rs.DelayValue = 441
	require.NoError(t, w.ProcessAudioFrame(frame.View()))
	grown := w.Stats().OutputBufferSize
	assert.Equal(t, 320*2, grown)

	rs.DelayValue = 0
	require.NoError(t, w.ProcessAudioFrame(frame.View()))
	assert.Equal(t, grown, w.Stats().OutputBufferSize)
	assert.Equal(t, []int{160, 320, 160}, capacities)
}

// TestWriterInputFormatChange tests that a frame with a different input
// format after initialization is rejected.
func TestWriterInputFormatChange(t *testing.T) {
	w := newNativeWriter(t)
	gen := testutil.NewSampleDataGeneratorWithSeed(11)

	require.NoError(t, w.ProcessAudioFrame(gen.AudioFrame(testutil.CDSampleRate, media.ChannelLayoutMono, media.SampleFormatS16, 100).View()))
	err := w.ProcessAudioFrame(gen.AudioFrame(48000, media.ChannelLayoutMono, media.SampleFormatS16, 100).View())
	assert.ErrorIs(t, err, media.ErrResample)
}

// TestWriterCallbackError tests that callback failures are returned and
// that the windows they were raised for are consumed.
func TestWriterCallbackError(t *testing.T) {
	w := newNativeWriter(t)
	sendErr := errors.New("connection refused")
	calls := 0
	w.SetCallback(func([]int16, int, int, int) error {
		calls++
		return sendErr
	})

	gen := testutil.NewSampleDataGeneratorWithSeed(12)
	frame := gen.AudioFrame(testutil.CDSampleRate, media.ChannelLayoutMono, media.SampleFormatS16, 1024)
	assert.ErrorIs(t, w.ProcessAudioFrame(frame.View()), sendErr)
	assert.Equal(t, 2, calls)
	assert.Equal(t, uint64(2), w.Stats().Windows)
	assert.Equal(t, 1024-2*441, w.Stats().Leftover)
}

// TestWriterCallbackErrorNoDuplicates tests that a window whose callback
// failed once is written to the file exactly once and never converted
// again.
func TestWriterCallbackErrorNoDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pcm")
	w := newNativeWriter(t)
	require.NoError(t, w.Open(path))

	sendErr := errors.New("connection reset")
	calls, delivered, failed := 0, 0, 0
	w.SetCallback(func(_ []int16, _, _, n int) error {
		calls++
		if calls == 3 {
			failed += n
			return sendErr
		}
		delivered += n
		return nil
	})

	gen := testutil.NewSampleDataGeneratorWithSeed(14)
	errs := 0
	for i := 0; i < 10; i++ {
		frame := gen.AudioFrame(testutil.CDSampleRate, media.ChannelLayoutMono, media.SampleFormatS16, 1024)
		if err := w.ProcessAudioFrame(frame.View()); err != nil {
			assert.ErrorIs(t, err, sendErr)
			errs++
		}
		assert.Less(t, w.Stats().Leftover, 441)
	}
	assert.Equal(t, 1, errs)

	stats := w.Stats()
	assert.Equal(t, uint64(10*1024/441), stats.Windows)
	assert.Equal(t, 23, calls)
	assert.Equal(t, stats.OutputSamples, uint64(delivered+failed))
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(stats.OutputSamples)*2, info.Size())
}

// TestWriterClosed tests that a closed writer rejects frames.
func TestWriterClosed(t *testing.T) {
	w := newNativeWriter(t)
	require.NoError(t, w.Close())

	gen := testutil.NewSampleDataGeneratorWithSeed(13)
	frame := gen.AudioFrame(testutil.CDSampleRate, media.ChannelLayoutMono, media.SampleFormatS16, 1024)
	assert.ErrorIs(t, w.ProcessAudioFrame(frame.View()), media.ErrResample)
}
