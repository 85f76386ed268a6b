// Package resample re-buffers decoded audio of arbitrary frame sizes into
// fixed 10ms windows and converts each window to a destination sample
// rate, channel layout and sample format.
package resample

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"

	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

// WindowsPerSecond is the number of processing windows per second of
// input audio. One window is input_rate/WindowsPerSecond samples.
const WindowsPerSecond = 100

// Callback receives one converted window of interleaved PCM16. pcm is only
// valid for the duration of the call.
type Callback func(pcm []int16, sampleRate, channels, samplesPerChannel int) error

// Config configures a Writer.
type Config struct {
	// BufferSize is the size of the output file buffer in bytes.
	BufferSize int
	Logger     *slog.Logger
}

// DefaultConfig returns the default writer configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize: 64 * 1024,
		Logger:     slog.Default(),
	}
}

// Stats holds writer counters.
type Stats struct {
	Frames        uint64
	InputSamples  uint64
	Windows       uint64
	OutputSamples uint64
	// Leftover is the number of buffered input samples per channel not
	// yet converted. It is always below one window between calls.
	Leftover int
	// OutputBufferSize is the current capacity of the conversion buffer
	// in bytes.
	OutputBufferSize int
}

// Writer accumulates audio frames, converts them window by window through
// an engine resampler and writes the result to a file and a callback.
// It is not safe for concurrent use.
type Writer struct {
	eng    engine.Engine
	config Config
	logger *slog.Logger

	dst      media.AudioFormat
	callback Callback

	file *os.File
	out  *bufio.Writer
	path string

	ctx    engine.Resampler
	src    media.AudioFormat
	window int

	// staging holds leftover samples at offset zero followed by the
	// samples of the frame being processed.
	staging  []byte
	leftover int
	outBuf   []byte
	pcm      []int16

	stats  Stats
	closed bool
}

// NewWriter creates a writer that builds its resampler on eng.
func NewWriter(eng engine.Engine, config Config) *Writer {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	return &Writer{
		eng:    eng,
		config: config,
		logger: config.Logger.With(slog.String("component", "resample")),
	}
}

// Open creates the output file that receives the converted byte stream.
func (w *Writer) Open(path string) error {
	if w.file != nil {
		return fmt.Errorf("resample output already open: %s", w.path)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: creating resample output %s: %w", media.ErrOpen, path, err)
	}
	w.file = f
	w.out = bufio.NewWriterSize(f, w.config.BufferSize)
	w.path = path
	return nil
}

// SetDestSampleRate sets the destination sample rate.
func (w *Writer) SetDestSampleRate(rate int) {
	w.dst.SampleRate = rate
}

// SetDestChannelLayout sets the destination channel layout.
func (w *Writer) SetDestChannelLayout(layout media.ChannelLayout) {
	w.dst.Layout = layout
}

// SetDestSampleFormat sets the destination sample format. Planar formats
// are converted to their packed equivalent.
func (w *Writer) SetDestSampleFormat(format media.SampleFormat) {
	w.dst.Format = format.Packed()
}

// SetDestFormat sets all three destination parameters.
func (w *Writer) SetDestFormat(format media.AudioFormat) {
	w.SetDestSampleRate(format.SampleRate)
	w.SetDestChannelLayout(format.Layout)
	w.SetDestSampleFormat(format.Format)
}

// DestFormat returns the destination format.
func (w *Writer) DestFormat() media.AudioFormat {
	return w.dst
}

// SetCallback registers the window callback. nil removes it.
func (w *Writer) SetCallback(cb Callback) {
	w.callback = cb
}

// ProcessAudioFrame appends frame to the staging buffer and converts every
// complete window. It implements decode.AudioFrameSink.
func (w *Writer) ProcessAudioFrame(frame media.AudioView) error {
	if w.closed {
		return fmt.Errorf("%w: writer closed", media.ErrResample)
	}
	if err := w.checkDest(); err != nil {
		return err
	}
	if err := w.ensureContext(frame); err != nil {
		return err
	}

	inFrame := w.src.BytesPerFrame()
	staging, err := frame.AppendInterleaved(w.staging[:w.leftover*inFrame])
	if err != nil {
		return fmt.Errorf("%w: staging frame: %w", media.ErrResample, err)
	}
	w.staging = staging
	w.leftover += frame.NbSamples()
	w.stats.Frames++
	w.stats.InputSamples += uint64(frame.NbSamples())

	offset := 0
	var emitErr error
	for w.leftover >= w.window {
		n, err := w.convertWindow(w.staging[offset : offset+w.window*inFrame])
		if err != nil {
			w.compact(offset)
			return err
		}
		offset += w.window * inFrame
		w.leftover -= w.window
		if err := w.emit(n); err != nil && emitErr == nil {
			emitErr = err
		}
	}
	w.compact(offset)
	return emitErr
}

func (w *Writer) checkDest() error {
	if !w.dst.Complete() {
		return fmt.Errorf("%w: destination format %s is incomplete", media.ErrResample, w.dst)
	}
	if w.callback != nil && w.dst.Format != media.SampleFormatS16 {
		return fmt.Errorf("%w: callback needs s16 output, destination is %s", media.ErrResample, w.dst.Format)
	}
	return nil
}

func (w *Writer) ensureContext(frame media.AudioView) error {
	src := frame.AudioFormat()
	src.Format = src.Format.Packed()

	if w.ctx != nil {
		if src != w.src {
			return fmt.Errorf("%w: input format changed from %s to %s", media.ErrResample, w.src, src)
		}
		return nil
	}

	if !src.Complete() {
		return fmt.Errorf("%w: input format %s is incomplete", media.ErrResample, src)
	}
	window := src.SampleRate / WindowsPerSecond
	if window <= 0 {
		return fmt.Errorf("%w: input rate %d is below one sample per window", media.ErrResample, src.SampleRate)
	}

	ctx, err := w.eng.NewResampler(src, w.dst)
	if err != nil {
		return fmt.Errorf("%w: creating resampler %s -> %s: %w", media.ErrResample, src, w.dst, err)
	}
	w.ctx = ctx
	w.src = src
	w.window = window

	w.logger.Debug("resampler initialized",
		slog.String("input", src.String()),
		slog.String("output", w.dst.String()),
		slog.Int("window", window))
	return nil
}

// convertWindow converts exactly one window of input into outBuf and
// returns the number of samples per channel produced.
func (w *Writer) convertWindow(in []byte) (int, error) {
	delay := w.ctx.Delay(int64(w.src.SampleRate))
	capacity := int(media.RescaleRnd(delay+int64(w.window), int64(w.dst.SampleRate), int64(w.src.SampleRate), media.RoundUp))
	if capacity <= 0 {
		return 0, fmt.Errorf("%w: invalid output capacity %d", media.ErrResample, capacity)
	}

	if need := capacity * w.dst.BytesPerFrame(); need > len(w.outBuf) {
		w.outBuf = make([]byte, need)
		w.logger.Debug("resample output buffer grown", slog.Int("bytes", need))
	}

	n, err := w.ctx.Convert(w.outBuf, capacity, in, w.window)
	if err != nil {
		return 0, fmt.Errorf("%w: converting window: %w", media.ErrResample, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: resampler returned %d samples", media.ErrResample, n)
	}
	if n > capacity {
		return 0, fmt.Errorf("%w: resampler returned %d samples for capacity %d", media.ErrResample, n, capacity)
	}

	w.stats.Windows++
	w.stats.OutputSamples += uint64(n)
	return n, nil
}

// emit writes n converted samples to the output file and the callback.
// The window is consumed whether or not emit fails.
func (w *Writer) emit(n int) error {
	if n == 0 {
		return nil
	}
	data := w.outBuf[:n*w.dst.BytesPerFrame()]
	if w.out != nil {
		if _, err := w.out.Write(data); err != nil {
			return fmt.Errorf("%w: writing %s: %w", media.ErrWrite, w.path, err)
		}
	}
	if w.callback != nil {
		pcm := w.int16s(data)
		if err := w.callback(pcm, w.dst.SampleRate, w.dst.Channels(), n); err != nil {
			return fmt.Errorf("resample callback: %w", err)
		}
	}
	return nil
}

// int16s decodes little-endian S16 bytes into the reusable pcm slice.
func (w *Writer) int16s(data []byte) []int16 {
	n := len(data) / 2
	if cap(w.pcm) < n {
		w.pcm = make([]int16, n)
	}
	w.pcm = w.pcm[:n]
	for i := range w.pcm {
		w.pcm[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return w.pcm
}

// compact moves the unconverted samples starting at offset to the start
// of the staging buffer.
func (w *Writer) compact(offset int) {
	remaining := copy(w.staging, w.staging[offset:])
	w.staging = w.staging[:remaining]
	w.stats.Leftover = w.leftover
	w.stats.OutputBufferSize = len(w.outBuf)
}

// Stats returns a snapshot of the counters.
func (w *Writer) Stats() Stats {
	s := w.stats
	s.Leftover = w.leftover
	s.OutputBufferSize = len(w.outBuf)
	return s
}

// Close flushes and closes the output file and releases the resampler.
// Samples short of one window are discarded. It is safe to call more than
// once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	if w.out != nil {
		if err := w.out.Flush(); err != nil {
			firstErr = fmt.Errorf("%w: flushing %s: %w", media.ErrWrite, w.path, err)
		}
		if err := w.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing %s: %w", w.path, err)
		}
		w.out = nil
		w.file = nil
	}
	if w.ctx != nil {
		if err := w.ctx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing resampler: %w", err)
		}
		w.ctx = nil
	}

	w.logger.Debug("resample writer closed",
		slog.Uint64("windows", w.stats.Windows),
		slog.Uint64("output_samples", w.stats.OutputSamples),
		slog.Int("discarded_samples", w.leftover))
	return firstErr
}
