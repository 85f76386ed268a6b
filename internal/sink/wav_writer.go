package sink

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/jmylchreest/avpump/internal/media"
)

// WAVWriter writes resampled PCM16 windows into a playable WAV file. The
// sample rate and channel count are taken from the first window.
type WAVWriter struct {
	path string
	file *os.File
	enc  *wav.Encoder
	buf  *audio.IntBuffer

	sampleRate int
	channels   int
	samples    uint64
	closed     bool
}

// OpenWAVWriter creates the output file. The RIFF header is written with
// the first window.
func OpenWAVWriter(path string) (*WAVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: creating %s: %w", media.ErrOpen, path, err)
	}
	return &WAVWriter{path: path, file: f}, nil
}

// WritePCM16 appends one window. It matches resample.Callback.
func (w *WAVWriter) WritePCM16(pcm []int16, sampleRate, channels, samplesPerChannel int) error {
	if w.closed {
		return fmt.Errorf("wav writer %s: %w", w.path, os.ErrClosed)
	}
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("wav writer: invalid format %d Hz, %d channels", sampleRate, channels)
	}
	n := samplesPerChannel * channels
	if n > len(pcm) {
		return fmt.Errorf("wav writer: %d samples announced, %d provided", n, len(pcm))
	}

	if w.enc == nil {
		w.sampleRate, w.channels = sampleRate, channels
		w.enc = wav.NewEncoder(w.file, sampleRate, 16, channels, 1)
		w.buf = &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: 16,
		}
	} else if sampleRate != w.sampleRate || channels != w.channels {
		return fmt.Errorf("wav writer: format changed from %d Hz/%d ch to %d Hz/%d ch",
			w.sampleRate, w.channels, sampleRate, channels)
	}

	data := w.buf.Data[:0]
	for _, v := range pcm[:n] {
		data = append(data, int(v))
	}
	w.buf.Data = data
	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("%w: writing %s: %w", media.ErrWrite, w.path, err)
	}
	w.samples += uint64(samplesPerChannel)
	return nil
}

// Samples returns the number of samples per channel written.
func (w *WAVWriter) Samples() uint64 {
	return w.samples
}

// Close finalizes the RIFF header and closes the file. A writer that
// never received a window leaves an empty file. It is safe to call more
// than once.
func (w *WAVWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var encErr error
	if w.enc != nil {
		encErr = w.enc.Close()
		w.enc = nil
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", w.path, err)
	}
	if encErr != nil {
		return fmt.Errorf("%w: finalizing %s: %w", media.ErrWrite, w.path, encErr)
	}
	return nil
}
