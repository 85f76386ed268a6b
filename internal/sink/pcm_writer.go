package sink

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/jmylchreest/avpump/internal/media"
)

// PCMWriter appends raw interleaved samples to a file with no header.
type PCMWriter struct {
	out     *rawFile
	scratch []byte
	frames  uint64
	closed  bool
}

// OpenPCMWriter creates the output file.
func OpenPCMWriter(path string, bufferSize int) (*PCMWriter, error) {
	out, err := createRawFile(path, bufferSize)
	if err != nil {
		return nil, err
	}
	return &PCMWriter{out: out}, nil
}

// Write appends p verbatim.
func (w *PCMWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("pcm writer %s: %w", w.out.path, os.ErrClosed)
	}
	return w.out.Write(p)
}

// WritePCM16 appends one window of interleaved PCM16 as little-endian
// bytes. It matches resample.Callback.
func (w *PCMWriter) WritePCM16(pcm []int16, sampleRate, channels, samplesPerChannel int) error {
	n := samplesPerChannel * channels
	if n > len(pcm) {
		return fmt.Errorf("pcm writer: %d samples announced, %d provided", n, len(pcm))
	}
	if cap(w.scratch) < n*2 {
		w.scratch = make([]byte, n*2)
	}
	buf := w.scratch[:n*2]
	for i, v := range pcm[:n] {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	w.frames++
	return nil
}

// ProcessAudioFrame appends the decoded frame in its packed sample format.
// It implements decode.AudioFrameSink.
func (w *PCMWriter) ProcessAudioFrame(frame media.AudioView) error {
	buf, err := frame.AppendInterleaved(w.scratch[:0])
	if err != nil {
		return fmt.Errorf("pcm writer: %w", err)
	}
	w.scratch = buf
	if _, err := w.Write(buf); err != nil {
		return err
	}
	w.frames++
	return nil
}

// Bytes returns the number of bytes written.
func (w *PCMWriter) Bytes() uint64 {
	return w.out.bytes
}

// Frames returns the number of frames or windows written.
func (w *PCMWriter) Frames() uint64 {
	return w.frames
}

// Close flushes and closes the file. It is safe to call more than once.
func (w *PCMWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.out.Close()
}
