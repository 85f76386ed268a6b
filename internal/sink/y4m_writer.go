package sink

import (
	"fmt"
	"os"

	"github.com/jmylchreest/avpump/internal/media"
)

// Y4MWriter writes decoded pictures as a YUV4MPEG2 stream. The stream
// header is written with the first picture; every later picture must have
// the same dimensions.
type Y4MWriter struct {
	out    *rawFile
	fpsNum int
	fpsDen int

	width         int
	height        int
	headerWritten bool
	frames        uint64
	closed        bool
}

// OpenY4MWriter creates the output file. fpsNum/fpsDen is the frame rate
// recorded in the stream header.
func OpenY4MWriter(path string, fpsNum, fpsDen, bufferSize int) (*Y4MWriter, error) {
	if fpsNum <= 0 || fpsDen <= 0 {
		return nil, fmt.Errorf("invalid y4m frame rate %d:%d", fpsNum, fpsDen)
	}
	out, err := createRawFile(path, bufferSize)
	if err != nil {
		return nil, err
	}
	return &Y4MWriter{out: out, fpsNum: fpsNum, fpsDen: fpsDen}, nil
}

// ProcessVideoFrame writes one picture. It implements
// decode.VideoFrameSink.
func (w *Y4MWriter) ProcessVideoFrame(frame media.VideoView) error {
	if w.closed {
		return fmt.Errorf("y4m writer %s: %w", w.out.path, os.ErrClosed)
	}
	if !frame.PixelFormat().Is420Planar() {
		return fmt.Errorf("y4m writer: %w: %s", ErrPixelFormat, frame.PixelFormat())
	}

	if !w.headerWritten {
		// YUV4MPEG2 W<width> H<height> F<num>:<den> Ip A0:0 C<chroma>
		header := fmt.Sprintf("YUV4MPEG2 W%d H%d F%d:%d Ip A0:0 C420jpeg\n",
			frame.Width(), frame.Height(), w.fpsNum, w.fpsDen)
		if _, err := w.out.WriteString(header); err != nil {
			return err
		}
		w.width, w.height = frame.Width(), frame.Height()
		w.headerWritten = true
	} else if frame.Width() != w.width || frame.Height() != w.height {
		return fmt.Errorf("y4m writer: picture size changed from %dx%d to %dx%d",
			w.width, w.height, frame.Width(), frame.Height())
	}

	if _, err := w.out.WriteString("FRAME\n"); err != nil {
		return err
	}
	if err := writePlanar420(w.out, frame); err != nil {
		return fmt.Errorf("y4m writer: %w", err)
	}
	w.frames++
	return nil
}

// Frames returns the number of pictures written.
func (w *Y4MWriter) Frames() uint64 {
	return w.frames
}

// Close flushes and closes the file. It is safe to call more than once.
func (w *Y4MWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.out.Close()
}
