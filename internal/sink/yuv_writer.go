package sink

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jmylchreest/avpump/internal/media"
)

// ErrPixelFormat is returned for pictures the raw video writers cannot
// lay out.
var ErrPixelFormat = errors.New("unsupported pixel format")

// writePlanar420 writes the visible part of a 4:2:0 planar picture: Y rows
// of width bytes, then U and V rows at half width and height. Rows are
// read at the frame stride, which may exceed the visible width.
func writePlanar420(w io.Writer, frame media.VideoView) error {
	if !frame.PixelFormat().Is420Planar() {
		return fmt.Errorf("%w: %s", ErrPixelFormat, frame.PixelFormat())
	}
	if frame.NumPlanes() < 3 {
		return fmt.Errorf("%w: %d planes", ErrPixelFormat, frame.NumPlanes())
	}

	width, height := frame.Width(), frame.Height()
	chromaW, chromaH := (width+1)/2, (height+1)/2
	planes := [3]struct{ w, h int }{{width, height}, {chromaW, chromaH}, {chromaW, chromaH}}

	for i, dim := range planes {
		data := frame.Plane(i)
		stride := frame.Linesize(i)
		if stride < dim.w || len(data) < (dim.h-1)*stride+dim.w {
			return fmt.Errorf("plane %d holds %d bytes at stride %d, need %dx%d", i, len(data), stride, dim.w, dim.h)
		}
		for y := 0; y < dim.h; y++ {
			row := data[y*stride : y*stride+dim.w]
			if _, err := w.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

// planar420Size returns the byte size of a tightly packed 4:2:0 picture.
func planar420Size(width, height int) int {
	return width*height + 2*((width+1)/2)*((height+1)/2)
}

// YUVWriter writes decoded pictures as concatenated Y, U and V planes with
// no header. Dimensions are implied externally.
type YUVWriter struct {
	out    *rawFile
	frames uint64
	closed bool
}

// OpenYUVWriter creates the output file.
func OpenYUVWriter(path string, bufferSize int) (*YUVWriter, error) {
	out, err := createRawFile(path, bufferSize)
	if err != nil {
		return nil, err
	}
	return &YUVWriter{out: out}, nil
}

// ProcessVideoFrame writes one picture. It implements
// decode.VideoFrameSink.
func (w *YUVWriter) ProcessVideoFrame(frame media.VideoView) error {
	if w.closed {
		return fmt.Errorf("yuv writer %s: %w", w.out.path, os.ErrClosed)
	}
	if err := writePlanar420(w.out, frame); err != nil {
		return fmt.Errorf("yuv writer: %w", err)
	}
	w.frames++
	return nil
}

// Frames returns the number of pictures written.
func (w *YUVWriter) Frames() uint64 {
	return w.frames
}

// Bytes returns the number of bytes written.
func (w *YUVWriter) Bytes() uint64 {
	return w.out.bytes
}

// Close flushes and closes the file. It is safe to call more than once.
func (w *YUVWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.out.Close()
}
