package sink

import (
	"bufio"
	"fmt"
	"os"

	"github.com/jmylchreest/avpump/internal/media"
)

// DefaultBufferSize is the write buffer used by the file sinks.
const DefaultBufferSize = 64 * 1024

// rawFile is a buffered output file shared by the header-less writers.
type rawFile struct {
	path  string
	file  *os.File
	w     *bufio.Writer
	bytes uint64
}

func createRawFile(path string, bufferSize int) (*rawFile, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: creating %s: %w", media.ErrOpen, path, err)
	}
	return &rawFile{path: path, file: f, w: bufio.NewWriterSize(f, bufferSize)}, nil
}

func (f *rawFile) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	f.bytes += uint64(n)
	if err != nil {
		return n, fmt.Errorf("%w: writing %s: %w", media.ErrWrite, f.path, err)
	}
	return n, nil
}

func (f *rawFile) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

func (f *rawFile) Close() error {
	flushErr := f.w.Flush()
	closeErr := f.file.Close()
	if flushErr != nil {
		return fmt.Errorf("%w: flushing %s: %w", media.ErrWrite, f.path, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing %s: %w", f.path, closeErr)
	}
	return nil
}
