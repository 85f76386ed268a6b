package native

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/jmylchreest/avpump/internal/codec"
	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

// wavMuxer writes a single PCM stream into a WAV file with go-audio.
// Float input is written as 32-bit integer PCM.
type wavMuxer struct {
	path   string
	logger *slog.Logger

	params   media.CodecParameters
	hasAudio bool
	bitDepth int

	file *os.File
	enc  *wav.Encoder
	buf  *audio.IntBuffer

	headerWritten bool
	closed        bool
}

var _ engine.Muxer = (*wavMuxer)(nil)

func newWAVMuxer(path string, logger *slog.Logger) *wavMuxer {
	return &wavMuxer{path: path, logger: logger}
}

func (m *wavMuxer) NewStream(src media.StreamInfo) (int, error) {
	if m.hasAudio {
		return media.NoStream, fmt.Errorf("%w: wav holds a single stream", media.ErrUnsupportedCodec)
	}
	format, ok := codec.PCMSampleFormat(src.Params.CodecName)
	if !ok {
		return media.NoStream, fmt.Errorf("%w: %s in wav", media.ErrUnsupportedCodec, src.Params.CodecName)
	}
	if src.Params.SampleRate <= 0 || src.Params.Layout.Channels() == 0 {
		return media.NoStream, fmt.Errorf("%w: incomplete pcm parameters", media.ErrUnsupportedCodec)
	}

	m.params = src.Params.Copy()
	m.params.CodecTag = 0
	m.params.SampleFormat = format
	switch format {
	case media.SampleFormatU8:
		m.bitDepth = 8
	case media.SampleFormatS16:
		m.bitDepth = 16
	default:
		m.bitDepth = 32
	}
	m.hasAudio = true
	return 0, nil
}

func (m *wavMuxer) WriteHeader() error {
	if m.headerWritten {
		return nil
	}
	if !m.hasAudio {
		return fmt.Errorf("%w: no streams to write", media.ErrWrite)
	}
	f, err := os.Create(m.path)
	if err != nil {
		return fmt.Errorf("%w: %w", media.ErrOpen, err)
	}
	channels := m.params.Layout.Channels()
	m.file = f
	m.enc = wav.NewEncoder(f, m.params.SampleRate, m.bitDepth, channels, 1)
	m.buf = &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: m.params.SampleRate},
		SourceBitDepth: m.bitDepth,
	}
	m.headerWritten = true

	m.logger.Debug("wav muxer initialized",
		slog.String("path", m.path),
		slog.Int("sample_rate", m.params.SampleRate),
		slog.Int("channels", channels),
		slog.Int("bit_depth", m.bitDepth))
	return nil
}

// TimeBase is one sample.
func (m *wavMuxer) TimeBase(int) media.Rational {
	return media.NewRational(1, m.params.SampleRate)
}

func (m *wavMuxer) WritePacket(pkt *media.Packet) error {
	if !m.headerWritten {
		return fmt.Errorf("%w: header not written", media.ErrWrite)
	}
	if pkt.StreamIndex != 0 {
		return fmt.Errorf("%w: stream index %d", media.ErrWrite, pkt.StreamIndex)
	}
	if len(pkt.Data) == 0 {
		return nil
	}
	m.buf.Data = decodePCM(m.buf.Data[:0], pkt.Data, m.params.SampleFormat)
	if err := m.enc.Write(m.buf); err != nil {
		return fmt.Errorf("%w: %w", media.ErrWrite, err)
	}
	return nil
}

// WriteTrailer patches the RIFF sizes.
func (m *wavMuxer) WriteTrailer() error {
	if !m.headerWritten {
		return fmt.Errorf("%w: header not written", media.ErrWrite)
	}
	if m.enc == nil {
		return nil
	}
	err := m.enc.Close()
	m.enc = nil
	if err != nil {
		return fmt.Errorf("%w: %w", media.ErrWrite, err)
	}
	return nil
}

func (m *wavMuxer) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	if m.file == nil {
		return nil
	}
	var encErr error
	if m.enc != nil {
		encErr = m.enc.Close()
		m.enc = nil
	}
	if err := m.file.Close(); err != nil {
		return err
	}
	return encErr
}

// decodePCM unpacks little-endian packed PCM bytes into go-audio integer
// samples. Float formats are scaled to the 32-bit integer range.
func decodePCM(dst []int, data []byte, format media.SampleFormat) []int {
	switch format {
	case media.SampleFormatU8:
		for _, b := range data {
			dst = append(dst, int(b))
		}
	case media.SampleFormatS16:
		for i := 0; i+2 <= len(data); i += 2 {
			dst = append(dst, int(int16(binary.LittleEndian.Uint16(data[i:]))))
		}
	case media.SampleFormatS32:
		for i := 0; i+4 <= len(data); i += 4 {
			dst = append(dst, int(int32(binary.LittleEndian.Uint32(data[i:]))))
		}
	case media.SampleFormatFLT:
		for i := 0; i+4 <= len(data); i += 4 {
			v := math.Float32frombits(binary.LittleEndian.Uint32(data[i:]))
			dst = append(dst, floatToS32(float64(v)))
		}
	case media.SampleFormatDBL:
		for i := 0; i+8 <= len(data); i += 8 {
			v := math.Float64frombits(binary.LittleEndian.Uint64(data[i:]))
			dst = append(dst, floatToS32(v))
		}
	}
	return dst
}

func floatToS32(v float64) int {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return int(v * math.MaxInt32)
}
