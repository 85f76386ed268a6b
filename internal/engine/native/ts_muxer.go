package native

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"

	"github.com/jmylchreest/avpump/internal/codec"
	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

// tsFirstPID is the PID of the first output track; later tracks follow.
const tsFirstPID = 0x0100

// tsMuxer writes MPEG-TS files with the mediacommon writer.
type tsMuxer struct {
	path   string
	logger *slog.Logger

	tracks []*mpegts.Track
	file   *os.File
	buf    *bufio.Writer
	writer *mpegts.Writer

	headerWritten bool
	closed        bool
}

var _ engine.Muxer = (*tsMuxer)(nil)

func newTSMuxer(path string, logger *slog.Logger) *tsMuxer {
	return &tsMuxer{path: path, logger: logger}
}

func (m *tsMuxer) NewStream(src media.StreamInfo) (int, error) {
	if m.headerWritten {
		return media.NoStream, fmt.Errorf("adding stream after header")
	}
	params := src.Params.Copy()
	params.CodecTag = 0
	c, err := codec.ToMPEGTS(params)
	if err != nil {
		return media.NoStream, err
	}
	m.tracks = append(m.tracks, &mpegts.Track{
		PID:   uint16(tsFirstPID + len(m.tracks)),
		Codec: c,
	})
	return len(m.tracks) - 1, nil
}

func (m *tsMuxer) WriteHeader() error {
	if m.headerWritten {
		return nil
	}
	if len(m.tracks) == 0 {
		return fmt.Errorf("%w: no streams to write", media.ErrWrite)
	}

	f, err := os.Create(m.path)
	if err != nil {
		return fmt.Errorf("%w: %w", media.ErrOpen, err)
	}
	m.file = f
	m.buf = bufio.NewWriter(f)
	m.writer = &mpegts.Writer{
		W:      m.buf,
		Tracks: m.tracks,
	}
	if err := m.writer.Initialize(); err != nil {
		return fmt.Errorf("%w: initializing mpegts writer: %w", media.ErrWrite, err)
	}
	m.headerWritten = true

	m.logger.Debug("mpegts muxer initialized",
		slog.String("path", m.path),
		slog.Int("tracks", len(m.tracks)))
	return nil
}

// TimeBase is always the 90kHz MPEG-TS clock.
func (m *tsMuxer) TimeBase(int) media.Rational {
	return tsTimeBase
}

func (m *tsMuxer) WritePacket(pkt *media.Packet) error {
	if !m.headerWritten {
		return fmt.Errorf("%w: header not written", media.ErrWrite)
	}
	if pkt.StreamIndex < 0 || pkt.StreamIndex >= len(m.tracks) {
		return fmt.Errorf("%w: stream index %d", media.ErrWrite, pkt.StreamIndex)
	}
	if pkt.PTS == media.NoPTS {
		return fmt.Errorf("%w: packet without pts", media.ErrWrite)
	}
	if len(pkt.Data) == 0 {
		return nil
	}

	track := m.tracks[pkt.StreamIndex]
	dts := pkt.DTS
	if dts == media.NoPTS {
		dts = pkt.PTS
	}

	var err error
	switch track.Codec.(type) {
	case *mpegts.CodecH264:
		err = m.writer.WriteH264(track, pkt.PTS, dts, accessUnit(pkt.Data))
	case *mpegts.CodecH265:
		err = m.writer.WriteH265(track, pkt.PTS, dts, accessUnit(pkt.Data))
	case *mpegts.CodecMPEG4Audio:
		err = m.writer.WriteMPEG4Audio(track, pkt.PTS, [][]byte{pkt.Data})
	case *mpegts.CodecAC3:
		err = m.writer.WriteAC3(track, pkt.PTS, pkt.Data)
	case *mpegts.CodecEAC3:
		err = m.writer.WriteEAC3(track, pkt.PTS, pkt.Data)
	case *mpegts.CodecMPEG1Audio:
		err = m.writer.WriteMPEG1Audio(track, pkt.PTS, [][]byte{pkt.Data})
	case *mpegts.CodecOpus:
		err = m.writer.WriteOpus(track, pkt.PTS, [][]byte{pkt.Data})
	default:
		err = fmt.Errorf("unsupported track codec %T", track.Codec)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", media.ErrWrite, err)
	}
	return nil
}

func (m *tsMuxer) WriteTrailer() error {
	if !m.headerWritten {
		return fmt.Errorf("%w: header not written", media.ErrWrite)
	}
	if err := m.buf.Flush(); err != nil {
		return fmt.Errorf("%w: %w", media.ErrWrite, err)
	}
	return nil
}

func (m *tsMuxer) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	if m.file == nil {
		return nil
	}
	flushErr := m.buf.Flush()
	if err := m.file.Close(); err != nil {
		return err
	}
	return flushErr
}

// accessUnit splits Annex B data into NAL units, treating anything else as
// a single NAL unit.
func accessUnit(data []byte) [][]byte {
	if len(data) >= 4 && data[0] == 0x00 && data[1] == 0x00 &&
		(data[2] == 0x01 || (data[2] == 0x00 && data[3] == 0x01)) {
		var au h264.AnnexB
		if err := au.Unmarshal(data); err == nil {
			return au
		}
	}
	return [][]byte{data}
}
