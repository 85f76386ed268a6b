//go:build libav

package libav

import (
	"fmt"
	"log/slog"

	"github.com/asticode/go-astiav"

	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

// muxer writes packets through libavformat. Streams can only be copied
// from inputs opened by this engine since the full codec parameters live
// in the source stream.
type muxer struct {
	fc      *astiav.FormatContext
	ioc     *astiav.IOContext
	pkt     *astiav.Packet
	streams []*astiav.Stream
	path    string
	logger  *slog.Logger
	header  bool
	closed  bool
}

var _ engine.Muxer = (*muxer)(nil)

func (m *muxer) NewStream(src media.StreamInfo) (int, error) {
	if m.closed {
		return 0, engine.ErrClosed
	}
	params, ok := src.Params.Handle.(*astiav.CodecParameters)
	if !ok || params == nil {
		return 0, fmt.Errorf("%w: %s stream was not opened by the libav engine", media.ErrUnsupportedCodec, src.Params.CodecName)
	}
	s := m.fc.NewStream(nil)
	if s == nil {
		return 0, fmt.Errorf("%w: output stream", media.ErrAllocation)
	}
	if err := params.Copy(s.CodecParameters()); err != nil {
		return 0, fmt.Errorf("%w: copying codec parameters: %w", media.ErrAllocation, err)
	}
	s.CodecParameters().SetCodecTag(0)
	s.SetTimeBase(toRational(src.TimeBase))
	m.streams = append(m.streams, s)
	return s.Index(), nil
}

func (m *muxer) WriteHeader() error {
	if m.closed {
		return engine.ErrClosed
	}
	if !m.fc.OutputFormat().Flags().Has(astiav.IOFormatFlagNofile) {
		ioc, err := astiav.OpenIOContext(m.path, astiav.NewIOContextFlags(astiav.IOContextFlagWrite), nil, nil)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", media.ErrOpen, m.path, err)
		}
		m.ioc = ioc
		m.fc.SetPb(ioc)
	}
	if err := m.fc.WriteHeader(nil); err != nil {
		return fmt.Errorf("%w: header of %s: %w", media.ErrWrite, m.path, err)
	}
	m.header = true
	m.logger.Debug("output header written",
		slog.String("path", m.path),
		slog.Int("streams", len(m.streams)))
	return nil
}

func (m *muxer) TimeBase(streamIndex int) media.Rational {
	if streamIndex < 0 || streamIndex >= len(m.streams) {
		return media.Rational{}
	}
	return fromRational(m.streams[streamIndex].TimeBase())
}

func (m *muxer) WritePacket(pkt *media.Packet) error {
	if m.closed {
		return engine.ErrClosed
	}
	if m.pkt == nil {
		m.pkt = astiav.AllocPacket()
	}
	m.pkt.Unref()
	if err := m.pkt.FromData(pkt.Data); err != nil {
		return fmt.Errorf("%w: %w", media.ErrAllocation, err)
	}
	m.pkt.SetStreamIndex(pkt.StreamIndex)
	m.pkt.SetPts(toNoPTS(pkt.PTS))
	m.pkt.SetDts(toNoPTS(pkt.DTS))
	m.pkt.SetDuration(pkt.Duration)
	m.pkt.SetPos(-1)
	if pkt.Keyframe {
		m.pkt.SetFlags(m.pkt.Flags().Add(astiav.PacketFlagKey))
	}
	if err := m.fc.WriteInterleavedFrame(m.pkt); err != nil {
		return fmt.Errorf("%w: packet of stream %d: %w", media.ErrWrite, pkt.StreamIndex, err)
	}
	return nil
}

func (m *muxer) WriteTrailer() error {
	if m.closed {
		return engine.ErrClosed
	}
	if !m.header {
		return fmt.Errorf("%w: trailer before header", media.ErrWrite)
	}
	if err := m.fc.WriteTrailer(); err != nil {
		return fmt.Errorf("%w: trailer of %s: %w", media.ErrWrite, m.path, err)
	}
	return nil
}

func (m *muxer) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	var err error
	if m.ioc != nil {
		err = m.ioc.Close()
	}
	if m.pkt != nil {
		m.pkt.Free()
	}
	m.fc.Free()
	return err
}
