//go:build libav

package libav

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/asticode/go-astiav"

	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

type container struct {
	fc      *astiav.FormatContext
	pkt     *astiav.Packet
	streams []media.StreamInfo
	logger  *slog.Logger
	closed  bool
}

func openContainer(url string, logger *slog.Logger) (*container, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, fmt.Errorf("%w: format context", media.ErrAllocation)
	}
	if err := fc.OpenInput(url, nil, nil); err != nil {
		fc.Free()
		return nil, fmt.Errorf("%w: %s: %w", media.ErrOpen, url, err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("%w: probing %s: %w", media.ErrOpen, url, err)
	}

	c := &container{fc: fc, pkt: astiav.AllocPacket(), logger: logger}
	for _, s := range fc.Streams() {
		start := s.StartTime()
		if start == astiav.NoPtsValue {
			start = media.NoPTS
		}
		c.streams = append(c.streams, media.StreamInfo{
			Index:     s.Index(),
			TimeBase:  fromRational(s.TimeBase()),
			StartTime: start,
			Duration:  s.Duration(),
			Params:    codecParameters(s.CodecParameters()),
		})
	}
	return c, nil
}

func (c *container) Streams() []media.StreamInfo {
	return c.streams
}

// BestStream asks libavformat for the best stream of kind, which weighs
// codec support, disposition and resolution or channel count.
func (c *container) BestStream(kind media.MediaType) (int, error) {
	if c.closed {
		return media.NoStream, engine.ErrClosed
	}
	mt := toMediaType(kind)
	if mt == astiav.MediaTypeUnknown {
		return media.NoStream, fmt.Errorf("%w: no %s stream", engine.ErrStreamNotFound, kind)
	}
	s, _, err := c.fc.FindBestStream(mt, -1, -1)
	if err != nil {
		if errors.Is(err, astiav.ErrStreamNotFound) {
			return media.NoStream, fmt.Errorf("%w: no %s stream", engine.ErrStreamNotFound, kind)
		}
		return media.NoStream, fmt.Errorf("finding best %s stream: %w", kind, err)
	}
	return s.Index(), nil
}

// ReadPacket reads into the container's own packet and exposes it to pkt
// until the next read; the payload is a Go copy so it outlives Unref.
func (c *container) ReadPacket(pkt *media.Packet) error {
	if c.closed {
		return engine.ErrClosed
	}
	pkt.Reset()
	c.pkt.Unref()
	if err := c.fc.ReadFrame(c.pkt); err != nil {
		if errors.Is(err, astiav.ErrEof) {
			return io.EOF
		}
		return err
	}

	pkt.StreamIndex = c.pkt.StreamIndex()
	pkt.PTS = fromNoPTS(c.pkt.Pts())
	pkt.DTS = fromNoPTS(c.pkt.Dts())
	pkt.Duration = c.pkt.Duration()
	pkt.Pos = c.pkt.Pos()
	pkt.Keyframe = c.pkt.Flags().Has(astiav.PacketFlagKey)
	pkt.Data = c.pkt.Data()
	pkt.Handle = c.pkt
	return nil
}

func (c *container) SeekFile(streamIndex int, minTS, ts, maxTS int64) error {
	if c.closed {
		return engine.ErrClosed
	}
	// Without the backward flag libavformat lands on the first keyframe
	// at or after ts.
	flags := astiav.NewSeekFlags()
	if minTS < ts {
		flags = astiav.NewSeekFlags(astiav.SeekFlagBackward)
	}
	if err := c.fc.SeekFrame(streamIndex, ts, flags); err != nil {
		return fmt.Errorf("seeking stream %d to %d: %w", streamIndex, ts, err)
	}
	return nil
}

func (c *container) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.pkt.Free()
	c.fc.CloseInput()
	c.fc.Free()
	return nil
}

func fromNoPTS(ts int64) int64 {
	if ts == astiav.NoPtsValue {
		return media.NoPTS
	}
	return ts
}

func toNoPTS(ts int64) int64 {
	if ts == media.NoPTS {
		return astiav.NoPtsValue
	}
	return ts
}
