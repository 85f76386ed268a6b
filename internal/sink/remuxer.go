package sink

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

// ErrNotInitialized is returned when a sink is used before Initialize or
// Open.
var ErrNotInitialized = errors.New("sink not initialized")

// RemuxerStats holds re-muxer counters.
type RemuxerStats struct {
	Packets uint64
	Bytes   uint64
	// LastPTS is the last written timestamp in the output time base.
	LastPTS int64
}

// Remuxer copies the encoded packets of one source stream into a new
// container without decoding. It is not safe for concurrent use.
type Remuxer struct {
	eng    engine.Engine
	logger *slog.Logger

	path     string
	muxer    engine.Muxer
	src      media.StreamInfo
	outIndex int
	outBase  media.Rational

	stats  RemuxerStats
	closed bool
}

// NewRemuxer creates a re-muxer that builds its output on eng.
func NewRemuxer(eng engine.Engine, logger *slog.Logger) *Remuxer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Remuxer{
		eng:    eng,
		logger: logger.With(slog.String("component", "remuxer")),
		stats:  RemuxerStats{LastPTS: media.NoPTS},
	}
}

// Initialize creates the output container at path, guessing the format
// from the extension, adds one stream copying the codec parameters of src
// and writes the container header.
func (r *Remuxer) Initialize(path string, src media.StreamInfo) error {
	if r.closed {
		return fmt.Errorf("remuxer %s: %w", path, engine.ErrClosed)
	}
	if r.muxer != nil {
		return fmt.Errorf("remuxer already writing %s", r.path)
	}

	m, err := r.eng.CreateOutput(path)
	if err != nil {
		if errors.Is(err, engine.ErrFormatNotFound) {
			return fmt.Errorf("%w: guessing output format for %s: %w", media.ErrOpen, path, err)
		}
		return fmt.Errorf("%w: creating output %s: %w", media.ErrAllocation, path, err)
	}

	idx, err := m.NewStream(src)
	if err != nil {
		_ = m.Close()
		return fmt.Errorf("%w: adding %s stream to %s: %w", media.ErrAllocation, src.Params.CodecName, path, err)
	}
	if err := m.WriteHeader(); err != nil {
		_ = m.Close()
		return fmt.Errorf("%w: writing header of %s: %w", media.ErrWrite, path, err)
	}

	r.path = path
	r.muxer = m
	r.src = src
	r.outIndex = idx
	r.outBase = m.TimeBase(idx)

	r.logger.Debug("remux output opened",
		slog.String("path", path),
		slog.String("codec", src.Params.CodecName),
		slog.String("input_time_base", src.TimeBase.String()),
		slog.String("output_time_base", r.outBase.String()))
	return nil
}

// ProcessPacket rescales the packet timestamps into the output time base,
// writes the packet and releases it. The decode timestamp is set to the
// presentation timestamp.
func (r *Remuxer) ProcessPacket(pkt *media.Packet, stream media.StreamInfo) error {
	defer pkt.Release()

	if r.muxer == nil {
		return fmt.Errorf("remuxer: %w", ErrNotInitialized)
	}

	from := stream.TimeBase
	if !from.Valid() {
		from = r.src.TimeBase
	}

	out := pkt.Borrow()
	out.PTS = media.Rescale(pkt.PTS, from, r.outBase)
	out.DTS = out.PTS
	out.Duration = media.Rescale(pkt.Duration, from, r.outBase)
	out.Pos = -1
	out.StreamIndex = r.outIndex

	if err := r.muxer.WritePacket(out); err != nil {
		return fmt.Errorf("%w: writing packet to %s: %w", media.ErrWrite, r.path, err)
	}
	r.stats.Packets++
	r.stats.Bytes += uint64(out.Size())
	r.stats.LastPTS = out.PTS
	return nil
}

// Stats returns a snapshot of the counters.
func (r *Remuxer) Stats() RemuxerStats {
	return r.stats
}

// Close writes the container trailer and releases the output. It is safe
// to call more than once.
func (r *Remuxer) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.muxer == nil {
		return nil
	}

	var firstErr error
	if err := r.muxer.WriteTrailer(); err != nil {
		firstErr = fmt.Errorf("%w: writing trailer of %s: %w", media.ErrWrite, r.path, err)
	}
	if err := r.muxer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing %s: %w", r.path, err)
	}
	r.muxer = nil

	r.logger.Debug("remux output closed",
		slog.String("path", r.path),
		slog.Uint64("packets", r.stats.Packets),
		slog.Uint64("bytes", r.stats.Bytes))
	return firstErr
}
