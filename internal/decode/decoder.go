// Package decode turns compressed packets into decoded frames through an
// engine codec session and forwards each frame, borrowed, to a frame sink.
package decode

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

// ErrNotReady is returned when a decoder is used outside the Ready state.
var ErrNotReady = errors.New("decoder not ready")

// State is the lifecycle state of a decoder.
type State int

// Decoder states. Transitions only move forward.
const (
	StateUninitialized State = iota
	StateReady
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats holds decoder counters.
type Stats struct {
	Packets      uint64
	EmptyPackets uint64
	Frames       uint64
	Again        uint64
	DecodeErrors uint64
	Flushes      uint64
}

// Decoder is the media-independent decode state machine shared by the
// audio and video decoders. F is the engine's reusable frame type.
type Decoder[F any] struct {
	kind   media.MediaType
	logger *slog.Logger

	open     func(params media.CodecParameters) (engine.CodecSession[F], error)
	newFrame func() F
	// deliver stamps stream metadata on a decoded frame and forwards it.
	deliver func(frame F, stream media.StreamInfo) error

	mu      sync.Mutex
	state   State
	session engine.CodecSession[F]
	frame   F
	codec   string
	stats   Stats
}

// Initialize opens the codec session for params. It fails with
// media.ErrUnsupportedCodec when the engine has no decoder for the codec
// and with media.ErrAllocation when the session cannot be built.
func (d *Decoder[F]) Initialize(params media.CodecParameters) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateReady:
		return fmt.Errorf("%s decoder already initialized", d.kind)
	case StateClosed:
		return fmt.Errorf("%s decoder: %w", d.kind, engine.ErrClosed)
	}

	session, err := d.open(params)
	if err != nil {
		if errors.Is(err, engine.ErrDecoderNotFound) || errors.Is(err, media.ErrUnsupportedCodec) {
			return fmt.Errorf("%w: %s decoder for %q: %w", media.ErrUnsupportedCodec, d.kind, params.CodecName, err)
		}
		return fmt.Errorf("%w: %s decoder for %q: %w", media.ErrAllocation, d.kind, params.CodecName, err)
	}

	d.session = session
	d.frame = d.newFrame()
	d.codec = params.CodecName
	d.state = StateReady

	d.logger.Debug("decoder initialized",
		slog.String("type", d.kind.String()),
		slog.String("codec", params.CodecName))
	return nil
}

// Decode sends one packet and receives at most one frame, which is passed
// to the sink before Decode returns. It reports whether a frame was
// produced. Zero-size packets are released without reaching the codec.
// A codec failure yields media.ErrDecode; the decoder stays usable.
func (d *Decoder[F]) Decode(pkt *media.Packet, stream media.StreamInfo) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateReady {
		return false, fmt.Errorf("%s decoder is %s: %w", d.kind, d.state, ErrNotReady)
	}

	if pkt.Size() == 0 {
		d.stats.EmptyPackets++
		pkt.Release()
		return false, nil
	}
	d.stats.Packets++

	if err := d.session.SendPacket(pkt); err != nil && !errors.Is(err, engine.ErrAgain) {
		return false, d.decodeError("sending packet", pkt, err)
	}

	if err := d.session.ReceiveFrame(d.frame); err != nil {
		if errors.Is(err, engine.ErrAgain) || errors.Is(err, io.EOF) {
			d.stats.Again++
			return false, nil
		}
		return false, d.decodeError("receiving frame", pkt, err)
	}

	d.stats.Frames++
	if err := d.deliver(d.frame, stream); err != nil {
		return true, fmt.Errorf("%s frame sink: %w", d.kind, err)
	}
	return true, nil
}

func (d *Decoder[F]) decodeError(op string, pkt *media.Packet, err error) error {
	d.stats.DecodeErrors++
	attrs := []any{
		slog.String("type", d.kind.String()),
		slog.String("codec", d.codec),
		slog.Int64("pts", pkt.PTS),
		slog.Int("size", pkt.Size()),
		slog.String("error", err.Error()),
	}
	if d.stats.DecodeErrors == 1 {
		d.logger.Warn("decode failed, dropping packet", attrs...)
	} else {
		d.logger.Debug("decode failed, dropping packet", attrs...)
	}
	return fmt.Errorf("%w: %s: %w", media.ErrDecode, op, err)
}

// ProcessPacket implements demux.PacketSink. Decode failures are counted
// and swallowed so the pump keeps going; sink errors are returned.
func (d *Decoder[F]) ProcessPacket(pkt *media.Packet, stream media.StreamInfo) error {
	_, err := d.Decode(pkt, stream)
	if err != nil && errors.Is(err, media.ErrDecode) {
		return nil
	}
	return err
}

// Flush discards buffered codec state. It is only valid while Ready.
func (d *Decoder[F]) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateReady {
		return fmt.Errorf("%s decoder is %s: %w", d.kind, d.state, ErrNotReady)
	}
	d.session.Flush()
	d.stats.Flushes++
	return nil
}

// Close releases the codec session. It is safe to call more than once.
func (d *Decoder[F]) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateClosed {
		return nil
	}
	d.state = StateClosed
	if d.session == nil {
		return nil
	}
	err := d.session.Close()
	d.session = nil
	d.logger.Debug("decoder closed",
		slog.String("type", d.kind.String()),
		slog.String("codec", d.codec),
		slog.Uint64("frames", d.stats.Frames),
		slog.Uint64("decode_errors", d.stats.DecodeErrors))
	if err != nil {
		return fmt.Errorf("closing %s decoder: %w", d.kind, err)
	}
	return nil
}

// State returns the current lifecycle state.
func (d *Decoder[F]) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Stats returns a snapshot of the counters.
func (d *Decoder[F]) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
