package sink

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"

	"github.com/pion/rtp"

	"github.com/jmylchreest/avpump/internal/media"
)

// rtpHeaderSize is the size of an RTP header without CSRCs or extensions.
const rtpHeaderSize = 12

// RTPConfig configures an RTPSender.
type RTPConfig struct {
	// Addr is the UDP destination, host:port.
	Addr string
	// PayloadType is the dynamic RTP payload type announced for L16.
	PayloadType uint8
	// SSRC identifies the stream. Zero picks a random SSRC.
	SSRC uint32
	// MTU bounds the size of one RTP packet including its header.
	MTU    int
	Logger *slog.Logger
}

// DefaultRTPConfig returns the default sender configuration.
func DefaultRTPConfig() RTPConfig {
	return RTPConfig{
		PayloadType: 96,
		MTU:         1200,
		Logger:      slog.Default(),
	}
}

// RTPStats holds sender counters.
type RTPStats struct {
	Packets uint64
	Bytes   uint64
	Windows uint64
}

// RTPSender sends PCM16 windows as RTP L16 packets: big-endian samples,
// one RTP timestamp tick per sample. A window larger than the MTU is
// split on sample frame boundaries.
type RTPSender struct {
	conn   io.Writer
	closer io.Closer
	config RTPConfig
	logger *slog.Logger

	seq       rtp.Sequencer
	timestamp uint32
	started   bool

	payload []byte
	stats   RTPStats
	closed  bool
}

// DialRTPSender opens a UDP socket to config.Addr.
func DialRTPSender(ctx context.Context, config RTPConfig) (*RTPSender, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", config.Addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing rtp destination %s: %w", media.ErrOpen, config.Addr, err)
	}
	s := NewRTPSender(conn, config)
	s.closer = conn
	return s, nil
}

// NewRTPSender creates a sender writing one datagram per Write on conn.
func NewRTPSender(conn io.Writer, config RTPConfig) *RTPSender {
	defaults := DefaultRTPConfig()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.MTU <= rtpHeaderSize {
		config.MTU = defaults.MTU
	}
	if config.PayloadType == 0 {
		config.PayloadType = defaults.PayloadType
	}
	if config.SSRC == 0 {
		config.SSRC = rand.Uint32()
	}
	return &RTPSender{
		conn:      conn,
		config:    config,
		logger:    config.Logger.With(slog.String("component", "rtp"), slog.String("addr", config.Addr)),
		seq:       rtp.NewRandomSequencer(),
		timestamp: rand.Uint32(),
	}
}

// WritePCM16 sends one window. It matches resample.Callback.
func (s *RTPSender) WritePCM16(pcm []int16, sampleRate, channels, samplesPerChannel int) error {
	if s.closed {
		return fmt.Errorf("rtp sender: %w", net.ErrClosed)
	}
	if channels <= 0 {
		return fmt.Errorf("rtp sender: invalid channel count %d", channels)
	}
	n := samplesPerChannel * channels
	if n > len(pcm) {
		return fmt.Errorf("rtp sender: %d samples announced, %d provided", n, len(pcm))
	}

	framesPerPacket := (s.config.MTU - rtpHeaderSize) / (2 * channels)
	if framesPerPacket == 0 {
		return fmt.Errorf("rtp sender: mtu %d too small for %d channels", s.config.MTU, channels)
	}

	for first := 0; first < samplesPerChannel; first += framesPerPacket {
		frames := min(framesPerPacket, samplesPerChannel-first)
		chunk := pcm[first*channels : (first+frames)*channels]

		if cap(s.payload) < len(chunk)*2 {
			s.payload = make([]byte, len(chunk)*2)
		}
		payload := s.payload[:len(chunk)*2]
		for i, v := range chunk {
			binary.BigEndian.PutUint16(payload[i*2:], uint16(v))
		}

		pkt := rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         !s.started,
				PayloadType:    s.config.PayloadType,
				SequenceNumber: s.seq.NextSequenceNumber(),
				Timestamp:      s.timestamp,
				SSRC:           s.config.SSRC,
			},
			Payload: payload,
		}
		buf, err := pkt.Marshal()
		if err != nil {
			return fmt.Errorf("rtp sender: marshaling packet: %w", err)
		}
		if _, err := s.conn.Write(buf); err != nil {
			return fmt.Errorf("%w: sending rtp packet: %w", media.ErrWrite, err)
		}

		s.started = true
		s.timestamp += uint32(frames)
		s.stats.Packets++
		s.stats.Bytes += uint64(len(buf))
	}
	s.stats.Windows++
	return nil
}

// Stats returns a snapshot of the counters.
func (s *RTPSender) Stats() RTPStats {
	return s.stats
}

// Close closes the socket opened by DialRTPSender. It is safe to call more
// than once.
func (s *RTPSender) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Debug("rtp sender closed",
		slog.Uint64("packets", s.stats.Packets),
		slog.Uint64("bytes", s.stats.Bytes))
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
