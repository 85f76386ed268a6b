package sink

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/avpump/internal/media"
)

// datagramRecorder stores every written datagram.
type datagramRecorder struct {
	packets [][]byte
	err     error
}

func (r *datagramRecorder) Write(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.packets = append(r.packets, append([]byte(nil), p...))
	return len(p), nil
}

func (r *datagramRecorder) unmarshal(t *testing.T) []rtp.Packet {
	t.Helper()
	out := make([]rtp.Packet, len(r.packets))
	for i, b := range r.packets {
		require.NoError(t, out[i].Unmarshal(b))
	}
	return out
}

// TestRTPSenderL16 tests payload byte order and timestamp progression for
// windows that fit one packet.
func TestRTPSenderL16(t *testing.T) {
	rec := &datagramRecorder{}
	s := NewRTPSender(rec, RTPConfig{PayloadType: 97, SSRC: 0xCAFE})

	for w := 0; w < 3; w++ {
		pcm := make([]int16, 160)
		for i := range pcm {
			pcm[i] = int16(w*1000 + i - 80)
		}
		require.NoError(t, s.WritePCM16(pcm, 16000, 1, 160))
	}

	pkts := rec.unmarshal(t)
	require.Len(t, pkts, 3)
	for i, p := range pkts {
		assert.Equal(t, uint8(2), p.Version)
		assert.Equal(t, uint8(97), p.PayloadType)
		assert.Equal(t, uint32(0xCAFE), p.SSRC)
		assert.Equal(t, i == 0, p.Marker)
		require.Len(t, p.Payload, 320)
		assert.Equal(t, int16(i*1000-80), int16(binary.BigEndian.Uint16(p.Payload)))
		if i > 0 {
			assert.Equal(t, pkts[i-1].Timestamp+160, p.Timestamp)
			assert.Equal(t, pkts[i-1].SequenceNumber+1, p.SequenceNumber)
		}
	}
	assert.Equal(t, RTPStats{Packets: 3, Windows: 3, Bytes: 3 * (rtpHeaderSize + 320)}, s.Stats())
}

// TestRTPSenderSplitsLargeWindows tests that a window above the MTU is
// split on sample frame boundaries.
func TestRTPSenderSplitsLargeWindows(t *testing.T) {
	rec := &datagramRecorder{}
	s := NewRTPSender(rec, RTPConfig{MTU: 12 + 400})

	// 10ms of 48kHz stereo: 480 frames of 4 bytes, 100 frames per packet.
	pcm := make([]int16, 960)
	for i := range pcm {
		pcm[i] = int16(i)
	}
	require.NoError(t, s.WritePCM16(pcm, 48000, 2, 480))

	pkts := rec.unmarshal(t)
	require.Len(t, pkts, 5)
	var got []int16
	for i, p := range pkts {
		assert.LessOrEqual(t, len(p.Payload)+rtpHeaderSize, 412)
		assert.Zero(t, len(p.Payload)%4)
		if i > 0 {
			assert.Equal(t, pkts[i-1].Timestamp+uint32(len(pkts[i-1].Payload)/4), p.Timestamp)
		}
		for j := 0; j+2 <= len(p.Payload); j += 2 {
			got = append(got, int16(binary.BigEndian.Uint16(p.Payload[j:])))
		}
	}
	assert.Equal(t, pcm, got)
	assert.Len(t, pkts[4].Payload, 80*4)
}

// TestRTPSenderErrors tests argument validation and write failures.
func TestRTPSenderErrors(t *testing.T) {
	rec := &datagramRecorder{}
	s := NewRTPSender(rec, RTPConfig{})

	assert.Error(t, s.WritePCM16(make([]int16, 10), 16000, 0, 10))
	assert.Error(t, s.WritePCM16(make([]int16, 10), 16000, 1, 20))

	rec.err = errors.New("network unreachable")
	assert.ErrorIs(t, s.WritePCM16(make([]int16, 10), 16000, 1, 10), media.ErrWrite)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.WritePCM16(make([]int16, 10), 16000, 1, 10), net.ErrClosed)
}

// TestRTPSenderUDP tests delivery over a real UDP socket.
func TestRTPSenderUDP(t *testing.T) {
	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	s, err := DialRTPSender(context.Background(), RTPConfig{Addr: listener.LocalAddr().String(), SSRC: 7})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.WritePCM16([]int16{1, 2, 3, 4}, 16000, 1, 4))

	require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1500)
	n, _, err := listener.ReadFrom(buf)
	require.NoError(t, err)

	var p rtp.Packet
	require.NoError(t, p.Unmarshal(buf[:n]))
	assert.Equal(t, uint32(7), p.SSRC)
	assert.Equal(t, []byte{0, 1, 0, 2, 0, 3, 0, 4}, p.Payload)
}
