package sink

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/avpump/internal/decode"
	"github.com/jmylchreest/avpump/internal/demux"
	"github.com/jmylchreest/avpump/internal/media"
	"github.com/jmylchreest/avpump/internal/testutil"
)

// TestAudioFanOut tests that every sink sees the frame and errors are
// joined.
func TestAudioFanOut(t *testing.T) {
	errFirst := errors.New("first failed")
	var calls []string
	fan := AudioFanOut{
		decode.AudioFrameSinkFunc(func(f media.AudioView) error {
			calls = append(calls, "a")
			return errFirst
		}),
		decode.AudioFrameSinkFunc(func(f media.AudioView) error {
			calls = append(calls, "b")
			assert.Equal(t, 1024, f.NbSamples())
			return nil
		}),
	}

	frame := testutil.NewSampleDataGeneratorWithSeed(41).AudioFrame(48000, media.ChannelLayoutStereo, media.SampleFormatFLTP, 1024)
	err := fan.ProcessAudioFrame(frame.View())
	assert.ErrorIs(t, err, errFirst)
	assert.Equal(t, []string{"a", "b"}, calls)

	assert.NoError(t, AudioFanOut{}.ProcessAudioFrame(frame.View()))
}

// TestVideoFanOut tests that a queue and a counter both receive pictures.
func TestVideoFanOut(t *testing.T) {
	q := NewVideoFrameQueue(4)
	count := 0
	fan := VideoFanOut{q, decode.VideoFrameSinkFunc(func(media.VideoView) error {
		count++
		return nil
	})}

	frame := testutil.NewSampleDataGeneratorWithSeed(42).VideoFrameYUV420P(4, 4, 4)
	require.NoError(t, fan.ProcessVideoFrame(frame.View()))
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 1, count)
}

// TestPacketFanOut tests that a sink releasing its packet does not clear
// the payload seen by the next sink or the original.
func TestPacketFanOut(t *testing.T) {
	var seen [][]byte
	record := demux.PacketSinkFunc(func(pkt *media.Packet, _ media.StreamInfo) error {
		seen = append(seen, append([]byte(nil), pkt.Data...))
		return nil
	})
	releasing := demux.PacketSinkFunc(func(pkt *media.Packet, _ media.StreamInfo) error {
		pkt.Release()
		return nil
	})

	releases := 0
	p := media.NewPacket()
	p.Data = []byte{1, 2, 3}
	p.SetReleaser(func() { releases++ })

	require.NoError(t, PacketFanOut{releasing, record}.ProcessPacket(p, media.StreamInfo{}))
	assert.Equal(t, [][]byte{{1, 2, 3}}, seen)
	assert.Equal(t, []byte{1, 2, 3}, p.Data)
	assert.Zero(t, releases)
}

// TestPCMFanOut tests callback composition.
func TestPCMFanOut(t *testing.T) {
	total := 0
	cb := PCMFanOut(nil, func(pcm []int16, rate, ch, n int) error {
		total += n
		return nil
	}, func(pcm []int16, rate, ch, n int) error {
		total += n
		return nil
	})
	require.NoError(t, cb(make([]int16, 160), 16000, 1, 160))
	assert.Equal(t, 320, total)
}

// TestVideoFrameQueue tests ownership, ordering and the drop-oldest bound.
func TestVideoFrameQueue(t *testing.T) {
	q := NewVideoFrameQueue(2)
	frame := testutil.NewSampleDataGeneratorWithSeed(43).VideoFrameYUV420P(4, 2, 4)

	for i := 0; i < 3; i++ {
		frame.PTS = int64(i)
		require.NoError(t, q.ProcessVideoFrame(frame.View()))
	}
	frame.Planes[0][0] = 0xFF

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, uint64(1), q.Dropped())
	assert.Equal(t, uint64(3), q.Pushed())

	first, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, int64(1), first.PTS)
	assert.Equal(t, byte(0x10), first.Planes[0][0], "queued frames are owned copies")

	second, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, int64(2), second.PTS)

	_, ok = q.Pop()
	assert.False(t, ok)
	assert.Zero(t, q.Len())

	assert.Equal(t, DefaultQueueSize, cap(NewVideoFrameQueue(0).frames))
}
