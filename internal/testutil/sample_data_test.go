package testutil

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/avpump/internal/media"
)

func TestNewSampleDataGenerator(t *testing.T) {
	gen := NewSampleDataGenerator()
	require.NotNil(t, gen)
	require.NotNil(t, gen.rng)
}

func TestNewSampleDataGeneratorWithSeed(t *testing.T) {
	gen1 := NewSampleDataGeneratorWithSeed(42)
	gen2 := NewSampleDataGeneratorWithSeed(42)

	// Same seed should produce same results
	assert.Equal(t, gen1.RandomPayload(32), gen2.RandomPayload(32))
}

func TestSineS16(t *testing.T) {
	gen := NewSampleDataGeneratorWithSeed(1)
	b := gen.SineS16(8000, 2, 100, 1000)
	require.Len(t, b, 400)

	assert.Equal(t, int16(0), int16(binary.LittleEndian.Uint16(b[0:])))
	for i := 0; i < 100; i++ {
		left := binary.LittleEndian.Uint16(b[i*4:])
		right := binary.LittleEndian.Uint16(b[i*4+2:])
		assert.Equal(t, left, right)
	}
}

func TestAudioFrame(t *testing.T) {
	gen := NewSampleDataGeneratorWithSeed(7)

	planar := gen.AudioFrame(48000, media.ChannelLayoutStereo, media.SampleFormatFLTP, 1024)
	require.Len(t, planar.Planes, 2)
	assert.Len(t, planar.Planes[0], 4096)
	assert.Equal(t, 8192, planar.View().DataSize())

	packed := gen.AudioFrame(44100, media.ChannelLayoutMono, media.SampleFormatS16, 441)
	require.Len(t, packed.Planes, 1)
	assert.Len(t, packed.Planes[0], 882)
}

func TestVideoFrameYUV420P(t *testing.T) {
	gen := NewSampleDataGeneratorWithSeed(7)
	f := gen.VideoFrameYUV420P(6, 4, 8)

	require.Len(t, f.Planes, 3)
	assert.Equal(t, []int{8, 4, 4}, f.Linesize)
	assert.Len(t, f.Planes[0], 32)
	assert.Len(t, f.Planes[1], 8)
	assert.Equal(t, byte(0x11), f.Planes[0][8])
	assert.Equal(t, byte(0xEE), f.Planes[0][6])
}

func TestInterleavedPackets(t *testing.T) {
	gen := NewSampleDataGeneratorWithSeed(3)
	streams := []media.StreamInfo{
		VideoStream(0, "h264", 320, 240),
		AudioStream(1, "aac", 48000, media.ChannelLayoutStereo),
	}
	pkts := gen.InterleavedPackets(5, streams, []int64{3000, 1024})

	require.Len(t, pkts, 10)
	assert.Equal(t, 0, pkts[0].StreamIndex)
	assert.Equal(t, 1, pkts[1].StreamIndex)
	assert.Equal(t, int64(4*1024), pkts[9].PTS)
	for _, p := range pkts {
		assert.NotEmpty(t, p.Data)
	}
}

func TestFakeContainerSeek(t *testing.T) {
	gen := NewSampleDataGeneratorWithSeed(3)
	streams := []media.StreamInfo{AudioStream(0, "aac", 48000, media.ChannelLayoutStereo)}
	c := &FakeContainer{StreamList: streams, Packets: gen.InterleavedPackets(10, streams, []int64{1024})}

	require.NoError(t, c.SeekFile(0, 4000, 4000, 1<<62))
	pkt := media.NewPacket()
	require.NoError(t, c.ReadPacket(pkt))
	assert.Equal(t, int64(4096), pkt.PTS)

	pkt.Release()
	assert.Equal(t, 1, c.Released())
	assert.Len(t, c.Seeks(), 1)
}
