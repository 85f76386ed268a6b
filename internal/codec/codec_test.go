package codec

import (
	"testing"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/avpump/internal/media"
)

func TestParseVideo(t *testing.T) {
	tests := []struct {
		input    string
		expected Video
		ok       bool
	}{
		// Canonical names
		{"h264", VideoH264, true},
		{"h265", VideoH265, true},
		{"vp9", VideoVP9, true},
		{"av1", VideoAV1, true},
		// Aliases
		{"hevc", VideoH265, true},
		{"avc", VideoH264, true},
		{"avc1", VideoH264, true},
		{"libx264", VideoH264, true},
		{"mpeg2video", VideoMPEG2, true},
		// Case insensitive
		{"H264", VideoH264, true},
		{"HEVC", VideoH265, true},
		// Invalid
		{"", "", false},
		{"invalid", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseVideo(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseAudio(t *testing.T) {
	tests := []struct {
		input    string
		expected Audio
		ok       bool
	}{
		{"aac", AudioAAC, true},
		{"mp4a", AudioAAC, true},
		{"ac-3", AudioAC3, true},
		{"ec-3", AudioEAC3, true},
		{"libopus", AudioOpus, true},
		{"pcm", AudioPCMS16LE, true},
		{"PCM_F32LE", AudioPCMF32LE, true},
		{"h264", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseAudio(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeAndMatch(t *testing.T) {
	assert.Equal(t, "h265", Normalize("hevc"))
	assert.Equal(t, "aac", Normalize("libfdk_aac"))
	assert.Equal(t, "unknown-codec", Normalize("unknown-codec"))

	assert.True(t, Match("avc1", "h264"))
	assert.True(t, Match("ac3", "A52"))
	assert.False(t, Match("h264", "h265"))
	assert.True(t, Match("", ""))
	assert.False(t, Match("", "aac"))
}

func TestMediaTypeOf(t *testing.T) {
	assert.Equal(t, media.MediaTypeVideo, MediaTypeOf("hevc"))
	assert.Equal(t, media.MediaTypeAudio, MediaTypeOf("pcm_s16le"))
	assert.Equal(t, media.MediaTypeUnknown, MediaTypeOf("srt"))
}

func TestPCMSampleFormat(t *testing.T) {
	tests := []struct {
		name string
		want media.SampleFormat
		ok   bool
	}{
		{"pcm_u8", media.SampleFormatU8, true},
		{"pcm_s16le", media.SampleFormatS16, true},
		{"pcm_s32le", media.SampleFormatS32, true},
		{"pcm_f32le", media.SampleFormatFLT, true},
		{"pcm_f64le", media.SampleFormatDBL, true},
		{"aac", media.SampleFormatNone, false},
		{"h264", media.SampleFormatNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PCMSampleFormat(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPCMCodec(t *testing.T) {
	name, ok := PCMCodec(media.SampleFormatS16P)
	require.True(t, ok)
	assert.Equal(t, AudioPCMS16LE, name)

	name, ok = PCMCodec(media.SampleFormatFLT)
	require.True(t, ok)
	assert.Equal(t, AudioPCMF32LE, name)

	_, ok = PCMCodec(media.SampleFormatNone)
	assert.False(t, ok)
}

func TestDemuxableDetection(t *testing.T) {
	assert.True(t, IsDemuxable("h264"))
	assert.True(t, IsDemuxable("aac"))
	assert.True(t, IsDemuxable("opus"))
	assert.False(t, IsDemuxable("vp9"))
	assert.False(t, IsDemuxable("pcm_s16le"))
	assert.Equal(t, StreamTypeH265, MPEGTSStreamType("hevc"))
	assert.Equal(t, uint8(0), MPEGTSStreamType("flac"))
}

func TestMPEGTSRoundTrip(t *testing.T) {
	aac := &mpegts.CodecMPEG4Audio{Config: mpeg4audio.AudioSpecificConfig{
		Type:         mpeg4audio.ObjectTypeAACLC,
		SampleRate:   44100,
		ChannelCount: 2,
	}}

	params, ok := FromMPEGTS(aac)
	require.True(t, ok)
	assert.Equal(t, media.MediaTypeAudio, params.MediaType)
	assert.Equal(t, "aac", params.CodecName)
	assert.Equal(t, 44100, params.SampleRate)
	assert.Equal(t, media.ChannelLayoutStereo, params.Layout)
	require.NotEmpty(t, params.ExtraData)

	back, err := ToMPEGTS(params)
	require.NoError(t, err)
	out, ok := back.(*mpegts.CodecMPEG4Audio)
	require.True(t, ok)
	assert.Equal(t, 44100, out.Config.SampleRate)
	assert.Equal(t, 2, out.Config.ChannelCount)
}

func TestToMPEGTS_Unsupported(t *testing.T) {
	_, err := ToMPEGTS(media.CodecParameters{CodecName: "vp9"})
	assert.ErrorIs(t, err, media.ErrUnsupportedCodec)

	_, err = ToMPEGTS(media.CodecParameters{CodecName: "pcm_s16le"})
	assert.ErrorIs(t, err, media.ErrUnsupportedCodec)

	c, err := ToMPEGTS(media.CodecParameters{CodecName: "hevc"})
	require.NoError(t, err)
	assert.IsType(t, &mpegts.CodecH265{}, c)
}
