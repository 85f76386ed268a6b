// Package codec provides a unified codec registry for the video and audio
// codecs avpump understands. It maps engine-specific names and aliases to a
// canonical name and records what the native engine can do with each codec.
package codec

import (
	"strings"

	"github.com/jmylchreest/avpump/internal/media"
)

// Video represents a video codec.
type Video string

// Video codec constants.
const (
	VideoH264  Video = "h264"  // H.264/AVC
	VideoH265  Video = "h265"  // H.265/HEVC
	VideoVP8   Video = "vp8"   // VP8
	VideoVP9   Video = "vp9"   // VP9
	VideoAV1   Video = "av1"   // AV1
	VideoMPEG1 Video = "mpeg1" // MPEG-1 video
	VideoMPEG2 Video = "mpeg2" // MPEG-2 video
	VideoMPEG4 Video = "mpeg4" // MPEG-4 part 2
	VideoRaw   Video = "rawvideo"
)

// Audio represents an audio codec.
type Audio string

// Audio codec constants.
const (
	AudioAAC    Audio = "aac"  // AAC
	AudioMP3    Audio = "mp3"  // MPEG-1 layer 3
	AudioAC3    Audio = "ac3"  // Dolby Digital (AC-3)
	AudioEAC3   Audio = "eac3" // Dolby Digital Plus (E-AC-3)
	AudioOpus   Audio = "opus" // Opus
	AudioVorbis Audio = "vorbis"
	AudioFLAC   Audio = "flac"
	// PCM variants, named after the sample layout they carry.
	AudioPCMU8    Audio = "pcm_u8"
	AudioPCMS16LE Audio = "pcm_s16le"
	AudioPCMS32LE Audio = "pcm_s32le"
	AudioPCMF32LE Audio = "pcm_f32le"
	AudioPCMF64LE Audio = "pcm_f64le"
)

// String returns the string representation of the video codec.
func (v Video) String() string {
	return string(v)
}

// String returns the string representation of the audio codec.
func (a Audio) String() string {
	return string(a)
}

// videoInfo contains metadata about a video codec.
type videoInfo struct {
	Name    Video
	Aliases []string
	// Whether the native MPEG-TS demuxer can extract this codec.
	Demuxable bool
	// MPEG-TS stream type identifier (0 if not carried in MPEG-TS)
	MPEGTSStreamType uint8
}

// audioInfo contains metadata about an audio codec.
type audioInfo struct {
	Name    Audio
	Aliases []string
	// Whether the native MPEG-TS demuxer can extract this codec.
	Demuxable bool
	// MPEG-TS stream type identifier (0 if not carried in MPEG-TS)
	MPEGTSStreamType uint8
	// SampleFormat is set for raw PCM codecs the native engine decodes.
	SampleFormat media.SampleFormat
}

// MPEG-TS stream type constants.
const (
	StreamTypeH264 uint8 = 0x1B
	StreamTypeH265 uint8 = 0x24
	StreamTypeAAC  uint8 = 0x0F
	StreamTypeAC3  uint8 = 0x81
	StreamTypeEAC3 uint8 = 0x87
	StreamTypeMP3  uint8 = 0x03
)

// videoRegistry contains all video codec definitions.
var videoRegistry = map[Video]*videoInfo{
	VideoH264: {
		Name:             VideoH264,
		Aliases:          []string{"h264", "avc", "avc1", "h.264", "libx264"},
		MPEGTSStreamType: StreamTypeH264,
	},
	VideoH265: {
		Name:             VideoH265,
		Aliases:          []string{"h265", "hevc", "hev1", "hvc1", "h.265", "libx265"},
		MPEGTSStreamType: StreamTypeH265,
	},
	VideoVP8: {
		Name:    VideoVP8,
		Aliases: []string{"vp8", "libvpx"},
	},
	VideoVP9: {
		Name:    VideoVP9,
		Aliases: []string{"vp9", "vp09", "libvpx-vp9"},
	},
	VideoAV1: {
		Name:    VideoAV1,
		Aliases: []string{"av1", "av01", "libaom-av1", "libdav1d"},
	},
	VideoMPEG1: {
		Name:             VideoMPEG1,
		Aliases:          []string{"mpeg1", "mpeg1video"},
		MPEGTSStreamType: 0x01,
	},
	VideoMPEG2: {
		Name:             VideoMPEG2,
		Aliases:          []string{"mpeg2", "mpeg2video"},
		MPEGTSStreamType: 0x02,
	},
	VideoMPEG4: {
		Name:             VideoMPEG4,
		Aliases:          []string{"mpeg4"},
		MPEGTSStreamType: 0x10,
	},
	VideoRaw: {
		Name:    VideoRaw,
		Aliases: []string{"rawvideo", "raw"},
	},
}

// audioRegistry contains all audio codec definitions.
var audioRegistry = map[Audio]*audioInfo{
	AudioAAC: {
		Name:             AudioAAC,
		Aliases:          []string{"aac", "mp4a", "libfdk_aac", "aac_at"},
		MPEGTSStreamType: StreamTypeAAC,
	},
	AudioMP3: {
		Name:             AudioMP3,
		Aliases:          []string{"mp3", "mp3float", "libmp3lame", "mp2"},
		MPEGTSStreamType: StreamTypeMP3,
	},
	AudioAC3: {
		Name:             AudioAC3,
		Aliases:          []string{"ac3", "ac-3", "a52", "ac3_fixed"},
		MPEGTSStreamType: StreamTypeAC3,
	},
	AudioEAC3: {
		Name:             AudioEAC3,
		Aliases:          []string{"eac3", "ec-3", "ec3"},
		MPEGTSStreamType: StreamTypeEAC3,
	},
	AudioOpus: {
		Name:    AudioOpus,
		Aliases: []string{"opus", "libopus"},
	},
	AudioVorbis: {
		Name:    AudioVorbis,
		Aliases: []string{"vorbis", "libvorbis"},
	},
	AudioFLAC: {
		Name:    AudioFLAC,
		Aliases: []string{"flac", "libflac"},
	},
	AudioPCMU8: {
		Name:         AudioPCMU8,
		Aliases:      []string{"pcm_u8", "u8"},
		SampleFormat: media.SampleFormatU8,
	},
	AudioPCMS16LE: {
		Name:         AudioPCMS16LE,
		Aliases:      []string{"pcm_s16le", "pcm", "s16le"},
		SampleFormat: media.SampleFormatS16,
	},
	AudioPCMS32LE: {
		Name:         AudioPCMS32LE,
		Aliases:      []string{"pcm_s32le", "s32le"},
		SampleFormat: media.SampleFormatS32,
	},
	AudioPCMF32LE: {
		Name:         AudioPCMF32LE,
		Aliases:      []string{"pcm_f32le", "f32le"},
		SampleFormat: media.SampleFormatFLT,
	},
	AudioPCMF64LE: {
		Name:         AudioPCMF64LE,
		Aliases:      []string{"pcm_f64le", "f64le"},
		SampleFormat: media.SampleFormatDBL,
	},
}

// videoAliasIndex maps all aliases to their canonical codec.
var videoAliasIndex map[string]Video

// audioAliasIndex maps all aliases to their canonical codec.
var audioAliasIndex map[string]Audio

func init() {
	videoAliasIndex = make(map[string]Video)
	for codec, info := range videoRegistry {
		for _, alias := range info.Aliases {
			videoAliasIndex[strings.ToLower(alias)] = codec
		}
	}

	audioAliasIndex = make(map[string]Audio)
	for codec, info := range audioRegistry {
		for _, alias := range info.Aliases {
			audioAliasIndex[strings.ToLower(alias)] = codec
		}
	}
}

// ParseVideo parses a string (codec name, alias, or encoder) to a Video codec.
// Returns the canonical codec and whether the parse was successful.
func ParseVideo(s string) (Video, bool) {
	if s == "" {
		return "", false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	codec, ok := videoAliasIndex[s]
	return codec, ok
}

// ParseAudio parses a string (codec name, alias, or encoder) to an Audio codec.
// Returns the canonical codec and whether the parse was successful.
func ParseAudio(s string) (Audio, bool) {
	if s == "" {
		return "", false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	codec, ok := audioAliasIndex[s]
	return codec, ok
}

// Normalize converts any codec string (encoder name, alias) to its canonical form.
// Returns the input unchanged if not recognized.
func Normalize(name string) string {
	if name == "" {
		return name
	}
	lower := strings.ToLower(name)

	if codec, ok := videoAliasIndex[lower]; ok {
		return string(codec)
	}
	if codec, ok := audioAliasIndex[lower]; ok {
		return string(codec)
	}
	return name
}

// MediaTypeOf returns the media type of a codec name, or MediaTypeUnknown.
func MediaTypeOf(name string) media.MediaType {
	if _, ok := ParseVideo(name); ok {
		return media.MediaTypeVideo
	}
	if _, ok := ParseAudio(name); ok {
		return media.MediaTypeAudio
	}
	return media.MediaTypeUnknown
}

// Match checks if two codec strings refer to the same codec.
func Match(a, b string) bool {
	if a == "" || b == "" {
		return a == b
	}
	return strings.EqualFold(Normalize(a), Normalize(b))
}

// PCMSampleFormat returns the packed sample format carried by a raw PCM
// codec, and false for anything else.
func PCMSampleFormat(name string) (media.SampleFormat, bool) {
	a, ok := ParseAudio(name)
	if !ok {
		return media.SampleFormatNone, false
	}
	info := audioRegistry[a]
	if info.SampleFormat == media.SampleFormatNone {
		return media.SampleFormatNone, false
	}
	return info.SampleFormat, true
}

// PCMCodec returns the raw PCM codec carrying samples of the given format.
// Planar formats map to their packed counterpart.
func PCMCodec(f media.SampleFormat) (Audio, bool) {
	packed := f.Packed()
	for name, info := range audioRegistry {
		if info.SampleFormat != media.SampleFormatNone && info.SampleFormat == packed {
			return name, true
		}
	}
	return "", false
}

// IsDemuxable reports whether the native MPEG-TS demuxer can extract the codec.
func IsDemuxable(name string) bool {
	if v, ok := ParseVideo(name); ok {
		return videoRegistry[v].Demuxable
	}
	if a, ok := ParseAudio(name); ok {
		return audioRegistry[a].Demuxable
	}
	return false
}

// MPEGTSStreamType returns the MPEG-TS stream type for the codec, 0 if none.
func MPEGTSStreamType(name string) uint8 {
	if v, ok := ParseVideo(name); ok {
		return videoRegistry[v].MPEGTSStreamType
	}
	if a, ok := ParseAudio(name); ok {
		return audioRegistry[a].MPEGTSStreamType
	}
	return 0
}
