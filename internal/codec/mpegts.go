package codec

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"

	"github.com/jmylchreest/avpump/internal/media"
)

func init() {
	// Mark the codecs the mediacommon MPEG-TS reader can deliver.
	for _, c := range []mpegts.Codec{
		&mpegts.CodecH264{},
		&mpegts.CodecH265{},
		&mpegts.CodecMPEG4Audio{},
		&mpegts.CodecAC3{},
		&mpegts.CodecEAC3{},
		&mpegts.CodecMPEG1Audio{},
		&mpegts.CodecOpus{},
	} {
		if isUnsupportedCodec(c) {
			continue
		}
		params, ok := FromMPEGTS(c)
		if !ok {
			continue
		}
		if v, ok := ParseVideo(params.CodecName); ok {
			videoRegistry[v].Demuxable = true
		}
		if a, ok := ParseAudio(params.CodecName); ok {
			audioRegistry[a].Demuxable = true
		}
	}
}

// isUnsupportedCodec checks if a codec is the CodecUnsupported sentinel type
func isUnsupportedCodec(c mpegts.Codec) bool {
	_, isUnsupported := c.(*mpegts.CodecUnsupported)
	return isUnsupported
}

// FromMPEGTS converts a mediacommon track codec into codec parameters.
// It returns false for codecs the native engine cannot carry.
func FromMPEGTS(c mpegts.Codec) (media.CodecParameters, bool) {
	switch c := c.(type) {
	case *mpegts.CodecH264:
		return media.CodecParameters{
			MediaType:   media.MediaTypeVideo,
			CodecName:   string(VideoH264),
			PixelFormat: media.PixelFormatYUV420P,
		}, true

	case *mpegts.CodecH265:
		return media.CodecParameters{
			MediaType:   media.MediaTypeVideo,
			CodecName:   string(VideoH265),
			PixelFormat: media.PixelFormatYUV420P,
		}, true

	case *mpegts.CodecMPEG4Audio:
		p := media.CodecParameters{
			MediaType:    media.MediaTypeAudio,
			CodecName:    string(AudioAAC),
			SampleRate:   c.Config.SampleRate,
			Layout:       media.DefaultChannelLayout(c.Config.ChannelCount),
			SampleFormat: media.SampleFormatFLTP,
			FrameSize:    1024,
		}
		if asc, err := c.Config.Marshal(); err == nil {
			p.ExtraData = asc
		}
		return p, true

	case *mpegts.CodecAC3:
		return media.CodecParameters{
			MediaType:    media.MediaTypeAudio,
			CodecName:    string(AudioAC3),
			SampleRate:   c.SampleRate,
			Layout:       media.DefaultChannelLayout(c.ChannelCount),
			SampleFormat: media.SampleFormatFLTP,
			FrameSize:    1536,
		}, true

	case *mpegts.CodecEAC3:
		return media.CodecParameters{
			MediaType:    media.MediaTypeAudio,
			CodecName:    string(AudioEAC3),
			SampleRate:   c.SampleRate,
			Layout:       media.DefaultChannelLayout(c.ChannelCount),
			SampleFormat: media.SampleFormatFLTP,
			FrameSize:    1536,
		}, true

	case *mpegts.CodecMPEG1Audio:
		return media.CodecParameters{
			MediaType:    media.MediaTypeAudio,
			CodecName:    string(AudioMP3),
			SampleFormat: media.SampleFormatFLTP,
			FrameSize:    1152,
		}, true

	case *mpegts.CodecOpus:
		return media.CodecParameters{
			MediaType:    media.MediaTypeAudio,
			CodecName:    string(AudioOpus),
			SampleRate:   48000,
			Layout:       media.DefaultChannelLayout(c.ChannelCount),
			SampleFormat: media.SampleFormatFLT,
			FrameSize:    960,
		}, true

	default:
		return media.CodecParameters{}, false
	}
}

// ToMPEGTS builds the mediacommon track codec for an output stream.
func ToMPEGTS(p media.CodecParameters) (mpegts.Codec, error) {
	if v, ok := ParseVideo(p.CodecName); ok {
		switch v {
		case VideoH264:
			return &mpegts.CodecH264{}, nil
		case VideoH265:
			return &mpegts.CodecH265{}, nil
		}
		return nil, fmt.Errorf("%w: %s in mpegts", media.ErrUnsupportedCodec, v)
	}

	a, ok := ParseAudio(p.CodecName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", media.ErrUnsupportedCodec, p.CodecName)
	}
	channels := p.Layout.Channels()
	switch a {
	case AudioAAC:
		var conf mpeg4audio.AudioSpecificConfig
		if len(p.ExtraData) > 0 {
			if err := conf.Unmarshal(p.ExtraData); err != nil {
				return nil, fmt.Errorf("parsing AAC audio specific config: %w", err)
			}
		} else {
			conf = mpeg4audio.AudioSpecificConfig{
				Type:         mpeg4audio.ObjectTypeAACLC,
				SampleRate:   p.SampleRate,
				ChannelCount: channels,
			}
		}
		return &mpegts.CodecMPEG4Audio{Config: conf}, nil
	case AudioAC3:
		return &mpegts.CodecAC3{SampleRate: p.SampleRate, ChannelCount: channels}, nil
	case AudioEAC3:
		return &mpegts.CodecEAC3{SampleRate: p.SampleRate, ChannelCount: channels}, nil
	case AudioMP3:
		return &mpegts.CodecMPEG1Audio{}, nil
	case AudioOpus:
		return &mpegts.CodecOpus{ChannelCount: channels}, nil
	}
	return nil, fmt.Errorf("%w: %s in mpegts", media.ErrUnsupportedCodec, a)
}
