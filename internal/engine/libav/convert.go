//go:build libav

package libav

import (
	"github.com/asticode/go-astiav"

	"github.com/jmylchreest/avpump/internal/media"
)

var sampleFormats = map[astiav.SampleFormat]media.SampleFormat{
	astiav.SampleFormatU8:   media.SampleFormatU8,
	astiav.SampleFormatS16:  media.SampleFormatS16,
	astiav.SampleFormatS32:  media.SampleFormatS32,
	astiav.SampleFormatFlt:  media.SampleFormatFLT,
	astiav.SampleFormatDbl:  media.SampleFormatDBL,
	astiav.SampleFormatU8P:  media.SampleFormatU8P,
	astiav.SampleFormatS16P: media.SampleFormatS16P,
	astiav.SampleFormatS32P: media.SampleFormatS32P,
	astiav.SampleFormatFltp: media.SampleFormatFLTP,
	astiav.SampleFormatDblp: media.SampleFormatDBLP,
}

var pixelFormats = map[astiav.PixelFormat]media.PixelFormat{
	astiav.PixelFormatYuv420P:  media.PixelFormatYUV420P,
	astiav.PixelFormatYuvj420P: media.PixelFormatYUVJ420P,
	astiav.PixelFormatYuv422P:  media.PixelFormatYUV422P,
	astiav.PixelFormatYuv444P:  media.PixelFormatYUV444P,
	astiav.PixelFormatNv12:     media.PixelFormatNV12,
	astiav.PixelFormatRgb24:    media.PixelFormatRGB24,
}

func fromSampleFormat(f astiav.SampleFormat) media.SampleFormat {
	if m, ok := sampleFormats[f]; ok {
		return m
	}
	return media.SampleFormatNone
}

func toSampleFormat(f media.SampleFormat) (astiav.SampleFormat, bool) {
	for a, m := range sampleFormats {
		if m == f {
			return a, true
		}
	}
	return astiav.SampleFormatNone, false
}

func fromPixelFormat(p astiav.PixelFormat) media.PixelFormat {
	if m, ok := pixelFormats[p]; ok {
		return m
	}
	if p == astiav.PixelFormatNone {
		return media.PixelFormatNone
	}
	return media.PixelFormatOther
}

// fromChannelLayout keeps only the channel count; the mask follows the
// conventional order for that count.
func fromChannelLayout(l astiav.ChannelLayout) media.ChannelLayout {
	return media.DefaultChannelLayout(l.Channels())
}

func toChannelLayout(l media.ChannelLayout) (astiav.ChannelLayout, bool) {
	switch l.Channels() {
	case 1:
		return astiav.ChannelLayoutMono, true
	case 2:
		return astiav.ChannelLayoutStereo, true
	case 3:
		return astiav.ChannelLayout2Point1, true
	case 4:
		return astiav.ChannelLayoutQuad, true
	case 5:
		return astiav.ChannelLayout5Point0, true
	case 6:
		return astiav.ChannelLayout5Point1, true
	}
	return astiav.ChannelLayout{}, false
}

func fromMediaType(t astiav.MediaType) media.MediaType {
	switch t {
	case astiav.MediaTypeAudio:
		return media.MediaTypeAudio
	case astiav.MediaTypeVideo:
		return media.MediaTypeVideo
	case astiav.MediaTypeSubtitle:
		return media.MediaTypeSubtitle
	case astiav.MediaTypeData:
		return media.MediaTypeData
	}
	return media.MediaTypeUnknown
}

func toMediaType(t media.MediaType) astiav.MediaType {
	switch t {
	case media.MediaTypeAudio:
		return astiav.MediaTypeAudio
	case media.MediaTypeVideo:
		return astiav.MediaTypeVideo
	}
	return astiav.MediaTypeUnknown
}

func fromRational(r astiav.Rational) media.Rational {
	return media.NewRational(r.Num(), r.Den())
}

func toRational(r media.Rational) astiav.Rational {
	return astiav.NewRational(r.Num, r.Den)
}

// codecParameters converts the parameters of a libav stream. The source
// parameters travel in Handle so decoders and muxers can copy them whole.
func codecParameters(p *astiav.CodecParameters) media.CodecParameters {
	return media.CodecParameters{
		MediaType:    fromMediaType(p.MediaType()),
		CodecName:    p.CodecID().Name(),
		CodecTag:     uint32(p.CodecTag()),
		BitRate:      p.BitRate(),
		SampleRate:   p.SampleRate(),
		Layout:       fromChannelLayout(p.ChannelLayout()),
		SampleFormat: fromSampleFormat(p.SampleFormat()),
		FrameSize:    p.FrameSize(),
		Width:        p.Width(),
		Height:       p.Height(),
		PixelFormat:  fromPixelFormat(p.PixelFormat()),
		ExtraData:    append([]byte(nil), p.ExtraData()...),
		Handle:       p,
	}
}
