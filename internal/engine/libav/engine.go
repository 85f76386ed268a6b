//go:build libav

package libav

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/asticode/go-astiav"

	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

// Config configures the libav engine.
type Config struct {
	Logger *slog.Logger
}

// Engine drives FFmpeg's libavformat, libavcodec and libswresample.
type Engine struct {
	logger *slog.Logger
}

var _ engine.Engine = (*Engine)(nil)

// New creates a libav engine.
func New(config Config) *Engine {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Engine{logger: config.Logger}
}

func init() {
	engine.Register(Name, func(opts engine.Options) (engine.Engine, error) {
		return New(Config{Logger: opts.Logger}), nil
	})
}

// Name returns "libav".
func (e *Engine) Name() string {
	return Name
}

// OpenInput opens any URL libavformat understands and probes its streams.
func (e *Engine) OpenInput(ctx context.Context, url string) (engine.Container, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.logger.Debug("opening input", slog.String("url", url))
	return openContainer(url, e.logger)
}

// NewAudioDecoder opens a decoder for an audio stream.
func (e *Engine) NewAudioDecoder(params media.CodecParameters) (engine.CodecSession[*media.AudioFrame], error) {
	s, err := openCodecSession(params)
	if err != nil {
		return nil, err
	}
	return &audioDecoder{codecSession: s}, nil
}

// NewVideoDecoder opens a decoder for a video stream.
func (e *Engine) NewVideoDecoder(params media.CodecParameters) (engine.CodecSession[*media.VideoFrame], error) {
	s, err := openCodecSession(params)
	if err != nil {
		return nil, err
	}
	return &videoDecoder{codecSession: s}, nil
}

// NewResampler returns a libswresample context.
func (e *Engine) NewResampler(in, out media.AudioFormat) (engine.Resampler, error) {
	return newResampler(in, out)
}

// CreateOutput allocates an output context with the format guessed from
// the path.
func (e *Engine) CreateOutput(path string) (engine.Muxer, error) {
	fc, err := astiav.AllocOutputFormatContext(nil, "", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", engine.ErrFormatNotFound, path, err)
	}
	if fc == nil {
		return nil, fmt.Errorf("%w: %s", engine.ErrFormatNotFound, path)
	}
	return &muxer{fc: fc, path: path, logger: e.logger}, nil
}
