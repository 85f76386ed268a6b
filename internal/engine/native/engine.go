// Package native implements the engine contract in pure Go. It reads and
// writes MPEG-TS through mediacommon and WAV through go-audio, decodes raw
// PCM and resamples through audpbx. Compressed codecs can be
// demuxed and remuxed but not decoded.
package native

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmylchreest/avpump/internal/codec"
	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

// Name is the engine name used in configuration.
const Name = "native"

// containerKind identifies a container format the native engine handles.
type containerKind int

const (
	kindUnknown containerKind = iota
	kindMPEGTS
	kindWAV
)

func (k containerKind) String() string {
	switch k {
	case kindMPEGTS:
		return "mpegts"
	case kindWAV:
		return "wav"
	default:
		return "unknown"
	}
}

// Config configures the native engine.
type Config struct {
	// PacketSamples is the number of samples per channel the WAV demuxer
	// puts into one packet. Defaults to 1024.
	PacketSamples int
	Logger        *slog.Logger
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PacketSamples: 1024,
		Logger:        slog.Default(),
	}
}

// Engine is the pure Go engine.
type Engine struct {
	config Config
}

var _ engine.Engine = (*Engine)(nil)

// New creates a native engine.
func New(config Config) *Engine {
	if config.PacketSamples <= 0 {
		config.PacketSamples = 1024
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Engine{config: config}
}

func init() {
	engine.Register(Name, func(opts engine.Options) (engine.Engine, error) {
		return New(Config{PacketSamples: opts.PacketSamples, Logger: opts.Logger}), nil
	})
}

// Name returns "native".
func (e *Engine) Name() string {
	return Name
}

// OpenInput opens a local MPEG-TS or WAV file. The format is chosen from
// the extension and falls back to sniffing the first bytes.
func (e *Engine) OpenInput(ctx context.Context, url string) (engine.Container, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(url, "file://")

	kind := kindFromExtension(path)
	if kind == kindUnknown {
		var err error
		kind, err = sniffFile(path)
		if err != nil {
			return nil, err
		}
	}

	e.config.Logger.Debug("opening input",
		slog.String("url", url),
		slog.String("format", kind.String()))

	switch kind {
	case kindMPEGTS:
		return openTSDemuxer(ctx, path, e.config.Logger)
	case kindWAV:
		return openWAVDemuxer(path, e.config.PacketSamples, e.config.Logger)
	}
	return nil, fmt.Errorf("%w: %s", engine.ErrFormatNotFound, url)
}

// NewAudioDecoder returns a PCM decoder. Compressed audio is not supported.
func (e *Engine) NewAudioDecoder(params media.CodecParameters) (engine.CodecSession[*media.AudioFrame], error) {
	format, ok := codec.PCMSampleFormat(params.CodecName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrDecoderNotFound, params.CodecName)
	}
	return newPCMDecoder(params, format), nil
}

// NewVideoDecoder always fails: the native engine decodes no video codec.
func (e *Engine) NewVideoDecoder(params media.CodecParameters) (engine.CodecSession[*media.VideoFrame], error) {
	return nil, fmt.Errorf("%w: %s", engine.ErrDecoderNotFound, params.CodecName)
}

// NewResampler returns a cubic resampler backed by audpbx.
func (e *Engine) NewResampler(in, out media.AudioFormat) (engine.Resampler, error) {
	return newResampler(in, out)
}

// CreateOutput creates an MPEG-TS (.ts, .m2ts, .mts) or WAV (.wav) muxer.
func (e *Engine) CreateOutput(path string) (engine.Muxer, error) {
	switch kindFromExtension(path) {
	case kindMPEGTS:
		return newTSMuxer(path, e.config.Logger), nil
	case kindWAV:
		return newWAVMuxer(path, e.config.Logger), nil
	}
	return nil, fmt.Errorf("%w: %s", engine.ErrFormatNotFound, path)
}

func kindFromExtension(path string) containerKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".m2ts", ".mts":
		return kindMPEGTS
	case ".wav", ".wave":
		return kindWAV
	}
	return kindUnknown
}

// sniffFile looks at the first bytes of a file: "RIFF....WAVE" is WAV and
// a 0x47 sync byte every 188 bytes is MPEG-TS.
func sniffFile(path string) (containerKind, error) {
	f, err := os.Open(path)
	if err != nil {
		return kindUnknown, fmt.Errorf("%w: %w", media.ErrOpen, err)
	}
	defer f.Close()

	head := make([]byte, 188*3)
	n, err := io.ReadFull(bufio.NewReader(f), head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return kindUnknown, fmt.Errorf("%w: %w", media.ErrOpen, err)
	}
	return sniff(head[:n]), nil
}

func sniff(head []byte) containerKind {
	if len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")) {
		return kindWAV
	}
	if len(head) >= 188*2 && head[0] == 0x47 && head[188] == 0x47 {
		return kindMPEGTS
	}
	return kindUnknown
}
