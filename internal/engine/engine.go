// Package engine defines the contract of the external codec/container
// engine that avpump orchestrates. The pipeline never parses containers or
// decodes codecs itself; it drives an Engine implementation instead.
//
// Two implementations live in sub-packages: native (pure Go, MPEG-TS and
// WAV containers, PCM decoding, cubic resampling) and libav (FFmpeg via
// go-astiav).
package engine

import (
	"context"
	"errors"

	"github.com/jmylchreest/avpump/internal/media"
)

// Engine errors. Implementations return these (optionally wrapped) so the
// pipeline can classify failures without knowing the backend.
var (
	// ErrAgain means the codec session needs more input before it can
	// produce a frame. It is steady-state flow, not a failure.
	ErrAgain = errors.New("resource temporarily unavailable")
	// ErrStreamNotFound is returned by Container.BestStream.
	ErrStreamNotFound = errors.New("stream not found")
	// ErrDecoderNotFound is returned when no decoder exists for a codec.
	ErrDecoderNotFound = errors.New("decoder not found")
	// ErrFormatNotFound is returned when no container format matches a path.
	ErrFormatNotFound = errors.New("container format not found")
	// ErrClosed is returned by sessions used after Close.
	ErrClosed = errors.New("session closed")
)

// Engine creates container, codec, resampler and muxer sessions. Every
// session is independent; engines hold no per-session global state.
type Engine interface {
	// Name identifies the engine in logs.
	Name() string
	// OpenInput opens a container for reading. Stream parameters are
	// available once it returns.
	OpenInput(ctx context.Context, url string) (Container, error)
	// NewAudioDecoder returns an opened audio codec session.
	NewAudioDecoder(params media.CodecParameters) (CodecSession[*media.AudioFrame], error)
	// NewVideoDecoder returns an opened video codec session.
	NewVideoDecoder(params media.CodecParameters) (CodecSession[*media.VideoFrame], error)
	// NewResampler returns an initialized resampling context converting
	// packed in samples into packed out samples.
	NewResampler(in, out media.AudioFormat) (Resampler, error)
	// CreateOutput allocates an output container whose format is guessed
	// from the path's extension. Nothing is written until WriteHeader.
	CreateOutput(path string) (Muxer, error)
}

// Container is an open input.
type Container interface {
	// Streams returns every stream of the container.
	Streams() []media.StreamInfo
	// BestStream returns the index of the preferred stream of the given
	// kind, or ErrStreamNotFound.
	BestStream(kind media.MediaType) (int, error)
	// ReadPacket fills pkt with the next packet. It returns io.EOF once
	// the container is exhausted.
	ReadPacket(pkt *media.Packet) error
	// SeekFile repositions the read cursor of the container so the next
	// packet of streamIndex has a timestamp within [minTS, maxTS], as
	// close to ts as the format allows. Timestamps are in the stream's
	// time base.
	SeekFile(streamIndex int, minTS, ts, maxTS int64) error
	// Close releases the container. It is safe to call more than once.
	Close() error
}

// CodecSession is an opened decoder with one reusable output frame type F.
type CodecSession[F any] interface {
	// SendPacket submits compressed data. ErrAgain means the session must
	// be drained with ReceiveFrame first.
	SendPacket(pkt *media.Packet) error
	// ReceiveFrame overwrites dst with the next decoded frame. ErrAgain
	// means more input is needed, io.EOF means the session is drained.
	ReceiveFrame(dst F) error
	// Flush discards buffered decoder state.
	Flush()
	// Close releases the session. It is safe to call more than once.
	Close() error
}

// Resampler converts packed audio from one format to another, keeping
// state across calls.
type Resampler interface {
	// Convert converts inSamples samples per channel from in into out,
	// writing at most outCapacity samples per channel. It returns the
	// number of samples per channel written.
	Convert(out []byte, outCapacity int, in []byte, inSamples int) (int, error)
	// Delay returns the number of buffered input samples expressed in
	// 1/base units.
	Delay(base int64) int64
	// Close releases the context. It is safe to call more than once.
	Close() error
}

// Muxer writes packets into an output container.
type Muxer interface {
	// NewStream adds an output stream copying the codec parameters of
	// src with the codec tag cleared, and returns its index.
	NewStream(src media.StreamInfo) (int, error)
	// WriteHeader opens the output and writes the container header. The
	// container may adjust stream time bases here.
	WriteHeader() error
	// TimeBase returns the time base of an output stream.
	TimeBase(streamIndex int) media.Rational
	// WritePacket writes one packet whose timestamps are already in the
	// output stream's time base.
	WritePacket(pkt *media.Packet) error
	// WriteTrailer finalizes the container.
	WriteTrailer() error
	// Close releases the output. It is safe to call more than once.
	Close() error
}
