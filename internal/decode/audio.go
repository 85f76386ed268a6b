package decode

import (
	"log/slog"
	"sync"

	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

// AudioFrameSink consumes decoded audio. The view is only valid for the
// duration of the call.
type AudioFrameSink interface {
	ProcessAudioFrame(frame media.AudioView) error
}

// AudioFrameSinkFunc adapts a function to AudioFrameSink.
type AudioFrameSinkFunc func(frame media.AudioView) error

// ProcessAudioFrame calls f.
func (f AudioFrameSinkFunc) ProcessAudioFrame(frame media.AudioView) error {
	return f(frame)
}

// AudioDecoder decodes audio packets and forwards frames to one sink.
type AudioDecoder struct {
	*Decoder[*media.AudioFrame]

	sinkMu sync.RWMutex
	sink   AudioFrameSink
}

// NewAudioDecoder creates an uninitialized audio decoder on eng.
func NewAudioDecoder(eng engine.Engine, logger *slog.Logger) *AudioDecoder {
	if logger == nil {
		logger = slog.Default()
	}
	a := &AudioDecoder{}
	a.Decoder = &Decoder[*media.AudioFrame]{
		kind:     media.MediaTypeAudio,
		logger:   logger,
		open:     eng.NewAudioDecoder,
		newFrame: media.NewAudioFrame,
		deliver:  a.deliver,
	}
	return a
}

// SetSink replaces the frame sink. nil discards frames.
func (a *AudioDecoder) SetSink(sink AudioFrameSink) {
	a.sinkMu.Lock()
	a.sink = sink
	a.sinkMu.Unlock()
}

func (a *AudioDecoder) deliver(frame *media.AudioFrame, stream media.StreamInfo) error {
	if !frame.TimeBase.Valid() {
		frame.TimeBase = stream.TimeBase
	}
	if frame.SampleRate == 0 {
		frame.SampleRate = stream.Params.SampleRate
	}
	if frame.Layout == media.ChannelLayoutNone {
		frame.Layout = stream.Params.Layout
	}

	a.sinkMu.RLock()
	sink := a.sink
	a.sinkMu.RUnlock()
	if sink == nil {
		return nil
	}
	return sink.ProcessAudioFrame(frame.View())
}
