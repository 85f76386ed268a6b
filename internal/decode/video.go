package decode

import (
	"log/slog"
	"sync"

	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

// VideoFrameSink consumes decoded pictures. The view is only valid for the
// duration of the call.
type VideoFrameSink interface {
	ProcessVideoFrame(frame media.VideoView) error
}

// VideoFrameSinkFunc adapts a function to VideoFrameSink.
type VideoFrameSinkFunc func(frame media.VideoView) error

// ProcessVideoFrame calls f.
func (f VideoFrameSinkFunc) ProcessVideoFrame(frame media.VideoView) error {
	return f(frame)
}

// VideoDecoder decodes video packets and forwards pictures to one sink.
type VideoDecoder struct {
	*Decoder[*media.VideoFrame]

	sinkMu sync.RWMutex
	sink   VideoFrameSink
}

// NewVideoDecoder creates an uninitialized video decoder on eng.
func NewVideoDecoder(eng engine.Engine, logger *slog.Logger) *VideoDecoder {
	if logger == nil {
		logger = slog.Default()
	}
	v := &VideoDecoder{}
	v.Decoder = &Decoder[*media.VideoFrame]{
		kind:     media.MediaTypeVideo,
		logger:   logger,
		open:     eng.NewVideoDecoder,
		newFrame: media.NewVideoFrame,
		deliver:  v.deliver,
	}
	return v
}

// SetSink replaces the frame sink. nil discards frames.
func (v *VideoDecoder) SetSink(sink VideoFrameSink) {
	v.sinkMu.Lock()
	v.sink = sink
	v.sinkMu.Unlock()
}

func (v *VideoDecoder) deliver(frame *media.VideoFrame, stream media.StreamInfo) error {
	if !frame.TimeBase.Valid() {
		frame.TimeBase = stream.TimeBase
	}

	v.sinkMu.RLock()
	sink := v.sink
	v.sinkMu.RUnlock()
	if sink == nil {
		return nil
	}
	return sink.ProcessVideoFrame(frame.View())
}
