// Package sink provides the consumers at the end of the pipeline: an
// encoded packet re-muxer, raw PCM, YUV, Y4M and WAV file writers, an RTP
// PCM sender, a decoded video frame queue and fan-out helpers that feed
// several consumers from one producer.
package sink

import (
	"errors"

	"github.com/jmylchreest/avpump/internal/decode"
	"github.com/jmylchreest/avpump/internal/demux"
	"github.com/jmylchreest/avpump/internal/media"
	"github.com/jmylchreest/avpump/internal/resample"
)

// AudioFanOut forwards every audio frame to each sink in order. All sinks
// see the frame even when an earlier one fails; the errors are joined.
type AudioFanOut []decode.AudioFrameSink

// ProcessAudioFrame implements decode.AudioFrameSink.
func (f AudioFanOut) ProcessAudioFrame(frame media.AudioView) error {
	var errs []error
	for _, s := range f {
		if err := s.ProcessAudioFrame(frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// VideoFanOut forwards every picture to each sink in order.
type VideoFanOut []decode.VideoFrameSink

// ProcessVideoFrame implements decode.VideoFrameSink.
func (f VideoFanOut) ProcessVideoFrame(frame media.VideoView) error {
	var errs []error
	for _, s := range f {
		if err := s.ProcessVideoFrame(frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PacketFanOut forwards every packet to each sink. Each sink gets a
// borrowed copy so that a sink releasing its packet does not clear the
// payload for the others; the original is left to the caller.
type PacketFanOut []demux.PacketSink

// ProcessPacket implements demux.PacketSink.
func (f PacketFanOut) ProcessPacket(pkt *media.Packet, stream media.StreamInfo) error {
	var errs []error
	for _, s := range f {
		if err := s.ProcessPacket(pkt.Borrow(), stream); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PCMFanOut returns a resample callback invoking each callback in order.
// nil callbacks are skipped.
func PCMFanOut(callbacks ...resample.Callback) resample.Callback {
	var cbs []resample.Callback
	for _, cb := range callbacks {
		if cb != nil {
			cbs = append(cbs, cb)
		}
	}
	return func(pcm []int16, sampleRate, channels, samplesPerChannel int) error {
		var errs []error
		for _, cb := range cbs {
			if err := cb(pcm, sampleRate, channels, samplesPerChannel); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
