// Package demux pulls packets from an input container one at a time and
// routes them by stream to a packet consumer.
package demux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

// ErrNotOpen is returned by operations that need an open container.
var ErrNotOpen = errors.New("demuxer not open")

// PacketSink consumes packets routed by the demuxer. The packet is
// borrowed for the duration of the call; the sink may Release it early.
type PacketSink interface {
	ProcessPacket(pkt *media.Packet, stream media.StreamInfo) error
}

// PacketSinkFunc adapts a function to PacketSink.
type PacketSinkFunc func(pkt *media.Packet, stream media.StreamInfo) error

// ProcessPacket calls f.
func (f PacketSinkFunc) ProcessPacket(pkt *media.Packet, stream media.StreamInfo) error {
	return f(pkt, stream)
}

// Options configures a Demuxer.
type Options struct {
	// RequireAudio makes Open fail when the input has no audio stream.
	RequireAudio bool
	// RequireVideo makes Open fail when the input has no video stream.
	RequireVideo bool
	Logger       *slog.Logger
}

// Stats holds pump counters.
type Stats struct {
	Packets      uint64
	AudioPackets uint64
	VideoPackets uint64
	Dropped      uint64
	Bytes        uint64
}

// Demuxer owns an input container and routes exactly one packet per
// PumpOne call. PumpOne and Seek are serialized; consumers may be swapped
// at any time and take effect on the next PumpOne.
type Demuxer struct {
	engine engine.Engine
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	container engine.Container
	url       string
	audio     media.StreamInfo
	video     media.StreamInfo
	pkt       *media.Packet
	stats     Stats
	closed    bool

	sinkMu    sync.RWMutex
	audioSink PacketSink
	videoSink PacketSink
}

// New creates a demuxer backed by eng.
func New(eng engine.Engine, opts Options) *Demuxer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Demuxer{
		engine: eng,
		opts:   opts,
		logger: opts.Logger,
		audio:  media.StreamInfo{Index: media.NoStream},
		video:  media.StreamInfo{Index: media.NoStream},
		pkt:    media.NewPacket(),
	}
}

// Open opens url and resolves the best audio and video streams. A missing
// stream is only an error when the matching Require option is set.
func (d *Demuxer) Open(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.container != nil {
		return fmt.Errorf("%w: demuxer already open on %s", media.ErrOpen, d.url)
	}

	c, err := d.engine.OpenInput(ctx, url)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %w", media.ErrOpen, url, err)
	}

	audio, err := resolveStream(c, media.MediaTypeAudio)
	if err != nil && (d.opts.RequireAudio || !errors.Is(err, engine.ErrStreamNotFound)) {
		c.Close()
		return fmt.Errorf("%w: %s: %w", media.ErrOpen, url, err)
	}
	video, err := resolveStream(c, media.MediaTypeVideo)
	if err != nil && (d.opts.RequireVideo || !errors.Is(err, engine.ErrStreamNotFound)) {
		c.Close()
		return fmt.Errorf("%w: %s: %w", media.ErrOpen, url, err)
	}

	d.container = c
	d.url = url
	d.audio = audio
	d.video = video
	d.closed = false

	d.logger.Info("input opened",
		slog.String("url", url),
		slog.String("engine", d.engine.Name()),
		slog.Int("streams", len(c.Streams())),
		slog.Int("audio_index", audio.Index),
		slog.Int("video_index", video.Index),
		slog.String("audio_codec", audio.Params.CodecName),
		slog.String("video_codec", video.Params.CodecName))
	return nil
}

// resolveStream finds the best stream of kind and checks its declared type.
func resolveStream(c engine.Container, kind media.MediaType) (media.StreamInfo, error) {
	none := media.StreamInfo{Index: media.NoStream}
	idx, err := c.BestStream(kind)
	if err != nil {
		return none, fmt.Errorf("finding %s stream: %w", kind, err)
	}
	for _, s := range c.Streams() {
		if s.Index != idx {
			continue
		}
		if s.Params.MediaType != kind {
			return none, fmt.Errorf("stream %d is %s, expected %s", idx, s.Params.MediaType, kind)
		}
		return s, nil
	}
	return none, fmt.Errorf("best %s stream %d not in container", kind, idx)
}

// PumpOne reads one packet and hands it to the consumer of its stream.
// Packets of other streams, or of a stream without consumer, are released
// and dropped. It returns io.EOF at the end of the input.
func (d *Demuxer) PumpOne() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.container == nil || d.closed {
		return ErrNotOpen
	}

	pkt := d.pkt
	pkt.Reset()
	if err := d.container.ReadPacket(pkt); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("reading packet: %w", err)
	}
	d.stats.Packets++
	d.stats.Bytes += uint64(pkt.Size())

	var sink PacketSink
	var stream media.StreamInfo
	d.sinkMu.RLock()
	switch {
	case d.audio.Index != media.NoStream && pkt.StreamIndex == d.audio.Index:
		sink, stream = d.audioSink, d.audio
	case d.video.Index != media.NoStream && pkt.StreamIndex == d.video.Index:
		sink, stream = d.videoSink, d.video
	}
	d.sinkMu.RUnlock()

	if sink == nil {
		d.stats.Dropped++
		pkt.Release()
		return nil
	}
	if stream.Params.MediaType == media.MediaTypeAudio {
		d.stats.AudioPackets++
	} else {
		d.stats.VideoPackets++
	}

	err := sink.ProcessPacket(pkt, stream)
	pkt.Release()
	if err != nil {
		return fmt.Errorf("processing packet of stream %d: %w", stream.Index, err)
	}
	return nil
}

// Seek repositions the input to a fraction of its duration, video first
// and then audio. Each stream's target is start + duration*position in its
// own time base; the container snaps forward to the first packet at or
// after it. Decoders are not flushed.
func (d *Demuxer) Seek(position float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.container == nil || d.closed {
		return ErrNotOpen
	}

	for _, s := range []media.StreamInfo{d.video, d.audio} {
		if s.Index == media.NoStream {
			continue
		}
		target := s.SeekTarget(position)
		if err := d.container.SeekFile(s.Index, target, target, math.MaxInt64); err != nil {
			return fmt.Errorf("seeking stream %d to %d: %w", s.Index, target, err)
		}
		d.logger.Debug("stream seeked",
			slog.Int("stream", s.Index),
			slog.String("type", s.Params.MediaType.String()),
			slog.Float64("position", position),
			slog.Int64("target", target))
	}
	return nil
}

// SetAudioConsumer replaces the audio packet consumer. nil drops audio.
func (d *Demuxer) SetAudioConsumer(sink PacketSink) {
	d.sinkMu.Lock()
	d.audioSink = sink
	d.sinkMu.Unlock()
}

// SetVideoConsumer replaces the video packet consumer. nil drops video.
func (d *Demuxer) SetVideoConsumer(sink PacketSink) {
	d.sinkMu.Lock()
	d.videoSink = sink
	d.sinkMu.Unlock()
}

// AudioIndex returns the selected audio stream index, or media.NoStream.
func (d *Demuxer) AudioIndex() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.audio.Index
}

// VideoIndex returns the selected video stream index, or media.NoStream.
func (d *Demuxer) VideoIndex() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.video.Index
}

// AudioStream returns the selected audio stream and whether there is one.
func (d *Demuxer) AudioStream() (media.StreamInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.audio, d.audio.Index != media.NoStream
}

// VideoStream returns the selected video stream and whether there is one.
func (d *Demuxer) VideoStream() (media.StreamInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.video, d.video.Index != media.NoStream
}

// Streams returns every stream of the open container.
func (d *Demuxer) Streams() []media.StreamInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.container == nil {
		return nil
	}
	return d.container.Streams()
}

// Stats returns a snapshot of the pump counters.
func (d *Demuxer) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Close releases the container. It is safe to call more than once.
func (d *Demuxer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || d.container == nil {
		d.closed = true
		return nil
	}
	d.closed = true
	d.pkt.Reset()
	err := d.container.Close()
	d.logger.Debug("input closed",
		slog.String("url", d.url),
		slog.Uint64("packets", d.stats.Packets),
		slog.Uint64("dropped", d.stats.Dropped))
	if err != nil {
		return fmt.Errorf("closing input: %w", err)
	}
	return nil
}

// IsEndOfStream reports whether err ends a pump loop normally.
func IsEndOfStream(err error) bool {
	return errors.Is(err, io.EOF)
}
