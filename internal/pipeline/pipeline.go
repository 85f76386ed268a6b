// Package pipeline wires a demuxer, the audio and video decoders, the
// resample writer and the configured sinks into a single pump loop.
//
// Everything runs on the goroutine that calls Run: one packet is read per
// cycle and pushed synchronously through its decoder and frame sinks. The
// context is checked between cycles only.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/avpump/internal/config"
	"github.com/jmylchreest/avpump/internal/decode"
	"github.com/jmylchreest/avpump/internal/demux"
	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
	"github.com/jmylchreest/avpump/internal/observability"
	"github.com/jmylchreest/avpump/internal/resample"
	"github.com/jmylchreest/avpump/internal/sink"
)

// Options configures a Pipeline.
type Options struct {
	// Config selects the input and outputs. Defaults to config.Default().
	Config *config.Config
	Engine engine.Engine
	Logger *slog.Logger

	// Callback receives every resampled PCM16 window in addition to the
	// configured outputs.
	Callback resample.Callback
	// VideoSink receives every decoded picture in addition to the
	// configured outputs.
	VideoSink decode.VideoFrameSink
}

// Stats aggregates the counters of every stage.
type Stats struct {
	Demux      demux.Stats
	Audio      decode.Stats
	Video      decode.Stats
	Resample   resample.Stats
	AudioRemux sink.RemuxerStats
	VideoRemux sink.RemuxerStats
	RTP        sink.RTPStats
	// RTPErrors counts windows the network sink failed to send.
	RTPErrors     uint64
	QueuedFrames  int
	DroppedFrames uint64
}

// Result is the outcome of a Run.
type Result struct {
	SessionID string
	Stats     Stats
	Duration  time.Duration
	// EndOfStream is set when the input was read to the end.
	EndOfStream bool
	// Packets is the number of packets pumped by this Run.
	Packets int64
}

type closer struct {
	name  string
	close func() error
}

// Pipeline owns every stage built from one configuration. It is not safe
// for concurrent use, apart from Stats.
type Pipeline struct {
	cfg       *config.Config
	eng       engine.Engine
	opts      Options
	logger    *slog.Logger
	sessionID string

	demuxer    *demux.Demuxer
	audioDec   *decode.AudioDecoder
	videoDec   *decode.VideoDecoder
	resampler  *resample.Writer
	rawAudio   *sink.PCMWriter
	pcm        *sink.PCMWriter
	wav        *sink.WAVWriter
	rtp        *sink.RTPSender
	rtpErrors  atomic.Uint64
	yuv        *sink.YUVWriter
	y4m        *sink.Y4MWriter
	queue      *sink.VideoFrameQueue
	audioRemux *sink.Remuxer
	videoRemux *sink.Remuxer

	// closers run in insertion order, upstream stages first.
	closers []closer
	outputs []string

	opened  bool
	closed  bool
	running atomic.Bool
}

// New creates a pipeline. Nothing is opened until Open.
func New(opts Options) *Pipeline {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	sessionID := observability.NewSessionID()
	return &Pipeline{
		cfg:       opts.Config,
		eng:       opts.Engine,
		opts:      opts,
		logger:    observability.WithSession(observability.WithComponent(opts.Logger, "pipeline"), sessionID),
		sessionID: sessionID,
	}
}

// SessionID returns the identifier attached to every log line of this
// pipeline.
func (p *Pipeline) SessionID() string {
	return p.sessionID
}

// Queue returns the decoded video frame queue, or nil when
// video.queue_size is zero.
func (p *Pipeline) Queue() *sink.VideoFrameQueue {
	return p.queue
}

// Outputs returns the names of the outputs built by Open.
func (p *Pipeline) Outputs() []string {
	return append([]string(nil), p.outputs...)
}

// Open opens the input, seeks when configured and builds the decoders and
// outputs for the streams found. On failure everything already opened is
// closed again.
func (p *Pipeline) Open(ctx context.Context) (err error) {
	if p.closed {
		return fmt.Errorf("pipeline: %w", engine.ErrClosed)
	}
	if p.opened {
		return fmt.Errorf("pipeline already open on %s", p.cfg.Input.URL)
	}
	if p.eng == nil {
		return NewConfigurationError("engine", "no engine selected")
	}
	if p.cfg.Input.URL == "" {
		return ErrNoInput
	}
	if err := p.checkConfig(); err != nil {
		return err
	}

	defer func() {
		if err != nil {
			if closeErr := p.closeAll(); closeErr != nil {
				p.logger.Warn("cleanup after failed open", slog.String("error", closeErr.Error()))
			}
		}
	}()

	p.demuxer = demux.New(p.eng, demux.Options{
		RequireAudio: p.cfg.Input.RequireAudio,
		RequireVideo: p.cfg.Input.RequireVideo,
		Logger:       observability.WithComponent(p.logger, "demux"),
	})
	if err := p.demuxer.Open(ctx, p.cfg.Input.URL); err != nil {
		return err
	}
	p.addCloser("demuxer", p.demuxer.Close)

	if p.cfg.Input.Seek > 0 {
		if err := p.demuxer.Seek(p.cfg.Input.Seek); err != nil {
			return fmt.Errorf("seeking input: %w", err)
		}
	}

	if stream, ok := p.demuxer.AudioStream(); ok {
		if err := p.buildAudio(ctx, stream); err != nil {
			return err
		}
	}
	if stream, ok := p.demuxer.VideoStream(); ok {
		if err := p.buildVideo(stream); err != nil {
			return err
		}
	}

	p.opened = true
	p.logger.InfoContext(ctx, "pipeline opened",
		slog.String("url", p.cfg.Input.URL),
		slog.String("engine", p.eng.Name()),
		slog.Any("outputs", p.outputs),
	)
	return nil
}

// checkConfig rejects combinations that would fail on the first frame.
func (p *Pipeline) checkConfig() error {
	audio := &p.cfg.Audio
	if !audio.Decode {
		return nil
	}
	if !audio.NeedsResampler() && p.opts.Callback == nil {
		return nil
	}
	dst, err := audio.DestFormat()
	if err != nil {
		return NewConfigurationError("audio", err.Error())
	}
	if (audio.NeedsCallback() || p.opts.Callback != nil) && dst.Format != media.SampleFormatS16 {
		return NewConfigurationError("audio.dest_sample_format",
			fmt.Sprintf("PCM16 outputs need s16, got %s", dst.Format))
	}
	return nil
}

func (p *Pipeline) addCloser(name string, fn func() error) {
	p.closers = append(p.closers, closer{name: name, close: fn})
}

func (p *Pipeline) addOutput(name string, fn func() error) {
	p.outputs = append(p.outputs, name)
	p.addCloser(name, fn)
}

func (p *Pipeline) wantsAudioFrames() bool {
	return p.cfg.Audio.RawPath != "" || p.cfg.Audio.NeedsResampler() || p.opts.Callback != nil
}

func (p *Pipeline) wantsVideoFrames() bool {
	v := &p.cfg.Video
	return v.YUVPath != "" || v.Y4MPath != "" || v.QueueSize > 0 || p.opts.VideoSink != nil
}

// buildAudio wires the audio stream: an optional packet copy and, when
// decoding, the decoder feeding the raw, resampled and PCM16 outputs.
func (p *Pipeline) buildAudio(ctx context.Context, stream media.StreamInfo) error {
	logger := observability.WithStream(p.logger, stream.Index, "audio")
	var packets sink.PacketFanOut

	if path := p.cfg.Remux.AudioPath; path != "" {
		r := sink.NewRemuxer(p.eng, logger)
		if err := r.Initialize(path, stream); err != nil {
			return &OutputError{Output: "remux.audio_path", Err: err}
		}
		p.audioRemux = r
		p.addOutput("audio remux "+path, r.Close)
		packets = append(packets, r)
	}

	if p.cfg.Audio.Decode && p.wantsAudioFrames() {
		dec := decode.NewAudioDecoder(p.eng, logger)
		if err := dec.Initialize(stream.Params); err != nil {
			if p.cfg.Input.RequireAudio {
				return fmt.Errorf("initializing audio decoder: %w", err)
			}
			logger.Warn("audio decoding disabled",
				slog.String("codec", stream.Params.CodecName),
				slog.String("error", err.Error()))
		} else {
			p.audioDec = dec
			p.addCloser("audio decoder", dec.Close)

			frames, err := p.buildAudioSinks(ctx, logger)
			if err != nil {
				return err
			}
			dec.SetSink(frames)
			packets = append(packets, dec)
		}
	}

	if len(packets) > 0 {
		p.demuxer.SetAudioConsumer(packets)
	}
	return nil
}

func (p *Pipeline) buildAudioSinks(ctx context.Context, logger *slog.Logger) (sink.AudioFanOut, error) {
	audio := &p.cfg.Audio
	bufferSize := p.cfg.Output.BufferSize.Int()
	var frames sink.AudioFanOut

	if audio.RawPath != "" {
		w, err := sink.OpenPCMWriter(audio.RawPath, bufferSize)
		if err != nil {
			return nil, &OutputError{Output: "audio.raw_path", Err: err}
		}
		p.rawAudio = w
		p.addOutput("raw audio "+audio.RawPath, w.Close)
		frames = append(frames, w)
	}

	if !audio.NeedsResampler() && p.opts.Callback == nil {
		return frames, nil
	}

	dst, err := audio.DestFormat()
	if err != nil {
		return nil, NewConfigurationError("audio", err.Error())
	}
	rs := resample.NewWriter(p.eng, resample.Config{BufferSize: bufferSize, Logger: logger})
	rs.SetDestFormat(dst)
	p.resampler = rs
	p.addCloser("resampler", rs.Close)
	if audio.ResampledPath != "" {
		if err := rs.Open(audio.ResampledPath); err != nil {
			return nil, &OutputError{Output: "audio.resampled_path", Err: err}
		}
		p.outputs = append(p.outputs, "resampled audio "+audio.ResampledPath)
	}

	var callbacks []resample.Callback
	if audio.PCMPath != "" {
		w, err := sink.OpenPCMWriter(audio.PCMPath, bufferSize)
		if err != nil {
			return nil, &OutputError{Output: "audio.pcm_path", Err: err}
		}
		p.pcm = w
		p.addOutput("pcm16 "+audio.PCMPath, w.Close)
		callbacks = append(callbacks, w.WritePCM16)
	}
	if audio.WAVPath != "" {
		w, err := sink.OpenWAVWriter(audio.WAVPath)
		if err != nil {
			return nil, &OutputError{Output: "audio.wav_path", Err: err}
		}
		p.wav = w
		p.addOutput("wav "+audio.WAVPath, w.Close)
		callbacks = append(callbacks, w.WritePCM16)
	}
	if audio.RTPAddr != "" {
		s, err := sink.DialRTPSender(ctx, sink.RTPConfig{
			Addr:        audio.RTPAddr,
			PayloadType: uint8(audio.RTPPayloadType),
			SSRC:        audio.RTPSSRC,
			Logger:      logger,
		})
		if err != nil {
			return nil, &OutputError{Output: "audio.rtp_addr", Err: err}
		}
		p.rtp = s
		p.addOutput("rtp "+audio.RTPAddr, s.Close)
		callbacks = append(callbacks, p.sendRTP)
	}
	if p.opts.Callback != nil {
		callbacks = append(callbacks, p.opts.Callback)
	}
	if len(callbacks) > 0 {
		rs.SetCallback(sink.PCMFanOut(callbacks...))
	}

	return append(frames, rs), nil
}

// sendRTP forwards a window to the network sink. Send failures are
// counted and logged but never stop the pump.
func (p *Pipeline) sendRTP(pcm []int16, sampleRate, channels, samplesPerChannel int) error {
	if err := p.rtp.WritePCM16(pcm, sampleRate, channels, samplesPerChannel); err != nil {
		if p.rtpErrors.Add(1) == 1 {
			p.logger.Warn("rtp send failed, continuing", slog.String("error", err.Error()))
		}
	}
	return nil
}

// buildVideo wires the video stream the same way as buildAudio.
func (p *Pipeline) buildVideo(stream media.StreamInfo) error {
	logger := observability.WithStream(p.logger, stream.Index, "video")
	var packets sink.PacketFanOut

	if path := p.cfg.Remux.VideoPath; path != "" {
		r := sink.NewRemuxer(p.eng, logger)
		if err := r.Initialize(path, stream); err != nil {
			return &OutputError{Output: "remux.video_path", Err: err}
		}
		p.videoRemux = r
		p.addOutput("video remux "+path, r.Close)
		packets = append(packets, r)
	}

	if p.cfg.Video.Decode && p.wantsVideoFrames() {
		dec := decode.NewVideoDecoder(p.eng, logger)
		if err := dec.Initialize(stream.Params); err != nil {
			if p.cfg.Input.RequireVideo {
				return fmt.Errorf("initializing video decoder: %w", err)
			}
			logger.Warn("video decoding disabled",
				slog.String("codec", stream.Params.CodecName),
				slog.String("error", err.Error()))
		} else {
			p.videoDec = dec
			p.addCloser("video decoder", dec.Close)

			frames, err := p.buildVideoSinks()
			if err != nil {
				return err
			}
			dec.SetSink(frames)
			packets = append(packets, dec)
		}
	}

	if len(packets) > 0 {
		p.demuxer.SetVideoConsumer(packets)
	}
	return nil
}

func (p *Pipeline) buildVideoSinks() (sink.VideoFanOut, error) {
	video := &p.cfg.Video
	bufferSize := p.cfg.Output.BufferSize.Int()
	var frames sink.VideoFanOut

	if video.YUVPath != "" {
		w, err := sink.OpenYUVWriter(video.YUVPath, bufferSize)
		if err != nil {
			return nil, &OutputError{Output: "video.yuv_path", Err: err}
		}
		p.yuv = w
		p.addOutput("yuv "+video.YUVPath, w.Close)
		frames = append(frames, w)
	}
	if video.Y4MPath != "" {
		w, err := sink.OpenY4MWriter(video.Y4MPath, video.Y4MFrameRate, 1, bufferSize)
		if err != nil {
			return nil, &OutputError{Output: "video.y4m_path", Err: err}
		}
		p.y4m = w
		p.addOutput("y4m "+video.Y4MPath, w.Close)
		frames = append(frames, w)
	}
	if video.QueueSize > 0 {
		p.queue = sink.NewVideoFrameQueue(video.QueueSize)
		frames = append(frames, p.queue)
	}
	if p.opts.VideoSink != nil {
		frames = append(frames, p.opts.VideoSink)
	}
	return frames, nil
}

// Run pumps packets until the input ends, pipeline.max_packets is reached,
// a stage fails or ctx is cancelled. It does not close the pipeline.
func (p *Pipeline) Run(ctx context.Context) (result *Result, err error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer p.running.Store(false)
	if !p.opened || p.closed {
		return nil, ErrNotOpen
	}

	ctx = observability.ContextWithSessionID(observability.ContextWithLogger(ctx, p.logger), p.sessionID)
	done := observability.TimedOperationWithError(ctx, p.logger, "pump", &err)
	defer done()

	startTime := time.Now()
	result = &Result{SessionID: p.sessionID}
	finish := func() {
		result.Stats = p.Stats()
		result.Duration = time.Since(startTime)
	}

	maxPackets := p.cfg.Pipeline.MaxPackets
	interval := p.cfg.Pipeline.StatsInterval.Duration()
	lastStats := startTime

	for {
		select {
		case <-ctx.Done():
			finish()
			return result, ctx.Err()
		default:
		}

		if maxPackets > 0 && result.Packets >= maxPackets {
			p.logger.DebugContext(ctx, "packet limit reached", slog.Int64("max_packets", maxPackets))
			break
		}

		if err := p.demuxer.PumpOne(); err != nil {
			if demux.IsEndOfStream(err) {
				result.EndOfStream = true
				break
			}
			finish()
			return result, fmt.Errorf("pumping packet %d: %w", result.Packets, err)
		}
		result.Packets++

		if interval > 0 && time.Since(lastStats) >= interval {
			p.logStats(ctx)
			lastStats = time.Now()
		}
	}

	finish()
	p.logger.InfoContext(ctx, "pump finished",
		slog.Int64("packets", result.Packets),
		slog.Bool("end_of_stream", result.EndOfStream),
		slog.Uint64("audio_frames", result.Stats.Audio.Frames),
		slog.Uint64("video_frames", result.Stats.Video.Frames),
		slog.Uint64("windows", result.Stats.Resample.Windows),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

func (p *Pipeline) logStats(ctx context.Context) {
	s := p.Stats()
	p.logger.InfoContext(ctx, "pump progress",
		slog.Uint64("packets", s.Demux.Packets),
		slog.Uint64("dropped_packets", s.Demux.Dropped),
		slog.Uint64("audio_frames", s.Audio.Frames),
		slog.Uint64("decode_errors", s.Audio.DecodeErrors+s.Video.DecodeErrors),
		slog.Uint64("video_frames", s.Video.Frames),
		slog.Uint64("windows", s.Resample.Windows),
	)
}

// Stats returns a snapshot of every stage's counters.
func (p *Pipeline) Stats() Stats {
	var s Stats
	if p.demuxer != nil {
		s.Demux = p.demuxer.Stats()
	}
	if p.audioDec != nil {
		s.Audio = p.audioDec.Stats()
	}
	if p.videoDec != nil {
		s.Video = p.videoDec.Stats()
	}
	if p.resampler != nil {
		s.Resample = p.resampler.Stats()
	}
	if p.audioRemux != nil {
		s.AudioRemux = p.audioRemux.Stats()
	}
	if p.videoRemux != nil {
		s.VideoRemux = p.videoRemux.Stats()
	}
	if p.rtp != nil {
		s.RTP = p.rtp.Stats()
	}
	s.RTPErrors = p.rtpErrors.Load()
	if p.queue != nil {
		s.QueuedFrames = p.queue.Len()
		s.DroppedFrames = p.queue.Dropped()
	}
	return s
}

// Close releases every stage, upstream first. Errors of individual stages
// are joined. It is safe to call more than once.
func (p *Pipeline) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return p.closeAll()
}

func (p *Pipeline) closeAll() error {
	var errs []error
	for _, c := range p.closers {
		if err := c.close(); err != nil {
			errs = append(errs, &OutputError{Output: c.name, Err: err})
		}
	}
	p.closers = nil
	p.logger.Debug("pipeline closed", slog.Int("errors", len(errs)))
	return errors.Join(errs...)
}
