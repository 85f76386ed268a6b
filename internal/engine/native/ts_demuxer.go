package native

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"

	"github.com/jmylchreest/avpump/internal/codec"
	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

// tsTimeBase is the MPEG-TS 90kHz clock.
var tsTimeBase = media.NewRational(1, 90000)

// maxStartReads bounds the reads spent looking for the first timestamp of
// every stream when opening a file.
const maxStartReads = 20000

// tsPacket is one access unit extracted by the mediacommon reader.
type tsPacket struct {
	stream   int
	pts      int64
	dts      int64
	duration int64
	keyframe bool
	data     []byte
}

// tsSeek is a pending seek gate of one stream: its packets are dropped
// until one at or after minTS arrives, a keyframe for video.
type tsSeek struct {
	minTS int64
	video bool
}

// tsDemuxer reads MPEG-TS files with the mediacommon reader. Access units
// are queued by the reader callbacks and handed out one per ReadPacket.
type tsDemuxer struct {
	path   string
	logger *slog.Logger

	file    *os.File
	reader  *mpegts.Reader
	streams []media.StreamInfo
	queue   []tsPacket
	eof     bool
	// seeks holds the pending gates by stream index. reopened is set by
	// SeekFile and cleared by ReadPacket so that consecutive seeks share
	// one reopen.
	seeks    map[int]tsSeek
	reopened bool
	closed   bool
}

var _ engine.Container = (*tsDemuxer)(nil)

func openTSDemuxer(ctx context.Context, path string, logger *slog.Logger) (*tsDemuxer, error) {
	d := &tsDemuxer{
		path:   path,
		logger: logger,
	}
	if err := d.open(); err != nil {
		return nil, err
	}

	for _, track := range d.reader.Tracks() {
		params, ok := codec.FromMPEGTS(track.Codec)
		if !ok {
			d.logger.Debug("skipping unsupported mpegts track",
				slog.Uint64("pid", uint64(track.PID)))
			continue
		}
		d.streams = append(d.streams, media.StreamInfo{
			Index:     len(d.streams),
			TimeBase:  tsTimeBase,
			StartTime: media.NoPTS,
			Params:    params,
		})
	}
	if len(d.streams) == 0 {
		d.Close()
		return nil, fmt.Errorf("%w: no supported tracks in %s", media.ErrOpen, path)
	}
	d.registerCallbacks()

	if err := d.findStartTimes(ctx); err != nil {
		d.Close()
		return nil, err
	}

	// The duration comes from a separate astits pass over the file, so the
	// reader above keeps its queued packets.
	durations, err := probeDurations(ctx, path)
	if err != nil {
		d.logger.Debug("mpegts duration probe failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
	for i := range d.streams {
		s := &d.streams[i]
		if pid := d.trackPID(i); pid != 0 {
			s.Duration = durations[pid]
		}
		if s.Duration > 0 && s.Params.MediaType == media.MediaTypeAudio {
			s.Duration += frameDuration(s.Params)
		}
	}

	return d, nil
}

// open (re)opens the file and initializes a fresh reader.
func (d *tsDemuxer) open() error {
	f, err := os.Open(d.path)
	if err != nil {
		return fmt.Errorf("%w: %w", media.ErrOpen, err)
	}

	r := &mpegts.Reader{R: bufio.NewReader(f)}
	if err := r.Initialize(); err != nil {
		f.Close()
		return fmt.Errorf("%w: initializing mpegts reader: %w", media.ErrOpen, err)
	}
	r.OnDecodeError(func(err error) {
		d.logger.Debug("mpegts decode error", slog.String("error", err.Error()))
	})

	d.file = f
	d.reader = r
	d.queue = d.queue[:0]
	d.eof = false
	return nil
}

// findStartTimes reads ahead until every stream has a queued packet.
func (d *tsDemuxer) findStartTimes(ctx context.Context) error {
	for reads := 0; reads < maxStartReads; reads++ {
		missing := false
		for i := range d.streams {
			if d.streams[i].StartTime == media.NoPTS {
				missing = true
				break
			}
		}
		if !missing || d.eof {
			return nil
		}
		if reads%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := d.readMore(); err != nil {
			return fmt.Errorf("%w: %w", media.ErrOpen, err)
		}
	}
	return nil
}

// trackPID returns the PID of the track behind stream index i.
func (d *tsDemuxer) trackPID(i int) uint16 {
	n := 0
	for _, track := range d.reader.Tracks() {
		if _, ok := codec.FromMPEGTS(track.Codec); !ok {
			continue
		}
		if n == i {
			return track.PID
		}
		n++
	}
	return 0
}

func (d *tsDemuxer) registerCallbacks() {
	idx := 0
	for _, track := range d.reader.Tracks() {
		params, ok := codec.FromMPEGTS(track.Codec)
		if !ok {
			continue
		}
		stream := idx
		idx++
		step := frameDuration(params)

		switch track.Codec.(type) {
		case *mpegts.CodecH264:
			d.reader.OnDataH264(track, func(pts, dts int64, au [][]byte) error {
				if len(au) == 0 {
					return nil
				}
				data, err := h264.AnnexB(au).Marshal()
				if err != nil || len(data) == 0 {
					return nil
				}
				d.push(tsPacket{stream: stream, pts: pts, dts: dts, keyframe: h264.IsRandomAccess(au), data: data})
				return nil
			})

		case *mpegts.CodecH265:
			d.reader.OnDataH265(track, func(pts, dts int64, au [][]byte) error {
				if len(au) == 0 {
					return nil
				}
				data, err := h264.AnnexB(au).Marshal()
				if err != nil || len(data) == 0 {
					return nil
				}
				d.push(tsPacket{stream: stream, pts: pts, dts: dts, keyframe: h265.IsRandomAccess(au), data: data})
				return nil
			})

		case *mpegts.CodecMPEG4Audio:
			d.reader.OnDataMPEG4Audio(track, func(pts int64, aus [][]byte) error {
				d.pushAudio(stream, pts, step, aus)
				return nil
			})

		case *mpegts.CodecAC3:
			d.reader.OnDataAC3(track, func(pts int64, frame []byte) error {
				d.pushAudio(stream, pts, step, [][]byte{frame})
				return nil
			})

		case *mpegts.CodecEAC3:
			d.reader.OnDataEAC3(track, func(pts int64, frame []byte) error {
				d.pushAudio(stream, pts, step, [][]byte{frame})
				return nil
			})

		case *mpegts.CodecMPEG1Audio:
			d.reader.OnDataMPEG1Audio(track, func(pts int64, frames [][]byte) error {
				d.pushAudio(stream, pts, step, frames)
				return nil
			})

		case *mpegts.CodecOpus:
			d.reader.OnDataOpus(track, func(pts int64, packets [][]byte) error {
				d.pushAudio(stream, pts, step, packets)
				return nil
			})
		}
	}
}

// pushAudio queues every frame of a PES packet, advancing the timestamp by
// one frame duration each.
func (d *tsDemuxer) pushAudio(stream int, pts, step int64, frames [][]byte) {
	current := pts
	for _, frame := range frames {
		if len(frame) == 0 {
			continue
		}
		d.push(tsPacket{stream: stream, pts: current, dts: current, duration: step, keyframe: true, data: frame})
		current += step
	}
}

func (d *tsDemuxer) push(p tsPacket) {
	s := &d.streams[p.stream]
	if s.StartTime == media.NoPTS {
		s.StartTime = p.pts
	}

	if gate, ok := d.seeks[p.stream]; ok {
		if p.pts < gate.minTS || (gate.video && !p.keyframe) {
			return
		}
		delete(d.seeks, p.stream)
	}
	d.queue = append(d.queue, p)
}

// readMore advances the reader by one TS packet.
func (d *tsDemuxer) readMore() error {
	if err := d.reader.Read(); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			d.eof = true
			return nil
		}
		return fmt.Errorf("reading mpegts: %w", err)
	}
	return nil
}

func (d *tsDemuxer) Streams() []media.StreamInfo {
	return d.streams
}

func (d *tsDemuxer) BestStream(kind media.MediaType) (int, error) {
	return bestStream(d.streams, kind)
}

func (d *tsDemuxer) ReadPacket(pkt *media.Packet) error {
	if d.closed {
		return engine.ErrClosed
	}
	d.reopened = false
	for len(d.queue) == 0 {
		if d.eof {
			return io.EOF
		}
		if err := d.readMore(); err != nil {
			return err
		}
	}

	p := d.queue[0]
	d.queue[0] = tsPacket{}
	d.queue = d.queue[1:]

	pkt.StreamIndex = p.stream
	pkt.PTS = p.pts
	pkt.DTS = p.dts
	pkt.Duration = p.duration
	pkt.Pos = -1
	pkt.Keyframe = p.keyframe
	pkt.Data = p.data
	pkt.Handle = nil
	return nil
}

// SeekFile gates streamIndex so that its packets are dropped until one at
// or after minTS arrives (a keyframe for video). The first SeekFile after a
// read reopens the file and clears earlier gates. Later calls before the
// next read only add their own gate, so every stream of one seek keeps its
// target. Streams without a gate are delivered from the start of the file.
// ts and maxTS are not used: the reader cannot jump backwards in a stream.
func (d *tsDemuxer) SeekFile(streamIndex int, minTS, ts, maxTS int64) error {
	if d.closed {
		return engine.ErrClosed
	}
	if streamIndex < 0 || streamIndex >= len(d.streams) {
		return fmt.Errorf("%w: index %d", engine.ErrStreamNotFound, streamIndex)
	}

	if !d.reopened {
		d.file.Close()
		if err := d.open(); err != nil {
			return err
		}
		d.registerCallbacks()
		d.seeks = make(map[int]tsSeek)
		d.reopened = true
	}
	d.seeks[streamIndex] = tsSeek{
		minTS: minTS,
		video: d.streams[streamIndex].Params.MediaType == media.MediaTypeVideo,
	}

	d.logger.Debug("mpegts seek",
		slog.Int("stream", streamIndex),
		slog.Int64("min_ts", minTS),
		slog.Int64("ts", ts))
	return nil
}

func (d *tsDemuxer) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.queue = nil
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

// frameDuration returns the duration of one audio frame in 90kHz units, 0
// for video or unknown frame sizes.
func frameDuration(p media.CodecParameters) int64 {
	if p.MediaType != media.MediaTypeAudio || p.FrameSize <= 0 {
		return 0
	}
	rate := p.SampleRate
	if rate <= 0 {
		rate = 48000
	}
	return int64(p.FrameSize) * 90000 / int64(rate)
}

// bestStream returns the first stream of the requested kind.
func bestStream(streams []media.StreamInfo, kind media.MediaType) (int, error) {
	for _, s := range streams {
		if s.Params.MediaType == kind {
			return s.Index, nil
		}
	}
	return media.NoStream, fmt.Errorf("%w: no %s stream", engine.ErrStreamNotFound, kind)
}
