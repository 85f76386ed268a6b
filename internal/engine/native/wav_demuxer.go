package native

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/jmylchreest/avpump/internal/codec"
	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

// wavDemuxer reads integer PCM WAV files with go-audio. Each packet holds
// packetSamples samples per channel as little-endian packed PCM; the time
// base is one sample.
type wavDemuxer struct {
	path          string
	packetSamples int
	logger        *slog.Logger

	file     *os.File
	dec      *wav.Decoder
	buf      *audio.IntBuffer
	stream   media.StreamInfo
	bitDepth int
	// next is the index of the next sample per channel to be read.
	next   int64
	eof    bool
	closed bool
}

var _ engine.Container = (*wavDemuxer)(nil)

func openWAVDemuxer(path string, packetSamples int, logger *slog.Logger) (*wavDemuxer, error) {
	d := &wavDemuxer{
		path:          path,
		packetSamples: packetSamples,
		logger:        logger,
	}
	if err := d.open(); err != nil {
		return nil, err
	}

	format, name, err := wavSampleFormat(int(d.dec.BitDepth))
	if err != nil {
		d.Close()
		return nil, err
	}
	channels := int(d.dec.NumChans)
	rate := int(d.dec.SampleRate)
	d.bitDepth = int(d.dec.BitDepth)

	var total int64
	if frameBytes := channels * d.bitDepth / 8; frameBytes > 0 && d.dec.PCMSize > 0 {
		total = int64(d.dec.PCMSize / frameBytes)
	}

	d.stream = media.StreamInfo{
		Index:     0,
		TimeBase:  media.NewRational(1, rate),
		StartTime: 0,
		Duration:  total,
		Params: media.CodecParameters{
			MediaType:    media.MediaTypeAudio,
			CodecName:    string(name),
			SampleRate:   rate,
			Layout:       media.DefaultChannelLayout(channels),
			SampleFormat: format,
			FrameSize:    packetSamples,
			BitRate:      int64(rate * channels * d.bitDepth),
		},
	}

	logger.Debug("wav input opened",
		slog.String("path", path),
		slog.Int("sample_rate", rate),
		slog.Int("channels", channels),
		slog.Int("bit_depth", d.bitDepth),
		slog.Int64("samples", total))
	return d, nil
}

func (d *wavDemuxer) open() error {
	f, err := os.Open(d.path)
	if err != nil {
		return fmt.Errorf("%w: %w", media.ErrOpen, err)
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return fmt.Errorf("%w: %s is not a valid wav file", media.ErrOpen, d.path)
	}
	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return fmt.Errorf("%w: locating pcm data: %w", media.ErrOpen, err)
	}
	if dec.NumChans == 0 || dec.SampleRate == 0 {
		f.Close()
		return fmt.Errorf("%w: %s has no audio format", media.ErrOpen, d.path)
	}

	d.file = f
	d.dec = dec
	d.buf = &audio.IntBuffer{
		Format: &audio.Format{NumChannels: int(dec.NumChans), SampleRate: int(dec.SampleRate)},
		Data:   make([]int, d.packetSamples*int(dec.NumChans)),
	}
	d.next = 0
	d.eof = false
	return nil
}

// wavSampleFormat maps a WAV bit depth to the packed sample format the
// demuxer emits. 24-bit samples are widened to 32 bits.
func wavSampleFormat(bitDepth int) (media.SampleFormat, codec.Audio, error) {
	switch bitDepth {
	case 8:
		return media.SampleFormatU8, codec.AudioPCMU8, nil
	case 16:
		return media.SampleFormatS16, codec.AudioPCMS16LE, nil
	case 24, 32:
		return media.SampleFormatS32, codec.AudioPCMS32LE, nil
	}
	return media.SampleFormatNone, "", fmt.Errorf("%w: %d-bit wav", media.ErrUnsupportedCodec, bitDepth)
}

func (d *wavDemuxer) Streams() []media.StreamInfo {
	return []media.StreamInfo{d.stream}
}

func (d *wavDemuxer) BestStream(kind media.MediaType) (int, error) {
	return bestStream(d.Streams(), kind)
}

func (d *wavDemuxer) ReadPacket(pkt *media.Packet) error {
	if d.closed {
		return engine.ErrClosed
	}
	if d.eof {
		return io.EOF
	}

	channels := int(d.dec.NumChans)
	d.buf.Data = d.buf.Data[:d.packetSamples*channels]
	n, err := d.dec.PCMBuffer(d.buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("reading wav samples: %w", err)
	}
	samples := n / channels
	if samples == 0 {
		d.eof = true
		return io.EOF
	}

	pkt.StreamIndex = 0
	pkt.PTS = d.next
	pkt.DTS = d.next
	pkt.Duration = int64(samples)
	pkt.Pos = -1
	pkt.Keyframe = true
	pkt.Data = encodePCM(d.buf.Data[:samples*channels], d.stream.Params.SampleFormat, d.bitDepth)
	pkt.Handle = nil

	d.next += int64(samples)
	if samples < d.packetSamples {
		d.eof = true
	}
	return nil
}

// SeekFile is sample exact: the file is reopened and samples before minTS
// are skipped, so the next packet starts at minTS.
func (d *wavDemuxer) SeekFile(streamIndex int, minTS, ts, maxTS int64) error {
	if d.closed {
		return engine.ErrClosed
	}
	if streamIndex != 0 {
		return fmt.Errorf("%w: index %d", engine.ErrStreamNotFound, streamIndex)
	}
	if minTS < 0 {
		minTS = 0
	}

	d.file.Close()
	if err := d.open(); err != nil {
		return err
	}

	channels := int(d.dec.NumChans)
	for d.next < minTS {
		want := minTS - d.next
		if want > int64(d.packetSamples) {
			want = int64(d.packetSamples)
		}
		d.buf.Data = d.buf.Data[:int(want)*channels]
		n, err := d.dec.PCMBuffer(d.buf)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return fmt.Errorf("skipping wav samples: %w", err)
		}
		if n == 0 {
			d.eof = true
			break
		}
		d.next += int64(n / channels)
	}

	d.logger.Debug("wav seek",
		slog.Int64("target", ts),
		slog.Int64("position", d.next))
	return nil
}

func (d *wavDemuxer) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

// encodePCM packs go-audio integer samples as little-endian bytes.
func encodePCM(samples []int, format media.SampleFormat, bitDepth int) []byte {
	bps := format.BytesPerSample()
	out := make([]byte, len(samples)*bps)
	for i, s := range samples {
		switch format {
		case media.SampleFormatU8:
			out[i] = byte(s)
		case media.SampleFormatS16:
			binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
		case media.SampleFormatS32:
			if bitDepth == 24 {
				s <<= 8
			}
			binary.LittleEndian.PutUint32(out[i*4:], uint32(int32(s)))
		}
	}
	return out
}
