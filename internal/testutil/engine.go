package testutil

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

// SeekCall records one Container.SeekFile call.
type SeekCall struct {
	StreamIndex int
	MinTS       int64
	TS          int64
	MaxTS       int64
}

// OverlapGuard counts guarded calls that start while another one is still
// running. The zero value is ready to use.
type OverlapGuard struct {
	inFlight atomic.Int32
	overlaps atomic.Int32
	calls    atomic.Int32
}

// Enter marks a call as running and returns the function that ends it.
func (g *OverlapGuard) Enter() func() {
	g.calls.Add(1)
	if g.inFlight.Add(1) > 1 {
		g.overlaps.Add(1)
	}
	runtime.Gosched()
	return func() { g.inFlight.Add(-1) }
}

// Overlaps returns how many calls started while another was running.
func (g *OverlapGuard) Overlaps() int {
	return int(g.overlaps.Load())
}

// Calls returns how many calls were guarded.
func (g *OverlapGuard) Calls() int {
	return int(g.calls.Load())
}

// FakeContainer is an in-memory container serving a fixed packet list.
// ReadPacket and SeekFile are tracked by Guard.
type FakeContainer struct {
	StreamList []media.StreamInfo
	Packets    []*media.Packet
	// ReadErr, when set, is returned by ReadPacket instead of a packet.
	ReadErr error
	SeekErr error
	Guard   OverlapGuard

	mu       sync.Mutex
	pos      int
	seeks    []SeekCall
	released int
	closed   int
}

var _ engine.Container = (*FakeContainer)(nil)

// Streams returns StreamList.
func (c *FakeContainer) Streams() []media.StreamInfo {
	return c.StreamList
}

// BestStream returns the first stream of the given kind.
func (c *FakeContainer) BestStream(kind media.MediaType) (int, error) {
	for _, s := range c.StreamList {
		if s.Params.MediaType == kind {
			return s.Index, nil
		}
	}
	return media.NoStream, engine.ErrStreamNotFound
}

// ReadPacket copies the next packet into pkt and installs a releaser that
// is counted by Released.
func (c *FakeContainer) ReadPacket(pkt *media.Packet) error {
	defer c.Guard.Enter()()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ReadErr != nil {
		return c.ReadErr
	}
	if c.pos >= len(c.Packets) {
		return io.EOF
	}
	src := c.Packets[c.pos]
	c.pos++

	pkt.StreamIndex = src.StreamIndex
	pkt.PTS = src.PTS
	pkt.DTS = src.DTS
	pkt.Duration = src.Duration
	pkt.Pos = src.Pos
	pkt.Keyframe = src.Keyframe
	pkt.Data = src.Data
	pkt.SetReleaser(func() {
		c.mu.Lock()
		c.released++
		c.mu.Unlock()
	})
	return nil
}

// SeekFile moves to the first packet of streamIndex with PTS >= minTS.
func (c *FakeContainer) SeekFile(streamIndex int, minTS, ts, maxTS int64) error {
	defer c.Guard.Enter()()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seeks = append(c.seeks, SeekCall{StreamIndex: streamIndex, MinTS: minTS, TS: ts, MaxTS: maxTS})
	if c.SeekErr != nil {
		return c.SeekErr
	}
	for i, p := range c.Packets {
		if p.StreamIndex == streamIndex && p.PTS >= minTS {
			c.pos = i
			return nil
		}
	}
	c.pos = len(c.Packets)
	return nil
}

// Close counts calls.
func (c *FakeContainer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

// Seeks returns the recorded SeekFile calls.
func (c *FakeContainer) Seeks() []SeekCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SeekCall(nil), c.seeks...)
}

// Released returns how many packet payloads were released.
func (c *FakeContainer) Released() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// CloseCount returns how many times Close was called.
func (c *FakeContainer) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// FakeCodecSession is a scripted codec session. Decode is called from
// ReceiveFrame with the packet last accepted by SendPacket. It holds no
// lock of its own; SendPacket, ReceiveFrame and Flush are tracked by Guard.
type FakeCodecSession[F any] struct {
	// SendErr, when set, is returned by every SendPacket.
	SendErr error
	// Decode fills dst from pkt. A nil Decode yields ErrAgain.
	Decode func(pkt *media.Packet, dst F) error
	Guard  OverlapGuard

	pending *media.Packet
	Sent    int
	Flushed int
	Closed  int
}

// SendPacket stores an owned copy of pkt.
func (s *FakeCodecSession[F]) SendPacket(pkt *media.Packet) error {
	defer s.Guard.Enter()()
	if s.Closed > 0 {
		return engine.ErrClosed
	}
	if s.SendErr != nil {
		return s.SendErr
	}
	s.Sent++
	s.pending = pkt.Clone()
	return nil
}

// ReceiveFrame decodes the pending packet.
func (s *FakeCodecSession[F]) ReceiveFrame(dst F) error {
	defer s.Guard.Enter()()
	if s.pending == nil || s.Decode == nil {
		return engine.ErrAgain
	}
	p := s.pending
	s.pending = nil
	return s.Decode(p, dst)
}

// Flush drops the pending packet.
func (s *FakeCodecSession[F]) Flush() {
	defer s.Guard.Enter()()
	s.Flushed++
	s.pending = nil
}

// Close counts calls.
func (s *FakeCodecSession[F]) Close() error {
	s.Closed++
	return nil
}

// FakeResampler delegates to ConvertFunc and reports a fixed delay.
type FakeResampler struct {
	ConvertFunc func(out []byte, outCapacity int, in []byte, inSamples int) (int, error)
	DelayValue  int64
	Calls       int
	Closed      int
}

// Convert calls ConvertFunc.
func (r *FakeResampler) Convert(out []byte, outCapacity int, in []byte, inSamples int) (int, error) {
	r.Calls++
	if r.ConvertFunc == nil {
		return 0, nil
	}
	return r.ConvertFunc(out, outCapacity, in, inSamples)
}

// Delay returns DelayValue.
func (r *FakeResampler) Delay(int64) int64 {
	return r.DelayValue
}

// Close counts calls.
func (r *FakeResampler) Close() error {
	r.Closed++
	return nil
}

// FakeMuxer records everything written to it.
type FakeMuxer struct {
	Path       string
	Streams    []media.StreamInfo
	OutputBase media.Rational
	// Packets holds owned copies of written packets.
	Packets        []*media.Packet
	HeaderErr      error
	WriteErr       error
	HeaderWritten  bool
	TrailerWritten bool
	Closed         int
}

// NewStream records src with its codec tag cleared.
func (m *FakeMuxer) NewStream(src media.StreamInfo) (int, error) {
	src.Params = src.Params.Copy()
	src.Params.CodecTag = 0
	m.Streams = append(m.Streams, src)
	return len(m.Streams) - 1, nil
}

// WriteHeader marks the header written.
func (m *FakeMuxer) WriteHeader() error {
	if m.HeaderErr != nil {
		return m.HeaderErr
	}
	m.HeaderWritten = true
	return nil
}

// TimeBase returns OutputBase, or 1/90000 when unset.
func (m *FakeMuxer) TimeBase(int) media.Rational {
	if m.OutputBase.Valid() {
		return m.OutputBase
	}
	return media.NewRational(1, 90000)
}

// WritePacket stores a clone of pkt.
func (m *FakeMuxer) WritePacket(pkt *media.Packet) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Packets = append(m.Packets, pkt.Clone())
	return nil
}

// WriteTrailer marks the trailer written.
func (m *FakeMuxer) WriteTrailer() error {
	m.TrailerWritten = true
	return nil
}

// Close counts calls.
func (m *FakeMuxer) Close() error {
	m.Closed++
	return nil
}

// FakeEngine hands out preconfigured fakes.
type FakeEngine struct {
	Container *FakeContainer
	OpenErr   error

	AudioDecoderFunc func(params media.CodecParameters) (engine.CodecSession[*media.AudioFrame], error)
	VideoDecoderFunc func(params media.CodecParameters) (engine.CodecSession[*media.VideoFrame], error)
	ResamplerFunc    func(in, out media.AudioFormat) (engine.Resampler, error)

	// CreateErr, when set, fails CreateOutput.
	CreateErr error

	mu      sync.Mutex
	outputs map[string]*FakeMuxer
}

var _ engine.Engine = (*FakeEngine)(nil)

// Name returns "fake".
func (e *FakeEngine) Name() string {
	return "fake"
}

// OpenInput returns Container.
func (e *FakeEngine) OpenInput(ctx context.Context, url string) (engine.Container, error) {
	if e.OpenErr != nil {
		return nil, e.OpenErr
	}
	if e.Container == nil {
		return nil, fmt.Errorf("fake engine: no container for %s", url)
	}
	return e.Container, nil
}

// NewAudioDecoder calls AudioDecoderFunc.
func (e *FakeEngine) NewAudioDecoder(params media.CodecParameters) (engine.CodecSession[*media.AudioFrame], error) {
	if e.AudioDecoderFunc == nil {
		return nil, engine.ErrDecoderNotFound
	}
	return e.AudioDecoderFunc(params)
}

// NewVideoDecoder calls VideoDecoderFunc.
func (e *FakeEngine) NewVideoDecoder(params media.CodecParameters) (engine.CodecSession[*media.VideoFrame], error) {
	if e.VideoDecoderFunc == nil {
		return nil, engine.ErrDecoderNotFound
	}
	return e.VideoDecoderFunc(params)
}

// NewResampler calls ResamplerFunc.
func (e *FakeEngine) NewResampler(in, out media.AudioFormat) (engine.Resampler, error) {
	if e.ResamplerFunc == nil {
		return nil, fmt.Errorf("fake engine: no resampler")
	}
	return e.ResamplerFunc(in, out)
}

// CreateOutput returns a new FakeMuxer retrievable with Output.
func (e *FakeEngine) CreateOutput(path string) (engine.Muxer, error) {
	if e.CreateErr != nil {
		return nil, e.CreateErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.outputs == nil {
		e.outputs = make(map[string]*FakeMuxer)
	}
	m := &FakeMuxer{Path: path}
	e.outputs[path] = m
	return m, nil
}

// Output returns the muxer created for path, or nil.
func (e *FakeEngine) Output(path string) *FakeMuxer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outputs[path]
}
