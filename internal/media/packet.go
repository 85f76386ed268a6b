package media

// Packet is one unit of compressed data tagged with a stream index and
// timestamps.
//
// A demuxer reuses a single Packet for every read. A packet received by a
// PacketSink is borrowed: it stays valid until the sink returns or calls
// Release, whichever comes first. Use Clone to keep the data.
type Packet struct {
	StreamIndex int
	PTS         int64
	DTS         int64
	Duration    int64
	// Pos is the byte position in the source, -1 when unknown.
	Pos      int64
	Keyframe bool
	Data     []byte

	// Handle carries engine-private state backing Data, such as the native
	// packet of a cgo engine. It is nil for owned clones.
	Handle any

	release  func()
	released bool
}

// NewPacket returns an empty packet with unset timestamps.
func NewPacket() *Packet {
	p := &Packet{}
	p.Reset()
	return p
}

// Size returns the payload length.
func (p *Packet) Size() int {
	return len(p.Data)
}

// Reset clears the packet for reuse. A pending releaser is run first.
func (p *Packet) Reset() {
	p.Release()
	p.StreamIndex = NoStream
	p.PTS = NoPTS
	p.DTS = NoPTS
	p.Duration = 0
	p.Pos = -1
	p.Keyframe = false
	p.Data = nil
	p.released = false
}

// SetReleaser installs the function that returns the payload to its owner.
// It is called at most once, by Release or Reset.
func (p *Packet) SetReleaser(fn func()) {
	p.release = fn
	p.released = false
}

// Release gives the payload back to its owner. It is idempotent; the
// packet's metadata stays readable but Data is cleared.
func (p *Packet) Release() {
	if p.release != nil {
		fn := p.release
		p.release = nil
		fn()
	}
	p.Data = nil
	p.released = true
}

// Released reports whether Release has been called since the last fill.
func (p *Packet) Released() bool {
	return p.released
}

// Borrow returns a shallow copy sharing Data but without the releaser, so
// several sinks can read the same payload while the original keeps
// ownership.
func (p *Packet) Borrow() *Packet {
	return &Packet{
		StreamIndex: p.StreamIndex,
		PTS:         p.PTS,
		DTS:         p.DTS,
		Duration:    p.Duration,
		Pos:         p.Pos,
		Keyframe:    p.Keyframe,
		Data:        p.Data,
		Handle:      p.Handle,
	}
}

// Clone returns an owned deep copy detached from any engine state.
func (p *Packet) Clone() *Packet {
	c := p.Borrow()
	c.Handle = nil
	if p.Data != nil {
		c.Data = append([]byte(nil), p.Data...)
	}
	return c
}
