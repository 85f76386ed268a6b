package native

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/asticode/go-astits"
)

// ptsWrap is the modulus of the 33-bit PES timestamp.
const ptsWrap = int64(1) << 33

// pidSpan tracks the first and last PTS seen on a PID.
type pidSpan struct {
	first int64
	last  int64
	base  int64
	prev  int64
}

func (s *pidSpan) add(pts int64) {
	// Unwrap 33-bit rollover relative to the previous timestamp.
	if pts+s.base < s.prev-ptsWrap/2 {
		s.base += ptsWrap
	}
	v := pts + s.base
	s.prev = v
	if v > s.last {
		s.last = v
	}
}

// probeDurations scans an MPEG-TS file with astits and returns, per PID,
// the span between the first and last PES presentation timestamp in 90kHz
// units.
func probeDurations(ctx context.Context, path string) (map[uint16]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	spans := make(map[uint16]*pidSpan)
	dmx := astits.NewDemuxer(ctx, bufio.NewReader(f))
	for {
		d, err := dmx.NextData()
		if err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) {
				break
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Trailing garbage or a truncated packet ends the probe.
			break
		}
		if d == nil || d.PES == nil || d.PES.Header == nil || d.PES.Header.OptionalHeader == nil {
			continue
		}
		pts := d.PES.Header.OptionalHeader.PTS
		if pts == nil {
			continue
		}
		span, ok := spans[d.PID]
		if !ok {
			spans[d.PID] = &pidSpan{first: pts.Base, last: pts.Base, prev: pts.Base}
			continue
		}
		span.add(pts.Base)
	}

	out := make(map[uint16]int64, len(spans))
	for pid, span := range spans {
		out[pid] = span.last - span.first
	}
	return out, nil
}
