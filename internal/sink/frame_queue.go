package sink

import (
	"sync"

	"github.com/jmylchreest/avpump/internal/media"
)

// DefaultQueueSize bounds a VideoFrameQueue created with a size of zero.
const DefaultQueueSize = 32

// VideoFrameQueue keeps owned copies of decoded pictures for a consumer on
// another goroutine. When full, the oldest picture is dropped.
type VideoFrameQueue struct {
	mu      sync.Mutex
	frames  []*media.VideoFrame
	size    int
	pushed  uint64
	dropped uint64
}

// NewVideoFrameQueue creates a queue holding at most size pictures.
func NewVideoFrameQueue(size int) *VideoFrameQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &VideoFrameQueue{size: size, frames: make([]*media.VideoFrame, 0, size)}
}

// ProcessVideoFrame clones the picture into the queue. It implements
// decode.VideoFrameSink.
func (q *VideoFrameQueue) ProcessVideoFrame(frame media.VideoView) error {
	owned := frame.Clone()

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == q.size {
		q.frames[0] = nil
		q.frames = q.frames[1:]
		q.dropped++
	}
	q.frames = append(q.frames, owned)
	q.pushed++
	return nil
}

// Pop removes and returns the oldest picture.
func (q *VideoFrameQueue) Pop() (*media.VideoFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return nil, false
	}
	f := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return f, true
}

// Len returns the number of queued pictures.
func (q *VideoFrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Dropped returns how many pictures were discarded because the queue was
// full.
func (q *VideoFrameQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Pushed returns how many pictures were queued in total.
func (q *VideoFrameQueue) Pushed() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushed
}
