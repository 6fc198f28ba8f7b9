// Package video hands decoded frames from push-driven producers to
// pull-driven playback pipelines.
package video

import (
	"errors"
	"sync"

	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrInvalidCapacity = errors.New("bridge capacity must be positive")

// Bridge is a bounded handoff between one frame producer and one consumer.
// When full, Submit evicts the oldest pending frame: for live video a
// dropped frame is better than growing latency.
type Bridge struct {
	name string

	mu      sync.Mutex
	ring    []domain.VideoFrame
	head    int
	count   int
	started bool
	stats   BridgeStats
	onFirst func(domain.VideoFrame)
}

// BridgeStats is a point-in-time snapshot of a bridge.
type BridgeStats struct {
	Capacity  int    `json:"capacity"`
	Pending   int    `json:"pending"`
	Submitted uint64 `json:"submitted"`
	Claimed   uint64 `json:"claimed"`
	Dropped   uint64 `json:"dropped"`
}

// NewBridge creates a bridge holding at most capacity frames. onFirst, if
// non-nil, runs exactly once on the producer goroutine with the first
// accepted frame; it must not block.
func NewBridge(name string, capacity int, onFirst func(domain.VideoFrame)) (*Bridge, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &Bridge{
		name:    name,
		ring:    make([]domain.VideoFrame, capacity),
		stats:   BridgeStats{Capacity: capacity},
		onFirst: onFirst,
	}, nil
}

func (b *Bridge) Name() string { return b.name }

// Submit queues f. It never blocks and never fails.
func (b *Bridge) Submit(f domain.VideoFrame) {
	b.mu.Lock()
	if b.count == len(b.ring) {
		b.ring[b.head] = domain.VideoFrame{}
		b.head = (b.head + 1) % len(b.ring)
		b.count--
		b.stats.Dropped++
	}
	b.ring[(b.head+b.count)%len(b.ring)] = f
	b.count++
	b.stats.Submitted++

	first := !b.started
	b.started = true
	b.mu.Unlock()

	if first {
		log.Info().
			Str("module", "app.video").
			Str("stream", b.name).
			Uint32("width", f.Width).
			Uint32("height", f.Height).
			Msg("first frame")
		if b.onFirst != nil {
			b.onFirst(f)
		}
	}
}

// TryClaim removes and returns the oldest pending frame. The second result
// is false when nothing is pending; callers should then feed an empty sample
// to their pipeline instead of waiting.
func (b *Bridge) TryClaim() (domain.VideoFrame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return domain.VideoFrame{}, false
	}
	f := b.ring[b.head]
	b.ring[b.head] = domain.VideoFrame{}
	b.head = (b.head + 1) % len(b.ring)
	b.count--
	b.stats.Claimed++
	return f, true
}

// Started reports whether the first frame has been accepted.
func (b *Bridge) Started() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

func (b *Bridge) Stats() BridgeStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Pending = b.count
	return s
}
