// Package capture provides video sources for the local preview stream.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyStarted = errors.New("capture already started")
	ErrClosed         = errors.New("capture closed")
)

// TestPattern is a synthetic camera producing I420A frames with a moving
// luma bar.
type TestPattern struct {
	id            string
	width, height uint32
	interval      time.Duration

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

var _ core.VideoSource = (*TestPattern)(nil)

func NewTestPattern(id string, width, height uint32, frameRate int) (*TestPattern, error) {
	if width == 0 || height == 0 {
		return nil, core.ErrInvalidDimensions
	}
	if frameRate <= 0 {
		frameRate = core.DefaultFrameRate
	}
	if frameRate > core.MaxFrameRate {
		return nil, fmt.Errorf("%w: %d fps", core.ErrInvalidFrameRate, frameRate)
	}
	return &TestPattern{
		id:       id,
		width:    width,
		height:   height,
		interval: time.Second / time.Duration(frameRate),
	}, nil
}

func (p *TestPattern) ID() string { return p.id }

func (p *TestPattern) Start(ctx context.Context, onFrame func(domain.VideoFrame)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	log.Info().Str("module", "adapters.capture").Str("device", p.id).
		Uint32("width", p.width).Uint32("height", p.height).
		Dur("interval", p.interval).Msg("capture started")

	go p.loop(ctx, onFrame)
	return nil
}

func (p *TestPattern) loop(ctx context.Context, onFrame func(domain.VideoFrame)) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			seq++
			onFrame(p.render(seq, now))
		}
	}
}

// render allocates fresh planes for every frame.
func (p *TestPattern) render(seq uint64, ts time.Time) domain.VideoFrame {
	w, h := int(p.width), int(p.height)
	cw, ch := (w+1)/2, (h+1)/2

	f := domain.VideoFrame{
		Width:     p.width,
		Height:    p.height,
		Y:         make([]byte, w*h),
		U:         make([]byte, cw*ch),
		V:         make([]byte, cw*ch),
		A:         make([]byte, w*h),
		StrideY:   w,
		StrideU:   cw,
		StrideV:   cw,
		StrideA:   w,
		Timestamp: ts,
		Seq:       seq,
	}

	bar := int(seq) % w
	for y := 0; y < h; y++ {
		row := f.Y[y*w : (y+1)*w]
		for x := range row {
			row[x] = byte(16 + (x*219)/w)
		}
		row[bar] = 235
	}
	for i := range f.U {
		f.U[i] = 128
		f.V[i] = 128
	}
	for i := range f.A {
		f.A[i] = 0xff
	}
	return f
}

func (p *TestPattern) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	log.Info().Str("module", "adapters.capture").Str("device", p.id).Msg("capture closed")
	return nil
}
