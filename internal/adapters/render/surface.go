// Package render implements presentation surfaces for playback pipelines.
package render

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrDetached = errors.New("surface detached")

const statsEvery = 5 * time.Second

// PipelineStats counts what a pipeline pulled from its source.
type PipelineStats struct {
	Stream   string `json:"stream"`
	Rendered uint64 `json:"rendered"`
	Empty    uint64 `json:"empty"`
	// Mismatched counts frames whose size differs from the pipeline format.
	Mismatched uint64    `json:"mismatched"`
	LastSeq    uint64    `json:"last_seq"`
	LastFrame  time.Time `json:"last_frame"`
}

// StatsSurface is a headless surface: pipelines pull one sample per frame
// interval and only record what they saw.
type StatsSurface struct {
	mu        sync.Mutex
	pipelines map[string]*statsPipeline
	detached  bool
}

var _ core.Surface = (*StatsSurface)(nil)

func NewStatsSurface() *StatsSurface {
	return &StatsSurface{pipelines: make(map[string]*statsPipeline)}
}

func (s *StatsSurface) CreatePlaybackPipeline(stream string, format core.StreamFormat, src core.SampleSource) (core.Pipeline, error) {
	if format.Width == 0 || format.Height == 0 {
		return nil, core.ErrInvalidDimensions
	}
	if format.FrameRate <= 0 {
		format.FrameRate = core.DefaultFrameRate
	}
	if format.FrameRate > core.MaxFrameRate {
		return nil, fmt.Errorf("%w: %d fps", core.ErrInvalidFrameRate, format.FrameRate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		return nil, ErrDetached
	}
	if old, ok := s.pipelines[stream]; ok {
		old.Stop()
	}
	p := &statsPipeline{
		format:   format,
		src:      src,
		interval: time.Second / time.Duration(format.FrameRate),
		stats:    PipelineStats{Stream: stream},
		logger: log.With().
			Str("module", "adapters.render").
			Str("stream", stream).
			Logger(),
	}
	s.pipelines[stream] = p
	p.logger.Info().
		Uint32("width", format.Width).
		Uint32("height", format.Height).
		Int("fps", format.FrameRate).
		Uint64("bitrate", format.Bitrate).
		Msg("pipeline created")
	return p, nil
}

func (s *StatsSurface) Stats(stream string) (PipelineStats, bool) {
	s.mu.Lock()
	p, ok := s.pipelines[stream]
	s.mu.Unlock()
	if !ok {
		return PipelineStats{}, false
	}
	return p.Stats(), true
}

func (s *StatsSurface) Detach() {
	s.mu.Lock()
	s.detached = true
	pipelines := s.pipelines
	s.pipelines = make(map[string]*statsPipeline)
	s.mu.Unlock()

	for _, p := range pipelines {
		p.Stop()
	}
	log.Info().Str("module", "adapters.render").Int("pipelines", len(pipelines)).Msg("surface detached")
}

type statsPipeline struct {
	format   core.StreamFormat
	src      core.SampleSource
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	stats   PipelineStats
	playing bool
	stop    chan struct{}
	done    chan struct{}
}

func (p *statsPipeline) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return
	}
	p.playing = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.loop(p.stop, p.done)
	p.logger.Info().Msg("playing")
}

func (p *statsPipeline) Stop() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = false
	stop, done := p.stop, p.done
	p.mu.Unlock()

	close(stop)
	<-done
	st := p.Stats()
	p.logger.Info().Uint64("rendered", st.Rendered).Uint64("empty", st.Empty).Msg("stopped")
}

func (p *statsPipeline) Stats() PipelineStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *statsPipeline) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	report := time.NewTicker(statsEvery)
	defer report.Stop()

	for {
		select {
		case <-stop:
			return
		case <-report.C:
			st := p.Stats()
			p.logger.Debug().
				Uint64("rendered", st.Rendered).
				Uint64("empty", st.Empty).
				Uint64("mismatched", st.Mismatched).
				Msg("pipeline stats")
		case <-ticker.C:
			p.pull()
		}
	}
}

func (p *statsPipeline) pull() {
	f, ok := p.src.TryClaim()
	p.mu.Lock()
	defer p.mu.Unlock()
	if !ok {
		p.stats.Empty++
		return
	}
	p.stats.Rendered++
	p.stats.LastSeq = f.Seq
	p.stats.LastFrame = f.Timestamp
	if f.Width != p.format.Width || f.Height != p.format.Height {
		p.stats.Mismatched++
	}
}
