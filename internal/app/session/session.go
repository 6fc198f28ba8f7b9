// Package session wires capture, the connection engine, signaling and the
// presentation surface into one call, and owns its startup and teardown
// order.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/VideoCall/internal/app/signaling"
	"github.com/dkeye/VideoCall/internal/app/video"
	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotStarted     = errors.New("session not started")
	ErrAlreadyStarted = errors.New("session already started")
	ErrSessionClosed  = errors.New("session closed")
)

const (
	LocalStream  = "local"
	RemoteStream = "remote"

	VideoTrackName = "webcam_track"
	AudioTrackName = "microphone_track"
)

type Config struct {
	Endpoint       domain.PeerEndpoint
	LocalCapacity  int
	RemoteCapacity int
	// FrameRate is used for playback pipelines; frames do not carry one.
	FrameRate int
}

type Session struct {
	cfg       Config
	camera    core.VideoSource
	engine    core.ConnectionEngine
	transport core.SignalTransport
	surface   core.Surface
	logger    zerolog.Logger

	local      *video.Bridge
	remote     *video.Bridge
	dispatcher *video.Dispatcher
	coord      *signaling.Coordinator

	// pipelines is only touched on the dispatcher goroutine.
	pipelines map[string]core.Pipeline

	mu       sync.Mutex
	started  bool
	closed   bool
	cancel   context.CancelFunc
	group    *errgroup.Group
	shutdown sync.Once
}

func New(cfg Config, camera core.VideoSource, engine core.ConnectionEngine, transport core.SignalTransport, surface core.Surface) (*Session, error) {
	if err := cfg.Endpoint.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:        cfg,
		camera:     camera,
		engine:     engine,
		transport:  transport,
		surface:    surface,
		dispatcher: video.NewDispatcher(),
		pipelines:  make(map[string]core.Pipeline),
		logger: log.With().
			Str("module", "app.session").
			Str("local", string(cfg.Endpoint.Local)).
			Str("remote", string(cfg.Endpoint.Remote)).
			Logger(),
	}

	var err error
	if s.local, err = video.NewBridge(LocalStream, cfg.LocalCapacity, s.onFirstFrame(LocalStream)); err != nil {
		return nil, fmt.Errorf("local bridge: %w", err)
	}
	if s.remote, err = video.NewBridge(RemoteStream, cfg.RemoteCapacity, s.onFirstFrame(RemoteStream)); err != nil {
		return nil, fmt.Errorf("remote bridge: %w", err)
	}
	s.coord = signaling.NewCoordinator(engine, transport, cfg.Endpoint.Remote)
	return s, nil
}

// Start runs the startup sequence: local tracks, producer callbacks, then
// the coordinator and the transport. Background loops live until Shutdown
// or until ctx is done.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}

	if err := s.engine.AddLocalTrack(webrtc.RTPCodecTypeVideo, VideoTrackName); err != nil {
		return fmt.Errorf("video track: %w", err)
	}
	if err := s.engine.AddLocalTrack(webrtc.RTPCodecTypeAudio, AudioTrackName); err != nil {
		return fmt.Errorf("audio track: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.engine.OnRemoteFrame(s.remote.Submit)
	if err := s.camera.Start(ctx, s.local.Submit); err != nil {
		cancel()
		return fmt.Errorf("capture %s: %w", s.camera.ID(), err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.dispatcher.Run(gctx) })
	g.Go(func() error { return s.coord.Run(gctx) })
	if err := s.transport.Start(gctx); err != nil {
		cancel()
		_ = g.Wait()
		return fmt.Errorf("signal transport: %w", err)
	}

	s.started = true
	s.cancel = cancel
	s.group = g
	s.logger.Info().Str("device", s.camera.ID()).Msg("session started")
	return nil
}

// Call places the call by creating a local offer.
func (s *Session) Call(ctx context.Context) error {
	s.mu.Lock()
	started, closed := s.started, s.closed
	s.mu.Unlock()
	switch {
	case closed:
		return ErrSessionClosed
	case !started:
		return ErrNotStarted
	}
	s.logger.Info().Msg("placing call")
	return s.coord.Offer(ctx)
}

func (s *Session) State(ctx context.Context) (signaling.NegotiationState, error) {
	return s.coord.State(ctx)
}

func (s *Session) BridgeStats() (local, remote video.BridgeStats) {
	return s.local.Stats(), s.remote.Stats()
}

// Wait blocks until the background loops exit.
func (s *Session) Wait() error {
	s.mu.Lock()
	g := s.group
	s.mu.Unlock()
	if g == nil {
		return ErrNotStarted
	}
	return g.Wait()
}

// Shutdown tears the session down: transport polling first, then the
// coordinator and the engine, then capture, and the presentation surface
// last. Later calls are no-ops.
func (s *Session) Shutdown() {
	s.shutdown.Do(func() {
		s.mu.Lock()
		s.closed = true
		cancel, g := s.cancel, s.group
		s.mu.Unlock()

		s.logger.Info().Msg("shutting down")
		s.transport.Stop()
		if cancel != nil {
			cancel()
		}
		if g != nil {
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn().Err(err).Msg("background loop error")
			}
		}
		if err := s.engine.Close(); err != nil {
			s.logger.Error().Err(err).Msg("engine close")
		}
		if err := s.camera.Close(); err != nil {
			s.logger.Error().Err(err).Msg("capture close")
		}
		// The dispatcher is stopped, so the surface has no other caller.
		s.dispatcher.Stop()
		for name, p := range s.pipelines {
			p.Stop()
			delete(s.pipelines, name)
		}
		s.surface.Detach()

		local, remote := s.BridgeStats()
		s.logger.Info().
			Uint64("local_dropped", local.Dropped).
			Uint64("remote_dropped", remote.Dropped).
			Msg("session stopped")
	})
}

func (s *Session) onFirstFrame(stream string) func(domain.VideoFrame) {
	return func(f domain.VideoFrame) {
		if !s.dispatcher.Dispatch(func() { s.startRendering(stream, f) }) {
			s.logger.Debug().Str("stream", stream).Msg("first frame after stop")
		}
	}
}

// startRendering runs on the dispatcher and creates the stream's single
// playback pipeline from the first frame's resolution.
func (s *Session) startRendering(stream string, first domain.VideoFrame) {
	logger := s.logger.With().Str("stream", stream).Logger()
	if _, ok := s.pipelines[stream]; ok {
		return
	}
	src := s.local
	if stream == RemoteStream {
		src = s.remote
	}

	format, err := core.NewStreamFormat(first.Width, first.Height, s.cfg.FrameRate)
	if err != nil {
		logger.Error().Err(err).Uint32("width", first.Width).Uint32("height", first.Height).Msg("cannot render stream")
		return
	}
	p, err := s.surface.CreatePlaybackPipeline(stream, format, src)
	if err != nil {
		logger.Error().Err(err).Msg("create playback pipeline")
		return
	}
	s.pipelines[stream] = p
	p.Play()
	logger.Info().Uint32("width", format.Width).Uint32("height", format.Height).Msg("rendering started")
}
