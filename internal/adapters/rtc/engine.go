package rtc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrUnsupportedKind = errors.New("unsupported track kind")

const (
	streamID = "videocall"
	// samples older than this many packets are dropped by the sample builder
	maxLate = 128
)

// Engine is the pion implementation of core.ConnectionEngine.
type Engine struct {
	pc     *webrtc.PeerConnection
	logger zerolog.Logger
	events *eventQueue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	onFrame func(domain.VideoFrame)
	tracks  map[string]*webrtc.TrackLocalStaticSample

	closeOnce sync.Once
	closeErr  error
}

var _ core.ConnectionEngine = (*Engine)(nil)

func DefaultWebRTCConfig() webrtc.Configuration {
	return WebRTCConfig([]string{"stun:stun.l.google.com:19302"})
}

func WebRTCConfig(iceServers []string) webrtc.Configuration {
	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return cfg
}

type Option func(*options)

type options struct {
	pionLevel zerolog.Level
}

// WithPionLogLevel sets the minimum level of pion's internal logs.
func WithPionLogLevel(level zerolog.Level) Option {
	return func(o *options) { o.pionLevel = level }
}

// newAPI mirrors webrtc.NewPeerConnection's defaults with pion logging
// routed through zerolog.
func newAPI(o options) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, err
	}
	se := webrtc.SettingEngine{LoggerFactory: NewLoggerFactory(o.pionLevel)}
	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	), nil
}

func NewEngine(cfg webrtc.Configuration, opts ...Option) (*Engine, error) {
	o := options{pionLevel: zerolog.WarnLevel}
	for _, opt := range opts {
		opt(&o)
	}
	api, err := newAPI(o)
	if err != nil {
		return nil, fmt.Errorf("webrtc api: %w", err)
	}
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		pc:     pc,
		logger: log.With().Str("module", "adapters.rtc").Logger(),
		events: newEventQueue(),
		ctx:    ctx,
		cancel: cancel,
		tracks: make(map[string]*webrtc.TrackLocalStaticSample),
	}
	e.bind()
	return e, nil
}

// bind converts pion callbacks into queued events.
func (e *Engine) bind() {
	e.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		e.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
		e.events.push(core.ICEStateChanged{State: s})
	})

	e.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		e.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		e.events.push(core.ConnectionStateChanged{State: s})
	})

	e.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			e.logger.Debug().Msg("ICE gathering complete")
			return
		}
		e.events.push(core.LocalCandidateReady{Candidate: cand.ToJSON()})
	})

	e.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		e.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Str("codec", track.Codec().MimeType).
			Msg("OnTrack received")
		e.events.push(core.RemoteTrackAdded{
			Kind:     track.Kind(),
			TrackID:  track.ID(),
			StreamID: track.StreamID(),
		})

		e.goTracked(func() {
			if track.Kind() == webrtc.RTPCodecTypeVideo &&
				strings.EqualFold(track.Codec().MimeType, webrtc.MimeTypeVP8) {
				e.pumpVideo(track)
				return
			}
			e.drain(track)
		})
	})
}

// goTracked runs fn on a goroutine that Close waits for. It reports false,
// without running fn, once Close has begun.
func (e *Engine) goTracked(fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
	return true
}

func (e *Engine) AddLocalTrack(kind webrtc.RTPCodecType, name string) error {
	var capability webrtc.RTPCodecCapability
	switch kind {
	case webrtc.RTPCodecTypeVideo:
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	case webrtc.RTPCodecTypeAudio:
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}

	track, err := webrtc.NewTrackLocalStaticSample(capability, name, streamID)
	if err != nil {
		return err
	}
	tr, err := e.pc.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		return fmt.Errorf("add %s track: %w", name, err)
	}

	e.mu.Lock()
	e.tracks[name] = track
	e.mu.Unlock()

	sender := tr.Sender()
	e.goTracked(func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	})

	e.logger.Info().Str("track", name).Str("kind", kind.String()).Msg("local track added")
	return nil
}

// LocalTrack returns the sample sink of a track added with AddLocalTrack,
// for an encoder to write into.
func (e *Engine) LocalTrack(name string) (*webrtc.TrackLocalStaticSample, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tracks[name]
	return t, ok
}

func (e *Engine) OnRemoteFrame(fn func(domain.VideoFrame)) {
	e.mu.Lock()
	e.onFrame = fn
	e.mu.Unlock()
}

func (e *Engine) CreateOffer() error {
	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	return e.setLocal(offer)
}

func (e *Engine) CreateAnswer() error {
	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	return e.setLocal(answer)
}

// setLocal applies sd and publishes it at once; candidates trickle after.
func (e *Engine) setLocal(sd webrtc.SessionDescription) error {
	if err := e.pc.SetLocalDescription(sd); err != nil {
		return err
	}
	e.logger.Info().Str("type", sd.Type.String()).Msg("local description set")
	e.events.push(core.LocalDescriptionReady{Description: sd})
	return nil
}

func (e *Engine) SetRemoteDescription(sd webrtc.SessionDescription) error {
	if err := e.pc.SetRemoteDescription(sd); err != nil {
		return err
	}
	e.logger.Info().Str("type", sd.Type.String()).Msg("remote description set")
	return nil
}

func (e *Engine) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return e.pc.AddICECandidate(ci)
}

func (e *Engine) Events() <-chan core.EngineEvent { return e.events.out }

func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.cancel()
		e.mu.Unlock()
		if err := e.pc.Close(); err != nil {
			e.logger.Error().Err(err).Msg("close error")
			e.closeErr = err
		} else {
			e.logger.Info().Msg("closed")
		}
		e.wg.Wait()
		e.events.close()
	})
	return e.closeErr
}

// pumpVideo reassembles VP8 frames from RTP and hands them to the remote
// frame callback until the track ends.
func (e *Engine) pumpVideo(track *webrtc.TrackRemote) {
	logger := e.logger.With().Str("track_id", track.ID()).Logger()
	sb := samplebuilder.New(maxLate, &codecs.VP8Packet{}, track.Codec().ClockRate)
	var dec frameDecoder

	logger.Info().Msg("starting remote video pump")
	for {
		if e.ctx.Err() != nil {
			return
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("remote video ended")
			return
		}
		sb.Push(pkt)
		for s := sb.Pop(); s != nil; s = sb.Pop() {
			frame, err := dec.decode(s.Data, time.Now())
			if err != nil {
				logger.Debug().Err(err).Msg("skipping sample")
				continue
			}
			e.mu.Lock()
			fn := e.onFrame
			e.mu.Unlock()
			if fn != nil {
				fn(frame)
			}
		}
	}
}

func (e *Engine) drain(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}
