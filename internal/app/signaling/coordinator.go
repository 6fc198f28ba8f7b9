// Package signaling drives SDP offer/answer and ICE candidate exchange
// between a connection engine and a signaling transport.
package signaling

import (
	"context"
	"errors"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNegotiationInProgress = errors.New("local description exchange already in progress")
	ErrCoordinatorStopped    = errors.New("coordinator stopped")
)

type request struct {
	fn   func()
	done chan struct{}
}

// Coordinator serializes engine events, inbound messages and host requests
// through Run, so the negotiation state has a single owner.
type Coordinator struct {
	engine    core.ConnectionEngine
	transport core.SignalTransport
	remote    domain.PeerID
	logger    zerolog.Logger

	state   NegotiationState
	pending []webrtc.ICECandidateInit

	requests chan request
	stopped  chan struct{}
}

func NewCoordinator(engine core.ConnectionEngine, transport core.SignalTransport, remote domain.PeerID) *Coordinator {
	return &Coordinator{
		engine:    engine,
		transport: transport,
		remote:    remote,
		logger: log.With().
			Str("module", "app.signaling").
			Str("peer", string(remote)).
			Logger(),
		requests: make(chan request),
		stopped:  make(chan struct{}),
	}
}

// Run is the dispatch loop. It returns when ctx is done and must be called
// once.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.stopped)

	events := c.engine.Events()
	inbound := c.transport.Messages()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Str("phase", c.state.Phase.String()).Msg("coordinator stopped")
			return nil
		case ev, ok := <-events:
			if !ok {
				c.logger.Info().Msg("engine event stream closed")
				events = nil
				continue
			}
			c.handleEngineEvent(ev)
		case msg, ok := <-inbound:
			if !ok {
				c.logger.Info().Msg("transport message stream closed")
				inbound = nil
				continue
			}
			c.handleMessage(msg)
		case r := <-c.requests:
			r.fn()
			close(r.done)
		}
	}
}

// Offer asks the engine for a local offer. The offer is sent once the engine
// reports it ready.
func (c *Coordinator) Offer(ctx context.Context) error {
	var err error
	if e := c.do(ctx, func() { err = c.startOffer() }); e != nil {
		return e
	}
	return err
}

// State returns a snapshot of the negotiation state.
func (c *Coordinator) State(ctx context.Context) (NegotiationState, error) {
	var s NegotiationState
	err := c.do(ctx, func() { s = c.state })
	return s, err
}

func (c *Coordinator) do(ctx context.Context, fn func()) error {
	r := request{fn: fn, done: make(chan struct{})}
	select {
	case c.requests <- r:
	case <-c.stopped:
		return ErrCoordinatorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-r.done
	return nil
}

func (c *Coordinator) startOffer() error {
	if c.state.LocalPending {
		return ErrNegotiationInProgress
	}
	c.state.LocalPending = true
	if c.state.Role == RoleNone {
		c.state.Role = RoleOfferer
	}
	if err := c.engine.CreateOffer(); err != nil {
		c.state.LocalPending = false
		c.logger.Error().Err(err).Msg("create offer")
		return err
	}
	c.logger.Info().Msg("offer requested")
	return nil
}

func (c *Coordinator) handleMessage(msg core.Message) {
	if err := msg.Validate(); err != nil {
		c.logger.Warn().Err(err).Str("type", string(msg.Kind)).Msg("dropping inbound message")
		return
	}

	switch msg.Kind {
	case core.KindOffer:
		c.logger.Info().Msg("offer received")
		if c.state.Role == RoleNone {
			c.state.Role = RoleAnswerer
		}
		if err := c.applyRemote(msg.Description()); err != nil {
			return
		}
		c.state.LocalPending = true
		if err := c.engine.CreateAnswer(); err != nil {
			c.state.LocalPending = false
			c.logger.Error().Err(err).Msg("create answer")
		}
	case core.KindAnswer:
		c.logger.Info().Msg("answer received")
		_ = c.applyRemote(msg.Description())
	case core.KindICE:
		c.addCandidate(msg.ICECandidate())
	}
}

// applyRemote forwards the description without checking the local role; the
// engine rejects descriptions that do not fit its signaling state.
func (c *Coordinator) applyRemote(sd webrtc.SessionDescription) error {
	if err := c.engine.SetRemoteDescription(sd); err != nil {
		c.logger.Error().Err(err).Str("type", sd.Type.String()).Msg("set remote description")
		return err
	}
	c.state.RemoteSet = true
	if c.state.Phase == PhaseIdle {
		c.state.Phase = PhaseNegotiating
	}
	c.flushCandidates()
	return nil
}

func (c *Coordinator) addCandidate(ci webrtc.ICECandidateInit) {
	if !c.state.RemoteSet {
		c.pending = append(c.pending, ci)
		c.state.PendingCandidates = len(c.pending)
		c.logger.Debug().Int("pending", len(c.pending)).Msg("candidate held until remote description")
		return
	}
	if err := c.engine.AddICECandidate(ci); err != nil {
		c.logger.Error().Err(err).Msg("add ice candidate")
	}
}

func (c *Coordinator) flushCandidates() {
	if len(c.pending) == 0 {
		return
	}
	pending := c.pending
	c.pending = nil
	c.state.PendingCandidates = 0
	c.logger.Debug().Int("count", len(pending)).Msg("flushing held candidates")
	for _, ci := range pending {
		if err := c.engine.AddICECandidate(ci); err != nil {
			c.logger.Error().Err(err).Msg("add ice candidate")
		}
	}
}

func (c *Coordinator) handleEngineEvent(ev core.EngineEvent) {
	switch e := ev.(type) {
	case core.LocalDescriptionReady:
		msg, err := core.MessageFromDescription(e.Description)
		if err != nil {
			c.logger.Error().Err(err).Msg("local description")
			return
		}
		c.state.LocalPending = false
		c.state.LocalSet = true
		if msg.Kind == core.KindOffer {
			c.state.Role = RoleOfferer
		} else {
			c.state.Role = RoleAnswerer
		}
		if c.state.Phase == PhaseIdle {
			c.state.Phase = PhaseNegotiating
		}
		c.logger.Info().Str("type", string(msg.Kind)).Str("role", c.state.Role.String()).Msg("sending local description")
		c.send(msg)
	case core.LocalCandidateReady:
		c.send(core.MessageFromCandidate(e.Candidate))
	case core.RemoteTrackAdded:
		c.logger.Info().
			Str("kind", e.Kind.String()).
			Str("track_id", e.TrackID).
			Str("stream_id", e.StreamID).
			Msg("remote track added")
	case core.ConnectionStateChanged:
		c.logger.Info().Str("peer_connection_state", e.State.String()).Msg("peer state")
		if e.State == webrtc.PeerConnectionStateConnected {
			c.state.Phase = PhaseConnected
			c.logger.Info().Msg("connected")
		}
	case core.ICEStateChanged:
		c.logger.Info().Str("ice_state", e.State.String()).Msg("ICE state")
	default:
		c.logger.Warn().Msgf("unhandled engine event %T", ev)
	}
}

// send does not wait for delivery; a failed delivery is only logged.
func (c *Coordinator) send(msg core.Message) {
	res := c.transport.Send(c.remote, msg)
	go func() {
		if err := <-res; err != nil {
			c.logger.Error().Err(err).Str("type", string(msg.Kind)).Msg("send failed")
		}
	}()
}
