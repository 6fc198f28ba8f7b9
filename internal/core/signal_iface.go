package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

var ErrMalformedMessage = errors.New("malformed signaling message")

type MessageKind string

const (
	KindOffer  MessageKind = "offer"
	KindAnswer MessageKind = "answer"
	KindICE    MessageKind = "ice"
)

// Message is a signaling message: an SDP offer, an SDP answer or an ICE
// candidate. Only the fields of its Kind are meaningful.
type Message struct {
	Kind MessageKind

	SDP string

	Candidate     string
	SDPMLineIndex uint16
	SDPMid        string
}

func NewOffer(sdp string) Message  { return Message{Kind: KindOffer, SDP: sdp} }
func NewAnswer(sdp string) Message { return Message{Kind: KindAnswer, SDP: sdp} }

func NewICE(candidate string, mlineIndex uint16, mid string) Message {
	return Message{Kind: KindICE, Candidate: candidate, SDPMLineIndex: mlineIndex, SDPMid: mid}
}

// MessageFromDescription wraps a local description as an offer or answer.
func MessageFromDescription(sd webrtc.SessionDescription) (Message, error) {
	switch sd.Type {
	case webrtc.SDPTypeOffer:
		return NewOffer(sd.SDP), nil
	case webrtc.SDPTypeAnswer:
		return NewAnswer(sd.SDP), nil
	default:
		return Message{}, fmt.Errorf("%w: unsupported sdp type %q", ErrMalformedMessage, sd.Type.String())
	}
}

func MessageFromCandidate(ci webrtc.ICECandidateInit) Message {
	msg := Message{Kind: KindICE, Candidate: ci.Candidate}
	if ci.SDPMLineIndex != nil {
		msg.SDPMLineIndex = *ci.SDPMLineIndex
	}
	if ci.SDPMid != nil {
		msg.SDPMid = *ci.SDPMid
	}
	return msg
}

func (m Message) Validate() error {
	switch m.Kind {
	case KindOffer, KindAnswer:
		if m.SDP == "" {
			return fmt.Errorf("%w: %s without sdp", ErrMalformedMessage, m.Kind)
		}
	case KindICE:
		if m.Candidate == "" {
			return fmt.Errorf("%w: ice without candidate", ErrMalformedMessage)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, m.Kind)
	}
	return nil
}

func (m Message) Description() webrtc.SessionDescription {
	t := webrtc.SDPTypeOffer
	if m.Kind == KindAnswer {
		t = webrtc.SDPTypeAnswer
	}
	return webrtc.SessionDescription{Type: t, SDP: m.SDP}
}

func (m Message) ICECandidate() webrtc.ICECandidateInit {
	idx := m.SDPMLineIndex
	ci := webrtc.ICECandidateInit{
		Candidate:     m.Candidate,
		SDPMLineIndex: &idx,
	}
	if m.SDPMid != "" {
		mid := m.SDPMid
		ci.SDPMid = &mid
	}
	return ci
}

// SignalTransport abstracts the out-of-band channel to the remote peer.
// Owned by the adapter; the owner must Stop() it.
type SignalTransport interface {
	Start(ctx context.Context) error
	// Send queues msg for delivery to peer. The returned channel yields the
	// final delivery result once and is then closed.
	Send(to domain.PeerID, msg Message) <-chan error
	// Messages yields inbound messages in arrival order. It is closed once
	// Stop has returned.
	Messages() <-chan Message
	// Stop is idempotent. No message is delivered after it returns.
	Stop()
}
