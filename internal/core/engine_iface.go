package core

import (
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// ConnectionEngine is the media/transport engine behind one peer connection.
// Results of CreateOffer and CreateAnswer arrive later as
// LocalDescriptionReady events.
type ConnectionEngine interface {
	// AddLocalTrack creates a local track of the given kind and attaches it
	// to a newly created sendrecv transceiver.
	AddLocalTrack(kind webrtc.RTPCodecType, name string) error
	// OnRemoteFrame registers the producer callback for decoded remote video.
	OnRemoteFrame(fn func(domain.VideoFrame))

	CreateOffer() error
	CreateAnswer() error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error

	// Events is closed after Close.
	Events() <-chan EngineEvent
	Close() error
}

// EngineEvent is one of the event types below.
type EngineEvent interface {
	engineEvent()
}

type LocalDescriptionReady struct {
	Description webrtc.SessionDescription
}

type LocalCandidateReady struct {
	Candidate webrtc.ICECandidateInit
}

type RemoteTrackAdded struct {
	Kind     webrtc.RTPCodecType
	TrackID  string
	StreamID string
}

type ConnectionStateChanged struct {
	State webrtc.PeerConnectionState
}

type ICEStateChanged struct {
	State webrtc.ICEConnectionState
}

func (LocalDescriptionReady) engineEvent()  {}
func (LocalCandidateReady) engineEvent()    {}
func (RemoteTrackAdded) engineEvent()       {}
func (ConnectionStateChanged) engineEvent() {}
func (ICEStateChanged) engineEvent()        {}
