package signaling

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

var errNoRemoteDescription = errors.New("no remote description")

// fakeEngine records every call. Like pion, it refuses candidates before a
// remote description is set.
type fakeEngine struct {
	mu        sync.Mutex
	calls     []string
	remoteSet bool
	setErr    error

	events chan core.EngineEvent
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{events: make(chan core.EngineEvent, 64)}
}

func (e *fakeEngine) record(call string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
}

func (e *fakeEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *fakeEngine) AddLocalTrack(kind webrtc.RTPCodecType, name string) error {
	e.record("AddLocalTrack:" + name)
	return nil
}

func (e *fakeEngine) OnRemoteFrame(func(domain.VideoFrame)) {}

func (e *fakeEngine) CreateOffer() error {
	e.record("CreateOffer")
	e.events <- core.LocalDescriptionReady{Description: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "local-offer"}}
	return nil
}

func (e *fakeEngine) CreateAnswer() error {
	e.record("CreateAnswer")
	e.events <- core.LocalDescriptionReady{Description: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "local-answer"}}
	return nil
}

func (e *fakeEngine) SetRemoteDescription(sd webrtc.SessionDescription) error {
	e.record("SetRemoteDescription:" + sd.SDP)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.setErr != nil {
		return e.setErr
	}
	e.remoteSet = true
	return nil
}

func (e *fakeEngine) AddICECandidate(ci webrtc.ICECandidateInit) error {
	e.record("AddICECandidate:" + ci.Candidate)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.remoteSet {
		return errNoRemoteDescription
	}
	return nil
}

func (e *fakeEngine) Events() <-chan core.EngineEvent { return e.events }

func (e *fakeEngine) Close() error { return nil }

type sentMessage struct {
	To  domain.PeerID
	Msg core.Message
}

type fakeTransport struct {
	mu      sync.Mutex
	sent    []sentMessage
	sendErr error

	inbound chan core.Message
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbound: make(chan core.Message, 64)}
}

func (t *fakeTransport) Start(context.Context) error { return nil }

func (t *fakeTransport) Send(to domain.PeerID, msg core.Message) <-chan error {
	t.mu.Lock()
	t.sent = append(t.sent, sentMessage{To: to, Msg: msg})
	err := t.sendErr
	t.mu.Unlock()

	res := make(chan error, 1)
	res <- err
	close(res)
	return res
}

func (t *fakeTransport) Sent() []sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentMessage(nil), t.sent...)
}

func (t *fakeTransport) Messages() <-chan core.Message { return t.inbound }

func (t *fakeTransport) Stop() {}
