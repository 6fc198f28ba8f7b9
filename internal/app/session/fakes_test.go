package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// callLog records calls across every fake so tests can check ordering.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	l.calls = append(l.calls, call)
	l.mu.Unlock()
}

func (l *callLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeCamera struct {
	log *callLog

	mu      sync.Mutex
	onFrame func(domain.VideoFrame)
}

func (c *fakeCamera) ID() string { return "fake-cam" }

func (c *fakeCamera) Start(_ context.Context, onFrame func(domain.VideoFrame)) error {
	c.log.add("camera.Start")
	c.mu.Lock()
	c.onFrame = onFrame
	c.mu.Unlock()
	return nil
}

func (c *fakeCamera) emit(f domain.VideoFrame) {
	c.mu.Lock()
	fn := c.onFrame
	c.mu.Unlock()
	fn(f)
}

func (c *fakeCamera) Close() error {
	c.log.add("camera.Close")
	return nil
}

type fakeEngine struct {
	log    *callLog
	events chan core.EngineEvent

	mu      sync.Mutex
	onFrame func(domain.VideoFrame)
}

func newFakeEngine(log *callLog) *fakeEngine {
	return &fakeEngine{log: log, events: make(chan core.EngineEvent, 64)}
}

func (e *fakeEngine) AddLocalTrack(kind webrtc.RTPCodecType, name string) error {
	e.log.add(fmt.Sprintf("engine.AddLocalTrack:%s:%s", kind, name))
	return nil
}

func (e *fakeEngine) OnRemoteFrame(fn func(domain.VideoFrame)) {
	e.log.add("engine.OnRemoteFrame")
	e.mu.Lock()
	e.onFrame = fn
	e.mu.Unlock()
}

func (e *fakeEngine) emit(f domain.VideoFrame) {
	e.mu.Lock()
	fn := e.onFrame
	e.mu.Unlock()
	fn(f)
}

func (e *fakeEngine) CreateOffer() error {
	e.log.add("engine.CreateOffer")
	e.events <- core.LocalDescriptionReady{Description: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "local-offer"}}
	return nil
}

func (e *fakeEngine) CreateAnswer() error {
	e.log.add("engine.CreateAnswer")
	e.events <- core.LocalDescriptionReady{Description: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "local-answer"}}
	return nil
}

func (e *fakeEngine) SetRemoteDescription(webrtc.SessionDescription) error { return nil }

func (e *fakeEngine) AddICECandidate(webrtc.ICECandidateInit) error { return nil }

func (e *fakeEngine) Events() <-chan core.EngineEvent { return e.events }

func (e *fakeEngine) Close() error {
	e.log.add("engine.Close")
	return nil
}

type sentMessage struct {
	To  domain.PeerID
	Msg core.Message
}

type fakeTransport struct {
	log     *callLog
	inbound chan core.Message

	mu   sync.Mutex
	sent []sentMessage
}

func newFakeTransport(log *callLog) *fakeTransport {
	return &fakeTransport{log: log, inbound: make(chan core.Message, 64)}
}

func (t *fakeTransport) Start(context.Context) error {
	t.log.add("transport.Start")
	return nil
}

func (t *fakeTransport) Send(to domain.PeerID, msg core.Message) <-chan error {
	t.mu.Lock()
	t.sent = append(t.sent, sentMessage{To: to, Msg: msg})
	t.mu.Unlock()
	res := make(chan error, 1)
	res <- nil
	close(res)
	return res
}

func (t *fakeTransport) Sent() []sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentMessage(nil), t.sent...)
}

func (t *fakeTransport) Messages() <-chan core.Message { return t.inbound }

func (t *fakeTransport) Stop() { t.log.add("transport.Stop") }

type fakePipeline struct {
	stream string
	format core.StreamFormat
	src    core.SampleSource

	mu      sync.Mutex
	playing bool
	stopped int
}

func (p *fakePipeline) Play() {
	p.mu.Lock()
	p.playing = true
	p.mu.Unlock()
}

func (p *fakePipeline) Stop() {
	p.mu.Lock()
	p.playing = false
	p.stopped++
	p.mu.Unlock()
}

func (p *fakePipeline) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

type fakeSurface struct {
	log *callLog

	mu        sync.Mutex
	pipelines []*fakePipeline
}

func (s *fakeSurface) CreatePlaybackPipeline(stream string, format core.StreamFormat, src core.SampleSource) (core.Pipeline, error) {
	s.log.add("surface.CreatePlaybackPipeline:" + stream)
	p := &fakePipeline{stream: stream, format: format, src: src}
	s.mu.Lock()
	s.pipelines = append(s.pipelines, p)
	s.mu.Unlock()
	return p, nil
}

func (s *fakeSurface) Pipelines() []*fakePipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakePipeline(nil), s.pipelines...)
}

func (s *fakeSurface) Detach() { s.log.add("surface.Detach") }
