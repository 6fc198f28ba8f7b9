package rtc

import (
	"strings"
	"testing"
	"time"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	require.NoError(t, e.AddLocalTrack(webrtc.RTPCodecTypeVideo, "webcam_track"))
	require.NoError(t, e.AddLocalTrack(webrtc.RTPCodecTypeAudio, "microphone_track"))
	return e
}

func waitDescription(t *testing.T, e *Engine) webrtc.SessionDescription {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-e.Events():
			require.True(t, ok, "events closed")
			if d, ok := ev.(core.LocalDescriptionReady); ok {
				return d.Description
			}
		case <-timeout:
			t.Fatal("no local description")
		}
	}
}

func TestCreateOfferCarriesTracks(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateOffer())

	offer := waitDescription(t, e)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)
	assert.Contains(t, offer.SDP, "m=video")
	assert.Contains(t, offer.SDP, "m=audio")
	assert.Contains(t, strings.ToUpper(offer.SDP), "VP8")

	_, ok := e.LocalTrack("webcam_track")
	assert.True(t, ok)
}

func TestOfferAnswerRoundTrip(t *testing.T) {
	caller := newTestEngine(t)
	callee := newTestEngine(t)

	require.NoError(t, caller.CreateOffer())
	offer := waitDescription(t, caller)

	require.NoError(t, callee.SetRemoteDescription(offer))
	require.NoError(t, callee.CreateAnswer())
	answer := waitDescription(t, callee)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	assert.Contains(t, answer.SDP, "m=video")

	require.NoError(t, caller.SetRemoteDescription(answer))
}

func TestCandidateBeforeRemoteDescriptionFails(t *testing.T) {
	e := newTestEngine(t)
	err := e.AddICECandidate(webrtc.ICECandidateInit{
		Candidate: "candidate:1 1 udp 2130706431 192.0.2.1 5000 typ host",
	})
	assert.Error(t, err)
}

func TestAddLocalTrackRejectsUnknownKind(t *testing.T) {
	e, err := NewEngine(webrtc.Configuration{})
	require.NoError(t, err)
	defer e.Close()
	assert.ErrorIs(t, e.AddLocalTrack(webrtc.RTPCodecType(0), "x"), ErrUnsupportedKind)
}

func TestCloseEndsEvents(t *testing.T) {
	e, err := NewEngine(webrtc.Configuration{})
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	select {
	case _, ok := <-e.Events():
		for ok {
			_, ok = <-e.Events()
		}
	case <-time.After(time.Second):
		t.Fatal("events not closed")
	}
}

func TestWebRTCConfig(t *testing.T) {
	assert.Empty(t, WebRTCConfig(nil).ICEServers)
	cfg := DefaultWebRTCConfig()
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers[0].URLs)
}

func TestCloseWaitsForTrackedGoroutines(t *testing.T) {
	e, err := NewEngine(webrtc.Configuration{})
	require.NoError(t, err)

	release := make(chan struct{})
	finished := make(chan struct{})
	require.True(t, e.goTracked(func() {
		<-release
		close(finished)
	}))

	closed := make(chan struct{})
	go func() {
		_ = e.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned before tracked goroutine finished")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-closed
	select {
	case <-finished:
	default:
		t.Fatal("tracked goroutine did not finish before Close returned")
	}

	ran := false
	assert.False(t, e.goTracked(func() { ran = true }))
	assert.False(t, ran)
}
