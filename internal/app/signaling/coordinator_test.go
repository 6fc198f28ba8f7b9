package signaling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator() (*Coordinator, *fakeEngine, *fakeTransport) {
	e := newFakeEngine()
	tr := newFakeTransport()
	return NewCoordinator(e, tr, "other"), e, tr
}

// drainEvents feeds every event the fake engine raised back into c.
func drainEvents(c *Coordinator, e *fakeEngine) {
	for {
		select {
		case ev := <-e.events:
			c.handleEngineEvent(ev)
		default:
			return
		}
	}
}

func count(calls []string, prefix string) int {
	n := 0
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func TestInboundOfferProducesOneAnswer(t *testing.T) {
	c, e, tr := newTestCoordinator()

	c.handleMessage(core.NewOffer("v=0 remote-offer"))
	drainEvents(c, e)

	assert.Equal(t, []string{"SetRemoteDescription:v=0 remote-offer", "CreateAnswer"}, e.Calls())

	sent := tr.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "other", string(sent[0].To))
	assert.Equal(t, core.NewAnswer("local-answer"), sent[0].Msg)

	assert.Equal(t, RoleAnswerer, c.state.Role)
	assert.Equal(t, PhaseNegotiating, c.state.Phase)
	assert.False(t, c.state.LocalPending)
}

func TestInboundAnswerWithoutLocalOfferStillApplied(t *testing.T) {
	c, e, tr := newTestCoordinator()

	c.handleMessage(core.NewAnswer("v=0 remote-answer"))
	drainEvents(c, e)

	assert.Equal(t, []string{"SetRemoteDescription:v=0 remote-answer"}, e.Calls())
	assert.Empty(t, tr.Sent())
}

func TestRejectedOfferDoesNotCreateAnswer(t *testing.T) {
	c, e, tr := newTestCoordinator()
	e.setErr = errors.New("invalid state")

	c.handleMessage(core.NewOffer("v=0"))
	drainEvents(c, e)

	assert.Equal(t, []string{"SetRemoteDescription:v=0"}, e.Calls())
	assert.Empty(t, tr.Sent())
	assert.False(t, c.state.RemoteSet)
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	c, e, tr := newTestCoordinator()

	c.handleMessage(core.Message{Kind: "bye"})
	c.handleMessage(core.Message{Kind: core.KindOffer})
	c.handleMessage(core.Message{Kind: core.KindICE})

	assert.Empty(t, e.Calls())
	assert.Empty(t, tr.Sent())
	assert.Equal(t, NegotiationState{}, c.state)
}

func permutations(items []core.Message) [][]core.Message {
	if len(items) <= 1 {
		return [][]core.Message{append([]core.Message(nil), items...)}
	}
	var out [][]core.Message
	for i := range items {
		rest := make([]core.Message, 0, len(items)-1)
		rest = append(rest, items[:i]...)
		rest = append(rest, items[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]core.Message{items[i]}, p...))
		}
	}
	return out
}

func TestCandidatesAppliedOnceInAnyOrder(t *testing.T) {
	msgs := []core.Message{
		core.NewOffer("v=0"),
		core.NewICE("cand-1", 0, "0"),
		core.NewICE("cand-2", 0, "0"),
		core.NewICE("cand-3", 1, "1"),
	}

	for i, order := range permutations(msgs) {
		t.Run(fmt.Sprintf("order-%d", i), func(t *testing.T) {
			c, e, tr := newTestCoordinator()
			for _, m := range order {
				c.handleMessage(m)
				drainEvents(c, e)
			}

			calls := e.Calls()
			for _, cand := range []string{"cand-1", "cand-2", "cand-3"} {
				assert.Equal(t, 1, count(calls, "AddICECandidate:"+cand), cand)
			}
			// Every candidate reaches the engine after the remote description.
			require.Equal(t, "SetRemoteDescription:v=0", calls[0])
			assert.Equal(t, 1, count(calls, "CreateAnswer"))
			assert.Zero(t, c.state.PendingCandidates)

			sent := tr.Sent()
			require.Len(t, sent, 1)
			assert.Equal(t, core.KindAnswer, sent[0].Msg.Kind)
		})
	}
}

func TestCandidatesHeldWithoutRemoteDescription(t *testing.T) {
	c, e, _ := newTestCoordinator()

	c.handleMessage(core.NewICE("early", 0, "0"))
	assert.Empty(t, e.Calls())
	assert.Equal(t, 1, c.state.PendingCandidates)

	c.handleMessage(core.NewAnswer("v=0"))
	assert.Equal(t, []string{"SetRemoteDescription:v=0", "AddICECandidate:early"}, e.Calls())
}

func TestLocalCandidatesSentIndividually(t *testing.T) {
	c, _, tr := newTestCoordinator()
	mid := "0"
	idx := uint16(0)
	for i := 0; i < 3; i++ {
		c.handleEngineEvent(core.LocalCandidateReady{Candidate: webrtc.ICECandidateInit{
			Candidate:     "same-candidate",
			SDPMid:        &mid,
			SDPMLineIndex: &idx,
		}})
	}

	sent := tr.Sent()
	require.Len(t, sent, 3)
	for _, s := range sent {
		assert.Equal(t, core.NewICE("same-candidate", 0, "0"), s.Msg)
	}
}

func TestOfferRequestSendsOffer(t *testing.T) {
	c, e, tr := newTestCoordinator()

	require.NoError(t, c.startOffer())
	assert.ErrorIs(t, c.startOffer(), ErrNegotiationInProgress)

	drainEvents(c, e)
	assert.Equal(t, []string{"CreateOffer"}, e.Calls())

	sent := tr.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, core.NewOffer("local-offer"), sent[0].Msg)
	assert.Equal(t, RoleOfferer, c.state.Role)
	assert.Equal(t, PhaseNegotiating, c.state.Phase)

	// The exchange is complete once the local offer went out.
	require.NoError(t, c.startOffer())
}

func TestConnectedStateIsObserved(t *testing.T) {
	c, _, tr := newTestCoordinator()
	c.handleEngineEvent(core.ICEStateChanged{State: webrtc.ICEConnectionStateChecking})
	c.handleEngineEvent(core.ConnectionStateChanged{State: webrtc.PeerConnectionStateConnected})
	c.handleEngineEvent(core.RemoteTrackAdded{Kind: webrtc.RTPCodecTypeVideo, TrackID: "t"})

	assert.Equal(t, PhaseConnected, c.state.Phase)
	assert.Empty(t, tr.Sent())
}

func TestSendFailureIsOnlyLogged(t *testing.T) {
	c, e, tr := newTestCoordinator()
	tr.sendErr = errors.New("mailbox unreachable")

	c.handleMessage(core.NewOffer("v=0"))
	drainEvents(c, e)

	assert.Len(t, tr.Sent(), 1)
	assert.Equal(t, RoleAnswerer, c.state.Role)
}

func TestRunLoopAnswersInboundOffer(t *testing.T) {
	c, e, tr := newTestCoordinator()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	tr.inbound <- core.NewOffer("v=0 loop")
	tr.inbound <- core.NewICE("cand-1", 0, "0")

	require.Eventually(t, func() bool { return len(tr.Sent()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, core.NewAnswer("local-answer"), tr.Sent()[0].Msg)

	require.Eventually(t, func() bool {
		return count(e.Calls(), "AddICECandidate:cand-1") == 1
	}, 2*time.Second, 5*time.Millisecond)

	st, err := c.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, RoleAnswerer, st.Role)
	assert.True(t, st.RemoteSet)
	assert.True(t, st.LocalSet)

	cancel()
	require.NoError(t, <-done)

	assert.ErrorIs(t, c.Offer(context.Background()), ErrCoordinatorStopped)
}

func TestRunLoopSurvivesClosedStreams(t *testing.T) {
	c, e, tr := newTestCoordinator()
	close(tr.inbound)
	close(e.events)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	st, err := c.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, st.Phase)

	cancel()
	require.NoError(t, <-done)
}
