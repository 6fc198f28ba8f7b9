package core

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageValidate(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		ok   bool
	}{
		{"offer", NewOffer("v=0"), true},
		{"answer", NewAnswer("v=0"), true},
		{"ice", NewICE("candidate:1 1 udp 1 127.0.0.1 9 typ host", 0, "0"), true},
		{"offer without sdp", Message{Kind: KindOffer}, false},
		{"ice without candidate", Message{Kind: KindICE, SDPMid: "0"}, false},
		{"unknown kind", Message{Kind: "bye", SDP: "v=0"}, false},
		{"empty", Message{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrMalformedMessage)
			}
		})
	}
}

func TestMessageFromDescription(t *testing.T) {
	msg, err := MessageFromDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})
	require.NoError(t, err)
	assert.Equal(t, NewAnswer("v=0"), msg)
	assert.Equal(t, webrtc.SDPTypeAnswer, msg.Description().Type)

	_, err = MessageFromDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestMessageCandidateConversion(t *testing.T) {
	mid := "video"
	idx := uint16(1)
	ci := webrtc.ICECandidateInit{Candidate: "candidate:1", SDPMid: &mid, SDPMLineIndex: &idx}

	msg := MessageFromCandidate(ci)
	assert.Equal(t, NewICE("candidate:1", 1, "video"), msg)

	back := msg.ICECandidate()
	require.NotNil(t, back.SDPMid)
	require.NotNil(t, back.SDPMLineIndex)
	assert.Equal(t, "video", *back.SDPMid)
	assert.Equal(t, uint16(1), *back.SDPMLineIndex)

	assert.Nil(t, NewICE("candidate:2", 0, "").ICECandidate().SDPMid)
}

func TestNewStreamFormat(t *testing.T) {
	_, err := NewStreamFormat(0, 480, 30)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
	_, err = NewStreamFormat(640, 0, 30)
	assert.ErrorIs(t, err, ErrInvalidDimensions)

	f, err := NewStreamFormat(640, 480, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultFrameRate, f.FrameRate)
	assert.Equal(t, uint64(30*640*480*12), f.Bitrate)

	_, err = NewStreamFormat(640, 480, MaxFrameRate+1)
	assert.ErrorIs(t, err, ErrInvalidFrameRate)
}
