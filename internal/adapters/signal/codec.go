package signal

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
)

// wireMessage is the JSON shape stored in rendezvous mailboxes.
type wireMessage struct {
	Type          string  `json:"type"`
	SDP           string  `json:"sdp,omitempty"`
	Candidate     string  `json:"candidate,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMlineIndex,omitempty"`
	SDPMid        string  `json:"sdpMid,omitempty"`
}

// envelope addresses a message on the WebSocket path.
type envelope struct {
	To      domain.PeerID   `json:"to"`
	Message json.RawMessage `json:"message"`
}

func Encode(msg core.Message) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	w := wireMessage{Type: string(msg.Kind)}
	switch msg.Kind {
	case core.KindOffer, core.KindAnswer:
		w.SDP = msg.SDP
	case core.KindICE:
		idx := msg.SDPMLineIndex
		w.Candidate = msg.Candidate
		w.SDPMLineIndex = &idx
		w.SDPMid = msg.SDPMid
	}
	return json.Marshal(w)
}

func Decode(data []byte) (core.Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return core.Message{}, fmt.Errorf("%w: %v", core.ErrMalformedMessage, err)
	}
	msg := core.Message{Kind: core.MessageKind(w.Type)}
	switch msg.Kind {
	case core.KindOffer, core.KindAnswer:
		msg.SDP = w.SDP
	case core.KindICE:
		msg.Candidate = w.Candidate
		msg.SDPMid = w.SDPMid
		if w.SDPMLineIndex != nil {
			msg.SDPMLineIndex = *w.SDPMLineIndex
		}
	}
	if err := msg.Validate(); err != nil {
		return core.Message{}, err
	}
	return msg, nil
}
