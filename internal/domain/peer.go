// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const MaxPeerIDLen = 36

var (
	ErrPeerIDTooLong = errors.New("peer id too long")
	ErrPeerIDEmpty   = errors.New("peer id empty")
)

// PeerID names a mailbox on the rendezvous service.
type PeerID string

// NewPeerID returns a random id, used when no local id is configured.
func NewPeerID() PeerID {
	return PeerID(uuid.NewString())
}

func ValidatePeerID(id PeerID) error {
	if len(id) == 0 {
		return ErrPeerIDEmpty
	}
	if len(id) > MaxPeerIDLen {
		return ErrPeerIDTooLong
	}
	return nil
}

// PeerEndpoint identifies which mailbox to poll (Local) and which to send
// to (Remote). It does not change for the lifetime of a session.
type PeerEndpoint struct {
	Local  PeerID `json:"local"`
	Remote PeerID `json:"remote"`
}

func (e PeerEndpoint) Validate() error {
	if err := ValidatePeerID(e.Local); err != nil {
		return fmt.Errorf("local peer: %w", err)
	}
	if err := ValidatePeerID(e.Remote); err != nil {
		return fmt.Errorf("remote peer: %w", err)
	}
	return nil
}
