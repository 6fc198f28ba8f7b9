package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePeerID(t *testing.T) {
	assert.ErrorIs(t, ValidatePeerID(""), ErrPeerIDEmpty)
	assert.ErrorIs(t, ValidatePeerID(PeerID(strings.Repeat("a", MaxPeerIDLen+1))), ErrPeerIDTooLong)
	assert.NoError(t, ValidatePeerID("App1"))
	assert.NoError(t, ValidatePeerID(NewPeerID()))
}

func TestPeerEndpointValidate(t *testing.T) {
	err := PeerEndpoint{Local: "App1"}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPeerIDEmpty)
	assert.Contains(t, err.Error(), "remote peer")

	assert.NoError(t, PeerEndpoint{Local: "App1", Remote: "other"}.Validate())
}

func TestVideoFrameCloneIsDeep(t *testing.T) {
	f := VideoFrame{Width: 2, Height: 2, Y: []byte{1, 2, 3, 4}, U: []byte{5}, V: []byte{6}}
	c := f.Clone()
	c.Y[0] = 9

	assert.Equal(t, byte(1), f.Y[0])
	assert.Nil(t, c.A)
	assert.False(t, c.HasAlpha())
}
