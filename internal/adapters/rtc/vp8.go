package rtc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/VideoCall/internal/domain"
)

var (
	ErrShortFrame    = errors.New("vp8: short frame")
	ErrFrameTooLarge = errors.New("vp8: frame too large")
)

var vp8StartCode = []byte{0x9d, 0x01, 0x2a}

type VP8Header struct {
	KeyFrame bool
	Width    uint32
	Height   uint32
}

// ParseVP8Header reads the uncompressed data chunk of a VP8 frame (RFC 6386
// section 9.1). Dimensions are only present on keyframes.
func ParseVP8Header(data []byte) (VP8Header, error) {
	if len(data) < 3 {
		return VP8Header{}, ErrShortFrame
	}
	h := VP8Header{KeyFrame: data[0]&0x01 == 0}
	if !h.KeyFrame {
		return h, nil
	}
	if len(data) < 10 {
		return VP8Header{}, ErrShortFrame
	}
	if !bytes.Equal(data[3:6], vp8StartCode) {
		return VP8Header{}, errors.New("vp8: bad start code")
	}
	h.Width = uint32(binary.LittleEndian.Uint16(data[6:8]) & 0x3fff)
	h.Height = uint32(binary.LittleEndian.Uint16(data[8:10]) & 0x3fff)
	return h, nil
}

// Frames larger than this on either side are refused; the header allows
// up to 16383.
const maxFrameDimension = 4096

// frameDecoder turns VP8 samples into frames of the current stream size.
// It tracks geometry, not pixels: one black plane set is built per size and
// shared by every frame until a keyframe changes it.
type frameDecoder struct {
	width, height uint32
	seq           uint64
	planes        domain.VideoFrame
}

func (d *frameDecoder) decode(data []byte, now time.Time) (domain.VideoFrame, error) {
	h, err := ParseVP8Header(data)
	if err != nil {
		return domain.VideoFrame{}, err
	}
	if h.KeyFrame {
		if h.Width > maxFrameDimension || h.Height > maxFrameDimension {
			d.width, d.height = 0, 0
			d.planes = domain.VideoFrame{}
			return domain.VideoFrame{}, fmt.Errorf("%w: %dx%d", ErrFrameTooLarge, h.Width, h.Height)
		}
		d.width, d.height = h.Width, h.Height
	}
	if d.width == 0 || d.height == 0 {
		return domain.VideoFrame{}, errors.New("vp8: waiting for keyframe")
	}
	if d.planes.Width != d.width || d.planes.Height != d.height {
		d.planes = blackFrame(d.width, d.height)
	}
	d.seq++
	f := d.planes
	f.Seq = d.seq
	f.Timestamp = now
	return f, nil
}

func blackFrame(w, h uint32) domain.VideoFrame {
	cw, ch := int((w+1)/2), int((h+1)/2)
	return domain.VideoFrame{
		Width:   w,
		Height:  h,
		Y:       bytes.Repeat([]byte{16}, int(w)*int(h)),
		U:       bytes.Repeat([]byte{128}, cw*ch),
		V:       bytes.Repeat([]byte{128}, cw*ch),
		StrideY: int(w),
		StrideU: cw,
		StrideV: cw,
	}
}
