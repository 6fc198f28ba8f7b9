package domain

import "time"

// VideoFrame is one decoded picture in planar I420 layout with an optional
// alpha plane. Producers hand ownership to the bridge on submit and must not
// touch the planes afterwards.
type VideoFrame struct {
	Width  uint32
	Height uint32

	Y, U, V, A []byte

	StrideY, StrideU, StrideV, StrideA int

	Timestamp time.Time
	// Seq is assigned by the producer, monotonically increasing per stream.
	Seq uint64
}

// Clone deep-copies the pixel planes.
func (f VideoFrame) Clone() VideoFrame {
	out := f
	out.Y = cloneBytes(f.Y)
	out.U = cloneBytes(f.U)
	out.V = cloneBytes(f.V)
	out.A = cloneBytes(f.A)
	return out
}

func (f VideoFrame) HasAlpha() bool { return len(f.A) > 0 }

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
