package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/VideoCall/internal/domain"
)

var (
	ErrInvalidDimensions = errors.New("invalid zero dimension for video")
	ErrInvalidFrameRate  = errors.New("frame rate out of range")
)

const (
	// DefaultFrameRate is assumed for playback when the source does not report one.
	DefaultFrameRate = 30
	MaxFrameRate     = 240
)

// VideoSource is an opened capture device.
type VideoSource interface {
	ID() string
	// Start delivers frames to onFrame from the device's own goroutine until
	// ctx is done or Close is called. onFrame must not block.
	Start(ctx context.Context, onFrame func(domain.VideoFrame)) error
	Close() error
}

// SampleSource is the pull side of a stream, served by a frame bridge.
type SampleSource interface {
	TryClaim() (domain.VideoFrame, bool)
}

// StreamFormat describes an uncompressed I420 playback stream.
type StreamFormat struct {
	Width     uint32
	Height    uint32
	FrameRate int
	Bitrate   uint64
}

func NewStreamFormat(width, height uint32, frameRate int) (StreamFormat, error) {
	if width == 0 || height == 0 {
		return StreamFormat{}, ErrInvalidDimensions
	}
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	if frameRate > MaxFrameRate {
		return StreamFormat{}, fmt.Errorf("%w: %d fps", ErrInvalidFrameRate, frameRate)
	}
	return StreamFormat{
		Width:     width,
		Height:    height,
		FrameRate: frameRate,
		// 12 bits per pixel for I420.
		Bitrate: uint64(frameRate) * uint64(width) * uint64(height) * 12,
	}, nil
}

// Surface is the presentation layer. All calls are made from the
// presentation dispatcher.
type Surface interface {
	// CreatePlaybackPipeline builds a pipeline that pulls samples from src.
	CreatePlaybackPipeline(stream string, format StreamFormat, src SampleSource) (Pipeline, error)
	// Detach stops every pipeline and releases the render targets.
	Detach()
}

type Pipeline interface {
	Play()
	Stop()
}
