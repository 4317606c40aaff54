package capture

import (
	"context"
	"errors"
)

// Error definitions for capture startup failures. These are the only fatal
// conditions in the pipeline: without a source stream nothing downstream can
// run.
var (
	ErrPermissionDenied  = errors.New("audio input permission denied")
	ErrDeviceUnavailable = errors.New("no audio input device available")
)

// StreamConfig describes the stream requested from a Source.
type StreamConfig struct {
	SampleRate int
	Channels   int
	FrameSize  int

	// Processing hints honored by sources that control real hardware.
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// Stream yields fixed-size float32 frames from an open audio input.
type Stream interface {
	// ReadFrame blocks until the next frame is available. Each sample is
	// in [-1, 1]. Returns io.EOF when the input is exhausted.
	ReadFrame(ctx context.Context) ([]float32, error)

	// Close releases the underlying input. Safe to call more than once.
	Close() error
}

// Source abstracts an audio input backend so the engine stays
// hardware-independent. Implementations report ErrPermissionDenied or
// ErrDeviceUnavailable from Open when the input cannot be acquired.
type Source interface {
	Open(ctx context.Context, cfg StreamConfig) (Stream, error)
}
