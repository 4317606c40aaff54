package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/voiceguard-app/voiceguard/pkg/audio"
)

// WAVFileSource replays a 16-bit mono WAV file as if it were a live input,
// pacing frames at the stream's real-time rate.
type WAVFileSource struct {
	Path string
}

func (s *WAVFileSource) Open(ctx context.Context, cfg StreamConfig) (Stream, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		switch {
		case os.IsPermission(err):
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, s.Path)
		case os.IsNotExist(err):
			return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, s.Path)
		default:
			return nil, err
		}
	}

	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode input wav: %w", err)
	}
	if rate != cfg.SampleRate {
		return nil, fmt.Errorf("input wav sample rate %d does not match requested %d", rate, cfg.SampleRate)
	}

	frameDuration := time.Duration(cfg.FrameSize) * time.Second / time.Duration(cfg.SampleRate)

	return &wavStream{
		samples:       audio.PCM16ToFloat(samples),
		frameSize:     cfg.FrameSize,
		frameDuration: frameDuration,
	}, nil
}

type wavStream struct {
	samples       []float32
	frameSize     int
	frameDuration time.Duration

	mu     sync.Mutex
	offset int
	closed bool
}

func (s *wavStream) ReadFrame(ctx context.Context) ([]float32, error) {
	// Pace replay so downstream timers see realistic frame arrival.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.frameDuration):
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.offset >= len(s.samples) {
		return nil, io.EOF
	}

	end := min(s.offset+s.frameSize, len(s.samples))
	frame := make([]float32, s.frameSize)
	copy(frame, s.samples[s.offset:end])
	s.offset = end

	return frame, nil
}

func (s *wavStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true

	return nil
}
