package capture

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/voiceguard-app/voiceguard/pkg/audio"
)

// PCMReaderSource reads raw little-endian 16-bit mono PCM from an io.Reader,
// e.g. stdin fed by an external recorder process.
type PCMReaderSource struct {
	Reader io.Reader
}

func (s *PCMReaderSource) Open(ctx context.Context, cfg StreamConfig) (Stream, error) {
	if s.Reader == nil {
		return nil, fmt.Errorf("%w: no pcm reader configured", ErrDeviceUnavailable)
	}

	return &pcmStream{reader: s.Reader, frameSize: cfg.FrameSize}, nil
}

type pcmStream struct {
	reader    io.Reader
	frameSize int

	mu     sync.Mutex
	closed bool
}

type readResult struct {
	buf []byte
	err error
}

func (s *pcmStream) ReadFrame(ctx context.Context) ([]float32, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return nil, io.EOF
	}
	s.mu.Unlock()

	// The read runs in its own goroutine so a canceled context unblocks the
	// capture loop even while the reader is stalled. A read abandoned at
	// shutdown completes into the buffered channel and is discarded.
	ch := make(chan readResult, 1)
	go func() {
		buf := make([]byte, s.frameSize*2)
		_, err := io.ReadFull(s.reader, buf)
		ch <- readResult{buf: buf, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			if res.err == io.ErrUnexpectedEOF {
				return nil, io.EOF
			}

			return nil, res.err
		}

		return audio.PCM16ToFloat(audio.BytesToInt16(res.buf)), nil
	}
}

func (s *pcmStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true

	if closer, ok := s.reader.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}
