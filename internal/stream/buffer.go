// Package stream owns the outbound sample buffers and the two periodic
// flush cycles that feed the call and analysis transports.
package stream

import (
	"sync"

	"github.com/voiceguard-app/voiceguard/pkg/audio"
)

// SampleBuffer is an ordered, append-only sequence of audio frames
// accumulated between flush cycles. Frames are moved, not referenced, once
// consumed: TakeAll merges and clears in a single critical section so no
// frame arriving concurrently is lost or duplicated.
type SampleBuffer struct {
	mu     sync.Mutex
	frames [][]int16
}

// NewSampleBuffer creates an empty buffer.
func NewSampleBuffer() *SampleBuffer {
	return &SampleBuffer{}
}

// AppendFrame appends one frame in capture order.
func (b *SampleBuffer) AppendFrame(samples []int16) {
	if len(samples) == 0 {
		return
	}

	b.mu.Lock()
	b.frames = append(b.frames, samples)
	b.mu.Unlock()
}

// TakeAll merges all accumulated frames into one contiguous sample sequence
// (FIFO order) and clears the buffer atomically. Returns nil when empty.
func (b *SampleBuffer) TakeAll() []int16 {
	b.mu.Lock()
	frames := b.frames
	b.frames = nil
	b.mu.Unlock()

	if len(frames) == 0 {
		return nil
	}

	return audio.MergeFrames(frames)
}

// Len returns the number of buffered samples.
func (b *SampleBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	var n int
	for _, f := range b.frames {
		n += len(f)
	}

	return n
}
