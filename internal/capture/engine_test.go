package capture_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voiceguard-app/voiceguard/internal/capture"
	"github.com/voiceguard-app/voiceguard/internal/config"
	"github.com/voiceguard-app/voiceguard/pkg/audio"
)

type collectingSink struct {
	mu     sync.Mutex
	frames [][]int16
}

func (s *collectingSink) AppendFrame(samples []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames = append(s.frames, samples)
}

func (s *collectingSink) merged() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return audio.MergeFrames(s.frames)
}

func newTestConfig(frameSize int) *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Audio.FrameSize = frameSize
	cfg.Audio.Gain = 1

	return cfg
}

// waitStopped polls until the engine's capture loop has drained its input.
func waitStopped(t *testing.T, engine *capture.Engine) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for engine.Recording() {
		if time.Now().After(deadline) {
			t.Fatal("capture did not stop in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngine_FanOutDeliversEveryFrameToEverySink(t *testing.T) {
	// Full-scale and zero samples survive the float conversion exactly.
	samples := []int16{0, 32767, -32767, 0, 32767, -32767, 0, 32767}
	source := &capture.PCMReaderSource{Reader: bytes.NewReader(audio.Int16ToBytes(samples))}

	cfg := newTestConfig(4)
	engine := capture.NewEngine(zaptest.NewLogger(t), cfg, source, nil)

	first := &collectingSink{}
	second := &collectingSink{}
	engine.AddSink(first)
	engine.AddSink(second)

	require.NoError(t, engine.Start(context.Background()))
	waitStopped(t, engine)

	assert.Equal(t, samples, first.merged())
	assert.Equal(t, samples, second.merged())
}

func TestEngine_GainScalesCapturedAudio(t *testing.T) {
	samples := []int16{32767, 32767, 32767, 32767}
	source := &capture.PCMReaderSource{Reader: bytes.NewReader(audio.Int16ToBytes(samples))}

	cfg := newTestConfig(4)
	cfg.Audio.Gain = 0.5
	engine := capture.NewEngine(zaptest.NewLogger(t), cfg, source, nil)

	sink := &collectingSink{}
	engine.AddSink(sink)

	require.NoError(t, engine.Start(context.Background()))
	waitStopped(t, engine)

	merged := sink.merged()
	require.Len(t, merged, 4)
	for _, s := range merged {
		assert.InDelta(t, 16383, s, 1, "full-scale input halved by gain")
	}
}

func TestEngine_SecondStartIsNoOp(t *testing.T) {
	// A reader that never returns keeps the engine in the recording state.
	blockingReader, writeEnd := newBlockedReader()
	defer writeEnd()

	source := &capture.PCMReaderSource{Reader: blockingReader}
	engine := capture.NewEngine(zaptest.NewLogger(t), newTestConfig(4), source, nil)

	require.NoError(t, engine.Start(context.Background()))
	assert.True(t, engine.Recording())

	require.NoError(t, engine.Start(context.Background()), "second start succeeds without reopening")

	engine.Stop()
	assert.False(t, engine.Recording())
}

func TestEngine_StopIsIdempotent(t *testing.T) {
	blockingReader, writeEnd := newBlockedReader()
	defer writeEnd()

	source := &capture.PCMReaderSource{Reader: blockingReader}
	engine := capture.NewEngine(zaptest.NewLogger(t), newTestConfig(4), source, nil)

	require.NoError(t, engine.Start(context.Background()))

	engine.Stop()
	engine.Stop()

	assert.False(t, engine.Recording())
}

func TestEngine_StartFailsWhenSourceUnavailable(t *testing.T) {
	source := &capture.WAVFileSource{Path: "/nonexistent/input.wav"}
	engine := capture.NewEngine(zaptest.NewLogger(t), newTestConfig(4), source, nil)

	err := engine.Start(context.Background())
	require.ErrorIs(t, err, capture.ErrDeviceUnavailable)
	assert.False(t, engine.Recording())
}

// newBlockedReader returns a reader that blocks until the returned function
// is called.
func newBlockedReader() (reader *blockedReader, release func()) {
	r := &blockedReader{ch: make(chan struct{})}

	var once sync.Once

	return r, func() { once.Do(func() { close(r.ch) }) }
}

type blockedReader struct {
	ch chan struct{}
}

func (r *blockedReader) Read(p []byte) (int, error) {
	<-r.ch

	return 0, context.Canceled
}
