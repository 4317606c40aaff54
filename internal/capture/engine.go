// Package capture acquires microphone audio and fans fixed-size PCM frames
// out to every buffer that needs outbound audio.
package capture

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/voiceguard-app/voiceguard/internal/config"
	"github.com/voiceguard-app/voiceguard/pkg/audio"
)

// FrameSink receives one converted AudioFrame per capture callback. The
// engine hands each sink its own slice; sinks own what they are given.
type FrameSink interface {
	AppendFrame(samples []int16)
}

// Engine drives a capture Source and converts its float frames to 16-bit
// PCM. A single frame is appended to every registered sink (fan-out, not
// fan-in) so two differently-timed transports can share one capture source
// without duplicate device access.
type Engine struct {
	logger *zap.Logger
	cfg    *config.AudioConfig
	source Source
	viz    *Visualizer

	mu    sync.Mutex
	sinks []FrameSink

	recording atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewEngine creates a capture engine over the given source. Sinks are
// registered with AddSink before Start.
func NewEngine(logger *zap.Logger, cfg *config.Config, source Source, viz *Visualizer) *Engine {
	return &Engine{
		logger: logger,
		cfg:    &cfg.Audio,
		source: source,
		viz:    viz,
	}
}

// AddSink registers a destination for captured frames.
func (e *Engine) AddSink(sink FrameSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, sink)
}

// Recording reports whether a capture session is active.
func (e *Engine) Recording() bool {
	return e.recording.Load()
}

// Start opens the source stream and begins the per-frame loop. A second
// Start while active is a no-op. Fails with ErrPermissionDenied or
// ErrDeviceUnavailable when the input cannot be acquired.
func (e *Engine) Start(ctx context.Context) error {
	if !e.recording.CompareAndSwap(false, true) {
		e.logger.Debug("Capture already active, ignoring start")

		return nil
	}

	streamCfg := StreamConfig{
		SampleRate:       e.cfg.SampleRate,
		Channels:         1,
		FrameSize:        e.cfg.FrameSize,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}

	stream, err := e.source.Open(ctx, streamCfg)
	if err != nil {
		e.recording.Store(false)

		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.wg.Add(1)
	go e.captureLoop(loopCtx, stream)

	e.logger.Info("Capture started",
		zap.Int("sample_rate", e.cfg.SampleRate),
		zap.Int("frame_size", e.cfg.FrameSize),
		zap.Float64("gain", e.cfg.Gain))

	return nil
}

// Stop tears down the capture loop and releases the source. Idempotent; any
// data still buffered downstream at stop time is discarded, not flushed.
func (e *Engine) Stop() {
	if !e.recording.CompareAndSwap(true, false) {
		return
	}

	e.cancel()
	e.wg.Wait()

	e.logger.Info("Capture stopped")
}

func (e *Engine) captureLoop(ctx context.Context, stream Stream) {
	defer e.wg.Done()
	defer stream.Close()

	gain := float32(e.cfg.Gain)

	for {
		frame, err := stream.ReadFrame(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				e.logger.Error("Capture read failed", zap.Error(err))
			}
			e.recording.Store(false)

			return
		}

		// The frame loop performs only O(frame) arithmetic and buffer
		// appends; anything blocking lives behind the flush timers.
		for i := range frame {
			frame[i] *= gain
		}

		pcm := audio.FloatToPCM16(frame)

		e.mu.Lock()
		sinks := e.sinks
		e.mu.Unlock()

		for _, sink := range sinks {
			copied := make([]int16, len(pcm))
			copy(copied, pcm)
			sink.AppendFrame(copied)
		}

		if e.viz != nil {
			e.viz.Observe(audio.RMS(frame))
		}
	}
}
