package stream

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voiceguard-app/voiceguard/internal/config"
	"github.com/voiceguard-app/voiceguard/pkg/audio"
)

// CallSender is the outbound side of the call transport: raw PCM, no header.
type CallSender interface {
	IsOpen() bool
	SendPCM(samples []int16) error
}

// AnalysisSender is the outbound side of the analysis transport: one WAV
// blob per message.
type AnalysisSender interface {
	IsOpen() bool
	SendWAV(blob []byte) error
}

// Multiplexer owns the three outbound sample buffers and flushes each group
// on its own timer. Call audio ships every 2 s for latency; analysis audio
// batches every 5 s, which is still timely for risk detection. When a
// channel is not open the accumulated audio for that interval is dropped
// rather than queued indefinitely.
type Multiplexer struct {
	logger *zap.Logger

	callBuf *SampleBuffer
	selfBuf *SampleBuffer
	peerBuf *SampleBuffer

	callInterval     time.Duration
	analysisInterval time.Duration
	sampleRate       int

	mu        sync.Mutex
	call      CallSender
	analysis  AnalysisSender
	recording func() bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMultiplexer creates a multiplexer with empty buffers. Transports and
// the capture gate are attached with Bind before Start.
func NewMultiplexer(logger *zap.Logger, cfg *config.Config) *Multiplexer {
	return &Multiplexer{
		logger:           logger,
		callBuf:          NewSampleBuffer(),
		selfBuf:          NewSampleBuffer(),
		peerBuf:          NewSampleBuffer(),
		callInterval:     time.Duration(cfg.Call.FlushIntervalMS) * time.Millisecond,
		analysisInterval: time.Duration(cfg.Analysis.FlushIntervalMS) * time.Millisecond,
		sampleRate:       cfg.Audio.SampleRate,
	}
}

// CallBuffer is the sink for outbound-to-peer capture frames.
func (m *Multiplexer) CallBuffer() *SampleBuffer { return m.callBuf }

// AnalysisSelfBuffer is the sink for the local speaker's analysis audio.
func (m *Multiplexer) AnalysisSelfBuffer() *SampleBuffer { return m.selfBuf }

// AnalysisPeerBuffer is the sink for the remote speaker's analysis audio.
func (m *Multiplexer) AnalysisPeerBuffer() *SampleBuffer { return m.peerBuf }

// Bind attaches the two transports and the capture-active gate.
func (m *Multiplexer) Bind(call CallSender, analysis AnalysisSender, recording func() bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.call = call
	m.analysis = analysis
	m.recording = recording
}

// Start launches both flush cycles. The two timers are independent; no
// ordering is guaranteed between them. The cycles outlive the caller's
// context and run until Stop.
func (m *Multiplexer) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(2)
	go m.runCycle(loopCtx, m.callInterval, m.flushCall)
	go m.runCycle(loopCtx, m.analysisInterval, m.flushAnalysis)

	m.logger.Info("Stream multiplexer started",
		zap.Duration("call_interval", m.callInterval),
		zap.Duration("analysis_interval", m.analysisInterval))
}

// Stop deterministically cancels both cycles and waits for them to exit.
func (m *Multiplexer) Stop() {
	if m.cancel == nil {
		return
	}

	m.cancel()
	m.wg.Wait()
	m.cancel = nil

	m.logger.Info("Stream multiplexer stopped")
}

func (m *Multiplexer) runCycle(ctx context.Context, interval time.Duration, flush func()) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			flush()
		}
	}
}

// FlushCall sends accumulated call audio as raw little-endian PCM. Exposed
// for deterministic testing; the call cycle invokes it on its timer.
func (m *Multiplexer) FlushCall() { m.flushCall() }

func (m *Multiplexer) flushCall() {
	m.mu.Lock()
	call, recording := m.call, m.recording
	m.mu.Unlock()

	if recording == nil || !recording() {
		return
	}

	samples := m.callBuf.TakeAll()
	if len(samples) == 0 {
		return
	}

	if call == nil || !call.IsOpen() {
		m.logger.Debug("Call channel not open, dropping interval audio",
			zap.Int("samples", len(samples)))

		return
	}

	if err := call.SendPCM(samples); err != nil {
		m.logger.Warn("Failed to send call audio", zap.Error(err))
	}
}

// FlushAnalysis sends accumulated self and peer audio as two separate WAV
// messages, preserving per-speaker separation. Exposed for deterministic
// testing; the analysis cycle invokes it on its timer.
func (m *Multiplexer) FlushAnalysis() { m.flushAnalysis() }

func (m *Multiplexer) flushAnalysis() {
	m.mu.Lock()
	analysis, recording := m.analysis, m.recording
	m.mu.Unlock()

	if recording == nil || !recording() {
		return
	}

	m.flushAnalysisBuffer(analysis, m.selfBuf, "self")
	m.flushAnalysisBuffer(analysis, m.peerBuf, "peer")
}

func (m *Multiplexer) flushAnalysisBuffer(analysis AnalysisSender, buf *SampleBuffer, speaker string) {
	samples := buf.TakeAll()
	if len(samples) == 0 {
		return
	}

	if analysis == nil || !analysis.IsOpen() {
		m.logger.Debug("Analysis channel not open, dropping interval audio",
			zap.String("speaker", speaker),
			zap.Int("samples", len(samples)))

		return
	}

	blob := audio.EncodeWAV(samples, m.sampleRate)
	if err := analysis.SendWAV(blob); err != nil {
		m.logger.Warn("Failed to send analysis audio",
			zap.String("speaker", speaker),
			zap.Error(err))
	}
}
