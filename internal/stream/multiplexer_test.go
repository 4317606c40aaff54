package stream_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voiceguard-app/voiceguard/internal/config"
	"github.com/voiceguard-app/voiceguard/internal/stream"
	"github.com/voiceguard-app/voiceguard/pkg/audio"
)

type fakeCallSender struct {
	mu   sync.Mutex
	open bool
	sent [][]int16
}

func (f *fakeCallSender) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.open
}

func (f *fakeCallSender) SendPCM(samples []int16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, samples)

	return nil
}

type fakeAnalysisSender struct {
	mu   sync.Mutex
	open bool
	sent [][]byte
}

func (f *fakeAnalysisSender) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.open
}

func (f *fakeAnalysisSender) SendWAV(blob []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, blob)

	return nil
}

func newTestMultiplexer(t *testing.T) (*stream.Multiplexer, *fakeCallSender, *fakeAnalysisSender) {
	t.Helper()

	cfg := &config.Config{}
	cfg.ApplyDefaults()

	mux := stream.NewMultiplexer(zaptest.NewLogger(t), cfg)
	call := &fakeCallSender{open: true}
	analysis := &fakeAnalysisSender{open: true}
	mux.Bind(call, analysis, func() bool { return true })

	return mux, call, analysis
}

func TestMultiplexer_FlushCallSendsRawPCM(t *testing.T) {
	mux, call, _ := newTestMultiplexer(t)

	mux.CallBuffer().AppendFrame([]int16{1, 2})
	mux.CallBuffer().AppendFrame([]int16{3, 4})

	mux.FlushCall()

	require.Len(t, call.sent, 1)
	assert.Equal(t, []int16{1, 2, 3, 4}, call.sent[0])
	assert.Equal(t, 0, mux.CallBuffer().Len(), "flush empties the buffer")
}

func TestMultiplexer_FlushCallSkipsWhenEmpty(t *testing.T) {
	mux, call, _ := newTestMultiplexer(t)

	mux.FlushCall()

	assert.Empty(t, call.sent, "no message for an empty interval")
}

func TestMultiplexer_FlushAnalysisSendsSeparateWAVs(t *testing.T) {
	mux, _, analysis := newTestMultiplexer(t)

	mux.AnalysisSelfBuffer().AppendFrame([]int16{10, 20})
	mux.AnalysisPeerBuffer().AppendFrame([]int16{-5})

	mux.FlushAnalysis()

	require.Len(t, analysis.sent, 2, "self and peer ship as separate messages")

	selfSamples, rate, err := audio.DecodeWAV(analysis.sent[0])
	require.NoError(t, err)
	assert.Equal(t, config.DefaultSampleRate, rate)
	assert.Equal(t, []int16{10, 20}, selfSamples)

	peerSamples, _, err := audio.DecodeWAV(analysis.sent[1])
	require.NoError(t, err)
	assert.Equal(t, []int16{-5}, peerSamples)
}

func TestMultiplexer_FlushAnalysisOneSidedInterval(t *testing.T) {
	mux, _, analysis := newTestMultiplexer(t)

	mux.AnalysisPeerBuffer().AppendFrame([]int16{42})

	mux.FlushAnalysis()

	require.Len(t, analysis.sent, 1, "empty self buffer produces no message")

	peerSamples, _, err := audio.DecodeWAV(analysis.sent[0])
	require.NoError(t, err)
	assert.Equal(t, []int16{42}, peerSamples)
}

func TestMultiplexer_DropsWhenChannelClosed(t *testing.T) {
	mux, call, analysis := newTestMultiplexer(t)
	call.open = false
	analysis.open = false

	mux.CallBuffer().AppendFrame([]int16{1})
	mux.AnalysisSelfBuffer().AppendFrame([]int16{2})

	mux.FlushCall()
	mux.FlushAnalysis()

	assert.Empty(t, call.sent)
	assert.Empty(t, analysis.sent)
	assert.Equal(t, 0, mux.CallBuffer().Len(), "dropped audio is not retried")
	assert.Equal(t, 0, mux.AnalysisSelfBuffer().Len())
}

func TestMultiplexer_RecordingGate(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	mux := stream.NewMultiplexer(zaptest.NewLogger(t), cfg)
	call := &fakeCallSender{open: true}
	analysis := &fakeAnalysisSender{open: true}

	recording := false
	mux.Bind(call, analysis, func() bool { return recording })

	mux.CallBuffer().AppendFrame([]int16{1})
	mux.FlushCall()

	assert.Empty(t, call.sent, "no send while capture is inactive")
	assert.Equal(t, 1, mux.CallBuffer().Len(), "audio stays buffered while gated")

	recording = true
	mux.FlushCall()

	require.Len(t, call.sent, 1)
	assert.Equal(t, []int16{1}, call.sent[0])
}
