package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"layeh.com/gopus"

	"github.com/voiceguard-app/voiceguard/internal/config"
	"github.com/voiceguard-app/voiceguard/internal/transport"
	"github.com/voiceguard-app/voiceguard/pkg/audio"
)

var upgrader = websocket.Upgrader{}

type recordingPlayer struct {
	mu     sync.Mutex
	played [][]int16
	notify chan struct{}
}

func newRecordingPlayer() *recordingPlayer {
	return &recordingPlayer{notify: make(chan struct{}, 16)}
}

func (p *recordingPlayer) Play(samples []int16, sampleRate int) {
	p.mu.Lock()
	p.played = append(p.played, samples)
	p.mu.Unlock()
	p.notify <- struct{}{}
}

func (p *recordingPlayer) wait(t *testing.T) []int16 {
	t.Helper()

	select {
	case <-p.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("no audio played in time")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.played[len(p.played)-1]
}

type framesSink struct {
	mu     sync.Mutex
	frames [][]int16
}

func (s *framesSink) AppendFrame(samples []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, samples)
}

func (s *framesSink) snapshot() [][]int16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([][]int16{}, s.frames...)
}

// callTestServer upgrades one connection and hands it to the test.
type callTestServer struct {
	server *httptest.Server
	conns  chan *websocket.Conn
	rooms  chan string
}

func newCallTestServer(t *testing.T) *callTestServer {
	t.Helper()

	cts := &callTestServer{
		conns: make(chan *websocket.Conn, 4),
		rooms: make(chan string, 4),
	}

	cts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)

		cts.rooms <- r.URL.Query().Get("roomId")
		cts.conns <- conn
	}))
	t.Cleanup(cts.server.Close)

	return cts
}

func (cts *callTestServer) wsURL() string {
	return "ws" + strings.TrimPrefix(cts.server.URL, "http")
}

func (cts *callTestServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()

	select {
	case conn := <-cts.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")

		return nil
	}
}

func newCallConfig(wsURL string) *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Call.WSURL = wsURL

	return cfg
}

func TestCallChannel_ConnectSendsRoomID(t *testing.T) {
	cts := newCallTestServer(t)

	ch := transport.NewCallChannel(zaptest.NewLogger(t), newCallConfig(cts.wsURL()), nil)
	defer ch.Close()

	require.NoError(t, ch.Connect(context.Background(), "room 42"))
	cts.accept(t)

	assert.Equal(t, "room 42", <-cts.rooms, "room id survives URL escaping")
	assert.True(t, ch.IsOpen())

	// A second connect while open is a no-op.
	require.NoError(t, ch.Connect(context.Background(), "other"))
	select {
	case <-cts.rooms:
		t.Fatal("second connect must not dial again")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCallChannel_SendPCM(t *testing.T) {
	cts := newCallTestServer(t)

	ch := transport.NewCallChannel(zaptest.NewLogger(t), newCallConfig(cts.wsURL()), nil)
	defer ch.Close()

	require.NoError(t, ch.Connect(context.Background(), "r1"))
	server := cts.accept(t)

	samples := []int16{1, -1, 300, -300}
	require.NoError(t, ch.SendPCM(samples))

	msgType, data, err := server.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, msgType)
	assert.Equal(t, samples, audio.BytesToInt16(data))
}

func TestCallChannel_SendPCMWhenClosed(t *testing.T) {
	cts := newCallTestServer(t)

	ch := transport.NewCallChannel(zaptest.NewLogger(t), newCallConfig(cts.wsURL()), nil)

	assert.Error(t, ch.SendPCM([]int16{1}))
	assert.False(t, ch.IsOpen())
}

func TestCallChannel_InboundRawPCMFallback(t *testing.T) {
	cts := newCallTestServer(t)
	player := newRecordingPlayer()

	ch := transport.NewCallChannel(zaptest.NewLogger(t), newCallConfig(cts.wsURL()), player)
	defer ch.Close()

	sink := &framesSink{}
	ch.SetPeerSink(sink)

	require.NoError(t, ch.Connect(context.Background(), "r1"))
	server := cts.accept(t)

	// A full interval of raw PCM is far larger than any valid Opus packet,
	// so the decoder rejects it and the payload passes through untouched.
	samples := make([]int16, 4096)
	for i := range samples {
		samples[i] = int16(i - 2048)
	}
	require.NoError(t, server.WriteMessage(websocket.BinaryMessage, audio.Int16ToBytes(samples)))

	played := player.wait(t)
	assert.Equal(t, samples, played)

	frames := sink.snapshot()
	require.Len(t, frames, 1)
	assert.Equal(t, samples, frames[0], "inbound audio feeds the analysis peer buffer")
}

func TestCallChannel_InboundOpusDecoded(t *testing.T) {
	cts := newCallTestServer(t)
	player := newRecordingPlayer()

	ch := transport.NewCallChannel(zaptest.NewLogger(t), newCallConfig(cts.wsURL()), player)
	defer ch.Close()

	sink := &framesSink{}
	ch.SetPeerSink(sink)

	require.NoError(t, ch.Connect(context.Background(), "r1"))
	server := cts.accept(t)

	encoder, err := gopus.NewEncoder(48000, 1, gopus.Voip)
	require.NoError(t, err)

	// One 20 ms frame at 48 kHz.
	pcm := make([]int16, 960)
	for i := range pcm {
		pcm[i] = int16(i * 30 % 8000)
	}

	packet, err := encoder.Encode(pcm, 960, 4000)
	require.NoError(t, err)

	require.NoError(t, server.WriteMessage(websocket.BinaryMessage, packet))

	played := player.wait(t)
	assert.Len(t, played, 960, "opus packet decodes to its frame size")
}

func TestCallChannel_ServerCloseMarksChannelClosed(t *testing.T) {
	cts := newCallTestServer(t)

	ch := transport.NewCallChannel(zaptest.NewLogger(t), newCallConfig(cts.wsURL()), nil)
	defer ch.Close()

	require.NoError(t, ch.Connect(context.Background(), "r1"))
	server := cts.accept(t)

	require.NoError(t, server.Close())

	deadline := time.Now().Add(2 * time.Second)
	for ch.IsOpen() {
		if time.Now().After(deadline) {
			t.Fatal("channel did not observe the close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
