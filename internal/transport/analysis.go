package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voiceguard-app/voiceguard/internal/config"
)

// Handlers receives decoded analysis events. Nil callbacks are skipped.
// Callbacks are invoked from the read loop goroutine, one at a time, in
// arrival order.
type Handlers struct {
	// OnSegment delivers one transcribed utterance with its speaker label.
	OnSegment func(speaker, text string)

	// OnSpoofProb delivers one synthetic-voice probability in [0, 1].
	OnSpoofProb func(prob float64)

	// OnError delivers a backend-reported error message.
	OnError func(message string)

	// OnRaw delivers any message that matches no known shape.
	OnRaw func(payload string)
}

// sttSegment is the transcription payload nested under "stt_segment".
type sttSegment struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// analysisEvent covers every inbound message shape on the analysis channel.
// Pointer fields distinguish absent keys from zero values.
type analysisEvent struct {
	STTSegment *sttSegment `json:"stt_segment"`
	SpoofProb  *float64    `json:"spoof_prob"`
	Error      *string     `json:"error"`
}

// AnalysisChannel streams captured audio to the detection backend and
// dispatches its transcription and spoof events. Like the call channel it
// does not reconnect on failure.
type AnalysisChannel struct {
	logger *zap.Logger
	cfg    *config.Config

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers Handlers
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewAnalysisChannel creates a disconnected analysis channel.
func NewAnalysisChannel(logger *zap.Logger, cfg *config.Config) *AnalysisChannel {
	return &AnalysisChannel{
		logger: logger,
		cfg:    cfg,
	}
}

// SetHandlers attaches the event callbacks. Must be called before Connect.
func (a *AnalysisChannel) SetHandlers(h Handlers) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers = h
}

// Connect dials the analysis backend and starts the event read loop.
// Connecting while already connected is a no-op.
func (a *AnalysisChannel) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.cfg.Analysis.WSURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect analysis channel: %w", err)
	}

	a.conn = conn

	readCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.wg.Add(1)
	go a.readLoop(readCtx, conn)

	a.logger.Info("Analysis channel connected")

	return nil
}

// IsOpen reports whether the channel currently holds a live connection.
func (a *AnalysisChannel) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.conn != nil
}

// SendWAV writes one WAV blob as a single binary message.
func (a *AnalysisChannel) SendWAV(blob []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return fmt.Errorf("analysis channel is not open")
	}

	return a.conn.WriteMessage(websocket.BinaryMessage, blob)
}

// SendFile uploads a pre-recorded audio file for offline analysis. The
// payload is base64-encoded with its format extension so the backend can
// route it through the same pipeline as live audio.
func (a *AnalysisChannel) SendFile(data []byte, format string) error {
	payload, err := json.Marshal(struct {
		Audio  string `json:"audio"`
		Format string `json:"format"`
	}{
		Audio:  base64.StdEncoding.EncodeToString(data),
		Format: format,
	})
	if err != nil {
		return fmt.Errorf("failed to encode file payload: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return fmt.Errorf("analysis channel is not open")
	}

	return a.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close tears down the connection and waits for the read loop to exit.
func (a *AnalysisChannel) Close() {
	a.mu.Lock()
	conn := a.conn
	cancel := a.cancel
	a.conn = nil
	a.cancel = nil
	a.mu.Unlock()

	if conn == nil {
		return
	}

	cancel()
	conn.Close()
	a.wg.Wait()

	a.logger.Info("Analysis channel closed")
}

func (a *AnalysisChannel) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer a.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				a.logger.Warn("Analysis channel read failed", zap.Error(err))
				a.markClosed(conn)
			}

			return
		}

		a.dispatch(data)
	}
}

// dispatch decodes one inbound event and routes it to the matching handler.
// Shape checks run in a fixed order so a message carrying multiple keys is
// handled deterministically.
func (a *AnalysisChannel) dispatch(data []byte) {
	a.mu.Lock()
	h := a.handlers
	a.mu.Unlock()

	var event analysisEvent
	if err := json.Unmarshal(data, &event); err != nil {
		if h.OnRaw != nil {
			h.OnRaw(string(data))
		}

		return
	}

	switch {
	case event.STTSegment != nil:
		if h.OnSegment != nil {
			h.OnSegment(event.STTSegment.Speaker, event.STTSegment.Text)
		}
	case event.SpoofProb != nil:
		if h.OnSpoofProb != nil {
			h.OnSpoofProb(*event.SpoofProb)
		}
	case event.Error != nil:
		if h.OnError != nil {
			h.OnError(*event.Error)
		}
	default:
		if h.OnRaw != nil {
			h.OnRaw(string(data))
		}
	}
}

// markClosed clears the connection after a read failure so IsOpen turns
// false and subsequent flushes drop instead of erroring.
func (a *AnalysisChannel) markClosed(conn *websocket.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == conn {
		a.conn = nil
		a.cancel = nil
		conn.Close()
	}
}
