// Package transport implements the two outbound WebSocket channels: the
// call relay carrying live audio between participants and the analysis
// channel carrying audio to the detection backend and events back.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"layeh.com/gopus"

	"github.com/voiceguard-app/voiceguard/internal/config"
	"github.com/voiceguard-app/voiceguard/pkg/audio"
)

// Inbound call audio may arrive Opus-encoded or as raw PCM depending on the
// sending client. One Opus frame at 48 kHz mono is at most 60 ms.
const opusMaxFrameSize = 2880

// PeerSink receives decoded inbound call audio for downstream buffering.
type PeerSink interface {
	AppendFrame(samples []int16)
}

// Player renders inbound call audio to the local output device.
type Player interface {
	Play(samples []int16, sampleRate int)
}

// CallChannel is the live audio relay for one room. Outbound messages are
// raw little-endian PCM; inbound messages are decoded, played back, and fed
// to the analysis peer buffer. The channel does not reconnect: a closed or
// failed connection stays closed until Connect is called again.
type CallChannel struct {
	logger     *zap.Logger
	cfg        *config.Config
	player     Player
	sampleRate int

	mu     sync.Mutex
	conn   *websocket.Conn
	peer   PeerSink
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCallChannel creates a disconnected call channel.
func NewCallChannel(logger *zap.Logger, cfg *config.Config, player Player) *CallChannel {
	return &CallChannel{
		logger:     logger,
		cfg:        cfg,
		player:     player,
		sampleRate: cfg.Audio.SampleRate,
	}
}

// SetPeerSink attaches the destination for decoded inbound audio.
func (c *CallChannel) SetPeerSink(sink PeerSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peer = sink
}

// Connect dials the call relay for the given room and starts the read loop.
// Connecting while already connected is a no-op.
func (c *CallChannel) Connect(ctx context.Context, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	wsURL := c.cfg.Call.WSURL + "?roomId=" + url.QueryEscape(roomID)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect call channel: %w", err)
	}

	c.conn = conn

	readCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(1)
	go c.readLoop(readCtx, conn)

	c.logger.Info("Call channel connected", zap.String("room_id", roomID))

	return nil
}

// IsOpen reports whether the channel currently holds a live connection.
func (c *CallChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn != nil
}

// SendPCM writes one interval of raw PCM to the relay. The mutex serializes
// writers; gorilla permits only one concurrent writer per connection.
func (c *CallChannel) SendPCM(samples []int16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("call channel is not open")
	}

	return c.conn.WriteMessage(websocket.BinaryMessage, audio.Int16ToBytes(samples))
}

// Close tears down the connection and waits for the read loop to exit.
func (c *CallChannel) Close() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}

	cancel()
	conn.Close()
	c.wg.Wait()

	c.logger.Info("Call channel closed")
}

func (c *CallChannel) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()

	decoder, err := gopus.NewDecoder(c.sampleRate, 1)
	if err != nil {
		c.logger.Error("Failed to create opus decoder", zap.Error(err))

		decoder = nil
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("Call channel read failed", zap.Error(err))
				c.markClosed(conn)
			}

			return
		}

		if len(data) == 0 {
			continue
		}

		c.handleInbound(decoder, data)
	}
}

// handleInbound decodes one inbound audio message. Opus decode is attempted
// first; on failure the payload is interpreted as raw PCM, so mixed senders
// interoperate on one relay.
func (c *CallChannel) handleInbound(decoder *gopus.Decoder, data []byte) {
	var samples []int16

	if decoder != nil {
		decoded, err := decoder.Decode(data, opusMaxFrameSize, false)
		if err == nil {
			samples = decoded
		}
	}

	if samples == nil {
		samples = audio.BytesToInt16(data)
	}

	if len(samples) == 0 {
		return
	}

	if c.player != nil {
		c.player.Play(samples, c.sampleRate)
	}

	c.mu.Lock()
	peer := c.peer
	c.mu.Unlock()

	if peer != nil {
		peer.AppendFrame(samples)
	}
}

// markClosed clears the connection after a read failure so IsOpen turns
// false and subsequent flushes drop instead of erroring.
func (c *CallChannel) markClosed(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == conn {
		c.conn = nil
		c.cancel = nil
		conn.Close()
	}
}
