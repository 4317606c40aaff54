// Package rooms is the REST client for the call signaling server's room
// registry.
package rooms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/voiceguard-app/voiceguard/internal/config"
)

// Room is one joinable call room.
type Room struct {
	ID           string `json:"roomId"`
	Name         string `json:"roomName"`
	Participants int    `json:"participants"`
}

// Client talks to the room registry under cfg.Call.APIURL.
type Client struct {
	logger  *zap.Logger
	client  *http.Client
	baseURL string
}

// NewClient creates a room registry client.
func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	return &Client{
		logger:  logger,
		client:  &http.Client{},
		baseURL: cfg.Call.APIURL,
	}
}

// List returns the currently open rooms.
func (c *Client) List(ctx context.Context) ([]Room, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/call/room/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create list request: %w", err)
	}

	var out struct {
		Rooms []Room `json:"rooms"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}

	return out.Rooms, nil
}

// Create registers a new room and returns its assigned identity.
func (c *Client) Create(ctx context.Context, creatorID, roomName string) (Room, error) {
	body := map[string]string{"creatorId": creatorID, "roomName": roomName}

	req, err := c.postJSON(ctx, "/call/room/create", body)
	if err != nil {
		return Room{}, err
	}

	var out Room
	if err := c.do(req, &out); err != nil {
		return Room{}, err
	}

	c.logger.Info("Room created",
		zap.String("room_id", out.ID),
		zap.String("room_name", out.Name))

	return out, nil
}

// Join adds the user to a room.
func (c *Client) Join(ctx context.Context, userID, roomID string) error {
	req, err := c.postJSON(ctx, "/call/room/join", map[string]string{"userId": userID, "roomId": roomID})
	if err != nil {
		return err
	}

	return c.do(req, nil)
}

// Leave removes the user from a room.
func (c *Client) Leave(ctx context.Context, userID, roomID string) error {
	req, err := c.postJSON(ctx, "/call/room/leave", map[string]string{"userId": userID, "roomId": roomID})
	if err != nil {
		return err
	}

	return c.do(req, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("room request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return fmt.Errorf("room server returned status %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode room response: %w", err)
	}

	return nil
}
