package risk

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

// gatewayBackend talks to the hosted AI gateway, which holds the model
// credentials server-side. The request carries the full dialogue history so
// the gateway itself stays stateless.
type gatewayBackend struct {
	logger    *zap.Logger
	client    *http.Client
	serverURL string
	token     string
}

// NewGatewayBackend creates a backend for the AI gateway at cfg.AI.ServerURL.
func NewGatewayBackend(logger *zap.Logger, cfg *config.Config) Backend {
	return &gatewayBackend{
		logger:    logger,
		client:    &http.Client{},
		serverURL: cfg.AI.ServerURL,
		token:     cfg.AI.Token,
	}
}

type gatewayRequest struct {
	SessionID string         `json:"sessionId"`
	Query     string         `json:"query"`
	Token     string         `json:"token"`
	History   []DialogueTurn `json:"history"`
}

type gatewayResponse struct {
	Answer string `json:"answer"`
}

func (g *gatewayBackend) Ask(ctx context.Context, sessionID, prompt string, history []DialogueTurn) (string, error) {
	if history == nil {
		history = []DialogueTurn{}
	}

	body, err := json.Marshal(gatewayRequest{
		SessionID: sessionID,
		Query:     prompt,
		Token:     g.token,
		History:   history,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.serverURL+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return "", fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(data))
	}

	var out gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode gateway response: %w", err)
	}

	return out.Answer, nil
}
