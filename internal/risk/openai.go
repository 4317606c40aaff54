package risk

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/voiceguard-app/voiceguard/internal/config"
)

// openAIBackend calls the OpenAI chat-completions API directly. Used when
// no gateway is deployed and the API key is held locally.
type openAIBackend struct {
	logger *zap.Logger
	client *openai.Client
	model  string
}

// NewOpenAIBackend creates a backend using cfg.AI.OpenAIAPIKey and model.
func NewOpenAIBackend(logger *zap.Logger, cfg *config.Config) Backend {
	model := cfg.AI.OpenAIModel
	if model == "" {
		model = openai.GPT4oMini
	}

	return &openAIBackend{
		logger: logger,
		client: openai.NewClient(cfg.AI.OpenAIAPIKey),
		model:  model,
	}
}

func (o *openAIBackend) Ask(ctx context.Context, sessionID, prompt string, history []DialogueTurn) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
