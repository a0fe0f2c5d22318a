package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIAdapter streams chat completions from an OpenAI-compatible endpoint.
// The wire format is already the canonical one, so no transform is needed
// beyond mapping deltas onto StreamEvents.
type OpenAIAdapter struct {
	client *openai.Client
	logger *zap.Logger
}

// NewOpenAIAdapter creates an adapter for an OpenAI-compatible endpoint.
// baseURL may be empty for the default api.openai.com endpoint.
func NewOpenAIAdapter(apiKey, baseURL string, logger *zap.Logger) *OpenAIAdapter {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(baseURL, "/")
	}

	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(clientConfig),
		logger: logger.Named("openai"),
	}
}

// Name implements ProviderAdapter.
func (a *OpenAIAdapter) Name() string {
	return ProviderOpenAI
}

// Stream implements ProviderAdapter. The system prompt travels as a leading
// system-role message; history passes through unchanged.
func (a *OpenAIAdapter) Stream(ctx context.Context, req *ChatRequest, events chan<- StreamEvent) error {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	temperature := float32(req.Temperature)
	if temperature == 0 {
		temperature = 0.7
	}

	start := time.Now()
	a.logger.Debug("Starting stream",
		zap.String("model", req.Model),
		zap.Int("message_count", len(messages)))

	stream, err := a.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: temperature,
		Stream:      true,
	})
	if err != nil {
		a.logger.Error("Failed to create stream", zap.Error(err))
		return ClassifyError(err)
	}
	defer stream.Close()

	var produced bool
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			a.logger.Error("Stream receive error", zap.Error(err))
			if !produced {
				return ClassifyError(err)
			}
			events <- StreamEvent{Type: StreamEventError, Content: ClassifyError(err).Message}
			return nil
		}

		if len(response.Choices) == 0 {
			continue
		}

		if delta := response.Choices[0].Delta.Content; delta != "" {
			produced = true
			events <- StreamEvent{Type: StreamEventText, Content: delta}
		}
	}

	a.logger.Info("Stream completed",
		zap.String("model", req.Model),
		zap.Duration("elapsed", time.Since(start)))

	events <- StreamEvent{Type: StreamEventDone}
	return nil
}

// Ensure OpenAIAdapter implements ProviderAdapter at compile time.
var _ ProviderAdapter = (*OpenAIAdapter)(nil)
