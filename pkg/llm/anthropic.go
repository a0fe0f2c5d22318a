package llm

import (
	"context"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/siteiq-ai/siteiq-engine/pkg/models"
)

// anthropicMaxTokens bounds the response length for streamed messages.
const anthropicMaxTokens = 4096

// AnthropicAdapter streams messages from the Anthropic API. The vendor keeps
// the system prompt as a separate request field, restricts roles to
// user/assistant, and frames deltas as content_block_delta events terminated
// by message_stop; the SDK surfaces those as callbacks which are mapped onto
// StreamEvents here.
type AnthropicAdapter struct {
	client *anthropic.Client
	logger *zap.Logger
}

// NewAnthropicAdapter creates an adapter for the Anthropic messages API.
// baseURL may be empty for the default endpoint.
func NewAnthropicAdapter(apiKey, baseURL string, logger *zap.Logger) *AnthropicAdapter {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}

	return &AnthropicAdapter{
		client: anthropic.NewClient(apiKey, opts...),
		logger: logger.Named("anthropic"),
	}
}

// Name implements ProviderAdapter.
func (a *AnthropicAdapter) Name() string {
	return ProviderAnthropic
}

// Stream implements ProviderAdapter.
func (a *AnthropicAdapter) Stream(ctx context.Context, req *ChatRequest, events chan<- StreamEvent) error {
	messages := buildAnthropicMessages(req.Messages)

	start := time.Now()
	a.logger.Debug("Starting stream",
		zap.String("model", req.Model),
		zap.Int("message_count", len(messages)))

	var produced bool
	_, err := a.client.CreateMessagesStream(ctx, anthropic.MessagesStreamRequest{
		MessagesRequest: anthropic.MessagesRequest{
			Model:     anthropic.Model(req.Model),
			System:    req.SystemPrompt,
			Messages:  messages,
			MaxTokens: anthropicMaxTokens,
		},
		OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
			if text := data.Delta.GetText(); text != "" {
				produced = true
				events <- StreamEvent{Type: StreamEventText, Content: text}
			}
		},
	})
	if err != nil {
		a.logger.Error("Stream failed", zap.Error(err))
		if !produced {
			return ClassifyError(err)
		}
		events <- StreamEvent{Type: StreamEventError, Content: ClassifyError(err).Message}
		return nil
	}

	a.logger.Info("Stream completed",
		zap.String("model", req.Model),
		zap.Duration("elapsed", time.Since(start)))

	// message_stop ends the SDK stream; synthesize the canonical done event.
	events <- StreamEvent{Type: StreamEventDone}
	return nil
}

// buildAnthropicMessages converts chat history to Anthropic messages.
// System-role turns are not legal in the messages array; any that appear in
// history are folded into the nearest user turn.
func buildAnthropicMessages(history []models.ChatMessage) []anthropic.Message {
	var result []anthropic.Message
	var pendingSystem string

	for _, msg := range history {
		switch msg.Role {
		case models.ChatRoleAssistant:
			result = append(result, anthropic.NewAssistantTextMessage(msg.Content))
		case models.ChatRoleSystem:
			pendingSystem += msg.Content + "\n\n"
		default:
			content := msg.Content
			if pendingSystem != "" {
				content = pendingSystem + content
				pendingSystem = ""
			}
			result = append(result, anthropic.NewUserTextMessage(content))
		}
	}

	if pendingSystem != "" {
		result = append(result, anthropic.NewUserTextMessage(pendingSystem))
	}

	return result
}

// Ensure AnthropicAdapter implements ProviderAdapter at compile time.
var _ ProviderAdapter = (*AnthropicAdapter)(nil)
