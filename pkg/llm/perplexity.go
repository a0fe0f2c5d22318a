package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/siteiq-ai/siteiq-engine/pkg/models"
)

// PerplexityAdapter streams chat completions from the Perplexity API.
// Perplexity speaks an OpenAI-style dialect but does not handle multi-turn
// system prompts reliably, so system prompt and history are flattened into a
// single user message. Responses arrive either as delta chunks or as full
// message chunks; both shapes normalize to the same StreamEvents.
type PerplexityAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewPerplexityAdapter creates an adapter for the Perplexity API.
func NewPerplexityAdapter(apiKey, baseURL string, logger *zap.Logger) *PerplexityAdapter {
	return &PerplexityAdapter{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logger.Named("perplexity"),
	}
}

// Name implements ProviderAdapter.
func (a *PerplexityAdapter) Name() string {
	return ProviderPerplexity
}

// perplexityChunk covers both streaming shapes Perplexity emits.
type perplexityChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Stream implements ProviderAdapter.
func (a *PerplexityAdapter) Stream(ctx context.Context, req *ChatRequest, events chan<- StreamEvent) error {
	payload := map[string]any{
		"model": req.Model,
		"messages": []map[string]string{
			{"role": "user", "content": flattenConversation(req.SystemPrompt, req.Messages)},
		},
		"stream": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	start := time.Now()
	a.logger.Debug("Starting stream", zap.String("model", req.Model))

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		a.logger.Error("Request failed", zap.Error(err))
		return ClassifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		a.logger.Error("Upstream error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", raw))
		return ClassifyError(fmt.Errorf("perplexity returned %d: %s", resp.StatusCode, raw))
	}

	a.transform(resp.Body, events)

	a.logger.Info("Stream completed",
		zap.String("model", req.Model),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// transform normalizes Perplexity chunks. Full-message chunks restate the
// entire answer so far; only the unseen suffix is emitted as a delta.
// Malformed lines are skipped, not fatal.
func (a *PerplexityAdapter) transform(body io.Reader, events chan<- StreamEvent) {
	var emitted string

	err := scanSSE(body, func(data string) bool {
		if data == sseDoneSentinel {
			return false
		}

		var chunk perplexityChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			a.logger.Debug("Skipping malformed chunk", zap.Error(err))
			return true
		}
		if len(chunk.Choices) == 0 {
			return true
		}

		choice := chunk.Choices[0]
		switch {
		case choice.Delta.Content != "":
			emitted += choice.Delta.Content
			events <- StreamEvent{Type: StreamEventText, Content: choice.Delta.Content}
		case choice.Message.Content != "":
			if suffix, ok := strings.CutPrefix(choice.Message.Content, emitted); ok && suffix != "" {
				emitted = choice.Message.Content
				events <- StreamEvent{Type: StreamEventText, Content: suffix}
			}
		}
		return true
	})
	if err != nil {
		a.logger.Warn("Stream read error", zap.Error(err))
	}

	events <- StreamEvent{Type: StreamEventDone}
}

// flattenConversation folds the system prompt and full history into one user
// message, labeling prior turns so the model can follow the thread.
func flattenConversation(systemPrompt string, history []models.ChatMessage) string {
	var sb strings.Builder
	if systemPrompt != "" {
		sb.WriteString(systemPrompt)
		sb.WriteString("\n\n")
	}

	for i, msg := range history {
		if i == len(history)-1 && msg.Role == models.ChatRoleUser {
			sb.WriteString(msg.Content)
			break
		}
		switch msg.Role {
		case models.ChatRoleAssistant:
			sb.WriteString("Assistant: ")
		default:
			sb.WriteString("User: ")
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")
	}

	return strings.TrimSpace(sb.String())
}

// Ensure PerplexityAdapter implements ProviderAdapter at compile time.
var _ ProviderAdapter = (*PerplexityAdapter)(nil)
