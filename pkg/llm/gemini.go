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

// GeminiAdapter streams generated content from the Gemini API. Gemini has no
// system role and rejects back-to-back same-role turns, so the request is
// rewritten: the system prompt is prepended to the first user turn and
// consecutive same-role turns are merged. The response SSE framing
// (candidates/content/parts) is transformed into canonical StreamEvents.
type GeminiAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGeminiAdapter creates an adapter for the Gemini generateContent API.
func NewGeminiAdapter(apiKey, baseURL string, logger *zap.Logger) *GeminiAdapter {
	return &GeminiAdapter{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logger.Named("gemini"),
	}
}

// Name implements ProviderAdapter.
func (a *GeminiAdapter) Name() string {
	return ProviderGemini
}

// geminiContent is one turn in the Gemini contents array.
type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// geminiChunk is the subset of a streamGenerateContent SSE payload we need.
type geminiChunk struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Stream implements ProviderAdapter.
func (a *GeminiAdapter) Stream(ctx context.Context, req *ChatRequest, events chan<- StreamEvent) error {
	contents := buildGeminiContents(req.SystemPrompt, req.Messages)

	body, err := json.Marshal(map[string]any{"contents": contents})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", a.baseURL, req.Model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", a.apiKey)

	start := time.Now()
	a.logger.Debug("Starting stream",
		zap.String("model", req.Model),
		zap.Int("turn_count", len(contents)))

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
		return ClassifyError(fmt.Errorf("gemini returned %d: %s", resp.StatusCode, raw))
	}

	a.transform(resp.Body, events)

	a.logger.Info("Stream completed",
		zap.String("model", req.Model),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// transform converts the Gemini SSE body into canonical StreamEvents.
// Unparseable lines are skipped rather than aborting the stream: vendors
// occasionally emit partial frames at buffer boundaries. The done event is
// synthesized at end of stream since Gemini has no sentinel of its own.
func (a *GeminiAdapter) transform(body io.Reader, events chan<- StreamEvent) {
	err := scanSSE(body, func(data string) bool {
		if data == sseDoneSentinel {
			return false
		}

		var chunk geminiChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			a.logger.Debug("Skipping malformed chunk", zap.Error(err))
			return true
		}

		if len(chunk.Candidates) == 0 {
			return true
		}
		for _, part := range chunk.Candidates[0].Content.Parts {
			if part.Text != "" {
				events <- StreamEvent{Type: StreamEventText, Content: part.Text}
			}
		}
		return true
	})
	if err != nil {
		a.logger.Warn("Stream read error", zap.Error(err))
	}

	events <- StreamEvent{Type: StreamEventDone}
}

// buildGeminiContents flattens chat history into Gemini's contents array.
// The system prompt is prepended to the first user turn, assistant turns
// become model turns, and consecutive same-role turns are merged because the
// API rejects back-to-back turns with the same role.
func buildGeminiContents(systemPrompt string, history []models.ChatMessage) []geminiContent {
	var contents []geminiContent

	appendTurn := func(role, text string) {
		if text == "" {
			return
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts[0].Text += "\n\n" + text
			return
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: text}},
		})
	}

	systemPending := systemPrompt
	for _, msg := range history {
		switch msg.Role {
		case models.ChatRoleAssistant:
			appendTurn("model", msg.Content)
		case models.ChatRoleSystem:
			// Stray system turns in history fold into the pending prefix.
			if systemPending != "" {
				systemPending += "\n\n"
			}
			systemPending += msg.Content
		default:
			text := msg.Content
			if systemPending != "" {
				text = systemPending + "\n\n" + text
				systemPending = ""
			}
			appendTurn("user", text)
		}
	}

	if systemPending != "" {
		appendTurn("user", systemPending)
	}

	return contents
}

// Ensure GeminiAdapter implements ProviderAdapter at compile time.
var _ ProviderAdapter = (*GeminiAdapter)(nil)
