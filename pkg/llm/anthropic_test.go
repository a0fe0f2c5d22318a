package llm

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/siteiq-ai/siteiq-engine/pkg/models"
)

func writeAnthropicEvent(w http.ResponseWriter, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func TestAnthropicStreamNormalizesDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		w.Header().Set("Content-Type", "text/event-stream")
		writeAnthropicEvent(w, "message_start",
			`{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-3-5-haiku-latest","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":1}}}`)
		writeAnthropicEvent(w, "content_block_start",
			`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)
		writeAnthropicEvent(w, "content_block_delta",
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`)
		writeAnthropicEvent(w, "content_block_delta",
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" world"}}`)
		writeAnthropicEvent(w, "content_block_stop",
			`{"type":"content_block_stop","index":0}`)
		writeAnthropicEvent(w, "message_delta",
			`{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":3}}`)
		writeAnthropicEvent(w, "message_stop",
			`{"type":"message_stop"}`)
	}))
	defer server.Close()

	adapter := NewAnthropicAdapter("test-key", server.URL, zap.NewNop())
	events, err := collectStream(t, adapter, &ChatRequest{
		Model:        "claude-3-5-haiku-latest",
		SystemPrompt: "Be helpful.",
		Messages:     []models.ChatMessage{{Role: models.ChatRoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, StreamEvent{Type: StreamEventText, Content: "Hello"}, events[0])
	assert.Equal(t, StreamEvent{Type: StreamEventText, Content: " world"}, events[1])
	assert.Equal(t, StreamEventDone, events[2].Type)
}

func TestAnthropicStreamUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"rate limit exceeded"}}`))
	}))
	defer server.Close()

	adapter := NewAnthropicAdapter("test-key", server.URL, zap.NewNop())
	events, err := collectStream(t, adapter, &ChatRequest{
		Model:    "claude-3-5-haiku-latest",
		Messages: []models.ChatMessage{{Role: models.ChatRoleUser, Content: "hi"}},
	})

	assert.Empty(t, events)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeRateLimit, GetErrorType(err))
}

func firstMessageText(t *testing.T, msg anthropic.Message) string {
	t.Helper()
	require.NotEmpty(t, msg.Content)
	require.NotNil(t, msg.Content[0].Text)
	return *msg.Content[0].Text
}

func TestBuildAnthropicMessages(t *testing.T) {
	result := buildAnthropicMessages([]models.ChatMessage{
		{Role: models.ChatRoleUser, Content: "question"},
		{Role: models.ChatRoleAssistant, Content: "answer"},
		{Role: models.ChatRoleUser, Content: "follow-up"},
	})

	require.Len(t, result, 3)
	assert.Equal(t, anthropic.RoleUser, result[0].Role)
	assert.Equal(t, "question", firstMessageText(t, result[0]))
	assert.Equal(t, anthropic.RoleAssistant, result[1].Role)
	assert.Equal(t, "answer", firstMessageText(t, result[1]))
	assert.Equal(t, anthropic.RoleUser, result[2].Role)
}

func TestBuildAnthropicMessagesFoldsSystemTurns(t *testing.T) {
	result := buildAnthropicMessages([]models.ChatMessage{
		{Role: models.ChatRoleSystem, Content: "Extra instruction."},
		{Role: models.ChatRoleUser, Content: "question"},
	})

	require.Len(t, result, 1)
	assert.Equal(t, anthropic.RoleUser, result[0].Role)
	assert.Equal(t, "Extra instruction.\n\nquestion", firstMessageText(t, result[0]))
}
