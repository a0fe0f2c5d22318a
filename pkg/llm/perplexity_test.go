package llm

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/siteiq-ai/siteiq-engine/pkg/models"
)

func newPerplexitySSEServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range frames {
			_, _ = w.Write([]byte("data: " + frame + "\n\n"))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
}

func TestPerplexityStreamDeltaChunks(t *testing.T) {
	server := newPerplexitySSEServer(t, []string{
		`{"choices":[{"delta":{"content":"Hello"}}]}`,
		`{"choices":[{"delta":{"content":" world"}}]}`,
	})
	defer server.Close()

	adapter := NewPerplexityAdapter("test-key", server.URL, zap.NewNop())
	events, err := collectStream(t, adapter, &ChatRequest{
		Model:    "sonar",
		Messages: []models.ChatMessage{{Role: models.ChatRoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, "Hello", events[0].Content)
	assert.Equal(t, " world", events[1].Content)
	assert.Equal(t, StreamEventDone, events[2].Type)
}

func TestPerplexityStreamFullMessageChunks(t *testing.T) {
	// Full-message chunks restate the whole answer; only the unseen suffix
	// may be re-emitted.
	server := newPerplexitySSEServer(t, []string{
		`{"choices":[{"message":{"content":"Hello"}}]}`,
		`{"choices":[{"message":{"content":"Hello world"}}]}`,
		`{"choices":[{"message":{"content":"Hello world"}}]}`,
	})
	defer server.Close()

	adapter := NewPerplexityAdapter("test-key", server.URL, zap.NewNop())
	events, err := collectStream(t, adapter, &ChatRequest{
		Model:    "sonar",
		Messages: []models.ChatMessage{{Role: models.ChatRoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, "Hello", events[0].Content)
	assert.Equal(t, " world", events[1].Content)
	assert.Equal(t, StreamEventDone, events[2].Type)
}

func TestPerplexityStreamMixedChunkShapes(t *testing.T) {
	server := newPerplexitySSEServer(t, []string{
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[{"message":{"content":"Hello!"}}]}`,
	})
	defer server.Close()

	adapter := NewPerplexityAdapter("test-key", server.URL, zap.NewNop())
	events, err := collectStream(t, adapter, &ChatRequest{
		Model:    "sonar",
		Messages: []models.ChatMessage{{Role: models.ChatRoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	var text string
	for _, ev := range events {
		if ev.Type == StreamEventText {
			text += ev.Content
		}
	}
	assert.Equal(t, "Hello!", text)
}

func TestPerplexityStreamUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient_quota", http.StatusPaymentRequired)
	}))
	defer server.Close()

	adapter := NewPerplexityAdapter("test-key", server.URL, zap.NewNop())
	events, err := collectStream(t, adapter, &ChatRequest{
		Model:    "sonar",
		Messages: []models.ChatMessage{{Role: models.ChatRoleUser, Content: "hi"}},
	})

	assert.Empty(t, events)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeQuota, GetErrorType(err))
	assert.Equal(t, 402, HTTPStatus(err))
}

func TestFlattenConversation(t *testing.T) {
	flattened := flattenConversation("Be concise.", []models.ChatMessage{
		{Role: models.ChatRoleUser, Content: "first question"},
		{Role: models.ChatRoleAssistant, Content: "first answer"},
		{Role: models.ChatRoleUser, Content: "second question"},
	})

	assert.Equal(t,
		"Be concise.\n\nUser: first question\n\nAssistant: first answer\n\nsecond question",
		flattened)
}

func TestFlattenConversationLabelsTrailingAssistant(t *testing.T) {
	flattened := flattenConversation("", []models.ChatMessage{
		{Role: models.ChatRoleUser, Content: "question"},
		{Role: models.ChatRoleAssistant, Content: "answer"},
	})

	// Only a trailing user turn goes unlabeled.
	assert.Equal(t, "User: question\n\nAssistant: answer", flattened)
}

func TestFlattenConversationNoSystemPrompt(t *testing.T) {
	flattened := flattenConversation("", []models.ChatMessage{
		{Role: models.ChatRoleUser, Content: "only question"},
	})
	assert.Equal(t, "only question", flattened)
}
