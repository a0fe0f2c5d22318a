package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteiq-ai/siteiq-engine/pkg/auth"
	"github.com/siteiq-ai/siteiq-engine/pkg/llm"
	"github.com/siteiq-ai/siteiq-engine/pkg/models"
	"github.com/siteiq-ai/siteiq-engine/pkg/services"
)

// chatRequest is the relay request body.
type chatRequest struct {
	Messages       []models.ChatMessage `json:"messages"`
	ConversationID string               `json:"conversationId,omitempty"`
	Model          string               `json:"model,omitempty"`
}

// sseDelta is the client-facing stream frame: OpenAI delta shape regardless
// of which upstream provider produced the text.
type sseDelta struct {
	Choices []sseChoice `json:"choices"`
}

type sseChoice struct {
	Delta sseContent `json:"delta"`
}

type sseContent struct {
	Content string `json:"content"`
}

// ChatHandler serves the streaming chat relay.
type ChatHandler struct {
	chatService services.ChatService
	logger      *zap.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(chatService services.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// RegisterRoutes registers the chat handler's routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/chat", authMiddleware.RequireAuth(h.Chat))
}

// Chat handles POST /api/chat requests.
// The response is a Server-Sent Events stream of OpenAI-style delta frames
// terminated by a [DONE] sentinel. The request context carries client
// disconnects into the provider call, cancelling the upstream request.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireUserIDFromContext(r.Context())
	if err != nil {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "invalid user identity")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "messages is required")
		return
	}

	var conversationID *uuid.UUID
	if req.ConversationID != "" {
		id, err := uuid.Parse(req.ConversationID)
		if err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid conversationId")
			return
		}
		conversationID = &id
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = ErrorResponse(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming")
		return
	}

	streamReq := &services.ChatStreamRequest{
		UserID:         userID,
		ConversationID: conversationID,
		ModelKey:       req.Model,
		Messages:       req.Messages,
	}

	events := make(chan llm.StreamEvent, 100)
	errCh := make(chan error, 1)
	go func() {
		defer close(events)
		errCh <- h.chatService.Stream(r.Context(), streamReq, events)
	}()

	// Block until the first event or a pre-stream failure. Adapters emit at
	// least a done event on success, so a closed channel with no events means
	// the dispatch failed and the HTTP status can still be set.
	first, ok := <-events
	if !ok {
		h.writeStreamError(w, <-errCh)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	h.writeEvent(w, flusher, first)
	for event := range events {
		if !h.writeEvent(w, flusher, event) {
			break
		}
	}
	<-errCh
}

// writeEvent writes one SSE frame. Returns false when the stream is finished.
func (h *ChatHandler) writeEvent(w http.ResponseWriter, flusher http.Flusher, event llm.StreamEvent) bool {
	switch event.Type {
	case llm.StreamEventText:
		frame := sseDelta{Choices: []sseChoice{{Delta: sseContent{Content: event.Content}}}}
		data, err := json.Marshal(frame)
		if err != nil {
			h.logger.Error("Failed to marshal stream frame", zap.Error(err))
			return false
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
		return true

	case llm.StreamEventError:
		data, _ := json.Marshal(map[string]string{"error": event.Content})
		fmt.Fprintf(w, "data: %s\n\n", data)
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
		return false

	case llm.StreamEventDone:
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
		return false

	default:
		return true
	}
}

// writeStreamError maps a pre-stream failure to an HTTP error response.
func (h *ChatHandler) writeStreamError(w http.ResponseWriter, err error) {
	if err == nil {
		// Stream produced no events and no error; nothing useful to say.
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "empty provider stream")
		return
	}

	var denial *services.CreditDenial
	if errors.As(err, &denial) {
		_ = ErrorResponse(w, http.StatusForbidden, denial.Code(), denial.Error())
		return
	}

	var notConfigured *llm.ErrProviderNotConfigured
	if errors.As(err, &notConfigured) {
		h.logger.Error("Provider not configured", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "provider_not_configured", "the selected model is unavailable")
		return
	}

	h.logger.Error("Chat dispatch failed", zap.Error(err))
	switch llm.HTTPStatus(err) {
	case http.StatusTooManyRequests:
		_ = ErrorResponse(w, http.StatusTooManyRequests, "rate_limited", "provider rate limit hit, try again later")
	case http.StatusPaymentRequired:
		_ = ErrorResponse(w, http.StatusPaymentRequired, "quota_exhausted", "provider quota exhausted")
	default:
		_ = ErrorResponse(w, http.StatusInternalServerError, "provider_error", "the provider request failed")
	}
}
