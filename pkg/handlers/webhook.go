package handlers

import (
	"errors"
	"io"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/siteiq-ai/siteiq-engine/pkg/services"
)

// maxWebhookBodyBytes bounds webhook payload reads.
const maxWebhookBodyBytes = 1 << 20

// WebhookHandler receives payment provider webhook deliveries.
type WebhookHandler struct {
	webhookService services.WebhookService
	rateLimiter    services.RateLimiter
	logger         *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookService services.WebhookService, rateLimiter services.RateLimiter, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
		rateLimiter:    rateLimiter,
		logger:         logger,
	}
}

// RegisterRoutes registers the webhook handler's routes on the given mux.
// Webhook deliveries authenticate by signature, not bearer token.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/webhooks/freemius", h.Receive)
}

// Receive handles POST /api/webhooks/freemius requests.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	allowed, _ := h.rateLimiter.Allow(r.Context(), "webhook:"+clientIP(r))
	if !allowed {
		_ = ErrorResponse(w, http.StatusTooManyRequests, "rate_limited", "too many webhook deliveries")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return
	}

	if err := h.webhookService.VerifySignature(body, r.Header.Get("x-signature")); err != nil {
		h.logger.Warn("Webhook signature rejected", zap.String("remote", clientIP(r)))
		_ = ErrorResponse(w, http.StatusUnauthorized, "invalid_signature", "webhook signature verification failed")
		return
	}

	event, replay, err := h.webhookService.Process(r.Context(), body)
	if err != nil {
		if errors.Is(err, services.ErrMalformedEvent) {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_event", "malformed webhook event")
			return
		}
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to process webhook event")
		return
	}

	message := "event processed"
	if replay {
		message = "event already processed"
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{
		"message":  message,
		"event_id": event.ID,
	})
}

// clientIP extracts the caller address for rate limiting, preferring the
// first X-Forwarded-For hop when present.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
