package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/siteiq-ai/siteiq-engine/pkg/auth"
	"github.com/siteiq-ai/siteiq-engine/pkg/models"
	"github.com/siteiq-ai/siteiq-engine/pkg/services"
)

// compareRequest is the multi-model comparison request body.
type compareRequest struct {
	Messages []models.ChatMessage `json:"messages"`
}

// CompareHandler serves the multi-model comparison endpoint.
type CompareHandler struct {
	compareService services.CompareService
	logger         *zap.Logger
}

// NewCompareHandler creates a new CompareHandler.
func NewCompareHandler(compareService services.CompareService, logger *zap.Logger) *CompareHandler {
	return &CompareHandler{
		compareService: compareService,
		logger:         logger,
	}
}

// RegisterRoutes registers the compare handler's routes on the given mux.
func (h *CompareHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/compare", authMiddleware.RequireAuth(h.Compare))
}

// Compare handles POST /api/compare requests.
// The same prompt runs against the fixed comparison model set in parallel;
// all results, including per-model failures, come back in one JSON response.
func (h *CompareHandler) Compare(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireUserIDFromContext(r.Context())
	if err != nil {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "invalid user identity")
		return
	}

	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "messages is required")
		return
	}

	results, err := h.compareService.Compare(r.Context(), userID, req.Messages)
	if err != nil {
		var denial *services.CreditDenial
		if errors.As(err, &denial) {
			_ = ErrorResponse(w, http.StatusForbidden, denial.Code(), denial.Error())
			return
		}
		h.logger.Error("Comparison failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "comparison failed")
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}
