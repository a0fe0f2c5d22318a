package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/siteiq-ai/siteiq-engine/pkg/auth"
	"github.com/siteiq-ai/siteiq-engine/pkg/llm"
	"github.com/siteiq-ai/siteiq-engine/pkg/services"
)

// advisorRequest is the business advisor request body.
type advisorRequest struct {
	Idea string `json:"idea"`
	Mode string `json:"mode,omitempty"` // "quick" (default) or "deep"
}

// AdvisorHandler serves the business-ideas advisor endpoint.
type AdvisorHandler struct {
	advisorService services.AdvisorService
	logger         *zap.Logger
}

// NewAdvisorHandler creates a new AdvisorHandler.
func NewAdvisorHandler(advisorService services.AdvisorService, logger *zap.Logger) *AdvisorHandler {
	return &AdvisorHandler{
		advisorService: advisorService,
		logger:         logger,
	}
}

// RegisterRoutes registers the advisor handler's routes on the given mux.
func (h *AdvisorHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/advisor", authMiddleware.RequireAuth(h.Advise))
}

// Advise handles POST /api/advisor requests.
func (h *AdvisorHandler) Advise(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireUserIDFromContext(r.Context())
	if err != nil {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "invalid user identity")
		return
	}

	var req advisorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Idea) == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "idea is required")
		return
	}
	deep := req.Mode == "deep"

	answer, err := h.advisorService.Advise(r.Context(), userID, req.Idea, deep)
	if err != nil {
		var denial *services.CreditDenial
		if errors.As(err, &denial) {
			_ = ErrorResponse(w, http.StatusForbidden, denial.Code(), denial.Error())
			return
		}
		h.logger.Error("Advisor call failed", zap.Error(err))
		switch llm.HTTPStatus(err) {
		case http.StatusTooManyRequests:
			_ = ErrorResponse(w, http.StatusTooManyRequests, "rate_limited", "provider rate limit hit, try again later")
		case http.StatusPaymentRequired:
			_ = ErrorResponse(w, http.StatusPaymentRequired, "quota_exhausted", "provider quota exhausted")
		default:
			_ = ErrorResponse(w, http.StatusInternalServerError, "advisor_failed", "the advisor request failed")
		}
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]string{"answer": answer})
}
