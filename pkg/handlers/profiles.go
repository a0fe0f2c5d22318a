package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteiq-ai/siteiq-engine/pkg/apperrors"
	"github.com/siteiq-ai/siteiq-engine/pkg/auth"
	"github.com/siteiq-ai/siteiq-engine/pkg/models"
	"github.com/siteiq-ai/siteiq-engine/pkg/repositories"
	"github.com/siteiq-ai/siteiq-engine/pkg/services"
)

// createProfileRequest registers a URL for crawling.
type createProfileRequest struct {
	ConversationID string `json:"conversationId"`
	URL            string `json:"url"`
	IsOwnWebsite   bool   `json:"isOwnWebsite"`
}

// profileStatusRequest is the crawler pipeline's status report.
type profileStatusRequest struct {
	Status         string         `json:"status"`
	OverallScore   *float64       `json:"overallScore,omitempty"`
	CategoryScores map[string]any `json:"categoryScores,omitempty"`
	Profile        map[string]any `json:"profile,omitempty"`
	CrawledContent *string        `json:"crawledContent,omitempty"`
	ErrorMessage   *string        `json:"errorMessage,omitempty"`
}

// ProfilesHandler serves website profile CRUD and the internal status update.
type ProfilesHandler struct {
	profileService services.ProfileService
	logger         *zap.Logger
}

// NewProfilesHandler creates a new ProfilesHandler.
func NewProfilesHandler(profileService services.ProfileService, logger *zap.Logger) *ProfilesHandler {
	return &ProfilesHandler{
		profileService: profileService,
		logger:         logger,
	}
}

// RegisterRoutes registers the profiles handler's routes on the given mux.
// The status update is service-to-service only: the crawler pipeline
// authenticates with the internal token, not a user bearer token.
func (h *ProfilesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/profiles", authMiddleware.RequireAuth(h.Create))
	mux.HandleFunc("GET /api/profiles", authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("POST /api/internal/profiles/{id}/status", authMiddleware.RequireInternal(h.UpdateStatus))
}

// Create handles POST /api/profiles requests.
func (h *ProfilesHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireUserIDFromContext(r.Context())
	if err != nil {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "invalid user identity")
		return
	}

	var req createProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid conversationId")
		return
	}

	profile, err := h.profileService.CreateProfile(r.Context(), userID, conversationID, req.URL, req.IsOwnWebsite)
	if err != nil {
		if errors.Is(err, services.ErrInvalidURL) {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_url", "invalid website URL")
			return
		}
		var denial *services.CreditDenial
		if errors.As(err, &denial) {
			_ = ErrorResponse(w, http.StatusForbidden, denial.Code(), denial.Error())
			return
		}
		h.logger.Error("Failed to create profile", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to create profile")
		return
	}

	_ = WriteJSON(w, http.StatusCreated, profile)
}

// List handles GET /api/profiles requests.
func (h *ProfilesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireUserIDFromContext(r.Context())
	if err != nil {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "invalid user identity")
		return
	}

	conversationID, err := uuid.Parse(r.URL.Query().Get("conversationId"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid conversationId")
		return
	}

	profiles, err := h.profileService.ListProfiles(r.Context(), userID, conversationID)
	if err != nil {
		h.logger.Error("Failed to list profiles", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to list profiles")
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

// UpdateStatus handles POST /api/internal/profiles/{id}/status requests.
func (h *ProfilesHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	profileID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid profile id")
		return
	}

	var req profileStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	update := &repositories.ProfileStatusUpdate{
		Status:         models.ProfileStatus(req.Status),
		OverallScore:   req.OverallScore,
		CategoryScores: req.CategoryScores,
		Profile:        req.Profile,
		CrawledContent: req.CrawledContent,
		ErrorMessage:   req.ErrorMessage,
	}

	if err := h.profileService.UpdateStatus(r.Context(), profileID, update); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = ErrorResponse(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		if !models.IsValidProfileStatus(update.Status) {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_status", "invalid profile status")
			return
		}
		h.logger.Error("Failed to update profile status", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to update profile status")
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]string{"message": "status updated"})
}
