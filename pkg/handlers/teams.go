package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteiq-ai/siteiq-engine/pkg/apperrors"
	"github.com/siteiq-ai/siteiq-engine/pkg/auth"
	"github.com/siteiq-ai/siteiq-engine/pkg/services"
)

// teamActionRequest is the multiplexed team management request body.
// One POST endpoint dispatches on the action field.
type teamActionRequest struct {
	Action       string `json:"action"`
	TeamID       string `json:"teamId,omitempty"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role,omitempty"`
	MemberID     string `json:"memberId,omitempty"`
	InvitationID string `json:"invitationId,omitempty"`
	Token        string `json:"token,omitempty"`
}

// TeamsHandler serves the multiplexed team management endpoint.
type TeamsHandler struct {
	teamService services.TeamService
	authService auth.AuthService
	logger      *zap.Logger
}

// NewTeamsHandler creates a new TeamsHandler.
func NewTeamsHandler(teamService services.TeamService, authService auth.AuthService, logger *zap.Logger) *TeamsHandler {
	return &TeamsHandler{
		teamService: teamService,
		authService: authService,
		logger:      logger,
	}
}

// RegisterRoutes registers the teams handler's routes on the given mux.
// Authentication is handled inside the handler: accept-invite supports an
// unauthenticated preview, every other action requires a bearer token.
func (h *TeamsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/teams", h.Handle)
}

// Handle dispatches POST /api/teams requests on the action field.
func (h *TeamsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req teamActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	claims, _, authErr := h.authService.ValidateRequest(r)

	// accept-invite without a bearer token is the invitee preview.
	if req.Action == "accept-invite" && authErr != nil {
		h.previewInvitation(w, r, &req)
		return
	}

	if authErr != nil {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	userID, err := h.authService.RequireUserID(claims)
	if err != nil {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "invalid user identity")
		return
	}

	switch req.Action {
	case "create":
		h.createTeam(w, r, userID, claims.Email, &req)
	case "list":
		h.listTeams(w, r, userID)
	case "rename":
		h.renameTeam(w, r, userID, &req)
	case "delete":
		h.deleteTeam(w, r, userID, &req)
	case "members":
		h.listMembers(w, r, userID, &req)
	case "invite":
		h.inviteMember(w, r, userID, &req)
	case "cancel-invite":
		h.cancelInvite(w, r, userID, &req)
	case "remove-member":
		h.removeMember(w, r, userID, &req)
	case "update-role":
		h.updateRole(w, r, userID, &req)
	case "accept-invite":
		h.acceptInvitation(w, r, userID, claims.Email, &req)
	default:
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_action", "unknown team action")
	}
}

func (h *TeamsHandler) createTeam(w http.ResponseWriter, r *http.Request, userID uuid.UUID, email string, req *teamActionRequest) {
	team, err := h.teamService.CreateTeam(r.Context(), userID, email, req.Name)
	if err != nil {
		h.writeTeamError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusCreated, team)
}

func (h *TeamsHandler) listTeams(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	teams, err := h.teamService.ListTeams(r.Context(), userID)
	if err != nil {
		h.writeTeamError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"teams": teams})
}

func (h *TeamsHandler) renameTeam(w http.ResponseWriter, r *http.Request, userID uuid.UUID, req *teamActionRequest) {
	teamID, ok := h.parseID(w, req.TeamID, "teamId")
	if !ok {
		return
	}
	if err := h.teamService.RenameTeam(r.Context(), userID, teamID, req.Name); err != nil {
		h.writeTeamError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{"message": "team renamed"})
}

func (h *TeamsHandler) deleteTeam(w http.ResponseWriter, r *http.Request, userID uuid.UUID, req *teamActionRequest) {
	teamID, ok := h.parseID(w, req.TeamID, "teamId")
	if !ok {
		return
	}
	if err := h.teamService.DeleteTeam(r.Context(), userID, teamID); err != nil {
		h.writeTeamError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{"message": "team deleted"})
}

func (h *TeamsHandler) listMembers(w http.ResponseWriter, r *http.Request, userID uuid.UUID, req *teamActionRequest) {
	teamID, ok := h.parseID(w, req.TeamID, "teamId")
	if !ok {
		return
	}
	members, invitations, err := h.teamService.ListMembers(r.Context(), userID, teamID)
	if err != nil {
		h.writeTeamError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"members":     members,
		"invitations": invitations,
	})
}

func (h *TeamsHandler) inviteMember(w http.ResponseWriter, r *http.Request, userID uuid.UUID, req *teamActionRequest) {
	teamID, ok := h.parseID(w, req.TeamID, "teamId")
	if !ok {
		return
	}
	invitation, err := h.teamService.InviteMember(r.Context(), userID, teamID, req.Email, req.Role)
	if err != nil {
		h.writeTeamError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusCreated, invitation)
}

func (h *TeamsHandler) cancelInvite(w http.ResponseWriter, r *http.Request, userID uuid.UUID, req *teamActionRequest) {
	teamID, ok := h.parseID(w, req.TeamID, "teamId")
	if !ok {
		return
	}
	invitationID, ok := h.parseID(w, req.InvitationID, "invitationId")
	if !ok {
		return
	}
	if err := h.teamService.CancelInvite(r.Context(), userID, teamID, invitationID); err != nil {
		h.writeTeamError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{"message": "invitation cancelled"})
}

func (h *TeamsHandler) removeMember(w http.ResponseWriter, r *http.Request, userID uuid.UUID, req *teamActionRequest) {
	teamID, ok := h.parseID(w, req.TeamID, "teamId")
	if !ok {
		return
	}
	memberID, ok := h.parseID(w, req.MemberID, "memberId")
	if !ok {
		return
	}
	if err := h.teamService.RemoveMember(r.Context(), userID, teamID, memberID); err != nil {
		h.writeTeamError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{"message": "member removed"})
}

func (h *TeamsHandler) updateRole(w http.ResponseWriter, r *http.Request, userID uuid.UUID, req *teamActionRequest) {
	teamID, ok := h.parseID(w, req.TeamID, "teamId")
	if !ok {
		return
	}
	memberID, ok := h.parseID(w, req.MemberID, "memberId")
	if !ok {
		return
	}
	if err := h.teamService.UpdateRole(r.Context(), userID, teamID, memberID, req.Role); err != nil {
		h.writeTeamError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{"message": "role updated"})
}

func (h *TeamsHandler) previewInvitation(w http.ResponseWriter, r *http.Request, req *teamActionRequest) {
	if req.Token == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}
	preview, err := h.teamService.PreviewInvitation(r.Context(), req.Token)
	if err != nil {
		h.writeTeamError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, preview)
}

func (h *TeamsHandler) acceptInvitation(w http.ResponseWriter, r *http.Request, userID uuid.UUID, email string, req *teamActionRequest) {
	if req.Token == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}
	team, err := h.teamService.AcceptInvitation(r.Context(), userID, email, req.Token)
	if err != nil {
		h.writeTeamError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, team)
}

func (h *TeamsHandler) parseID(w http.ResponseWriter, raw, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid "+field)
		return uuid.Nil, false
	}
	return id, true
}

// writeTeamError maps service errors to machine-readable HTTP responses.
func (h *TeamsHandler) writeTeamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		_ = ErrorResponse(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, apperrors.ErrForbidden):
		_ = ErrorResponse(w, http.StatusForbidden, "forbidden", "insufficient team permissions")
	case errors.Is(err, apperrors.ErrOwnerNotPremium):
		_ = ErrorResponse(w, http.StatusForbidden, "OWNER_NOT_PREMIUM", "the team owner needs an active premium subscription")
	case errors.Is(err, apperrors.ErrTeamLimitReached):
		_ = ErrorResponse(w, http.StatusForbidden, "team_limit_reached", "owned team limit reached")
	case errors.Is(err, apperrors.ErrMemberLimitReached):
		_ = ErrorResponse(w, http.StatusForbidden, "MEMBER_LIMIT_REACHED", "team member limit reached")
	case errors.Is(err, apperrors.ErrInvalidRole):
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_role", "role is not assignable")
	case errors.Is(err, apperrors.ErrOwnerRoleImmutable):
		_ = ErrorResponse(w, http.StatusBadRequest, "owner_role_immutable", "the owner role cannot be changed or removed")
	case errors.Is(err, apperrors.ErrInviteExpired):
		_ = ErrorResponse(w, http.StatusGone, "invitation_expired", "the invitation has expired")
	case errors.Is(err, apperrors.ErrConflict):
		_ = ErrorResponse(w, http.StatusConflict, "conflict", "the request conflicts with existing state")
	case errors.Is(err, services.ErrInvalidEmail):
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_email", "invalid email address")
	case errors.Is(err, services.ErrInvalidTeamName):
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_name", "team name is required")
	default:
		h.logger.Error("Team action failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "team action failed")
	}
}
