package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteiq-ai/siteiq-engine/pkg/apperrors"
	"github.com/siteiq-ai/siteiq-engine/pkg/models"
	"github.com/siteiq-ai/siteiq-engine/pkg/repositories"
)

// Validation errors surfaced to the handler as 400s.
var (
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrInvalidTeamName = errors.New("team name is required")
)

// InvitationPreview is the unauthenticated view of a pending invitation,
// shown before the invitee signs in to accept.
type InvitationPreview struct {
	TeamName  string    `json:"team_name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TeamService implements team management: creation, membership, invitations,
// and role changes. Every team has exactly one owner, fixed at creation.
type TeamService interface {
	// CreateTeam creates a team owned by ownerID. Requires a premium account.
	CreateTeam(ctx context.Context, ownerID uuid.UUID, ownerEmail, name string) (*models.Team, error)

	// ListTeams returns the teams the user belongs to.
	ListTeams(ctx context.Context, userID uuid.UUID) ([]*models.Team, error)

	// RenameTeam renames a team. Owner or admin only.
	RenameTeam(ctx context.Context, userID, teamID uuid.UUID, name string) error

	// DeleteTeam deletes a team with its memberships and invitations. Owner only.
	DeleteTeam(ctx context.Context, userID, teamID uuid.UUID) error

	// ListMembers returns members and pending invitations. Any member may look.
	ListMembers(ctx context.Context, userID, teamID uuid.UUID) ([]*models.TeamMember, []*models.TeamInvitation, error)

	// InviteMember creates a pending invitation. Owner or admin only, and
	// the team owner must currently be premium.
	InviteMember(ctx context.Context, userID, teamID uuid.UUID, email, role string) (*models.TeamInvitation, error)

	// CancelInvite withdraws a pending invitation. Owner or admin only.
	CancelInvite(ctx context.Context, userID, teamID, invitationID uuid.UUID) error

	// RemoveMember removes a member. Owner or admin only; a non-owner member
	// may also remove themselves. The owner cannot be removed.
	RemoveMember(ctx context.Context, requesterID, teamID, memberID uuid.UUID) error

	// UpdateRole changes a member's role to an assignable role. Owner or
	// admin only. The owner's role is immutable.
	UpdateRole(ctx context.Context, requesterID, teamID, memberID uuid.UUID, role string) error

	// PreviewInvitation returns the unauthenticated view of an invitation.
	PreviewInvitation(ctx context.Context, token string) (*InvitationPreview, error)

	// AcceptInvitation joins the authenticated user to the inviting team.
	AcceptInvitation(ctx context.Context, userID uuid.UUID, email, token string) (*models.Team, error)
}

type teamService struct {
	repo    repositories.TeamRepository
	credits CreditService
	logger  *zap.Logger
}

// NewTeamService creates a new team service.
func NewTeamService(repo repositories.TeamRepository, credits CreditService, logger *zap.Logger) TeamService {
	return &teamService{
		repo:    repo,
		credits: credits,
		logger:  logger.Named("teams"),
	}
}

// CreateTeam creates a team owned by ownerID.
func (s *teamService) CreateTeam(ctx context.Context, ownerID uuid.UUID, ownerEmail, name string) (*models.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidTeamName
	}

	credits, err := s.credits.GetCredits(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check premium status: %w", err)
	}
	if !credits.IsPremium {
		return nil, apperrors.ErrOwnerNotPremium
	}

	team := &models.Team{
		Name:    name,
		OwnerID: ownerID,
	}
	if err := s.repo.CreateTeam(ctx, team, ownerEmail); err != nil {
		return nil, err
	}

	s.logger.Info("Team created",
		zap.String("team_id", team.ID.String()),
		zap.String("owner_id", ownerID.String()))
	return team, nil
}

// ListTeams returns the teams the user belongs to.
func (s *teamService) ListTeams(ctx context.Context, userID uuid.UUID) ([]*models.Team, error) {
	return s.repo.ListTeamsForUser(ctx, userID)
}

// RenameTeam renames a team.
func (s *teamService) RenameTeam(ctx context.Context, userID, teamID uuid.UUID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidTeamName
	}
	if err := s.requireRole(ctx, teamID, userID, models.RoleOwner, models.RoleAdmin); err != nil {
		return err
	}
	return s.repo.RenameTeam(ctx, teamID, name)
}

// DeleteTeam deletes a team. Owner only.
func (s *teamService) DeleteTeam(ctx context.Context, userID, teamID uuid.UUID) error {
	if err := s.requireRole(ctx, teamID, userID, models.RoleOwner); err != nil {
		return err
	}

	if err := s.repo.DeleteTeam(ctx, teamID); err != nil {
		return err
	}
	s.logger.Info("Team deleted",
		zap.String("team_id", teamID.String()),
		zap.String("owner_id", userID.String()))
	return nil
}

// ListMembers returns members and pending invitations.
func (s *teamService) ListMembers(ctx context.Context, userID, teamID uuid.UUID) ([]*models.TeamMember, []*models.TeamInvitation, error) {
	if _, err := s.repo.GetMember(ctx, teamID, userID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.ErrForbidden
		}
		return nil, nil, err
	}

	members, err := s.repo.ListMembers(ctx, teamID)
	if err != nil {
		return nil, nil, err
	}
	invitations, err := s.repo.ListInvitations(ctx, teamID)
	if err != nil {
		return nil, nil, err
	}
	return members, invitations, nil
}

// InviteMember creates a pending invitation.
func (s *teamService) InviteMember(ctx context.Context, userID, teamID uuid.UUID, email, role string) (*models.TeamInvitation, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if !models.IsAssignableRole(role) {
		return nil, apperrors.ErrInvalidRole
	}
	if err := s.requireRole(ctx, teamID, userID, models.RoleOwner, models.RoleAdmin); err != nil {
		return nil, err
	}

	// Seats are part of the owner's subscription: a lapsed owner keeps the
	// team but cannot grow it.
	team, err := s.repo.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	ownerCredits, err := s.credits.GetCredits(ctx, team.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check owner premium status: %w", err)
	}
	if !ownerCredits.IsPremium {
		return nil, apperrors.ErrOwnerNotPremium
	}

	token, err := generateInviteToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invitation token: %w", err)
	}

	invitation := &models.TeamInvitation{
		TeamID:    teamID,
		Email:     email,
		Role:      role,
		Token:     token,
		InvitedBy: userID,
		ExpiresAt: time.Now().Add(models.InviteTTL),
	}
	if err := s.repo.CreateInvitation(ctx, invitation); err != nil {
		return nil, err
	}

	s.logger.Info("Invitation created",
		zap.String("team_id", teamID.String()),
		zap.String("role", role))
	return invitation, nil
}

// CancelInvite withdraws a pending invitation.
func (s *teamService) CancelInvite(ctx context.Context, userID, teamID, invitationID uuid.UUID) error {
	if err := s.requireRole(ctx, teamID, userID, models.RoleOwner, models.RoleAdmin); err != nil {
		return err
	}
	return s.repo.DeleteInvitation(ctx, invitationID)
}

// RemoveMember removes a member from a team.
func (s *teamService) RemoveMember(ctx context.Context, requesterID, teamID, memberID uuid.UUID) error {
	target, err := s.repo.GetMember(ctx, teamID, memberID)
	if err != nil {
		return err
	}
	if target.Role == models.RoleOwner {
		return apperrors.ErrOwnerRoleImmutable
	}

	// A non-owner member may always remove themselves (leave the team).
	if requesterID != memberID {
		if err := s.requireRole(ctx, teamID, requesterID, models.RoleOwner, models.RoleAdmin); err != nil {
			return err
		}
	}

	if err := s.repo.RemoveMember(ctx, teamID, memberID); err != nil {
		return err
	}
	s.logger.Info("Member removed",
		zap.String("team_id", teamID.String()),
		zap.String("member_id", memberID.String()))
	return nil
}

// UpdateRole changes a member's role.
func (s *teamService) UpdateRole(ctx context.Context, requesterID, teamID, memberID uuid.UUID, role string) error {
	if !models.IsAssignableRole(role) {
		return apperrors.ErrInvalidRole
	}
	if err := s.requireRole(ctx, teamID, requesterID, models.RoleOwner, models.RoleAdmin); err != nil {
		return err
	}

	target, err := s.repo.GetMember(ctx, teamID, memberID)
	if err != nil {
		return err
	}
	if target.Role == models.RoleOwner {
		return apperrors.ErrOwnerRoleImmutable
	}

	return s.repo.UpdateMemberRole(ctx, teamID, memberID, role)
}

// PreviewInvitation returns the unauthenticated view of an invitation.
func (s *teamService) PreviewInvitation(ctx context.Context, token string) (*InvitationPreview, error) {
	invitation, err := s.repo.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if invitation.AcceptedAt != nil {
		return nil, apperrors.ErrNotFound
	}
	if invitation.IsExpired(time.Now()) {
		return nil, apperrors.ErrInviteExpired
	}

	team, err := s.repo.GetTeam(ctx, invitation.TeamID)
	if err != nil {
		return nil, err
	}

	return &InvitationPreview{
		TeamName:  team.Name,
		Email:     invitation.Email,
		Role:      invitation.Role,
		ExpiresAt: invitation.ExpiresAt,
	}, nil
}

// AcceptInvitation joins the authenticated user to the inviting team.
// The invitation email must match the authenticated user's email.
func (s *teamService) AcceptInvitation(ctx context.Context, userID uuid.UUID, email, token string) (*models.Team, error) {
	invitation, err := s.repo.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if invitation.AcceptedAt != nil {
		return nil, apperrors.ErrConflict
	}
	if invitation.IsExpired(time.Now()) {
		return nil, apperrors.ErrInviteExpired
	}
	if !strings.EqualFold(invitation.Email, strings.TrimSpace(email)) {
		return nil, apperrors.ErrForbidden
	}

	if err := s.repo.AcceptInvitation(ctx, invitation, userID); err != nil {
		return nil, err
	}

	team, err := s.repo.GetTeam(ctx, invitation.TeamID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Invitation accepted",
		zap.String("team_id", team.ID.String()),
		zap.String("user_id", userID.String()))
	return team, nil
}

// requireRole checks the requester holds one of the given roles on the team.
func (s *teamService) requireRole(ctx context.Context, teamID, userID uuid.UUID, roles ...string) error {
	member, err := s.repo.GetMember(ctx, teamID, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrForbidden
		}
		return err
	}
	for _, role := range roles {
		if member.Role == role {
			return nil
		}
	}
	return apperrors.ErrForbidden
}

// generateInviteToken returns a 32-byte random token as 64 hex characters.
func generateInviteToken() (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(tokenBytes), nil
}

// Ensure teamService implements TeamService at compile time.
var _ TeamService = (*teamService)(nil)
