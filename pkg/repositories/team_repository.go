package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/siteiq-ai/siteiq-engine/pkg/apperrors"
	"github.com/siteiq-ai/siteiq-engine/pkg/database"
	"github.com/siteiq-ai/siteiq-engine/pkg/models"
)

// TeamRepository defines data access for teams, memberships, and invitations.
//
// The seat limit counts members plus pending invitations together, so the
// limit check and the write that consumes a seat run inside one transaction.
type TeamRepository interface {
	// CreateTeam inserts a team and its owner membership atomically.
	// Returns apperrors.ErrTeamLimitReached when the owner already owns
	// the maximum number of teams.
	CreateTeam(ctx context.Context, team *models.Team, ownerEmail string) error

	// GetTeam retrieves a team by ID. Returns apperrors.ErrNotFound if absent.
	GetTeam(ctx context.Context, teamID uuid.UUID) (*models.Team, error)

	// ListTeamsForUser retrieves all teams the user is a member of.
	ListTeamsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Team, error)

	// RenameTeam updates a team's name.
	RenameTeam(ctx context.Context, teamID uuid.UUID, name string) error

	// DeleteTeam removes a team with its memberships and invitations.
	DeleteTeam(ctx context.Context, teamID uuid.UUID) error

	// GetMember retrieves a membership row. Returns apperrors.ErrNotFound if absent.
	GetMember(ctx context.Context, teamID, userID uuid.UUID) (*models.TeamMember, error)

	// ListMembers retrieves all members of a team, owner first.
	ListMembers(ctx context.Context, teamID uuid.UUID) ([]*models.TeamMember, error)

	// RemoveMember deletes a membership row.
	RemoveMember(ctx context.Context, teamID, userID uuid.UUID) error

	// UpdateMemberRole changes a member's role.
	UpdateMemberRole(ctx context.Context, teamID, userID uuid.UUID, role string) error

	// CreateInvitation inserts a pending invitation, enforcing the seat limit
	// and rejecting duplicates for an email that is already a member or
	// already invited. Returns apperrors.ErrMemberLimitReached or
	// apperrors.ErrConflict accordingly.
	CreateInvitation(ctx context.Context, invitation *models.TeamInvitation) error

	// GetInvitationByToken retrieves an invitation by its opaque token.
	GetInvitationByToken(ctx context.Context, token string) (*models.TeamInvitation, error)

	// ListInvitations retrieves pending (unaccepted, unexpired) invitations
	// for a team.
	ListInvitations(ctx context.Context, teamID uuid.UUID) ([]*models.TeamInvitation, error)

	// AcceptInvitation marks the invitation accepted and inserts the
	// membership row atomically.
	AcceptInvitation(ctx context.Context, invitation *models.TeamInvitation, userID uuid.UUID) error

	// DeleteInvitation removes a pending invitation.
	DeleteInvitation(ctx context.Context, invitationID uuid.UUID) error
}

// teamRepository implements TeamRepository using PostgreSQL.
type teamRepository struct {
	db *database.DB
}

// NewTeamRepository creates a new team repository.
func NewTeamRepository(db *database.DB) TeamRepository {
	return &teamRepository{db: db}
}

// CreateTeam inserts a team and its owner membership atomically.
func (r *teamRepository) CreateTeam(ctx context.Context, team *models.Team, ownerEmail string) error {
	now := time.Now()
	team.CreatedAt = now
	team.UpdatedAt = now

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	var owned int
	err = tx.QueryRow(ctx, "SELECT COUNT(*) FROM teams WHERE owner_id = $1", team.OwnerID).Scan(&owned)
	if err != nil {
		return fmt.Errorf("failed to count owned teams: %w", err)
	}
	if owned >= models.MaxTeamsPerUser {
		return apperrors.ErrTeamLimitReached
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO teams (name, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		team.Name, team.OwnerID, team.CreatedAt, team.UpdatedAt,
	).Scan(&team.ID)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO team_members (team_id, user_id, email, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		team.ID, team.OwnerID, ownerEmail, models.RoleOwner, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create owner membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetTeam retrieves a team by ID.
func (r *teamRepository) GetTeam(ctx context.Context, teamID uuid.UUID) (*models.Team, error) {
	var team models.Team
	err := r.db.QueryRow(ctx, `
		SELECT id, name, owner_id, created_at, updated_at
		FROM teams WHERE id = $1`, teamID,
	).Scan(&team.ID, &team.Name, &team.OwnerID, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &team, nil
}

// ListTeamsForUser retrieves all teams the user is a member of.
func (r *teamRepository) ListTeamsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Team, error) {
	rows, err := r.db.Query(ctx, `
		SELECT t.id, t.name, t.owner_id, t.created_at, t.updated_at
		FROM teams t
		JOIN team_members m ON m.team_id = t.id
		WHERE m.user_id = $1
		ORDER BY t.created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var teams []*models.Team
	for rows.Next() {
		var team models.Team
		if err := rows.Scan(&team.ID, &team.Name, &team.OwnerID, &team.CreatedAt, &team.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, &team)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate teams: %w", err)
	}
	return teams, nil
}

// RenameTeam updates a team's name.
func (r *teamRepository) RenameTeam(ctx context.Context, teamID uuid.UUID, name string) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE teams SET name = $2, updated_at = NOW() WHERE id = $1", teamID, name)
	if err != nil {
		return fmt.Errorf("failed to rename team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// DeleteTeam removes a team with its memberships and invitations.
func (r *teamRepository) DeleteTeam(ctx context.Context, teamID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	if _, err := tx.Exec(ctx, "DELETE FROM team_invitations WHERE team_id = $1", teamID); err != nil {
		return fmt.Errorf("failed to delete team invitations: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM team_members WHERE team_id = $1", teamID); err != nil {
		return fmt.Errorf("failed to delete team members: %w", err)
	}

	tag, err := tx.Exec(ctx, "DELETE FROM teams WHERE id = $1", teamID)
	if err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetMember retrieves a membership row.
func (r *teamRepository) GetMember(ctx context.Context, teamID, userID uuid.UUID) (*models.TeamMember, error) {
	var member models.TeamMember
	err := r.db.QueryRow(ctx, `
		SELECT team_id, user_id, email, role, created_at, updated_at
		FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID,
	).Scan(&member.TeamID, &member.UserID, &member.Email, &member.Role, &member.CreatedAt, &member.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get team member: %w", err)
	}
	return &member, nil
}

// ListMembers retrieves all members of a team, owner first.
func (r *teamRepository) ListMembers(ctx context.Context, teamID uuid.UUID) ([]*models.TeamMember, error) {
	rows, err := r.db.Query(ctx, `
		SELECT team_id, user_id, email, role, created_at, updated_at
		FROM team_members
		WHERE team_id = $1
		ORDER BY role = 'owner' DESC, created_at ASC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	var members []*models.TeamMember
	for rows.Next() {
		var member models.TeamMember
		if err := rows.Scan(&member.TeamID, &member.UserID, &member.Email, &member.Role, &member.CreatedAt, &member.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		members = append(members, &member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate team members: %w", err)
	}
	return members, nil
}

// RemoveMember deletes a membership row.
func (r *teamRepository) RemoveMember(ctx context.Context, teamID, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		"DELETE FROM team_members WHERE team_id = $1 AND user_id = $2", teamID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove team member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// UpdateMemberRole changes a member's role.
func (r *teamRepository) UpdateMemberRole(ctx context.Context, teamID, userID uuid.UUID, role string) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE team_members SET role = $3, updated_at = NOW() WHERE team_id = $1 AND user_id = $2",
		teamID, userID, role)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// CreateInvitation inserts a pending invitation inside the seat-limit check.
func (r *teamRepository) CreateInvitation(ctx context.Context, invitation *models.TeamInvitation) error {
	invitation.CreatedAt = time.Now()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	var alreadyMember int
	err = tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM team_members WHERE team_id = $1 AND email = $2",
		invitation.TeamID, invitation.Email).Scan(&alreadyMember)
	if err != nil {
		return fmt.Errorf("failed to check existing membership: %w", err)
	}
	if alreadyMember > 0 {
		return apperrors.ErrConflict
	}

	// Members and pending invitations share the seat budget.
	var seats int
	err = tx.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM team_members WHERE team_id = $1)
		     + (SELECT COUNT(*) FROM team_invitations
		        WHERE team_id = $1 AND accepted_at IS NULL AND expires_at > NOW())`,
		invitation.TeamID).Scan(&seats)
	if err != nil {
		return fmt.Errorf("failed to count team seats: %w", err)
	}
	if seats >= models.MaxMembersPerTeam {
		return apperrors.ErrMemberLimitReached
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO team_invitations (team_id, email, role, token, invited_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		invitation.TeamID, invitation.Email, invitation.Role, invitation.Token,
		invitation.InvitedBy, invitation.ExpiresAt, invitation.CreatedAt,
	).Scan(&invitation.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create invitation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const invitationColumns = `id, team_id, email, role, token, invited_by, expires_at, accepted_at, created_at`

func scanInvitation(row pgx.Row) (*models.TeamInvitation, error) {
	var inv models.TeamInvitation
	err := row.Scan(&inv.ID, &inv.TeamID, &inv.Email, &inv.Role, &inv.Token,
		&inv.InvitedBy, &inv.ExpiresAt, &inv.AcceptedAt, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetInvitationByToken retrieves an invitation by its opaque token.
func (r *teamRepository) GetInvitationByToken(ctx context.Context, token string) (*models.TeamInvitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM team_invitations WHERE token = $1`

	invitation, err := scanInvitation(r.db.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return invitation, nil
}

// ListInvitations retrieves pending invitations for a team.
func (r *teamRepository) ListInvitations(ctx context.Context, teamID uuid.UUID) ([]*models.TeamInvitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM team_invitations
		WHERE team_id = $1 AND accepted_at IS NULL AND expires_at > NOW()
		ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*models.TeamInvitation
	for rows.Next() {
		invitation, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, invitation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invitations: %w", err)
	}
	return invitations, nil
}

// AcceptInvitation marks the invitation accepted and inserts the membership.
func (r *teamRepository) AcceptInvitation(ctx context.Context, invitation *models.TeamInvitation, userID uuid.UUID) error {
	now := time.Now()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	// Guard against a concurrent accept of the same invitation.
	tag, err := tx.Exec(ctx, `
		UPDATE team_invitations SET accepted_at = $2
		WHERE id = $1 AND accepted_at IS NULL`, invitation.ID, now)
	if err != nil {
		return fmt.Errorf("failed to mark invitation accepted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO team_members (team_id, user_id, email, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		invitation.TeamID, userID, invitation.Email, invitation.Role, now, now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteInvitation removes a pending invitation.
func (r *teamRepository) DeleteInvitation(ctx context.Context, invitationID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM team_invitations WHERE id = $1", invitationID)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Ensure teamRepository implements TeamRepository at compile time.
var _ TeamRepository = (*teamRepository)(nil)
