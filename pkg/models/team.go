package models

import (
	"time"

	"github.com/google/uuid"
)

// Team limits.
const (
	// MaxMembersPerTeam caps members plus pending invitations per team.
	MaxMembersPerTeam = 5
	// MaxTeamsPerUser caps how many teams one user may own.
	MaxTeamsPerUser = 5
	// InviteTTL is how long a pending invitation remains acceptable.
	InviteTTL = 7 * 24 * time.Hour
)

// Role constants for team membership.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// ValidRoles contains all valid role values.
var ValidRoles = []string{RoleOwner, RoleAdmin, RoleMember, RoleViewer}

// IsValidRole checks if the given role is valid.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// AssignableRoles are roles that can be granted via invite or update-role.
// Owner is excluded: a team has exactly one owner, fixed at creation.
var AssignableRoles = []string{RoleAdmin, RoleMember, RoleViewer}

// IsAssignableRole checks if a role may be granted to a non-owner.
func IsAssignableRole(role string) bool {
	for _, r := range AssignableRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Team represents a team owned by exactly one user.
type Team struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TeamMember represents a user's membership in a team.
type TeamMember struct {
	TeamID    uuid.UUID `json:"team_id"`
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TeamInvitation is a pending offer for a user to join a team.
type TeamInvitation struct {
	ID         uuid.UUID  `json:"id"`
	TeamID     uuid.UUID  `json:"team_id"`
	Email      string     `json:"email"`
	Role       string     `json:"role"`
	Token      string     `json:"-"`
	InvitedBy  uuid.UUID  `json:"invited_by"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsExpired reports whether the invitation has passed its expiry.
func (i *TeamInvitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
