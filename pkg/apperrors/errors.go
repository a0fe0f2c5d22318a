package apperrors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrConflict            = errors.New("conflict")
	ErrPremiumRequired     = errors.New("premium model required")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrFeatureLimit        = errors.New("feature limit reached")
	ErrMemberLimitReached  = errors.New("team member limit reached")
	ErrTeamLimitReached    = errors.New("owned team limit reached")
	ErrOwnerNotPremium     = errors.New("team owner is not premium")
	ErrInvalidRole         = errors.New("invalid role")
	ErrOwnerRoleImmutable  = errors.New("owner role cannot be changed")
	ErrInviteExpired       = errors.New("invitation expired")
	ErrDuplicateEvent      = errors.New("event already processed")
)
