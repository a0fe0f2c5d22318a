package handlers

import (
	"context"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/siteiq-ai/siteiq-engine/pkg/auth"
	"github.com/siteiq-ai/siteiq-engine/pkg/llm"
	"github.com/siteiq-ai/siteiq-engine/pkg/models"
	"github.com/siteiq-ai/siteiq-engine/pkg/repositories"
	"github.com/siteiq-ai/siteiq-engine/pkg/services"
)

// mockChatService scripts the stream handed to the chat handler.
type mockChatService struct {
	events []llm.StreamEvent
	err    error

	lastRequest *services.ChatStreamRequest
}

func (m *mockChatService) Stream(ctx context.Context, req *services.ChatStreamRequest, events chan<- llm.StreamEvent) error {
	m.lastRequest = req
	for _, ev := range m.events {
		events <- ev
	}
	return m.err
}

var _ services.ChatService = (*mockChatService)(nil)

// mockCompareService returns canned comparison rows.
type mockCompareService struct {
	results []services.ModelComparison
	err     error
}

func (m *mockCompareService) Compare(ctx context.Context, userID uuid.UUID, messages []models.ChatMessage) ([]services.ModelComparison, error) {
	return m.results, m.err
}

var _ services.CompareService = (*mockCompareService)(nil)

// mockAdvisorService returns a canned advisor answer.
type mockAdvisorService struct {
	answer string
	err    error

	lastDeep bool
}

func (m *mockAdvisorService) Advise(ctx context.Context, userID uuid.UUID, idea string, deep bool) (string, error) {
	m.lastDeep = deep
	return m.answer, m.err
}

var _ services.AdvisorService = (*mockAdvisorService)(nil)

// mockProfileService scripts profile CRUD results.
type mockProfileService struct {
	profile  *models.WebsiteProfile
	profiles []*models.WebsiteProfile
	err      error

	lastUpdate *repositories.ProfileStatusUpdate
}

func (m *mockProfileService) CreateProfile(ctx context.Context, userID, conversationID uuid.UUID, rawURL string, isOwnWebsite bool) (*models.WebsiteProfile, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.profile, nil
}

func (m *mockProfileService) ListProfiles(ctx context.Context, userID, conversationID uuid.UUID) ([]*models.WebsiteProfile, error) {
	return m.profiles, m.err
}

func (m *mockProfileService) UpdateStatus(ctx context.Context, profileID uuid.UUID, update *repositories.ProfileStatusUpdate) error {
	m.lastUpdate = update
	return m.err
}

var _ services.ProfileService = (*mockProfileService)(nil)

// mockTeamService scripts one return value per operation. Tests that only
// exercise a subset leave the rest zero-valued.
type mockTeamService struct {
	team       *models.Team
	teams      []*models.Team
	members    []*models.TeamMember
	invitation *models.TeamInvitation
	preview    *services.InvitationPreview
	err        error

	previewCalls int
	lastAction   string
}

func (m *mockTeamService) CreateTeam(ctx context.Context, ownerID uuid.UUID, ownerEmail, name string) (*models.Team, error) {
	m.lastAction = "create"
	if m.err != nil {
		return nil, m.err
	}
	return m.team, nil
}

func (m *mockTeamService) ListTeams(ctx context.Context, userID uuid.UUID) ([]*models.Team, error) {
	m.lastAction = "list"
	return m.teams, m.err
}

func (m *mockTeamService) RenameTeam(ctx context.Context, userID, teamID uuid.UUID, name string) error {
	m.lastAction = "rename"
	return m.err
}

func (m *mockTeamService) DeleteTeam(ctx context.Context, userID, teamID uuid.UUID) error {
	m.lastAction = "delete"
	return m.err
}

func (m *mockTeamService) ListMembers(ctx context.Context, userID, teamID uuid.UUID) ([]*models.TeamMember, []*models.TeamInvitation, error) {
	m.lastAction = "members"
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.members, nil, nil
}

func (m *mockTeamService) InviteMember(ctx context.Context, userID, teamID uuid.UUID, email, role string) (*models.TeamInvitation, error) {
	m.lastAction = "invite"
	if m.err != nil {
		return nil, m.err
	}
	return m.invitation, nil
}

func (m *mockTeamService) CancelInvite(ctx context.Context, userID, teamID, invitationID uuid.UUID) error {
	m.lastAction = "cancel-invite"
	return m.err
}

func (m *mockTeamService) RemoveMember(ctx context.Context, requesterID, teamID, memberID uuid.UUID) error {
	m.lastAction = "remove-member"
	return m.err
}

func (m *mockTeamService) UpdateRole(ctx context.Context, requesterID, teamID, memberID uuid.UUID, role string) error {
	m.lastAction = "update-role"
	return m.err
}

func (m *mockTeamService) PreviewInvitation(ctx context.Context, token string) (*services.InvitationPreview, error) {
	m.previewCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.preview, nil
}

func (m *mockTeamService) AcceptInvitation(ctx context.Context, userID uuid.UUID, email, token string) (*models.Team, error) {
	m.lastAction = "accept-invite"
	if m.err != nil {
		return nil, m.err
	}
	return m.team, nil
}

var _ services.TeamService = (*mockTeamService)(nil)

// mockAuthService bypasses JWT validation with fixed claims.
type mockAuthService struct {
	claims *auth.Claims
	err    error
}

func (m *mockAuthService) ValidateRequest(r *http.Request) (*auth.Claims, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	return m.claims, "test-token", nil
}

func (m *mockAuthService) RequireUserID(claims *auth.Claims) (uuid.UUID, error) {
	return uuid.Parse(claims.Subject)
}

var _ auth.AuthService = (*mockAuthService)(nil)

// mockWebhookService scripts signature verification and event processing.
type mockWebhookService struct {
	verifyErr  error
	event      *models.WebhookEvent
	replay     bool
	processErr error

	lastSignature string
}

func (m *mockWebhookService) VerifySignature(body []byte, signature string) error {
	m.lastSignature = signature
	return m.verifyErr
}

func (m *mockWebhookService) Process(ctx context.Context, body []byte) (*models.WebhookEvent, bool, error) {
	if m.processErr != nil {
		return nil, false, m.processErr
	}
	return m.event, m.replay, nil
}

var _ services.WebhookService = (*mockWebhookService)(nil)

// mockRateLimiter records the keys it was asked about.
type mockRateLimiter struct {
	allow bool
	keys  []string
}

func (m *mockRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	m.keys = append(m.keys, key)
	return m.allow, nil
}

var _ services.RateLimiter = (*mockRateLimiter)(nil)

// authedClaims builds bearer claims for the given user.
func authedClaims(userID uuid.UUID, email string) *auth.Claims {
	return &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()},
		Email:            email,
	}
}

// withClaims attaches validated claims to a request the way the auth
// middleware does.
func withClaims(r *http.Request, claims *auth.Claims) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), auth.ClaimsKey, claims))
}
