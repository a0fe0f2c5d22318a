package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/siteiq-ai/siteiq-engine/pkg/apperrors"
	"github.com/siteiq-ai/siteiq-engine/pkg/models"
	"github.com/siteiq-ai/siteiq-engine/pkg/repositories"
)

// Mock implementations for testing

// mockCreditRepository is an in-memory credit ledger that mirrors the
// conditional-update semantics of the real repository.
type mockCreditRepository struct {
	mu      sync.Mutex
	credits map[uuid.UUID]*models.UserCredits
	err     error

	deductCalls  int
	resetCalls   int
	refundCalls  int
	refundErr    error
	consumeCalls int
}

func newMockCreditRepository() *mockCreditRepository {
	return &mockCreditRepository{credits: make(map[uuid.UUID]*models.UserCredits)}
}

func (m *mockCreditRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UserCredits, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.credits[userID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *mockCreditRepository) Create(ctx context.Context, credits *models.UserCredits) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	copied := *credits
	m.credits[credits.UserID] = &copied
	return nil
}

func (m *mockCreditRepository) ResetDailyWindow(ctx context.Context, userID uuid.UUID, observedResetAt, newResetAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.resetCalls++
	c, ok := m.credits[userID]
	if !ok {
		return nil
	}
	if !c.CreditsResetAt.After(observedResetAt) {
		c.CreditsUsed = 0
		c.CreditsResetAt = newResetAt
	}
	return nil
}

func (m *mockCreditRepository) TryDeduct(ctx context.Context, userID uuid.UUID, cost int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	m.deductCalls++
	c, ok := m.credits[userID]
	if !ok {
		return false, nil
	}
	if c.CreditsUsed+cost > c.DailyCreditsLimit {
		return false, nil
	}
	c.CreditsUsed += cost
	return true, nil
}

func (m *mockCreditRepository) Refund(ctx context.Context, userID uuid.UUID, cost int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refundCalls++
	if m.refundErr != nil {
		return m.refundErr
	}
	c, ok := m.credits[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	c.CreditsUsed -= cost
	if c.CreditsUsed < 0 {
		c.CreditsUsed = 0
	}
	return nil
}

func (m *mockCreditRepository) SetPremium(ctx context.Context, userID uuid.UUID, isPremium bool, dailyLimit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credits[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	c.IsPremium = isPremium
	c.DailyCreditsLimit = dailyLimit
	return nil
}

func (m *mockCreditRepository) ResetFeatureWindow(ctx context.Context, userID uuid.UUID, feature models.Feature, expiredBefore, newStart time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credits[userID]
	if !ok {
		return nil
	}
	switch feature {
	case models.FeatureMarketResearch:
		if !c.MarketResearchWindowStart.After(expiredBefore) {
			c.MarketResearchCount = 0
			c.MarketResearchWindowStart = newStart
		}
	case models.FeatureDeepAnalysis:
		if !c.DeepAnalysisWindowStart.After(expiredBefore) {
			c.DeepAnalysisCount = 0
			c.DeepAnalysisWindowStart = newStart
		}
	case models.FeatureStandardAnalysis:
		if !c.StandardAnalysisWindowStart.After(expiredBefore) {
			c.StandardAnalysisCount = 0
			c.StandardAnalysisWindowStart = newStart
		}
	}
	return nil
}

func (m *mockCreditRepository) TryConsumeFeature(ctx context.Context, userID uuid.UUID, feature models.Feature, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumeCalls++
	c, ok := m.credits[userID]
	if !ok {
		return false, nil
	}
	var count *int
	switch feature {
	case models.FeatureMarketResearch:
		count = &c.MarketResearchCount
	case models.FeatureDeepAnalysis:
		count = &c.DeepAnalysisCount
	case models.FeatureStandardAnalysis:
		count = &c.StandardAnalysisCount
	default:
		return false, nil
	}
	if *count+1 > limit {
		return false, nil
	}
	*count++
	return true, nil
}

var _ repositories.CreditRepository = (*mockCreditRepository)(nil)

// mockCreditService records charges and refunds without a ledger.
type mockCreditService struct {
	mu sync.Mutex

	checkErr   error
	consumeErr error
	credits    *models.UserCredits

	deductions      []int
	refunds         []int
	consumed        []models.Feature
	setPremiumCalls []bool
}

func (m *mockCreditService) CheckAndDeduct(ctx context.Context, userID uuid.UUID, cost int, premiumRequired bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.checkErr != nil {
		return m.checkErr
	}
	m.deductions = append(m.deductions, cost)
	return nil
}

func (m *mockCreditService) Refund(ctx context.Context, userID uuid.UUID, cost int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refunds = append(m.refunds, cost)
}

func (m *mockCreditService) ConsumeFeature(ctx context.Context, userID uuid.UUID, feature models.Feature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consumeErr != nil {
		return m.consumeErr
	}
	m.consumed = append(m.consumed, feature)
	return nil
}

func (m *mockCreditService) GetCredits(ctx context.Context, userID uuid.UUID) (*models.UserCredits, error) {
	if m.credits == nil {
		return nil, apperrors.ErrNotFound
	}
	return m.credits, nil
}

func (m *mockCreditService) SetPremium(ctx context.Context, userID uuid.UUID, isPremium bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setPremiumCalls = append(m.setPremiumCalls, isPremium)
	return nil
}

var _ CreditService = (*mockCreditService)(nil)

// mockProfileRepository serves canned profile rows.
type mockProfileRepository struct {
	profiles []*models.WebsiteProfile
	err      error
	updates  map[uuid.UUID]*repositories.ProfileStatusUpdate
}

func (m *mockProfileRepository) Create(ctx context.Context, profile *models.WebsiteProfile) error {
	if m.err != nil {
		return m.err
	}
	profile.ID = uuid.New()
	m.profiles = append(m.profiles, profile)
	return nil
}

func (m *mockProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WebsiteProfile, error) {
	for _, p := range m.profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockProfileRepository) ListByConversation(ctx context.Context, userID, conversationID uuid.UUID) ([]*models.WebsiteProfile, error) {
	return m.profiles, m.err
}

func (m *mockProfileRepository) ListCompletedByConversation(ctx context.Context, userID, conversationID uuid.UUID) ([]*models.WebsiteProfile, error) {
	if m.err != nil {
		return nil, m.err
	}
	var completed []*models.WebsiteProfile
	for _, p := range m.profiles {
		if p.Status == models.ProfileStatusCompleted {
			completed = append(completed, p)
		}
	}
	return completed, nil
}

func (m *mockProfileRepository) UpdateStatus(ctx context.Context, id uuid.UUID, update *repositories.ProfileStatusUpdate) error {
	if m.err != nil {
		return m.err
	}
	if m.updates == nil {
		m.updates = make(map[uuid.UUID]*repositories.ProfileStatusUpdate)
	}
	m.updates[id] = update
	return nil
}

var _ repositories.ProfileRepository = (*mockProfileRepository)(nil)

// mockTeamRepository is an in-memory team store.
type mockTeamRepository struct {
	mu          sync.Mutex
	teams       map[uuid.UUID]*models.Team
	members     map[uuid.UUID][]*models.TeamMember
	invitations map[uuid.UUID]*models.TeamInvitation

	createTeamErr error
	inviteErr     error
}

func newMockTeamRepository() *mockTeamRepository {
	return &mockTeamRepository{
		teams:       make(map[uuid.UUID]*models.Team),
		members:     make(map[uuid.UUID][]*models.TeamMember),
		invitations: make(map[uuid.UUID]*models.TeamInvitation),
	}
}

func (m *mockTeamRepository) CreateTeam(ctx context.Context, team *models.Team, ownerEmail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createTeamErr != nil {
		return m.createTeamErr
	}
	owned := 0
	for _, t := range m.teams {
		if t.OwnerID == team.OwnerID {
			owned++
		}
	}
	if owned >= models.MaxTeamsPerUser {
		return apperrors.ErrTeamLimitReached
	}
	team.ID = uuid.New()
	m.teams[team.ID] = team
	m.members[team.ID] = []*models.TeamMember{{
		TeamID: team.ID,
		UserID: team.OwnerID,
		Email:  ownerEmail,
		Role:   models.RoleOwner,
	}}
	return nil
}

func (m *mockTeamRepository) GetTeam(ctx context.Context, teamID uuid.UUID) (*models.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return t, nil
}

func (m *mockTeamRepository) ListTeamsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var teams []*models.Team
	for teamID, members := range m.members {
		for _, member := range members {
			if member.UserID == userID {
				teams = append(teams, m.teams[teamID])
			}
		}
	}
	return teams, nil
}

func (m *mockTeamRepository) RenameTeam(ctx context.Context, teamID uuid.UUID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok {
		return apperrors.ErrNotFound
	}
	t.Name = name
	return nil
}

func (m *mockTeamRepository) DeleteTeam(ctx context.Context, teamID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[teamID]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.teams, teamID)
	delete(m.members, teamID)
	return nil
}

func (m *mockTeamRepository) GetMember(ctx context.Context, teamID, userID uuid.UUID) (*models.TeamMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range m.members[teamID] {
		if member.UserID == userID {
			return member, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockTeamRepository) ListMembers(ctx context.Context, teamID uuid.UUID) ([]*models.TeamMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[teamID], nil
}

func (m *mockTeamRepository) RemoveMember(ctx context.Context, teamID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := m.members[teamID]
	for i, member := range members {
		if member.UserID == userID {
			m.members[teamID] = append(members[:i], members[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *mockTeamRepository) UpdateMemberRole(ctx context.Context, teamID, userID uuid.UUID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range m.members[teamID] {
		if member.UserID == userID {
			member.Role = role
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *mockTeamRepository) CreateInvitation(ctx context.Context, invitation *models.TeamInvitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inviteErr != nil {
		return m.inviteErr
	}
	seats := len(m.members[invitation.TeamID])
	for _, inv := range m.invitations {
		if inv.TeamID == invitation.TeamID && inv.AcceptedAt == nil && !inv.IsExpired(time.Now()) {
			seats++
		}
	}
	if seats >= models.MaxMembersPerTeam {
		return apperrors.ErrMemberLimitReached
	}
	for _, member := range m.members[invitation.TeamID] {
		if member.Email == invitation.Email {
			return apperrors.ErrConflict
		}
	}
	invitation.ID = uuid.New()
	m.invitations[invitation.ID] = invitation
	return nil
}

func (m *mockTeamRepository) GetInvitationByToken(ctx context.Context, token string) (*models.TeamInvitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.Token == token {
			return inv, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockTeamRepository) ListInvitations(ctx context.Context, teamID uuid.UUID) ([]*models.TeamInvitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []*models.TeamInvitation
	for _, inv := range m.invitations {
		if inv.TeamID == teamID && inv.AcceptedAt == nil && !inv.IsExpired(time.Now()) {
			pending = append(pending, inv)
		}
	}
	return pending, nil
}

func (m *mockTeamRepository) AcceptInvitation(ctx context.Context, invitation *models.TeamInvitation, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.invitations[invitation.ID]
	if !ok || stored.AcceptedAt != nil {
		return apperrors.ErrConflict
	}
	now := time.Now()
	stored.AcceptedAt = &now
	m.members[invitation.TeamID] = append(m.members[invitation.TeamID], &models.TeamMember{
		TeamID: invitation.TeamID,
		UserID: userID,
		Email:  invitation.Email,
		Role:   invitation.Role,
	})
	return nil
}

func (m *mockTeamRepository) DeleteInvitation(ctx context.Context, invitationID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invitations[invitationID]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.invitations, invitationID)
	return nil
}

var _ repositories.TeamRepository = (*mockTeamRepository)(nil)

// mockWebhookRepository is an in-memory idempotency ledger.
type mockWebhookRepository struct {
	mu        sync.Mutex
	processed map[string]string
	err       error
}

func newMockWebhookRepository() *mockWebhookRepository {
	return &mockWebhookRepository{processed: make(map[string]string)}
}

func (m *mockWebhookRepository) MarkProcessed(ctx context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.processed[eventID]; ok {
		return apperrors.ErrDuplicateEvent
	}
	m.processed[eventID] = eventType
	return nil
}

var _ repositories.WebhookRepository = (*mockWebhookRepository)(nil)
