package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteiq-ai/siteiq-engine/pkg/models"
	"github.com/siteiq-ai/siteiq-engine/pkg/repositories"
)

// ErrInvalidURL is returned for profile URLs that fail to parse.
var ErrInvalidURL = errors.New("invalid website URL")

// ProfileService manages website profile rows: the engine creates them in
// pending state and reads them back; the crawler pipeline advances status
// through the internal update path.
type ProfileService interface {
	// CreateProfile registers a URL for crawling within a conversation.
	// Charges one standard-analysis use for the user's own site, or one
	// market-research use for a competitor site.
	CreateProfile(ctx context.Context, userID, conversationID uuid.UUID, rawURL string, isOwnWebsite bool) (*models.WebsiteProfile, error)

	// ListProfiles returns all profiles in a conversation owned by the user.
	ListProfiles(ctx context.Context, userID, conversationID uuid.UUID) ([]*models.WebsiteProfile, error)

	// UpdateStatus applies a pipeline-reported status change.
	UpdateStatus(ctx context.Context, profileID uuid.UUID, update *repositories.ProfileStatusUpdate) error
}

type profileService struct {
	repo    repositories.ProfileRepository
	credits CreditService
	logger  *zap.Logger
}

// NewProfileService creates a new profile service.
func NewProfileService(repo repositories.ProfileRepository, credits CreditService, logger *zap.Logger) ProfileService {
	return &profileService{
		repo:    repo,
		credits: credits,
		logger:  logger.Named("profiles"),
	}
}

// CreateProfile registers a URL for crawling within a conversation.
func (s *profileService) CreateProfile(ctx context.Context, userID, conversationID uuid.UUID, rawURL string, isOwnWebsite bool) (*models.WebsiteProfile, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, ErrInvalidURL
	}

	// Scanning the user's own site counts against the standard-analysis
	// window; scanning anyone else's counts as market research.
	feature := models.FeatureMarketResearch
	if isOwnWebsite {
		feature = models.FeatureStandardAnalysis
	}
	if err := s.credits.ConsumeFeature(ctx, userID, feature); err != nil {
		return nil, err
	}

	profile := &models.WebsiteProfile{
		ConversationID: conversationID,
		UserID:         userID,
		URL:            parsed.String(),
		IsOwnWebsite:   isOwnWebsite,
		Status:         models.ProfileStatusPending,
	}
	if err := s.repo.Create(ctx, profile); err != nil {
		return nil, err
	}

	s.logger.Info("Profile created",
		zap.String("profile_id", profile.ID.String()),
		zap.String("conversation_id", conversationID.String()))
	return profile, nil
}

// ListProfiles returns all profiles in a conversation owned by the user.
func (s *profileService) ListProfiles(ctx context.Context, userID, conversationID uuid.UUID) ([]*models.WebsiteProfile, error) {
	return s.repo.ListByConversation(ctx, userID, conversationID)
}

// UpdateStatus applies a pipeline-reported status change.
func (s *profileService) UpdateStatus(ctx context.Context, profileID uuid.UUID, update *repositories.ProfileStatusUpdate) error {
	if !models.IsValidProfileStatus(update.Status) {
		return fmt.Errorf("invalid profile status: %s", update.Status)
	}
	return s.repo.UpdateStatus(ctx, profileID, update)
}

// Ensure profileService implements ProfileService at compile time.
var _ ProfileService = (*profileService)(nil)
