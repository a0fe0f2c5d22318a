package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteiq-ai/siteiq-engine/pkg/apperrors"
	"github.com/siteiq-ai/siteiq-engine/pkg/config"
	"github.com/siteiq-ai/siteiq-engine/pkg/models"
	"github.com/siteiq-ai/siteiq-engine/pkg/repositories"
)

// CreditDenial is a typed refusal from the credit ledger. It wraps one of
// the apperrors sentinels so callers can branch with errors.Is, and carries
// the hours until the relevant window resets for the client-facing code.
type CreditDenial struct {
	Err       error
	HoursLeft int
}

func (d *CreditDenial) Error() string {
	return d.Code()
}

func (d *CreditDenial) Unwrap() error {
	return d.Err
}

// Code returns the machine-readable denial code the client renders.
func (d *CreditDenial) Code() string {
	switch d.Err {
	case apperrors.ErrPremiumRequired:
		return "premium_model_required"
	case apperrors.ErrInsufficientCredits:
		return fmt.Sprintf("insufficient_credits:%d", d.HoursLeft)
	case apperrors.ErrFeatureLimit:
		return fmt.Sprintf("feature_limit_reached:%d", d.HoursLeft)
	default:
		return "credit_denied"
	}
}

// CreditService enforces the daily credit allowance and the per-feature
// rolling windows.
type CreditService interface {
	// CheckAndDeduct grants a request by atomically charging cost against the
	// user's daily allowance, or denies it with a *CreditDenial. Any other
	// error is internal; callers fail closed.
	CheckAndDeduct(ctx context.Context, userID uuid.UUID, cost int, premiumRequired bool) error

	// Refund restores previously deducted credits after a downstream failure.
	// Best-effort: a failed refund is logged, never retried, and not
	// surfaced to the caller.
	Refund(ctx context.Context, userID uuid.UUID, cost int)

	// ConsumeFeature charges one use of a rolling-window feature, or denies
	// with a *CreditDenial.
	ConsumeFeature(ctx context.Context, userID uuid.UUID, feature models.Feature) error

	// GetCredits returns the user's current ledger row.
	GetCredits(ctx context.Context, userID uuid.UUID) (*models.UserCredits, error)

	// SetPremium flips the user's premium status and daily allowance together.
	// Used by the payment webhook.
	SetPremium(ctx context.Context, userID uuid.UUID, isPremium bool) error
}

type creditService struct {
	repo   repositories.CreditRepository
	cfg    config.CreditConfig
	logger *zap.Logger
}

// NewCreditService creates a new credit service.
func NewCreditService(repo repositories.CreditRepository, cfg config.CreditConfig, logger *zap.Logger) CreditService {
	return &creditService{
		repo:   repo,
		cfg:    cfg,
		logger: logger.Named("credits"),
	}
}

// CheckAndDeduct grants or denies a request against the daily allowance.
//
// The expired-window reset is persisted before the charge is evaluated; there
// is no background sweep, so every request is a potential reset trigger. The
// charge itself is an atomic conditional update, so two concurrent requests
// cannot both pass the limit check.
func (s *creditService) CheckAndDeduct(ctx context.Context, userID uuid.UUID, cost int, premiumRequired bool) error {
	credits, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		// Fail closed: a ledger lookup failure denies the request.
		return fmt.Errorf("failed to load credit ledger: %w", err)
	}

	if premiumRequired && !credits.IsPremium {
		return &CreditDenial{Err: apperrors.ErrPremiumRequired}
	}

	now := time.Now()
	if !credits.CreditsResetAt.After(now) {
		newResetAt := now.Add(24 * time.Hour)
		if err := s.repo.ResetDailyWindow(ctx, userID, credits.CreditsResetAt, newResetAt); err != nil {
			return fmt.Errorf("failed to reset credit window: %w", err)
		}
		credits.CreditsUsed = 0
		credits.CreditsResetAt = newResetAt
	}

	granted, err := s.repo.TryDeduct(ctx, userID, cost)
	if err != nil {
		return fmt.Errorf("failed to deduct credits: %w", err)
	}
	if !granted {
		return &CreditDenial{
			Err:       apperrors.ErrInsufficientCredits,
			HoursLeft: credits.HoursUntilReset(now),
		}
	}

	s.logger.Debug("Credits deducted",
		zap.String("user_id", userID.String()),
		zap.Int("cost", cost))
	return nil
}

// Refund restores previously deducted credits. Best-effort and lossy on
// failure: the user stays under-credited for that one operation, but the
// failure is logged, never silent.
func (s *creditService) Refund(ctx context.Context, userID uuid.UUID, cost int) {
	if err := s.repo.Refund(ctx, userID, cost); err != nil {
		s.logger.Error("Credit refund failed",
			zap.String("user_id", userID.String()),
			zap.Int("cost", cost),
			zap.Error(err))
		return
	}
	s.logger.Info("Credits refunded",
		zap.String("user_id", userID.String()),
		zap.Int("cost", cost))
}

// ConsumeFeature charges one use of a rolling-window feature.
func (s *creditService) ConsumeFeature(ctx context.Context, userID uuid.UUID, feature models.Feature) error {
	credits, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load credit ledger: %w", err)
	}

	limit := models.FeatureLimit(feature, credits.IsPremium)
	if limit == 0 {
		// Zero allowance means the feature is premium-only.
		return &CreditDenial{Err: apperrors.ErrPremiumRequired}
	}

	now := time.Now()
	windowStart := featureWindowStart(credits, feature)
	if now.Sub(windowStart) >= models.FeatureWindow {
		expiredBefore := now.Add(-models.FeatureWindow)
		if err := s.repo.ResetFeatureWindow(ctx, userID, feature, expiredBefore, now); err != nil {
			return fmt.Errorf("failed to reset %s window: %w", feature, err)
		}
		windowStart = now
	}

	granted, err := s.repo.TryConsumeFeature(ctx, userID, feature, limit)
	if err != nil {
		return fmt.Errorf("failed to consume %s allowance: %w", feature, err)
	}
	if !granted {
		return &CreditDenial{
			Err:       apperrors.ErrFeatureLimit,
			HoursLeft: hoursUntil(windowStart.Add(models.FeatureWindow), now),
		}
	}

	s.logger.Debug("Feature consumed",
		zap.String("user_id", userID.String()),
		zap.String("feature", string(feature)))
	return nil
}

// GetCredits returns the user's current ledger row.
func (s *creditService) GetCredits(ctx context.Context, userID uuid.UUID) (*models.UserCredits, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// SetPremium flips premium status and the matching daily allowance.
func (s *creditService) SetPremium(ctx context.Context, userID uuid.UUID, isPremium bool) error {
	limit := s.cfg.FreeDailyLimit
	if isPremium {
		limit = s.cfg.PremiumDailyLimit
	}

	if err := s.repo.SetPremium(ctx, userID, isPremium, limit); err != nil {
		return fmt.Errorf("failed to set premium status: %w", err)
	}

	s.logger.Info("Premium status updated",
		zap.String("user_id", userID.String()),
		zap.Bool("is_premium", isPremium),
		zap.Int("daily_limit", limit))
	return nil
}

func featureWindowStart(credits *models.UserCredits, feature models.Feature) time.Time {
	switch feature {
	case models.FeatureMarketResearch:
		return credits.MarketResearchWindowStart
	case models.FeatureDeepAnalysis:
		return credits.DeepAnalysisWindowStart
	case models.FeatureStandardAnalysis:
		return credits.StandardAnalysisWindowStart
	default:
		return time.Time{}
	}
}

func hoursUntil(deadline, now time.Time) int {
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return 1
	}
	hours := int((remaining + time.Hour - 1) / time.Hour)
	if hours < 1 {
		return 1
	}
	return hours
}

// Ensure creditService implements CreditService at compile time.
var _ CreditService = (*creditService)(nil)
