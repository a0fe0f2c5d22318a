package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/siteiq-ai/siteiq-engine/pkg/apperrors"
	"github.com/siteiq-ai/siteiq-engine/pkg/database"
	"github.com/siteiq-ai/siteiq-engine/pkg/models"
)

// CreditRepository defines data access for the per-user credit ledger.
//
// Deduction and feature increments are atomic conditional updates: the limit
// check and the write happen in a single UPDATE so two concurrent requests
// from the same user cannot both pass the check and overdraw the allowance.
type CreditRepository interface {
	// GetByUserID retrieves a user's credit row. Returns apperrors.ErrNotFound
	// if no row exists.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UserCredits, error)

	// Create inserts a new credit row for a user.
	Create(ctx context.Context, credits *models.UserCredits) error

	// ResetDailyWindow zeroes credits_used and moves credits_reset_at forward,
	// but only if the stored reset time is still at or before observedResetAt.
	// A concurrent request that already reset the window makes this a no-op.
	ResetDailyWindow(ctx context.Context, userID uuid.UUID, observedResetAt, newResetAt time.Time) error

	// TryDeduct atomically adds cost to credits_used if the result stays
	// within daily_credits_limit. Returns false when the allowance is
	// insufficient; no write happens in that case.
	TryDeduct(ctx context.Context, userID uuid.UUID, cost int) (bool, error)

	// Refund subtracts cost from credits_used, clamped at zero.
	Refund(ctx context.Context, userID uuid.UUID, cost int) error

	// SetPremium flips premium status and the daily allowance together.
	SetPremium(ctx context.Context, userID uuid.UUID, isPremium bool, dailyLimit int) error

	// ResetFeatureWindow zeroes a feature counter and restarts its rolling
	// window, but only if the stored window start is at or before
	// expiredBefore. No-op when a concurrent request already reset it.
	ResetFeatureWindow(ctx context.Context, userID uuid.UUID, feature models.Feature, expiredBefore, newStart time.Time) error

	// TryConsumeFeature atomically increments a feature counter if the result
	// stays within limit. Returns false when the window allowance is used up.
	TryConsumeFeature(ctx context.Context, userID uuid.UUID, feature models.Feature, limit int) (bool, error)
}

// creditRepository implements CreditRepository using PostgreSQL.
type creditRepository struct {
	db *database.DB
}

// NewCreditRepository creates a new credit repository.
func NewCreditRepository(db *database.DB) CreditRepository {
	return &creditRepository{db: db}
}

const creditColumns = `user_id, is_premium, daily_credits_limit, credits_used, credits_reset_at,
	market_research_count, market_research_window_start,
	deep_analysis_count, deep_analysis_window_start,
	standard_analysis_count, standard_analysis_window_start,
	created_at, updated_at`

func scanCredits(row pgx.Row) (*models.UserCredits, error) {
	var c models.UserCredits
	err := row.Scan(
		&c.UserID, &c.IsPremium, &c.DailyCreditsLimit, &c.CreditsUsed, &c.CreditsResetAt,
		&c.MarketResearchCount, &c.MarketResearchWindowStart,
		&c.DeepAnalysisCount, &c.DeepAnalysisWindowStart,
		&c.StandardAnalysisCount, &c.StandardAnalysisWindowStart,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByUserID retrieves a user's credit row.
func (r *creditRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UserCredits, error) {
	query := `SELECT ` + creditColumns + ` FROM user_credits WHERE user_id = $1`

	credits, err := scanCredits(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user credits: %w", err)
	}
	return credits, nil
}

// Create inserts a new credit row for a user.
func (r *creditRepository) Create(ctx context.Context, credits *models.UserCredits) error {
	now := time.Now()
	credits.CreatedAt = now
	credits.UpdatedAt = now

	query := `
		INSERT INTO user_credits (` + creditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.Exec(ctx, query,
		credits.UserID, credits.IsPremium, credits.DailyCreditsLimit, credits.CreditsUsed, credits.CreditsResetAt,
		credits.MarketResearchCount, credits.MarketResearchWindowStart,
		credits.DeepAnalysisCount, credits.DeepAnalysisWindowStart,
		credits.StandardAnalysisCount, credits.StandardAnalysisWindowStart,
		credits.CreatedAt, credits.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user credits: %w", err)
	}
	return nil
}

// ResetDailyWindow lazily resets an expired daily window.
func (r *creditRepository) ResetDailyWindow(ctx context.Context, userID uuid.UUID, observedResetAt, newResetAt time.Time) error {
	query := `
		UPDATE user_credits
		SET credits_used = 0, credits_reset_at = $2, updated_at = NOW()
		WHERE user_id = $1 AND credits_reset_at <= $3`

	_, err := r.db.Exec(ctx, query, userID, newResetAt, observedResetAt)
	if err != nil {
		return fmt.Errorf("failed to reset daily credit window: %w", err)
	}
	return nil
}

// TryDeduct atomically deducts cost within the daily allowance.
func (r *creditRepository) TryDeduct(ctx context.Context, userID uuid.UUID, cost int) (bool, error) {
	query := `
		UPDATE user_credits
		SET credits_used = credits_used + $2, updated_at = NOW()
		WHERE user_id = $1 AND credits_used + $2 <= daily_credits_limit`

	tag, err := r.db.Exec(ctx, query, userID, cost)
	if err != nil {
		return false, fmt.Errorf("failed to deduct credits: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Refund restores previously deducted credits, clamped at zero.
func (r *creditRepository) Refund(ctx context.Context, userID uuid.UUID, cost int) error {
	query := `
		UPDATE user_credits
		SET credits_used = GREATEST(credits_used - $2, 0), updated_at = NOW()
		WHERE user_id = $1`

	tag, err := r.db.Exec(ctx, query, userID, cost)
	if err != nil {
		return fmt.Errorf("failed to refund credits: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// SetPremium flips premium status and the daily allowance together.
func (r *creditRepository) SetPremium(ctx context.Context, userID uuid.UUID, isPremium bool, dailyLimit int) error {
	query := `
		UPDATE user_credits
		SET is_premium = $2, daily_credits_limit = $3, updated_at = NOW()
		WHERE user_id = $1`

	tag, err := r.db.Exec(ctx, query, userID, isPremium, dailyLimit)
	if err != nil {
		return fmt.Errorf("failed to set premium status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// featureColumns maps a feature to its counter and window-start column names.
// Column names are static; never interpolate caller input into SQL.
func featureColumns(feature models.Feature) (countCol, windowCol string, err error) {
	switch feature {
	case models.FeatureMarketResearch:
		return "market_research_count", "market_research_window_start", nil
	case models.FeatureDeepAnalysis:
		return "deep_analysis_count", "deep_analysis_window_start", nil
	case models.FeatureStandardAnalysis:
		return "standard_analysis_count", "standard_analysis_window_start", nil
	default:
		return "", "", fmt.Errorf("unknown feature: %s", feature)
	}
}

// ResetFeatureWindow lazily resets an expired feature window.
func (r *creditRepository) ResetFeatureWindow(ctx context.Context, userID uuid.UUID, feature models.Feature, expiredBefore, newStart time.Time) error {
	countCol, windowCol, err := featureColumns(feature)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE user_credits
		SET %s = 0, %s = $2, updated_at = NOW()
		WHERE user_id = $1 AND %s <= $3`, countCol, windowCol, windowCol)

	_, err = r.db.Exec(ctx, query, userID, newStart, expiredBefore)
	if err != nil {
		return fmt.Errorf("failed to reset %s window: %w", feature, err)
	}
	return nil
}

// TryConsumeFeature atomically increments a feature counter within its limit.
func (r *creditRepository) TryConsumeFeature(ctx context.Context, userID uuid.UUID, feature models.Feature, limit int) (bool, error) {
	countCol, _, err := featureColumns(feature)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		UPDATE user_credits
		SET %s = %s + 1, updated_at = NOW()
		WHERE user_id = $1 AND %s + 1 <= $2`, countCol, countCol, countCol)

	tag, err := r.db.Exec(ctx, query, userID, limit)
	if err != nil {
		return false, fmt.Errorf("failed to consume %s allowance: %w", feature, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Ensure creditRepository implements CreditRepository at compile time.
var _ CreditRepository = (*creditRepository)(nil)
