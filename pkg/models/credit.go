package models

import (
	"time"

	"github.com/google/uuid"
)

// UserCredits is the per-user credit ledger row. One row per user, created at
// signup, never deleted. The daily allowance and the three feature windows
// reset lazily: there is no background sweep, every read that observes an
// expired window persists the reset before evaluating the request.
type UserCredits struct {
	UserID            uuid.UUID `json:"user_id"`
	IsPremium         bool      `json:"is_premium"`
	DailyCreditsLimit int       `json:"daily_credits_limit"`
	CreditsUsed       int       `json:"credits_used"`
	CreditsResetAt    time.Time `json:"credits_reset_at"`

	MarketResearchCount       int       `json:"market_research_count"`
	MarketResearchWindowStart time.Time `json:"market_research_window_start"`

	DeepAnalysisCount       int       `json:"deep_analysis_count"`
	DeepAnalysisWindowStart time.Time `json:"deep_analysis_window_start"`

	StandardAnalysisCount       int       `json:"standard_analysis_count"`
	StandardAnalysisWindowStart time.Time `json:"standard_analysis_window_start"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreditsRemaining returns the credits left in the current daily window.
func (c *UserCredits) CreditsRemaining() int {
	remaining := c.DailyCreditsLimit - c.CreditsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HoursUntilReset returns the whole hours until the daily window resets,
// rounded up, never below 1. Used in the insufficient_credits error code.
func (c *UserCredits) HoursUntilReset(now time.Time) int {
	remaining := c.CreditsResetAt.Sub(now)
	if remaining <= 0 {
		return 1
	}
	hours := int((remaining + time.Hour - 1) / time.Hour)
	if hours < 1 {
		return 1
	}
	return hours
}

// Feature identifies a rolling-window gated capability.
type Feature string

const (
	FeatureMarketResearch   Feature = "market_research"
	FeatureDeepAnalysis     Feature = "deep_analysis"
	FeatureStandardAnalysis Feature = "standard_analysis"
)

// FeatureWindow is the rolling-window duration for all gated features.
const FeatureWindow = 24 * time.Hour

// FeatureLimit returns the per-window allowance for a feature given premium
// status. Unknown features have a zero limit.
func FeatureLimit(feature Feature, isPremium bool) int {
	switch feature {
	case FeatureMarketResearch:
		if isPremium {
			return 5
		}
		return 1
	case FeatureDeepAnalysis:
		if isPremium {
			return 2
		}
		return 0
	case FeatureStandardAnalysis:
		if isPremium {
			return 6
		}
		return 2
	default:
		return 0
	}
}
