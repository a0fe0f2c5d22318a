package models

import (
	"time"

	"github.com/google/uuid"
)

// ProfileStatus is the lifecycle state of a website profile.
// Transitions are written by the external crawler/analyzer pipeline;
// the engine only creates rows in pending and reads completed ones.
type ProfileStatus string

const (
	ProfileStatusPending   ProfileStatus = "pending"
	ProfileStatusCrawling  ProfileStatus = "crawling"
	ProfileStatusAnalyzing ProfileStatus = "analyzing"
	ProfileStatusCompleted ProfileStatus = "completed"
	ProfileStatusError     ProfileStatus = "error"
)

// ValidProfileStatuses contains all valid status values.
var ValidProfileStatuses = []ProfileStatus{
	ProfileStatusPending,
	ProfileStatusCrawling,
	ProfileStatusAnalyzing,
	ProfileStatusCompleted,
	ProfileStatusError,
}

// IsValidProfileStatus checks if the given status is valid.
func IsValidProfileStatus(status ProfileStatus) bool {
	for _, s := range ValidProfileStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// WebsiteProfile represents one crawled and analyzed URL within a
// conversation, either the user's own site or a competitor's.
type WebsiteProfile struct {
	ID             uuid.UUID      `json:"id"`
	ConversationID uuid.UUID      `json:"conversation_id"`
	UserID         uuid.UUID      `json:"user_id"`
	URL            string         `json:"url"`
	IsOwnWebsite   bool           `json:"is_own_website"`
	Status         ProfileStatus  `json:"status"`
	OverallScore   *float64       `json:"overall_score,omitempty"`
	CategoryScores map[string]any `json:"category_scores,omitempty"`
	Profile        map[string]any `json:"profile,omitempty"`
	CrawledContent string         `json:"crawled_content,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
