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

// ProfileRepository defines data access for website profiles.
// Rows are created in pending state; the crawler pipeline advances status via
// UpdateStatus, and the context assembler reads only completed rows.
type ProfileRepository interface {
	// Create inserts a new profile in pending state.
	Create(ctx context.Context, profile *models.WebsiteProfile) error

	// GetByID retrieves a profile by ID. Returns apperrors.ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*models.WebsiteProfile, error)

	// ListByConversation retrieves all profiles for a conversation owned by userID,
	// oldest first.
	ListByConversation(ctx context.Context, userID, conversationID uuid.UUID) ([]*models.WebsiteProfile, error)

	// ListCompletedByConversation retrieves completed profiles for a conversation
	// owned by userID, oldest first. Used by the context assembler.
	ListCompletedByConversation(ctx context.Context, userID, conversationID uuid.UUID) ([]*models.WebsiteProfile, error)

	// UpdateStatus writes the fields the crawler pipeline reports for a profile.
	UpdateStatus(ctx context.Context, id uuid.UUID, update *ProfileStatusUpdate) error
}

// ProfileStatusUpdate carries the fields the crawler pipeline may set on a
// profile. Nil pointer fields keep the stored value.
type ProfileStatusUpdate struct {
	Status         models.ProfileStatus
	OverallScore   *float64
	CategoryScores map[string]any
	Profile        map[string]any
	CrawledContent *string
	ErrorMessage   *string
}

// profileRepository implements ProfileRepository using PostgreSQL.
type profileRepository struct {
	db *database.DB
}

// NewProfileRepository creates a new profile repository.
func NewProfileRepository(db *database.DB) ProfileRepository {
	return &profileRepository{db: db}
}

const profileColumns = `id, conversation_id, user_id, url, is_own_website, status,
	overall_score, category_scores, profile, crawled_content, error_message,
	created_at, updated_at`

func scanProfile(row pgx.Row) (*models.WebsiteProfile, error) {
	var p models.WebsiteProfile
	err := row.Scan(
		&p.ID, &p.ConversationID, &p.UserID, &p.URL, &p.IsOwnWebsite, &p.Status,
		&p.OverallScore, &p.CategoryScores, &p.Profile, &p.CrawledContent, &p.ErrorMessage,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new profile in pending state.
func (r *profileRepository) Create(ctx context.Context, profile *models.WebsiteProfile) error {
	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now
	if profile.Status == "" {
		profile.Status = models.ProfileStatusPending
	}

	query := `
		INSERT INTO website_profiles (conversation_id, user_id, url, is_own_website, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		profile.ConversationID,
		profile.UserID,
		profile.URL,
		profile.IsOwnWebsite,
		profile.Status,
		profile.CreatedAt,
		profile.UpdatedAt,
	).Scan(&profile.ID)
	if err != nil {
		return fmt.Errorf("failed to create website profile: %w", err)
	}
	return nil
}

// GetByID retrieves a profile by ID.
func (r *profileRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WebsiteProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM website_profiles WHERE id = $1`

	profile, err := scanProfile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get website profile: %w", err)
	}
	return profile, nil
}

// ListByConversation retrieves all profiles for a conversation owned by userID.
func (r *profileRepository) ListByConversation(ctx context.Context, userID, conversationID uuid.UUID) ([]*models.WebsiteProfile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM website_profiles
		WHERE user_id = $1 AND conversation_id = $2
		ORDER BY created_at ASC`

	return r.queryProfiles(ctx, query, userID, conversationID)
}

// ListCompletedByConversation retrieves completed profiles for a conversation.
func (r *profileRepository) ListCompletedByConversation(ctx context.Context, userID, conversationID uuid.UUID) ([]*models.WebsiteProfile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM website_profiles
		WHERE user_id = $1 AND conversation_id = $2 AND status = $3
		ORDER BY created_at ASC`

	return r.queryProfiles(ctx, query, userID, conversationID, models.ProfileStatusCompleted)
}

func (r *profileRepository) queryProfiles(ctx context.Context, query string, args ...any) ([]*models.WebsiteProfile, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list website profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.WebsiteProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan website profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate website profiles: %w", err)
	}
	return profiles, nil
}

// UpdateStatus writes pipeline-reported fields for a profile.
func (r *profileRepository) UpdateStatus(ctx context.Context, id uuid.UUID, update *ProfileStatusUpdate) error {
	query := `
		UPDATE website_profiles
		SET status = $2,
			overall_score = COALESCE($3, overall_score),
			category_scores = COALESCE($4, category_scores),
			profile = COALESCE($5, profile),
			crawled_content = COALESCE($6, crawled_content),
			error_message = COALESCE($7, error_message),
			updated_at = NOW()
		WHERE id = $1`

	var categoryScores, profileData any
	if update.CategoryScores != nil {
		categoryScores = update.CategoryScores
	}
	if update.Profile != nil {
		profileData = update.Profile
	}

	tag, err := r.db.Exec(ctx, query,
		id,
		update.Status,
		update.OverallScore,
		categoryScores,
		profileData,
		update.CrawledContent,
		update.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to update website profile status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Ensure profileRepository implements ProfileRepository at compile time.
var _ ProfileRepository = (*profileRepository)(nil)
