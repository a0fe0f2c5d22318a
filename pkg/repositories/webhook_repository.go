package repositories

import (
	"context"
	"fmt"

	"github.com/siteiq-ai/siteiq-engine/pkg/apperrors"
	"github.com/siteiq-ai/siteiq-engine/pkg/database"
)

// WebhookRepository defines data access for the webhook idempotency ledger.
// The ledger is append-only: rows are inserted on first successful handling
// of an external event id and never mutated or deleted.
type WebhookRepository interface {
	// MarkProcessed records an event id as handled. The insert relies on the
	// primary key to detect replays: a duplicate returns
	// apperrors.ErrDuplicateEvent without touching the existing row.
	MarkProcessed(ctx context.Context, eventID, eventType string) error
}

// webhookRepository implements WebhookRepository using PostgreSQL.
type webhookRepository struct {
	db *database.DB
}

// NewWebhookRepository creates a new webhook repository.
func NewWebhookRepository(db *database.DB) WebhookRepository {
	return &webhookRepository{db: db}
}

// MarkProcessed records an event id as handled, detecting replays.
func (r *webhookRepository) MarkProcessed(ctx context.Context, eventID, eventType string) error {
	query := `
		INSERT INTO processed_webhook_events (event_id, event_type, processed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (event_id) DO NOTHING`

	tag, err := r.db.Exec(ctx, query, eventID, eventType)
	if err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrDuplicateEvent
	}
	return nil
}

// Ensure webhookRepository implements WebhookRepository at compile time.
var _ WebhookRepository = (*webhookRepository)(nil)
