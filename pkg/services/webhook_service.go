package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteiq-ai/siteiq-engine/pkg/apperrors"
	"github.com/siteiq-ai/siteiq-engine/pkg/models"
	"github.com/siteiq-ai/siteiq-engine/pkg/repositories"
)

// Webhook processing errors surfaced to the handler.
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

// WebhookService verifies and applies payment provider webhook deliveries.
// Replayed event ids are detected via the idempotency ledger and acknowledged
// without reprocessing.
type WebhookService interface {
	// VerifySignature checks the hex HMAC-SHA256 signature over the raw body.
	VerifySignature(body []byte, signature string) error

	// Process decodes the event, records it in the idempotency ledger, and
	// applies the premium status change. A replayed event id returns
	// (event, true, nil) without reprocessing.
	Process(ctx context.Context, body []byte) (event *models.WebhookEvent, replay bool, err error)
}

type webhookService struct {
	repo    repositories.WebhookRepository
	credits CreditService
	secret  []byte
	logger  *zap.Logger
}

// NewWebhookService creates a new webhook service.
func NewWebhookService(
	repo repositories.WebhookRepository,
	credits CreditService,
	secret string,
	logger *zap.Logger,
) WebhookService {
	return &webhookService{
		repo:    repo,
		credits: credits,
		secret:  []byte(secret),
		logger:  logger.Named("webhook"),
	}
}

// VerifySignature checks the hex HMAC-SHA256 signature over the raw body.
// Comparison is constant-time.
func (s *webhookService) VerifySignature(body []byte, signature string) error {
	if len(s.secret) == 0 {
		return fmt.Errorf("webhook secret is not configured")
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// Process records the event and applies the premium status change.
//
// The ledger insert happens before the status change: a concurrent redelivery
// of the same event id loses the insert race and is acknowledged as a replay,
// so the status change applies at most once.
func (s *webhookService) Process(ctx context.Context, body []byte) (*models.WebhookEvent, bool, error) {
	var event models.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, false, fmt.Errorf("%w: missing event id or type", ErrMalformedEvent)
	}

	if err := s.repo.MarkProcessed(ctx, event.ID, event.Type); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateEvent) {
			s.logger.Info("Webhook replay acknowledged",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.Type))
			return &event, true, nil
		}
		return nil, false, fmt.Errorf("failed to record webhook event: %w", err)
	}

	if err := s.apply(ctx, &event); err != nil {
		// The ledger row stays: redeliveries of a half-applied event are
		// acknowledged rather than double-applied. The failure is logged for
		// manual follow-up.
		s.logger.Error("Failed to apply webhook event",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err))
		return nil, false, err
	}

	s.logger.Info("Webhook event processed",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type))
	return &event, false, nil
}

func (s *webhookService) apply(ctx context.Context, event *models.WebhookEvent) error {
	switch event.Type {
	case models.WebhookSubscriptionCreated, models.WebhookPaymentCreated:
		return s.setPremium(ctx, event, true)
	case models.WebhookSubscriptionCancelled, models.WebhookSubscriptionExpired:
		return s.setPremium(ctx, event, false)
	default:
		// Unknown event types are recorded and acknowledged without action.
		s.logger.Debug("Ignoring webhook event type", zap.String("event_type", event.Type))
		return nil
	}
}

func (s *webhookService) setPremium(ctx context.Context, event *models.WebhookEvent, isPremium bool) error {
	userID, err := uuid.Parse(event.UserID)
	if err != nil {
		return fmt.Errorf("%w: invalid user id %q", ErrMalformedEvent, event.UserID)
	}
	return s.credits.SetPremium(ctx, userID, isPremium)
}

// Ensure webhookService implements WebhookService at compile time.
var _ WebhookService = (*webhookService)(nil)
