package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteiq-ai/siteiq-engine/pkg/llm"
	"github.com/siteiq-ai/siteiq-engine/pkg/models"
	"github.com/siteiq-ai/siteiq-engine/pkg/prompts"
)

// Advisor call bounds. The provider call is the only unbounded wait in the
// advisor path, so it gets an explicit deadline per mode.
const (
	advisorQuickTimeout = 20 * time.Second
	advisorDeepTimeout  = 40 * time.Second

	advisorQuickModelKey = "gemini-flash"
	advisorDeepModelKey  = "gemini-pro"
)

// AdvisorService evaluates business ideas with a single non-streaming
// provider call bounded by a per-mode timeout.
type AdvisorService interface {
	// Advise charges the routed model's credit cost and returns the
	// provider's full answer. Deep mode uses the premium model and the
	// longer deadline.
	Advise(ctx context.Context, userID uuid.UUID, idea string, deep bool) (string, error)
}

type advisorService struct {
	registry *llm.Registry
	breakers *llm.BreakerSet
	credits  CreditService
	logger   *zap.Logger
}

// NewAdvisorService creates a new advisor service.
func NewAdvisorService(
	registry *llm.Registry,
	breakers *llm.BreakerSet,
	credits CreditService,
	logger *zap.Logger,
) AdvisorService {
	return &advisorService{
		registry: registry,
		breakers: breakers,
		credits:  credits,
		logger:   logger.Named("advisor"),
	}
}

// Advise runs one bounded advisor call.
func (s *advisorService) Advise(ctx context.Context, userID uuid.UUID, idea string, deep bool) (string, error) {
	modelKey := advisorQuickModelKey
	timeout := advisorQuickTimeout
	if deep {
		modelKey = advisorDeepModelKey
		timeout = advisorDeepTimeout
	}
	route := llm.ResolveModel(modelKey)

	if err := s.credits.CheckAndDeduct(ctx, userID, route.Cost, route.Premium); err != nil {
		return "", err
	}

	adapter, err := s.registry.AdapterFor(route.Provider)
	if err != nil {
		s.credits.Refund(ctx, userID, route.Cost)
		return "", err
	}

	breaker := s.breakers.For(route.Provider)
	if allowed, berr := breaker.Allow(); !allowed {
		s.credits.Refund(ctx, userID, route.Cost)
		return "", llm.NewError(llm.ErrorTypeEndpoint, berr.Error(), false, berr)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	answer, err := llm.Complete(callCtx, adapter, &llm.ChatRequest{
		Model:        route.APIModel,
		SystemPrompt: prompts.AdvisorSystemPrompt,
		Messages: []models.ChatMessage{
			{Role: models.ChatRoleUser, Content: prompts.BuildAdvisorPrompt(idea, deep)},
		},
	})
	if err != nil {
		breaker.RecordFailure()
		s.credits.Refund(ctx, userID, route.Cost)
		return "", fmt.Errorf("advisor call failed: %w", err)
	}

	breaker.RecordSuccess()
	s.logger.Info("Advisor call completed",
		zap.String("user_id", userID.String()),
		zap.Bool("deep", deep),
		zap.Duration("elapsed", time.Since(start)))
	return answer, nil
}

// Ensure advisorService implements AdvisorService at compile time.
var _ AdvisorService = (*advisorService)(nil)
