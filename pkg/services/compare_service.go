package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteiq-ai/siteiq-engine/pkg/llm"
	"github.com/siteiq-ai/siteiq-engine/pkg/models"
	"github.com/siteiq-ai/siteiq-engine/pkg/prompts"
)

// compareModelKeys are the fixed models a comparison fans out to, one per
// distinct provider tier.
var compareModelKeys = []string{"gemini-flash", "gpt-4o-mini", "claude-haiku"}

// ModelComparison is one model's result in a comparison response.
type ModelComparison struct {
	ModelKey  string `json:"model"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// CompareService fans one prompt out to several models in parallel and
// aggregates all results before responding. Batch-parallel, not streaming.
type CompareService interface {
	// Compare charges one deep-analysis use and runs the prompt against the
	// comparison model set. Per-model failures land in the result rows;
	// the call as a whole only errors on denial or internal failure.
	Compare(ctx context.Context, userID uuid.UUID, messages []models.ChatMessage) ([]ModelComparison, error)
}

type compareService struct {
	registry *llm.Registry
	breakers *llm.BreakerSet
	pool     *llm.WorkerPool
	credits  CreditService
	logger   *zap.Logger
}

// NewCompareService creates a new comparison service.
func NewCompareService(
	registry *llm.Registry,
	breakers *llm.BreakerSet,
	pool *llm.WorkerPool,
	credits CreditService,
	logger *zap.Logger,
) CompareService {
	return &compareService{
		registry: registry,
		breakers: breakers,
		pool:     pool,
		credits:  credits,
		logger:   logger.Named("compare"),
	}
}

// Compare runs the prompt against the comparison model set.
func (s *compareService) Compare(ctx context.Context, userID uuid.UUID, messages []models.ChatMessage) ([]ModelComparison, error) {
	if err := s.credits.ConsumeFeature(ctx, userID, models.FeatureDeepAnalysis); err != nil {
		return nil, err
	}

	items := make([]llm.WorkItem[ModelComparison], 0, len(compareModelKeys))
	for _, modelKey := range compareModelKeys {
		items = append(items, llm.WorkItem[ModelComparison]{
			ID:      modelKey,
			Execute: s.runModel(modelKey, messages),
		})
	}

	results := llm.Process(ctx, s.pool, items)

	// Reorder into the fixed model order; completion order is arbitrary.
	byModel := make(map[string]ModelComparison, len(results))
	for _, r := range results {
		comparison := r.Result
		comparison.ModelKey = r.ID
		if r.Err != nil {
			comparison.Error = r.Err.Error()
		}
		byModel[r.ID] = comparison
	}

	ordered := make([]ModelComparison, 0, len(compareModelKeys))
	for _, modelKey := range compareModelKeys {
		ordered = append(ordered, byModel[modelKey])
	}
	return ordered, nil
}

func (s *compareService) runModel(modelKey string, messages []models.ChatMessage) func(ctx context.Context) (ModelComparison, error) {
	return func(ctx context.Context) (ModelComparison, error) {
		route := llm.ResolveModel(modelKey)
		start := time.Now()

		adapter, err := s.registry.AdapterFor(route.Provider)
		if err != nil {
			return ModelComparison{ElapsedMS: time.Since(start).Milliseconds()}, err
		}

		breaker := s.breakers.For(route.Provider)
		if allowed, berr := breaker.Allow(); !allowed {
			return ModelComparison{ElapsedMS: time.Since(start).Milliseconds()}, berr
		}

		content, err := llm.Complete(ctx, adapter, &llm.ChatRequest{
			Model:        route.APIModel,
			SystemPrompt: prompts.BaseSystemPrompt,
			Messages:     messages,
		})
		elapsed := time.Since(start).Milliseconds()
		if err != nil {
			breaker.RecordFailure()
			s.logger.Warn("Comparison model failed",
				zap.String("model_key", modelKey),
				zap.Error(err))
			return ModelComparison{ElapsedMS: elapsed}, err
		}

		breaker.RecordSuccess()
		return ModelComparison{Content: content, ElapsedMS: elapsed}, nil
	}
}

// Ensure compareService implements CompareService at compile time.
var _ CompareService = (*compareService)(nil)
