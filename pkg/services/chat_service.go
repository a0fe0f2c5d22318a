package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteiq-ai/siteiq-engine/pkg/llm"
	"github.com/siteiq-ai/siteiq-engine/pkg/models"
	"github.com/siteiq-ai/siteiq-engine/pkg/prompts"
	"github.com/siteiq-ai/siteiq-engine/pkg/repositories"
)

// ChatStreamRequest is one relay invocation: one inbound request, one
// outbound provider call, no fan-out.
type ChatStreamRequest struct {
	UserID         uuid.UUID
	ConversationID *uuid.UUID
	ModelKey       string
	Messages       []models.ChatMessage
}

// ChatService orchestrates the streaming relay: charge credits, assemble
// website-profile context, dispatch to the routed provider, and refund on
// failure.
type ChatService interface {
	// Stream charges the user and pipes provider events into the channel.
	// A non-nil error means no events were produced: either a *CreditDenial,
	// a *llm.Error from the provider, or an internal error. Credits charged
	// for a failed dispatch are refunded before the error returns.
	Stream(ctx context.Context, req *ChatStreamRequest, events chan<- llm.StreamEvent) error
}

type chatService struct {
	registry *llm.Registry
	breakers *llm.BreakerSet
	credits  CreditService
	profiles repositories.ProfileRepository
	logger   *zap.Logger
}

// NewChatService creates a new chat relay service.
func NewChatService(
	registry *llm.Registry,
	breakers *llm.BreakerSet,
	credits CreditService,
	profiles repositories.ProfileRepository,
	logger *zap.Logger,
) ChatService {
	return &chatService{
		registry: registry,
		breakers: breakers,
		credits:  credits,
		profiles: profiles,
		logger:   logger.Named("chat"),
	}
}

// Stream runs the relay for one chat request.
func (s *chatService) Stream(ctx context.Context, req *ChatStreamRequest, events chan<- llm.StreamEvent) error {
	route := llm.ResolveModel(req.ModelKey)

	if err := s.credits.CheckAndDeduct(ctx, req.UserID, route.Cost, route.Premium); err != nil {
		return err
	}

	systemPrompt := s.assembleSystemPrompt(ctx, req)

	adapter, err := s.registry.AdapterFor(route.Provider)
	if err != nil {
		// Credits were already charged; a misconfigured provider is our
		// fault, not the user's.
		s.credits.Refund(ctx, req.UserID, route.Cost)
		return err
	}

	breaker := s.breakers.For(route.Provider)
	if allowed, berr := breaker.Allow(); !allowed {
		s.credits.Refund(ctx, req.UserID, route.Cost)
		return llm.NewError(llm.ErrorTypeEndpoint, berr.Error(), false, berr)
	}

	chatReq := &llm.ChatRequest{
		Model:        route.APIModel,
		SystemPrompt: systemPrompt,
		Messages:     req.Messages,
	}

	s.logger.Info("Dispatching chat request",
		zap.String("user_id", req.UserID.String()),
		zap.String("model_key", req.ModelKey),
		zap.String("provider", route.Provider),
		zap.String("api_model", route.APIModel))

	if err := adapter.Stream(ctx, chatReq, events); err != nil {
		breaker.RecordFailure()
		s.credits.Refund(ctx, req.UserID, route.Cost)
		return fmt.Errorf("provider %s stream failed: %w", route.Provider, err)
	}

	breaker.RecordSuccess()
	return nil
}

// assembleSystemPrompt appends completed website-profile context when a
// conversation id was supplied. A context fetch failure degrades to the base
// prompt rather than failing the request.
func (s *chatService) assembleSystemPrompt(ctx context.Context, req *ChatStreamRequest) string {
	if req.ConversationID == nil {
		return prompts.BaseSystemPrompt
	}

	profileRows, err := s.profiles.ListCompletedByConversation(ctx, req.UserID, *req.ConversationID)
	if err != nil {
		s.logger.Warn("Failed to load profile context",
			zap.String("conversation_id", req.ConversationID.String()),
			zap.Error(err))
		return prompts.BaseSystemPrompt
	}

	profiles := make([]models.WebsiteProfile, 0, len(profileRows))
	for _, p := range profileRows {
		profiles = append(profiles, *p)
	}
	return prompts.AppendProfileContext(prompts.BaseSystemPrompt, profiles)
}

// Ensure chatService implements ChatService at compile time.
var _ ChatService = (*chatService)(nil)
