// Package llm provides the provider adapter layer. Each upstream LLM vendor
// speaks its own request shape and streaming framing; adapters absorb that
// heterogeneity and emit one canonical event stream so the relay can treat
// every provider identically.
package llm

import (
	"context"

	"github.com/siteiq-ai/siteiq-engine/pkg/models"
)

// StreamEvent represents a normalized streaming event from a provider.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Content string          `json:"content,omitempty"`
}

// StreamEventType defines types of streaming events.
type StreamEventType string

const (
	StreamEventText  StreamEventType = "text"
	StreamEventDone  StreamEventType = "done"
	StreamEventError StreamEventType = "error"
)

// ChatRequest is the provider-independent request handed to an adapter.
type ChatRequest struct {
	Model        string // API model name, already resolved via the route table
	SystemPrompt string
	Messages     []models.ChatMessage
	Temperature  float64
}

// ProviderAdapter translates the canonical chat request into one vendor's
// wire format and its streaming response back into StreamEvents.
//
// Stream returns an error only for failures before any event was emitted
// (bad request, non-2xx upstream status, connection refused). Once streaming
// has begun, failures are delivered as a StreamEventError on the channel and
// Stream returns nil. Every successful stream ends with exactly one
// StreamEventDone. Stream never closes the channel; the caller owns it.
type ProviderAdapter interface {
	// Name returns the provider identifier used in routing and logs.
	Name() string

	// Stream performs the upstream call and emits normalized events.
	Stream(ctx context.Context, req *ChatRequest, events chan<- StreamEvent) error
}

// Complete is a convenience for non-streaming callers (compare, advisor).
// It drains a Stream call into a single string.
func Complete(ctx context.Context, adapter ProviderAdapter, req *ChatRequest) (string, error) {
	events := make(chan StreamEvent, 64)
	errCh := make(chan error, 1)

	go func() {
		errCh <- adapter.Stream(ctx, req, events)
		close(events)
	}()

	var sb []byte
	var streamErr error
	for ev := range events {
		switch ev.Type {
		case StreamEventText:
			sb = append(sb, ev.Content...)
		case StreamEventError:
			streamErr = NewError(ErrorTypeUnknown, ev.Content, false, nil)
		}
	}

	if err := <-errCh; err != nil {
		return "", err
	}
	if streamErr != nil {
		return "", streamErr
	}
	return string(sb), nil
}
