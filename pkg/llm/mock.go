package llm

import (
	"context"
)

// MockAdapter is a mock implementation of ProviderAdapter for testing.
type MockAdapter struct {
	NameFunc   func() string
	StreamFunc func(ctx context.Context, req *ChatRequest, events chan<- StreamEvent) error

	// StreamCalls records every request passed to Stream.
	StreamCalls []*ChatRequest
}

// Name implements ProviderAdapter.
func (m *MockAdapter) Name() string {
	if m.NameFunc != nil {
		return m.NameFunc()
	}
	return "mock"
}

// Stream implements ProviderAdapter.
func (m *MockAdapter) Stream(ctx context.Context, req *ChatRequest, events chan<- StreamEvent) error {
	m.StreamCalls = append(m.StreamCalls, req)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req, events)
	}
	events <- StreamEvent{Type: StreamEventDone}
	return nil
}

// NewScriptedAdapter returns a mock that emits the given text chunks followed
// by a done event, honoring context cancellation between chunks.
func NewScriptedAdapter(name string, chunks ...string) *MockAdapter {
	return &MockAdapter{
		NameFunc: func() string { return name },
		StreamFunc: func(ctx context.Context, _ *ChatRequest, events chan<- StreamEvent) error {
			for _, chunk := range chunks {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case events <- StreamEvent{Type: StreamEventText, Content: chunk}:
				}
			}
			events <- StreamEvent{Type: StreamEventDone}
			return nil
		},
	}
}

// Ensure MockAdapter implements ProviderAdapter at compile time.
var _ ProviderAdapter = (*MockAdapter)(nil)
