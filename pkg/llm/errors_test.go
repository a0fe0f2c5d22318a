package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyErrorNil(t *testing.T) {
	assert.Nil(t, ClassifyError(nil))
}

func TestClassifyErrorPassthrough(t *testing.T) {
	orig := NewError(ErrorTypeQuota, "quota exhausted", false, nil)
	wrapped := fmt.Errorf("call failed: %w", orig)

	assert.Same(t, orig, ClassifyError(wrapped))
}

func TestClassifyErrorCategories(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{"auth 401", errors.New("gemini returned 401: unauthorized"), ErrorTypeAuth, false},
		{"invalid key", errors.New("invalid api key provided"), ErrorTypeAuth, false},
		{"quota 402", errors.New("perplexity returned 402: payment required"), ErrorTypeQuota, false},
		{"insufficient quota", errors.New("insufficient_quota for this org"), ErrorTypeQuota, false},
		{"rate limit 429", errors.New("gemini returned 429: slow down"), ErrorTypeRateLimit, true},
		{"rate limit text", errors.New("rate limit exceeded"), ErrorTypeRateLimit, true},
		{"model missing", errors.New("model gpt-x not found"), ErrorTypeModel, false},
		{"endpoint 404", errors.New("gemini returned 404: no route"), ErrorTypeEndpoint, false},
		{"conn refused", errors.New("dial tcp: connection refused"), ErrorTypeEndpoint, true},
		{"timeout", errors.New("context deadline exceeded"), ErrorTypeEndpoint, true},
		{"server 503", errors.New("perplexity returned 503: overloaded"), ErrorTypeEndpoint, true},
		{"unknown", errors.New("something odd"), ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := ClassifyError(tt.err)
			require.NotNil(t, classified)
			assert.Equal(t, tt.wantType, classified.Type)
			assert.Equal(t, tt.retryable, classified.Retryable)
			assert.ErrorIs(t, classified, tt.err)
		})
	}
}

func TestClassifyErrorExtractsStatusCode(t *testing.T) {
	classified := ClassifyError(errors.New("gemini returned 429: slow down"))
	assert.Equal(t, 429, classified.StatusCode)
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, 429, HTTPStatus(NewError(ErrorTypeRateLimit, "rate limited", true, nil)))
	assert.Equal(t, 402, HTTPStatus(NewError(ErrorTypeQuota, "quota exhausted", false, nil)))
	assert.Equal(t, 500, HTTPStatus(NewError(ErrorTypeAuth, "bad key", false, nil)))
	assert.Equal(t, 500, HTTPStatus(NewError(ErrorTypeEndpoint, "down", true, nil)))
	assert.Equal(t, 500, HTTPStatus(errors.New("plain error")))

	// Wrapping preserves the mapping.
	wrapped := fmt.Errorf("provider perplexity stream failed: %w",
		NewError(ErrorTypeRateLimit, "rate limited", true, nil))
	assert.Equal(t, 429, HTTPStatus(wrapped))
}

func TestErrorStringIncludesContext(t *testing.T) {
	err := &Error{
		Type:       ErrorTypeRateLimit,
		Message:    "rate limited",
		StatusCode: 429,
		Provider:   "gemini",
		Cause:      errors.New("upstream said no"),
	}
	s := err.Error()
	assert.Contains(t, s, "rate_limit")
	assert.Contains(t, s, "HTTP 429")
	assert.Contains(t, s, "provider=gemini")
	assert.Contains(t, s, "upstream said no")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewError(ErrorTypeRateLimit, "rate limited", true, nil)))
	assert.False(t, IsRetryable(NewError(ErrorTypeAuth, "bad key", false, nil)))
	assert.False(t, IsRetryable(errors.New("plain error")))
}
