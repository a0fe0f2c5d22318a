package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Middleware provides HTTP authentication middleware.
// It is thin and delegates authentication logic to AuthService.
type Middleware struct {
	authService   AuthService
	internalToken string
	logger        *zap.Logger
}

// NewMiddleware creates a new auth middleware with the given AuthService.
// internalToken authorizes service-to-service calls; empty disables them.
func NewMiddleware(authService AuthService, internalToken string, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService:   authService,
		internalToken: internalToken,
		logger:        logger,
	}
}

// RequireAuth validates the bearer JWT and requires the subject to be a user
// UUID. Sets claims and token in context for downstream handlers.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, token, err := m.authService.ValidateRequest(r)
		if err != nil {
			m.unauthorized(w, "Authentication required")
			return
		}

		if _, err := m.authService.RequireUserID(claims); err != nil {
			m.unauthorized(w, "Invalid token subject")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		ctx = context.WithValue(ctx, TokenKey, token)
		next(w, r.WithContext(ctx))
	}
}

// RequireInternal authorizes service-to-service calls with the shared
// internal token. Used by the crawler pipeline to post profile updates.
func (m *Middleware) RequireInternal(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Internal-Token")
		if m.internalToken == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(m.internalToken)) != 1 {
			m.logger.Warn("Rejected internal call with bad token",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr))
			m.unauthorized(w, "Internal authorization required")
			return
		}
		next(w, r)
	}
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}
