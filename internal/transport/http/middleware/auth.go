package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"branchpay/internal/domain/auth"
	"branchpay/internal/transport/http/api"
)

// SessionValidator confirms a token's session has not been revoked.
type SessionValidator interface {
	Validate(ctx context.Context, session auth.Session) error
}

// Auth attaches the caller's session when a valid bearer token is present.
// Requests without one pass through; RequireAuth rejects them.
func Auth(secret string, validator SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := auth.ParseToken(secret, parts[1])
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			session := claims.Session()
			if validator != nil {
				if err := validator.Validate(r.Context(), session); err != nil {
					slog.Info("session rejected", "userId", session.UserID, "err", err)
					next.ServeHTTP(w, r)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), session)))
		})
	}
}

func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUser(r.Context()); !ok {
			api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}
