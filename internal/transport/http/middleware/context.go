package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"

	"branchpay/internal/domain/auth"
)

type ctxKey string

const ctxKeyUser ctxKey = "session"

func WithUser(ctx context.Context, session auth.Session) context.Context {
	return context.WithValue(ctx, ctxKeyUser, session)
}

func GetUser(ctx context.Context) (auth.Session, bool) {
	session, ok := ctx.Value(ctxKeyUser).(auth.Session)
	return session, ok
}

// GetRequestID returns the id assigned by chi's RequestID middleware.
func GetRequestID(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}
