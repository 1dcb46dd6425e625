package middleware

import (
	"context"

	"github.com/repairradar/repairradar/internal/broker"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	userIDKey    contextKey = "user_id"
	emailKey     contextKey = "email"
	tokenKey     contextKey = "token"
	tenantKey    contextKey = "tenant"
)

func requestIDToContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id, or ""
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// UserIDToContext stores the authenticated user id
func UserIDToContext(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user id, or ""
func UserIDFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDKey).(string); ok {
		return userID
	}
	return ""
}

// EmailToContext stores the authenticated user's email
func EmailToContext(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailKey, email)
}

// EmailFromContext returns the authenticated user's email, or ""
func EmailFromContext(ctx context.Context) string {
	if email, ok := ctx.Value(emailKey).(string); ok {
		return email
	}
	return ""
}

// TokenToContext stores the bearer token, which is also the session key
func TokenToContext(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFromContext returns the bearer token, or ""
func TokenFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(tokenKey).(string); ok {
		return token
	}
	return ""
}

// TenantToContext stores the tenant handle bound to the request
func TenantToContext(ctx context.Context, h broker.Handle) context.Context {
	return context.WithValue(ctx, tenantKey, h)
}

// TenantFromContext returns the tenant handle bound to the request
func TenantFromContext(ctx context.Context) (broker.Handle, bool) {
	h, ok := ctx.Value(tenantKey).(broker.Handle)
	return h, ok && h != nil
}
