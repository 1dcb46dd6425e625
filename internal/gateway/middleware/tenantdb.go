package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/repairradar/repairradar/internal/broker"
	"github.com/repairradar/repairradar/internal/gateway/jwt"
)

// SessionExpiredMessage is returned whenever a valid token cannot be bound
// to a tenant database
const SessionExpiredMessage = "Session expired or connection closed. Please login again."

// TokenVerifier validates bearer tokens
type TokenVerifier interface {
	VerifyToken(token string) (*jwt.Claims, error)
}

// RouteSource resolves a user's tenant route
type RouteSource interface {
	Route(ctx context.Context, userID string) (broker.TenantRoute, error)
}

// TenantResolver binds a session key to a tenant handle
type TenantResolver interface {
	Resolve(ctx context.Context, key string, resolve broker.RouteResolver) (broker.Handle, error)
}

// TenantDBMiddleware authenticates the bearer token and binds the caller's
// tenant database handle to the request context. The token doubles as the
// session key of the handle.
func TenantDBMiddleware(verifier TokenVerifier, tenants TenantResolver, routes RouteSource, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, r, http.StatusUnauthorized, "No token provided")
				return
			}

			token := ExtractTokenFromHeader(r)
			if token == "" {
				writeError(w, r, http.StatusUnauthorized, "Invalid token format")
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, tokenErrorMessage(err))
				return
			}

			userID := claims.UserID
			h, err := tenants.Resolve(r.Context(), token, func(ctx context.Context) (broker.TenantRoute, error) {
				return routes.Route(ctx, userID)
			})
			if err != nil {
				logger.Info("tenant binding refused",
					zap.String("request_id", RequestIDFromContext(r.Context())),
					zap.String("user_id", userID),
					zap.String("session_ref", broker.KeyRef(token)),
					zap.Error(err))
				writeError(w, r, http.StatusUnauthorized, SessionExpiredMessage)
				return
			}

			ctx := r.Context()
			ctx = UserIDToContext(ctx, userID)
			ctx = EmailToContext(ctx, claims.Email)
			ctx = TokenToContext(ctx, token)
			ctx = TenantToContext(ctx, h)

			next(w, r.WithContext(ctx))
		}
	}
}

func tokenErrorMessage(err error) string {
	switch {
	case errors.Is(err, jwt.ErrExpiredToken):
		return "Token has expired"
	case errors.Is(err, jwt.ErrInvalidSignature):
		return "Invalid token signature"
	case errors.Is(err, jwt.ErrMissingClaims):
		return "Missing required claims"
	default:
		return "Invalid token"
	}
}

// ExtractTokenFromHeader returns the bearer token of r, or ""
func ExtractTokenFromHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
