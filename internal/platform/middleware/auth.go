package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"secretsportal/internal/jwttoken"
	"secretsportal/internal/permissions"
	"secretsportal/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*jwttoken.Claims, error)
}

// GrantResolver resolves directory groups into portal grants, typically
// backed by a cache keyed on the bearer token.
type GrantResolver interface {
	Resolve(ctx context.Context, token string, groups []string) []permissions.Grant
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth validates the bearer token, resolves the caller's grants, and
// rejects callers whose groups map to no portal permissions at all. Identity
// fields land in the request context for services downstream.
func RequireAuth(validator JWTValidator, resolver GrantResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				ctx := r.Context()
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx := r.Context()
			grants := resolver.Resolve(ctx, token, claims.Groups)
			if len(grants) == 0 {
				logger.WarnContext(ctx, "forbidden - no portal permissions",
					"user_id", claims.Subject,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "No portal permissions")
				return
			}

			ctx = requestcontext.WithUserID(ctx, claims.Subject)
			ctx = requestcontext.WithEmail(ctx, claims.Email)
			ctx = requestcontext.WithGroups(ctx, claims.Groups)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
