// Package middleware provides HTTP middleware for the sync API: JWT
// authentication, permission gates and cookie-based admin sessions.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/versesync/versesync/internal/logger"
	"github.com/versesync/versesync/pkg/sync/admin"
	"github.com/versesync/versesync/pkg/sync/api/auth"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	// claimsContextKey is the context key for JWT claims.
	claimsContextKey contextKey = "claims"

	// adminSessionContextKey is the context key for admin sessions.
	adminSessionContextKey contextKey = "admin_session"
)

// GetClaimsFromContext retrieves JWT claims from the request context.
// Returns nil if no claims are present (request was not authenticated).
func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// GetAdminSessionFromContext retrieves the admin session from the request
// context. Returns nil outside the admin control plane.
func GetAdminSessionFromContext(ctx context.Context) *admin.Session {
	session, ok := ctx.Value(adminSessionContextKey).(*admin.Session)
	if !ok {
		return nil
	}
	return session
}

// extractBearerToken extracts the token from an Authorization header.
// Expected format: "Bearer <token>".
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// JWTAuth returns middleware that validates JWT access tokens.
// Requests without a valid token receive 401 Unauthorized.
func JWTAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				http.Error(w, "Authorization required", http.StatusUnauthorized)
				return
			}

			claims, err := jwtService.ValidateAccessToken(token)
			if err != nil {
				if errors.Is(err, auth.ErrExpiredToken) {
					http.Error(w, "Token has expired", http.StatusUnauthorized)
					return
				}
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			ctx = logger.WithContext(ctx, &logger.LogContext{
				RequestID: chimiddleware.GetReqID(ctx),
				Username:  claims.Username,
				ClientIP:  r.RemoteAddr,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission returns middleware that requires the named permission.
// Must be used after JWTAuth. The admin permission satisfies every gate.
func RequirePermission(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			if claims == nil {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}
			if !claims.HasPermission(name) {
				http.Error(w, "Permission denied", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin returns middleware that requires the admin permission.
// Must be used after JWTAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaimsFromContext(r.Context())
		if claims == nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		if !claims.IsAdmin() {
			http.Error(w, "Admin access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminSession returns middleware that requires a valid admin session
// cookie. Used by the browser-facing admin control plane, which
// authenticates with sessions rather than bearer tokens.
func AdminSession(sessions *admin.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(admin.CookieName)
			if err != nil {
				http.Error(w, "Admin session required", http.StatusUnauthorized)
				return
			}

			session, ok := sessions.Get(cookie.Value)
			if !ok {
				http.Error(w, "Admin session expired", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), adminSessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
