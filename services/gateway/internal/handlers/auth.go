package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/diagnosis/fieldops/internal/http/response"
	"github.com/diagnosis/fieldops/pkg/auth"
	"github.com/diagnosis/fieldops/pkg/logger"
)

type claimsKey struct{}

func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey{}).(*auth.Claims)
	return claims
}

// RequireJWT rejects requests without a valid bearer token and stores the
// claims on the context.
func (h *Handlers) RequireJWT() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				response.WriteError(w, http.StatusUnauthorized, "Missing or invalid authorization header", response.CodeUnauthorized)
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			claims, err := auth.Parse(token, h.jwtSecret)
			if err != nil {
				logger.WarnContext(r.Context(), "Rejected token", "error", err)
				response.WriteError(w, http.StatusUnauthorized, "Invalid token", response.CodeUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			ctx = logger.WithActorID(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole must run after RequireJWT.
func (h *Handlers) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFrom(r)
			if claims == nil {
				response.WriteError(w, http.StatusUnauthorized, "Authentication required", response.CodeUnauthorized)
				return
			}
			if !claims.HasRole(roles...) {
				response.WriteError(w, http.StatusForbidden, "Insufficient permissions", response.CodeForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
