package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"pos-service/internal/models"
	"pos-service/internal/repository"
)

type contextKey struct{}

// AdminFromContext returns the authenticated admin, or nil outside the
// middleware.
func AdminFromContext(ctx context.Context) *models.Admin {
	admin, _ := ctx.Value(contextKey{}).(*models.Admin)
	return admin
}

// WithAdmin returns a context carrying the authenticated admin.
func WithAdmin(ctx context.Context, admin *models.Admin) context.Context {
	return context.WithValue(ctx, contextKey{}, admin)
}

// Middleware authenticates the Bearer token and loads the admin it belongs to
// into the request context. Tokens for deleted or deactivated admins are
// rejected.
func Middleware(tm *TokenManager, admins repository.AdminRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeAuthError(w, http.StatusUnauthorized, "access token required")
				return
			}

			adminID, err := tm.Verify(token)
			if err != nil {
				writeAuthError(w, http.StatusForbidden, "invalid or expired token")
				return
			}

			admin, err := admins.GetByID(r.Context(), adminID)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid token - user not found")
				return
			}
			if !admin.IsActive {
				writeAuthError(w, http.StatusForbidden, "account is deactivated")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAdmin(r.Context(), admin)))
		})
	}
}

// RequireRole guards a route group behind a single admin role. It must run
// after Middleware, which loads the admin into the context.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admin := AdminFromContext(r.Context())
			if admin == nil || admin.Role != role {
				writeAuthError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}
