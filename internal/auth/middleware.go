package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/refnexus/platform/internal/domain"
)

type contextKey string

const claimsKey contextKey = "auth_claims"

// Principal is the authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Role   domain.Role
	Email  string
}

// WithPrincipal stores claims on the context.
func WithPrincipal(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext extracts JWT claims from request context.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// PrincipalFromContext returns the caller, or false when unauthenticated.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return Principal{}, false
	}
	id, err := claims.UserID()
	if err != nil {
		return Principal{}, false
	}
	return Principal{UserID: id, Role: claims.Role, Email: claims.Email}, true
}

// Authenticate returns middleware that requires a valid bearer token.
func Authenticate(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				writeError(w, domain.ErrUnauthorized(err.Error()))
				return
			}
			claims, err := jwtMgr.ValidateToken(token)
			if err != nil {
				writeError(w, domain.ErrUnauthorized("invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), claims)))
		})
	}
}

// RequireRole returns middleware that admits only the given roles. It must run
// after Authenticate.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	allowed := make(map[domain.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, domain.ErrUnauthorized("no auth context"))
				return
			}
			if !allowed[claims.Role] {
				writeError(w, domain.ErrForbidden(fmt.Sprintf("requires %s role", joinRoles(roles))))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("invalid Authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

// QueryOrBearerToken prefers the token query parameter, which browsers must
// use for WebSocket upgrades, and falls back to the header.
func QueryOrBearerToken(r *http.Request) (string, error) {
	if t := r.URL.Query().Get("token"); t != "" {
		return t, nil
	}
	return BearerToken(r)
}

func joinRoles(roles []domain.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, " or ")
}

func writeError(w http.ResponseWriter, e *domain.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e)
}
