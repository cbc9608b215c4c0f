package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/lorrc/petcare-backend/internal/auth"
	"github.com/lorrc/petcare-backend/internal/core/domain"
	"github.com/lorrc/petcare-backend/internal/infrastructure/logging"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// SessionClaimsKey is the key used to store session claims in the request context.
const SessionClaimsKey contextKey = "sessionClaims"

// TokenQueryParam carries the session token for clients that cannot set
// headers, such as EventSource.
const TokenQueryParam = "access_token"

// Session validates an optional bearer token. Requests without a token
// proceed as guests; a token that is present but invalid is rejected.
func Session(tm *auth.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header format must be Bearer {token}", "AUTHENTICATION_ERROR")
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token", "AUTHENTICATION_ERROR")
				return
			}

			ctx := context.WithValue(r.Context(), SessionClaimsKey, claims)
			ctx = logging.WithCaller(ctx, claims.Role.String(), claims.OwnerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers below min. It must run after Session.
func RequireRole(min domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assignment := AssignmentFromContext(r.Context())
			if !assignment.Role.AtLeast(min) {
				if assignment.Role == domain.RoleGuest {
					writeError(w, http.StatusUnauthorized, "Authentication required", "AUTHENTICATION_ERROR")
					return
				}
				writeError(w, http.StatusForbidden, "Permission denied: requires "+min.String()+" role", "AUTHORIZATION_ERROR")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext returns the session claims attached by Session.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(SessionClaimsKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// AssignmentFromContext returns the caller's role assignment, guest when
// no session is attached.
func AssignmentFromContext(ctx context.Context) domain.RoleAssignment {
	if claims, ok := ClaimsFromContext(ctx); ok {
		return claims.Assignment()
	}
	return domain.Guest()
}

// SessionKey identifies the session for per-caller rate limiting. Guests
// get an empty key.
func SessionKey(r *http.Request) string {
	if claims, ok := ClaimsFromContext(r.Context()); ok {
		return claims.Subject
	}
	return ""
}

// bearerToken reports the token and whether the request tried to send one.
func bearerToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			return "", true
		}
		return strings.TrimSpace(token), true
	}
	if token := r.URL.Query().Get(TokenQueryParam); token != "" {
		return token, true
	}
	return "", false
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}
