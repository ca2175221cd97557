package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/esheo1787/qc-management-system/api/internal/repos"
	"github.com/esheo1787/qc-management-system/shared/authx"
	"github.com/esheo1787/qc-management-system/shared/httpx"
)

// AuthMiddleware resolves the caller to an active user row. Two credential
// forms are accepted: an X-API-Key header, or a bearer JWT whose subject maps
// to a provisioned account.
type AuthMiddleware struct {
	Users    *repos.UsersRepo
	Verifier *authx.JWTVerifier
	Skip     func(*http.Request) bool
}

func (m AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		if m.Users == nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "auth not configured", nil)
			return
		}

		if apiKey := strings.TrimSpace(r.Header.Get("X-API-Key")); apiKey != "" {
			user, err := m.Users.GetUserByAPIKey(r.Context(), apiKey)
			if err != nil {
				writeAuthError(w, r, err, "invalid API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
			return
		}

		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			if m.Verifier == nil {
				httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "bearer tokens not accepted", nil)
				return
			}
			token := strings.TrimSpace(authHeader[len("bearer "):])
			auth, err := m.Verifier.Verify(r.Context(), token)
			if err != nil {
				httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token", nil)
				return
			}
			user, err := m.Users.GetUserBySubject(r.Context(), auth.Subject)
			if err != nil {
				writeAuthError(w, r, err, "no active user for token subject")
				return
			}
			ctx := authx.WithAuth(r.Context(), auth)
			next.ServeHTTP(w, r.WithContext(WithUser(ctx, user)))
			return
		}

		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing credentials", nil)
	})
}

// writeAuthError keeps lookup misses as 401 and lets real storage failures
// surface as 500.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error, message string) {
	var nf repos.NotFoundError
	if errors.As(err, &nf) {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", message, nil)
		return
	}
	httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "auth lookup failed", nil)
}
