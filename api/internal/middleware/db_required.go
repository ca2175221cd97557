package middleware

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/esheo1787/qc-management-system/shared/httpx"
)

// DBRequiredMiddleware fails API requests with 503 while the pool is
// unconfigured. The process still starts so healthz and readyz can report
// the problem instead of crash-looping.
type DBRequiredMiddleware struct {
	Pool *pgxpool.Pool
	Skip func(*http.Request) bool
}

func (m DBRequiredMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Pool == nil && (m.Skip == nil || !m.Skip(r)) {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "database not configured", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
