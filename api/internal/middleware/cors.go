package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSMiddleware answers browser preflights and stamps allow headers for
// configured origins. An empty AllowedOrigins list admits every origin.
type CORSMiddleware struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
	Skip             func(*http.Request) bool
}

var (
	defaultCORSMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	defaultCORSHeaders = []string{"Authorization", "Content-Type", "X-Request-ID", "X-API-Key"}
)

func (m CORSMiddleware) Wrap(next http.Handler) http.Handler {
	wildcard := len(m.AllowedOrigins) == 0
	origins := make(map[string]bool, len(m.AllowedOrigins))
	for _, o := range m.AllowedOrigins {
		switch o = strings.TrimSpace(o); o {
		case "":
		case "*":
			wildcard = true
		default:
			origins[strings.ToLower(o)] = true
		}
	}

	methods := strings.Join(listOr(m.AllowedMethods, defaultCORSMethods), ", ")
	headers := strings.Join(listOr(m.AllowedHeaders, defaultCORSHeaders), ", ")
	maxAge := ""
	if m.MaxAge > 0 {
		maxAge = strconv.Itoa(int(m.MaxAge.Seconds()))
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" {
			w.Header().Add("Vary", "Origin")
			if wildcard || origins[strings.ToLower(origin)] {
				switch {
				case m.AllowCredentials:
					// The "*" form is invalid when credentials are allowed.
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				case wildcard:
					w.Header().Set("Access-Control-Allow-Origin", "*")
				default:
					w.Header().Set("Access-Control-Allow-Origin", origin)
				}
			}
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			if maxAge != "" {
				w.Header().Set("Access-Control-Max-Age", maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func listOr(values, fallback []string) []string {
	if len(values) > 0 {
		return values
	}
	return fallback
}
