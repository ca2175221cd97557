package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/esheo1787/qc-management-system/api/internal/models"
	"github.com/esheo1787/qc-management-system/api/internal/repos"
	"github.com/esheo1787/qc-management-system/shared/httpx"
	"github.com/esheo1787/qc-management-system/shared/logx"
)

const defaultAuditTimeout = 2 * time.Second

type AuditMiddleware struct {
	Enabled bool
	Repo    *repos.AuditRepo
	Logger  logx.Logger
	Skip    func(*http.Request) bool
	Timeout time.Duration
}

// Wrap records who did what after the response is written. The write happens
// off the request goroutine so a slow audit table never delays the caller.
func (m AuditMiddleware) Wrap(next http.Handler) http.Handler {
	if !m.Enabled || m.Repo == nil {
		return next
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = defaultAuditTimeout
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusCapture{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if !shouldAudit(r, rec.status) {
			return
		}

		entry := m.buildEntry(r, rec.status, time.Since(start))
		go m.write(entry, timeout)
	})
}

func (m AuditMiddleware) buildEntry(r *http.Request, status int, took time.Duration) models.AuditLog {
	resourceType, resourceID := resourceFromPath(r.URL.Path)
	entry := models.AuditLog{
		OccurredAt:   time.Now().UTC(),
		Action:       actionForRequest(r, status),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    httpx.RequestIDFromContext(r.Context()),
		Method:       r.Method,
		Path:         r.URL.Path,
		StatusCode:   status,
		DurationMS:   took.Milliseconds(),
		ClientIP:     requestClientIP(r),
		UserAgent:    strings.TrimSpace(r.UserAgent()),
		Details:      auditDetails(r, status),
	}
	if user, ok := UserFromContext(r.Context()); ok {
		entry.ActorUserID = &user.UserID
		entry.Subject = user.Username
	}
	return entry
}

func (m AuditMiddleware) write(entry models.AuditLog, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := m.Repo.WriteAuditLog(ctx, []models.AuditLog{entry}); err != nil {
		m.Logger.Warn(context.Background(), "audit_write_failed", "audit write failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
	}
}

type statusCapture struct {
	http.ResponseWriter
	status int
}

func (w *statusCapture) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// shouldAudit keeps the table to writes, admin reads, and rejected logins.
func shouldAudit(r *http.Request, status int) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return strings.Contains(r.URL.Path, "/admin/")
}

var methodActions = map[string]string{
	http.MethodPost:   "create",
	http.MethodPut:    "update",
	http.MethodPatch:  "update",
	http.MethodDelete: "delete",
}

func actionForRequest(r *http.Request, status int) string {
	if status == http.StatusUnauthorized {
		return "auth_failed"
	}
	if action, ok := methodActions[r.Method]; ok {
		return action
	}
	return "read"
}

func auditDetails(r *http.Request, status int) []byte {
	details := map[string]any{
		"status_code": status,
	}
	if q := r.URL.RawQuery; q != "" {
		details["query"] = q
	}
	b, err := json.Marshal(details)
	if err != nil {
		return nil
	}
	return b
}

var auditedResources = map[string]struct{}{
	"cases":        {},
	"events":       {},
	"worklogs":     {},
	"timeoff":      {},
	"holidays":     {},
	"capacity":     {},
	"cohort":       {},
	"qc":           {},
	"review-notes": {},
	"tags":         {},
	"definitions":  {},
	"projects":     {},
	"users":        {},
}

// resourceFromPath pulls the resource segment and, when present, its id from
// paths like /api/v1/admin/cases/{id}/... and /api/v1/worklogs.
func resourceFromPath(path string) (*string, *string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "api" || parts[1] != "v1" {
		return nil, nil
	}
	rest := parts[2:]
	if rest[0] == "admin" {
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return nil, nil
	}
	resource := rest[0]
	if _, ok := auditedResources[resource]; !ok {
		return nil, nil
	}
	var id *string
	if len(rest) >= 2 {
		val := strings.TrimSpace(rest[1])
		if val != "" {
			id = &val
		}
	}
	return &resource, id
}

func requestClientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
		return v
	}
	return r.RemoteAddr
}
