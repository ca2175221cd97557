package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/esheo1787/qc-management-system/api/internal/middleware"
	"github.com/esheo1787/qc-management-system/api/internal/models"
	"github.com/esheo1787/qc-management-system/api/internal/repos"
)

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v (body: %s)", err, rec.Body.String())
	}
	return env
}

func TestWriteServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", repos.NotFoundf("case x not found"), http.StatusNotFound, "NOT_FOUND"},
		{"validation", repos.Validationf("bad input"), http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"forbidden", repos.Forbiddenf("no"), http.StatusForbidden, "PERMISSION_DENIED"},
		{"conflict", repos.Conflictf("revision mismatch"), http.StatusConflict, "CONFLICT"},
		{"wip limit", repos.WIPLimitError{Current: 2, Limit: 1}, http.StatusTooManyRequests, "WIP_LIMIT_EXCEEDED"},
		{"unknown", http.ErrBodyNotAllowed, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)
			writeServiceError(rec, req, tc.err)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			env := decodeEnvelope(t, rec)
			if env.Error.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", env.Error.Code, tc.wantCode)
			}
			if env.Error.Message == "" {
				t.Errorf("message is empty")
			}
		})
	}
}

func TestWriteServiceErrorWrapped(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)
	wrapped := joinErr("lookup failed", repos.NotFoundf("user y not found"))
	writeServiceError(rec, req, wrapped)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func joinErr(msg string, err error) error {
	return &wrappedErr{msg: msg, err: err}
}

type wrappedErr struct {
	msg string
	err error
}

func (e *wrappedErr) Error() string { return e.msg + ": " + e.err.Error() }
func (e *wrappedErr) Unwrap() error { return e.err }

func TestRequireAdmin(t *testing.T) {
	admin := models.User{Username: "boss", Role: models.RoleAdmin}
	worker := models.User{Username: "ann", Role: models.RoleWorker}

	t.Run("admin passes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/cases", nil)
		req = req.WithContext(middleware.WithUser(req.Context(), admin))

		user, ok := requireAdmin(rec, req)
		if !ok {
			t.Fatalf("admin rejected: %d %s", rec.Code, rec.Body.String())
		}
		if user.Username != "boss" {
			t.Errorf("user = %q, want boss", user.Username)
		}
	})

	t.Run("worker rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/cases", nil)
		req = req.WithContext(middleware.WithUser(req.Context(), worker))

		if _, ok := requireAdmin(rec, req); ok {
			t.Fatal("worker passed admin gate")
		}
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
		}
		env := decodeEnvelope(t, rec)
		if env.Error.Code != "PERMISSION_DENIED" {
			t.Errorf("code = %q, want PERMISSION_DENIED", env.Error.Code)
		}
	})

	t.Run("missing context", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/cases", nil)

		if _, ok := requireAdmin(rec, req); ok {
			t.Fatal("anonymous request passed admin gate")
		}
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/test", strings.NewReader(`{"name":"a"}`))
		var p payload
		if !decodeJSON(rec, req, &p) {
			t.Fatalf("valid body rejected: %s", rec.Body.String())
		}
		if p.Name != "a" {
			t.Errorf("name = %q, want a", p.Name)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/test", strings.NewReader(`{"name":"a","bogus":1}`))
		var p payload
		if decodeJSON(rec, req, &p) {
			t.Fatal("unknown field accepted")
		}
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/test", strings.NewReader(`{`))
		var p payload
		if decodeJSON(rec, req, &p) {
			t.Fatal("malformed body accepted")
		}
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func TestQueryDate(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)
		got, ok := queryDate(rec, req, "from")
		if !ok || got != nil {
			t.Fatalf("absent param: got %v ok=%v, want nil ok=true", got, ok)
		}
	})

	t.Run("valid", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/test?from=2026-03-15", nil)
		got, ok := queryDate(rec, req, "from")
		if !ok || got == nil {
			t.Fatalf("valid param rejected: %s", rec.Body.String())
		}
		want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("date = %v, want %v", got, want)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/test?from=15.03.2026", nil)
		if _, ok := queryDate(rec, req, "from"); ok {
			t.Fatal("malformed date accepted")
		}
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func TestEndOfDay(t *testing.T) {
	in := time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC)
	got := endOfDay(in)
	if got.Day() != 4 || got.Hour() != 23 || got.Minute() != 59 || got.Second() != 59 {
		t.Fatalf("endOfDay = %v", got)
	}
	if !got.After(in) {
		t.Errorf("endOfDay did not advance past midnight")
	}
}

func TestValidHolidayDate(t *testing.T) {
	valid := []string{"2026-01-01", "2025-12-25"}
	for _, d := range valid {
		if !validHolidayDate(d) {
			t.Errorf("validHolidayDate(%q) = false, want true", d)
		}
	}
	invalid := []string{"", "2026-13-01", "01-01-2026", "tomorrow"}
	for _, d := range invalid {
		if validHolidayDate(d) {
			t.Errorf("validHolidayDate(%q) = true, want false", d)
		}
	}
}
