// Package handlers holds the HTTP endpoints of the case-workflow API. Every
// handler resolves the acting user from the request context, loads a settings
// snapshot when the operation needs one, and maps repo errors onto the shared
// error envelope in exactly one place.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/esheo1787/qc-management-system/api/internal/middleware"
	"github.com/esheo1787/qc-management-system/api/internal/models"
	"github.com/esheo1787/qc-management-system/api/internal/repos"
	"github.com/esheo1787/qc-management-system/shared/httpx"
	"github.com/esheo1787/qc-management-system/shared/logx"
	"github.com/esheo1787/qc-management-system/shared/metricsx"
)

type Handler struct {
	Logger      logx.Logger
	Users       *repos.UsersRepo
	Cases       *repos.CasesRepo
	Events      *repos.EventsRepo
	WorkLogs    *repos.WorkLogsRepo
	Notes       *repos.NotesRepo
	Qc          *repos.QcRepo
	Tags        *repos.TagsRepo
	Definitions *repos.DefinitionsRepo
	Cohort      *repos.CohortRepo
	TimeOff     *repos.TimeOffRepo
	Calendar    *repos.CalendarRepo
	Config      *repos.ConfigRepo
	Outbox      *repos.OutboxRepo
}

// Register wires every API route onto the mux. Paths follow the
// /api/v1/admin/... convention for ADMIN-gated surfaces.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/me", h.me)
	mux.HandleFunc("GET /api/v1/users", h.listUsers)

	mux.HandleFunc("POST /api/v1/admin/cases/bulk-register", h.bulkRegisterCases)
	mux.HandleFunc("POST /api/v1/admin/cases/assign", h.assignCase)
	mux.HandleFunc("GET /api/v1/admin/cases", h.listCases)
	mux.HandleFunc("GET /api/v1/admin/cases/{case_id}", h.getCase)
	mux.HandleFunc("GET /api/v1/admin/cases/{case_id}/with-metrics", h.getCaseWithMetrics)
	mux.HandleFunc("GET /api/v1/worker/tasks", h.workerTasks)

	mux.HandleFunc("POST /api/v1/events", h.createEvent)
	mux.HandleFunc("GET /api/v1/admin/events/recent", h.recentEvents)
	mux.HandleFunc("POST /api/v1/worklogs", h.createWorkLog)
	mux.HandleFunc("POST /api/v1/submit", h.submitCase)

	mux.HandleFunc("POST /api/v1/admin/review-notes", h.createReviewNote)

	mux.HandleFunc("POST /api/v1/timeoff", h.createTimeOff)
	mux.HandleFunc("DELETE /api/v1/timeoff/{id}", h.deleteTimeOff)
	mux.HandleFunc("GET /api/v1/timeoff/me", h.listMyTimeOff)
	mux.HandleFunc("GET /api/v1/admin/timeoff", h.listAllTimeOff)
	mux.HandleFunc("GET /api/v1/admin/timeoff/{user_id}", h.listUserTimeOff)

	mux.HandleFunc("GET /api/v1/holidays", h.getHolidays)
	mux.HandleFunc("PUT /api/v1/admin/holidays", h.replaceHolidays)
	mux.HandleFunc("POST /api/v1/admin/holidays/{date}", h.addHoliday)
	mux.HandleFunc("DELETE /api/v1/admin/holidays/{date}", h.removeHoliday)

	mux.HandleFunc("GET /api/v1/admin/capacity", h.teamCapacity)
	mux.HandleFunc("POST /api/v1/cohort/summary", h.cohortSummary)

	mux.HandleFunc("POST /api/v1/qc/preqc", h.upsertPreQc)
	mux.HandleFunc("GET /api/v1/qc/preqc/{case_id}", h.getPreQc)
	mux.HandleFunc("POST /api/v1/qc/autoqc", h.upsertAutoQc)
	mux.HandleFunc("GET /api/v1/qc/autoqc/{case_id}", h.getAutoQc)
	mux.HandleFunc("GET /api/v1/admin/qc-disagreements", h.listDisagreements)
	mux.HandleFunc("GET /api/v1/admin/qc-disagreements/stats", h.disagreementStats)

	mux.HandleFunc("POST /api/v1/admin/tags/apply", h.applyTags)
	mux.HandleFunc("POST /api/v1/admin/tags/remove", h.removeTags)
	mux.HandleFunc("GET /api/v1/tags", h.listTags)
	mux.HandleFunc("GET /api/v1/tags/{tag}/cases", h.casesByTag)

	mux.HandleFunc("POST /api/v1/admin/definitions", h.createDefinition)
	mux.HandleFunc("GET /api/v1/definitions", h.listDefinitions)
	mux.HandleFunc("GET /api/v1/definitions/{version_name}", h.getDefinition)
	mux.HandleFunc("POST /api/v1/admin/projects/link-definition", h.linkDefinition)
	mux.HandleFunc("GET /api/v1/admin/projects/definitions", h.listDefinitionLinks)
	mux.HandleFunc("GET /api/v1/projects/{project_id}/definitions", h.listProjectDefinitions)
}

// writeServiceError is the single repo-error to HTTP mapping. Guard
// rejections are counted here so every endpoint reports them the same way.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var nf repos.NotFoundError
	if errors.As(err, &nf) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", nf.Message, nil)
		return
	}
	var ve repos.ValidationError
	if errors.As(err, &ve) {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", ve.Message, nil)
		return
	}
	var fe repos.ForbiddenError
	if errors.As(err, &fe) {
		httpx.WriteError(w, r, http.StatusForbidden, "PERMISSION_DENIED", fe.Message, nil)
		return
	}
	var ce repos.ConflictError
	if errors.As(err, &ce) {
		metricsx.IncRevisionConflict()
		httpx.WriteError(w, r, http.StatusConflict, "CONFLICT", ce.Message, nil)
		return
	}
	var we repos.WIPLimitError
	if errors.As(err, &we) {
		metricsx.IncWIPRejection()
		httpx.WriteError(w, r, http.StatusTooManyRequests, "WIP_LIMIT_EXCEEDED", we.Error(),
			map[string]any{"current": we.Current, "limit": we.Limit})
		return
	}
	httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
}

// actor returns the authenticated user injected by the auth middleware. A
// missing user means the middleware chain is miswired, not a caller fault.
func actor(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
		return models.User{}, false
	}
	return user, true
}

func requireAdmin(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := actor(w, r)
	if !ok {
		return models.User{}, false
	}
	if user.Role != models.RoleAdmin {
		httpx.WriteError(w, r, http.StatusForbidden, "PERMISSION_DENIED", "admin role required", nil)
		return models.User{}, false
	}
	return user, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body: "+err.Error(), nil)
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

// queryDate parses an optional YYYY-MM-DD query parameter as a UTC day.
func queryDate(w http.ResponseWriter, r *http.Request, name string) (*time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", name+" must be YYYY-MM-DD", nil)
		return nil, false
	}
	return &t, true
}

// requiredQueryDate is queryDate for parameters the endpoint cannot work
// without.
func requiredQueryDate(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	t, ok := queryDate(w, r, name)
	if !ok {
		return time.Time{}, false
	}
	if t == nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", name+" is required", nil)
		return time.Time{}, false
	}
	return *t, true
}

// endOfDay pushes a day-granular upper bound to the last instant of that day
// so inclusive date ranges behave as callers expect.
func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, time.UTC)
}
