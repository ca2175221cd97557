package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/esheo1787/qc-management-system/api/internal/repos"
	"github.com/esheo1787/qc-management-system/shared/httpx"
	"github.com/esheo1787/qc-management-system/shared/workflow"
	"github.com/esheo1787/qc-management-system/shared/worktime"
)

type bulkRegisterPreQc struct {
	SliceCount       *int            `json:"slice_count"`
	Flags            json.RawMessage `json:"flags"`
	ExpectedSegments json.RawMessage `json:"expected_segments"`
}

type bulkRegisterCase struct {
	CaseUID          string             `json:"case_uid"`
	DisplayName      string             `json:"display_name"`
	OriginalName     *string            `json:"original_name"`
	NASPath          *string            `json:"nas_path"`
	Hospital         *string            `json:"hospital"`
	SliceThicknessMM *float64           `json:"slice_thickness_mm"`
	ProjectName      string             `json:"project_name"`
	PartName         string             `json:"part_name"`
	Difficulty       string             `json:"difficulty"`
	Metadata         json.RawMessage    `json:"metadata"`
	WWL              *string            `json:"wwl"`
	Memo             *string            `json:"memo"`
	PreQc            *bulkRegisterPreQc `json:"preqc"`
}

type bulkRegisterRequest struct {
	Cases []bulkRegisterCase `json:"cases"`
}

func (h *Handler) bulkRegisterCases(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	var req bulkRegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Cases) == 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "cases must not be empty", nil)
		return
	}

	items := make([]repos.CaseRegistration, 0, len(req.Cases))
	for i, c := range req.Cases {
		if strings.TrimSpace(c.CaseUID) == "" || strings.TrimSpace(c.DisplayName) == "" ||
			strings.TrimSpace(c.ProjectName) == "" || strings.TrimSpace(c.PartName) == "" {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT",
				fmt.Sprintf("cases[%d]: case_uid, display_name, project_name and part_name are required", i), nil)
			return
		}
		item := repos.CaseRegistration{
			CaseUID:          strings.TrimSpace(c.CaseUID),
			DisplayName:      c.DisplayName,
			OriginalName:     c.OriginalName,
			NASPath:          c.NASPath,
			Hospital:         c.Hospital,
			SliceThicknessMM: c.SliceThicknessMM,
			ProjectName:      c.ProjectName,
			PartName:         c.PartName,
			Difficulty:       c.Difficulty,
			Metadata:         c.Metadata,
			WWL:              c.WWL,
			Memo:             c.Memo,
		}
		if c.PreQc != nil {
			item.PreQc = &repos.PreQcSeed{
				SliceCount:       c.PreQc.SliceCount,
				Flags:            c.PreQc.Flags,
				ExpectedSegments: c.PreQc.ExpectedSegments,
			}
		}
		items = append(items, item)
	}

	result, err := h.Cases.RegisterCases(r.Context(), items)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"created":      len(result.CreatedUIDs),
		"skipped":      len(result.SkippedUIDs),
		"created_uids": result.CreatedUIDs,
		"skipped_uids": result.SkippedUIDs,
	})
}

type assignCaseRequest struct {
	CaseID uuid.UUID `json:"case_id"`
	UserID uuid.UUID `json:"user_id"`
}

func (h *Handler) assignCase(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	var req assignCaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CaseID == uuid.Nil || req.UserID == uuid.Nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "case_id and user_id are required", nil)
		return
	}

	cs, user, err := h.Cases.AssignCase(r.Context(), req.CaseID, req.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"case_id":           cs.CaseID,
		"case_uid":          cs.CaseUID,
		"status":            cs.Status,
		"revision":          cs.Revision,
		"assigned_user_id":  user.UserID,
		"assigned_username": user.Username,
	})
}

func (h *Handler) listCases(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	q := r.URL.Query()
	filter := repos.CaseFilter{Limit: 50}
	if raw := q.Get("status"); raw != "" {
		status := workflow.NormalizeStatus(raw)
		filter.Status = &status
	}
	if raw := q.Get("project_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid project_id", nil)
			return
		}
		filter.ProjectID = &id
	}
	if raw := q.Get("assigned_user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid assigned_user_id", nil)
			return
		}
		filter.AssignedUserID = &id
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "limit must be 1..500", nil)
			return
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "offset must be >= 0", nil)
			return
		}
		filter.Offset = n
	}

	cases, total, err := h.Cases.ListCases(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"total": total,
		"cases": toCaseResponses(cases),
	})
}

// caseDetail is the shared assembly for the two detail endpoints. Pre-QC is
// optional on a case, events and notes are always arrays.
func (h *Handler) caseDetail(w http.ResponseWriter, r *http.Request, caseID uuid.UUID) (map[string]any, bool) {
	cr, err := h.Cases.GetCaseByID(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, r, err)
		return nil, false
	}
	preQc, err := h.Qc.FindPreQcByCase(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, r, err)
		return nil, false
	}
	events, err := h.Events.ListEventsByCase(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, r, err)
		return nil, false
	}
	notes, err := h.Notes.ListNotesByCase(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, r, err)
		return nil, false
	}

	detail := map[string]any{
		"case":   toCaseResponse(cr),
		"events": toEventResponses(events),
		"notes":  toNoteResponses(notes),
	}
	if preQc != nil {
		detail["preqc"] = toPreQcResponse(*preQc)
	} else {
		detail["preqc"] = nil
	}
	return detail, true
}

func (h *Handler) getCase(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	caseID, ok := pathUUID(w, r, "case_id")
	if !ok {
		return
	}
	detail, ok := h.caseDetail(w, r, caseID)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, detail)
}

func (h *Handler) getCaseWithMetrics(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	caseID, ok := pathUUID(w, r, "case_id")
	if !ok {
		return
	}
	detail, ok := h.caseDetail(w, r, caseID)
	if !ok {
		return
	}

	settings, err := h.Config.LoadSettings(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	worklogs, err := h.WorkLogs.ListWorkLogsByCase(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	entries := make([]worktime.Entry, 0, len(worklogs))
	lastAction := ""
	for _, wl := range worklogs {
		entries = append(entries, worktime.Entry{Action: wl.Action, At: wl.Timestamp})
		lastAction = wl.Action
	}
	workSeconds := worktime.ComputeWorkSeconds(entries, settings.AutoTimeoutMinutes, time.Now().UTC())
	firstStart, lastEnd := worktime.TimelineDates(entries)

	detail["worklogs"] = toWorkLogResponses(worklogs)
	detail["metrics"] = map[string]any{
		"work_seconds":  workSeconds,
		"work_duration": worktime.FormatDuration(workSeconds),
		"man_days":      worktime.ManDays(workSeconds, settings.WorkdayHours),
		"timeline":      worktime.Timeline(firstStart, lastEnd),
		"is_working":    lastAction != "" && workflow.IsStartAction(lastAction),
	}
	httpx.WriteJSON(w, http.StatusOK, detail)
}

func (h *Handler) workerTasks(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	cases, err := h.Cases.ListWorkerCases(r.Context(), user.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"cases": toCaseResponses(cases),
	})
}
