package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/esheo1787/qc-management-system/api/internal/repos"
	"github.com/esheo1787/qc-management-system/shared/httpx"
	"github.com/esheo1787/qc-management-system/shared/metricsx"
	"github.com/esheo1787/qc-management-system/shared/workflow"
)

type createWorkLogRequest struct {
	CaseID     uuid.UUID `json:"case_id"`
	ActionType string    `json:"action_type"`
	ReasonCode *string   `json:"reason_code"`
}

func (h *Handler) createWorkLog(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var req createWorkLogRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CaseID == uuid.Nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "case_id is required", nil)
		return
	}
	if strings.TrimSpace(req.ActionType) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "action_type is required", nil)
		return
	}

	settings, err := h.Config.LoadSettings(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	log, _, err := h.WorkLogs.CreateWorkLog(r.Context(), req.CaseID, req.ActionType, req.ReasonCode, user, settings, h.Outbox)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	switch workflow.NormalizeAction(log.Action) {
	case workflow.ActionStart, workflow.ActionReworkStart:
		metricsx.IncCaseTransition(workflow.EventStarted)
	}

	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"worklog_id":  log.WorkLogID,
		"case_id":     log.CaseID,
		"action_type": log.Action,
		"reason_code": log.ReasonCode,
		"timestamp":   log.Timestamp,
	})
}

type submitRequest struct {
	CaseID           uuid.UUID `json:"case_id"`
	IdempotencyKey   string    `json:"idempotency_key"`
	ExpectedRevision *int      `json:"expected_revision"`
}

// submitCase is the atomic worker hand-in: SUBMIT worklog, SUBMITTED event,
// and the status flip commit together. Replays return worklog_id 0 with
// metrics recomputed against the current clock.
func (h *Handler) submitCase(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CaseID == uuid.Nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "case_id is required", nil)
		return
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "idempotency_key is required", nil)
		return
	}

	settings, err := h.Config.LoadSettings(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	result, err := h.Events.SubmitCase(r.Context(), repos.SubmitParams{
		CaseID:           req.CaseID,
		IdempotencyKey:   strings.TrimSpace(req.IdempotencyKey),
		ExpectedRevision: req.ExpectedRevision,
	}, user, settings, h.Outbox)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if result.Replayed {
		metricsx.IncIdempotentReplay()
	} else {
		metricsx.IncCaseTransition(workflow.EventSubmitted)
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"worklog_id":    result.WorkLogID,
		"event_id":      result.Event.EventID,
		"case_id":       result.Case.CaseID,
		"case_status":   result.Case.Status,
		"case_revision": result.Case.Revision,
		"work_seconds":  result.WorkSeconds,
		"work_duration": result.WorkDuration,
		"man_days":      result.ManDays,
	})
}
