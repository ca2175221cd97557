package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/esheo1787/qc-management-system/api/internal/repos"
	"github.com/esheo1787/qc-management-system/shared/httpx"
	"github.com/esheo1787/qc-management-system/shared/metricsx"
)

type createEventRequest struct {
	CaseID           uuid.UUID       `json:"case_id"`
	EventType        string          `json:"event_type"`
	IdempotencyKey   string          `json:"idempotency_key"`
	ExpectedRevision *int            `json:"expected_revision"`
	EventCode        *string         `json:"event_code"`
	Payload          json.RawMessage `json:"payload"`
}

// createEvent drives one case transition. Retrying with the same
// idempotency key returns the stored event unchanged, so the response is
// byte-identical across retries.
func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var req createEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CaseID == uuid.Nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "case_id is required", nil)
		return
	}
	if strings.TrimSpace(req.EventType) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "event_type is required", nil)
		return
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "idempotency_key is required", nil)
		return
	}

	event, cs, replayed, err := h.Events.ProcessEvent(r.Context(), repos.ProcessEventParams{
		CaseID:           req.CaseID,
		EventType:        req.EventType,
		IdempotencyKey:   strings.TrimSpace(req.IdempotencyKey),
		EventCode:        req.EventCode,
		ExpectedRevision: req.ExpectedRevision,
		Payload:          req.Payload,
	}, user, h.Outbox)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if replayed {
		metricsx.IncIdempotentReplay()
	} else {
		metricsx.IncCaseTransition(event.EventType)
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"event_id":        event.EventID,
		"case_id":         event.CaseID,
		"event_type":      event.EventType,
		"idempotency_key": event.IdempotencyKey,
		"created_at":      event.CreatedAt,
		"case_status":     cs.Status,
		"case_revision":   cs.Revision,
	})
}

func (h *Handler) recentEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "limit must be 1..200", nil)
			return
		}
		limit = n
	}
	events, err := h.Events.ListRecentEvents(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"events": toEventResponses(events),
	})
}
