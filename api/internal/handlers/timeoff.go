package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/esheo1787/qc-management-system/shared/httpx"
)

type createTimeOffRequest struct {
	UserID *uuid.UUID `json:"user_id"`
	Date   string     `json:"date"`
	Type   string     `json:"type"`
}

// createTimeOff registers a day off. user_id defaults to the caller; the
// repo enforces that workers may only book for themselves.
func (h *Handler) createTimeOff(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var req createTimeOffRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	date, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "date must be YYYY-MM-DD", nil)
		return
	}
	targetID := user.UserID
	if req.UserID != nil {
		targetID = *req.UserID
	}

	row, err := h.TimeOff.CreateTimeOff(r.Context(), targetID, date, req.Type, user)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toTimeOffResponse(row))
}

func (h *Handler) deleteTimeOff(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	timeOffID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.TimeOff.DeleteTimeOff(r.Context(), timeOffID, user); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) listMyTimeOff(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	from, ok := queryDate(w, r, "from")
	if !ok {
		return
	}
	to, ok := queryDate(w, r, "to")
	if !ok {
		return
	}
	rows, err := h.TimeOff.ListTimeOffByUser(r.Context(), user.UserID, from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"timeoff": toTimeOffResponses(rows)})
}

func (h *Handler) listAllTimeOff(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	from, ok := queryDate(w, r, "from")
	if !ok {
		return
	}
	to, ok := queryDate(w, r, "to")
	if !ok {
		return
	}
	rows, err := h.TimeOff.ListAllTimeOff(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"timeoff": toTimeOffResponses(rows)})
}

func (h *Handler) listUserTimeOff(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	userID, ok := pathUUID(w, r, "user_id")
	if !ok {
		return
	}
	from, ok := queryDate(w, r, "from")
	if !ok {
		return
	}
	to, ok := queryDate(w, r, "to")
	if !ok {
		return
	}
	rows, err := h.TimeOff.ListTimeOffByUser(r.Context(), userID, from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"timeoff": toTimeOffResponses(rows)})
}
