package handlers

import (
	"net/http"
	"time"

	"github.com/esheo1787/qc-management-system/shared/httpx"
)

func validHolidayDate(raw string) bool {
	_, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	return err == nil
}

func writeHolidayResponse(w http.ResponseWriter, dates []string, timezone string) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"holidays": dates,
		"timezone": timezone,
	})
}

func (h *Handler) getHolidays(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	dates, timezone, err := h.Calendar.GetHolidays(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeHolidayResponse(w, dates, timezone)
}

type replaceHolidaysRequest struct {
	Holidays []string `json:"holidays"`
}

func (h *Handler) replaceHolidays(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	var req replaceHolidaysRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	for _, d := range req.Holidays {
		if !validHolidayDate(d) {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "holiday '"+d+"' must be YYYY-MM-DD", nil)
			return
		}
	}
	dates, timezone, err := h.Calendar.ReplaceHolidays(r.Context(), req.Holidays)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeHolidayResponse(w, dates, timezone)
}

func (h *Handler) addHoliday(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	date := r.PathValue("date")
	if !validHolidayDate(date) {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "date must be YYYY-MM-DD", nil)
		return
	}
	dates, timezone, err := h.Calendar.AddHoliday(r.Context(), date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeHolidayResponse(w, dates, timezone)
}

func (h *Handler) removeHoliday(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	date := r.PathValue("date")
	if !validHolidayDate(date) {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "date must be YYYY-MM-DD", nil)
		return
	}
	dates, timezone, err := h.Calendar.RemoveHoliday(r.Context(), date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeHolidayResponse(w, dates, timezone)
}
