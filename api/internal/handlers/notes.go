package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/esheo1787/qc-management-system/shared/httpx"
)

type createReviewNoteRequest struct {
	CaseID             uuid.UUID       `json:"case_id"`
	QCSummaryConfirmed bool            `json:"qc_summary_confirmed"`
	NoteText           string          `json:"note_text"`
	ExtraTags          json.RawMessage `json:"extra_tags"`
}

func (h *Handler) createReviewNote(w http.ResponseWriter, r *http.Request) {
	user, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	var req createReviewNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CaseID == uuid.Nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "case_id is required", nil)
		return
	}
	if strings.TrimSpace(req.NoteText) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "note_text is required", nil)
		return
	}
	if len(req.ExtraTags) > 0 && !json.Valid(req.ExtraTags) {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "extra_tags must be valid JSON", nil)
		return
	}

	note, err := h.Notes.CreateReviewNote(r.Context(), req.CaseID, user, req.QCSummaryConfirmed, req.NoteText, req.ExtraTags)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toNoteResponse(note))
}
