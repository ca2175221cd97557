package handlers

import (
	"net/http"
	"strings"

	"github.com/esheo1787/qc-management-system/shared/httpx"
)

type tagRequest struct {
	TagText  string   `json:"tag_text"`
	CaseUIDs []string `json:"case_uids"`
}

func (h *Handler) applyTags(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	var req tagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.Tags.ApplyTag(r.Context(), req.TagText, req.CaseUIDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"tag_text":  result.TagText,
		"applied":   result.Applied,
		"skipped":   result.Skipped,
		"not_found": result.NotFound,
	})
}

func (h *Handler) removeTags(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	var req tagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	removed, err := h.Tags.RemoveTag(r.Context(), req.TagText, req.CaseUIDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"tag_text": strings.TrimSpace(req.TagText),
		"removed":  removed,
	})
}

func (h *Handler) listTags(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	tags, err := h.Tags.ListTags(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (h *Handler) casesByTag(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	tag := strings.TrimSpace(r.PathValue("tag"))
	if tag == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "tag must not be empty", nil)
		return
	}
	cases, err := h.Tags.ListCasesByTag(r.Context(), tag)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"tag_text": tag,
		"cases":    toCaseResponses(cases),
	})
}
