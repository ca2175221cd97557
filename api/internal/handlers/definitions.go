package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/esheo1787/qc-management-system/shared/httpx"
)

type createDefinitionRequest struct {
	VersionName string          `json:"version_name"`
	Content     json.RawMessage `json:"content"`
}

func (h *Handler) createDefinition(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	var req createDefinitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	snapshot, err := h.Definitions.CreateSnapshot(r.Context(), strings.TrimSpace(req.VersionName), req.Content)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toSnapshotResponse(snapshot))
}

func (h *Handler) listDefinitions(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	snapshots, err := h.Definitions.ListSnapshots(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]snapshotResponse, 0, len(snapshots))
	for _, s := range snapshots {
		out = append(out, toSnapshotResponse(s))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"definitions": out})
}

func (h *Handler) getDefinition(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	versionName := strings.TrimSpace(r.PathValue("version_name"))
	if versionName == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "version_name must not be empty", nil)
		return
	}
	snapshot, err := h.Definitions.GetSnapshotByVersion(r.Context(), versionName)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSnapshotResponse(snapshot))
}

type linkDefinitionRequest struct {
	ProjectID            uuid.UUID `json:"project_id"`
	DefinitionSnapshotID uuid.UUID `json:"definition_snapshot_id"`
}

func (h *Handler) linkDefinition(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	var req linkDefinitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProjectID == uuid.Nil || req.DefinitionSnapshotID == uuid.Nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "project_id and definition_snapshot_id are required", nil)
		return
	}
	link, err := h.Definitions.LinkProject(r.Context(), req.ProjectID, req.DefinitionSnapshotID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toLinkResponse(link))
}

func (h *Handler) listDefinitionLinks(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	links, err := h.Definitions.ListLinks(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"links": toLinkResponses(links)})
}

func (h *Handler) listProjectDefinitions(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	projectID, ok := pathUUID(w, r, "project_id")
	if !ok {
		return
	}
	links, err := h.Definitions.ListLinksByProject(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"links": toLinkResponses(links)})
}
