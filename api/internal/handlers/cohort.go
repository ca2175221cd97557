package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/esheo1787/qc-management-system/api/internal/repos"
	"github.com/esheo1787/qc-management-system/shared/httpx"
	"github.com/esheo1787/qc-management-system/shared/workflow"
)

type cohortSummaryRequest struct {
	Tag               *string    `json:"tag"`
	ProjectID         *uuid.UUID `json:"project_id"`
	DefinitionVersion *string    `json:"definition_version"`
	Status            *string    `json:"status"`
	From              *string    `json:"from"`
	To                *string    `json:"to"`
}

func (h *Handler) cohortSummary(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	var req cohortSummaryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	filter := repos.CohortFilter{
		Tag:               req.Tag,
		ProjectID:         req.ProjectID,
		DefinitionVersion: req.DefinitionVersion,
	}
	if req.Status != nil {
		status := workflow.NormalizeStatus(*req.Status)
		filter.Status = &status
	}
	if req.From != nil {
		from, err := time.ParseInLocation("2006-01-02", *req.From, time.UTC)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "from must be YYYY-MM-DD", nil)
			return
		}
		filter.From = &from
	}
	if req.To != nil {
		to, err := time.ParseInLocation("2006-01-02", *req.To, time.UTC)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "to must be YYYY-MM-DD", nil)
			return
		}
		end := endOfDay(to)
		filter.To = &end
	}

	settings, err := h.Config.LoadSettings(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	summary, err := h.Cohort.Summary(r.Context(), filter, settings)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"total_cases":               summary.TotalCases,
		"by_status":                 summary.ByStatus,
		"by_difficulty":             summary.ByDifficulty,
		"by_part":                   summary.ByPart,
		"by_hospital":               summary.ByHospital,
		"total_work_seconds":        summary.TotalWorkSeconds,
		"total_man_days":            summary.TotalManDays,
		"avg_work_seconds_per_case": summary.AvgWorkSecondsPerCase,
		"weighted_cases":            summary.WeightedCases,
	})
}
