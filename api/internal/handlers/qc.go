package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/esheo1787/qc-management-system/api/internal/repos"
	"github.com/esheo1787/qc-management-system/shared/httpx"
	"github.com/esheo1787/qc-management-system/shared/workflow"
)

type upsertPreQcRequest struct {
	CaseID                  uuid.UUID       `json:"case_id"`
	FolderPath              *string         `json:"folder_path"`
	SliceCount              *int            `json:"slice_count"`
	Spacing                 json.RawMessage `json:"spacing"`
	VolumeFile              *string         `json:"volume_file"`
	SliceThicknessMM        *float64        `json:"slice_thickness_mm"`
	SliceThicknessFlag      *string         `json:"slice_thickness_flag"`
	NoiseSigmaMean          *float64        `json:"noise_sigma_mean"`
	NoiseLevel              *string         `json:"noise_level"`
	DeltaHU                 *float64        `json:"delta_hu"`
	ContrastFlag            *string         `json:"contrast_flag"`
	VesselVoxelRatio        *float64        `json:"vessel_voxel_ratio"`
	EdgeStrength            *float64        `json:"edge_strength"`
	VascularVisibilityScore *int            `json:"vascular_visibility_score"`
	VascularVisibilityLevel *string         `json:"vascular_visibility_level"`
	Difficulty              *string         `json:"difficulty"`
	Flags                   json.RawMessage `json:"flags"`
	ExpectedSegments        json.RawMessage `json:"expected_segments"`
	Notes                   *string         `json:"notes"`
}

// upsertPreQc stores the externally computed pre-QC summary for a case. The
// payload is persisted as-is; re-uploading replaces the previous summary.
func (h *Handler) upsertPreQc(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	var req upsertPreQcRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CaseID == uuid.Nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "case_id is required", nil)
		return
	}

	summary, err := h.Qc.UpsertPreQc(r.Context(), req.CaseID, repos.PreQcInput{
		FolderPath:              req.FolderPath,
		SliceCount:              req.SliceCount,
		Spacing:                 req.Spacing,
		VolumeFile:              req.VolumeFile,
		SliceThicknessMM:        req.SliceThicknessMM,
		SliceThicknessFlag:      req.SliceThicknessFlag,
		NoiseSigmaMean:          req.NoiseSigmaMean,
		NoiseLevel:              req.NoiseLevel,
		DeltaHU:                 req.DeltaHU,
		ContrastFlag:            req.ContrastFlag,
		VesselVoxelRatio:        req.VesselVoxelRatio,
		EdgeStrength:            req.EdgeStrength,
		VascularVisibilityScore: req.VascularVisibilityScore,
		VascularVisibilityLevel: req.VascularVisibilityLevel,
		Difficulty:              req.Difficulty,
		Flags:                   req.Flags,
		ExpectedSegments:        req.ExpectedSegments,
		Notes:                   req.Notes,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toPreQcResponse(summary))
}

func (h *Handler) getPreQc(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	caseID, ok := pathUUID(w, r, "case_id")
	if !ok {
		return
	}
	summary, err := h.Qc.GetPreQcByCase(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toPreQcResponse(summary))
}

type upsertAutoQcRequest struct {
	CaseID           uuid.UUID       `json:"case_id"`
	Status           string          `json:"status"`
	MissingSegments  json.RawMessage `json:"missing_segments"`
	NameMismatches   json.RawMessage `json:"name_mismatches"`
	ExtraSegments    json.RawMessage `json:"extra_segments"`
	Issues           json.RawMessage `json:"issues"`
	IssueCounts      json.RawMessage `json:"issue_counts"`
	GeometryMismatch bool            `json:"geometry_mismatch"`
	Warnings         json.RawMessage `json:"warnings"`
}

// upsertAutoQc stores an auto-QC run. Re-uploads bump the summary revision
// and remember the previous total issue count for drift comparison.
func (h *Handler) upsertAutoQc(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	var req upsertAutoQcRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CaseID == uuid.Nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "case_id is required", nil)
		return
	}

	summary, err := h.Qc.UpsertAutoQc(r.Context(), req.CaseID, repos.AutoQcInput{
		Status:           req.Status,
		MissingSegments:  req.MissingSegments,
		NameMismatches:   req.NameMismatches,
		ExtraSegments:    req.ExtraSegments,
		Issues:           req.Issues,
		IssueCounts:      req.IssueCounts,
		GeometryMismatch: req.GeometryMismatch,
		Warnings:         req.Warnings,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAutoQcResponse(summary))
}

func (h *Handler) getAutoQc(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	caseID, ok := pathUUID(w, r, "case_id")
	if !ok {
		return
	}
	summary, err := h.Qc.GetAutoQcByCase(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAutoQcResponse(summary))
}

func disagreementFilterFromQuery(w http.ResponseWriter, r *http.Request) (repos.DisagreementFilter, bool) {
	var filter repos.DisagreementFilter
	q := r.URL.Query()
	if raw := q.Get("part"); raw != "" {
		filter.PartName = &raw
	}
	if raw := q.Get("hospital"); raw != "" {
		filter.Hospital = &raw
	}
	if raw := q.Get("difficulty"); raw != "" {
		difficulty := workflow.NormalizeDifficulty(raw)
		filter.Difficulty = &difficulty
	}
	from, ok := queryDate(w, r, "from")
	if !ok {
		return repos.DisagreementFilter{}, false
	}
	filter.From = from
	to, ok := queryDate(w, r, "to")
	if !ok {
		return repos.DisagreementFilter{}, false
	}
	if to != nil {
		end := endOfDay(*to)
		filter.To = &end
	}
	return filter, true
}

func (h *Handler) listDisagreements(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	filter, ok := disagreementFilterFromQuery(w, r)
	if !ok {
		return
	}
	rows, err := h.Qc.ListDisagreements(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"disagreements": toDisagreementResponses(rows),
	})
}

type disagreementBucketResponse struct {
	Total         int     `json:"total"`
	Disagreements int     `json:"disagreements"`
	Rate          float64 `json:"rate"`
}

func toBucketResponses(src map[string]repos.DisagreementBucket) map[string]disagreementBucketResponse {
	out := make(map[string]disagreementBucketResponse, len(src))
	for k, v := range src {
		out[k] = disagreementBucketResponse{Total: v.Total, Disagreements: v.Disagreements, Rate: v.Rate}
	}
	return out
}

func (h *Handler) disagreementStats(w http.ResponseWriter, r *http.Request) {
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
	if to != nil {
		end := endOfDay(*to)
		to = &end
	}
	stats, err := h.Qc.DisagreementStats(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"total_cases_with_autoqc": stats.TotalCasesWithAutoQc,
		"total_disagreements":     stats.TotalDisagreements,
		"disagreement_rate":       stats.DisagreementRate,
		"false_positives":         stats.FalsePositives,
		"false_negatives":         stats.FalseNegatives,
		"by_part":                 toBucketResponses(stats.ByPart),
		"by_hospital":             toBucketResponses(stats.ByHospital),
		"by_difficulty":           toBucketResponses(stats.ByDifficulty),
	})
}
