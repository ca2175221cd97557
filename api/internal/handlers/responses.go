package handlers

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/esheo1787/qc-management-system/api/internal/models"
	"github.com/esheo1787/qc-management-system/api/internal/repos"
)

// rawJSON passes stored JSON columns through to the response untouched. An
// absent column serializes as null.
func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}

type caseResponse struct {
	CaseID            uuid.UUID       `json:"case_id"`
	CaseUID           string          `json:"case_uid"`
	DisplayName       string          `json:"display_name"`
	OriginalName      *string         `json:"original_name"`
	NASPath           *string         `json:"nas_path"`
	Hospital          *string         `json:"hospital"`
	SliceThicknessMM  *float64        `json:"slice_thickness_mm"`
	ProjectID         uuid.UUID       `json:"project_id"`
	ProjectName       string          `json:"project_name"`
	PartID            uuid.UUID       `json:"part_id"`
	PartName          string          `json:"part_name"`
	Difficulty        string          `json:"difficulty"`
	Status            string          `json:"status"`
	Revision          int             `json:"revision"`
	AssignedUserID    *uuid.UUID      `json:"assigned_user_id"`
	AssignedUsername  *string         `json:"assigned_username"`
	Metadata          json.RawMessage `json:"metadata"`
	WWL               *string         `json:"wwl"`
	Memo              *string         `json:"memo"`
	StartedAt         *time.Time      `json:"started_at"`
	WorkerCompletedAt *time.Time      `json:"worker_completed_at"`
	AcceptedAt        *time.Time      `json:"accepted_at"`
	CreatedAt         time.Time       `json:"created_at"`
}

func toCaseResponse(cr repos.CaseRow) caseResponse {
	return caseResponse{
		CaseID:            cr.CaseID,
		CaseUID:           cr.CaseUID,
		DisplayName:       cr.DisplayName,
		OriginalName:      cr.OriginalName,
		NASPath:           cr.NASPath,
		Hospital:          cr.Hospital,
		SliceThicknessMM:  cr.SliceThicknessMM,
		ProjectID:         cr.ProjectID,
		ProjectName:       cr.ProjectName,
		PartID:            cr.PartID,
		PartName:          cr.PartName,
		Difficulty:        cr.Difficulty,
		Status:            cr.Status,
		Revision:          cr.Revision,
		AssignedUserID:    cr.AssignedUserID,
		AssignedUsername:  cr.AssignedUsername,
		Metadata:          rawJSON(cr.Metadata),
		WWL:               cr.WWL,
		Memo:              cr.Memo,
		StartedAt:         cr.StartedAt,
		WorkerCompletedAt: cr.WorkerCompletedAt,
		AcceptedAt:        cr.AcceptedAt,
		CreatedAt:         cr.CreatedAt,
	}
}

func toCaseResponses(rows []repos.CaseRow) []caseResponse {
	out := make([]caseResponse, 0, len(rows))
	for _, cr := range rows {
		out = append(out, toCaseResponse(cr))
	}
	return out
}

type eventResponse struct {
	EventID        uuid.UUID       `json:"event_id"`
	CaseID         uuid.UUID       `json:"case_id"`
	UserID         uuid.UUID       `json:"user_id"`
	Username       string          `json:"username,omitempty"`
	EventType      string          `json:"event_type"`
	FromStatus     string          `json:"from_status"`
	ToStatus       string          `json:"to_status"`
	IdempotencyKey string          `json:"idempotency_key"`
	EventCode      *string         `json:"event_code"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
}

func toEventResponse(er repos.EventRow) eventResponse {
	return eventResponse{
		EventID:        er.EventID,
		CaseID:         er.CaseID,
		UserID:         er.UserID,
		Username:       er.Username,
		EventType:      er.EventType,
		FromStatus:     er.FromStatus,
		ToStatus:       er.ToStatus,
		IdempotencyKey: er.IdempotencyKey,
		EventCode:      er.EventCode,
		Payload:        rawJSON(er.Payload),
		CreatedAt:      er.CreatedAt,
	}
}

func toEventResponses(rows []repos.EventRow) []eventResponse {
	out := make([]eventResponse, 0, len(rows))
	for _, er := range rows {
		out = append(out, toEventResponse(er))
	}
	return out
}

type workLogResponse struct {
	WorkLogID  int64     `json:"worklog_id"`
	CaseID     uuid.UUID `json:"case_id"`
	UserID     uuid.UUID `json:"user_id"`
	Username   string    `json:"username,omitempty"`
	ActionType string    `json:"action_type"`
	ReasonCode *string   `json:"reason_code"`
	Timestamp  time.Time `json:"timestamp"`
}

func toWorkLogResponse(wr repos.WorkLogRow) workLogResponse {
	return workLogResponse{
		WorkLogID:  wr.WorkLogID,
		CaseID:     wr.CaseID,
		UserID:     wr.UserID,
		Username:   wr.Username,
		ActionType: wr.Action,
		ReasonCode: wr.ReasonCode,
		Timestamp:  wr.Timestamp,
	}
}

func toWorkLogResponses(rows []repos.WorkLogRow) []workLogResponse {
	out := make([]workLogResponse, 0, len(rows))
	for _, wr := range rows {
		out = append(out, toWorkLogResponse(wr))
	}
	return out
}

type noteResponse struct {
	NoteID             uuid.UUID       `json:"note_id"`
	CaseID             uuid.UUID       `json:"case_id"`
	ReviewerUserID     uuid.UUID       `json:"reviewer_user_id"`
	ReviewerUsername   string          `json:"reviewer_username,omitempty"`
	QCSummaryConfirmed bool            `json:"qc_summary_confirmed"`
	NoteText           string          `json:"note_text"`
	ExtraTags          json.RawMessage `json:"extra_tags"`
	CreatedAt          time.Time       `json:"created_at"`
}

func toNoteResponse(nr repos.NoteRow) noteResponse {
	return noteResponse{
		NoteID:             nr.NoteID,
		CaseID:             nr.CaseID,
		ReviewerUserID:     nr.ReviewerUserID,
		ReviewerUsername:   nr.ReviewerUsername,
		QCSummaryConfirmed: nr.QCSummaryConfirmed,
		NoteText:           nr.NoteText,
		ExtraTags:          rawJSON(nr.ExtraTags),
		CreatedAt:          nr.CreatedAt,
	}
}

func toNoteResponses(rows []repos.NoteRow) []noteResponse {
	out := make([]noteResponse, 0, len(rows))
	for _, nr := range rows {
		out = append(out, toNoteResponse(nr))
	}
	return out
}

type timeOffResponse struct {
	TimeOffID uuid.UUID `json:"timeoff_id"`
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Date      string    `json:"date"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

func toTimeOffResponse(tr repos.TimeOffRow) timeOffResponse {
	return timeOffResponse{
		TimeOffID: tr.TimeOffID,
		UserID:    tr.UserID,
		Username:  tr.Username,
		Date:      tr.Date.Format("2006-01-02"),
		Type:      tr.Type,
		CreatedAt: tr.CreatedAt,
	}
}

func toTimeOffResponses(rows []repos.TimeOffRow) []timeOffResponse {
	out := make([]timeOffResponse, 0, len(rows))
	for _, tr := range rows {
		out = append(out, toTimeOffResponse(tr))
	}
	return out
}

type userResponse struct {
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Subject   *string   `json:"subject,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u models.User) userResponse {
	return userResponse{
		UserID:    u.UserID,
		Username:  u.Username,
		Role:      u.Role,
		Subject:   u.Subject,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

type preQcResponse struct {
	SummaryID               uuid.UUID       `json:"summary_id"`
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
	CreatedAt               time.Time       `json:"created_at"`
}

func toPreQcResponse(s models.PreQcSummary) preQcResponse {
	return preQcResponse{
		SummaryID:               s.SummaryID,
		CaseID:                  s.CaseID,
		FolderPath:              s.FolderPath,
		SliceCount:              s.SliceCount,
		Spacing:                 rawJSON(s.Spacing),
		VolumeFile:              s.VolumeFile,
		SliceThicknessMM:        s.SliceThicknessMM,
		SliceThicknessFlag:      s.SliceThicknessFlag,
		NoiseSigmaMean:          s.NoiseSigmaMean,
		NoiseLevel:              s.NoiseLevel,
		DeltaHU:                 s.DeltaHU,
		ContrastFlag:            s.ContrastFlag,
		VesselVoxelRatio:        s.VesselVoxelRatio,
		EdgeStrength:            s.EdgeStrength,
		VascularVisibilityScore: s.VascularVisibilityScore,
		VascularVisibilityLevel: s.VascularVisibilityLevel,
		Difficulty:              s.Difficulty,
		Flags:                   rawJSON(s.Flags),
		ExpectedSegments:        rawJSON(s.ExpectedSegments),
		Notes:                   s.Notes,
		CreatedAt:               s.CreatedAt,
	}
}

type autoQcResponse struct {
	SummaryID          uuid.UUID       `json:"summary_id"`
	CaseID             uuid.UUID       `json:"case_id"`
	Status             *string         `json:"status"`
	MissingSegments    json.RawMessage `json:"missing_segments"`
	NameMismatches     json.RawMessage `json:"name_mismatches"`
	ExtraSegments      json.RawMessage `json:"extra_segments"`
	Issues             json.RawMessage `json:"issues"`
	IssueCounts        json.RawMessage `json:"issue_counts"`
	GeometryMismatch   bool            `json:"geometry_mismatch"`
	Warnings           json.RawMessage `json:"warnings"`
	Revision           int             `json:"revision"`
	PreviousIssueCount *int            `json:"previous_issue_count"`
	CreatedAt          time.Time       `json:"created_at"`
}

func toAutoQcResponse(s models.AutoQcSummary) autoQcResponse {
	return autoQcResponse{
		SummaryID:          s.SummaryID,
		CaseID:             s.CaseID,
		Status:             s.Status,
		MissingSegments:    rawJSON(s.MissingSegments),
		NameMismatches:     rawJSON(s.NameMismatches),
		ExtraSegments:      rawJSON(s.ExtraSegments),
		Issues:             rawJSON(s.Issues),
		IssueCounts:        rawJSON(s.IssueCounts),
		GeometryMismatch:   s.GeometryMismatch,
		Warnings:           rawJSON(s.Warnings),
		Revision:           s.Revision,
		PreviousIssueCount: s.PreviousIssueCount,
		CreatedAt:          s.CreatedAt,
	}
}

type disagreementResponse struct {
	CaseID            uuid.UUID  `json:"case_id"`
	CaseUID           string     `json:"case_uid"`
	DisplayName       string     `json:"display_name"`
	Hospital          *string    `json:"hospital"`
	PartName          string     `json:"part_name"`
	Difficulty        string     `json:"difficulty"`
	AutoQcStatus      *string    `json:"autoqc_status"`
	CaseStatus        string     `json:"case_status"`
	Type              string     `json:"type"`
	AcceptedAt        *time.Time `json:"accepted_at"`
	ReworkRequestedAt *time.Time `json:"rework_requested_at"`
}

func toDisagreementResponses(rows []repos.Disagreement) []disagreementResponse {
	out := make([]disagreementResponse, 0, len(rows))
	for _, d := range rows {
		out = append(out, disagreementResponse{
			CaseID:            d.CaseID,
			CaseUID:           d.CaseUID,
			DisplayName:       d.DisplayName,
			Hospital:          d.Hospital,
			PartName:          d.PartName,
			Difficulty:        d.Difficulty,
			AutoQcStatus:      d.AutoQcStatus,
			CaseStatus:        d.CaseStatus,
			Type:              d.Type,
			AcceptedAt:        d.AcceptedAt,
			ReworkRequestedAt: d.ReworkRequestedAt,
		})
	}
	return out
}

type snapshotResponse struct {
	SnapshotID  uuid.UUID       `json:"snapshot_id"`
	VersionName string          `json:"version_name"`
	Content     json.RawMessage `json:"content"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toSnapshotResponse(s models.DefinitionSnapshot) snapshotResponse {
	return snapshotResponse{
		SnapshotID:  s.SnapshotID,
		VersionName: s.VersionName,
		Content:     rawJSON(s.Content),
		CreatedAt:   s.CreatedAt,
	}
}

type linkResponse struct {
	LinkID               uuid.UUID `json:"link_id"`
	ProjectID            uuid.UUID `json:"project_id"`
	ProjectName          string    `json:"project_name"`
	DefinitionSnapshotID uuid.UUID `json:"definition_snapshot_id"`
	VersionName          string    `json:"version_name"`
	CreatedAt            time.Time `json:"created_at"`
}

func toLinkResponse(l repos.LinkRow) linkResponse {
	return linkResponse{
		LinkID:               l.LinkID,
		ProjectID:            l.ProjectID,
		ProjectName:          l.ProjectName,
		DefinitionSnapshotID: l.DefinitionSnapshotID,
		VersionName:          l.VersionName,
		CreatedAt:            l.CreatedAt,
	}
}

func toLinkResponses(rows []repos.LinkRow) []linkResponse {
	out := make([]linkResponse, 0, len(rows))
	for _, l := range rows {
		out = append(out, toLinkResponse(l))
	}
	return out
}
