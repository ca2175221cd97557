package repos

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/esheo1787/qc-management-system/api/internal/models"
	"github.com/esheo1787/qc-management-system/shared/workflow"
)

// QC summaries are computed by local clients and stored here opaque; the
// server never runs QC itself.
type QcRepo struct {
	pool *pgxpool.Pool
}

func NewQcRepo(pool *pgxpool.Pool) *QcRepo {
	return &QcRepo{pool: pool}
}

const (
	AutoQcPass       = "PASS"
	AutoQcWarn       = "WARN"
	AutoQcIncomplete = "INCOMPLETE"
)

const (
	DisagreementFalseNegative = "FALSE_NEGATIVE"
	DisagreementFalsePositive = "FALSE_POSITIVE"
)

type PreQcInput struct {
	FolderPath              *string
	SliceCount              *int
	Spacing                 []byte
	VolumeFile              *string
	SliceThicknessMM        *float64
	SliceThicknessFlag      *string
	NoiseSigmaMean          *float64
	NoiseLevel              *string
	DeltaHU                 *float64
	ContrastFlag            *string
	VesselVoxelRatio        *float64
	EdgeStrength            *float64
	VascularVisibilityScore *int
	VascularVisibilityLevel *string
	Difficulty              *string
	Flags                   []byte
	ExpectedSegments        []byte
	Notes                   *string
}

const preQcColumns = `
	summary_id, case_id, folder_path, slice_count, spacing_json, volume_file,
	slice_thickness_mm, slice_thickness_flag, noise_sigma_mean, noise_level,
	delta_hu, contrast_flag, vessel_voxel_ratio, edge_strength,
	vascular_visibility_score, vascular_visibility_level, difficulty,
	flags_json, expected_segments_json, notes, created_at`

func scanPreQc(row pgx.Row) (models.PreQcSummary, error) {
	var s models.PreQcSummary
	err := row.Scan(
		&s.SummaryID, &s.CaseID, &s.FolderPath, &s.SliceCount, &s.Spacing, &s.VolumeFile,
		&s.SliceThicknessMM, &s.SliceThicknessFlag, &s.NoiseSigmaMean, &s.NoiseLevel,
		&s.DeltaHU, &s.ContrastFlag, &s.VesselVoxelRatio, &s.EdgeStrength,
		&s.VascularVisibilityScore, &s.VascularVisibilityLevel, &s.Difficulty,
		&s.Flags, &s.ExpectedSegments, &s.Notes, &s.CreatedAt,
	)
	return s, err
}

// UpsertPreQc replaces the per-case pre-QC summary; created_at reflects the
// latest write.
func (r *QcRepo) UpsertPreQc(ctx context.Context, caseID uuid.UUID, input PreQcInput) (models.PreQcSummary, error) {
	if _, err := getCase(ctx, r.pool, caseID); err != nil {
		return models.PreQcSummary{}, err
	}

	summary, err := scanPreQc(r.pool.QueryRow(ctx, `
		INSERT INTO pre_qc_summaries (
			case_id, folder_path, slice_count, spacing_json, volume_file,
			slice_thickness_mm, slice_thickness_flag, noise_sigma_mean, noise_level,
			delta_hu, contrast_flag, vessel_voxel_ratio, edge_strength,
			vascular_visibility_score, vascular_visibility_level, difficulty,
			flags_json, expected_segments_json, notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (case_id) DO UPDATE SET
			folder_path = EXCLUDED.folder_path,
			slice_count = EXCLUDED.slice_count,
			spacing_json = EXCLUDED.spacing_json,
			volume_file = EXCLUDED.volume_file,
			slice_thickness_mm = EXCLUDED.slice_thickness_mm,
			slice_thickness_flag = EXCLUDED.slice_thickness_flag,
			noise_sigma_mean = EXCLUDED.noise_sigma_mean,
			noise_level = EXCLUDED.noise_level,
			delta_hu = EXCLUDED.delta_hu,
			contrast_flag = EXCLUDED.contrast_flag,
			vessel_voxel_ratio = EXCLUDED.vessel_voxel_ratio,
			edge_strength = EXCLUDED.edge_strength,
			vascular_visibility_score = EXCLUDED.vascular_visibility_score,
			vascular_visibility_level = EXCLUDED.vascular_visibility_level,
			difficulty = EXCLUDED.difficulty,
			flags_json = EXCLUDED.flags_json,
			expected_segments_json = EXCLUDED.expected_segments_json,
			notes = EXCLUDED.notes,
			created_at = EXCLUDED.created_at
		RETURNING `+preQcColumns+`
	`, caseID, input.FolderPath, input.SliceCount, input.Spacing, input.VolumeFile,
		input.SliceThicknessMM, input.SliceThicknessFlag, input.NoiseSigmaMean, input.NoiseLevel,
		input.DeltaHU, input.ContrastFlag, input.VesselVoxelRatio, input.EdgeStrength,
		input.VascularVisibilityScore, input.VascularVisibilityLevel, input.Difficulty,
		input.Flags, input.ExpectedSegments, input.Notes, time.Now().UTC()))
	return summary, err
}

func (r *QcRepo) GetPreQcByCase(ctx context.Context, caseID uuid.UUID) (models.PreQcSummary, error) {
	summary, err := scanPreQc(r.pool.QueryRow(ctx, `
		SELECT `+preQcColumns+`
		FROM pre_qc_summaries
		WHERE case_id = $1
	`, caseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PreQcSummary{}, NotFoundf("pre-QC summary not found for case %s", caseID)
	}
	return summary, err
}

// getPreQcOptional is the detail-composition variant: absence is not an error.
func getPreQcOptional(ctx context.Context, db DBTX, caseID uuid.UUID) (*models.PreQcSummary, error) {
	summary, err := scanPreQc(db.QueryRow(ctx, `
		SELECT `+preQcColumns+`
		FROM pre_qc_summaries
		WHERE case_id = $1
	`, caseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (r *QcRepo) FindPreQcByCase(ctx context.Context, caseID uuid.UUID) (*models.PreQcSummary, error) {
	return getPreQcOptional(ctx, r.pool, caseID)
}

type AutoQcInput struct {
	Status           string
	MissingSegments  []byte
	NameMismatches   []byte
	ExtraSegments    []byte
	Issues           []byte
	IssueCounts      []byte
	GeometryMismatch bool
	Warnings         []byte
}

const autoQcColumns = `
	summary_id, case_id, status, missing_segments_json, name_mismatches_json,
	extra_segments_json, issues_json, issue_count_json, geometry_mismatch,
	warnings_json, revision, previous_issue_count, created_at`

func scanAutoQc(row pgx.Row) (models.AutoQcSummary, error) {
	var s models.AutoQcSummary
	err := row.Scan(
		&s.SummaryID, &s.CaseID, &s.Status, &s.MissingSegments, &s.NameMismatches,
		&s.ExtraSegments, &s.Issues, &s.IssueCounts, &s.GeometryMismatch,
		&s.Warnings, &s.Revision, &s.PreviousIssueCount, &s.CreatedAt,
	)
	return s, err
}

// UpsertAutoQc stores a run of the external auto-QC. A re-upload bumps the
// summary revision and keeps the prior run's total issue count.
func (r *QcRepo) UpsertAutoQc(ctx context.Context, caseID uuid.UUID, input AutoQcInput) (models.AutoQcSummary, error) {
	status := workflow.NormalizeStatus(input.Status)
	if status != AutoQcPass && status != AutoQcWarn && status != AutoQcIncomplete {
		return models.AutoQcSummary{}, Validationf("invalid auto-QC status: %s", input.Status)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.AutoQcSummary{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = getCase(ctx, tx, caseID); err != nil {
		return models.AutoQcSummary{}, err
	}

	var existing models.AutoQcSummary
	var found bool
	existing, err = scanAutoQc(tx.QueryRow(ctx, `
		SELECT `+autoQcColumns+`
		FROM auto_qc_summaries
		WHERE case_id = $1
		FOR UPDATE
	`, caseID))
	if err == nil {
		found = true
	} else if errors.Is(err, pgx.ErrNoRows) {
		err = nil
	} else {
		return models.AutoQcSummary{}, err
	}

	now := time.Now().UTC()
	var summary models.AutoQcSummary
	if found {
		prev := totalIssueCount(existing.IssueCounts)
		summary, err = scanAutoQc(tx.QueryRow(ctx, `
			UPDATE auto_qc_summaries SET
				status = $2, missing_segments_json = $3, name_mismatches_json = $4,
				extra_segments_json = $5, issues_json = $6, issue_count_json = $7,
				geometry_mismatch = $8, warnings_json = $9,
				revision = revision + 1, previous_issue_count = $10, created_at = $11
			WHERE case_id = $1
			RETURNING `+autoQcColumns+`
		`, caseID, status, input.MissingSegments, input.NameMismatches,
			input.ExtraSegments, input.Issues, input.IssueCounts,
			input.GeometryMismatch, input.Warnings, prev, now))
	} else {
		summary, err = scanAutoQc(tx.QueryRow(ctx, `
			INSERT INTO auto_qc_summaries (
				case_id, status, missing_segments_json, name_mismatches_json,
				extra_segments_json, issues_json, issue_count_json,
				geometry_mismatch, warnings_json, revision, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10)
			RETURNING `+autoQcColumns+`
		`, caseID, status, input.MissingSegments, input.NameMismatches,
			input.ExtraSegments, input.Issues, input.IssueCounts,
			input.GeometryMismatch, input.Warnings, now))
	}
	if err != nil {
		return models.AutoQcSummary{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.AutoQcSummary{}, err
	}
	return summary, nil
}

func (r *QcRepo) GetAutoQcByCase(ctx context.Context, caseID uuid.UUID) (models.AutoQcSummary, error) {
	summary, err := scanAutoQc(r.pool.QueryRow(ctx, `
		SELECT `+autoQcColumns+`
		FROM auto_qc_summaries
		WHERE case_id = $1
	`, caseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.AutoQcSummary{}, NotFoundf("auto-QC summary not found for case %s", caseID)
	}
	return summary, err
}

// totalIssueCount sums a per-segment issue-count map. Malformed or empty
// payloads count zero.
func totalIssueCount(raw []byte) int {
	if len(raw) == 0 {
		return 0
	}
	counts := map[string]int{}
	if err := json.Unmarshal(raw, &counts); err != nil {
		return 0
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}

type DisagreementFilter struct {
	PartName   *string
	Hospital   *string
	Difficulty *string
	From       *time.Time
	To         *time.Time
}

// Disagreement is a case where auto-QC and the human review disagree. Derived
// on demand, never stored.
type Disagreement struct {
	CaseID            uuid.UUID
	CaseUID           string
	DisplayName       string
	Hospital          *string
	PartName          string
	Difficulty        string
	AutoQcStatus      *string
	CaseStatus        string
	Type              string
	AcceptedAt        *time.Time
	ReworkRequestedAt *time.Time
}

// classifyDisagreement returns "" when the auto-QC verdict and the human
// outcome agree. PASS plus a rework request is a false positive; a non-PASS
// verdict on an accepted case is a false negative.
func classifyDisagreement(autoQcStatus *string, caseStatus string, hasReworkEvent bool) string {
	if autoQcStatus == nil {
		return ""
	}
	pass := *autoQcStatus == AutoQcPass
	if !pass && caseStatus == workflow.StatusAccepted {
		return DisagreementFalseNegative
	}
	if pass && hasReworkEvent {
		return DisagreementFalsePositive
	}
	return ""
}

const disagreementQuery = `
	SELECT c.case_id, c.case_uid, c.display_name, c.hospital, pt.name, c.difficulty,
		a.status, c.status, c.accepted_at,
		(SELECT MIN(e.created_at) FROM events e WHERE e.case_id = c.case_id AND e.event_type = $1) AS rework_requested_at
	FROM cases c
	JOIN auto_qc_summaries a ON a.case_id = c.case_id
	JOIN parts pt ON pt.part_id = c.part_id
	WHERE ($2::text IS NULL OR pt.name = $2)
	  AND ($3::text IS NULL OR c.hospital = $3)
	  AND ($4::text IS NULL OR c.difficulty = $4)
	  AND ($5::timestamptz IS NULL OR c.created_at >= $5)
	  AND ($6::timestamptz IS NULL OR c.created_at <= $6)
	ORDER BY c.created_at DESC`

func (r *QcRepo) listAutoQcOutcomes(ctx context.Context, filter DisagreementFilter) ([]Disagreement, error) {
	rows, err := r.pool.Query(ctx, disagreementQuery,
		workflow.EventReworkRequested, filter.PartName, filter.Hospital, filter.Difficulty, filter.From, filter.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Disagreement
	for rows.Next() {
		var d Disagreement
		if err := rows.Scan(&d.CaseID, &d.CaseUID, &d.DisplayName, &d.Hospital, &d.PartName, &d.Difficulty,
			&d.AutoQcStatus, &d.CaseStatus, &d.AcceptedAt, &d.ReworkRequestedAt); err != nil {
			return nil, err
		}
		d.Type = classifyDisagreement(d.AutoQcStatus, d.CaseStatus, d.ReworkRequestedAt != nil)
		items = append(items, d)
	}
	return items, rows.Err()
}

// ListDisagreements returns only the cases where verdicts diverge.
func (r *QcRepo) ListDisagreements(ctx context.Context, filter DisagreementFilter) ([]Disagreement, error) {
	outcomes, err := r.listAutoQcOutcomes(ctx, filter)
	if err != nil {
		return nil, err
	}
	disagreements := []Disagreement{}
	for _, d := range outcomes {
		if d.Type != "" {
			disagreements = append(disagreements, d)
		}
	}
	return disagreements, nil
}

type DisagreementBucket struct {
	Total         int
	Disagreements int
	Rate          float64
}

type DisagreementStats struct {
	TotalCasesWithAutoQc int
	TotalDisagreements   int
	DisagreementRate     float64
	FalsePositives       int
	FalseNegatives       int
	ByPart               map[string]DisagreementBucket
	ByHospital           map[string]DisagreementBucket
	ByDifficulty         map[string]DisagreementBucket
}

// DisagreementStats folds every auto-QC'd case in range into totals and
// per-part/hospital/difficulty buckets.
func (r *QcRepo) DisagreementStats(ctx context.Context, from *time.Time, to *time.Time) (DisagreementStats, error) {
	outcomes, err := r.listAutoQcOutcomes(ctx, DisagreementFilter{From: from, To: to})
	if err != nil {
		return DisagreementStats{}, err
	}

	stats := DisagreementStats{
		ByPart:       map[string]DisagreementBucket{},
		ByHospital:   map[string]DisagreementBucket{},
		ByDifficulty: map[string]DisagreementBucket{},
	}
	for _, d := range outcomes {
		stats.TotalCasesWithAutoQc++
		disagreed := d.Type != ""
		switch d.Type {
		case DisagreementFalseNegative:
			stats.FalseNegatives++
		case DisagreementFalsePositive:
			stats.FalsePositives++
		}

		hospital := "Unknown"
		if d.Hospital != nil {
			hospital = *d.Hospital
		}
		bumpBucket(stats.ByPart, d.PartName, disagreed)
		bumpBucket(stats.ByHospital, hospital, disagreed)
		bumpBucket(stats.ByDifficulty, d.Difficulty, disagreed)
	}

	stats.TotalDisagreements = stats.FalsePositives + stats.FalseNegatives
	if stats.TotalCasesWithAutoQc > 0 {
		stats.DisagreementRate = round4(float64(stats.TotalDisagreements) / float64(stats.TotalCasesWithAutoQc))
	}
	for _, buckets := range []map[string]DisagreementBucket{stats.ByPart, stats.ByHospital, stats.ByDifficulty} {
		for key, b := range buckets {
			if b.Total > 0 {
				b.Rate = round4(float64(b.Disagreements) / float64(b.Total))
			}
			buckets[key] = b
		}
	}
	return stats, nil
}

func bumpBucket(buckets map[string]DisagreementBucket, key string, disagreed bool) {
	b := buckets[key]
	b.Total++
	if disagreed {
		b.Disagreements++
	}
	buckets[key] = b
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
