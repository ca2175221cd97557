package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/esheo1787/qc-management-system/api/internal/models"
	"github.com/esheo1787/qc-management-system/shared/workflow"
)

type CasesRepo struct {
	pool *pgxpool.Pool
}

func NewCasesRepo(pool *pgxpool.Pool) *CasesRepo {
	return &CasesRepo{pool: pool}
}

// CaseRow is a case joined with its project, part, and assignee names.
type CaseRow struct {
	models.Case
	ProjectName      string
	PartName         string
	AssignedUsername *string
}

const caseRowColumns = `
	c.case_id, c.case_uid, c.display_name, c.original_name, c.nas_path, c.hospital,
	c.slice_thickness_mm, c.project_id, c.part_id, c.difficulty, c.status, c.revision,
	c.assigned_user_id, c.metadata_json, c.wwl, c.memo,
	c.started_at, c.worker_completed_at, c.accepted_at, c.created_at,
	p.name, pt.name, u.username`

const caseRowJoins = `
	FROM cases c
	JOIN projects p ON p.project_id = c.project_id
	JOIN parts pt ON pt.part_id = c.part_id
	LEFT JOIN users u ON u.user_id = c.assigned_user_id`

func scanCaseRow(row pgx.Row) (CaseRow, error) {
	var cr CaseRow
	err := row.Scan(
		&cr.CaseID, &cr.CaseUID, &cr.DisplayName, &cr.OriginalName, &cr.NASPath, &cr.Hospital,
		&cr.SliceThicknessMM, &cr.ProjectID, &cr.PartID, &cr.Difficulty, &cr.Status, &cr.Revision,
		&cr.AssignedUserID, &cr.Metadata, &cr.WWL, &cr.Memo,
		&cr.StartedAt, &cr.WorkerCompletedAt, &cr.AcceptedAt, &cr.CreatedAt,
		&cr.ProjectName, &cr.PartName, &cr.AssignedUsername,
	)
	return cr, err
}

func collectCaseRows(rows pgx.Rows) ([]CaseRow, error) {
	var cases []CaseRow
	for rows.Next() {
		cr, err := scanCaseRow(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, cr)
	}
	return cases, rows.Err()
}

type CaseRegistration struct {
	CaseUID          string
	DisplayName      string
	OriginalName     *string
	NASPath          *string
	Hospital         *string
	SliceThicknessMM *float64
	ProjectName      string
	PartName         string
	Difficulty       string
	Metadata         []byte
	WWL              *string
	Memo             *string
	PreQc            *PreQcSeed
}

// PreQcSeed is the pre-QC subset accepted inline at registration time. The
// full summary arrives later through the QC upsert.
type PreQcSeed struct {
	SliceCount       *int
	Flags            []byte
	ExpectedSegments []byte
}

type BulkRegisterResult struct {
	CreatedUIDs []string
	SkippedUIDs []string
}

// RegisterCases inserts a batch of cases in one transaction. A case_uid that
// already exists is skipped, not an error; projects and parts are created by
// name on first use.
func (r *CasesRepo) RegisterCases(ctx context.Context, items []CaseRegistration) (BulkRegisterResult, error) {
	result := BulkRegisterResult{CreatedUIDs: []string{}, SkippedUIDs: []string{}}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return BulkRegisterResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	now := time.Now().UTC()
	for _, item := range items {
		var exists bool
		if err = tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM cases WHERE case_uid = $1)
		`, item.CaseUID).Scan(&exists); err != nil {
			return BulkRegisterResult{}, err
		}
		if exists {
			result.SkippedUIDs = append(result.SkippedUIDs, item.CaseUID)
			continue
		}

		var project models.Project
		if project, err = getOrCreateProject(ctx, tx, item.ProjectName); err != nil {
			return BulkRegisterResult{}, err
		}
		var part models.Part
		if part, err = getOrCreatePart(ctx, tx, item.PartName); err != nil {
			return BulkRegisterResult{}, err
		}

		var caseID uuid.UUID
		if err = tx.QueryRow(ctx, `
			INSERT INTO cases (
				case_uid, display_name, original_name, nas_path, hospital, slice_thickness_mm,
				project_id, part_id, difficulty, status, revision, metadata_json, wwl, memo, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $12, $13, $14)
			RETURNING case_id
		`, item.CaseUID, item.DisplayName, item.OriginalName, item.NASPath, item.Hospital, item.SliceThicknessMM,
			project.ProjectID, part.PartID, workflow.NormalizeDifficulty(item.Difficulty), workflow.StatusTodo,
			item.Metadata, item.WWL, item.Memo, now).
			Scan(&caseID); err != nil {
			return BulkRegisterResult{}, err
		}

		if item.PreQc != nil {
			if _, err = tx.Exec(ctx, `
				INSERT INTO pre_qc_summaries (case_id, slice_count, flags_json, expected_segments_json, created_at)
				VALUES ($1, $2, $3, $4, $5)
			`, caseID, item.PreQc.SliceCount, item.PreQc.Flags, item.PreQc.ExpectedSegments, now); err != nil {
				return BulkRegisterResult{}, err
			}
		}

		result.CreatedUIDs = append(result.CreatedUIDs, item.CaseUID)
	}

	if err = tx.Commit(ctx); err != nil {
		return BulkRegisterResult{}, err
	}
	return result, nil
}

// AssignCase puts a case on an active WORKER's queue. Assigning to an admin
// or an inactive user is a validation error, not a permission one.
func (r *CasesRepo) AssignCase(ctx context.Context, caseID uuid.UUID, userID uuid.UUID) (models.Case, models.User, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Case{}, models.User{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var cs models.Case
	err = tx.QueryRow(ctx, `
		SELECT case_id, case_uid, status, revision
		FROM cases
		WHERE case_id = $1
		FOR UPDATE
	`, caseID).Scan(&cs.CaseID, &cs.CaseUID, &cs.Status, &cs.Revision)
	if errors.Is(err, pgx.ErrNoRows) {
		err = NotFoundf("case %s not found", caseID)
		return models.Case{}, models.User{}, err
	}
	if err != nil {
		return models.Case{}, models.User{}, err
	}

	var user models.User
	user, err = scanUser(tx.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE user_id = $1
	`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		err = NotFoundf("user %s not found", userID)
		return models.Case{}, models.User{}, err
	}
	if err != nil {
		return models.Case{}, models.User{}, err
	}
	if user.Role != models.RoleWorker {
		err = Validationf("can only assign to WORKER role users")
		return models.Case{}, models.User{}, err
	}
	if !user.IsActive {
		err = Validationf("cannot assign to inactive user")
		return models.Case{}, models.User{}, err
	}

	if _, err = tx.Exec(ctx, `
		UPDATE cases SET assigned_user_id = $2 WHERE case_id = $1
	`, caseID, userID); err != nil {
		return models.Case{}, models.User{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Case{}, models.User{}, err
	}

	cs.AssignedUserID = &user.UserID
	return cs, user, nil
}

func (r *CasesRepo) GetCaseByID(ctx context.Context, caseID uuid.UUID) (CaseRow, error) {
	cr, err := scanCaseRow(r.pool.QueryRow(ctx, `
		SELECT `+caseRowColumns+caseRowJoins+`
		WHERE c.case_id = $1
	`, caseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return CaseRow{}, NotFoundf("case %s not found", caseID)
	}
	return cr, err
}

type CaseFilter struct {
	Status         *string
	ProjectID      *uuid.UUID
	AssignedUserID *uuid.UUID
	Limit          int
	Offset         int
}

// ListCases returns a filtered page plus the unpaged total.
func (r *CasesRepo) ListCases(ctx context.Context, filter CaseFilter) ([]CaseRow, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}

	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM cases c
		WHERE ($1::text IS NULL OR c.status = $1)
		  AND ($2::uuid IS NULL OR c.project_id = $2)
		  AND ($3::uuid IS NULL OR c.assigned_user_id = $3)
	`, filter.Status, filter.ProjectID, filter.AssignedUserID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+caseRowColumns+caseRowJoins+`
		WHERE ($1::text IS NULL OR c.status = $1)
		  AND ($2::uuid IS NULL OR c.project_id = $2)
		  AND ($3::uuid IS NULL OR c.assigned_user_id = $3)
		ORDER BY c.created_at DESC
		LIMIT $4 OFFSET $5
	`, filter.Status, filter.ProjectID, filter.AssignedUserID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	cases, err := collectCaseRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return cases, total, nil
}

// ListWorkerCases returns the caller's open queue: TODO, IN_PROGRESS, REWORK.
func (r *CasesRepo) ListWorkerCases(ctx context.Context, userID uuid.UUID) ([]CaseRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+caseRowColumns+caseRowJoins+`
		WHERE c.assigned_user_id = $1 AND c.status = ANY($2)
		ORDER BY c.created_at DESC
	`, userID, []string{workflow.StatusTodo, workflow.StatusInProgress, workflow.StatusRework})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCaseRows(rows)
}
