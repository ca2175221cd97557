package repos

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/esheo1787/qc-management-system/shared/workflow"
	"github.com/esheo1787/qc-management-system/shared/worktime"
)

type CohortRepo struct {
	pool *pgxpool.Pool
}

func NewCohortRepo(pool *pgxpool.Pool) *CohortRepo {
	return &CohortRepo{pool: pool}
}

type CohortFilter struct {
	Tag               *string
	ProjectID         *uuid.UUID
	DefinitionVersion *string
	Status            *string
	From              *time.Time
	To                *time.Time
}

type CohortSummary struct {
	TotalCases            int
	ByStatus              map[string]int
	ByDifficulty          map[string]int
	ByPart                map[string]int
	ByHospital            map[string]int
	TotalWorkSeconds      int64
	TotalManDays          float64
	AvgWorkSecondsPerCase float64
	WeightedCases         float64
}

func emptyCohortSummary() CohortSummary {
	return CohortSummary{
		ByStatus:     map[string]int{},
		ByDifficulty: map[string]int{},
		ByPart:       map[string]int{},
		ByHospital:   map[string]int{},
	}
}

// Summary aggregates the cases matching the filter, always computed on
// demand. An unknown definition version matches nothing.
func (r *CohortRepo) Summary(ctx context.Context, filter CohortFilter, settings workflow.Settings) (CohortSummary, error) {
	var snapshotID *uuid.UUID
	if filter.DefinitionVersion != nil {
		var id uuid.UUID
		err := r.pool.QueryRow(ctx, `
			SELECT snapshot_id FROM definition_snapshots WHERE version_name = $1
		`, *filter.DefinitionVersion).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return emptyCohortSummary(), nil
		}
		if err != nil {
			return CohortSummary{}, err
		}
		snapshotID = &id
	}

	rows, err := r.pool.Query(ctx, `
		SELECT c.case_id, c.status, c.difficulty, c.hospital, pt.name
		FROM cases c
		JOIN parts pt ON pt.part_id = c.part_id
		WHERE ($1::text IS NULL OR c.case_id IN (SELECT case_id FROM case_tags WHERE tag_text = $1))
		  AND ($2::uuid IS NULL OR c.project_id = $2)
		  AND ($3::uuid IS NULL OR c.project_id IN (
			SELECT project_id FROM project_definition_links WHERE definition_snapshot_id = $3))
		  AND ($4::text IS NULL OR c.status = $4)
		  AND ($5::timestamptz IS NULL OR c.created_at >= $5)
		  AND ($6::timestamptz IS NULL OR c.created_at <= $6)
	`, filter.Tag, filter.ProjectID, snapshotID, filter.Status, filter.From, filter.To)
	if err != nil {
		return CohortSummary{}, err
	}
	defer rows.Close()

	type cohortCase struct {
		status     string
		difficulty string
		hospital   *string
		partName   string
	}
	cases := map[uuid.UUID]cohortCase{}
	caseIDs := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		var cc cohortCase
		if err := rows.Scan(&id, &cc.status, &cc.difficulty, &cc.hospital, &cc.partName); err != nil {
			return CohortSummary{}, err
		}
		cases[id] = cc
		caseIDs = append(caseIDs, id)
	}
	if err := rows.Err(); err != nil {
		return CohortSummary{}, err
	}

	summary := emptyCohortSummary()
	summary.TotalCases = len(caseIDs)
	if summary.TotalCases == 0 {
		return summary, nil
	}

	entriesByCase, err := r.loadEntries(ctx, caseIDs)
	if err != nil {
		return CohortSummary{}, err
	}

	now := time.Now().UTC()
	for _, id := range caseIDs {
		cc := cases[id]
		summary.ByStatus[cc.status]++
		summary.ByDifficulty[cc.difficulty]++
		summary.ByPart[cc.partName]++
		hospital := "Unknown"
		if cc.hospital != nil {
			hospital = *cc.hospital
		}
		summary.ByHospital[hospital]++
		summary.TotalWorkSeconds += worktime.ComputeWorkSeconds(entriesByCase[id], settings.AutoTimeoutMinutes, now)
	}

	summary.TotalManDays = worktime.ManDays(summary.TotalWorkSeconds, settings.WorkdayHours)
	summary.AvgWorkSecondsPerCase = round2(float64(summary.TotalWorkSeconds) / float64(summary.TotalCases))
	summary.WeightedCases = settings.WeightedCases(summary.ByDifficulty)
	return summary, nil
}

// loadEntries fetches the time-tracking logs for every case in one query,
// ordered within each case.
func (r *CohortRepo) loadEntries(ctx context.Context, caseIDs []uuid.UUID) (map[uuid.UUID][]worktime.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT case_id, action_type, timestamp
		FROM work_logs
		WHERE case_id = ANY($1)
		ORDER BY case_id, timestamp, worklog_id
	`, caseIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := map[uuid.UUID][]worktime.Entry{}
	for rows.Next() {
		var id uuid.UUID
		var e worktime.Entry
		if err := rows.Scan(&id, &e.Action, &e.At); err != nil {
			return nil, err
		}
		entries[id] = append(entries[id], e)
	}
	return entries, rows.Err()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
