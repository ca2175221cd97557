package repos

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TagsRepo struct {
	pool *pgxpool.Pool
}

func NewTagsRepo(pool *pgxpool.Pool) *TagsRepo {
	return &TagsRepo{pool: pool}
}

type TagApplyResult struct {
	TagText  string
	Applied  int
	Skipped  int
	NotFound int
}

// ApplyTag tags many cases at once. Unknown UIDs are counted, already-tagged
// cases are skipped, and the rest is applied in one transaction.
func (r *TagsRepo) ApplyTag(ctx context.Context, tagText string, caseUIDs []string) (TagApplyResult, error) {
	tagText = strings.TrimSpace(tagText)
	if tagText == "" {
		return TagApplyResult{}, Validationf("tag_text must not be empty")
	}
	if len(caseUIDs) == 0 {
		return TagApplyResult{}, Validationf("case_uids must not be empty")
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return TagApplyResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	result := TagApplyResult{TagText: tagText}
	now := time.Now().UTC()
	for _, uid := range caseUIDs {
		var caseID string
		err = tx.QueryRow(ctx, `SELECT case_id FROM cases WHERE case_uid = $1`, uid).Scan(&caseID)
		if errors.Is(err, pgx.ErrNoRows) {
			result.NotFound++
			err = nil
			continue
		}
		if err != nil {
			return TagApplyResult{}, err
		}

		var tag pgconn.CommandTag
		tag, err = tx.Exec(ctx, `
			INSERT INTO case_tags (case_id, tag_text, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (case_id, tag_text) DO NOTHING
		`, caseID, tagText, now)
		if err != nil {
			return TagApplyResult{}, err
		}
		if tag.RowsAffected() == 1 {
			result.Applied++
		} else {
			result.Skipped++
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return TagApplyResult{}, err
	}
	return result, nil
}

// RemoveTag deletes the tag from any of the given cases that carry it and
// reports how many rows went away. Unknown UIDs are ignored.
func (r *TagsRepo) RemoveTag(ctx context.Context, tagText string, caseUIDs []string) (int, error) {
	tagText = strings.TrimSpace(tagText)
	if tagText == "" {
		return 0, Validationf("tag_text must not be empty")
	}
	if len(caseUIDs) == 0 {
		return 0, Validationf("case_uids must not be empty")
	}

	tag, err := r.pool.Exec(ctx, `
		DELETE FROM case_tags
		WHERE tag_text = $1
		  AND case_id IN (SELECT case_id FROM cases WHERE case_uid = ANY($2))
	`, tagText, caseUIDs)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *TagsRepo) ListTags(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tag_text FROM case_tags ORDER BY tag_text`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (r *TagsRepo) ListCasesByTag(ctx context.Context, tagText string) ([]CaseRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+caseRowColumns+`
		`+caseRowJoins+`
		JOIN case_tags ct ON ct.case_id = c.case_id
		WHERE ct.tag_text = $1
		ORDER BY c.created_at DESC
	`, tagText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCaseRows(rows)
}
