package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/esheo1787/qc-management-system/api/internal/models"
)

type NotesRepo struct {
	pool *pgxpool.Pool
}

func NewNotesRepo(pool *pgxpool.Pool) *NotesRepo {
	return &NotesRepo{pool: pool}
}

// NoteRow is a review note joined with the reviewer's name.
type NoteRow struct {
	models.ReviewNote
	ReviewerUsername string
}

func (r *NotesRepo) CreateReviewNote(ctx context.Context, caseID uuid.UUID, reviewer models.User, confirmed bool, noteText string, extraTags []byte) (NoteRow, error) {
	if _, err := getCase(ctx, r.pool, caseID); err != nil {
		return NoteRow{}, err
	}

	row := NoteRow{
		ReviewNote: models.ReviewNote{
			CaseID:             caseID,
			ReviewerUserID:     reviewer.UserID,
			QCSummaryConfirmed: confirmed,
			NoteText:           noteText,
			ExtraTags:          extraTags,
		},
		ReviewerUsername: reviewer.Username,
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO review_notes (case_id, reviewer_user_id, qc_summary_confirmed, note_text, extra_tags_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING note_id, created_at
	`, caseID, reviewer.UserID, confirmed, noteText, extraTags, time.Now().UTC()).
		Scan(&row.NoteID, &row.CreatedAt)
	return row, err
}

func (r *NotesRepo) ListNotesByCase(ctx context.Context, caseID uuid.UUID) ([]NoteRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT n.note_id, n.case_id, n.reviewer_user_id, n.qc_summary_confirmed, n.note_text, n.extra_tags_json, n.created_at, u.username
		FROM review_notes n
		JOIN users u ON u.user_id = n.reviewer_user_id
		WHERE n.case_id = $1
		ORDER BY n.created_at, n.note_id
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNoteRows(rows)
}

func collectNoteRows(rows pgx.Rows) ([]NoteRow, error) {
	var notes []NoteRow
	for rows.Next() {
		var n NoteRow
		if err := rows.Scan(&n.NoteID, &n.CaseID, &n.ReviewerUserID, &n.QCSummaryConfirmed, &n.NoteText, &n.ExtraTags, &n.CreatedAt, &n.ReviewerUsername); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
