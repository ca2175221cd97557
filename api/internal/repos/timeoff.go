package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/esheo1787/qc-management-system/api/internal/models"
	"github.com/esheo1787/qc-management-system/shared/calendar"
)

type TimeOffRepo struct {
	pool *pgxpool.Pool
}

func NewTimeOffRepo(pool *pgxpool.Pool) *TimeOffRepo {
	return &TimeOffRepo{pool: pool}
}

// TimeOffRow is a time-off entry joined with the owner's name.
type TimeOffRow struct {
	models.UserTimeOff
	Username string
}

// CreateTimeOff registers one day off. ADMIN may register for any user, a
// WORKER only for themself. One entry per user and date.
func (r *TimeOffRepo) CreateTimeOff(ctx context.Context, userID uuid.UUID, date time.Time, offType string, actor models.User) (TimeOffRow, error) {
	if actor.Role == models.RoleWorker && userID != actor.UserID {
		return TimeOffRow{}, Forbiddenf("workers can only register their own time-off")
	}
	if offType != calendar.TimeOffVacation && offType != calendar.TimeOffHalfDay {
		return TimeOffRow{}, Validationf("invalid time-off type: %s", offType)
	}

	var username string
	err := r.pool.QueryRow(ctx, `
		SELECT username FROM users WHERE user_id = $1
	`, userID).Scan(&username)
	if errors.Is(err, pgx.ErrNoRows) {
		return TimeOffRow{}, NotFoundf("user %s not found", userID)
	}
	if err != nil {
		return TimeOffRow{}, err
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	row := TimeOffRow{
		UserTimeOff: models.UserTimeOff{UserID: userID, Date: day, Type: offType},
		Username:    username,
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO user_time_offs (user_id, date, type, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, date) DO NOTHING
		RETURNING timeoff_id, created_at
	`, userID, day, offType, time.Now().UTC()).
		Scan(&row.TimeOffID, &row.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return TimeOffRow{}, Validationf("time-off already registered for %s", day.Format("2006-01-02"))
	}
	if err != nil {
		return TimeOffRow{}, err
	}
	return row, nil
}

// DeleteTimeOff removes one entry. ADMIN may delete any, a WORKER only their
// own.
func (r *TimeOffRepo) DeleteTimeOff(ctx context.Context, timeOffID uuid.UUID, actor models.User) error {
	var ownerID uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT user_id FROM user_time_offs WHERE timeoff_id = $1
	`, timeOffID).Scan(&ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return NotFoundf("time-off %s not found", timeOffID)
	}
	if err != nil {
		return err
	}
	if actor.Role == models.RoleWorker && ownerID != actor.UserID {
		return Forbiddenf("workers can only delete their own time-off")
	}
	_, err = r.pool.Exec(ctx, `DELETE FROM user_time_offs WHERE timeoff_id = $1`, timeOffID)
	return err
}

func (r *TimeOffRepo) ListTimeOffByUser(ctx context.Context, userID uuid.UUID, from *time.Time, to *time.Time) ([]TimeOffRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.timeoff_id, t.user_id, t.date, t.type, t.created_at, u.username
		FROM user_time_offs t
		JOIN users u ON u.user_id = t.user_id
		WHERE t.user_id = $1
		  AND ($2::timestamptz IS NULL OR t.date >= $2)
		  AND ($3::timestamptz IS NULL OR t.date <= $3)
		ORDER BY t.date DESC
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTimeOffRows(rows)
}

func (r *TimeOffRepo) ListAllTimeOff(ctx context.Context, from *time.Time, to *time.Time) ([]TimeOffRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.timeoff_id, t.user_id, t.date, t.type, t.created_at, u.username
		FROM user_time_offs t
		JOIN users u ON u.user_id = t.user_id
		WHERE ($1::timestamptz IS NULL OR t.date >= $1)
		  AND ($2::timestamptz IS NULL OR t.date <= $2)
		ORDER BY t.date DESC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTimeOffRows(rows)
}

func collectTimeOffRows(rows pgx.Rows) ([]TimeOffRow, error) {
	var items []TimeOffRow
	for rows.Next() {
		var t TimeOffRow
		if err := rows.Scan(&t.TimeOffID, &t.UserID, &t.Date, &t.Type, &t.CreatedAt, &t.Username); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// ListUserTimeOffBetween returns entries in the shape the calendar engine
// consumes, for capacity accounting.
func (r *TimeOffRepo) ListUserTimeOffBetween(ctx context.Context, userID uuid.UUID, from time.Time, to time.Time) ([]calendar.TimeOff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT date, type
		FROM user_time_offs
		WHERE user_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []calendar.TimeOff
	for rows.Next() {
		var t calendar.TimeOff
		if err := rows.Scan(&t.Date, &t.Type); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}
