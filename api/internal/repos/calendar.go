package repos

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/esheo1787/qc-management-system/api/internal/models"
	"github.com/esheo1787/qc-management-system/shared/cachex"
)

// CalendarRepo owns the singleton work-calendar row. Reads go through the
// Redis cache when one is configured; every mutation invalidates it.
type CalendarRepo struct {
	pool  *pgxpool.Pool
	cache *cachex.Client
	ttl   time.Duration
}

func NewCalendarRepo(pool *pgxpool.Pool, cache *cachex.Client, cacheTTL time.Duration) *CalendarRepo {
	return &CalendarRepo{pool: pool, cache: cache, ttl: cacheTTL}
}

const holidayCacheKey = "work_calendar:v1"

const defaultTimezone = "Asia/Seoul"

type holidaySnapshot struct {
	Holidays []string `json:"holidays"`
	Timezone string   `json:"timezone"`
}

// GetHolidays returns the sorted holiday dates (YYYY-MM-DD) and the calendar
// timezone.
func (r *CalendarRepo) GetHolidays(ctx context.Context) ([]string, string, error) {
	if r.cache == nil {
		return r.loadHolidays(ctx)
	}
	var snap holidaySnapshot
	err := r.cache.GetOrSetJSON(ctx, holidayCacheKey, r.ttl, &snap, func(ctx context.Context) (any, error) {
		holidays, timezone, err := r.loadHolidays(ctx)
		if err != nil {
			return nil, err
		}
		return holidaySnapshot{Holidays: holidays, Timezone: timezone}, nil
	})
	if err != nil {
		return nil, "", err
	}
	if snap.Holidays == nil {
		snap.Holidays = []string{}
	}
	return snap.Holidays, snap.Timezone, nil
}

func (r *CalendarRepo) loadHolidays(ctx context.Context) ([]string, string, error) {
	cal, err := ensureCalendar(ctx, r.pool)
	if err != nil {
		return nil, "", err
	}
	holidays, err := decodeHolidays(cal.Holidays)
	if err != nil {
		return nil, "", err
	}
	return holidays, cal.Timezone, nil
}

// ReplaceHolidays swaps the entire set. Input dates are deduplicated and
// stored sorted.
func (r *CalendarRepo) ReplaceHolidays(ctx context.Context, dates []string) ([]string, string, error) {
	holidays := normalizeHolidays(dates)
	cal, err := r.writeHolidays(ctx, func([]string) []string { return holidays })
	if err != nil {
		return nil, "", err
	}
	r.invalidate(ctx)
	return holidays, cal.Timezone, nil
}

// AddHoliday inserts one date; adding an existing date is a no-op.
func (r *CalendarRepo) AddHoliday(ctx context.Context, date string) ([]string, string, error) {
	var result []string
	cal, err := r.writeHolidays(ctx, func(current []string) []string {
		result = normalizeHolidays(append(current, date))
		return result
	})
	if err != nil {
		return nil, "", err
	}
	r.invalidate(ctx)
	return result, cal.Timezone, nil
}

// RemoveHoliday deletes one date; removing an absent date is a no-op.
func (r *CalendarRepo) RemoveHoliday(ctx context.Context, date string) ([]string, string, error) {
	var result []string
	cal, err := r.writeHolidays(ctx, func(current []string) []string {
		result = make([]string, 0, len(current))
		for _, d := range current {
			if d != date {
				result = append(result, d)
			}
		}
		return result
	})
	if err != nil {
		return nil, "", err
	}
	r.invalidate(ctx)
	return result, cal.Timezone, nil
}

// writeHolidays applies mutate to the current set under a row lock.
func (r *CalendarRepo) writeHolidays(ctx context.Context, mutate func([]string) []string) (models.WorkCalendar, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.WorkCalendar{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var cal models.WorkCalendar
	if cal, err = ensureCalendar(ctx, tx); err != nil {
		return models.WorkCalendar{}, err
	}
	var current []string
	if current, err = decodeHolidays(cal.Holidays); err != nil {
		return models.WorkCalendar{}, err
	}

	next := mutate(current)
	var encoded []byte
	if encoded, err = json.Marshal(next); err != nil {
		return models.WorkCalendar{}, err
	}
	now := time.Now().UTC()
	if _, err = tx.Exec(ctx, `
		UPDATE work_calendars SET holidays_json = $1, updated_at = $2 WHERE calendar_id = 1
	`, encoded, now); err != nil {
		return models.WorkCalendar{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.WorkCalendar{}, err
	}

	cal.Holidays = encoded
	cal.UpdatedAt = now
	return cal, nil
}

// ensureCalendar get-or-creates the singleton row and locks it when called
// inside a transaction.
func ensureCalendar(ctx context.Context, db DBTX) (models.WorkCalendar, error) {
	if _, err := db.Exec(ctx, `
		INSERT INTO work_calendars (calendar_id, holidays_json, timezone, updated_at)
		VALUES (1, '[]', $1, $2)
		ON CONFLICT (calendar_id) DO NOTHING
	`, defaultTimezone, time.Now().UTC()); err != nil {
		return models.WorkCalendar{}, err
	}

	var cal models.WorkCalendar
	err := db.QueryRow(ctx, `
		SELECT holidays_json, timezone, updated_at
		FROM work_calendars
		WHERE calendar_id = 1
		FOR UPDATE
	`).Scan(&cal.Holidays, &cal.Timezone, &cal.UpdatedAt)
	return cal, err
}

func decodeHolidays(raw []byte) ([]string, error) {
	holidays := []string{}
	if len(raw) == 0 {
		return holidays, nil
	}
	if err := json.Unmarshal(raw, &holidays); err != nil {
		return nil, err
	}
	sort.Strings(holidays)
	return holidays, nil
}

func normalizeHolidays(dates []string) []string {
	seen := make(map[string]struct{}, len(dates))
	result := make([]string, 0, len(dates))
	for _, d := range dates {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		result = append(result, d)
	}
	sort.Strings(result)
	return result
}

func (r *CalendarRepo) invalidate(ctx context.Context) {
	if r.cache != nil {
		_ = r.cache.Delete(ctx, holidayCacheKey)
	}
}
