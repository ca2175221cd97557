// Package calendar provides workday counting over a holiday set and the
// per-user capacity math built on it. Everything here is pure date
// arithmetic; persistence of holidays and time-off entries lives elsewhere.
package calendar

import (
	"math"
	"time"

	"github.com/esheo1787/qc-management-system/shared/worktime"
)

const (
	TimeOffVacation = "VACATION"
	TimeOffHalfDay  = "HALF_DAY"

	vacationHours = 8.0
	halfDayHours  = 4.0
)

// TimeOff is a single day off for one user.
type TimeOff struct {
	Date time.Time
	Type string
}

// HolidaySet holds holiday dates at day granularity.
type HolidaySet map[string]struct{}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewHolidaySet builds a set from a list of dates. Time-of-day and zone are
// discarded.
func NewHolidaySet(dates []time.Time) HolidaySet {
	set := make(HolidaySet, len(dates))
	for _, d := range dates {
		set[dateKey(d)] = struct{}{}
	}
	return set
}

func (s HolidaySet) Contains(t time.Time) bool {
	_, ok := s[dateKey(t)]
	return ok
}

// CountWorkdays counts days in the inclusive range whose weekday is
// Monday through Friday and that are not in the holiday set. An inverted
// range returns 0.
func CountWorkdays(start, end time.Time, holidays HolidaySet) int {
	startDay := dayOf(start)
	endDay := dayOf(end)
	if startDay.After(endDay) {
		return 0
	}

	workdays := 0
	for current := startDay; !current.After(endDay); current = current.AddDate(0, 0, 1) {
		wd := current.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if holidays.Contains(current) {
			continue
		}
		workdays++
	}
	return workdays
}

// TimeOffHours sums time-off hours for entries falling inside the inclusive
// range. A full vacation day counts 8 hours, a half day 4. Unknown types
// count 0.
func TimeOffHours(timeoffs []TimeOff, start, end time.Time) float64 {
	startDay := dayOf(start)
	endDay := dayOf(end)

	total := 0.0
	for _, off := range timeoffs {
		day := dayOf(off.Date)
		if day.Before(startDay) || day.After(endDay) {
			continue
		}
		switch off.Type {
		case TimeOffVacation:
			total += vacationHours
		case TimeOffHalfDay:
			total += halfDayHours
		}
	}
	return total
}

// AvailableHours is workdays x workday length minus time off, floored at 0.
func AvailableHours(start, end time.Time, holidays HolidaySet, timeoffs []TimeOff, workdayHours int) float64 {
	workdays := CountWorkdays(start, end, holidays)
	available := float64(workdays)*float64(workdayHours) - TimeOffHours(timeoffs, start, end)
	return math.Max(0.0, available)
}

// CapacityMetrics is one worker's availability and actual output over a
// period.
type CapacityMetrics struct {
	UserID          string
	Username        string
	PeriodStart     time.Time
	PeriodEnd       time.Time
	TotalWorkdays   int
	AvailableHours  float64
	TimeOffHours    float64
	ActualWorkHours float64
	UtilizationRate float64
}

// ComputeCapacity derives one worker's capacity metrics for a date range.
// entries must be the worker's time-tracking records inside the range,
// ordered by timestamp. Hour totals are rounded to two decimals; the
// utilization rate to four, and it is 0 whenever no hours are available.
func ComputeCapacity(
	userID, username string,
	start, end time.Time,
	holidays HolidaySet,
	timeoffs []TimeOff,
	entries []worktime.Entry,
	workdayHours, autoTimeoutMinutes int,
	now time.Time,
) CapacityMetrics {
	totalWorkdays := CountWorkdays(start, end, holidays)
	timeoffHours := TimeOffHours(timeoffs, start, end)
	availableHours := math.Max(0.0, float64(totalWorkdays)*float64(workdayHours)-timeoffHours)

	workSeconds := worktime.ComputeWorkSeconds(entries, autoTimeoutMinutes, now)
	actualHours := float64(workSeconds) / 3600

	utilization := 0.0
	if availableHours > 0 {
		utilization = round4(actualHours / availableHours)
	}

	return CapacityMetrics{
		UserID:          userID,
		Username:        username,
		PeriodStart:     dayOf(start),
		PeriodEnd:       dayOf(end),
		TotalWorkdays:   totalWorkdays,
		AvailableHours:  round2(availableHours),
		TimeOffHours:    round2(timeoffHours),
		ActualWorkHours: round2(actualHours),
		UtilizationRate: utilization,
	}
}

// TeamCapacity rolls individual metrics up to period totals. The team rate
// uses the same zero-when-unavailable rule as the per-user rate.
type TeamCapacity struct {
	PeriodStart         time.Time
	PeriodEnd           time.Time
	Users               []CapacityMetrics
	TotalAvailableHours float64
	TotalActualHours    float64
	TeamUtilizationRate float64
}

func RollupTeam(start, end time.Time, users []CapacityMetrics) TeamCapacity {
	totalAvailable := 0.0
	totalActual := 0.0
	for _, u := range users {
		totalAvailable += u.AvailableHours
		totalActual += u.ActualWorkHours
	}

	teamRate := 0.0
	if totalAvailable > 0 {
		teamRate = round4(totalActual / totalAvailable)
	}

	return TeamCapacity{
		PeriodStart:         dayOf(start),
		PeriodEnd:           dayOf(end),
		Users:               users,
		TotalAvailableHours: round2(totalAvailable),
		TotalActualHours:    round2(totalActual),
		TeamUtilizationRate: teamRate,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
