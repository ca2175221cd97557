package calendar

import (
	"testing"
	"time"

	"github.com/esheo1787/qc-management-system/shared/worktime"
	"github.com/esheo1787/qc-management-system/shared/workflow"
)

func day(d int) time.Time {
	return time.Date(2026, time.March, d, 0, 0, 0, 0, time.UTC)
}

func TestCountWorkdays(t *testing.T) {
	tests := []struct {
		name     string
		start    time.Time
		end      time.Time
		holidays []time.Time
		want     int
	}{
		{name: "monday through friday", start: day(2), end: day(6), want: 5},
		{name: "weekend only", start: day(7), end: day(8), want: 0},
		{name: "weekday holiday removes one", start: day(2), end: day(6), holidays: []time.Time{day(4)}, want: 4},
		{name: "weekend holiday changes nothing", start: day(2), end: day(8), holidays: []time.Time{day(7)}, want: 5},
		{name: "two full weeks", start: day(2), end: day(13), want: 10},
		{name: "single workday", start: day(4), end: day(4), want: 1},
		{name: "inverted range", start: day(6), end: day(2), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CountWorkdays(tt.start, tt.end, NewHolidaySet(tt.holidays))
			if got != tt.want {
				t.Fatalf("CountWorkdays() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCountWorkdaysIgnoresTimeOfDay(t *testing.T) {
	start := time.Date(2026, time.March, 2, 23, 59, 0, 0, time.UTC)
	end := time.Date(2026, time.March, 6, 0, 1, 0, 0, time.UTC)
	if got := CountWorkdays(start, end, nil); got != 5 {
		t.Fatalf("CountWorkdays() = %d, want 5", got)
	}
}

func TestTimeOffHours(t *testing.T) {
	timeoffs := []TimeOff{
		{Date: day(2), Type: TimeOffVacation},
		{Date: day(3), Type: TimeOffHalfDay},
		{Date: day(20), Type: TimeOffVacation},
		{Date: day(4), Type: "SICK"},
	}

	if got := TimeOffHours(timeoffs, day(2), day(6)); got != 12.0 {
		t.Fatalf("TimeOffHours() = %v, want 12.0", got)
	}
	if got := TimeOffHours(timeoffs, day(9), day(13)); got != 0.0 {
		t.Fatalf("TimeOffHours() out of range = %v, want 0.0", got)
	}
	if got := TimeOffHours(nil, day(2), day(6)); got != 0.0 {
		t.Fatalf("TimeOffHours(nil) = %v, want 0.0", got)
	}
}

func TestAvailableHours(t *testing.T) {
	holidays := NewHolidaySet([]time.Time{day(4)})
	timeoffs := []TimeOff{{Date: day(5), Type: TimeOffVacation}}

	// 4 workdays x 8h - 8h off = 24h
	if got := AvailableHours(day(2), day(6), holidays, timeoffs, 8); got != 24.0 {
		t.Fatalf("AvailableHours() = %v, want 24.0", got)
	}

	// Time off exceeding the period floors at zero.
	heavy := []TimeOff{
		{Date: day(2), Type: TimeOffVacation},
		{Date: day(3), Type: TimeOffVacation},
	}
	if got := AvailableHours(day(2), day(2), nil, heavy, 8); got != 0.0 {
		t.Fatalf("AvailableHours() floored = %v, want 0.0", got)
	}
}

func TestComputeCapacity(t *testing.T) {
	entries := []worktime.Entry{
		{Action: workflow.ActionStart, At: time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)},
		{Action: workflow.ActionPause, At: time.Date(2026, time.March, 2, 11, 0, 0, 0, time.UTC)},
		{Action: workflow.ActionResume, At: time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)},
		{Action: workflow.ActionSubmit, At: time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)},
	}
	timeoffs := []TimeOff{{Date: day(6), Type: TimeOffHalfDay}}

	got := ComputeCapacity(
		"u-1", "alice",
		day(2), day(6),
		nil, timeoffs, entries,
		8, 180,
		time.Time{},
	)

	if got.TotalWorkdays != 5 {
		t.Fatalf("TotalWorkdays = %d, want 5", got.TotalWorkdays)
	}
	if got.AvailableHours != 36.0 {
		t.Fatalf("AvailableHours = %v, want 36.0", got.AvailableHours)
	}
	if got.TimeOffHours != 4.0 {
		t.Fatalf("TimeOffHours = %v, want 4.0", got.TimeOffHours)
	}
	if got.ActualWorkHours != 3.0 {
		t.Fatalf("ActualWorkHours = %v, want 3.0", got.ActualWorkHours)
	}
	if got.UtilizationRate != 0.0833 {
		t.Fatalf("UtilizationRate = %v, want 0.0833", got.UtilizationRate)
	}
}

func TestComputeCapacityNoAvailability(t *testing.T) {
	entries := []worktime.Entry{
		{Action: workflow.ActionStart, At: time.Date(2026, time.March, 7, 9, 0, 0, 0, time.UTC)},
		{Action: workflow.ActionPause, At: time.Date(2026, time.March, 7, 10, 0, 0, 0, time.UTC)},
	}

	got := ComputeCapacity("u-1", "alice", day(7), day(8), nil, nil, entries, 8, 120, time.Time{})
	if got.AvailableHours != 0.0 {
		t.Fatalf("AvailableHours = %v, want 0.0", got.AvailableHours)
	}
	if got.UtilizationRate != 0.0 {
		t.Fatalf("UtilizationRate = %v, want 0.0 when nothing is available", got.UtilizationRate)
	}
	if got.ActualWorkHours != 1.0 {
		t.Fatalf("ActualWorkHours = %v, want 1.0", got.ActualWorkHours)
	}
}

func TestRollupTeam(t *testing.T) {
	users := []CapacityMetrics{
		{UserID: "u-1", AvailableHours: 40.0, ActualWorkHours: 30.0},
		{UserID: "u-2", AvailableHours: 36.0, ActualWorkHours: 9.0},
	}

	got := RollupTeam(day(2), day(6), users)
	if got.TotalAvailableHours != 76.0 {
		t.Fatalf("TotalAvailableHours = %v, want 76.0", got.TotalAvailableHours)
	}
	if got.TotalActualHours != 39.0 {
		t.Fatalf("TotalActualHours = %v, want 39.0", got.TotalActualHours)
	}
	if got.TeamUtilizationRate != 0.5132 {
		t.Fatalf("TeamUtilizationRate = %v, want 0.5132", got.TeamUtilizationRate)
	}

	empty := RollupTeam(day(2), day(6), nil)
	if empty.TeamUtilizationRate != 0.0 {
		t.Fatalf("TeamUtilizationRate = %v, want 0.0 for empty team", empty.TeamUtilizationRate)
	}
}
