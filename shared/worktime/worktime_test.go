package worktime

import (
	"testing"
	"time"

	"github.com/esheo1787/qc-management-system/shared/workflow"
)

func ts(day, hour, min, sec int) time.Time {
	return time.Date(2026, time.March, day, hour, min, sec, 0, time.UTC)
}

func TestComputeWorkSeconds(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		timeout int
		now     time.Time
		want    int64
	}{
		{
			name: "single closed session",
			entries: []Entry{
				{Action: workflow.ActionStart, At: ts(2, 9, 0, 0)},
				{Action: workflow.ActionPause, At: ts(2, 9, 1, 30)},
			},
			timeout: 120,
			want:    90,
		},
		{
			name: "gap over timeout is capped",
			entries: []Entry{
				{Action: workflow.ActionStart, At: ts(2, 9, 0, 0)},
				{Action: workflow.ActionPause, At: ts(2, 12, 0, 0)},
			},
			timeout: 120,
			want:    7200,
		},
		{
			name: "open session measured against now",
			entries: []Entry{
				{Action: workflow.ActionStart, At: ts(2, 9, 0, 0)},
			},
			timeout: 120,
			now:     ts(2, 9, 30, 0),
			want:    1800,
		},
		{
			name: "open session capped against now",
			entries: []Entry{
				{Action: workflow.ActionStart, At: ts(2, 9, 0, 0)},
			},
			timeout: 120,
			now:     ts(2, 18, 0, 0),
			want:    7200,
		},
		{
			name: "pause and resume accumulate sessions",
			entries: []Entry{
				{Action: workflow.ActionStart, At: ts(2, 9, 0, 0)},
				{Action: workflow.ActionPause, At: ts(2, 9, 30, 0)},
				{Action: workflow.ActionResume, At: ts(2, 10, 0, 0)},
				{Action: workflow.ActionSubmit, At: ts(2, 10, 15, 0)},
			},
			timeout: 120,
			want:    2700,
		},
		{
			name: "end action without open session is ignored",
			entries: []Entry{
				{Action: workflow.ActionPause, At: ts(2, 9, 0, 0)},
				{Action: workflow.ActionStart, At: ts(2, 10, 0, 0)},
				{Action: workflow.ActionSubmit, At: ts(2, 10, 1, 0)},
			},
			timeout: 120,
			want:    60,
		},
		{
			name: "rework start opens a session",
			entries: []Entry{
				{Action: workflow.ActionReworkStart, At: ts(2, 9, 0, 0)},
				{Action: workflow.ActionSubmit, At: ts(2, 9, 2, 0)},
			},
			timeout: 120,
			want:    120,
		},
		{
			name:    "empty log",
			entries: nil,
			timeout: 120,
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeWorkSeconds(tt.entries, tt.timeout, tt.now)
			if got != tt.want {
				t.Fatalf("ComputeWorkSeconds() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestComputeWorkSecondsTruncatesFractional(t *testing.T) {
	entries := []Entry{
		{Action: workflow.ActionStart, At: time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)},
		{Action: workflow.ActionPause, At: time.Date(2026, time.March, 2, 9, 0, 30, 500_000_000, time.UTC)},
		{Action: workflow.ActionResume, At: time.Date(2026, time.March, 2, 9, 5, 0, 0, time.UTC)},
		{Action: workflow.ActionSubmit, At: time.Date(2026, time.March, 2, 9, 5, 30, 700_000_000, time.UTC)},
	}
	if got := ComputeWorkSeconds(entries, 120, time.Time{}); got != 61 {
		t.Fatalf("ComputeWorkSeconds() = %d, want 61", got)
	}
}

func TestManDays(t *testing.T) {
	tests := []struct {
		name         string
		seconds      int64
		workdayHours int
		want         float64
	}{
		{name: "zero seconds", seconds: 0, workdayHours: 8, want: 0.0},
		{name: "negative seconds", seconds: -100, workdayHours: 8, want: 0.0},
		{name: "full day", seconds: 28800, workdayHours: 8, want: 1.0},
		{name: "half day", seconds: 14400, workdayHours: 8, want: 0.5},
		{name: "rounded to two decimals", seconds: 10000, workdayHours: 8, want: 0.35},
		{name: "shorter workday", seconds: 21600, workdayHours: 6, want: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ManDays(tt.seconds, tt.workdayHours)
			if got != tt.want {
				t.Fatalf("ManDays(%d, %d) = %v, want %v", tt.seconds, tt.workdayHours, got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{seconds: 5400, want: "1h 30m"},
		{seconds: 3600, want: "1h 0m"},
		{seconds: 1740, want: "29m"},
		{seconds: 59, want: "0m"},
		{seconds: 0, want: "0m"},
		{seconds: -30, want: "0m"},
		{seconds: 93784, want: "26h 3m"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.seconds); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestTimelineDates(t *testing.T) {
	start := ts(2, 9, 0, 0)
	pause := ts(3, 17, 0, 0)

	t.Run("empty log", func(t *testing.T) {
		first, last := TimelineDates(nil)
		if first != nil || last != nil {
			t.Fatalf("TimelineDates(nil) = (%v, %v), want (nil, nil)", first, last)
		}
	})

	t.Run("open session has no end", func(t *testing.T) {
		first, last := TimelineDates([]Entry{{Action: workflow.ActionStart, At: start}})
		if first == nil || !first.Equal(start) {
			t.Fatalf("firstStart = %v, want %v", first, start)
		}
		if last != nil {
			t.Fatalf("lastEnd = %v, want nil", last)
		}
	})

	t.Run("closed session has both ends", func(t *testing.T) {
		first, last := TimelineDates([]Entry{
			{Action: workflow.ActionStart, At: start},
			{Action: workflow.ActionPause, At: pause},
		})
		if first == nil || !first.Equal(start) {
			t.Fatalf("firstStart = %v, want %v", first, start)
		}
		if last == nil || !last.Equal(pause) {
			t.Fatalf("lastEnd = %v, want %v", last, pause)
		}
	})

	t.Run("resume reopens without moving first start", func(t *testing.T) {
		resume := ts(4, 9, 0, 0)
		first, last := TimelineDates([]Entry{
			{Action: workflow.ActionStart, At: start},
			{Action: workflow.ActionPause, At: pause},
			{Action: workflow.ActionResume, At: resume},
		})
		if first == nil || !first.Equal(start) {
			t.Fatalf("firstStart = %v, want %v", first, start)
		}
		if last != nil {
			t.Fatalf("lastEnd = %v, want nil while working", last)
		}
	})

	t.Run("rework start after submit keeps original first start", func(t *testing.T) {
		submit := ts(3, 17, 0, 0)
		rework := ts(5, 9, 0, 0)
		reworkSubmit := ts(5, 11, 0, 0)
		first, last := TimelineDates([]Entry{
			{Action: workflow.ActionStart, At: start},
			{Action: workflow.ActionSubmit, At: submit},
			{Action: workflow.ActionReworkStart, At: rework},
			{Action: workflow.ActionSubmit, At: reworkSubmit},
		})
		if first == nil || !first.Equal(start) {
			t.Fatalf("firstStart = %v, want %v", first, start)
		}
		if last == nil || !last.Equal(reworkSubmit) {
			t.Fatalf("lastEnd = %v, want %v", last, reworkSubmit)
		}
	})
}

func TestTimeline(t *testing.T) {
	start := ts(2, 9, 0, 0)
	end := ts(3, 17, 0, 0)

	if got := Timeline(nil, nil); got != "-" {
		t.Errorf("Timeline(nil, nil) = %q, want %q", got, "-")
	}
	if got := Timeline(&start, nil); got != "2026-03-02 ~ (in progress)" {
		t.Errorf("Timeline(start, nil) = %q, want %q", got, "2026-03-02 ~ (in progress)")
	}
	if got := Timeline(&start, &end); got != "2026-03-02 ~ 2026-03-03" {
		t.Errorf("Timeline(start, end) = %q, want %q", got, "2026-03-02 ~ 2026-03-03")
	}
}
