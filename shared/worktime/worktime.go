// Package worktime reconstructs elapsed active-work time from an ordered
// start/pause/resume/submit action log. All values are computed on the fly
// from the full log; nothing here is cached or persisted.
package worktime

import (
	"fmt"
	"math"
	"time"

	"github.com/esheo1787/qc-management-system/shared/workflow"
)

// Entry is one time-tracking record. Callers pass entries ordered by
// timestamp; ordering is not re-checked here.
type Entry struct {
	Action string
	At     time.Time
}

// ComputeWorkSeconds reduces the ordered log to total active seconds. A
// start-class action opens a session, an end-class action closes it and
// contributes min(end-start, timeout). A trailing open session contributes
// min(now-start, timeout) against the reference time (time.Now when zero).
func ComputeWorkSeconds(entries []Entry, timeoutMinutes int, now time.Time) int64 {
	if len(entries) == 0 {
		return 0
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	timeoutSeconds := float64(timeoutMinutes) * 60
	total := 0.0
	var sessionStart *time.Time

	for i := range entries {
		entry := entries[i]
		if workflow.IsStartAction(entry.Action) {
			at := entry.At
			sessionStart = &at
		} else if workflow.IsEndAction(entry.Action) {
			if sessionStart != nil {
				duration := entry.At.Sub(*sessionStart).Seconds()
				if duration > timeoutSeconds {
					duration = timeoutSeconds
				}
				total += duration
				sessionStart = nil
			}
		}
	}

	if sessionStart != nil {
		duration := now.Sub(*sessionStart).Seconds()
		if duration > timeoutSeconds {
			duration = timeoutSeconds
		}
		total += duration
	}

	return int64(total)
}

// ManDays converts seconds to man-days at the given workday length, rounded
// to two decimals. Non-positive input yields 0.
func ManDays(seconds int64, workdayHours int) float64 {
	if seconds <= 0 || workdayHours <= 0 {
		return 0.0
	}
	hours := float64(seconds) / 3600
	return math.Round(hours/float64(workdayHours)*100) / 100
}

// FormatDuration renders seconds as "Nh Mm", collapsing to "Mm" under one
// hour. Negative input clamps to 0.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// TimelineDates extracts the first start and last close timestamps. lastEnd
// is nil while a session remains open. Only START and REWORK_START set the
// first start; RESUME re-opens work without moving it.
func TimelineDates(entries []Entry) (firstStart *time.Time, lastEnd *time.Time) {
	if len(entries) == 0 {
		return nil, nil
	}

	working := false
	for i := range entries {
		entry := entries[i]
		switch workflow.NormalizeAction(entry.Action) {
		case workflow.ActionStart, workflow.ActionReworkStart:
			if firstStart == nil {
				at := entry.At
				firstStart = &at
			}
			working = true
		case workflow.ActionResume:
			working = true
		case workflow.ActionPause, workflow.ActionSubmit:
			at := entry.At
			lastEnd = &at
			working = false
		}
	}

	if working {
		lastEnd = nil
	}
	return firstStart, lastEnd
}

// Timeline renders the calendar span from first start to last close, with an
// in-progress marker while the last session is still open.
func Timeline(firstStart *time.Time, lastEnd *time.Time) string {
	if firstStart == nil {
		return "-"
	}
	start := firstStart.Format("2006-01-02")
	if lastEnd == nil {
		return start + " ~ (in progress)"
	}
	return start + " ~ " + lastEnd.Format("2006-01-02")
}
