package handlers

import (
	"net/http"
	"time"

	"github.com/esheo1787/qc-management-system/shared/calendar"
	"github.com/esheo1787/qc-management-system/shared/httpx"
)

type capacityUserResponse struct {
	UserID          string  `json:"user_id"`
	Username        string  `json:"username"`
	PeriodStart     string  `json:"period_start"`
	PeriodEnd       string  `json:"period_end"`
	TotalWorkdays   int     `json:"total_workdays"`
	AvailableHours  float64 `json:"available_hours"`
	TimeOffHours    float64 `json:"timeoff_hours"`
	ActualWorkHours float64 `json:"actual_work_hours"`
	UtilizationRate float64 `json:"utilization_rate"`
}

// teamCapacity composes the per-worker capacity report for a date range:
// workday counting against the shared holiday calendar, time-off deduction,
// and actual tracked hours from the worklog history.
func (h *Handler) teamCapacity(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	start, ok := requiredQueryDate(w, r, "start_date")
	if !ok {
		return
	}
	end, ok := requiredQueryDate(w, r, "end_date")
	if !ok {
		return
	}
	if end.Before(start) {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "end_date must not precede start_date", nil)
		return
	}

	holidayDates, _, err := h.Calendar.GetHolidays(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	parsed := make([]time.Time, 0, len(holidayDates))
	for _, raw := range holidayDates {
		if d, err := time.ParseInLocation("2006-01-02", raw, time.UTC); err == nil {
			parsed = append(parsed, d)
		}
	}
	holidays := calendar.NewHolidaySet(parsed)

	workers, err := h.Users.ListActiveWorkers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	settings, err := h.Config.LoadSettings(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	now := time.Now().UTC()
	rangeEnd := endOfDay(end)
	metrics := make([]calendar.CapacityMetrics, 0, len(workers))
	for _, worker := range workers {
		timeoffs, err := h.TimeOff.ListUserTimeOffBetween(r.Context(), worker.UserID, start, rangeEnd)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		entries, err := h.WorkLogs.ListUserEntriesBetween(r.Context(), worker.UserID, start, rangeEnd)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		metrics = append(metrics, calendar.ComputeCapacity(
			worker.UserID.String(), worker.Username,
			start, end,
			holidays, timeoffs, entries,
			settings.WorkdayHours, settings.AutoTimeoutMinutes,
			now,
		))
	}

	team := calendar.RollupTeam(start, end, metrics)
	users := make([]capacityUserResponse, 0, len(team.Users))
	for _, u := range team.Users {
		users = append(users, capacityUserResponse{
			UserID:          u.UserID,
			Username:        u.Username,
			PeriodStart:     u.PeriodStart.Format("2006-01-02"),
			PeriodEnd:       u.PeriodEnd.Format("2006-01-02"),
			TotalWorkdays:   u.TotalWorkdays,
			AvailableHours:  u.AvailableHours,
			TimeOffHours:    u.TimeOffHours,
			ActualWorkHours: u.ActualWorkHours,
			UtilizationRate: u.UtilizationRate,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"period_start":          team.PeriodStart.Format("2006-01-02"),
		"period_end":            team.PeriodEnd.Format("2006-01-02"),
		"users":                 users,
		"total_available_hours": team.TotalAvailableHours,
		"total_actual_hours":    team.TotalActualHours,
		"team_utilization_rate": team.TeamUtilizationRate,
	})
}
