package repos

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/esheo1787/qc-management-system/api/internal/models"
	"github.com/esheo1787/qc-management-system/shared/workflow"
	"github.com/esheo1787/qc-management-system/shared/worktime"
)

type WorkLogsRepo struct {
	pool *pgxpool.Pool
}

func NewWorkLogsRepo(pool *pgxpool.Pool) *WorkLogsRepo {
	return &WorkLogsRepo{pool: pool}
}

// WorkLogRow is a worklog joined with the acting user's name.
type WorkLogRow struct {
	models.WorkLog
	Username string
}

// CreateWorkLog appends one time-tracking action. START and REWORK_START pass
// WIP admission and auto-fire a STARTED event inside the same transaction;
// PAUSE and RESUME only append the log row.
func (r *WorkLogsRepo) CreateWorkLog(ctx context.Context, caseID uuid.UUID, actionType string, reasonCode *string, actor models.User, settings workflow.Settings, outbox *OutboxRepo) (models.WorkLog, models.Case, error) {
	action := workflow.NormalizeAction(actionType)

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.WorkLog{}, models.Case{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var cs models.Case
	if cs, err = lockCase(ctx, tx, caseID); err != nil {
		return models.WorkLog{}, models.Case{}, err
	}
	if actor.Role == models.RoleWorker && (cs.AssignedUserID == nil || *cs.AssignedUserID != actor.UserID) {
		err = Forbiddenf("you are not assigned to this case")
		return models.WorkLog{}, models.Case{}, err
	}

	var lastAction string
	if lastAction, err = lastWorkLogAction(ctx, tx, caseID); err != nil {
		return models.WorkLog{}, models.Case{}, err
	}
	if seqErr := workflow.ValidateActionSequence(cs.Status, lastAction, action); seqErr != nil {
		err = Validationf("%s", seqErr)
		return models.WorkLog{}, models.Case{}, err
	}

	now := time.Now().UTC()

	switch action {
	case workflow.ActionStart:
		key := fmt.Sprintf("%s-STARTED-%s", cs.CaseID, keySuffix())
		if err = startCaseSession(ctx, tx, &cs, actor, key, now, settings, outbox); err != nil {
			return models.WorkLog{}, models.Case{}, err
		}
	case workflow.ActionReworkStart:
		key := fmt.Sprintf("%s-STARTED-REV%d-%s", cs.CaseID, cs.Revision, keySuffix())
		if err = startCaseSession(ctx, tx, &cs, actor, key, now, settings, outbox); err != nil {
			return models.WorkLog{}, models.Case{}, err
		}
	}

	var log models.WorkLog
	log, err = insertWorkLog(ctx, tx, models.WorkLog{
		CaseID:     cs.CaseID,
		UserID:     actor.UserID,
		Action:     action,
		ReasonCode: reasonCode,
		Timestamp:  now,
	})
	if err != nil {
		return models.WorkLog{}, models.Case{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.WorkLog{}, models.Case{}, err
	}
	return log, cs, nil
}

// startCaseSession runs WIP admission and fires the generated STARTED event.
func startCaseSession(ctx context.Context, tx pgx.Tx, cs *models.Case, actor models.User, idempotencyKey string, now time.Time, settings workflow.Settings, outbox *OutboxRepo) error {
	if err := checkWIPLimit(ctx, tx, actor.UserID, settings); err != nil {
		return err
	}
	event, created, err := insertEvent(ctx, tx, models.Event{
		CaseID:         cs.CaseID,
		UserID:         actor.UserID,
		EventType:      workflow.EventStarted,
		FromStatus:     cs.Status,
		ToStatus:       workflow.StatusInProgress,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
	})
	if err != nil {
		return err
	}
	if !created {
		return Conflictf("generated idempotency key %s already exists", idempotencyKey)
	}
	applyTransition(cs, workflow.EventStarted, workflow.StatusInProgress, now)
	if err := updateCaseState(ctx, tx, *cs); err != nil {
		return err
	}
	return stageCaseEvent(ctx, tx, outbox, event, *cs)
}

func keySuffix() string {
	id := uuid.New()
	return hex.EncodeToString(id[:4])
}

func insertWorkLog(ctx context.Context, db DBTX, log models.WorkLog) (models.WorkLog, error) {
	err := db.QueryRow(ctx, `
		INSERT INTO work_logs (case_id, user_id, action_type, reason_code, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING worklog_id
	`, log.CaseID, log.UserID, log.Action, log.ReasonCode, log.Timestamp).
		Scan(&log.WorkLogID)
	return log, err
}

func lastWorkLogAction(ctx context.Context, db DBTX, caseID uuid.UUID) (string, error) {
	var action string
	err := db.QueryRow(ctx, `
		SELECT action_type
		FROM work_logs
		WHERE case_id = $1
		ORDER BY timestamp DESC, worklog_id DESC
		LIMIT 1
	`, caseID).Scan(&action)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return action, err
}

func checkWIPLimit(ctx context.Context, db DBTX, userID uuid.UUID, settings workflow.Settings) error {
	count, err := countActiveWIP(ctx, db, userID)
	if err != nil {
		return err
	}
	if count >= settings.WIPLimit {
		return WIPLimitError{Current: count, Limit: settings.WIPLimit}
	}
	return nil
}

// countActiveWIP counts the user's IN_PROGRESS cases whose latest worklog is
// a start-class action. A paused case does not occupy a WIP slot. One grouped
// query instead of a per-case latest-log lookup.
func countActiveWIP(ctx context.Context, db DBTX, userID uuid.UUID) (int, error) {
	var count int
	err := db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM (
			SELECT DISTINCT ON (w.case_id) w.action_type
			FROM work_logs w
			JOIN cases c ON c.case_id = w.case_id
			WHERE c.assigned_user_id = $1 AND c.status = $2
			ORDER BY w.case_id, w.timestamp DESC, w.worklog_id DESC
		) latest
		WHERE latest.action_type = ANY($3)
	`, userID, workflow.StatusInProgress, []string{workflow.ActionStart, workflow.ActionResume, workflow.ActionReworkStart}).
		Scan(&count)
	return count, err
}

func (r *WorkLogsRepo) LastAction(ctx context.Context, caseID uuid.UUID) (string, error) {
	return lastWorkLogAction(ctx, r.pool, caseID)
}

func (r *WorkLogsRepo) ListWorkLogsByCase(ctx context.Context, caseID uuid.UUID) ([]WorkLogRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT w.worklog_id, w.case_id, w.user_id, w.action_type, w.reason_code, w.timestamp, u.username
		FROM work_logs w
		JOIN users u ON u.user_id = w.user_id
		WHERE w.case_id = $1
		ORDER BY w.timestamp, w.worklog_id
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []WorkLogRow
	for rows.Next() {
		var wr WorkLogRow
		if err := rows.Scan(&wr.WorkLogID, &wr.CaseID, &wr.UserID, &wr.Action, &wr.ReasonCode, &wr.Timestamp, &wr.Username); err != nil {
			return nil, err
		}
		logs = append(logs, wr)
	}
	return logs, rows.Err()
}

// ListCaseEntries returns the ordered action log in the shape the elapsed-time
// engine consumes.
func (r *WorkLogsRepo) ListCaseEntries(ctx context.Context, caseID uuid.UUID) ([]worktime.Entry, error) {
	return listCaseEntries(ctx, r.pool, caseID)
}

func listCaseEntries(ctx context.Context, db DBTX, caseID uuid.UUID) ([]worktime.Entry, error) {
	rows, err := db.Query(ctx, `
		SELECT action_type, timestamp
		FROM work_logs
		WHERE case_id = $1
		ORDER BY timestamp, worklog_id
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []worktime.Entry
	for rows.Next() {
		var e worktime.Entry
		if err := rows.Scan(&e.Action, &e.At); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListUserEntriesBetween returns one user's ordered actions across all cases
// inside [from, to], for capacity accounting.
func (r *WorkLogsRepo) ListUserEntriesBetween(ctx context.Context, userID uuid.UUID, from time.Time, to time.Time) ([]worktime.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT action_type, timestamp
		FROM work_logs
		WHERE user_id = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp, worklog_id
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []worktime.Entry
	for rows.Next() {
		var e worktime.Entry
		if err := rows.Scan(&e.Action, &e.At); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
