package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/esheo1787/qc-management-system/api/internal/models"
	"github.com/esheo1787/qc-management-system/shared/workflow"
	"github.com/esheo1787/qc-management-system/shared/worktime"
)

type SubmitParams struct {
	CaseID           uuid.UUID
	IdempotencyKey   string
	ExpectedRevision *int
}

type SubmitResult struct {
	WorkLogID    int64
	Event        models.Event
	Case         models.Case
	WorkSeconds  int64
	WorkDuration string
	ManDays      float64
	Replayed     bool
}

// SubmitCase appends the SUBMIT worklog and the SUBMITTED event and moves the
// case to SUBMITTED, all in one transaction. A replay through the idempotency
// key returns worklog_id 0 with the stored event and freshly recomputed
// metrics. Submit never runs WIP admission.
func (r *EventsRepo) SubmitCase(ctx context.Context, p SubmitParams, actor models.User, settings workflow.Settings, outbox *OutboxRepo) (SubmitResult, error) {
	if event, found, err := findEventByKey(ctx, r.pool, p.IdempotencyKey); err != nil {
		return SubmitResult{}, err
	} else if found {
		return r.submitReplay(ctx, event, settings)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return SubmitResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var cs models.Case
	if cs, err = lockCase(ctx, tx, p.CaseID); err != nil {
		return SubmitResult{}, err
	}
	if actor.Role == models.RoleWorker && (cs.AssignedUserID == nil || *cs.AssignedUserID != actor.UserID) {
		err = Forbiddenf("you are not assigned to this case")
		return SubmitResult{}, err
	}
	if cs.Status != workflow.StatusInProgress {
		err = Validationf("cannot submit: case status is %s", cs.Status)
		return SubmitResult{}, err
	}

	var lastAction string
	if lastAction, err = lastWorkLogAction(ctx, tx, cs.CaseID); err != nil {
		return SubmitResult{}, err
	}
	if seqErr := workflow.ValidateActionSequence(cs.Status, lastAction, workflow.ActionSubmit); seqErr != nil {
		err = Validationf("%s", seqErr)
		return SubmitResult{}, err
	}
	if p.ExpectedRevision != nil && cs.Revision != *p.ExpectedRevision {
		err = Conflictf("revision conflict: expected %d, got %d", *p.ExpectedRevision, cs.Revision)
		return SubmitResult{}, err
	}

	now := time.Now().UTC()
	var log models.WorkLog
	log, err = insertWorkLog(ctx, tx, models.WorkLog{
		CaseID:    cs.CaseID,
		UserID:    actor.UserID,
		Action:    workflow.ActionSubmit,
		Timestamp: now,
	})
	if err != nil {
		return SubmitResult{}, err
	}

	event, created, err := insertEvent(ctx, tx, models.Event{
		CaseID:         cs.CaseID,
		UserID:         actor.UserID,
		EventType:      workflow.EventSubmitted,
		FromStatus:     cs.Status,
		ToStatus:       workflow.StatusSubmitted,
		IdempotencyKey: p.IdempotencyKey,
		CreatedAt:      now,
	})
	if err != nil {
		return SubmitResult{}, err
	}
	if !created {
		// A concurrent submit with this key committed first; drop our rows
		// and serve the committed result.
		_ = tx.Rollback(ctx)
		committed, _, err := findEventByKey(ctx, r.pool, p.IdempotencyKey)
		if err != nil {
			return SubmitResult{}, err
		}
		return r.submitReplay(ctx, committed, settings)
	}

	applyTransition(&cs, workflow.EventSubmitted, workflow.StatusSubmitted, now)
	if err = updateCaseState(ctx, tx, cs); err != nil {
		return SubmitResult{}, err
	}
	if err = stageCaseEvent(ctx, tx, outbox, event, cs); err != nil {
		return SubmitResult{}, err
	}

	// The metrics scan runs inside the transaction so it sees the SUBMIT row
	// that closes the final session.
	var entries []worktime.Entry
	if entries, err = listCaseEntries(ctx, tx, cs.CaseID); err != nil {
		return SubmitResult{}, err
	}
	seconds := worktime.ComputeWorkSeconds(entries, settings.AutoTimeoutMinutes, now)

	if err = tx.Commit(ctx); err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{
		WorkLogID:    log.WorkLogID,
		Event:        event,
		Case:         cs,
		WorkSeconds:  seconds,
		WorkDuration: worktime.FormatDuration(seconds),
		ManDays:      worktime.ManDays(seconds, settings.WorkdayHours),
	}, nil
}

func (r *EventsRepo) submitReplay(ctx context.Context, event models.Event, settings workflow.Settings) (SubmitResult, error) {
	cs, err := getCase(ctx, r.pool, event.CaseID)
	if err != nil {
		return SubmitResult{}, err
	}
	entries, err := listCaseEntries(ctx, r.pool, event.CaseID)
	if err != nil {
		return SubmitResult{}, err
	}
	seconds := worktime.ComputeWorkSeconds(entries, settings.AutoTimeoutMinutes, time.Time{})
	return SubmitResult{
		WorkLogID:    0,
		Event:        event,
		Case:         cs,
		WorkSeconds:  seconds,
		WorkDuration: worktime.FormatDuration(seconds),
		ManDays:      worktime.ManDays(seconds, settings.WorkdayHours),
		Replayed:     true,
	}, nil
}
