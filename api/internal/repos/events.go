package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/esheo1787/qc-management-system/api/internal/models"
	"github.com/esheo1787/qc-management-system/shared/events"
	"github.com/esheo1787/qc-management-system/shared/workflow"
)

type EventsRepo struct {
	pool *pgxpool.Pool
}

func NewEventsRepo(pool *pgxpool.Pool) *EventsRepo {
	return &EventsRepo{pool: pool}
}

type ProcessEventParams struct {
	CaseID           uuid.UUID
	EventType        string
	IdempotencyKey   string
	EventCode        *string
	ExpectedRevision *int
	Payload          []byte
}

// EventRow is an event joined with the acting user's name.
type EventRow struct {
	models.Event
	Username string
}

const caseColumns = `
	case_id, case_uid, display_name, original_name, nas_path, hospital,
	slice_thickness_mm, project_id, part_id, difficulty, status, revision,
	assigned_user_id, metadata_json, wwl, memo,
	started_at, worker_completed_at, accepted_at, created_at`

func scanCase(row pgx.Row) (models.Case, error) {
	var cs models.Case
	err := row.Scan(
		&cs.CaseID, &cs.CaseUID, &cs.DisplayName, &cs.OriginalName, &cs.NASPath, &cs.Hospital,
		&cs.SliceThicknessMM, &cs.ProjectID, &cs.PartID, &cs.Difficulty, &cs.Status, &cs.Revision,
		&cs.AssignedUserID, &cs.Metadata, &cs.WWL, &cs.Memo,
		&cs.StartedAt, &cs.WorkerCompletedAt, &cs.AcceptedAt, &cs.CreatedAt,
	)
	return cs, err
}

func getCase(ctx context.Context, db DBTX, caseID uuid.UUID) (models.Case, error) {
	cs, err := scanCase(db.QueryRow(ctx, `
		SELECT `+caseColumns+`
		FROM cases
		WHERE case_id = $1
	`, caseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Case{}, NotFoundf("case %s not found", caseID)
	}
	return cs, err
}

// lockCase loads a case under FOR UPDATE; every mutating command goes through
// it so the revision check and the write see the same row version.
func lockCase(ctx context.Context, db DBTX, caseID uuid.UUID) (models.Case, error) {
	cs, err := scanCase(db.QueryRow(ctx, `
		SELECT `+caseColumns+`
		FROM cases
		WHERE case_id = $1
		FOR UPDATE
	`, caseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Case{}, NotFoundf("case %s not found", caseID)
	}
	return cs, err
}

func findEventByKey(ctx context.Context, db DBTX, idempotencyKey string) (models.Event, bool, error) {
	var event models.Event
	err := db.QueryRow(ctx, `
		SELECT event_id, case_id, user_id, event_type, from_status, to_status, idempotency_key, event_code, payload_json, created_at
		FROM events
		WHERE idempotency_key = $1
	`, idempotencyKey).
		Scan(&event.EventID, &event.CaseID, &event.UserID, &event.EventType, &event.FromStatus, &event.ToStatus, &event.IdempotencyKey, &event.EventCode, &event.Payload, &event.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Event{}, false, nil
	}
	return event, err == nil, err
}

// insertEvent returns created=false when the idempotency key already exists.
func insertEvent(ctx context.Context, db DBTX, event models.Event) (models.Event, bool, error) {
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	err := db.QueryRow(ctx, `
		INSERT INTO events (event_id, case_id, user_id, event_type, from_status, to_status, idempotency_key, event_code, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING event_id, case_id, user_id, event_type, from_status, to_status, idempotency_key, event_code, payload_json, created_at
	`, event.EventID, event.CaseID, event.UserID, event.EventType, event.FromStatus, event.ToStatus, event.IdempotencyKey, event.EventCode, event.Payload, event.CreatedAt).
		Scan(&event.EventID, &event.CaseID, &event.UserID, &event.EventType, &event.FromStatus, &event.ToStatus, &event.IdempotencyKey, &event.EventCode, &event.Payload, &event.CreatedAt)
	if err == nil {
		return event, true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Event{}, false, nil
	}
	return models.Event{}, false, err
}

// applyTransition mutates the case for a validated transition. started_at is
// only stamped when still unset, so a rework start never moves it. Revision
// bumps ONLY on REWORK_REQUESTED.
func applyTransition(cs *models.Case, eventType string, toStatus string, now time.Time) {
	cs.Status = toStatus
	switch eventType {
	case workflow.EventStarted:
		if cs.StartedAt == nil {
			t := now
			cs.StartedAt = &t
		}
	case workflow.EventSubmitted:
		t := now
		cs.WorkerCompletedAt = &t
	case workflow.EventAccepted:
		t := now
		cs.AcceptedAt = &t
	case workflow.EventReworkRequested:
		cs.Revision++
	}
}

func updateCaseState(ctx context.Context, db DBTX, cs models.Case) error {
	_, err := db.Exec(ctx, `
		UPDATE cases
		SET status = $2, revision = $3, started_at = $4, worker_completed_at = $5, accepted_at = $6
		WHERE case_id = $1
	`, cs.CaseID, cs.Status, cs.Revision, cs.StartedAt, cs.WorkerCompletedAt, cs.AcceptedAt)
	return err
}

// stageCaseEvent writes the outbox row for a committed event in the same
// transaction. Relay failure downstream never affects the command result.
func stageCaseEvent(ctx context.Context, db DBTX, outbox *OutboxRepo, event models.Event, cs models.Case) error {
	if outbox == nil {
		return nil
	}
	payload, err := events.Envelope{
		EventID:       event.EventID,
		OccurredAt:    event.CreatedAt,
		AggregateType: events.AggregateCase,
		AggregateID:   event.CaseID,
		EventType:     event.EventType,
		ActorID:       event.UserID,
		CaseStatus:    cs.Status,
		Revision:      cs.Revision,
		Payload:       event.Payload,
	}.Marshal()
	if err != nil {
		return err
	}
	_, err = outbox.Insert(ctx, db, models.OutboxEvent{
		EventID:       event.EventID,
		AggregateType: events.AggregateCase,
		AggregateID:   event.CaseID,
		Payload:       payload,
	})
	return err
}

// ProcessEvent runs one state-machine command. The check order is fixed:
// idempotency replay, case lookup, terminal check, transition validity, role,
// expected revision, then the write. Replay responses carry the case's
// current status and revision, not the values at first processing.
func (r *EventsRepo) ProcessEvent(ctx context.Context, p ProcessEventParams, actor models.User, outbox *OutboxRepo) (models.Event, models.Case, bool, error) {
	eventType := workflow.NormalizeEventType(p.EventType)

	if event, found, err := findEventByKey(ctx, r.pool, p.IdempotencyKey); err != nil {
		return models.Event{}, models.Case{}, false, err
	} else if found {
		cs, err := getCase(ctx, r.pool, event.CaseID)
		if err != nil {
			return models.Event{}, models.Case{}, false, err
		}
		return event, cs, true, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Event{}, models.Case{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var cs models.Case
	if cs, err = lockCase(ctx, tx, p.CaseID); err != nil {
		return models.Event{}, models.Case{}, false, err
	}

	if workflow.IsTerminal(cs.Status) {
		err = Validationf("no events allowed after ACCEPTED status")
		return models.Event{}, models.Case{}, false, err
	}

	toStatus, ok := workflow.TransitionFor(cs.Status, eventType)
	if !ok {
		err = Validationf("invalid transition: %s + %s", cs.Status, eventType)
		return models.Event{}, models.Case{}, false, err
	}

	switch eventType {
	case workflow.EventStarted, workflow.EventSubmitted:
		if actor.Role == models.RoleWorker && (cs.AssignedUserID == nil || *cs.AssignedUserID != actor.UserID) {
			err = Forbiddenf("you are not assigned to this case")
			return models.Event{}, models.Case{}, false, err
		}
	case workflow.EventReworkRequested, workflow.EventAccepted:
		if actor.Role != models.RoleAdmin {
			err = Forbiddenf("only ADMIN can rework/accept cases")
			return models.Event{}, models.Case{}, false, err
		}
	}

	if p.ExpectedRevision != nil && cs.Revision != *p.ExpectedRevision {
		err = Conflictf("revision conflict: expected %d, got %d", *p.ExpectedRevision, cs.Revision)
		return models.Event{}, models.Case{}, false, err
	}

	now := time.Now().UTC()
	event, created, err := insertEvent(ctx, tx, models.Event{
		CaseID:         cs.CaseID,
		UserID:         actor.UserID,
		EventType:      eventType,
		FromStatus:     cs.Status,
		ToStatus:       toStatus,
		IdempotencyKey: p.IdempotencyKey,
		EventCode:      p.EventCode,
		Payload:        p.Payload,
		CreatedAt:      now,
	})
	if err != nil {
		return models.Event{}, models.Case{}, false, err
	}
	if !created {
		// Lost the key race to a concurrent request; serve its committed row.
		_ = tx.Rollback(ctx)
		event, _, err := findEventByKey(ctx, r.pool, p.IdempotencyKey)
		if err != nil {
			return models.Event{}, models.Case{}, false, err
		}
		current, err := getCase(ctx, r.pool, event.CaseID)
		if err != nil {
			return models.Event{}, models.Case{}, false, err
		}
		return event, current, true, nil
	}

	applyTransition(&cs, eventType, toStatus, now)
	if err = updateCaseState(ctx, tx, cs); err != nil {
		return models.Event{}, models.Case{}, false, err
	}
	if err = stageCaseEvent(ctx, tx, outbox, event, cs); err != nil {
		return models.Event{}, models.Case{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Event{}, models.Case{}, false, err
	}
	return event, cs, false, nil
}

func (r *EventsRepo) ListEventsByCase(ctx context.Context, caseID uuid.UUID) ([]EventRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.event_id, e.case_id, e.user_id, e.event_type, e.from_status, e.to_status, e.idempotency_key, e.event_code, e.payload_json, e.created_at, u.username
		FROM events e
		JOIN users u ON u.user_id = e.user_id
		WHERE e.case_id = $1
		ORDER BY e.created_at, e.event_id
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEventRows(rows)
}

func (r *EventsRepo) ListRecentEvents(ctx context.Context, limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT e.event_id, e.case_id, e.user_id, e.event_type, e.from_status, e.to_status, e.idempotency_key, e.event_code, e.payload_json, e.created_at, u.username
		FROM events e
		JOIN users u ON u.user_id = e.user_id
		ORDER BY e.created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEventRows(rows)
}

func collectEventRows(rows pgx.Rows) ([]EventRow, error) {
	var items []EventRow
	for rows.Next() {
		var er EventRow
		if err := rows.Scan(&er.EventID, &er.CaseID, &er.UserID, &er.EventType, &er.FromStatus, &er.ToStatus, &er.IdempotencyKey, &er.EventCode, &er.Payload, &er.CreatedAt, &er.Username); err != nil {
			return nil, err
		}
		items = append(items, er)
	}
	return items, rows.Err()
}
