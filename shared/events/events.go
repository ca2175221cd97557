// Package events defines the wire envelope published to Kafka for every
// committed case event. The command path never publishes directly; rows go
// to the outbox table and the relay worker marshals them into this shape.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	ActorID       uuid.UUID       `json:"actor_id"`
	CaseStatus    string          `json:"case_status"`
	Revision      int             `json:"revision"`
	Payload       json.RawMessage `json:"payload"`
}

const (
	AggregateCase = "case"

	TopicCaseEvents = "qc.case-events.v1"
)

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(data, &e)
	return e, err
}
