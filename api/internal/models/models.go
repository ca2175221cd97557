package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin  = "ADMIN"
	RoleWorker = "WORKER"
)

type User struct {
	UserID    uuid.UUID
	Username  string
	Role      string
	APIKey    string
	Subject   *string
	IsActive  bool
	CreatedAt time.Time
}

type Project struct {
	ProjectID uuid.UUID
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

type Part struct {
	PartID    uuid.UUID
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

type Case struct {
	CaseID            uuid.UUID
	CaseUID           string
	DisplayName       string
	OriginalName      *string
	NASPath           *string
	Hospital          *string
	SliceThicknessMM  *float64
	ProjectID         uuid.UUID
	PartID            uuid.UUID
	Difficulty        string
	Status            string
	Revision          int
	AssignedUserID    *uuid.UUID
	Metadata          []byte
	WWL               *string
	Memo              *string
	StartedAt         *time.Time
	WorkerCompletedAt *time.Time
	AcceptedAt        *time.Time
	CreatedAt         time.Time
}

type Event struct {
	EventID        uuid.UUID
	CaseID         uuid.UUID
	UserID         uuid.UUID
	EventType      string
	FromStatus     string
	ToStatus       string
	IdempotencyKey string
	EventCode      *string
	Payload        []byte
	CreatedAt      time.Time
}

type WorkLog struct {
	WorkLogID  int64
	CaseID     uuid.UUID
	UserID     uuid.UUID
	Action     string
	ReasonCode *string
	Timestamp  time.Time
}

type ReviewNote struct {
	NoteID             uuid.UUID
	CaseID             uuid.UUID
	ReviewerUserID     uuid.UUID
	QCSummaryConfirmed bool
	NoteText           string
	ExtraTags          []byte
	CreatedAt          time.Time
}

type PreQcSummary struct {
	SummaryID               uuid.UUID
	CaseID                  uuid.UUID
	FolderPath              *string
	SliceCount              *int
	Spacing                 []byte
	VolumeFile              *string
	SliceThicknessMM        *float64
	SliceThicknessFlag      *string
	NoiseSigmaMean          *float64
	NoiseLevel              *string
	DeltaHU                 *float64
	ContrastFlag            *string
	VesselVoxelRatio        *float64
	EdgeStrength            *float64
	VascularVisibilityScore *int
	VascularVisibilityLevel *string
	Difficulty              *string
	Flags                   []byte
	ExpectedSegments        []byte
	Notes                   *string
	CreatedAt               time.Time
}

type AutoQcSummary struct {
	SummaryID          uuid.UUID
	CaseID             uuid.UUID
	Status             *string
	MissingSegments    []byte
	NameMismatches     []byte
	ExtraSegments      []byte
	Issues             []byte
	IssueCounts        []byte
	GeometryMismatch   bool
	Warnings           []byte
	Revision           int
	PreviousIssueCount *int
	CreatedAt          time.Time
}

type CaseTag struct {
	TagID     uuid.UUID
	CaseID    uuid.UUID
	TagText   string
	CreatedAt time.Time
}

type DefinitionSnapshot struct {
	SnapshotID  uuid.UUID
	VersionName string
	Content     []byte
	CreatedAt   time.Time
}

type ProjectDefinitionLink struct {
	LinkID               uuid.UUID
	ProjectID            uuid.UUID
	DefinitionSnapshotID uuid.UUID
	CreatedAt            time.Time
}

type UserTimeOff struct {
	TimeOffID uuid.UUID
	UserID    uuid.UUID
	Date      time.Time
	Type      string
	CreatedAt time.Time
}

type WorkCalendar struct {
	Holidays  []byte
	Timezone  string
	UpdatedAt time.Time
}

type AppConfig struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

type OutboxEvent struct {
	EventID       uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	Topic         string
	Payload       []byte
	Status        string
	Attempts      int
	NextRetryAt   *time.Time
	LockedAt      *time.Time
	LockedBy      *string
	LastError     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PublishedAt   *time.Time
}

type AuditLog struct {
	AuditID      uuid.UUID
	OccurredAt   time.Time
	ActorUserID  *uuid.UUID
	Subject      string
	Action       string
	ResourceType *string
	ResourceID   *string
	RequestID    string
	Method       string
	Path         string
	StatusCode   int
	DurationMS   int64
	ClientIP     string
	UserAgent    string
	Details      []byte
}
