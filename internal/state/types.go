package state

import "time"

const (
	ShiftDay   = "DAY"
	ShiftNight = "NIGHT"
)

const (
	WorkerStatusNormal   = "NORMAL"
	WorkerStatusOvertime = "OVERTIME"
)

const (
	SessionOpen   = "OPEN"
	SessionClosed = "CLOSED"
)

type LineRecord struct {
	ID           string
	Name         string
	WorkClass    string
	DisplayOrder int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ShiftRecord struct {
	ID        string
	LineID    string
	Type      string
	SlotCount int
	// Extended mirrors the line-level "running past scheduled window" setting.
	Extended  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type SlotRecord struct {
	ShiftID      string
	Index        int
	WorkerID     string
	WorkerStatus string
	UpdatedAt    time.Time
}

type SlotKey struct {
	ShiftID string
	Index   int
}

type SessionRecord struct {
	ID              string
	WorkerID        string
	ShiftID         string
	SlotIndex       int
	Status          string
	StartedAt       time.Time
	EndedAt         time.Time
	DurationMinutes int
	Classification  string
	Defective       bool
	Memo            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type SessionAuditRecord struct {
	ID        int64
	SessionID string
	Field     string
	OldValue  string
	NewValue  string
	EditorID  string
	ChangedAt time.Time
}

type AuditEventRecord struct {
	ID          int64
	Action      string
	Actor       string
	RemoteAddr  string
	Resource    string
	PayloadHash string
	PrevHash    string
	EventHash   string
	Result      string
	Details     string
	CreatedAt   time.Time
}

type AuditQuery struct {
	Limit  int
	Offset int
	Action string
	Actor  string
	Result string
	From   time.Time
	To     time.Time
}

type FeedEvent struct {
	Kind      string
	LineID    string
	ShiftType string
	SlotIndex int
	WorkerID  string
	SessionID string
	At        time.Time
}

type FeedClaim struct {
	Event     FeedEvent
	Receipt   string
	ClaimedBy string
	ClaimedAt time.Time
	VisibleAt time.Time
}
