package state

import (
	"context"
	"time"
)

type Store interface {
	SeedTopology(ctx context.Context, lines []LineRecord, shifts []ShiftRecord, slots []SlotRecord) error
	ListLines(ctx context.Context) ([]LineRecord, error)
	GetShift(ctx context.Context, lineID, shiftType string) (ShiftRecord, bool, error)
	GetShiftByID(ctx context.Context, shiftID string) (ShiftRecord, bool, error)
	SetShiftExtended(ctx context.Context, shiftID string, extended bool) error
	GetSlot(ctx context.Context, key SlotKey) (SlotRecord, bool, error)
	ListSlotsByShift(ctx context.Context, shiftID string) ([]SlotRecord, error)
	FindSlotByWorker(ctx context.Context, workerID string) (SlotRecord, bool, error)
	PlaceWorker(ctx context.Context, key SlotKey, workerID string, force bool) (SlotRecord, *SlotRecord, error)
	ClearSlot(ctx context.Context, key SlotKey) (SlotRecord, error)
	SetSlotStatus(ctx context.Context, key SlotKey, status string) (SlotRecord, error)
	Snapshot(ctx context.Context) ([]LineRecord, []ShiftRecord, []SlotRecord, error)

	CreateSession(ctx context.Context, session SessionRecord) error
	GetSession(ctx context.Context, sessionID string) (SessionRecord, bool, error)
	FindOpenSessionByWorker(ctx context.Context, workerID string) (SessionRecord, bool, error)
	UpdateSession(ctx context.Context, session SessionRecord, audits []SessionAuditRecord) error
	DeleteSession(ctx context.Context, sessionID string) error
	ListSessionAudits(ctx context.Context, sessionID string) ([]SessionAuditRecord, error)

	AppendAuditEvent(ctx context.Context, event AuditEventRecord) error
	ListAuditEvents(ctx context.Context, query AuditQuery) ([]AuditEventRecord, error)
}

type Feed interface {
	Publish(ctx context.Context, event FeedEvent) error
	Poll(ctx context.Context, max int, consumer string, visibilityTimeout time.Duration) ([]FeedClaim, error)
	Ack(ctx context.Context, claims []FeedClaim) error
}
