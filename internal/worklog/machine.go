// Package worklog is the work session state machine: it turns clock-in and
// clock-out events into classified, duration-accounted work records, and
// audits every admin edit of a closed record.
package worklog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/rosterd/internal/identity"
	"github.com/example/rosterd/internal/observability"
	"github.com/example/rosterd/internal/state"
)

var (
	ErrWorkerNotFound   = errors.New("worker not found")
	ErrNoWaitingWorker  = errors.New("no waiting worker assigned to this slot")
	ErrNotAssignedHere  = errors.New("worker is not assigned to this workstation")
	ErrWorkInProgress   = errors.New("worker already has work in progress")
	ErrInvalidTimeRange = errors.New("ended_at must not be before started_at")
	ErrEditorRequired   = errors.New("editor id is required")
)

type Options struct {
	Windows  Windows
	Location *time.Location
	Feed     state.Feed
}

type Machine struct {
	store   state.Store
	dir     identity.Directory
	windows Windows
	loc     *time.Location
	feed    state.Feed
}

func NewMachine(store state.Store, dir identity.Directory, opts Options) *Machine {
	w := opts.Windows
	if w == (Windows{}) {
		w = DefaultWindows()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Machine{store: store, dir: dir, windows: w, loc: loc, feed: opts.Feed}
}

// FieldChanges carries the editable fields of a closed session. Nil means
// "leave unchanged".
type FieldChanges struct {
	StartedAt *time.Time
	EndedAt   *time.Time
	Defective *bool
	Memo      *string
}

// StartSession opens a work session for a worker at the slot they are
// rostered to. A worker can hold at most one open session factory-wide.
func (m *Machine) StartSession(ctx context.Context, workerID, lineID, shiftType string, slotIndex int, startedAt time.Time) (state.SessionRecord, error) {
	ctx, span := observability.StartSpan(ctx, "worklog.start_session",
		attribute.String("worker.id", workerID),
		attribute.String("line.id", lineID),
		attribute.String("shift.type", shiftType),
		attribute.Int("slot.index", slotIndex),
	)
	defer span.End()

	if _, ok, err := m.dir.GetWorker(ctx, workerID); err != nil {
		return state.SessionRecord{}, err
	} else if !ok {
		return state.SessionRecord{}, ErrWorkerNotFound
	}
	shift, ok, err := m.store.GetShift(ctx, lineID, shiftType)
	if err != nil {
		return state.SessionRecord{}, err
	}
	if !ok {
		return state.SessionRecord{}, state.ErrShiftNotFound
	}
	slot, ok, err := m.store.GetSlot(ctx, state.SlotKey{ShiftID: shift.ID, Index: slotIndex})
	if err != nil {
		return state.SessionRecord{}, err
	}
	if !ok {
		return state.SessionRecord{}, state.ErrSlotNotFound
	}
	if slot.WorkerID == "" {
		return state.SessionRecord{}, ErrNoWaitingWorker
	}
	if slot.WorkerID != workerID {
		return state.SessionRecord{}, ErrNotAssignedHere
	}
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	session := state.SessionRecord{
		ID:             uuid.NewString(),
		WorkerID:       workerID,
		ShiftID:        shift.ID,
		SlotIndex:      slotIndex,
		Status:         state.SessionOpen,
		StartedAt:      startedAt.UTC(),
		Classification: ClassUnclassified,
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		if errors.Is(err, state.ErrOpenSessionExists) {
			return state.SessionRecord{}, ErrWorkInProgress
		}
		return state.SessionRecord{}, err
	}
	observability.Default.IncCounter("worklog_sessions_started_total", map[string]string{"line_id": lineID, "shift_type": shiftType}, 1)
	m.publish(ctx, state.FeedEvent{
		Kind:      "session_started",
		LineID:    lineID,
		ShiftType: shiftType,
		SlotIndex: slotIndex,
		WorkerID:  workerID,
		SessionID: session.ID,
	})
	return session, nil
}

// EndSession closes an open session, fixing its duration and classification.
func (m *Machine) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (state.SessionRecord, error) {
	ctx, span := observability.StartSpan(ctx, "worklog.end_session",
		attribute.String("session.id", sessionID),
	)
	defer span.End()

	session, ok, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return state.SessionRecord{}, err
	}
	if !ok {
		return state.SessionRecord{}, state.ErrSessionNotFound
	}
	if session.Status != state.SessionOpen {
		return state.SessionRecord{}, state.ErrSessionNotOpen
	}
	if endedAt.IsZero() {
		endedAt = time.Now().UTC()
	}
	endedAt = endedAt.UTC()
	if endedAt.Before(session.StartedAt) {
		return state.SessionRecord{}, ErrInvalidTimeRange
	}
	session.Status = state.SessionClosed
	session.EndedAt = endedAt
	session.DurationMinutes, session.Classification = m.derive(session.StartedAt, endedAt)
	if err := m.store.UpdateSession(ctx, session, nil); err != nil {
		return state.SessionRecord{}, err
	}
	observability.Default.IncCounter("worklog_sessions_closed_total", map[string]string{"classification": session.Classification}, 1)
	m.publish(ctx, state.FeedEvent{
		Kind:      "session_closed",
		WorkerID:  session.WorkerID,
		SlotIndex: session.SlotIndex,
		SessionID: session.ID,
	})
	return session, nil
}

// EditSession mutates a closed session, writing one audit row per changed
// field. Time edits re-derive duration and classification.
func (m *Machine) EditSession(ctx context.Context, sessionID string, changes FieldChanges, editorID string) (state.SessionRecord, []state.SessionAuditRecord, error) {
	ctx, span := observability.StartSpan(ctx, "worklog.edit_session",
		attribute.String("session.id", sessionID),
		attribute.String("editor.id", editorID),
	)
	defer span.End()

	if editorID == "" {
		return state.SessionRecord{}, nil, ErrEditorRequired
	}
	session, ok, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return state.SessionRecord{}, nil, err
	}
	if !ok {
		return state.SessionRecord{}, nil, state.ErrSessionNotFound
	}
	if session.Status != state.SessionClosed {
		return state.SessionRecord{}, nil, state.ErrSessionNotClosed
	}

	now := time.Now().UTC()
	audits := make([]state.SessionAuditRecord, 0, 4)
	audit := func(field, oldValue, newValue string) {
		audits = append(audits, state.SessionAuditRecord{
			SessionID: sessionID,
			Field:     field,
			OldValue:  oldValue,
			NewValue:  newValue,
			EditorID:  editorID,
			ChangedAt: now,
		})
	}
	timesChanged := false
	if changes.StartedAt != nil && !changes.StartedAt.UTC().Equal(session.StartedAt) {
		v := changes.StartedAt.UTC()
		audit("started_at", session.StartedAt.Format(time.RFC3339), v.Format(time.RFC3339))
		session.StartedAt = v
		timesChanged = true
	}
	if changes.EndedAt != nil && !changes.EndedAt.UTC().Equal(session.EndedAt) {
		v := changes.EndedAt.UTC()
		audit("ended_at", session.EndedAt.Format(time.RFC3339), v.Format(time.RFC3339))
		session.EndedAt = v
		timesChanged = true
	}
	if changes.Defective != nil && *changes.Defective != session.Defective {
		audit("defective", boolString(session.Defective), boolString(*changes.Defective))
		session.Defective = *changes.Defective
	}
	if changes.Memo != nil && *changes.Memo != session.Memo {
		audit("memo", session.Memo, *changes.Memo)
		session.Memo = *changes.Memo
	}
	if timesChanged {
		if session.EndedAt.Before(session.StartedAt) {
			return state.SessionRecord{}, nil, ErrInvalidTimeRange
		}
		session.DurationMinutes, session.Classification = m.derive(session.StartedAt, session.EndedAt)
	}
	if len(audits) == 0 {
		trail, err := m.store.ListSessionAudits(ctx, sessionID)
		return session, trail, err
	}
	if err := m.store.UpdateSession(ctx, session, audits); err != nil {
		return state.SessionRecord{}, nil, err
	}
	observability.Default.IncCounter("worklog_sessions_edited_total", nil, 1)
	trail, err := m.store.ListSessionAudits(ctx, sessionID)
	if err != nil {
		return state.SessionRecord{}, nil, err
	}
	return session, trail, nil
}

// DeleteSession removes a session and its audit trail. There is no undo;
// confirmation is the caller's problem.
func (m *Machine) DeleteSession(ctx context.Context, sessionID string) error {
	ctx, span := observability.StartSpan(ctx, "worklog.delete_session",
		attribute.String("session.id", sessionID),
	)
	defer span.End()

	if err := m.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	observability.Default.IncCounter("worklog_sessions_deleted_total", nil, 1)
	m.publish(ctx, state.FeedEvent{Kind: "session_deleted", SessionID: sessionID})
	return nil
}

func (m *Machine) GetSession(ctx context.Context, sessionID string) (state.SessionRecord, []state.SessionAuditRecord, error) {
	session, ok, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return state.SessionRecord{}, nil, err
	}
	if !ok {
		return state.SessionRecord{}, nil, state.ErrSessionNotFound
	}
	trail, err := m.store.ListSessionAudits(ctx, sessionID)
	if err != nil {
		return state.SessionRecord{}, nil, err
	}
	return session, trail, nil
}

func (m *Machine) derive(startedAt, endedAt time.Time) (int, string) {
	minutes := int(endedAt.Sub(startedAt) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	midpoint := startedAt.Add(endedAt.Sub(startedAt) / 2).In(m.loc)
	return minutes, m.windows.Classify(midpoint.Hour(), minutes)
}

func (m *Machine) publish(ctx context.Context, event state.FeedEvent) {
	if m.feed == nil {
		return
	}
	// The feed is best-effort fan-out for dashboards; a publish failure must
	// not fail the operation that already committed.
	_ = m.feed.Publish(ctx, event)
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
