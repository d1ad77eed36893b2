// Package assignment enforces the single invariant that matters on the
// factory floor: a worker occupies at most one slot anywhere, at any time.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/example/rosterd/internal/identity"
	"github.com/example/rosterd/internal/observability"
	"github.com/example/rosterd/internal/policy"
	"github.com/example/rosterd/internal/state"
	"github.com/example/rosterd/internal/topology"
)

var (
	ErrWorkerNotFound = errors.New("worker not found")
	ErrInvalidStatus  = errors.New("worker status must be NORMAL or OVERTIME")
	ErrPolicyDenied   = errors.New("placement denied by policy")
)

// PlacementConflictError reports where the worker currently is, so a human
// can decide to re-issue the request with force.
type PlacementConflictError struct {
	WorkerID  string
	LineID    string
	LineName  string
	ShiftType string
	SlotIndex int
}

func (e *PlacementConflictError) Error() string {
	return fmt.Sprintf("worker %s is already assigned to %s", e.WorkerID, e.Location())
}

func (e *PlacementConflictError) Location() string {
	name := e.LineName
	if name == "" {
		name = e.LineID
	}
	return fmt.Sprintf("%s %s %s", name, e.ShiftType, topology.SlotLabel(e.SlotIndex))
}

type Options struct {
	PolicyEngine *policy.Engine
	Feed         state.Feed
}

type Manager struct {
	store  state.Store
	dir    identity.Directory
	policy *policy.Engine
	feed   state.Feed
}

func NewManager(store state.Store, dir identity.Directory, opts Options) *Manager {
	p := opts.PolicyEngine
	if p == nil {
		p = policy.NewAllowAll()
	}
	return &Manager{store: store, dir: dir, policy: p, feed: opts.Feed}
}

// Result is what every mutating operation hands back: the touched slot, the
// slot a forced reassignment emptied (if any), and the full topology
// snapshot so callers never need a second fetch.
type Result struct {
	Slot     state.SlotRecord
	Cleared  *state.SlotRecord
	Snapshot Snapshot
}

// AssignWorker places a worker into a slot. Without force, a worker already
// placed elsewhere yields a PlacementConflictError carrying their current
// location; with force, the old slot is emptied in the same atomic step.
// Force never overrides slot-level occupancy by a different worker.
func (m *Manager) AssignWorker(ctx context.Context, lineID, shiftType string, slotIndex int, workerID string, force bool, actor string) (Result, error) {
	ctx, span := observability.StartSpan(ctx, "assignment.assign_worker",
		attribute.String("line.id", lineID),
		attribute.String("shift.type", shiftType),
		attribute.Int("slot.index", slotIndex),
		attribute.String("worker.id", workerID),
		attribute.Bool("force", force),
	)
	defer span.End()

	worker, ok, err := m.dir.GetWorker(ctx, workerID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, ErrWorkerNotFound
	}
	shift, line, err := m.resolveShift(ctx, lineID, shiftType)
	if err != nil {
		return Result{}, err
	}
	if !m.policy.IsNoop() {
		decision := m.policy.EvaluatePlacement(policy.PlacementInput{
			WorkerRole:   worker.Role,
			WorkerActive: worker.IsActive(),
			WorkClass:    line.WorkClass,
			LineID:       lineID,
			ShiftType:    shiftType,
		})
		if !decision.Allowed {
			m.audit(ctx, "assign_worker", actor, "denied", fmt.Sprintf("worker=%s line=%s shift=%s slot=%d reason=%s", workerID, lineID, shiftType, slotIndex, decision.ReasonCode))
			return Result{}, fmt.Errorf("%w: %s", ErrPolicyDenied, decision.ReasonCode)
		}
	} else if !worker.IsActive() {
		return Result{}, fmt.Errorf("%w: worker_inactive", ErrPolicyDenied)
	}

	key := state.SlotKey{ShiftID: shift.ID, Index: slotIndex}
	slot, cleared, err := m.store.PlaceWorker(ctx, key, workerID, force)
	if err != nil {
		var conflict *state.ConflictError
		if errors.As(err, &conflict) {
			observability.Default.IncCounter("roster_assignment_conflicts_total", map[string]string{"line_id": lineID}, 1)
			return Result{}, m.describeConflict(ctx, conflict)
		}
		return Result{}, err
	}

	details := fmt.Sprintf("worker=%s line=%s shift=%s slot=%d", workerID, lineID, shiftType, slotIndex)
	if cleared != nil {
		from, err := m.locate(ctx, cleared.ShiftID, cleared.Index)
		if err == nil {
			details += " moved_from=" + from
		}
		m.audit(ctx, "force_reassign", actor, "ok", details)
	} else {
		m.audit(ctx, "assign_worker", actor, "ok", details)
	}
	observability.Default.IncCounter("roster_assignments_total", map[string]string{"line_id": lineID, "result": "ok"}, 1)
	m.publish(ctx, state.FeedEvent{
		Kind:      "slot_assigned",
		LineID:    lineID,
		ShiftType: shiftType,
		SlotIndex: slotIndex,
		WorkerID:  workerID,
	})

	snap, err := m.BuildSnapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	return Result{Slot: slot, Cleared: cleared, Snapshot: snap}, nil
}

// RemoveWorker empties a slot.
func (m *Manager) RemoveWorker(ctx context.Context, lineID, shiftType string, slotIndex int, actor string) (Result, error) {
	ctx, span := observability.StartSpan(ctx, "assignment.remove_worker",
		attribute.String("line.id", lineID),
		attribute.String("shift.type", shiftType),
		attribute.Int("slot.index", slotIndex),
	)
	defer span.End()

	shift, _, err := m.resolveShift(ctx, lineID, shiftType)
	if err != nil {
		return Result{}, err
	}
	slot, err := m.store.ClearSlot(ctx, state.SlotKey{ShiftID: shift.ID, Index: slotIndex})
	if err != nil {
		return Result{}, err
	}
	m.audit(ctx, "remove_worker", actor, "ok", fmt.Sprintf("line=%s shift=%s slot=%d", lineID, shiftType, slotIndex))
	observability.Default.IncCounter("roster_removals_total", map[string]string{"line_id": lineID}, 1)
	m.publish(ctx, state.FeedEvent{
		Kind:      "slot_released",
		LineID:    lineID,
		ShiftType: shiftType,
		SlotIndex: slotIndex,
	})

	snap, err := m.BuildSnapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	return Result{Slot: slot, Snapshot: snap}, nil
}

// UpdateWorkerStatus flips an occupied slot between NORMAL and OVERTIME.
func (m *Manager) UpdateWorkerStatus(ctx context.Context, lineID, shiftType string, slotIndex int, status, actor string) (Result, error) {
	ctx, span := observability.StartSpan(ctx, "assignment.update_worker_status",
		attribute.String("line.id", lineID),
		attribute.String("shift.type", shiftType),
		attribute.Int("slot.index", slotIndex),
		attribute.String("status", status),
	)
	defer span.End()

	if status != state.WorkerStatusNormal && status != state.WorkerStatusOvertime {
		return Result{}, ErrInvalidStatus
	}
	shift, _, err := m.resolveShift(ctx, lineID, shiftType)
	if err != nil {
		return Result{}, err
	}
	slot, err := m.store.SetSlotStatus(ctx, state.SlotKey{ShiftID: shift.ID, Index: slotIndex}, status)
	if err != nil {
		return Result{}, err
	}
	m.audit(ctx, "update_worker_status", actor, "ok", fmt.Sprintf("line=%s shift=%s slot=%d status=%s", lineID, shiftType, slotIndex, status))
	m.publish(ctx, state.FeedEvent{
		Kind:      "slot_status_changed",
		LineID:    lineID,
		ShiftType: shiftType,
		SlotIndex: slotIndex,
		WorkerID:  slot.WorkerID,
	})

	snap, err := m.BuildSnapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	return Result{Slot: slot, Snapshot: snap}, nil
}

// SetShiftExtended records the line-level "running past its scheduled
// window" flag that upgrades OVERTIME to EXTENDED in the aggregate.
func (m *Manager) SetShiftExtended(ctx context.Context, lineID, shiftType string, extended bool, actor string) (Snapshot, error) {
	shift, _, err := m.resolveShift(ctx, lineID, shiftType)
	if err != nil {
		return Snapshot{}, err
	}
	if err := m.store.SetShiftExtended(ctx, shift.ID, extended); err != nil {
		return Snapshot{}, err
	}
	m.audit(ctx, "set_shift_extended", actor, "ok", fmt.Sprintf("line=%s shift=%s extended=%t", lineID, shiftType, extended))
	return m.BuildSnapshot(ctx)
}

func (m *Manager) resolveShift(ctx context.Context, lineID, shiftType string) (state.ShiftRecord, state.LineRecord, error) {
	shift, ok, err := m.store.GetShift(ctx, lineID, shiftType)
	if err != nil {
		return state.ShiftRecord{}, state.LineRecord{}, err
	}
	if !ok {
		return state.ShiftRecord{}, state.LineRecord{}, state.ErrShiftNotFound
	}
	line, err := m.lineByID(ctx, lineID)
	if err != nil {
		return state.ShiftRecord{}, state.LineRecord{}, err
	}
	return shift, line, nil
}

func (m *Manager) lineByID(ctx context.Context, lineID string) (state.LineRecord, error) {
	lines, err := m.store.ListLines(ctx)
	if err != nil {
		return state.LineRecord{}, err
	}
	for _, l := range lines {
		if l.ID == lineID {
			return l, nil
		}
	}
	return state.LineRecord{}, state.ErrLineNotFound
}

func (m *Manager) describeConflict(ctx context.Context, conflict *state.ConflictError) error {
	out := &PlacementConflictError{
		WorkerID:  conflict.WorkerID,
		SlotIndex: conflict.Conflict.Index,
	}
	shift, ok, err := m.store.GetShiftByID(ctx, conflict.Conflict.ShiftID)
	if err != nil || !ok {
		return out
	}
	out.LineID = shift.LineID
	out.ShiftType = shift.Type
	if line, err := m.lineByID(ctx, shift.LineID); err == nil {
		out.LineName = line.Name
	}
	return out
}

func (m *Manager) locate(ctx context.Context, shiftID string, slotIndex int) (string, error) {
	shift, ok, err := m.store.GetShiftByID(ctx, shiftID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", state.ErrShiftNotFound
	}
	return fmt.Sprintf("%s/%s/%s", shift.LineID, shift.Type, topology.SlotLabel(slotIndex)), nil
}

func (m *Manager) audit(ctx context.Context, action, actor, result, details string) {
	if actor == "" {
		actor = "unknown"
	}
	_ = m.store.AppendAuditEvent(ctx, state.AuditEventRecord{
		Action:    action,
		Actor:     actor,
		Resource:  "slots",
		Result:    result,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	})
}

func (m *Manager) publish(ctx context.Context, event state.FeedEvent) {
	if m.feed == nil {
		return
	}
	_ = m.feed.Publish(ctx, event)
}
