package assignment

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/example/rosterd/internal/identity"
	"github.com/example/rosterd/internal/policy"
	"github.com/example/rosterd/internal/state"
)

func newTestManager(t *testing.T, opts Options) (*Manager, *state.MemoryStore) {
	t.Helper()
	store := state.NewMemoryStore()
	lines := []state.LineRecord{
		{ID: "line-a", Name: "Assembly A", WorkClass: "assembly", DisplayOrder: 1},
		{ID: "line-b", Name: "Welding B", WorkClass: "welding", DisplayOrder: 2},
	}
	shifts := []state.ShiftRecord{
		{ID: "line-a-DAY", LineID: "line-a", Type: state.ShiftDay, SlotCount: 2},
		{ID: "line-a-NIGHT", LineID: "line-a", Type: state.ShiftNight, SlotCount: 2},
		{ID: "line-b-DAY", LineID: "line-b", Type: state.ShiftDay, SlotCount: 2},
		{ID: "line-b-NIGHT", LineID: "line-b", Type: state.ShiftNight, SlotCount: 2},
	}
	slots := make([]state.SlotRecord, 0, 8)
	for _, sh := range shifts {
		for i := 0; i < sh.SlotCount; i++ {
			slots = append(slots, state.SlotRecord{ShiftID: sh.ID, Index: i, WorkerStatus: state.WorkerStatusNormal})
		}
	}
	if err := store.SeedTopology(context.Background(), lines, shifts, slots); err != nil {
		t.Fatalf("seed topology: %v", err)
	}
	dir := identity.NewStaticDirectory(
		identity.Worker{ID: "w1", Name: "Mori"},
		identity.Worker{ID: "w2", Name: "Tanaka"},
	)
	return NewManager(store, dir, opts), store
}

func TestAssignWorkerHappyPath(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	res, err := m.AssignWorker(ctx, "line-a", state.ShiftDay, 0, "w1", false, "mgr-1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if res.Slot.WorkerID != "w1" || res.Cleared != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	// The response snapshot must already reflect the change.
	slot := res.Snapshot.Lines[0].Shifts[0].Slots[0]
	if slot.WorkerID != "w1" || slot.WorkerName != "Mori" {
		t.Fatalf("snapshot stale: %+v", slot)
	}
	if slot.Label != "P1" {
		t.Fatalf("unexpected slot label: %s", slot.Label)
	}
}

func TestAssignUnknownWorker(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	if _, err := m.AssignWorker(context.Background(), "line-a", state.ShiftDay, 0, "ghost", false, "mgr-1"); !errors.Is(err, ErrWorkerNotFound) {
		t.Fatalf("expected ErrWorkerNotFound, got %v", err)
	}
}

func TestAssignConflictThenForce(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	if _, err := m.AssignWorker(ctx, "line-a", state.ShiftDay, 0, "w1", false, "mgr-1"); err != nil {
		t.Fatalf("first assign: %v", err)
	}

	_, err := m.AssignWorker(ctx, "line-b", state.ShiftNight, 1, "w1", false, "mgr-1")
	var conflict *PlacementConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected PlacementConflictError, got %v", err)
	}
	if conflict.LineID != "line-a" || conflict.ShiftType != state.ShiftDay || conflict.SlotIndex != 0 {
		t.Fatalf("conflict location wrong: %+v", conflict)
	}
	if !strings.Contains(conflict.Location(), "Assembly A") {
		t.Fatalf("location should name the line: %s", conflict.Location())
	}

	res, err := m.AssignWorker(ctx, "line-b", state.ShiftNight, 1, "w1", true, "mgr-1")
	if err != nil {
		t.Fatalf("forced assign: %v", err)
	}
	if res.Cleared == nil || res.Cleared.ShiftID != "line-a-DAY" {
		t.Fatalf("forced assign should clear the old slot: %+v", res.Cleared)
	}
	// Old slot is empty in the returned snapshot.
	if got := res.Snapshot.Lines[0].Shifts[0].Slots[0].WorkerID; got != "" {
		t.Fatalf("old slot still occupied in snapshot: %q", got)
	}
}

func TestForceNeverEvictsOtherWorker(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	if _, err := m.AssignWorker(ctx, "line-a", state.ShiftDay, 0, "w1", false, "mgr-1"); err != nil {
		t.Fatalf("assign w1: %v", err)
	}
	if _, err := m.AssignWorker(ctx, "line-a", state.ShiftDay, 0, "w2", true, "mgr-1"); !errors.Is(err, state.ErrSlotOccupied) {
		t.Fatalf("expected ErrSlotOccupied, got %v", err)
	}
}

func TestRemoveWorker(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	if _, err := m.AssignWorker(ctx, "line-a", state.ShiftDay, 0, "w1", false, "mgr-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	res, err := m.RemoveWorker(ctx, "line-a", state.ShiftDay, 0, "mgr-1")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if res.Slot.WorkerID != "" {
		t.Fatalf("slot should be empty: %+v", res.Slot)
	}
	if _, err := m.RemoveWorker(ctx, "line-a", state.ShiftDay, 0, "mgr-1"); !errors.Is(err, state.ErrSlotEmpty) {
		t.Fatalf("expected ErrSlotEmpty, got %v", err)
	}
}

func TestUpdateWorkerStatusAndAggregate(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	if _, err := m.AssignWorker(ctx, "line-a", state.ShiftDay, 0, "w1", false, "mgr-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := m.UpdateWorkerStatus(ctx, "line-a", state.ShiftDay, 0, "LUNCH", "mgr-1"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	res, err := m.UpdateWorkerStatus(ctx, "line-a", state.ShiftDay, 0, state.WorkerStatusOvertime, "mgr-1")
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if res.Slot.WorkerStatus != state.WorkerStatusOvertime {
		t.Fatalf("status not applied: %+v", res.Slot)
	}
	if got := res.Snapshot.Lines[0].Shifts[0].Status; got != ShiftStatusOvertime {
		t.Fatalf("aggregate should be OVERTIME, got %s", got)
	}

	snap, err := m.SetShiftExtended(ctx, "line-a", state.ShiftDay, true, "mgr-1")
	if err != nil {
		t.Fatalf("set extended: %v", err)
	}
	if got := snap.Lines[0].Shifts[0].Status; got != ShiftStatusExtended {
		t.Fatalf("aggregate should be EXTENDED, got %s", got)
	}
}

func TestAssignDeniedByPolicy(t *testing.T) {
	engine := policy.NewFromConfig(policy.Config{
		DefaultAction: "allow",
		Rules: []policy.Rule{
			{Name: "no-welding", Effect: "deny", Reason: "not_certified", Match: policy.RuleMatch{WorkClass: "welding"}},
		},
	})
	m, _ := newTestManager(t, Options{PolicyEngine: engine})
	ctx := context.Background()

	if _, err := m.AssignWorker(ctx, "line-b", state.ShiftDay, 0, "w1", false, "mgr-1"); !errors.Is(err, ErrPolicyDenied) {
		t.Fatalf("expected ErrPolicyDenied, got %v", err)
	}
	if _, err := m.AssignWorker(ctx, "line-a", state.ShiftDay, 0, "w1", false, "mgr-1"); err != nil {
		t.Fatalf("assembly placement should pass: %v", err)
	}
}

func TestAssignInactiveWorker(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	inactive := false
	dir := identity.NewStaticDirectory(identity.Worker{ID: "w3", Name: "Retired", Active: &inactive})
	m.dir = dir

	if _, err := m.AssignWorker(context.Background(), "line-a", state.ShiftDay, 0, "w3", false, "mgr-1"); !errors.Is(err, ErrPolicyDenied) {
		t.Fatalf("expected ErrPolicyDenied for inactive worker, got %v", err)
	}
}

func TestAuditTrailForForceReassign(t *testing.T) {
	m, store := newTestManager(t, Options{})
	ctx := context.Background()

	if _, err := m.AssignWorker(ctx, "line-a", state.ShiftDay, 0, "w1", false, "mgr-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := m.AssignWorker(ctx, "line-b", state.ShiftDay, 0, "w1", true, "mgr-2"); err != nil {
		t.Fatalf("forced assign: %v", err)
	}

	events, err := store.ListAuditEvents(ctx, state.AuditQuery{Action: "force_reassign"})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one force_reassign event, got %d", len(events))
	}
	e := events[0]
	if e.Actor != "mgr-2" || !strings.Contains(e.Details, "moved_from=line-a/DAY/P1") {
		t.Fatalf("unexpected audit event: %+v", e)
	}
	if e.EventHash == "" {
		t.Fatalf("audit event missing hash")
	}
}

func TestAggregateStatus(t *testing.T) {
	overtime := []state.SlotRecord{
		{Index: 0, WorkerID: "w1", WorkerStatus: state.WorkerStatusOvertime},
		{Index: 1, WorkerStatus: state.WorkerStatusNormal},
	}
	normal := []state.SlotRecord{
		{Index: 0, WorkerID: "w1", WorkerStatus: state.WorkerStatusNormal},
		// Empty slot with a stale status must not count.
		{Index: 1, WorkerStatus: state.WorkerStatusOvertime},
	}
	if got := AggregateStatus(normal, false); got != ShiftStatusNormal {
		t.Fatalf("expected NORMAL, got %s", got)
	}
	if got := AggregateStatus(overtime, false); got != ShiftStatusOvertime {
		t.Fatalf("expected OVERTIME, got %s", got)
	}
	if got := AggregateStatus(overtime, true); got != ShiftStatusExtended {
		t.Fatalf("expected EXTENDED, got %s", got)
	}
	if got := AggregateStatus(normal, true); got != ShiftStatusNormal {
		t.Fatalf("extended without overtime stays NORMAL, got %s", got)
	}
	if got := AggregateStatus(nil, false); got != ShiftStatusNormal {
		t.Fatalf("empty shift should be NORMAL, got %s", got)
	}
}
