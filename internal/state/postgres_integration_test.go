package state

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestPostgresStoreIntegrationPlacementAndAudit(t *testing.T) {
	dsn := os.Getenv("ROSTERD_POSTGRES_DSN_INTEGRATION")
	if dsn == "" {
		t.Skip("set ROSTERD_POSTGRES_DSN_INTEGRATION to run Postgres integration tests")
	}
	store, err := NewPostgresStore(dsn)
	if err != nil {
		t.Fatalf("new postgres store: %v", err)
	}

	ctx := context.Background()
	stamp := time.Now().UTC().Format("20060102150405")
	lineA := "itest-a-" + stamp
	lineB := "itest-b-" + stamp
	workerID := "itest-w-" + stamp

	lines := []LineRecord{
		{ID: lineA, Name: "Integration A", WorkClass: "assembly", DisplayOrder: 90},
		{ID: lineB, Name: "Integration B", WorkClass: "welding", DisplayOrder: 91},
	}
	shifts := []ShiftRecord{
		{ID: lineA + "-DAY", LineID: lineA, Type: ShiftDay, SlotCount: 1},
		{ID: lineB + "-DAY", LineID: lineB, Type: ShiftDay, SlotCount: 1},
	}
	slots := []SlotRecord{
		{ShiftID: lineA + "-DAY", Index: 0, WorkerStatus: WorkerStatusNormal},
		{ShiftID: lineB + "-DAY", Index: 0, WorkerStatus: WorkerStatusNormal},
	}
	if err := store.SeedTopology(ctx, lines, shifts, slots); err != nil {
		t.Fatalf("seed topology: %v", err)
	}

	first := SlotKey{ShiftID: lineA + "-DAY", Index: 0}
	second := SlotKey{ShiftID: lineB + "-DAY", Index: 0}
	if _, _, err := store.PlaceWorker(ctx, first, workerID, false); err != nil {
		t.Fatalf("place worker: %v", err)
	}

	var conflict *ConflictError
	if _, _, err := store.PlaceWorker(ctx, second, workerID, false); !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	slot, cleared, err := store.PlaceWorker(ctx, second, workerID, true)
	if err != nil {
		t.Fatalf("forced placement: %v", err)
	}
	if slot.WorkerID != workerID || cleared == nil || cleared.ShiftID != first.ShiftID {
		t.Fatalf("forced placement result: slot=%+v cleared=%+v", slot, cleared)
	}

	action := "itest_assign_" + stamp
	if err := store.AppendAuditEvent(ctx, AuditEventRecord{Action: action, Actor: "itest", Result: "ok"}); err != nil {
		t.Fatalf("append audit event: %v", err)
	}
	audits, err := store.ListAuditEvents(ctx, AuditQuery{Limit: 5, Action: action})
	if err != nil {
		t.Fatalf("list audit events: %v", err)
	}
	if len(audits) == 0 {
		t.Fatalf("expected audit events")
	}
	if audits[0].EventHash == "" {
		t.Fatalf("expected event hash")
	}

	if _, err := store.ClearSlot(ctx, second); err != nil {
		t.Fatalf("clear slot: %v", err)
	}
}
