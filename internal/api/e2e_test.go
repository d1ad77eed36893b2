package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/rosterd/internal/assignment"
	"github.com/example/rosterd/internal/identity"
	"github.com/example/rosterd/internal/state"
	"github.com/example/rosterd/internal/topology"
	"github.com/example/rosterd/internal/worklog"
	"github.com/example/rosterd/pkg/rosterapi"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := state.NewMemoryStore()
	cfg := topology.Config{
		Factory: "test-plant",
		Lines: []topology.LineConfig{
			{ID: "line-a", Name: "Assembly A", WorkClass: "assembly", Slots: 2},
			{ID: "line-b", Name: "Welding B", WorkClass: "welding", Slots: 2},
		},
	}
	lines, shifts, slots := topology.NewBuilder().Build(cfg)
	if err := store.SeedTopology(context.Background(), lines, shifts, slots); err != nil {
		t.Fatalf("seed topology: %v", err)
	}
	dir := identity.NewStaticDirectory(
		identity.Worker{ID: "w1", Name: "Mori"},
		identity.Worker{ID: "w2", Name: "Tanaka"},
	)
	feed := state.NewMemoryFeed()
	manager := assignment.NewManager(store, dir, assignment.Options{Feed: feed})
	machine := worklog.NewMachine(store, dir, worklog.Options{Feed: feed})
	srv := NewServer(manager, machine, store, feed)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestEndToEndShiftLifecycle(t *testing.T) {
	ts := newTestServer(t)

	// Assign, clock in, clock out, inspect.
	var assignResp rosterapi.MutationResponse
	doJSON(t, http.MethodPost, ts.URL+"/v1/lines/line-a/shifts/DAY/slots/0/assign",
		rosterapi.AssignWorkerRequest{WorkerID: "w1", Actor: "mgr-1"}, &assignResp)
	if assignResp.Slot.WorkerID != "w1" {
		t.Fatalf("assignment response: %+v", assignResp.Slot)
	}
	if len(assignResp.Topology.Lines) != 2 {
		t.Fatalf("mutation response must carry the full topology")
	}
	if got := assignResp.Topology.Lines[0].Shifts[0].Slots[0].WorkerName; got != "Mori" {
		t.Fatalf("snapshot should resolve worker names, got %q", got)
	}

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	var startResp rosterapi.SessionResponse
	doJSON(t, http.MethodPost, ts.URL+"/v1/worklogs", rosterapi.StartSessionRequest{
		WorkerID: "w1", LineID: "line-a", ShiftType: "DAY", SlotIndex: 0,
		StartedAt: start.Format(time.RFC3339),
	}, &startResp)
	if startResp.Session.Status != "OPEN" {
		t.Fatalf("expected OPEN session: %+v", startResp.Session)
	}

	var endResp rosterapi.SessionResponse
	doJSON(t, http.MethodPost, ts.URL+"/v1/worklogs/"+startResp.Session.ID+"/end",
		rosterapi.EndSessionRequest{EndedAt: start.Add(8 * time.Hour).Format(time.RFC3339)}, &endResp)
	if endResp.Session.DurationMinutes != 480 {
		t.Fatalf("expected 480 minutes, got %d", endResp.Session.DurationMinutes)
	}
	if endResp.Session.Classification != "DAY_NORMAL" {
		t.Fatalf("expected DAY_NORMAL, got %s", endResp.Session.Classification)
	}

	memo := "line stoppage 20 minutes"
	var editResp rosterapi.SessionResponse
	doJSON(t, http.MethodPatch, ts.URL+"/v1/worklogs/"+startResp.Session.ID,
		rosterapi.EditSessionRequest{Memo: &memo, EditorID: "mgr-1"}, &editResp)
	if editResp.Session.Memo != memo {
		t.Fatalf("memo edit lost: %+v", editResp.Session)
	}
	if len(editResp.Audits) != 1 || editResp.Audits[0].Field != "memo" {
		t.Fatalf("expected memo audit, got %+v", editResp.Audits)
	}

	// The change feed saw the whole story.
	var poll rosterapi.PollEventsResponse
	doJSON(t, http.MethodGet, ts.URL+"/v1/events?max=10", nil, &poll)
	kinds := make(map[string]bool)
	for _, e := range poll.Events {
		kinds[e.Kind] = true
	}
	for _, want := range []string{"slot_assigned", "session_started", "session_closed"} {
		if !kinds[want] {
			t.Fatalf("feed missing %s event: %+v", want, poll.Events)
		}
	}
	doJSON(t, http.MethodPost, ts.URL+"/v1/events/ack", rosterapi.AckEventsRequest{ClaimID: poll.ClaimID}, nil)
}

func TestAssignConflictSurfacesLocation(t *testing.T) {
	ts := newTestServer(t)

	doJSON(t, http.MethodPost, ts.URL+"/v1/lines/line-a/shifts/DAY/slots/0/assign",
		rosterapi.AssignWorkerRequest{WorkerID: "w1"}, nil)

	status, body := doRaw(t, http.MethodPost, ts.URL+"/v1/lines/line-b/shifts/NIGHT/slots/1/assign",
		rosterapi.AssignWorkerRequest{WorkerID: "w1"})
	if status != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", status, body)
	}
	var conflict rosterapi.ConflictResponse
	if err := json.Unmarshal(body, &conflict); err != nil {
		t.Fatalf("decode conflict: %v", err)
	}
	if conflict.Code != "worker_already_assigned" || conflict.Location == "" {
		t.Fatalf("unexpected conflict payload: %+v", conflict)
	}

	// The same request with force succeeds and reports the cleared slot.
	var moved rosterapi.MutationResponse
	doJSON(t, http.MethodPost, ts.URL+"/v1/lines/line-b/shifts/NIGHT/slots/1/assign",
		rosterapi.AssignWorkerRequest{WorkerID: "w1", Force: true}, &moved)
	if moved.Cleared == nil || moved.Cleared.Label != "P1" {
		t.Fatalf("expected cleared slot in response: %+v", moved.Cleared)
	}
}

func TestForceCannotTakeOccupiedSlot(t *testing.T) {
	ts := newTestServer(t)

	doJSON(t, http.MethodPost, ts.URL+"/v1/lines/line-a/shifts/DAY/slots/0/assign",
		rosterapi.AssignWorkerRequest{WorkerID: "w1"}, nil)
	status, body := doRaw(t, http.MethodPost, ts.URL+"/v1/lines/line-a/shifts/DAY/slots/0/assign",
		rosterapi.AssignWorkerRequest{WorkerID: "w2", Force: true})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for occupied slot, got %d: %s", status, body)
	}
}

func TestStatusAndExtendedRollup(t *testing.T) {
	ts := newTestServer(t)

	doJSON(t, http.MethodPost, ts.URL+"/v1/lines/line-a/shifts/DAY/slots/0/assign",
		rosterapi.AssignWorkerRequest{WorkerID: "w1"}, nil)

	var statusResp rosterapi.MutationResponse
	doJSON(t, http.MethodPost, ts.URL+"/v1/lines/line-a/shifts/DAY/slots/0/status",
		rosterapi.UpdateStatusRequest{Status: "OVERTIME"}, &statusResp)
	if got := statusResp.Topology.Lines[0].Shifts[0].Status; got != "OVERTIME" {
		t.Fatalf("expected OVERTIME rollup, got %s", got)
	}

	var topo rosterapi.Topology
	doJSON(t, http.MethodPost, ts.URL+"/v1/lines/line-a/shifts/DAY/extended",
		rosterapi.SetExtendedRequest{Extended: true}, &topo)
	if got := topo.Lines[0].Shifts[0].Status; got != "EXTENDED" {
		t.Fatalf("expected EXTENDED rollup, got %s", got)
	}
}

func TestAuditEndpoint(t *testing.T) {
	ts := newTestServer(t)

	doJSON(t, http.MethodPost, ts.URL+"/v1/lines/line-a/shifts/DAY/slots/0/assign",
		rosterapi.AssignWorkerRequest{WorkerID: "w1", Actor: "mgr-1"}, nil)

	var audit rosterapi.ListAuditEventsResponse
	doJSON(t, http.MethodGet, ts.URL+"/v1/admin/audit?action=assign_worker", nil, &audit)
	if audit.Returned != 1 || audit.Events[0].Actor != "mgr-1" {
		t.Fatalf("unexpected audit listing: %+v", audit)
	}
	if audit.Events[0].EventHash == "" {
		t.Fatalf("audit events must carry the chain hash")
	}

	status, body := doRaw(t, http.MethodGet, ts.URL+"/v1/admin/audit?format=csv", nil)
	if status != http.StatusOK {
		t.Fatalf("csv export failed: %d", status)
	}
	if !bytes.Contains(body, []byte("assign_worker")) {
		t.Fatalf("csv export missing rows: %s", body)
	}
}

func TestUnknownRoutesAndMethods(t *testing.T) {
	ts := newTestServer(t)

	status, _ := doRaw(t, http.MethodGet, ts.URL+"/v1/lines/line-a/shifts/DAY/slots/0/assign", nil)
	if status != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", status)
	}
	status, _ = doRaw(t, http.MethodPost, ts.URL+"/v1/lines/line-a/shifts/SWING/slots/0/assign",
		rosterapi.AssignWorkerRequest{WorkerID: "w1"})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad shift type, got %d", status)
	}
	status, _ = doRaw(t, http.MethodPost, ts.URL+"/v1/lines/line-z/shifts/DAY/slots/0/assign",
		rosterapi.AssignWorkerRequest{WorkerID: "w1"})
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown line, got %d", status)
	}
}

func doJSON(t *testing.T, method, url string, reqBody any, respBody any) {
	t.Helper()
	status, body := doRaw(t, method, url, reqBody)
	if status >= 300 {
		t.Fatalf("request %s %s failed with status %d: %s", method, url, status, body)
	}
	if respBody != nil {
		if err := json.Unmarshal(body, respBody); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func doRaw(t *testing.T, method, url string, reqBody any) (int, []byte) {
	t.Helper()
	var body []byte
	if reqBody != nil {
		var err error
		body, err = json.Marshal(reqBody)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	out := new(bytes.Buffer)
	_, _ = out.ReadFrom(resp.Body)
	return resp.StatusCode, out.Bytes()
}
