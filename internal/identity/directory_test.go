package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileRoster(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.yaml")
	raw := `
workers:
  - id: w1
    name: Mori
    role: MANAGER
  - id: w2
    name: Tanaka
  - id: w3
    name: Retired
    active: false
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	d, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ctx := context.Background()

	w, ok, err := d.GetWorker(ctx, "w1")
	if err != nil || !ok {
		t.Fatalf("get w1: ok=%t err=%v", ok, err)
	}
	if w.Role != RoleManager || !w.IsActive() {
		t.Fatalf("unexpected worker: %+v", w)
	}

	w, _, _ = d.GetWorker(ctx, "w2")
	if w.Role != RoleWorker {
		t.Fatalf("missing role should default to WORKER: %+v", w)
	}
	if !w.IsActive() {
		t.Fatalf("missing active flag should mean active")
	}

	w, _, _ = d.GetWorker(ctx, "w3")
	if w.IsActive() {
		t.Fatalf("explicit active:false must stick")
	}

	if _, ok, _ := d.GetWorker(ctx, "ghost"); ok {
		t.Fatalf("unknown worker should not resolve")
	}
}

func TestLoadFileRejectsEmptyID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.yaml")
	if err := os.WriteFile(path, []byte("workers:\n  - name: NoID\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected error for empty worker id")
	}
}

func TestUpsert(t *testing.T) {
	d := NewStaticDirectory()
	d.Upsert(Worker{ID: "w9", Name: "New Hire"})
	w, ok, _ := d.GetWorker(context.Background(), "w9")
	if !ok || w.Name != "New Hire" || w.Role != RoleWorker {
		t.Fatalf("upsert failed: %+v ok=%t", w, ok)
	}
}
