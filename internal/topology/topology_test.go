package topology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/example/rosterd/internal/state"
)

func TestLoadFileAndBuild(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topology.yaml")
	raw := `
factory: north-plant
lines:
  - id: line-a
    name: Assembly A
    work_class: assembly
    slots: 3
  - id: line-b
    work_class: welding
    slots: 1
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Factory != "north-plant" || len(cfg.Lines) != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	lines, shifts, slots := NewBuilder().Build(cfg)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	// A line without a name falls back to its id.
	if lines[1].Name != "line-b" {
		t.Fatalf("name fallback failed: %q", lines[1].Name)
	}
	if lines[0].DisplayOrder != 0 || lines[1].DisplayOrder != 1 {
		t.Fatalf("display order should follow file order: %+v", lines)
	}
	if len(shifts) != 4 {
		t.Fatalf("expected one DAY and one NIGHT shift per line, got %d", len(shifts))
	}
	if shifts[0].ID != "line-a-DAY" || shifts[1].ID != "line-a-NIGHT" {
		t.Fatalf("unexpected shift ids: %+v", shifts[:2])
	}
	if len(slots) != 8 {
		t.Fatalf("expected 3+3+1+1 slots, got %d", len(slots))
	}
	for _, sl := range slots {
		if sl.WorkerID != "" || sl.WorkerStatus != state.WorkerStatusNormal {
			t.Fatalf("seed slots must be empty and NORMAL: %+v", sl)
		}
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"no lines", Config{}},
		{"empty id", Config{Lines: []LineConfig{{ID: " ", Slots: 2}}}},
		{"duplicate id", Config{Lines: []LineConfig{{ID: "a", Slots: 2}, {ID: "a", Slots: 2}}}},
		{"zero slots", Config{Lines: []LineConfig{{ID: "a", Slots: 0}}}},
		{"too many slots", Config{Lines: []LineConfig{{ID: "a", Slots: 11}}}},
	}
	for _, tc := range cases {
		if err := tc.cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestSlotLabel(t *testing.T) {
	if got := SlotLabel(0); got != "P1" {
		t.Fatalf("SlotLabel(0) = %s", got)
	}
	if got := SlotLabel(9); got != "P10" {
		t.Fatalf("SlotLabel(9) = %s", got)
	}
}
