package observability

import (
	"strings"
	"testing"
)

func TestRenderPrometheus(t *testing.T) {
	r := NewRegistry()
	r.IncCounter("roster_assignments_total", map[string]string{"line_id": "line-a", "result": "ok"}, 3)
	r.SetGauge("roster_occupied_slots", map[string]string{"line_id": "line-a", "shift_type": "DAY"}, 2)

	out := r.RenderPrometheus()
	if !strings.Contains(out, `roster_assignments_total{line_id="line-a",result="ok"} 3`) {
		t.Fatalf("missing assignment counter in output: %s", out)
	}
	if !strings.Contains(out, `roster_occupied_slots{line_id="line-a",shift_type="DAY"} 2`) {
		t.Fatalf("missing occupancy gauge in output: %s", out)
	}
}
