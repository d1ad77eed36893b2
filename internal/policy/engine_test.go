package policy

import "testing"

func TestEvaluatePlacementDenyRule(t *testing.T) {
	engine := NewFromConfig(Config{
		DefaultAction: "allow",
		Rules: []Rule{
			{
				Name:   "no-trainees-on-welding",
				Effect: "deny",
				Reason: "welding_requires_certification",
				Match: RuleMatch{
					WorkerRole: "worker",
					WorkClass:  "welding",
				},
			},
		},
	})

	d := engine.EvaluatePlacement(PlacementInput{
		WorkerRole:   "worker",
		WorkerActive: true,
		WorkClass:    "welding",
		LineID:       "line-a",
		ShiftType:    "DAY",
	})
	if d.Allowed {
		t.Fatalf("expected deny decision")
	}
	if d.ReasonCode != "welding_requires_certification" {
		t.Fatalf("unexpected reason code: %s", d.ReasonCode)
	}

	d = engine.EvaluatePlacement(PlacementInput{
		WorkerRole:   "worker",
		WorkerActive: true,
		WorkClass:    "assembly",
		LineID:       "line-a",
		ShiftType:    "DAY",
	})
	if !d.Allowed {
		t.Fatalf("expected allow decision, got reason %s", d.ReasonCode)
	}
}

func TestEvaluatePlacementInactiveWorkerAlwaysDenied(t *testing.T) {
	engine := NewFromConfig(Config{DefaultAction: "allow"})
	d := engine.EvaluatePlacement(PlacementInput{
		WorkerRole:   "manager",
		WorkerActive: false,
	})
	if d.Allowed {
		t.Fatalf("expected inactive worker to be denied")
	}
	if d.ReasonCode != "worker_inactive" {
		t.Fatalf("unexpected reason code: %s", d.ReasonCode)
	}
}

func TestDefaultDeny(t *testing.T) {
	engine := NewFromConfig(Config{DefaultAction: "deny"})
	if engine.IsNoop() {
		t.Fatalf("default deny engine must not be a noop")
	}
	d := engine.EvaluatePlacement(PlacementInput{WorkerRole: "worker", WorkerActive: true})
	if d.Allowed {
		t.Fatalf("expected default deny")
	}
}

func TestAllowAllIsNoop(t *testing.T) {
	if !NewAllowAll().IsNoop() {
		t.Fatalf("allow-all engine should be a noop")
	}
}
