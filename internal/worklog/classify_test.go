package worklog

import "testing"

func TestClassifyDefaults(t *testing.T) {
	w := DefaultWindows()
	cases := []struct {
		name     string
		hour     int
		minutes  int
		expected string
	}{
		{"midday", 13, 480, ClassDayNormal},
		{"day start boundary", 8, 60, ClassDayNormal},
		{"day end boundary", 17, 60, ClassUnclassified},
		{"evening gap", 17, 120, ClassUnclassified},
		{"day overtime", 18, 120, ClassDayOvertime},
		{"day overtime end", 20, 120, ClassNightNormal},
		{"deep night wraps midnight", 2, 480, ClassNightNormal},
		{"night end boundary", 5, 60, ClassUnclassified},
		{"morning gap", 5, 120, ClassUnclassified},
		{"night overtime", 6, 120, ClassNightOvertime},
		{"night overtime end", 8, 120, ClassDayNormal},
		{"too short", 13, 3, ClassUnclassified},
		{"zero duration", 13, 0, ClassUnclassified},
	}
	for _, tc := range cases {
		if got := w.Classify(tc.hour, tc.minutes); got != tc.expected {
			t.Fatalf("%s: Classify(%d, %d) = %s, want %s", tc.name, tc.hour, tc.minutes, got, tc.expected)
		}
	}
}

func TestHourWithinWrap(t *testing.T) {
	if !hourWithin(23, 20, 5) {
		t.Fatalf("23h should fall in wrapped window [20,5)")
	}
	if !hourWithin(4, 20, 5) {
		t.Fatalf("4h should fall in wrapped window [20,5)")
	}
	if hourWithin(5, 20, 5) {
		t.Fatalf("window end is exclusive")
	}
	if hourWithin(12, 12, 12) {
		t.Fatalf("empty window must match nothing")
	}
}

func TestWindowsValidate(t *testing.T) {
	w := DefaultWindows()
	if err := w.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	w.DayEndHour = 24
	if err := w.Validate(); err == nil {
		t.Fatalf("expected out-of-range error")
	}
	w = DefaultWindows()
	w.MinSessionMinutes = -1
	if err := w.Validate(); err == nil {
		t.Fatalf("expected negative minimum error")
	}
}
