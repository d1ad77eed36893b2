package assignment

import "github.com/example/rosterd/internal/state"

const (
	ShiftStatusNormal   = "NORMAL"
	ShiftStatusOvertime = "OVERTIME"
	ShiftStatusExtended = "EXTENDED"
)

// AggregateStatus rolls the occupied slots' worker statuses up into the
// shift-level label. It is a pure function recomputed on every read; the
// result is never persisted.
func AggregateStatus(slots []state.SlotRecord, extended bool) string {
	anyOvertime := false
	for _, sl := range slots {
		if sl.WorkerID == "" {
			continue
		}
		if sl.WorkerStatus == state.WorkerStatusOvertime {
			anyOvertime = true
			break
		}
	}
	switch {
	case anyOvertime && extended:
		return ShiftStatusExtended
	case anyOvertime:
		return ShiftStatusOvertime
	default:
		return ShiftStatusNormal
	}
}
