package assignment

import (
	"context"
	"sort"
	"time"

	"github.com/example/rosterd/internal/observability"
	"github.com/example/rosterd/internal/state"
	"github.com/example/rosterd/internal/topology"
)

// Snapshot is the board view a dashboard renders: every line, both shifts,
// every slot, taken from one consistent read.
type Snapshot struct {
	Lines   []LineView
	TakenAt time.Time
}

type LineView struct {
	ID           string
	Name         string
	WorkClass    string
	DisplayOrder int
	Shifts       []ShiftView
}

type ShiftView struct {
	Type     string
	Status   string
	Extended bool
	Slots    []SlotView
}

type SlotView struct {
	Index        int
	Label        string
	WorkerID     string
	WorkerName   string
	WorkerStatus string
}

// BuildSnapshot assembles the full topology view. Mutating operations call
// it inside their own flow so every response carries the post-change board.
func (m *Manager) BuildSnapshot(ctx context.Context) (Snapshot, error) {
	lines, shifts, slots, err := m.store.Snapshot(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	slotsByShift := make(map[string][]state.SlotRecord)
	for _, s := range slots {
		slotsByShift[s.ShiftID] = append(slotsByShift[s.ShiftID], s)
	}
	shiftsByLine := make(map[string][]state.ShiftRecord)
	for _, sh := range shifts {
		shiftsByLine[sh.LineID] = append(shiftsByLine[sh.LineID], sh)
	}

	names := make(map[string]string)
	occupied := 0
	snap := Snapshot{TakenAt: time.Now().UTC()}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].DisplayOrder != lines[j].DisplayOrder {
			return lines[i].DisplayOrder < lines[j].DisplayOrder
		}
		return lines[i].ID < lines[j].ID
	})
	for _, line := range lines {
		lv := LineView{
			ID:           line.ID,
			Name:         line.Name,
			WorkClass:    line.WorkClass,
			DisplayOrder: line.DisplayOrder,
		}
		lineShifts := shiftsByLine[line.ID]
		sort.Slice(lineShifts, func(i, j int) bool {
			// DAY renders before NIGHT.
			return lineShifts[i].Type < lineShifts[j].Type
		})
		for _, shift := range lineShifts {
			shiftSlots := slotsByShift[shift.ID]
			sort.Slice(shiftSlots, func(i, j int) bool { return shiftSlots[i].Index < shiftSlots[j].Index })
			sv := ShiftView{
				Type:     shift.Type,
				Status:   AggregateStatus(shiftSlots, shift.Extended),
				Extended: shift.Extended,
			}
			for _, slot := range shiftSlots {
				view := SlotView{
					Index:        slot.Index,
					Label:        topology.SlotLabel(slot.Index),
					WorkerID:     slot.WorkerID,
					WorkerStatus: slot.WorkerStatus,
				}
				if slot.WorkerID != "" {
					occupied++
					view.WorkerName = m.workerName(ctx, names, slot.WorkerID)
				}
				sv.Slots = append(sv.Slots, view)
			}
			lv.Shifts = append(lv.Shifts, sv)
		}
		snap.Lines = append(snap.Lines, lv)
	}
	observability.Default.SetGauge("roster_occupied_slots", nil, float64(occupied))
	return snap, nil
}

func (m *Manager) workerName(ctx context.Context, cache map[string]string, workerID string) string {
	if name, ok := cache[workerID]; ok {
		return name
	}
	name := ""
	if worker, ok, err := m.dir.GetWorker(ctx, workerID); err == nil && ok {
		name = worker.Name
	}
	cache[workerID] = name
	return name
}
