package topology

import (
	"fmt"

	"github.com/example/rosterd/internal/state"
)

// Builder compiles a factory config into seed records for the state layer.
// Every line gets exactly one DAY and one NIGHT shift, each with the line's
// slot count of empty slots.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Build(cfg Config) ([]state.LineRecord, []state.ShiftRecord, []state.SlotRecord) {
	lines := make([]state.LineRecord, 0, len(cfg.Lines))
	shifts := make([]state.ShiftRecord, 0, len(cfg.Lines)*2)
	slots := make([]state.SlotRecord, 0, len(cfg.Lines)*2*4)
	for order, lc := range cfg.Lines {
		name := lc.Name
		if name == "" {
			name = lc.ID
		}
		lines = append(lines, state.LineRecord{
			ID:           lc.ID,
			Name:         name,
			WorkClass:    lc.WorkClass,
			DisplayOrder: order,
		})
		for _, shiftType := range []string{state.ShiftDay, state.ShiftNight} {
			shiftID := ShiftID(lc.ID, shiftType)
			shifts = append(shifts, state.ShiftRecord{
				ID:        shiftID,
				LineID:    lc.ID,
				Type:      shiftType,
				SlotCount: lc.Slots,
			})
			for i := 0; i < lc.Slots; i++ {
				slots = append(slots, state.SlotRecord{
					ShiftID:      shiftID,
					Index:        i,
					WorkerStatus: state.WorkerStatusNormal,
				})
			}
		}
	}
	return lines, shifts, slots
}

func ShiftID(lineID, shiftType string) string {
	return fmt.Sprintf("%s-%s", lineID, shiftType)
}

// SlotLabel maps the stable 0-based index to the operator-facing "P{n}" name.
func SlotLabel(index int) string {
	return fmt.Sprintf("P%d", index+1)
}
