package api

import (
	"time"

	"github.com/example/rosterd/internal/assignment"
	"github.com/example/rosterd/internal/state"
	"github.com/example/rosterd/internal/topology"
	"github.com/example/rosterd/pkg/rosterapi"
)

func topologyPayload(snap assignment.Snapshot) rosterapi.Topology {
	out := rosterapi.Topology{
		Lines:   make([]rosterapi.Line, 0, len(snap.Lines)),
		TakenAt: snap.TakenAt.Format(time.RFC3339),
	}
	for _, line := range snap.Lines {
		lv := rosterapi.Line{
			ID:           line.ID,
			Name:         line.Name,
			WorkClass:    line.WorkClass,
			DisplayOrder: line.DisplayOrder,
			Shifts:       make([]rosterapi.Shift, 0, len(line.Shifts)),
		}
		for _, shift := range line.Shifts {
			sv := rosterapi.Shift{
				Type:     shift.Type,
				Status:   shift.Status,
				Extended: shift.Extended,
				Slots:    make([]rosterapi.Slot, 0, len(shift.Slots)),
			}
			for _, slot := range shift.Slots {
				sv.Slots = append(sv.Slots, rosterapi.Slot{
					Index:        slot.Index,
					Label:        slot.Label,
					WorkerID:     slot.WorkerID,
					WorkerName:   slot.WorkerName,
					WorkerStatus: slot.WorkerStatus,
				})
			}
			lv.Shifts = append(lv.Shifts, sv)
		}
		out.Lines = append(out.Lines, lv)
	}
	return out
}

func mutationPayload(res assignment.Result) rosterapi.MutationResponse {
	out := rosterapi.MutationResponse{
		Slot:     slotPayload(res.Slot),
		Topology: topologyPayload(res.Snapshot),
	}
	if res.Cleared != nil {
		cleared := slotPayload(*res.Cleared)
		out.Cleared = &cleared
	}
	return out
}

func slotPayload(slot state.SlotRecord) rosterapi.Slot {
	return rosterapi.Slot{
		Index:        slot.Index,
		Label:        topology.SlotLabel(slot.Index),
		WorkerID:     slot.WorkerID,
		WorkerStatus: slot.WorkerStatus,
	}
}

func sessionPayload(s state.SessionRecord) rosterapi.Session {
	out := rosterapi.Session{
		ID:              s.ID,
		WorkerID:        s.WorkerID,
		ShiftID:         s.ShiftID,
		SlotIndex:       s.SlotIndex,
		Status:          s.Status,
		StartedAt:       s.StartedAt.Format(time.RFC3339),
		DurationMinutes: s.DurationMinutes,
		Classification:  s.Classification,
		Defective:       s.Defective,
		Memo:            s.Memo,
	}
	if !s.EndedAt.IsZero() {
		out.EndedAt = s.EndedAt.Format(time.RFC3339)
	}
	return out
}

func auditPayload(audits []state.SessionAuditRecord) []rosterapi.SessionAudit {
	out := make([]rosterapi.SessionAudit, 0, len(audits))
	for _, a := range audits {
		out = append(out, rosterapi.SessionAudit{
			ID:        a.ID,
			SessionID: a.SessionID,
			Field:     a.Field,
			OldValue:  a.OldValue,
			NewValue:  a.NewValue,
			EditorID:  a.EditorID,
			ChangedAt: a.ChangedAt.Format(time.RFC3339),
		})
	}
	return out
}
