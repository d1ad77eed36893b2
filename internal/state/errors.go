package state

import (
	"errors"
	"fmt"
)

var (
	ErrLineNotFound      = errors.New("line not found")
	ErrShiftNotFound     = errors.New("shift not found")
	ErrSlotNotFound      = errors.New("slot not found")
	ErrSlotOccupied      = errors.New("slot is occupied by another worker")
	ErrSlotEmpty         = errors.New("slot has no worker")
	ErrSessionNotFound   = errors.New("work session not found")
	ErrSessionNotOpen    = errors.New("work session is not open")
	ErrSessionNotClosed  = errors.New("work session is not closed")
	ErrOpenSessionExists = errors.New("worker already has an open work session")
)

// ConflictError reports that the worker is already placed in a different slot.
// Callers resolve the conflicting shift/line to build a human-readable location.
type ConflictError struct {
	WorkerID string
	Conflict SlotRecord
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("worker %s already placed in shift %s slot %d", e.WorkerID, e.Conflict.ShiftID, e.Conflict.Index)
}
