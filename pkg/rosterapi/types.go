package rosterapi

import "time"

type AssignWorkerRequest struct {
	WorkerID string `json:"worker_id"`
	Force    bool   `json:"force,omitempty"`
	Actor    string `json:"actor,omitempty"`
}

type ReleaseSlotRequest struct {
	Actor string `json:"actor,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor,omitempty"`
}

type SetExtendedRequest struct {
	Extended bool   `json:"extended"`
	Actor    string `json:"actor,omitempty"`
}

type Slot struct {
	Index        int    `json:"index"`
	Label        string `json:"label"`
	WorkerID     string `json:"worker_id,omitempty"`
	WorkerName   string `json:"worker_name,omitempty"`
	WorkerStatus string `json:"worker_status,omitempty"`
}

type Shift struct {
	Type     string `json:"type"`
	Status   string `json:"status"`
	Extended bool   `json:"extended,omitempty"`
	Slots    []Slot `json:"slots"`
}

type Line struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	WorkClass    string  `json:"work_class"`
	DisplayOrder int     `json:"display_order"`
	Shifts       []Shift `json:"shifts"`
}

type Topology struct {
	Lines   []Line `json:"lines"`
	TakenAt string `json:"taken_at"`
}

type MutationResponse struct {
	Slot     Slot     `json:"slot"`
	Cleared  *Slot    `json:"cleared,omitempty"`
	Topology Topology `json:"topology"`
}

type ConflictResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	WorkerID string `json:"worker_id"`
	Location string `json:"location"`
}

type StartSessionRequest struct {
	WorkerID  string `json:"worker_id"`
	LineID    string `json:"line_id"`
	ShiftType string `json:"shift_type"`
	SlotIndex int    `json:"slot_index"`
	StartedAt string `json:"started_at,omitempty"`
}

type EndSessionRequest struct {
	EndedAt string `json:"ended_at,omitempty"`
}

type EditSessionRequest struct {
	StartedAt *string `json:"started_at,omitempty"`
	EndedAt   *string `json:"ended_at,omitempty"`
	Defective *bool   `json:"defective,omitempty"`
	Memo      *string `json:"memo,omitempty"`
	EditorID  string  `json:"editor_id"`
}

type Session struct {
	ID              string `json:"id"`
	WorkerID        string `json:"worker_id"`
	ShiftID         string `json:"shift_id"`
	SlotIndex       int    `json:"slot_index"`
	Status          string `json:"status"`
	StartedAt       string `json:"started_at"`
	EndedAt         string `json:"ended_at,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
	Classification  string `json:"classification,omitempty"`
	Defective       bool   `json:"defective"`
	Memo            string `json:"memo,omitempty"`
}

type SessionAudit struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`
	Field     string `json:"field"`
	OldValue  string `json:"old_value"`
	NewValue  string `json:"new_value"`
	EditorID  string `json:"editor_id"`
	ChangedAt string `json:"changed_at"`
}

type SessionResponse struct {
	Session Session        `json:"session"`
	Audits  []SessionAudit `json:"audits,omitempty"`
}

type FeedEvent struct {
	Kind      string `json:"kind"`
	LineID    string `json:"line_id,omitempty"`
	ShiftType string `json:"shift_type,omitempty"`
	SlotIndex int    `json:"slot_index,omitempty"`
	WorkerID  string `json:"worker_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	At        string `json:"at"`
}

type PollEventsResponse struct {
	ClaimID string      `json:"claim_id,omitempty"`
	Events  []FeedEvent `json:"events"`
}

type AckEventsRequest struct {
	ClaimID string `json:"claim_id"`
}

type AckEventsResponse struct {
	Accepted bool `json:"accepted"`
}

type AuditEvent struct {
	ID          int64  `json:"id"`
	Action      string `json:"action"`
	Actor       string `json:"actor"`
	RemoteAddr  string `json:"remote_addr,omitempty"`
	Resource    string `json:"resource,omitempty"`
	PayloadHash string `json:"payload_hash,omitempty"`
	PrevHash    string `json:"prev_hash,omitempty"`
	EventHash   string `json:"event_hash,omitempty"`
	Result      string `json:"result,omitempty"`
	Details     string `json:"details,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type ListAuditEventsResponse struct {
	Returned int          `json:"returned"`
	Limit    int          `json:"limit"`
	Offset   int          `json:"offset"`
	Events   []AuditEvent `json:"events"`
}

func RFC3339Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
