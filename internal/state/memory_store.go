package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

type MemoryStore struct {
	mu            sync.Mutex
	lines         map[string]LineRecord
	shifts        map[string]ShiftRecord
	shiftByPair   map[string]string
	slots         map[SlotKey]SlotRecord
	slotByWorker  map[string]SlotKey
	sessions      map[string]SessionRecord
	openByWorker  map[string]string
	sessionAudits map[string][]SessionAuditRecord
	audits        []AuditEventRecord
	nextAuditID   int64
	nextEditID    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lines:         make(map[string]LineRecord),
		shifts:        make(map[string]ShiftRecord),
		shiftByPair:   make(map[string]string),
		slots:         make(map[SlotKey]SlotRecord),
		slotByWorker:  make(map[string]SlotKey),
		sessions:      make(map[string]SessionRecord),
		openByWorker:  make(map[string]string),
		sessionAudits: make(map[string][]SessionAuditRecord),
		audits:        make([]AuditEventRecord, 0, 128),
		nextAuditID:   1,
		nextEditID:    1,
	}
}

func pairKey(lineID, shiftType string) string {
	return lineID + "/" + shiftType
}

// SeedTopology replaces the whole topology. Existing placements are dropped.
func (m *MemoryStore) SeedTopology(_ context.Context, lines []LineRecord, shifts []ShiftRecord, slots []SlotRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	m.lines = make(map[string]LineRecord, len(lines))
	m.shifts = make(map[string]ShiftRecord, len(shifts))
	m.shiftByPair = make(map[string]string, len(shifts))
	m.slots = make(map[SlotKey]SlotRecord, len(slots))
	m.slotByWorker = make(map[string]SlotKey)
	for _, l := range lines {
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		l.UpdatedAt = now
		m.lines[l.ID] = l
	}
	for _, sh := range shifts {
		if sh.CreatedAt.IsZero() {
			sh.CreatedAt = now
		}
		sh.UpdatedAt = now
		m.shifts[sh.ID] = sh
		m.shiftByPair[pairKey(sh.LineID, sh.Type)] = sh.ID
	}
	for _, sl := range slots {
		sl.UpdatedAt = now
		m.slots[SlotKey{ShiftID: sl.ShiftID, Index: sl.Index}] = sl
		if sl.WorkerID != "" {
			m.slotByWorker[sl.WorkerID] = SlotKey{ShiftID: sl.ShiftID, Index: sl.Index}
		}
	}
	return nil
}

func (m *MemoryStore) ListLines(_ context.Context) ([]LineRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLinesLocked(), nil
}

func (m *MemoryStore) GetShift(_ context.Context, lineID, shiftType string) (ShiftRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.shiftByPair[pairKey(lineID, shiftType)]
	if !ok {
		return ShiftRecord{}, false, nil
	}
	sh, ok := m.shifts[id]
	return sh, ok, nil
}

func (m *MemoryStore) GetShiftByID(_ context.Context, shiftID string) (ShiftRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sh, ok := m.shifts[shiftID]
	return sh, ok, nil
}

func (m *MemoryStore) SetShiftExtended(_ context.Context, shiftID string, extended bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sh, ok := m.shifts[shiftID]
	if !ok {
		return ErrShiftNotFound
	}
	sh.Extended = extended
	sh.UpdatedAt = time.Now().UTC()
	m.shifts[shiftID] = sh
	return nil
}

func (m *MemoryStore) GetSlot(_ context.Context, key SlotKey) (SlotRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sl, ok := m.slots[key]
	return sl, ok, nil
}

func (m *MemoryStore) ListSlotsByShift(_ context.Context, shiftID string) ([]SlotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SlotRecord, 0, 8)
	for _, sl := range m.slots {
		if sl.ShiftID == shiftID {
			out = append(out, sl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (m *MemoryStore) FindSlotByWorker(_ context.Context, workerID string) (SlotRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.slotByWorker[workerID]
	if !ok {
		return SlotRecord{}, false, nil
	}
	sl, ok := m.slots[key]
	return sl, ok, nil
}

// PlaceWorker sets the slot's worker as one atomic step. The worker's existing
// placement elsewhere, if any, is either a ConflictError (force=false) or is
// cleared in the same step (force=true). Target occupancy by a different worker
// always wins over force; nothing is mutated on any error path.
func (m *MemoryStore) PlaceWorker(_ context.Context, key SlotKey, workerID string, force bool) (SlotRecord, *SlotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.slots[key]
	if !ok {
		return SlotRecord{}, nil, ErrSlotNotFound
	}
	now := time.Now().UTC()

	other, hasOther := m.slotByWorker[workerID]
	if hasOther && other == key {
		// Idempotent re-placement of the same worker. Status still resets.
		target.WorkerStatus = WorkerStatusNormal
		target.UpdatedAt = now
		m.slots[key] = target
		return target, nil, nil
	}
	if hasOther && !force {
		conflict := m.slots[other]
		return SlotRecord{}, nil, &ConflictError{WorkerID: workerID, Conflict: conflict}
	}
	if target.WorkerID != "" && target.WorkerID != workerID {
		return SlotRecord{}, nil, ErrSlotOccupied
	}

	var cleared *SlotRecord
	if hasOther {
		prev := m.slots[other]
		prev.WorkerID = ""
		prev.WorkerStatus = WorkerStatusNormal
		prev.UpdatedAt = now
		m.slots[other] = prev
		c := prev
		cleared = &c
	}
	target.WorkerID = workerID
	target.WorkerStatus = WorkerStatusNormal
	target.UpdatedAt = now
	m.slots[key] = target
	m.slotByWorker[workerID] = key
	return target, cleared, nil
}

func (m *MemoryStore) ClearSlot(_ context.Context, key SlotKey) (SlotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sl, ok := m.slots[key]
	if !ok {
		return SlotRecord{}, ErrSlotNotFound
	}
	if sl.WorkerID == "" {
		return SlotRecord{}, ErrSlotEmpty
	}
	delete(m.slotByWorker, sl.WorkerID)
	sl.WorkerID = ""
	sl.WorkerStatus = WorkerStatusNormal
	sl.UpdatedAt = time.Now().UTC()
	m.slots[key] = sl
	return sl, nil
}

func (m *MemoryStore) SetSlotStatus(_ context.Context, key SlotKey, status string) (SlotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sl, ok := m.slots[key]
	if !ok {
		return SlotRecord{}, ErrSlotNotFound
	}
	if sl.WorkerID == "" {
		return SlotRecord{}, ErrSlotEmpty
	}
	sl.WorkerStatus = status
	sl.UpdatedAt = time.Now().UTC()
	m.slots[key] = sl
	return sl, nil
}

func (m *MemoryStore) Snapshot(_ context.Context) ([]LineRecord, []ShiftRecord, []SlotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.sortedLinesLocked()
	shifts := make([]ShiftRecord, 0, len(m.shifts))
	for _, sh := range m.shifts {
		shifts = append(shifts, sh)
	}
	sort.Slice(shifts, func(i, j int) bool {
		if shifts[i].LineID != shifts[j].LineID {
			return shifts[i].LineID < shifts[j].LineID
		}
		return shifts[i].Type < shifts[j].Type
	})
	slots := make([]SlotRecord, 0, len(m.slots))
	for _, sl := range m.slots {
		slots = append(slots, sl)
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].ShiftID != slots[j].ShiftID {
			return slots[i].ShiftID < slots[j].ShiftID
		}
		return slots[i].Index < slots[j].Index
	})
	return lines, shifts, slots, nil
}

func (m *MemoryStore) sortedLinesLocked() []LineRecord {
	out := make([]LineRecord, 0, len(m.lines))
	for _, l := range m.lines {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *MemoryStore) CreateSession(_ context.Context, session SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, open := m.openByWorker[session.WorkerID]; open {
		return ErrOpenSessionExists
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	m.sessions[session.ID] = session
	if session.Status == SessionOpen {
		m.openByWorker[session.WorkerID] = session.ID
	}
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (SessionRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok, nil
}

func (m *MemoryStore) FindOpenSessionByWorker(_ context.Context, workerID string) (SessionRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.openByWorker[workerID]
	if !ok {
		return SessionRecord{}, false, nil
	}
	s, ok := m.sessions[id]
	return s, ok, nil
}

// UpdateSession applies the mutation and its audit rows as one atomic step.
func (m *MemoryStore) UpdateSession(_ context.Context, session SessionRecord, audits []SessionAuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.sessions[session.ID]
	if !ok {
		return ErrSessionNotFound
	}
	now := time.Now().UTC()
	session.CreatedAt = prev.CreatedAt
	session.UpdatedAt = now
	m.sessions[session.ID] = session
	if prev.Status == SessionOpen && session.Status != SessionOpen {
		delete(m.openByWorker, prev.WorkerID)
	}
	for _, a := range audits {
		a.SessionID = session.ID
		a.ID = m.nextEditID
		m.nextEditID++
		if a.ChangedAt.IsZero() {
			a.ChangedAt = now
		}
		m.sessionAudits[session.ID] = append(m.sessionAudits[session.ID], a)
	}
	return nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if s.Status == SessionOpen {
		delete(m.openByWorker, s.WorkerID)
	}
	delete(m.sessions, sessionID)
	delete(m.sessionAudits, sessionID)
	return nil
}

func (m *MemoryStore) ListSessionAudits(_ context.Context, sessionID string) ([]SessionAuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.sessionAudits[sessionID]
	out := make([]SessionAuditRecord, len(src))
	copy(out, src)
	return out, nil
}

func (m *MemoryStore) AppendAuditEvent(_ context.Context, event AuditEventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if len(m.audits) > 0 {
		event.PrevHash = m.audits[len(m.audits)-1].EventHash
	}
	event.EventHash = computeAuditHash(event)
	event.ID = m.nextAuditID
	m.nextAuditID++
	m.audits = append(m.audits, event)
	return nil
}

func (m *MemoryStore) ListAuditEvents(_ context.Context, query AuditQuery) ([]AuditEventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit := query.Limit
	offset := query.Offset
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	filtered := make([]AuditEventRecord, 0, len(m.audits))
	for _, a := range m.audits {
		if query.Action != "" && a.Action != query.Action {
			continue
		}
		if query.Actor != "" && a.Actor != query.Actor {
			continue
		}
		if query.Result != "" && a.Result != query.Result {
			continue
		}
		if !query.From.IsZero() && a.CreatedAt.Before(query.From) {
			continue
		}
		if !query.To.IsZero() && a.CreatedAt.After(query.To) {
			continue
		}
		filtered = append(filtered, a)
	}
	if offset > len(filtered) {
		offset = len(filtered)
	}
	items := filtered[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	out := make([]AuditEventRecord, 0, len(items))
	// Newest first for operator-facing endpoint.
	for i := len(items) - 1; i >= 0; i-- {
		out = append(out, items[i])
	}
	return out, nil
}

func computeAuditHash(event AuditEventRecord) string {
	payload := map[string]any{
		"action":       event.Action,
		"actor":        event.Actor,
		"remote_addr":  event.RemoteAddr,
		"resource":     event.Resource,
		"payload_hash": event.PayloadHash,
		"prev_hash":    event.PrevHash,
		"result":       event.Result,
		"details":      event.Details,
		"created_at":   event.CreatedAt.UnixNano(),
	}
	b, _ := json.Marshal(payload)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
