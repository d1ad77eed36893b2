package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/example/rosterd/db/migrations"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if !hasSQLDriver("pgx") {
		return nil, errors.New("pgx SQL driver is not linked; import github.com/jackc/pgx/v5/stdlib")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	store := &PostgresStore{db: db}
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func hasSQLDriver(name string) bool {
	for _, d := range sql.Drivers() {
		if d == name {
			return true
		}
	}
	return false
}

func (p *PostgresStore) ensureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL)`); err != nil {
		return err
	}
	files, err := listMigrationFiles(migrations.Files)
	if err != nil {
		return err
	}
	for _, file := range files {
		applied, err := p.isMigrationApplied(ctx, file)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := p.applyMigration(ctx, file); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresStore) isMigrationApplied(ctx context.Context, version string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	return exists, err
}

func (p *PostgresStore) applyMigration(ctx context.Context, file string) error {
	sqlBytes, err := migrations.Files.ReadFile(file)
	if err != nil {
		return err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("apply migration %s: %w", file, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)`, file, time.Now().UTC()); err != nil {
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}

func listMigrationFiles(migFS fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(migFS, ".")
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

// SeedTopology upserts the configured topology. Existing placements survive a
// restart; slots are only created, never overwritten.
func (p *PostgresStore) SeedTopology(ctx context.Context, lines []LineRecord, shifts []ShiftRecord, slots []SlotRecord) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, l := range lines {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lines (id, name, work_class, display_order, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$5)
			 ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, work_class=EXCLUDED.work_class, display_order=EXCLUDED.display_order, updated_at=EXCLUDED.updated_at`,
			l.ID, l.Name, l.WorkClass, l.DisplayOrder, now,
		); err != nil {
			return err
		}
	}
	for _, sh := range shifts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO shifts (id, line_id, type, slot_count, extended, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$6)
			 ON CONFLICT (line_id, type) DO UPDATE SET slot_count=EXCLUDED.slot_count, updated_at=EXCLUDED.updated_at`,
			sh.ID, sh.LineID, sh.Type, sh.SlotCount, sh.Extended, now,
		); err != nil {
			return err
		}
	}
	for _, sl := range slots {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO slots (shift_id, slot_index, worker_id, worker_status, updated_at)
			 VALUES ($1,$2,$3,$4,$5)
			 ON CONFLICT (shift_id, slot_index) DO NOTHING`,
			sl.ShiftID, sl.Index, sl.WorkerID, sl.WorkerStatus, now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) ListLines(ctx context.Context) ([]LineRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, name, work_class, display_order, created_at, updated_at
		 FROM lines ORDER BY display_order, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]LineRecord, 0, 8)
	for rows.Next() {
		var l LineRecord
		if err := rows.Scan(&l.ID, &l.Name, &l.WorkClass, &l.DisplayOrder, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetShift(ctx context.Context, lineID, shiftType string) (ShiftRecord, bool, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, line_id, type, slot_count, extended, created_at, updated_at
		 FROM shifts WHERE line_id=$1 AND type=$2`, lineID, shiftType,
	)
	return scanShift(row)
}

func (p *PostgresStore) GetShiftByID(ctx context.Context, shiftID string) (ShiftRecord, bool, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, line_id, type, slot_count, extended, created_at, updated_at
		 FROM shifts WHERE id=$1`, shiftID,
	)
	return scanShift(row)
}

func scanShift(row *sql.Row) (ShiftRecord, bool, error) {
	var sh ShiftRecord
	err := row.Scan(&sh.ID, &sh.LineID, &sh.Type, &sh.SlotCount, &sh.Extended, &sh.CreatedAt, &sh.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ShiftRecord{}, false, nil
	}
	if err != nil {
		return ShiftRecord{}, false, err
	}
	return sh, true, nil
}

func (p *PostgresStore) SetShiftExtended(ctx context.Context, shiftID string, extended bool) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE shifts SET extended=$2, updated_at=$3 WHERE id=$1`,
		shiftID, extended, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrShiftNotFound
	}
	return nil
}

func (p *PostgresStore) GetSlot(ctx context.Context, key SlotKey) (SlotRecord, bool, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT shift_id, slot_index, worker_id, worker_status, updated_at
		 FROM slots WHERE shift_id=$1 AND slot_index=$2`, key.ShiftID, key.Index,
	)
	var sl SlotRecord
	err := row.Scan(&sl.ShiftID, &sl.Index, &sl.WorkerID, &sl.WorkerStatus, &sl.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SlotRecord{}, false, nil
	}
	if err != nil {
		return SlotRecord{}, false, err
	}
	return sl, true, nil
}

func (p *PostgresStore) ListSlotsByShift(ctx context.Context, shiftID string) ([]SlotRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT shift_id, slot_index, worker_id, worker_status, updated_at
		 FROM slots WHERE shift_id=$1 ORDER BY slot_index`, shiftID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSlots(rows)
}

func (p *PostgresStore) FindSlotByWorker(ctx context.Context, workerID string) (SlotRecord, bool, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT shift_id, slot_index, worker_id, worker_status, updated_at
		 FROM slots WHERE worker_id=$1`, workerID,
	)
	var sl SlotRecord
	err := row.Scan(&sl.ShiftID, &sl.Index, &sl.WorkerID, &sl.WorkerStatus, &sl.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SlotRecord{}, false, nil
	}
	if err != nil {
		return SlotRecord{}, false, err
	}
	return sl, true, nil
}

// PlaceWorker runs the conflict scan, the optional forced clear and the
// occupy as one transaction. A per-worker advisory lock serializes competing
// placements of the same worker; the partial unique index on slots.worker_id
// backs the invariant even against out-of-band writers.
func (p *PostgresStore) PlaceWorker(ctx context.Context, key SlotKey, workerID string, force bool) (SlotRecord, *SlotRecord, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return SlotRecord{}, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, workerID); err != nil {
		return SlotRecord{}, nil, err
	}

	var target SlotRecord
	err = tx.QueryRowContext(ctx,
		`SELECT shift_id, slot_index, worker_id, worker_status, updated_at
		 FROM slots WHERE shift_id=$1 AND slot_index=$2 FOR UPDATE`,
		key.ShiftID, key.Index,
	).Scan(&target.ShiftID, &target.Index, &target.WorkerID, &target.WorkerStatus, &target.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SlotRecord{}, nil, ErrSlotNotFound
	}
	if err != nil {
		return SlotRecord{}, nil, err
	}

	now := time.Now().UTC()
	if target.WorkerID == workerID {
		if _, err := tx.ExecContext(ctx,
			`UPDATE slots SET worker_status=$3, updated_at=$4 WHERE shift_id=$1 AND slot_index=$2`,
			key.ShiftID, key.Index, WorkerStatusNormal, now,
		); err != nil {
			return SlotRecord{}, nil, err
		}
		target.WorkerStatus = WorkerStatusNormal
		target.UpdatedAt = now
		return target, nil, tx.Commit()
	}

	var conflict SlotRecord
	hasConflict := true
	err = tx.QueryRowContext(ctx,
		`SELECT shift_id, slot_index, worker_id, worker_status, updated_at
		 FROM slots WHERE worker_id=$1 FOR UPDATE`, workerID,
	).Scan(&conflict.ShiftID, &conflict.Index, &conflict.WorkerID, &conflict.WorkerStatus, &conflict.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		hasConflict = false
	} else if err != nil {
		return SlotRecord{}, nil, err
	}

	if hasConflict && !force {
		return SlotRecord{}, nil, &ConflictError{WorkerID: workerID, Conflict: conflict}
	}
	if target.WorkerID != "" {
		return SlotRecord{}, nil, ErrSlotOccupied
	}

	var cleared *SlotRecord
	if hasConflict {
		if _, err := tx.ExecContext(ctx,
			`UPDATE slots SET worker_id='', worker_status=$3, updated_at=$4 WHERE shift_id=$1 AND slot_index=$2`,
			conflict.ShiftID, conflict.Index, WorkerStatusNormal, now,
		); err != nil {
			return SlotRecord{}, nil, err
		}
		conflict.WorkerID = ""
		conflict.WorkerStatus = WorkerStatusNormal
		conflict.UpdatedAt = now
		c := conflict
		cleared = &c
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE slots SET worker_id=$3, worker_status=$4, updated_at=$5 WHERE shift_id=$1 AND slot_index=$2`,
		key.ShiftID, key.Index, workerID, WorkerStatusNormal, now,
	); err != nil {
		return SlotRecord{}, nil, err
	}
	target.WorkerID = workerID
	target.WorkerStatus = WorkerStatusNormal
	target.UpdatedAt = now
	return target, cleared, tx.Commit()
}

func (p *PostgresStore) ClearSlot(ctx context.Context, key SlotKey) (SlotRecord, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return SlotRecord{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var sl SlotRecord
	err = tx.QueryRowContext(ctx,
		`SELECT shift_id, slot_index, worker_id, worker_status, updated_at
		 FROM slots WHERE shift_id=$1 AND slot_index=$2 FOR UPDATE`,
		key.ShiftID, key.Index,
	).Scan(&sl.ShiftID, &sl.Index, &sl.WorkerID, &sl.WorkerStatus, &sl.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SlotRecord{}, ErrSlotNotFound
	}
	if err != nil {
		return SlotRecord{}, err
	}
	if sl.WorkerID == "" {
		return SlotRecord{}, ErrSlotEmpty
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE slots SET worker_id='', worker_status=$3, updated_at=$4 WHERE shift_id=$1 AND slot_index=$2`,
		key.ShiftID, key.Index, WorkerStatusNormal, now,
	); err != nil {
		return SlotRecord{}, err
	}
	sl.WorkerID = ""
	sl.WorkerStatus = WorkerStatusNormal
	sl.UpdatedAt = now
	return sl, tx.Commit()
}

func (p *PostgresStore) SetSlotStatus(ctx context.Context, key SlotKey, status string) (SlotRecord, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return SlotRecord{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var sl SlotRecord
	err = tx.QueryRowContext(ctx,
		`SELECT shift_id, slot_index, worker_id, worker_status, updated_at
		 FROM slots WHERE shift_id=$1 AND slot_index=$2 FOR UPDATE`,
		key.ShiftID, key.Index,
	).Scan(&sl.ShiftID, &sl.Index, &sl.WorkerID, &sl.WorkerStatus, &sl.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SlotRecord{}, ErrSlotNotFound
	}
	if err != nil {
		return SlotRecord{}, err
	}
	if sl.WorkerID == "" {
		return SlotRecord{}, ErrSlotEmpty
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE slots SET worker_status=$3, updated_at=$4 WHERE shift_id=$1 AND slot_index=$2`,
		key.ShiftID, key.Index, status, now,
	); err != nil {
		return SlotRecord{}, err
	}
	sl.WorkerStatus = status
	sl.UpdatedAt = now
	return sl, tx.Commit()
}

// Snapshot reads lines, shifts and slots inside one repeatable-read
// transaction so callers never see a torn view across tables.
func (p *PostgresStore) Snapshot(ctx context.Context) ([]LineRecord, []ShiftRecord, []SlotRecord, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	lineRows, err := tx.QueryContext(ctx,
		`SELECT id, name, work_class, display_order, created_at, updated_at FROM lines ORDER BY display_order, id`,
	)
	if err != nil {
		return nil, nil, nil, err
	}
	lines := make([]LineRecord, 0, 8)
	for lineRows.Next() {
		var l LineRecord
		if err := lineRows.Scan(&l.ID, &l.Name, &l.WorkClass, &l.DisplayOrder, &l.CreatedAt, &l.UpdatedAt); err != nil {
			lineRows.Close()
			return nil, nil, nil, err
		}
		lines = append(lines, l)
	}
	lineRows.Close()
	if err := lineRows.Err(); err != nil {
		return nil, nil, nil, err
	}

	shiftRows, err := tx.QueryContext(ctx,
		`SELECT id, line_id, type, slot_count, extended, created_at, updated_at FROM shifts ORDER BY line_id, type`,
	)
	if err != nil {
		return nil, nil, nil, err
	}
	shifts := make([]ShiftRecord, 0, len(lines)*2)
	for shiftRows.Next() {
		var sh ShiftRecord
		if err := shiftRows.Scan(&sh.ID, &sh.LineID, &sh.Type, &sh.SlotCount, &sh.Extended, &sh.CreatedAt, &sh.UpdatedAt); err != nil {
			shiftRows.Close()
			return nil, nil, nil, err
		}
		shifts = append(shifts, sh)
	}
	shiftRows.Close()
	if err := shiftRows.Err(); err != nil {
		return nil, nil, nil, err
	}

	slotRows, err := tx.QueryContext(ctx,
		`SELECT shift_id, slot_index, worker_id, worker_status, updated_at FROM slots ORDER BY shift_id, slot_index`,
	)
	if err != nil {
		return nil, nil, nil, err
	}
	slots, err := collectSlots(slotRows)
	slotRows.Close()
	if err != nil {
		return nil, nil, nil, err
	}
	return lines, shifts, slots, tx.Commit()
}

func (p *PostgresStore) CreateSession(ctx context.Context, session SessionRecord) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "worklog:"+session.WorkerID); err != nil {
		return err
	}
	var open bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM work_sessions WHERE worker_id=$1 AND status=$2)`,
		session.WorkerID, SessionOpen,
	).Scan(&open); err != nil {
		return err
	}
	if open {
		return ErrOpenSessionExists
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO work_sessions (id, worker_id, shift_id, slot_index, status, started_at, ended_at, duration_minutes, classification, defective, memo, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		session.ID, session.WorkerID, session.ShiftID, session.SlotIndex, session.Status, session.StartedAt, nullTime(session.EndedAt),
		session.DurationMinutes, session.Classification, session.Defective, session.Memo, session.CreatedAt, now,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) GetSession(ctx context.Context, sessionID string) (SessionRecord, bool, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, worker_id, shift_id, slot_index, status, started_at, ended_at, duration_minutes, classification, defective, memo, created_at, updated_at
		 FROM work_sessions WHERE id=$1`, sessionID,
	)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, false, nil
	}
	if err != nil {
		return SessionRecord{}, false, err
	}
	return s, true, nil
}

func (p *PostgresStore) FindOpenSessionByWorker(ctx context.Context, workerID string) (SessionRecord, bool, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, worker_id, shift_id, slot_index, status, started_at, ended_at, duration_minutes, classification, defective, memo, created_at, updated_at
		 FROM work_sessions WHERE worker_id=$1 AND status=$2`, workerID, SessionOpen,
	)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, false, nil
	}
	if err != nil {
		return SessionRecord{}, false, err
	}
	return s, true, nil
}

func (p *PostgresStore) UpdateSession(ctx context.Context, session SessionRecord, audits []SessionAuditRecord) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var lockedID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM work_sessions WHERE id=$1 FOR UPDATE`, session.ID,
	).Scan(&lockedID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE work_sessions SET status=$2, started_at=$3, ended_at=$4, duration_minutes=$5, classification=$6, defective=$7, memo=$8, updated_at=$9
		 WHERE id=$1`,
		session.ID, session.Status, session.StartedAt, nullTime(session.EndedAt), session.DurationMinutes, session.Classification, session.Defective, session.Memo, now,
	); err != nil {
		return err
	}
	for _, a := range audits {
		changedAt := a.ChangedAt
		if changedAt.IsZero() {
			changedAt = now
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO work_session_audits (session_id, field, old_value, new_value, editor_id, changed_at)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			session.ID, a.Field, a.OldValue, a.NewValue, a.EditorID, changedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	// Audit rows go with the session via ON DELETE CASCADE.
	res, err := p.db.ExecContext(ctx, `DELETE FROM work_sessions WHERE id=$1`, sessionID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (p *PostgresStore) ListSessionAudits(ctx context.Context, sessionID string) ([]SessionAuditRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, session_id, field, old_value, new_value, editor_id, changed_at
		 FROM work_session_audits WHERE session_id=$1 ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]SessionAuditRecord, 0, 8)
	for rows.Next() {
		var a SessionAuditRecord
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Field, &a.OldValue, &a.NewValue, &a.EditorID, &a.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *PostgresStore) AppendAuditEvent(ctx context.Context, event AuditEventRecord) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	prevHash := ""
	_ = p.db.QueryRowContext(ctx, `SELECT event_hash FROM audit_events ORDER BY id DESC LIMIT 1`).Scan(&prevHash)
	event.PrevHash = prevHash
	event.EventHash = computeAuditHash(event)
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO audit_events (action, actor, remote_addr, resource, payload_hash, prev_hash, event_hash, result, details, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		event.Action, event.Actor, event.RemoteAddr, event.Resource, event.PayloadHash, event.PrevHash, event.EventHash, event.Result, event.Details, event.CreatedAt,
	)
	return err
}

func (p *PostgresStore) ListAuditEvents(ctx context.Context, query AuditQuery) ([]AuditEventRecord, error) {
	limit := query.Limit
	offset := query.Offset
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	where := []string{"1=1"}
	args := make([]any, 0, 8)
	argi := 1
	add := func(clause string, v any) {
		where = append(where, fmt.Sprintf(clause, argi))
		args = append(args, v)
		argi++
	}
	if query.Action != "" {
		add("action=$%d", query.Action)
	}
	if query.Actor != "" {
		add("actor=$%d", query.Actor)
	}
	if query.Result != "" {
		add("result=$%d", query.Result)
	}
	if !query.From.IsZero() {
		add("created_at >= $%d", query.From)
	}
	if !query.To.IsZero() {
		add("created_at <= $%d", query.To)
	}
	args = append(args, limit, offset)
	sqlQuery := fmt.Sprintf(
		`SELECT id, action, actor, remote_addr, resource, payload_hash, prev_hash, event_hash, result, details, created_at
		 FROM audit_events
		 WHERE %s
		 ORDER BY created_at DESC, id DESC
		 LIMIT $%d OFFSET $%d`,
		strings.Join(where, " AND "), argi, argi+1,
	)
	rows, err := p.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]AuditEventRecord, 0, limit)
	for rows.Next() {
		var a AuditEventRecord
		if err := rows.Scan(&a.ID, &a.Action, &a.Actor, &a.RemoteAddr, &a.Resource, &a.PayloadHash, &a.PrevHash, &a.EventHash, &a.Result, &a.Details, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type sqlRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectSlots(rows sqlRows) ([]SlotRecord, error) {
	out := make([]SlotRecord, 0, 16)
	for rows.Next() {
		var sl SlotRecord
		if err := rows.Scan(&sl.ShiftID, &sl.Index, &sl.WorkerID, &sl.WorkerStatus, &sl.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (SessionRecord, error) {
	var rec SessionRecord
	var endedAt sql.NullTime
	if err := s.Scan(&rec.ID, &rec.WorkerID, &rec.ShiftID, &rec.SlotIndex, &rec.Status, &rec.StartedAt, &endedAt, &rec.DurationMinutes, &rec.Classification, &rec.Defective, &rec.Memo, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return SessionRecord{}, err
	}
	if endedAt.Valid {
		rec.EndedAt = endedAt.Time
	}
	return rec, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
