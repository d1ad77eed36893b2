package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/example/rosterd/internal/assignment"
	"github.com/example/rosterd/internal/observability"
	"github.com/example/rosterd/internal/state"
	"github.com/example/rosterd/internal/worklog"
	"github.com/example/rosterd/pkg/rosterapi"
)

type Server struct {
	manager *assignment.Manager
	machine *worklog.Machine
	store   state.Store
	feed    state.Feed
}

func NewServer(manager *assignment.Manager, machine *worklog.Machine, store state.Store, feed state.Feed) *Server {
	return &Server{manager: manager, machine: machine, store: store, feed: feed}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/metrics", s.handleMetrics)
	mux.HandleFunc("/v1/metrics/prometheus", s.handleMetricsPrometheus)
	mux.HandleFunc("/v1/topology", s.handleTopology)
	mux.HandleFunc("/v1/lines/", s.handleLineSubresource)
	mux.HandleFunc("/v1/worklogs", s.handleWorklogs)
	mux.HandleFunc("/v1/worklogs/", s.handleWorklogByID)
	mux.HandleFunc("/v1/events", s.handleEventsPoll)
	mux.HandleFunc("/v1/events/ack", s.handleEventsAck)
	mux.HandleFunc("/v1/admin/audit", s.handleAuditEvents)
	return withTracing(withLogging(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, observability.Default.Snapshot())
}

func (s *Server) handleMetricsPrometheus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(observability.Default.RenderPrometheus()))
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap, err := s.manager.BuildSnapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, topologyPayload(snap))
}

// handleLineSubresource routes:
//
//	POST /v1/lines/{line}/shifts/{DAY|NIGHT}/slots/{n}/assign
//	POST /v1/lines/{line}/shifts/{DAY|NIGHT}/slots/{n}/release
//	POST /v1/lines/{line}/shifts/{DAY|NIGHT}/slots/{n}/status
//	POST /v1/lines/{line}/shifts/{DAY|NIGHT}/extended
func (s *Server) handleLineSubresource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/lines/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 3 || parts[1] != "shifts" {
		writeError(w, http.StatusNotFound, "line subresource not found")
		return
	}
	lineID := parts[0]
	shiftType := strings.ToUpper(parts[2])
	if shiftType != state.ShiftDay && shiftType != state.ShiftNight {
		writeError(w, http.StatusBadRequest, "shift type must be DAY or NIGHT")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	switch {
	case len(parts) == 4 && parts[3] == "extended":
		s.handleSetExtended(w, r, lineID, shiftType)
	case len(parts) == 6 && parts[3] == "slots":
		slotIndex, err := strconv.Atoi(parts[4])
		if err != nil || slotIndex < 0 {
			writeError(w, http.StatusBadRequest, "slot index must be a non-negative integer")
			return
		}
		switch parts[5] {
		case "assign":
			s.handleAssign(w, r, lineID, shiftType, slotIndex)
		case "release":
			s.handleRelease(w, r, lineID, shiftType, slotIndex)
		case "status":
			s.handleSlotStatus(w, r, lineID, shiftType, slotIndex)
		default:
			writeError(w, http.StatusNotFound, "slot action not found")
		}
	default:
		writeError(w, http.StatusNotFound, "line subresource not found")
	}
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request, lineID, shiftType string, slotIndex int) {
	var req rosterapi.AssignWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.WorkerID) == "" {
		writeError(w, http.StatusBadRequest, "worker_id is required")
		return
	}
	res, err := s.manager.AssignWorker(r.Context(), lineID, shiftType, slotIndex, strings.TrimSpace(req.WorkerID), req.Force, req.Actor)
	if err != nil {
		var conflict *assignment.PlacementConflictError
		if errors.As(err, &conflict) {
			writeJSON(w, http.StatusConflict, rosterapi.ConflictResponse{
				Error:    conflict.Error(),
				Code:     "worker_already_assigned",
				WorkerID: conflict.WorkerID,
				Location: conflict.Location(),
			})
			return
		}
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationPayload(res))
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request, lineID, shiftType string, slotIndex int) {
	var req rosterapi.ReleaseSlotRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	res, err := s.manager.RemoveWorker(r.Context(), lineID, shiftType, slotIndex, req.Actor)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationPayload(res))
}

func (s *Server) handleSlotStatus(w http.ResponseWriter, r *http.Request, lineID, shiftType string, slotIndex int) {
	var req rosterapi.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.manager.UpdateWorkerStatus(r.Context(), lineID, shiftType, slotIndex, strings.ToUpper(strings.TrimSpace(req.Status)), req.Actor)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationPayload(res))
}

func (s *Server) handleSetExtended(w http.ResponseWriter, r *http.Request, lineID, shiftType string) {
	var req rosterapi.SetExtendedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	snap, err := s.manager.SetShiftExtended(r.Context(), lineID, shiftType, req.Extended, req.Actor)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topologyPayload(snap))
}

func (s *Server) handleWorklogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req rosterapi.StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.WorkerID) == "" || strings.TrimSpace(req.LineID) == "" {
		writeError(w, http.StatusBadRequest, "worker_id and line_id are required")
		return
	}
	startedAt, ok := parseOptionalTime(w, req.StartedAt, "started_at")
	if !ok {
		return
	}
	session, err := s.machine.StartSession(r.Context(), strings.TrimSpace(req.WorkerID), strings.TrimSpace(req.LineID), strings.ToUpper(strings.TrimSpace(req.ShiftType)), req.SlotIndex, startedAt)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rosterapi.SessionResponse{Session: sessionPayload(session)})
}

func (s *Server) handleWorklogByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/worklogs/"), "/")
	parts := strings.Split(rest, "/")
	if parts[0] == "" {
		writeError(w, http.StatusNotFound, "worklog id is required")
		return
	}
	sessionID := parts[0]
	switch {
	case len(parts) == 2 && parts[1] == "end":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleEndSession(w, r, sessionID)
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			session, audits, err := s.machine.GetSession(r.Context(), sessionID)
			if err != nil {
				s.writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, rosterapi.SessionResponse{Session: sessionPayload(session), Audits: auditPayload(audits)})
		case http.MethodPatch:
			s.handleEditSession(w, r, sessionID)
		case http.MethodDelete:
			if err := s.machine.DeleteSession(r.Context(), sessionID); err != nil {
				s.writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	default:
		writeError(w, http.StatusNotFound, "worklog subresource not found")
	}
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req rosterapi.EndSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	endedAt, ok := parseOptionalTime(w, req.EndedAt, "ended_at")
	if !ok {
		return
	}
	session, err := s.machine.EndSession(r.Context(), sessionID, endedAt)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rosterapi.SessionResponse{Session: sessionPayload(session)})
}

func (s *Server) handleEditSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req rosterapi.EditSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	changes := worklog.FieldChanges{Defective: req.Defective, Memo: req.Memo}
	if req.StartedAt != nil {
		t, err := time.Parse(time.RFC3339, *req.StartedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "started_at must be RFC3339")
			return
		}
		changes.StartedAt = &t
	}
	if req.EndedAt != nil {
		t, err := time.Parse(time.RFC3339, *req.EndedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "ended_at must be RFC3339")
			return
		}
		changes.EndedAt = &t
	}
	session, audits, err := s.machine.EditSession(r.Context(), sessionID, changes, strings.TrimSpace(req.EditorID))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rosterapi.SessionResponse{Session: sessionPayload(session), Audits: auditPayload(audits)})
}

func (s *Server) handleEventsPoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.feed == nil {
		writeJSON(w, http.StatusOK, rosterapi.PollEventsResponse{Events: []rosterapi.FeedEvent{}})
		return
	}
	max := 32
	if raw := strings.TrimSpace(r.URL.Query().Get("max")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "max must be a positive integer")
			return
		}
		max = v
	}
	consumer := strings.TrimSpace(r.URL.Query().Get("consumer"))
	if consumer == "" {
		consumer = "dashboard"
	}
	claims, err := s.feed.Poll(r.Context(), max, consumer, 30*time.Second)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := rosterapi.PollEventsResponse{Events: make([]rosterapi.FeedEvent, 0, len(claims))}
	receipts := make([]string, 0, len(claims))
	for _, c := range claims {
		receipts = append(receipts, c.Receipt)
		resp.Events = append(resp.Events, rosterapi.FeedEvent{
			Kind:      c.Event.Kind,
			LineID:    c.Event.LineID,
			ShiftType: c.Event.ShiftType,
			SlotIndex: c.Event.SlotIndex,
			WorkerID:  c.Event.WorkerID,
			SessionID: c.Event.SessionID,
			At:        c.Event.At.Format(time.RFC3339),
		})
	}
	resp.ClaimID = strings.Join(receipts, ",")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEventsAck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req rosterapi.AckEventsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.feed == nil || strings.TrimSpace(req.ClaimID) == "" {
		writeJSON(w, http.StatusOK, rosterapi.AckEventsResponse{Accepted: false})
		return
	}
	claims := make([]state.FeedClaim, 0)
	for _, receipt := range strings.Split(req.ClaimID, ",") {
		if receipt = strings.TrimSpace(receipt); receipt != "" {
			claims = append(claims, state.FeedClaim{Receipt: receipt})
		}
	}
	if err := s.feed.Ack(r.Context(), claims); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rosterapi.AckEventsResponse{Accepted: true})
}

func (s *Server) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 50
	offset := 0
	action := strings.TrimSpace(r.URL.Query().Get("action"))
	actor := strings.TrimSpace(r.URL.Query().Get("actor"))
	result := strings.TrimSpace(r.URL.Query().Get("result"))
	format := strings.TrimSpace(r.URL.Query().Get("format"))
	from, to, err := parseTimeRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = v
	}
	events, err := s.store.ListAuditEvents(r.Context(), state.AuditQuery{
		Limit:  limit,
		Offset: offset,
		Action: action,
		Actor:  actor,
		Result: result,
		From:   from,
		To:     to,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if strings.EqualFold(format, "csv") {
		writeAuditCSV(w, events)
		return
	}
	out := make([]rosterapi.AuditEvent, 0, len(events))
	for _, e := range events {
		out = append(out, rosterapi.AuditEvent{
			ID:          e.ID,
			Action:      e.Action,
			Actor:       e.Actor,
			RemoteAddr:  e.RemoteAddr,
			Resource:    e.Resource,
			PayloadHash: e.PayloadHash,
			PrevHash:    e.PrevHash,
			EventHash:   e.EventHash,
			Result:      e.Result,
			Details:     e.Details,
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, rosterapi.ListAuditEventsResponse{
		Returned: len(out),
		Limit:    limit,
		Offset:   offset,
		Events:   out,
	})
}

// writeDomainError maps engine errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, state.ErrLineNotFound),
		errors.Is(err, state.ErrShiftNotFound),
		errors.Is(err, state.ErrSlotNotFound),
		errors.Is(err, state.ErrSessionNotFound),
		errors.Is(err, assignment.ErrWorkerNotFound),
		errors.Is(err, worklog.ErrWorkerNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, state.ErrSlotOccupied),
		errors.Is(err, state.ErrSlotEmpty),
		errors.Is(err, state.ErrSessionNotOpen),
		errors.Is(err, state.ErrSessionNotClosed),
		errors.Is(err, assignment.ErrInvalidStatus),
		errors.Is(err, worklog.ErrNoWaitingWorker),
		errors.Is(err, worklog.ErrNotAssignedHere),
		errors.Is(err, worklog.ErrInvalidTimeRange),
		errors.Is(err, worklog.ErrEditorRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, worklog.ErrWorkInProgress),
		errors.Is(err, state.ErrOpenSessionExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, assignment.ErrPolicyDenied):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseOptionalTime(w http.ResponseWriter, raw, field string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, field+" must be RFC3339")
		return time.Time{}, false
	}
	return t, true
}

func parseTimeRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	parse := func(raw string) (time.Time, error) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, errors.New("time filters must be RFC3339")
		}
		return t.UTC(), nil
	}
	from, err := parse(fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parse(toRaw)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func writeAuditCSV(w http.ResponseWriter, events []state.AuditEventRecord) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "created_at", "action", "actor", "remote_addr", "resource", "payload_hash", "prev_hash", "event_hash", "result", "details"})
	for _, e := range events {
		_ = cw.Write([]string{
			strconv.FormatInt(e.ID, 10),
			e.CreatedAt.Format(time.RFC3339),
			e.Action,
			e.Actor,
			e.RemoteAddr,
			e.Resource,
			e.PayloadHash,
			e.PrevHash,
			e.EventHash,
			e.Result,
			e.Details,
		})
	}
	cw.Flush()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func withTracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := observability.StartSpan(r.Context(), "http.request",
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		)
		defer span.End()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		traceID := span.SpanContext().TraceID().String()
		if traceID != "" {
			sw.Header().Set("X-Trace-ID", traceID)
		}
		next.ServeHTTP(sw, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", sw.status))
	})
}
