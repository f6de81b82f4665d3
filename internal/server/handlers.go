package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/quantarch/helmsman/internal/domain"
	"github.com/quantarch/helmsman/internal/modules/ledger"
	"github.com/quantarch/helmsman/internal/modules/marketdata"
	"github.com/quantarch/helmsman/internal/modules/ops"
	"github.com/quantarch/helmsman/internal/orchestrator"
)

var startTime = time.Now()

// actorFrom reads the caller identity headers. The HTTP boundary trusts
// them; authentication lives in front of this service.
func actorFrom(r *http.Request) domain.Actor {
	return domain.Actor{
		UserID: r.Header.Get("X-Actor"),
		Role:   r.Header.Get("X-Role"),
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}

// handleStatus reports operational state plus process statistics.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := s.ops.Snapshot()

	stats := map[string]any{
		"pid":        os.Getpid(),
		"goroutines": runtime.NumGoroutine(),
		"uptime_sec": int64(time.Since(startTime).Seconds()),
	}
	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		stats["cpu_percent"] = cpuPercent[0]
	}
	if memStat, err := mem.VirtualMemory(); err == nil {
		stats["mem_used_percent"] = memStat.UsedPercent
	}

	dbHealth := "ok"
	if err := s.ledgerDB.HealthCheck(r.Context()); err != nil {
		dbHealth = err.Error()
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"state":       state,
		"process":     stats,
		"ledger_db":   dbHealth,
		"subscribers": s.hub.Count(),
	})
}

// handleEventsTail returns the newest events, filtered.
func (s *Server) handleEventsTail(w http.ResponseWriter, r *http.Request) {
	n := 100
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			s.respondError(w, http.StatusBadRequest, "n must be between 1 and 1000")
			return
		}
		n = parsed
	}
	filters := ledger.TailFilters{
		EventType: domain.EventType(r.URL.Query().Get("event_type")),
		Severity:  domain.Severity(r.URL.Query().Get("severity")),
		Symbol:    r.URL.Query().Get("symbol"),
		BrainID:   r.URL.Query().Get("brain_id"),
	}
	events, err := s.events.Tail(n, filters)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to read event tail")
		s.respondError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleEventsByCorrelation returns one tick's events in append order.
func (s *Server) handleEventsByCorrelation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	events, err := s.events.ByCorrelation(id)
	if err != nil {
		s.log.Error().Err(err).Str("correlation_id", id).Msg("Failed to read correlation events")
		s.respondError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"correlation_id": id, "events": events})
}

// handleReplayDay returns the full bundle for one UTC day.
func (s *Server) handleReplayDay(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	day, err := s.replay.Day(date)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, day)
}

type tickRequest struct {
	Scenario string `json:"scenario"`
}

// handleTick runs one pipeline pass synchronously. An optional body names a
// synthetic scenario for this tick; an empty body is a plain tick.
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	var req tickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var scenario marketdata.Scenario
	if req.Scenario != "" {
		parsed, err := marketdata.ParseScenario(req.Scenario)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		scenario = parsed
	}

	summary, err := s.orch.TickWithScenario(r.Context(), scenario)
	switch {
	case errors.Is(err, orchestrator.ErrTickInProgress):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, orchestrator.ErrScenarioUnsupported):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.log.Error().Err(err).Msg("Tick failed")
		s.respondError(w, http.StatusInternalServerError, err.Error())
	default:
		s.respondJSON(w, http.StatusOK, summary)
	}
}

type confirmRequest struct {
	Confirm string `json:"confirm"`
}

func (s *Server) handleArm(w http.ResponseWriter, r *http.Request) {
	s.handleOpsMutation(w, r, func(actor domain.Actor, confirm string) error {
		return s.ops.Arm(actor, confirm)
	})
}

func (s *Server) handleDisarm(w http.ResponseWriter, r *http.Request) {
	s.handleOpsMutation(w, r, func(actor domain.Actor, confirm string) error {
		return s.ops.Disarm(actor, confirm)
	})
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	s.handleOpsMutation(w, r, func(actor domain.Actor, confirm string) error {
		return s.ops.Kill(actor, confirm)
	})
}

func (s *Server) handleOpsMutation(w http.ResponseWriter, r *http.Request, op func(domain.Actor, string) error) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := op(actorFrom(r), req.Confirm)
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, s.ops.Snapshot())
	case errors.Is(err, ops.ErrBadConfirm):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ops.ErrGateG0), errors.Is(err, ops.ErrRiskOff):
		s.respondError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error().Err(err).Msg("Ops mutation failed")
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

type gateRequest struct {
	Gate string `json:"gate"`
}

// handleGate requests a gate transition through the promotion authority.
func (s *Server) handleGate(w http.ResponseWriter, r *http.Request) {
	var req gateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := s.authority.RequestTransition(actorFrom(r), domain.Gate(req.Gate))
	var prereq *ops.ErrPrereqMissing
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, s.ops.Snapshot())
	case errors.As(err, &prereq):
		s.respondJSON(w, http.StatusConflict, map[string]any{
			"error":   "gate transition refused",
			"missing": prereq.Missing,
		})
	case errors.Is(err, ops.ErrUnknownGate):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error().Err(err).Msg("Gate transition failed")
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}
