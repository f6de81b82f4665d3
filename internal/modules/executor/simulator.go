package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quantarch/helmsman/internal/domain"
)

// HealthMode selects the simulator's behaviour profile.
type HealthMode string

const (
	HealthModeNormal   HealthMode = "normal"   // ~25ms, no errors
	HealthModeDegraded HealthMode = "degraded" // ~800ms, error rate 0.35
	HealthModeDown     HealthMode = "down"     // rejects everything
)

// SimPosition is one open simulated position.
type SimPosition struct {
	Symbol    string
	Direction domain.Direction
	Entry     float64
	Quantity  float64
	OpenedAt  time.Time
}

// Simulator is the paper executor. All state is in memory and guarded by
// one mutex; lifecycle callbacks fire synchronously inside Send.
type Simulator struct {
	log zerolog.Logger

	mu          sync.Mutex
	mode        HealthMode
	armed       bool
	strategy    string
	symbols     []string
	riskPct     decimal.Decimal
	positions   map[string]SimPosition
	daySends    int
	dayErrors   int
	dayPnL      decimal.Decimal
	callbacks   []Callback
	clock       func() time.Time
	degradedSeq int
}

// NewSimulator returns a simulator in normal health.
func NewSimulator(log zerolog.Logger) *Simulator {
	return &Simulator{
		log:       log.With().Str("component", "executor_sim").Logger(),
		mode:      HealthModeNormal,
		positions: make(map[string]SimPosition),
		clock:     time.Now,
	}
}

// SetHealthMode switches the behaviour profile.
func (s *Simulator) SetHealthMode(mode HealthMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// WithClock replaces the time source, for tests.
func (s *Simulator) WithClock(clock func() time.Time) *Simulator {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
	return s
}

func (s *Simulator) Simulated() bool { return true }

// RegisterCallback adds a lifecycle consumer.
func (s *Simulator) RegisterCallback(cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// Status reports derived health from the current mode.
func (s *Simulator) Status(_ context.Context) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	latency, errRate := s.profile()
	return Status{
		Connectivity: domain.ConnectivityConnected,
		Health:       DeriveHealth(latency, errRate),
		LatencyMS:    latency,
		ErrorRate:    errRate,
		Armed:        s.armed,
	}
}

func (s *Simulator) profile() (latencyMS int64, errorRate float64) {
	switch s.mode {
	case HealthModeDegraded:
		return 800, 0.35
	case HealthModeDown:
		return 3000, 1.0
	default:
		return 25, 0
	}
}

// Send applies one command to the simulated executor state. Lifecycle events
// fire synchronously so the caller sees them under the command's
// correlation id before Send returns.
func (s *Simulator) Send(_ context.Context, cmd domain.ExecutorCommand) domain.SendResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	latency, _ := s.profile()
	s.daySends++

	if s.mode == HealthModeDown {
		s.dayErrors++
		return domain.SendResult{OK: false, ReasonCode: domain.ReasonExecBroken, LatencyMS: latency}
	}
	if s.mode == HealthModeDegraded {
		// Deterministic 0.35 error rate: reject sends 2, 5, 8, ... of each
		// rolling window of three.
		s.degradedSeq++
		if s.degradedSeq%3 == 2 {
			s.dayErrors++
			return domain.SendResult{OK: false, ReasonCode: domain.ReasonExecOrderFailed, LatencyMS: latency}
		}
	}

	switch cmd.Type {
	case domain.CommandArm:
		s.armed = true
	case domain.CommandDisarm:
		s.armed = false
	case domain.CommandSetStrategy:
		if p, ok := cmd.Payload.(domain.StrategyPayload); ok {
			s.strategy = p.Strategy
		}
	case domain.CommandSetRisk:
		if p, ok := cmd.Payload.(domain.RiskPayload); ok {
			s.riskPct = p.RiskPct
		}
	case domain.CommandSetSymbols:
		if p, ok := cmd.Payload.(domain.SymbolsPayload); ok {
			s.symbols = append([]string(nil), p.Symbols...)
		}
	case domain.CommandSetParams:
		p, ok := cmd.Payload.(domain.ParamsPayload)
		if !ok || p.Symbol == "" || p.Entry == 0 || p.Stop == 0 || p.Target == 0 {
			s.dayErrors++
			return domain.SendResult{OK: false, ReasonCode: domain.ReasonExecOrderFailed, LatencyMS: latency}
		}
		s.openPosition(cmd.CorrelationID, p)
	case domain.CommandCloseDay:
		s.closeDay(cmd.CorrelationID)
	default:
		s.dayErrors++
		return domain.SendResult{OK: false, ReasonCode: domain.ReasonExecOrderFailed, LatencyMS: latency}
	}

	return domain.SendResult{OK: true, ReasonCode: domain.ReasonExecOK, LatencyMS: latency}
}

// openPosition books the fill and emits the deterministic lifecycle:
// ORDER_FILLED, POSITION_OPENED, PNL_UPDATE(0).
func (s *Simulator) openPosition(correlationID string, p domain.ParamsPayload) {
	now := s.clock().UTC()
	s.positions[p.Symbol] = SimPosition{
		Symbol:    p.Symbol,
		Direction: p.Direction,
		Entry:     p.Entry,
		Quantity:  p.Quantity,
		OpenedAt:  now,
	}

	details := map[string]any{
		"entry":     p.Entry,
		"stop":      p.Stop,
		"target":    p.Target,
		"quantity":  p.Quantity,
		"direction": string(p.Direction),
	}
	s.emit(domain.ExecutorEvent{Type: domain.ExecEventOrderFilled, Symbol: p.Symbol, Strategy: s.strategy, Details: details, Timestamp: now, CorrelationID: correlationID})
	s.emit(domain.ExecutorEvent{Type: domain.ExecEventPositionOpened, Symbol: p.Symbol, Strategy: s.strategy, Details: details, Timestamp: now, CorrelationID: correlationID})
	s.emit(domain.ExecutorEvent{Type: domain.ExecEventPnLUpdate, Symbol: p.Symbol, Strategy: s.strategy, Details: map[string]any{"pnl": 0.0}, Timestamp: now, CorrelationID: correlationID})
}

// closeDay flattens everything, emits DAY_SUMMARY and resets daily counters.
func (s *Simulator) closeDay(correlationID string) {
	now := s.clock().UTC()
	closed := len(s.positions)
	for sym := range s.positions {
		delete(s.positions, sym)
	}
	s.emit(domain.ExecutorEvent{
		Type: domain.ExecEventDaySummary,
		Details: map[string]any{
			"positions_closed": closed,
			"sends":            s.daySends,
			"errors":           s.dayErrors,
			"pnl":              s.dayPnL.InexactFloat64(),
		},
		Timestamp:     now,
		CorrelationID: correlationID,
	})
	s.daySends = 0
	s.dayErrors = 0
	s.dayPnL = decimal.Zero
	s.armed = false
}

func (s *Simulator) emit(ev domain.ExecutorEvent) {
	for _, cb := range s.callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Warn().Str("event", string(ev.Type)).Msg(fmt.Sprintf("lifecycle callback panic: %v", r))
				}
			}()
			cb(ev)
		}()
	}
}

// OpenPositions returns a copy of the simulated position table.
func (s *Simulator) OpenPositions() []SimPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SimPosition, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out
}
