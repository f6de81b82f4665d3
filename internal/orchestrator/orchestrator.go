// Package orchestrator sequences one complete tick: market data, context,
// brains, portfolio manager, command mapping and executor dispatch, with
// every step appended to the ledger under one correlation id.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quantarch/helmsman/internal/domain"
	"github.com/quantarch/helmsman/internal/modules/brains"
	"github.com/quantarch/helmsman/internal/modules/executor"
	"github.com/quantarch/helmsman/internal/modules/mapper"
	"github.com/quantarch/helmsman/internal/modules/marketdata"
	"github.com/quantarch/helmsman/internal/modules/mcl"
	"github.com/quantarch/helmsman/internal/modules/ops"
	"github.com/quantarch/helmsman/internal/modules/portfolio"
	"github.com/quantarch/helmsman/internal/recorder"
)

// ErrTickInProgress is returned when a tick is requested while one runs.
// Ticks are strictly serialised; the caller decides whether to retry.
var ErrTickInProgress = errors.New("a tick is already in progress")

// ErrScenarioUnsupported is returned when a scenario tick is requested but
// the market port cannot shape its data.
var ErrScenarioUnsupported = errors.New("the market data port does not support scenarios")

// refATRDecay is the EWMA factor for the per-symbol ATR reference.
const refATRDecay = 0.9

// cooldownAfterClose blocks a (brain, symbol) pair after a position closes.
const cooldownAfterClose = 30 * time.Minute

// ProximitySource answers event-proximity queries for a symbol, typically
// backed by a scheduled-release calendar.
type ProximitySource interface {
	ProximityFor(symbol string, now time.Time) domain.EventProximity
}

// Orchestrator drives the tick pipeline. One instance per process.
type Orchestrator struct {
	log      zerolog.Logger
	rec      *recorder.Recorder
	market   marketdata.Port
	registry *brains.Registry
	exec     executor.Port
	ops      *ops.Manager
	ehm      *edgeHealthMonitor
	calendar ProximitySource
	symbols  []string
	limits   domain.RiskLimits
	clock    func() time.Time

	tickMu sync.Mutex

	mu              sync.Mutex
	refATR          map[string]float64
	positions       []domain.Position
	cooldowns       []domain.Cooldown
	dailyLossPct    decimal.Decimal
	drawdownPct     decimal.Decimal
	currentStrategy string
	activeSymbols   []string
	tickCorrelation string
	tickPersisted   int
}

// New wires the pipeline. RegisterCallback is called here so lifecycle
// events flow into the ledger for the orchestrator's whole lifetime, even
// when they arrive after the originating tick returned.
func New(rec *recorder.Recorder, market marketdata.Port, registry *brains.Registry, exec executor.Port, opsMgr *ops.Manager, symbols []string, limits domain.RiskLimits, log zerolog.Logger) *Orchestrator {
	o := &Orchestrator{
		log:      log.With().Str("component", "orchestrator").Logger(),
		rec:      rec,
		market:   market,
		registry: registry,
		exec:     exec,
		ops:      opsMgr,
		ehm:      newEdgeHealthMonitor(),
		symbols:  append([]string(nil), symbols...),
		limits:   limits,
		refATR:   make(map[string]float64),
		clock:    time.Now,
	}
	exec.RegisterCallback(o.onLifecycleEvent)
	return o
}

// WithClock replaces the time source, for tests.
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	o.clock = clock
	return o
}

// WithCalendar attaches an economic-event calendar. Without one every
// snapshot carries NONE proximity.
func (o *Orchestrator) WithCalendar(cal ProximitySource) *Orchestrator {
	o.calendar = cal
	return o
}

type symbolContext struct {
	symbol    string
	snapshot  domain.MarketSnapshot
	lastClose float64
	bias      domain.Direction
}

// Tick runs one complete pipeline pass. At most one tick runs at a time;
// a concurrent request fails fast with ErrTickInProgress.
func (o *Orchestrator) Tick(ctx context.Context) (domain.TickSummary, error) {
	return o.TickWithScenario(ctx, "")
}

// TickWithScenario runs one pass with the market port bound to the named
// synthetic scenario. The binding lasts for this tick only; an empty
// scenario is a plain tick.
func (o *Orchestrator) TickWithScenario(ctx context.Context, scenario marketdata.Scenario) (domain.TickSummary, error) {
	if !o.tickMu.TryLock() {
		return domain.TickSummary{}, ErrTickInProgress
	}
	defer o.tickMu.Unlock()

	market := o.market
	if scenario != "" {
		sp, ok := o.market.(marketdata.ScenarioPort)
		if !ok {
			return domain.TickSummary{}, ErrScenarioUnsupported
		}
		market = sp.WithScenario(scenario)
	}

	correlationID := uuid.NewString()
	now := o.clock().UTC()

	o.mu.Lock()
	o.tickCorrelation = correlationID
	o.tickPersisted = 0
	o.mu.Unlock()

	o.log.Info().Str("correlation_id", correlationID).Strs("symbols", o.symbols).Msg("tick started")

	if scenario != "" {
		o.record(domain.LedgerEvent{
			EventID:       uuid.NewString(),
			CorrelationID: correlationID,
			Timestamp:     now,
			Severity:      domain.SeverityInfo,
			EventType:     domain.EventProvStateChange,
			Component:     domain.ComponentSystem,
			ReasonCode:    domain.ReasonMockScenario,
			Payload:       mustJSON(map[string]string{"scenario": string(scenario)}),
		})
	}

	execStatus := o.exec.Status(ctx)
	o.ops.SetConnectivity(execStatus.Connectivity)
	o.ops.SetExecutionState(execStatus.Health, correlationID)

	contexts := o.contextPass(ctx, market, correlationID, now, execStatus.Health)
	o.updateGlobalMode(contexts)

	intents := o.brainPass(correlationID, now, contexts)
	decisions := o.pmPass(correlationID, now, execStatus.Health, intents)

	emergency := o.ehm.observe(execStatus.Health, o.openSymbols())
	if emergency != nil {
		o.recordEmergency(correlationID, now, emergency)
	}

	if o.ops.MaySendCommands() {
		o.commandPass(ctx, correlationID, intents, decisions, emergency)
	}

	summary := domain.TickSummary{
		CorrelationID:        correlationID,
		At:                   now,
		HasMCLSnapshot:       len(contexts) > 0,
		HasBrainIntentOrSkip: len(intents.outputs) > 0,
		HasPMDecision:        len(decisions) > 0,
		EventsPersisted:      o.persistedCount(),
	}
	o.ops.RecordTick(summary)

	o.log.Info().
		Str("correlation_id", correlationID).
		Int("events", summary.EventsPersisted).
		Int("intents", len(intents.list)).
		Msg("tick finished")
	return summary, nil
}

// contextPass fetches bars and builds one snapshot per healthy symbol.
// A symbol failure is appended as a WARN event and the pass continues.
func (o *Orchestrator) contextPass(ctx context.Context, market marketdata.Port, correlationID string, now time.Time, health domain.ExecutionHealth) []symbolContext {
	results := market.FetchBatch(ctx, o.symbols)
	mode := o.ops.GlobalMode()

	var contexts []symbolContext
	var referenceCloses []float64

	for _, symbol := range o.symbols {
		res, ok := results[symbol]
		if !ok || res.Err != nil {
			o.recordProviderFailure(correlationID, now, symbol, res.Err)
			continue
		}

		degraded := false
		unusable := false
		for tf, q := range res.Quality {
			switch q.Status {
			case domain.QualityDown, domain.QualityMarketClosed:
				o.ops.SetProviderState(symbol+"/"+string(tf), string(q.Status), marketdata.QualityReasonCode(q.Status), correlationID)
				unusable = true
			case domain.QualityDegraded:
				o.ops.SetProviderState(symbol+"/"+string(tf), string(q.Status), marketdata.QualityReasonCode(q.Status), correlationID)
				degraded = true
			default:
				o.ops.SetProviderState(symbol+"/"+string(tf), string(q.Status), marketdata.QualityReasonCode(q.Status), correlationID)
			}
		}
		if unusable {
			continue
		}

		proximity := domain.ProximityNone
		if o.calendar != nil {
			proximity = o.calendar.ProximityFor(symbol, now)
		}
		snapshot := mcl.Evaluate(mcl.Input{
			Series:          res.Snapshot,
			ReferenceATR:    o.referenceATRFor(symbol),
			ReferenceCloses: referenceCloses,
			EventProximity:  proximity,
			ExecutionHealth: health,
			GlobalMode:      mode,
			Now:             now,
		})
		if degraded {
			snapshot.Why = domain.Why{
				ReasonCode: domain.ReasonMCLDataDegraded,
				Message:    domain.ReasonDescription(domain.ReasonMCLDataDegraded),
			}
		}
		o.updateReferenceATR(symbol, snapshot.Metrics.ATR)

		h1 := res.Snapshot.Series[domain.TimeframeH1]
		lastClose, bias := closeAndBias(h1)
		if len(referenceCloses) == 0 {
			referenceCloses = closes(h1)
		}

		o.record(domain.LedgerEvent{
			EventID:       uuid.NewString(),
			CorrelationID: correlationID,
			Timestamp:     now,
			Severity:      domain.SeverityInfo,
			EventType:     domain.EventMCLSnapshot,
			Component:     domain.ComponentMCL,
			Symbol:        symbol,
			ReasonCode:    snapshot.Why.ReasonCode,
			Payload:       mustJSON(snapshot),
		})

		contexts = append(contexts, symbolContext{
			symbol:    symbol,
			snapshot:  snapshot,
			lastClose: lastClose,
			bias:      bias,
		})
	}
	return contexts
}

// intentSet keeps the brain outputs in iteration order alongside the
// subset that are actual intents.
type intentSet struct {
	outputs []brains.Output
	list    []domain.Intent
}

// brainPass iterates brains in fixed order for every snapshot. A brain
// panic is isolated into a WARN event.
func (o *Orchestrator) brainPass(correlationID string, now time.Time, contexts []symbolContext) intentSet {
	var set intentSet
	for _, sc := range contexts {
		for _, entry := range o.registry.IterateInFixedOrder() {
			out, err := runBrain(entry, brains.Context{
				Snapshot:      sc.snapshot,
				Symbol:        sc.symbol,
				CorrelationID: correlationID,
				LastClose:     sc.lastClose,
				Bias:          sc.bias,
			})
			if err != nil {
				o.record(domain.LedgerEvent{
					EventID:       uuid.NewString(),
					CorrelationID: correlationID,
					Timestamp:     now,
					Severity:      domain.SeverityWarn,
					EventType:     domain.EventBrainSkip,
					Component:     domain.Component(entry.ID),
					Symbol:        sc.symbol,
					BrainID:       entry.ID,
					ReasonCode:    domain.ReasonBrainNoSetup,
					Payload:       mustJSON(map[string]string{"error": err.Error()}),
				})
				continue
			}
			set.outputs = append(set.outputs, out)

			if out.Intent != nil {
				set.list = append(set.list, *out.Intent)
				o.record(domain.LedgerEvent{
					EventID:       uuid.NewString(),
					CorrelationID: correlationID,
					Timestamp:     now,
					Severity:      domain.SeverityInfo,
					EventType:     domain.EventBrainIntent,
					Component:     domain.Component(entry.ID),
					Symbol:        sc.symbol,
					BrainID:       entry.ID,
					ReasonCode:    out.Intent.Why.ReasonCode,
					Payload:       mustJSON(out.Intent),
				})
				continue
			}
			o.record(domain.LedgerEvent{
				EventID:       uuid.NewString(),
				CorrelationID: correlationID,
				Timestamp:     now,
				Severity:      domain.SeverityInfo,
				EventType:     domain.EventBrainSkip,
				Component:     domain.Component(entry.ID),
				Symbol:        sc.symbol,
				BrainID:       entry.ID,
				ReasonCode:    out.Skip.ReasonCode,
				Payload:       mustJSON(out.Skip),
			})
		}
	}
	return set
}

// runBrain isolates a brain panic into an error.
func runBrain(entry brains.Entry, ctx brains.Context) (out brains.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("brain %s panicked: %v", entry.ID, r)
		}
	}()
	return entry.Brain(ctx), nil
}

// pmPass runs the portfolio manager over the intent list in brain order,
// threading one evolving state so later intents see earlier grants.
func (o *Orchestrator) pmPass(correlationID string, now time.Time, health domain.ExecutionHealth, intents intentSet) map[string]domain.Decision {
	o.mu.Lock()
	state := portfolio.NewTickState(
		o.limits,
		o.ops.GlobalMode(),
		health,
		append([]domain.Position(nil), o.positions...),
		append([]domain.Cooldown(nil), o.cooldowns...),
		o.dailyLossPct,
		o.drawdownPct,
	)
	o.mu.Unlock()

	decisions := make(map[string]domain.Decision, len(intents.list))
	for _, intent := range intents.list {
		decision, next := portfolio.Evaluate(intent, state, now)
		state = next
		decisions[intent.IntentID] = decision

		severity := domain.SeverityInfo
		if decision.Why.ReasonCode == domain.ReasonPMInternalError {
			severity = domain.SeverityWarn
		}
		o.record(domain.LedgerEvent{
			EventID:       uuid.NewString(),
			CorrelationID: correlationID,
			Timestamp:     now,
			Severity:      severity,
			EventType:     domain.EventPMDecision,
			Component:     domain.ComponentPM,
			Symbol:        intent.Symbol,
			BrainID:       intent.BrainID,
			ReasonCode:    decision.Why.ReasonCode,
			Payload:       mustJSON(decision),
		})
	}
	return decisions
}

// commandPass maps approved decisions to commands and dispatches them.
// A failed command is ledgered and the pass continues with the next one.
func (o *Orchestrator) commandPass(ctx context.Context, correlationID string, intents intentSet, decisions map[string]domain.Decision, emergency *mapper.EmergencyAction) {
	opsState := o.ops.Snapshot()

	if emergency != nil {
		// The emergency close preempts per-intent commands this tick.
		cmds, _ := mapper.Map(mapper.Input{
			Gate:      opsState.Gate,
			Arm:       opsState.Arm,
			Emergency: emergency,
			Intent:    domain.Intent{CorrelationID: correlationID},
		})
		o.dispatch(ctx, correlationID, cmds)
		return
	}

	for _, intent := range intents.list {
		decision, ok := decisions[intent.IntentID]
		if !ok {
			continue
		}
		if decision.Verdict != domain.VerdictAllow && decision.Verdict != domain.VerdictModify {
			continue
		}

		o.mu.Lock()
		strategy := o.currentStrategy
		active := append([]string(nil), o.activeSymbols...)
		o.mu.Unlock()

		cmds, notes := mapper.Map(mapper.Input{
			Gate:            opsState.Gate,
			Arm:             opsState.Arm,
			Intent:          intent,
			Decision:        decision,
			CurrentStrategy: strategy,
			ActiveSymbols:   active,
		})
		// A note is an inexpressible need, not a command; it is ledgered
		// under the executor-event tag.
		for _, note := range notes {
			o.record(domain.LedgerEvent{
				EventID:       uuid.NewString(),
				CorrelationID: correlationID,
				Timestamp:     o.clock().UTC(),
				Severity:      domain.SeverityWarn,
				EventType:     domain.EventExecutorEvent,
				Component:     domain.ComponentSystem,
				Symbol:        intent.Symbol,
				BrainID:       intent.BrainID,
				ReasonCode:    note.ReasonCode,
				Payload:       mustJSON(note),
			})
		}
		o.dispatch(ctx, correlationID, cmds)
	}
}

// dispatch sends commands in order. Each command is ledgered before it is
// sent: the simulator fires its lifecycle synchronously inside Send, and the
// ledger must read command first, then the lifecycle it caused. Failures are
// appended as executor events; a BROKEN rejection flips the observed
// execution state.
func (o *Orchestrator) dispatch(ctx context.Context, correlationID string, cmds []domain.ExecutorCommand) {
	for _, cmd := range cmds {
		o.record(domain.LedgerEvent{
			EventID:       uuid.NewString(),
			CorrelationID: correlationID,
			Timestamp:     o.clock().UTC(),
			Severity:      domain.SeverityInfo,
			EventType:     domain.EventExecutorCommand,
			Component:     domain.ComponentSystem,
			Payload:       mustJSON(map[string]any{"command": cmd}),
		})

		result := o.exec.Send(ctx, cmd)
		if !result.OK {
			o.record(domain.LedgerEvent{
				EventID:       uuid.NewString(),
				CorrelationID: correlationID,
				Timestamp:     o.clock().UTC(),
				Severity:      domain.SeverityError,
				EventType:     domain.EventExecutorEvent,
				Component:     domain.ComponentSystem,
				ReasonCode:    result.ReasonCode,
				Payload:       mustJSON(map[string]any{"command_type": cmd.Type, "result": result}),
			})
			if result.ReasonCode == domain.ReasonExecBroken {
				o.ops.SetExecutionState(domain.ExecHealthBroken, correlationID)
			}
			continue
		}
		o.applyCommandEffect(cmd)
	}
}

// applyCommandEffect mirrors accepted commands into the orchestrator's view
// of the executor configuration.
func (o *Orchestrator) applyCommandEffect(cmd domain.ExecutorCommand) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch cmd.Type {
	case domain.CommandSetStrategy:
		if p, ok := cmd.Payload.(domain.StrategyPayload); ok {
			o.currentStrategy = p.Strategy
		}
	case domain.CommandSetSymbols:
		if p, ok := cmd.Payload.(domain.SymbolsPayload); ok {
			o.activeSymbols = append([]string(nil), p.Symbols...)
		}
	}
}

func (o *Orchestrator) recordProviderFailure(correlationID string, now time.Time, symbol string, err error) {
	msg := "no data returned"
	if err != nil {
		msg = err.Error()
	}
	o.ops.SetProviderState(symbol, string(domain.QualityDown), domain.ReasonProvDown, correlationID)
	o.record(domain.LedgerEvent{
		EventID:       uuid.NewString(),
		CorrelationID: correlationID,
		Timestamp:     now,
		Severity:      domain.SeverityWarn,
		EventType:     domain.EventProvStateChange,
		Component:     domain.ComponentSystem,
		Symbol:        symbol,
		ReasonCode:    domain.ReasonProvDown,
		Payload:       mustJSON(map[string]string{"error": msg}),
	})
}

func (o *Orchestrator) recordEmergency(correlationID string, now time.Time, emergency *mapper.EmergencyAction) {
	o.record(domain.LedgerEvent{
		EventID:       uuid.NewString(),
		CorrelationID: correlationID,
		Timestamp:     now,
		Severity:      domain.SeverityError,
		EventType:     domain.EventEHMAction,
		Component:     domain.ComponentEHM,
		ReasonCode:    domain.ReasonEHMExitNow,
		Payload:       mustJSON(emergency),
	})
}

// updateGlobalMode derives the regime from this tick's snapshots.
func (o *Orchestrator) updateGlobalMode(contexts []symbolContext) {
	if len(contexts) == 0 {
		return
	}
	event := 0
	var corrSum float64
	for _, sc := range contexts {
		if sc.snapshot.EventProximity != domain.ProximityNone {
			event++
		}
		corr := sc.snapshot.Metrics.CorrelationIndex
		if corr < 0 {
			corr = -corr
		}
		corrSum += corr
	}
	mode := domain.ModeNormal
	switch {
	case event*2 >= len(contexts):
		mode = domain.ModeEventCluster
	case len(contexts) > 1 && corrSum/float64(len(contexts)) < 0.15:
		mode = domain.ModeCorrBreak
	}
	o.ops.SetGlobalMode(mode)
}

// onLifecycleEvent normalises executor lifecycle events into the ledger,
// preserving the event's own correlation id, and updates positions, daily
// loss and cooldowns.
func (o *Orchestrator) onLifecycleEvent(ev domain.ExecutorEvent) {
	eventType := ev.LedgerEventType(o.exec.Simulated())
	o.record(domain.LedgerEvent{
		EventID:       uuid.NewString(),
		CorrelationID: ev.CorrelationID,
		Timestamp:     ev.Timestamp.UTC(),
		Severity:      domain.SeverityInfo,
		EventType:     eventType,
		Component:     domain.ComponentSystem,
		Symbol:        ev.Symbol,
		BrainID:       ev.Strategy,
		Payload:       mustJSON(ev),
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	switch ev.Type {
	case domain.ExecEventPositionOpened:
		o.positions = append(o.positions, domain.Position{
			Symbol:    ev.Symbol,
			BrainID:   ev.Strategy,
			Direction: directionFromDetails(ev.Details),
			RiskPct:   decimal.Zero,
			OpenedAt:  ev.Timestamp,
		})
	case domain.ExecEventPositionClosed, domain.ExecEventSLHit, domain.ExecEventTPHit:
		o.removePosition(ev.Symbol)
		o.cooldowns = append(o.cooldowns, domain.Cooldown{
			BrainID: ev.Strategy,
			Symbol:  ev.Symbol,
			Until:   ev.Timestamp.Add(cooldownAfterClose),
		})
	case domain.ExecEventPnLUpdate:
		if pnl, ok := ev.Details["pnl"].(float64); ok && pnl < 0 {
			loss := decimal.NewFromFloat(-pnl)
			o.dailyLossPct = o.dailyLossPct.Add(loss)
			if o.dailyLossPct.GreaterThan(o.drawdownPct) {
				o.drawdownPct = o.dailyLossPct
			}
		}
	case domain.ExecEventDaySummary:
		o.positions = nil
		o.dailyLossPct = decimal.Zero
	}
}

func (o *Orchestrator) removePosition(symbol string) {
	kept := o.positions[:0]
	for _, p := range o.positions {
		if p.Symbol != symbol {
			kept = append(kept, p)
		}
	}
	o.positions = kept
}

func (o *Orchestrator) openSymbols() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.positions))
	for _, p := range o.positions {
		out = append(out, p.Symbol)
	}
	return out
}

func (o *Orchestrator) referenceATRFor(symbol string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.refATR[symbol]
}

func (o *Orchestrator) updateReferenceATR(symbol string, atr float64) {
	if atr <= 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	prev, ok := o.refATR[symbol]
	if !ok || prev <= 0 {
		o.refATR[symbol] = atr
		return
	}
	o.refATR[symbol] = refATRDecay*prev + (1-refATRDecay)*atr
}

// record appends through the recorder and counts successful persists for
// the current tick's summary.
func (o *Orchestrator) record(ev domain.LedgerEvent) {
	if err := o.rec.Record(ev); err != nil {
		o.log.Error().Err(err).Str("event_type", string(ev.EventType)).Msg("ledger append failed")
		return
	}
	o.mu.Lock()
	if ev.CorrelationID == o.tickCorrelation {
		o.tickPersisted++
	}
	o.mu.Unlock()
}

func (o *Orchestrator) persistedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tickPersisted
}

// closeAndBias reads the last H1 close and a three-bar directional bias.
func closeAndBias(h1 []domain.Bar) (float64, domain.Direction) {
	if len(h1) == 0 {
		return 0, domain.DirectionFlat
	}
	last := h1[len(h1)-1].Close
	if len(h1) < 3 {
		return last, domain.DirectionFlat
	}
	a, b, c := h1[len(h1)-3].Close, h1[len(h1)-2].Close, h1[len(h1)-1].Close
	switch {
	case c > b && b > a:
		return last, domain.DirectionLong
	case c < b && b < a:
		return last, domain.DirectionShort
	case c > a:
		return last, domain.DirectionLong
	case c < a:
		return last, domain.DirectionShort
	default:
		return last, domain.DirectionFlat
	}
}

func closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func directionFromDetails(details map[string]any) domain.Direction {
	if d, ok := details["direction"].(string); ok {
		return domain.Direction(d)
	}
	return domain.DirectionFlat
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}
