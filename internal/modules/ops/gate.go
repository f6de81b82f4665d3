package ops

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantarch/helmsman/internal/domain"
	"github.com/quantarch/helmsman/internal/recorder"
)

// ErrPrereqMissing carries the structured list of missing prerequisites
// refused by the promotion authority.
type ErrPrereqMissing struct {
	Missing []string
}

func (e *ErrPrereqMissing) Error() string {
	return fmt.Sprintf("gate promotion refused, missing prerequisites: %v", e.Missing)
}

var ErrUnknownGate = errors.New("unknown gate")

// ConfigView is what a CONFIG_SNAPSHOT event captures on a gate change.
type ConfigView struct {
	Gate    domain.Gate       `json:"gate"`
	Symbols []string          `json:"symbols"`
	Limits  domain.RiskLimits `json:"limits"`
	Mock    bool              `json:"mock_mode"`
}

// Authority validates gate transitions and commits the allowed ones.
type Authority struct {
	log    zerolog.Logger
	ops    *Manager
	rec    *recorder.Recorder
	config func(gate domain.Gate) ConfigView
	clock  func() time.Time
}

// NewAuthority builds the promotion authority. The config callback supplies
// the effective configuration for the snapshot event on each gate change.
func NewAuthority(ops *Manager, rec *recorder.Recorder, config func(domain.Gate) ConfigView, log zerolog.Logger) *Authority {
	return &Authority{
		log:    log.With().Str("component", "gate_authority").Logger(),
		ops:    ops,
		rec:    rec,
		config: config,
		clock:  time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (a *Authority) WithClock(clock func() time.Time) *Authority {
	a.clock = clock
	return a
}

// RequestTransition validates and, when allowed, commits a gate change.
// Demotion always succeeds; demoting to G0 forces disarm. Promotion must be
// one step and every prerequisite must hold against the most recent tick.
func (a *Authority) RequestTransition(actor domain.Actor, to domain.Gate) error {
	if to.Rank() < 0 {
		return ErrUnknownGate
	}
	state := a.ops.Snapshot()
	from := state.Gate

	if to == from {
		return nil
	}

	if to.Rank() < from.Rank() {
		if err := a.ops.commitGate(actor, to); err != nil {
			return err
		}
		a.snapshotConfig(to, domain.ReasonGateDemoted)
		a.log.Info().Str("from", string(from)).Str("to", string(to)).Str("actor", actor.UserID).Msg("gate demoted")
		return nil
	}

	if to.Rank() != from.Rank()+1 {
		return &ErrPrereqMissing{Missing: []string{domain.ReasonGateStepTooLarge}}
	}

	if missing := a.missingPrereqs(state, actor); len(missing) > 0 {
		return &ErrPrereqMissing{Missing: missing}
	}

	if err := a.ops.commitGate(actor, to); err != nil {
		return err
	}
	a.snapshotConfig(to, domain.ReasonGatePromoted)
	a.log.Info().Str("from", string(from)).Str("to", string(to)).Str("actor", actor.UserID).Msg("gate promoted")
	return nil
}

// missingPrereqs checks every promotion prerequisite and returns the codes
// of the ones that fail. All prerequisites are checked so the caller sees
// the complete list, not just the first failure.
func (a *Authority) missingPrereqs(state State, actor domain.Actor) []string {
	var missing []string

	tick := state.LastTick
	if tick == nil || !tick.HasMCLSnapshot {
		missing = append(missing, domain.ReasonGatePrereqMissingSnapshot)
	}
	if tick == nil || !tick.HasBrainIntentOrSkip {
		missing = append(missing, domain.ReasonGatePrereqMissingIntent)
	}
	if tick == nil || !tick.HasPMDecision {
		missing = append(missing, domain.ReasonGatePrereqMissingDecision)
	}
	if tick == nil || tick.EventsPersisted == 0 {
		missing = append(missing, domain.ReasonGatePrereqMissingLedger)
	}
	if state.Connectivity != domain.ConnectivityConnected {
		missing = append(missing, domain.ReasonGatePrereqMissingExecutor)
	}
	if actor.Role != domain.RoleAdmin {
		missing = append(missing, domain.ReasonGatePrereqMissingRole)
	}
	return missing
}

// snapshotConfig records the effective configuration after a gate change.
func (a *Authority) snapshotConfig(gate domain.Gate, reasonCode string) {
	if a.config == nil {
		return
	}
	payload, err := json.Marshal(a.config(gate))
	if err != nil {
		a.log.Error().Err(err).Msg("failed to marshal config snapshot")
		return
	}
	ev := domain.LedgerEvent{
		EventID:       uuid.NewString(),
		CorrelationID: uuid.NewString(),
		Timestamp:     a.clock().UTC(),
		Severity:      domain.SeverityInfo,
		EventType:     domain.EventConfigSnapshot,
		Component:     domain.ComponentSystem,
		ReasonCode:    reasonCode,
		Payload:       payload,
	}
	if err := a.rec.Record(ev); err != nil {
		a.log.Error().Err(err).Msg("failed to record config snapshot")
	}
}
