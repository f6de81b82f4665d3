// Package ops holds the process-wide operational state machine and the gate
// promotion authority. All mutation goes through audited operations.
package ops

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantarch/helmsman/internal/domain"
	"github.com/quantarch/helmsman/internal/recorder"
)

// Confirmation strings. Destructive operations require the caller to type
// the operation name back.
const (
	ConfirmArm    = "ARM"
	ConfirmDisarm = "DISARM"
	ConfirmKill   = "KILL"
)

var (
	ErrBadConfirm = errors.New("confirmation string does not match the operation")
	ErrGateG0     = errors.New("cannot arm while gate is G0")
	ErrRiskOff    = errors.New("cannot arm while risk-off is active")
)

// State is a read-only view of the operational record.
type State struct {
	Gate           domain.Gate             `json:"gate"`
	Arm            domain.ArmState         `json:"arm"`
	GlobalMode     domain.GlobalMode       `json:"global_mode"`
	ExecutionState domain.ExecutionHealth  `json:"execution_state"`
	ProviderStates map[string]string       `json:"provider_states"`
	Connectivity   domain.Connectivity     `json:"executor_connectivity"`
	MockMode       bool                    `json:"mock_mode"`
	RiskOff        bool                    `json:"risk_off"`
	LastTick       *domain.TickSummary     `json:"last_tick_result"`
}

// Manager owns the operational record. All access is mutex-guarded.
type Manager struct {
	log zerolog.Logger
	rec *recorder.Recorder

	mu             sync.Mutex
	gate           domain.Gate
	arm            domain.ArmState
	globalMode     domain.GlobalMode
	executionState domain.ExecutionHealth
	providerStates map[string]string
	connectivity   domain.Connectivity
	mockMode       bool
	riskOff        bool
	lastTick       *domain.TickSummary
	clock          func() time.Time
}

// NewManager starts in the safest state: G0, disarmed, unknown connectivity.
func NewManager(rec *recorder.Recorder, mockMode bool, log zerolog.Logger) *Manager {
	return &Manager{
		log:            log.With().Str("component", "ops").Logger(),
		rec:            rec,
		gate:           domain.GateG0,
		arm:            domain.ArmDisarmed,
		globalMode:     domain.ModeNormal,
		executionState: domain.ExecHealthOK,
		providerStates: make(map[string]string),
		connectivity:   domain.ConnectivityUnknown,
		mockMode:       mockMode,
		clock:          time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
	return m
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() State {
	providers := make(map[string]string, len(m.providerStates))
	for k, v := range m.providerStates {
		providers[k] = v
	}
	var tick *domain.TickSummary
	if m.lastTick != nil {
		t := *m.lastTick
		tick = &t
	}
	return State{
		Gate:           m.gate,
		Arm:            m.arm,
		GlobalMode:     m.globalMode,
		ExecutionState: m.executionState,
		ProviderStates: providers,
		Connectivity:   m.connectivity,
		MockMode:       m.mockMode,
		RiskOff:        m.riskOff,
		LastTick:       tick,
	}
}

// MaySendCommands reports whether the tick pipeline may reach the executor.
func (m *Manager) MaySendCommands() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gate != domain.GateG0 && m.arm == domain.ArmArmed && !m.riskOff
}

// Arm grants permission to act. Refused without a ledger write when the
// gate is G0 or risk-off is active; arming in those states must leave no
// trace of a state change that never happened.
func (m *Manager) Arm(actor domain.Actor, confirm string) error {
	if confirm != ConfirmArm {
		return ErrBadConfirm
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gate == domain.GateG0 {
		return ErrGateG0
	}
	if m.riskOff {
		return ErrRiskOff
	}
	if m.arm == domain.ArmArmed {
		return nil
	}

	before := m.snapshotLocked()
	m.arm = domain.ArmArmed
	return m.auditLocked(actor, "arm", before)
}

// Disarm revokes permission to act. Always allowed.
func (m *Manager) Disarm(actor domain.Actor, confirm string) error {
	if confirm != ConfirmDisarm {
		return ErrBadConfirm
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.arm == domain.ArmDisarmed {
		return nil
	}
	before := m.snapshotLocked()
	m.arm = domain.ArmDisarmed
	return m.auditLocked(actor, "disarm", before)
}

// Kill is disarm plus risk-off in one audited step.
func (m *Manager) Kill(actor domain.Actor, confirm string) error {
	if confirm != ConfirmKill {
		return ErrBadConfirm
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.snapshotLocked()
	m.arm = domain.ArmDisarmed
	m.riskOff = true
	return m.auditLocked(actor, "kill", before)
}

// ClearRiskOff lifts the risk-off latch. The system stays disarmed.
func (m *Manager) ClearRiskOff(actor domain.Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.riskOff {
		return nil
	}
	before := m.snapshotLocked()
	m.riskOff = false
	return m.auditLocked(actor, "clear_risk_off", before)
}

// commitGate is called only by the promotion authority. G0 forces disarm.
func (m *Manager) commitGate(actor domain.Actor, to domain.Gate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.snapshotLocked()
	m.gate = to
	if to == domain.GateG0 {
		m.arm = domain.ArmDisarmed
	}
	return m.auditLocked(actor, fmt.Sprintf("set_gate_%s", to), before)
}

// SetGlobalMode records the regime derived from the latest snapshots.
func (m *Manager) SetGlobalMode(mode domain.GlobalMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globalMode = mode
}

// GlobalMode returns the effective mode; a risk-off latch overrides it.
func (m *Manager) GlobalMode() domain.GlobalMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.riskOff {
		return domain.ModeRiskOff
	}
	return m.globalMode
}

// SetExecutionState records an observed executor health transition and
// mirrors it to the ledger when it actually changed.
func (m *Manager) SetExecutionState(health domain.ExecutionHealth, correlationID string) {
	m.mu.Lock()
	if m.executionState == health {
		m.mu.Unlock()
		return
	}
	from := m.executionState
	m.executionState = health
	now := m.clock().UTC()
	m.mu.Unlock()

	payload, _ := json.Marshal(map[string]string{"from": string(from), "to": string(health)})
	m.record(domain.LedgerEvent{
		EventID:       uuid.NewString(),
		CorrelationID: correlationID,
		Timestamp:     now,
		Severity:      severityForHealth(health),
		EventType:     domain.EventExecStateChange,
		Component:     domain.ComponentSystem,
		ReasonCode:    domain.ReasonExecStateChanged,
		Payload:       payload,
	})
}

// SetProviderState records an observed provider status transition.
func (m *Manager) SetProviderState(provider, status, reasonCode, correlationID string) {
	m.mu.Lock()
	if m.providerStates[provider] == status {
		m.mu.Unlock()
		return
	}
	from := m.providerStates[provider]
	m.providerStates[provider] = status
	now := m.clock().UTC()
	m.mu.Unlock()

	payload, _ := json.Marshal(map[string]string{"provider": provider, "from": from, "to": status})
	m.record(domain.LedgerEvent{
		EventID:       uuid.NewString(),
		CorrelationID: correlationID,
		Timestamp:     now,
		Severity:      domain.SeverityWarn,
		EventType:     domain.EventProvStateChange,
		Component:     domain.ComponentSystem,
		ReasonCode:    reasonCode,
		Payload:       payload,
	})
}

// SetConnectivity records the observed executor link state.
func (m *Manager) SetConnectivity(c domain.Connectivity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectivity = c
}

// RecordTick stores the summary of the most recent tick.
func (m *Manager) RecordTick(summary domain.TickSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := summary
	m.lastTick = &s
}

// auditLocked writes the audit entry and its ledger mirror for a mutation
// that already happened. Callers hold the mutex.
func (m *Manager) auditLocked(actor domain.Actor, action string, before State) error {
	after := m.snapshotLocked()
	now := m.clock().UTC()
	correlationID := uuid.NewString()

	beforeRaw, _ := json.Marshal(before)
	afterRaw, _ := json.Marshal(after)

	entry := domain.AuditLog{
		AuditID:       uuid.NewString(),
		Timestamp:     now,
		ActorUserID:   actor.UserID,
		ActorRole:     actor.Role,
		Action:        action,
		Resource:      "operational_state",
		Before:        beforeRaw,
		After:         afterRaw,
		CorrelationID: correlationID,
	}
	mirror := domain.LedgerEvent{
		EventID:       uuid.NewString(),
		CorrelationID: correlationID,
		Timestamp:     now,
		Severity:      domain.SeverityInfo,
		EventType:     domain.EventAuditLog,
		Component:     domain.ComponentSystem,
		ReasonCode:    domain.ReasonAuditAction,
		Payload:       afterRaw,
	}
	if err := m.rec.RecordAudit(entry, mirror); err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}

func (m *Manager) record(ev domain.LedgerEvent) {
	if err := m.rec.Record(ev); err != nil {
		m.log.Error().Err(err).Str("event_type", string(ev.EventType)).Msg("failed to record state change")
	}
}

func severityForHealth(h domain.ExecutionHealth) domain.Severity {
	switch h {
	case domain.ExecHealthBroken:
		return domain.SeverityError
	case domain.ExecHealthDegraded:
		return domain.SeverityWarn
	default:
		return domain.SeverityInfo
	}
}
