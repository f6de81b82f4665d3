// Package domain contains the core value types of the decision engine.
// The domain layer is pure: no infrastructure dependencies, no I/O.
package domain

import (
	"encoding/json"
	"time"
)

// Severity classifies ledger events.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// EventType is the closed set of ledger event tags.
type EventType string

const (
	EventMCLSnapshot        EventType = "MCL_SNAPSHOT"
	EventBrainIntent        EventType = "BRAIN_INTENT"
	EventBrainSkip          EventType = "BRAIN_SKIP"
	EventPMDecision         EventType = "PM_DECISION"
	EventEHMAction          EventType = "EHM_ACTION"
	EventExecStateChange    EventType = "EXEC_STATE_CHANGE"
	EventProvStateChange    EventType = "PROV_STATE_CHANGE"
	EventExecutorCommand    EventType = "EXECUTOR_COMMAND"
	EventExecutorEvent      EventType = "EXECUTOR_EVENT"
	EventExecSimulatedFill  EventType = "EXEC_SIMULATED_FILL"
	EventExecPositionOpened EventType = "EXEC_POSITION_OPENED"
	EventExecPositionClosed EventType = "EXEC_POSITION_CLOSED"
	EventExecPositionUpdate EventType = "EXEC_POSITION_UPDATED"
	EventExecPnLUpdate      EventType = "EXEC_PNL_UPDATE"
	EventExecDaySummary     EventType = "EXEC_DAY_SUMMARY"
	EventConfigSnapshot     EventType = "CONFIG_SNAPSHOT"
	EventAuditLog           EventType = "AUDIT_LOG"
)

// Component tags the origin of a ledger event.
type Component string

const (
	ComponentMCL    Component = "MCL"
	ComponentA2     Component = "A2"
	ComponentB3     Component = "B3"
	ComponentC3     Component = "C3"
	ComponentD2     Component = "D2"
	ComponentPM     Component = "PM"
	ComponentEHM    Component = "EHM"
	ComponentSystem Component = "SYSTEM"
)

// LedgerEvent is the sole persisted record of the engine. Immutable after creation.
// Symbol, BrainID and ReasonCode are empty when not applicable.
type LedgerEvent struct {
	EventID       string          `json:"event_id"`
	CorrelationID string          `json:"correlation_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Severity      Severity        `json:"severity"`
	EventType     EventType       `json:"event_type"`
	Component     Component       `json:"component"`
	Symbol        string          `json:"symbol,omitempty"`
	BrainID       string          `json:"brain_id,omitempty"`
	ReasonCode    string          `json:"reason_code,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// AuditLog records an operator action. Mirrored to the ledger as AUDIT_LOG.
type AuditLog struct {
	AuditID       string          `json:"audit_id"`
	Timestamp     time.Time       `json:"timestamp"`
	ActorUserID   string          `json:"actor_user_id"`
	ActorRole     string          `json:"actor_role"`
	Action        string          `json:"action"`
	Resource      string          `json:"resource"`
	Reason        string          `json:"reason,omitempty"`
	Before        json.RawMessage `json:"before,omitempty"`
	After         json.RawMessage `json:"after,omitempty"`
	CorrelationID string          `json:"correlation_id"`
}

// ReplayDayStatus marks whether a day's ledger holds a full pipeline run.
type ReplayDayStatus string

const (
	ReplayComplete ReplayDayStatus = "complete"
	ReplayPartial  ReplayDayStatus = "partial"
)

// ReplayDay is the derived per-day replay record.
type ReplayDay struct {
	Date    string          `json:"date"` // YYYY-MM-DD (UTC)
	Status  ReplayDayStatus `json:"status"`
	Summary json.RawMessage `json:"summary"`
}

// Why explains an event with a catalogued reason code and a human message.
type Why struct {
	ReasonCode string `json:"reason_code"`
	Message    string `json:"message"`
}
