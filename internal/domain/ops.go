package domain

import "time"

// Gate discretises how live the system is.
type Gate string

const (
	GateG0 Gate = "G0" // shadow: no commands ever leave the process
	GateG1 Gate = "G1" // paper: simulator only
	GateG2 Gate = "G2" // live restricted
	GateG3 Gate = "G3" // live full
)

// Rank orders gates for promotion arithmetic. Unknown gates rank below G0.
func (g Gate) Rank() int {
	switch g {
	case GateG0:
		return 0
	case GateG1:
		return 1
	case GateG2:
		return 2
	case GateG3:
		return 3
	default:
		return -1
	}
}

// ArmState is the permission to act.
type ArmState string

const (
	ArmDisarmed ArmState = "DISARMED"
	ArmArmed    ArmState = "ARMED"
)

// Connectivity describes the executor link as observed.
type Connectivity string

const (
	ConnectivityUnknown      Connectivity = "unknown"
	ConnectivityConnected    Connectivity = "connected"
	ConnectivityDisconnected Connectivity = "disconnected"
)

// TickSummary is the record of the most recent tick, used to gate promotion.
type TickSummary struct {
	CorrelationID        string    `json:"correlation_id"`
	At                   time.Time `json:"at"`
	HasMCLSnapshot       bool      `json:"has_mcl_snapshot"`
	HasBrainIntentOrSkip bool      `json:"has_brain_intent_or_skip"`
	HasPMDecision        bool      `json:"has_pm_decision"`
	EventsPersisted      int       `json:"events_persisted"`
}

// Actor is the authenticated identity behind an operator action.
// The HTTP boundary proves it; the core only consumes it.
type Actor struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// RoleAdmin is the role required for gate promotion.
const RoleAdmin = "Admin"
