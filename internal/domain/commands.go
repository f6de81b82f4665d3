package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommandType is the closed set of executor commands.
type CommandType string

const (
	CommandArm         CommandType = "ARM"
	CommandDisarm      CommandType = "DISARM"
	CommandSetStrategy CommandType = "SET_STRATEGY"
	CommandSetParams   CommandType = "SET_PARAMS"
	CommandSetRisk     CommandType = "SET_RISK"
	CommandSetSymbols  CommandType = "SET_SYMBOLS_ACTIVE"
	CommandCloseDay    CommandType = "CLOSE_DAY"
)

// ExecutorCommand is the envelope sent to the executor port.
type ExecutorCommand struct {
	Type          CommandType `json:"type"`
	Payload       any         `json:"payload"`
	CorrelationID string      `json:"correlation_id"`
}

// StrategyPayload selects the active strategy on the executor.
type StrategyPayload struct {
	Strategy string `json:"strategy"`
}

// ParamsPayload carries a full trade plan to the executor.
type ParamsPayload struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Entry     float64   `json:"entry"`
	Stop      float64   `json:"stop"`
	Target    float64   `json:"target"`
	Timeframe Timeframe `json:"timeframe"`
	Quantity  float64   `json:"quantity"`
}

// RiskPayload applies a PM-adjusted risk fraction.
type RiskPayload struct {
	RiskPct decimal.Decimal `json:"risk_pct"`
}

// SymbolsPayload sets the executor's active symbol list.
type SymbolsPayload struct {
	Symbols []string `json:"symbols"`
}

// CloseDayPayload closes out the day for the given symbols.
type CloseDayPayload struct {
	Symbols []string `json:"symbols"`
	Reason  string   `json:"reason,omitempty"`
}

// ExecutorEventType is the closed set of asynchronous lifecycle events.
type ExecutorEventType string

const (
	ExecEventOrderFilled     ExecutorEventType = "ORDER_FILLED"
	ExecEventSLHit           ExecutorEventType = "SL_HIT"
	ExecEventTPHit           ExecutorEventType = "TP_HIT"
	ExecEventPositionOpened  ExecutorEventType = "POSITION_OPENED"
	ExecEventPositionClosed  ExecutorEventType = "POSITION_CLOSED"
	ExecEventPositionUpdated ExecutorEventType = "POSITION_UPDATED"
	ExecEventPnLUpdate       ExecutorEventType = "PNL_UPDATE"
	ExecEventDaySummary      ExecutorEventType = "DAY_SUMMARY"
	ExecEventInfo            ExecutorEventType = "INFO"
	ExecEventError           ExecutorEventType = "ERROR"
)

// ExecutorEvent is the lifecycle envelope received from the executor port.
type ExecutorEvent struct {
	Type          ExecutorEventType `json:"type"`
	Symbol        string            `json:"symbol"`
	Strategy      string            `json:"strategy"`
	Details       map[string]any    `json:"details,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID string            `json:"correlation_id"`
}

// LedgerEventType maps a lifecycle event to its normalised ledger tag.
// Simulated fills are tagged separately so replay can tell paper from live.
func (e ExecutorEvent) LedgerEventType(simulated bool) EventType {
	switch e.Type {
	case ExecEventOrderFilled:
		if simulated {
			return EventExecSimulatedFill
		}
		return EventExecutorEvent
	case ExecEventPositionOpened:
		return EventExecPositionOpened
	case ExecEventPositionClosed:
		return EventExecPositionClosed
	case ExecEventPositionUpdated:
		return EventExecPositionUpdate
	case ExecEventPnLUpdate:
		return EventExecPnLUpdate
	case ExecEventDaySummary:
		return EventExecDaySummary
	default:
		return EventExecutorEvent
	}
}

// SendResult is the typed outcome of Port.Send.
type SendResult struct {
	OK         bool   `json:"ok"`
	ReasonCode string `json:"reason_code,omitempty"`
	LatencyMS  int64  `json:"latency_ms"`
}
