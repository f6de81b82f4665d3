package domain

// Reason codes form a fixed, versioned catalogue partitioned by component.
// New codes may be added; existing codes are never repurposed.
const (
	// MCL
	ReasonMCLStructureTrend      = "MCL_STRUCTURE_TREND"
	ReasonMCLStructureTransition = "MCL_STRUCTURE_TRANSITION"
	ReasonMCLVolLow              = "MCL_VOL_LOW"
	ReasonMCLVolHigh             = "MCL_VOL_HIGH"
	ReasonMCLLiquidityRaid       = "MCL_LIQUIDITY_RAID"
	ReasonMCLLiquidityBuildup    = "MCL_LIQUIDITY_BUILDUP"
	ReasonMCLSessionShift        = "MCL_SESSION_SHIFT"
	ReasonMCLEventWindow         = "MCL_EVENT_WINDOW"
	ReasonMCLNeutral             = "MCL_NEUTRAL"
	ReasonMCLDataDegraded        = "MCL_DATA_DEGRADED"

	// Brains
	ReasonBrainMomentumAligned = "BRAIN_MOMENTUM_ALIGNED"
	ReasonBrainRangeFade       = "BRAIN_RANGE_FADE"
	ReasonBrainRaidReversal    = "BRAIN_RAID_REVERSAL"
	ReasonBrainSessionBreakout = "BRAIN_SESSION_BREAKOUT"
	ReasonBrainNoSetup         = "BRAIN_NO_SETUP"
	ReasonBrainVolFilter       = "BRAIN_VOL_FILTER"
	ReasonBrainEventBlock      = "BRAIN_EVENT_BLOCK"
	ReasonBrainSessionFilter   = "BRAIN_SESSION_FILTER"
	ReasonBrainRRTooLow        = "BRAIN_RR_TOO_LOW"

	// PM
	ReasonGlobalRiskOff      = "GLOBAL_RISK_OFF"
	ReasonCooldownActive     = "COOLDOWN_ACTIVE"
	ReasonPMCorrelationBlock = "PM_CORRELATION_BLOCK"
	ReasonPMMaxPositions     = "PM_MAX_POSITIONS"
	ReasonPMMaxDailyLoss     = "PM_MAX_DAILY_LOSS"
	ReasonPMMaxDrawdown      = "PM_MAX_DRAWDOWN"
	ReasonPMSymbolCap        = "PM_SYMBOL_CAP"
	ReasonPMCurrencyCap      = "PM_CURRENCY_CAP"
	ReasonPMRiskScaled       = "PM_RISK_SCALED"
	ReasonPMBudgetExhausted  = "PM_BUDGET_EXHAUSTED"
	ReasonPMAllow            = "PM_ALLOW"
	ReasonPMQueuedExecBroken = "PM_QUEUED_EXEC_BROKEN"
	ReasonPMInternalError    = "PM_INTERNAL_ERROR"

	// EHM
	ReasonEHMExitNow         = "EHM_EXIT_NOW"
	ReasonEHMLatencyDegraded = "EHM_LATENCY_DEGRADED"

	// Executor
	ReasonExecOK           = "EXEC_OK"
	ReasonExecOrderTimeout = "EXEC_ORDER_TIMEOUT"
	ReasonExecBroken       = "EXEC_BROKEN"
	ReasonExecOrderFailed  = "EXEC_ORDER_FAILED"
	ReasonExecStateChanged = "EXEC_STATE_CHANGED"

	// Provider
	ReasonProvOK           = "PROV_OK"
	ReasonProvDegraded     = "PROV_DEGRADED"
	ReasonProvDown         = "PROV_DOWN"
	ReasonProvMarketClosed = "PROV_MARKET_CLOSED"

	// Audit
	ReasonAuditAction = "AUDIT_ACTION"

	// Gate
	ReasonGatePromoted              = "GATE_PROMOTED"
	ReasonGateDemoted               = "GATE_DEMOTED"
	ReasonGateStepTooLarge          = "GATE_STEP_TOO_LARGE"
	ReasonGatePrereqMissingSnapshot = "GATE_PREREQ_MISSING_MCL_SNAPSHOT"
	ReasonGatePrereqMissingIntent   = "GATE_PREREQ_MISSING_BRAIN_INTENT"
	ReasonGatePrereqMissingDecision = "GATE_PREREQ_MISSING_PM_DECISION"
	ReasonGatePrereqMissingLedger   = "GATE_PREREQ_MISSING_LEDGER"
	ReasonGatePrereqMissingExecutor = "GATE_PREREQ_MISSING_EXECUTOR"
	ReasonGatePrereqMissingRole     = "GATE_PREREQ_MISSING_ROLE"

	// Mock
	ReasonMockScenario = "MOCK_SCENARIO"
)

// reasonCatalogue maps every known code to its human description.
var reasonCatalogue = map[string]string{
	ReasonMCLStructureTrend:      "Structure classified as trending",
	ReasonMCLStructureTransition: "Structure classified as transitional",
	ReasonMCLVolLow:              "Volatility below reference band",
	ReasonMCLVolHigh:             "Volatility above reference band",
	ReasonMCLLiquidityRaid:       "Liquidity raid detected on M15",
	ReasonMCLLiquidityBuildup:    "Liquidity buildup detected on M15",
	ReasonMCLSessionShift:        "Active session differs from baseline",
	ReasonMCLEventWindow:         "Inside a scheduled event window",
	ReasonMCLNeutral:             "No state differs from the neutral baseline",
	ReasonMCLDataDegraded:        "Snapshot built from degraded or partial data",

	ReasonBrainMomentumAligned: "Trend, volatility and liquidity aligned for continuation",
	ReasonBrainRangeFade:       "Range conditions favour fading the last push",
	ReasonBrainRaidReversal:    "Liquidity raid suggests reversal",
	ReasonBrainSessionBreakout: "Session transition with expanding range",
	ReasonBrainNoSetup:         "No qualifying setup in this context",
	ReasonBrainVolFilter:       "Volatility outside the brain's acceptance band",
	ReasonBrainEventBlock:      "Scheduled event proximity blocks entries",
	ReasonBrainSessionFilter:   "Session outside the brain's trading window",
	ReasonBrainRRTooLow:        "Projected reward/risk below the minimum",

	ReasonGlobalRiskOff:      "Global risk-off mode forbids new exposure",
	ReasonCooldownActive:     "Cooldown active for this brain and symbol",
	ReasonPMCorrelationBlock: "Correlated exposure limit would be exceeded",
	ReasonPMMaxPositions:     "Maximum open positions reached",
	ReasonPMMaxDailyLoss:     "Maximum daily loss reached",
	ReasonPMMaxDrawdown:      "Maximum drawdown reached",
	ReasonPMSymbolCap:        "Per-symbol exposure cap would be exceeded",
	ReasonPMCurrencyCap:      "Per-currency exposure cap would be exceeded",
	ReasonPMRiskScaled:       "Proposed risk scaled down to fit the residual budget",
	ReasonPMBudgetExhausted:  "Tick risk budget exhausted",
	ReasonPMAllow:            "All risk checks passed",
	ReasonPMQueuedExecBroken: "Executor broken; intent queued without side effect",
	ReasonPMInternalError:    "Internal PM evaluation error converted to deny",

	ReasonEHMExitNow:         "Edge-health monitor requested immediate exit",
	ReasonEHMLatencyDegraded: "Edge-health monitor observed degraded latency",

	ReasonExecOK:           "Executor accepted the command",
	ReasonExecOrderTimeout: "Executor call timed out after retry",
	ReasonExecBroken:       "Executor rejected the command as broken",
	ReasonExecOrderFailed:  "Executor reported a command failure",
	ReasonExecStateChanged: "Executor health state transition",

	ReasonProvOK:           "Market data provider healthy",
	ReasonProvDegraded:     "Market data stale or gapped",
	ReasonProvDown:         "Market data provider down",
	ReasonProvMarketClosed: "FX market closed (weekend window)",

	ReasonAuditAction: "Operator action recorded",

	ReasonGatePromoted:              "Gate promoted one step",
	ReasonGateDemoted:               "Gate demoted",
	ReasonGateStepTooLarge:          "Promotion must be by exactly one step",
	ReasonGatePrereqMissingSnapshot: "Last tick produced no MCL snapshot",
	ReasonGatePrereqMissingIntent:   "Last tick produced no brain intent or skip",
	ReasonGatePrereqMissingDecision: "Last tick produced no PM decision",
	ReasonGatePrereqMissingLedger:   "Last tick persisted no events",
	ReasonGatePrereqMissingExecutor: "Executor not connected",
	ReasonGatePrereqMissingRole:     "Actor role is not Admin",

	ReasonMockScenario: "Synthetic scenario applied for this tick",
}

// KnownReason reports whether the code is in the catalogue.
func KnownReason(code string) bool {
	_, ok := reasonCatalogue[code]
	return ok
}

// ReasonDescription returns the human description for a catalogued code.
func ReasonDescription(code string) string {
	return reasonCatalogue[code]
}
