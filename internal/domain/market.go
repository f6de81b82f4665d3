package domain

import "time"

// Timeframe identifies a bar interval.
type Timeframe string

const (
	TimeframeD1  Timeframe = "D1"
	TimeframeH4  Timeframe = "H4"
	TimeframeH1  Timeframe = "H1"
	TimeframeM15 Timeframe = "M15"
)

// Timeframes lists all bar intervals in descending size.
var Timeframes = []Timeframe{TimeframeD1, TimeframeH4, TimeframeH1, TimeframeM15}

// Interval returns the bar duration of the timeframe.
func (tf Timeframe) Interval() time.Duration {
	switch tf {
	case TimeframeD1:
		return 24 * time.Hour
	case TimeframeH4:
		return 4 * time.Hour
	case TimeframeH1:
		return time.Hour
	case TimeframeM15:
		return 15 * time.Minute
	default:
		return time.Hour
	}
}

// Bar is an immutable OHLCV bar.
type Bar struct {
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// SeriesSnapshot holds the four aligned bar sequences for one symbol.
type SeriesSnapshot struct {
	Symbol    string              `json:"symbol"`
	Series    map[Timeframe][]Bar `json:"series"`
	FetchedAt time.Time           `json:"fetched_at"`
}

// Structure classifies price structure over recent bars.
type Structure string

const (
	StructureTrend      Structure = "TREND"
	StructureRange      Structure = "RANGE"
	StructureTransition Structure = "TRANSITION"
)

// Volatility classifies ATR relative to its reference.
type Volatility string

const (
	VolatilityLow    Volatility = "LOW"
	VolatilityNormal Volatility = "NORMAL"
	VolatilityHigh   Volatility = "HIGH"
)

// LiquidityPhase classifies the most recent M15 liquidity behaviour.
type LiquidityPhase string

const (
	LiquidityBuildup LiquidityPhase = "BUILDUP"
	LiquidityRaid    LiquidityPhase = "RAID"
	LiquidityClean   LiquidityPhase = "CLEAN"
)

// Session is the active FX trading session.
type Session string

const (
	SessionAsia   Session = "ASIA"
	SessionLondon Session = "LONDON"
	SessionNY     Session = "NY"
)

// EventProximity describes closeness to a scheduled news event.
type EventProximity string

const (
	ProximityNone      EventProximity = "NONE"
	ProximityPreEvent  EventProximity = "PRE_EVENT"
	ProximityPostEvent EventProximity = "POST_EVENT"
)

// ExecutionHealth reports the executor's observed health.
type ExecutionHealth string

const (
	ExecHealthOK       ExecutionHealth = "OK"
	ExecHealthDegraded ExecutionHealth = "DEGRADED"
	ExecHealthBroken   ExecutionHealth = "BROKEN"
)

// GlobalMode is the process-wide market regime.
type GlobalMode string

const (
	ModeNormal       GlobalMode = "NORMAL"
	ModeEventCluster GlobalMode = "EVENT_CLUSTER"
	ModeFlowPaying   GlobalMode = "FLOW_PAYING"
	ModeCorrBreak    GlobalMode = "CORR_BREAK"
	ModeRiskOff      GlobalMode = "RISK_OFF"
)

// Metrics carries the numeric observations of one snapshot.
type Metrics struct {
	ATR              float64 `json:"atr"`
	SpreadBps        float64 `json:"spread_bps"`
	VolumeRatio      float64 `json:"volume_ratio"`
	CorrelationIndex float64 `json:"correlation_index"`
	SessionOverlap   float64 `json:"session_overlap"`
	RangeExpansion   float64 `json:"range_expansion"`
}

// MarketSnapshot is the unified market context for one symbol at one instant.
// Immutable after creation.
type MarketSnapshot struct {
	Symbol          string          `json:"symbol"`
	Timestamp       time.Time       `json:"timestamp"`
	Structure       Structure       `json:"structure"`
	Volatility      Volatility      `json:"volatility"`
	LiquidityPhase  LiquidityPhase  `json:"liquidity_phase"`
	Session         Session         `json:"session"`
	EventProximity  EventProximity  `json:"event_proximity"`
	Metrics         Metrics         `json:"metrics"`
	ExecutionHealth ExecutionHealth `json:"execution_health"`
	GlobalMode      GlobalMode      `json:"global_mode"`
	Why             Why             `json:"why"`
}

// DataQualityStatus classifies a fetched bar series.
type DataQualityStatus string

const (
	QualityOK           DataQualityStatus = "OK"
	QualityDegraded     DataQualityStatus = "DEGRADED"
	QualityDown         DataQualityStatus = "DOWN"
	QualityMarketClosed DataQualityStatus = "MARKET_CLOSED"
)

// DataQuality is the per-series quality report of the market-data port.
type DataQuality struct {
	Status        DataQualityStatus `json:"status"`
	Reason        string            `json:"reason,omitempty"`
	Gaps          int               `json:"gaps,omitempty"`
	Stale         bool              `json:"stale,omitempty"`
	MarketClosed  bool              `json:"market_closed,omitempty"`
	VolumeMissing bool              `json:"volume_missing,omitempty"`
}
