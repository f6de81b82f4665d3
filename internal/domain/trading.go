package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// IntentType is what a brain proposes to do.
type IntentType string

const (
	IntentOpenLong  IntentType = "OPEN_LONG"
	IntentOpenShort IntentType = "OPEN_SHORT"
	IntentClose     IntentType = "CLOSE"
	IntentScaleIn   IntentType = "SCALE_IN"
	IntentScaleOut  IntentType = "SCALE_OUT"
	IntentHedge     IntentType = "HEDGE"
)

// OpensExposure reports whether the intent adds market exposure.
func (t IntentType) OpensExposure() bool {
	switch t {
	case IntentOpenLong, IntentOpenShort, IntentScaleIn, IntentHedge:
		return true
	default:
		return false
	}
}

// Direction of a proposed or open position.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionFlat  Direction = "FLAT"
)

// TradePlan is the price plan attached to an intent.
type TradePlan struct {
	Entry     float64   `json:"entry"`
	Stop      float64   `json:"stop"`
	Target    float64   `json:"target"`
	Timeframe Timeframe `json:"timeframe"`
}

// Constraints bound the validity of an intent.
type Constraints struct {
	MaxSlippageBps float64   `json:"max_slippage_bps"`
	ValidUntil     time.Time `json:"valid_until"`
	MinRewardRisk  float64   `json:"min_reward_risk"`
}

// Intent is a brain's proposal to trade. Immutable after creation.
type Intent struct {
	IntentID      string          `json:"intent_id"`
	CorrelationID string          `json:"correlation_id"`
	Symbol        string          `json:"symbol"`
	BrainID       string          `json:"brain_id"`
	Type          IntentType      `json:"type"`
	RiskPct       decimal.Decimal `json:"risk_pct"`
	Plan          TradePlan       `json:"plan"`
	Constraints   Constraints     `json:"constraints"`
	Why           Why             `json:"why"`
}

// Direction derives the position direction from the intent type.
func (i Intent) Direction() Direction {
	switch i.Type {
	case IntentOpenLong:
		return DirectionLong
	case IntentOpenShort:
		return DirectionShort
	default:
		return DirectionFlat
	}
}

// Verdict is the portfolio manager's ruling over one intent.
type Verdict string

const (
	VerdictAllow  Verdict = "ALLOW"
	VerdictDeny   Verdict = "DENY"
	VerdictQueue  Verdict = "QUEUE"
	VerdictModify Verdict = "MODIFY"
)

// RiskAdjustment records a MODIFY's scaling of the proposed risk.
type RiskAdjustment struct {
	OriginalPct decimal.Decimal `json:"original_pct"`
	AdjustedPct decimal.Decimal `json:"adjusted_pct"`
	Reason      string          `json:"reason"`
}

// RiskStateView is the risk state captured at decision time.
type RiskStateView struct {
	ExposurePct      decimal.Decimal `json:"exposure_pct"`
	AvailableRiskPct decimal.Decimal `json:"available_risk_pct"`
	OpenPositions    int             `json:"open_positions"`
	DailyLossPct     decimal.Decimal `json:"daily_loss_pct"`
	DrawdownPct      decimal.Decimal `json:"drawdown_pct"`
}

// Decision is the PM output for one intent. Immutable after creation.
type Decision struct {
	IntentID   string          `json:"intent_id"`
	Verdict    Verdict         `json:"verdict"`
	Adjustment *RiskAdjustment `json:"adjustment,omitempty"`
	RiskState  RiskStateView   `json:"risk_state"`
	Why        Why             `json:"why"`
}

// ApprovedRiskPct returns the risk the decision actually grants.
func (d Decision) ApprovedRiskPct(proposed decimal.Decimal) decimal.Decimal {
	switch d.Verdict {
	case VerdictAllow:
		return proposed
	case VerdictModify:
		if d.Adjustment != nil {
			return d.Adjustment.AdjustedPct
		}
		return proposed
	default:
		return decimal.Zero
	}
}

// RiskLimits are the active hard caps, in percent of equity.
type RiskLimits struct {
	MaxDrawdownPct         decimal.Decimal `json:"max_drawdown_pct"`
	MaxExposurePct         decimal.Decimal `json:"max_exposure_pct"`
	MaxDailyLossPct        decimal.Decimal `json:"max_daily_loss_pct"`
	MaxPositions           int             `json:"max_positions"`
	MaxExposurePerSymbol   decimal.Decimal `json:"max_exposure_per_symbol"`
	MaxExposurePerCurrency decimal.Decimal `json:"max_exposure_per_currency"`
	MaxCorrelatedExposure  decimal.Decimal `json:"max_correlated_exposure"`
}

// DefaultRiskLimits are the limits applied when none are configured.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxDrawdownPct:         decimal.NewFromFloat(10),
		MaxExposurePct:         decimal.NewFromFloat(6),
		MaxDailyLossPct:        decimal.NewFromFloat(3),
		MaxPositions:           5,
		MaxExposurePerSymbol:   decimal.NewFromFloat(2),
		MaxExposurePerCurrency: decimal.NewFromFloat(4),
		MaxCorrelatedExposure:  decimal.NewFromFloat(4),
	}
}

// Position is an open position as seen by the PM.
type Position struct {
	Symbol    string          `json:"symbol"`
	BrainID   string          `json:"brain_id"`
	Direction Direction       `json:"direction"`
	RiskPct   decimal.Decimal `json:"risk_pct"`
	Entry     float64         `json:"entry"`
	OpenedAt  time.Time       `json:"opened_at"`
}

// Cooldown blocks a (brain, symbol) pair until the given instant.
type Cooldown struct {
	BrainID string    `json:"brain_id"`
	Symbol  string    `json:"symbol"`
	Until   time.Time `json:"until"`
}

// Covers reports whether the cooldown applies to the pair at the given time.
func (c Cooldown) Covers(brainID, symbol string, now time.Time) bool {
	return c.BrainID == brainID && c.Symbol == symbol && now.Before(c.Until)
}

// PortfolioState is the evolving risk state threaded through one tick.
// Owned by the orchestrator; the PM returns an updated copy after each intent.
type PortfolioState struct {
	DrawdownPct      decimal.Decimal `json:"drawdown_pct"`
	ExposurePct      decimal.Decimal `json:"exposure_pct"`
	DailyLossPct     decimal.Decimal `json:"daily_loss_pct"`
	AvailableRiskPct decimal.Decimal `json:"available_risk_pct"`
	OpenPositions    int             `json:"open_positions"`
	Positions        []Position      `json:"positions"`
	Limits           RiskLimits      `json:"limits"`
	Mode             GlobalMode      `json:"mode"`
	Cooldowns        []Cooldown      `json:"cooldowns"`
	ExecutionHealth  ExecutionHealth `json:"execution_health"`
}

// View captures the state for embedding in a decision.
func (s PortfolioState) View() RiskStateView {
	return RiskStateView{
		ExposurePct:      s.ExposurePct,
		AvailableRiskPct: s.AvailableRiskPct,
		OpenPositions:    s.OpenPositions,
		DailyLossPct:     s.DailyLossPct,
		DrawdownPct:      s.DrawdownPct,
	}
}
