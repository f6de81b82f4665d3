package brains

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantarch/helmsman/internal/domain"
)

// Shared brain constants. Risk fractions are percent of equity.
const (
	maxSlippageBps = 2.0
	minRewardRisk  = 1.2
	intentValidity = 30 * time.Minute
)

func decimalFromPct(pct float64) decimal.Decimal {
	return decimal.NewFromFloat(pct)
}

// MomentumContinuation (A2) rides an established trend while volatility and
// liquidity are benign.
func MomentumContinuation(ctx Context) Output {
	snap := ctx.Snapshot

	if snap.EventProximity != domain.ProximityNone {
		return skip(domain.ReasonBrainEventBlock, "A2 stands down around events")
	}
	if snap.Structure != domain.StructureTrend {
		return skip(domain.ReasonBrainNoSetup, "no established trend")
	}
	if snap.Volatility == domain.VolatilityHigh {
		return skip(domain.ReasonBrainVolFilter, "volatility too high for continuation")
	}
	if snap.LiquidityPhase != domain.LiquidityClean {
		return skip(domain.ReasonBrainNoSetup, "liquidity phase not clean")
	}
	if ctx.Bias == domain.DirectionFlat || ctx.LastClose <= 0 || snap.Metrics.ATR <= 0 {
		return skip(domain.ReasonBrainNoSetup, "no directional bias")
	}

	plan := planAlong(ctx.Bias, ctx.LastClose, snap.Metrics.ATR, 1.5, 3.0, domain.TimeframeH1)
	if rewardRisk(plan) < minRewardRisk {
		return skip(domain.ReasonBrainRRTooLow, "")
	}

	typ := domain.IntentOpenLong
	if ctx.Bias == domain.DirectionShort {
		typ = domain.IntentOpenShort
	}
	return intent(ctx, "A2", typ, 0.5, plan, domain.ReasonBrainMomentumAligned)
}

// RangeFade (B3) fades the last push inside an established range.
func RangeFade(ctx Context) Output {
	snap := ctx.Snapshot

	if snap.Structure != domain.StructureRange {
		return skip(domain.ReasonBrainNoSetup, "structure is not a range")
	}
	if snap.Volatility == domain.VolatilityHigh {
		return skip(domain.ReasonBrainVolFilter, "range fade avoids high volatility")
	}
	if snap.LiquidityPhase == domain.LiquidityBuildup {
		return skip(domain.ReasonBrainNoSetup, "buildup in progress, waiting for resolution")
	}
	if ctx.Bias == domain.DirectionFlat || ctx.LastClose <= 0 || snap.Metrics.ATR <= 0 {
		return skip(domain.ReasonBrainNoSetup, "no push to fade")
	}

	// Fade: trade against the latest push.
	fadeDir := domain.DirectionShort
	if ctx.Bias == domain.DirectionShort {
		fadeDir = domain.DirectionLong
	}

	plan := planAlong(fadeDir, ctx.LastClose, snap.Metrics.ATR, 1.0, 1.5, domain.TimeframeM15)
	if rewardRisk(plan) < minRewardRisk {
		return skip(domain.ReasonBrainRRTooLow, "")
	}

	typ := domain.IntentOpenLong
	if fadeDir == domain.DirectionShort {
		typ = domain.IntentOpenShort
	}
	return intent(ctx, "B3", typ, 0.3, plan, domain.ReasonBrainRangeFade)
}

// RaidReversal (C3) trades the reversal after a liquidity raid.
func RaidReversal(ctx Context) Output {
	snap := ctx.Snapshot

	if snap.LiquidityPhase != domain.LiquidityRaid {
		return skip(domain.ReasonBrainNoSetup, "no liquidity raid")
	}
	if snap.EventProximity == domain.ProximityPreEvent {
		return skip(domain.ReasonBrainEventBlock, "raids into events are untradeable")
	}
	if snap.Volatility == domain.VolatilityLow {
		return skip(domain.ReasonBrainVolFilter, "raid without volatility lacks follow-through")
	}
	if ctx.Bias == domain.DirectionFlat || ctx.LastClose <= 0 || snap.Metrics.ATR <= 0 {
		return skip(domain.ReasonBrainNoSetup, "no directional read after raid")
	}

	// Reversal: against the direction the raid pushed.
	revDir := domain.DirectionShort
	if ctx.Bias == domain.DirectionShort {
		revDir = domain.DirectionLong
	}

	plan := planAlong(revDir, ctx.LastClose, snap.Metrics.ATR, 1.2, 2.4, domain.TimeframeM15)
	if rewardRisk(plan) < minRewardRisk {
		return skip(domain.ReasonBrainRRTooLow, "")
	}

	typ := domain.IntentOpenLong
	if revDir == domain.DirectionShort {
		typ = domain.IntentOpenShort
	}
	return intent(ctx, "C3", typ, 0.4, plan, domain.ReasonBrainRaidReversal)
}

// SessionBreakout (D2) trades range expansion around session overlaps.
func SessionBreakout(ctx Context) Output {
	snap := ctx.Snapshot

	if snap.Session == domain.SessionAsia {
		return skip(domain.ReasonBrainSessionFilter, "D2 trades London and NY only")
	}
	if snap.Metrics.SessionOverlap <= 0 {
		return skip(domain.ReasonBrainSessionFilter, "outside the session overlap window")
	}
	if snap.Structure != domain.StructureTransition {
		return skip(domain.ReasonBrainNoSetup, "no structural transition")
	}
	if snap.Metrics.RangeExpansion <= 1.2 {
		return skip(domain.ReasonBrainNoSetup, "range not expanding")
	}
	if ctx.Bias == domain.DirectionFlat || ctx.LastClose <= 0 || snap.Metrics.ATR <= 0 {
		return skip(domain.ReasonBrainNoSetup, "no breakout direction")
	}

	plan := planAlong(ctx.Bias, ctx.LastClose, snap.Metrics.ATR, 1.5, 2.5, domain.TimeframeH1)
	if rewardRisk(plan) < minRewardRisk {
		return skip(domain.ReasonBrainRRTooLow, "")
	}

	typ := domain.IntentOpenLong
	if ctx.Bias == domain.DirectionShort {
		typ = domain.IntentOpenShort
	}
	return intent(ctx, "D2", typ, 0.6, plan, domain.ReasonBrainSessionBreakout)
}

// planAlong builds a trade plan in the given direction with stop and target
// expressed in ATR multiples.
func planAlong(dir domain.Direction, entry, atr, stopATR, targetATR float64, tf domain.Timeframe) domain.TradePlan {
	if dir == domain.DirectionShort {
		return domain.TradePlan{
			Entry:     entry,
			Stop:      entry + stopATR*atr,
			Target:    entry - targetATR*atr,
			Timeframe: tf,
		}
	}
	return domain.TradePlan{
		Entry:     entry,
		Stop:      entry - stopATR*atr,
		Target:    entry + targetATR*atr,
		Timeframe: tf,
	}
}
