// Package portfolio implements the portfolio manager: a pure evaluation of
// one intent against the evolving in-tick risk state.
package portfolio

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantarch/helmsman/internal/domain"
)

// minResidualPct is the smallest risk fraction worth trading. A MODIFY whose
// residual falls below this becomes a DENY instead.
var minResidualPct = decimal.NewFromFloat(0.1)

// correlated reports whether two symbols count against the shared
// correlated-exposure cap. Membership is by shared base or quote currency.
func correlated(a, b string) bool {
	ca, cb := currenciesOf(a), currenciesOf(b)
	for _, x := range ca {
		for _, y := range cb {
			if x != "" && x == y {
				return true
			}
		}
	}
	return false
}

// currenciesOf splits a 6-letter FX pair into base and quote. Non-FX symbols
// yield a single pseudo-currency equal to the symbol itself.
func currenciesOf(symbol string) []string {
	s := strings.ToUpper(symbol)
	if len(s) == 6 {
		return []string{s[:3], s[3:]}
	}
	return []string{s}
}

// Evaluate rules on one intent and returns the decision plus the state the
// next intent should see. On DENY and QUEUE the state is returned unchanged.
//
// Panics and numeric degeneracies inside evaluation are converted into a
// DENY with PM_INTERNAL_ERROR so a single bad intent cannot abort the tick.
func Evaluate(intent domain.Intent, state domain.PortfolioState, now time.Time) (decision domain.Decision, next domain.PortfolioState) {
	next = state
	defer func() {
		if r := recover(); r != nil {
			next = state
			decision = deny(intent, state, domain.ReasonPMInternalError,
				fmt.Sprintf("evaluation panic: %v", r))
		}
	}()
	decision, next = evaluate(intent, state, now)
	return decision, next
}

func evaluate(intent domain.Intent, state domain.PortfolioState, now time.Time) (domain.Decision, domain.PortfolioState) {
	// 1. Global mode guard.
	if state.Mode == domain.ModeRiskOff && intent.Type.OpensExposure() {
		return deny(intent, state, domain.ReasonGlobalRiskOff, ""), state
	}

	// 2. Cooldown guard.
	for _, cd := range state.Cooldowns {
		if cd.Covers(intent.BrainID, intent.Symbol, now) {
			return deny(intent, state, domain.ReasonCooldownActive, ""), state
		}
	}

	proposed := intent.RiskPct
	if proposed.IsNegative() {
		return deny(intent, state, domain.ReasonPMInternalError, "negative proposed risk"), state
	}

	// 3. Correlation guard.
	correlatedExposure := decimal.Zero
	for _, p := range state.Positions {
		if correlated(p.Symbol, intent.Symbol) {
			correlatedExposure = correlatedExposure.Add(p.RiskPct)
		}
	}
	if correlatedExposure.Add(proposed).GreaterThan(state.Limits.MaxCorrelatedExposure) {
		return deny(intent, state, domain.ReasonPMCorrelationBlock, ""), state
	}

	// 4. Hard caps.
	if intent.Type.OpensExposure() && state.OpenPositions >= state.Limits.MaxPositions {
		return deny(intent, state, domain.ReasonPMMaxPositions, ""), state
	}
	if state.DailyLossPct.GreaterThanOrEqual(state.Limits.MaxDailyLossPct) {
		return deny(intent, state, domain.ReasonPMMaxDailyLoss, ""), state
	}
	if state.DrawdownPct.GreaterThanOrEqual(state.Limits.MaxDrawdownPct) {
		return deny(intent, state, domain.ReasonPMMaxDrawdown, ""), state
	}

	// 5. Per-symbol and per-currency caps. Over-cap proposals scale down to
	// the tightest residual; residuals below the minimum threshold deny.
	granted := proposed
	capReason := ""

	symbolExposure := decimal.Zero
	for _, p := range state.Positions {
		if p.Symbol == intent.Symbol {
			symbolExposure = symbolExposure.Add(p.RiskPct)
		}
	}
	if symbolExposure.Add(granted).GreaterThan(state.Limits.MaxExposurePerSymbol) {
		residual := state.Limits.MaxExposurePerSymbol.Sub(symbolExposure)
		if residual.LessThan(minResidualPct) {
			return deny(intent, state, domain.ReasonPMSymbolCap, ""), state
		}
		granted = residual
		capReason = domain.ReasonPMSymbolCap
	}

	for _, ccy := range currenciesOf(intent.Symbol) {
		ccyExposure := decimal.Zero
		for _, p := range state.Positions {
			for _, pc := range currenciesOf(p.Symbol) {
				if pc == ccy {
					ccyExposure = ccyExposure.Add(p.RiskPct)
				}
			}
		}
		if ccyExposure.Add(granted).GreaterThan(state.Limits.MaxExposurePerCurrency) {
			residual := state.Limits.MaxExposurePerCurrency.Sub(ccyExposure)
			if residual.LessThan(minResidualPct) {
				return deny(intent, state, domain.ReasonPMCurrencyCap, ""), state
			}
			granted = residual
			capReason = domain.ReasonPMCurrencyCap
		}
	}

	// 6. Fit test against the remaining tick budget.
	if state.AvailableRiskPct.LessThan(granted) {
		if state.AvailableRiskPct.LessThan(minResidualPct) {
			return deny(intent, state, domain.ReasonPMBudgetExhausted, ""), state
		}
		granted = state.AvailableRiskPct
		if capReason == "" {
			capReason = domain.ReasonPMRiskScaled
		}
	}

	// 7. Queue when the executor cannot take commands.
	if state.ExecutionHealth == domain.ExecHealthBroken {
		return domain.Decision{
			IntentID:  intent.IntentID,
			Verdict:   domain.VerdictQueue,
			RiskState: state.View(),
			Why: domain.Why{
				ReasonCode: domain.ReasonPMQueuedExecBroken,
				Message:    domain.ReasonDescription(domain.ReasonPMQueuedExecBroken),
			},
		}, state
	}

	next := apply(state, intent, granted)

	if granted.LessThan(proposed) {
		reason := capReason
		if reason == "" {
			reason = domain.ReasonPMRiskScaled
		}
		return domain.Decision{
			IntentID: intent.IntentID,
			Verdict:  domain.VerdictModify,
			Adjustment: &domain.RiskAdjustment{
				OriginalPct: proposed,
				AdjustedPct: granted,
				Reason:      reason,
			},
			RiskState: next.View(),
			Why: domain.Why{
				ReasonCode: domain.ReasonPMRiskScaled,
				Message:    domain.ReasonDescription(domain.ReasonPMRiskScaled),
			},
		}, next
	}

	return domain.Decision{
		IntentID:  intent.IntentID,
		Verdict:   domain.VerdictAllow,
		RiskState: next.View(),
		Why: domain.Why{
			ReasonCode: domain.ReasonPMAllow,
			Message:    domain.ReasonDescription(domain.ReasonPMAllow),
		},
	}, next
}

// apply books the granted risk into the in-tick state.
func apply(state domain.PortfolioState, intent domain.Intent, granted decimal.Decimal) domain.PortfolioState {
	next := state
	next.ExposurePct = state.ExposurePct.Add(granted)
	next.AvailableRiskPct = state.AvailableRiskPct.Sub(granted)
	if next.AvailableRiskPct.IsNegative() {
		next.AvailableRiskPct = decimal.Zero
	}
	if intent.Type.OpensExposure() {
		next.OpenPositions = state.OpenPositions + 1
		next.Positions = make([]domain.Position, len(state.Positions), len(state.Positions)+1)
		copy(next.Positions, state.Positions)
		next.Positions = append(next.Positions, domain.Position{
			Symbol:    intent.Symbol,
			BrainID:   intent.BrainID,
			Direction: intent.Direction(),
			RiskPct:   granted,
			Entry:     intent.Plan.Entry,
		})
	}
	return next
}

func deny(intent domain.Intent, state domain.PortfolioState, code, detail string) domain.Decision {
	msg := domain.ReasonDescription(code)
	if detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, detail)
	}
	return domain.Decision{
		IntentID:  intent.IntentID,
		Verdict:   domain.VerdictDeny,
		RiskState: state.View(),
		Why:       domain.Why{ReasonCode: code, Message: msg},
	}
}

// NewTickState builds the portfolio state a tick starts from.
func NewTickState(limits domain.RiskLimits, mode domain.GlobalMode, health domain.ExecutionHealth, positions []domain.Position, cooldowns []domain.Cooldown, dailyLossPct, drawdownPct decimal.Decimal) domain.PortfolioState {
	exposure := decimal.Zero
	for _, p := range positions {
		exposure = exposure.Add(p.RiskPct)
	}
	available := limits.MaxExposurePct.Sub(exposure)
	if available.IsNegative() {
		available = decimal.Zero
	}
	return domain.PortfolioState{
		DrawdownPct:      drawdownPct,
		ExposurePct:      exposure,
		DailyLossPct:     dailyLossPct,
		AvailableRiskPct: available,
		OpenPositions:    len(positions),
		Positions:        positions,
		Limits:           limits,
		Mode:             mode,
		Cooldowns:        cooldowns,
		ExecutionHealth:  health,
	}
}
