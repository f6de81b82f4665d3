package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantarch/helmsman/internal/domain"
)

var testNow = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func openIntent(id, symbol string, riskPct float64) domain.Intent {
	return domain.Intent{
		IntentID: id,
		Symbol:   symbol,
		BrainID:  "A2",
		Type:     domain.IntentOpenLong,
		RiskPct:  dec(riskPct),
		Plan:     domain.TradePlan{Entry: 1.1000, Stop: 1.0985, Target: 1.1030},
	}
}

func freshState() domain.PortfolioState {
	return NewTickState(domain.DefaultRiskLimits(), domain.ModeNormal, domain.ExecHealthOK, nil, nil, decimal.Zero, decimal.Zero)
}

func TestAllowWithinAllLimits(t *testing.T) {
	state := freshState()
	decision, next := Evaluate(openIntent("i1", "EURUSD", 0.5), state, testNow)

	assert.Equal(t, domain.VerdictAllow, decision.Verdict)
	assert.Equal(t, domain.ReasonPMAllow, decision.Why.ReasonCode)
	assert.Equal(t, 1, next.OpenPositions)
	assert.True(t, next.ExposurePct.Equal(dec(0.5)))
	assert.True(t, next.AvailableRiskPct.Equal(state.AvailableRiskPct.Sub(dec(0.5))))
}

func TestRiskOffDeniesOpeningIntents(t *testing.T) {
	state := freshState()
	state.Mode = domain.ModeRiskOff

	decision, next := Evaluate(openIntent("i1", "EURUSD", 0.5), state, testNow)
	assert.Equal(t, domain.VerdictDeny, decision.Verdict)
	assert.Equal(t, domain.ReasonGlobalRiskOff, decision.Why.ReasonCode)
	assert.Equal(t, state, next, "deny must not mutate the state")
}

func TestCooldownBlocksTheBrainSymbolPair(t *testing.T) {
	state := freshState()
	state.Cooldowns = []domain.Cooldown{{
		BrainID: "A2", Symbol: "EURUSD", Until: testNow.Add(10 * time.Minute),
	}}

	decision, _ := Evaluate(openIntent("i1", "EURUSD", 0.5), state, testNow)
	assert.Equal(t, domain.VerdictDeny, decision.Verdict)
	assert.Equal(t, domain.ReasonCooldownActive, decision.Why.ReasonCode)

	// The same cooldown does not cover another symbol.
	decision, _ = Evaluate(openIntent("i2", "GBPUSD", 0.5), state, testNow)
	assert.Equal(t, domain.VerdictAllow, decision.Verdict)
}

func TestCorrelatedExposureCap(t *testing.T) {
	state := NewTickState(domain.DefaultRiskLimits(), domain.ModeNormal, domain.ExecHealthOK,
		[]domain.Position{
			{Symbol: "EURUSD", BrainID: "A2", Direction: domain.DirectionLong, RiskPct: dec(2)},
			{Symbol: "EURJPY", BrainID: "B3", Direction: domain.DirectionLong, RiskPct: dec(1.9)},
		}, nil, decimal.Zero, decimal.Zero)

	// EURGBP shares EUR with 3.9 already committed; cap is 4.
	decision, _ := Evaluate(openIntent("i1", "EURGBP", 0.5), state, testNow)
	assert.Equal(t, domain.VerdictDeny, decision.Verdict)
	assert.Equal(t, domain.ReasonPMCorrelationBlock, decision.Why.ReasonCode)

	// AUDNZD shares nothing with the open book.
	decision, _ = Evaluate(openIntent("i2", "AUDNZD", 0.5), state, testNow)
	assert.Equal(t, domain.VerdictAllow, decision.Verdict)
}

func TestHardCaps(t *testing.T) {
	t.Run("max positions", func(t *testing.T) {
		positions := make([]domain.Position, 5)
		for i := range positions {
			positions[i] = domain.Position{Symbol: "AUDNZD", RiskPct: dec(0.1)}
		}
		state := NewTickState(domain.DefaultRiskLimits(), domain.ModeNormal, domain.ExecHealthOK, positions, nil, decimal.Zero, decimal.Zero)

		decision, _ := Evaluate(openIntent("i1", "USDCAD", 0.3), state, testNow)
		assert.Equal(t, domain.VerdictDeny, decision.Verdict)
		assert.Equal(t, domain.ReasonPMMaxPositions, decision.Why.ReasonCode)
	})

	t.Run("daily loss", func(t *testing.T) {
		state := NewTickState(domain.DefaultRiskLimits(), domain.ModeNormal, domain.ExecHealthOK, nil, nil, dec(3), decimal.Zero)
		decision, _ := Evaluate(openIntent("i1", "EURUSD", 0.3), state, testNow)
		assert.Equal(t, domain.VerdictDeny, decision.Verdict)
		assert.Equal(t, domain.ReasonPMMaxDailyLoss, decision.Why.ReasonCode)
	})

	t.Run("drawdown", func(t *testing.T) {
		state := NewTickState(domain.DefaultRiskLimits(), domain.ModeNormal, domain.ExecHealthOK, nil, nil, decimal.Zero, dec(10))
		decision, _ := Evaluate(openIntent("i1", "EURUSD", 0.3), state, testNow)
		assert.Equal(t, domain.VerdictDeny, decision.Verdict)
		assert.Equal(t, domain.ReasonPMMaxDrawdown, decision.Why.ReasonCode)
	})
}

func TestSymbolCapScalesDownToResidual(t *testing.T) {
	state := NewTickState(domain.DefaultRiskLimits(), domain.ModeNormal, domain.ExecHealthOK,
		[]domain.Position{{Symbol: "EURUSD", RiskPct: dec(1.5)}}, nil, decimal.Zero, decimal.Zero)

	// Symbol cap 2.0, residual 0.5 < proposed 1.0.
	decision, next := Evaluate(openIntent("i1", "EURUSD", 1.0), state, testNow)
	assert.Equal(t, domain.VerdictModify, decision.Verdict)
	require.NotNil(t, decision.Adjustment)
	assert.True(t, decision.Adjustment.AdjustedPct.Equal(dec(0.5)))
	assert.Equal(t, domain.ReasonPMSymbolCap, decision.Adjustment.Reason)
	assert.True(t, next.ExposurePct.Equal(dec(2.0)))
}

func TestSymbolCapDeniesBelowMinimumResidual(t *testing.T) {
	state := NewTickState(domain.DefaultRiskLimits(), domain.ModeNormal, domain.ExecHealthOK,
		[]domain.Position{{Symbol: "EURUSD", RiskPct: dec(1.95)}}, nil, decimal.Zero, decimal.Zero)

	// Residual 0.05 sits below the 0.1 floor.
	decision, next := Evaluate(openIntent("i1", "EURUSD", 0.5), state, testNow)
	assert.Equal(t, domain.VerdictDeny, decision.Verdict)
	assert.Equal(t, domain.ReasonPMSymbolCap, decision.Why.ReasonCode)
	assert.Equal(t, state, next)
}

func TestCurrencyCapScalesAcrossPairs(t *testing.T) {
	// The correlated cap is lifted so the per-currency cap is what binds.
	limits := domain.DefaultRiskLimits()
	limits.MaxCorrelatedExposure = dec(6)
	state := NewTickState(limits, domain.ModeNormal, domain.ExecHealthOK,
		[]domain.Position{
			{Symbol: "EURUSD", RiskPct: dec(1.8)},
			{Symbol: "EURJPY", RiskPct: dec(1.8)},
		}, nil, decimal.Zero, decimal.Zero)

	// EUR exposure 3.6 of 4.0; proposed 1.0 on EURGBP scales to 0.4.
	decision, _ := Evaluate(openIntent("i1", "EURGBP", 1.0), state, testNow)
	assert.Equal(t, domain.VerdictModify, decision.Verdict)
	require.NotNil(t, decision.Adjustment)
	assert.True(t, decision.Adjustment.AdjustedPct.Equal(dec(0.4)))
	assert.Equal(t, domain.ReasonPMCurrencyCap, decision.Adjustment.Reason)
}

func TestQueueWhenExecutionBroken(t *testing.T) {
	state := freshState()
	state.ExecutionHealth = domain.ExecHealthBroken

	decision, next := Evaluate(openIntent("i1", "EURUSD", 0.5), state, testNow)
	assert.Equal(t, domain.VerdictQueue, decision.Verdict)
	assert.Equal(t, domain.ReasonPMQueuedExecBroken, decision.Why.ReasonCode)
	assert.Equal(t, state, next, "queue must not book risk")
}

func TestBudgetInvariantAcrossSequentialIntents(t *testing.T) {
	state := freshState()
	intents := []domain.Intent{
		openIntent("i1", "EURUSD", 2.0),
		openIntent("i2", "GBPJPY", 2.0),
		openIntent("i3", "AUDNZD", 2.0),
		openIntent("i4", "USDCAD", 2.0),
	}

	approved := decimal.Zero
	for _, in := range intents {
		decision, next := Evaluate(in, state, testNow)
		approved = approved.Add(decision.ApprovedRiskPct(in.RiskPct))
		state = next
	}

	limit := domain.DefaultRiskLimits().MaxExposurePct
	assert.True(t, approved.LessThanOrEqual(limit),
		"approved %s exceeds budget %s", approved, limit)
	assert.True(t, state.AvailableRiskPct.GreaterThanOrEqual(decimal.Zero))
}

func TestEarlierIntentWinsTheResidual(t *testing.T) {
	state := freshState()
	state.AvailableRiskPct = dec(0.6)

	first, next := Evaluate(openIntent("i1", "EURUSD", 0.5), state, testNow)
	assert.Equal(t, domain.VerdictAllow, first.Verdict)

	// 0.1 left: the second intent scales down to the floor exactly.
	second, next := Evaluate(openIntent("i2", "GBPJPY", 0.5), next, testNow)
	assert.Equal(t, domain.VerdictModify, second.Verdict)
	require.NotNil(t, second.Adjustment)
	assert.True(t, second.Adjustment.AdjustedPct.Equal(dec(0.1)))

	// Nothing left for the third; the deny names the exhausted budget, not
	// a symbol cap.
	third, _ := Evaluate(openIntent("i3", "AUDNZD", 0.5), next, testNow)
	assert.Equal(t, domain.VerdictDeny, third.Verdict)
	assert.Equal(t, domain.ReasonPMBudgetExhausted, third.Why.ReasonCode)
}

func TestNegativeProposedRiskIsAnInternalError(t *testing.T) {
	state := freshState()
	in := openIntent("i1", "EURUSD", 0.5)
	in.RiskPct = dec(-0.5)

	decision, next := Evaluate(in, state, testNow)
	assert.Equal(t, domain.VerdictDeny, decision.Verdict)
	assert.Equal(t, domain.ReasonPMInternalError, decision.Why.ReasonCode)
	assert.Equal(t, state, next)
}

func TestCloseIntentBypassesOpeningGuards(t *testing.T) {
	positions := make([]domain.Position, 5)
	for i := range positions {
		positions[i] = domain.Position{Symbol: "AUDNZD", RiskPct: dec(0.1)}
	}
	state := NewTickState(domain.DefaultRiskLimits(), domain.ModeRiskOff, domain.ExecHealthOK, positions, nil, decimal.Zero, decimal.Zero)

	in := openIntent("i1", "AUDNZD", 0)
	in.Type = domain.IntentClose

	decision, _ := Evaluate(in, state, testNow)
	assert.Equal(t, domain.VerdictAllow, decision.Verdict)
}

func TestCurrenciesOf(t *testing.T) {
	assert.Equal(t, []string{"EUR", "USD"}, currenciesOf("EURUSD"))
	assert.Equal(t, []string{"EUR", "USD"}, currenciesOf("eurusd"))
	assert.Equal(t, []string{"XAUUSD+"}, currenciesOf("XAUUSD+"))
	assert.True(t, correlated("EURUSD", "USDJPY"))
	assert.False(t, correlated("EURUSD", "AUDNZD"))
}
