package mapper

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantarch/helmsman/internal/domain"
)

func approvedInput() Input {
	return Input{
		Gate: domain.GateG2,
		Arm:  domain.ArmArmed,
		Intent: domain.Intent{
			IntentID:      "i1",
			CorrelationID: "corr-1",
			Symbol:        "EURUSD",
			BrainID:       "A2",
			Type:          domain.IntentOpenLong,
			RiskPct:       decimal.NewFromFloat(0.5),
			Plan:          domain.TradePlan{Entry: 1.1000, Stop: 1.0985, Target: 1.1030, Timeframe: domain.TimeframeH1},
		},
		Decision:        domain.Decision{IntentID: "i1", Verdict: domain.VerdictAllow},
		CurrentStrategy: "A2",
		ActiveSymbols:   []string{"EURUSD"},
	}
}

func types(cmds []domain.ExecutorCommand) []domain.CommandType {
	out := make([]domain.CommandType, len(cmds))
	for i, c := range cmds {
		out[i] = c.Type
	}
	return out
}

func TestGateG0SuppressesEverything(t *testing.T) {
	verdicts := []domain.Verdict{domain.VerdictAllow, domain.VerdictModify, domain.VerdictDeny, domain.VerdictQueue}
	for _, v := range verdicts {
		in := approvedInput()
		in.Gate = domain.GateG0
		in.Decision.Verdict = v
		in.Emergency = &EmergencyAction{ExitNow: true, Reason: "test"}

		cmds, notes := Map(in)
		assert.Nil(t, cmds, "verdict %s", v)
		assert.Nil(t, notes, "verdict %s", v)
	}
}

func TestEmergencyExitMapsToSingleCloseDay(t *testing.T) {
	in := approvedInput()
	in.Emergency = &EmergencyAction{
		ExitNow: true,
		Symbols: []string{"EURUSD", "GBPJPY"},
		Reason:  domain.ReasonEHMExitNow,
	}
	// Even a denied intent cannot suppress the emergency.
	in.Decision.Verdict = domain.VerdictDeny

	cmds, notes := Map(in)
	require.Len(t, cmds, 1)
	assert.Nil(t, notes)
	assert.Equal(t, domain.CommandCloseDay, cmds[0].Type)
	assert.Equal(t, "corr-1", cmds[0].CorrelationID)

	payload, ok := cmds[0].Payload.(domain.CloseDayPayload)
	require.True(t, ok)
	assert.Equal(t, []string{"EURUSD", "GBPJPY"}, payload.Symbols)
}

func TestUnapprovedVerdictsProduceNothing(t *testing.T) {
	for _, v := range []domain.Verdict{domain.VerdictDeny, domain.VerdictQueue} {
		in := approvedInput()
		in.Decision.Verdict = v
		cmds, notes := Map(in)
		assert.Nil(t, cmds, "verdict %s", v)
		assert.Nil(t, notes, "verdict %s", v)
	}
}

func TestCloseIntentIsTheExecutorsJob(t *testing.T) {
	in := approvedInput()
	in.Intent.Type = domain.IntentClose
	cmds, notes := Map(in)
	assert.Nil(t, cmds)
	assert.Nil(t, notes)
}

func TestUnsupportedIntentTypesYieldANote(t *testing.T) {
	for _, typ := range []domain.IntentType{domain.IntentHedge, domain.IntentScaleOut} {
		in := approvedInput()
		in.Intent.Type = typ

		cmds, notes := Map(in)
		assert.Nil(t, cmds, "type %s", typ)
		require.Len(t, notes, 1, "type %s", typ)
		assert.Equal(t, domain.ReasonExecOrderFailed, notes[0].ReasonCode)
		assert.Contains(t, notes[0].Message, string(typ))
	}
}

func TestPlainApprovalEmitsParamsOnly(t *testing.T) {
	in := approvedInput()
	cmds, notes := Map(in)

	assert.Nil(t, notes)
	require.Equal(t, []domain.CommandType{domain.CommandSetParams}, types(cmds))

	payload, ok := cmds[0].Payload.(domain.ParamsPayload)
	require.True(t, ok)
	assert.Equal(t, "EURUSD", payload.Symbol)
	assert.Equal(t, domain.DirectionLong, payload.Direction)
	assert.InDelta(t, 0.5, payload.Quantity, 1e-9)
}

func TestFullCommandSequenceInOrder(t *testing.T) {
	in := approvedInput()
	in.CurrentStrategy = "B3"          // strategy switch needed
	in.ActiveSymbols = []string{"GBPJPY"} // symbol not yet active
	in.Arm = domain.ArmDisarmed
	in.Decision.Verdict = domain.VerdictModify
	in.Decision.Adjustment = &domain.RiskAdjustment{
		OriginalPct: decimal.NewFromFloat(0.5),
		AdjustedPct: decimal.NewFromFloat(0.2),
		Reason:      domain.ReasonPMSymbolCap,
	}

	cmds, notes := Map(in)
	assert.Nil(t, notes)
	assert.Equal(t, []domain.CommandType{
		domain.CommandSetStrategy,
		domain.CommandSetParams,
		domain.CommandSetRisk,
		domain.CommandSetSymbols,
		domain.CommandArm,
	}, types(cmds))

	risk, ok := cmds[2].Payload.(domain.RiskPayload)
	require.True(t, ok)
	assert.True(t, risk.RiskPct.Equal(decimal.NewFromFloat(0.2)))

	symbols, ok := cmds[3].Payload.(domain.SymbolsPayload)
	require.True(t, ok)
	assert.Equal(t, []string{"GBPJPY", "EURUSD"}, symbols.Symbols)

	for _, c := range cmds {
		assert.Equal(t, "corr-1", c.CorrelationID)
	}
}

func TestSetRiskOnlyAccompaniesModify(t *testing.T) {
	in := approvedInput()
	in.Decision.Verdict = domain.VerdictAllow
	in.Decision.Adjustment = &domain.RiskAdjustment{AdjustedPct: decimal.NewFromFloat(0.2)}

	cmds, _ := Map(in)
	assert.NotContains(t, types(cmds), domain.CommandSetRisk)
}

func TestArmOnlyWhenDisarmedAboveG0(t *testing.T) {
	in := approvedInput()
	in.Arm = domain.ArmDisarmed
	in.Gate = domain.GateG1
	cmds, _ := Map(in)
	assert.Contains(t, types(cmds), domain.CommandArm)

	in.Arm = domain.ArmArmed
	cmds, _ = Map(in)
	assert.NotContains(t, types(cmds), domain.CommandArm)
}

func TestMapIsPure(t *testing.T) {
	in := approvedInput()
	first, firstNotes := Map(in)
	second, secondNotes := Map(in)
	assert.Equal(t, first, second)
	assert.Equal(t, firstNotes, secondNotes)
}
